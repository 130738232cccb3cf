package cli

import (
	"context"
	"strings"
	"testing"

	tea "github.com/charmbracelet/bubbletea"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

func newTUISession(t *testing.T, tasks ...models.TaskDraft) *core.Session {
	t.Helper()
	sessions := core.NewSessionManager(storage.NewMemoryStore(), nil, nil)
	t.Cleanup(sessions.Close)
	sess, err := sessions.Open(context.Background(), "web")
	if err != nil {
		t.Fatalf("Open: %v", err)
	}
	for _, d := range tasks {
		if _, err := sess.Board.Create(context.Background(), d); err != nil {
			t.Fatalf("Create %s: %v", d.Title, err)
		}
	}
	return sess
}

func key(s string) tea.KeyMsg {
	switch s {
	case "space":
		return tea.KeyMsg{Type: tea.KeySpace, Runes: []rune{' '}}
	case "enter":
		return tea.KeyMsg{Type: tea.KeyEnter}
	case "esc":
		return tea.KeyMsg{Type: tea.KeyEsc}
	case "right":
		return tea.KeyMsg{Type: tea.KeyRight}
	case "left":
		return tea.KeyMsg{Type: tea.KeyLeft}
	case "down":
		return tea.KeyMsg{Type: tea.KeyDown}
	case "up":
		return tea.KeyMsg{Type: tea.KeyUp}
	}
	return tea.KeyMsg{Type: tea.KeyRunes, Runes: []rune(s)}
}

// press feeds keys to the model and runs any drop command it returns.
func press(t *testing.T, m boardModel, keys ...string) boardModel {
	t.Helper()
	for _, k := range keys {
		next, cmd := m.Update(key(k))
		m = next.(boardModel)
		if cmd == nil {
			continue
		}
		if msg, ok := cmd().(dropDoneMsg); ok {
			next, _ = m.Update(msg)
			m = next.(boardModel)
		}
	}
	return m
}

func bucketTitles(sess *core.Session, status models.TaskStatus) string {
	var out []string
	for _, t := range sess.Board.Bucket(status) {
		out = append(out, t.Title)
	}
	return strings.Join(out, ",")
}

func TestBoardModel_DragAcrossColumns(t *testing.T) {
	sess := newTUISession(t,
		models.TaskDraft{Title: "A"},
		models.TaskDraft{Title: "B"},
		models.TaskDraft{Title: "C", Status: models.StatusInProgress},
	)
	m := newBoardModel(context.Background(), sess, core.Criteria{}, nil)

	m = press(t, m, "space")
	if m.dragging == "" {
		t.Fatal("space should pick up the selected task")
	}
	if !sess.Drag.Dragging(m.dragging) {
		t.Error("drag controller has no gesture for the picked task")
	}

	m = press(t, m, "right")
	if got := bucketTitles(sess, models.StatusTodo); got != "B" {
		t.Errorf("hover preview todo = %q, want B", got)
	}
	if m.dropRow != 1 {
		t.Errorf("dropRow = %d, want past the last task", m.dropRow)
	}

	// Drop above C.
	m = press(t, m, "up", "enter")
	if m.dragging != "" || m.err != nil {
		t.Fatalf("drop left dragging=%q err=%v", m.dragging, m.err)
	}
	if got := bucketTitles(sess, models.StatusInProgress); got != "A,C" {
		t.Errorf("in_progress = %q, want A,C", got)
	}
	if got := bucketTitles(sess, models.StatusTodo); got != "B" {
		t.Errorf("todo = %q, want B", got)
	}
	if m.col != 1 || m.row != 0 {
		t.Errorf("cursor = (%d,%d), want on the dropped task (1,0)", m.col, m.row)
	}
}

func TestBoardModel_ReorderWithinColumn(t *testing.T) {
	sess := newTUISession(t,
		models.TaskDraft{Title: "A"},
		models.TaskDraft{Title: "B"},
		models.TaskDraft{Title: "C"},
	)
	m := newBoardModel(context.Background(), sess, core.Criteria{}, nil)

	m = press(t, m, "space", "down", "down", "space")
	if got := bucketTitles(sess, models.StatusTodo); got != "B,C,A" {
		t.Errorf("todo = %q, want B,C,A", got)
	}
	if m.row != 2 {
		t.Errorf("cursor row = %d, want 2", m.row)
	}
}

func TestBoardModel_CancelRestoresPlacement(t *testing.T) {
	sess := newTUISession(t,
		models.TaskDraft{Title: "A"},
		models.TaskDraft{Title: "B", Status: models.StatusReview},
	)
	m := newBoardModel(context.Background(), sess, core.Criteria{}, nil)

	m = press(t, m, "space", "right", "right")
	if task, _ := sess.Board.Task(m.dragging); task.Status != models.StatusReview {
		t.Errorf("hover preview status = %s, want review", task.Status)
	}

	m = press(t, m, "esc")
	if m.dragging != "" {
		t.Error("esc should end the drag")
	}
	if got := bucketTitles(sess, models.StatusTodo); got != "A" {
		t.Errorf("todo = %q, want A", got)
	}
	if got := bucketTitles(sess, models.StatusReview); got != "B" {
		t.Errorf("review = %q, want B", got)
	}
	if m.col != 0 {
		t.Errorf("cursor column = %d, want back on todo", m.col)
	}
}

func TestBoardModel_Navigation(t *testing.T) {
	sess := newTUISession(t,
		models.TaskDraft{Title: "A"},
		models.TaskDraft{Title: "B"},
	)
	m := newBoardModel(context.Background(), sess, core.Criteria{}, nil)

	m = press(t, m, "j", "j")
	if m.row != 1 {
		t.Errorf("row = %d, want clamped to 1", m.row)
	}
	m = press(t, m, "l")
	if m.col != 1 || m.row != 0 {
		t.Errorf("cursor = (%d,%d), want (1,0) in empty column", m.col, m.row)
	}
	m = press(t, m, "h", "h")
	if m.col != 0 {
		t.Errorf("col = %d, want 0", m.col)
	}

	// Picking up in an empty column does nothing.
	m = press(t, m, "l", "space")
	if m.dragging != "" {
		t.Errorf("dragging = %q in an empty column", m.dragging)
	}
}

func TestBoardModel_FilteredView(t *testing.T) {
	sess := newTUISession(t,
		models.TaskDraft{Title: "Fix login"},
		models.TaskDraft{Title: "Release notes"},
	)
	m := newBoardModel(context.Background(), sess, core.Criteria{SearchQuery: "release"}, nil)

	if n := len(m.cols[0].Tasks); n != 1 {
		t.Fatalf("filtered todo has %d tasks, want 1", n)
	}
	view := m.View()
	if !strings.Contains(view, "Release notes") || strings.Contains(view, "Fix login") {
		t.Errorf("view does not honour the filter:\n%s", view)
	}
	if !strings.Contains(view, "filter:") {
		t.Errorf("view does not show the active filter:\n%s", view)
	}
}

func TestBoardModel_QuitCancelsDrag(t *testing.T) {
	sess := newTUISession(t, models.TaskDraft{Title: "A"})
	m := newBoardModel(context.Background(), sess, core.Criteria{}, nil)

	m = press(t, m, "space", "right")
	id := m.dragging
	_, cmd := m.Update(key("q"))
	if cmd == nil {
		t.Fatal("q should quit")
	}
	if sess.Drag.Dragging(id) {
		t.Error("quitting should cancel the drag")
	}
	if got := bucketTitles(sess, models.StatusTodo); got != "A" {
		t.Errorf("todo = %q, want A", got)
	}
}
