package internal

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ---------------------------------------------------------------------------
// helpers
// ---------------------------------------------------------------------------

// newSharedApps creates two Apps reading the same board file, standing in for
// two clients of one board.
func newSharedApps(t *testing.T) (*App, *App) {
	t.Helper()
	dir := t.TempDir()
	writeConfig(t, dir, "backend: file\nfile_path: board.yaml\n")
	return newTestApp(t, dir), newTestApp(t, dir)
}

func openBoard(t *testing.T, app *App, project string) *core.Session {
	t.Helper()
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	sess, err := app.Sessions.Open(ctx, project)
	if err != nil {
		t.Fatalf("opening %s: %v", project, err)
	}
	return sess
}

// eventually polls cond until it holds or the deadline passes.
func eventually(t *testing.T, what string, cond func() bool) {
	t.Helper()
	deadline := time.Now().Add(5 * time.Second)
	for !cond() {
		if time.Now().After(deadline) {
			t.Fatalf("timed out waiting for %s", what)
		}
		time.Sleep(20 * time.Millisecond)
	}
}

func statusOf(sess *core.Session, id string) models.TaskStatus {
	t, ok := sess.Board.Task(id)
	if !ok {
		return ""
	}
	return t.Status
}

func bucketIDs(sess *core.Session, status models.TaskStatus) string {
	var ids []string
	for _, t := range sess.Board.Bucket(status) {
		ids = append(ids, t.ID)
	}
	return strings.Join(ids, ",")
}

// =========================================================================
// 1. Live sync between clients of one board file
// =========================================================================

func TestIntegration_ChangesReachOtherClients(t *testing.T) {
	app1, app2 := newSharedApps(t)
	ctx := context.Background()
	b1 := openBoard(t, app1, "web")
	b2 := openBoard(t, app2, "web")

	task, err := b1.Board.Create(ctx, models.TaskDraft{Title: "Write docs", Priority: models.PriorityHigh})
	if err != nil {
		t.Fatalf("Create() error = %v", err)
	}
	eventually(t, "task to reach the second client", func() bool {
		_, ok := b2.Board.Task(task.ID)
		return ok
	})

	if _, err := b2.Board.Move(ctx, task.ID, models.StatusDone, -1); err != nil {
		t.Fatalf("Move() error = %v", err)
	}
	eventually(t, "move to reach the first client", func() bool {
		return statusOf(b1, task.ID) == models.StatusDone
	})

	if _, err := b1.Board.Assign(ctx, task.ID, &models.Assignee{ID: "u1", Name: "Ana"}); err != nil {
		t.Fatalf("Assign() error = %v", err)
	}
	eventually(t, "assignment to reach the second client", func() bool {
		got, _ := b2.Board.Task(task.ID)
		return got.AssigneeID == "u1"
	})

	if err := b2.Board.Remove(ctx, task.ID); err != nil {
		t.Fatalf("Remove() error = %v", err)
	}
	eventually(t, "removal to reach the first client", func() bool {
		_, ok := b1.Board.Task(task.ID)
		return !ok
	})
}

func TestIntegration_ProjectsAreIsolated(t *testing.T) {
	app1, app2 := newSharedApps(t)
	ctx := context.Background()
	web := openBoard(t, app1, "web")
	ops := openBoard(t, app2, "ops")

	webTask, err := web.Board.Create(ctx, models.TaskDraft{Title: "Landing page"})
	if err != nil {
		t.Fatal(err)
	}
	opsTask, err := ops.Board.Create(ctx, models.TaskDraft{Title: "Rotate keys"})
	if err != nil {
		t.Fatal(err)
	}

	webOnApp2 := openBoard(t, app2, "web")
	eventually(t, "web task on the second client", func() bool {
		_, ok := webOnApp2.Board.Task(webTask.ID)
		return ok
	})
	if _, ok := webOnApp2.Board.Task(opsTask.ID); ok {
		t.Error("ops task leaked onto the web board")
	}
	if _, ok := ops.Board.Task(webTask.ID); ok {
		t.Error("web task leaked onto the ops board")
	}
}

// =========================================================================
// 2. Drag gestures: hover is local, drop is shared
// =========================================================================

func TestIntegration_DragPreviewStaysLocalUntilDrop(t *testing.T) {
	app1, app2 := newSharedApps(t)
	ctx := context.Background()
	b1 := openBoard(t, app1, "web")
	b2 := openBoard(t, app2, "web")

	a, err := b1.Board.Create(ctx, models.TaskDraft{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}
	r, err := b1.Board.Create(ctx, models.TaskDraft{Title: "R", Status: models.StatusReview})
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "tasks on the second client", func() bool {
		return statusOf(b2, a.ID) == models.StatusTodo && statusOf(b2, r.ID) == models.StatusReview
	})

	if err := b1.Drag.OnDragStart(a.ID); err != nil {
		t.Fatal(err)
	}
	if err := b1.Drag.OnDragOver(a.ID, core.ColumnTarget(models.StatusReview)); err != nil {
		t.Fatal(err)
	}
	if statusOf(b1, a.ID) != models.StatusReview {
		t.Errorf("first client preview status = %s, want review", statusOf(b1, a.ID))
	}
	stored, err := app1.Store.GetTask(ctx, a.ID)
	if err != nil {
		t.Fatal(err)
	}
	if stored.Status != models.StatusTodo {
		t.Errorf("hover wrote to the store: status = %s", stored.Status)
	}
	if statusOf(b2, a.ID) != models.StatusTodo {
		t.Errorf("second client saw the hover preview")
	}

	target := core.TaskTarget(r.ID)
	if _, err := b1.Drag.OnDragEnd(ctx, a.ID, &target); err != nil {
		t.Fatalf("OnDragEnd() error = %v", err)
	}
	want := a.ID + "," + r.ID
	eventually(t, "drop to reach the second client", func() bool {
		return bucketIDs(b2, models.StatusReview) == want
	})
	if got := bucketIDs(b1, models.StatusReview); got != want {
		t.Errorf("first client review = %s, want %s", got, want)
	}
}

// =========================================================================
// 3. Task detail through the shared store
// =========================================================================

func TestIntegration_SubtasksAndComments(t *testing.T) {
	app1, app2 := newSharedApps(t)
	ctx := context.Background()
	b1 := openBoard(t, app1, "web")
	b2 := openBoard(t, app2, "web")

	task, err := b1.Board.Create(ctx, models.TaskDraft{Title: "Release"})
	if err != nil {
		t.Fatal(err)
	}
	sub, err := b1.Detail.AddSubtask(ctx, task.ID, "changelog")
	if err != nil {
		t.Fatal(err)
	}
	eventually(t, "subtask on the second client", func() bool {
		got, _ := b2.Board.Task(task.ID)
		return got.SubtaskIndex(sub.ID) >= 0
	})
	if err := b2.Detail.ToggleSubtask(ctx, task.ID, sub.ID, true, "u2"); err != nil {
		t.Fatal(err)
	}
	eventually(t, "toggle on the first client", func() bool {
		got, _ := b1.Board.Task(task.ID)
		done, total := got.SubtaskProgress()
		return done == 1 && total == 1
	})

	if _, err := b1.Detail.AddComment(ctx, task.ID, models.CommentDraft{UserID: "u1", Content: "shipping today"}); err != nil {
		t.Fatal(err)
	}
	comments, err := b2.Detail.Comments(ctx, task.ID)
	if err != nil {
		t.Fatal(err)
	}
	if len(comments) != 1 || comments[0].Content != "shipping today" {
		t.Errorf("comments = %+v", comments)
	}
}

// =========================================================================
// 4. Persistence and observability
// =========================================================================

func TestIntegration_BoardSurvivesRestart(t *testing.T) {
	dir := t.TempDir()
	ctx := context.Background()

	app1, err := NewApp(dir)
	if err != nil {
		t.Fatal(err)
	}
	b1 := openBoard(t, app1, "web")
	var ids []string
	for _, title := range []string{"A", "B", "C"} {
		task, err := b1.Board.Create(ctx, models.TaskDraft{Title: title})
		if err != nil {
			t.Fatal(err)
		}
		ids = append(ids, task.ID)
	}
	if _, err := b1.Board.Move(ctx, ids[2], models.StatusTodo, 0); err != nil {
		t.Fatal(err)
	}
	if err := app1.Close(); err != nil {
		t.Fatalf("Close() error = %v", err)
	}

	app2 := newTestApp(t, dir)
	b2 := openBoard(t, app2, "web")
	want := ids[2] + "," + ids[0] + "," + ids[1]
	if got := bucketIDs(b2, models.StatusTodo); got != want {
		t.Errorf("todo after restart = %s, want %s", got, want)
	}
}

func TestIntegration_EventLogFeedsMetrics(t *testing.T) {
	app := newTestApp(t, t.TempDir())
	ctx := context.Background()
	b := openBoard(t, app, "web")

	a, err := b.Board.Create(ctx, models.TaskDraft{Title: "A", Type: models.TaskTypeBug})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := b.Board.Create(ctx, models.TaskDraft{Title: "B"}); err != nil {
		t.Fatal(err)
	}
	if _, err := b.Board.Move(ctx, a.ID, models.StatusDone, -1); err != nil {
		t.Fatal(err)
	}

	m, err := app.MetricsCalc.Calculate(time.Now().Add(-time.Hour), "web")
	if err != nil {
		t.Fatal(err)
	}
	if m.TasksCreated != 2 || m.TasksMoved != 1 {
		t.Errorf("created/moved = %d/%d, want 2/1", m.TasksCreated, m.TasksMoved)
	}
	if m.MovesByDestination["done"] != 1 {
		t.Errorf("moves by destination = %v", m.MovesByDestination)
	}

	events, err := app.EventLog.Read(observability.EventFilter{Type: core.EventTaskMoved})
	if err != nil {
		t.Fatal(err)
	}
	if len(events) != 1 || events[0].Data["task_id"] != a.ID {
		t.Errorf("move events = %+v", events)
	}
}

// =========================================================================
// 5. Failure handling
// =========================================================================

func TestIntegration_UnwritableBoardFileRollsBack(t *testing.T) {
	if os.Getuid() == 0 {
		t.Skip("permissions are not enforced for root")
	}
	dir := t.TempDir()
	app := newTestApp(t, dir)
	ctx := context.Background()
	b := openBoard(t, app, "web")

	task, err := b.Board.Create(ctx, models.TaskDraft{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}

	boardPath := filepath.Join(dir, "board.yaml")
	if err := os.Chmod(boardPath, 0o444); err != nil {
		t.Fatal(err)
	}
	if err := os.Chmod(dir, 0o555); err != nil {
		t.Fatal(err)
	}
	t.Cleanup(func() {
		_ = os.Chmod(dir, 0o755)
		_ = os.Chmod(boardPath, 0o644)
	})

	_, err = b.Board.Move(ctx, task.ID, models.StatusDone, -1)
	var werr *core.StoreWriteError
	if !errors.As(err, &werr) {
		t.Fatalf("Move() error = %v, want StoreWriteError", err)
	}
	if statusOf(b, task.ID) != models.StatusTodo {
		t.Errorf("status after failed move = %s, want todo", statusOf(b, task.ID))
	}
	if b.Board.IsPending(task.ID) {
		t.Error("task still pending after rollback")
	}
}

func TestIntegration_FeedFailureIsRecordedAndRecovered(t *testing.T) {
	dir := t.TempDir()
	writeConfig(t, dir, "backend: memory\n")
	app := newTestApp(t, dir)
	ctx := context.Background()
	b := openBoard(t, app, "web")

	task, err := b.Board.Create(ctx, models.TaskDraft{Title: "A"})
	if err != nil {
		t.Fatal(err)
	}

	mem, ok := app.Store.(*storage.MemoryStore)
	if !ok {
		t.Fatalf("store = %T, want *storage.MemoryStore", app.Store)
	}
	mem.Fail("web", errors.New("connection reset"))

	m, err := app.MetricsCalc.Calculate(time.Now().Add(-time.Hour), "web")
	if err != nil {
		t.Fatal(err)
	}
	if m.SubscriptionErrors != 1 {
		t.Errorf("SubscriptionErrors = %d, want 1", m.SubscriptionErrors)
	}

	eventually(t, "the session to resubscribe", func() bool {
		return b.Board.Err() == nil
	})
	if b.Board.State() != core.StateLoaded {
		t.Errorf("state = %v, want loaded", b.Board.State())
	}
	if _, ok := b.Board.Task(task.ID); !ok {
		t.Error("task lost across the resubscribe")
	}
}
