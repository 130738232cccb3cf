package cli

import (
	"context"
	"fmt"
	"os"
	"os/signal"

	tea "github.com/charmbracelet/bubbletea"
	"github.com/spf13/cobra"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// boardModel is the interactive board. Picking a task up, moving it across
// columns and dropping it runs the same start/over/end protocol as a pointer
// drag, so other clients see the hover preview as it happens.
type boardModel struct {
	ctx      context.Context
	sess     *core.Session
	criteria core.Criteria
	changes  <-chan struct{}

	cols   []core.Column
	width  int
	height int
	col    int
	row    int

	dragging string
	origin   models.TaskStatus
	dropRow  int
	busy     bool

	status string
	err    error
}

// boardChangedMsg reports that the board state moved on.
type boardChangedMsg struct{}

// dropDoneMsg carries the result of a drop back to the model.
type dropDoneMsg struct {
	task models.Task
	err  error
}

func newBoardModel(ctx context.Context, sess *core.Session, c core.Criteria, changes <-chan struct{}) boardModel {
	m := boardModel{ctx: ctx, sess: sess, criteria: c, changes: changes}
	m.refresh()
	return m
}

func waitForChange(changes <-chan struct{}) tea.Cmd {
	return func() tea.Msg {
		if _, ok := <-changes; !ok {
			return nil
		}
		return boardChangedMsg{}
	}
}

func (m boardModel) Init() tea.Cmd {
	return waitForChange(m.changes)
}

func (m *boardModel) refresh() {
	m.cols = columnsOf(core.FilterTasks(m.sess.Board.Tasks(), m.criteria))
	if n := len(m.cols[m.col].Tasks); m.row >= n {
		m.row = max(n-1, 0)
	}
	if m.dragging != "" {
		m.dropRow = min(m.dropRow, len(m.others()))
	}
}

// others lists the active column without the dragged task.
func (m boardModel) others() []models.Task {
	out := make([]models.Task, 0, len(m.cols[m.col].Tasks))
	for _, t := range m.cols[m.col].Tasks {
		if t.ID != m.dragging {
			out = append(out, t)
		}
	}
	return out
}

func (m boardModel) selected() (models.Task, bool) {
	tasks := m.cols[m.col].Tasks
	if m.row < 0 || m.row >= len(tasks) {
		return models.Task{}, false
	}
	return tasks[m.row], true
}

func (m boardModel) Update(msg tea.Msg) (tea.Model, tea.Cmd) {
	switch msg := msg.(type) {
	case tea.WindowSizeMsg:
		m.width = msg.Width
		m.height = msg.Height
		return m, nil

	case boardChangedMsg:
		m.refresh()
		return m, waitForChange(m.changes)

	case dropDoneMsg:
		m.busy = false
		m.dragging = ""
		if msg.err != nil {
			m.err = msg.err
		} else {
			m.err = nil
			m.status = fmt.Sprintf("moved %q to %s", msg.task.Title, msg.task.Status)
		}
		m.refresh()
		m.follow(msg.task.ID)
		return m, nil

	case tea.KeyMsg:
		if m.busy {
			return m, nil
		}
		return m.handleKey(msg)
	}
	return m, nil
}

func (m boardModel) handleKey(msg tea.KeyMsg) (tea.Model, tea.Cmd) {
	switch msg.String() {
	case "ctrl+c", "q":
		if m.dragging != "" {
			m.sess.Drag.OnDragCancel(m.dragging)
		}
		return m, tea.Quit

	case "esc":
		if m.dragging == "" {
			return m, tea.Quit
		}
		id := m.dragging
		m.sess.Drag.OnDragCancel(id)
		m.dragging = ""
		m.status = "drag cancelled"
		m.refresh()
		m.follow(id)
		return m, nil

	case "left", "h":
		m.shift(-1)
	case "right", "l":
		m.shift(1)

	case "up", "k":
		if m.dragging != "" {
			m.dropRow = max(m.dropRow-1, 0)
		} else {
			m.row = max(m.row-1, 0)
		}
	case "down", "j":
		if m.dragging != "" {
			m.dropRow = min(m.dropRow+1, len(m.others()))
		} else {
			m.row = min(m.row+1, max(len(m.cols[m.col].Tasks)-1, 0))
		}

	case " ", "space", "enter":
		if m.dragging != "" {
			return m.drop()
		}
		m.pickUp()
	}
	return m, nil
}

func (m *boardModel) pickUp() {
	t, ok := m.selected()
	if !ok {
		return
	}
	if err := m.sess.Drag.OnDragStart(t.ID); err != nil {
		m.err = err
		return
	}
	m.err = nil
	m.dragging = t.ID
	m.origin = t.Status
	m.dropRow = m.row
	m.status = fmt.Sprintf("dragging %q", t.Title)
}

// shift moves the cursor one column. While dragging it hovers the task over
// the new column.
func (m *boardModel) shift(d int) {
	next := m.col + d
	if next < 0 || next >= len(m.cols) {
		return
	}
	m.col = next
	if m.dragging == "" {
		m.row = min(m.row, max(len(m.cols[m.col].Tasks)-1, 0))
		return
	}
	status := m.cols[m.col].Status
	if err := m.sess.Drag.OnDragOver(m.dragging, core.ColumnTarget(status)); err != nil {
		m.err = err
	}
	m.refresh()
	m.dropRow = len(m.others())
}

// drop ends the gesture at dropRow of the active column. Over another task
// the dragged task takes that task's position; past the last task it lands
// at the end of the column.
func (m boardModel) drop() (tea.Model, tea.Cmd) {
	status := m.cols[m.col].Status
	target := core.ColumnTarget(status)
	if status == m.origin {
		// The origin column still holds the dragged task, so dropRow is the
		// final index of an in-column move.
		full := m.cols[m.col].Tasks
		if m.dropRow < len(full) {
			target = core.TaskTarget(full[m.dropRow].ID)
		}
	} else if others := m.others(); m.dropRow < len(others) {
		target = core.TaskTarget(others[m.dropRow].ID)
	}

	m.busy = true
	ctx, id, drag := m.ctx, m.dragging, m.sess.Drag
	return m, func() tea.Msg {
		t, err := drag.OnDragEnd(ctx, id, &target)
		return dropDoneMsg{task: t, err: err}
	}
}

// follow puts the cursor on the task with the given ID.
func (m *boardModel) follow(id string) {
	for c, col := range m.cols {
		for r, t := range col.Tasks {
			if t.ID == id {
				m.col, m.row = c, r
				return
			}
		}
	}
}

func (m boardModel) View() string {
	title := titleStyle.Render(" " + m.sess.Board.ProjectID() + " ")
	if !m.criteria.IsZero() {
		title += helpStyle.Render(fmt.Sprintf("  filter: q=%q priority=%s assignee=%s",
			m.criteria.SearchQuery, m.criteria.Priority, m.criteria.Assignee))
	}

	help := "←/→ column | ↑/↓ task | space: pick up | q: quit"
	if m.dragging != "" {
		help = "←/→ hover column | ↑/↓ position | space/enter: drop | esc: cancel"
	}

	body := renderColumns(m.cols, boardView{
		width:       m.width,
		interactive: true,
		activeCol:   m.col,
		cursorRow:   m.row,
		dragging:    m.dragging,
		dropRow:     m.dropRow,
		pending:     m.sess.Board.IsPending,
	})

	footer := helpStyle.Render(m.status)
	if m.err != nil {
		footer = errorStyle.Render("Error: " + m.err.Error())
	} else if err := m.sess.Board.Err(); err != nil {
		footer = errorStyle.Render("Live updates interrupted: " + err.Error())
	}
	return fmt.Sprintf("%s\n\n%s\n\n%s\n%s", title, body, footer, helpStyle.Render(help))
}

var boardTUICmd = &cobra.Command{
	Use:   "tui",
	Short: "Interactive terminal board with keyboard drag and drop",
	Long: `Launch an interactive board that follows live changes.

Select a task with the arrow keys and press space to pick it up. Moving left
and right previews the task in other columns; up and down choose its position.
Press space or enter to drop, esc to put it back.`,
	Args: cobra.NoArgs,
	RunE: func(cmd *cobra.Command, args []string) error {
		c, err := criteriaFromFlags(boardQuery, boardPriority, boardAssignee)
		if err != nil {
			return err
		}

		ctx, stop := signal.NotifyContext(cmd.Context(), os.Interrupt)
		defer stop()

		loadCtx, cancel := context.WithTimeout(ctx, commandTimeout)
		sess, err := openSession(loadCtx)
		cancel()
		if err != nil {
			return err
		}

		changes := make(chan struct{}, 1)
		unsubscribe := sess.Board.OnChange(func() {
			select {
			case changes <- struct{}{}:
			default:
			}
		})
		defer unsubscribe()

		p := tea.NewProgram(newBoardModel(ctx, sess, c, changes), tea.WithAltScreen(), tea.WithContext(ctx))
		if _, err := p.Run(); err != nil && ctx.Err() == nil {
			return fmt.Errorf("running board UI: %w", err)
		}
		return nil
	},
}
