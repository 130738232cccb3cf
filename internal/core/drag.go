package core

import (
	"context"
	"fmt"
	"sync"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

type targetKind int

const (
	targetColumn targetKind = iota + 1
	targetTask
)

// DropTarget is where a dragged task is released: either a column or another
// task. Construct it with ColumnTarget, TaskTarget or ParseDropTarget.
type DropTarget struct {
	kind   targetKind
	status models.TaskStatus
	taskID string
}

// ColumnTarget targets the end of a bucket.
func ColumnTarget(status models.TaskStatus) DropTarget {
	return DropTarget{kind: targetColumn, status: status}
}

// TaskTarget targets the current position of another task.
func TaskTarget(taskID string) DropTarget {
	return DropTarget{kind: targetTask, taskID: taskID}
}

// ParseDropTarget maps a raw drop id to a target. Status names denote
// columns; anything else is a task id. It returns false for an empty id.
func ParseDropTarget(id string) (DropTarget, bool) {
	if id == "" {
		return DropTarget{}, false
	}
	if s := models.TaskStatus(id); s.Valid() {
		return ColumnTarget(s), true
	}
	return TaskTarget(id), true
}

// Column returns the targeted status when the target is a column.
func (t DropTarget) Column() (models.TaskStatus, bool) {
	return t.status, t.kind == targetColumn
}

// Task returns the targeted task id when the target is a task.
func (t DropTarget) Task() (string, bool) {
	return t.taskID, t.kind == targetTask
}

func (t DropTarget) String() string {
	switch t.kind {
	case targetColumn:
		return "column:" + string(t.status)
	case targetTask:
		return "task:" + t.taskID
	}
	return "none"
}

type dragSession struct {
	origin     models.TaskStatus
	over       *RollbackToken
	overStatus models.TaskStatus
}

// DragController runs the three-phase drag protocol against a board: hover
// changes are local and reversible, only the drop writes to the store.
type DragController struct {
	board *Board

	mu       sync.Mutex
	sessions map[string]*dragSession
}

// NewDragController creates a controller for board.
func NewDragController(board *Board) *DragController {
	return &DragController{board: board, sessions: make(map[string]*dragSession)}
}

// OnDragStart captures the pre-drag placement of the task. Nothing changes.
func (c *DragController) OnDragStart(taskID string) error {
	t, ok := c.board.Task(taskID)
	if !ok {
		return taskNotFound(taskID)
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if prev, ok := c.sessions[taskID]; ok && prev.over != nil {
		c.board.discard(*prev.over)
	}
	c.sessions[taskID] = &dragSession{origin: t.Status}
	return nil
}

// OnDragOver previews the task in the hovered bucket. Hovering a different
// bucket changes the status locally; hovering the origin bucket reverts it.
// Targets that no longer resolve are ignored.
func (c *DragController) OnDragOver(taskID string, target DropTarget) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	s, ok := c.sessions[taskID]
	if !ok {
		return fmt.Errorf("drag over %s: no drag in progress", taskID)
	}

	dest, ok := c.resolveStatus(target)
	if !ok {
		return nil
	}
	if s.over != nil {
		if dest == s.overStatus {
			return nil
		}
		c.board.discard(*s.over)
		s.over = nil
	}
	if dest == s.origin {
		return nil
	}
	tok, err := c.board.preview(taskID, dest)
	if err != nil {
		return fmt.Errorf("drag over %s: %w", taskID, err)
	}
	s.over = &tok
	s.overStatus = dest
	return nil
}

func (c *DragController) resolveStatus(target DropTarget) (models.TaskStatus, bool) {
	if s, ok := target.Column(); ok {
		return s, s.Valid()
	}
	if id, ok := target.Task(); ok {
		t, found := c.board.Task(id)
		return t.Status, found
	}
	return "", false
}

// OnDragEnd commits the drop. A nil target cancels the gesture. The order is
// computed against the latest local bucket and persisted with
// UpdateTaskStatus; on failure the task returns to its pre-drag placement and
// a StoreWriteError is returned.
func (c *DragController) OnDragEnd(ctx context.Context, taskID string, target *DropTarget) (models.Task, error) {
	c.mu.Lock()
	s := c.sessions[taskID]
	delete(c.sessions, taskID)
	c.mu.Unlock()

	var over *RollbackToken
	if s != nil {
		over = s.over
	}
	if target == nil {
		if over != nil {
			c.board.discard(*over)
		}
		t, _ := c.board.Task(taskID)
		return t, nil
	}

	var pl placement
	if status, ok := target.Column(); ok {
		pl = placement{status: status, index: -1}
	} else if id, ok := target.Task(); ok {
		pl = placement{overTaskID: id}
	}
	return c.board.place(ctx, taskID, pl, over)
}

// OnDragCancel restores the placement the task had before OnDragOver.
func (c *DragController) OnDragCancel(taskID string) {
	c.mu.Lock()
	s := c.sessions[taskID]
	delete(c.sessions, taskID)
	c.mu.Unlock()
	if s != nil && s.over != nil {
		c.board.discard(*s.over)
	}
}

// Dragging reports whether a gesture for the task is in progress.
func (c *DragController) Dragging(taskID string) bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	_, ok := c.sessions[taskID]
	return ok
}
