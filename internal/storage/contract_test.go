package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// snapshotRecorder collects snapshots pushed by a subscription.
type snapshotRecorder struct {
	mu    sync.Mutex
	snaps [][]models.Task
	errs  []error
	ch    chan struct{}
}

func newSnapshotRecorder() *snapshotRecorder {
	return &snapshotRecorder{ch: make(chan struct{}, 64)}
}

func (r *snapshotRecorder) onSnapshot(tasks []models.Task) {
	r.mu.Lock()
	r.snaps = append(r.snaps, tasks)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *snapshotRecorder) onError(err error) {
	r.mu.Lock()
	r.errs = append(r.errs, err)
	r.mu.Unlock()
	select {
	case r.ch <- struct{}{}:
	default:
	}
}

func (r *snapshotRecorder) last() []models.Task {
	r.mu.Lock()
	defer r.mu.Unlock()
	if len(r.snaps) == 0 {
		return nil
	}
	return r.snaps[len(r.snaps)-1]
}

func (r *snapshotRecorder) count() int {
	r.mu.Lock()
	defer r.mu.Unlock()
	return len(r.snaps)
}

// waitFor blocks until cond holds on the latest snapshot or the timeout hits.
func (r *snapshotRecorder) waitFor(t *testing.T, cond func([]models.Task) bool) []models.Task {
	t.Helper()
	deadline := time.After(3 * time.Second)
	for {
		if last := r.last(); cond(last) {
			return last
		}
		select {
		case <-r.ch:
		case <-deadline:
			t.Fatalf("timed out waiting for snapshot, last = %+v", r.last())
			return nil
		}
	}
}

func draft(project, title string, status models.TaskStatus, order float64) models.TaskDraft {
	return models.TaskDraft{
		ProjectID: project,
		Title:     title,
		Status:    status,
		Order:     order,
		Priority:  models.PriorityMedium,
		Type:      models.TaskTypeTask,
	}
}

// runStoreContract exercises the TaskStore contract the board relies on.
func runStoreContract(t *testing.T, newStore func(t *testing.T) core.TaskStore) {
	ctx := context.Background()

	t.Run("create and get", func(t *testing.T) {
		s := newStore(t)
		id, err := s.CreateTask(ctx, draft("p1", "Write docs", models.StatusTodo, 1))
		if err != nil {
			t.Fatalf("CreateTask: %v", err)
		}
		got, err := s.GetTask(ctx, id)
		if err != nil {
			t.Fatalf("GetTask: %v", err)
		}
		if got.ID != id || got.Title != "Write docs" || got.ProjectID != "p1" {
			t.Errorf("unexpected task %+v", got)
		}
		if got.CreatedAt.IsZero() || !got.CreatedAt.Equal(got.UpdatedAt) {
			t.Errorf("timestamps not stamped: %v / %v", got.CreatedAt, got.UpdatedAt)
		}
	})

	t.Run("missing task", func(t *testing.T) {
		s := newStore(t)
		if _, err := s.GetTask(ctx, "ghost"); !errors.Is(err, models.ErrTaskNotFound) {
			t.Errorf("GetTask error = %v", err)
		}
		if err := s.UpdateTaskStatus(ctx, "ghost", models.StatusDone, 1); !errors.Is(err, models.ErrTaskNotFound) {
			t.Errorf("UpdateTaskStatus error = %v", err)
		}
		if err := s.DeleteTask(ctx, "ghost"); !errors.Is(err, models.ErrTaskNotFound) {
			t.Errorf("DeleteTask error = %v", err)
		}
		if _, err := s.AddComment(ctx, "ghost", models.CommentDraft{UserID: "u", Content: "x"}); !errors.Is(err, models.ErrTaskNotFound) {
			t.Errorf("AddComment error = %v", err)
		}
	})

	t.Run("update bumps updatedAt", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateTask(ctx, draft("p1", "a", models.StatusTodo, 1))
		before, _ := s.GetTask(ctx, id)
		time.Sleep(2 * time.Millisecond)

		title := "renamed"
		if err := s.UpdateTask(ctx, id, models.TaskPatch{Title: &title}); err != nil {
			t.Fatalf("UpdateTask: %v", err)
		}
		after, _ := s.GetTask(ctx, id)
		if after.Title != "renamed" || !after.UpdatedAt.After(before.UpdatedAt) {
			t.Errorf("after update: %+v", after)
		}
	})

	t.Run("next order", func(t *testing.T) {
		s := newStore(t)
		if got, _ := s.GetNextOrder(ctx, "p1", models.StatusTodo); got != 1 {
			t.Errorf("empty bucket next order = %v, want 1", got)
		}
		_, _ = s.CreateTask(ctx, draft("p1", "a", models.StatusTodo, 4))
		_, _ = s.CreateTask(ctx, draft("p1", "b", models.StatusTodo, 2.5))
		_, _ = s.CreateTask(ctx, draft("p2", "c", models.StatusTodo, 40))
		if got, _ := s.GetNextOrder(ctx, "p1", models.StatusTodo); got != 5 {
			t.Errorf("next order = %v, want 5", got)
		}
	})

	t.Run("subtasks leave updatedAt alone", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateTask(ctx, draft("p1", "a", models.StatusTodo, 1))
		before, _ := s.GetTask(ctx, id)

		if err := s.AddSubtask(ctx, id, models.SubtaskDraft{ID: "s1", Title: "Write tests"}); err != nil {
			t.Fatalf("AddSubtask: %v", err)
		}
		if err := s.ToggleSubtask(ctx, id, "s1", true, "u1"); err != nil {
			t.Fatalf("ToggleSubtask: %v", err)
		}
		if err := s.ToggleSubtask(ctx, id, "nope", true, "u1"); !errors.Is(err, models.ErrSubtaskNotFound) {
			t.Errorf("unknown subtask error = %v", err)
		}
		after, _ := s.GetTask(ctx, id)
		if done, total := after.SubtaskProgress(); done != 1 || total != 1 {
			t.Errorf("progress = %d/%d", done, total)
		}
		if !after.UpdatedAt.Equal(before.UpdatedAt) {
			t.Error("subtask writes must not touch updatedAt")
		}
	})

	t.Run("comments", func(t *testing.T) {
		s := newStore(t)
		id, _ := s.CreateTask(ctx, draft("p1", "a", models.StatusTodo, 1))
		if _, err := s.AddComment(ctx, id, models.CommentDraft{UserID: "u1", Content: "first"}); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
		time.Sleep(time.Millisecond)
		if _, err := s.AddComment(ctx, id, models.CommentDraft{UserID: "u2", Content: "second"}); err != nil {
			t.Fatalf("AddComment: %v", err)
		}
		comments, err := s.GetTaskComments(ctx, id)
		if err != nil {
			t.Fatalf("GetTaskComments: %v", err)
		}
		if len(comments) != 2 || comments[0].Content != "first" || comments[1].Content != "second" {
			t.Errorf("comments = %+v", comments)
		}

		if err := s.DeleteTask(ctx, id); err != nil {
			t.Fatalf("DeleteTask: %v", err)
		}
		if _, err := s.GetTaskComments(ctx, id); !errors.Is(err, models.ErrTaskNotFound) {
			t.Errorf("comments of deleted task error = %v", err)
		}
	})

	t.Run("subscription", func(t *testing.T) {
		s := newStore(t)
		_, _ = s.CreateTask(ctx, draft("p1", "existing", models.StatusTodo, 1))
		_, _ = s.CreateTask(ctx, draft("other", "elsewhere", models.StatusTodo, 1))

		rec := newSnapshotRecorder()
		cancel, err := s.SubscribeToProjectTasks(ctx, "p1", rec.onSnapshot, rec.onError)
		if err != nil {
			t.Fatalf("SubscribeToProjectTasks: %v", err)
		}
		defer cancel()

		first := rec.waitFor(t, func(ts []models.Task) bool { return len(ts) == 1 })
		if first[0].Title != "existing" {
			t.Errorf("first snapshot = %+v", first)
		}

		id, _ := s.CreateTask(ctx, draft("p1", "added", models.StatusTodo, 2))
		rec.waitFor(t, func(ts []models.Task) bool { return len(ts) == 2 })

		if err := s.UpdateTaskStatus(ctx, id, models.StatusDone, 1); err != nil {
			t.Fatalf("UpdateTaskStatus: %v", err)
		}
		last := rec.waitFor(t, func(ts []models.Task) bool {
			for _, task := range ts {
				if task.ID == id && task.Status == models.StatusDone {
					return true
				}
			}
			return false
		})
		for _, task := range last {
			if task.ProjectID != "p1" {
				t.Errorf("snapshot leaked task of project %s", task.ProjectID)
			}
		}

		cancel()
		n := rec.count()
		_, _ = s.CreateTask(ctx, draft("p1", "after cancel", models.StatusTodo, 3))
		time.Sleep(250 * time.Millisecond)
		if rec.count() != n {
			t.Error("snapshots delivered after unsubscribe")
		}
	})
}

func TestMemoryStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) core.TaskStore {
		return NewMemoryStore()
	})
}

func TestFileStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) core.TaskStore {
		s := NewFileStore(t.TempDir()+"/board.yaml", nil)
		t.Cleanup(func() { _ = s.Close() })
		return s
	})
}

func TestBreakerStore_Contract(t *testing.T) {
	runStoreContract(t, func(t *testing.T) core.TaskStore {
		return NewBreakerStore(NewMemoryStore(), models.BreakerConfig{
			Enabled: true, MaxRequests: 1, Timeout: time.Second, ConsecutiveFailures: 3,
		}, nil)
	})
}
