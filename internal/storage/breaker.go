package storage

import (
	"context"
	"errors"
	"fmt"

	"github.com/sirupsen/logrus"
	"github.com/sony/gobreaker"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// BreakerStore guards another TaskStore with a circuit breaker. Not-found
// answers are normal results and never trip it; while it is open every call
// fails fast with gobreaker.ErrOpenState.
type BreakerStore struct {
	next core.TaskStore
	cb   *gobreaker.CircuitBreaker
}

var _ core.TaskStore = (*BreakerStore)(nil)

// NewBreakerStore wraps next with a breaker configured from cfg.
func NewBreakerStore(next core.TaskStore, cfg models.BreakerConfig, log logrus.FieldLogger) *BreakerStore {
	if log == nil {
		log = logrus.StandardLogger()
	}
	threshold := cfg.ConsecutiveFailures
	return &BreakerStore{
		next: next,
		cb: gobreaker.NewCircuitBreaker(gobreaker.Settings{
			Name:        "task-store",
			MaxRequests: cfg.MaxRequests,
			Timeout:     cfg.Timeout,
			ReadyToTrip: func(counts gobreaker.Counts) bool {
				return counts.ConsecutiveFailures >= threshold
			},
			OnStateChange: func(name string, from, to gobreaker.State) {
				log.WithFields(logrus.Fields{
					"breaker": name,
					"from":    from.String(),
					"to":      to.String(),
				}).Warn("circuit breaker state changed")
			},
			IsSuccessful: func(err error) bool {
				return err == nil ||
					errors.Is(err, models.ErrTaskNotFound) ||
					errors.Is(err, models.ErrSubtaskNotFound) ||
					errors.Is(err, context.Canceled)
			},
		}),
	}
}

// State reports the breaker's current state.
func (s *BreakerStore) State() gobreaker.State {
	return s.cb.State()
}

// Unwrap returns the guarded store.
func (s *BreakerStore) Unwrap() core.TaskStore {
	return s.next
}

func (s *BreakerStore) run(fn func() error) error {
	_, err := s.cb.Execute(func() (any, error) {
		return nil, fn()
	})
	if errors.Is(err, gobreaker.ErrOpenState) || errors.Is(err, gobreaker.ErrTooManyRequests) {
		return fmt.Errorf("task store unavailable: %w", err)
	}
	return err
}

func (s *BreakerStore) SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	var cancel func()
	err := s.run(func() error {
		var err error
		cancel, err = s.next.SubscribeToProjectTasks(ctx, projectID, onSnapshot, onError)
		return err
	})
	return cancel, err
}

func (s *BreakerStore) CreateTask(ctx context.Context, draft models.TaskDraft) (string, error) {
	var id string
	err := s.run(func() error {
		var err error
		id, err = s.next.CreateTask(ctx, draft)
		return err
	})
	return id, err
}

func (s *BreakerStore) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) error {
	return s.run(func() error { return s.next.UpdateTask(ctx, taskID, patch) })
}

func (s *BreakerStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, order float64) error {
	return s.run(func() error { return s.next.UpdateTaskStatus(ctx, taskID, status, order) })
}

func (s *BreakerStore) DeleteTask(ctx context.Context, taskID string) error {
	return s.run(func() error { return s.next.DeleteTask(ctx, taskID) })
}

func (s *BreakerStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t *models.Task
	err := s.run(func() error {
		var err error
		t, err = s.next.GetTask(ctx, taskID)
		return err
	})
	return t, err
}

func (s *BreakerStore) GetNextOrder(ctx context.Context, projectID string, status models.TaskStatus) (float64, error) {
	var order float64
	err := s.run(func() error {
		var err error
		order, err = s.next.GetNextOrder(ctx, projectID, status)
		return err
	})
	return order, err
}

func (s *BreakerStore) AddComment(ctx context.Context, taskID string, draft models.CommentDraft) (string, error) {
	var id string
	err := s.run(func() error {
		var err error
		id, err = s.next.AddComment(ctx, taskID, draft)
		return err
	})
	return id, err
}

func (s *BreakerStore) GetTaskComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.run(func() error {
		var err error
		comments, err = s.next.GetTaskComments(ctx, taskID)
		return err
	})
	return comments, err
}

func (s *BreakerStore) AddSubtask(ctx context.Context, taskID string, draft models.SubtaskDraft) error {
	return s.run(func() error { return s.next.AddSubtask(ctx, taskID, draft) })
}

func (s *BreakerStore) ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool, actorID string) error {
	return s.run(func() error { return s.next.ToggleSubtask(ctx, taskID, subtaskID, completed, actorID) })
}
