package core

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// DetailService manages the subtasks and comments of tasks. It writes
// straight to the store and mirrors confirmed subtask changes into the board
// when one is attached; it never touches status or order.
type DetailService struct {
	store  TaskStore
	board  *Board
	events EventLogger
	log    logrus.FieldLogger
	newID  func() string
	now    func() time.Time
}

// NewDetailService creates a detail service. board, events and log may be nil.
func NewDetailService(store TaskStore, board *Board, events EventLogger, log logrus.FieldLogger) *DetailService {
	if log == nil {
		log = logging.Discard()
	}
	return &DetailService{
		store:  store,
		board:  board,
		events: events,
		log:    log,
		newID:  uuid.NewString,
		now:    func() time.Time { return time.Now().UTC() },
	}
}

// AddSubtask appends an incomplete subtask with a fresh id.
func (d *DetailService) AddSubtask(ctx context.Context, taskID, title string) (models.Subtask, error) {
	title = strings.TrimSpace(title)
	if title == "" {
		return models.Subtask{}, validationError("title", "subtask title must not be empty")
	}
	if taskID == "" {
		return models.Subtask{}, validationError("taskId", "must not be empty")
	}

	sub := models.Subtask{ID: d.newID(), Title: title}
	if err := d.store.AddSubtask(ctx, taskID, models.SubtaskDraft{ID: sub.ID, Title: sub.Title}); err != nil {
		return models.Subtask{}, d.storeFailed("add subtask", taskID, err)
	}

	if d.board != nil {
		d.board.reflect(taskID, func(t *models.Task) {
			if t.SubtaskIndex(sub.ID) < 0 {
				t.Subtasks = append(t.Subtasks, sub)
			}
		})
	}
	logEvent(d.events, EventSubtaskAdded, map[string]any{"task_id": taskID, "subtask_id": sub.ID})
	d.log.WithFields(logrus.Fields{"task": taskID, "subtask": sub.ID}).Debug("subtask added")
	return sub, nil
}

// ToggleSubtask sets the completed flag of one subtask. actorID is recorded in
// the event log only.
func (d *DetailService) ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool, actorID string) error {
	if taskID == "" {
		return validationError("taskId", "must not be empty")
	}
	if subtaskID == "" {
		return validationError("subtaskId", "must not be empty")
	}
	if d.board != nil {
		if t, ok := d.board.Task(taskID); ok && t.SubtaskIndex(subtaskID) < 0 {
			return subtaskNotFound(subtaskID)
		}
	}

	if err := d.store.ToggleSubtask(ctx, taskID, subtaskID, completed, actorID); err != nil {
		if errors.Is(err, models.ErrSubtaskNotFound) {
			return subtaskNotFound(subtaskID)
		}
		return d.storeFailed("toggle subtask", taskID, err)
	}

	if d.board != nil {
		d.board.reflect(taskID, func(t *models.Task) {
			if i := t.SubtaskIndex(subtaskID); i >= 0 {
				t.Subtasks = slices.Clone(t.Subtasks)
				t.Subtasks[i].Completed = completed
			}
		})
	}
	logEvent(d.events, EventSubtaskToggled, map[string]any{
		"task_id":    taskID,
		"subtask_id": subtaskID,
		"completed":  completed,
		"actor_id":   actorID,
	})
	return nil
}

// AddComment appends a comment to the task. Mentions are de-duplicated.
func (d *DetailService) AddComment(ctx context.Context, taskID string, draft models.CommentDraft) (models.Comment, error) {
	draft.Content = strings.TrimSpace(draft.Content)
	if draft.Content == "" {
		return models.Comment{}, validationError("content", "comment must not be empty")
	}
	if taskID == "" {
		return models.Comment{}, validationError("taskId", "must not be empty")
	}
	draft.Mentions = uniqueStrings(draft.Mentions)

	id, err := d.store.AddComment(ctx, taskID, draft)
	if err != nil {
		return models.Comment{}, d.storeFailed("add comment", taskID, err)
	}
	c := draft.NewComment(id, taskID, d.now())

	logEvent(d.events, EventCommentAdded, map[string]any{
		"task_id":    taskID,
		"comment_id": id,
		"user_id":    draft.UserID,
		"mentions":   len(draft.Mentions),
	})
	return c, nil
}

// Comments returns the task's comments, oldest first.
func (d *DetailService) Comments(ctx context.Context, taskID string) ([]models.Comment, error) {
	comments, err := d.store.GetTaskComments(ctx, taskID)
	if err != nil {
		if IsNotFound(err) {
			return nil, taskNotFound(taskID)
		}
		return nil, fmt.Errorf("listing comments for %s: %w", taskID, err)
	}
	slices.SortStableFunc(comments, func(a, b models.Comment) int {
		return a.CreatedAt.Compare(b.CreatedAt)
	})
	return comments, nil
}

// storeFailed converts store errors. A missing task is dropped from the board.
func (d *DetailService) storeFailed(op, taskID string, err error) error {
	if IsNotFound(err) {
		if d.board != nil {
			d.board.forget(taskID)
		}
		return taskNotFound(taskID)
	}
	d.log.WithError(err).WithField("task", taskID).Warn(op + " failed")
	return &StoreWriteError{Op: op, TaskID: taskID, Err: err}
}

// uniqueSet is uniqueStrings for patch fields: nil stays nil (unchanged) and
// a non-nil input yields a non-nil result (clear).
func uniqueSet(in []string) []string {
	if in == nil {
		return nil
	}
	out := uniqueStrings(in)
	if out == nil {
		out = []string{}
	}
	return out
}

func uniqueStrings(in []string) []string {
	var out []string
	for _, s := range in {
		if s = strings.TrimSpace(s); s != "" && !slices.Contains(out, s) {
			out = append(out, s)
		}
	}
	return out
}
