package core

import (
	"context"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// TaskStore is the persistence and live-snapshot contract the engine consumes.
// Implementations live in the storage package; core never imports them.
//
// Missing entities must be reported with models.ErrTaskNotFound or
// models.ErrSubtaskNotFound (wrapped is fine).
type TaskStore interface {
	// SubscribeToProjectTasks pushes the full task set of the project to
	// onSnapshot after the handshake and whenever it changes. Feed failures
	// after the handshake go to onError. The returned function unsubscribes.
	SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error)
	CreateTask(ctx context.Context, draft models.TaskDraft) (string, error)
	UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) error
	UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, order float64) error
	DeleteTask(ctx context.Context, taskID string) error
	GetTask(ctx context.Context, taskID string) (*models.Task, error)
	GetNextOrder(ctx context.Context, projectID string, status models.TaskStatus) (float64, error)
	AddComment(ctx context.Context, taskID string, draft models.CommentDraft) (string, error)
	GetTaskComments(ctx context.Context, taskID string) ([]models.Comment, error)
	AddSubtask(ctx context.Context, taskID string, draft models.SubtaskDraft) error
	ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool, actorID string) error
}
