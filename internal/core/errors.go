package core

import (
	"errors"
	"fmt"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// ValidationError reports an empty or malformed required field. It is raised
// before any store call.
type ValidationError struct {
	Field   string
	Message string
}

func (e *ValidationError) Error() string {
	return fmt.Sprintf("invalid %s: %s", e.Field, e.Message)
}

// NotFoundError reports a task or subtask that no longer exists.
type NotFoundError struct {
	Kind string // "task" or "subtask"
	ID   string
}

func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %s not found", e.Kind, e.ID)
}

// Is lets errors.Is match the store sentinels.
func (e *NotFoundError) Is(target error) bool {
	switch target {
	case models.ErrTaskNotFound:
		return e.Kind == "task"
	case models.ErrSubtaskNotFound:
		return e.Kind == "subtask"
	}
	return false
}

// StoreWriteError wraps a failed create, update or delete. The optimistic
// mutation that caused the write has already been rolled back when the caller
// receives it.
type StoreWriteError struct {
	Op     string
	TaskID string
	Err    error
}

func (e *StoreWriteError) Error() string {
	if e.TaskID == "" {
		return fmt.Sprintf("store %s: %v", e.Op, e.Err)
	}
	return fmt.Sprintf("store %s %s: %v", e.Op, e.TaskID, e.Err)
}

func (e *StoreWriteError) Unwrap() error { return e.Err }

// SubscriptionError reports a failure of the live snapshot feed. The board
// keeps showing its last good state.
type SubscriptionError struct {
	ProjectID string
	Err       error
}

func (e *SubscriptionError) Error() string {
	return fmt.Sprintf("subscription for project %s: %v", e.ProjectID, e.Err)
}

func (e *SubscriptionError) Unwrap() error { return e.Err }

func validationError(field, msg string) error {
	return &ValidationError{Field: field, Message: msg}
}

func taskNotFound(id string) error {
	return &NotFoundError{Kind: "task", ID: id}
}

func subtaskNotFound(id string) error {
	return &NotFoundError{Kind: "subtask", ID: id}
}

// IsNotFound reports whether err denotes a missing task or subtask, whether it
// came from the engine or straight from a store.
func IsNotFound(err error) bool {
	var nf *NotFoundError
	return errors.As(err, &nf) ||
		errors.Is(err, models.ErrTaskNotFound) ||
		errors.Is(err, models.ErrSubtaskNotFound)
}

// IsValidation reports whether err is a ValidationError.
func IsValidation(err error) bool {
	var ve *ValidationError
	return errors.As(err, &ve)
}
