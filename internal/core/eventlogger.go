package core

// EventLogger is the subset of the observability event log that board
// components need. Defining it here avoids importing the observability package.
type EventLogger interface {
	LogEvent(eventType string, data map[string]any) error
}

// Event types written by the board engine.
const (
	EventTaskCreated       = "task.created"
	EventTaskUpdated       = "task.updated"
	EventTaskMoved         = "task.moved"
	EventTaskCompleted     = "task.completed"
	EventTaskDeleted       = "task.deleted"
	EventTaskRollback      = "task.rollback"
	EventTaskRenumbered    = "bucket.renumbered"
	EventSubtaskAdded      = "subtask.added"
	EventSubtaskToggled    = "subtask.toggled"
	EventCommentAdded      = "comment.added"
	EventSubscriptionError = "board.subscription_error"
)

// logEvent writes to l when it is set. Event log failures never affect board
// operations.
func logEvent(l EventLogger, eventType string, data map[string]any) {
	if l == nil {
		return
	}
	_ = l.LogEvent(eventType, data)
}
