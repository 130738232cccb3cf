package observability

import (
	"fmt"
	"time"
)

// Metrics summarises board activity over a time window.
type Metrics struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksMoved         int            `json:"tasks_moved"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksDeleted       int            `json:"tasks_deleted"`
	Rollbacks          int            `json:"rollbacks"`
	CommentsAdded      int            `json:"comments_added"`
	SubtasksCompleted  int            `json:"subtasks_completed"`
	SubscriptionErrors int            `json:"subscription_errors"`
	MovesByDestination map[string]int `json:"moves_by_destination"`
	TasksByType        map[string]int `json:"tasks_by_type"`
	EventCount         int            `json:"event_count"`
	OldestEvent        *time.Time     `json:"oldest_event,omitempty"`
	NewestEvent        *time.Time     `json:"newest_event,omitempty"`
}

// RollbackRate is the share of moves that were reverted.
func (m *Metrics) RollbackRate() float64 {
	if m.TasksMoved+m.Rollbacks == 0 {
		return 0
	}
	return float64(m.Rollbacks) / float64(m.TasksMoved+m.Rollbacks)
}

// MetricsCalculator derives metrics from the event log.
type MetricsCalculator interface {
	Calculate(since time.Time, projectID string) (*Metrics, error)
}

type metricsCalculator struct {
	eventLog EventLog
}

// NewMetricsCalculator returns a calculator reading from eventLog.
func NewMetricsCalculator(eventLog EventLog) MetricsCalculator {
	return &metricsCalculator{eventLog: eventLog}
}

// Calculate aggregates the events since the given time. An empty projectID
// covers every project.
func (mc *metricsCalculator) Calculate(since time.Time, projectID string) (*Metrics, error) {
	events, err := mc.eventLog.Read(EventFilter{Since: &since, ProjectID: projectID})
	if err != nil {
		return nil, fmt.Errorf("reading events for metrics: %w", err)
	}

	m := &Metrics{
		MovesByDestination: make(map[string]int),
		TasksByType:        make(map[string]int),
		EventCount:         len(events),
	}
	for i, event := range events {
		if i == 0 {
			t := event.Time
			m.OldestEvent = &t
		}
		t := event.Time
		m.NewestEvent = &t

		switch event.Type {
		case "task.created":
			m.TasksCreated++
			if taskType, ok := event.Data["type"].(string); ok {
				m.TasksByType[taskType]++
			}
		case "task.moved":
			m.TasksMoved++
			if to, ok := event.Data["to_status"].(string); ok {
				m.MovesByDestination[to]++
			}
		case "task.completed":
			m.TasksCompleted++
		case "task.deleted":
			m.TasksDeleted++
		case "task.rollback":
			m.Rollbacks++
		case "comment.added":
			m.CommentsAdded++
		case "subtask.toggled":
			if done, _ := event.Data["completed"].(bool); done {
				m.SubtasksCompleted++
			}
		case "board.subscription_error":
			m.SubscriptionErrors++
		}
	}
	return m, nil
}
