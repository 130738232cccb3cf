package observability

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// AlertSeverity represents the urgency of an alert.
type AlertSeverity string

const (
	SeverityHigh   AlertSeverity = "high"
	SeverityMedium AlertSeverity = "medium"
	SeverityLow    AlertSeverity = "low"
)

// Alert conditions.
const (
	ConditionBlocked = "task_blocked_too_long"
	ConditionStale   = "task_stale"
	ConditionReview  = "review_too_long"
	ConditionBacklog = "backlog_too_large"
)

// Alert represents a triggered alert condition.
type Alert struct {
	ID          string        `json:"id"`
	Condition   string        `json:"condition"`
	Severity    AlertSeverity `json:"severity"`
	ProjectID   string        `json:"project_id"`
	TaskID      string        `json:"task_id,omitempty"`
	Message     string        `json:"message"`
	TriggeredAt time.Time     `json:"triggered_at"`
}

// AlertThresholds configures when alerts should fire.
type AlertThresholds struct {
	BlockedHours int `json:"blocked_hours"`
	StaleDays    int `json:"stale_days"`
	ReviewDays   int `json:"review_days"`
	MaxTodo      int `json:"max_todo"`
}

// DefaultAlertThresholds returns sensible defaults for alert thresholds.
func DefaultAlertThresholds() AlertThresholds {
	return AlertThresholds{
		BlockedHours: 24,
		StaleDays:    3,
		ReviewDays:   5,
		MaxTodo:      25,
	}
}

// ThresholdsFromConfig overlays the positive values of cfg on the defaults.
func ThresholdsFromConfig(cfg models.AlertConfig) AlertThresholds {
	th := DefaultAlertThresholds()
	if cfg.BlockedHours > 0 {
		th.BlockedHours = cfg.BlockedHours
	}
	if cfg.StaleDays > 0 {
		th.StaleDays = cfg.StaleDays
	}
	if cfg.ReviewDays > 0 {
		th.ReviewDays = cfg.ReviewDays
	}
	if cfg.MaxTodo > 0 {
		th.MaxTodo = cfg.MaxTodo
	}
	return th
}

// AlertEngine evaluates alert conditions against the event log.
type AlertEngine interface {
	// Evaluate returns the active alerts of projectID, or of every project
	// when projectID is empty, highest severity first.
	Evaluate(projectID string) ([]Alert, error)
}

type alertEngine struct {
	eventLog   EventLog
	thresholds AlertThresholds
	now        func() time.Time
}

// NewAlertEngine creates a new AlertEngine with the given EventLog and thresholds.
func NewAlertEngine(eventLog EventLog, thresholds AlertThresholds) AlertEngine {
	return &alertEngine{
		eventLog:   eventLog,
		thresholds: thresholds,
		now:        func() time.Time { return time.Now().UTC() },
	}
}

// taskState is a task's placement as replayed from the event log.
type taskState struct {
	projectID    string
	status       string
	enteredAt    time.Time
	lastActivity time.Time
}

// Evaluate replays the event log into per-task placements and checks every
// condition against them.
func (ae *alertEngine) Evaluate(projectID string) ([]Alert, error) {
	// Subtask and comment events carry no project, so the log is read whole
	// and tasks are filtered after the replay.
	events, err := ae.eventLog.Read(EventFilter{})
	if err != nil {
		return nil, fmt.Errorf("reading events for alerts: %w", err)
	}
	tasks := replayTasks(events)

	now := ae.now()
	var alerts []Alert
	todo := make(map[string]int)
	for id, st := range tasks {
		if projectID != "" && st.projectID != projectID {
			continue
		}
		switch st.status {
		case string(models.StatusBlocked):
			alerts = ae.checkBlocked(alerts, id, st, now)
		case string(models.StatusInProgress):
			alerts = ae.checkStale(alerts, id, st, now)
		case string(models.StatusReview):
			alerts = ae.checkReview(alerts, id, st, now)
		case string(models.StatusTodo):
			todo[st.projectID]++
		}
	}
	alerts = ae.checkBacklog(alerts, todo, now)

	slices.SortFunc(alerts, func(a, b Alert) int {
		if c := cmp.Compare(severityRank(a.Severity), severityRank(b.Severity)); c != 0 {
			return c
		}
		return cmp.Compare(a.ID, b.ID)
	})
	return alerts, nil
}

func replayTasks(events []Event) map[string]*taskState {
	tasks := make(map[string]*taskState)
	for _, event := range events {
		taskID, _ := event.Data["task_id"].(string)
		if taskID == "" {
			continue
		}
		st := tasks[taskID]
		switch event.Type {
		case "task.created":
			status, _ := event.Data["status"].(string)
			if status == "" {
				status = string(models.StatusTodo)
			}
			st = &taskState{status: status, enteredAt: event.Time}
			tasks[taskID] = st
		case "task.moved":
			to, _ := event.Data["to_status"].(string)
			if st == nil {
				st = &taskState{}
				tasks[taskID] = st
			}
			if to != "" && to != st.status {
				st.status = to
				st.enteredAt = event.Time
			}
		case "task.deleted":
			delete(tasks, taskID)
			continue
		case "task.rollback":
			continue
		}
		if st == nil {
			continue
		}
		if p, _ := event.Data["project_id"].(string); p != "" {
			st.projectID = p
		}
		if event.Time.After(st.lastActivity) {
			st.lastActivity = event.Time
		}
	}
	return tasks
}

func (ae *alertEngine) checkBlocked(alerts []Alert, id string, st *taskState, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.BlockedHours) * time.Hour
	if now.Sub(st.enteredAt) <= threshold {
		return alerts
	}
	return append(alerts, Alert{
		ID:          "blocked-" + id,
		Condition:   ConditionBlocked,
		Severity:    SeverityHigh,
		ProjectID:   st.projectID,
		TaskID:      id,
		Message:     fmt.Sprintf("task %s has been blocked for more than %d hours", id, ae.thresholds.BlockedHours),
		TriggeredAt: now,
	})
}

func (ae *alertEngine) checkStale(alerts []Alert, id string, st *taskState, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.StaleDays) * 24 * time.Hour
	if now.Sub(st.lastActivity) <= threshold {
		return alerts
	}
	return append(alerts, Alert{
		ID:          "stale-" + id,
		Condition:   ConditionStale,
		Severity:    SeverityMedium,
		ProjectID:   st.projectID,
		TaskID:      id,
		Message:     fmt.Sprintf("task %s has had no activity for more than %d days", id, ae.thresholds.StaleDays),
		TriggeredAt: now,
	})
}

func (ae *alertEngine) checkReview(alerts []Alert, id string, st *taskState, now time.Time) []Alert {
	threshold := time.Duration(ae.thresholds.ReviewDays) * 24 * time.Hour
	if now.Sub(st.enteredAt) <= threshold {
		return alerts
	}
	return append(alerts, Alert{
		ID:          "review-" + id,
		Condition:   ConditionReview,
		Severity:    SeverityMedium,
		ProjectID:   st.projectID,
		TaskID:      id,
		Message:     fmt.Sprintf("task %s has been in review for more than %d days", id, ae.thresholds.ReviewDays),
		TriggeredAt: now,
	})
}

func (ae *alertEngine) checkBacklog(alerts []Alert, todo map[string]int, now time.Time) []Alert {
	for project, n := range todo {
		if n <= ae.thresholds.MaxTodo {
			continue
		}
		alerts = append(alerts, Alert{
			ID:          "backlog-" + project,
			Condition:   ConditionBacklog,
			Severity:    SeverityLow,
			ProjectID:   project,
			Message:     fmt.Sprintf("project %s has %d tasks in todo, exceeding the maximum of %d", project, n, ae.thresholds.MaxTodo),
			TriggeredAt: now,
		})
	}
	return alerts
}

func severityRank(s AlertSeverity) int {
	switch s {
	case SeverityHigh:
		return 0
	case SeverityMedium:
		return 1
	}
	return 2
}
