package models

import (
	"slices"
	"time"
)

// TaskType represents the kind of work a task involves.
type TaskType string

const (
	TaskTypeTask          TaskType = "task"
	TaskTypeFeature       TaskType = "feature"
	TaskTypeBug           TaskType = "bug"
	TaskTypeImprovement   TaskType = "improvement"
	TaskTypeDocumentation TaskType = "documentation"
)

// TaskStatus represents the bucket (board column) a task belongs to.
type TaskStatus string

const (
	StatusTodo       TaskStatus = "todo"
	StatusInProgress TaskStatus = "in_progress"
	StatusReview     TaskStatus = "review"
	StatusDone       TaskStatus = "done"
	StatusBlocked    TaskStatus = "blocked"
)

// Statuses lists every bucket in board display order.
var Statuses = []TaskStatus{
	StatusTodo,
	StatusInProgress,
	StatusReview,
	StatusDone,
	StatusBlocked,
}

// Valid reports whether s is one of the five board statuses.
func (s TaskStatus) Valid() bool {
	return slices.Contains(Statuses, s)
}

// Column returns the display index of the status, or len(Statuses) when unknown.
func (s TaskStatus) Column() int {
	if i := slices.Index(Statuses, s); i >= 0 {
		return i
	}
	return len(Statuses)
}

// Priority represents the urgency level of a task.
type Priority string

const (
	PriorityLow    Priority = "low"
	PriorityMedium Priority = "medium"
	PriorityHigh   Priority = "high"
	PriorityUrgent Priority = "urgent"
)

// Priorities lists every priority from least to most urgent.
var Priorities = []Priority{PriorityLow, PriorityMedium, PriorityHigh, PriorityUrgent}

// Valid reports whether p is a known priority.
func (p Priority) Valid() bool {
	return slices.Contains(Priorities, p)
}

// TaskTypes lists every task type.
var TaskTypes = []TaskType{
	TaskTypeTask,
	TaskTypeFeature,
	TaskTypeBug,
	TaskTypeImprovement,
	TaskTypeDocumentation,
}

// Valid reports whether t is a known task type.
func (t TaskType) Valid() bool {
	return slices.Contains(TaskTypes, t)
}

// Subtask is a checklist item owned by a task.
type Subtask struct {
	ID        string `json:"id" yaml:"id" bson:"id"`
	Title     string `json:"title" yaml:"title" bson:"title"`
	Completed bool   `json:"completed" yaml:"completed" bson:"completed"`
}

// Task is a work item placed in exactly one bucket of a project board.
type Task struct {
	ID             string     `json:"id" yaml:"id" bson:"_id"`
	ProjectID      string     `json:"projectId" yaml:"project_id" bson:"projectId"`
	Title          string     `json:"title" yaml:"title" bson:"title"`
	Description    string     `json:"description" yaml:"description" bson:"description"`
	Status         TaskStatus `json:"status" yaml:"status" bson:"status"`
	Order          float64    `json:"order" yaml:"order" bson:"order"`
	Priority       Priority   `json:"priority" yaml:"priority" bson:"priority"`
	Type           TaskType   `json:"type" yaml:"type" bson:"type"`
	AssigneeID     string     `json:"assigneeId,omitempty" yaml:"assignee_id,omitempty" bson:"assigneeId,omitempty"`
	AssigneeName   string     `json:"assigneeName,omitempty" yaml:"assignee_name,omitempty" bson:"assigneeName,omitempty"`
	AssigneeAvatar string     `json:"assigneeAvatar,omitempty" yaml:"assignee_avatar,omitempty" bson:"assigneeAvatar,omitempty"`
	ReporterID     string     `json:"reporterId" yaml:"reporter_id" bson:"reporterId"`
	ReporterName   string     `json:"reporterName" yaml:"reporter_name" bson:"reporterName"`
	DueDate        *time.Time `json:"dueDate,omitempty" yaml:"due_date,omitempty" bson:"dueDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty" yaml:"estimated_hours,omitempty" bson:"estimatedHours,omitempty"`
	Tags           []string   `json:"tags" yaml:"tags" bson:"tags"`
	Subtasks       []Subtask  `json:"subtasks" yaml:"subtasks" bson:"subtasks"`
	Watchers       []string   `json:"watchers" yaml:"watchers" bson:"watchers"`
	CreatedAt      time.Time  `json:"createdAt" yaml:"created_at" bson:"createdAt"`
	UpdatedAt      time.Time  `json:"updatedAt" yaml:"updated_at" bson:"updatedAt"`
}

// Clone returns a deep copy of the task so callers never share slices or
// pointers with the board's internal state.
func (t Task) Clone() Task {
	c := t
	c.Tags = slices.Clone(t.Tags)
	c.Subtasks = slices.Clone(t.Subtasks)
	c.Watchers = slices.Clone(t.Watchers)
	if t.DueDate != nil {
		d := *t.DueDate
		c.DueDate = &d
	}
	if t.EstimatedHours != nil {
		h := *t.EstimatedHours
		c.EstimatedHours = &h
	}
	return c
}

// SubtaskProgress returns the number of completed subtasks and the total.
func (t Task) SubtaskProgress() (completed, total int) {
	for _, s := range t.Subtasks {
		if s.Completed {
			completed++
		}
	}
	return completed, len(t.Subtasks)
}

// SubtaskIndex returns the position of the subtask with the given ID, or -1.
func (t Task) SubtaskIndex(subtaskID string) int {
	return slices.IndexFunc(t.Subtasks, func(s Subtask) bool { return s.ID == subtaskID })
}

// IsAssigned reports whether the task has an assignee.
func (t Task) IsAssigned() bool {
	return t.AssigneeID != ""
}

// TaskDraft carries the caller-supplied fields of a new task. The store assigns
// the ID and timestamps.
type TaskDraft struct {
	ProjectID      string     `json:"projectId"`
	Title          string     `json:"title"`
	Description    string     `json:"description"`
	Status         TaskStatus `json:"status"`
	Order          float64    `json:"order"`
	Priority       Priority   `json:"priority"`
	Type           TaskType   `json:"type"`
	Assignee       *Assignee  `json:"assignee,omitempty"`
	ReporterID     string     `json:"reporterId"`
	ReporterName   string     `json:"reporterName"`
	DueDate        *time.Time `json:"dueDate,omitempty"`
	EstimatedHours *float64   `json:"estimatedHours,omitempty"`
	Tags           []string   `json:"tags,omitempty"`
	Subtasks       []Subtask  `json:"subtasks,omitempty"`
	Watchers       []string   `json:"watchers,omitempty"`
}

// NewTask builds a Task from the draft with the given identity and timestamps.
func (d TaskDraft) NewTask(id string, now time.Time) Task {
	t := Task{
		ID:             id,
		ProjectID:      d.ProjectID,
		Title:          d.Title,
		Description:    d.Description,
		Status:         d.Status,
		Order:          d.Order,
		Priority:       d.Priority,
		Type:           d.Type,
		ReporterID:     d.ReporterID,
		ReporterName:   d.ReporterName,
		DueDate:        d.DueDate,
		EstimatedHours: d.EstimatedHours,
		Tags:           slices.Clone(d.Tags),
		Subtasks:       slices.Clone(d.Subtasks),
		Watchers:       slices.Clone(d.Watchers),
		CreatedAt:      now,
		UpdatedAt:      now,
	}
	if d.Assignee != nil {
		t.AssigneeID = d.Assignee.ID
		t.AssigneeName = d.Assignee.Name
		t.AssigneeAvatar = d.Assignee.Avatar
	}
	return t.Clone()
}

// Assignee carries the denormalized display fields written by the assignment
// operation.
type Assignee struct {
	ID     string `json:"id"`
	Name   string `json:"name"`
	Avatar string `json:"avatar,omitempty"`
}

// TaskPatch is a partial update. Nil fields are left untouched.
type TaskPatch struct {
	Title          *string     `json:"title,omitempty"`
	Description    *string     `json:"description,omitempty"`
	Status         *TaskStatus `json:"status,omitempty"`
	Order          *float64    `json:"order,omitempty"`
	Priority       *Priority   `json:"priority,omitempty"`
	Type           *TaskType   `json:"type,omitempty"`
	AssigneeID     *string     `json:"assigneeId,omitempty"`
	AssigneeName   *string     `json:"assigneeName,omitempty"`
	AssigneeAvatar *string     `json:"assigneeAvatar,omitempty"`
	DueDate        *time.Time  `json:"dueDate,omitempty"`
	ClearDueDate   bool        `json:"clearDueDate,omitempty"`
	EstimatedHours *float64    `json:"estimatedHours,omitempty"`
	Tags           []string    `json:"tags,omitempty"`
	Subtasks       []Subtask   `json:"subtasks,omitempty"`
	Watchers       []string    `json:"watchers,omitempty"`
	UpdatedAt      *time.Time  `json:"updatedAt,omitempty"`
}

// Apply merges the patch into t.
func (p TaskPatch) Apply(t *Task) {
	if p.Title != nil {
		t.Title = *p.Title
	}
	if p.Description != nil {
		t.Description = *p.Description
	}
	if p.Status != nil {
		t.Status = *p.Status
	}
	if p.Order != nil {
		t.Order = *p.Order
	}
	if p.Priority != nil {
		t.Priority = *p.Priority
	}
	if p.Type != nil {
		t.Type = *p.Type
	}
	if p.AssigneeID != nil {
		t.AssigneeID = *p.AssigneeID
	}
	if p.AssigneeName != nil {
		t.AssigneeName = *p.AssigneeName
	}
	if p.AssigneeAvatar != nil {
		t.AssigneeAvatar = *p.AssigneeAvatar
	}
	if p.ClearDueDate {
		t.DueDate = nil
	} else if p.DueDate != nil {
		d := *p.DueDate
		t.DueDate = &d
	}
	if p.EstimatedHours != nil {
		h := *p.EstimatedHours
		t.EstimatedHours = &h
	}
	if p.Tags != nil {
		t.Tags = slices.Clone(p.Tags)
	}
	if p.Subtasks != nil {
		t.Subtasks = slices.Clone(p.Subtasks)
	}
	if p.Watchers != nil {
		t.Watchers = slices.Clone(p.Watchers)
	}
	if p.UpdatedAt != nil {
		t.UpdatedAt = *p.UpdatedAt
	}
}

// IsEmpty reports whether the patch changes nothing.
func (p TaskPatch) IsEmpty() bool {
	return p.Title == nil && p.Description == nil && p.Status == nil && p.Order == nil &&
		p.Priority == nil && p.Type == nil && p.AssigneeID == nil && p.AssigneeName == nil &&
		p.AssigneeAvatar == nil && p.DueDate == nil && !p.ClearDueDate && p.EstimatedHours == nil &&
		p.Tags == nil && p.Subtasks == nil && p.Watchers == nil && p.UpdatedAt == nil
}

// MovePatch returns a patch that changes only status and order.
func MovePatch(status TaskStatus, order float64) TaskPatch {
	return TaskPatch{Status: &status, Order: &order}
}

// SubtaskDraft describes a subtask to append. The ID is generated by the
// caller so the local view and the store agree on it.
type SubtaskDraft struct {
	ID    string `json:"id"`
	Title string `json:"title"`
}

// Comment is an append-only discussion entry on a task.
type Comment struct {
	ID        string    `json:"id" yaml:"id" bson:"_id"`
	TaskID    string    `json:"taskId" yaml:"task_id" bson:"taskId"`
	UserID    string    `json:"userId" yaml:"user_id" bson:"userId"`
	UserName  string    `json:"userName" yaml:"user_name" bson:"userName"`
	Content   string    `json:"content" yaml:"content" bson:"content"`
	Mentions  []string  `json:"mentions" yaml:"mentions" bson:"mentions"`
	CreatedAt time.Time `json:"createdAt" yaml:"created_at" bson:"createdAt"`
}

// CommentDraft carries the caller-supplied fields of a new comment.
type CommentDraft struct {
	UserID   string   `json:"userId"`
	UserName string   `json:"userName"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
}

// NewComment builds a Comment from the draft.
func (d CommentDraft) NewComment(id, taskID string, now time.Time) Comment {
	return Comment{
		ID:        id,
		TaskID:    taskID,
		UserID:    d.UserID,
		UserName:  d.UserName,
		Content:   d.Content,
		Mentions:  slices.Clone(d.Mentions),
		CreatedAt: now,
	}
}
