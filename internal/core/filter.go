package core

import (
	"fmt"
	"strings"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// PriorityFilter selects tasks by priority. The zero value matches all.
type PriorityFilter struct {
	only models.Priority
}

// AnyPriority matches every task.
func AnyPriority() PriorityFilter { return PriorityFilter{} }

// OnlyPriority matches tasks with priority p.
func OnlyPriority(p models.Priority) PriorityFilter { return PriorityFilter{only: p} }

// ParsePriorityFilter accepts "all" (or "") and the priority names.
func ParsePriorityFilter(s string) (PriorityFilter, error) {
	s = strings.ToLower(strings.TrimSpace(s))
	if s == "" || s == "all" {
		return AnyPriority(), nil
	}
	p := models.Priority(s)
	if !p.Valid() {
		return PriorityFilter{}, validationError("priority", fmt.Sprintf("unknown priority filter %q", s))
	}
	return OnlyPriority(p), nil
}

func (f PriorityFilter) matches(t models.Task) bool {
	return f.only == "" || t.Priority == f.only
}

func (f PriorityFilter) String() string {
	if f.only == "" {
		return "all"
	}
	return string(f.only)
}

type assigneeMode int

const (
	assigneeAny assigneeMode = iota
	assigneeNone
	assigneeUser
)

// AssigneeFilter selects tasks by assignee. The zero value matches all.
type AssigneeFilter struct {
	mode assigneeMode
	id   string
}

// AnyAssignee matches every task.
func AnyAssignee() AssigneeFilter { return AssigneeFilter{} }

// Unassigned matches tasks without an assignee.
func Unassigned() AssigneeFilter { return AssigneeFilter{mode: assigneeNone} }

// AssignedTo matches tasks assigned to the given user id.
func AssignedTo(id string) AssigneeFilter { return AssigneeFilter{mode: assigneeUser, id: id} }

// ParseAssigneeFilter accepts "all" (or ""), "unassigned" and a user id.
func ParseAssigneeFilter(s string) AssigneeFilter {
	switch v := strings.TrimSpace(s); strings.ToLower(v) {
	case "", "all":
		return AnyAssignee()
	case "unassigned":
		return Unassigned()
	default:
		return AssignedTo(v)
	}
}

func (f AssigneeFilter) matches(t models.Task) bool {
	switch f.mode {
	case assigneeNone:
		return !t.IsAssigned()
	case assigneeUser:
		return t.AssigneeID == f.id
	}
	return true
}

func (f AssigneeFilter) String() string {
	switch f.mode {
	case assigneeNone:
		return "unassigned"
	case assigneeUser:
		return f.id
	}
	return "all"
}

// Criteria combines the three board filters with AND.
type Criteria struct {
	SearchQuery string
	Priority    PriorityFilter
	Assignee    AssigneeFilter
}

// IsZero reports whether the criteria let every task through.
func (c Criteria) IsZero() bool {
	return strings.TrimSpace(c.SearchQuery) == "" && c.Priority == AnyPriority() && c.Assignee == AnyAssignee()
}

// FilterTasks returns the tasks matching c, sorted by column, order and id.
// The input is not modified.
func FilterTasks(tasks []models.Task, c Criteria) []models.Task {
	query := strings.ToLower(strings.TrimSpace(c.SearchQuery))
	out := make([]models.Task, 0, len(tasks))
	for _, t := range tasks {
		if !matchesQuery(t, query) || !c.Priority.matches(t) || !c.Assignee.matches(t) {
			continue
		}
		out = append(out, t)
	}
	SortBoard(out)
	return out
}

func matchesQuery(t models.Task, query string) bool {
	if query == "" {
		return true
	}
	return strings.Contains(strings.ToLower(t.Title), query) ||
		strings.Contains(strings.ToLower(t.Description), query)
}
