package core

import (
	"reflect"
	"testing"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

func filterFixture() []models.Task {
	return []models.Task{
		{ID: "1", Title: "Fix login bug", Status: models.StatusTodo, Order: 2, Priority: models.PriorityHigh, AssigneeID: "u1"},
		{ID: "2", Title: "Bug bash prep", Status: models.StatusTodo, Order: 1, Priority: models.PriorityLow},
		{ID: "3", Title: "Write docs", Description: "mention the BUG tracker", Status: models.StatusDone, Order: 1, Priority: models.PriorityMedium, AssigneeID: "u2"},
		{ID: "4", Title: "Release", Status: models.StatusReview, Order: 1, Priority: models.PriorityHigh, AssigneeID: "u1"},
		{ID: "5", Title: "Refactor store", Status: models.StatusBlocked, Order: 1, Priority: models.PriorityUrgent},
	}
}

// Scenario: searching "bug" with priority high over five tasks returns the
// single matching task.
func TestFilterTasks_SearchAndPriority(t *testing.T) {
	priority, err := ParsePriorityFilter("high")
	if err != nil {
		t.Fatalf("ParsePriorityFilter: %v", err)
	}
	got := FilterTasks(filterFixture(), Criteria{SearchQuery: "bug", Priority: priority})
	if len(got) != 1 || got[0].ID != "1" {
		t.Errorf("got %v, want [1]", ids(got))
	}
}

func TestFilterTasks_ZeroCriteriaSortsEverything(t *testing.T) {
	got := FilterTasks(filterFixture(), Criteria{})
	want := []string{"2", "1", "4", "3", "5"}
	if !reflect.DeepEqual(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
}

func TestFilterTasks_SearchMatchesDescriptionCaseInsensitive(t *testing.T) {
	got := FilterTasks(filterFixture(), Criteria{SearchQuery: "Bug"})
	if want := []string{"2", "1", "3"}; !reflect.DeepEqual(ids(got), want) {
		t.Errorf("got %v, want %v", ids(got), want)
	}
}

func TestFilterTasks_Assignee(t *testing.T) {
	tests := []struct {
		raw  string
		want []string
	}{
		{"all", []string{"2", "1", "4", "3", "5"}},
		{"unassigned", []string{"2", "5"}},
		{"u1", []string{"1", "4"}},
		{"nobody", []string{}},
	}
	for _, tt := range tests {
		t.Run(tt.raw, func(t *testing.T) {
			got := ids(FilterTasks(filterFixture(), Criteria{Assignee: ParseAssigneeFilter(tt.raw)}))
			if !reflect.DeepEqual(got, tt.want) {
				t.Errorf("got %v, want %v", got, tt.want)
			}
		})
	}
}

func TestParsePriorityFilter(t *testing.T) {
	if f, err := ParsePriorityFilter("all"); err != nil || f != AnyPriority() {
		t.Errorf("all = %v, %v", f, err)
	}
	if f, err := ParsePriorityFilter("URGENT"); err != nil || f != OnlyPriority(models.PriorityUrgent) {
		t.Errorf("URGENT = %v, %v", f, err)
	}
	if _, err := ParsePriorityFilter("P1"); !IsValidation(err) {
		t.Errorf("P1 error = %v, want ValidationError", err)
	}
}

func TestFilterTasks_DoesNotMutateInput(t *testing.T) {
	in := filterFixture()
	before := ids(in)
	FilterTasks(in, Criteria{})
	if !reflect.DeepEqual(ids(in), before) {
		t.Error("input slice was reordered")
	}
}

func TestCriteria_IsZero(t *testing.T) {
	if !(Criteria{SearchQuery: "  "}).IsZero() {
		t.Error("blank query should be zero criteria")
	}
	if (Criteria{Assignee: Unassigned()}).IsZero() {
		t.Error("unassigned filter is not zero")
	}
}
