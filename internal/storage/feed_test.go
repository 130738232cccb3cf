package storage

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"go.mongodb.org/mongo-driver/bson"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

func TestPollFeed_PushesOnlyChanges(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var mu sync.Mutex
	calls := 0
	list := func(context.Context) ([]models.Task, error) {
		mu.Lock()
		defer mu.Unlock()
		calls++
		switch {
		case calls == 2:
			return nil, errors.New("timeout")
		case calls >= 4:
			return []models.Task{{ID: "a", Title: "changed"}}, nil
		default:
			return []models.Task{{ID: "a", Title: "same"}}, nil
		}
	}

	rec := newSnapshotRecorder()
	go pollFeed(ctx, 5*time.Millisecond, []models.Task{{ID: "a", Title: "same"}}, list, rec.onSnapshot, rec.onError)

	got := rec.waitFor(t, func(ts []models.Task) bool { return len(ts) == 1 && ts[0].Title == "changed" })
	if got[0].ID != "a" {
		t.Errorf("snapshot = %+v", got)
	}
	time.Sleep(30 * time.Millisecond)
	if n := rec.count(); n != 1 {
		t.Errorf("snapshots = %d, unchanged listings must not be pushed", n)
	}
	rec.mu.Lock()
	errs := len(rec.errs)
	rec.mu.Unlock()
	if errs != 1 {
		t.Errorf("errors = %d, want 1", errs)
	}
}

func TestFeedHub_ScopesByProject(t *testing.T) {
	h := newFeedHub()
	a, b := newSnapshotRecorder(), newSnapshotRecorder()
	cancelA := h.add("p1", a.onSnapshot, a.onError)
	h.add("p2", b.onSnapshot, b.onError)

	h.publish("p1", []models.Task{{ID: "x", ProjectID: "p1"}})
	if a.count() != 1 || b.count() != 0 {
		t.Errorf("counts = %d/%d", a.count(), b.count())
	}

	h.fail("", errors.New("watch broke"))
	if len(a.errs) != 1 || len(b.errs) != 1 {
		t.Error("empty project should fail every subscriber")
	}

	cancelA()
	cancelA()
	h.publish("p1", nil)
	if a.count() != 1 {
		t.Error("cancelled subscriber still receives snapshots")
	}
	if got := h.projects(); len(got) != 1 || got[0] != "p2" {
		t.Errorf("projects = %v", got)
	}
}

func TestPatchUpdate(t *testing.T) {
	now := time.Date(2026, 3, 1, 12, 0, 0, 0, time.UTC)
	title := "renamed"
	empty := ""
	status := models.StatusDone
	update := patchUpdate(models.TaskPatch{
		Title:        &title,
		Status:       &status,
		AssigneeID:   &empty,
		ClearDueDate: true,
	}, now)

	set := update["$set"].(bson.M)
	if set["title"] != "renamed" || set["status"] != models.StatusDone || !set["updatedAt"].(time.Time).Equal(now) {
		t.Errorf("$set = %v", set)
	}
	if _, ok := set["order"]; ok {
		t.Error("untouched fields must not be set")
	}
	unset := update["$unset"].(bson.M)
	if _, ok := unset["assigneeId"]; !ok {
		t.Error("clearing the assignee should unset assigneeId")
	}
	if _, ok := unset["dueDate"]; !ok {
		t.Error("ClearDueDate should unset dueDate")
	}

	if _, ok := patchUpdate(models.TaskPatch{Title: &title}, now)["$unset"]; ok {
		t.Error("no $unset expected when nothing is cleared")
	}
}
