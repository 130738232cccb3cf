package core

import (
	"context"
	"fmt"
	"math"
	"reflect"
	"testing"

	"github.com/valter-silva-au/taskboard/pkg/models"
	"pgregory.net/rapid"
)

// seededBoard loads a board whose buckets are strictly ordered but may hold
// adjacent float64 keys, so inserting between them forces renumbering.
func seededBoard(rt *rapid.T) (*fakeStore, *Board, []string) {
	store := newFakeStore()
	last := make(map[models.TaskStatus]float64)
	n := rapid.IntRange(1, 8).Draw(rt, "tasks")
	ids := make([]string, n)
	for i := range ids {
		ids[i] = fmt.Sprintf("t%d", i)
		status := rapid.SampledFrom(models.Statuses).Draw(rt, "status")
		order, ok := last[status]
		switch {
		case !ok:
			order = 1
		case rapid.Bool().Draw(rt, "tight"):
			order = math.Nextafter(order, math.Inf(1))
		default:
			order++
		}
		last[status] = order
		store.seed(ids[i], status, order)
	}
	b, _ := loadedBoard(rt, store)
	return store, b, ids
}

// Feature: task-board, Property 3: Order Totality Under Moves
// After any sequence of moves and drags, every bucket in the store and on the
// board is strictly ordered by order key.
func TestProperty_OrderTotalityUnderMoves(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		store, b, ids := seededBoard(rt)
		c := NewDragController(b)
		ctx := context.Background()

		steps := rapid.IntRange(1, 15).Draw(rt, "steps")
		for i := 0; i < steps; i++ {
			id := rapid.SampledFrom(ids).Draw(rt, "mover")
			if rapid.Bool().Draw(rt, "drag") {
				over := rapid.SampledFrom(ids).Draw(rt, "over")
				_ = c.OnDragStart(id)
				if _, err := c.OnDragEnd(ctx, id, ptr(TaskTarget(over))); err != nil {
					rt.Fatalf("drag %s over %s: %v", id, over, err)
				}
				continue
			}
			status := rapid.SampledFrom(models.Statuses).Draw(rt, "status")
			index := rapid.IntRange(-1, len(ids)).Draw(rt, "index")
			if _, err := b.Move(ctx, id, status, index); err != nil {
				rt.Fatalf("move %s to %s[%d]: %v", id, status, index, err)
			}
		}

		for _, status := range models.Statuses {
			bucket := b.Bucket(status)
			for i := 1; i < len(bucket); i++ {
				if !(bucket[i-1].Order < bucket[i].Order) {
					rt.Fatalf("bucket %s not strictly ordered: %v", status, BucketOrders(bucket))
				}
			}
		}
		for _, id := range ids {
			local, _ := b.Task(id)
			stored, _ := store.stored(id)
			if local.Status != stored.Status || local.Order != stored.Order {
				rt.Fatalf("%s: board %s/%v, store %s/%v", id, local.Status, local.Order, stored.Status, stored.Order)
			}
		}
	})
}

// Feature: task-board, Property 4: Bucket Exclusivity
// Every displayed task appears in exactly one column, the one named by its
// status, including while optimistic mutations are pending.
func TestProperty_BucketExclusivity(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		_, b, ids := seededBoard(rt)

		for i := rapid.IntRange(0, 5).Draw(rt, "pending"); i > 0; i-- {
			id := rapid.SampledFrom(ids).Draw(rt, "id")
			status := rapid.SampledFrom(models.Statuses).Draw(rt, "status")
			if _, err := b.ApplyOptimistic(id, models.TaskPatch{Status: &status}); err != nil {
				rt.Fatalf("ApplyOptimistic: %v", err)
			}
		}

		seen := make(map[string]int)
		for _, col := range b.Columns() {
			for _, task := range col.Tasks {
				if task.Status != col.Status {
					rt.Fatalf("task %s with status %s shown in column %s", task.ID, task.Status, col.Status)
				}
				seen[task.ID]++
			}
		}
		for _, id := range ids {
			if seen[id] != 1 {
				rt.Fatalf("task %s shown %d times", id, seen[id])
			}
		}
	})
}

// Feature: task-board, Property 7: Rollback Round-Trip
// ApplyOptimistic followed by Rollback restores the exact displayed value.
func TestProperty_RollbackRoundTrip(t *testing.T) {
	rapid.Check(t, func(rt *rapid.T) {
		_, b, ids := seededBoard(rt)
		id := rapid.SampledFrom(ids).Draw(rt, "id")
		before, _ := b.Task(id)

		var patch models.TaskPatch
		if rapid.Bool().Draw(rt, "title") {
			title := rapid.StringMatching(`[a-z]{1,8}`).Draw(rt, "newTitle")
			patch.Title = &title
		}
		if rapid.Bool().Draw(rt, "status") {
			status := rapid.SampledFrom(models.Statuses).Draw(rt, "newStatus")
			order := rapid.Float64Range(-100, 100).Draw(rt, "newOrder")
			patch.Status, patch.Order = &status, &order
		}
		if rapid.Bool().Draw(rt, "tags") {
			patch.Tags = []string{rapid.StringMatching(`[a-z]{1,5}`).Draw(rt, "tag")}
		}
		if rapid.Bool().Draw(rt, "assignee") {
			who := rapid.SampledFrom([]string{"", "u1"}).Draw(rt, "who")
			patch.AssigneeID = &who
		}

		tok, err := b.ApplyOptimistic(id, patch)
		if err != nil {
			rt.Fatalf("ApplyOptimistic: %v", err)
		}
		_ = b.Rollback(tok, nil)

		after, _ := b.Task(id)
		if !reflect.DeepEqual(before, after) {
			rt.Fatalf("round trip changed task:\n got %+v\nwant %+v", after, before)
		}
		if !reflect.DeepEqual(tok.Before(), before) {
			rt.Fatalf("token does not carry the pre-mutation value")
		}
	})
}
