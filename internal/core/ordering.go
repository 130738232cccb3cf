package core

import (
	"cmp"
	"math"
	"slices"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// orderStep is the spacing between appended tasks and between renumbered ones.
const orderStep = 1.0

// InsertionOrder returns the order key for a task inserted at targetIndex of a
// bucket whose current orders (excluding the task being placed) are given in
// ascending order. targetIndex is clamped to [0, len(orders)].
//
// When no distinguishable key exists at that position, or the bucket already
// contains ties or non-finite keys, the bucket is renumbered to 1..n and the
// key is computed against the new numbering. renumbered is then index-aligned
// with orders and must be persisted by the caller; otherwise it is nil.
func InsertionOrder(orders []float64, targetIndex int) (order float64, renumbered []float64) {
	targetIndex = max(0, min(targetIndex, len(orders)))
	if wellFormed(orders) {
		if o, ok := placeAt(orders, targetIndex); ok {
			return o, nil
		}
	}
	renumbered = Renumber(len(orders))
	o, _ := placeAt(renumbered, targetIndex)
	return o, renumbered
}

// Renumber returns n evenly spaced integer order keys starting at orderStep.
func Renumber(n int) []float64 {
	out := make([]float64, n)
	for i := range out {
		out[i] = float64(i+1) * orderStep
	}
	return out
}

// placeAt computes the key for index i and reports whether it is strictly
// between its neighbours under float64 precision.
func placeAt(orders []float64, i int) (float64, bool) {
	n := len(orders)
	switch {
	case n == 0:
		return orderStep, true
	case i >= n:
		last := orders[n-1]
		v := last + orderStep
		return v, v > last && !math.IsInf(v, 0)
	case i == 0:
		first := orders[0]
		v := first - orderStep
		return v, v < first && !math.IsInf(v, 0)
	default:
		a, b := orders[i-1], orders[i]
		mid := a + (b-a)/2
		return mid, a < mid && mid < b
	}
}

// wellFormed reports whether orders are finite and strictly ascending.
func wellFormed(orders []float64) bool {
	for i, o := range orders {
		if math.IsNaN(o) || math.IsInf(o, 0) {
			return false
		}
		if i > 0 && !(orders[i-1] < o) {
			return false
		}
	}
	return true
}

// compareTasks orders tasks by order key, breaking ties by ID so the display
// order is deterministic even while a bucket holds colliding keys.
func compareTasks(a, b models.Task) int {
	if c := cmp.Compare(a.Order, b.Order); c != 0 {
		return c
	}
	return cmp.Compare(a.ID, b.ID)
}

// SortBucket sorts tasks of a single bucket into display order in place.
func SortBucket(tasks []models.Task) {
	slices.SortFunc(tasks, compareTasks)
}

// SortBoard sorts tasks by column, then by display order within the column.
func SortBoard(tasks []models.Task) {
	slices.SortFunc(tasks, func(a, b models.Task) int {
		if c := cmp.Compare(a.Status.Column(), b.Status.Column()); c != 0 {
			return c
		}
		return compareTasks(a, b)
	})
}

// BucketOrders extracts the order keys of an already sorted bucket.
func BucketOrders(tasks []models.Task) []float64 {
	out := make([]float64, len(tasks))
	for i, t := range tasks {
		out[i] = t.Order
	}
	return out
}
