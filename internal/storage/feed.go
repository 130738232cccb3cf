package storage

import (
	"context"
	"reflect"
	"sync"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

type subscriber struct {
	projectID  string
	onSnapshot func([]models.Task)
	onError    func(error)
}

// feedHub fans snapshots out to per-project subscribers. Callbacks run on
// the goroutine that publishes, never under the hub lock.
type feedHub struct {
	mu     sync.Mutex
	subs   map[int]subscriber
	nextID int
}

func newFeedHub() *feedHub {
	return &feedHub{subs: make(map[int]subscriber)}
}

func (h *feedHub) add(projectID string, onSnapshot func([]models.Task), onError func(error)) func() {
	h.mu.Lock()
	id := h.nextID
	h.nextID++
	h.subs[id] = subscriber{projectID: projectID, onSnapshot: onSnapshot, onError: onError}
	h.mu.Unlock()

	var once sync.Once
	return func() {
		once.Do(func() {
			h.mu.Lock()
			delete(h.subs, id)
			h.mu.Unlock()
		})
	}
}

func (h *feedHub) matching(projectID string) []subscriber {
	h.mu.Lock()
	defer h.mu.Unlock()
	var out []subscriber
	for _, s := range h.subs {
		if projectID == "" || s.projectID == projectID {
			out = append(out, s)
		}
	}
	return out
}

// projects returns the distinct project IDs with at least one subscriber.
func (h *feedHub) projects() []string {
	h.mu.Lock()
	defer h.mu.Unlock()
	seen := make(map[string]bool)
	var out []string
	for _, s := range h.subs {
		if !seen[s.projectID] {
			seen[s.projectID] = true
			out = append(out, s.projectID)
		}
	}
	return out
}

func (h *feedHub) publish(projectID string, tasks []models.Task) {
	for _, s := range h.matching(projectID) {
		snap := make([]models.Task, len(tasks))
		for i, t := range tasks {
			snap[i] = t.Clone()
		}
		s.onSnapshot(snap)
	}
}

// fail reports err to every subscriber of projectID, or to all when empty.
func (h *feedHub) fail(projectID string, err error) {
	for _, s := range h.matching(projectID) {
		if s.onError != nil {
			s.onError(err)
		}
	}
}

// pollFeed re-lists a project's tasks every interval and pushes a snapshot
// whenever the result differs from the previous one. It returns when ctx is
// done. List failures are reported through onError and polling continues.
func pollFeed(ctx context.Context, interval time.Duration, last []models.Task,
	list func(context.Context) ([]models.Task, error),
	onSnapshot func([]models.Task), onError func(error)) {
	ticker := time.NewTicker(interval)
	defer ticker.Stop()
	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
			tasks, err := list(ctx)
			if err != nil {
				if ctx.Err() != nil {
					return
				}
				if onError != nil {
					onError(err)
				}
				continue
			}
			if reflect.DeepEqual(tasks, last) {
				continue
			}
			last = tasks
			onSnapshot(tasks)
		}
	}
}
