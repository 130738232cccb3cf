package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// fakeStore implements TaskStore in memory for testing. Writes push a fresh
// snapshot to subscribers unless holdSnapshots is set.
type fakeStore struct {
	mu            sync.Mutex
	tasks         map[string]models.Task
	comments      map[string][]models.Comment
	subs          map[int]func([]models.Task)
	subErrs       map[int]func(error)
	nextSub       int
	nextID        int
	failures      map[string]error
	subscribeErr  error
	holdSnapshots bool
	beforeWrite   func(op, taskID string)
	calls         []string
}

func newFakeStore() *fakeStore {
	return &fakeStore{
		tasks:    make(map[string]models.Task),
		comments: make(map[string][]models.Comment),
		subs:     make(map[int]func([]models.Task)),
		subErrs:  make(map[int]func(error)),
		failures: make(map[string]error),
	}
}

// seed adds a task without notifying subscribers.
func (s *fakeStore) seed(id string, status models.TaskStatus, order float64) models.Task {
	s.mu.Lock()
	defer s.mu.Unlock()
	t := models.Task{
		ID:        id,
		ProjectID: "p1",
		Title:     "task " + id,
		Status:    status,
		Order:     order,
		Priority:  models.PriorityMedium,
		Type:      models.TaskTypeTask,
		CreatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
		UpdatedAt: time.Date(2026, 1, 1, 0, 0, 0, 0, time.UTC),
	}
	s.tasks[id] = t
	return t
}

// failOn makes the next call of op fail with err.
func (s *fakeStore) failOn(op string, err error) {
	s.mu.Lock()
	s.failures[op] = err
	s.mu.Unlock()
}

func (s *fakeStore) callCount(op string) int {
	s.mu.Lock()
	defer s.mu.Unlock()
	n := 0
	for _, c := range s.calls {
		if c == op {
			n++
		}
	}
	return n
}

func (s *fakeStore) stored(id string) (models.Task, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[id]
	return t.Clone(), ok
}

func (s *fakeStore) snapshotLocked() []models.Task {
	out := make([]models.Task, 0, len(s.tasks))
	for _, t := range s.tasks {
		out = append(out, t.Clone())
	}
	return out
}

// push delivers the current task set to every subscriber.
func (s *fakeStore) push() {
	s.mu.Lock()
	snap := s.snapshotLocked()
	fns := make([]func([]models.Task), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(snap)
	}
}

// pushTasks delivers an arbitrary snapshot, e.g. a stale one.
func (s *fakeStore) pushTasks(tasks []models.Task) {
	s.mu.Lock()
	fns := make([]func([]models.Task), 0, len(s.subs))
	for _, fn := range s.subs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(tasks)
	}
}

func (s *fakeStore) feedError(err error) {
	s.mu.Lock()
	fns := make([]func(error), 0, len(s.subErrs))
	for _, fn := range s.subErrs {
		fns = append(fns, fn)
	}
	s.mu.Unlock()
	for _, fn := range fns {
		fn(err)
	}
}

// begin records the call and returns an injected failure, if any.
func (s *fakeStore) begin(op, taskID string) error {
	s.mu.Lock()
	s.calls = append(s.calls, op)
	hook := s.beforeWrite
	err, failing := s.failures[op]
	if failing {
		delete(s.failures, op)
	}
	s.mu.Unlock()
	if hook != nil {
		hook(op, taskID)
	}
	return err
}

func (s *fakeStore) written() {
	s.mu.Lock()
	hold := s.holdSnapshots
	s.mu.Unlock()
	if !hold {
		s.push()
	}
}

func (s *fakeStore) SubscribeToProjectTasks(_ context.Context, _ string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	s.mu.Lock()
	if s.subscribeErr != nil {
		err := s.subscribeErr
		s.mu.Unlock()
		return nil, err
	}
	id := s.nextSub
	s.nextSub++
	s.subs[id] = onSnapshot
	s.subErrs[id] = onError
	snap := s.snapshotLocked()
	s.mu.Unlock()

	onSnapshot(snap)
	return func() {
		s.mu.Lock()
		delete(s.subs, id)
		delete(s.subErrs, id)
		s.mu.Unlock()
	}, nil
}

func (s *fakeStore) CreateTask(_ context.Context, draft models.TaskDraft) (string, error) {
	if err := s.begin("CreateTask", ""); err != nil {
		return "", err
	}
	s.mu.Lock()
	s.nextID++
	id := fmt.Sprintf("new-%d", s.nextID)
	s.tasks[id] = draft.NewTask(id, time.Now().UTC())
	s.mu.Unlock()
	s.written()
	return id, nil
}

func (s *fakeStore) UpdateTask(_ context.Context, taskID string, patch models.TaskPatch) error {
	if err := s.begin("UpdateTask", taskID); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.ErrTaskNotFound
	}
	patch.Apply(&t)
	s.tasks[taskID] = t
	s.mu.Unlock()
	s.written()
	return nil
}

func (s *fakeStore) UpdateTaskStatus(_ context.Context, taskID string, status models.TaskStatus, order float64) error {
	if err := s.begin("UpdateTaskStatus", taskID); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.ErrTaskNotFound
	}
	t.Status, t.Order = status, order
	s.tasks[taskID] = t
	s.mu.Unlock()
	s.written()
	return nil
}

func (s *fakeStore) DeleteTask(_ context.Context, taskID string) error {
	if err := s.begin("DeleteTask", taskID); err != nil {
		return err
	}
	s.mu.Lock()
	if _, ok := s.tasks[taskID]; !ok {
		s.mu.Unlock()
		return models.ErrTaskNotFound
	}
	delete(s.tasks, taskID)
	s.mu.Unlock()
	s.written()
	return nil
}

func (s *fakeStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	t, ok := s.tasks[taskID]
	if !ok {
		return nil, models.ErrTaskNotFound
	}
	c := t.Clone()
	return &c, nil
}

func (s *fakeStore) GetNextOrder(_ context.Context, projectID string, status models.TaskStatus) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	var last float64
	for _, t := range s.tasks {
		if t.ProjectID == projectID && t.Status == status && t.Order > last {
			last = t.Order
		}
	}
	return last + 1, nil
}

func (s *fakeStore) AddComment(_ context.Context, taskID string, draft models.CommentDraft) (string, error) {
	if err := s.begin("AddComment", taskID); err != nil {
		return "", err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return "", models.ErrTaskNotFound
	}
	s.nextID++
	id := fmt.Sprintf("c-%d", s.nextID)
	created := time.Date(2026, 1, 1, 0, 0, s.nextID, 0, time.UTC)
	s.comments[taskID] = append(s.comments[taskID], draft.NewComment(id, taskID, created))
	return id, nil
}

func (s *fakeStore) GetTaskComments(_ context.Context, taskID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.tasks[taskID]; !ok {
		return nil, models.ErrTaskNotFound
	}
	return slices.Clone(s.comments[taskID]), nil
}

func (s *fakeStore) AddSubtask(_ context.Context, taskID string, draft models.SubtaskDraft) error {
	if err := s.begin("AddSubtask", taskID); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.ErrTaskNotFound
	}
	t.Subtasks = append(slices.Clone(t.Subtasks), models.Subtask{ID: draft.ID, Title: draft.Title})
	s.tasks[taskID] = t
	s.mu.Unlock()
	s.written()
	return nil
}

func (s *fakeStore) ToggleSubtask(_ context.Context, taskID, subtaskID string, completed bool, _ string) error {
	if err := s.begin("ToggleSubtask", taskID); err != nil {
		return err
	}
	s.mu.Lock()
	t, ok := s.tasks[taskID]
	if !ok {
		s.mu.Unlock()
		return models.ErrTaskNotFound
	}
	i := t.SubtaskIndex(subtaskID)
	if i < 0 {
		s.mu.Unlock()
		return models.ErrSubtaskNotFound
	}
	t.Subtasks = slices.Clone(t.Subtasks)
	t.Subtasks[i].Completed = completed
	s.tasks[taskID] = t
	s.mu.Unlock()
	s.written()
	return nil
}

// recordingEvents implements EventLogger for testing.
type recordingEvents struct {
	mu     sync.Mutex
	events []string
}

func (r *recordingEvents) LogEvent(eventType string, _ map[string]any) error {
	r.mu.Lock()
	r.events = append(r.events, eventType)
	r.mu.Unlock()
	return nil
}

func (r *recordingEvents) count(eventType string) int {
	r.mu.Lock()
	defer r.mu.Unlock()
	n := 0
	for _, e := range r.events {
		if e == eventType {
			n++
		}
	}
	return n
}

// loadedBoard creates a board over store and loads it.
func loadedBoard(t interface {
	Helper()
	Fatalf(string, ...any)
}, store *fakeStore) (*Board, *recordingEvents) {
	t.Helper()
	events := &recordingEvents{}
	b := NewBoard("p1", store, events, nil)
	if err := b.Load(context.Background()); err != nil {
		t.Fatalf("Load: %v", err)
	}
	return b, events
}

func orderOf(t interface {
	Helper()
	Fatalf(string, ...any)
}, b *Board, id string) (models.TaskStatus, float64) {
	t.Helper()
	task, ok := b.Task(id)
	if !ok {
		t.Fatalf("task %s not on board", id)
	}
	return task.Status, task.Order
}
