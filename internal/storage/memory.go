package storage

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// MemoryStore keeps the whole board in process memory. Every successful write
// publishes a fresh snapshot of the affected project to its subscribers
// before the write returns. Snapshot callbacks must not write back to the
// store synchronously.
type MemoryStore struct {
	mu sync.Mutex
	// pubMu orders publications so a subscriber never sees an older
	// snapshot after a newer one.
	pubMu sync.Mutex
	data  BoardFile
	hub   *feedHub
	newID func() string
	now   func() time.Time
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{
		data:  newBoardFile(),
		hub:   newFeedHub(),
		newID: uuid.NewString,
		now:   func() time.Time { return time.Now().UTC() },
	}
}

// Seed inserts tasks verbatim, keeping their IDs and timestamps.
func (s *MemoryStore) Seed(tasks ...models.Task) {
	s.mu.Lock()
	projects := make(map[string]bool)
	for _, t := range tasks {
		s.data.Tasks[t.ID] = t.Clone()
		projects[t.ProjectID] = true
	}
	s.mu.Unlock()
	for p := range projects {
		s.publish(p)
	}
}

func (s *MemoryStore) SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	first := s.data.projectTasks(projectID)
	s.mu.Unlock()
	cancel := s.hub.add(projectID, onSnapshot, onError)
	onSnapshot(first)
	return cancel, nil
}

// mutate runs fn under the store lock and, when it succeeds, publishes the
// project's new snapshot.
func (s *MemoryStore) mutate(fn func(f *BoardFile) (models.Task, error)) error {
	s.mu.Lock()
	t, err := fn(&s.data)
	s.mu.Unlock()
	if err != nil {
		return err
	}
	s.publish(t.ProjectID)
	return nil
}

func (s *MemoryStore) publish(projectID string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	s.mu.Lock()
	tasks := s.data.projectTasks(projectID)
	s.mu.Unlock()
	s.hub.publish(projectID, tasks)
}

func (s *MemoryStore) CreateTask(_ context.Context, draft models.TaskDraft) (string, error) {
	id := s.newID()
	err := s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.createTask(id, draft, s.now())
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) UpdateTask(_ context.Context, taskID string, patch models.TaskPatch) error {
	return s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.updateTask(taskID, patch, s.now())
	})
}

func (s *MemoryStore) UpdateTaskStatus(_ context.Context, taskID string, status models.TaskStatus, order float64) error {
	return s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.updateTaskStatus(taskID, status, order, s.now())
	})
}

func (s *MemoryStore) DeleteTask(_ context.Context, taskID string) error {
	return s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.deleteTask(taskID)
	})
}

func (s *MemoryStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.getTask(taskID)
}

func (s *MemoryStore) GetNextOrder(_ context.Context, projectID string, status models.TaskStatus) (float64, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.nextOrder(projectID, status), nil
}

// Comments are not part of the task snapshot, so adding one publishes nothing.
func (s *MemoryStore) AddComment(_ context.Context, taskID string, draft models.CommentDraft) (string, error) {
	id := s.newID()
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, err := s.data.addComment(id, taskID, draft, s.now()); err != nil {
		return "", err
	}
	return id, nil
}

func (s *MemoryStore) GetTaskComments(_ context.Context, taskID string) ([]models.Comment, error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.data.taskComments(taskID)
}

func (s *MemoryStore) AddSubtask(_ context.Context, taskID string, draft models.SubtaskDraft) error {
	return s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.addSubtask(taskID, draft)
	})
}

func (s *MemoryStore) ToggleSubtask(_ context.Context, taskID, subtaskID string, completed bool, _ string) error {
	return s.mutate(func(f *BoardFile) (models.Task, error) {
		return f.toggleSubtask(taskID, subtaskID, completed)
	})
}

// Fail reports err to every subscriber of projectID as a feed failure.
func (s *MemoryStore) Fail(projectID string, err error) {
	s.hub.fail(projectID, err)
}
