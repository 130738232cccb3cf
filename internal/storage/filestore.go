package storage

import (
	"context"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/fsnotify/fsnotify"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"gopkg.in/yaml.v3"

	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

const watchDebounce = 100 * time.Millisecond

// FileStore persists the board to a single YAML file. Every operation reads
// the file under an exclusive flock, so several processes can share a board.
// Changes made by other processes are picked up through an fsnotify watch on
// the file's directory and pushed to subscribers.
type FileStore struct {
	path  string
	hub   *feedHub
	log   logrus.FieldLogger
	newID func() string
	now   func() time.Time

	pubMu sync.Mutex

	newWatcher func() (*fsnotify.Watcher, error)
	watchMu    sync.Mutex
	watcher    *fsnotify.Watcher
	closed     bool
	done       chan struct{}
	closeOnce  sync.Once
}

// NewFileStore returns a store backed by the YAML file at path. The file is
// created on the first write.
func NewFileStore(path string, log logrus.FieldLogger) *FileStore {
	if log == nil {
		log = logging.Discard()
	}
	return &FileStore{
		path:       path,
		hub:        newFeedHub(),
		log:        log.WithField("store", "file"),
		newID:      uuid.NewString,
		now:        func() time.Time { return time.Now().UTC() },
		newWatcher: fsnotify.NewWatcher,
		done:       make(chan struct{}),
	}
}

// Path returns the board file location.
func (s *FileStore) Path() string {
	return s.path
}

func (s *FileStore) load() (BoardFile, error) {
	data, err := os.ReadFile(s.path)
	if err != nil {
		if errors.Is(err, os.ErrNotExist) {
			return newBoardFile(), nil
		}
		return BoardFile{}, fmt.Errorf("loading board: %w", err)
	}
	bf := newBoardFile()
	if err := yaml.Unmarshal(data, &bf); err != nil {
		return BoardFile{}, fmt.Errorf("loading board: parsing YAML: %w", err)
	}
	if bf.Tasks == nil {
		bf.Tasks = make(map[string]models.Task)
	}
	if bf.Comments == nil {
		bf.Comments = make(map[string][]models.Comment)
	}
	return bf, nil
}

// save writes to a temporary file and renames it so readers never observe a
// half-written board.
func (s *FileStore) save(bf *BoardFile) error {
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("saving board: creating directory: %w", err)
	}
	data, err := yaml.Marshal(bf)
	if err != nil {
		return fmt.Errorf("saving board: marshaling YAML: %w", err)
	}
	tmp := s.path + ".tmp"
	if err := os.WriteFile(tmp, data, 0o600); err != nil {
		return fmt.Errorf("saving board: writing file: %w", err)
	}
	if err := os.Rename(tmp, s.path); err != nil {
		return fmt.Errorf("saving board: replacing file: %w", err)
	}
	return nil
}

// withLock runs fn against the current file contents while holding the
// board's flock. When write is true the (possibly modified) board is saved.
func (s *FileStore) withLock(write bool, fn func(bf *BoardFile) error) error {
	if err := os.MkdirAll(filepath.Dir(s.path), 0o750); err != nil {
		return fmt.Errorf("creating board directory: %w", err)
	}
	unlock, err := lockFile(s.path + ".lock")
	if err != nil {
		return err
	}
	defer func() { _ = unlock() }()

	bf, err := s.load()
	if err != nil {
		return err
	}
	if err := fn(&bf); err != nil {
		return err
	}
	if !write {
		return nil
	}
	return s.save(&bf)
}

func (s *FileStore) mutate(fn func(bf *BoardFile) (models.Task, error)) error {
	var projectID string
	err := s.withLock(true, func(bf *BoardFile) error {
		t, err := fn(bf)
		projectID = t.ProjectID
		return err
	})
	if err != nil {
		return err
	}
	s.publish(projectID)
	return nil
}

func (s *FileStore) projectTasks(projectID string) ([]models.Task, error) {
	var tasks []models.Task
	err := s.withLock(false, func(bf *BoardFile) error {
		tasks = bf.projectTasks(projectID)
		return nil
	})
	return tasks, err
}

func (s *FileStore) publish(projectID string) {
	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	tasks, err := s.projectTasks(projectID)
	if err != nil {
		s.hub.fail(projectID, err)
		return
	}
	s.hub.publish(projectID, tasks)
}

func (s *FileStore) SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	if err := ctx.Err(); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}
	if err := s.startWatch(); err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}

	s.pubMu.Lock()
	defer s.pubMu.Unlock()
	first, err := s.projectTasks(projectID)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}
	cancel := s.hub.add(projectID, onSnapshot, onError)
	onSnapshot(first)
	return cancel, nil
}

// startWatch begins watching the board directory the first time anyone
// subscribes. A failed attempt is retried by the next subscriber.
func (s *FileStore) startWatch() error {
	s.watchMu.Lock()
	defer s.watchMu.Unlock()
	if s.watcher != nil {
		return nil
	}
	if s.closed {
		return errors.New("watching board file: store closed")
	}
	dir := filepath.Dir(s.path)
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return fmt.Errorf("watching board file: %w", err)
	}
	w, err := s.newWatcher()
	if err != nil {
		return fmt.Errorf("watching board file: %w", err)
	}
	if err := w.Add(dir); err != nil {
		_ = w.Close()
		return fmt.Errorf("watching board file: %w", err)
	}
	s.watcher = w
	go s.watch(w)
	return nil
}

func (s *FileStore) watch(w *fsnotify.Watcher) {
	base := filepath.Base(s.path)
	var debounce *time.Timer
	for {
		select {
		case <-s.done:
			if debounce != nil {
				debounce.Stop()
			}
			return
		case event, ok := <-w.Events:
			if !ok {
				return
			}
			if filepath.Base(event.Name) != base {
				continue
			}
			if !event.Has(fsnotify.Write) && !event.Has(fsnotify.Create) && !event.Has(fsnotify.Rename) {
				continue
			}
			if debounce != nil {
				debounce.Stop()
			}
			debounce = time.AfterFunc(watchDebounce, s.reload)
		case err, ok := <-w.Errors:
			if !ok {
				return
			}
			s.log.WithError(err).Warn("board file watcher error")
			s.hub.fail("", fmt.Errorf("watching board file: %w", err))
		}
	}
}

func (s *FileStore) reload() {
	select {
	case <-s.done:
		return
	default:
	}
	for _, p := range s.hub.projects() {
		s.publish(p)
	}
}

// Close stops the file watcher. Subscriptions stop receiving snapshots.
func (s *FileStore) Close() error {
	var err error
	s.closeOnce.Do(func() {
		s.watchMu.Lock()
		defer s.watchMu.Unlock()
		s.closed = true
		close(s.done)
		if s.watcher != nil {
			err = s.watcher.Close()
		}
	})
	return err
}

func (s *FileStore) CreateTask(_ context.Context, draft models.TaskDraft) (string, error) {
	id := s.newID()
	err := s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.createTask(id, draft, s.now())
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *FileStore) UpdateTask(_ context.Context, taskID string, patch models.TaskPatch) error {
	return s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.updateTask(taskID, patch, s.now())
	})
}

func (s *FileStore) UpdateTaskStatus(_ context.Context, taskID string, status models.TaskStatus, order float64) error {
	return s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.updateTaskStatus(taskID, status, order, s.now())
	})
}

func (s *FileStore) DeleteTask(_ context.Context, taskID string) error {
	return s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.deleteTask(taskID)
	})
}

func (s *FileStore) GetTask(_ context.Context, taskID string) (*models.Task, error) {
	var t *models.Task
	err := s.withLock(false, func(bf *BoardFile) error {
		var err error
		t, err = bf.getTask(taskID)
		return err
	})
	return t, err
}

func (s *FileStore) GetNextOrder(_ context.Context, projectID string, status models.TaskStatus) (float64, error) {
	var order float64
	err := s.withLock(false, func(bf *BoardFile) error {
		order = bf.nextOrder(projectID, status)
		return nil
	})
	return order, err
}

func (s *FileStore) AddComment(_ context.Context, taskID string, draft models.CommentDraft) (string, error) {
	id := s.newID()
	err := s.withLock(true, func(bf *BoardFile) error {
		_, err := bf.addComment(id, taskID, draft, s.now())
		return err
	})
	if err != nil {
		return "", err
	}
	return id, nil
}

func (s *FileStore) GetTaskComments(_ context.Context, taskID string) ([]models.Comment, error) {
	var comments []models.Comment
	err := s.withLock(false, func(bf *BoardFile) error {
		var err error
		comments, err = bf.taskComments(taskID)
		return err
	})
	return comments, err
}

func (s *FileStore) AddSubtask(_ context.Context, taskID string, draft models.SubtaskDraft) error {
	return s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.addSubtask(taskID, draft)
	})
}

func (s *FileStore) ToggleSubtask(_ context.Context, taskID, subtaskID string, completed bool, _ string) error {
	return s.mutate(func(bf *BoardFile) (models.Task, error) {
		return bf.toggleSubtask(taskID, subtaskID, completed)
	})
}
