package storage

import (
	"cmp"
	"fmt"
	"slices"
	"time"

	"github.com/valter-silva-au/taskboard/pkg/models"
)

// BoardFile is the top-level structure of a board YAML file and the state
// kept by the in-memory store.
type BoardFile struct {
	Version  string                      `yaml:"version"`
	Tasks    map[string]models.Task      `yaml:"tasks"`
	Comments map[string][]models.Comment `yaml:"comments"`
}

func newBoardFile() BoardFile {
	return BoardFile{
		Version:  "1.0",
		Tasks:    make(map[string]models.Task),
		Comments: make(map[string][]models.Comment),
	}
}

// projectTasks returns the project's tasks sorted by status and order.
func (f *BoardFile) projectTasks(projectID string) []models.Task {
	var out []models.Task
	for _, t := range f.Tasks {
		if t.ProjectID == projectID {
			out = append(out, t.Clone())
		}
	}
	sortSnapshot(out)
	return out
}

// sortSnapshot puts tasks in a stable column, order, ID sequence so that two
// listings of the same state compare equal.
func sortSnapshot(tasks []models.Task) {
	slices.SortFunc(tasks, func(a, b models.Task) int {
		return cmp.Or(
			cmp.Compare(a.Status.Column(), b.Status.Column()),
			cmp.Compare(a.Order, b.Order),
			cmp.Compare(a.ID, b.ID),
		)
	})
}

func (f *BoardFile) createTask(id string, draft models.TaskDraft, now time.Time) (models.Task, error) {
	if draft.ProjectID == "" {
		return models.Task{}, fmt.Errorf("creating task: project ID must not be empty")
	}
	if _, exists := f.Tasks[id]; exists {
		return models.Task{}, fmt.Errorf("creating task: task %s already exists", id)
	}
	t := draft.NewTask(id, now)
	f.Tasks[id] = t
	return t, nil
}

func (f *BoardFile) updateTask(taskID string, patch models.TaskPatch, now time.Time) (models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("updating task %s: %w", taskID, models.ErrTaskNotFound)
	}
	patch.Apply(&t)
	t.UpdatedAt = now
	f.Tasks[taskID] = t
	return t, nil
}

func (f *BoardFile) updateTaskStatus(taskID string, status models.TaskStatus, order float64, now time.Time) (models.Task, error) {
	return f.updateTask(taskID, models.MovePatch(status, order), now)
}

func (f *BoardFile) deleteTask(taskID string) (models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("deleting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	delete(f.Tasks, taskID)
	delete(f.Comments, taskID)
	return t, nil
}

func (f *BoardFile) getTask(taskID string) (*models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return nil, fmt.Errorf("getting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	c := t.Clone()
	return &c, nil
}

func (f *BoardFile) nextOrder(projectID string, status models.TaskStatus) float64 {
	last, found := 0.0, false
	for _, t := range f.Tasks {
		if t.ProjectID == projectID && t.Status == status && (!found || t.Order > last) {
			last, found = t.Order, true
		}
	}
	if !found {
		return 1
	}
	return last + 1
}

func (f *BoardFile) addComment(id, taskID string, draft models.CommentDraft, now time.Time) (models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("adding comment to %s: %w", taskID, models.ErrTaskNotFound)
	}
	f.Comments[taskID] = append(f.Comments[taskID], draft.NewComment(id, taskID, now))
	return t, nil
}

func (f *BoardFile) taskComments(taskID string) ([]models.Comment, error) {
	if _, ok := f.Tasks[taskID]; !ok {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, models.ErrTaskNotFound)
	}
	return slices.Clone(f.Comments[taskID]), nil
}

// Subtask changes never touch updatedAt.
func (f *BoardFile) addSubtask(taskID string, draft models.SubtaskDraft) (models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("adding subtask to %s: %w", taskID, models.ErrTaskNotFound)
	}
	if draft.ID == "" {
		return models.Task{}, fmt.Errorf("adding subtask to %s: subtask ID must not be empty", taskID)
	}
	t.Subtasks = append(slices.Clone(t.Subtasks), models.Subtask{ID: draft.ID, Title: draft.Title})
	f.Tasks[taskID] = t
	return t, nil
}

func (f *BoardFile) toggleSubtask(taskID, subtaskID string, completed bool) (models.Task, error) {
	t, ok := f.Tasks[taskID]
	if !ok {
		return models.Task{}, fmt.Errorf("toggling subtask of %s: %w", taskID, models.ErrTaskNotFound)
	}
	i := t.SubtaskIndex(subtaskID)
	if i < 0 {
		return models.Task{}, fmt.Errorf("toggling subtask %s: %w", subtaskID, models.ErrSubtaskNotFound)
	}
	t.Subtasks = slices.Clone(t.Subtasks)
	t.Subtasks[i].Completed = completed
	f.Tasks[taskID] = t
	return t, nil
}
