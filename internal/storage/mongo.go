package storage

import (
	"context"
	"errors"
	"fmt"
	"reflect"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"
	"go.mongodb.org/mongo-driver/bson"
	"go.mongodb.org/mongo-driver/mongo"
	"go.mongodb.org/mongo-driver/mongo/options"

	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

const (
	tasksCollection    = "tasks"
	commentsCollection = "comments"
)

// MongoStore keeps tasks and comments in two MongoDB collections. Live
// snapshots follow a change stream on the tasks collection; deployments
// without change streams (standalone servers) fall back to polling.
type MongoStore struct {
	client   *mongo.Client
	tasks    *mongo.Collection
	comments *mongo.Collection
	poll     time.Duration
	log      logrus.FieldLogger
	newID    func() string
	now      func() time.Time
}

// NewMongoStore connects to cfg.URI, verifies the connection and ensures the
// collection indexes exist.
func NewMongoStore(ctx context.Context, cfg models.MongoConfig, poll time.Duration, log logrus.FieldLogger) (*MongoStore, error) {
	if log == nil {
		log = logging.Discard()
	}
	client, err := mongo.Connect(ctx, options.Client().ApplyURI(cfg.URI))
	if err != nil {
		return nil, fmt.Errorf("connecting to mongo: %w", err)
	}
	if err := client.Ping(ctx, nil); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("pinging mongo: %w", err)
	}
	db := client.Database(cfg.Database)
	s := &MongoStore{
		client:   client,
		tasks:    db.Collection(tasksCollection),
		comments: db.Collection(commentsCollection),
		poll:     poll,
		log:      log.WithField("store", "mongo"),
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureIndexes(ctx); err != nil {
		_ = client.Disconnect(context.WithoutCancel(ctx))
		return nil, err
	}
	s.log.WithField("database", cfg.Database).Info("connected to mongo")
	return s, nil
}

func (s *MongoStore) ensureIndexes(ctx context.Context) error {
	_, err := s.tasks.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "projectId", Value: 1}, {Key: "status", Value: 1}, {Key: "order", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("creating task index: %w", err)
	}
	_, err = s.comments.Indexes().CreateOne(ctx, mongo.IndexModel{
		Keys: bson.D{{Key: "taskId", Value: 1}, {Key: "createdAt", Value: 1}},
	})
	if err != nil {
		return fmt.Errorf("creating comment index: %w", err)
	}
	return nil
}

// Close disconnects the client.
func (s *MongoStore) Close(ctx context.Context) error {
	return s.client.Disconnect(ctx)
}

func (s *MongoStore) list(ctx context.Context, projectID string) ([]models.Task, error) {
	opts := options.Find().SetSort(bson.D{{Key: "order", Value: 1}, {Key: "_id", Value: 1}})
	cursor, err := s.tasks.Find(ctx, bson.M{"projectId": projectID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing tasks of %s: %w", projectID, err)
	}
	defer cursor.Close(ctx)

	var tasks []models.Task
	if err := cursor.All(ctx, &tasks); err != nil {
		return nil, fmt.Errorf("decoding tasks of %s: %w", projectID, err)
	}
	sortSnapshot(tasks)
	return tasks, nil
}

func (s *MongoStore) SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	first, err := s.list(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	onSnapshot(first)
	go s.follow(subCtx, projectID, first, onSnapshot, onError)

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *MongoStore) follow(ctx context.Context, projectID string, last []models.Task, onSnapshot func([]models.Task), onError func(error)) {
	list := func(ctx context.Context) ([]models.Task, error) { return s.list(ctx, projectID) }

	stream, err := s.tasks.Watch(ctx, mongo.Pipeline{})
	if err != nil {
		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).WithField("project_id", projectID).Debug("change streams unavailable, polling")
		pollFeed(ctx, s.poll, last, list, onSnapshot, onError)
		return
	}
	defer stream.Close(context.WithoutCancel(ctx))

	for stream.Next(ctx) {
		tasks, err := list(ctx)
		if err != nil {
			if ctx.Err() != nil {
				return
			}
			onError(err)
			continue
		}
		if reflect.DeepEqual(tasks, last) {
			continue
		}
		last = tasks
		onSnapshot(tasks)
	}
	if err := stream.Err(); err != nil && ctx.Err() == nil && onError != nil {
		onError(fmt.Errorf("task change stream: %w", err))
	}
}

func (s *MongoStore) CreateTask(ctx context.Context, draft models.TaskDraft) (string, error) {
	if draft.ProjectID == "" {
		return "", fmt.Errorf("creating task: project ID must not be empty")
	}
	t := draft.NewTask(s.newID(), s.now())
	if _, err := s.tasks.InsertOne(ctx, t); err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}
	return t.ID, nil
}

// patchUpdate translates a patch into a $set/$unset document. updatedAt is
// always stamped by the store.
func patchUpdate(p models.TaskPatch, now time.Time) bson.M {
	set := bson.M{"updatedAt": now}
	unset := bson.M{}
	if p.Title != nil {
		set["title"] = *p.Title
	}
	if p.Description != nil {
		set["description"] = *p.Description
	}
	if p.Status != nil {
		set["status"] = *p.Status
	}
	if p.Order != nil {
		set["order"] = *p.Order
	}
	if p.Priority != nil {
		set["priority"] = *p.Priority
	}
	if p.Type != nil {
		set["type"] = *p.Type
	}
	for key, v := range map[string]*string{
		"assigneeId":     p.AssigneeID,
		"assigneeName":   p.AssigneeName,
		"assigneeAvatar": p.AssigneeAvatar,
	} {
		switch {
		case v == nil:
		case *v == "":
			unset[key] = ""
		default:
			set[key] = *v
		}
	}
	if p.ClearDueDate {
		unset["dueDate"] = ""
	} else if p.DueDate != nil {
		set["dueDate"] = *p.DueDate
	}
	if p.EstimatedHours != nil {
		set["estimatedHours"] = *p.EstimatedHours
	}
	if p.Tags != nil {
		set["tags"] = p.Tags
	}
	if p.Subtasks != nil {
		set["subtasks"] = p.Subtasks
	}
	if p.Watchers != nil {
		set["watchers"] = p.Watchers
	}
	update := bson.M{"$set": set}
	if len(unset) > 0 {
		update["$unset"] = unset
	}
	return update
}

func (s *MongoStore) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) error {
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, patchUpdate(patch, s.now()))
	if err != nil {
		return fmt.Errorf("updating task %s: %w", taskID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("updating task %s: %w", taskID, models.ErrTaskNotFound)
	}
	return nil
}

func (s *MongoStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, order float64) error {
	return s.UpdateTask(ctx, taskID, models.MovePatch(status, order))
}

func (s *MongoStore) DeleteTask(ctx context.Context, taskID string) error {
	res, err := s.tasks.DeleteOne(ctx, bson.M{"_id": taskID})
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}
	if res.DeletedCount == 0 {
		return fmt.Errorf("deleting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	if _, err := s.comments.DeleteMany(ctx, bson.M{"taskId": taskID}); err != nil {
		s.log.WithError(err).WithField("task_id", taskID).Warn("deleting comments of removed task")
	}
	return nil
}

func (s *MongoStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	var t models.Task
	err := s.tasks.FindOne(ctx, bson.M{"_id": taskID}).Decode(&t)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return nil, fmt.Errorf("getting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	return &t, nil
}

func (s *MongoStore) GetNextOrder(ctx context.Context, projectID string, status models.TaskStatus) (float64, error) {
	opts := options.FindOne().SetSort(bson.D{{Key: "order", Value: -1}})
	var last models.Task
	err := s.tasks.FindOne(ctx, bson.M{"projectId": projectID, "status": status}, opts).Decode(&last)
	if errors.Is(err, mongo.ErrNoDocuments) {
		return 1, nil
	}
	if err != nil {
		return 0, fmt.Errorf("computing next order: %w", err)
	}
	return last.Order + 1, nil
}

func (s *MongoStore) taskExists(ctx context.Context, taskID string) (bool, error) {
	n, err := s.tasks.CountDocuments(ctx, bson.M{"_id": taskID}, options.Count().SetLimit(1))
	if err != nil {
		return false, err
	}
	return n > 0, nil
}

func (s *MongoStore) AddComment(ctx context.Context, taskID string, draft models.CommentDraft) (string, error) {
	ok, err := s.taskExists(ctx, taskID)
	if err != nil {
		return "", fmt.Errorf("adding comment to %s: %w", taskID, err)
	}
	if !ok {
		return "", fmt.Errorf("adding comment to %s: %w", taskID, models.ErrTaskNotFound)
	}
	c := draft.NewComment(s.newID(), taskID, s.now())
	if _, err := s.comments.InsertOne(ctx, c); err != nil {
		return "", fmt.Errorf("adding comment to %s: %w", taskID, err)
	}
	return c.ID, nil
}

func (s *MongoStore) GetTaskComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	ok, err := s.taskExists(ctx, taskID)
	if err != nil {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, err)
	}
	if !ok {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, models.ErrTaskNotFound)
	}
	opts := options.Find().SetSort(bson.D{{Key: "createdAt", Value: 1}})
	cursor, err := s.comments.Find(ctx, bson.M{"taskId": taskID}, opts)
	if err != nil {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, err)
	}
	defer cursor.Close(ctx)
	var comments []models.Comment
	if err := cursor.All(ctx, &comments); err != nil {
		return nil, fmt.Errorf("decoding comments of %s: %w", taskID, err)
	}
	return comments, nil
}

func (s *MongoStore) AddSubtask(ctx context.Context, taskID string, draft models.SubtaskDraft) error {
	sub := models.Subtask{ID: draft.ID, Title: draft.Title}
	res, err := s.tasks.UpdateOne(ctx, bson.M{"_id": taskID}, bson.M{"$push": bson.M{"subtasks": sub}})
	if err != nil {
		return fmt.Errorf("adding subtask to %s: %w", taskID, err)
	}
	if res.MatchedCount == 0 {
		return fmt.Errorf("adding subtask to %s: %w", taskID, models.ErrTaskNotFound)
	}
	return nil
}

func (s *MongoStore) ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool, _ string) error {
	res, err := s.tasks.UpdateOne(ctx,
		bson.M{"_id": taskID, "subtasks.id": subtaskID},
		bson.M{"$set": bson.M{"subtasks.$.completed": completed}},
	)
	if err != nil {
		return fmt.Errorf("toggling subtask %s: %w", subtaskID, err)
	}
	if res.MatchedCount > 0 {
		return nil
	}
	ok, err := s.taskExists(ctx, taskID)
	if err != nil {
		return fmt.Errorf("toggling subtask %s: %w", subtaskID, err)
	}
	if !ok {
		return fmt.Errorf("toggling subtask of %s: %w", taskID, models.ErrTaskNotFound)
	}
	return fmt.Errorf("toggling subtask %s: %w", subtaskID, models.ErrSubtaskNotFound)
}
