package storage

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/neo4j/neo4j-go-driver/v5/neo4j"
	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/logging"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Neo4jStore keeps each task as a (:Task) node and each comment as a
// (:Comment)-[:ON]->(:Task) node. The node carries the indexed fields
// (id, projectId, status, order) and the full document as a JSON "data"
// property. Live snapshots are produced by polling.
type Neo4jStore struct {
	driver   neo4j.DriverWithContext
	database string
	poll     time.Duration
	log      logrus.FieldLogger
	newID    func() string
	now      func() time.Time
}

// NewNeo4jStore opens a driver for cfg and verifies connectivity.
func NewNeo4jStore(ctx context.Context, cfg models.Neo4jConfig, poll time.Duration, log logrus.FieldLogger) (*Neo4jStore, error) {
	if log == nil {
		log = logging.Discard()
	}
	driver, err := neo4j.NewDriverWithContext(cfg.URI, neo4j.BasicAuth(cfg.Username, cfg.Password, ""))
	if err != nil {
		return nil, fmt.Errorf("creating neo4j driver: %w", err)
	}
	if err := driver.VerifyConnectivity(ctx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, fmt.Errorf("connecting to neo4j: %w", err)
	}
	s := &Neo4jStore{
		driver:   driver,
		database: cfg.Database,
		poll:     poll,
		log:      log.WithField("store", "neo4j"),
		newID:    uuid.NewString,
		now:      func() time.Time { return time.Now().UTC() },
	}
	if err := s.ensureConstraints(ctx); err != nil {
		_ = driver.Close(context.WithoutCancel(ctx))
		return nil, err
	}
	s.log.WithField("uri", cfg.URI).Info("connected to neo4j")
	return s, nil
}

func (s *Neo4jStore) session(ctx context.Context, mode neo4j.AccessMode) neo4j.SessionWithContext {
	return s.driver.NewSession(ctx, neo4j.SessionConfig{AccessMode: mode, DatabaseName: s.database})
}

func (s *Neo4jStore) ensureConstraints(ctx context.Context) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	for _, q := range []string{
		"CREATE CONSTRAINT task_id IF NOT EXISTS FOR (t:Task) REQUIRE t.id IS UNIQUE",
		"CREATE INDEX task_project IF NOT EXISTS FOR (t:Task) ON (t.projectId)",
	} {
		_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
			res, err := tx.Run(ctx, q, nil)
			if err != nil {
				return nil, err
			}
			return res.Consume(ctx)
		})
		if err != nil {
			return fmt.Errorf("creating neo4j schema: %w", err)
		}
	}
	return nil
}

// Close releases the driver.
func (s *Neo4jStore) Close(ctx context.Context) error {
	return s.driver.Close(ctx)
}

func encodeTask(t models.Task) (map[string]any, error) {
	data, err := json.Marshal(t)
	if err != nil {
		return nil, fmt.Errorf("encoding task %s: %w", t.ID, err)
	}
	return map[string]any{
		"id":        t.ID,
		"projectId": t.ProjectID,
		"status":    string(t.Status),
		"order":     t.Order,
		"data":      string(data),
	}, nil
}

func decodeTask(record *neo4j.Record) (models.Task, error) {
	raw, _ := record.Get("data")
	data, ok := raw.(string)
	if !ok {
		return models.Task{}, fmt.Errorf("reading task data: unexpected %T", raw)
	}
	var t models.Task
	if err := json.Unmarshal([]byte(data), &t); err != nil {
		return models.Task{}, fmt.Errorf("decoding task: %w", err)
	}
	return t, nil
}

func (s *Neo4jStore) list(ctx context.Context, projectID string) ([]models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {projectId: $projectId}) RETURN t.data AS data",
			map[string]any{"projectId": projectID},
		)
		if err != nil {
			return nil, err
		}
		var tasks []models.Task
		for res.Next(ctx) {
			t, err := decodeTask(res.Record())
			if err != nil {
				return nil, err
			}
			tasks = append(tasks, t)
		}
		return tasks, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing tasks of %s: %w", projectID, err)
	}
	tasks, _ := result.([]models.Task)
	sortSnapshot(tasks)
	return tasks, nil
}

func (s *Neo4jStore) SubscribeToProjectTasks(ctx context.Context, projectID string, onSnapshot func([]models.Task), onError func(error)) (func(), error) {
	first, err := s.list(ctx, projectID)
	if err != nil {
		return nil, fmt.Errorf("subscribing to %s: %w", projectID, err)
	}
	subCtx, cancel := context.WithCancel(context.WithoutCancel(ctx))
	onSnapshot(first)
	go pollFeed(subCtx, s.poll, first,
		func(ctx context.Context) ([]models.Task, error) { return s.list(ctx, projectID) },
		onSnapshot, onError)

	var once sync.Once
	return func() { once.Do(cancel) }, nil
}

func (s *Neo4jStore) CreateTask(ctx context.Context, draft models.TaskDraft) (string, error) {
	if draft.ProjectID == "" {
		return "", fmt.Errorf("creating task: project ID must not be empty")
	}
	t := draft.NewTask(s.newID(), s.now())
	props, err := encodeTask(t)
	if err != nil {
		return "", err
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)
	_, err = session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"CREATE (t:Task {id: $id, projectId: $projectId, status: $status, order: $order, data: $data})",
			props,
		)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	if err != nil {
		return "", fmt.Errorf("creating task: %w", err)
	}
	return t.ID, nil
}

// modify loads a task inside a write transaction, applies fn through a
// single-task BoardFile and writes the result back.
func (s *Neo4jStore) modify(ctx context.Context, taskID string, fn func(bf *BoardFile) (models.Task, error)) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	_, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) RETURN t.data AS data", map[string]any{"id": taskID})
		if err != nil {
			return nil, err
		}
		bf := newBoardFile()
		if res.Next(ctx) {
			t, err := decodeTask(res.Record())
			if err != nil {
				return nil, err
			}
			bf.Tasks[t.ID] = t
		}
		if err := res.Err(); err != nil {
			return nil, err
		}

		updated, err := fn(&bf)
		if err != nil {
			return nil, err
		}
		props, err := encodeTask(updated)
		if err != nil {
			return nil, err
		}
		res, err = tx.Run(ctx,
			"MATCH (t:Task {id: $id}) SET t.status = $status, t.order = $order, t.data = $data",
			props,
		)
		if err != nil {
			return nil, err
		}
		return res.Consume(ctx)
	})
	return err
}

func (s *Neo4jStore) UpdateTask(ctx context.Context, taskID string, patch models.TaskPatch) error {
	return s.modify(ctx, taskID, func(bf *BoardFile) (models.Task, error) {
		return bf.updateTask(taskID, patch, s.now())
	})
}

func (s *Neo4jStore) UpdateTaskStatus(ctx context.Context, taskID string, status models.TaskStatus, order float64) error {
	return s.modify(ctx, taskID, func(bf *BoardFile) (models.Task, error) {
		return bf.updateTaskStatus(taskID, status, order, s.now())
	})
}

func (s *Neo4jStore) DeleteTask(ctx context.Context, taskID string) error {
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	deleted, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {id: $id}) "+
				"OPTIONAL MATCH (c:Comment)-[:ON]->(t) "+
				"DETACH DELETE c, t",
			map[string]any{"id": taskID},
		)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesDeleted(), nil
	})
	if err != nil {
		return fmt.Errorf("deleting task %s: %w", taskID, err)
	}
	if n, _ := deleted.(int); n == 0 {
		return fmt.Errorf("deleting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	return nil
}

func (s *Neo4jStore) GetTask(ctx context.Context, taskID string) (*models.Task, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx, "MATCH (t:Task {id: $id}) RETURN t.data AS data", map[string]any{"id": taskID})
		if err != nil {
			return nil, err
		}
		if !res.Next(ctx) {
			return nil, res.Err()
		}
		t, err := decodeTask(res.Record())
		if err != nil {
			return nil, err
		}
		return &t, nil
	})
	if err != nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, err)
	}
	t, _ := result.(*models.Task)
	if t == nil {
		return nil, fmt.Errorf("getting task %s: %w", taskID, models.ErrTaskNotFound)
	}
	return t, nil
}

func (s *Neo4jStore) GetNextOrder(ctx context.Context, projectID string, status models.TaskStatus) (float64, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {projectId: $projectId, status: $status}) RETURN max(t.order) AS last",
			map[string]any{"projectId": projectID, "status": string(status)},
		)
		if err != nil {
			return nil, err
		}
		record, err := res.Single(ctx)
		if err != nil {
			return nil, err
		}
		last, _ := record.Get("last")
		return last, nil
	})
	if err != nil {
		return 0, fmt.Errorf("computing next order: %w", err)
	}
	last, ok := result.(float64)
	if !ok {
		return 1, nil
	}
	return last + 1, nil
}

func (s *Neo4jStore) AddComment(ctx context.Context, taskID string, draft models.CommentDraft) (string, error) {
	c := draft.NewComment(s.newID(), taskID, s.now())
	data, err := json.Marshal(c)
	if err != nil {
		return "", fmt.Errorf("encoding comment: %w", err)
	}
	session := s.session(ctx, neo4j.AccessModeWrite)
	defer session.Close(ctx)

	created, err := session.ExecuteWrite(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {id: $taskId}) "+
				"CREATE (c:Comment {id: $id, createdAt: $createdAt, data: $data})-[:ON]->(t)",
			map[string]any{
				"taskId":    taskID,
				"id":        c.ID,
				"createdAt": c.CreatedAt.UnixNano(),
				"data":      string(data),
			},
		)
		if err != nil {
			return nil, err
		}
		summary, err := res.Consume(ctx)
		if err != nil {
			return nil, err
		}
		return summary.Counters().NodesCreated(), nil
	})
	if err != nil {
		return "", fmt.Errorf("adding comment to %s: %w", taskID, err)
	}
	if n, _ := created.(int); n == 0 {
		return "", fmt.Errorf("adding comment to %s: %w", taskID, models.ErrTaskNotFound)
	}
	return c.ID, nil
}

func (s *Neo4jStore) GetTaskComments(ctx context.Context, taskID string) ([]models.Comment, error) {
	session := s.session(ctx, neo4j.AccessModeRead)
	defer session.Close(ctx)

	type listing struct {
		found    bool
		comments []models.Comment
	}
	result, err := session.ExecuteRead(ctx, func(tx neo4j.ManagedTransaction) (any, error) {
		res, err := tx.Run(ctx,
			"MATCH (t:Task {id: $id}) "+
				"OPTIONAL MATCH (c:Comment)-[:ON]->(t) "+
				"WITH c ORDER BY c.createdAt "+
				"RETURN c.data AS data",
			map[string]any{"id": taskID},
		)
		if err != nil {
			return nil, err
		}
		var out listing
		for res.Next(ctx) {
			out.found = true
			raw, _ := res.Record().Get("data")
			data, ok := raw.(string)
			if !ok {
				continue
			}
			var c models.Comment
			if err := json.Unmarshal([]byte(data), &c); err != nil {
				return nil, fmt.Errorf("decoding comment: %w", err)
			}
			out.comments = append(out.comments, c)
		}
		return out, res.Err()
	})
	if err != nil {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, err)
	}
	out, _ := result.(listing)
	if !out.found {
		return nil, fmt.Errorf("listing comments of %s: %w", taskID, models.ErrTaskNotFound)
	}
	return out.comments, nil
}

func (s *Neo4jStore) AddSubtask(ctx context.Context, taskID string, draft models.SubtaskDraft) error {
	return s.modify(ctx, taskID, func(bf *BoardFile) (models.Task, error) {
		return bf.addSubtask(taskID, draft)
	})
}

func (s *Neo4jStore) ToggleSubtask(ctx context.Context, taskID, subtaskID string, completed bool, _ string) error {
	return s.modify(ctx, taskID, func(bf *BoardFile) (models.Task, error) {
		return bf.toggleSubtask(taskID, subtaskID, completed)
	})
}
