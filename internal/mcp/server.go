// Package mcp provides an MCP (Model Context Protocol) server that exposes
// the task board as MCP tools for AI coding assistants.
package mcp

import (
	"context"
	"fmt"
	"time"

	gomcp "github.com/modelcontextprotocol/go-sdk/mcp"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// Server wraps board sessions and exposes them as MCP tools.
type Server struct {
	server         *gomcp.Server
	sessions       *core.SessionManager
	metricsCalc    observability.MetricsCalculator
	alertEngine    observability.AlertEngine
	defaultProject string
}

// NewServer creates a new MCP server over sessions. Tools that omit
// project_id act on defaultProject. metricsCalc and alertEngine may be nil if
// the event log is disabled.
func NewServer(sessions *core.SessionManager, metricsCalc observability.MetricsCalculator, alertEngine observability.AlertEngine, defaultProject, version string) *Server {
	if version == "" {
		version = "dev"
	}

	s := &Server{
		sessions:       sessions,
		metricsCalc:    metricsCalc,
		alertEngine:    alertEngine,
		defaultProject: defaultProject,
	}

	s.server = gomcp.NewServer(
		&gomcp.Implementation{Name: "taskboard", Version: version},
		nil,
	)

	s.registerTools()

	return s
}

// Run starts the MCP server on stdio, blocking until the client disconnects
// or the context is cancelled.
func (s *Server) Run(ctx context.Context) error {
	return s.server.Run(ctx, &gomcp.StdioTransport{})
}

// MCPServer returns the underlying mcp.Server for testing purposes.
func (s *Server) MCPServer() *gomcp.Server {
	return s.server
}

// --- Tool input/output types ---

type showBoardInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	Query     string `json:"query,omitempty" jsonschema:"case-insensitive search over title and description"`
	Priority  string `json:"priority,omitempty" jsonschema:"priority filter: all, low, medium, high or urgent"`
	Assignee  string `json:"assignee,omitempty" jsonschema:"assignee filter: all, unassigned or a user ID"`
}

type taskOutput struct {
	ID          string   `json:"id"`
	Title       string   `json:"title"`
	Description string   `json:"description,omitempty"`
	Status      string   `json:"status"`
	Order       float64  `json:"order"`
	Priority    string   `json:"priority"`
	Type        string   `json:"type"`
	Assignee    string   `json:"assignee,omitempty"`
	AssigneeID  string   `json:"assignee_id,omitempty"`
	DueDate     string   `json:"due_date,omitempty"`
	Tags        []string `json:"tags,omitempty"`
	Subtasks    string   `json:"subtasks,omitempty"`
	Pending     bool     `json:"pending,omitempty"`
	Updated     string   `json:"updated"`
}

type columnOutput struct {
	Status string       `json:"status"`
	Tasks  []taskOutput `json:"tasks"`
}

type boardOutput struct {
	ProjectID string         `json:"project_id"`
	State     string         `json:"state"`
	Error     string         `json:"error,omitempty"`
	Columns   []columnOutput `json:"columns"`
	Count     int            `json:"count"`
}

type getTaskInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID    string `json:"task_id" jsonschema:"the task identifier"`
}

type createTaskInput struct {
	ProjectID    string   `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	Title        string   `json:"title" jsonschema:"task title"`
	Description  string   `json:"description,omitempty"`
	Status       string   `json:"status,omitempty" jsonschema:"todo, in_progress, review, done or blocked; defaults to todo"`
	Priority     string   `json:"priority,omitempty" jsonschema:"low, medium, high or urgent; defaults to medium"`
	Type         string   `json:"type,omitempty" jsonschema:"task, feature, bug, improvement or documentation; defaults to task"`
	Tags         []string `json:"tags,omitempty"`
	ReporterID   string   `json:"reporter_id,omitempty"`
	ReporterName string   `json:"reporter_name,omitempty"`
}

type moveTaskInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID    string `json:"task_id" jsonschema:"the task identifier"`
	Status    string `json:"status" jsonschema:"destination bucket: todo, in_progress, review, done or blocked"`
	Index     *int   `json:"index,omitempty" jsonschema:"zero-based position in the destination bucket; omit to append"`
}

type updateTaskInput struct {
	ProjectID   string   `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID      string   `json:"task_id" jsonschema:"the task identifier"`
	Title       *string  `json:"title,omitempty"`
	Description *string  `json:"description,omitempty"`
	Priority    *string  `json:"priority,omitempty"`
	Type        *string  `json:"type,omitempty"`
	Tags        []string `json:"tags,omitempty"`
}

type assignTaskInput struct {
	ProjectID    string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID       string `json:"task_id" jsonschema:"the task identifier"`
	AssigneeID   string `json:"assignee_id,omitempty" jsonschema:"user ID; omit to unassign"`
	AssigneeName string `json:"assignee_name,omitempty"`
}

type messageOutput struct {
	Message string `json:"message"`
}

type addSubtaskInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID    string `json:"task_id" jsonschema:"the parent task identifier"`
	Title     string `json:"title" jsonschema:"subtask title"`
}

type subtaskOutput struct {
	ID        string `json:"id"`
	Title     string `json:"title"`
	Completed bool   `json:"completed"`
}

type toggleSubtaskInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID    string `json:"task_id" jsonschema:"the parent task identifier"`
	SubtaskID string `json:"subtask_id" jsonschema:"the subtask identifier"`
	Completed bool   `json:"completed" jsonschema:"the new completion state"`
	ActorID   string `json:"actor_id,omitempty" jsonschema:"user performing the change, recorded with the event"`
}

type addCommentInput struct {
	ProjectID string   `json:"project_id,omitempty" jsonschema:"the project board; defaults to the configured project"`
	TaskID    string   `json:"task_id" jsonschema:"the task identifier"`
	UserID    string   `json:"user_id" jsonschema:"author user ID"`
	UserName  string   `json:"user_name,omitempty"`
	Content   string   `json:"content" jsonschema:"comment text"`
	Mentions  []string `json:"mentions,omitempty" jsonschema:"user IDs to notify"`
}

type commentOutput struct {
	ID       string   `json:"id"`
	UserID   string   `json:"user_id"`
	UserName string   `json:"user_name,omitempty"`
	Content  string   `json:"content"`
	Mentions []string `json:"mentions,omitempty"`
	Created  string   `json:"created"`
}

type listCommentsOutput struct {
	Comments []commentOutput `json:"comments"`
	Count    int             `json:"count"`
}

type getMetricsInput struct {
	Since     string `json:"since,omitempty" jsonschema:"time window for metrics (e.g. 7d, 30d, 24h). Defaults to 7d."`
	ProjectID string `json:"project_id,omitempty" jsonschema:"limit metrics to one project; omit for all projects"`
}

type metricsOutput struct {
	TasksCreated       int            `json:"tasks_created"`
	TasksMoved         int            `json:"tasks_moved"`
	TasksCompleted     int            `json:"tasks_completed"`
	TasksDeleted       int            `json:"tasks_deleted"`
	Rollbacks          int            `json:"rollbacks"`
	RollbackRate       float64        `json:"rollback_rate"`
	CommentsAdded      int            `json:"comments_added"`
	SubtasksCompleted  int            `json:"subtasks_completed"`
	SubscriptionErrors int            `json:"subscription_errors"`
	MovesByDestination map[string]int `json:"moves_by_destination"`
	TasksByType        map[string]int `json:"tasks_by_type"`
	EventCount         int            `json:"event_count"`
	OldestEvent        string         `json:"oldest_event,omitempty"`
	NewestEvent        string         `json:"newest_event,omitempty"`
}

type getAlertsInput struct {
	ProjectID string `json:"project_id,omitempty" jsonschema:"limit alerts to one project; omit for all projects"`
}

type alertOutput struct {
	ID          string `json:"id"`
	Condition   string `json:"condition"`
	Severity    string `json:"severity"`
	ProjectID   string `json:"project_id"`
	TaskID      string `json:"task_id,omitempty"`
	Message     string `json:"message"`
	TriggeredAt string `json:"triggered_at"`
}

type getAlertsOutput struct {
	Alerts []alertOutput `json:"alerts"`
	Count  int           `json:"count"`
}

// --- Tool registration ---

func (s *Server) registerTools() {
	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "board_show",
		Description: "Show a project board as five columns (todo, in_progress, review, done, blocked) with optional search, priority and assignee filters.",
	}, s.handleShowBoard)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_get",
		Description: "Get one task by ID.",
	}, s.handleGetTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_create",
		Description: "Create a task at the end of its bucket. Returns the created task.",
	}, s.handleCreateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_move",
		Description: "Move a task to a bucket and position. Other tasks keep their relative order.",
	}, s.handleMoveTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_update",
		Description: "Edit title, description, priority, type or tags of a task.",
	}, s.handleUpdateTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_assign",
		Description: "Assign a task to a user, or unassign it when assignee_id is omitted.",
	}, s.handleAssignTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "task_delete",
		Description: "Delete a task and its comments.",
	}, s.handleDeleteTask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "subtask_add",
		Description: "Append a subtask to a task's checklist.",
	}, s.handleAddSubtask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "subtask_toggle",
		Description: "Mark a subtask completed or not completed.",
	}, s.handleToggleSubtask)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "comment_add",
		Description: "Add a comment to a task.",
	}, s.handleAddComment)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "comment_list",
		Description: "List a task's comments, oldest first.",
	}, s.handleListComments)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_metrics",
		Description: "Get aggregated board metrics from the event log: created, moved, completed and rolled back tasks.",
	}, s.handleGetMetrics)

	gomcp.AddTool(s.server, &gomcp.Tool{
		Name:        "get_alerts",
		Description: "Evaluate and return active alerts: tasks blocked or in review too long, stale in-progress tasks and oversized todo columns.",
	}, s.handleGetAlerts)
}

// --- Tool handlers ---

func (s *Server) handleShowBoard(ctx context.Context, _ *gomcp.CallToolRequest, input showBoardInput) (*gomcp.CallToolResult, boardOutput, error) {
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, boardOutput{}, nil
	}
	prio, err := core.ParsePriorityFilter(input.Priority)
	if err != nil {
		return errorResult(err.Error()), boardOutput{}, nil
	}
	c := core.Criteria{
		SearchQuery: input.Query,
		Priority:    prio,
		Assignee:    core.ParseAssigneeFilter(input.Assignee),
	}

	b := sess.Board
	out := boardOutput{
		ProjectID: b.ProjectID(),
		State:     string(b.State()),
		Columns:   make([]columnOutput, len(models.Statuses)),
	}
	if err := b.Err(); err != nil {
		out.Error = err.Error()
	}
	for i, st := range models.Statuses {
		out.Columns[i] = columnOutput{Status: string(st), Tasks: []taskOutput{}}
	}
	for _, t := range core.FilterTasks(b.Tasks(), c) {
		i := t.Status.Column()
		if i >= len(out.Columns) {
			continue
		}
		to := taskToOutput(t)
		to.Pending = b.IsPending(t.ID)
		out.Columns[i].Tasks = append(out.Columns[i].Tasks, to)
		out.Count++
	}
	return nil, out, nil
}

func (s *Server) handleGetTask(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, taskOutput{}, nil
	}
	task, ok := sess.Board.Task(input.TaskID)
	if !ok {
		return errorResult(fmt.Sprintf("task %s not found", input.TaskID)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleCreateTask(ctx context.Context, _ *gomcp.CallToolRequest, input createTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, taskOutput{}, nil
	}
	task, err := sess.Board.Create(ctx, models.TaskDraft{
		Title:        input.Title,
		Description:  input.Description,
		Status:       models.TaskStatus(input.Status),
		Priority:     models.Priority(input.Priority),
		Type:         models.TaskType(input.Type),
		Tags:         input.Tags,
		ReporterID:   input.ReporterID,
		ReporterName: input.ReporterName,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("creating task: %s", err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleMoveTask(ctx context.Context, _ *gomcp.CallToolRequest, input moveTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, taskOutput{}, nil
	}
	index := -1
	if input.Index != nil {
		index = *input.Index
	}
	task, err := sess.Board.Move(ctx, input.TaskID, models.TaskStatus(input.Status), index)
	if err != nil {
		return errorResult(fmt.Sprintf("moving task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleUpdateTask(ctx context.Context, _ *gomcp.CallToolRequest, input updateTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, taskOutput{}, nil
	}
	patch := models.TaskPatch{
		Title:       input.Title,
		Description: input.Description,
		Tags:        input.Tags,
	}
	if input.Priority != nil {
		p := models.Priority(*input.Priority)
		patch.Priority = &p
	}
	if input.Type != nil {
		t := models.TaskType(*input.Type)
		patch.Type = &t
	}
	task, err := sess.Board.Update(ctx, input.TaskID, patch)
	if err != nil {
		return errorResult(fmt.Sprintf("updating task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleAssignTask(ctx context.Context, _ *gomcp.CallToolRequest, input assignTaskInput) (*gomcp.CallToolResult, taskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), taskOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, taskOutput{}, nil
	}
	var a *models.Assignee
	if input.AssigneeID != "" {
		a = &models.Assignee{ID: input.AssigneeID, Name: input.AssigneeName}
	}
	task, err := sess.Board.Assign(ctx, input.TaskID, a)
	if err != nil {
		return errorResult(fmt.Sprintf("assigning task %s: %s", input.TaskID, err)), taskOutput{}, nil
	}
	return nil, taskToOutput(task), nil
}

func (s *Server) handleDeleteTask(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), messageOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, messageOutput{}, nil
	}
	if err := sess.Board.Remove(ctx, input.TaskID); err != nil {
		return errorResult(fmt.Sprintf("deleting task %s: %s", input.TaskID, err)), messageOutput{}, nil
	}
	return nil, messageOutput{Message: fmt.Sprintf("task %s deleted", input.TaskID)}, nil
}

func (s *Server) handleAddSubtask(ctx context.Context, _ *gomcp.CallToolRequest, input addSubtaskInput) (*gomcp.CallToolResult, subtaskOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), subtaskOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, subtaskOutput{}, nil
	}
	sub, err := sess.Detail.AddSubtask(ctx, input.TaskID, input.Title)
	if err != nil {
		return errorResult(fmt.Sprintf("adding subtask to %s: %s", input.TaskID, err)), subtaskOutput{}, nil
	}
	return nil, subtaskOutput{ID: sub.ID, Title: sub.Title, Completed: sub.Completed}, nil
}

func (s *Server) handleToggleSubtask(ctx context.Context, _ *gomcp.CallToolRequest, input toggleSubtaskInput) (*gomcp.CallToolResult, messageOutput, error) {
	if input.TaskID == "" || input.SubtaskID == "" {
		return errorResult("task_id and subtask_id are required"), messageOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, messageOutput{}, nil
	}
	if err := sess.Detail.ToggleSubtask(ctx, input.TaskID, input.SubtaskID, input.Completed, input.ActorID); err != nil {
		return errorResult(fmt.Sprintf("toggling subtask %s: %s", input.SubtaskID, err)), messageOutput{}, nil
	}
	state := "not completed"
	if input.Completed {
		state = "completed"
	}
	return nil, messageOutput{Message: fmt.Sprintf("subtask %s marked %s", input.SubtaskID, state)}, nil
}

func (s *Server) handleAddComment(ctx context.Context, _ *gomcp.CallToolRequest, input addCommentInput) (*gomcp.CallToolResult, commentOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), commentOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, commentOutput{}, nil
	}
	c, err := sess.Detail.AddComment(ctx, input.TaskID, models.CommentDraft{
		UserID:   input.UserID,
		UserName: input.UserName,
		Content:  input.Content,
		Mentions: input.Mentions,
	})
	if err != nil {
		return errorResult(fmt.Sprintf("adding comment to %s: %s", input.TaskID, err)), commentOutput{}, nil
	}
	return nil, commentToOutput(c), nil
}

func (s *Server) handleListComments(ctx context.Context, _ *gomcp.CallToolRequest, input getTaskInput) (*gomcp.CallToolResult, listCommentsOutput, error) {
	if input.TaskID == "" {
		return errorResult("task_id is required"), listCommentsOutput{}, nil
	}
	sess, res := s.open(ctx, input.ProjectID)
	if res != nil {
		return res, listCommentsOutput{}, nil
	}
	comments, err := sess.Detail.Comments(ctx, input.TaskID)
	if err != nil {
		return errorResult(fmt.Sprintf("listing comments of %s: %s", input.TaskID, err)), listCommentsOutput{}, nil
	}
	out := listCommentsOutput{
		Comments: make([]commentOutput, len(comments)),
		Count:    len(comments),
	}
	for i, c := range comments {
		out.Comments[i] = commentToOutput(c)
	}
	return nil, out, nil
}

func (s *Server) handleGetMetrics(_ context.Context, _ *gomcp.CallToolRequest, input getMetricsInput) (*gomcp.CallToolResult, metricsOutput, error) {
	if s.metricsCalc == nil {
		return errorResult("metrics calculator not available (event log may be disabled)"), emptyMetricsOutput(), nil
	}

	sinceStr := input.Since
	if sinceStr == "" {
		sinceStr = "7d"
	}

	sinceTime, err := parseSince(sinceStr)
	if err != nil {
		return errorResult(fmt.Sprintf("parsing since duration: %s", err)), emptyMetricsOutput(), nil
	}

	metrics, err := s.metricsCalc.Calculate(sinceTime, input.ProjectID)
	if err != nil {
		return errorResult(fmt.Sprintf("calculating metrics: %s", err)), emptyMetricsOutput(), nil
	}

	out := metricsOutput{
		TasksCreated:       metrics.TasksCreated,
		TasksMoved:         metrics.TasksMoved,
		TasksCompleted:     metrics.TasksCompleted,
		TasksDeleted:       metrics.TasksDeleted,
		Rollbacks:          metrics.Rollbacks,
		RollbackRate:       metrics.RollbackRate(),
		CommentsAdded:      metrics.CommentsAdded,
		SubtasksCompleted:  metrics.SubtasksCompleted,
		SubscriptionErrors: metrics.SubscriptionErrors,
		MovesByDestination: metrics.MovesByDestination,
		TasksByType:        metrics.TasksByType,
		EventCount:         metrics.EventCount,
	}
	if metrics.OldestEvent != nil {
		out.OldestEvent = metrics.OldestEvent.Format(time.RFC3339)
	}
	if metrics.NewestEvent != nil {
		out.NewestEvent = metrics.NewestEvent.Format(time.RFC3339)
	}

	return nil, out, nil
}

func (s *Server) handleGetAlerts(_ context.Context, _ *gomcp.CallToolRequest, input getAlertsInput) (*gomcp.CallToolResult, getAlertsOutput, error) {
	out := getAlertsOutput{Alerts: []alertOutput{}}
	if s.alertEngine == nil {
		return errorResult("alert engine not available (event log may be disabled)"), out, nil
	}

	alerts, err := s.alertEngine.Evaluate(input.ProjectID)
	if err != nil {
		return errorResult(fmt.Sprintf("evaluating alerts: %s", err)), out, nil
	}

	for _, a := range alerts {
		out.Alerts = append(out.Alerts, alertOutput{
			ID:          a.ID,
			Condition:   a.Condition,
			Severity:    string(a.Severity),
			ProjectID:   a.ProjectID,
			TaskID:      a.TaskID,
			Message:     a.Message,
			TriggeredAt: a.TriggeredAt.Format(time.RFC3339),
		})
	}
	out.Count = len(out.Alerts)
	return nil, out, nil
}

// --- Helpers ---

// open returns the session for the requested project, or an error result.
func (s *Server) open(ctx context.Context, project string) (*core.Session, *gomcp.CallToolResult) {
	if project == "" {
		project = s.defaultProject
	}
	sess, err := s.sessions.Open(ctx, project)
	if err != nil {
		return nil, errorResult(fmt.Sprintf("opening board %s: %s", project, err))
	}
	return sess, nil
}

func taskToOutput(t models.Task) taskOutput {
	out := taskOutput{
		ID:          t.ID,
		Title:       t.Title,
		Description: t.Description,
		Status:      string(t.Status),
		Order:       t.Order,
		Priority:    string(t.Priority),
		Type:        string(t.Type),
		Assignee:    t.AssigneeName,
		AssigneeID:  t.AssigneeID,
		Tags:        t.Tags,
		Updated:     t.UpdatedAt.Format(time.RFC3339),
	}
	if t.DueDate != nil {
		out.DueDate = t.DueDate.Format(time.DateOnly)
	}
	if done, total := t.SubtaskProgress(); total > 0 {
		out.Subtasks = fmt.Sprintf("%d/%d", done, total)
	}
	return out
}

func commentToOutput(c models.Comment) commentOutput {
	return commentOutput{
		ID:       c.ID,
		UserID:   c.UserID,
		UserName: c.UserName,
		Content:  c.Content,
		Mentions: c.Mentions,
		Created:  c.CreatedAt.Format(time.RFC3339),
	}
}

func emptyMetricsOutput() metricsOutput {
	return metricsOutput{
		MovesByDestination: make(map[string]int),
		TasksByType:        make(map[string]int),
	}
}

func errorResult(msg string) *gomcp.CallToolResult {
	return &gomcp.CallToolResult{
		Content: []gomcp.Content{&gomcp.TextContent{Text: msg}},
		IsError: true,
	}
}

// parseSince parses a human-friendly duration string like "7d", "30d", or "24h"
// into the corresponding time in the past.
func parseSince(s string) (time.Time, error) {
	now := time.Now().UTC()

	if len(s) < 2 {
		return time.Time{}, fmt.Errorf("invalid duration %q", s)
	}

	suffix := s[len(s)-1]
	numStr := s[:len(s)-1]
	var num int
	if _, err := fmt.Sscanf(numStr, "%d", &num); err != nil {
		return time.Time{}, fmt.Errorf("invalid duration %q: %w", s, err)
	}

	switch suffix {
	case 'd':
		return now.AddDate(0, 0, -num), nil
	case 'h':
		return now.Add(-time.Duration(num) * time.Hour), nil
	default:
		return time.Time{}, fmt.Errorf("unsupported duration suffix %q (use d or h)", string(suffix))
	}
}
