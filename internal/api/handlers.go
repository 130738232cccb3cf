package api

import (
	"net/http"
	"time"

	"github.com/gorilla/mux"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

// boardResponse is the payload of GET /board and of every websocket frame.
type boardResponse struct {
	ProjectID string            `json:"projectId"`
	State     core.LoadState    `json:"state"`
	Error     string            `json:"error,omitempty"`
	Columns   []core.Column     `json:"columns"`
	Pending   []string          `json:"pending,omitempty"`
	Filter    *filterResponse   `json:"filter,omitempty"`
	Progress  map[string][2]int `json:"progress,omitempty"`
}

type filterResponse struct {
	Query    string `json:"query,omitempty"`
	Priority string `json:"priority"`
	Assignee string `json:"assignee"`
}

// criteriaFromQuery reads ?q=, ?priority= and ?assignee=.
func criteriaFromQuery(r *http.Request) (core.Criteria, error) {
	q := r.URL.Query()
	prio, err := core.ParsePriorityFilter(q.Get("priority"))
	if err != nil {
		return core.Criteria{}, err
	}
	return core.Criteria{
		SearchQuery: q.Get("q"),
		Priority:    prio,
		Assignee:    core.ParseAssigneeFilter(q.Get("assignee")),
	}, nil
}

func snapshot(b *core.Board, c core.Criteria) boardResponse {
	resp := boardResponse{
		ProjectID: b.ProjectID(),
		State:     b.State(),
		Progress:  make(map[string][2]int),
	}
	if err := b.Err(); err != nil {
		resp.Error = err.Error()
	}

	tasks := core.FilterTasks(b.Tasks(), c)
	cols := make([]core.Column, len(models.Statuses))
	for i, st := range models.Statuses {
		cols[i] = core.Column{Status: st, Tasks: []models.Task{}}
	}
	for _, t := range tasks {
		if i := t.Status.Column(); i < len(cols) {
			cols[i].Tasks = append(cols[i].Tasks, t)
		}
		if b.IsPending(t.ID) {
			resp.Pending = append(resp.Pending, t.ID)
		}
		if done, total := t.SubtaskProgress(); total > 0 {
			resp.Progress[t.ID] = [2]int{done, total}
		}
	}
	resp.Columns = cols
	if !c.IsZero() {
		resp.Filter = &filterResponse{
			Query:    c.SearchQuery,
			Priority: c.Priority.String(),
			Assignee: c.Assignee.String(),
		}
	}
	return resp
}

func (s *Server) handleHealth(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]any{
		"status":   "ok",
		"projects": s.sessions.Projects(),
	})
}

func (s *Server) handleMetrics(w http.ResponseWriter, r *http.Request) {
	if s.metrics == nil {
		writeJSON(w, http.StatusNotFound, errorBody{Error: "metrics are disabled"})
		return
	}
	window := 7 * 24 * time.Hour
	if raw := r.URL.Query().Get("since"); raw != "" {
		d, err := time.ParseDuration(raw)
		if err != nil || d <= 0 {
			s.writeError(w, &core.ValidationError{Field: "since", Message: "must be a positive duration"})
			return
		}
		window = d
	}
	m, err := s.metrics.Calculate(s.now().Add(-window), r.URL.Query().Get("project"))
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, m)
}

func (s *Server) handleBoard(w http.ResponseWriter, r *http.Request) {
	c, err := criteriaFromQuery(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, snapshot(sess.Board, c))
}

func (s *Server) handleCreateTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var draft models.TaskDraft
	if err := decodeBody(r, &draft); err != nil {
		s.writeError(w, err)
		return
	}
	draft.ProjectID = sess.Board.ProjectID()
	task, err := sess.Board.Create(r.Context(), draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, task)
}

func (s *Server) handleGetTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	id := mux.Vars(r)["taskID"]
	task, ok := sess.Board.Task(id)
	if !ok {
		s.writeError(w, &core.NotFoundError{Kind: "task", ID: id})
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleUpdateTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var patch models.TaskPatch
	if err := decodeBody(r, &patch); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := sess.Board.Update(r.Context(), mux.Vars(r)["taskID"], patch)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDeleteTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Board.Remove(r.Context(), mux.Vars(r)["taskID"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type moveRequest struct {
	Status models.TaskStatus `json:"status"`
	Index  int               `json:"index"`
}

func (s *Server) handleMoveTask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req moveRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := sess.Board.Move(r.Context(), mux.Vars(r)["taskID"], req.Status, req.Index)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

// handleAssign takes an Assignee object, or JSON null to clear.
func (s *Server) handleAssign(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var a *models.Assignee
	if err := decodeBody(r, &a); err != nil {
		s.writeError(w, err)
		return
	}
	task, err := sess.Board.Assign(r.Context(), mux.Vars(r)["taskID"], a)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

type subtaskRequest struct {
	Title string `json:"title"`
}

func (s *Server) handleAddSubtask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req subtaskRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	sub, err := sess.Detail.AddSubtask(r.Context(), mux.Vars(r)["taskID"], req.Title)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, sub)
}

type toggleRequest struct {
	Completed bool   `json:"completed"`
	ActorID   string `json:"actorId"`
}

func (s *Server) handleToggleSubtask(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req toggleRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	vars := mux.Vars(r)
	if err := sess.Detail.ToggleSubtask(r.Context(), vars["taskID"], vars["subtaskID"], req.Completed, req.ActorID); err != nil {
		s.writeError(w, err)
		return
	}
	task, _ := sess.Board.Task(vars["taskID"])
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleComments(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	comments, err := sess.Detail.Comments(r.Context(), mux.Vars(r)["taskID"])
	if err != nil {
		s.writeError(w, err)
		return
	}
	if comments == nil {
		comments = []models.Comment{}
	}
	writeJSON(w, http.StatusOK, comments)
}

func (s *Server) handleAddComment(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var draft models.CommentDraft
	if err := decodeBody(r, &draft); err != nil {
		s.writeError(w, err)
		return
	}
	c, err := sess.Detail.AddComment(r.Context(), mux.Vars(r)["taskID"], draft)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusCreated, c)
}

type dragTargetRequest struct {
	// Target is a droppable ID such as "column:done" or "task:abc".
	// Omitted or null on drag end means the task was dropped outside every
	// droppable.
	Target *string `json:"target"`
}

func (r dragTargetRequest) parse() (*core.DropTarget, error) {
	if r.Target == nil {
		return nil, nil
	}
	t, ok := core.ParseDropTarget(*r.Target)
	if !ok {
		return nil, &core.ValidationError{Field: "target", Message: "must be column:<status> or task:<id>"}
	}
	return &t, nil
}

func (s *Server) handleDragStart(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	if err := sess.Drag.OnDragStart(mux.Vars(r)["taskID"]); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDragOver(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req dragTargetRequest
	if err := decodeBody(r, &req); err != nil {
		s.writeError(w, err)
		return
	}
	target, err := req.parse()
	if err != nil {
		s.writeError(w, err)
		return
	}
	if target == nil {
		s.writeError(w, &core.ValidationError{Field: "target", Message: "must not be empty"})
		return
	}
	if err := sess.Drag.OnDragOver(mux.Vars(r)["taskID"], *target); err != nil {
		s.writeError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (s *Server) handleDragEnd(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	var req dragTargetRequest
	if r.ContentLength != 0 {
		if err := decodeBody(r, &req); err != nil {
			s.writeError(w, err)
			return
		}
	}
	target, err := req.parse()
	if err != nil {
		s.writeError(w, err)
		return
	}
	task, err := sess.Drag.OnDragEnd(r.Context(), mux.Vars(r)["taskID"], target)
	if err != nil {
		s.writeError(w, err)
		return
	}
	writeJSON(w, http.StatusOK, task)
}

func (s *Server) handleDragCancel(w http.ResponseWriter, r *http.Request) {
	sess, err := s.session(r)
	if err != nil {
		s.writeError(w, err)
		return
	}
	sess.Drag.OnDragCancel(mux.Vars(r)["taskID"])
	w.WriteHeader(http.StatusNoContent)
}
