package api

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/storage"
	"github.com/valter-silva-au/taskboard/pkg/models"
)

type testEnv struct {
	store    *storage.MemoryStore
	sessions *core.SessionManager
	srv      *httptest.Server
}

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	store := storage.NewMemoryStore()
	sessions := core.NewSessionManager(store, nil, nil)
	srv := httptest.NewServer(NewServer(sessions, nil, nil))
	t.Cleanup(func() {
		srv.Close()
		sessions.Close()
	})
	return &testEnv{store: store, sessions: sessions, srv: srv}
}

func (e *testEnv) do(t *testing.T, method, path string, body any) *http.Response {
	t.Helper()
	var rdr *bytes.Reader
	if body != nil {
		raw, err := json.Marshal(body)
		require.NoError(t, err)
		rdr = bytes.NewReader(raw)
	} else {
		rdr = bytes.NewReader(nil)
	}
	req, err := http.NewRequest(method, e.srv.URL+path, rdr)
	require.NoError(t, err)
	if body != nil {
		req.Header.Set("Content-Type", "application/json")
	}
	resp, err := http.DefaultClient.Do(req)
	require.NoError(t, err)
	t.Cleanup(func() { resp.Body.Close() })
	return resp
}

func decode[T any](t *testing.T, resp *http.Response) T {
	t.Helper()
	var v T
	require.NoError(t, json.NewDecoder(resp.Body).Decode(&v))
	return v
}

func (e *testEnv) create(t *testing.T, title string, status models.TaskStatus) models.Task {
	t.Helper()
	resp := e.do(t, http.MethodPost, "/api/projects/p1/tasks", map[string]any{
		"title":  title,
		"status": status,
	})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	return decode[models.Task](t, resp)
}

func columnTitles(resp boardResponse, status models.TaskStatus) []string {
	for _, c := range resp.Columns {
		if c.Status != status {
			continue
		}
		out := make([]string, 0, len(c.Tasks))
		for _, t := range c.Tasks {
			out = append(out, t.Title)
		}
		return out
	}
	return nil
}

func TestServer_Health(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/healthz", nil)
	assert.Equal(t, http.StatusOK, resp.StatusCode)
	body := decode[map[string]any](t, resp)
	assert.Equal(t, "ok", body["status"])
}

func TestServer_CreateAndShowBoard(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "Write docs", models.StatusTodo)
	env.create(t, "Fix login", models.StatusTodo)
	env.create(t, "Ship", models.StatusDone)

	assert.Equal(t, "p1", a.ProjectID)
	assert.Equal(t, models.PriorityMedium, a.Priority)
	assert.Equal(t, 1.0, a.Order)

	resp := env.do(t, http.MethodGet, "/api/projects/p1/board", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	board := decode[boardResponse](t, resp)

	assert.Equal(t, core.StateLoaded, board.State)
	require.Len(t, board.Columns, len(models.Statuses))
	assert.Equal(t, []string{"Write docs", "Fix login"}, columnTitles(board, models.StatusTodo))
	assert.Equal(t, []string{"Ship"}, columnTitles(board, models.StatusDone))
	assert.Nil(t, board.Filter)
}

func TestServer_CreateValidation(t *testing.T) {
	env := newTestEnv(t)

	resp := env.do(t, http.MethodPost, "/api/projects/p1/tasks", map[string]any{"title": "  "})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "title", decode[errorBody](t, resp).Field)

	resp = env.do(t, http.MethodPost, "/api/projects/p1/tasks", map[string]any{"title": "x", "colour": "red"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
	assert.Equal(t, "body", decode[errorBody](t, resp).Field)
}

func TestServer_BoardFilters(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "Fix login bug", models.StatusTodo)
	other := env.create(t, "Write release notes", models.StatusTodo)

	resp := env.do(t, http.MethodPut, "/api/projects/p1/tasks/"+other.ID+"/assignee",
		models.Assignee{ID: "u1", Name: "Ana"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "u1", decode[models.Task](t, resp).AssigneeID)

	board := decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board?q=LOGIN", nil))
	assert.Equal(t, []string{"Fix login bug"}, columnTitles(board, models.StatusTodo))
	require.NotNil(t, board.Filter)
	assert.Equal(t, "LOGIN", board.Filter.Query)

	board = decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board?assignee=unassigned", nil))
	assert.Equal(t, []string{"Fix login bug"}, columnTitles(board, models.StatusTodo))

	board = decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board?assignee=u1", nil))
	assert.Equal(t, []string{"Write release notes"}, columnTitles(board, models.StatusTodo))

	resp = env.do(t, http.MethodGet, "/api/projects/p1/board?priority=extreme", nil)
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_MoveTask(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", models.StatusTodo)
	env.create(t, "B", models.StatusTodo)
	env.create(t, "C", models.StatusInProgress)

	resp := env.do(t, http.MethodPost, "/api/projects/p1/tasks/"+a.ID+"/move",
		moveRequest{Status: models.StatusInProgress, Index: 0})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	moved := decode[models.Task](t, resp)
	assert.Equal(t, models.StatusInProgress, moved.Status)

	board := decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board", nil))
	assert.Equal(t, []string{"B"}, columnTitles(board, models.StatusTodo))
	assert.Equal(t, []string{"A", "C"}, columnTitles(board, models.StatusInProgress))

	stored, err := env.store.GetTask(context.Background(), a.ID)
	require.NoError(t, err)
	assert.Equal(t, models.StatusInProgress, stored.Status)
}

func TestServer_UpdateAndDelete(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "Draft", models.StatusTodo)

	resp := env.do(t, http.MethodPatch, "/api/projects/p1/tasks/"+a.ID, map[string]any{"title": "Final"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, "Final", decode[models.Task](t, resp).Title)

	resp = env.do(t, http.MethodPatch, "/api/projects/p1/tasks/"+a.ID, map[string]any{"status": "done"})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/projects/p1/tasks/"+a.ID, nil)
	assert.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/projects/p1/tasks/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodDelete, "/api/projects/p1/tasks/"+a.ID, nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_DragGesture(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", models.StatusTodo)
	b := env.create(t, "B", models.StatusReview)

	resp := env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/start", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	resp = env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/over", dragTargetRequest{Target: ptr("column:review")})
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	board := decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board", nil))
	assert.Contains(t, columnTitles(board, models.StatusReview), "A")
	assert.Contains(t, board.Pending, a.ID)

	resp = env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/end", dragTargetRequest{Target: ptr("task:" + b.ID)})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusReview, decode[models.Task](t, resp).Status)

	board = decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board", nil))
	assert.Equal(t, []string{"A", "B"}, columnTitles(board, models.StatusReview))
	assert.Empty(t, board.Pending)
}

func TestServer_DragCancelAndDropOutside(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", models.StatusTodo)

	env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/start", nil)
	env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/over", dragTargetRequest{Target: ptr("column:done")})
	resp := env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/cancel", nil)
	require.Equal(t, http.StatusNoContent, resp.StatusCode)

	board := decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board", nil))
	assert.Equal(t, []string{"A"}, columnTitles(board, models.StatusTodo))

	env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/start", nil)
	env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/over", dragTargetRequest{Target: ptr("column:done")})
	resp = env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/end", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Equal(t, models.StatusTodo, decode[models.Task](t, resp).Status)

	resp = env.do(t, http.MethodPost, "/api/projects/p1/drag/"+a.ID+"/over", dragTargetRequest{Target: ptr("lane:7")})
	assert.Equal(t, http.StatusBadRequest, resp.StatusCode)
}

func TestServer_SubtasksAndComments(t *testing.T) {
	env := newTestEnv(t)
	a := env.create(t, "A", models.StatusTodo)

	resp := env.do(t, http.MethodPost, "/api/projects/p1/tasks/"+a.ID+"/subtasks", subtaskRequest{Title: "write tests"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)
	sub := decode[models.Subtask](t, resp)
	assert.False(t, sub.Completed)

	resp = env.do(t, http.MethodPut, "/api/projects/p1/tasks/"+a.ID+"/subtasks/"+sub.ID, toggleRequest{Completed: true, ActorID: "u1"})
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.True(t, decode[models.Task](t, resp).Subtasks[0].Completed)

	board := decode[boardResponse](t, env.do(t, http.MethodGet, "/api/projects/p1/board", nil))
	assert.Equal(t, [2]int{1, 1}, board.Progress[a.ID])

	resp = env.do(t, http.MethodPut, "/api/projects/p1/tasks/"+a.ID+"/subtasks/nope", toggleRequest{Completed: true})
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/projects/p1/tasks/"+a.ID+"/comments", nil)
	require.Equal(t, http.StatusOK, resp.StatusCode)
	assert.Empty(t, decode[[]models.Comment](t, resp))

	resp = env.do(t, http.MethodPost, "/api/projects/p1/tasks/"+a.ID+"/comments",
		models.CommentDraft{UserID: "u1", UserName: "Ana", Content: "looks good"})
	require.Equal(t, http.StatusCreated, resp.StatusCode)

	resp = env.do(t, http.MethodGet, "/api/projects/p1/tasks/"+a.ID+"/comments", nil)
	comments := decode[[]models.Comment](t, resp)
	require.Len(t, comments, 1)
	assert.Equal(t, "looks good", comments[0].Content)
}

func TestServer_MetricsDisabled(t *testing.T) {
	env := newTestEnv(t)
	resp := env.do(t, http.MethodGet, "/api/metrics", nil)
	assert.Equal(t, http.StatusNotFound, resp.StatusCode)
}

func TestServer_StreamPushesChanges(t *testing.T) {
	env := newTestEnv(t)
	env.create(t, "A", models.StatusTodo)

	url := "ws" + strings.TrimPrefix(env.srv.URL, "http") + "/api/projects/p1/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	require.NoError(t, err)
	defer conn.Close()

	readFrame := func() boardResponse {
		require.NoError(t, conn.SetReadDeadline(time.Now().Add(3*time.Second)))
		var frame boardResponse
		require.NoError(t, conn.ReadJSON(&frame))
		return frame
	}

	first := readFrame()
	assert.Equal(t, []string{"A"}, columnTitles(first, models.StatusTodo))

	env.create(t, "B", models.StatusTodo)
	for {
		frame := readFrame()
		if len(columnTitles(frame, models.StatusTodo)) == 2 {
			break
		}
	}
}

func ptr[T any](v T) *T { return &v }
