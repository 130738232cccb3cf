// Package api exposes board sessions over HTTP: a REST binding of the board
// operations and a websocket stream of board snapshots.
package api

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/gorilla/mux"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/errgroup"

	"github.com/valter-silva-au/taskboard/internal/core"
	"github.com/valter-silva-au/taskboard/internal/observability"
)

// Server routes HTTP requests to board sessions.
type Server struct {
	sessions *core.SessionManager
	metrics  observability.MetricsCalculator
	log      logrus.FieldLogger
	router   *mux.Router
	now      func() time.Time
}

// NewServer builds the router. metrics may be nil, which disables the
// metrics endpoint.
func NewServer(sessions *core.SessionManager, metrics observability.MetricsCalculator, log logrus.FieldLogger) *Server {
	if log == nil {
		log = logrus.StandardLogger()
	}
	s := &Server{
		sessions: sessions,
		metrics:  metrics,
		log:      log.WithField("component", "api"),
		router:   mux.NewRouter(),
		now:      time.Now,
	}
	s.routes()
	return s
}

func (s *Server) routes() {
	r := s.router
	r.Use(s.logRequests)
	r.HandleFunc("/healthz", s.handleHealth).Methods(http.MethodGet)
	r.HandleFunc("/api/metrics", s.handleMetrics).Methods(http.MethodGet)

	p := r.PathPrefix("/api/projects/{projectID}").Subrouter()
	p.HandleFunc("/board", s.handleBoard).Methods(http.MethodGet)
	p.HandleFunc("/ws", s.handleStream).Methods(http.MethodGet)
	p.HandleFunc("/tasks", s.handleCreateTask).Methods(http.MethodPost)
	p.HandleFunc("/tasks/{taskID}", s.handleGetTask).Methods(http.MethodGet)
	p.HandleFunc("/tasks/{taskID}", s.handleUpdateTask).Methods(http.MethodPatch)
	p.HandleFunc("/tasks/{taskID}", s.handleDeleteTask).Methods(http.MethodDelete)
	p.HandleFunc("/tasks/{taskID}/move", s.handleMoveTask).Methods(http.MethodPost)
	p.HandleFunc("/tasks/{taskID}/assignee", s.handleAssign).Methods(http.MethodPut)
	p.HandleFunc("/tasks/{taskID}/subtasks", s.handleAddSubtask).Methods(http.MethodPost)
	p.HandleFunc("/tasks/{taskID}/subtasks/{subtaskID}", s.handleToggleSubtask).Methods(http.MethodPut)
	p.HandleFunc("/tasks/{taskID}/comments", s.handleComments).Methods(http.MethodGet)
	p.HandleFunc("/tasks/{taskID}/comments", s.handleAddComment).Methods(http.MethodPost)
	p.HandleFunc("/drag/{taskID}/start", s.handleDragStart).Methods(http.MethodPost)
	p.HandleFunc("/drag/{taskID}/over", s.handleDragOver).Methods(http.MethodPost)
	p.HandleFunc("/drag/{taskID}/end", s.handleDragEnd).Methods(http.MethodPost)
	p.HandleFunc("/drag/{taskID}/cancel", s.handleDragCancel).Methods(http.MethodPost)
}

// ServeHTTP implements http.Handler.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.router.ServeHTTP(w, r)
}

// ListenAndServe serves on addr until ctx is cancelled, then shuts down
// gracefully.
func (s *Server) ListenAndServe(ctx context.Context, addr string) error {
	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("listening on %s: %w", addr, err)
	}
	return s.Serve(ctx, ln)
}

// Serve accepts connections on ln until ctx is cancelled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	srv := &http.Server{
		Handler:           s,
		ReadHeaderTimeout: 10 * time.Second,
		BaseContext:       func(net.Listener) context.Context { return ctx },
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error {
		s.log.WithField("addr", ln.Addr().String()).Info("http server listening")
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("serving http: %w", err)
		}
		return nil
	})
	g.Go(func() error {
		<-gctx.Done()
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 5*time.Second)
		defer cancel()
		if err := srv.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("shutting down http server: %w", err)
		}
		s.log.Info("http server stopped")
		return nil
	})
	return g.Wait()
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		start := s.now()
		rec := &statusRecorder{ResponseWriter: w, status: http.StatusOK}
		next.ServeHTTP(rec, r)
		s.log.WithFields(logrus.Fields{
			"method":   r.Method,
			"path":     r.URL.Path,
			"status":   rec.status,
			"duration": s.now().Sub(start).String(),
		}).Debug("request handled")
	})
}

type statusRecorder struct {
	http.ResponseWriter
	status int
}

func (r *statusRecorder) WriteHeader(code int) {
	r.status = code
	r.ResponseWriter.WriteHeader(code)
}

// Unwrap lets http.ResponseController and the websocket upgrader reach the
// underlying writer.
func (r *statusRecorder) Unwrap() http.ResponseWriter {
	return r.ResponseWriter
}

type errorBody struct {
	Error string `json:"error"`
	Field string `json:"field,omitempty"`
}

func writeJSON(w http.ResponseWriter, status int, v any) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_ = json.NewEncoder(w).Encode(v)
}

// writeError maps engine errors onto HTTP statuses.
func (s *Server) writeError(w http.ResponseWriter, err error) {
	var (
		ve   *core.ValidationError
		werr *core.StoreWriteError
		serr *core.SubscriptionError
	)
	body := errorBody{Error: err.Error()}
	status := http.StatusInternalServerError
	switch {
	case errors.As(err, &ve):
		status = http.StatusBadRequest
		body.Field = ve.Field
	case core.IsNotFound(err):
		status = http.StatusNotFound
	case errors.As(err, &werr):
		status = http.StatusBadGateway
	case errors.As(err, &serr):
		status = http.StatusServiceUnavailable
	case errors.Is(err, context.DeadlineExceeded):
		status = http.StatusGatewayTimeout
	}
	if status >= http.StatusInternalServerError {
		s.log.WithError(err).Warn("request failed")
	}
	writeJSON(w, status, body)
}

func decodeBody(r *http.Request, v any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(v); err != nil {
		return &core.ValidationError{Field: "body", Message: err.Error()}
	}
	return nil
}

func (s *Server) session(r *http.Request) (*core.Session, error) {
	return s.sessions.Open(r.Context(), mux.Vars(r)["projectID"])
}
