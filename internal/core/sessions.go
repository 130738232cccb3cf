package core

import (
	"context"
	"fmt"
	"slices"
	"sync"
	"sync/atomic"
	"time"

	"github.com/cenkalti/backoff/v4"
	"github.com/sirupsen/logrus"

	"github.com/valter-silva-au/taskboard/internal/logging"
)

// Session bundles the engine components serving one project.
type Session struct {
	Board  *Board
	Drag   *DragController
	Detail *DetailService

	recovering atomic.Bool
	stopWatch  func()
}

// SessionManager opens one board session per project on demand and keeps it
// subscribed: when a session's feed fails it resubscribes with exponential
// backoff while the board keeps showing its last good state.
type SessionManager struct {
	store  TaskStore
	events EventLogger
	log    logrus.FieldLogger

	// newBackOff returns a fresh policy per recovery; BackOff values are
	// stateful.
	newBackOff  func() backoff.BackOff
	loadTimeout time.Duration

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	sessions map[string]*Session
}

// NewSessionManager creates a manager over store. events and log may be nil.
func NewSessionManager(store TaskStore, events EventLogger, log logrus.FieldLogger) *SessionManager {
	if log == nil {
		log = logging.Discard()
	}
	ctx, cancel := context.WithCancel(context.Background())
	return &SessionManager{
		store:  store,
		events: events,
		log:    log,
		newBackOff: func() backoff.BackOff {
			bo := backoff.NewExponentialBackOff()
			bo.MaxElapsedTime = 0
			bo.MaxInterval = 30 * time.Second
			return bo
		},
		loadTimeout: 10 * time.Second,
		ctx:         ctx,
		cancel:      cancel,
		sessions:    make(map[string]*Session),
	}
}

// Open returns the session for projectID, loading its board the first time.
func (m *SessionManager) Open(ctx context.Context, projectID string) (*Session, error) {
	if projectID == "" {
		return nil, validationError("projectId", "must not be empty")
	}
	m.mu.Lock()
	if s, ok := m.sessions[projectID]; ok {
		m.mu.Unlock()
		return s, nil
	}
	m.mu.Unlock()

	board := NewBoard(projectID, m.store, m.events, m.log)
	if err := board.Load(ctx); err != nil {
		board.Close()
		return nil, err
	}
	s := &Session{
		Board:  board,
		Drag:   NewDragController(board),
		Detail: NewDetailService(m.store, board, m.events, m.log),
	}

	m.mu.Lock()
	if existing, ok := m.sessions[projectID]; ok {
		m.mu.Unlock()
		board.Close()
		return existing, nil
	}
	m.sessions[projectID] = s
	m.mu.Unlock()

	s.stopWatch = board.OnChange(func() { m.watch(s) })
	m.log.WithField("project", projectID).Info("board session opened")
	return s, nil
}

// watch runs on every board change and starts a recovery when the feed has
// failed. At most one recovery per session runs at a time.
func (m *SessionManager) watch(s *Session) {
	if s.Board.Err() == nil || m.ctx.Err() != nil {
		return
	}
	if !s.recovering.CompareAndSwap(false, true) {
		return
	}
	go m.recover(s)
}

func (m *SessionManager) recover(s *Session) {
	defer s.recovering.Store(false)
	log := m.log.WithField("project", s.Board.ProjectID())

	attempt := 0
	err := backoff.Retry(func() error {
		attempt++
		ctx, cancel := context.WithTimeout(m.ctx, m.loadTimeout)
		defer cancel()
		if err := s.Board.Resubscribe(ctx); err != nil {
			log.WithError(err).WithField("attempt", attempt).Warn("resubscribe failed")
			return err
		}
		return nil
	}, backoff.WithContext(m.newBackOff(), m.ctx))
	if err != nil {
		log.WithError(err).Debug("gave up resubscribing")
		return
	}
	log.WithField("attempts", attempt).Info("board feed restored")
}

// Projects returns the IDs of the open sessions, sorted.
func (m *SessionManager) Projects() []string {
	m.mu.Lock()
	defer m.mu.Unlock()
	out := make([]string, 0, len(m.sessions))
	for id := range m.sessions {
		out = append(out, id)
	}
	slices.Sort(out)
	return out
}

// CloseSession unsubscribes and forgets one project's session.
func (m *SessionManager) CloseSession(projectID string) error {
	m.mu.Lock()
	s, ok := m.sessions[projectID]
	delete(m.sessions, projectID)
	m.mu.Unlock()
	if !ok {
		return fmt.Errorf("closing session: no open session for %s", projectID)
	}
	s.close()
	return nil
}

// Close stops every recovery and closes all sessions.
func (m *SessionManager) Close() {
	m.cancel()
	m.mu.Lock()
	sessions := m.sessions
	m.sessions = make(map[string]*Session)
	m.mu.Unlock()
	for _, s := range sessions {
		s.close()
	}
}

func (s *Session) close() {
	if s.stopWatch != nil {
		s.stopWatch()
	}
	s.Board.Close()
}
