package api

import (
	"net/http"
	"time"

	"github.com/gorilla/websocket"
)

const (
	writeWait  = 10 * time.Second
	pingPeriod = 30 * time.Second
)

var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 4096,
	CheckOrigin:     func(*http.Request) bool { return true },
}

// handleStream upgrades to a websocket and sends the filtered board as JSON
// right away and after every change. Bursts of changes collapse into one
// frame carrying the latest state.
func (s *Server) handleStream(w http.ResponseWriter, r *http.Request) {
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

	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.log.WithError(err).Debug("websocket upgrade failed")
		return
	}
	defer conn.Close()

	changed := make(chan struct{}, 1)
	stop := sess.Board.OnChange(func() {
		select {
		case changed <- struct{}{}:
		default:
		}
	})
	defer stop()

	// The read loop only notices the client going away.
	closed := make(chan struct{})
	go func() {
		defer close(closed)
		for {
			if _, _, err := conn.ReadMessage(); err != nil {
				return
			}
		}
	}()

	log := s.log.WithField("project", sess.Board.ProjectID())
	log.Debug("board stream opened")
	defer log.Debug("board stream closed")

	send := func() bool {
		_ = conn.SetWriteDeadline(time.Now().Add(writeWait))
		if err := conn.WriteJSON(snapshot(sess.Board, c)); err != nil {
			log.WithError(err).Debug("writing board frame")
			return false
		}
		return true
	}
	if !send() {
		return
	}

	ping := time.NewTicker(pingPeriod)
	defer ping.Stop()
	for {
		select {
		case <-r.Context().Done():
			return
		case <-closed:
			return
		case <-changed:
			if !send() {
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(writeWait)); err != nil {
				return
			}
		}
	}
}
