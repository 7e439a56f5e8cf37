// internal/handlers/room_ws.go
package handlers

import (
	"context"
	"encoding/json"
	"net/http"
	"sync"
	"time"

	"github.com/coder/websocket"
	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizring/quizring/internal/quiz"
)

// wsWriteTimeout bounds a single snapshot write to one client.
const wsWriteTimeout = 3 * time.Second

// wsHub tracks the websocket clients watching this session's state and
// pushes every new snapshot to all of them.
type wsHub struct {
	logger *logrus.Logger
	mu     sync.Mutex
	conns  map[uuid.UUID]*websocket.Conn
}

func newWSHub(logger *logrus.Logger) *wsHub {
	return &wsHub{
		logger: logger,
		conns:  make(map[uuid.UUID]*websocket.Conn),
	}
}

func (h *wsHub) add(c *websocket.Conn) uuid.UUID {
	id := uuid.New()
	h.mu.Lock()
	h.conns[id] = c
	h.mu.Unlock()
	return id
}

func (h *wsHub) remove(id uuid.UUID) {
	h.mu.Lock()
	delete(h.conns, id)
	h.mu.Unlock()
}

// broadcast pushes a snapshot to every connected client. Writes happen off
// the caller's goroutine so a slow client never blocks state changes.
func (h *wsHub) broadcast(state quiz.GameState) {
	data, err := json.Marshal(state)
	if err != nil {
		h.logger.WithError(err).Error("Failed to marshal snapshot for websocket clients")
		return
	}

	h.mu.Lock()
	conns := make([]*websocket.Conn, 0, len(h.conns))
	for _, c := range h.conns {
		conns = append(conns, c)
	}
	h.mu.Unlock()

	go func(conns []*websocket.Conn, data []byte) {
		for _, c := range conns {
			ctx, cancel := context.WithTimeout(context.Background(), wsWriteTimeout)
			err := c.Write(ctx, websocket.MessageText, data)
			cancel()
			if err != nil {
				h.logger.WithError(err).Debug("Websocket snapshot write failed")
			}
		}
	}(conns, data)
}

// handleWS upgrades the connection and streams JSON snapshots until the
// client goes away. The current snapshot is sent immediately on connect so a
// late joiner does not wait for the next change.
func (s *Server) handleWS(w http.ResponseWriter, r *http.Request) {
	c, err := websocket.Accept(w, r, &websocket.AcceptOptions{
		Subprotocols:   []string{"quizring"},
		OriginPatterns: []string{"*"}, // Adjust for production security.
	})
	if err != nil {
		s.logger.WithError(err).Warn("Websocket accept failed")
		return
	}
	defer c.Close(websocket.StatusInternalError, "handler exit")

	if c.Subprotocol() != "quizring" {
		c.Close(websocket.StatusPolicyViolation, "client must use the 'quizring' subprotocol")
		return
	}

	id := s.hub.add(c)
	defer s.hub.remove(id)
	s.logger.WithFields(logrus.Fields{
		"remote": r.RemoteAddr,
		"room":   s.sess.RoomID,
	}).Info("Websocket observer connected")

	// Initial snapshot.
	if data, err := json.Marshal(s.sess.Snapshot()); err == nil {
		ctx, cancel := context.WithTimeout(r.Context(), wsWriteTimeout)
		_ = c.Write(ctx, websocket.MessageText, data)
		cancel()
	}

	// Observers are read-only; the read loop exists to notice disconnects
	// and answer pings.
	ctx := r.Context()
	for {
		msgType, data, err := c.Read(ctx)
		if err != nil {
			status := websocket.CloseStatus(err)
			if status == websocket.StatusNormalClosure || status == websocket.StatusGoingAway {
				s.logger.Debug("Websocket observer left")
			} else {
				s.logger.WithError(err).Debug("Websocket observer read error")
			}
			return
		}
		if msgType != websocket.MessageText {
			continue
		}
		var msg struct {
			Type string `json:"type"`
		}
		if err := json.Unmarshal(data, &msg); err != nil || msg.Type != "ping" {
			continue
		}
		wctx, cancel := context.WithTimeout(ctx, wsWriteTimeout)
		_ = c.Write(wctx, websocket.MessageText, []byte(`{"type":"pong"}`))
		cancel()
	}
}
