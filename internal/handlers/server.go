// internal/handlers/server.go
package handlers

import (
	"encoding/json"
	"net/http"
	"strconv"

	"github.com/sirupsen/logrus"
	"github.com/skip2/go-qrcode"

	"github.com/quizring/quizring/internal/quiz"
	"github.com/quizring/quizring/internal/session"
)

// qrSize is the edge length in pixels of the generated share-link QR PNG.
const qrSize = 256

// Server is the thin HTTP surface of a session: room addressing (share link,
// QR) and state observation (JSON snapshot, websocket stream). Owner sessions
// additionally expose game controls. Rendering stays with the clients.
type Server struct {
	sess   *session.RoomSession
	base   string // external scheme://host[:port] used in share links
	logger *logrus.Logger
	hub    *wsHub
}

// NewServer wires the HTTP surface onto a session. baseURL is the address
// players can reach this process at, without a trailing slash.
func NewServer(sess *session.RoomSession, baseURL string, logger *logrus.Logger) *Server {
	s := &Server{
		sess:   sess,
		base:   baseURL,
		logger: logger,
		hub:    newWSHub(logger),
	}
	// Every snapshot this session produces or applies goes to connected
	// websocket clients.
	sess.OnUpdate(s.hub.broadcast)
	return s
}

// Routes returns the session's HTTP mux.
func (s *Server) Routes() *http.ServeMux {
	mux := http.NewServeMux()
	mux.HandleFunc("/", s.handlePing)
	mux.HandleFunc("/room/link", s.handleLink)
	mux.HandleFunc("/room/qr", s.handleQR)
	mux.HandleFunc("/room/state", s.handleState)
	mux.HandleFunc("/room/ws", s.handleWS)

	// Owner-only game controls.
	mux.HandleFunc("/room/start", s.ownerOnly(s.handleStart))
	mux.HandleFunc("/room/pause", s.ownerOnly(s.handlePause))
	mux.HandleFunc("/room/reset", s.ownerOnly(s.handleReset))
	mux.HandleFunc("/room/mark", s.ownerOnly(s.handleMark))
	return mux
}

func (s *Server) handlePing(w http.ResponseWriter, r *http.Request) {
	if r.URL.Path != "/" {
		http.NotFound(w, r)
		return
	}
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	_, _ = w.Write([]byte("quizring: room " + s.sess.RoomID + " (" + string(s.sess.Role) + ")\n"))
}

// handleLink returns the player-facing share link for this room.
func (s *Server) handleLink(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, map[string]string{
		"room": s.sess.RoomID,
		"link": ShareLink(s.base, s.sess.RoomID, session.RolePlayer),
	})
}

// handleQR returns the share link as a PNG QR code.
func (s *Server) handleQR(w http.ResponseWriter, r *http.Request) {
	link := ShareLink(s.base, s.sess.RoomID, session.RolePlayer)
	png, err := qrcode.Encode(link, qrcode.Medium, qrSize)
	if err != nil {
		s.logger.WithError(err).Error("QR encode failed")
		http.Error(w, "failed to generate QR code", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "image/png")
	_, _ = w.Write(png)
}

// handleState returns this session's current snapshot: canonical for the
// owner, replica for a player.
func (s *Server) handleState(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, s.sess.Snapshot())
}

func (s *Server) handleStart(w http.ResponseWriter, r *http.Request) {
	s.sess.Game().Start()
	writeJSON(w, s.sess.Snapshot())
}

func (s *Server) handlePause(w http.ResponseWriter, r *http.Request) {
	s.sess.Game().Pause()
	writeJSON(w, s.sess.Snapshot())
}

func (s *Server) handleReset(w http.ResponseWriter, r *http.Request) {
	seconds := s.sess.Snapshot().SecondsRemaining
	if v := r.URL.Query().Get("seconds"); v != "" {
		n, err := strconv.Atoi(v)
		if err != nil || n < 0 {
			http.Error(w, "invalid seconds", http.StatusBadRequest)
			return
		}
		seconds = n
	}
	s.sess.Game().Reset(seconds)
	writeJSON(w, s.sess.Snapshot())
}

// handleMark records a result for the current item:
// /room/mark?status=correct|incorrect|skipped
func (s *Server) handleMark(w http.ResponseWriter, r *http.Request) {
	var status quiz.Status
	switch r.URL.Query().Get("status") {
	case "correct":
		status = quiz.StatusCorrect
	case "incorrect":
		status = quiz.StatusIncorrect
	case "skipped":
		status = quiz.StatusSkipped
	default:
		http.Error(w, "status must be correct, incorrect, or skipped", http.StatusBadRequest)
		return
	}
	s.sess.Game().MarkCurrent(status)
	writeJSON(w, s.sess.Snapshot())
}

// ownerOnly rejects control requests on player sessions.
func (s *Server) ownerOnly(next http.HandlerFunc) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		if s.sess.Role != session.RoleOwner {
			http.Error(w, "this session is a read-only player", http.StatusForbidden)
			return
		}
		if r.Method != http.MethodPost {
			http.Error(w, "method not allowed", http.StatusMethodNotAllowed)
			return
		}
		next(w, r)
	}
}

func writeJSON(w http.ResponseWriter, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	_ = json.NewEncoder(w).Encode(v)
}
