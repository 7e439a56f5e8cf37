// internal/replication/replicator.go
package replication

import (
	"context"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/quizring/quizring/internal/quiz"
)

// NetworkMinInterval is the minimum spacing between two network-transport
// sends. Sends arriving faster than this are dropped, not queued: every
// snapshot is complete, so the next one that passes the gate supersedes
// anything dropped before it.
const NetworkMinInterval = 120 * time.Millisecond

// sendTimeout bounds a single fire-and-forget transport send.
const sendTimeout = 3 * time.Second

// Replicator owns the outbound path of an owner session: every authoritative
// state change becomes one room-scoped envelope fanned out to every
// configured transport. Local transports are free and get every change; the
// network transport is gated by NetworkMinInterval (a timestamp gate, not a
// token bucket; there is deliberately no backlog to replay). Failures are
// logged and swallowed: replication self-heals because each publish carries
// the whole state.
type Replicator struct {
	roomID   string
	senderID uuid.UUID
	clock    clockwork.Clock
	log      *logrus.Entry

	local   []Transport
	network Transport

	mu          sync.Mutex
	lastNetSend time.Time

	// netSendMu serializes the asynchronous network writes so the transport
	// sees envelopes in acceptance order.
	netSendMu sync.Mutex
}

// NewReplicator builds a replicator for one room. The clock is injected so
// throttle behavior is testable with a fake clock.
func NewReplicator(roomID string, senderID uuid.UUID, clock clockwork.Clock, logger *logrus.Logger) *Replicator {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Replicator{
		roomID:   roomID,
		senderID: senderID,
		clock:    clock,
		log:      logger.WithField("room", roomID),
	}
}

// AddLocal registers an unthrottled transport leg. Not safe to call after
// publishing starts.
func (r *Replicator) AddLocal(t Transport) {
	r.local = append(r.local, t)
}

// SetNetwork registers the throttled network leg. Not safe to call after
// publishing starts.
func (r *Replicator) SetNetwork(t Transport) {
	r.network = t
}

// Publish fans one state snapshot out to every transport. Local legs are sent
// inline (they never block); the network leg, once accepted by the throttle
// gate, is written from a goroutine so the caller never waits on the wire.
func (r *Replicator) Publish(state quiz.GameState) {
	env := NewEnvelope(r.roomID, r.senderID, state, r.clock.Now())

	for _, t := range r.local {
		r.send(t, env)
	}

	nt := r.network
	if nt == nil {
		return
	}
	if j, ok := nt.(Joiner); ok && !j.Joined() {
		// Still joining (or join failed); the network leg silently degrades.
		return
	}
	if !r.acceptNetworkSend(env) {
		return
	}
	go func() {
		r.netSendMu.Lock()
		defer r.netSendMu.Unlock()
		r.send(nt, env)
	}()
}

// acceptNetworkSend applies the timestamp gate and records the send time of
// an accepted envelope.
func (r *Replicator) acceptNetworkSend(env Envelope) bool {
	now := r.clock.Now()
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.lastNetSend.IsZero() && now.Sub(r.lastNetSend) < NetworkMinInterval {
		return false
	}
	r.lastNetSend = now
	return true
}

// send performs one fire-and-forget transport send with a bounded context.
func (r *Replicator) send(t Transport, env Envelope) {
	ctx, cancel := context.WithTimeout(context.Background(), sendTimeout)
	defer cancel()
	if err := t.Send(ctx, env); err != nil {
		r.log.WithError(err).WithField("transport", t.Name()).Warn("Publish failed; next change re-sends")
	}
}
