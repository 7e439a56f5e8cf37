// internal/replication/observer.go
package replication

import (
	"sync"

	"github.com/google/uuid"
	"github.com/sirupsen/logrus"

	"github.com/quizring/quizring/internal/quiz"
)

// Observer owns the inbound path of a player session. Its OnEnvelope is
// registered once on every transport; matching envelopes replace the replica
// wholesale.
//
// There is no merge, no conflict detection, and no ordering check against
// EmittedAt: whichever matching envelope is delivered last wins. Because
// every envelope is a complete snapshot rather than a diff, an out-of-order
// arrival across transports can only revert the replica transiently until
// the owner's next publish corrects it. That is the deliberate
// eventual-consistency model, not an oversight.
type Observer struct {
	roomID string
	selfID uuid.UUID
	log    *logrus.Entry

	mu      sync.Mutex
	replica quiz.GameState
	applied bool

	// onApply, if set, receives a copy of the replica after each apply.
	onApply func(quiz.GameState)
}

// NewObserver builds an observer for one room. selfID is this session's
// sender identity; a transport that echoes our own envelopes back (Redis
// pub/sub and Postgres NOTIFY both do) is filtered here.
func NewObserver(roomID string, selfID uuid.UUID, logger *logrus.Logger) *Observer {
	return &Observer{
		roomID: roomID,
		selfID: selfID,
		log:    logger.WithField("room", roomID),
	}
}

// SetOnApply registers the apply hook. Register before transports start
// delivering.
func (o *Observer) SetOnApply(fn func(quiz.GameState)) {
	o.mu.Lock()
	o.onApply = fn
	o.mu.Unlock()
}

// OnEnvelope applies one inbound envelope. Envelopes for other rooms, other
// kinds, or from this session itself are discarded silently; they are not
// errors.
func (o *Observer) OnEnvelope(env Envelope) {
	if env.RoomID != o.roomID || env.Kind != KindState {
		return
	}
	if env.SenderID == o.selfID {
		return
	}

	o.mu.Lock()
	o.replica = env.Payload.Clone()
	o.applied = true
	snap, fn := o.replica.Clone(), o.onApply
	o.mu.Unlock()

	o.log.WithFields(logrus.Fields{
		"items":   len(snap.Items),
		"index":   snap.CurrentIndex,
		"running": snap.IsRunning,
	}).Debug("Applied state snapshot")

	if fn != nil {
		fn(snap)
	}
}

// Snapshot returns a copy of the current replica.
func (o *Observer) Snapshot() quiz.GameState {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.replica.Clone()
}

// Applied reports whether any snapshot has been received yet, so callers can
// distinguish an empty replica from a not-yet-synced one.
func (o *Observer) Applied() bool {
	o.mu.Lock()
	defer o.mu.Unlock()
	return o.applied
}
