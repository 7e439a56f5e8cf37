// internal/replication/envelope.go
package replication

import (
	"time"

	"github.com/google/uuid"

	"github.com/quizring/quizring/internal/quiz"
)

// KindState is the only envelope kind currently on the wire. New kinds and
// fields are additive; readers ignore what they do not know.
const KindState = "state"

// Envelope is one complete transmitted snapshot of game state plus routing
// metadata. It is built fresh on every publish and discarded after apply;
// nothing keeps a history of past envelopes.
type Envelope struct {
	Kind      string         `json:"kind"`
	RoomID    string         `json:"roomId"`
	SenderID  uuid.UUID      `json:"senderId"`
	Payload   quiz.GameState `json:"payload"`
	EmittedAt int64          `json:"emittedAt"` // unix milliseconds
}

// NewEnvelope wraps a state snapshot for transmission. The payload is cloned
// so the envelope never aliases the sender's live state.
func NewEnvelope(roomID string, sender uuid.UUID, state quiz.GameState, now time.Time) Envelope {
	return Envelope{
		Kind:      KindState,
		RoomID:    roomID,
		SenderID:  sender,
		Payload:   state.Clone(),
		EmittedAt: now.UnixMilli(),
	}
}
