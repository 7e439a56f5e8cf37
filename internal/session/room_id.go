// internal/session/room_id.go
package session

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/google/uuid"
)

// NewRoomID returns a short random room identifier, generated once per owner
// session and embedded in every share link and envelope. It is short enough
// to read aloud; collisions across distinct sessions are accepted as
// negligible rather than guarded against.
func NewRoomID() string {
	b := make([]byte, 4)
	if _, err := rand.Read(b); err != nil {
		// crypto/rand failing is effectively fatal elsewhere; fall back to a
		// truncated UUID rather than a fixed string.
		return uuid.NewString()[:8]
	}
	return hex.EncodeToString(b)
}
