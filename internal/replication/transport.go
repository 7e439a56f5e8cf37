// internal/replication/transport.go
package replication

import (
	"context"
	"errors"
)

// ErrClosed is returned by Send on a transport that has been closed.
var ErrClosed = errors.New("transport is closed")

// ErrNotJoined is returned by a Joiner transport when Send is attempted
// before the join handshake has completed. Such sends are dropped, not queued.
var ErrNotJoined = errors.New("transport has not joined its room")

// Transport delivers envelopes between sessions over one signaling medium.
// Send is fire-and-forget: it never blocks on delivery confirmation and a
// failure only means this snapshot is lost; the next publish re-sends the
// whole state. OnReceive must be registered exactly once per session; a
// transport delivers received envelopes in receipt order, but no order is
// guaranteed across different transports.
type Transport interface {
	Name() string
	Send(ctx context.Context, env Envelope) error
	OnReceive(fn func(Envelope))
	Close() error
}

// Joiner is implemented by transports that require an asynchronous handshake
// before sends are accepted. Local transports are usable immediately and do
// not implement it.
type Joiner interface {
	Join(ctx context.Context) error
	Joined() bool
}
