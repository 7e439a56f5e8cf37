// internal/replication/localbus.go
package replication

import (
	"context"
	"sync"
)

// legBuffer bounds how many undelivered envelopes a slow leg may hold before
// newer sends are dropped. Delivery is best effort; snapshots are idempotent.
const legBuffer = 32

// LocalBus fans envelopes out to every other session in the same process. It
// is an explicitly constructed value injected into each session; there is no
// package-level bus, so tests can run isolated buses side by side.
//
// Ordering: envelopes from one sender arrive at each leg in send order.
// Nothing is guaranteed across senders.
type LocalBus struct {
	mu   sync.Mutex
	legs map[*LocalLeg]struct{}
}

// NewLocalBus returns an empty bus.
func NewLocalBus() *LocalBus {
	return &LocalBus{legs: make(map[*LocalLeg]struct{})}
}

// Open attaches a new endpoint to the bus. Each session opens exactly one leg
// and closes it on teardown.
func (b *LocalBus) Open() *LocalLeg {
	leg := &LocalLeg{
		bus:   b,
		inbox: make(chan Envelope, legBuffer),
	}
	b.mu.Lock()
	b.legs[leg] = struct{}{}
	b.mu.Unlock()
	leg.wg.Add(1)
	go leg.pump()
	return leg
}

// broadcast enqueues the envelope to every leg except the sender. Full
// inboxes drop the envelope rather than block the sender.
func (b *LocalBus) broadcast(from *LocalLeg, env Envelope) {
	b.mu.Lock()
	defer b.mu.Unlock()
	for leg := range b.legs {
		if leg == from {
			continue
		}
		select {
		case leg.inbox <- env:
		default:
		}
	}
}

// detach removes a leg; after detach no broadcast can write to its inbox.
func (b *LocalBus) detach(leg *LocalLeg) {
	b.mu.Lock()
	delete(b.legs, leg)
	b.mu.Unlock()
}

// LocalLeg is one session's endpoint on a LocalBus. It implements Transport.
type LocalLeg struct {
	bus   *LocalBus
	inbox chan Envelope

	mu      sync.Mutex
	handler func(Envelope)

	closeOnce sync.Once
	closed    bool
	wg        sync.WaitGroup
}

// Name implements Transport.
func (l *LocalLeg) Name() string { return "local" }

// Send implements Transport. It enqueues to every other leg and returns
// without waiting for delivery.
func (l *LocalLeg) Send(_ context.Context, env Envelope) error {
	l.mu.Lock()
	closed := l.closed
	l.mu.Unlock()
	if closed {
		return ErrClosed
	}
	l.bus.broadcast(l, env)
	return nil
}

// OnReceive implements Transport.
func (l *LocalLeg) OnReceive(fn func(Envelope)) {
	l.mu.Lock()
	l.handler = fn
	l.mu.Unlock()
}

// Close implements Transport. Idempotent: the leg detaches from the bus and
// its pump drains out; no handler fires after Close returns.
func (l *LocalLeg) Close() error {
	l.closeOnce.Do(func() {
		l.mu.Lock()
		l.closed = true
		l.mu.Unlock()
		// Detach under the bus lock so no in-flight broadcast can write to the
		// inbox after it is closed.
		l.bus.detach(l)
		close(l.inbox)
		l.wg.Wait()
	})
	return nil
}

// pump delivers queued envelopes to the handler in FIFO order. Envelopes
// still buffered when the leg closes are discarded, not delivered.
func (l *LocalLeg) pump() {
	defer l.wg.Done()
	for env := range l.inbox {
		l.mu.Lock()
		fn, closed := l.handler, l.closed
		l.mu.Unlock()
		if closed {
			continue
		}
		if fn != nil {
			fn(env)
		}
	}
}
