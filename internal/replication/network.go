// internal/replication/network.go
package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"

	"github.com/redis/go-redis/v9"
	"github.com/sirupsen/logrus"
)

// Channel is the network transport: Redis pub/sub scoped to one room's
// subject. Join subscribes and blocks until Redis confirms the subscription;
// that confirmation is the join handshake, and sends attempted before it are
// dropped. Delivery is fire-and-forget; a lost message is healed by the next
// full-snapshot publish.
type Channel struct {
	rdb    *redis.Client
	roomID string
	log    *logrus.Entry

	mu      sync.Mutex
	joined  bool
	sub     *redis.PubSub
	handler func(Envelope)

	closeOnce sync.Once
	wg        sync.WaitGroup
}

// NewChannel returns an unjoined channel for the given room.
func NewChannel(rdb *redis.Client, roomID string, logger *logrus.Logger) *Channel {
	return &Channel{
		rdb:    rdb,
		roomID: roomID,
		log:    logger.WithFields(logrus.Fields{"transport": "network", "room": roomID}),
	}
}

func (c *Channel) subject() string {
	return "quizring.room." + c.roomID
}

// Name implements Transport.
func (c *Channel) Name() string { return "network" }

// Join implements Joiner: subscribe to the room subject and wait for the
// subscription acknowledgment before accepting sends.
func (c *Channel) Join(ctx context.Context) error {
	c.mu.Lock()
	if c.joined {
		c.mu.Unlock()
		return nil
	}
	sub := c.rdb.Subscribe(ctx, c.subject())
	c.sub = sub
	c.mu.Unlock()

	// Receive blocks until the *redis.Subscription confirmation arrives.
	if _, err := sub.Receive(ctx); err != nil {
		_ = sub.Close()
		c.mu.Lock()
		c.sub = nil
		c.mu.Unlock()
		return fmt.Errorf("join room %s: %w", c.roomID, err)
	}

	c.mu.Lock()
	c.joined = true
	c.mu.Unlock()

	c.wg.Add(1)
	go c.readLoop(sub)
	c.log.Info("Joined room channel")
	return nil
}

// Joined implements Joiner.
func (c *Channel) Joined() bool {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.joined
}

// Send implements Transport. Sends before the handshake completes return
// ErrNotJoined and are dropped by the caller, never queued.
func (c *Channel) Send(ctx context.Context, env Envelope) error {
	if !c.Joined() {
		return ErrNotJoined
	}
	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	if err := c.rdb.Publish(ctx, c.subject(), data).Err(); err != nil {
		return fmt.Errorf("publish to %s: %w", c.subject(), err)
	}
	return nil
}

// OnReceive implements Transport.
func (c *Channel) OnReceive(fn func(Envelope)) {
	c.mu.Lock()
	c.handler = fn
	c.mu.Unlock()
}

// Close implements Transport. Idempotent; leaves the room subscription.
func (c *Channel) Close() error {
	c.closeOnce.Do(func() {
		c.mu.Lock()
		c.joined = false
		sub := c.sub
		c.sub = nil
		c.mu.Unlock()
		if sub != nil {
			_ = sub.Close()
		}
		c.wg.Wait()
	})
	return nil
}

// readLoop delivers subscribed messages until the subscription closes.
func (c *Channel) readLoop(sub *redis.PubSub) {
	defer c.wg.Done()
	for msg := range sub.Channel() {
		var env Envelope
		if err := json.Unmarshal([]byte(msg.Payload), &env); err != nil {
			c.log.WithError(err).Warn("Discarding malformed network envelope")
			continue
		}
		c.mu.Lock()
		fn := c.handler
		c.mu.Unlock()
		if fn != nil {
			fn(env)
		}
	}
}
