// internal/replication/storage.go
package replication

import (
	"context"
	"encoding/json"
	"fmt"
	"sync"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/sirupsen/logrus"
)

// notifyChannel is the Postgres NOTIFY channel carrying slot-change signals.
// The notification payload is only the room id; receivers re-read the slot.
const notifyChannel = "quizring_room_state"

const slotSchema = `
CREATE TABLE IF NOT EXISTS room_state_slots (
	room_id    text PRIMARY KEY,
	payload    jsonb NOT NULL,
	written_at timestamptz NOT NULL DEFAULT now()
)`

// StorageSlot is the storage-signal transport: each send overwrites a single
// per-room slot row and fires a change notification; receivers re-read the
// slot on each signal. A rapid burst can overwrite the slot before a receiver
// gets to it. That is acceptable, since every envelope is a complete snapshot and
// the next publish re-sends everything. The slot is a signaling medium, not a
// persistence layer.
type StorageSlot struct {
	pool *pgxpool.Pool
	log  *logrus.Entry

	mu      sync.Mutex
	handler func(Envelope)
	closed  bool

	listenOnce sync.Once
	closeOnce  sync.Once
	cancel     context.CancelFunc
	wg         sync.WaitGroup
}

// NewStorageSlot ensures the slot table exists and returns the transport.
func NewStorageSlot(ctx context.Context, pool *pgxpool.Pool, logger *logrus.Logger) (*StorageSlot, error) {
	if _, err := pool.Exec(ctx, slotSchema); err != nil {
		return nil, fmt.Errorf("ensure room slot table: %w", err)
	}
	return &StorageSlot{
		pool: pool,
		log:  logger.WithField("transport", "storage"),
	}, nil
}

// Name implements Transport.
func (s *StorageSlot) Name() string { return "storage" }

// Send implements Transport: upsert the envelope into the room's slot with a
// wall-clock write time, then notify listeners that the slot changed.
func (s *StorageSlot) Send(ctx context.Context, env Envelope) error {
	s.mu.Lock()
	closed := s.closed
	s.mu.Unlock()
	if closed {
		return ErrClosed
	}

	data, err := json.Marshal(env)
	if err != nil {
		return fmt.Errorf("marshal envelope: %w", err)
	}
	_, err = s.pool.Exec(ctx, `
		INSERT INTO room_state_slots (room_id, payload, written_at)
		VALUES ($1, $2, now())
		ON CONFLICT (room_id) DO UPDATE
		SET payload = EXCLUDED.payload, written_at = now()`,
		env.RoomID, data)
	if err != nil {
		return fmt.Errorf("write room slot: %w", err)
	}
	if _, err = s.pool.Exec(ctx, `SELECT pg_notify($1, $2)`, notifyChannel, env.RoomID); err != nil {
		return fmt.Errorf("notify room slot change: %w", err)
	}
	return nil
}

// OnReceive implements Transport. The first registration starts the LISTEN
// loop on a dedicated connection.
func (s *StorageSlot) OnReceive(fn func(Envelope)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()

	s.listenOnce.Do(func() {
		ctx, cancel := context.WithCancel(context.Background())
		s.mu.Lock()
		s.cancel = cancel
		s.mu.Unlock()
		s.wg.Add(1)
		go s.listen(ctx)
	})
}

// Close implements Transport. Idempotent; stops the LISTEN loop.
func (s *StorageSlot) Close() error {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.closed = true
		cancel := s.cancel
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.wg.Wait()
	})
	return nil
}

// listen holds one pooled connection on LISTEN and re-reads the changed
// room's slot for every notification. Connection loss tears the loop down
// and a fresh connection is acquired; notifications missed in between are
// healed by the next publish.
func (s *StorageSlot) listen(ctx context.Context) {
	defer s.wg.Done()
	for ctx.Err() == nil {
		if err := s.runListener(ctx); err != nil && ctx.Err() == nil {
			s.log.WithError(err).Warn("Slot listener lost connection, retrying")
			select {
			case <-ctx.Done():
			case <-time.After(time.Second):
			}
		}
	}
}

func (s *StorageSlot) runListener(ctx context.Context) error {
	conn, err := s.pool.Acquire(ctx)
	if err != nil {
		return fmt.Errorf("acquire listen connection: %w", err)
	}
	defer conn.Release()

	if _, err := conn.Exec(ctx, "LISTEN "+notifyChannel); err != nil {
		return fmt.Errorf("listen on %s: %w", notifyChannel, err)
	}

	for {
		note, err := conn.Conn().WaitForNotification(ctx)
		if err != nil {
			return err
		}
		s.deliverSlot(ctx, note.Payload)
	}
}

// deliverSlot reads the current slot for the notified room and hands it to
// the handler. A missing row means the slot was already replaced or cleared;
// silently skip it.
func (s *StorageSlot) deliverSlot(ctx context.Context, roomID string) {
	var data []byte
	err := s.pool.QueryRow(ctx,
		`SELECT payload FROM room_state_slots WHERE room_id = $1`, roomID,
	).Scan(&data)
	if err != nil {
		s.log.WithError(err).WithField("room", roomID).Debug("Slot read after notify failed")
		return
	}

	var env Envelope
	if err := json.Unmarshal(data, &env); err != nil {
		s.log.WithError(err).WithField("room", roomID).Warn("Discarding malformed slot payload")
		return
	}

	s.mu.Lock()
	fn, closed := s.handler, s.closed
	s.mu.Unlock()
	if closed || fn == nil {
		return
	}
	fn(env)
}
