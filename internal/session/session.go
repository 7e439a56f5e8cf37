// internal/session/session.go
package session

import (
	"context"
	"errors"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"

	"github.com/quizring/quizring/internal/quiz"
	"github.com/quizring/quizring/internal/replication"
)

// Role is fixed for a session's lifetime. Only an owner session runs a
// replicator; only a player session applies observer updates.
type Role string

const (
	RoleOwner  Role = "owner"
	RolePlayer Role = "player"
)

// State is the session lifecycle: Idle -> Joining -> Joined, back to Idle on
// teardown. Local transports are usable from Joining onward; the network leg
// only in Joined. A session stuck in Joining is degraded but safe.
type State int

const (
	StateIdle State = iota
	StateJoining
	StateJoined
)

func (s State) String() string {
	switch s {
	case StateJoining:
		return "joining"
	case StateJoined:
		return "joined"
	default:
		return "idle"
	}
}

// networkRetryInterval spaces retries of a failed network join. Local
// transports keep working in between, so retrying is a background concern.
const networkRetryInterval = 5 * time.Second

// Config assembles a session. Transports are constructed by the caller and
// injected; the session owns their lifecycle from Open to Close.
type Config struct {
	Role   Role
	RoomID string

	// Locals are the handshake-free transports (local bus, storage slot).
	Locals []replication.Transport
	// Network is the pub/sub transport requiring a join handshake. Optional.
	Network replication.Transport

	// Game is the canonical state. Required for owners, ignored for players.
	Game *quiz.Game

	Clock  clockwork.Clock
	Logger *logrus.Logger
}

// RoomSession binds a role, a room, and the lifecycle of the transport
// connections for one execution context.
type RoomSession struct {
	ID     uuid.UUID
	Role   Role
	RoomID string

	game       *quiz.Game
	replicator *replication.Replicator
	observer   *replication.Observer
	transports []replication.Transport
	network    replication.Transport
	clock      clockwork.Clock
	log        *logrus.Entry

	mu       sync.Mutex
	state    State
	onUpdate func(quiz.GameState)

	cancelJoin context.CancelFunc
	closeOnce  sync.Once
	joinWG     sync.WaitGroup
}

// New validates the config and assembles a session in the Idle state.
func New(cfg Config) (*RoomSession, error) {
	if cfg.RoomID == "" {
		return nil, errors.New("session requires a room id")
	}
	if cfg.Role != RoleOwner && cfg.Role != RolePlayer {
		return nil, errors.New("session role must be owner or player")
	}
	if cfg.Role == RoleOwner && cfg.Game == nil {
		return nil, errors.New("owner session requires a game")
	}
	if cfg.Logger == nil {
		cfg.Logger = logrus.New()
	}
	if cfg.Clock == nil {
		cfg.Clock = clockwork.NewRealClock()
	}

	s := &RoomSession{
		ID:      uuid.New(),
		Role:    cfg.Role,
		RoomID:  cfg.RoomID,
		game:    cfg.Game,
		network: cfg.Network,
		clock:   cfg.Clock,
		log: cfg.Logger.WithFields(logrus.Fields{
			"room": cfg.RoomID,
			"role": string(cfg.Role),
		}),
		state: StateIdle,
	}
	s.transports = append(s.transports, cfg.Locals...)
	if cfg.Network != nil {
		s.transports = append(s.transports, cfg.Network)
	}

	switch cfg.Role {
	case RoleOwner:
		s.replicator = replication.NewReplicator(cfg.RoomID, s.ID, cfg.Clock, cfg.Logger)
		for _, t := range cfg.Locals {
			s.replicator.AddLocal(t)
		}
		if cfg.Network != nil {
			s.replicator.SetNetwork(cfg.Network)
		}
	case RolePlayer:
		s.observer = replication.NewObserver(cfg.RoomID, s.ID, cfg.Logger)
	}
	return s, nil
}

// State returns the current lifecycle state.
func (s *RoomSession) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// OnUpdate registers a callback fired with every new snapshot this session
// produces (owner) or applies (player). Register before Open.
func (s *RoomSession) OnUpdate(fn func(quiz.GameState)) {
	s.mu.Lock()
	s.onUpdate = fn
	s.mu.Unlock()
	if s.observer != nil {
		s.observer.SetOnApply(fn)
	}
}

// Snapshot returns this session's view of the game: the canonical state for
// an owner, the replica for a player.
func (s *RoomSession) Snapshot() quiz.GameState {
	if s.Role == RoleOwner {
		return s.game.Snapshot()
	}
	return s.observer.Snapshot()
}

// Game exposes the canonical game for owner control surfaces. Nil for
// players.
func (s *RoomSession) Game() *quiz.Game {
	if s.Role == RoleOwner {
		return s.game
	}
	return nil
}

// Open moves Idle -> Joining: local legs become usable immediately, listener
// registration happens exactly once per transport, and the network join is
// launched in the background. The session reaches Joined when (and if) the
// handshake acknowledges.
func (s *RoomSession) Open(ctx context.Context) error {
	s.mu.Lock()
	if s.state != StateIdle {
		s.mu.Unlock()
		return errors.New("session already open")
	}
	s.state = StateJoining
	onUpdate := s.onUpdate
	s.mu.Unlock()

	if s.observer != nil {
		// One registration per transport for the session's lifetime;
		// re-registering would multiply delivered events.
		for _, t := range s.transports {
			t.OnReceive(s.observer.OnEnvelope)
		}
	}

	if s.Role == RoleOwner {
		s.game.SetOnChange(func(st quiz.GameState) {
			s.replicator.Publish(st)
			if onUpdate != nil {
				onUpdate(st)
			}
		})
	}

	joiner, ok := s.network.(replication.Joiner)
	if s.network == nil || !ok {
		// Nothing to hand-shake with; every configured leg is already usable.
		s.setState(StateJoined)
		s.log.Info("Session open")
		return nil
	}

	joinCtx, cancel := context.WithCancel(context.Background())
	s.mu.Lock()
	s.cancelJoin = cancel
	s.mu.Unlock()

	s.joinWG.Add(1)
	go s.joinNetwork(joinCtx, joiner)
	s.log.Info("Session open, network join in progress")
	return nil
}

// joinNetwork attempts the handshake, retrying on a fixed interval until it
// succeeds or the session closes. Failure is not surfaced to the user: local
// legs keep replicating and the session simply stays in Joining.
func (s *RoomSession) joinNetwork(ctx context.Context, joiner replication.Joiner) {
	defer s.joinWG.Done()
	for {
		err := joiner.Join(ctx)
		if err == nil {
			s.setState(StateJoined)
			s.log.Info("Network channel joined")
			return
		}
		if ctx.Err() != nil {
			return
		}
		s.log.WithError(err).Warn("Network join failed; replication degraded to local transports")
		select {
		case <-ctx.Done():
			return
		case <-s.clock.After(networkRetryInterval):
		}
	}
}

func (s *RoomSession) setState(st State) {
	s.mu.Lock()
	s.state = st
	s.mu.Unlock()
}

// Close tears the session down: cancel the join, stop the owner's countdown,
// close every transport, return to Idle. Idempotent: calling it twice is
// the same as calling it once, and no listener fires afterwards.
func (s *RoomSession) Close() {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		cancel := s.cancelJoin
		s.cancelJoin = nil
		s.mu.Unlock()
		if cancel != nil {
			cancel()
		}
		s.joinWG.Wait()

		if s.game != nil {
			s.game.SetOnChange(nil)
			s.game.Close()
		}
		for _, t := range s.transports {
			if err := t.Close(); err != nil {
				s.log.WithError(err).WithField("transport", t.Name()).Warn("Transport close failed")
			}
		}
		s.setState(StateIdle)
		s.log.Info("Session closed")
	})
}
