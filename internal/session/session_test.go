// internal/session/session_test.go
package session

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizring/quizring/internal/quiz"
	"github.com/quizring/quizring/internal/replication"
)

func quietLogger() *logrus.Logger {
	l := logrus.New()
	l.SetLevel(logrus.PanicLevel)
	return l
}

func testBank() []quiz.QuizItem {
	return []quiz.QuizItem{
		{Letter: "A", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "a"},
		{Letter: "B", Rule: quiz.RuleContains, Prompt: "p", Answer: "b"},
		{Letter: "C", Rule: quiz.RuleEndsWith, Prompt: "p", Answer: "c"},
	}
}

// stubNetwork implements Transport and Joiner; Join blocks until ack closes.
type stubNetwork struct {
	ack chan struct{}

	mu      sync.Mutex
	joined  bool
	handler func(replication.Envelope)
	closed  int
	sent    int
}

func newStubNetwork() *stubNetwork {
	return &stubNetwork{ack: make(chan struct{})}
}

func (s *stubNetwork) Name() string { return "network" }

func (s *stubNetwork) Join(ctx context.Context) error {
	select {
	case <-s.ack:
		s.mu.Lock()
		s.joined = true
		s.mu.Unlock()
		return nil
	case <-ctx.Done():
		return ctx.Err()
	}
}

func (s *stubNetwork) Joined() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.joined
}

func (s *stubNetwork) Send(_ context.Context, _ replication.Envelope) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if !s.joined {
		return replication.ErrNotJoined
	}
	s.sent++
	return nil
}

func (s *stubNetwork) OnReceive(fn func(replication.Envelope)) {
	s.mu.Lock()
	s.handler = fn
	s.mu.Unlock()
}

func (s *stubNetwork) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.closed++
	return nil
}

func (s *stubNetwork) closeCount() int {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func TestNewValidation(t *testing.T) {
	_, err := New(Config{Role: RoleOwner, RoomID: "", Logger: quietLogger()})
	assert.Error(t, err, "room id is required")

	_, err = New(Config{Role: "referee", RoomID: "r", Logger: quietLogger()})
	assert.Error(t, err, "unknown role")

	_, err = New(Config{Role: RoleOwner, RoomID: "r", Logger: quietLogger()})
	assert.Error(t, err, "owner needs a game")

	_, err = New(Config{Role: RolePlayer, RoomID: "r", Logger: quietLogger()})
	assert.NoError(t, err, "players carry no game")
}

func TestSessionJoinHandshake(t *testing.T) {
	net := newStubNetwork()
	s, err := New(Config{
		Role:    RolePlayer,
		RoomID:  "r1",
		Network: net,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	defer s.Close()

	require.Equal(t, StateIdle, s.State())
	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, StateJoining, s.State(), "network ack is pending")

	close(net.ack)
	require.Eventually(t, func() bool { return s.State() == StateJoined }, time.Second, 5*time.Millisecond)
}

func TestSessionJoinedImmediatelyWithoutNetwork(t *testing.T) {
	bus := replication.NewLocalBus()
	s, err := New(Config{
		Role:   RolePlayer,
		RoomID: "r1",
		Locals: []replication.Transport{bus.Open()},
		Logger: quietLogger(),
	})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))
	assert.Equal(t, StateJoined, s.State(), "nothing to hand-shake with")
}

func TestSessionTeardownIdempotent(t *testing.T) {
	net := newStubNetwork()
	bus := replication.NewLocalBus()
	s, err := New(Config{
		Role:    RolePlayer,
		RoomID:  "r1",
		Locals:  []replication.Transport{bus.Open()},
		Network: net,
		Logger:  quietLogger(),
	})
	require.NoError(t, err)
	require.NoError(t, s.Open(context.Background()))

	s.Close()
	firstState := s.State()
	firstCloses := net.closeCount()

	s.Close()
	assert.Equal(t, firstState, s.State(), "second close leaves the same final state")
	assert.Equal(t, firstCloses, net.closeCount(), "transports close exactly once")
	assert.Equal(t, StateIdle, s.State())
}

func TestSessionDoubleOpenRejected(t *testing.T) {
	s, err := New(Config{Role: RolePlayer, RoomID: "r1", Logger: quietLogger()})
	require.NoError(t, err)
	defer s.Close()

	require.NoError(t, s.Open(context.Background()))
	assert.Error(t, s.Open(context.Background()))
}

// TestOwnerToPlayerReplication runs an owner and a player session over one
// in-process bus and checks the full outbound->inbound path.
func TestOwnerToPlayerReplication(t *testing.T) {
	bus := replication.NewLocalBus()
	logger := quietLogger()

	game := quiz.NewGame(testBank(), 100, clockwork.NewFakeClock(), logger)
	owner, err := New(Config{
		Role:   RoleOwner,
		RoomID: "shared",
		Locals: []replication.Transport{bus.Open()},
		Game:   game,
		Logger: logger,
	})
	require.NoError(t, err)
	defer owner.Close()

	player, err := New(Config{
		Role:   RolePlayer,
		RoomID: "shared",
		Locals: []replication.Transport{bus.Open()},
		Logger: logger,
	})
	require.NoError(t, err)
	defer player.Close()

	require.NoError(t, owner.Open(context.Background()))
	require.NoError(t, player.Open(context.Background()))

	game.MarkCurrent(quiz.StatusCorrect)

	require.Eventually(t, func() bool {
		snap := player.Snapshot()
		return len(snap.Items) == 3 && snap.Items[0].Status == quiz.StatusCorrect
	}, time.Second, 5*time.Millisecond)

	snap := player.Snapshot()
	assert.Equal(t, 1, snap.CurrentIndex)
	assert.Equal(t, owner.Snapshot(), snap, "replica mirrors the canonical state")
}

// TestPlayerIgnoresForeignRoom runs two rooms on one bus: the player must
// only ever apply its own room's envelopes.
func TestPlayerIgnoresForeignRoom(t *testing.T) {
	bus := replication.NewLocalBus()
	logger := quietLogger()

	gameA := quiz.NewGame(testBank(), 100, clockwork.NewFakeClock(), logger)
	ownerA, err := New(Config{
		Role: RoleOwner, RoomID: "room-a",
		Locals: []replication.Transport{bus.Open()},
		Game:   gameA, Logger: logger,
	})
	require.NoError(t, err)
	defer ownerA.Close()

	gameB := quiz.NewGame(testBank(), 100, clockwork.NewFakeClock(), logger)
	ownerB, err := New(Config{
		Role: RoleOwner, RoomID: "room-b",
		Locals: []replication.Transport{bus.Open()},
		Game:   gameB, Logger: logger,
	})
	require.NoError(t, err)
	defer ownerB.Close()

	player, err := New(Config{
		Role: RolePlayer, RoomID: "room-a",
		Locals: []replication.Transport{bus.Open()},
		Logger: logger,
	})
	require.NoError(t, err)
	defer player.Close()

	require.NoError(t, ownerA.Open(context.Background()))
	require.NoError(t, ownerB.Open(context.Background()))
	require.NoError(t, player.Open(context.Background()))

	gameA.MarkCurrent(quiz.StatusCorrect) // index -> 1
	gameB.MarkCurrent(quiz.StatusSkipped)
	gameB.MarkCurrent(quiz.StatusSkipped) // index -> 2 in the foreign room

	require.Eventually(t, func() bool {
		return player.Snapshot().CurrentIndex == 1
	}, time.Second, 5*time.Millisecond)
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 1, player.Snapshot().CurrentIndex, "foreign-room changes never leak in")
}

func TestNewRoomIDShape(t *testing.T) {
	a := NewRoomID()
	b := NewRoomID()
	assert.Len(t, a, 8)
	assert.NotEqual(t, a, b)
}
