// internal/replication/localbus_test.go
package replication

import (
	"context"
	"sync"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/quizring/quizring/internal/quiz"
)

// envCollector records envelopes delivered to one leg.
type envCollector struct {
	mu   sync.Mutex
	envs []Envelope
}

func (c *envCollector) handle(env Envelope) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.envs = append(c.envs, env)
}

func (c *envCollector) count() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.envs)
}

func (c *envCollector) all() []Envelope {
	c.mu.Lock()
	defer c.mu.Unlock()
	out := make([]Envelope, len(c.envs))
	copy(out, c.envs)
	return out
}

func stateWithIndex(idx int) quiz.GameState {
	return quiz.GameState{
		Items: quiz.NewPlayItems([]quiz.QuizItem{
			{Letter: "A", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "a"},
			{Letter: "B", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "b"},
			{Letter: "C", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "c"},
			{Letter: "D", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "d"},
			{Letter: "E", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "e"},
			{Letter: "F", Rule: quiz.RuleStartsWith, Prompt: "p", Answer: "f"},
		}),
		CurrentIndex:     idx,
		SecondsRemaining: 100,
	}
}

func TestLocalBusSameSenderFIFO(t *testing.T) {
	bus := NewLocalBus()
	sender := bus.Open()
	receiver := bus.Open()
	defer sender.Close()
	defer receiver.Close()

	got := &envCollector{}
	receiver.OnReceive(got.handle)

	sid := uuid.New()
	for i := 0; i < 10; i++ {
		env := NewEnvelope("room", sid, stateWithIndex(i%6), time.Now())
		env.EmittedAt = int64(i) // tag with sequence for the order check
		require.NoError(t, sender.Send(context.Background(), env))
	}

	require.Eventually(t, func() bool { return got.count() == 10 }, time.Second, 5*time.Millisecond)
	for i, env := range got.all() {
		assert.Equal(t, int64(i), env.EmittedAt, "delivery must preserve send order from one sender")
	}
}

func TestLocalBusSenderExcluded(t *testing.T) {
	bus := NewLocalBus()
	a := bus.Open()
	b := bus.Open()
	defer a.Close()
	defer b.Close()

	aGot := &envCollector{}
	bGot := &envCollector{}
	a.OnReceive(aGot.handle)
	b.OnReceive(bGot.handle)

	require.NoError(t, a.Send(context.Background(), NewEnvelope("room", uuid.New(), stateWithIndex(0), time.Now())))

	require.Eventually(t, func() bool { return bGot.count() == 1 }, time.Second, 5*time.Millisecond)
	assert.Equal(t, 0, aGot.count(), "a leg never hears its own sends")
}

func TestLocalBusCloseIsIdempotent(t *testing.T) {
	bus := NewLocalBus()
	a := bus.Open()
	b := bus.Open()

	got := &envCollector{}
	b.OnReceive(got.handle)

	require.NoError(t, b.Close())
	require.NoError(t, b.Close(), "second close must be a no-op")

	// Sends to a closed leg's bus still work; the closed leg just misses out.
	require.NoError(t, a.Send(context.Background(), NewEnvelope("room", uuid.New(), stateWithIndex(0), time.Now())))
	time.Sleep(20 * time.Millisecond)
	assert.Equal(t, 0, got.count(), "no delivery after close")

	assert.ErrorIs(t, b.Send(context.Background(), Envelope{}), ErrClosed)
	require.NoError(t, a.Close())
}

func TestLocalBusThreeWayFanout(t *testing.T) {
	bus := NewLocalBus()
	a, b, c := bus.Open(), bus.Open(), bus.Open()
	defer a.Close()
	defer b.Close()
	defer c.Close()

	bGot, cGot := &envCollector{}, &envCollector{}
	b.OnReceive(bGot.handle)
	c.OnReceive(cGot.handle)

	require.NoError(t, a.Send(context.Background(), NewEnvelope("room", uuid.New(), stateWithIndex(2), time.Now())))

	require.Eventually(t, func() bool {
		return bGot.count() == 1 && cGot.count() == 1
	}, time.Second, 5*time.Millisecond)
	assert.Equal(t, 2, bGot.all()[0].Payload.CurrentIndex)
}
