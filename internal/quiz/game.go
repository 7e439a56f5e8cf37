// internal/quiz/game.go
package quiz

import (
	"sync"
	"time"

	"github.com/jonboulle/clockwork"
	"github.com/sirupsen/logrus"
)

// OnChangeFunc receives a snapshot after every authoritative state change.
// The owner's session wires this to the replicator so each change fans out.
type OnChangeFunc func(GameState)

// Game holds the canonical state for one owner session. All mutation goes
// through its methods behind the mutex; player sessions never construct one.
type Game struct {
	mu    sync.Mutex
	state GameState
	clock clockwork.Clock
	log   *logrus.Logger

	// onChange is invoked with a snapshot copy after the lock is released.
	onChange OnChangeFunc

	// countdown bookkeeping; stopTick is non-nil while the ticker goroutine runs
	stopTick chan struct{}
	tickWG   sync.WaitGroup
}

// NewGame builds a game over the given bank with a full countdown. The clock
// is injected so tests can drive the countdown deterministically.
func NewGame(items []QuizItem, seconds int, clock clockwork.Clock, logger *logrus.Logger) *Game {
	if clock == nil {
		clock = clockwork.NewRealClock()
	}
	return &Game{
		state: GameState{
			Items:            NewPlayItems(items),
			CurrentIndex:     0,
			SecondsRemaining: seconds,
		},
		clock: clock,
		log:   logger,
	}
}

// SetOnChange registers the change callback. Register before Start; the
// callback must not call back into the game.
func (g *Game) SetOnChange(fn OnChangeFunc) {
	g.mu.Lock()
	g.onChange = fn
	g.mu.Unlock()
}

// Snapshot returns a copy of the current state.
func (g *Game) Snapshot() GameState {
	g.mu.Lock()
	defer g.mu.Unlock()
	return g.state.Clone()
}

// Start begins (or resumes) the countdown. Starting a finished or empty game
// is a no-op.
func (g *Game) Start() {
	g.mu.Lock()
	if g.state.IsRunning || g.state.IsFinished || len(g.state.Items) == 0 || g.state.SecondsRemaining <= 0 {
		g.mu.Unlock()
		return
	}
	g.state.IsRunning = true
	g.startCountdownLocked()
	snap, fn := g.state.Clone(), g.onChange
	g.mu.Unlock()
	g.fire(snap, fn)
}

// Pause halts the countdown without touching item state.
func (g *Game) Pause() {
	g.mu.Lock()
	if !g.state.IsRunning {
		g.mu.Unlock()
		return
	}
	g.state.IsRunning = false
	g.stopCountdownLocked()
	snap, fn := g.state.Clone(), g.onChange
	g.mu.Unlock()
	g.fire(snap, fn)
}

// Reset returns every item to pending and restores the countdown to the given
// number of seconds. This is the only path that increases SecondsRemaining.
func (g *Game) Reset(seconds int) {
	g.mu.Lock()
	g.stopCountdownLocked()
	for i := range g.state.Items {
		g.state.Items[i].Status = StatusPending
	}
	g.state.CurrentIndex = 0
	g.state.SecondsRemaining = seconds
	g.state.IsRunning = false
	g.state.IsFinished = false
	snap, fn := g.state.Clone(), g.onChange
	g.mu.Unlock()
	g.fire(snap, fn)
}

// MarkCurrent records a result for the current item and advances to the next
// item still awaiting an answer (pending or skipped), wrapping around the
// board. When nothing is left to answer the game finishes.
func (g *Game) MarkCurrent(status Status) {
	g.mu.Lock()
	if g.state.IsFinished || len(g.state.Items) == 0 {
		g.mu.Unlock()
		return
	}
	g.state.Items[g.state.CurrentIndex].Status = status

	if next, ok := g.nextOpenLocked(); ok {
		g.state.CurrentIndex = next
	} else {
		g.state.IsRunning = false
		g.state.IsFinished = true
		g.stopCountdownLocked()
	}
	snap, fn := g.state.Clone(), g.onChange
	g.mu.Unlock()
	g.fire(snap, fn)
}

// nextOpenLocked scans forward from the current item, wrapping, for the next
// item that is pending or skipped. The current item itself is considered last,
// so a lone skipped item stays current.
func (g *Game) nextOpenLocked() (int, bool) {
	n := len(g.state.Items)
	for off := 1; off <= n; off++ {
		idx := (g.state.CurrentIndex + off) % n
		st := g.state.Items[idx].Status
		if st == StatusPending || st == StatusSkipped {
			return idx, true
		}
	}
	return 0, false
}

// Tick decrements the countdown by one second. Reaching zero finishes the
// game and fires exactly one resulting change.
func (g *Game) Tick() {
	g.mu.Lock()
	if !g.state.IsRunning {
		g.mu.Unlock()
		return
	}
	if g.state.SecondsRemaining > 0 {
		g.state.SecondsRemaining--
	}
	finished := false
	if g.state.SecondsRemaining == 0 {
		g.state.IsRunning = false
		g.state.IsFinished = true
		g.stopCountdownLocked()
		finished = true
	}
	snap, fn := g.state.Clone(), g.onChange
	g.mu.Unlock()
	if finished && g.log != nil {
		g.log.Info("Countdown reached zero; game finished")
	}
	g.fire(snap, fn)
}

// Close stops the countdown goroutine. Safe to call more than once.
func (g *Game) Close() {
	g.mu.Lock()
	g.stopCountdownLocked()
	g.mu.Unlock()
	g.tickWG.Wait()
}

// startCountdownLocked launches the ticker goroutine if it is not running.
func (g *Game) startCountdownLocked() {
	if g.stopTick != nil {
		return
	}
	stop := make(chan struct{})
	g.stopTick = stop
	g.tickWG.Add(1)
	go g.runCountdown(stop)
}

// stopCountdownLocked signals the ticker goroutine to exit. The goroutine may
// already be gone; closing is guarded by the nil check.
func (g *Game) stopCountdownLocked() {
	if g.stopTick != nil {
		close(g.stopTick)
		g.stopTick = nil
	}
}

func (g *Game) runCountdown(stop chan struct{}) {
	defer g.tickWG.Done()
	ticker := g.clock.NewTicker(time.Second)
	defer ticker.Stop()
	for {
		select {
		case <-stop:
			return
		case <-ticker.Chan():
			g.Tick()
		}
	}
}

// fire delivers a snapshot to the change callback outside the lock.
func (g *Game) fire(snap GameState, fn OnChangeFunc) {
	if fn != nil {
		fn(snap)
	}
}
