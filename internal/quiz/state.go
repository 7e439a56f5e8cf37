// internal/quiz/state.go
package quiz

// GameState is the replicated aggregate: one complete snapshot of game
// progress. It carries no behavior of its own; the owner's Game mutates it and
// player sessions replace their replica with it wholesale.
type GameState struct {
	Items            []PlayItem `json:"items"`
	CurrentIndex     int        `json:"currentIndex"`
	SecondsRemaining int        `json:"secondsRemaining"`
	IsRunning        bool       `json:"isRunning"`
	IsFinished       bool       `json:"isFinished"`
}

// Clone returns a deep copy. Every transmission and every snapshot handed to
// callers is a copy; items are never shared by reference across boundaries.
func (s GameState) Clone() GameState {
	out := s
	if s.Items != nil {
		out.Items = make([]PlayItem, len(s.Items))
		copy(out.Items, s.Items)
	}
	return out
}

// Valid reports whether the state invariants hold: a finished game is never
// running, and CurrentIndex addresses a real item whenever items exist.
func (s GameState) Valid() bool {
	if s.IsFinished && s.IsRunning {
		return false
	}
	if len(s.Items) > 0 && (s.CurrentIndex < 0 || s.CurrentIndex >= len(s.Items)) {
		return false
	}
	if s.SecondsRemaining < 0 {
		return false
	}
	return true
}
