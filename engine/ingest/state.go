package ingest

import "fmt"

// State is a record's position in the per-item lifecycle.
type State string

const (
	StatePending     State = "PENDING"
	StateEmbedding   State = "EMBEDDING"
	StateEmbedFailed State = "EMBED_FAILED"
	StateEmbedded    State = "EMBEDDED"
	StateWriting     State = "WRITING"
	StateWriteFailed State = "WRITE_FAILED"
	StateWritten     State = "WRITTEN"
)

var transitions = map[State][]State{
	StatePending:   {StateEmbedding},
	StateEmbedding: {StateEmbedFailed, StateEmbedded},
	StateEmbedded:  {StateWriting},
	StateWriting:   {StateWriteFailed, StateWritten},
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateEmbedFailed || s == StateWriteFailed || s == StateWritten
}

// CanTransition reports whether to directly follows s.
func (s State) CanTransition(to State) bool {
	for _, next := range transitions[s] {
		if next == to {
			return true
		}
	}
	return false
}

// lifecycle tracks one record and refuses illegal moves.
type lifecycle struct {
	state State
}

func newLifecycle() *lifecycle { return &lifecycle{state: StatePending} }

func (l *lifecycle) to(next State) error {
	if !l.state.CanTransition(next) {
		return fmt.Errorf("ingest: illegal transition %s -> %s", l.state, next)
	}
	l.state = next
	return nil
}
