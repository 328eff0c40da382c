package domain

import (
	"errors"
	"fmt"
)

var ErrInvalidTransition = errors.New("invalid run state transition")

// RunState is the lifecycle of a single per-date planning run.
type RunState string

const (
	RunFetching          RunState = "fetching"
	RunClustering        RunState = "clustering"
	RunOptimizing        RunState = "optimizing"
	RunAwaitingSelection RunState = "awaiting-selection"
	RunConfirming        RunState = "confirming"
	RunDone              RunState = "done"
	RunError             RunState = "error"
)

var runTransitions = map[RunState][]RunState{
	RunFetching:          {RunClustering},
	RunClustering:        {RunOptimizing, RunDone},
	RunOptimizing:        {RunOptimizing, RunAwaitingSelection, RunDone},
	RunAwaitingSelection: {RunAwaitingSelection, RunConfirming, RunOptimizing, RunDone},
	RunConfirming:        {RunAwaitingSelection, RunOptimizing, RunDone},
}

func (s RunState) Terminal() bool { return s == RunDone || s == RunError }

// CanTransition reports whether a run may move from one state to another.
// Error is reachable from every non-terminal state.
func CanTransition(from, to RunState) bool {
	if from.Terminal() {
		return false
	}
	if to == RunError {
		return true
	}
	for _, next := range runTransitions[from] {
		if next == to {
			return true
		}
	}
	return false
}

// RunTracker records the states a run has visited and rejects illegal moves.
type RunTracker struct {
	current RunState
	history []RunState
}

func NewRunTracker() *RunTracker {
	return &RunTracker{current: RunFetching, history: []RunState{RunFetching}}
}

func (t *RunTracker) Current() RunState { return t.current }

func (t *RunTracker) History() []RunState {
	out := make([]RunState, len(t.history))
	copy(out, t.history)
	return out
}

func (t *RunTracker) Advance(to RunState) error {
	if !CanTransition(t.current, to) {
		return fmt.Errorf("%w: %s -> %s", ErrInvalidTransition, t.current, to)
	}
	t.current = to
	t.history = append(t.history, to)
	return nil
}
