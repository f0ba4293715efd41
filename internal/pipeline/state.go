package pipeline

import (
	"errors"
	"fmt"
)

// State is a step of a pipeline run.
type State int

const (
	StateIdle State = iota
	StateLoading
	StateResolvingContainer
	StateResolvingPackage
	StateResolvingAssets
	StateComposing
	StateExtractingBody
	StateDone
	StateCancelled
	StateFailed
)

var stateNames = [...]string{
	StateIdle:               "idle",
	StateLoading:            "loading",
	StateResolvingContainer: "resolving-container",
	StateResolvingPackage:   "resolving-package",
	StateResolvingAssets:    "resolving-assets",
	StateComposing:          "composing",
	StateExtractingBody:     "extracting-body",
	StateDone:               "done",
	StateCancelled:          "cancelled",
	StateFailed:             "failed",
}

func (s State) String() string {
	if s < 0 || int(s) >= len(stateNames) {
		return fmt.Sprintf("state(%d)", int(s))
	}
	return stateNames[s]
}

// Terminal reports whether no transition leaves s.
func (s State) Terminal() bool {
	return s == StateDone || s == StateCancelled || s == StateFailed
}

// ErrCancelled is returned by Run when its context ends before the
// document is complete. The context's cause is wrapped alongside it.
var ErrCancelled = errors.New("pipeline: cancelled")

// ParseError is a structural failure that aborted a run. Stage is the state
// the run was in when it failed.
type ParseError struct {
	Stage State
	Err   error
}

func (e *ParseError) Error() string {
	return fmt.Sprintf("pipeline: %s: %v", e.Stage, e.Err)
}

func (e *ParseError) Unwrap() error {
	return e.Err
}
