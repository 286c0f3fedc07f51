package pipeline

import (
	"errors"
	"fmt"
)

// ErrInvalidTransition is returned by the state guard for a move the
// pipeline does not allow
var ErrInvalidTransition = errors.New("invalid state transition")

// State is the controller's position in the capture cycle
type State int32

const (
	StateIdle State = iota
	StateCapturing
	StateStopping
	StateTranscribing
)

func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateCapturing:
		return "capturing"
	case StateStopping:
		return "stopping"
	case StateTranscribing:
		return "transcribing"
	default:
		return fmt.Sprintf("state(%d)", int32(s))
	}
}

// CanTransitionTo reports whether moving from s to next is allowed
func (s State) CanTransitionTo(next State) bool {
	switch s {
	case StateIdle:
		return next == StateCapturing
	case StateCapturing:
		return next == StateStopping
	case StateStopping:
		return next == StateTranscribing || next == StateIdle
	case StateTranscribing:
		return next == StateIdle
	}
	return false
}
