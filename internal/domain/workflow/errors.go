package workflow

import "errors"

var (
	// ErrInvalidTransition means the trigger has no transition out of the current state
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrInvalidState means a status is outside the lifecycle it was used with
	ErrInvalidState = errors.New("invalid state")
)
