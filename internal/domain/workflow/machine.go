package workflow

import "context"

// StateMachine tracks a current state and validates transitions
type StateMachine interface {
	// State returns the current state
	State() State

	// CanFire returns true if the trigger is permitted in the current state
	CanFire(trigger Trigger) bool

	// Fire moves to the trigger's target state or returns ErrInvalidTransition
	Fire(ctx context.Context, trigger Trigger) error

	// IsTerminal reports whether no trigger can leave the current state
	IsTerminal() bool
}
