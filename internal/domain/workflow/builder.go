package workflow

import (
	"context"
	"fmt"
)

// StateMachineBuilder collects transitions and stamps out machines
type StateMachineBuilder interface {
	// Configure returns the transition table for state, creating it on first use
	Configure(state State) StateConfiguration

	// Build creates a machine positioned at initialState
	Build(initialState State) StateMachine
}

// StateConfiguration adds transitions out of one state
type StateConfiguration interface {
	// Permit maps trigger to toState; a later Permit for the same trigger wins
	Permit(trigger Trigger, toState State) StateConfiguration
}

type transitionTable map[Trigger]State

type stateMachineBuilder struct {
	tables map[State]transitionTable
}

type stateMachine struct {
	current State
	tables  map[State]transitionTable
}

// NewBuilder creates an empty builder
func NewBuilder() StateMachineBuilder {
	return &stateMachineBuilder{tables: make(map[State]transitionTable)}
}

func (b *stateMachineBuilder) Configure(state State) StateConfiguration {
	if !state.IsValid() {
		panic(fmt.Sprintf("invalid state: %s", state))
	}
	table, ok := b.tables[state]
	if !ok {
		table = make(transitionTable)
		b.tables[state] = table
	}
	return table
}

// Build snapshots the tables so later Configure calls do not leak into
// machines already handed out.
func (b *stateMachineBuilder) Build(initialState State) StateMachine {
	if !initialState.IsValid() {
		panic(fmt.Sprintf("invalid initial state: %s", initialState))
	}

	tables := make(map[State]transitionTable, len(b.tables))
	for state, table := range b.tables {
		copied := make(transitionTable, len(table))
		for trigger, to := range table {
			copied[trigger] = to
		}
		tables[state] = copied
	}
	return &stateMachine{current: initialState, tables: tables}
}

func (t transitionTable) Permit(trigger Trigger, toState State) StateConfiguration {
	if !toState.IsValid() {
		panic(fmt.Sprintf("invalid target state: %s", toState))
	}
	t[trigger] = toState
	return t
}

func (m *stateMachine) State() State {
	return m.current
}

func (m *stateMachine) CanFire(trigger Trigger) bool {
	_, ok := m.tables[m.current][trigger]
	return ok
}

func (m *stateMachine) IsTerminal() bool {
	return len(m.tables[m.current]) == 0
}

func (m *stateMachine) Fire(ctx context.Context, trigger Trigger) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	to, ok := m.tables[m.current][trigger]
	if !ok {
		return fmt.Errorf("%w: cannot fire %s from %s", ErrInvalidTransition, trigger, m.current)
	}
	m.current = to
	return nil
}
