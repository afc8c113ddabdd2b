package workflow

import (
	"context"
	"errors"
	"testing"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

func TestState_IsValid(t *testing.T) {
	tests := []struct {
		name     string
		state    State
		expected bool
	}{
		{"requisition state", StatePendingApproval, true},
		{"approval state", StateCancelled, true},
		{"shared state", StateApproved, true},
		{"invalid state", State("INVALID"), false},
		{"empty state", State(""), false},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := tt.state.IsValid(); got != tt.expected {
				t.Errorf("State.IsValid() = %v, want %v", got, tt.expected)
			}
		})
	}
}

func TestTrigger_String(t *testing.T) {
	if got := TriggerWithdraw.String(); got != "WITHDRAW" {
		t.Errorf("Trigger.String() = %v, want %v", got, "WITHDRAW")
	}
}

func TestBuilder_ConfigurePanicsOnInvalidState(t *testing.T) {
	builder := NewBuilder()

	defer func() {
		if r := recover(); r == nil {
			t.Error("Configure() should panic on invalid state")
		}
	}()

	builder.Configure(State("INVALID"))
}

func TestStateConfiguration_PermitOverridesEarlierTarget(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StatePendingApproval).
		Permit(TriggerWithdraw, StateRejected).
		Permit(TriggerWithdraw, StateDraft)

	machine := builder.Build(StatePendingApproval)
	if err := machine.Fire(context.Background(), TriggerWithdraw); err != nil {
		t.Fatalf("Fire() failed: %v", err)
	}
	if machine.State() != StateDraft {
		t.Errorf("State after Fire() = %v, want %v", machine.State(), StateDraft)
	}
}

func TestBuilder_BuildSnapshotsTables(t *testing.T) {
	builder := NewBuilder()
	builder.Configure(StateDraft)
	machine := builder.Build(StateDraft)

	builder.Configure(StateDraft).Permit(TriggerSubmit, StatePendingApproval)
	if machine.CanFire(TriggerSubmit) {
		t.Error("machine built before Permit should not see the new transition")
	}
	if !builder.Build(StateDraft).CanFire(TriggerSubmit) {
		t.Error("machine built after Permit should see the new transition")
	}
}

func TestStateMachine_FireHonoursCancelledContext(t *testing.T) {
	machine, err := RequisitionMachine(entity.RequisitionDraft)
	if err != nil {
		t.Fatalf("RequisitionMachine() error = %v", err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	if err := machine.Fire(ctx, TriggerSubmit); !errors.Is(err, context.Canceled) {
		t.Errorf("Fire() error = %v, want %v", err, context.Canceled)
	}
	if machine.State() != StateDraft {
		t.Errorf("State = %v, want %v", machine.State(), StateDraft)
	}
}

func TestStateMachine_Immutability(t *testing.T) {
	machine1, _ := RequisitionMachine(entity.RequisitionDraft)
	machine2, _ := RequisitionMachine(entity.RequisitionDraft)

	if err := machine1.Fire(context.Background(), TriggerSubmit); err != nil {
		t.Errorf("Fire() failed: %v", err)
	}
	if machine2.State() != StateDraft {
		t.Errorf("machine2 state = %v, want %v (machines should be independent)", machine2.State(), StateDraft)
	}
}

// The lifecycles are package variables configured during init; every
// case below fails to load at all if that configuration panics.
func TestRequisitionMachine_Transitions(t *testing.T) {
	tests := []struct {
		from    entity.RequisitionStatus
		trigger Trigger
		to      State
		ok      bool
	}{
		{entity.RequisitionDraft, TriggerSubmit, StatePendingApproval, true},
		{entity.RequisitionRejected, TriggerSubmit, StatePendingApproval, true},
		{entity.RequisitionPendingApproval, TriggerWithdraw, StateDraft, true},
		{entity.RequisitionPendingApproval, TriggerApprove, StateApproved, true},
		{entity.RequisitionPendingApproval, TriggerReject, StateRejected, true},
		{entity.RequisitionPendingApproval, TriggerSubmit, "", false},
		{entity.RequisitionDraft, TriggerWithdraw, "", false},
		{entity.RequisitionApproved, TriggerSubmit, "", false},
		{entity.RequisitionApproved, TriggerWithdraw, "", false},
	}

	for _, tt := range tests {
		t.Run(string(tt.from)+"/"+tt.trigger.String(), func(t *testing.T) {
			machine, err := RequisitionMachine(tt.from)
			if err != nil {
				t.Fatalf("RequisitionMachine() error = %v", err)
			}
			err = machine.Fire(context.Background(), tt.trigger)
			if tt.ok {
				if err != nil {
					t.Fatalf("Fire() error = %v", err)
				}
				if machine.State() != tt.to {
					t.Errorf("State = %v, want %v", machine.State(), tt.to)
				}
				return
			}
			if !errors.Is(err, ErrInvalidTransition) {
				t.Errorf("Fire() error = %v, want %v", err, ErrInvalidTransition)
			}
		})
	}
}

func TestApprovalMachine_TerminalStates(t *testing.T) {
	pending, err := ApprovalMachine(entity.ApprovalPending)
	if err != nil {
		t.Fatalf("ApprovalMachine() error = %v", err)
	}
	if pending.IsTerminal() {
		t.Error("pending should not be terminal")
	}
	for _, trigger := range []Trigger{TriggerApprove, TriggerReject, TriggerSkip, TriggerCancel} {
		if !pending.CanFire(trigger) {
			t.Errorf("pending should accept %s", trigger)
		}
	}

	for _, status := range []entity.ApprovalStatus{
		entity.ApprovalApproved, entity.ApprovalRejected, entity.ApprovalSkipped, entity.ApprovalCancelled,
	} {
		machine, err := ApprovalMachine(status)
		if err != nil {
			t.Fatalf("ApprovalMachine(%s) error = %v", status, err)
		}
		if !machine.IsTerminal() {
			t.Errorf("%s should be terminal", status)
		}
		if machine.CanFire(TriggerApprove) {
			t.Errorf("%s should not accept APPROVE", status)
		}
	}
}

func TestRequisitionMachine_RejectedIsNotTerminal(t *testing.T) {
	machine, _ := RequisitionMachine(entity.RequisitionRejected)
	if machine.IsTerminal() {
		t.Error("rejected requisitions can be resubmitted")
	}
	approved, _ := RequisitionMachine(entity.RequisitionApproved)
	if !approved.IsTerminal() {
		t.Error("approved requisitions are final")
	}
}

func TestMachines_RejectUnknownStatus(t *testing.T) {
	if _, err := RequisitionMachine("pending"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("RequisitionMachine(pending) error = %v, want %v", err, ErrInvalidState)
	}
	if _, err := ApprovalMachine("draft"); !errors.Is(err, ErrInvalidState) {
		t.Errorf("ApprovalMachine(draft) error = %v, want %v", err, ErrInvalidState)
	}
}

func TestCanTransition(t *testing.T) {
	if !CanTransitionApproval(entity.ApprovalPending, TriggerSkip) {
		t.Error("pending approvals can be skipped")
	}
	if CanTransitionApproval(entity.ApprovalCancelled, TriggerCancel) {
		t.Error("cancelled approvals cannot be cancelled again")
	}
	if !CanTransitionRequisition(entity.RequisitionRejected, TriggerSubmit) {
		t.Error("rejected requisitions can be resubmitted")
	}
}
