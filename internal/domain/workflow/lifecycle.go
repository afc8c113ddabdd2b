package workflow

import (
	"fmt"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

var (
	requisitionLifecycle = newRequisitionBuilder()
	approvalLifecycle    = newApprovalBuilder()
)

// newRequisitionBuilder configures the requisition transitions. A rejected
// requisition may be resubmitted; an approved one is final.
func newRequisitionBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StateDraft).
		Permit(TriggerSubmit, StatePendingApproval)

	b.Configure(StateRejected).
		Permit(TriggerSubmit, StatePendingApproval)

	b.Configure(StatePendingApproval).
		Permit(TriggerWithdraw, StateDraft).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected)

	b.Configure(StateApproved)

	return b
}

// newApprovalBuilder configures the approval transitions. Every exit from
// pending is terminal.
func newApprovalBuilder() StateMachineBuilder {
	b := NewBuilder()

	b.Configure(StatePending).
		Permit(TriggerApprove, StateApproved).
		Permit(TriggerReject, StateRejected).
		Permit(TriggerSkip, StateSkipped).
		Permit(TriggerCancel, StateCancelled)

	return b
}

// RequisitionMachine returns a machine positioned at the requisition's status
func RequisitionMachine(status entity.RequisitionStatus) (StateMachine, error) {
	s := State(status)
	switch s {
	case StateDraft, StatePendingApproval, StateApproved, StateRejected:
		return requisitionLifecycle.Build(s), nil
	}
	return nil, fmt.Errorf("%w: requisition status %q", ErrInvalidState, status)
}

// ApprovalMachine returns a machine positioned at the approval's status
func ApprovalMachine(status entity.ApprovalStatus) (StateMachine, error) {
	s := State(status)
	switch s {
	case StatePending, StateApproved, StateRejected, StateSkipped, StateCancelled:
		return approvalLifecycle.Build(s), nil
	}
	return nil, fmt.Errorf("%w: approval status %q", ErrInvalidState, status)
}

// CanTransitionRequisition reports whether trigger is allowed from status
func CanTransitionRequisition(status entity.RequisitionStatus, trigger Trigger) bool {
	m, err := RequisitionMachine(status)
	return err == nil && m.CanFire(trigger)
}

// CanTransitionApproval reports whether trigger is allowed from status
func CanTransitionApproval(status entity.ApprovalStatus, trigger Trigger) bool {
	m, err := ApprovalMachine(status)
	return err == nil && m.CanFire(trigger)
}
