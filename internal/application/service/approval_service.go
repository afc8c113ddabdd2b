package service

import (
	"context"
	"fmt"
	"net/http"
	"time"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
	"github.com/garyjia/requisition-approval/internal/domain/workflow"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// Logger interface for minimal logging dependency
type Logger interface {
	Info(msg string, keysAndValues ...interface{})
	Error(msg string, keysAndValues ...interface{})
}

// ApprovalService sequences the approvals of submitted requisitions. Only the
// approvals at the lowest pending sequence number are actionable.
type ApprovalService interface {
	Get(ctx context.Context, id int64) (*entity.Approval, error)
	ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.Approval, error)
	// ListForApprover returns the caller's approvals, cancelled ones excluded
	ListForApprover(ctx context.Context, caller *entity.User) ([]*entity.Approval, error)

	CurrentSequence(ctx context.Context, requisitionID int64) (*int, error)
	IsCurrentApprover(ctx context.Context, approval *entity.Approval) (bool, error)
	NotifyCurrentSequence(ctx context.Context, requisitionID int64) error

	Approve(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error)
	Reject(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error)
	Skip(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error)

	// CheckFullyApproved approves the requisition once nothing is pending.
	// It reports whether this call performed the transition.
	CheckFullyApproved(ctx context.Context, requisitionID int64) (bool, error)
	CancelPending(ctx context.Context, requisitionID int64, actorID *int64) (int64, error)
	CancelUserApprovals(ctx context.Context, userID int64) ([]int64, error)
	BypassApprovals(ctx context.Context, requisitionID int64, caller *entity.User) (int64, error)
}

type approvalServiceImpl struct {
	approvalRepo    port.ApprovalRepository
	requisitionRepo port.RequisitionRepository
	txManager       port.TransactionManager
	publisher       port.EventPublisher
	logger          Logger
	options
}

// NewApprovalService creates a new ApprovalService
func NewApprovalService(
	approvalRepo port.ApprovalRepository,
	requisitionRepo port.RequisitionRepository,
	txManager port.TransactionManager,
	publisher port.EventPublisher,
	logger Logger,
	opts ...Option,
) ApprovalService {
	return &approvalServiceImpl{
		approvalRepo:    approvalRepo,
		requisitionRepo: requisitionRepo,
		txManager:       txManager,
		publisher:       publisher,
		logger:          logger,
		options:         newOptions(opts),
	}
}

// Get retrieves an approval by ID
func (s *approvalServiceImpl) Get(ctx context.Context, id int64) (*entity.Approval, error) {
	approval, err := s.approvalRepo.GetByID(ctx, id)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load approval.")
	}
	if approval == nil {
		return nil, apperrors.NotFound(apperrors.CodeApprovalNotFound, "Approval not found.")
	}
	return approval, nil
}

// ListByRequisition returns the approval trail of a requisition
func (s *approvalServiceImpl) ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.Approval, error) {
	req, err := s.requisitionRepo.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load requisition.")
	}
	if req == nil {
		return nil, apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
	}

	approvals, err := s.approvalRepo.ListByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load approvals.")
	}
	return approvals, nil
}

// ListForApprover returns the caller's approvals
func (s *approvalServiceImpl) ListForApprover(ctx context.Context, caller *entity.User) ([]*entity.Approval, error) {
	if caller == nil {
		return nil, apperrors.New(apperrors.CodeUnauthenticated, "Authentication required.", http.StatusUnauthorized)
	}
	approvals, err := s.approvalRepo.ListByApprover(ctx, caller.ID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load approvals.")
	}
	return approvals, nil
}

// CurrentSequence returns the lowest pending sequence number, or nil
func (s *approvalServiceImpl) CurrentSequence(ctx context.Context, requisitionID int64) (*int, error) {
	seq, err := s.approvalRepo.MinPendingSequence(ctx, requisitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to get current sequence: %w", err)
	}
	return seq, nil
}

// IsCurrentApprover reports whether the approval sits at the current sequence
func (s *approvalServiceImpl) IsCurrentApprover(ctx context.Context, approval *entity.Approval) (bool, error) {
	seq, err := s.CurrentSequence(ctx, approval.RequisitionID)
	if err != nil {
		return false, err
	}
	return seq != nil && *seq == approval.SequenceNumber, nil
}

// NotifyCurrentSequence stamps and announces the pending approvals at the
// current sequence that have not been notified yet.
func (s *approvalServiceImpl) NotifyCurrentSequence(ctx context.Context, requisitionID int64) error {
	return s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.approvalRepo.MinPendingSequence(ctx, requisitionID)
		if err != nil {
			return err
		}
		if seq == nil {
			return nil
		}

		pending, err := s.approvalRepo.ListUnnotifiedAtSequence(ctx, requisitionID, *seq)
		if err != nil {
			return err
		}
		if len(pending) == 0 {
			return nil
		}

		ids := make([]int64, len(pending))
		for i, a := range pending {
			ids[i] = a.ID
		}
		if err := s.approvalRepo.MarkNotified(ctx, ids, s.now()); err != nil {
			return err
		}

		for _, a := range pending {
			publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
				event.TypeApprovalRequested, requisitionID, map[string]interface{}{
					event.KeyApprovalID: a.ID,
					event.KeyApproverID: a.ApproverID,
					event.KeySequence:   a.SequenceNumber,
				}))
		}

		s.logger.Info("Current sequence notified",
			"requisition_id", requisitionID,
			"sequence_number", *seq,
			"count", len(pending),
		)
		return nil
	})
}

// Approve records the caller's approval
func (s *approvalServiceImpl) Approve(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error) {
	return s.decide(ctx, approvalID, caller, comment, workflow.TriggerApprove)
}

// Reject records the caller's rejection, halting the whole requisition
func (s *approvalServiceImpl) Reject(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error) {
	return s.decide(ctx, approvalID, caller, comment, workflow.TriggerReject)
}

func (s *approvalServiceImpl) decide(ctx context.Context, approvalID int64, caller *entity.User, comment string, trigger workflow.Trigger) (*entity.Approval, error) {
	action := "approve"
	if trigger == workflow.TriggerReject {
		action = "reject"
	}

	var result *entity.Approval
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		approval, err := s.Get(ctx, approvalID)
		if err != nil {
			return err
		}
		if err := s.checkDecision(ctx, approval, caller, action); err != nil {
			return err
		}

		machine, err := workflow.ApprovalMachine(approval.Status)
		if err != nil {
			return apperrors.Internal(err, "Approval has an unknown status.")
		}
		if err := machine.Fire(ctx, trigger); err != nil {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				fmt.Sprintf("This approval must be in pending status to %s.", action))
		}

		now := s.now()
		approval.Status = entity.ApprovalStatus(machine.State())
		approval.Comment = comment
		approval.UpdatedByID = int64Ptr(caller.ID)
		if trigger == workflow.TriggerApprove {
			approval.ApprovedAt = timePtr(now)
		} else {
			approval.RejectedAt = timePtr(now)
		}
		if err := s.approvalRepo.Update(ctx, approval); err != nil {
			return apperrors.Internal(err, "Failed to save approval.")
		}

		publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
			event.TypeApprovalDecided, approval.RequisitionID, map[string]interface{}{
				event.KeyApprovalID: approval.ID,
				event.KeyApproverID: approval.ApproverID,
				event.KeyActorID:    caller.ID,
				event.KeyStatus:     string(approval.Status),
				event.KeyComment:    comment,
			}))

		if trigger == workflow.TriggerReject {
			if err := s.rejectRequisition(ctx, approval, caller, now); err != nil {
				return err
			}
		} else {
			if err := s.settle(ctx, approval, caller.ID); err != nil {
				return err
			}
		}

		result = approval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval decided",
		"approval_id", result.ID,
		"requisition_id", result.RequisitionID,
		"status", result.Status,
		"actor_id", caller.ID,
	)
	return result, nil
}

// checkDecision applies the approver guards in order: ownership, sequence,
// then status.
func (s *approvalServiceImpl) checkDecision(ctx context.Context, approval *entity.Approval, caller *entity.User, action string) error {
	if caller == nil || caller.ID != approval.ApproverID {
		return apperrors.Forbidden(apperrors.CodeForbidden,
			fmt.Sprintf("You cannot %s on someone else's behalf.", action))
	}

	if approval.Status == entity.ApprovalPending {
		current, err := s.IsCurrentApprover(ctx, approval)
		if err != nil {
			return apperrors.Internal(err, "Failed to resolve the current sequence.")
		}
		if !current {
			return apperrors.BadRequest(apperrors.CodeInvalidState, "An earlier approval is still pending.")
		}
	}

	done := entity.ApprovalApproved
	if action == "reject" {
		done = entity.ApprovalRejected
	}
	if approval.Status == done {
		return apperrors.BadRequest(apperrors.CodeInvalidState,
			fmt.Sprintf("This approval has already been %s.", done))
	}
	if approval.Status != entity.ApprovalPending {
		return apperrors.BadRequest(apperrors.CodeInvalidState,
			fmt.Sprintf("This approval must be in pending status to %s.", action))
	}
	return nil
}

// settle finishes an approve or skip: an any-mode group step is satisfied by
// one member, and the sequence moves on after commit.
func (s *approvalServiceImpl) settle(ctx context.Context, approval *entity.Approval, actorID int64) error {
	if approval.IsAnyGroupMember() {
		n, err := s.approvalRepo.CancelPendingAtSequence(ctx,
			approval.RequisitionID, approval.SequenceNumber, approval.ID, int64Ptr(actorID))
		if err != nil {
			return apperrors.Internal(err, "Failed to cancel group approvals.")
		}
		if n > 0 {
			publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
				event.TypeApprovalsCancelled, approval.RequisitionID, map[string]interface{}{
					event.KeyCount:    n,
					event.KeySequence: approval.SequenceNumber,
				}))
		}
	}

	s.advanceAfterCommit(ctx, approval.RequisitionID)
	return nil
}

// advanceAfterCommit notifies the next sequence and runs the full-approval
// check once the current transaction is durable.
func (s *approvalServiceImpl) advanceAfterCommit(ctx context.Context, requisitionID int64) {
	s.txManager.AfterCommit(ctx, func(ctx context.Context) {
		if err := s.NotifyCurrentSequence(ctx, requisitionID); err != nil {
			s.logger.Error("Failed to notify current sequence", "requisition_id", requisitionID, "error", err)
		}
		if _, err := s.CheckFullyApproved(ctx, requisitionID); err != nil {
			s.logger.Error("Failed to check full approval", "requisition_id", requisitionID, "error", err)
		}
	})
}

func (s *approvalServiceImpl) rejectRequisition(ctx context.Context, approval *entity.Approval, caller *entity.User, now time.Time) error {
	if _, err := s.approvalRepo.CancelPendingByRequisition(ctx, approval.RequisitionID, approval.ID, int64Ptr(caller.ID)); err != nil {
		return apperrors.Internal(err, "Failed to cancel approvals.")
	}

	req, err := s.requisitionRepo.GetByID(ctx, approval.RequisitionID)
	if err != nil {
		return apperrors.Internal(err, "Failed to load requisition.")
	}
	if req == nil {
		return apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
	}

	machine, err := workflow.RequisitionMachine(req.Status)
	if err != nil {
		return apperrors.Internal(err, "Requisition has an unknown status.")
	}
	if err := machine.Fire(ctx, workflow.TriggerReject); err != nil {
		return apperrors.BadRequest(apperrors.CodeInvalidState,
			"This requisition must be in pending approval status to reject.")
	}

	req.Status = entity.RequisitionStatus(machine.State())
	req.RejectedAt = timePtr(now)
	req.SubmittedAt = nil
	req.UpdatedByID = int64Ptr(caller.ID)
	if err := s.requisitionRepo.Update(ctx, req); err != nil {
		return apperrors.Internal(err, "Failed to save requisition.")
	}

	publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
		event.TypeRequisitionRejected, req.ID, map[string]interface{}{
			event.KeyApprovalID: approval.ID,
			event.KeyActorID:    caller.ID,
			event.KeyComment:    approval.Comment,
		}))
	return nil
}

// Skip is an administrative bypass of a single pending approval. It skips
// the ownership and current-sequence checks.
func (s *approvalServiceImpl) Skip(ctx context.Context, approvalID int64, caller *entity.User, comment string) (*entity.Approval, error) {
	if err := requireStaff(caller, "skip approvals"); err != nil {
		return nil, err
	}

	var result *entity.Approval
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		approval, err := s.Get(ctx, approvalID)
		if err != nil {
			return err
		}

		req, err := s.requisitionRepo.GetByID(ctx, approval.RequisitionID)
		if err != nil {
			return apperrors.Internal(err, "Failed to load requisition.")
		}
		if req == nil {
			return apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
		}
		if req.Status != entity.RequisitionPendingApproval {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				"This requisition must be in pending approval status to skip approvals.")
		}

		machine, err := workflow.ApprovalMachine(approval.Status)
		if err != nil {
			return apperrors.Internal(err, "Approval has an unknown status.")
		}
		if err := machine.Fire(ctx, workflow.TriggerSkip); err != nil {
			return apperrors.BadRequest(apperrors.CodeInvalidState, "This approval must be in pending status to skip.")
		}

		approval.Status = entity.ApprovalStatus(machine.State())
		approval.SkippedAt = timePtr(s.now())
		approval.Comment = comment
		approval.UpdatedByID = int64Ptr(caller.ID)
		if err := s.approvalRepo.Update(ctx, approval); err != nil {
			return apperrors.Internal(err, "Failed to save approval.")
		}
		publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
			event.TypeApprovalDecided, approval.RequisitionID, map[string]interface{}{
				event.KeyApprovalID: approval.ID,
				event.KeyApproverID: approval.ApproverID,
				event.KeyActorID:    caller.ID,
				event.KeyStatus:     string(approval.Status),
				event.KeyComment:    comment,
			}))

		if err := s.settle(ctx, approval, caller.ID); err != nil {
			return err
		}
		result = approval
		return nil
	})
	if err != nil {
		return nil, err
	}

	s.logger.Info("Approval skipped", "approval_id", result.ID, "actor_id", caller.ID)
	return result, nil
}

// CheckFullyApproved is idempotent: the conditional update lets exactly one
// caller move the requisition to approved.
func (s *approvalServiceImpl) CheckFullyApproved(ctx context.Context, requisitionID int64) (bool, error) {
	approved := false
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		seq, err := s.approvalRepo.MinPendingSequence(ctx, requisitionID)
		if err != nil {
			return err
		}
		if seq != nil {
			return nil
		}

		req, err := s.requisitionRepo.GetByID(ctx, requisitionID)
		if err != nil {
			return err
		}
		if req == nil || req.Status != entity.RequisitionPendingApproval || req.ApprovedAt != nil {
			return nil
		}
		if !workflow.CanTransitionRequisition(req.Status, workflow.TriggerApprove) {
			return nil
		}

		ok, err := s.requisitionRepo.MarkApproved(ctx, requisitionID, s.now())
		if err != nil {
			return err
		}
		if !ok {
			return nil
		}

		approved = true
		publishAfterCommit(ctx, s.txManager, s.publisher, s.logger,
			event.NewEvent(event.TypeRequisitionApproved, requisitionID, nil))
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("failed to check full approval: %w", err)
	}

	if approved {
		s.logger.Info("Requisition fully approved", "requisition_id", requisitionID)
	}
	return approved, nil
}

// CancelPending cancels every pending approval of a requisition. It joins
// the caller's transaction when there is one.
func (s *approvalServiceImpl) CancelPending(ctx context.Context, requisitionID int64, actorID *int64) (int64, error) {
	var n int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		n, err = s.approvalRepo.CancelPendingByRequisition(ctx, requisitionID, 0, actorID)
		if err != nil {
			return err
		}
		if n > 0 {
			publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
				event.TypeApprovalsCancelled, requisitionID, map[string]interface{}{
					event.KeyCount: n,
				}))
		}
		return nil
	})
	if err != nil {
		return 0, fmt.Errorf("failed to cancel pending approvals: %w", err)
	}
	return n, nil
}

// CancelUserApprovals cancels every pending approval held by a user and
// moves each affected requisition along after commit.
func (s *approvalServiceImpl) CancelUserApprovals(ctx context.Context, userID int64) ([]int64, error) {
	var touched []int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		var err error
		touched, err = s.approvalRepo.CancelPendingByApprover(ctx, userID)
		if err != nil {
			return err
		}
		for _, requisitionID := range touched {
			publishAfterCommit(ctx, s.txManager, s.publisher, s.logger, event.NewEvent(
				event.TypeApprovalsCancelled, requisitionID, map[string]interface{}{
					event.KeyApproverID: userID,
				}))
			s.advanceAfterCommit(ctx, requisitionID)
		}
		return nil
	})
	if err != nil {
		return nil, fmt.Errorf("failed to cancel user approvals: %w", err)
	}

	s.logger.Info("User approvals cancelled", "user_id", userID, "requisitions", len(touched))
	return touched, nil
}

// BypassApprovals skips every pending approval of a requisition
func (s *approvalServiceImpl) BypassApprovals(ctx context.Context, requisitionID int64, caller *entity.User) (int64, error) {
	if err := requireStaff(caller, "bypass approvals"); err != nil {
		return 0, err
	}

	var n int64
	err := s.txManager.WithTransaction(ctx, func(ctx context.Context) error {
		req, err := s.requisitionRepo.GetByID(ctx, requisitionID)
		if err != nil {
			return apperrors.Internal(err, "Failed to load requisition.")
		}
		if req == nil {
			return apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
		}
		if req.Status != entity.RequisitionPendingApproval {
			return apperrors.BadRequest(apperrors.CodeInvalidState,
				"This requisition must be in pending approval status to bypass approvals.")
		}

		n, err = s.approvalRepo.SkipPendingByRequisition(ctx, requisitionID, s.now(), int64Ptr(caller.ID))
		if err != nil {
			return apperrors.Internal(err, "Failed to skip approvals.")
		}

		s.txManager.AfterCommit(ctx, func(ctx context.Context) {
			if _, err := s.CheckFullyApproved(ctx, requisitionID); err != nil {
				s.logger.Error("Failed to check full approval", "requisition_id", requisitionID, "error", err)
			}
		})
		return nil
	})
	if err != nil {
		return 0, err
	}

	s.logger.Info("Approvals bypassed", "requisition_id", requisitionID, "count", n, "actor_id", caller.ID)
	return n, nil
}

func requireStaff(caller *entity.User, action string) error {
	if caller == nil || !caller.IsStaff {
		return apperrors.Forbidden(apperrors.CodeForbidden,
			fmt.Sprintf("You must be an administrator to %s.", action))
	}
	return nil
}
