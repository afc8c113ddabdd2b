package port

import (
	"context"
	"errors"
	"time"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
)

// ErrDuplicate is returned when an insert violates a uniqueness constraint
var ErrDuplicate = errors.New("duplicate record")

// UserRepository defines persistence operations for User
type UserRepository interface {
	Create(ctx context.Context, user *entity.User) error
	GetByID(ctx context.Context, id int64) (*entity.User, error)
	GetByUsername(ctx context.Context, username string) (*entity.User, error)
	SetActive(ctx context.Context, id int64, active bool) error
}

// GroupRepository defines persistence operations for ApprovalGroup
type GroupRepository interface {
	Create(ctx context.Context, group *entity.ApprovalGroup) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalGroup, error)
	AddMember(ctx context.Context, groupID, userID int64) error
}

// ProjectRepository defines persistence operations for Project
type ProjectRepository interface {
	Create(ctx context.Context, project *entity.Project) error
	GetByID(ctx context.Context, id int64) (*entity.Project, error)
}

// AddressRepository defines persistence operations for ship-to Address
type AddressRepository interface {
	Create(ctx context.Context, address *entity.Address) error
	GetByID(ctx context.Context, id int64) (*entity.Address, error)
}

// RequisitionRepository defines persistence operations for Requisition.
// Reads return live rows only and load owner, project, lines and ship-to.
type RequisitionRepository interface {
	// Create inserts the header and its lines
	Create(ctx context.Context, req *entity.Requisition) error
	GetByID(ctx context.Context, id int64) (*entity.Requisition, error)
	// Update persists status, lifecycle timestamps and updated_by
	Update(ctx context.Context, req *entity.Requisition) error
	// MarkApproved moves a pending requisition with no approved_at to
	// approved. It reports false when another caller got there first.
	MarkApproved(ctx context.Context, id int64, at time.Time) (bool, error)
	// SoftDelete flags the requisition and all of its lines as deleted
	SoftDelete(ctx context.Context, id int64, actorID int64) error
}

// ChainRepository defines persistence operations for ApprovalChain and its rules
type ChainRepository interface {
	Create(ctx context.Context, chain *entity.ApprovalChain) error
	GetByID(ctx context.Context, id int64) (*entity.ApprovalChain, error)
	// FindCandidates returns live, active chains whose validity window
	// contains day and whose amount band contains amount, ordered by
	// sequence number then id, with approver, group members and rules loaded.
	FindCandidates(ctx context.Context, amountCents int64, day time.Time) ([]*entity.ApprovalChain, error)
	AddHeaderRule(ctx context.Context, rule *entity.HeaderRule) error
	AddLineRule(ctx context.Context, rule *entity.LineRule) error
	// SoftDelete flags the chain deleted and inactive
	SoftDelete(ctx context.Context, id int64) error
}

// ApprovalRepository defines persistence operations for Approval.
// Cancel and skip operations touch pending, non-deleted rows only.
type ApprovalRepository interface {
	CreateBatch(ctx context.Context, approvals []*entity.Approval) error
	GetByID(ctx context.Context, id int64) (*entity.Approval, error)
	ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.Approval, error)
	// ListByApprover returns the approver's approvals, excluding cancelled ones
	ListByApprover(ctx context.Context, approverID int64) ([]*entity.Approval, error)
	// MinPendingSequence returns nil when no pending approval remains
	MinPendingSequence(ctx context.Context, requisitionID int64) (*int, error)
	ListUnnotifiedAtSequence(ctx context.Context, requisitionID int64, sequence int) ([]*entity.Approval, error)
	MarkNotified(ctx context.Context, ids []int64, at time.Time) error
	// Update persists status, comment, decision timestamps and updated_by
	Update(ctx context.Context, approval *entity.Approval) error
	CancelPendingByRequisition(ctx context.Context, requisitionID, exceptID int64, actorID *int64) (int64, error)
	CancelPendingAtSequence(ctx context.Context, requisitionID int64, sequence int, exceptID int64, actorID *int64) (int64, error)
	// CancelPendingByApprover returns the ids of the requisitions touched
	CancelPendingByApprover(ctx context.Context, approverID int64) ([]int64, error)
	SkipPendingByRequisition(ctx context.Context, requisitionID int64, at time.Time, actorID *int64) (int64, error)
}

// HistoryRepository stores the per-requisition audit trail
type HistoryRepository interface {
	Create(ctx context.Context, history *entity.RequisitionHistory) error
	ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error)
}

// TransactionManager handles database transactions
type TransactionManager interface {
	WithTransaction(ctx context.Context, fn func(ctx context.Context) error) error

	// AfterCommit registers fn to run once the transaction carried by ctx
	// commits. Callbacks are dropped on rollback. Without a transaction in
	// ctx, fn runs immediately.
	AfterCommit(ctx context.Context, fn func(ctx context.Context))
}
