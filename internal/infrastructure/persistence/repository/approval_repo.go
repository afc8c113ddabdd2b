package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
)

const approvalSelect = `
	SELECT a.id, a.requisition_id, a.approver_id, a.sequence_number, a.status, a.trigger_metadata,
		a.system_generated, a.comment, a.notified_at, a.approved_at, a.rejected_at, a.skipped_at,
		a.created_at, a.updated_at, a.updated_by_id,
		u.id, u.username, u.email, u.first_name, u.last_name, u.is_active, u.is_staff,
		u.created_at, u.updated_at
	FROM approvals a
	JOIN users u ON u.id = a.approver_id
`

// ApprovalRepository implements port.ApprovalRepository
type ApprovalRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewApprovalRepository creates a new approval repository
func NewApprovalRepository(db *sql.DB, logger *zap.Logger) port.ApprovalRepository {
	return &ApprovalRepository{
		db:     db,
		logger: logger,
	}
}

// CreateBatch inserts approvals in order
func (r *ApprovalRepository) CreateBatch(ctx context.Context, approvals []*entity.Approval) error {
	query := `
		INSERT INTO approvals (
			requisition_id, approver_id, sequence_number, status, trigger_metadata,
			system_generated, comment, created_at, updated_at, updated_by_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	exec := sqlite.Executor(ctx, r.db)
	now := time.Now()
	for _, a := range approvals {
		if a.Status == "" {
			a.Status = entity.ApprovalPending
		}

		var metadata sql.NullString
		if a.TriggerMetadata != nil {
			raw, err := a.TriggerMetadata.Marshal()
			if err != nil {
				return err
			}
			metadata = sql.NullString{String: raw, Valid: true}
		}

		result, err := exec.ExecContext(ctx, query,
			a.RequisitionID,
			a.ApproverID,
			a.SequenceNumber,
			a.Status,
			metadata,
			a.SystemGenerated,
			a.Comment,
			now,
			now,
			nullInt64(a.UpdatedByID),
		)
		if err != nil {
			r.logger.Error("Failed to create approval",
				zap.Int64("requisition_id", a.RequisitionID),
				zap.Int64("approver_id", a.ApproverID),
				zap.Error(err))
			return fmt.Errorf("failed to create approval: %w", err)
		}

		id, err := result.LastInsertId()
		if err != nil {
			return fmt.Errorf("failed to get last insert id: %w", err)
		}
		a.ID = id
		a.CreatedAt = now
		a.UpdatedAt = now
	}
	return nil
}

// GetByID retrieves a live approval with its approver
func (r *ApprovalRepository) GetByID(ctx context.Context, id int64) (*entity.Approval, error) {
	query := approvalSelect + ` WHERE a.id = ? AND ` + liveFilter("a")

	a, err := scanApproval(sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, id))
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get approval by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get approval: %w", err)
	}
	return a, nil
}

// ListByRequisition returns every live approval of a requisition, ordered by sequence then id
func (r *ApprovalRepository) ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.Approval, error) {
	query := approvalSelect + `
		WHERE a.requisition_id = ? AND ` + liveFilter("a") + `
		ORDER BY a.sequence_number ASC, a.id ASC
	`
	approvals, err := r.list(ctx, query, requisitionID)
	if err != nil {
		r.logger.Error("Failed to list approvals", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return nil, err
	}
	return approvals, nil
}

// ListByApprover returns an approver's live approvals on live requisitions, newest first
func (r *ApprovalRepository) ListByApprover(ctx context.Context, approverID int64) ([]*entity.Approval, error) {
	query := approvalSelect + `
		JOIN requisitions req ON req.id = a.requisition_id AND ` + liveFilter("req") + `
		WHERE a.approver_id = ? AND ` + liveFilter("a") + ` AND a.status != ?
		ORDER BY a.id DESC
	`
	approvals, err := r.list(ctx, query, approverID, entity.ApprovalCancelled)
	if err != nil {
		r.logger.Error("Failed to list approvals for approver", zap.Int64("approver_id", approverID), zap.Error(err))
		return nil, err
	}
	return approvals, nil
}

// MinPendingSequence returns the lowest sequence with a pending approval, or nil
func (r *ApprovalRepository) MinPendingSequence(ctx context.Context, requisitionID int64) (*int, error) {
	query := `
		SELECT MIN(sequence_number) FROM approvals
		WHERE requisition_id = ? AND status = ? AND ` + liveFilter("") + `
	`

	var seq sql.NullInt64
	if err := sqlite.Executor(ctx, r.db).QueryRowContext(ctx, query, requisitionID, entity.ApprovalPending).Scan(&seq); err != nil {
		r.logger.Error("Failed to get pending sequence", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return nil, fmt.Errorf("failed to get pending sequence: %w", err)
	}
	if !seq.Valid {
		return nil, nil
	}
	n := int(seq.Int64)
	return &n, nil
}

// ListUnnotifiedAtSequence returns pending approvals at sequence not yet notified
func (r *ApprovalRepository) ListUnnotifiedAtSequence(ctx context.Context, requisitionID int64, sequence int) ([]*entity.Approval, error) {
	query := approvalSelect + `
		WHERE a.requisition_id = ? AND a.sequence_number = ? AND a.status = ?
			AND a.notified_at IS NULL AND ` + liveFilter("a") + `
		ORDER BY a.id ASC
	`
	approvals, err := r.list(ctx, query, requisitionID, sequence, entity.ApprovalPending)
	if err != nil {
		r.logger.Error("Failed to list unnotified approvals",
			zap.Int64("requisition_id", requisitionID),
			zap.Int("sequence", sequence),
			zap.Error(err))
		return nil, err
	}
	return approvals, nil
}

// MarkNotified stamps notified_at on the given approvals that are still unnotified
func (r *ApprovalRepository) MarkNotified(ctx context.Context, ids []int64, at time.Time) error {
	if len(ids) == 0 {
		return nil
	}

	query := `UPDATE approvals SET notified_at = ?, updated_at = ?
		WHERE notified_at IS NULL AND id IN (` + placeholders(len(ids)) + `)`
	args := append([]interface{}{at, at}, int64Args(ids)...)

	if _, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...); err != nil {
		r.logger.Error("Failed to mark approvals notified", zap.Int64s("ids", ids), zap.Error(err))
		return fmt.Errorf("failed to mark approvals notified: %w", err)
	}
	return nil
}

// Update persists status, comment, decision timestamps and updated_by
func (r *ApprovalRepository) Update(ctx context.Context, a *entity.Approval) error {
	query := `
		UPDATE approvals
		SET status = ?, comment = ?, approved_at = ?, rejected_at = ?, skipped_at = ?,
			updated_by_id = ?, updated_at = ?
		WHERE id = ? AND ` + liveFilter("") + `
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		a.Status,
		a.Comment,
		nullTime(a.ApprovedAt),
		nullTime(a.RejectedAt),
		nullTime(a.SkippedAt),
		nullInt64(a.UpdatedByID),
		now,
		a.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update approval", zap.Int64("id", a.ID), zap.Error(err))
		return fmt.Errorf("failed to update approval: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("approval not found: %d", a.ID)
	}
	a.UpdatedAt = now
	return nil
}

// CancelPendingByRequisition cancels every pending approval of a requisition except exceptID
func (r *ApprovalRepository) CancelPendingByRequisition(ctx context.Context, requisitionID, exceptID int64, actorID *int64) (int64, error) {
	query := `
		UPDATE approvals SET status = ?, updated_by_id = ?, updated_at = ?
		WHERE requisition_id = ? AND id != ? AND status = ? AND ` + liveFilter("") + `
	`
	return r.bulkUpdate(ctx, "cancel pending approvals", query,
		entity.ApprovalCancelled, nullInt64(actorID), time.Now(),
		requisitionID, exceptID, entity.ApprovalPending)
}

// CancelPendingAtSequence cancels the pending siblings of exceptID at one sequence
func (r *ApprovalRepository) CancelPendingAtSequence(ctx context.Context, requisitionID int64, sequence int, exceptID int64, actorID *int64) (int64, error) {
	query := `
		UPDATE approvals SET status = ?, updated_by_id = ?, updated_at = ?
		WHERE requisition_id = ? AND sequence_number = ? AND id != ? AND status = ? AND ` + liveFilter("") + `
	`
	return r.bulkUpdate(ctx, "cancel sibling approvals", query,
		entity.ApprovalCancelled, nullInt64(actorID), time.Now(),
		requisitionID, sequence, exceptID, entity.ApprovalPending)
}

// CancelPendingByApprover cancels an approver's pending approvals and returns
// the distinct requisitions that were touched.
func (r *ApprovalRepository) CancelPendingByApprover(ctx context.Context, approverID int64) ([]int64, error) {
	exec := sqlite.Executor(ctx, r.db)

	rows, err := exec.QueryContext(ctx, `
		SELECT DISTINCT requisition_id FROM approvals
		WHERE approver_id = ? AND status = ? AND `+liveFilter("")+`
		ORDER BY requisition_id ASC
	`, approverID, entity.ApprovalPending)
	if err != nil {
		r.logger.Error("Failed to list approver requisitions", zap.Int64("approver_id", approverID), zap.Error(err))
		return nil, fmt.Errorf("failed to list approver requisitions: %w", err)
	}

	var requisitionIDs []int64
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			rows.Close()
			return nil, fmt.Errorf("failed to scan requisition id: %w", err)
		}
		requisitionIDs = append(requisitionIDs, id)
	}
	if err := rows.Err(); err != nil {
		rows.Close()
		return nil, err
	}
	rows.Close()

	if len(requisitionIDs) == 0 {
		return nil, nil
	}

	if _, err := r.bulkUpdate(ctx, "cancel approver approvals", `
		UPDATE approvals SET status = ?, updated_at = ?
		WHERE approver_id = ? AND status = ? AND `+liveFilter("")+`
	`, entity.ApprovalCancelled, time.Now(), approverID, entity.ApprovalPending); err != nil {
		return nil, err
	}
	return requisitionIDs, nil
}

// SkipPendingByRequisition marks every pending approval of a requisition skipped
func (r *ApprovalRepository) SkipPendingByRequisition(ctx context.Context, requisitionID int64, at time.Time, actorID *int64) (int64, error) {
	query := `
		UPDATE approvals SET status = ?, skipped_at = ?, updated_by_id = ?, updated_at = ?
		WHERE requisition_id = ? AND status = ? AND ` + liveFilter("") + `
	`
	return r.bulkUpdate(ctx, "skip pending approvals", query,
		entity.ApprovalSkipped, at, nullInt64(actorID), at,
		requisitionID, entity.ApprovalPending)
}

func (r *ApprovalRepository) bulkUpdate(ctx context.Context, action, query string, args ...interface{}) (int64, error) {
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query, args...)
	if err != nil {
		r.logger.Error("Failed to "+action, zap.Error(err))
		return 0, fmt.Errorf("failed to %s: %w", action, err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return 0, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows, nil
}

func (r *ApprovalRepository) list(ctx context.Context, query string, args ...interface{}) ([]*entity.Approval, error) {
	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, args...)
	if err != nil {
		return nil, fmt.Errorf("failed to query approvals: %w", err)
	}
	defer rows.Close()

	var approvals []*entity.Approval
	for rows.Next() {
		a, err := scanApproval(rows)
		if err != nil {
			return nil, fmt.Errorf("failed to scan approval: %w", err)
		}
		approvals = append(approvals, a)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to iterate approvals: %w", err)
	}
	return approvals, nil
}

func scanApproval(row rowScanner) (*entity.Approval, error) {
	var a entity.Approval
	var u entity.User
	var metadata sql.NullString
	var notifiedAt, approvedAt, rejectedAt, skippedAt sql.NullTime
	var updatedBy sql.NullInt64

	if err := row.Scan(
		&a.ID,
		&a.RequisitionID,
		&a.ApproverID,
		&a.SequenceNumber,
		&a.Status,
		&metadata,
		&a.SystemGenerated,
		&a.Comment,
		&notifiedAt,
		&approvedAt,
		&rejectedAt,
		&skippedAt,
		&a.CreatedAt,
		&a.UpdatedAt,
		&updatedBy,
		&u.ID,
		&u.Username,
		&u.Email,
		&u.FirstName,
		&u.LastName,
		&u.IsActive,
		&u.IsStaff,
		&u.CreatedAt,
		&u.UpdatedAt,
	); err != nil {
		return nil, err
	}

	md, err := entity.UnmarshalTriggerMetadata(metadata.String)
	if err != nil {
		return nil, err
	}
	a.TriggerMetadata = md
	a.Approver = &u
	a.NotifiedAt = fromNullTime(notifiedAt)
	a.ApprovedAt = fromNullTime(approvedAt)
	a.RejectedAt = fromNullTime(rejectedAt)
	a.SkippedAt = fromNullTime(skippedAt)
	a.UpdatedByID = fromNullInt64(updatedBy)
	return &a, nil
}

var _ port.ApprovalRepository = (*ApprovalRepository)(nil)
