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

// RequisitionRepository implements port.RequisitionRepository
type RequisitionRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewRequisitionRepository creates a new requisition repository
func NewRequisitionRepository(db *sql.DB, logger *zap.Logger) port.RequisitionRepository {
	return &RequisitionRepository{
		db:     db,
		logger: logger,
	}
}

// Create inserts the requisition header followed by its lines
func (r *RequisitionRepository) Create(ctx context.Context, req *entity.Requisition) error {
	query := `
		INSERT INTO requisitions (
			name, external_reference, status, owner_id, project_id, supplier, justification,
			total_amount_cents, currency, created_at, updated_at, created_by_id, updated_by_id
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	if req.Status == "" {
		req.Status = entity.RequisitionDraft
	}
	if req.Currency == "" {
		req.Currency = entity.CurrencyUSD
	}

	now := time.Now()
	exec := sqlite.Executor(ctx, r.db)
	result, err := exec.ExecContext(ctx, query,
		req.Name,
		req.ExternalReference,
		req.Status,
		req.OwnerID,
		nullInt64(req.ProjectID),
		req.Supplier,
		req.Justification,
		toCents(req.TotalAmount),
		req.Currency,
		now,
		now,
		nullInt64(req.CreatedByID),
		nullInt64(req.UpdatedByID),
	)
	if err != nil {
		r.logger.Error("Failed to create requisition", zap.String("name", req.Name), zap.Error(err))
		return fmt.Errorf("failed to create requisition: %w", err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	req.ID = id
	req.CreatedAt = now
	req.UpdatedAt = now

	for _, line := range req.Lines {
		line.RequisitionID = id
		if err := r.createLine(ctx, exec, line, now); err != nil {
			return err
		}
	}
	return nil
}

func (r *RequisitionRepository) createLine(ctx context.Context, exec sqlite.QueryExecutor, line *entity.RequisitionLine, now time.Time) error {
	query := `
		INSERT INTO requisition_lines (
			requisition_id, line_number, line_type, description, category, manufacturer,
			manufacturer_part_number, quantity, unit_of_measure, unit_price_cents, line_total_cents,
			payment_term, need_by, ship_to_id, created_at, updated_at
		) VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?, ?)
	`

	var qty sql.NullInt64
	if line.Quantity != nil {
		qty = sql.NullInt64{Int64: int64(*line.Quantity), Valid: true}
	}

	result, err := exec.ExecContext(ctx, query,
		line.RequisitionID,
		line.LineNumber,
		line.LineType,
		line.Description,
		line.Category,
		line.Manufacturer,
		line.ManufacturerPartNumber,
		qty,
		line.UnitOfMeasure,
		nullCents(line.UnitPrice),
		toCents(line.LineTotal),
		line.PaymentTerm,
		nullDate(line.NeedBy),
		nullInt64(line.ShipToID),
		now,
		now,
	)
	if err != nil {
		r.logger.Error("Failed to create requisition line",
			zap.Int64("requisition_id", line.RequisitionID),
			zap.Int("line_number", line.LineNumber),
			zap.Error(err))
		return fmt.Errorf("failed to create requisition line %d: %w", line.LineNumber, err)
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	line.ID = id
	line.CreatedAt = now
	line.UpdatedAt = now
	return nil
}

// GetByID retrieves a live requisition with owner, project, lines and ship-to addresses
func (r *RequisitionRepository) GetByID(ctx context.Context, id int64) (*entity.Requisition, error) {
	query := `
		SELECT r.id, r.name, r.external_reference, r.status, r.owner_id, r.project_id,
			r.supplier, r.justification, r.total_amount_cents, r.currency,
			r.submitted_at, r.approved_at, r.rejected_at, r.created_at, r.updated_at,
			r.created_by_id, r.updated_by_id,
			u.id, u.username, u.email, u.first_name, u.last_name, u.is_active, u.is_staff,
			u.created_at, u.updated_at,
			p.name, p.code, p.description
		FROM requisitions r
		JOIN users u ON u.id = r.owner_id
		LEFT JOIN projects p ON p.id = r.project_id AND ` + liveFilter("p") + `
		WHERE r.id = ? AND ` + liveFilter("r") + `
	`

	exec := sqlite.Executor(ctx, r.db)

	var req entity.Requisition
	var owner entity.User
	var projectID, createdBy, updatedBy sql.NullInt64
	var totalCents int64
	var submittedAt, approvedAt, rejectedAt sql.NullTime
	var projectName, projectCode, projectDesc sql.NullString

	err := exec.QueryRowContext(ctx, query, id).Scan(
		&req.ID,
		&req.Name,
		&req.ExternalReference,
		&req.Status,
		&req.OwnerID,
		&projectID,
		&req.Supplier,
		&req.Justification,
		&totalCents,
		&req.Currency,
		&submittedAt,
		&approvedAt,
		&rejectedAt,
		&req.CreatedAt,
		&req.UpdatedAt,
		&createdBy,
		&updatedBy,
		&owner.ID,
		&owner.Username,
		&owner.Email,
		&owner.FirstName,
		&owner.LastName,
		&owner.IsActive,
		&owner.IsStaff,
		&owner.CreatedAt,
		&owner.UpdatedAt,
		&projectName,
		&projectCode,
		&projectDesc,
	)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		r.logger.Error("Failed to get requisition by ID", zap.Int64("id", id), zap.Error(err))
		return nil, fmt.Errorf("failed to get requisition: %w", err)
	}

	req.Owner = &owner
	req.TotalAmount = fromCents(totalCents)
	req.ProjectID = fromNullInt64(projectID)
	req.SubmittedAt = fromNullTime(submittedAt)
	req.ApprovedAt = fromNullTime(approvedAt)
	req.RejectedAt = fromNullTime(rejectedAt)
	req.CreatedByID = fromNullInt64(createdBy)
	req.UpdatedByID = fromNullInt64(updatedBy)
	if projectID.Valid && projectName.Valid {
		req.Project = &entity.Project{
			ID:          projectID.Int64,
			Name:        projectName.String,
			Code:        projectCode.String,
			Description: projectDesc.String,
		}
	}

	lines, err := r.listLines(ctx, exec, id)
	if err != nil {
		r.logger.Error("Failed to load requisition lines", zap.Int64("id", id), zap.Error(err))
		return nil, err
	}
	req.Lines = lines
	return &req, nil
}

func (r *RequisitionRepository) listLines(ctx context.Context, exec sqlite.QueryExecutor, requisitionID int64) ([]*entity.RequisitionLine, error) {
	query := `
		SELECT l.id, l.requisition_id, l.line_number, l.line_type, l.description, l.category,
			l.manufacturer, l.manufacturer_part_number, l.quantity, l.unit_of_measure,
			l.unit_price_cents, l.line_total_cents, l.payment_term, l.need_by, l.ship_to_id,
			l.created_at, l.updated_at,
			a.code, a.name, a.description, a.attention, a.street1, a.street2, a.city, a.state,
			a.zip_code, a.country, a.phone, a.delivery_instructions
		FROM requisition_lines l
		LEFT JOIN addresses a ON a.id = l.ship_to_id AND ` + liveFilter("a") + `
		WHERE l.requisition_id = ? AND ` + liveFilter("l") + `
		ORDER BY l.line_number ASC
	`

	rows, err := exec.QueryContext(ctx, query, requisitionID)
	if err != nil {
		return nil, fmt.Errorf("failed to list requisition lines: %w", err)
	}
	defer rows.Close()

	var lines []*entity.RequisitionLine
	for rows.Next() {
		var line entity.RequisitionLine
		var qty, unitPrice, shipToID sql.NullInt64
		var totalCents int64
		var needBy sql.NullString
		var addr [12]sql.NullString

		if err := rows.Scan(
			&line.ID,
			&line.RequisitionID,
			&line.LineNumber,
			&line.LineType,
			&line.Description,
			&line.Category,
			&line.Manufacturer,
			&line.ManufacturerPartNumber,
			&qty,
			&line.UnitOfMeasure,
			&unitPrice,
			&totalCents,
			&line.PaymentTerm,
			&needBy,
			&shipToID,
			&line.CreatedAt,
			&line.UpdatedAt,
			&addr[0], &addr[1], &addr[2], &addr[3], &addr[4], &addr[5],
			&addr[6], &addr[7], &addr[8], &addr[9], &addr[10], &addr[11],
		); err != nil {
			return nil, fmt.Errorf("failed to scan requisition line: %w", err)
		}

		if qty.Valid {
			q := int(qty.Int64)
			line.Quantity = &q
		}
		line.UnitPrice = fromNullCents(unitPrice)
		line.LineTotal = fromCents(totalCents)
		line.ShipToID = fromNullInt64(shipToID)
		if line.NeedBy, err = fromNullDate(needBy); err != nil {
			return nil, err
		}
		if shipToID.Valid && addr[0].Valid {
			line.ShipTo = &entity.Address{
				ID:                   shipToID.Int64,
				Code:                 addr[0].String,
				Name:                 addr[1].String,
				Description:          addr[2].String,
				Attention:            addr[3].String,
				Street1:              addr[4].String,
				Street2:              addr[5].String,
				City:                 addr[6].String,
				State:                addr[7].String,
				ZipCode:              addr[8].String,
				Country:              addr[9].String,
				Phone:                addr[10].String,
				DeliveryInstructions: addr[11].String,
			}
		}
		lines = append(lines, &line)
	}
	return lines, rows.Err()
}

// Update persists status, lifecycle timestamps and updated_by
func (r *RequisitionRepository) Update(ctx context.Context, req *entity.Requisition) error {
	query := `
		UPDATE requisitions
		SET status = ?, submitted_at = ?, approved_at = ?, rejected_at = ?,
			updated_by_id = ?, updated_at = ?
		WHERE id = ? AND ` + liveFilter("") + `
	`

	now := time.Now()
	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		req.Status,
		nullTime(req.SubmittedAt),
		nullTime(req.ApprovedAt),
		nullTime(req.RejectedAt),
		nullInt64(req.UpdatedByID),
		now,
		req.ID,
	)
	if err != nil {
		r.logger.Error("Failed to update requisition", zap.Int64("id", req.ID), zap.Error(err))
		return fmt.Errorf("failed to update requisition: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("requisition not found: %d", req.ID)
	}
	req.UpdatedAt = now
	return nil
}

// MarkApproved flips a pending requisition to approved exactly once
func (r *RequisitionRepository) MarkApproved(ctx context.Context, id int64, at time.Time) (bool, error) {
	query := `
		UPDATE requisitions
		SET status = ?, approved_at = ?, updated_at = ?
		WHERE id = ? AND status = ? AND approved_at IS NULL AND ` + liveFilter("") + `
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		entity.RequisitionApproved, at, at, id, entity.RequisitionPendingApproval)
	if err != nil {
		r.logger.Error("Failed to mark requisition approved", zap.Int64("id", id), zap.Error(err))
		return false, fmt.Errorf("failed to mark requisition approved: %w", err)
	}

	rows, err := result.RowsAffected()
	if err != nil {
		return false, fmt.Errorf("failed to get rows affected: %w", err)
	}
	return rows > 0, nil
}

// SoftDelete flags the requisition and its lines as deleted
func (r *RequisitionRepository) SoftDelete(ctx context.Context, id int64, actorID int64) error {
	exec := sqlite.Executor(ctx, r.db)
	now := time.Now()

	result, err := exec.ExecContext(ctx,
		`UPDATE requisitions SET deleted = 1, updated_by_id = ?, updated_at = ? WHERE id = ? AND `+liveFilter(""),
		actorID, now, id)
	if err != nil {
		r.logger.Error("Failed to delete requisition", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete requisition: %w", err)
	}
	rows, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rows == 0 {
		return fmt.Errorf("requisition not found: %d", id)
	}

	if _, err := exec.ExecContext(ctx,
		`UPDATE requisition_lines SET deleted = 1, updated_at = ? WHERE requisition_id = ? AND `+liveFilter(""),
		now, id); err != nil {
		r.logger.Error("Failed to delete requisition lines", zap.Int64("id", id), zap.Error(err))
		return fmt.Errorf("failed to delete requisition lines: %w", err)
	}
	return nil
}

var _ port.RequisitionRepository = (*RequisitionRepository)(nil)
