package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
)

// HistoryRepository implements port.HistoryRepository
type HistoryRepository struct {
	db     *sql.DB
	logger *zap.Logger
}

// NewHistoryRepository creates a new history repository
func NewHistoryRepository(db *sql.DB, logger *zap.Logger) port.HistoryRepository {
	return &HistoryRepository{
		db:     db,
		logger: logger,
	}
}

// Create appends an entry. Replaying an event already recorded is a no-op.
func (r *HistoryRepository) Create(ctx context.Context, history *entity.RequisitionHistory) error {
	query := `
		INSERT INTO requisition_history (
			requisition_id, event_id, event_type, actor_id, data, correlation_id, timestamp
		) VALUES (?, ?, ?, ?, ?, ?, ?)
	`

	result, err := sqlite.Executor(ctx, r.db).ExecContext(ctx, query,
		history.RequisitionID,
		history.EventID,
		history.EventType,
		nullInt64(history.ActorID),
		history.Data,
		history.CorrelationID,
		history.Timestamp,
	)
	if err != nil {
		err = writeError("failed to create history", err)
		if errors.Is(err, port.ErrDuplicate) {
			return nil
		}
		r.logger.Error("Failed to create history record",
			zap.Int64("requisition_id", history.RequisitionID),
			zap.String("event_type", history.EventType),
			zap.Error(err))
		return err
	}

	id, err := result.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to get last insert id: %w", err)
	}
	history.ID = id
	return nil
}

// ListByRequisition returns the trail of a requisition, oldest first
func (r *HistoryRepository) ListByRequisition(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error) {
	query := `
		SELECT id, requisition_id, event_id, event_type, actor_id, data, correlation_id, timestamp
		FROM requisition_history
		WHERE requisition_id = ?
		ORDER BY timestamp ASC, id ASC
	`

	rows, err := sqlite.Executor(ctx, r.db).QueryContext(ctx, query, requisitionID)
	if err != nil {
		r.logger.Error("Failed to list history", zap.Int64("requisition_id", requisitionID), zap.Error(err))
		return nil, fmt.Errorf("failed to list history: %w", err)
	}
	defer rows.Close()

	var records []*entity.RequisitionHistory
	for rows.Next() {
		var (
			record  entity.RequisitionHistory
			actorID sql.NullInt64
		)
		if err := rows.Scan(
			&record.ID,
			&record.RequisitionID,
			&record.EventID,
			&record.EventType,
			&actorID,
			&record.Data,
			&record.CorrelationID,
			&record.Timestamp,
		); err != nil {
			return nil, fmt.Errorf("failed to scan history record: %w", err)
		}
		record.ActorID = fromNullInt64(actorID)
		records = append(records, &record)
	}
	return records, rows.Err()
}

// Verify interface compliance
var _ port.HistoryRepository = (*HistoryRepository)(nil)
