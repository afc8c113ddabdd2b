package service

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/garyjia/requisition-approval/internal/application/dispatcher"
	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
	apperrors "github.com/garyjia/requisition-approval/internal/pkg/errors"
)

// AuditService keeps the requisition audit trail
type AuditService interface {
	// Record appends evt to the trail of its requisition
	Record(ctx context.Context, evt *event.Event) error
	History(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error)
	// Subscribe registers Record for every event type on d
	Subscribe(d dispatcher.Dispatcher)
}

type auditServiceImpl struct {
	historyRepo     port.HistoryRepository
	requisitionRepo port.RequisitionRepository
	logger          Logger
}

// NewAuditService creates a new AuditService
func NewAuditService(historyRepo port.HistoryRepository, requisitionRepo port.RequisitionRepository, logger Logger) AuditService {
	return &auditServiceImpl{
		historyRepo:     historyRepo,
		requisitionRepo: requisitionRepo,
		logger:          logger,
	}
}

func (s *auditServiceImpl) Subscribe(d dispatcher.Dispatcher) {
	d.SubscribeAll("audit-trail", s.Record)
}

func (s *auditServiceImpl) Record(ctx context.Context, evt *event.Event) error {
	data, err := json.Marshal(evt.Payload)
	if err != nil {
		return fmt.Errorf("marshal payload: %w", err)
	}

	record := &entity.RequisitionHistory{
		RequisitionID: evt.RequisitionID,
		EventID:       evt.ID,
		EventType:     evt.Type.String(),
		Data:          string(data),
		CorrelationID: evt.CorrelationID,
		Timestamp:     evt.Timestamp,
	}
	if actor := evt.GetPayloadInt(event.KeyActorID); actor != 0 {
		record.ActorID = &actor
	}

	if err := s.historyRepo.Create(ctx, record); err != nil {
		s.logger.Error("Failed to record history",
			"event_type", evt.Type,
			"event_id", evt.ID,
			"requisition_id", evt.RequisitionID,
			"error", err,
		)
		return fmt.Errorf("record history: %w", err)
	}
	return nil
}

func (s *auditServiceImpl) History(ctx context.Context, requisitionID int64) ([]*entity.RequisitionHistory, error) {
	req, err := s.requisitionRepo.GetByID(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load requisition.")
	}
	if req == nil {
		return nil, apperrors.NotFound(apperrors.CodeRequisitionNotFound, "Requisition not found.")
	}

	records, err := s.historyRepo.ListByRequisition(ctx, requisitionID)
	if err != nil {
		return nil, apperrors.Internal(err, "Failed to load history.")
	}
	return records, nil
}
