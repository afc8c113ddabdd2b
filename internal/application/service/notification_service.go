package service

import (
	"context"
	"fmt"

	"github.com/garyjia/requisition-approval/internal/application/dispatcher"
	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
)

// SiteConfig is the site identity included in every notification
type SiteConfig struct {
	SiteURL            string
	SiteName           string
	EmailSubjectPrefix string
}

// NotificationService turns committed events into notifications
type NotificationService interface {
	NotifyApprovalRequested(ctx context.Context, approvalID int64) error
	NotifyRejected(ctx context.Context, requisitionID, approvalID int64) error
	NotifyFullyApproved(ctx context.Context, requisitionID int64) error
	// Subscribe registers the notification handlers on d
	Subscribe(d dispatcher.Dispatcher)
}

type notificationServiceImpl struct {
	requisitionRepo port.RequisitionRepository
	approvalRepo    port.ApprovalRepository
	sink            port.NotificationSink
	site            SiteConfig
	logger          Logger
}

// NewNotificationService creates a new NotificationService
func NewNotificationService(
	requisitionRepo port.RequisitionRepository,
	approvalRepo port.ApprovalRepository,
	sink port.NotificationSink,
	site SiteConfig,
	logger Logger,
) NotificationService {
	return &notificationServiceImpl{
		requisitionRepo: requisitionRepo,
		approvalRepo:    approvalRepo,
		sink:            sink,
		site:            site,
		logger:          logger,
	}
}

func (s *notificationServiceImpl) Subscribe(d dispatcher.Dispatcher) {
	d.Subscribe(event.TypeApprovalRequested, "notify-approver", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyApprovalRequested(ctx, evt.GetPayloadInt(event.KeyApprovalID))
	})
	d.Subscribe(event.TypeRequisitionRejected, "notify-owner-rejected", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyRejected(ctx, evt.RequisitionID, evt.GetPayloadInt(event.KeyApprovalID))
	})
	d.Subscribe(event.TypeRequisitionApproved, "notify-owner-approved", func(ctx context.Context, evt *event.Event) error {
		return s.NotifyFullyApproved(ctx, evt.RequisitionID)
	})
}

// NotifyApprovalRequested tells an approver a decision is waiting
func (s *notificationServiceImpl) NotifyApprovalRequested(ctx context.Context, approvalID int64) error {
	approval, err := s.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("get approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("approval %d not found", approvalID)
	}
	req, err := s.loadRequisition(ctx, approval.RequisitionID)
	if err != nil {
		return err
	}

	data := s.baseContext(req)
	data["approver"] = approval.Approver.Username
	data["approval_id"] = approval.ID
	data["justification"] = req.Justification

	return s.send(ctx, port.TemplateApprovalRequest, approval.Approver, data)
}

// NotifyRejected tells the owner who rejected the requisition and why
func (s *notificationServiceImpl) NotifyRejected(ctx context.Context, requisitionID, approvalID int64) error {
	req, err := s.loadRequisition(ctx, requisitionID)
	if err != nil {
		return err
	}
	approval, err := s.approvalRepo.GetByID(ctx, approvalID)
	if err != nil {
		return fmt.Errorf("get approval: %w", err)
	}
	if approval == nil {
		return fmt.Errorf("approval %d not found", approvalID)
	}

	data := s.baseContext(req)
	data["rejected_at"] = req.RejectedAt
	data["rejected_by"] = approval.Approver.Username
	data["rejected_comment"] = approval.Comment

	return s.send(ctx, port.TemplateRejected, req.Owner, data)
}

// NotifyFullyApproved tells the owner the last approval is in
func (s *notificationServiceImpl) NotifyFullyApproved(ctx context.Context, requisitionID int64) error {
	req, err := s.loadRequisition(ctx, requisitionID)
	if err != nil {
		return err
	}

	data := s.baseContext(req)
	data["approved_at"] = req.ApprovedAt

	return s.send(ctx, port.TemplateFullyApproved, req.Owner, data)
}

func (s *notificationServiceImpl) loadRequisition(ctx context.Context, id int64) (*entity.Requisition, error) {
	req, err := s.requisitionRepo.GetByID(ctx, id)
	if err != nil {
		return nil, fmt.Errorf("get requisition: %w", err)
	}
	if req == nil {
		return nil, fmt.Errorf("requisition %d not found", id)
	}
	return req, nil
}

func (s *notificationServiceImpl) baseContext(req *entity.Requisition) map[string]interface{} {
	data := map[string]interface{}{
		"requisition_id":       req.ID,
		"requisition_name":     req.Name,
		"owner":                req.Owner.Username,
		"supplier":             req.Supplier,
		"total_amount":         req.TotalAmount.StringFixed(2),
		"currency":             req.Currency,
		"submitted_at":         req.SubmittedAt,
		"site_url":             s.site.SiteURL,
		"site_name":            s.site.SiteName,
		"email_subject_prefix": s.site.EmailSubjectPrefix,
	}
	if req.Project != nil {
		data["project_name"] = req.Project.Name
	}
	return data
}

func (s *notificationServiceImpl) send(ctx context.Context, template string, recipient *entity.User, data map[string]interface{}) error {
	if recipient == nil {
		return fmt.Errorf("%s: no recipient", template)
	}
	if err := s.sink.Send(ctx, port.Notification{
		Template:  template,
		Recipient: recipient,
		Context:   data,
	}); err != nil {
		s.logger.Error("Failed to queue notification",
			"template", template,
			"recipient_id", recipient.ID,
			"requisition_id", data["requisition_id"],
			"error", err,
		)
		return fmt.Errorf("send %s: %w", template, err)
	}

	s.logger.Info("Notification queued",
		"template", template,
		"recipient_id", recipient.ID,
		"requisition_id", data["requisition_id"],
	)
	return nil
}
