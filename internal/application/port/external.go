package port

import (
	"context"

	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/internal/domain/event"
)

// Notification templates
const (
	TemplateApprovalRequest = "approval_request"
	TemplateRejected        = "requisition_rejected"
	TemplateFullyApproved   = "requisition_fully_approved"
)

// Notification is one outbound message to a single recipient
type Notification struct {
	Template  string
	Recipient *entity.User
	Context   map[string]interface{}
}

// NotificationSink delivers notifications. Delivery is fire-and-forget:
// callers log failures and never roll back on them.
type NotificationSink interface {
	Send(ctx context.Context, n Notification) error
}

// MessageSender posts a rendered message to a user on a chat/mail channel
type MessageSender interface {
	SendText(ctx context.Context, email, subject, body string) error
}

// SpreadsheetRenderer renders an approval trail as a workbook
type SpreadsheetRenderer interface {
	RenderApprovalTrail(req *entity.Requisition, approvals []*entity.Approval) ([]byte, error)
}

// EventPublisher hands committed domain events to their subscribers
type EventPublisher interface {
	Dispatch(ctx context.Context, evt *event.Event) error
}
