package notification

import (
	"context"
	"fmt"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
)

// ChannelSink renders notifications and hands them to a MessageSender
type ChannelSink struct {
	renderer *Renderer
	sender   port.MessageSender
	logger   *zap.Logger
}

// NewChannelSink creates a ChannelSink
func NewChannelSink(renderer *Renderer, sender port.MessageSender, logger *zap.Logger) *ChannelSink {
	return &ChannelSink{renderer: renderer, sender: sender, logger: logger}
}

func (s *ChannelSink) Send(ctx context.Context, n port.Notification) error {
	if n.Recipient == nil || n.Recipient.Email == "" {
		s.logger.Warn("Notification skipped: recipient has no email",
			zap.String("template", n.Template))
		return nil
	}
	msg, err := s.renderer.Render(n)
	if err != nil {
		return err
	}
	if err := s.sender.SendText(ctx, n.Recipient.Email, msg.Subject, msg.Body); err != nil {
		return fmt.Errorf("deliver %s to %s: %w", n.Template, n.Recipient.Username, err)
	}
	return nil
}

// LogSink writes rendered notifications to the log instead of delivering
// them. It is used when no delivery channel is configured.
type LogSink struct {
	renderer *Renderer
	logger   *zap.Logger
}

// NewLogSink creates a LogSink
func NewLogSink(renderer *Renderer, logger *zap.Logger) *LogSink {
	return &LogSink{renderer: renderer, logger: logger}
}

func (s *LogSink) Send(ctx context.Context, n port.Notification) error {
	msg, err := s.renderer.Render(n)
	if err != nil {
		return err
	}
	recipient := ""
	if n.Recipient != nil {
		recipient = n.Recipient.Email
	}
	s.logger.Info("Notification",
		zap.String("template", n.Template),
		zap.String("to", recipient),
		zap.String("subject", msg.Subject),
		zap.String("body", msg.Body))
	return nil
}

var (
	_ port.NotificationSink = (*ChannelSink)(nil)
	_ port.NotificationSink = (*LogSink)(nil)
)
