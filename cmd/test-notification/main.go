// Command test-notification renders every notification template with sample
// data and delivers it through the configured channel.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"
	"time"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/config"
	"github.com/garyjia/requisition-approval/internal/container"
	"github.com/garyjia/requisition-approval/internal/domain/entity"
	"github.com/garyjia/requisition-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	email := flag.String("email", "", "recipient email address")
	template := flag.String("template", "", "send only this template")
	flag.Parse()

	if *email == "" {
		fmt.Fprintln(os.Stderr, "Usage: test-notification -email someone@example.com [-template name]")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{Level: "debug", Format: "console"})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	fmt.Printf("=== Notification test (channel: %s) ===\n", cfg.Notification.Channel)

	bundle, err := container.ProvideNotifications(cfg, logger)
	if err != nil {
		logger.Fatal("Failed to build notification channel", zap.Error(err))
	}

	ctx := context.Background()
	if err := bundle.Async.Start(ctx); err != nil {
		logger.Fatal("Failed to start delivery pool", zap.Error(err))
	}

	recipient := &entity.User{Username: "test", Email: *email, IsActive: true}
	failed := 0
	for name, data := range samples(cfg) {
		if *template != "" && name != *template {
			continue
		}
		err := bundle.Sink.Send(ctx, port.Notification{Template: name, Recipient: recipient, Context: data})
		if err != nil {
			failed++
			fmt.Printf("✗ %s: %v\n", name, err)
			continue
		}
		fmt.Printf("✓ %s queued\n", name)
	}

	if err := bundle.Async.Stop(); err != nil {
		logger.Error("Delivery pool did not stop cleanly", zap.Error(err))
	}

	fmt.Println("=== Test Complete ===")
	if failed > 0 {
		os.Exit(1)
	}
}

func samples(cfg *config.Config) map[string]map[string]interface{} {
	now := time.Now()
	base := func() map[string]interface{} {
		return map[string]interface{}{
			"requisition_id":       int64(1),
			"requisition_name":     "Notification test",
			"owner":                "test",
			"supplier":             "Acme Supplies",
			"total_amount":         "1250.00",
			"currency":             "usd",
			"submitted_at":         &now,
			"site_url":             cfg.Approval.SiteURL,
			"site_name":            cfg.Approval.SiteName,
			"email_subject_prefix": cfg.Approval.EmailSubjectPrefix,
		}
	}

	request := base()
	request["approval_id"] = int64(1)
	request["approver"] = "test"
	request["justification"] = "Sample justification."

	rejected := base()
	rejected["rejected_by"] = "test"
	rejected["rejected_at"] = &now
	rejected["rejected_comment"] = "Sample comment."

	approved := base()
	approved["approved_at"] = &now

	return map[string]map[string]interface{}{
		port.TemplateApprovalRequest: request,
		port.TemplateRejected:        rejected,
		port.TemplateFullyApproved:   approved,
	}
}
