// Command deactivate-user marks a user inactive and cancels the pending
// approvals they hold, advancing every affected requisition.
package main

import (
	"context"
	"flag"
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/config"
	"github.com/garyjia/requisition-approval/internal/container"
	"github.com/garyjia/requisition-approval/pkg/utils"
)

func main() {
	configPath := flag.String("config", "configs/config.yaml", "path to the YAML configuration file")
	username := flag.String("username", "", "username to deactivate")
	userID := flag.Int64("id", 0, "user ID to deactivate (alternative to -username)")
	flag.Parse()

	if (*username == "") == (*userID == 0) {
		fmt.Fprintln(os.Stderr, "Usage: deactivate-user [-config path] (-username name | -id n)")
		os.Exit(2)
	}

	cfg, err := config.Load(*configPath)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to load configuration: %v\n", err)
		os.Exit(1)
	}

	logger, err := utils.NewLogger(utils.LoggerConfig{
		Level:      cfg.Logger.Level,
		OutputPath: cfg.Logger.OutputPath,
		Format:     cfg.Logger.Format,
	})
	if err != nil {
		fmt.Fprintf(os.Stderr, "Failed to initialize logger: %v\n", err)
		os.Exit(1)
	}
	defer logger.Sync()

	if err := run(context.Background(), cfg, logger, *username, *userID); err != nil {
		logger.Error("Deactivation failed", zap.Error(err))
		fmt.Fprintf(os.Stderr, "Deactivation failed: %v\n", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config, logger *zap.Logger, username string, userID int64) (err error) {
	c, err := container.NewContainer(cfg, logger)
	if err != nil {
		return err
	}
	if err := c.Start(ctx); err != nil {
		return err
	}
	// Close drains the notifications the cascade queued
	defer func() {
		if closeErr := c.Close(); closeErr != nil && err == nil {
			err = closeErr
		}
	}()

	if username != "" {
		user, err := c.Repositories().User.GetByUsername(ctx, username)
		if err != nil {
			return err
		}
		if user == nil {
			return fmt.Errorf("user %q not found", username)
		}
		userID = user.ID
	}

	result, err := c.Services().User.Deactivate(ctx, userID, nil)
	if err != nil {
		return err
	}

	fmt.Printf("Deactivated %s (id %d); %d requisition(s) advanced\n",
		result.User.Username, result.User.ID, len(result.Requisitions))
	for _, id := range result.Requisitions {
		fmt.Printf("  requisition %d\n", id)
	}
	return nil
}
