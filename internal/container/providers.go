package container

import (
	"fmt"
	"os"

	"go.uber.org/zap"

	"github.com/garyjia/requisition-approval/internal/application/dispatcher"
	"github.com/garyjia/requisition-approval/internal/application/port"
	"github.com/garyjia/requisition-approval/internal/application/service"
	"github.com/garyjia/requisition-approval/internal/config"
	"github.com/garyjia/requisition-approval/internal/infrastructure/export"
	infraLark "github.com/garyjia/requisition-approval/internal/infrastructure/external/lark"
	"github.com/garyjia/requisition-approval/internal/infrastructure/notification"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/migrations"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/repository"
	"github.com/garyjia/requisition-approval/internal/infrastructure/persistence/sqlite"
	"github.com/garyjia/requisition-approval/internal/infrastructure/storage"
	"github.com/garyjia/requisition-approval/internal/infrastructure/worker"
	"github.com/garyjia/requisition-approval/pkg/database"
	"github.com/garyjia/requisition-approval/pkg/utils"
)

// DatabaseBundle holds database-related components.
type DatabaseBundle struct {
	DB             *database.DB
	TransactionMgr *sqlite.DB
}

// NotificationBundle holds the delivery pipeline. Sink is what services
// send to; Async is the background worker behind it.
type NotificationBundle struct {
	Sink  port.NotificationSink
	Async *notification.AsyncSink
}

// ServiceDeps lists what ProvideServices needs.
type ServiceDeps struct {
	Config     *config.Config
	Repos      *RepositoryBundle
	TxManager  port.TransactionManager
	Dispatcher dispatcher.Dispatcher
	Sink       port.NotificationSink
	Storage    port.FileStorage
	Logger     *zap.Logger
}

// ProvideDatabase opens the SQLite database and applies pending migrations.
func ProvideDatabase(cfg *config.DatabaseConfig, logger *zap.Logger) (*DatabaseBundle, error) {
	if cfg == nil {
		return nil, fmt.Errorf("database config is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	db, err := database.New(database.Config{
		Path:            cfg.Path,
		MaxOpenConns:    cfg.MaxOpenConns,
		MaxIdleConns:    cfg.MaxIdleConns,
		ConnMaxLifetime: cfg.ConnMaxLifetime,
		BusyTimeout:     cfg.BusyTimeout,
	}, logger)
	if err != nil {
		return nil, err
	}

	if err := database.NewMigrator(db, logger).RunMigrations(migrations.FS); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to run migrations: %w", err)
	}

	return &DatabaseBundle{
		DB:             db,
		TransactionMgr: sqlite.NewDB(db.DB, logger),
	}, nil
}

// ProvideRepositories creates all repositories from a database connection.
func ProvideRepositories(db *database.DB, logger *zap.Logger) (*RepositoryBundle, error) {
	if db == nil {
		return nil, fmt.Errorf("database connection is required")
	}
	if logger == nil {
		return nil, fmt.Errorf("logger is required")
	}

	return &RepositoryBundle{
		User:        repository.NewUserRepository(db.DB, logger),
		Group:       repository.NewGroupRepository(db.DB, logger),
		Project:     repository.NewProjectRepository(db.DB, logger),
		Address:     repository.NewAddressRepository(db.DB, logger),
		Requisition: repository.NewRequisitionRepository(db.DB, logger),
		Chain:       repository.NewChainRepository(db.DB, logger),
		Approval:    repository.NewApprovalRepository(db.DB, logger),
		History:     repository.NewHistoryRepository(db.DB, logger),
	}, nil
}

// ProvideNotifications builds the channel selected in cfg behind an
// asynchronous pool.
func ProvideNotifications(cfg *config.Config, logger *zap.Logger) (*NotificationBundle, error) {
	renderer, err := notification.NewRenderer(cfg.Approval.Location())
	if err != nil {
		return nil, fmt.Errorf("failed to load notification templates: %w", err)
	}

	var channel port.NotificationSink
	switch cfg.Notification.Channel {
	case config.ChannelLark:
		client := infraLark.NewSDKClient(infraLark.Config{
			AppID:     cfg.Lark.AppID,
			AppSecret: cfg.Lark.AppSecret,
			BaseURL:   cfg.Lark.BaseURL,
		}, logger)
		channel = notification.NewChannelSink(renderer, infraLark.NewMessenger(client, logger), logger)
	case config.ChannelLog:
		channel = notification.NewLogSink(renderer, logger)
	default:
		return nil, fmt.Errorf("unknown notification channel %q", cfg.Notification.Channel)
	}

	async := notification.NewAsyncSink(channel, worker.PoolConfig{
		Size:            cfg.Notification.PoolSize,
		ExpiryDuration:  cfg.Notification.ExpiryDuration,
		ShutdownTimeout: cfg.Notification.ShutdownTimeout,
	}, logger)

	return &NotificationBundle{Sink: async, Async: async}, nil
}

// ProvideStorage creates the export archive, making sure its root exists.
func ProvideStorage(cfg *config.ExportConfig, logger *zap.Logger) (port.FileStorage, error) {
	if err := os.MkdirAll(cfg.OutputDir, 0o755); err != nil {
		return nil, fmt.Errorf("failed to create export directory: %w", err)
	}
	return storage.NewExportArchive(cfg.OutputDir, logger), nil
}

// ProvideServices creates the application services and subscribes the
// event handlers on the dispatcher.
func ProvideServices(deps *ServiceDeps) (*ServiceBundle, error) {
	if deps == nil || deps.Repos == nil || deps.Config == nil {
		return nil, fmt.Errorf("service dependencies are required")
	}

	logger := utils.NewKeyValueLogger(deps.Logger)
	repos := deps.Repos
	approvalCfg := deps.Config.Approval

	approvals := service.NewApprovalService(repos.Approval, repos.Requisition, deps.TxManager, deps.Dispatcher, logger)
	requisitions := service.NewRequisitionService(
		repos.Requisition, repos.Approval, repos.Project, repos.Address,
		service.NewChainMatcher(repos.Chain, logger), approvals,
		deps.TxManager, deps.Dispatcher,
		service.RequisitionConfig{
			MaxLines:   approvalCfg.MaxRequisitionLines,
			Currencies: approvalCfg.Currencies,
		},
		logger,
	)
	notifications := service.NewNotificationService(repos.Requisition, repos.Approval, deps.Sink, service.SiteConfig{
		SiteURL:            approvalCfg.SiteURL,
		SiteName:           approvalCfg.SiteName,
		EmailSubjectPrefix: approvalCfg.EmailSubjectPrefix,
	}, logger)
	audit := service.NewAuditService(repos.History, repos.Requisition, logger)

	notifications.Subscribe(deps.Dispatcher)
	audit.Subscribe(deps.Dispatcher)

	renderer := export.NewXLSXRenderer(deps.Config.Export.Font, approvalCfg.Location(), deps.Logger)

	return &ServiceBundle{
		Requisition:  requisitions,
		Approval:     approvals,
		Chain:        service.NewChainService(repos.Chain, repos.Group, repos.User, deps.TxManager, logger),
		User:         service.NewUserService(repos.User, approvals, deps.TxManager, logger),
		Notification: notifications,
		Audit:        audit,
		Export:       service.NewExportService(repos.Requisition, repos.Approval, renderer, deps.Storage, logger),
	}, nil
}
