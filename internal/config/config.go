package config

import (
	"errors"
	"fmt"
	"io/fs"
	"os"
	"strings"
	"time"

	"github.com/spf13/viper"
	"github.com/subosito/gotenv"
)

// Notification channels
const (
	ChannelLog  = "log"
	ChannelLark = "lark"
)

// Config holds all application configuration
type Config struct {
	Server       ServerConfig       `mapstructure:"server"`
	Database     DatabaseConfig     `mapstructure:"database"`
	Logger       LoggerConfig       `mapstructure:"logger"`
	Approval     ApprovalConfig     `mapstructure:"approval"`
	Notification NotificationConfig `mapstructure:"notification"`
	Lark         LarkConfig         `mapstructure:"lark"`
	Export       ExportConfig       `mapstructure:"export"`
}

// ServerConfig holds HTTP server configuration
type ServerConfig struct {
	Host            string        `mapstructure:"host"`
	Port            int           `mapstructure:"port"`
	ReadTimeout     time.Duration `mapstructure:"read_timeout"`
	WriteTimeout    time.Duration `mapstructure:"write_timeout"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// DatabaseConfig holds database configuration
type DatabaseConfig struct {
	Path            string        `mapstructure:"path"`
	MaxOpenConns    int           `mapstructure:"max_open_conns"`
	MaxIdleConns    int           `mapstructure:"max_idle_conns"`
	ConnMaxLifetime time.Duration `mapstructure:"conn_max_lifetime"`
	BusyTimeout     time.Duration `mapstructure:"busy_timeout"`
}

// LoggerConfig holds logger configuration
type LoggerConfig struct {
	Level      string `mapstructure:"level"`
	OutputPath string `mapstructure:"output_path"`
	Format     string `mapstructure:"format"`
}

// ApprovalConfig holds requisition limits and the values shown in
// notifications
type ApprovalConfig struct {
	MaxRequisitionLines int      `mapstructure:"max_requisition_lines"`
	Currencies          []string `mapstructure:"currencies"`
	SiteURL             string   `mapstructure:"site_url"`
	SiteName            string   `mapstructure:"site_name"`
	EmailSubjectPrefix  string   `mapstructure:"email_subject_prefix"`
	Timezone            string   `mapstructure:"timezone"`
}

// NotificationConfig selects the delivery channel and sizes the pool that
// sends in the background
type NotificationConfig struct {
	Channel         string        `mapstructure:"channel"`
	PoolSize        int           `mapstructure:"pool_size"`
	ExpiryDuration  time.Duration `mapstructure:"expiry_duration"`
	ShutdownTimeout time.Duration `mapstructure:"shutdown_timeout"`
}

// LarkConfig holds Lark API configuration
type LarkConfig struct {
	AppID     string `mapstructure:"app_id"`
	AppSecret string `mapstructure:"app_secret"`
	BaseURL   string `mapstructure:"base_url"`
}

// ExportConfig holds xlsx export configuration
type ExportConfig struct {
	OutputDir string `mapstructure:"output_dir"`
	Font      string `mapstructure:"font"`
}

// Load reads configPath (YAML) over the defaults, then applies the
// environment. A .env file in the working directory is loaded first; an
// empty configPath skips the file.
func Load(configPath string) (*Config, error) {
	if err := loadDotEnv(".env"); err != nil {
		return nil, err
	}

	v := viper.New()
	v.SetConfigType("yaml")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	setDefaults(v)
	bindEnvVars(v)

	if configPath != "" {
		v.SetConfigFile(configPath)
		if err := v.ReadInConfig(); err != nil {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

// loadDotEnv exports the variables in path. Variables already set in the
// environment win; a missing file is ignored.
func loadDotEnv(path string) error {
	if _, err := os.Stat(path); errors.Is(err, fs.ErrNotExist) {
		return nil
	}
	if err := gotenv.Load(path); err != nil {
		return fmt.Errorf("failed to load %s: %w", path, err)
	}
	return nil
}

// setDefaults sets default configuration values
func setDefaults(v *viper.Viper) {
	// Server defaults
	v.SetDefault("server.host", "0.0.0.0")
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.read_timeout", 30*time.Second)
	v.SetDefault("server.write_timeout", 30*time.Second)
	v.SetDefault("server.shutdown_timeout", 30*time.Second)

	// Database defaults
	v.SetDefault("database.path", "data/requisitions.db")
	v.SetDefault("database.max_open_conns", 25)
	v.SetDefault("database.max_idle_conns", 5)
	v.SetDefault("database.conn_max_lifetime", 5*time.Minute)
	v.SetDefault("database.busy_timeout", 5*time.Second)

	// Logger defaults
	v.SetDefault("logger.level", "info")
	v.SetDefault("logger.output_path", "stdout")
	v.SetDefault("logger.format", "json")

	// Approval defaults
	v.SetDefault("approval.max_requisition_lines", 250)
	v.SetDefault("approval.currencies", []string{"usd"})
	v.SetDefault("approval.site_url", "http://localhost:8080")
	v.SetDefault("approval.site_name", "Purchasing")
	v.SetDefault("approval.email_subject_prefix", "[Purchasing] ")
	v.SetDefault("approval.timezone", "UTC")

	// Notification defaults
	v.SetDefault("notification.channel", ChannelLog)
	v.SetDefault("notification.pool_size", 16)
	v.SetDefault("notification.expiry_duration", 10*time.Second)
	v.SetDefault("notification.shutdown_timeout", 30*time.Second)

	// Export defaults
	v.SetDefault("export.output_dir", "exports")
}

// bindEnvVars binds environment variables to configuration
func bindEnvVars(v *viper.Viper) {
	// Sensitive credentials from environment
	_ = v.BindEnv("lark.app_id", "LARK_APP_ID")
	_ = v.BindEnv("lark.app_secret", "LARK_APP_SECRET")
	_ = v.BindEnv("lark.base_url", "LARK_BASE_URL")
	_ = v.BindEnv("database.path", "DATABASE_PATH")
	_ = v.BindEnv("notification.channel", "NOTIFICATION_CHANNEL")
}

// Validate validates the configuration
func (c *Config) Validate() error {
	if c.Server.Port <= 0 || c.Server.Port > 65535 {
		return fmt.Errorf("server.port must be between 1 and 65535")
	}
	if c.Database.Path == "" {
		return fmt.Errorf("database.path is required")
	}

	if c.Approval.MaxRequisitionLines <= 0 {
		return fmt.Errorf("approval.max_requisition_lines must be positive")
	}
	if len(c.Approval.Currencies) == 0 {
		return fmt.Errorf("approval.currencies must not be empty")
	}
	if _, err := time.LoadLocation(c.Approval.Timezone); err != nil {
		return fmt.Errorf("approval.timezone: %w", err)
	}

	switch c.Notification.Channel {
	case ChannelLog:
	case ChannelLark:
		if c.Lark.AppID == "" {
			return fmt.Errorf("lark.app_id is required for the lark channel")
		}
		if c.Lark.AppSecret == "" {
			return fmt.Errorf("lark.app_secret is required for the lark channel")
		}
	default:
		return fmt.Errorf("notification.channel must be %q or %q, got %q", ChannelLog, ChannelLark, c.Notification.Channel)
	}
	if c.Notification.PoolSize <= 0 {
		return fmt.Errorf("notification.pool_size must be positive")
	}

	if c.Export.OutputDir == "" {
		return fmt.Errorf("export.output_dir is required")
	}

	return nil
}

// Location returns the configured notification timezone
func (c *ApprovalConfig) Location() *time.Location {
	loc, err := time.LoadLocation(c.Timezone)
	if err != nil {
		return time.UTC
	}
	return loc
}
