// Package config loads and validates NetRaven worker configuration.
package config

import (
	"fmt"
	"strings"
	"time"

	"github.com/spf13/viper"
)

// Config represents the full worker configuration.
type Config struct {
	// Profile selects the storage backend: "lite" (embedded sqlite) or
	// "standard" (external postgres).
	Profile DeploymentProfile `mapstructure:"profile"`

	Database  DatabaseConfig  `mapstructure:"database"`
	Worker    WorkerConfig    `mapstructure:"worker"`
	Scheduler SchedulerConfig `mapstructure:"scheduler"`
	Log       LogConfig       `mapstructure:"log"`
	Metrics   MetricsConfig   `mapstructure:"metrics"`
}

// DeploymentProfile selects storage backend.
type DeploymentProfile string

const (
	ProfileLite     DeploymentProfile = "lite"
	ProfileStandard DeploymentProfile = "standard"
)

// DatabaseConfig holds domain-store and telemetry backend configuration.
type DatabaseConfig struct {
	// Backend is "sqlite" (Lite profile) or "postgres" (Standard profile).
	Backend  string `mapstructure:"backend"`
	SQLite   SQLiteConfig
	Postgres PostgresConfig
}

// SQLiteConfig configures the embedded sqlite backend.
type SQLiteConfig struct {
	Path string `mapstructure:"path"`
}

// PostgresConfig configures the external postgres backend.
type PostgresConfig struct {
	DSN             string        `mapstructure:"dsn"`
	MaxConnections  int32         `mapstructure:"max_connections"`
	MinConnections  int32         `mapstructure:"min_connections"`
	MaxConnLifetime time.Duration `mapstructure:"max_conn_lifetime"`
	ConnectTimeout  time.Duration `mapstructure:"connect_timeout"`
}

// WorkerConfig holds the §6 `worker.*` configuration keys.
type WorkerConfig struct {
	ThreadPoolSize int    `mapstructure:"thread_pool_size"`
	GitRepoPath    string `mapstructure:"git_repo_path"`
	Redaction      RedactionConfig
	Timeouts       TimeoutsConfig
	Retry          RetryConfig
	Circuit        CircuitConfig
}

// RedactionConfig holds the redaction keyword set.
type RedactionConfig struct {
	Keywords []string `mapstructure:"keywords"`
}

// TimeoutsConfig holds §5 timeout defaults.
type TimeoutsConfig struct {
	ConnectSeconds      int `mapstructure:"connect_seconds"`
	CommandSeconds      int `mapstructure:"command_seconds"`
	TotalAttemptSeconds int `mapstructure:"total_attempt_seconds"`
	JobRunSeconds       int `mapstructure:"job_run_seconds"`
}

// RetryConfig holds dispatcher retry-policy defaults (§4.6).
type RetryConfig struct {
	MaxRetries  int     `mapstructure:"max_retries"`
	BaseSeconds float64 `mapstructure:"base_seconds"`
	CapSeconds  float64 `mapstructure:"cap_seconds"`
}

// CircuitConfig holds per-device circuit breaker defaults (§4.5).
type CircuitConfig struct {
	FailureThreshold int           `mapstructure:"failure_threshold"`
	ResetSeconds     int           `mapstructure:"reset_seconds"`
	SuccessThreshold int           `mapstructure:"success_threshold"`
	ResetTimeout     time.Duration `mapstructure:"-"`
}

// SchedulerConfig holds scheduler-runtime configuration.
type SchedulerConfig struct {
	ShutdownGraceSeconds int `mapstructure:"shutdown_grace_seconds"`
}

// LogConfig holds logging configuration.
type LogConfig struct {
	Level      string `mapstructure:"level"`
	Format     string `mapstructure:"format"`
	Output     string `mapstructure:"output"`
	Filename   string `mapstructure:"filename"`
	MaxSize    int    `mapstructure:"max_size"`
	MaxBackups int    `mapstructure:"max_backups"`
	MaxAge     int    `mapstructure:"max_age"`
	Compress   bool   `mapstructure:"compress"`
}

// MetricsConfig holds Prometheus exposition configuration.
type MetricsConfig struct {
	Enabled bool   `mapstructure:"enabled"`
	Path    string `mapstructure:"path"`
	Port    int    `mapstructure:"port"`
}

// IsLiteProfile reports whether the Lite (embedded sqlite) profile is active.
func (c *Config) IsLiteProfile() bool {
	return c.Profile == ProfileLite
}

// IsStandardProfile reports whether the Standard (postgres) profile is active.
func (c *Config) IsStandardProfile() bool {
	return c.Profile == ProfileStandard
}

// LoadConfig loads configuration from an optional YAML file plus environment
// variables, applying defaults for any key left unset.
func LoadConfig(configPath string) (*Config, error) {
	setDefaults()

	viper.AutomaticEnv()
	viper.SetEnvPrefix("netraven")
	viper.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))

	if configPath != "" {
		viper.SetConfigFile(configPath)
		viper.SetConfigType("yaml")

		if err := viper.ReadInConfig(); err != nil {
			if _, ok := err.(viper.ConfigFileNotFoundError); !ok {
				return nil, fmt.Errorf("failed to read config file: %w", err)
			}
		}
	}

	var cfg Config
	if err := viper.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	cfg.Worker.Circuit.ResetTimeout = time.Duration(cfg.Worker.Circuit.ResetSeconds) * time.Second

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config validation failed: %w", err)
	}

	return &cfg, nil
}

func setDefaults() {
	viper.SetDefault("profile", "standard")
	viper.SetDefault("database.backend", "postgres")
	viper.SetDefault("database.sqlite.path", "/data/netraven.db")
	viper.SetDefault("database.postgres.max_connections", 25)
	viper.SetDefault("database.postgres.min_connections", 5)
	viper.SetDefault("database.postgres.max_conn_lifetime", "1h")
	viper.SetDefault("database.postgres.connect_timeout", "10s")

	viper.SetDefault("worker.thread_pool_size", 16)
	viper.SetDefault("worker.git_repo_path", "/data/config-repo")
	viper.SetDefault("worker.redaction.keywords", []string{
		"password", "secret", "community", "pre-shared-key", "key",
	})
	viper.SetDefault("worker.timeouts.connect_seconds", 30)
	viper.SetDefault("worker.timeouts.command_seconds", 60)
	viper.SetDefault("worker.timeouts.total_attempt_seconds", 120)
	viper.SetDefault("worker.timeouts.job_run_seconds", 3600)
	viper.SetDefault("worker.retry.max_retries", 2)
	viper.SetDefault("worker.retry.base_seconds", 0.5)
	viper.SetDefault("worker.retry.cap_seconds", 30.0)
	viper.SetDefault("worker.circuit.failure_threshold", 5)
	viper.SetDefault("worker.circuit.reset_seconds", 60)
	viper.SetDefault("worker.circuit.success_threshold", 1)

	viper.SetDefault("scheduler.shutdown_grace_seconds", 30)

	viper.SetDefault("log.level", "info")
	viper.SetDefault("log.format", "json")
	viper.SetDefault("log.output", "stdout")
	viper.SetDefault("log.max_size", 100)
	viper.SetDefault("log.max_backups", 3)
	viper.SetDefault("log.max_age", 28)
	viper.SetDefault("log.compress", true)

	viper.SetDefault("metrics.enabled", true)
	viper.SetDefault("metrics.path", "/metrics")
	viper.SetDefault("metrics.port", 9090)
}

// Validate checks structural invariants of the configuration.
func (c *Config) Validate() error {
	if c.Profile != ProfileLite && c.Profile != ProfileStandard {
		return fmt.Errorf("invalid deployment profile: %s (must be 'lite' or 'standard')", c.Profile)
	}

	if c.Profile == ProfileLite && c.Database.SQLite.Path == "" {
		return fmt.Errorf("lite profile requires database.sqlite.path")
	}

	if c.Profile == ProfileStandard && c.Database.Postgres.DSN == "" {
		return fmt.Errorf("standard profile requires database.postgres.dsn")
	}

	if c.Worker.ThreadPoolSize <= 0 {
		return fmt.Errorf("worker.thread_pool_size must be positive")
	}

	if c.Worker.Timeouts.ConnectSeconds <= 0 || c.Worker.Timeouts.CommandSeconds <= 0 {
		return fmt.Errorf("worker timeouts must be positive")
	}

	if c.Worker.Retry.MaxRetries < 0 {
		return fmt.Errorf("worker.retry.max_retries cannot be negative")
	}

	if c.Worker.Circuit.FailureThreshold <= 0 {
		return fmt.Errorf("worker.circuit.failure_threshold must be positive")
	}

	if c.Worker.Circuit.SuccessThreshold <= 0 {
		return fmt.Errorf("worker.circuit.success_threshold must be positive")
	}

	if c.Log.Level == "" {
		return fmt.Errorf("log level cannot be empty")
	}

	return nil
}

// ThreadPoolSize resolves the effective worker pool size given a device
// count, honoring the §4.6 default of min(devices, 16) when unset.
func ThreadPoolSize(configured, deviceCount int) int {
	if configured > 0 {
		return configured
	}
	if deviceCount < 16 {
		if deviceCount <= 0 {
			return 1
		}
		return deviceCount
	}
	return 16
}
