package config

import (
	"time"
)

// AppConfig represents the top-level configuration.
type AppConfig struct {
	Server   ServerConfig   `yaml:"server"`
	Redis    RedisConfig    `yaml:"redis"`
	Database DatabaseConfig `yaml:"database"`
	Logging  LoggingConfig  `yaml:"logging"`
	Workers  []PoolConfig   `yaml:"workers"`
	Collab   CollabConfig   `yaml:"collaborators"`
	Retry    RetryConfig    `yaml:"retry"`
	DLQ      DLQConfig      `yaml:"dlq"`
	Health   HealthConfig   `yaml:"health"`
}

// ServerConfig holds ops HTTP server settings.
type ServerConfig struct {
	Port int `yaml:"port"`
}

// RedisConfig holds Redis connection settings.
type RedisConfig struct {
	Addr     string `yaml:"addr"`
	Password string `yaml:"password"`
	DB       int    `yaml:"db"`
}

// DatabaseConfig holds Postgres connection settings.
type DatabaseConfig struct {
	Host     string `yaml:"host"`
	Port     int    `yaml:"port"`
	User     string `yaml:"user"`
	Password string `yaml:"password"`
	DBName   string `yaml:"dbname"`
	SSLMode  string `yaml:"sslmode"`
	MaxConns int    `yaml:"max_conns"`
}

// LoggingConfig holds logging configuration.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
}

// PoolConfig holds per-queue worker pool settings.
type PoolConfig struct {
	QueueName       string        `yaml:"queue"`
	MinWorkers      int           `yaml:"min_workers"`
	MaxWorkers      int           `yaml:"max_workers"`
	PollInterval    time.Duration `yaml:"poll_interval"`
	MonitorInterval time.Duration `yaml:"monitor_interval"`
	MaxConsecFails  int           `yaml:"max_consecutive_failures"`
	ScaleUpDepth    int           `yaml:"scale_up_depth"`
	ScaleDownDepth  int           `yaml:"scale_down_depth"`
}

// CollabConfig holds endpoints for downstream services.
type CollabConfig struct {
	TranscriptionURL string        `yaml:"transcription_url"`
	AgentURL         string        `yaml:"agent_url"`
	APIKey           string        `yaml:"api_key"`
	RequestTimeout   time.Duration `yaml:"request_timeout"`
}

// RetryConfig holds retry engine settings.
type RetryConfig struct {
	SweepInterval     time.Duration `yaml:"sweep_interval"`
	DefaultMaxRetries int           `yaml:"default_max_retries"`
}

// DLQConfig holds dead letter queue settings.
type DLQConfig struct {
	MaxEntriesPerQueue int           `yaml:"max_entries_per_queue"`
	Retention          time.Duration `yaml:"retention"`
	CleanupInterval    time.Duration `yaml:"cleanup_interval"`
}

// HealthConfig holds worker health registry settings.
type HealthConfig struct {
	StaleAfter    time.Duration `yaml:"stale_after"`
	CheckInterval time.Duration `yaml:"check_interval"`
}
