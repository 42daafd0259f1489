// Package config defines the application configuration structure and the
// logic for loading and validating it from the environment.
package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server   ServerConfig   `mapstructure:"server" validate:"required"`
	Database DatabaseConfig `mapstructure:"database" validate:"required"`
	Storage  StorageConfig  `mapstructure:"storage" validate:"required"`
	Queue    QueueConfig    `mapstructure:"queue"`
	Worker   WorkerConfig   `mapstructure:"worker"`
	Upload   UploadConfig   `mapstructure:"upload"`
	Cache    CacheConfig    `mapstructure:"cache"`
	Mail     MailConfig     `mapstructure:"mail"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required"`
}

// StorageConfig configures the object store adapter. An empty bucket
// selects the in-memory store, which is only suitable for local
// development.
type StorageConfig struct {
	Bucket string `mapstructure:"bucket"`
	Region string `mapstructure:"region"`

	// RetryAttempts bounds the adapter's internal retry of transient
	// failures before an error is surfaced to the caller.
	RetryAttempts int `mapstructure:"retry_attempts" validate:"gte=1,lte=10"`

	// RetryDelay is the fixed delay between adapter retries.
	RetryDelay time.Duration `mapstructure:"retry_delay"`

	// CallTimeout bounds each individual remote call so a hung backend
	// cannot hang a worker indefinitely.
	CallTimeout time.Duration `mapstructure:"call_timeout"`
}

// QueueConfig configures the task queue backing. When RedisURL is empty the
// process falls back to the in-memory queue, which is sufficient for a
// single node and for tests.
type QueueConfig struct {
	RedisURL  string `mapstructure:"redis_url"`
	KeyPrefix string `mapstructure:"key_prefix"`
}

// WorkerConfig configures the background worker pool and its supervisor.
type WorkerConfig struct {
	Count        int           `mapstructure:"count" validate:"gte=1,lte=64"`
	PollInterval time.Duration `mapstructure:"poll_interval"`
	MaxAttempts  int           `mapstructure:"max_attempts" validate:"gte=1,lte=10"`
	BackoffBase  time.Duration `mapstructure:"backoff_base"`
	BackoffCap   time.Duration `mapstructure:"backoff_cap"`

	// RestartBudget is the maximum number of worker restarts allowed per
	// rolling RestartWindow before the supervisor pauses restarts.
	RestartBudget   int           `mapstructure:"restart_budget" validate:"gte=1"`
	RestartWindow   time.Duration `mapstructure:"restart_window"`
	RestartCooldown time.Duration `mapstructure:"restart_cooldown"`

	// SweepWindow and SweepMaxBatch bound the recent-order thumbnail
	// catch-up sweep.
	SweepWindow   time.Duration `mapstructure:"sweep_window"`
	SweepMaxBatch int           `mapstructure:"sweep_max_batch" validate:"gte=1"`
}

// UploadConfig configures the upload session manager.
type UploadConfig struct {
	SessionTTL         time.Duration `mapstructure:"session_ttl"`
	ChunkRetryAttempts int           `mapstructure:"chunk_retry_attempts" validate:"gte=1,lte=10"`
}

// CacheConfig configures the read-side caches.
type CacheConfig struct {
	OrderTTL          time.Duration `mapstructure:"order_ttl"`
	OrderListTTL      time.Duration `mapstructure:"order_list_ttl"`
	ThumbnailMissTTL  time.Duration `mapstructure:"thumbnail_miss_ttl"`
	ThumbnailCapacity int           `mapstructure:"thumbnail_capacity" validate:"gte=1"`
}

// MailConfig configures the outbound mail transport.
type MailConfig struct {
	SendGridAPIKey string   `mapstructure:"sendgrid_api_key"`
	FromEmail      string   `mapstructure:"from_email" validate:"required,email"`
	FromName       string   `mapstructure:"from_name"`
	ProductionTeam []string `mapstructure:"production_team" validate:"dive,email"`
}
