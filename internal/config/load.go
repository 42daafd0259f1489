package config

import (
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// Load reads configuration from environment variables and an optional
// config.yaml in the working directory. Environment variables take
// precedence over values from the config file; both override defaults.
// Returns a populated Config struct or an error if loading or validation
// fails.
func Load() (*Config, error) {
	v := viper.New()

	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")

	v.SetEnvPrefix("PRINTFLOW")
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	if err := v.ReadInConfig(); err != nil {
		// A missing config file is fine; the environment carries the rest.
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("failed to read config file: %w", err)
		}
	}

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("failed to unmarshal config: %w", err)
	}

	if err := validator.New().Struct(&cfg); err != nil {
		return nil, fmt.Errorf("invalid configuration: %w", err)
	}

	return &cfg, nil
}

func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")

	// Keys without meaningful defaults still need to be registered so that
	// viper's AutomaticEnv can bind them during Unmarshal.
	v.SetDefault("database.url", "")
	v.SetDefault("storage.bucket", "")
	v.SetDefault("storage.region", "")
	v.SetDefault("queue.redis_url", "")
	v.SetDefault("mail.sendgrid_api_key", "")

	v.SetDefault("storage.retry_attempts", 3)
	v.SetDefault("storage.retry_delay", 250*time.Millisecond)
	v.SetDefault("storage.call_timeout", 30*time.Second)

	v.SetDefault("queue.key_prefix", "printflow:tasks")

	v.SetDefault("worker.count", 2)
	v.SetDefault("worker.poll_interval", 500*time.Millisecond)
	v.SetDefault("worker.max_attempts", 4)
	v.SetDefault("worker.backoff_base", 10*time.Second)
	v.SetDefault("worker.backoff_cap", 10*time.Minute)
	v.SetDefault("worker.restart_budget", 5)
	v.SetDefault("worker.restart_window", time.Hour)
	v.SetDefault("worker.restart_cooldown", 3*time.Second)
	v.SetDefault("worker.sweep_window", 24*time.Hour)
	v.SetDefault("worker.sweep_max_batch", 20)

	v.SetDefault("upload.session_ttl", 30*time.Minute)
	v.SetDefault("upload.chunk_retry_attempts", 3)

	v.SetDefault("cache.order_ttl", 5*time.Minute)
	v.SetDefault("cache.order_list_ttl", 30*time.Second)
	v.SetDefault("cache.thumbnail_miss_ttl", 15*time.Second)
	v.SetDefault("cache.thumbnail_capacity", 2048)

	v.SetDefault("mail.from_email", "info@appareldecorating.net")
	v.SetDefault("mail.from_name", "DTF Printing")
	v.SetDefault("mail.production_team", []string{})
}
