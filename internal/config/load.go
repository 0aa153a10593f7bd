package config

import (
	"errors"
	"fmt"
	"strings"

	"github.com/go-playground/validator/v10"
	"github.com/spf13/viper"
)

// EnvPrefix is prepended to every environment variable, e.g.
// TASKPULSE_DATABASE_URL for database.url.
const EnvPrefix = "TASKPULSE"

// ErrAuthSecretMissing is returned by RequireAuth when no JWT secret is set.
var ErrAuthSecretMissing = errors.New("validation failed: auth.jwt_secret is required")

// every key must be registered so AutomaticEnv can resolve it during Unmarshal
func setDefaults(v *viper.Viper) {
	v.SetDefault("server.port", 8080)
	v.SetDefault("server.log_level", "info")
	v.SetDefault("database.url", "")
	v.SetDefault("auth.jwt_secret", "")

	v.SetDefault("events.enabled", true)
	v.SetDefault("events.broker", "dapr")
	v.SetDefault("events.publish_timeout", "5s")

	v.SetDefault("dapr.base_url", "http://localhost:3500")
	v.SetDefault("dapr.pubsub_name", "taskpubsub")
	v.SetDefault("dapr.topic", "task-events")

	v.SetDefault("kafka.brokers", []string{})
	v.SetDefault("kafka.topic", "task-events")

	v.SetDefault("worker.batch_size", 50)
	v.SetDefault("worker.max_retries", 3)
	v.SetDefault("worker.retry_delay", "60s")
	v.SetDefault("worker.poll_interval", "5s")

	v.SetDefault("reminders.dapr_jobs_enabled", false)

	v.SetDefault("ai.automation_enabled", false)
	v.SetDefault("ai.confidence_threshold", 0.8)

	v.SetDefault("notifications.ses_enabled", false)
	v.SetDefault("notifications.ses_from_email", "")
	v.SetDefault("notifications.aws_region", "")

	v.SetDefault("telemetry.stdout_tracing", false)
}

// Load configuration from environment variables and optionally a config.yaml
// in the working directory. Environment variables take precedence over values
// from the file. Returns a populated Config or an error if loading or
// validation fails.
func Load() (*Config, error) {
	v := viper.New()
	setDefaults(v)

	v.SetConfigName("config")
	v.SetConfigType("yaml")
	v.AddConfigPath(".")
	if err := v.ReadInConfig(); err != nil {
		var notFound viper.ConfigFileNotFoundError
		if !errors.As(err, &notFound) {
			return nil, fmt.Errorf("error reading config file: %w", err)
		}
	}

	v.SetEnvPrefix(EnvPrefix)
	v.SetEnvKeyReplacer(strings.NewReplacer(".", "_"))
	v.AutomaticEnv()

	var cfg Config
	if err := v.Unmarshal(&cfg); err != nil {
		return nil, fmt.Errorf("error unmarshalling config: %w", err)
	}

	if err := Validate(&cfg); err != nil {
		return nil, err
	}
	return &cfg, nil
}

// Validate runs struct-tag validation over cfg.
func Validate(cfg *Config) error {
	validate := validator.New()
	if err := validate.Struct(cfg); err != nil {
		return fmt.Errorf("validation failed: %w", err)
	}
	if cfg.Events.Enabled && cfg.Events.Broker == "kafka" && len(cfg.Kafka.Brokers) == 0 {
		return errors.New("validation failed: kafka.brokers is required when events.broker is kafka")
	}
	if cfg.Notifications.SESEnabled && cfg.Notifications.SESFromEmail == "" {
		return errors.New("validation failed: notifications.ses_from_email is required when ses is enabled")
	}
	return nil
}

// RequireAuth checks the settings only the HTTP server needs.
func (c *Config) RequireAuth() error {
	if c.Auth.JWTSecret == "" {
		return ErrAuthSecretMissing
	}
	return nil
}
