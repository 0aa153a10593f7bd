package config

import "time"

// Config holds all application configuration.
// It organizes settings into logical groups for better maintainability.
type Config struct {
	Server        ServerConfig        `mapstructure:"server" validate:"required"`
	Database      DatabaseConfig      `mapstructure:"database" validate:"required"`
	Auth          AuthConfig          `mapstructure:"auth"`
	Events        EventsConfig        `mapstructure:"events" validate:"required"`
	Dapr          DaprConfig          `mapstructure:"dapr"`
	Kafka         KafkaConfig         `mapstructure:"kafka"`
	Worker        WorkerConfig        `mapstructure:"worker" validate:"required"`
	Reminders     RemindersConfig     `mapstructure:"reminders"`
	AI            AIConfig            `mapstructure:"ai"`
	Notifications NotificationsConfig `mapstructure:"notifications"`
	Telemetry     TelemetryConfig     `mapstructure:"telemetry"`
}

// ServerConfig contains all server-related configuration settings.
type ServerConfig struct {
	Port     int    `mapstructure:"port" validate:"required,gt=0,lt=65536"`
	LogLevel string `mapstructure:"log_level" validate:"required,oneof=debug info warn error fatal"`
}

// DatabaseConfig contains all database-related configuration settings.
type DatabaseConfig struct {
	URL string `mapstructure:"url" validate:"required,url"`
}

// AuthConfig contains all authentication and authorization settings.
// The secret is only required by the HTTP server; see RequireAuth.
type AuthConfig struct {
	JWTSecret string `mapstructure:"jwt_secret" validate:"omitempty,min=32"`
}

// EventsConfig controls outbox emission and the broker used for publishing.
type EventsConfig struct {
	Enabled        bool          `mapstructure:"enabled"`
	Broker         string        `mapstructure:"broker" validate:"required,oneof=dapr kafka none"`
	PublishTimeout time.Duration `mapstructure:"publish_timeout" validate:"gt=0"`
}

// DaprConfig addresses the Dapr sidecar.
type DaprConfig struct {
	BaseURL    string `mapstructure:"base_url" validate:"required,url"`
	PubsubName string `mapstructure:"pubsub_name" validate:"required"`
	Topic      string `mapstructure:"topic" validate:"required"`
}

// KafkaConfig is used when events.broker is "kafka".
type KafkaConfig struct {
	Brokers []string `mapstructure:"brokers"`
	Topic   string   `mapstructure:"topic" validate:"required"`
}

// WorkerConfig tunes the background processors.
type WorkerConfig struct {
	BatchSize    int           `mapstructure:"batch_size" validate:"gt=0,lte=1000"`
	MaxRetries   int           `mapstructure:"max_retries" validate:"gte=0"`
	RetryDelay   time.Duration `mapstructure:"retry_delay" validate:"gte=0"`
	PollInterval time.Duration `mapstructure:"poll_interval" validate:"gt=0"`
}

// RemindersConfig toggles external job scheduling for reminders.
type RemindersConfig struct {
	DaprJobsEnabled bool `mapstructure:"dapr_jobs_enabled"`
}

// AIConfig gates automated application of recommendations.
type AIConfig struct {
	AutomationEnabled   bool    `mapstructure:"automation_enabled"`
	ConfidenceThreshold float64 `mapstructure:"confidence_threshold" validate:"gte=0,lte=1"`
}

// NotificationsConfig selects real email delivery through SES.
type NotificationsConfig struct {
	SESEnabled   bool   `mapstructure:"ses_enabled"`
	SESFromEmail string `mapstructure:"ses_from_email" validate:"omitempty,email"`
	AWSRegion    string `mapstructure:"aws_region"`
}

// TelemetryConfig controls trace export.
type TelemetryConfig struct {
	StdoutTracing bool `mapstructure:"stdout_tracing"`
}
