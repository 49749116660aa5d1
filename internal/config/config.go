// Package config defines the configuration of the BloodLink notification
// services. Configuration is loaded once at process start and is immutable
// thereafter.
//
// Values are resolved in priority order:
//
//	OS Environment (Highest) -> Dotenv File -> struct defaults (Lowest)
//
// Any missing required value or invalid format fails startup.
package config

import (
	"time"

	"bloodlink/internal/types"
)

// SecretString is an alias for types.SecretString so secrets stay redacted in
// config dumps and log lines.
type SecretString = types.SecretString

// Config is the top-level configuration. Sub-components receive only the
// subset they need.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"bloodlink-dispatcher"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info" validate:"oneof=debug info warn error"`

	Server        ServerConfig
	Auth          AuthConfig
	Database      DatabaseConfig
	AWS           AWSConfig
	Email         EmailConfig
	Broadcast     BroadcastConfig
	Kafka         KafkaConfig
	Dispatch      DispatchConfig
	Observability ObservabilityConfig
	Feature       FeatureConfig

	// Build Metadata (Injected via ldflags, not Env)
	Build BuildInfo
}

// ServerConfig holds HTTP listener and public URL configuration.
type ServerConfig struct {
	Port        string `envconfig:"PORT" default:"8080"`
	GatewayPort string `envconfig:"GATEWAY_PORT" default:"8090"`
	// Base URL of the web app, used for call-to-action links in emails (no trailing slash).
	PublicURL string `envconfig:"APP_PUBLIC_URL" validate:"required,url"`
}

// AuthConfig holds the HS256 key and claims that API and realtime bearer
// tokens are verified against. The dispatcher and the realtime gateway refuse
// to start without a secret.
type AuthConfig struct {
	JWTSecret SecretString `envconfig:"AUTH_JWT_SECRET" validate:"omitempty,min=32"`
	Issuer    string       `envconfig:"AUTH_JWT_ISSUER" default:"bloodlink"`
	Audience  string       `envconfig:"AUTH_JWT_AUDIENCE" default:"bloodlink-notifications"`
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	URL SecretString `envconfig:"DATABASE_URL" validate:"required,url"`

	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers. The notification queue is only
// required when deferred work goes through SQS.
type AWSConfig struct {
	Region            string `envconfig:"AWS_REGION" default:"us-east-1"`
	NotificationQueue string `envconfig:"SQS_NOTIFICATIONS" validate:"omitempty,url"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig selects and configures the mail provider.
type EmailConfig struct {
	Provider       string        `envconfig:"EMAIL_PROVIDER" default:"smtp" validate:"oneof=smtp sendgrid stub"`
	SendGridAPIKey SecretString  `envconfig:"SENDGRID_API_KEY" validate:"required_if=Provider sendgrid"`
	SMTPHost       string        `envconfig:"SMTP_HOST" default:"localhost"`
	SMTPPort       int           `envconfig:"SMTP_PORT" default:"1025" validate:"min=1,max=65535"`
	SMTPUsername   string        `envconfig:"SMTP_USERNAME"`
	SMTPPassword   SecretString  `envconfig:"SMTP_PASSWORD"`
	FromAddress    string        `envconfig:"EMAIL_FROM_ADDRESS" default:"notifications@bloodlink.org" validate:"email"`
	FromName       string        `envconfig:"EMAIL_FROM_NAME" default:"BloodLink"`
	Timeout        time.Duration `envconfig:"EMAIL_TIMEOUT" default:"10s"`
}

// BroadcastConfig configures the real-time publish/subscribe broker.
type BroadcastConfig struct {
	Broker        string        `envconfig:"BROADCAST_BROKER" default:"redis" validate:"oneof=redis nats"`
	RedisAddr     string        `envconfig:"REDIS_ADDR" default:"localhost:6379"`
	RedisPassword SecretString  `envconfig:"REDIS_PASSWORD"`
	NATSURL       string        `envconfig:"NATS_URL" default:"nats://localhost:4222"`
	ChannelPrefix string        `envconfig:"BROADCAST_CHANNEL_PREFIX" default:"bloodlink."`
	Timeout       time.Duration `envconfig:"BROADCAST_TIMEOUT" default:"2s" validate:"gt=0"`
}

// KafkaConfig configures the change-notice consumer. An empty broker list
// disables the consumer.
type KafkaConfig struct {
	Brokers []string `envconfig:"KAFKA_BROKERS"`
	Topic   string   `envconfig:"KAFKA_TOPIC" default:"bloodlink.changes"`
	GroupID string   `envconfig:"KAFKA_GROUP_ID" default:"notification-dispatcher"`
}

// DispatchConfig controls where deferred work runs.
type DispatchConfig struct {
	// local runs deferred jobs on an in-process worker pool; sqs hands them to
	// the notify-worker through SQS_NOTIFICATIONS.
	DeferredMode string `envconfig:"DEFERRED_MODE" default:"local" validate:"oneof=local sqs"`
	Workers      int    `envconfig:"DISPATCH_WORKERS" default:"4" validate:"min=1"`
	QueueSize    int    `envconfig:"DISPATCH_QUEUE_SIZE" default:"256" validate:"min=1"`
	MaxAttempts  int    `envconfig:"DISPATCH_MAX_ATTEMPTS" default:"3" validate:"min=1"`
}

// ObservabilityConfig holds telemetry settings.
type ObservabilityConfig struct {
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"BloodLink"`
}

// FeatureConfig holds kill switches for each transport.
type FeatureConfig struct {
	EnableEmail     bool `envconfig:"FEATURE_ENABLE_EMAIL" default:"true"`
	EnableBroadcast bool `envconfig:"FEATURE_ENABLE_BROADCAST" default:"true"`
	EnableRecords   bool `envconfig:"FEATURE_ENABLE_RECORDS" default:"true"`
}

// BuildInfo holds build-time metadata injected via ldflags.
type BuildInfo struct {
	Version   string
	Commit    string
	BuildTime string
}

// ConfigErrorType categorizes configuration loading failures.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates an environment value could not be parsed into its
	// target type.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
