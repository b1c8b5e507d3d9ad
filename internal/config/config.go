// Package config defines the global configuration structure for the expiry
// workers. Configuration is loaded once at process initialization (Lambda
// cold start) and is immutable thereafter. It follows 12-Factor App
// principles by strictly separating code from configuration.
//
// Values are resolved via a priority chain:
//
//	OS Environment (Highest) -> Dotenv File -> AWS SSM Parameter Store (Lowest)
//
// Any missing required value or invalid format causes the worker to exit
// immediately on startup (fail fast).
package config

import (
	"strings"
	"time"

	"expirywatch/internal/types"
)

// SecretString is an alias for types.SecretString, the redacted secret type used
// throughout configuration to prevent accidental logging of sensitive values.
type SecretString = types.SecretString

// Config is the top-level configuration struct for the expiry workers.
// It is populated once during process initialization and never modified.
// Sub-components receive only the specific config subsets they require.
type Config struct {
	// System Metadata
	Environment string `envconfig:"APP_ENV" validate:"required,oneof=local dev staging prod"`
	Service     string `envconfig:"SERVICE_NAME" default:"expirywatch-worker"`
	LogLevel    string `envconfig:"LOG_LEVEL" default:"info"`

	// Domain Configurations
	Database DatabaseConfig
	AWS      AWSConfig
	Email    EmailConfig
	Jobs     JobsConfig
}

// DatabaseConfig holds database connection and pool tuning parameters.
type DatabaseConfig struct {
	// Resolved from SSM or Env
	URL SecretString `envconfig:"DATABASE_URL" validate:"required"`

	// Tuning Parameters
	MaxConns          int           `envconfig:"DB_MAX_CONNS" default:"10"`
	MinConns          int           `envconfig:"DB_MIN_CONNS" default:"2"`
	MaxConnLifetime   time.Duration `envconfig:"DB_MAX_CONN_LIFETIME" default:"30m"`
	AcquireTimeout    time.Duration `envconfig:"DB_ACQUIRE_TIMEOUT" default:"2s"`
	HealthCheckPeriod time.Duration `envconfig:"DB_HEALTH_CHECK_PERIOD" default:"1m"`
}

// AWSConfig holds AWS resource identifiers and regional configuration.
type AWSConfig struct {
	Region string `envconfig:"AWS_REGION" default:"me-central-1"`

	// EscalationQueue is the SQS queue receiving delivery-failure contexts.
	// Optional: when empty, escalation is limited to the super-admin email.
	EscalationQueue string `envconfig:"SQS_ESCALATIONS"`

	// MetricNamespace is the CloudWatch namespace for job run counters.
	MetricNamespace string `envconfig:"METRIC_NAMESPACE" default:"ExpiryWatch"`

	// LocalStack Support (Empty in Prod)
	EndpointURL string `envconfig:"AWS_ENDPOINT_URL"`
}

// EmailConfig holds email delivery configuration for both channels.
type EmailConfig struct {
	// SendGridAPIKey is optional: when empty the worker runs in dev mode and
	// the platform channel is replaced by a logging stub.
	SendGridAPIKey SecretString `envconfig:"SENDGRID_API_KEY"`
	FromAddress    string       `envconfig:"EMAIL_FROM_ADDRESS" default:"alerts@expirywatch.io"`
	FromName       string       `envconfig:"EMAIL_FROM_NAME" default:"ExpiryWatch Alerts"`

	// BaseDomain is used to build tenant-subdomain links embedded in email
	// bodies, e.g. https://<slug>.<BaseDomain>/documents.
	BaseDomain string `envconfig:"APP_BASE_DOMAIN" default:"expirywatch.io"`

	// SMTPSecretKey is the 32-byte base64 key used to decrypt tenant relay
	// passwords. Required outside local because tenant overrides cannot be
	// resolved without it.
	SMTPSecretKey SecretString `envconfig:"SMTP_SECRET_KEY"`

	// SuperAdminEmails receive the escalation email on delivery failures.
	SuperAdminEmails []string `envconfig:"SUPERADMIN_EMAILS"`
}

// JobsConfig holds the tunables shared by the scheduled jobs.
type JobsConfig struct {
	// BusinessTimezone is the fixed reference timezone in which "today" and
	// day boundaries are computed for every job.
	BusinessTimezone string `envconfig:"BUSINESS_TIMEZONE" default:"Asia/Dubai"`

	// RetentionDays is the age threshold for the notification purge.
	RetentionDays int `envconfig:"NOTIFICATION_RETENTION_DAYS" default:"90"`

	// PurgeBatchSize bounds each deletion batch in the retention purge.
	PurgeBatchSize int `envconfig:"NOTIFICATION_PURGE_BATCH" default:"1000"`

	// WarrantyAlertRecipients is the comma-separated admin recipient list for
	// the asset warranty job, which has no per-record owner to notify.
	WarrantyAlertRecipients []string `envconfig:"WARRANTY_ALERT_RECIPIENTS"`

	// ArchiveBucket is the S3 bucket receiving gzip JSONL archives of purged
	// notification rows. Optional: when empty, purged rows are not archived.
	ArchiveBucket string `envconfig:"NOTIFICATION_ARCHIVE_BUCKET"`
}

// BusinessLocation loads the configured business timezone.
// Falls back to UTC if the timezone name is unknown.
func (j JobsConfig) BusinessLocation() *time.Location {
	loc, err := time.LoadLocation(j.BusinessTimezone)
	if err != nil {
		return time.UTC
	}
	return loc
}

// FromEmail returns the platform sender identity as an EmailAddress.
func (e EmailConfig) FromEmail() types.EmailAddress {
	return types.EmailAddress{Address: e.FromAddress, Name: e.FromName}
}

// SuperAdminAddresses returns the trimmed, non-empty super-admin recipients.
func (e EmailConfig) SuperAdminAddresses() []types.EmailAddress {
	out := make([]types.EmailAddress, 0, len(e.SuperAdminEmails))
	for _, addr := range e.SuperAdminEmails {
		addr = strings.TrimSpace(addr)
		if addr == "" {
			continue
		}
		out = append(out, types.EmailAddress{Address: addr})
	}
	return out
}

// ConfigErrorType categorizes configuration loading failures to aid debugging.
type ConfigErrorType string

const (
	// ErrMissingEnv indicates a required environment variable was not found.
	ErrMissingEnv ConfigErrorType = "MISSING_ENV"
	// ErrSSMResolution indicates a failure when fetching secrets from AWS SSM.
	ErrSSMResolution ConfigErrorType = "SSM_FAILURE"
	// ErrValidation indicates the configuration failed struct validation rules.
	ErrValidation ConfigErrorType = "VALIDATION_FAILED"
	// ErrParsing indicates a failure when parsing environment variable values
	// into their target types.
	ErrParsing ConfigErrorType = "PARSING_FAILED"
)
