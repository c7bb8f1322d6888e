package config

import (
	"fmt"
	"net/url"
	"strings"

	"github.com/robfig/cron/v3"
)

// FieldError represents a validation error for a specific configuration field.
type FieldError struct {
	// Field is the dotted path to the configuration field (e.g., "storage.backend").
	Field string

	// Message is a human-readable error message.
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError represents one or more validation errors in a configuration.
type ValidationError struct {
	// Errors contains all validation errors found in the configuration.
	Errors []FieldError
}

// Error returns a formatted string containing all validation errors.
func (e ValidationError) Error() string {
	if len(e.Errors) == 0 {
		return "configuration validation failed"
	}
	if len(e.Errors) == 1 {
		return fmt.Sprintf("configuration validation failed: %s", e.Errors[0].Error())
	}

	var sb strings.Builder
	sb.WriteString(fmt.Sprintf("configuration validation failed with %d errors:\n", len(e.Errors)))
	for _, err := range e.Errors {
		sb.WriteString(fmt.Sprintf("  - %s\n", err.Error()))
	}
	return sb.String()
}

// Validate validates the entire configuration and returns a ValidationError
// if any validation rules fail. All validation errors are collected and
// returned together.
func Validate(cfg *Config) error {
	var errs []FieldError

	errs = append(errs, validateServer(&cfg.Server)...)
	errs = append(errs, validateStorage(&cfg.Storage)...)
	errs = append(errs, validatePolicy(&cfg.Policy)...)
	errs = append(errs, validateRetention(&cfg.Retention)...)
	errs = append(errs, validateRequests(&cfg.Requests)...)
	errs = append(errs, validateLimits(&cfg.Limits)...)
	errs = append(errs, validateTelemetry(&cfg.Telemetry)...)

	if len(errs) > 0 {
		return ValidationError{Errors: errs}
	}
	return nil
}

// validateServer validates admin server configuration.
func validateServer(cfg *ServerConfig) []FieldError {
	var errs []FieldError

	if cfg.ListenAddress == "" {
		errs = append(errs, FieldError{
			Field:   "server.listen_address",
			Message: "listen address is required",
		})
	}
	if cfg.ReadTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.read_timeout",
			Message: "read timeout must be positive",
		})
	}
	if cfg.WriteTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.write_timeout",
			Message: "write timeout must be positive",
		})
	}
	if cfg.ShutdownTimeout < 0 {
		errs = append(errs, FieldError{
			Field:   "server.shutdown_timeout",
			Message: "shutdown timeout must be positive",
		})
	}
	if cfg.MaxBodyBytes < 0 {
		errs = append(errs, FieldError{
			Field:   "server.max_body_bytes",
			Message: "max body bytes must be non-negative",
		})
	}

	return errs
}

// validateStorage validates the storage backend selection and its settings.
func validateStorage(cfg *StorageConfig) []FieldError {
	var errs []FieldError

	switch cfg.Backend {
	case "memory":
	case "sqlite":
		if cfg.SQLite.Path == "" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.path",
				Message: "path is required for the sqlite backend",
			})
		}
		if cfg.SQLite.Driver != "sqlite" && cfg.SQLite.Driver != "sqlite3" {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.driver",
				Message: fmt.Sprintf("invalid driver %q (must be sqlite or sqlite3)", cfg.SQLite.Driver),
			})
		}
		if cfg.SQLite.MaxOpenConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.sqlite.max_open_conns",
				Message: "max open connections must be non-negative",
			})
		}
	case "postgres":
		if cfg.Postgres.DSN == "" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.dsn",
				Message: "dsn is required for the postgres backend",
			})
		}
		if cfg.Postgres.Driver != "pgx" && cfg.Postgres.Driver != "postgres" {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.driver",
				Message: fmt.Sprintf("invalid driver %q (must be pgx or postgres)", cfg.Postgres.Driver),
			})
		}
		if cfg.Postgres.MaxOpenConns < 0 {
			errs = append(errs, FieldError{
				Field:   "storage.postgres.max_open_conns",
				Message: "max open connections must be non-negative",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "storage.backend",
			Message: fmt.Sprintf("invalid backend %q (must be sqlite, postgres or memory)", cfg.Backend),
		})
	}

	return errs
}

// validatePolicy validates retention policy registry configuration.
func validatePolicy(cfg *PolicyConfig) []FieldError {
	var errs []FieldError

	if cfg.Watch && cfg.SeedFile == "" {
		errs = append(errs, FieldError{
			Field:   "policy.watch",
			Message: "watch requires policy.seed_file",
		})
	}
	if cfg.CacheTTL < 0 {
		errs = append(errs, FieldError{
			Field:   "policy.cache_ttl",
			Message: "cache TTL must be non-negative",
		})
	}

	switch cfg.Invalidation.Backend {
	case "local":
	case "redis":
		if cfg.Invalidation.RedisURL == "" {
			errs = append(errs, FieldError{
				Field:   "policy.invalidation.redis_url",
				Message: "redis URL is required for the redis invalidation backend",
			})
		} else if u, err := url.Parse(cfg.Invalidation.RedisURL); err != nil || (u.Scheme != "redis" && u.Scheme != "rediss") {
			errs = append(errs, FieldError{
				Field:   "policy.invalidation.redis_url",
				Message: "redis URL must use the redis:// or rediss:// scheme",
			})
		}
		if cfg.Invalidation.Channel == "" {
			errs = append(errs, FieldError{
				Field:   "policy.invalidation.channel",
				Message: "channel is required",
			})
		}
	default:
		errs = append(errs, FieldError{
			Field:   "policy.invalidation.backend",
			Message: fmt.Sprintf("invalid backend %q (must be local or redis)", cfg.Invalidation.Backend),
		})
	}

	return errs
}

// validateRetention validates retention enforcer configuration.
func validateRetention(cfg *RetentionConfig) []FieldError {
	var errs []FieldError

	if cfg.Schedule != "" {
		if _, err := cron.ParseStandard(cfg.Schedule); err != nil {
			errs = append(errs, FieldError{
				Field:   "retention.schedule",
				Message: fmt.Sprintf("invalid cron expression: %v", err),
			})
		}
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "retention.batch_size",
			Message: "batch size must be positive",
		})
	}
	if cfg.FallbackRetentionDays < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.fallback_retention_days",
			Message: "fallback retention days must be non-negative",
		})
	}
	if cfg.DefaultGraceDays < 0 {
		errs = append(errs, FieldError{
			Field:   "retention.default_grace_days",
			Message: "default grace days must be non-negative",
		})
	}

	return errs
}

// validateRequests validates deletion request workflow configuration.
func validateRequests(cfg *RequestsConfig) []FieldError {
	var errs []FieldError

	for typ, days := range cfg.ResponseWindowDays {
		if days <= 0 {
			errs = append(errs, FieldError{
				Field:   "requests.response_window_days." + typ,
				Message: "response window must be positive",
			})
		}
	}
	if cfg.BatchSize <= 0 {
		errs = append(errs, FieldError{
			Field:   "requests.batch_size",
			Message: "batch size must be positive",
		})
	}

	return errs
}

// validateLimits validates API rate limits.
func validateLimits(cfg *LimitsConfig) []FieldError {
	var errs []FieldError

	if cfg.IngestRate < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.ingest_rate",
			Message: "ingest rate must be non-negative",
		})
	}
	if cfg.IngestBurst < 0 {
		errs = append(errs, FieldError{
			Field:   "limits.ingest_burst",
			Message: "ingest burst must be non-negative",
		})
	}

	return errs
}

// validateTelemetry validates telemetry configuration.
func validateTelemetry(cfg *TelemetryConfig) []FieldError {
	var errs []FieldError

	validLevels := map[string]bool{"debug": true, "info": true, "warn": true, "error": true}
	if !validLevels[strings.ToLower(cfg.Logging.Level)] {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.level",
			Message: fmt.Sprintf("invalid log level %q (must be debug, info, warn, or error)", cfg.Logging.Level),
		})
	}
	if cfg.Logging.Format != "json" && cfg.Logging.Format != "text" {
		errs = append(errs, FieldError{
			Field:   "telemetry.logging.format",
			Message: fmt.Sprintf("invalid log format %q (must be json or text)", cfg.Logging.Format),
		})
	}

	if cfg.Metrics.Enabled && !strings.HasPrefix(cfg.Metrics.Path, "/") {
		errs = append(errs, FieldError{
			Field:   "telemetry.metrics.path",
			Message: "metrics path must start with /",
		})
	}

	if cfg.Tracing.Enabled && cfg.Tracing.Endpoint == "" {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.endpoint",
			Message: "endpoint is required when tracing is enabled",
		})
	}
	if cfg.Tracing.SampleRatio < 0 || cfg.Tracing.SampleRatio > 1 {
		errs = append(errs, FieldError{
			Field:   "telemetry.tracing.sample_ratio",
			Message: "sample ratio must be between 0.0 and 1.0",
		})
	}

	return errs
}
