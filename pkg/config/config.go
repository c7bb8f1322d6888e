package config

import "time"

// Config is the root configuration structure for Custodian.
// It contains all configuration sections for the admin server, storage,
// retention policies, the retention enforcer, the deletion request workflow,
// and telemetry.
type Config struct {
	// Server contains admin HTTP server configuration including listen
	// address and timeouts.
	Server ServerConfig `yaml:"server"`

	// Storage selects and configures the relational store.
	Storage StorageConfig `yaml:"storage"`

	// Policy contains retention policy registry configuration including
	// seeding, cache TTL and cross-process invalidation.
	Policy PolicyConfig `yaml:"policy"`

	// Detection contains ingestion validation settings.
	Detection DetectionConfig `yaml:"detection"`

	// Retention contains retention enforcer configuration.
	Retention RetentionConfig `yaml:"retention"`

	// Requests contains deletion request workflow configuration.
	Requests RequestsConfig `yaml:"requests"`

	// Limits contains admin API rate limiting.
	Limits LimitsConfig `yaml:"limits"`

	// Telemetry contains configuration for logging, metrics and tracing.
	Telemetry TelemetryConfig `yaml:"telemetry"`
}

// ServerConfig contains configuration for the admin HTTP server.
type ServerConfig struct {
	// ListenAddress is the address and port to listen on.
	// Default: "127.0.0.1:8400"
	ListenAddress string `yaml:"listen_address"`

	// ReadTimeout is the maximum duration for reading the entire request.
	// Default: 15s
	ReadTimeout time.Duration `yaml:"read_timeout"`

	// WriteTimeout is the maximum duration before timing out writes of the response.
	// Default: 60s
	WriteTimeout time.Duration `yaml:"write_timeout"`

	// IdleTimeout is the maximum keep-alive idle time.
	// Default: 120s
	IdleTimeout time.Duration `yaml:"idle_timeout"`

	// ShutdownTimeout bounds graceful shutdown.
	// Default: 30s
	ShutdownTimeout time.Duration `yaml:"shutdown_timeout"`

	// MaxBodyBytes caps request bodies.
	// Default: 1MB
	MaxBodyBytes int64 `yaml:"max_body_bytes"`
}

// StorageConfig selects the persistence backend.
type StorageConfig struct {
	// Backend is "sqlite", "postgres" or "memory".
	// Default: "sqlite"
	Backend string `yaml:"backend"`

	SQLite   SQLiteConfig   `yaml:"sqlite"`
	Postgres PostgresConfig `yaml:"postgres"`
}

// SQLiteConfig contains SQLite-specific configuration.
type SQLiteConfig struct {
	// Path is the database file path.
	// Default: "data/custodian.db"
	Path string `yaml:"path"`

	// Driver is "sqlite" (modernc.org/sqlite, pure Go) or "sqlite3" (mattn, cgo).
	// Default: "sqlite"
	Driver string `yaml:"driver"`

	// MaxOpenConns is the maximum number of open connections.
	// Default: 1
	MaxOpenConns int `yaml:"max_open_conns"`

	// WALMode enables Write-Ahead Logging.
	// Default: true
	WALMode bool `yaml:"wal_mode"`

	// BusyTimeout is how long a connection waits on a locked database.
	// Default: 5s
	BusyTimeout time.Duration `yaml:"busy_timeout"`
}

// PostgresConfig contains PostgreSQL-specific configuration.
type PostgresConfig struct {
	// DSN is the connection URL.
	DSN string `yaml:"dsn"`

	// Driver is "pgx" (jackc/pgx stdlib) or "postgres" (lib/pq).
	// Default: "pgx"
	Driver string `yaml:"driver"`

	// Default: 20
	MaxOpenConns int `yaml:"max_open_conns"`

	// Default: 5
	MaxIdleConns int `yaml:"max_idle_conns"`

	// Default: 30m
	ConnMaxLifetime time.Duration `yaml:"conn_max_lifetime"`
}

// PolicyConfig contains retention policy registry configuration.
type PolicyConfig struct {
	// SeedDefaults inserts the built-in HIPAA, GDPR, PCI-DSS, attorney-client
	// and CCPA policies at startup when they are missing.
	// Default: true
	SeedDefaults bool `yaml:"seed_defaults"`

	// SeedFile is an optional YAML file of policies upserted at startup.
	SeedFile string `yaml:"seed_file"`

	// Watch re-applies SeedFile when it changes.
	// Default: false
	Watch bool `yaml:"watch"`

	// CacheTTL bounds how stale a process-local policy snapshot may get.
	// Default: 30s
	CacheTTL time.Duration `yaml:"cache_ttl"`

	// Invalidation configures how policy changes reach other processes.
	Invalidation InvalidationConfig `yaml:"invalidation"`
}

// InvalidationConfig configures policy cache invalidation.
type InvalidationConfig struct {
	// Backend is "local" (in-process only) or "redis" (pub/sub).
	// Default: "local"
	Backend string `yaml:"backend"`

	// RedisURL is the redis:// URL used when Backend is "redis".
	RedisURL string `yaml:"redis_url"`

	// Channel is the pub/sub channel name.
	// Default: "custodian:policy:invalidate"
	Channel string `yaml:"channel"`
}

// DetectionConfig contains ingestion settings.
type DetectionConfig struct {
	// ExtraPIITypes extends the built-in set of accepted PII types.
	ExtraPIITypes []string `yaml:"extra_pii_types"`

	// RequireFrameworks rejects detections without any compliance framework.
	// Default: false (such records get the fallback retention)
	RequireFrameworks bool `yaml:"require_frameworks"`
}

// RetentionConfig contains retention enforcer configuration.
type RetentionConfig struct {
	// Schedule is the cron expression for automatic cleanup. Empty disables it.
	// Default: "0 3 * * *" (daily at 3 AM)
	Schedule string `yaml:"schedule"`

	// BatchSize is the number of records scanned per page.
	// Default: 1000
	BatchSize int `yaml:"batch_size"`

	// FallbackRetentionDays applies when no framework resolves a policy.
	// Default: 1095
	FallbackRetentionDays int `yaml:"fallback_retention_days"`

	// DefaultGraceDays applies when no policy determines the grace period,
	// or for every record when UsePolicyGrace is false.
	// Default: 30
	DefaultGraceDays int `yaml:"default_grace_days"`

	// UsePolicyGrace takes the grace period from the record's determining policy.
	// Default: true
	UsePolicyGrace bool `yaml:"use_policy_grace"`
}

// RequestsConfig contains deletion request workflow configuration.
type RequestsConfig struct {
	// ResponseWindowDays maps request type to its regulatory response window.
	// Default: gdpr_erasure 30, ccpa_deletion 45, manual 30
	ResponseWindowDays map[string]int `yaml:"response_window_days"`

	// RequireVerification maps request type to whether verify must precede process.
	// Default: true for every type
	RequireVerification map[string]bool `yaml:"require_verification"`

	// BatchSize is the number of records erased per page.
	// Default: 500
	BatchSize int `yaml:"batch_size"`
}

// LimitsConfig contains admin API rate limits.
type LimitsConfig struct {
	// IngestRate is the sustained detections-per-second accepted by the API.
	// Zero disables limiting.
	// Default: 200
	IngestRate float64 `yaml:"ingest_rate"`

	// IngestBurst is the token bucket size.
	// Default: 400
	IngestBurst int `yaml:"ingest_burst"`
}

// TelemetryConfig contains configuration for observability.
type TelemetryConfig struct {
	Logging LoggingConfig `yaml:"logging"`
	Metrics MetricsConfig `yaml:"metrics"`
	Tracing TracingConfig `yaml:"tracing"`
}

// LoggingConfig contains logging configuration.
type LoggingConfig struct {
	// Level is the minimum log level: "debug", "info", "warn", "error".
	// Default: "info"
	Level string `yaml:"level"`

	// Format is "json" or "text".
	// Default: "json"
	Format string `yaml:"format"`

	// AddSource includes file and line number in log entries.
	// Default: false
	AddSource bool `yaml:"add_source"`

	// RedactKeys lists additional attribute keys whose values are masked.
	RedactKeys []string `yaml:"redact_keys"`
}

// MetricsConfig contains metrics collection configuration.
type MetricsConfig struct {
	// Enabled controls whether metrics collection is active.
	// Default: true
	Enabled bool `yaml:"enabled"`

	// Path is the HTTP path for the Prometheus endpoint.
	// Default: "/metrics"
	Path string `yaml:"path"`

	// Namespace is the metric name prefix.
	// Default: "custodian"
	Namespace string `yaml:"namespace"`
}

// TracingConfig contains distributed tracing configuration.
type TracingConfig struct {
	// Enabled controls whether tracing is active.
	// Default: false
	Enabled bool `yaml:"enabled"`

	// Endpoint is the OTLP/gRPC collector address.
	// Default: "localhost:4317"
	Endpoint string `yaml:"endpoint"`

	// Insecure disables TLS to the collector.
	// Default: true
	Insecure bool `yaml:"insecure"`

	// SampleRatio is the fraction of root spans sampled, 0.0-1.0.
	// Default: 1.0
	SampleRatio float64 `yaml:"sample_ratio"`

	// ServiceName is reported on every span.
	// Default: "custodian"
	ServiceName string `yaml:"service_name"`
}
