package config

import "time"

// Default values for configuration fields.
const (
	// Server defaults
	DefaultListenAddress   = "127.0.0.1:8400"
	DefaultReadTimeout     = 15 * time.Second
	DefaultWriteTimeout    = 60 * time.Second
	DefaultIdleTimeout     = 120 * time.Second
	DefaultShutdownTimeout = 30 * time.Second
	DefaultMaxBodyBytes    = 1 << 20 // 1MB

	// Storage defaults
	DefaultStorageBackend       = "sqlite"
	DefaultSQLitePath           = "data/custodian.db"
	DefaultSQLiteDriver         = "sqlite"
	DefaultSQLiteMaxOpenConns   = 1
	DefaultSQLiteBusyTimeout    = 5 * time.Second
	DefaultPostgresDriver       = "pgx"
	DefaultPostgresMaxOpenConns = 20
	DefaultPostgresMaxIdleConns = 5
	DefaultPostgresConnLifetime = 30 * time.Minute

	// Policy defaults
	DefaultPolicyCacheTTL         = 30 * time.Second
	DefaultInvalidationBackend    = "local"
	DefaultInvalidationChannel    = "custodian:policy:invalidate"
	DefaultFallbackRetentionDays  = 1095
	DefaultRetentionGraceDays     = 30
	DefaultRetentionSchedule      = "0 3 * * *"
	DefaultRetentionBatchSize     = 1000
	DefaultRequestBatchSize       = 500
	DefaultGDPRResponseWindowDays = 30
	DefaultCCPAResponseWindowDays = 45
	DefaultManualResponseWindow   = 30

	// Limits defaults
	DefaultIngestRate  = 200.0
	DefaultIngestBurst = 400

	// Telemetry defaults
	DefaultLogLevel           = "info"
	DefaultLogFormat          = "json"
	DefaultMetricsPath        = "/metrics"
	DefaultMetricsNamespace   = "custodian"
	DefaultTracingEndpoint    = "localhost:4317"
	DefaultTracingSampleRatio = 1.0
	DefaultServiceName        = "custodian"
)

// Default returns a configuration populated with every default, including
// the boolean settings that default to true. LoadConfig decodes YAML on top
// of it so omitted keys keep their defaults.
func Default() *Config {
	cfg := &Config{}
	cfg.Storage.SQLite.WALMode = true
	cfg.Policy.SeedDefaults = true
	cfg.Retention.UsePolicyGrace = true
	cfg.Retention.Schedule = DefaultRetentionSchedule
	cfg.Limits.IngestRate = DefaultIngestRate
	cfg.Telemetry.Metrics.Enabled = true
	cfg.Telemetry.Tracing.Insecure = true
	cfg.Telemetry.Tracing.SampleRatio = DefaultTracingSampleRatio
	ApplyDefaults(cfg)
	return cfg
}

// ApplyDefaults fills zero-valued fields with their defaults. Booleans and
// fields whose zero value is meaningful (an empty retention schedule, a zero
// ingest rate) are left alone; see Default.
func ApplyDefaults(cfg *Config) {
	// Server defaults
	if cfg.Server.ListenAddress == "" {
		cfg.Server.ListenAddress = DefaultListenAddress
	}
	if cfg.Server.ReadTimeout == 0 {
		cfg.Server.ReadTimeout = DefaultReadTimeout
	}
	if cfg.Server.WriteTimeout == 0 {
		cfg.Server.WriteTimeout = DefaultWriteTimeout
	}
	if cfg.Server.IdleTimeout == 0 {
		cfg.Server.IdleTimeout = DefaultIdleTimeout
	}
	if cfg.Server.ShutdownTimeout == 0 {
		cfg.Server.ShutdownTimeout = DefaultShutdownTimeout
	}
	if cfg.Server.MaxBodyBytes == 0 {
		cfg.Server.MaxBodyBytes = DefaultMaxBodyBytes
	}

	// Storage defaults
	if cfg.Storage.Backend == "" {
		cfg.Storage.Backend = DefaultStorageBackend
	}
	if cfg.Storage.SQLite.Path == "" {
		cfg.Storage.SQLite.Path = DefaultSQLitePath
	}
	if cfg.Storage.SQLite.Driver == "" {
		cfg.Storage.SQLite.Driver = DefaultSQLiteDriver
	}
	if cfg.Storage.SQLite.MaxOpenConns == 0 {
		cfg.Storage.SQLite.MaxOpenConns = DefaultSQLiteMaxOpenConns
	}
	if cfg.Storage.SQLite.BusyTimeout == 0 {
		cfg.Storage.SQLite.BusyTimeout = DefaultSQLiteBusyTimeout
	}
	if cfg.Storage.Postgres.Driver == "" {
		cfg.Storage.Postgres.Driver = DefaultPostgresDriver
	}
	if cfg.Storage.Postgres.MaxOpenConns == 0 {
		cfg.Storage.Postgres.MaxOpenConns = DefaultPostgresMaxOpenConns
	}
	if cfg.Storage.Postgres.MaxIdleConns == 0 {
		cfg.Storage.Postgres.MaxIdleConns = DefaultPostgresMaxIdleConns
	}
	if cfg.Storage.Postgres.ConnMaxLifetime == 0 {
		cfg.Storage.Postgres.ConnMaxLifetime = DefaultPostgresConnLifetime
	}

	// Policy defaults
	if cfg.Policy.CacheTTL == 0 {
		cfg.Policy.CacheTTL = DefaultPolicyCacheTTL
	}
	if cfg.Policy.Invalidation.Backend == "" {
		cfg.Policy.Invalidation.Backend = DefaultInvalidationBackend
	}
	if cfg.Policy.Invalidation.Channel == "" {
		cfg.Policy.Invalidation.Channel = DefaultInvalidationChannel
	}

	// Retention defaults
	if cfg.Retention.BatchSize == 0 {
		cfg.Retention.BatchSize = DefaultRetentionBatchSize
	}
	if cfg.Retention.FallbackRetentionDays == 0 {
		cfg.Retention.FallbackRetentionDays = DefaultFallbackRetentionDays
	}
	if cfg.Retention.DefaultGraceDays == 0 {
		cfg.Retention.DefaultGraceDays = DefaultRetentionGraceDays
	}

	// Request workflow defaults, per type so a partial map keeps the rest
	if cfg.Requests.ResponseWindowDays == nil {
		cfg.Requests.ResponseWindowDays = make(map[string]int)
	}
	windows := map[string]int{
		"gdpr_erasure":  DefaultGDPRResponseWindowDays,
		"ccpa_deletion": DefaultCCPAResponseWindowDays,
		"manual":        DefaultManualResponseWindow,
	}
	for typ, days := range windows {
		if _, ok := cfg.Requests.ResponseWindowDays[typ]; !ok {
			cfg.Requests.ResponseWindowDays[typ] = days
		}
	}
	if cfg.Requests.RequireVerification == nil {
		cfg.Requests.RequireVerification = make(map[string]bool)
	}
	for typ := range windows {
		if _, ok := cfg.Requests.RequireVerification[typ]; !ok {
			cfg.Requests.RequireVerification[typ] = true
		}
	}
	if cfg.Requests.BatchSize == 0 {
		cfg.Requests.BatchSize = DefaultRequestBatchSize
	}

	// Limits defaults
	if cfg.Limits.IngestBurst == 0 {
		cfg.Limits.IngestBurst = DefaultIngestBurst
	}

	// Telemetry defaults
	if cfg.Telemetry.Logging.Level == "" {
		cfg.Telemetry.Logging.Level = DefaultLogLevel
	}
	if cfg.Telemetry.Logging.Format == "" {
		cfg.Telemetry.Logging.Format = DefaultLogFormat
	}
	if cfg.Telemetry.Metrics.Path == "" {
		cfg.Telemetry.Metrics.Path = DefaultMetricsPath
	}
	if cfg.Telemetry.Metrics.Namespace == "" {
		cfg.Telemetry.Metrics.Namespace = DefaultMetricsNamespace
	}
	if cfg.Telemetry.Tracing.Endpoint == "" {
		cfg.Telemetry.Tracing.Endpoint = DefaultTracingEndpoint
	}
	if cfg.Telemetry.Tracing.ServiceName == "" {
		cfg.Telemetry.Tracing.ServiceName = DefaultServiceName
	}
}
