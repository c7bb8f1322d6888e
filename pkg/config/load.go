package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// LoadConfig loads configuration from a YAML file at the specified path.
// Keys missing from the file keep their defaults. The configuration is
// validated but not modified by environment variables; use
// LoadConfigWithEnvOverrides for that.
func LoadConfig(path string) (*Config, error) {
	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("failed to read configuration file %q: %w", path, err)
	}

	cfg, err := Parse(data)
	if err != nil {
		return nil, fmt.Errorf("failed to parse configuration file %q: %w", path, err)
	}

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed: %w", err)
	}
	return cfg, nil
}

// Parse decodes YAML on top of Default and applies defaults to whatever the
// document zeroed. It does not validate.
func Parse(data []byte) (*Config, error) {
	cfg := Default()
	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, err
	}
	ApplyDefaults(cfg)
	return cfg, nil
}

// LoadConfigWithEnvOverrides loads configuration from a YAML file and applies
// environment variable overrides. Environment variables follow the naming
// convention CUSTODIAN_SECTION_FIELD (e.g., CUSTODIAN_SERVER_LISTEN_ADDRESS).
// Environment variables always take precedence over file-based configuration.
//
// An empty path skips the file and starts from defaults.
func LoadConfigWithEnvOverrides(path string) (*Config, error) {
	var cfg *Config
	if path == "" {
		cfg = Default()
	} else {
		loaded, err := LoadConfig(path)
		if err != nil {
			return nil, err
		}
		cfg = loaded
	}

	applyEnvOverrides(cfg)

	if err := Validate(cfg); err != nil {
		return nil, fmt.Errorf("configuration validation failed after environment overrides: %w", err)
	}
	return cfg, nil
}

// applyEnvOverrides applies environment variable overrides to the configuration.
func applyEnvOverrides(cfg *Config) {
	// Server overrides
	envString("CUSTODIAN_SERVER_LISTEN_ADDRESS", &cfg.Server.ListenAddress)
	envDuration("CUSTODIAN_SERVER_READ_TIMEOUT", &cfg.Server.ReadTimeout)
	envDuration("CUSTODIAN_SERVER_WRITE_TIMEOUT", &cfg.Server.WriteTimeout)
	envDuration("CUSTODIAN_SERVER_SHUTDOWN_TIMEOUT", &cfg.Server.ShutdownTimeout)

	// Storage overrides
	envString("CUSTODIAN_STORAGE_BACKEND", &cfg.Storage.Backend)
	envString("CUSTODIAN_STORAGE_SQLITE_PATH", &cfg.Storage.SQLite.Path)
	envString("CUSTODIAN_STORAGE_SQLITE_DRIVER", &cfg.Storage.SQLite.Driver)
	envString("CUSTODIAN_STORAGE_POSTGRES_DSN", &cfg.Storage.Postgres.DSN)
	envString("CUSTODIAN_STORAGE_POSTGRES_DRIVER", &cfg.Storage.Postgres.Driver)
	envInt("CUSTODIAN_STORAGE_POSTGRES_MAX_OPEN_CONNS", &cfg.Storage.Postgres.MaxOpenConns)

	// Policy overrides
	envBool("CUSTODIAN_POLICY_SEED_DEFAULTS", &cfg.Policy.SeedDefaults)
	envString("CUSTODIAN_POLICY_SEED_FILE", &cfg.Policy.SeedFile)
	envBool("CUSTODIAN_POLICY_WATCH", &cfg.Policy.Watch)
	envDuration("CUSTODIAN_POLICY_CACHE_TTL", &cfg.Policy.CacheTTL)
	envString("CUSTODIAN_POLICY_INVALIDATION_BACKEND", &cfg.Policy.Invalidation.Backend)
	envString("CUSTODIAN_POLICY_INVALIDATION_REDIS_URL", &cfg.Policy.Invalidation.RedisURL)
	envString("CUSTODIAN_POLICY_INVALIDATION_CHANNEL", &cfg.Policy.Invalidation.Channel)

	// Detection overrides
	if val := os.Getenv("CUSTODIAN_DETECTION_EXTRA_PII_TYPES"); val != "" {
		cfg.Detection.ExtraPIITypes = splitList(val)
	}
	envBool("CUSTODIAN_DETECTION_REQUIRE_FRAMEWORKS", &cfg.Detection.RequireFrameworks)

	// Retention overrides
	if val, ok := os.LookupEnv("CUSTODIAN_RETENTION_SCHEDULE"); ok {
		cfg.Retention.Schedule = val
	}
	envInt("CUSTODIAN_RETENTION_BATCH_SIZE", &cfg.Retention.BatchSize)
	envInt("CUSTODIAN_RETENTION_FALLBACK_RETENTION_DAYS", &cfg.Retention.FallbackRetentionDays)
	envInt("CUSTODIAN_RETENTION_DEFAULT_GRACE_DAYS", &cfg.Retention.DefaultGraceDays)
	envBool("CUSTODIAN_RETENTION_USE_POLICY_GRACE", &cfg.Retention.UsePolicyGrace)

	// Request overrides
	envInt("CUSTODIAN_REQUESTS_BATCH_SIZE", &cfg.Requests.BatchSize)
	for typ := range cfg.Requests.ResponseWindowDays {
		key := "CUSTODIAN_REQUESTS_RESPONSE_WINDOW_DAYS_" + strings.ToUpper(typ)
		if val := os.Getenv(key); val != "" {
			if i, err := strconv.Atoi(val); err == nil {
				cfg.Requests.ResponseWindowDays[typ] = i
			}
		}
	}
	for typ := range cfg.Requests.RequireVerification {
		key := "CUSTODIAN_REQUESTS_REQUIRE_VERIFICATION_" + strings.ToUpper(typ)
		if val := os.Getenv(key); val != "" {
			if b, err := strconv.ParseBool(val); err == nil {
				cfg.Requests.RequireVerification[typ] = b
			}
		}
	}

	// Limits overrides
	if val := os.Getenv("CUSTODIAN_LIMITS_INGEST_RATE"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Limits.IngestRate = f
		}
	}
	envInt("CUSTODIAN_LIMITS_INGEST_BURST", &cfg.Limits.IngestBurst)

	// Telemetry overrides
	envString("CUSTODIAN_TELEMETRY_LOGGING_LEVEL", &cfg.Telemetry.Logging.Level)
	envString("CUSTODIAN_TELEMETRY_LOGGING_FORMAT", &cfg.Telemetry.Logging.Format)
	envBool("CUSTODIAN_TELEMETRY_METRICS_ENABLED", &cfg.Telemetry.Metrics.Enabled)
	envBool("CUSTODIAN_TELEMETRY_TRACING_ENABLED", &cfg.Telemetry.Tracing.Enabled)
	envString("CUSTODIAN_TELEMETRY_TRACING_ENDPOINT", &cfg.Telemetry.Tracing.Endpoint)
	if val := os.Getenv("CUSTODIAN_TELEMETRY_TRACING_SAMPLE_RATIO"); val != "" {
		if f, err := strconv.ParseFloat(val, 64); err == nil {
			cfg.Telemetry.Tracing.SampleRatio = f
		}
	}
}

func envString(key string, dst *string) {
	if val := os.Getenv(key); val != "" {
		*dst = val
	}
}

func envInt(key string, dst *int) {
	if val := os.Getenv(key); val != "" {
		if i, err := strconv.Atoi(val); err == nil {
			*dst = i
		}
	}
}

func envBool(key string, dst *bool) {
	if val := os.Getenv(key); val != "" {
		if b, err := strconv.ParseBool(val); err == nil {
			*dst = b
		}
	}
}

func envDuration(key string, dst *time.Duration) {
	if val := os.Getenv(key); val != "" {
		if d, err := time.ParseDuration(val); err == nil {
			*dst = d
		}
	}
}

func splitList(s string) []string {
	var out []string
	for _, part := range strings.Split(s, ",") {
		if part = strings.TrimSpace(part); part != "" {
			out = append(out, part)
		}
	}
	return out
}
