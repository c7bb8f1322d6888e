package config

import (
	"errors"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"
)

func writeConfig(t *testing.T, content string) string {
	t.Helper()
	path := filepath.Join(t.TempDir(), "custodian.yaml")
	if err := os.WriteFile(path, []byte(content), 0644); err != nil {
		t.Fatalf("failed to write config file: %v", err)
	}
	return path
}

func TestDefault(t *testing.T) {
	cfg := Default()

	if err := Validate(cfg); err != nil {
		t.Fatalf("default config should be valid: %v", err)
	}
	if cfg.Storage.Backend != DefaultStorageBackend {
		t.Errorf("expected backend %q, got %q", DefaultStorageBackend, cfg.Storage.Backend)
	}
	if !cfg.Storage.SQLite.WALMode {
		t.Error("expected WAL mode on by default")
	}
	if !cfg.Policy.SeedDefaults {
		t.Error("expected seed_defaults on by default")
	}
	if cfg.Retention.FallbackRetentionDays != 1095 {
		t.Errorf("expected fallback 1095, got %d", cfg.Retention.FallbackRetentionDays)
	}
	if cfg.Retention.Schedule != DefaultRetentionSchedule {
		t.Errorf("expected schedule %q, got %q", DefaultRetentionSchedule, cfg.Retention.Schedule)
	}
	if got := cfg.Requests.ResponseWindowDays["ccpa_deletion"]; got != 45 {
		t.Errorf("expected ccpa window 45, got %d", got)
	}
	if !cfg.Requests.RequireVerification["gdpr_erasure"] {
		t.Error("expected gdpr_erasure to require verification")
	}
}

func TestLoadConfig_ValidFile(t *testing.T) {
	path := writeConfig(t, `
server:
  listen_address: "0.0.0.0:9000"
  read_timeout: "20s"

storage:
  backend: "postgres"
  postgres:
    dsn: "postgres://u:p@localhost:5432/custodian"
    driver: "postgres"

retention:
  schedule: "*/15 * * * *"
  default_grace_days: 14

requests:
  response_window_days:
    gdpr_erasure: 25

telemetry:
  logging:
    level: "debug"
    format: "text"
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Server.ListenAddress != "0.0.0.0:9000" {
		t.Errorf("expected listen address %q, got %q", "0.0.0.0:9000", cfg.Server.ListenAddress)
	}
	if cfg.Server.ReadTimeout != 20*time.Second {
		t.Errorf("expected read timeout %v, got %v", 20*time.Second, cfg.Server.ReadTimeout)
	}
	if cfg.Storage.Postgres.Driver != "postgres" {
		t.Errorf("expected driver postgres, got %q", cfg.Storage.Postgres.Driver)
	}
	if cfg.Retention.DefaultGraceDays != 14 {
		t.Errorf("expected grace 14, got %d", cfg.Retention.DefaultGraceDays)
	}
	if got := cfg.Requests.ResponseWindowDays["gdpr_erasure"]; got != 25 {
		t.Errorf("expected gdpr window 25, got %d", got)
	}
	// Unspecified map entries keep their defaults.
	if got := cfg.Requests.ResponseWindowDays["ccpa_deletion"]; got != DefaultCCPAResponseWindowDays {
		t.Errorf("expected ccpa window %d, got %d", DefaultCCPAResponseWindowDays, got)
	}
	if !cfg.Policy.SeedDefaults {
		t.Error("omitted seed_defaults should stay true")
	}
}

func TestLoadConfig_ExplicitFalseIsKept(t *testing.T) {
	path := writeConfig(t, `
policy:
  seed_defaults: false
retention:
  use_policy_grace: false
  schedule: ""
`)

	cfg, err := LoadConfig(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}
	if cfg.Policy.SeedDefaults {
		t.Error("expected seed_defaults false")
	}
	if cfg.Retention.UsePolicyGrace {
		t.Error("expected use_policy_grace false")
	}
	if cfg.Retention.Schedule != "" {
		t.Errorf("expected schedule disabled, got %q", cfg.Retention.Schedule)
	}
}

func TestLoadConfig_FileNotFound(t *testing.T) {
	_, err := LoadConfig(filepath.Join(t.TempDir(), "missing.yaml"))
	if err == nil {
		t.Fatal("expected error for missing file")
	}
	if !errors.Is(err, os.ErrNotExist) {
		t.Errorf("expected os.ErrNotExist, got %v", err)
	}
}

func TestLoadConfig_InvalidYAML(t *testing.T) {
	path := writeConfig(t, "server: [unclosed")
	if _, err := LoadConfig(path); err == nil {
		t.Fatal("expected parse error")
	}
}

func TestLoadConfigWithEnvOverrides(t *testing.T) {
	path := writeConfig(t, `
storage:
  backend: "sqlite"
`)

	t.Setenv("CUSTODIAN_STORAGE_BACKEND", "memory")
	t.Setenv("CUSTODIAN_SERVER_LISTEN_ADDRESS", "127.0.0.1:9999")
	t.Setenv("CUSTODIAN_RETENTION_BATCH_SIZE", "250")
	t.Setenv("CUSTODIAN_REQUESTS_RESPONSE_WINDOW_DAYS_CCPA_DELETION", "40")
	t.Setenv("CUSTODIAN_REQUESTS_REQUIRE_VERIFICATION_MANUAL", "false")
	t.Setenv("CUSTODIAN_DETECTION_EXTRA_PII_TYPES", "badge_id, employee_id")
	t.Setenv("CUSTODIAN_POLICY_CACHE_TTL", "5s")

	cfg, err := LoadConfigWithEnvOverrides(path)
	if err != nil {
		t.Fatalf("failed to load config: %v", err)
	}

	if cfg.Storage.Backend != "memory" {
		t.Errorf("expected backend memory, got %q", cfg.Storage.Backend)
	}
	if cfg.Server.ListenAddress != "127.0.0.1:9999" {
		t.Errorf("expected listen address override, got %q", cfg.Server.ListenAddress)
	}
	if cfg.Retention.BatchSize != 250 {
		t.Errorf("expected batch size 250, got %d", cfg.Retention.BatchSize)
	}
	if got := cfg.Requests.ResponseWindowDays["ccpa_deletion"]; got != 40 {
		t.Errorf("expected ccpa window 40, got %d", got)
	}
	if cfg.Requests.RequireVerification["manual"] {
		t.Error("expected manual verification disabled")
	}
	if len(cfg.Detection.ExtraPIITypes) != 2 || cfg.Detection.ExtraPIITypes[1] != "employee_id" {
		t.Errorf("unexpected extra pii types %v", cfg.Detection.ExtraPIITypes)
	}
	if cfg.Policy.CacheTTL != 5*time.Second {
		t.Errorf("expected cache ttl 5s, got %v", cfg.Policy.CacheTTL)
	}
}

func TestLoadConfigWithEnvOverrides_NoFile(t *testing.T) {
	t.Setenv("CUSTODIAN_TELEMETRY_LOGGING_LEVEL", "warn")

	cfg, err := LoadConfigWithEnvOverrides("")
	if err != nil {
		t.Fatalf("unexpected error: %v", err)
	}
	if cfg.Telemetry.Logging.Level != "warn" {
		t.Errorf("expected level warn, got %q", cfg.Telemetry.Logging.Level)
	}
}

func TestValidate(t *testing.T) {
	tests := []struct {
		name       string
		mutate     func(*Config)
		errorField string
	}{
		{
			name:       "unknown backend",
			mutate:     func(c *Config) { c.Storage.Backend = "mongo" },
			errorField: "storage.backend",
		},
		{
			name:       "postgres without dsn",
			mutate:     func(c *Config) { c.Storage.Backend = "postgres" },
			errorField: "storage.postgres.dsn",
		},
		{
			name:       "bad sqlite driver",
			mutate:     func(c *Config) { c.Storage.SQLite.Driver = "sqlite4" },
			errorField: "storage.sqlite.driver",
		},
		{
			name:       "bad cron",
			mutate:     func(c *Config) { c.Retention.Schedule = "every day" },
			errorField: "retention.schedule",
		},
		{
			name:       "negative grace",
			mutate:     func(c *Config) { c.Retention.DefaultGraceDays = -1 },
			errorField: "retention.default_grace_days",
		},
		{
			name: "redis without url",
			mutate: func(c *Config) {
				c.Policy.Invalidation.Backend = "redis"
			},
			errorField: "policy.invalidation.redis_url",
		},
		{
			name: "redis with http url",
			mutate: func(c *Config) {
				c.Policy.Invalidation.Backend = "redis"
				c.Policy.Invalidation.RedisURL = "http://cache:6379"
			},
			errorField: "policy.invalidation.redis_url",
		},
		{
			name:       "watch without seed file",
			mutate:     func(c *Config) { c.Policy.Watch = true },
			errorField: "policy.watch",
		},
		{
			name:       "zero response window",
			mutate:     func(c *Config) { c.Requests.ResponseWindowDays["manual"] = 0 },
			errorField: "requests.response_window_days.manual",
		},
		{
			name:       "bad log level",
			mutate:     func(c *Config) { c.Telemetry.Logging.Level = "trace" },
			errorField: "telemetry.logging.level",
		},
		{
			name:       "sample ratio out of range",
			mutate:     func(c *Config) { c.Telemetry.Tracing.SampleRatio = 1.5 },
			errorField: "telemetry.tracing.sample_ratio",
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			cfg := Default()
			tt.mutate(cfg)

			err := Validate(cfg)
			if err == nil {
				t.Fatal("expected validation error")
			}
			var verr ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %T", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.errorField {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error for %s, got %v", tt.errorField, verr.Errors)
			}
		})
	}
}

func TestValidationError_MultipleErrors(t *testing.T) {
	cfg := Default()
	cfg.Storage.Backend = "nope"
	cfg.Retention.BatchSize = -1

	err := Validate(cfg)
	if err == nil {
		t.Fatal("expected validation to fail")
	}
	if !strings.Contains(err.Error(), "validation failed with 2 errors") {
		t.Errorf("error message should mention multiple errors: %s", err.Error())
	}
}
