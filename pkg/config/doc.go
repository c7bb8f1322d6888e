// Package config provides configuration management for Custodian.
//
// Configuration is loaded from a YAML file, decoded on top of the built-in
// defaults and optionally overridden from the environment.
//
// # Configuration Loading
//
//  1. From a YAML file only:
//     cfg, err := config.LoadConfig("custodian.yaml")
//
//  2. From a YAML file with environment variable overrides:
//     cfg, err := config.LoadConfigWithEnvOverrides("custodian.yaml")
//
// # Environment Variable Overrides
//
// Environment variables follow the naming convention CUSTODIAN_SECTION_FIELD:
//
//   - CUSTODIAN_STORAGE_BACKEND overrides storage.backend
//   - CUSTODIAN_STORAGE_POSTGRES_DSN overrides storage.postgres.dsn
//   - CUSTODIAN_RETENTION_SCHEDULE overrides retention.schedule
//   - CUSTODIAN_REQUESTS_RESPONSE_WINDOW_DAYS_GDPR_ERASURE overrides
//     requests.response_window_days.gdpr_erasure
//
// # Configuration Precedence
//
//  1. Default values (defined in defaults.go)
//  2. Values from YAML file
//  3. Environment variable overrides
//  4. Validation (fails fast if invalid)
//
// # Example Configuration
//
//	storage:
//	  backend: "postgres"
//	  postgres:
//	    dsn: "postgres://custodian:secret@db:5432/custodian?sslmode=disable"
//
//	policy:
//	  seed_file: "./retention-policies.yaml"
//	  watch: true
//	  invalidation:
//	    backend: "redis"
//	    redis_url: "redis://cache:6379/0"
//
//	retention:
//	  schedule: "0 3 * * *"
//	  fallback_retention_days: 1095
//
//	telemetry:
//	  logging:
//	    level: "info"
//	    format: "json"
package config
