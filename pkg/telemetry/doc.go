// Package telemetry groups the observability layers of Custodian:
// structured logging with redaction (logging), Prometheus metrics (metrics),
// OpenTelemetry tracing (tracing) and the liveness and readiness probes
// (health). Each subpackage is configured from config.TelemetryConfig and is
// safe to use with telemetry disabled.
package telemetry
