// Package logging configures structured logging for Custodian.
//
// It builds a log/slog logger with:
//   - JSON or text output
//   - Redaction of PII patterns and secret-bearing attribute keys
//   - Context fields (request_id, actor, trace_id) on every *Context call
//
// # Usage
//
//	logger, err := logging.Setup(logging.FromConfig(cfg.Telemetry.Logging))
//	if err != nil {
//	    return err
//	}
//
//	ctx = logging.WithRequestID(ctx, "req-123")
//	ctx = logging.WithActor(ctx, "dpo@example.com", "admin")
//	logger.InfoContext(ctx, "deletion request verified", "deletion_request_id", id)
//
// Components obtain their logger with slog.Default().With("component", ...).
package logging
