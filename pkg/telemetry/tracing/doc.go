// Package tracing provides OpenTelemetry tracing for Custodian.
//
// # Overview
//
// Spans wrap detection ingestion, retention cleanup runs and deletion
// request processing. Traces are exported over OTLP/gRPC to a collector
// and sampled by a parent-based trace id ratio sampler. When tracing is
// disabled, or the *Tracer is nil, spans are noops.
//
// # Trace Context Propagation
//
// HTTPMiddleware extracts W3C Trace Context headers from admin API calls:
//
//	traceparent: 00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01
//
// and puts the trace id into the logging context so log lines and audit
// correlation can be matched to the trace.
//
// # Usage
//
//	tracer, err := tracing.New(&cfg.Telemetry.Tracing, version)
//	if err != nil {
//		return err
//	}
//	defer tracer.Shutdown(context.Background())
//
//	ctx, span := tracer.Start(ctx, "detection.ingest",
//		trace.WithAttributes(tracing.Detection(id, piiType, risk)...))
//	defer span.End()
package tracing
