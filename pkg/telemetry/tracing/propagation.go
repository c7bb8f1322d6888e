package tracing

import (
	"context"
	"net/http"

	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/propagation"

	"mercator-hq/custodian/pkg/telemetry/logging"
)

// Span attribute keys. Only identifiers, types and counts are recorded,
// never PII values.
const (
	AttrDetectionID = "custodian.detection.id"
	AttrPIIType     = "custodian.detection.pii_type"
	AttrRiskLevel   = "custodian.detection.risk_level"
	AttrRequestID   = "custodian.deletion_request.id"
	AttrRequestType = "custodian.deletion_request.type"
	AttrStatus      = "custodian.deletion_request.status"
	AttrScanned     = "custodian.retention.scanned"
	AttrDeleted     = "custodian.deleted"
	AttrFailed      = "custodian.failed"
)

// Detection returns the span attributes describing a detection record.
func Detection(id, piiType, riskLevel string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrDetectionID, id),
		attribute.String(AttrPIIType, piiType),
		attribute.String(AttrRiskLevel, riskLevel),
	}
}

// DeletionRequest returns the span attributes describing a deletion request.
func DeletionRequest(id, requestType, status string) []attribute.KeyValue {
	return []attribute.KeyValue{
		attribute.String(AttrRequestID, id),
		attribute.String(AttrRequestType, requestType),
		attribute.String(AttrStatus, status),
	}
}

// Propagator returns the global text map propagator.
func Propagator() propagation.TextMapPropagator {
	return otel.GetTextMapPropagator()
}

// Extract extracts W3C trace context from HTTP headers.
func Extract(ctx context.Context, headers http.Header) context.Context {
	return Propagator().Extract(ctx, propagation.HeaderCarrier(headers))
}

// Inject injects the trace context of ctx into HTTP headers.
func Inject(ctx context.Context, headers http.Header) {
	Propagator().Inject(ctx, propagation.HeaderCarrier(headers))
}

// HTTPMiddleware extracts trace context from incoming requests, echoes the
// trace id in X-Trace-ID and adds it to the logging context.
func HTTPMiddleware(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		ctx := Extract(r.Context(), r.Header)
		if id := TraceID(ctx); id != "" {
			w.Header().Set("X-Trace-ID", id)
			ctx = logging.WithTraceID(ctx, id)
		}
		next.ServeHTTP(w, r.WithContext(ctx))
	})
}
