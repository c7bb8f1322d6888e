package tracing

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"mercator-hq/custodian/pkg/config"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

func TestNew_Disabled(t *testing.T) {
	tracer, err := New(&config.TracingConfig{Enabled: false}, "test")
	if err != nil {
		t.Fatalf("New failed: %v", err)
	}
	if tracer.Enabled() {
		t.Error("expected tracer to be disabled")
	}

	ctx, span := tracer.Start(context.Background(), "noop")
	End(span, nil)
	if TraceID(ctx) != "" {
		t.Error("expected no trace id from noop span")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("shutdown failed: %v", err)
	}
}

func TestNew_NilConfig(t *testing.T) {
	if _, err := New(nil, "test"); err == nil {
		t.Error("expected error for nil config")
	}
}

func TestNilTracer(t *testing.T) {
	var tracer *Tracer
	_, span := tracer.Start(context.Background(), "nil")
	End(span, errors.New("boom"))

	if tracer.Enabled() {
		t.Error("nil tracer must report disabled")
	}
	if err := tracer.Shutdown(context.Background()); err != nil {
		t.Errorf("nil shutdown failed: %v", err)
	}
}

func TestCreateSampler(t *testing.T) {
	tests := []struct {
		name    string
		ratio   float64
		wantErr bool
	}{
		{"always", 1.0, false},
		{"never", 0.0, false},
		{"ratio", 0.25, false},
		{"too large", 1.5, true},
		{"negative", -0.1, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			s, err := createSampler(tt.ratio)
			if (err != nil) != tt.wantErr {
				t.Fatalf("expected error %v, got %v", tt.wantErr, err)
			}
			if !tt.wantErr && s == nil {
				t.Error("expected sampler")
			}
		})
	}
}

func TestHTTPMiddleware(t *testing.T) {
	if _, err := New(&config.TracingConfig{Enabled: false}, "test"); err != nil {
		t.Fatal(err)
	}

	var gotTraceID string
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		gotTraceID = logging.GetTraceID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/v1/policies", nil)
	req.Header.Set("traceparent", "00-4bf92f3577b34da6a3ce929d0e0e4736-00f067aa0ba902b7-01")
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, req)

	want := "4bf92f3577b34da6a3ce929d0e0e4736"
	if gotTraceID != want {
		t.Errorf("expected trace id %s in logging context, got %q", want, gotTraceID)
	}
	if rec.Header().Get("X-Trace-ID") != want {
		t.Errorf("expected X-Trace-ID header %s, got %q", want, rec.Header().Get("X-Trace-ID"))
	}
}

func TestHTTPMiddleware_NoTraceparent(t *testing.T) {
	handler := HTTPMiddleware(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {}))
	rec := httptest.NewRecorder()
	handler.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/healthz", nil))

	if rec.Header().Get("X-Trace-ID") != "" {
		t.Error("expected no trace header without incoming context")
	}
}
