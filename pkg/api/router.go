package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/compliance/detection"
	"mercator-hq/custodian/pkg/compliance/erasure"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/compliance/report"
	"mercator-hq/custodian/pkg/compliance/retention"
	"mercator-hq/custodian/pkg/telemetry/health"
	"mercator-hq/custodian/pkg/telemetry/metrics"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

// Services are the components the admin API exposes.
type Services struct {
	Detections *detection.Service
	Policies   *policy.Registry
	Requests   *erasure.Workflow
	Enforcer   *retention.Enforcer
	Audit      *audit.Log
	Reports    *report.Generator
	Health     *health.Checker
	Metrics    *metrics.Collector
}

// Options tune the router.
type Options struct {
	// MaxBodyBytes caps request bodies. Zero means unlimited.
	MaxBodyBytes int64

	// IngestLimiter throttles detection ingestion. Nil disables it.
	IngestLimiter *rate.Limiter

	// MetricsPath serves the Prometheus endpoint. Empty disables it.
	MetricsPath string
}

// NewRouter builds the admin API:
//
//	GET  /healthz, /readyz, <metrics path>
//	     /v1/detections...          ingest, query, review
//	     /v1/policies...            retention policy administration
//	     /v1/deletion-requests...   erasure workflow
//	     /v1/audit, /v1/audit/export, /v1/report, /v1/retention/cleanup
func NewRouter(svc Services, opts Options) http.Handler {
	r := chi.NewRouter()
	r.Use(Recoverer)
	r.Use(RequestID)
	r.Use(tracing.HTTPMiddleware)
	r.Use(Logger)

	if svc.Health != nil {
		r.Get("/healthz", svc.Health.LivenessHandler())
		r.Get("/readyz", svc.Health.ReadinessHandler())
	}
	if opts.MetricsPath != "" && svc.Metrics != nil {
		r.Handle(opts.MetricsPath, svc.Metrics.Handler())
	}

	r.Route("/v1", func(r chi.Router) {
		r.Use(Actor)
		r.Use(BodyLimit(opts.MaxBodyBytes))

		NewDetectionHandler(svc.Detections, opts.IngestLimiter).RegisterRoutes(r)
		NewPolicyHandler(svc.Policies).RegisterRoutes(r)
		NewRequestHandler(svc.Requests).RegisterRoutes(r)
		NewOperationsHandler(svc.Audit, svc.Reports, svc.Enforcer).RegisterRoutes(r)
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, http.StatusNotFound, CodeNotFound, "route not found")
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		Fail(w, r, http.StatusMethodNotAllowed, "method_not_allowed", "method not allowed")
	})
	return r
}
