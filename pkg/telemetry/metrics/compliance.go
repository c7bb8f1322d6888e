package metrics

import (
	"time"

	"mercator-hq/custodian/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// DetectionMetrics tracks ingestion and the review workflow.
//
// Metrics:
//   - custodian_detection_ingested_total: Ingested detections by pii_type and risk_level
//   - custodian_detection_rejected_total: Detections refused at validation
//   - custodian_detection_review_transitions_total: Review steps by resulting status
type DetectionMetrics struct {
	ingestedTotal     *prometheus.CounterVec
	rejectedTotal     prometheus.Counter
	reviewTransitions *prometheus.CounterVec
}

// NewDetectionMetrics creates and registers detection metrics.
func NewDetectionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *DetectionMetrics {
	dm := &DetectionMetrics{
		ingestedTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "detection",
				Name:      "ingested_total",
				Help:      "Total number of ingested detection records",
			},
			[]string{"pii_type", "risk_level"},
		),
		rejectedTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "detection",
				Name:      "rejected_total",
				Help:      "Total number of detections rejected by validation",
			},
		),
		reviewTransitions: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "detection",
				Name:      "review_transitions_total",
				Help:      "Total number of review workflow transitions by resulting status",
			},
			[]string{"status"},
		),
	}

	registry.MustRegister(dm.ingestedTotal, dm.rejectedTotal, dm.reviewTransitions)
	return dm
}

// RecordIngested counts one ingested detection.
func (dm *DetectionMetrics) RecordIngested(piiType, riskLevel string) {
	dm.ingestedTotal.WithLabelValues(piiType, riskLevel).Inc()
}

// RetentionMetrics tracks retention enforcer runs.
//
// Metrics:
//   - custodian_retention_records_total: Records handled by cleanup, by outcome
//   - custodian_retention_runs_total: Completed cleanup runs
//   - custodian_retention_run_duration_seconds: Cleanup run duration
type RetentionMetrics struct {
	recordsTotal *prometheus.CounterVec
	runsTotal    prometheus.Counter
	runDuration  prometheus.Histogram
}

// NewRetentionMetrics creates and registers retention metrics.
func NewRetentionMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *RetentionMetrics {
	rm := &RetentionMetrics{
		recordsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "retention",
				Name:      "records_total",
				Help:      "Total number of records handled by retention cleanup by outcome",
			},
			[]string{"outcome"},
		),
		runsTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "retention",
				Name:      "runs_total",
				Help:      "Total number of completed retention cleanup runs",
			},
		),
		runDuration: prometheus.NewHistogram(
			prometheus.HistogramOpts{
				Namespace: cfg.Namespace,
				Subsystem: "retention",
				Name:      "run_duration_seconds",
				Help:      "Duration of retention cleanup runs in seconds",
				Buckets:   prometheus.ExponentialBuckets(0.01, 4, 10), // 10ms to ~43m
			},
		),
	}

	registry.MustRegister(rm.recordsTotal, rm.runsTotal, rm.runDuration)
	return rm
}

// RecordRun records the outcome counts and duration of one run.
func (rm *RetentionMetrics) RecordRun(deleted, skipped, conflicts, failed int, duration time.Duration) {
	rm.recordsTotal.WithLabelValues("deleted").Add(float64(deleted))
	rm.recordsTotal.WithLabelValues("skipped").Add(float64(skipped))
	rm.recordsTotal.WithLabelValues("conflict").Add(float64(conflicts))
	rm.recordsTotal.WithLabelValues("failed").Add(float64(failed))
	rm.runsTotal.Inc()
	rm.runDuration.Observe(duration.Seconds())
}

// ErasureMetrics tracks the deletion request workflow.
//
// Metrics:
//   - custodian_erasure_deletions_total: Records erased by deletion requests, by pii_type
//   - custodian_erasure_request_transitions_total: Request transitions by type and status
//   - custodian_erasure_overdue_requests: Open requests past their deadline
type ErasureMetrics struct {
	deletionsTotal   *prometheus.CounterVec
	transitionsTotal *prometheus.CounterVec
	overdue          prometheus.Gauge
}

// NewErasureMetrics creates and registers erasure metrics.
func NewErasureMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *ErasureMetrics {
	em := &ErasureMetrics{
		deletionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "erasure",
				Name:      "deletions_total",
				Help:      "Total number of records erased by deletion requests",
			},
			[]string{"pii_type"},
		),
		transitionsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "erasure",
				Name:      "request_transitions_total",
				Help:      "Total number of deletion request transitions",
			},
			[]string{"request_type", "status"},
		),
		overdue: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "erasure",
				Name:      "overdue_requests",
				Help:      "Number of open deletion requests past their deadline",
			},
		),
	}

	registry.MustRegister(em.deletionsTotal, em.transitionsTotal, em.overdue)
	return em
}

// PolicyMetrics tracks the retention policy cache.
//
// Metrics:
//   - custodian_policy_cache_version: Version of the current policy snapshot
//   - custodian_policy_reloads_total: Snapshot loads by outcome
//   - custodian_policy_expiration_fallback_total: Expirations computed with the fallback period
type PolicyMetrics struct {
	cacheVersion  prometheus.Gauge
	reloadsTotal  *prometheus.CounterVec
	fallbackTotal prometheus.Counter
}

// NewPolicyMetrics creates and registers policy metrics.
func NewPolicyMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *PolicyMetrics {
	pm := &PolicyMetrics{
		cacheVersion: prometheus.NewGauge(
			prometheus.GaugeOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "cache_version",
				Help:      "Version of the current retention policy snapshot",
			},
		),
		reloadsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "reloads_total",
				Help:      "Total number of policy snapshot loads by outcome",
			},
			[]string{"outcome"},
		),
		fallbackTotal: prometheus.NewCounter(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "policy",
				Name:      "expiration_fallback_total",
				Help:      "Total number of expirations computed with the fallback retention period",
			},
		),
	}

	registry.MustRegister(pm.cacheVersion, pm.reloadsTotal, pm.fallbackTotal)
	return pm
}

// AuditMetrics tracks the audit ledger.
//
// Metrics:
//   - custodian_audit_entries_total: Audit entries written by event type and impact
type AuditMetrics struct {
	entriesTotal *prometheus.CounterVec
}

// NewAuditMetrics creates and registers audit metrics.
func NewAuditMetrics(cfg *config.MetricsConfig, registry *prometheus.Registry) *AuditMetrics {
	am := &AuditMetrics{
		entriesTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Namespace: cfg.Namespace,
				Subsystem: "audit",
				Name:      "entries_total",
				Help:      "Total number of audit entries written",
			},
			[]string{"event_type", "compliance_impact"},
		),
	}

	registry.MustRegister(am.entriesTotal)
	return am
}
