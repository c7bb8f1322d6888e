package metrics

import (
	"fmt"
	"sync"
	"time"

	"mercator-hq/custodian/pkg/config"

	"github.com/prometheus/client_golang/prometheus"
)

// maxPIITypeLabels caps distinct pii_type label values. PII types are an
// open set once extra types are configured.
const maxPIITypeLabels = 200

// Collector owns every Prometheus metric of the engine. All Record methods
// are safe on a nil *Collector and on a disabled one, so components can take
// an optional collector without guarding each call.
type Collector struct {
	config   *config.MetricsConfig
	registry *prometheus.Registry

	detectionMetrics *DetectionMetrics
	retentionMetrics *RetentionMetrics
	erasureMetrics   *ErasureMetrics
	policyMetrics    *PolicyMetrics
	auditMetrics     *AuditMetrics

	cardinalityLimiter *CardinalityLimiter
}

// NewCollector creates a collector and registers its metrics on registry.
// A nil registry gets a fresh one, never the global default.
//
// Example:
//
//	collector := metrics.NewCollector(&cfg.Telemetry.Metrics, nil)
//	mux.Handle(cfg.Telemetry.Metrics.Path, collector.Handler())
func NewCollector(cfg *config.MetricsConfig, registry *prometheus.Registry) *Collector {
	if registry == nil {
		registry = prometheus.NewRegistry()
	}
	if cfg.Namespace == "" {
		cfg.Namespace = config.DefaultMetricsNamespace
	}

	return &Collector{
		config:             cfg,
		registry:           registry,
		detectionMetrics:   NewDetectionMetrics(cfg, registry),
		retentionMetrics:   NewRetentionMetrics(cfg, registry),
		erasureMetrics:     NewErasureMetrics(cfg, registry),
		policyMetrics:      NewPolicyMetrics(cfg, registry),
		auditMetrics:       NewAuditMetrics(cfg, registry),
		cardinalityLimiter: NewCardinalityLimiter(maxPIITypeLabels),
	}
}

func (c *Collector) enabled() bool {
	return c != nil && c.config.Enabled
}

// piiTypeLabel folds PII types beyond the cardinality cap into "other".
func (c *Collector) piiTypeLabel(piiType string) string {
	if !c.cardinalityLimiter.Allow(fmt.Sprintf("pii_type:%s", piiType)) {
		return "other"
	}
	return piiType
}

// RecordDetectionIngested counts one ingested detection.
func (c *Collector) RecordDetectionIngested(piiType, riskLevel string) {
	if !c.enabled() {
		return
	}
	c.detectionMetrics.RecordIngested(c.piiTypeLabel(piiType), riskLevel)
}

// RecordDetectionRejected counts one detection refused at validation.
func (c *Collector) RecordDetectionRejected() {
	if !c.enabled() {
		return
	}
	c.detectionMetrics.rejectedTotal.Inc()
}

// RecordReviewTransition counts a review workflow step, keyed by the
// resulting review status.
func (c *Collector) RecordReviewTransition(status string) {
	if !c.enabled() {
		return
	}
	c.detectionMetrics.reviewTransitions.WithLabelValues(status).Inc()
}

// RecordCleanupRun records the outcome of one retention cleanup run.
func (c *Collector) RecordCleanupRun(deleted, skipped, conflicts, failed int, duration time.Duration) {
	if !c.enabled() {
		return
	}
	c.retentionMetrics.RecordRun(deleted, skipped, conflicts, failed, duration)
}

// RecordErasureDeletion counts one record erased by a deletion request.
func (c *Collector) RecordErasureDeletion(piiType string) {
	if !c.enabled() {
		return
	}
	c.erasureMetrics.deletionsTotal.WithLabelValues(c.piiTypeLabel(piiType)).Inc()
}

// RecordRequestTransition counts a deletion request entering status.
func (c *Collector) RecordRequestTransition(requestType, status string) {
	if !c.enabled() {
		return
	}
	c.erasureMetrics.transitionsTotal.WithLabelValues(requestType, status).Inc()
}

// SetOverdueRequests sets the number of open requests past their deadline.
func (c *Collector) SetOverdueRequests(n int) {
	if !c.enabled() {
		return
	}
	c.erasureMetrics.overdue.Set(float64(n))
}

// SetPolicyCacheVersion publishes the current policy snapshot version.
func (c *Collector) SetPolicyCacheVersion(version uint64) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.cacheVersion.Set(float64(version))
}

// RecordPolicyReload counts a policy snapshot load by outcome ("success", "error").
func (c *Collector) RecordPolicyReload(outcome string) {
	if !c.enabled() {
		return
	}
	c.policyMetrics.reloadsTotal.WithLabelValues(outcome).Inc()
}

// RecordExpirationFallback counts expirations computed without any policy.
func (c *Collector) RecordExpirationFallback() {
	if !c.enabled() {
		return
	}
	c.policyMetrics.fallbackTotal.Inc()
}

// RecordAuditEntry counts one audit entry by event type and impact.
func (c *Collector) RecordAuditEntry(eventType, impact string) {
	if !c.enabled() {
		return
	}
	c.auditMetrics.entriesTotal.WithLabelValues(eventType, impact).Inc()
}

// Registry returns the Prometheus registry used by this collector.
func (c *Collector) Registry() *prometheus.Registry {
	return c.registry
}

// CardinalityLimiter prevents metric cardinality explosion by limiting
// the number of unique label combinations per metric.
type CardinalityLimiter struct {
	maxCardinality int
	current        map[string]struct{}
	mu             sync.RWMutex
}

// NewCardinalityLimiter creates a new cardinality limiter with the specified
// maximum cardinality.
func NewCardinalityLimiter(maxCardinality int) *CardinalityLimiter {
	return &CardinalityLimiter{
		maxCardinality: maxCardinality,
		current:        make(map[string]struct{}),
	}
}

// Allow checks if a label set is allowed. Returns true if the label set
// already exists or if we haven't reached the cardinality limit yet.
func (cl *CardinalityLimiter) Allow(labelSet string) bool {
	cl.mu.RLock()
	if _, exists := cl.current[labelSet]; exists {
		cl.mu.RUnlock()
		return true
	}
	cl.mu.RUnlock()

	cl.mu.Lock()
	defer cl.mu.Unlock()

	if _, exists := cl.current[labelSet]; exists {
		return true
	}
	if len(cl.current) >= cl.maxCardinality {
		return false
	}
	cl.current[labelSet] = struct{}{}
	return true
}

// Count returns the current cardinality.
func (cl *CardinalityLimiter) Count() int {
	cl.mu.RLock()
	defer cl.mu.RUnlock()
	return len(cl.current)
}
