package retention

import (
	"context"
	"fmt"
	"log/slog"
	"sync"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/config"
	"mercator-hq/custodian/pkg/telemetry/metrics"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

// Config contains configuration for the retention enforcer.
type Config struct {
	// Schedule is a cron expression for scheduled cleanup runs.
	// Example: "0 3 * * *" (daily at 3 AM). Empty disables scheduling.
	Schedule string

	// BatchSize is the number of records fetched per scan page.
	BatchSize int

	// DefaultGraceDays applies to records whose retention came from the
	// fallback period, and to every record when UsePolicyGrace is off.
	DefaultGraceDays int

	// UsePolicyGrace takes the grace period from the policy that set the
	// record's retention.
	UsePolicyGrace bool
}

// DefaultConfig returns the default enforcer configuration.
func DefaultConfig() *Config {
	return &Config{
		Schedule:         config.DefaultRetentionSchedule,
		BatchSize:        config.DefaultRetentionBatchSize,
		DefaultGraceDays: config.DefaultRetentionGraceDays,
		UsePolicyGrace:   true,
	}
}

// ConfigFrom converts the retention section of the process config.
func ConfigFrom(cfg config.RetentionConfig) *Config {
	return &Config{
		Schedule:         cfg.Schedule,
		BatchSize:        cfg.BatchSize,
		DefaultGraceDays: cfg.DefaultGraceDays,
		UsePolicyGrace:   cfg.UsePolicyGrace,
	}
}

// CleanupResult summarizes one cleanup run.
type CleanupResult struct {
	StartedAt time.Time     `json:"started_at"`
	Duration  time.Duration `json:"duration"`
	Scanned   int           `json:"scanned"`   // Expired records examined
	Deleted   int           `json:"deleted"`   // Soft-deleted in this run
	Pending   int           `json:"pending"`   // Expired but still inside their grace period
	Skipped   int           `json:"skipped"`   // Policy disables automatic deletion
	Conflicts int           `json:"conflicts"` // Lost a concurrent update; retried next run
	Failed    int           `json:"failed"`
}

// Enforcer soft-deletes detection records whose retention and grace period
// have both elapsed.
type Enforcer struct {
	store    compliance.DetectionStore
	registry *policy.Registry
	config   *Config
	metrics  *metrics.Collector
	tracer   *tracing.Tracer
	logger   *slog.Logger
	now      func() time.Time

	// Serializes runs within the process. Cross-process races are caught by
	// the record version check.
	runMu sync.Mutex

	mu   sync.Mutex
	last *CleanupResult
}

// Option configures an Enforcer.
type Option func(*Enforcer)

// WithMetrics records cleanup metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(e *Enforcer) { e.metrics = collector }
}

// WithTracer wraps each run in a span.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(e *Enforcer) { e.tracer = tracer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(e *Enforcer) { e.now = now }
}

// NewEnforcer creates a retention enforcer.
func NewEnforcer(store compliance.DetectionStore, registry *policy.Registry, cfg *Config, opts ...Option) *Enforcer {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultRetentionBatchSize
	}
	if cfg.DefaultGraceDays < 0 {
		cfg.DefaultGraceDays = 0
	}

	e := &Enforcer{
		store:    store,
		registry: registry,
		config:   cfg,
		logger:   slog.Default().With("component", "compliance.retention"),
		now:      time.Now,
	}
	for _, opt := range opts {
		opt(e)
	}
	return e
}

// LastResult returns the result of the most recent completed run, or nil.
func (e *Enforcer) LastResult() *CleanupResult {
	e.mu.Lock()
	defer e.mu.Unlock()
	if e.last == nil {
		return nil
	}
	c := *e.last
	return &c
}

// RunCleanup scans expired active records in (expires_at, id) order and
// soft-deletes each one whose grace period has passed, writing a
// retention_deletion audit entry per record. Records are never removed.
//
// Failures on individual records are logged and counted; the run carries
// on. Running again right after a run deletes nothing.
func (e *Enforcer) RunCleanup(ctx context.Context) (res *CleanupResult, err error) {
	e.runMu.Lock()
	defer e.runMu.Unlock()

	ctx, span := e.tracer.Start(ctx, "retention.cleanup")
	defer func() {
		if res != nil {
			span.SetAttributes(
				attribute.Int(tracing.AttrScanned, res.Scanned),
				attribute.Int(tracing.AttrDeleted, res.Deleted),
				attribute.Int(tracing.AttrFailed, res.Failed),
			)
		}
		tracing.End(span, err)
	}()

	now := e.now().UTC()
	res = &CleanupResult{StartedAt: now}

	// One policy snapshot for the whole run keeps grace resolution consistent.
	snap, err := e.registry.Snapshot(ctx)
	if err != nil {
		return res, fmt.Errorf("failed to load retention policies: %w", err)
	}
	calc := e.registry.Calculator()

	q := &compliance.DetectionQuery{
		ExpiresTo: &now,
		Order:     compliance.OrderExpiresAsc,
		Limit:     e.config.BatchSize,
	}

	for {
		if err := ctx.Err(); err != nil {
			e.finish(res, now)
			return res, err
		}

		batch, err := e.store.QueryDetections(ctx, q)
		if err != nil {
			e.finish(res, now)
			return res, fmt.Errorf("failed to scan expired records: %w", err)
		}

		for _, rec := range batch {
			res.Scanned++
			e.enforce(ctx, rec, snap, calc, now, res)
		}

		if len(batch) < e.config.BatchSize {
			break
		}
		tail := batch[len(batch)-1]
		q.AfterExpiresAt = &tail.ExpiresAt
		q.AfterID = tail.ID
	}

	e.finish(res, now)

	if res.Deleted > 0 || res.Failed > 0 {
		e.logger.InfoContext(ctx, "retention cleanup completed",
			"scanned", res.Scanned,
			"deleted_count", res.Deleted,
			"pending_grace", res.Pending,
			"skipped", res.Skipped,
			"conflicts", res.Conflicts,
			"failed", res.Failed,
			"duration", res.Duration,
		)
	} else {
		e.logger.DebugContext(ctx, "retention cleanup completed, no records deleted",
			"scanned", res.Scanned,
		)
	}
	return res, nil
}

func (e *Enforcer) enforce(ctx context.Context, rec *compliance.DetectionRecord, snap policy.PolicySource, calc *policy.Calculator, now time.Time, res *CleanupResult) {
	decision := calc.Resolve(snap, rec.Frameworks, rec.PIIType)
	if !decision.AutoDeletion {
		res.Skipped++
		return
	}

	grace := e.config.DefaultGraceDays
	if e.config.UsePolicyGrace && !decision.Fallback {
		grace = decision.GracePeriodDays
	}
	if now.Before(policy.GraceDeadline(rec.ExpiresAt, grace)) {
		res.Pending++
		return
	}

	entry := audit.NewEntry(ctx, compliance.EventRetentionDeletion, compliance.ImpactLow)
	entry.DetectionRecordID = rec.ID
	entry.PolicyID = decision.PolicyID
	entry.Details["pii_type"] = rec.PIIType
	entry.Details["expires_at"] = rec.ExpiresAt.Format(time.RFC3339)
	entry.Details["grace_period_days"] = grace
	entry.Details["determining_framework"] = decision.Framework
	entry.Details["fallback_retention"] = decision.Fallback

	deletedAt := now
	rec.DeletedAt = &deletedAt

	err := e.store.UpdateDetection(ctx, rec, entry)
	switch {
	case err == nil:
		res.Deleted++
		e.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
	case compliance.IsConflict(err):
		res.Conflicts++
		e.logger.WarnContext(ctx, "retention deletion lost a concurrent update",
			"detection_id", rec.ID,
		)
	default:
		res.Failed++
		e.logger.ErrorContext(ctx, "retention deletion failed",
			"detection_id", rec.ID,
			"error", err,
		)
	}
}

func (e *Enforcer) finish(res *CleanupResult, startedAt time.Time) {
	res.Duration = e.now().UTC().Sub(startedAt)
	e.metrics.RecordCleanupRun(res.Deleted, res.Skipped, res.Conflicts, res.Failed, res.Duration)

	e.mu.Lock()
	c := *res
	e.last = &c
	e.mu.Unlock()
}
