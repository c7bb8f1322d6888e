package report

import (
	"context"
	"fmt"
	"log/slog"
	"time"

	"mercator-hq/custodian/pkg/compliance"
)

const (
	// DefaultExpiringWithinDays is the look-ahead window for upcoming expirations.
	DefaultExpiringWithinDays = 30

	scanPageSize = 1000
)

// Store is the read surface the generator needs.
type Store interface {
	compliance.DetectionStore
	compliance.PolicyStore
	compliance.RequestStore
	compliance.AuditStore
}

// Options selects the windows of a report.
type Options struct {
	// ExpiringWithinDays counts active records expiring in the next N days.
	ExpiringWithinDays int

	// AuditFrom and AuditTo bound the audit section. Nil means unbounded.
	AuditFrom *time.Time
	AuditTo   *time.Time

	// Framework restricts the detection section to one framework.
	Framework string
}

// Report is a point-in-time compliance summary.
type Report struct {
	GeneratedAt time.Time        `json:"generated_at"`
	Framework   string           `json:"framework,omitempty"`
	Detections  DetectionSummary `json:"detections"`
	Requests    RequestSummary   `json:"deletion_requests"`
	Audit       AuditSummary     `json:"audit"`
	Policies    PolicySummary    `json:"policies"`
}

// DetectionSummary counts detection records.
type DetectionSummary struct {
	Active         int64            `json:"active"`
	SoftDeleted    int64            `json:"soft_deleted"`
	ByFramework    map[string]int64 `json:"by_framework"`
	ByRiskLevel    map[string]int64 `json:"by_risk_level"`
	ByPIIType      map[string]int64 `json:"by_pii_type"`
	Flagged        int64            `json:"flagged_for_review"`
	PendingReviews int64            `json:"pending_reviews"` // pending or in_review
	Expired        int64            `json:"expired"`         // past expires_at, not yet collected
	ExpiringSoon   int64            `json:"expiring_soon"`
	ExpiringWithin int              `json:"expiring_within_days"`
}

// RequestSummary counts deletion requests.
type RequestSummary struct {
	ByStatus       map[string]int `json:"by_status"`
	Overdue        int            `json:"overdue"`
	RecordsDeleted int            `json:"records_deleted"`
}

// AuditSummary counts audit entries in the report window.
type AuditSummary struct {
	From     *time.Time       `json:"from,omitempty"`
	To       *time.Time       `json:"to,omitempty"`
	Total    int64            `json:"total"`
	ByImpact map[string]int64 `json:"by_impact"`
}

// PolicySummary lists the configured retention policies.
type PolicySummary struct {
	Total      int      `json:"total"`
	Active     int      `json:"active"`
	Frameworks []string `json:"frameworks"`
}

// Generator builds compliance reports from storage.
type Generator struct {
	store  Store
	logger *slog.Logger
	now    func() time.Time
}

// Option configures a Generator.
type Option func(*Generator)

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(g *Generator) { g.now = now }
}

// NewGenerator creates a report generator.
func NewGenerator(store Store, opts ...Option) *Generator {
	g := &Generator{
		store:  store,
		logger: slog.Default().With("component", "compliance.report"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Generate builds a report. Soft-deleted records are counted but not broken
// down by classification.
func (g *Generator) Generate(ctx context.Context, opts Options) (*Report, error) {
	if opts.ExpiringWithinDays < 0 {
		return nil, compliance.NewValidationError("expiring_within_days", "must be non-negative")
	}
	if opts.ExpiringWithinDays == 0 {
		opts.ExpiringWithinDays = DefaultExpiringWithinDays
	}
	if opts.AuditFrom != nil && opts.AuditTo != nil && opts.AuditTo.Before(*opts.AuditFrom) {
		return nil, compliance.NewValidationError("audit_to", "end of range is before its start")
	}
	opts.Framework = compliance.NormalizeFramework(opts.Framework)

	now := g.now().UTC()
	r := &Report{GeneratedAt: now, Framework: opts.Framework}

	var err error
	if r.Detections, err = g.detections(ctx, now, opts); err != nil {
		return nil, err
	}
	if r.Requests, err = g.requests(ctx, now); err != nil {
		return nil, err
	}
	if r.Audit, err = g.audit(ctx, opts); err != nil {
		return nil, err
	}
	if r.Policies, err = g.policies(ctx); err != nil {
		return nil, err
	}

	g.logger.DebugContext(ctx, "compliance report generated",
		"active_records", r.Detections.Active,
		"pending_reviews", r.Detections.PendingReviews,
		"overdue_requests", r.Requests.Overdue,
	)
	return r, nil
}

func (g *Generator) detections(ctx context.Context, now time.Time, opts Options) (DetectionSummary, error) {
	s := DetectionSummary{
		ByFramework:    make(map[string]int64),
		ByRiskLevel:    make(map[string]int64),
		ByPIIType:      make(map[string]int64),
		ExpiringWithin: opts.ExpiringWithinDays,
	}
	soon := now.Add(time.Duration(opts.ExpiringWithinDays) * 24 * time.Hour)

	deleted, err := g.store.CountDetections(ctx, &compliance.DetectionQuery{Framework: opts.Framework, DeletedOnly: true})
	if err != nil {
		return s, fmt.Errorf("failed to count deleted records: %w", err)
	}
	s.SoftDeleted = deleted

	q := &compliance.DetectionQuery{
		Framework: opts.Framework,
		Order:     compliance.OrderExpiresAsc,
		Limit:     scanPageSize,
	}
	for {
		batch, err := g.store.QueryDetections(ctx, q)
		if err != nil {
			return s, fmt.Errorf("failed to scan records: %w", err)
		}
		for _, rec := range batch {
			s.Active++
			s.ByRiskLevel[string(rec.RiskLevel)]++
			s.ByPIIType[rec.PIIType]++
			for _, fw := range rec.Frameworks {
				s.ByFramework[fw]++
			}
			if rec.FlaggedForReview {
				s.Flagged++
			}
			if rec.ReviewStatus.Open() {
				s.PendingReviews++
			}
			switch {
			case !rec.ExpiresAt.After(now):
				s.Expired++
			case !rec.ExpiresAt.After(soon):
				s.ExpiringSoon++
			}
		}
		if len(batch) < scanPageSize {
			return s, nil
		}
		tail := batch[len(batch)-1]
		q.AfterExpiresAt = &tail.ExpiresAt
		q.AfterID = tail.ID
	}
}

func (g *Generator) requests(ctx context.Context, now time.Time) (RequestSummary, error) {
	s := RequestSummary{ByStatus: make(map[string]int)}
	reqs, err := g.store.ListRequests(ctx, &compliance.RequestQuery{})
	if err != nil {
		return s, fmt.Errorf("failed to list deletion requests: %w", err)
	}
	for _, r := range reqs {
		s.ByStatus[string(r.Status)]++
		if r.Overdue(now) {
			s.Overdue++
		}
		if r.Status == compliance.StatusCompleted {
			s.RecordsDeleted += r.RecordsDeleted
		}
	}
	return s, nil
}

func (g *Generator) audit(ctx context.Context, opts Options) (AuditSummary, error) {
	s := AuditSummary{From: opts.AuditFrom, To: opts.AuditTo, ByImpact: make(map[string]int64)}
	for _, impact := range []compliance.ComplianceImpact{compliance.ImpactHigh, compliance.ImpactMedium, compliance.ImpactLow, compliance.ImpactNone} {
		n, err := g.store.CountAudit(ctx, &compliance.AuditQuery{ComplianceImpact: impact, From: opts.AuditFrom, To: opts.AuditTo})
		if err != nil {
			return s, fmt.Errorf("failed to count audit entries: %w", err)
		}
		s.ByImpact[string(impact)] = n
		s.Total += n
	}
	return s, nil
}

func (g *Generator) policies(ctx context.Context) (PolicySummary, error) {
	s := PolicySummary{Frameworks: []string{}}
	list, err := g.store.ListPolicies(ctx)
	if err != nil {
		return s, fmt.Errorf("failed to list policies: %w", err)
	}
	seen := make(map[string]struct{})
	for _, p := range list {
		s.Total++
		if p.Active {
			s.Active++
		}
		if _, ok := seen[p.Framework]; !ok {
			seen[p.Framework] = struct{}{}
			s.Frameworks = append(s.Frameworks, p.Framework)
		}
	}
	return s, nil
}
