package detection

import (
	"context"
	"fmt"
	"log/slog"
	"math"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/telemetry/metrics"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

const (
	// DefaultQueryLimit applies when a query sets no limit.
	DefaultQueryLimit = 100
	// MaxQueryLimit caps the page size of a query.
	MaxQueryLimit = 1000

	maxIDLength = 255
	// maxClockSkew bounds how far in the future a detector clock may run.
	maxClockSkew = 5 * time.Minute
)

// Input is one detection as reported by a detector. It carries positions
// and hashes only; there is no field for the matched value.
type Input struct {
	PIIType         string    `json:"pii_type"`
	RiskLevel       string    `json:"risk_level"`
	ConfidenceScore float64   `json:"confidence_score"`
	Start           int       `json:"start"`
	End             int       `json:"end"`
	DocumentID      string    `json:"document_id,omitempty"`
	HoneyJarID      string    `json:"honey_jar_id,omitempty"`
	UserID          string    `json:"user_id"`
	Frameworks      []string  `json:"compliance_frameworks"`
	DetectionMode   string    `json:"detection_mode,omitempty"`
	ContextHash     string    `json:"context_hash,omitempty"`
	ValueHash       string    `json:"value_hash"`
	DetectedAt      time.Time `json:"detected_at,omitempty"` // Zero means now
}

// Config holds ingestion settings.
type Config struct {
	ExtraPIITypes     []string
	RequireFrameworks bool
}

// Service ingests detection records and runs the review workflow.
type Service struct {
	store             compliance.DetectionStore
	registry          *policy.Registry
	types             typeSet
	requireFrameworks bool
	metrics           *metrics.Collector
	tracer            *tracing.Tracer
	logger            *slog.Logger
	now               func() time.Time
}

// Option configures a Service.
type Option func(*Service)

// WithMetrics records ingestion and review metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(s *Service) { s.metrics = collector }
}

// WithTracer wraps ingestion in spans.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(s *Service) { s.tracer = tracer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(s *Service) { s.now = now }
}

// NewService creates a detection service.
func NewService(store compliance.DetectionStore, registry *policy.Registry, cfg Config, opts ...Option) *Service {
	s := &Service{
		store:             store,
		registry:          registry,
		types:             newTypeSet(cfg.ExtraPIITypes),
		requireFrameworks: cfg.RequireFrameworks,
		logger:            slog.Default().With("component", "compliance.detection"),
		now:               time.Now,
	}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

// PIITypes returns the accepted PII types in sorted order.
func (s *Service) PIITypes() []string {
	return s.types.sorted()
}

// Ingest validates in, fixes its expiration from the current policies and
// stores it together with a detection_ingested audit entry.
func (s *Service) Ingest(ctx context.Context, in *Input) (rec *compliance.DetectionRecord, err error) {
	ctx, span := s.tracer.Start(ctx, "detection.ingest")
	defer func() { tracing.End(span, err) }()

	now := s.now().UTC()
	rec, err = s.validate(in, now)
	if err != nil {
		s.metrics.RecordDetectionRejected()
		return nil, err
	}

	expires, decision, err := s.registry.CalculateExpiration(ctx, rec.Frameworks, rec.PIIType, rec.DetectedAt)
	if err != nil {
		return nil, fmt.Errorf("failed to resolve retention: %w", err)
	}
	rec.ID = uuid.New().String()
	rec.ExpiresAt = expires
	span.SetAttributes(tracing.Detection(rec.ID, rec.PIIType, string(rec.RiskLevel))...)

	entry := audit.NewEntry(ctx, compliance.EventDetectionIngested, compliance.ImpactLow)
	if entry.ActorType == compliance.ActorSystem {
		entry.Actor = compliance.ActorDetector
		entry.ActorType = compliance.ActorDetector
	}
	entry.DetectionRecordID = rec.ID
	entry.PolicyID = decision.PolicyID
	entry.Details["pii_type"] = rec.PIIType
	entry.Details["risk_level"] = string(rec.RiskLevel)
	entry.Details["compliance_frameworks"] = rec.Frameworks
	entry.Details["retention_days"] = decision.RetentionDays
	entry.Details["determining_framework"] = decision.Framework
	entry.Details["fallback_retention"] = decision.Fallback
	entry.Details["expires_at"] = rec.ExpiresAt.Format(time.RFC3339)

	if err := s.store.InsertDetection(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.metrics.RecordDetectionIngested(rec.PIIType, string(rec.RiskLevel))
	s.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))

	s.logger.DebugContext(ctx, "detection ingested",
		"detection_id", rec.ID,
		"pii_type", rec.PIIType,
		"risk_level", rec.RiskLevel,
		"retention_days", decision.RetentionDays,
		"fallback", decision.Fallback,
	)
	return rec, nil
}

func (s *Service) validate(in *Input, now time.Time) (*compliance.DetectionRecord, error) {
	verr := &compliance.ValidationError{}

	piiType := compliance.NormalizePIIType(in.PIIType)
	switch {
	case piiType == "":
		verr.Add("pii_type", "pii_type is required")
	case !s.types.has(piiType):
		verr.Add("pii_type", fmt.Sprintf("unknown pii type %q", piiType))
	}

	risk := compliance.RiskLevel(strings.ToLower(strings.TrimSpace(in.RiskLevel)))
	if !risk.Valid() {
		verr.Add("risk_level", "must be one of high, medium, low")
	}

	if math.IsNaN(in.ConfidenceScore) || in.ConfidenceScore < 0 || in.ConfidenceScore > 100 {
		verr.Add("confidence_score", "must be between 0 and 100")
	}

	if in.Start < 0 {
		verr.Add("start", "must be non-negative")
	}
	if in.End <= in.Start {
		verr.Add("end", "must be greater than start")
	}

	userID := strings.TrimSpace(in.UserID)
	if userID == "" {
		verr.Add("user_id", "user_id is required")
	} else if len(userID) > maxIDLength {
		verr.Add("user_id", fmt.Sprintf("must be at most %d characters", maxIDLength))
	}
	if len(in.DocumentID) > maxIDLength {
		verr.Add("document_id", fmt.Sprintf("must be at most %d characters", maxIDLength))
	}
	if len(in.HoneyJarID) > maxIDLength {
		verr.Add("honey_jar_id", fmt.Sprintf("must be at most %d characters", maxIDLength))
	}

	valueHash := strings.ToLower(strings.TrimSpace(in.ValueHash))
	if !compliance.ValidHash(valueHash) {
		verr.Add("value_hash", "must be a hex-encoded SHA-256 digest")
	}
	contextHash := strings.ToLower(strings.TrimSpace(in.ContextHash))
	if contextHash != "" && !compliance.ValidHash(contextHash) {
		verr.Add("context_hash", "must be a hex-encoded SHA-256 digest")
	}

	mode := compliance.ModeGeneral
	if in.DetectionMode != "" {
		mode = compliance.DetectionMode(strings.ToLower(strings.TrimSpace(in.DetectionMode)))
		if !mode.Valid() {
			verr.Add("detection_mode", "must be one of general, medical, legal, financial")
		}
	}

	frameworks := compliance.NormalizeFrameworks(in.Frameworks)
	if s.requireFrameworks && len(frameworks) == 0 {
		verr.Add("compliance_frameworks", "at least one framework is required")
	}

	detectedAt := now
	if !in.DetectedAt.IsZero() {
		detectedAt = in.DetectedAt.UTC()
		if detectedAt.After(now.Add(maxClockSkew)) {
			verr.Add("detected_at", "must not be in the future")
		}
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	return &compliance.DetectionRecord{
		DocumentID:      in.DocumentID,
		HoneyJarID:      in.HoneyJarID,
		UserID:          userID,
		PIIType:         piiType,
		RiskLevel:       risk,
		ConfidenceScore: in.ConfidenceScore,
		SpanStart:       in.Start,
		SpanEnd:         in.End,
		ContextHash:     contextHash,
		ValueHash:       valueHash,
		Frameworks:      frameworks,
		DetectionMode:   mode,
		DetectedAt:      detectedAt,
	}, nil
}

// Get returns a record by id, soft-deleted or not.
func (s *Service) Get(ctx context.Context, id string) (*compliance.DetectionRecord, error) {
	return s.store.GetDetection(ctx, id)
}

// Page is one page of detection records plus the unpaged total.
type Page struct {
	Records []*compliance.DetectionRecord `json:"records"`
	Total   int64                         `json:"total"`
	Limit   int                           `json:"limit"`
	Offset  int                           `json:"offset"`
}

// Query returns records matching q. Soft-deleted records are excluded
// unless q asks for them.
func (s *Service) Query(ctx context.Context, q compliance.DetectionQuery) (*Page, error) {
	verr := &compliance.ValidationError{}
	if q.Limit < 0 {
		verr.Add("limit", "must be non-negative")
	}
	if q.Offset < 0 {
		verr.Add("offset", "must be non-negative")
	}
	if q.RiskLevel != "" && !q.RiskLevel.Valid() {
		verr.Add("risk_level", "must be one of high, medium, low")
	}
	if q.DetectedFrom != nil && q.DetectedTo != nil && q.DetectedTo.Before(*q.DetectedFrom) {
		verr.Add("detected_to", "end of range is before its start")
	}
	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	if q.Limit == 0 {
		q.Limit = DefaultQueryLimit
	}
	if q.Limit > MaxQueryLimit {
		q.Limit = MaxQueryLimit
	}
	q.Framework = compliance.NormalizeFramework(q.Framework)
	types := make([]string, len(q.PIITypes))
	for i, t := range q.PIITypes {
		types[i] = compliance.NormalizePIIType(t)
	}
	q.PIITypes = types

	records, err := s.store.QueryDetections(ctx, &q)
	if err != nil {
		return nil, err
	}
	total, err := s.store.CountDetections(ctx, &q)
	if err != nil {
		return nil, err
	}
	if records == nil {
		records = []*compliance.DetectionRecord{}
	}
	return &Page{Records: records, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// FlagsUpdate sets the downstream processing flags of a record. Nil fields
// are left unchanged.
type FlagsUpdate struct {
	Processed *bool `json:"processed,omitempty"`
	Notified  *bool `json:"notified,omitempty"`
}

// UpdateFlags sets the processed and notified flags of an active record.
func (s *Service) UpdateFlags(ctx context.Context, id string, u FlagsUpdate) (*compliance.DetectionRecord, error) {
	rec, err := s.store.GetDetection(ctx, id)
	if err != nil {
		return nil, err
	}
	if rec.DeletedAt != nil {
		return nil, &compliance.InvalidTransitionError{
			Kind: "detection", ID: id,
			From: string(compliance.StateSoftDeleted), To: "updated",
			Reason: "record is deleted",
		}
	}

	entry := audit.NewEntry(ctx, compliance.EventDetectionUpdated, compliance.ImpactNone)
	entry.DetectionRecordID = id
	if u.Processed != nil {
		entry.Details["processed"] = *u.Processed
		rec.Processed = *u.Processed
	}
	if u.Notified != nil {
		entry.Details["notified"] = *u.Notified
		rec.Notified = *u.Notified
	}

	if err := s.store.UpdateDetection(ctx, rec, entry); err != nil {
		return nil, err
	}
	s.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
	return rec, nil
}
