package erasure

import (
	"context"
	"crypto/rand"
	"encoding/hex"
	"fmt"
	"log/slog"
	"strings"
	"time"

	"github.com/google/uuid"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/config"
	"mercator-hq/custodian/pkg/telemetry/metrics"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

const (
	// DefaultListLimit applies when a list query sets no limit.
	DefaultListLimit = 100

	tokenBytes        = 32
	maxReasonLen      = 1024
	maxRejectAttempts = 5
)

// Store is the persistence the workflow needs.
type Store interface {
	compliance.DetectionStore
	compliance.RequestStore
}

// Config holds the per-type rules of the workflow.
type Config struct {
	// ResponseWindowDays is the regulatory deadline per request type.
	ResponseWindowDays map[compliance.RequestType]int

	// RequireVerification lists whether verify must precede process. Types
	// missing from the map require verification.
	RequireVerification map[compliance.RequestType]bool

	// BatchSize is the number of records fetched per scan page.
	BatchSize int
}

// DefaultConfig returns the default workflow configuration.
func DefaultConfig() *Config {
	return &Config{
		ResponseWindowDays: map[compliance.RequestType]int{
			compliance.RequestGDPRErasure:  config.DefaultGDPRResponseWindowDays,
			compliance.RequestCCPADeletion: config.DefaultCCPAResponseWindowDays,
			compliance.RequestManual:       config.DefaultManualResponseWindow,
		},
		RequireVerification: map[compliance.RequestType]bool{},
		BatchSize:           config.DefaultRequestBatchSize,
	}
}

// ConfigFrom converts the requests section of the process config.
func ConfigFrom(cfg config.RequestsConfig) *Config {
	out := DefaultConfig()
	for typ, days := range cfg.ResponseWindowDays {
		out.ResponseWindowDays[compliance.RequestType(typ)] = days
	}
	for typ, required := range cfg.RequireVerification {
		out.RequireVerification[compliance.RequestType(typ)] = required
	}
	if cfg.BatchSize > 0 {
		out.BatchSize = cfg.BatchSize
	}
	return out
}

func (c *Config) verificationRequired(t compliance.RequestType) bool {
	required, ok := c.RequireVerification[t]
	return !ok || required
}

// Workflow runs deletion requests through
// pending -> processing -> completed | rejected.
type Workflow struct {
	store   Store
	config  *Config
	metrics *metrics.Collector
	tracer  *tracing.Tracer
	logger  *slog.Logger
	now     func() time.Time
}

// Option configures a Workflow.
type Option func(*Workflow)

// WithMetrics records request metrics on collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(w *Workflow) { w.metrics = collector }
}

// WithTracer wraps processing in spans.
func WithTracer(tracer *tracing.Tracer) Option {
	return func(w *Workflow) { w.tracer = tracer }
}

// WithClock overrides the time source.
func WithClock(now func() time.Time) Option {
	return func(w *Workflow) { w.now = now }
}

// NewWorkflow creates a deletion request workflow.
func NewWorkflow(store Store, cfg *Config, opts ...Option) *Workflow {
	if cfg == nil {
		cfg = DefaultConfig()
	}
	if cfg.BatchSize <= 0 {
		cfg.BatchSize = config.DefaultRequestBatchSize
	}
	w := &Workflow{
		store:  store,
		config: cfg,
		logger: slog.Default().With("component", "compliance.erasure"),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(w)
	}
	return w
}

// SubmitInput describes a new deletion request.
type SubmitInput struct {
	Type      compliance.RequestType  `json:"request_type"`
	Requester string                  `json:"requester"`
	Scope     compliance.RequestScope `json:"scope"`
	PIITypes  []string                `json:"pii_types,omitempty"`
	From      *time.Time              `json:"from,omitempty"`
	To        *time.Time              `json:"to,omitempty"`
}

// Submission is a stored request plus its verification token. The token is
// returned once and only its hash is kept.
type Submission struct {
	Request           *compliance.DeletionRequest `json:"request"`
	VerificationToken string                      `json:"verification_token"`
}

// Submit validates in and stores a pending request with a fresh
// verification token and a deadline from the type's response window.
func (w *Workflow) Submit(ctx context.Context, in *SubmitInput) (*Submission, error) {
	req, err := w.validateSubmit(in)
	if err != nil {
		return nil, err
	}

	token, err := newToken()
	if err != nil {
		return nil, fmt.Errorf("failed to generate verification token: %w", err)
	}

	now := w.now().UTC()
	req.ID = uuid.New().String()
	req.Status = compliance.StatusPending
	req.DeadlineAt = now.Add(time.Duration(w.config.ResponseWindowDays[req.Type]) * 24 * time.Hour)
	req.VerificationTokenHash = compliance.HashString(token)
	req.VerificationRequired = w.config.verificationRequired(req.Type)

	entry := audit.NewEntry(ctx, compliance.EventRequestSubmitted, compliance.ImpactMedium)
	req.SubmittedBy = entry.Actor
	entry.DeletionRequestID = req.ID
	entry.Details["request_type"] = string(req.Type)
	entry.Details["scope"] = string(req.Scope)
	entry.Details["deadline_at"] = req.DeadlineAt.Format(time.RFC3339)
	entry.Details["verification_required"] = req.VerificationRequired
	if len(req.PIITypes) > 0 {
		entry.Details["pii_types"] = req.PIITypes
	}

	if err := w.store.InsertRequest(ctx, req, entry); err != nil {
		return nil, err
	}
	w.recordTransition(req, entry)

	w.logger.InfoContext(ctx, "deletion request submitted",
		"deletion_request_id", req.ID,
		"request_type", req.Type,
		"scope", req.Scope,
		"deadline_at", req.DeadlineAt,
	)
	return &Submission{Request: req, VerificationToken: token}, nil
}

func (w *Workflow) validateSubmit(in *SubmitInput) (*compliance.DeletionRequest, error) {
	verr := &compliance.ValidationError{}

	typ := compliance.RequestType(strings.ToLower(strings.TrimSpace(string(in.Type))))
	if !typ.Valid() {
		verr.Add("request_type", "must be one of gdpr_erasure, ccpa_deletion, manual")
	}
	requester := strings.TrimSpace(in.Requester)
	if requester == "" {
		verr.Add("requester", "requester is required")
	}

	scope := compliance.RequestScope(strings.ToLower(strings.TrimSpace(string(in.Scope))))
	if scope == "" {
		scope = compliance.ScopeAllData
	}
	var piiTypes []string
	switch scope {
	case compliance.ScopeAllData:
	case compliance.ScopeSpecificTypes:
		seen := make(map[string]struct{}, len(in.PIITypes))
		for _, t := range in.PIITypes {
			n := compliance.NormalizePIIType(t)
			if n == "" {
				continue
			}
			if _, ok := seen[n]; ok {
				continue
			}
			seen[n] = struct{}{}
			piiTypes = append(piiTypes, n)
		}
		if len(piiTypes) == 0 {
			verr.Add("pii_types", "at least one pii type is required for specific_types scope")
		}
	case compliance.ScopeDateRange:
		if in.From == nil || in.To == nil {
			verr.Add("from", "from and to are required for date_range scope")
		} else if in.To.Before(*in.From) {
			verr.Add("to", "end of range is before its start")
		}
	default:
		verr.Add("scope", "must be one of all_data, specific_types, date_range")
	}

	if err := verr.OrNil(); err != nil {
		return nil, err
	}

	req := &compliance.DeletionRequest{
		Type:      typ,
		Requester: requester,
		Scope:     scope,
		PIITypes:  piiTypes,
	}
	if scope == compliance.ScopeDateRange {
		from, to := in.From.UTC(), in.To.UTC()
		req.From, req.To = &from, &to
	}
	return req, nil
}

func newToken() (string, error) {
	b := make([]byte, tokenBytes)
	if _, err := rand.Read(b); err != nil {
		return "", err
	}
	return hex.EncodeToString(b), nil
}

// Verify stamps verified_at on the request the token belongs to. Verifying
// an already verified request is a no-op.
func (w *Workflow) Verify(ctx context.Context, token string) (*compliance.DeletionRequest, error) {
	token = strings.TrimSpace(token)
	if token == "" {
		return nil, compliance.NewValidationError("token", "token is required")
	}

	req, err := w.store.GetRequestByTokenHash(ctx, compliance.HashString(token))
	if err != nil {
		return nil, err
	}
	if req.VerifiedAt != nil {
		return req, nil
	}
	if req.Status.Terminal() {
		return nil, &compliance.InvalidTransitionError{
			Kind: "deletion_request", ID: req.ID,
			From: string(req.Status), To: "verified",
			Reason: "request is closed",
		}
	}

	entry := audit.NewEntry(ctx, compliance.EventRequestVerified, compliance.ImpactLow)
	if entry.ActorType == compliance.ActorSystem {
		entry.Actor = req.Requester
		entry.ActorType = compliance.ActorRequester
	}
	entry.DeletionRequestID = req.ID

	now := w.now().UTC()
	req.VerifiedAt = &now
	if err := w.store.UpdateRequest(ctx, req, entry); err != nil {
		return nil, err
	}
	w.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))

	w.logger.InfoContext(ctx, "deletion request verified", "deletion_request_id", req.ID)
	return req, nil
}

// Reject closes a pending or processing request with reason. Records
// already erased by the request stay deleted.
func (w *Workflow) Reject(ctx context.Context, id, reason string) (*compliance.DeletionRequest, error) {
	reason = strings.TrimSpace(reason)
	if reason == "" {
		return nil, compliance.NewValidationError("reason", "reason is required")
	}
	if len(reason) > maxReasonLen {
		return nil, compliance.NewValidationError("reason", fmt.Sprintf("must be at most %d characters", maxReasonLen))
	}

	// A request being processed changes with every erased record, so a lost
	// update is retried against the reloaded row.
	for attempt := 0; ; attempt++ {
		req, err := w.store.GetRequest(ctx, id)
		if err != nil {
			return nil, err
		}
		if req.Status.Terminal() {
			return nil, compliance.NewInvalidTransitionError("deletion_request", id, string(req.Status), string(compliance.StatusRejected))
		}
		err = w.reject(ctx, req, reason, "", compliance.ImpactMedium)
		if err == nil {
			return req, nil
		}
		if !compliance.IsConflict(err) || attempt >= maxRejectAttempts-1 {
			return nil, err
		}
	}
}

func (w *Workflow) reject(ctx context.Context, req *compliance.DeletionRequest, reason, failure string, impact compliance.ComplianceImpact) error {
	from := req.Status
	now := w.now().UTC()

	entry := audit.NewEntry(ctx, compliance.EventRequestRejected, impact)
	entry.DeletionRequestID = req.ID
	entry.Details["from_status"] = string(from)
	entry.Details["reason"] = reason

	req.Status = compliance.StatusRejected
	req.Reason = reason
	req.CompletedAt = &now
	if failure != "" {
		if req.Report == nil {
			req.Report = newReport(req)
		}
		req.Report.FailureReason = failure
		req.Report.CompletedAt = &now
		entry.Details["failure_reason"] = failure
	}

	if err := w.store.UpdateRequest(ctx, req, entry); err != nil {
		return err
	}
	w.recordTransition(req, entry)

	w.logger.WarnContext(ctx, "deletion request rejected",
		"deletion_request_id", req.ID,
		"from_status", from,
		"reason", reason,
	)
	return nil
}

// Get returns a request by id.
func (w *Workflow) Get(ctx context.Context, id string) (*compliance.DeletionRequest, error) {
	return w.store.GetRequest(ctx, id)
}

// List returns requests matching q, newest first.
func (w *Workflow) List(ctx context.Context, q compliance.RequestQuery) ([]*compliance.DeletionRequest, error) {
	if q.Limit < 0 || q.Offset < 0 {
		return nil, compliance.NewValidationError("limit", "limit and offset must be non-negative")
	}
	if q.Status != "" {
		switch q.Status {
		case compliance.StatusPending, compliance.StatusProcessing, compliance.StatusCompleted, compliance.StatusRejected:
		default:
			return nil, compliance.NewValidationError("status", "must be one of pending, processing, completed, rejected")
		}
	}
	if q.Type != "" && !q.Type.Valid() {
		return nil, compliance.NewValidationError("request_type", "must be one of gdpr_erasure, ccpa_deletion, manual")
	}
	if q.Limit == 0 {
		q.Limit = DefaultListLimit
	}

	out, err := w.store.ListRequests(ctx, &q)
	if err != nil {
		return nil, err
	}
	if out == nil {
		out = []*compliance.DeletionRequest{}
	}
	return out, nil
}

// Overdue returns open requests whose deadline has passed.
func (w *Workflow) Overdue(ctx context.Context) ([]*compliance.DeletionRequest, error) {
	now := w.now().UTC()
	var out []*compliance.DeletionRequest
	for _, status := range []compliance.RequestStatus{compliance.StatusPending, compliance.StatusProcessing} {
		reqs, err := w.store.ListRequests(ctx, &compliance.RequestQuery{Status: status, DeadlineBefore: &now})
		if err != nil {
			return nil, err
		}
		out = append(out, reqs...)
	}
	w.metrics.SetOverdueRequests(len(out))
	return out, nil
}

func (w *Workflow) recordTransition(req *compliance.DeletionRequest, entry *compliance.AuditEntry) {
	w.metrics.RecordRequestTransition(string(req.Type), string(req.Status))
	w.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
}
