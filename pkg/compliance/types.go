package compliance

import (
	"time"
)

// RiskLevel is the detector-assigned severity of a PII span.
type RiskLevel string

const (
	RiskHigh   RiskLevel = "high"
	RiskMedium RiskLevel = "medium"
	RiskLow    RiskLevel = "low"
)

// Valid reports whether r is a known risk level.
func (r RiskLevel) Valid() bool {
	switch r {
	case RiskHigh, RiskMedium, RiskLow:
		return true
	}
	return false
}

// DetectionMode is the detector profile that produced a detection.
type DetectionMode string

const (
	ModeGeneral   DetectionMode = "general"
	ModeMedical   DetectionMode = "medical"
	ModeLegal     DetectionMode = "legal"
	ModeFinancial DetectionMode = "financial"
)

// Valid reports whether m is a known detection mode.
func (m DetectionMode) Valid() bool {
	switch m {
	case ModeGeneral, ModeMedical, ModeLegal, ModeFinancial:
		return true
	}
	return false
}

// ReviewStatus tracks the administrative review of a flagged detection.
// The zero value means the record was never flagged.
type ReviewStatus string

const (
	ReviewNone      ReviewStatus = ""
	ReviewPending   ReviewStatus = "pending"
	ReviewInReview  ReviewStatus = "in_review"
	ReviewResolved  ReviewStatus = "resolved"
	ReviewDismissed ReviewStatus = "dismissed"
)

// Open reports whether the review still awaits a decision.
func (s ReviewStatus) Open() bool {
	return s == ReviewPending || s == ReviewInReview
}

// ComplianceImpact grades how much an audited event matters to an auditor.
type ComplianceImpact string

const (
	ImpactHigh   ComplianceImpact = "high"
	ImpactMedium ComplianceImpact = "medium"
	ImpactLow    ComplianceImpact = "low"
	ImpactNone   ComplianceImpact = "none"
)

// Valid reports whether i is a known impact grade.
func (i ComplianceImpact) Valid() bool {
	switch i {
	case ImpactHigh, ImpactMedium, ImpactLow, ImpactNone:
		return true
	}
	return false
}

// LifecycleState is the derived lifecycle of a detection record.
type LifecycleState string

const (
	StateActive      LifecycleState = "active"
	StateSoftDeleted LifecycleState = "soft_deleted"
)

// RequestType identifies the regulatory basis of a deletion request.
type RequestType string

const (
	RequestGDPRErasure  RequestType = "gdpr_erasure"
	RequestCCPADeletion RequestType = "ccpa_deletion"
	RequestManual       RequestType = "manual"
)

// RequestTypes lists every supported request type.
var RequestTypes = []RequestType{RequestGDPRErasure, RequestCCPADeletion, RequestManual}

// Valid reports whether t is a known request type.
func (t RequestType) Valid() bool {
	switch t {
	case RequestGDPRErasure, RequestCCPADeletion, RequestManual:
		return true
	}
	return false
}

// RequestScope selects which of a requester's records a deletion request covers.
type RequestScope string

const (
	ScopeAllData       RequestScope = "all_data"
	ScopeSpecificTypes RequestScope = "specific_types"
	ScopeDateRange     RequestScope = "date_range"
)

// Valid reports whether s is a known scope.
func (s RequestScope) Valid() bool {
	switch s {
	case ScopeAllData, ScopeSpecificTypes, ScopeDateRange:
		return true
	}
	return false
}

// RequestStatus is the state of a deletion request.
type RequestStatus string

const (
	StatusPending    RequestStatus = "pending"
	StatusProcessing RequestStatus = "processing"
	StatusCompleted  RequestStatus = "completed"
	StatusRejected   RequestStatus = "rejected"
)

// Terminal reports whether no further transition is allowed from s.
func (s RequestStatus) Terminal() bool {
	return s == StatusCompleted || s == StatusRejected
}

// Audit event types.
const (
	EventDetectionIngested = "detection_ingested"
	EventDetectionUpdated  = "detection_updated"
	EventReviewFlagged     = "review_flagged"
	EventReviewStarted     = "review_started"
	EventReviewResolved    = "review_resolved"
	EventRetentionDeletion = "retention_deletion"
	EventErasureDeletion   = "erasure_deletion"
	EventRequestSubmitted  = "deletion_request_submitted"
	EventRequestVerified   = "deletion_request_verified"
	EventRequestProcessing = "deletion_request_processing"
	EventRequestCompleted  = "deletion_request_completed"
	EventRequestRejected   = "deletion_request_rejected"
	EventPolicyUpserted    = "policy_upserted"
	EventPolicyDeleted     = "policy_deleted"
)

// Actor types recorded on audit entries.
const (
	ActorSystem    = "system"
	ActorAdmin     = "admin"
	ActorDetector  = "detector"
	ActorRequester = "requester"
)

// DetectionRecord is the persisted metadata of one detected PII span.
// The raw matched value is never part of the record; only its hash is kept.
type DetectionRecord struct {
	// Identity
	ID         string `json:"id"`                     // UUID v4
	DocumentID string `json:"document_id,omitempty"`  // Source document
	HoneyJarID string `json:"honey_jar_id,omitempty"` // Source collection
	UserID     string `json:"user_id"`                // Data subject / owner

	// Classification
	PIIType         string        `json:"pii_type"`              // Normalized PII type tag
	RiskLevel       RiskLevel     `json:"risk_level"`            // high, medium, low
	ConfidenceScore float64       `json:"confidence_score"`      // 0-100
	SpanStart       int           `json:"span_start"`            // Offset of first char
	SpanEnd         int           `json:"span_end"`              // Offset past last char
	ContextHash     string        `json:"context_hash,omitempty"` // SHA-256 of surrounding context
	ValueHash       string        `json:"value_hash"`            // SHA-256 of matched value
	Frameworks      []string      `json:"compliance_frameworks"` // Normalized framework tags
	DetectionMode   DetectionMode `json:"detection_mode"`        // general, medical, legal, financial

	// Lifecycle
	DetectedAt        time.Time  `json:"detected_at"`
	ExpiresAt         time.Time  `json:"expires_at"`        // Fixed at ingestion
	Processed         bool       `json:"processed"`         // Downstream processing done
	Notified          bool       `json:"notified"`          // Owner notified
	DeletedAt         *time.Time `json:"deleted_at,omitempty"`
	DeletionRequestID string     `json:"deletion_request_id,omitempty"` // Set when erased by a request

	// Review
	FlaggedForReview bool         `json:"flagged_for_review"`
	FlaggedBy        string       `json:"flagged_by,omitempty"`
	FlaggedAt        *time.Time   `json:"flagged_at,omitempty"`
	FlagReason       string       `json:"flag_reason,omitempty"`
	AdminNotes       string       `json:"admin_notes,omitempty"`
	SeverityOverride RiskLevel    `json:"severity_override,omitempty"`
	ActionRequired   string       `json:"action_required,omitempty"`
	ReviewStatus     ReviewStatus `json:"review_status,omitempty"`
	ReviewedBy       string       `json:"reviewed_by,omitempty"`
	ReviewedAt       *time.Time   `json:"reviewed_at,omitempty"`

	// Bookkeeping
	Version   int64     `json:"version"` // Optimistic lock, bumped on every update
	CreatedAt time.Time `json:"created_at"`
	UpdatedAt time.Time `json:"updated_at"`
}

// State returns the lifecycle state derived from DeletedAt.
func (r *DetectionRecord) State() LifecycleState {
	if r.DeletedAt != nil {
		return StateSoftDeleted
	}
	return StateActive
}

// Clone returns a deep copy of the record.
func (r *DetectionRecord) Clone() *DetectionRecord {
	c := *r
	c.Frameworks = append([]string(nil), r.Frameworks...)
	c.DeletedAt = cloneTime(r.DeletedAt)
	c.FlaggedAt = cloneTime(r.FlaggedAt)
	c.ReviewedAt = cloneTime(r.ReviewedAt)
	return &c
}

// RetentionPolicy is a retention rule for one framework, optionally narrowed to
// a single PII type. An empty PIIType marks the framework default.
type RetentionPolicy struct {
	ID                         string    `json:"id"`
	Framework                  string    `json:"compliance_framework"`
	PIIType                    string    `json:"pii_type,omitempty"`
	RetentionDays              int       `json:"retention_days"`
	GracePeriodDays            int       `json:"grace_period_days"`
	AutoDeletion               bool      `json:"auto_deletion_enabled"`
	ImmediateDeletionOnRequest bool      `json:"immediate_deletion_on_request"`
	Active                     bool      `json:"active"`
	EffectiveDate              time.Time `json:"effective_date"`
	Description                string    `json:"description,omitempty"`
	CreatedAt                  time.Time `json:"created_at"`
	UpdatedAt                  time.Time `json:"updated_at"`
}

// IsDefault reports whether p is the framework-wide default.
func (p *RetentionPolicy) IsDefault() bool {
	return p.PIIType == ""
}

// Key returns the uniqueness key of the policy.
func (p *RetentionPolicy) Key() PolicyKey {
	return PolicyKey{Framework: p.Framework, PIIType: p.PIIType}
}

// PolicyKey is the (framework, pii_type) uniqueness key of a policy.
type PolicyKey struct {
	Framework string
	PIIType   string
}

// AuditEntry is one write-once row of the audit ledger.
type AuditEntry struct {
	ID                string           `json:"id"`
	EventType         string           `json:"event_type"`
	DetectionRecordID string           `json:"detection_record_id,omitempty"`
	DeletionRequestID string           `json:"deletion_request_id,omitempty"`
	PolicyID          string           `json:"policy_id,omitempty"`
	Actor             string           `json:"actor"`
	ActorType         string           `json:"actor_type"`
	ComplianceImpact  ComplianceImpact `json:"compliance_impact"`
	Details           map[string]any   `json:"details,omitempty"`
	RequestID         string           `json:"request_id,omitempty"` // Correlation id of the originating call
	Timestamp         time.Time        `json:"timestamp"`
}

// DeletionRequest is a formal erasure request and its processing state.
type DeletionRequest struct {
	ID          string       `json:"id"`
	Type        RequestType  `json:"request_type"`
	Requester   string       `json:"requester"`              // Data subject whose records are erased
	SubmittedBy string       `json:"submitted_by,omitempty"` // Who filed the request
	Scope       RequestScope `json:"scope"`
	PIITypes    []string     `json:"pii_types,omitempty"` // specific_types scope
	From        *time.Time   `json:"from,omitempty"`      // date_range scope, inclusive
	To          *time.Time   `json:"to,omitempty"`        // date_range scope, inclusive

	Status     RequestStatus `json:"status"`
	Reason     string        `json:"reason,omitempty"` // Rejection reason
	DeadlineAt time.Time     `json:"deadline_at"`

	// Only the SHA-256 of the verification token is stored.
	VerificationTokenHash string     `json:"-"`
	VerificationRequired  bool       `json:"verification_required"`
	VerifiedAt            *time.Time `json:"verified_at,omitempty"`

	RecordsDeleted int             `json:"records_deleted"`
	Report         *DeletionReport `json:"deletion_report,omitempty"`

	StartedAt   *time.Time `json:"started_at,omitempty"`
	CompletedAt *time.Time `json:"completed_at,omitempty"`
	Version     int64      `json:"version"`
	CreatedAt   time.Time  `json:"created_at"`
	UpdatedAt   time.Time  `json:"updated_at"`
}

// Clone returns a deep copy of the request.
func (r *DeletionRequest) Clone() *DeletionRequest {
	c := *r
	c.PIITypes = append([]string(nil), r.PIITypes...)
	c.From = cloneTime(r.From)
	c.To = cloneTime(r.To)
	c.VerifiedAt = cloneTime(r.VerifiedAt)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	if r.Report != nil {
		rep := r.Report.Clone()
		c.Report = rep
	}
	return &c
}

// Overdue reports whether the request missed its deadline while still open.
func (r *DeletionRequest) Overdue(now time.Time) bool {
	return !r.Status.Terminal() && now.After(r.DeadlineAt)
}

// DeletionReport summarizes what a deletion request erased.
type DeletionReport struct {
	Scope         RequestScope   `json:"scope"`
	PIITypes      []string       `json:"pii_types,omitempty"`
	From          *time.Time     `json:"from,omitempty"`
	To            *time.Time     `json:"to,omitempty"`
	ByPIIType     map[string]int `json:"by_pii_type"`
	ByFramework   map[string]int `json:"by_framework"`
	Total         int            `json:"total"`
	StartedAt     *time.Time     `json:"started_at,omitempty"`
	CompletedAt   *time.Time     `json:"completed_at,omitempty"`
	FailureReason string         `json:"failure_reason,omitempty"`
}

// Clone returns a deep copy of the report.
func (r *DeletionReport) Clone() *DeletionReport {
	c := *r
	c.PIITypes = append([]string(nil), r.PIITypes...)
	c.From = cloneTime(r.From)
	c.To = cloneTime(r.To)
	c.StartedAt = cloneTime(r.StartedAt)
	c.CompletedAt = cloneTime(r.CompletedAt)
	c.ByPIIType = make(map[string]int, len(r.ByPIIType))
	for k, v := range r.ByPIIType {
		c.ByPIIType[k] = v
	}
	c.ByFramework = make(map[string]int, len(r.ByFramework))
	for k, v := range r.ByFramework {
		c.ByFramework[k] = v
	}
	return &c
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
