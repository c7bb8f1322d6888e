package compliance

import (
	"context"
	"time"
)

// DetectionOrder selects the sort order of a detection query.
type DetectionOrder int

const (
	// OrderDetectedDesc returns newest detections first (default).
	OrderDetectedDesc DetectionOrder = iota
	// OrderExpiresAsc returns detections by (expires_at, id) ascending and
	// honors the keyset cursor fields.
	OrderExpiresAsc
)

// DetectionQuery filters detection records. Zero-valued fields are ignored.
type DetectionQuery struct {
	UserID       string
	DocumentID   string
	HoneyJarID   string
	PIITypes     []string
	RiskLevel    RiskLevel
	Framework    string
	ReviewStatus ReviewStatus
	FlaggedOnly  bool

	DetectedFrom *time.Time // detected_at >= DetectedFrom
	DetectedTo   *time.Time // detected_at <= DetectedTo
	ExpiresFrom  *time.Time // expires_at >= ExpiresFrom
	ExpiresTo    *time.Time // expires_at <= ExpiresTo

	// Soft-deleted records are excluded unless IncludeDeleted or DeletedOnly is set.
	IncludeDeleted    bool
	DeletedOnly       bool
	DeletionRequestID string

	Order DetectionOrder
	// Keyset cursor for OrderExpiresAsc: rows strictly after (AfterExpiresAt, AfterID).
	AfterExpiresAt *time.Time
	AfterID        string

	Limit  int
	Offset int
}

// AuditQuery filters audit entries. Results are ordered by timestamp ascending.
type AuditQuery struct {
	EventType         string
	DetectionRecordID string
	DeletionRequestID string
	Actor             string
	ComplianceImpact  ComplianceImpact
	From              *time.Time
	To                *time.Time
	Limit             int
	Offset            int
}

// RequestQuery filters deletion requests. Results are newest first.
type RequestQuery struct {
	Status         RequestStatus
	Requester      string
	Type           RequestType
	DeadlineBefore *time.Time
	Limit          int
	Offset         int
}

// DetectionStore persists detection records. Every mutating call takes the
// audit entry describing the change and writes both atomically.
type DetectionStore interface {
	// InsertDetection stores a new record. The record's Version is set to 1.
	InsertDetection(ctx context.Context, rec *DetectionRecord, entry *AuditEntry) error

	// GetDetection returns a record by id, soft-deleted or not.
	GetDetection(ctx context.Context, id string) (*DetectionRecord, error)

	// QueryDetections returns records matching q.
	QueryDetections(ctx context.Context, q *DetectionQuery) ([]*DetectionRecord, error)

	// CountDetections counts records matching q, ignoring Limit and Offset.
	CountDetections(ctx context.Context, q *DetectionQuery) (int64, error)

	// UpdateDetection overwrites the mutable fields of rec if the stored
	// version equals rec.Version, then bumps rec.Version. A version mismatch
	// returns ConcurrencyConflictError; an unknown id returns NotFoundError.
	UpdateDetection(ctx context.Context, rec *DetectionRecord, entry *AuditEntry) error
}

// PolicyStore persists retention policies.
type PolicyStore interface {
	// UpsertPolicy inserts or replaces the policy keyed by (framework, pii_type)
	// and returns the stored row.
	UpsertPolicy(ctx context.Context, p *RetentionPolicy, entry *AuditEntry) (*RetentionPolicy, error)

	// GetPolicy returns the policy for the exact key.
	GetPolicy(ctx context.Context, framework, piiType string) (*RetentionPolicy, error)

	// ListPolicies returns all policies ordered by framework then pii_type.
	ListPolicies(ctx context.Context) ([]*RetentionPolicy, error)

	// DeletePolicy removes the policy for the exact key.
	DeletePolicy(ctx context.Context, framework, piiType string, entry *AuditEntry) error
}

// RequestStore persists deletion requests.
type RequestStore interface {
	InsertRequest(ctx context.Context, r *DeletionRequest, entry *AuditEntry) error
	GetRequest(ctx context.Context, id string) (*DeletionRequest, error)
	GetRequestByTokenHash(ctx context.Context, tokenHash string) (*DeletionRequest, error)
	ListRequests(ctx context.Context, q *RequestQuery) ([]*DeletionRequest, error)

	// UpdateRequest follows the same optimistic-lock contract as UpdateDetection.
	UpdateRequest(ctx context.Context, r *DeletionRequest, entry *AuditEntry) error

	// EraseForRequest applies UpdateDetection to rec and increments the
	// request's records_deleted in one transaction, but only while the
	// request is processing. A request in any other state returns
	// InvalidTransitionError and leaves rec untouched.
	EraseForRequest(ctx context.Context, requestID string, rec *DetectionRecord, entry *AuditEntry) error
}

// AuditStore is the append-only audit ledger.
type AuditStore interface {
	AppendAudit(ctx context.Context, entry *AuditEntry) error
	QueryAudit(ctx context.Context, q *AuditQuery) ([]*AuditEntry, error)
	CountAudit(ctx context.Context, q *AuditQuery) (int64, error)
}

// Storage is the full persistence surface of the engine.
type Storage interface {
	DetectionStore
	PolicyStore
	RequestStore
	AuditStore

	// Backend names the implementation ("memory", "sqlite", "postgres").
	Backend() string

	// Ping verifies the backend is reachable.
	Ping(ctx context.Context) error

	// Close releases all resources.
	Close() error
}
