package storage

import (
	"context"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"

	"mercator-hq/custodian/pkg/compliance"
)

// MemoryStorage is an in-memory Storage implementation for tests and
// single-process development. All methods copy records in and out so callers
// never share state with the store.
type MemoryStorage struct {
	mu         sync.RWMutex
	detections map[string]*compliance.DetectionRecord
	policies   map[compliance.PolicyKey]*compliance.RetentionPolicy
	requests   map[string]*compliance.DeletionRequest
	audit      []*compliance.AuditEntry
	now        func() time.Time
}

// NewMemoryStorage creates a new in-memory storage backend.
func NewMemoryStorage() *MemoryStorage {
	return &MemoryStorage{
		detections: make(map[string]*compliance.DetectionRecord),
		policies:   make(map[compliance.PolicyKey]*compliance.RetentionPolicy),
		requests:   make(map[string]*compliance.DeletionRequest),
		now:        time.Now,
	}
}

// Backend implements compliance.Storage.
func (s *MemoryStorage) Backend() string { return "memory" }

// Ping implements compliance.Storage.
func (s *MemoryStorage) Ping(ctx context.Context) error { return ctx.Err() }

// Close implements compliance.Storage.
func (s *MemoryStorage) Close() error { return nil }

// InsertDetection implements compliance.DetectionStore.
func (s *MemoryStorage) InsertDetection(ctx context.Context, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.detections[rec.ID]; exists {
		return compliance.NewStorageError("memory", "insert_detection", errDuplicate(rec.ID))
	}
	now := s.now().UTC()
	rec.Version = 1
	rec.CreatedAt = now
	rec.UpdatedAt = now
	s.detections[rec.ID] = rec.Clone()
	s.appendLocked(entry)
	return nil
}

// GetDetection implements compliance.DetectionStore.
func (s *MemoryStorage) GetDetection(ctx context.Context, id string) (*compliance.DetectionRecord, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	rec, ok := s.detections[id]
	if !ok {
		return nil, compliance.NewNotFoundError("detection", id)
	}
	return rec.Clone(), nil
}

// QueryDetections implements compliance.DetectionStore.
func (s *MemoryStorage) QueryDetections(ctx context.Context, q *compliance.DetectionQuery) ([]*compliance.DetectionRecord, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.RLock()
	matched := s.matchDetectionsLocked(q)
	s.mu.RUnlock()

	return paginate(matched, q.Offset, q.Limit), nil
}

// CountDetections implements compliance.DetectionStore.
func (s *MemoryStorage) CountDetections(ctx context.Context, q *compliance.DetectionQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	unbounded := *q
	unbounded.AfterExpiresAt = nil
	unbounded.AfterID = ""
	return int64(len(s.matchDetectionsLocked(&unbounded))), nil
}

// UpdateDetection implements compliance.DetectionStore.
func (s *MemoryStorage) UpdateDetection(ctx context.Context, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.updateDetectionLocked(rec, entry)
}

func (s *MemoryStorage) updateDetectionLocked(rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	stored, ok := s.detections[rec.ID]
	if !ok {
		return compliance.NewNotFoundError("detection", rec.ID)
	}
	if stored.Version != rec.Version {
		return compliance.NewConcurrencyConflictError("detection", rec.ID, rec.Version)
	}

	updated := rec.Clone()
	// Identity, classification and expiration are immutable after ingestion.
	updated.UserID = stored.UserID
	updated.PIIType = stored.PIIType
	updated.Frameworks = append([]string(nil), stored.Frameworks...)
	updated.DetectedAt = stored.DetectedAt
	updated.ExpiresAt = stored.ExpiresAt
	updated.ValueHash = stored.ValueHash
	updated.ContextHash = stored.ContextHash
	updated.CreatedAt = stored.CreatedAt
	updated.Version = stored.Version + 1
	updated.UpdatedAt = s.now().UTC()

	s.detections[rec.ID] = updated
	s.appendLocked(entry)

	rec.Version = updated.Version
	rec.UpdatedAt = updated.UpdatedAt
	return nil
}

// EraseForRequest implements compliance.RequestStore.
func (s *MemoryStorage) EraseForRequest(ctx context.Context, requestID string, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	req, ok := s.requests[requestID]
	if !ok {
		return compliance.NewNotFoundError("deletion_request", requestID)
	}
	if req.Status != compliance.StatusProcessing {
		return compliance.NewInvalidTransitionError("deletion_request", requestID, string(req.Status), string(compliance.StatusProcessing))
	}
	if err := s.updateDetectionLocked(rec, entry); err != nil {
		return err
	}

	updated := req.Clone()
	updated.RecordsDeleted++
	updated.Version++
	updated.UpdatedAt = s.now().UTC()
	s.requests[requestID] = updated
	return nil
}

func (s *MemoryStorage) matchDetectionsLocked(q *compliance.DetectionQuery) []*compliance.DetectionRecord {
	var out []*compliance.DetectionRecord
	for _, rec := range s.detections {
		if matchesDetection(rec, q) {
			out = append(out, rec.Clone())
		}
	}

	switch q.Order {
	case compliance.OrderExpiresAsc:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].ExpiresAt.Equal(out[j].ExpiresAt) {
				return out[i].ExpiresAt.Before(out[j].ExpiresAt)
			}
			return out[i].ID < out[j].ID
		})
	default:
		sort.Slice(out, func(i, j int) bool {
			if !out[i].DetectedAt.Equal(out[j].DetectedAt) {
				return out[i].DetectedAt.After(out[j].DetectedAt)
			}
			return out[i].ID < out[j].ID
		})
	}
	return out
}

// matchesDetection checks if a record matches the query filters.
func matchesDetection(rec *compliance.DetectionRecord, q *compliance.DetectionQuery) bool {
	switch {
	case q.DeletedOnly && rec.DeletedAt == nil:
		return false
	case !q.DeletedOnly && !q.IncludeDeleted && rec.DeletedAt != nil:
		return false
	}

	if q.UserID != "" && rec.UserID != q.UserID {
		return false
	}
	if q.DocumentID != "" && rec.DocumentID != q.DocumentID {
		return false
	}
	if q.HoneyJarID != "" && rec.HoneyJarID != q.HoneyJarID {
		return false
	}
	if len(q.PIITypes) > 0 && !contains(q.PIITypes, rec.PIIType) {
		return false
	}
	if q.RiskLevel != "" && rec.RiskLevel != q.RiskLevel {
		return false
	}
	if q.Framework != "" && !contains(rec.Frameworks, q.Framework) {
		return false
	}
	if q.ReviewStatus != "" && rec.ReviewStatus != q.ReviewStatus {
		return false
	}
	if q.FlaggedOnly && !rec.FlaggedForReview {
		return false
	}
	if q.DeletionRequestID != "" && rec.DeletionRequestID != q.DeletionRequestID {
		return false
	}
	if q.DetectedFrom != nil && rec.DetectedAt.Before(*q.DetectedFrom) {
		return false
	}
	if q.DetectedTo != nil && rec.DetectedAt.After(*q.DetectedTo) {
		return false
	}
	if q.ExpiresFrom != nil && rec.ExpiresAt.Before(*q.ExpiresFrom) {
		return false
	}
	if q.ExpiresTo != nil && rec.ExpiresAt.After(*q.ExpiresTo) {
		return false
	}
	if q.Order == compliance.OrderExpiresAsc && q.AfterExpiresAt != nil {
		if rec.ExpiresAt.Before(*q.AfterExpiresAt) {
			return false
		}
		if rec.ExpiresAt.Equal(*q.AfterExpiresAt) && rec.ID <= q.AfterID {
			return false
		}
	}
	return true
}

// UpsertPolicy implements compliance.PolicyStore.
func (s *MemoryStorage) UpsertPolicy(ctx context.Context, p *compliance.RetentionPolicy, entry *compliance.AuditEntry) (*compliance.RetentionPolicy, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	now := s.now().UTC()
	stored := *p
	if existing, ok := s.policies[p.Key()]; ok {
		stored.ID = existing.ID
		stored.CreatedAt = existing.CreatedAt
	} else {
		if stored.ID == "" {
			stored.ID = uuid.New().String()
		}
		stored.CreatedAt = now
	}
	if stored.EffectiveDate.IsZero() {
		stored.EffectiveDate = now
	}
	stored.UpdatedAt = now
	s.policies[p.Key()] = &stored

	if entry != nil {
		entry.PolicyID = stored.ID
	}
	s.appendLocked(entry)

	out := stored
	return &out, nil
}

// GetPolicy implements compliance.PolicyStore.
func (s *MemoryStorage) GetPolicy(ctx context.Context, framework, piiType string) (*compliance.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	p, ok := s.policies[compliance.PolicyKey{Framework: framework, PIIType: piiType}]
	if !ok {
		return nil, compliance.NewNotFoundError("policy", policyLabel(framework, piiType))
	}
	out := *p
	return &out, nil
}

// ListPolicies implements compliance.PolicyStore.
func (s *MemoryStorage) ListPolicies(ctx context.Context) ([]*compliance.RetentionPolicy, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	out := make([]*compliance.RetentionPolicy, 0, len(s.policies))
	for _, p := range s.policies {
		c := *p
		out = append(out, &c)
	}
	sort.Slice(out, func(i, j int) bool {
		if out[i].Framework != out[j].Framework {
			return out[i].Framework < out[j].Framework
		}
		return out[i].PIIType < out[j].PIIType
	})
	return out, nil
}

// DeletePolicy implements compliance.PolicyStore.
func (s *MemoryStorage) DeletePolicy(ctx context.Context, framework, piiType string, entry *compliance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	key := compliance.PolicyKey{Framework: framework, PIIType: piiType}
	p, ok := s.policies[key]
	if !ok {
		return compliance.NewNotFoundError("policy", policyLabel(framework, piiType))
	}
	delete(s.policies, key)
	if entry != nil {
		entry.PolicyID = p.ID
	}
	s.appendLocked(entry)
	return nil
}

// InsertRequest implements compliance.RequestStore.
func (s *MemoryStorage) InsertRequest(ctx context.Context, r *compliance.DeletionRequest, entry *compliance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	if _, exists := s.requests[r.ID]; exists {
		return compliance.NewStorageError("memory", "insert_request", errDuplicate(r.ID))
	}
	now := s.now().UTC()
	r.Version = 1
	r.CreatedAt = now
	r.UpdatedAt = now
	s.requests[r.ID] = r.Clone()
	s.appendLocked(entry)
	return nil
}

// GetRequest implements compliance.RequestStore.
func (s *MemoryStorage) GetRequest(ctx context.Context, id string) (*compliance.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	r, ok := s.requests[id]
	if !ok {
		return nil, compliance.NewNotFoundError("deletion_request", id)
	}
	return r.Clone(), nil
}

// GetRequestByTokenHash implements compliance.RequestStore.
func (s *MemoryStorage) GetRequestByTokenHash(ctx context.Context, tokenHash string) (*compliance.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	for _, r := range s.requests {
		if tokenHash != "" && r.VerificationTokenHash == tokenHash {
			return r.Clone(), nil
		}
	}
	return nil, compliance.NewNotFoundError("deletion_request", "token")
}

// ListRequests implements compliance.RequestStore.
func (s *MemoryStorage) ListRequests(ctx context.Context, q *compliance.RequestQuery) ([]*compliance.DeletionRequest, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*compliance.DeletionRequest
	for _, r := range s.requests {
		if q.Status != "" && r.Status != q.Status {
			continue
		}
		if q.Requester != "" && r.Requester != q.Requester {
			continue
		}
		if q.Type != "" && r.Type != q.Type {
			continue
		}
		if q.DeadlineBefore != nil && !r.DeadlineAt.Before(*q.DeadlineBefore) {
			continue
		}
		out = append(out, r.Clone())
	}
	sort.Slice(out, func(i, j int) bool {
		if !out[i].CreatedAt.Equal(out[j].CreatedAt) {
			return out[i].CreatedAt.After(out[j].CreatedAt)
		}
		return out[i].ID < out[j].ID
	})
	return paginate(out, q.Offset, q.Limit), nil
}

// UpdateRequest implements compliance.RequestStore.
func (s *MemoryStorage) UpdateRequest(ctx context.Context, r *compliance.DeletionRequest, entry *compliance.AuditEntry) error {
	if err := ctx.Err(); err != nil {
		return err
	}
	s.mu.Lock()
	defer s.mu.Unlock()

	stored, ok := s.requests[r.ID]
	if !ok {
		return compliance.NewNotFoundError("deletion_request", r.ID)
	}
	if stored.Version != r.Version {
		return compliance.NewConcurrencyConflictError("deletion_request", r.ID, r.Version)
	}

	updated := r.Clone()
	updated.CreatedAt = stored.CreatedAt
	updated.Version = stored.Version + 1
	updated.UpdatedAt = s.now().UTC()
	s.requests[r.ID] = updated
	s.appendLocked(entry)

	r.Version = updated.Version
	r.UpdatedAt = updated.UpdatedAt
	return nil
}

// AppendAudit implements compliance.AuditStore.
func (s *MemoryStorage) AppendAudit(ctx context.Context, entry *compliance.AuditEntry) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	s.appendLocked(entry)
	return nil
}

func (s *MemoryStorage) appendLocked(entry *compliance.AuditEntry) {
	if entry == nil {
		return
	}
	prepareEntry(entry, s.now)
	c := *entry
	c.Details = cloneDetails(entry.Details)
	s.audit = append(s.audit, &c)
}

// QueryAudit implements compliance.AuditStore.
func (s *MemoryStorage) QueryAudit(ctx context.Context, q *compliance.AuditQuery) ([]*compliance.AuditEntry, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var out []*compliance.AuditEntry
	for _, e := range s.audit {
		if matchesAudit(e, q) {
			c := *e
			c.Details = cloneDetails(e.Details)
			out = append(out, &c)
		}
	}
	return paginate(out, q.Offset, q.Limit), nil
}

// CountAudit implements compliance.AuditStore.
func (s *MemoryStorage) CountAudit(ctx context.Context, q *compliance.AuditQuery) (int64, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var n int64
	for _, e := range s.audit {
		if matchesAudit(e, q) {
			n++
		}
	}
	return n, nil
}

func matchesAudit(e *compliance.AuditEntry, q *compliance.AuditQuery) bool {
	if q.EventType != "" && e.EventType != q.EventType {
		return false
	}
	if q.DetectionRecordID != "" && e.DetectionRecordID != q.DetectionRecordID {
		return false
	}
	if q.DeletionRequestID != "" && e.DeletionRequestID != q.DeletionRequestID {
		return false
	}
	if q.Actor != "" && e.Actor != q.Actor {
		return false
	}
	if q.ComplianceImpact != "" && e.ComplianceImpact != q.ComplianceImpact {
		return false
	}
	if q.From != nil && e.Timestamp.Before(*q.From) {
		return false
	}
	if q.To != nil && e.Timestamp.After(*q.To) {
		return false
	}
	return true
}
