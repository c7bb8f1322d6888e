package erasure

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/storage"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

var now = time.Date(2025, 3, 1, 9, 0, 0, 0, time.UTC)

func insert(t *testing.T, store compliance.DetectionStore, id, user, piiType string, frameworks []string, detected time.Time) {
	t.Helper()
	rec := &compliance.DetectionRecord{
		ID:              id,
		UserID:          user,
		PIIType:         piiType,
		RiskLevel:       compliance.RiskHigh,
		ConfidenceScore: 99,
		SpanStart:       3,
		SpanEnd:         9,
		ValueHash:       compliance.HashString(id),
		Frameworks:      frameworks,
		DetectionMode:   compliance.ModeGeneral,
		DetectedAt:      detected,
		ExpiresAt:       detected.Add(1095 * 24 * time.Hour),
	}
	if err := store.InsertDetection(context.Background(), rec, nil); err != nil {
		t.Fatalf("insert %s failed: %v", id, err)
	}
}

func seedSubject(t *testing.T, store compliance.DetectionStore) {
	t.Helper()
	insert(t, store, "alice-email", "alice", "email", []string{"gdpr"}, now.Add(-72*time.Hour))
	insert(t, store, "alice-phone", "alice", "phone", []string{"gdpr", "ccpa"}, now.Add(-48*time.Hour))
	insert(t, store, "alice-card", "alice", "credit_card", []string{"pci_dss"}, now.Add(-24*time.Hour))
	insert(t, store, "alice-name", "alice", "person_name", []string{"gdpr"}, now.Add(-12*time.Hour))
	insert(t, store, "bob-email", "bob", "email", []string{"gdpr"}, now.Add(-72*time.Hour))
}

func newTestWorkflow(store Store, cfg *Config) *Workflow {
	return NewWorkflow(store, cfg, WithClock(func() time.Time { return now }))
}

func submitVerified(t *testing.T, w *Workflow, in *SubmitInput) *compliance.DeletionRequest {
	t.Helper()
	sub, err := w.Submit(context.Background(), in)
	if err != nil {
		t.Fatalf("submit failed: %v", err)
	}
	if _, err := w.Verify(context.Background(), sub.VerificationToken); err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	return sub.Request
}

func deletedBy(t *testing.T, store compliance.DetectionStore, requestID string) map[string]bool {
	t.Helper()
	recs, err := store.QueryDetections(context.Background(), &compliance.DetectionQuery{DeletionRequestID: requestID, DeletedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]bool)
	for _, r := range recs {
		out[r.ID] = true
	}
	return out
}

func TestSubmit(t *testing.T) {
	store := storage.NewMemoryStorage()
	w := newTestWorkflow(store, nil)
	ctx := logging.WithActor(context.Background(), "privacy-desk", compliance.ActorAdmin)

	tests := []struct {
		name         string
		typ          compliance.RequestType
		wantDeadline time.Time
	}{
		{"gdpr", compliance.RequestGDPRErasure, now.AddDate(0, 0, 30)},
		{"ccpa", compliance.RequestCCPADeletion, now.AddDate(0, 0, 45)},
		{"manual", compliance.RequestManual, now.AddDate(0, 0, 30)},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			sub, err := w.Submit(ctx, &SubmitInput{Type: tt.typ, Requester: "alice"})
			if err != nil {
				t.Fatalf("submit failed: %v", err)
			}
			req := sub.Request
			if req.Status != compliance.StatusPending {
				t.Errorf("expected pending, got %s", req.Status)
			}
			if req.Scope != compliance.ScopeAllData {
				t.Errorf("expected all_data default scope, got %s", req.Scope)
			}
			if !req.DeadlineAt.Equal(tt.wantDeadline) {
				t.Errorf("expected deadline %v, got %v", tt.wantDeadline, req.DeadlineAt)
			}
			if !req.VerificationRequired {
				t.Error("expected verification to be required by default")
			}
			if len(sub.VerificationToken) != 64 {
				t.Errorf("expected 32-byte hex token, got %q", sub.VerificationToken)
			}

			stored, err := store.GetRequest(ctx, req.ID)
			if err != nil {
				t.Fatal(err)
			}
			if stored.VerificationTokenHash == sub.VerificationToken {
				t.Error("raw token must not be stored")
			}
			if stored.VerificationTokenHash != compliance.HashString(sub.VerificationToken) {
				t.Error("expected token hash to be stored")
			}
			if stored.SubmittedBy != "privacy-desk" {
				t.Errorf("expected submitted_by from actor, got %q", stored.SubmittedBy)
			}

			entries, err := store.QueryAudit(ctx, &compliance.AuditQuery{DeletionRequestID: req.ID})
			if err != nil {
				t.Fatal(err)
			}
			if len(entries) != 1 || entries[0].EventType != compliance.EventRequestSubmitted {
				t.Errorf("expected one submitted audit entry, got %+v", entries)
			}
		})
	}
}

func TestSubmit_Validation(t *testing.T) {
	w := newTestWorkflow(storage.NewMemoryStorage(), nil)
	from := now.Add(-time.Hour)
	to := now.Add(-2 * time.Hour)

	tests := []struct {
		name  string
		in    SubmitInput
		field string
	}{
		{"bad type", SubmitInput{Type: "deletion", Requester: "alice"}, "request_type"},
		{"missing requester", SubmitInput{Type: compliance.RequestGDPRErasure}, "requester"},
		{"bad scope", SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice", Scope: "everything"}, "scope"},
		{"types scope without types", SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice", Scope: compliance.ScopeSpecificTypes, PIITypes: []string{" "}}, "pii_types"},
		{"range scope without bounds", SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice", Scope: compliance.ScopeDateRange, From: &from}, "from"},
		{"inverted range", SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice", Scope: compliance.ScopeDateRange, From: &from, To: &to}, "to"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := w.Submit(context.Background(), &tt.in)
			var verr *compliance.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Errors[0].Field != tt.field {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Errors)
			}
		})
	}
}

func TestProcess_RequiresVerification(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)

	sub, err := w.Submit(context.Background(), &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	if err != nil {
		t.Fatal(err)
	}

	_, err = w.Process(context.Background(), sub.Request.ID)
	if !compliance.IsInvalidTransition(err) {
		t.Fatalf("expected InvalidTransitionError before verification, got %v", err)
	}
	if got := deletedBy(t, store, sub.Request.ID); len(got) != 0 {
		t.Errorf("expected nothing deleted, got %v", got)
	}

	verified, err := w.Verify(context.Background(), sub.VerificationToken)
	if err != nil {
		t.Fatalf("verify failed: %v", err)
	}
	if verified.VerifiedAt == nil || !verified.VerifiedAt.Equal(now) {
		t.Errorf("expected verified_at stamped, got %v", verified.VerifiedAt)
	}

	entries, err := store.QueryAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventRequestVerified})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 || entries[0].Actor != "alice" || entries[0].ActorType != compliance.ActorRequester {
		t.Errorf("expected verification attributed to requester, got %+v", entries)
	}

	// A second verify is a no-op.
	if _, err := w.Verify(context.Background(), sub.VerificationToken); err != nil {
		t.Errorf("expected repeated verify to succeed, got %v", err)
	}
	if n, _ := store.CountAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventRequestVerified}); n != 1 {
		t.Errorf("expected one verification audit entry, got %d", n)
	}

	if _, err := w.Verify(context.Background(), "not-a-token"); !compliance.IsNotFound(err) {
		t.Errorf("expected NotFound for unknown token, got %v", err)
	}
}

func TestProcess_VerificationOptional(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedSubject(t, store)
	cfg := DefaultConfig()
	cfg.RequireVerification[compliance.RequestManual] = false
	w := newTestWorkflow(store, cfg)

	sub, err := w.Submit(context.Background(), &SubmitInput{Type: compliance.RequestManual, Requester: "bob"})
	if err != nil {
		t.Fatal(err)
	}
	if sub.Request.VerificationRequired {
		t.Fatal("expected verification to be optional for manual requests")
	}
	req, err := w.Process(context.Background(), sub.Request.ID)
	if err != nil {
		t.Fatalf("process failed: %v", err)
	}
	if req.Status != compliance.StatusCompleted || req.RecordsDeleted != 1 {
		t.Errorf("unexpected request %+v", req)
	}
}

func TestProcess_Scopes(t *testing.T) {
	from := now.Add(-50 * time.Hour)
	to := now.Add(-20 * time.Hour)

	tests := []struct {
		name string
		in   SubmitInput
		want []string
	}{
		{
			name: "all data",
			in:   SubmitInput{Scope: compliance.ScopeAllData},
			want: []string{"alice-email", "alice-phone", "alice-card", "alice-name"},
		},
		{
			name: "specific types",
			in:   SubmitInput{Scope: compliance.ScopeSpecificTypes, PIITypes: []string{"Email", "credit-card"}},
			want: []string{"alice-email", "alice-card"},
		},
		{
			name: "date range",
			in:   SubmitInput{Scope: compliance.ScopeDateRange, From: &from, To: &to},
			want: []string{"alice-phone", "alice-card"},
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			seedSubject(t, store)
			w := newTestWorkflow(store, &Config{BatchSize: 1, RequireVerification: map[compliance.RequestType]bool{}, ResponseWindowDays: map[compliance.RequestType]int{}})

			in := tt.in
			in.Type = compliance.RequestGDPRErasure
			in.Requester = "alice"
			req := submitVerified(t, w, &in)

			done, err := w.Process(context.Background(), req.ID)
			if err != nil {
				t.Fatalf("process failed: %v", err)
			}
			if done.Status != compliance.StatusCompleted || done.CompletedAt == nil {
				t.Fatalf("expected completed request, got %s", done.Status)
			}
			if done.RecordsDeleted != len(tt.want) {
				t.Errorf("expected %d records deleted, got %d", len(tt.want), done.RecordsDeleted)
			}

			got := deletedBy(t, store, req.ID)
			for _, id := range tt.want {
				if !got[id] {
					t.Errorf("expected %s erased", id)
				}
			}
			if len(got) != len(tt.want) {
				t.Errorf("expected only scoped records erased, got %v", got)
			}
			bob, err := store.GetDetection(context.Background(), "bob-email")
			if err != nil {
				t.Fatal(err)
			}
			if bob.DeletedAt != nil {
				t.Error("another user's record was erased")
			}

			n, err := store.CountAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventErasureDeletion, DeletionRequestID: req.ID})
			if err != nil {
				t.Fatal(err)
			}
			if int(n) != len(tt.want) {
				t.Errorf("expected %d erasure audit entries, got %d", len(tt.want), n)
			}
		})
	}
}

func TestProcess_Report(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	done, err := w.Process(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}

	report := done.Report
	if report == nil {
		t.Fatal("expected deletion report")
	}
	if report.Total != 4 || report.ByPIIType["email"] != 1 || report.ByPIIType["credit_card"] != 1 {
		t.Errorf("unexpected report counts %+v", report)
	}
	if report.ByFramework["gdpr"] != 3 || report.ByFramework["ccpa"] != 1 || report.ByFramework["pci_dss"] != 1 {
		t.Errorf("unexpected framework counts %v", report.ByFramework)
	}
	if report.StartedAt == nil || report.CompletedAt == nil {
		t.Error("expected report timestamps")
	}

	entries, err := store.QueryAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventErasureDeletion})
	if err != nil {
		t.Fatal(err)
	}
	for _, e := range entries {
		if e.ComplianceImpact != compliance.ImpactHigh {
			t.Errorf("expected high impact erasure entry, got %s", e.ComplianceImpact)
		}
	}
}

func TestProcess_TerminalStates(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)
	ctx := context.Background()

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	if _, err := w.Process(ctx, req.ID); err != nil {
		t.Fatal(err)
	}

	if _, err := w.Process(ctx, req.ID); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError processing a completed request, got %v", err)
	}
	if _, err := w.Reject(ctx, req.ID, "duplicate"); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError rejecting a completed request, got %v", err)
	}

	other := submitVerified(t, w, &SubmitInput{Type: compliance.RequestCCPADeletion, Requester: "bob"})
	if _, err := w.Reject(ctx, other.ID, ""); !compliance.IsValidation(err) {
		t.Errorf("expected ValidationError for empty reason, got %v", err)
	}
	rejected, err := w.Reject(ctx, other.ID, "identity could not be confirmed")
	if err != nil {
		t.Fatalf("reject failed: %v", err)
	}
	if rejected.Status != compliance.StatusRejected || rejected.Reason == "" {
		t.Errorf("unexpected rejected request %+v", rejected)
	}
	if _, err := w.Process(ctx, other.ID); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected InvalidTransitionError processing a rejected request, got %v", err)
	}

	if _, err := w.Process(ctx, "missing"); !compliance.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}
}

// faultyStore wraps the memory store to inject failures into erasures.
type faultyStore struct {
	*storage.MemoryStorage

	mu      sync.Mutex
	erases  int
	onErase func(n int, rec *compliance.DetectionRecord) error
}

func (f *faultyStore) EraseForRequest(ctx context.Context, requestID string, rec *compliance.DetectionRecord, entry *compliance.AuditEntry) error {
	f.mu.Lock()
	f.erases++
	n := f.erases
	f.mu.Unlock()

	if f.onErase != nil {
		if err := f.onErase(n, rec); err != nil {
			return err
		}
	}
	return f.MemoryStorage.EraseForRequest(ctx, requestID, rec, entry)
}

func TestProcess_ResumesAfterCancel(t *testing.T) {
	store := &faultyStore{MemoryStorage: storage.NewMemoryStorage()}
	seedSubject(t, store)
	w := newTestWorkflow(store, &Config{BatchSize: 2, RequireVerification: map[compliance.RequestType]bool{}, ResponseWindowDays: map[compliance.RequestType]int{}})

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})

	ctx, cancel := context.WithCancel(context.Background())
	store.onErase = func(n int, _ *compliance.DetectionRecord) error {
		if n == 2 {
			cancel()
		}
		return nil
	}

	interrupted, err := w.Process(ctx, req.ID)
	if !errors.Is(err, context.Canceled) {
		t.Fatalf("expected context.Canceled, got %v", err)
	}
	if interrupted.Status != compliance.StatusProcessing {
		t.Fatalf("expected request left processing, got %s", interrupted.Status)
	}
	partial := len(deletedBy(t, store, req.ID))
	if partial == 0 || partial == 4 {
		t.Fatalf("expected a partial erasure, got %d records", partial)
	}

	store.onErase = nil
	done, err := w.Process(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("resume failed: %v", err)
	}
	if done.Status != compliance.StatusCompleted || done.RecordsDeleted != 4 {
		t.Errorf("expected 4 records deleted once, got %d (%s)", done.RecordsDeleted, done.Status)
	}

	n, err := store.CountAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventErasureDeletion})
	if err != nil {
		t.Fatal(err)
	}
	if n != 4 {
		t.Errorf("expected 4 erasure audit entries across both attempts, got %d", n)
	}
	starts, err := store.CountAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventRequestProcessing})
	if err != nil {
		t.Fatal(err)
	}
	if starts != 1 {
		t.Errorf("expected a single processing transition, got %d", starts)
	}
}

func TestProcess_FailureRejects(t *testing.T) {
	store := &faultyStore{MemoryStorage: storage.NewMemoryStorage()}
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	store.onErase = func(_ int, rec *compliance.DetectionRecord) error {
		if rec.ID == "alice-card" {
			return compliance.NewStorageError("memory", "update_detection", errors.New("disk full"))
		}
		return nil
	}

	done, err := w.Process(context.Background(), req.ID)
	if err != nil {
		t.Fatalf("expected failure to be absorbed into the request, got %v", err)
	}
	if done.Status != compliance.StatusRejected {
		t.Fatalf("expected rejected, got %s", done.Status)
	}
	if done.Report == nil || done.Report.FailureReason == "" {
		t.Error("expected failure reason in deletion report")
	}

	card, err := store.GetDetection(context.Background(), "alice-card")
	if err != nil {
		t.Fatal(err)
	}
	if card.DeletedAt != nil {
		t.Error("failed record must stay active")
	}

	if _, err := w.Process(context.Background(), req.ID); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected rejected request to stay closed, got %v", err)
	}
}

func TestProcess_RetriesConflictOnce(t *testing.T) {
	store := &faultyStore{MemoryStorage: storage.NewMemoryStorage()}
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	conflicted := false
	store.onErase = func(_ int, rec *compliance.DetectionRecord) error {
		if rec.ID == "alice-name" && !conflicted {
			conflicted = true
			return compliance.NewConcurrencyConflictError("detection", rec.ID, rec.Version)
		}
		return nil
	}

	done, err := w.Process(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != compliance.StatusCompleted || done.RecordsDeleted != 4 {
		t.Errorf("expected conflict to be retried, got %s with %d", done.Status, done.RecordsDeleted)
	}
}

func TestReject_StopsRunningErasure(t *testing.T) {
	store := &faultyStore{MemoryStorage: storage.NewMemoryStorage()}
	seedSubject(t, store)
	w := newTestWorkflow(store, &Config{BatchSize: 1, RequireVerification: map[compliance.RequestType]bool{}, ResponseWindowDays: map[compliance.RequestType]int{}})
	ctx := context.Background()

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	store.onErase = func(n int, _ *compliance.DetectionRecord) error {
		if n == 2 {
			if _, err := w.Reject(ctx, req.ID, "withdrawn by data subject"); err != nil {
				t.Errorf("reject during processing failed: %v", err)
			}
		}
		return nil
	}

	got, err := w.Process(ctx, req.ID)
	if err != nil {
		t.Fatalf("expected a closed request to end processing without error, got %v", err)
	}
	if got.Status != compliance.StatusRejected || got.Reason != "withdrawn by data subject" {
		t.Fatalf("expected the rejection to stand, got %s (%q)", got.Status, got.Reason)
	}

	erased := deletedBy(t, store, req.ID)
	if len(erased) != 1 {
		t.Errorf("expected erasure to stop after the first record, %d erased", len(erased))
	}
	if got.RecordsDeleted != len(erased) {
		t.Errorf("records_deleted = %d, want %d", got.RecordsDeleted, len(erased))
	}

	active, err := store.CountDetections(ctx, &compliance.DetectionQuery{UserID: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if active != 3 {
		t.Errorf("expected 3 of alice's records to stay active, got %d", active)
	}
}

func TestProcess_RecordsDeletedMatchesErasures(t *testing.T) {
	store := storage.NewMemoryStorage()
	seedSubject(t, store)
	w := newTestWorkflow(store, &Config{BatchSize: 3, RequireVerification: map[compliance.RequestType]bool{}, ResponseWindowDays: map[compliance.RequestType]int{}})

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	done, err := w.Process(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	stored, err := store.GetRequest(context.Background(), req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if n := len(deletedBy(t, store, req.ID)); stored.RecordsDeleted != n || done.RecordsDeleted != n || n != 4 {
		t.Errorf("records_deleted stored=%d returned=%d, erased=%d", stored.RecordsDeleted, done.RecordsDeleted, n)
	}
}

func TestProcess_IgnoresImmediateDeletionFlag(t *testing.T) {
	store := storage.NewMemoryStorage()
	ctx := context.Background()
	for _, fw := range []string{"gdpr", "ccpa", "pci_dss"} {
		p := &compliance.RetentionPolicy{Framework: fw, RetentionDays: 365, AutoDeletion: true, ImmediateDeletionOnRequest: false, Active: true}
		if _, err := store.UpsertPolicy(ctx, p, nil); err != nil {
			t.Fatal(err)
		}
	}
	seedSubject(t, store)
	w := newTestWorkflow(store, nil)

	req := submitVerified(t, w, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	done, err := w.Process(ctx, req.ID)
	if err != nil {
		t.Fatal(err)
	}
	if done.Status != compliance.StatusCompleted || done.RecordsDeleted != 4 {
		t.Errorf("expected all 4 records erased regardless of policy flag, got %s/%d", done.Status, done.RecordsDeleted)
	}
}

func TestListAndOverdue(t *testing.T) {
	store := storage.NewMemoryStorage()
	clock := now
	w := NewWorkflow(store, nil, WithClock(func() time.Time { return clock }))
	ctx := context.Background()

	gdpr, err := w.Submit(ctx, &SubmitInput{Type: compliance.RequestGDPRErasure, Requester: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if _, err := w.Submit(ctx, &SubmitInput{Type: compliance.RequestCCPADeletion, Requester: "bob"}); err != nil {
		t.Fatal(err)
	}

	list, err := w.List(ctx, compliance.RequestQuery{Requester: "alice"})
	if err != nil {
		t.Fatal(err)
	}
	if len(list) != 1 || list[0].ID != gdpr.Request.ID {
		t.Errorf("unexpected list %+v", list)
	}
	if _, err := w.List(ctx, compliance.RequestQuery{Status: "open"}); !compliance.IsValidation(err) {
		t.Errorf("expected ValidationError for bad status, got %v", err)
	}

	overdue, err := w.Overdue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 0 {
		t.Errorf("expected nothing overdue yet, got %d", len(overdue))
	}

	// Past the GDPR window but inside the CCPA one.
	clock = now.AddDate(0, 0, 31)
	overdue, err = w.Overdue(ctx)
	if err != nil {
		t.Fatal(err)
	}
	if len(overdue) != 1 || overdue[0].ID != gdpr.Request.ID {
		t.Errorf("expected the gdpr request overdue, got %+v", overdue)
	}
	if !overdue[0].Overdue(clock) {
		t.Error("expected Overdue() to agree")
	}
}
