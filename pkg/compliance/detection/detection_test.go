package detection

import (
	"context"
	"errors"
	"math"
	"testing"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/compliance/storage"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

var fixedNow = time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)

func newTestService(t *testing.T, cfg Config) (*Service, *storage.MemoryStorage) {
	t.Helper()
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	reg := policy.NewRegistry(store, policy.NewCache(store, time.Minute, nil), policy.NewCalculator(policy.DefaultFallbackDays))
	if _, err := reg.SeedDefaults(ctx); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if _, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "hipaa", PIIType: "lab_result", RetentionDays: 1825, GracePeriodDays: 30, AutoDeletion: true, Active: true}); err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	svc := NewService(store, reg, cfg, WithClock(func() time.Time { return fixedNow }))
	return svc, store
}

func validInput() *Input {
	return &Input{
		PIIType:         "email",
		RiskLevel:       "medium",
		ConfidenceScore: 92.5,
		Start:           10,
		End:             30,
		UserID:          "user-1",
		Frameworks:      []string{"gdpr"},
		DetectionMode:   "general",
		ValueHash:       compliance.HashString("alice@example.com"),
		ContextHash:     compliance.HashString("contact alice@example.com today"),
	}
}

func TestIngest_ComputesExpiration(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	tests := []struct {
		name       string
		frameworks []string
		piiType    string
		detectedAt time.Time
		want       time.Time
	}{
		{
			name:       "gdpr default",
			frameworks: []string{"gdpr"},
			piiType:    "person_name",
			detectedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			want:       time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
		},
		{
			name:       "hipaa specific and gdpr default take the minimum",
			frameworks: []string{"hipaa", "gdpr"},
			piiType:    "lab_result",
			detectedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			want:       time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC).Add(1095 * 24 * time.Hour),
		},
		{
			name:       "pci credit card expires immediately",
			frameworks: []string{"pci_dss"},
			piiType:    "credit_card",
			detectedAt: time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
			want:       time.Date(2025, 2, 3, 4, 5, 6, 0, time.UTC),
		},
		{
			name:       "unknown framework falls back",
			frameworks: []string{"soc2"},
			piiType:    "email",
			detectedAt: time.Date(2025, 1, 1, 0, 0, 0, 0, time.UTC),
			want:       time.Date(2028, 1, 1, 0, 0, 0, 0, time.UTC),
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			in.Frameworks = tt.frameworks
			in.PIIType = tt.piiType
			in.DetectedAt = tt.detectedAt

			rec, err := svc.Ingest(ctx, in)
			if err != nil {
				t.Fatalf("ingest failed: %v", err)
			}
			if !rec.ExpiresAt.Equal(tt.want) {
				t.Errorf("expected expires_at %v, got %v", tt.want, rec.ExpiresAt)
			}
			if rec.ID == "" || rec.Version != 1 {
				t.Errorf("expected stored record with id and version 1, got %+v", rec)
			}
		})
	}
}

func TestIngest_WritesAuditEntry(t *testing.T) {
	svc, store := newTestService(t, Config{})
	ctx := logging.WithRequestID(context.Background(), "req-42")

	rec, err := svc.Ingest(ctx, validInput())
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if !rec.DetectedAt.Equal(fixedNow) {
		t.Errorf("expected detected_at to default to now, got %v", rec.DetectedAt)
	}

	entries, err := store.QueryAudit(ctx, &compliance.AuditQuery{DetectionRecordID: rec.ID})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 1 {
		t.Fatalf("expected 1 audit entry, got %d", len(entries))
	}
	e := entries[0]
	if e.EventType != compliance.EventDetectionIngested || e.ActorType != compliance.ActorDetector {
		t.Errorf("unexpected audit entry %+v", e)
	}
	if e.RequestID != "req-42" {
		t.Errorf("expected request id carried into audit, got %q", e.RequestID)
	}
	if e.PolicyID == "" {
		t.Error("expected determining policy id on audit entry")
	}
}

func TestIngest_Validation(t *testing.T) {
	svc, store := newTestService(t, Config{RequireFrameworks: true, ExtraPIITypes: []string{"Badge ID"}})
	ctx := context.Background()

	tests := []struct {
		name   string
		mutate func(*Input)
		field  string
	}{
		{"unknown pii type", func(in *Input) { in.PIIType = "shoe_size" }, "pii_type"},
		{"missing pii type", func(in *Input) { in.PIIType = "" }, "pii_type"},
		{"bad risk", func(in *Input) { in.RiskLevel = "critical" }, "risk_level"},
		{"confidence above range", func(in *Input) { in.ConfidenceScore = 100.5 }, "confidence_score"},
		{"confidence below range", func(in *Input) { in.ConfidenceScore = -1 }, "confidence_score"},
		{"confidence NaN", func(in *Input) { in.ConfidenceScore = math.NaN() }, "confidence_score"},
		{"negative start", func(in *Input) { in.Start = -1 }, "start"},
		{"empty span", func(in *Input) { in.End = in.Start }, "end"},
		{"missing user", func(in *Input) { in.UserID = " " }, "user_id"},
		{"raw value instead of hash", func(in *Input) { in.ValueHash = "alice@example.com" }, "value_hash"},
		{"bad context hash", func(in *Input) { in.ContextHash = "abc" }, "context_hash"},
		{"bad mode", func(in *Input) { in.DetectionMode = "forensic" }, "detection_mode"},
		{"no frameworks", func(in *Input) { in.Frameworks = []string{" "} }, "compliance_frameworks"},
		{"future detection", func(in *Input) { in.DetectedAt = fixedNow.Add(time.Hour) }, "detected_at"},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			in := validInput()
			tt.mutate(in)

			_, err := svc.Ingest(ctx, in)
			var verr *compliance.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			found := false
			for _, fe := range verr.Errors {
				if fe.Field == tt.field {
					found = true
				}
			}
			if !found {
				t.Errorf("expected error on %s, got %v", tt.field, verr.Errors)
			}
		})
	}

	n, err := store.CountDetections(ctx, &compliance.DetectionQuery{IncludeDeleted: true})
	if err != nil {
		t.Fatal(err)
	}
	if n != 0 {
		t.Errorf("rejected inputs must not be stored, found %d", n)
	}

	in := validInput()
	in.PIIType = "badge-id"
	if _, err := svc.Ingest(ctx, in); err != nil {
		t.Errorf("expected configured extra type to be accepted: %v", err)
	}
}

func TestIngest_Normalizes(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	in := validInput()
	in.PIIType = "Credit-Card"
	in.RiskLevel = "HIGH"
	in.Frameworks = []string{"PCI-DSS", "pci_dss", "GDPR"}
	in.DetectionMode = ""
	in.ValueHash = "ABCDEF" + in.ValueHash[6:]

	rec, err := svc.Ingest(context.Background(), in)
	if err != nil {
		t.Fatalf("ingest failed: %v", err)
	}
	if rec.PIIType != "credit_card" || rec.RiskLevel != compliance.RiskHigh {
		t.Errorf("unexpected normalization %s/%s", rec.PIIType, rec.RiskLevel)
	}
	if len(rec.Frameworks) != 2 || rec.Frameworks[0] != "pci_dss" || rec.Frameworks[1] != "gdpr" {
		t.Errorf("unexpected frameworks %v", rec.Frameworks)
	}
	if rec.DetectionMode != compliance.ModeGeneral {
		t.Errorf("expected general mode default, got %s", rec.DetectionMode)
	}
	if rec.ValueHash[:6] != "abcdef" {
		t.Errorf("expected lower-case hash, got %s", rec.ValueHash)
	}
}

func TestQuery(t *testing.T) {
	svc, store := newTestService(t, Config{})
	ctx := context.Background()

	for i, user := range []string{"u1", "u1", "u2"} {
		in := validInput()
		in.UserID = user
		in.DetectedAt = fixedNow.Add(-time.Duration(i) * time.Hour)
		if _, err := svc.Ingest(ctx, in); err != nil {
			t.Fatal(err)
		}
	}

	page, err := svc.Query(ctx, compliance.DetectionQuery{UserID: "u1"})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 2 || len(page.Records) != 2 || page.Limit != DefaultQueryLimit {
		t.Errorf("unexpected page %+v", page)
	}

	// Soft-deleted records are hidden by default.
	rec := page.Records[0]
	deleted := fixedNow
	rec.DeletedAt = &deleted
	if err := store.UpdateDetection(ctx, rec, nil); err != nil {
		t.Fatal(err)
	}
	page, err = svc.Query(ctx, compliance.DetectionQuery{UserID: "u1"})
	if err != nil {
		t.Fatal(err)
	}
	if page.Total != 1 {
		t.Errorf("expected deleted record excluded, got %d", page.Total)
	}

	if _, err := svc.Query(ctx, compliance.DetectionQuery{Limit: -1}); !compliance.IsValidation(err) {
		t.Errorf("expected validation error for negative limit, got %v", err)
	}
	if _, err := svc.Query(ctx, compliance.DetectionQuery{RiskLevel: "severe"}); !compliance.IsValidation(err) {
		t.Errorf("expected validation error for bad risk, got %v", err)
	}
}

func TestQuery_DoesNotRewriteCallerTypes(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()
	if _, err := svc.Ingest(ctx, validInput()); err != nil {
		t.Fatal(err)
	}

	types := []string{"EMAIL", "Credit-Card"}
	page, err := svc.Query(ctx, compliance.DetectionQuery{PIITypes: types})
	if err != nil {
		t.Fatalf("query failed: %v", err)
	}
	if page.Total != 1 {
		t.Errorf("expected normalized type filter to match 1 record, got %d", page.Total)
	}
	if types[0] != "EMAIL" || types[1] != "Credit-Card" {
		t.Errorf("caller slice was modified: %v", types)
	}
}

func TestReviewWorkflow(t *testing.T) {
	svc, store := newTestService(t, Config{})
	ctx := logging.WithActor(context.Background(), "dpo@example.com", compliance.ActorAdmin)

	rec, err := svc.Ingest(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}

	flagged, err := svc.FlagForReview(ctx, rec.ID, FlagInput{Reason: "possible misclassification", SeverityOverride: "high"})
	if err != nil {
		t.Fatalf("flag failed: %v", err)
	}
	if flagged.ReviewStatus != compliance.ReviewPending || !flagged.FlaggedForReview {
		t.Errorf("expected pending flagged record, got %s", flagged.ReviewStatus)
	}
	if flagged.FlaggedBy != "dpo@example.com" || flagged.FlaggedAt == nil {
		t.Errorf("expected flag stamped with actor and time, got %q", flagged.FlaggedBy)
	}
	if flagged.SeverityOverride != compliance.RiskHigh {
		t.Errorf("expected severity override, got %s", flagged.SeverityOverride)
	}

	// Flagging again keeps the open status.
	again, err := svc.FlagForReview(ctx, rec.ID, FlagInput{Reason: "second opinion"})
	if err != nil {
		t.Fatal(err)
	}
	if again.ReviewStatus != compliance.ReviewPending {
		t.Errorf("expected pending, got %s", again.ReviewStatus)
	}

	inReview, err := svc.StartReview(ctx, rec.ID)
	if err != nil {
		t.Fatalf("start review failed: %v", err)
	}
	if inReview.ReviewStatus != compliance.ReviewInReview {
		t.Errorf("expected in_review, got %s", inReview.ReviewStatus)
	}
	if _, err := svc.StartReview(ctx, rec.ID); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition starting twice, got %v", err)
	}

	resolved, err := svc.ResolveReview(ctx, rec.ID, ResolveInput{Decision: compliance.ReviewResolved, AdminNotes: "confirmed"})
	if err != nil {
		t.Fatalf("resolve failed: %v", err)
	}
	if resolved.ReviewStatus != compliance.ReviewResolved || resolved.ReviewedAt == nil || resolved.ReviewedBy != "dpo@example.com" {
		t.Errorf("unexpected resolved record %+v", resolved)
	}

	_, err = svc.ResolveReview(ctx, rec.ID, ResolveInput{Decision: compliance.ReviewDismissed})
	var terr *compliance.InvalidTransitionError
	if !errors.As(err, &terr) {
		t.Fatalf("expected InvalidTransitionError resolving a resolved review, got %v", err)
	}
	if terr.From != string(compliance.ReviewResolved) {
		t.Errorf("expected from resolved, got %s", terr.From)
	}

	// Flagging a closed review reopens it.
	reopened, err := svc.FlagForReview(ctx, rec.ID, FlagInput{Reason: "new evidence"})
	if err != nil {
		t.Fatal(err)
	}
	if reopened.ReviewStatus != compliance.ReviewPending || reopened.ReviewedAt != nil {
		t.Errorf("expected reopened pending review, got %+v", reopened)
	}

	entries, err := store.QueryAudit(ctx, &compliance.AuditQuery{DetectionRecordID: rec.ID})
	if err != nil {
		t.Fatal(err)
	}
	want := []string{
		compliance.EventDetectionIngested,
		compliance.EventReviewFlagged,
		compliance.EventReviewFlagged,
		compliance.EventReviewStarted,
		compliance.EventReviewResolved,
		compliance.EventReviewFlagged,
	}
	if len(entries) != len(want) {
		t.Fatalf("expected %d audit entries, got %d", len(want), len(entries))
	}
	for i, e := range entries {
		if e.EventType != want[i] {
			t.Errorf("entry %d: expected %s, got %s", i, want[i], e.EventType)
		}
		if i > 0 && e.Actor != "dpo@example.com" {
			t.Errorf("entry %d: expected admin actor, got %s", i, e.Actor)
		}
	}
}

func TestReview_Errors(t *testing.T) {
	svc, store := newTestService(t, Config{})
	ctx := context.Background()

	if _, err := svc.FlagForReview(ctx, "missing", FlagInput{Reason: "x"}); !compliance.IsNotFound(err) {
		t.Errorf("expected NotFound, got %v", err)
	}

	rec, err := svc.Ingest(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	if _, err := svc.ResolveReview(ctx, rec.ID, ResolveInput{Decision: compliance.ReviewResolved}); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition resolving an unflagged record, got %v", err)
	}
	if _, err := svc.ResolveReview(ctx, rec.ID, ResolveInput{Decision: "approved"}); !compliance.IsValidation(err) {
		t.Errorf("expected validation error for bad decision, got %v", err)
	}
	if _, err := svc.FlagForReview(ctx, rec.ID, FlagInput{SeverityOverride: "urgent"}); !compliance.IsValidation(err) {
		t.Errorf("expected validation error for bad severity, got %v", err)
	}

	stored, err := store.GetDetection(ctx, rec.ID)
	if err != nil {
		t.Fatal(err)
	}
	now := fixedNow
	stored.DeletedAt = &now
	if err := store.UpdateDetection(ctx, stored, nil); err != nil {
		t.Fatal(err)
	}
	if _, err := svc.FlagForReview(ctx, rec.ID, FlagInput{Reason: "late"}); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition flagging a deleted record, got %v", err)
	}
	processed := true
	if _, err := svc.UpdateFlags(ctx, rec.ID, FlagsUpdate{Processed: &processed}); !compliance.IsInvalidTransition(err) {
		t.Errorf("expected invalid transition updating a deleted record, got %v", err)
	}
}

func TestUpdateFlags(t *testing.T) {
	svc, _ := newTestService(t, Config{})
	ctx := context.Background()

	rec, err := svc.Ingest(ctx, validInput())
	if err != nil {
		t.Fatal(err)
	}
	yes := true
	updated, err := svc.UpdateFlags(ctx, rec.ID, FlagsUpdate{Notified: &yes})
	if err != nil {
		t.Fatalf("update failed: %v", err)
	}
	if !updated.Notified || updated.Processed {
		t.Errorf("expected only notified set, got %+v", updated)
	}
	if updated.Version != 2 {
		t.Errorf("expected version 2, got %d", updated.Version)
	}
}

func TestPIITypes(t *testing.T) {
	svc := NewService(storage.NewMemoryStorage(), nil, Config{ExtraPIITypes: []string{"employee_id"}})
	types := svc.PIITypes()
	found := false
	for i, tt := range types {
		if tt == "employee_id" {
			found = true
		}
		if i > 0 && types[i-1] > tt {
			t.Fatalf("types not sorted: %v", types)
		}
	}
	if !found {
		t.Error("expected extra type in list")
	}
}
