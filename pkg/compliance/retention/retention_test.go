package retention

import (
	"context"
	"testing"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/policy"
	"mercator-hq/custodian/pkg/compliance/storage"
)

var now = time.Date(2025, 6, 1, 3, 0, 0, 0, time.UTC)

func days(n int) time.Duration { return time.Duration(n) * 24 * time.Hour }

func newTestRegistry(t *testing.T, store *storage.MemoryStorage) *policy.Registry {
	t.Helper()
	reg := policy.NewRegistry(store, policy.NewCache(store, time.Minute, nil), policy.NewCalculator(policy.DefaultFallbackDays))
	if _, err := reg.SeedDefaults(context.Background()); err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	return reg
}

func insert(t *testing.T, store *storage.MemoryStorage, id, piiType string, frameworks []string, expires time.Time) {
	t.Helper()
	rec := &compliance.DetectionRecord{
		ID:              id,
		UserID:          "user-1",
		PIIType:         piiType,
		RiskLevel:       compliance.RiskMedium,
		ConfidenceScore: 90,
		SpanStart:       0,
		SpanEnd:         5,
		ValueHash:       compliance.HashString(id),
		Frameworks:      frameworks,
		DetectionMode:   compliance.ModeGeneral,
		DetectedAt:      expires.Add(-days(365)),
		ExpiresAt:       expires,
	}
	if err := store.InsertDetection(context.Background(), rec, nil); err != nil {
		t.Fatalf("insert %s failed: %v", id, err)
	}
}

func seedRecords(t *testing.T, store *storage.MemoryStorage) {
	t.Helper()
	insert(t, store, "expired-40d", "email", []string{"gdpr"}, now.Add(-days(40)))
	insert(t, store, "expired-10d", "email", []string{"gdpr"}, now.Add(-days(10)))
	insert(t, store, "not-expired", "email", []string{"gdpr"}, now.Add(days(10)))
	insert(t, store, "privileged", "client_name", []string{"attorney_client"}, now.Add(-days(100)))
	insert(t, store, "fallback", "email", []string{"soc2"}, now.Add(-days(35)))
	insert(t, store, "card", "credit_card", []string{"pci_dss"}, now.Add(-time.Hour))

	insert(t, store, "already-deleted", "email", []string{"gdpr"}, now.Add(-days(60)))
	rec, err := store.GetDetection(context.Background(), "already-deleted")
	if err != nil {
		t.Fatal(err)
	}
	deletedAt := now.Add(-days(5))
	rec.DeletedAt = &deletedAt
	if err := store.UpdateDetection(context.Background(), rec, nil); err != nil {
		t.Fatal(err)
	}
}

func deletedIDs(t *testing.T, store *storage.MemoryStorage) map[string]bool {
	t.Helper()
	recs, err := store.QueryDetections(context.Background(), &compliance.DetectionQuery{DeletedOnly: true})
	if err != nil {
		t.Fatal(err)
	}
	out := make(map[string]bool, len(recs))
	for _, r := range recs {
		out[r.ID] = true
	}
	return out
}

func countRetentionAudit(t *testing.T, store *storage.MemoryStorage) int64 {
	t.Helper()
	n, err := store.CountAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventRetentionDeletion})
	if err != nil {
		t.Fatal(err)
	}
	return n
}

func TestRunCleanup_GracePeriod(t *testing.T) {
	store := storage.NewMemoryStorage()
	reg := newTestRegistry(t, store)
	seedRecords(t, store)

	enforcer := NewEnforcer(store, reg, &Config{BatchSize: 2, DefaultGraceDays: 30, UsePolicyGrace: true},
		WithClock(func() time.Time { return now }))

	res, err := enforcer.RunCleanup(context.Background())
	if err != nil {
		t.Fatalf("RunCleanup() failed: %v", err)
	}

	if res.Scanned != 5 || res.Deleted != 3 || res.Pending != 1 || res.Skipped != 1 || res.Failed != 0 {
		t.Errorf("unexpected result %+v", res)
	}

	deleted := deletedIDs(t, store)
	for _, id := range []string{"expired-40d", "fallback", "card", "already-deleted"} {
		if !deleted[id] {
			t.Errorf("expected %s to be soft-deleted", id)
		}
	}
	for _, id := range []string{"expired-10d", "not-expired", "privileged"} {
		if deleted[id] {
			t.Errorf("expected %s to be kept", id)
		}
	}

	rec, err := store.GetDetection(context.Background(), "expired-40d")
	if err != nil {
		t.Fatal(err)
	}
	if rec.DeletedAt == nil || !rec.DeletedAt.Equal(now) {
		t.Errorf("expected deleted_at %v, got %v", now, rec.DeletedAt)
	}

	entries, err := store.QueryAudit(context.Background(), &compliance.AuditQuery{EventType: compliance.EventRetentionDeletion})
	if err != nil {
		t.Fatal(err)
	}
	if len(entries) != 3 {
		t.Fatalf("expected 3 retention audit entries, got %d", len(entries))
	}
	for _, e := range entries {
		if e.ComplianceImpact != compliance.ImpactLow {
			t.Errorf("expected low impact, got %s", e.ComplianceImpact)
		}
		if e.ActorType != compliance.ActorSystem {
			t.Errorf("expected system actor, got %s", e.ActorType)
		}
		if e.DetectionRecordID == "" {
			t.Error("expected detection record id on audit entry")
		}
	}

	if last := enforcer.LastResult(); last == nil || last.Deleted != 3 {
		t.Errorf("expected last result to be recorded, got %+v", last)
	}
}

func TestRunCleanup_Idempotent(t *testing.T) {
	store := storage.NewMemoryStorage()
	reg := newTestRegistry(t, store)
	seedRecords(t, store)

	enforcer := NewEnforcer(store, reg, &Config{BatchSize: 1000, DefaultGraceDays: 30, UsePolicyGrace: true},
		WithClock(func() time.Time { return now }))

	if _, err := enforcer.RunCleanup(context.Background()); err != nil {
		t.Fatal(err)
	}
	before := countRetentionAudit(t, store)

	res, err := enforcer.RunCleanup(context.Background())
	if err != nil {
		t.Fatalf("second RunCleanup() failed: %v", err)
	}
	if res.Deleted != 0 {
		t.Errorf("expected no deletions on second run, got %d", res.Deleted)
	}
	if res.Scanned != 2 {
		t.Errorf("expected only the kept expired records to be scanned, got %d", res.Scanned)
	}
	if after := countRetentionAudit(t, store); after != before {
		t.Errorf("expected no new audit entries, got %d -> %d", before, after)
	}
}

func TestRunCleanup_DefaultGraceOnly(t *testing.T) {
	store := storage.NewMemoryStorage()
	reg := newTestRegistry(t, store)
	seedRecords(t, store)

	enforcer := NewEnforcer(store, reg, &Config{BatchSize: 10, DefaultGraceDays: 45, UsePolicyGrace: false},
		WithClock(func() time.Time { return now }))

	res, err := enforcer.RunCleanup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	// Every auto-deletable expired record is still inside a 45-day grace.
	if res.Deleted != 0 || res.Pending != 4 {
		t.Errorf("unexpected result %+v", res)
	}
}

func TestRunCleanup_LaterClockCollectsPending(t *testing.T) {
	store := storage.NewMemoryStorage()
	reg := newTestRegistry(t, store)
	insert(t, store, "expired-10d", "email", []string{"gdpr"}, now.Add(-days(10)))

	clock := now
	enforcer := NewEnforcer(store, reg, nil, WithClock(func() time.Time { return clock }))

	res, err := enforcer.RunCleanup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 0 || res.Pending != 1 {
		t.Fatalf("expected record inside grace to be kept, got %+v", res)
	}

	clock = now.Add(days(21))
	res, err = enforcer.RunCleanup(context.Background())
	if err != nil {
		t.Fatal(err)
	}
	if res.Deleted != 1 {
		t.Errorf("expected record to be collected once grace elapsed, got %+v", res)
	}
}

func TestRunCleanup_Cancelled(t *testing.T) {
	store := storage.NewMemoryStorage()
	reg := newTestRegistry(t, store)
	seedRecords(t, store)

	enforcer := NewEnforcer(store, reg, nil, WithClock(func() time.Time { return now }))

	ctx, cancel := context.WithCancel(context.Background())
	cancel()

	_, err := enforcer.RunCleanup(ctx)
	if err == nil {
		t.Fatal("expected error from cancelled context")
	}
	if n := countRetentionAudit(t, store); n != 0 {
		t.Errorf("expected no deletions, got %d", n)
	}
}

func TestScheduler_Start(t *testing.T) {
	tests := []struct {
		name        string
		schedule    string
		wantRunning bool
		wantError   bool
	}{
		{
			name:        "valid daily schedule",
			schedule:    "0 3 * * *",
			wantRunning: true,
		},
		{
			name:        "valid hourly schedule",
			schedule:    "0 * * * *",
			wantRunning: true,
		},
		{
			name:     "empty schedule - no error, not running",
			schedule: "",
		},
		{
			name:      "invalid schedule",
			schedule:  "invalid cron",
			wantError: true,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			store := storage.NewMemoryStorage()
			enforcer := NewEnforcer(store, newTestRegistry(t, store), &Config{Schedule: tt.schedule})
			scheduler := NewScheduler(enforcer)

			ctx, cancel := context.WithCancel(context.Background())
			defer cancel()

			err := scheduler.Start(ctx)
			if (err != nil) != tt.wantError {
				t.Errorf("Start() error = %v, wantError %v", err, tt.wantError)
			}
			if scheduler.IsRunning() != tt.wantRunning {
				t.Errorf("IsRunning() = %v, want %v", scheduler.IsRunning(), tt.wantRunning)
			}
			if tt.wantRunning && scheduler.NextRun() == nil {
				t.Error("NextRun() returned nil for running scheduler")
			}

			scheduler.Stop()
			if scheduler.IsRunning() {
				t.Error("scheduler still running after Stop()")
			}
		})
	}
}

func TestScheduler_StopsOnContextCancel(t *testing.T) {
	store := storage.NewMemoryStorage()
	enforcer := NewEnforcer(store, newTestRegistry(t, store), &Config{Schedule: "0 3 * * *"})
	scheduler := NewScheduler(enforcer)

	ctx, cancel := context.WithCancel(context.Background())
	if err := scheduler.Start(ctx); err != nil {
		t.Fatal(err)
	}
	cancel()

	deadline := time.Now().Add(2 * time.Second)
	for scheduler.IsRunning() {
		if time.Now().After(deadline) {
			t.Fatal("scheduler did not stop after context cancellation")
		}
		time.Sleep(10 * time.Millisecond)
	}
}
