package policy

import (
	"context"
	"errors"
	"os"
	"path/filepath"
	"sync/atomic"
	"testing"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/storage"
)

func date(y int, m time.Month, d int) time.Time {
	return time.Date(y, m, d, 0, 0, 0, 0, time.UTC)
}

func snapshotOf(policies ...*compliance.RetentionPolicy) *Snapshot {
	return NewSnapshot(1, time.Now(), policies)
}

func newTestRegistry(t *testing.T) (*Registry, *storage.MemoryStorage) {
	t.Helper()
	store := storage.NewMemoryStorage()
	cache := NewCache(store, time.Minute, nil)
	return NewRegistry(store, cache, NewCalculator(DefaultFallbackDays)), store
}

func TestCalculator_Scenarios(t *testing.T) {
	calc := NewCalculator(DefaultFallbackDays)

	gdprDefault := &compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: 1095, GracePeriodDays: 30, AutoDeletion: true, Active: true}
	hipaaLab := &compliance.RetentionPolicy{Framework: "hipaa", PIIType: "lab_result", RetentionDays: 1825, GracePeriodDays: 30, AutoDeletion: true, Active: true}
	pciCard := &compliance.RetentionPolicy{Framework: "pci_dss", PIIType: "credit_card", RetentionDays: 0, AutoDeletion: true, Active: true}

	tests := []struct {
		name       string
		snap       *Snapshot
		frameworks []string
		piiType    string
		detectedAt time.Time
		want       time.Time
		wantDays   int
	}{
		{
			name:       "gdpr default only",
			snap:       snapshotOf(gdprDefault),
			frameworks: []string{"gdpr"},
			piiType:    "person_name",
			detectedAt: date(2025, 1, 1),
			want:       date(2028, 1, 1),
			wantDays:   1095,
		},
		{
			name:       "minimum across frameworks",
			snap:       snapshotOf(gdprDefault, hipaaLab),
			frameworks: []string{"hipaa", "gdpr"},
			piiType:    "lab_result",
			detectedAt: date(2025, 1, 1),
			want:       date(2025, 1, 1).Add(1095 * 24 * time.Hour),
			wantDays:   1095,
		},
		{
			name:       "zero retention expires at detection",
			snap:       snapshotOf(pciCard),
			frameworks: []string{"pci_dss"},
			piiType:    "credit_card",
			detectedAt: date(2025, 3, 14).Add(9 * time.Hour),
			want:       date(2025, 3, 14).Add(9 * time.Hour),
			wantDays:   0,
		},
		{
			name:       "no policy uses fallback",
			snap:       snapshotOf(),
			frameworks: []string{"sox"},
			piiType:    "email",
			detectedAt: date(2025, 1, 1),
			want:       date(2028, 1, 1),
			wantDays:   1095,
		},
		{
			name:       "no frameworks uses fallback",
			snap:       snapshotOf(gdprDefault),
			frameworks: nil,
			piiType:    "email",
			detectedAt: date(2025, 1, 1),
			want:       date(2028, 1, 1),
			wantDays:   1095,
		},
		{
			name:       "framework tags are normalized",
			snap:       snapshotOf(pciCard),
			frameworks: []string{"PCI-DSS"},
			piiType:    "Credit Card",
			detectedAt: date(2025, 1, 1),
			want:       date(2025, 1, 1),
			wantDays:   0,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, d := calc.CalculateExpiration(tt.snap, tt.frameworks, tt.piiType, tt.detectedAt)
			if !got.Equal(tt.want) {
				t.Errorf("expected expires_at %v, got %v", tt.want, got)
			}
			if d.RetentionDays != tt.wantDays {
				t.Errorf("expected %d retention days, got %d", tt.wantDays, d.RetentionDays)
			}
		})
	}
}

func TestCalculator_DeterministicAcrossOrder(t *testing.T) {
	calc := NewCalculator(DefaultFallbackDays)
	snap := snapshotOf(
		&compliance.RetentionPolicy{ID: "a", Framework: "ccpa", RetentionDays: 730, GracePeriodDays: 30, Active: true},
		&compliance.RetentionPolicy{ID: "b", Framework: "internal", RetentionDays: 730, GracePeriodDays: 10, Active: true},
		&compliance.RetentionPolicy{ID: "c", Framework: "gdpr", RetentionDays: 1095, GracePeriodDays: 0, Active: true},
	)

	first := calc.Resolve(snap, []string{"ccpa", "internal", "gdpr"}, "email")
	second := calc.Resolve(snap, []string{"gdpr", "internal", "ccpa"}, "email")
	if first != second {
		t.Fatalf("resolution depends on framework order: %+v vs %+v", first, second)
	}
	if first.PolicyID != "b" || first.GracePeriodDays != 10 {
		t.Errorf("expected tie broken by shorter grace, got %+v", first)
	}

	again := calc.Resolve(snap, []string{"ccpa", "internal", "gdpr"}, "email")
	if again != first {
		t.Errorf("repeated resolution differs: %+v vs %+v", first, again)
	}
}

func TestCalculator_FallbackDecision(t *testing.T) {
	calc := NewCalculator(500)
	d := calc.Resolve(snapshotOf(), []string{"gdpr"}, "email")

	if !d.Fallback || d.RetentionDays != 500 || !d.AutoDeletion {
		t.Errorf("unexpected fallback decision %+v", d)
	}
	if NewCalculator(-1).FallbackDays != DefaultFallbackDays {
		t.Error("negative fallback should use the default")
	}
}

func TestSnapshot_Lookup(t *testing.T) {
	snap := snapshotOf(
		&compliance.RetentionPolicy{Framework: "hipaa", RetentionDays: 2190, Active: true},
		&compliance.RetentionPolicy{Framework: "hipaa", PIIType: "lab_result", RetentionDays: 1825, Active: true},
		&compliance.RetentionPolicy{Framework: "ccpa", RetentionDays: 730, Active: false},
		&compliance.RetentionPolicy{Framework: "gdpr", PIIType: "email", RetentionDays: 10, Active: false},
		&compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: 1095, Active: true},
	)

	tests := []struct {
		name      string
		framework string
		piiType   string
		wantDays  int
		wantNil   bool
	}{
		{"specific wins", "hipaa", "lab_result", 1825, false},
		{"default for other types", "hipaa", "email", 2190, false},
		{"inactive default is absent", "ccpa", "email", 0, true},
		{"inactive specific falls to default", "gdpr", "email", 1095, false},
		{"unknown framework", "sox", "email", 0, true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := snap.Lookup(tt.framework, tt.piiType)
			if tt.wantNil {
				if p != nil {
					t.Fatalf("expected no policy, got %+v", p)
				}
				return
			}
			if p == nil || p.RetentionDays != tt.wantDays {
				t.Fatalf("expected %d days, got %+v", tt.wantDays, p)
			}
		})
	}
}

func TestRegistry_UpsertValidation(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	tests := []struct {
		name   string
		policy compliance.RetentionPolicy
		field  string
	}{
		{"negative retention", compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: -1}, "retention_days"},
		{"negative grace", compliance.RetentionPolicy{Framework: "gdpr", GracePeriodDays: -5}, "grace_period_days"},
		{"missing framework", compliance.RetentionPolicy{RetentionDays: 10}, "framework"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p := tt.policy
			_, err := reg.Upsert(ctx, &p)
			var verr *compliance.ValidationError
			if !errors.As(err, &verr) {
				t.Fatalf("expected ValidationError, got %v", err)
			}
			if verr.Errors[0].Field != tt.field {
				t.Errorf("expected field %s, got %s", tt.field, verr.Errors[0].Field)
			}
		})
	}
}

func TestRegistry_UpsertInvalidatesCache(t *testing.T) {
	reg, store := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Lookup(ctx, "gdpr", "email"); !compliance.IsNotFound(err) {
		t.Fatalf("expected NotFound before any policy, got %v", err)
	}
	v1 := reg.cache.Version()

	stored, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "GDPR", RetentionDays: 1095, GracePeriodDays: 30, Active: true})
	if err != nil {
		t.Fatalf("upsert failed: %v", err)
	}
	if stored.ID == "" || stored.Framework != "gdpr" {
		t.Fatalf("unexpected stored policy %+v", stored)
	}

	p, err := reg.Lookup(ctx, "gdpr", "email")
	if err != nil {
		t.Fatalf("lookup after upsert failed: %v", err)
	}
	if p.RetentionDays != 1095 {
		t.Errorf("expected 1095 days, got %d", p.RetentionDays)
	}
	if reg.cache.Version() <= v1 {
		t.Errorf("expected cache version to advance past %d, got %d", v1, reg.cache.Version())
	}

	if _, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: 400, Active: true}); err != nil {
		t.Fatalf("second upsert failed: %v", err)
	}
	expires, d, err := reg.CalculateExpiration(ctx, []string{"gdpr"}, "email", date(2025, 1, 1))
	if err != nil {
		t.Fatalf("calculate failed: %v", err)
	}
	if d.RetentionDays != 400 || !expires.Equal(ExpiresAt(date(2025, 1, 1), 400)) {
		t.Errorf("expected updated policy to apply, got %+v", d)
	}

	entries, err := store.QueryAudit(ctx, &compliance.AuditQuery{EventType: compliance.EventPolicyUpserted})
	if err != nil {
		t.Fatalf("query audit failed: %v", err)
	}
	if len(entries) != 2 {
		t.Fatalf("expected 2 audit entries, got %d", len(entries))
	}
	if entries[1].PolicyID != stored.ID {
		t.Errorf("expected audit policy id %s, got %s", stored.ID, entries[1].PolicyID)
	}
	if entries[1].Details["previous_retention_days"] == nil {
		t.Error("expected previous retention in update audit details")
	}
}

func TestRegistry_Delete(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	if _, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "ccpa", RetentionDays: 730, Active: true}); err != nil {
		t.Fatal(err)
	}
	if _, err := reg.Lookup(ctx, "ccpa", ""); err != nil {
		t.Fatalf("expected policy before delete: %v", err)
	}
	if err := reg.Delete(ctx, "ccpa", ""); err != nil {
		t.Fatalf("delete failed: %v", err)
	}
	if _, err := reg.Lookup(ctx, "ccpa", ""); !compliance.IsNotFound(err) {
		t.Errorf("expected NotFound after delete, got %v", err)
	}
	if err := reg.Delete(ctx, "ccpa", ""); !compliance.IsNotFound(err) {
		t.Errorf("expected NotFound deleting twice, got %v", err)
	}
}

func TestRegistry_SeedDefaults(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()

	res, err := reg.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("seed failed: %v", err)
	}
	if res.Created != len(DefaultPolicies()) {
		t.Errorf("expected %d created, got %+v", len(DefaultPolicies()), res)
	}

	// An administrator change survives re-seeding.
	if _, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "hipaa", RetentionDays: 3000, Active: true}); err != nil {
		t.Fatal(err)
	}
	res, err = reg.SeedDefaults(ctx)
	if err != nil {
		t.Fatalf("re-seed failed: %v", err)
	}
	if res.Created != 0 || res.Skipped != len(DefaultPolicies()) {
		t.Errorf("expected all skipped, got %+v", res)
	}
	p, err := reg.Get(ctx, "hipaa", "")
	if err != nil {
		t.Fatal(err)
	}
	if p.RetentionDays != 3000 {
		t.Errorf("expected admin value kept, got %d", p.RetentionDays)
	}

	// Seeded pci_dss/credit_card resolves to zero retention.
	_, d, err := reg.CalculateExpiration(ctx, []string{"pci_dss"}, "credit_card", date(2025, 1, 1))
	if err != nil {
		t.Fatal(err)
	}
	if d.RetentionDays != 0 {
		t.Errorf("expected 0 days for credit_card, got %d", d.RetentionDays)
	}

	// attorney-client default keeps records from automatic deletion.
	d, err = reg.Resolve(ctx, []string{"attorney_client"}, "person_name")
	if err != nil {
		t.Fatal(err)
	}
	if d.AutoDeletion {
		t.Error("expected attorney_client auto deletion off")
	}
}

type failingPolicyStore struct {
	compliance.PolicyStore
	fail atomic.Bool
}

func (f *failingPolicyStore) ListPolicies(ctx context.Context) ([]*compliance.RetentionPolicy, error) {
	if f.fail.Load() {
		return nil, errors.New("database is locked")
	}
	return f.PolicyStore.ListPolicies(ctx)
}

func TestCache_KeepsLastGoodSnapshot(t *testing.T) {
	ctx := context.Background()
	mem := storage.NewMemoryStorage()
	if _, err := mem.UpsertPolicy(ctx, &compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: 1095, Active: true}, nil); err != nil {
		t.Fatal(err)
	}
	store := &failingPolicyStore{PolicyStore: mem}
	cache := NewCache(store, time.Minute, nil)

	snap, err := cache.Snapshot(ctx)
	if err != nil || snap.Len() != 1 {
		t.Fatalf("initial load failed: %v", err)
	}

	store.fail.Store(true)
	cache.Invalidate()
	again, err := cache.Snapshot(ctx)
	if err != nil {
		t.Fatalf("expected previous snapshot, got error %v", err)
	}
	if again.Version != snap.Version {
		t.Errorf("expected version %d kept, got %d", snap.Version, again.Version)
	}

	empty := NewCache(store, time.Minute, nil)
	if _, err := empty.Snapshot(ctx); err == nil {
		t.Error("expected error when no snapshot was ever loaded")
	}
}

func TestCache_TTL(t *testing.T) {
	ctx := context.Background()
	store := storage.NewMemoryStorage()
	cache := NewCache(store, 30*time.Second, nil)

	now := date(2025, 1, 1)
	cache.now = func() time.Time { return now }

	first, err := cache.Snapshot(ctx)
	if err != nil {
		t.Fatal(err)
	}
	now = now.Add(10 * time.Second)
	second, _ := cache.Snapshot(ctx)
	if second.Version != first.Version {
		t.Errorf("expected cached snapshot within ttl")
	}
	now = now.Add(30 * time.Second)
	third, _ := cache.Snapshot(ctx)
	if third.Version == first.Version {
		t.Errorf("expected reload after ttl")
	}
}

func TestLocalInvalidator(t *testing.T) {
	inv := NewLocalInvalidator()
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	var calls atomic.Int32
	if err := inv.Subscribe(ctx, func() { calls.Add(1) }); err != nil {
		t.Fatal(err)
	}
	if err := inv.Publish(ctx); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 1 {
		t.Errorf("expected 1 call, got %d", calls.Load())
	}

	store := storage.NewMemoryStorage()
	cache := NewCache(store, 0, nil)
	reg := NewRegistry(store, cache, NewCalculator(DefaultFallbackDays), WithInvalidator(inv))
	if _, err := reg.Upsert(ctx, &compliance.RetentionPolicy{Framework: "gdpr", RetentionDays: 1, Active: true}); err != nil {
		t.Fatal(err)
	}
	if calls.Load() != 2 {
		t.Errorf("expected upsert to publish, got %d calls", calls.Load())
	}
}

func TestParseSeed(t *testing.T) {
	policies, err := ParseSeed([]byte(`
policies:
  - framework: HIPAA
    pii_type: lab_result
    retention_days: 1825
    grace_period_days: 30
  - framework: internal_audit
    retention_days: 400
    auto_deletion: false
    active: false
`))
	if err != nil {
		t.Fatalf("parse failed: %v", err)
	}
	if len(policies) != 2 {
		t.Fatalf("expected 2 policies, got %d", len(policies))
	}
	if policies[0].Framework != "hipaa" || !policies[0].AutoDeletion || !policies[0].Active {
		t.Errorf("unexpected first policy %+v", policies[0])
	}
	if policies[1].AutoDeletion || policies[1].Active {
		t.Errorf("expected explicit false kept, got %+v", policies[1])
	}
}

func TestParseSeed_Errors(t *testing.T) {
	_, err := ParseSeed([]byte(`
policies:
  - framework: gdpr
  - framework: gdpr
    retention_days: 10
  - retention_days: -3
`))
	var verr *compliance.ValidationError
	if !errors.As(err, &verr) {
		t.Fatalf("expected ValidationError, got %v", err)
	}
	want := map[string]bool{
		"policies[0].retention_days": false,
		"policies[1]":                false,
		"policies[2].framework":      false,
		"policies[2].retention_days": false,
	}
	for _, fe := range verr.Errors {
		if _, ok := want[fe.Field]; ok {
			want[fe.Field] = true
		}
	}
	for field, seen := range want {
		if !seen {
			t.Errorf("expected error for %s, got %v", field, verr.Errors)
		}
	}
}

func TestSeedWatcher_Reload(t *testing.T) {
	reg, _ := newTestRegistry(t)
	ctx := context.Background()
	path := filepath.Join(t.TempDir(), "policies.yaml")

	if err := os.WriteFile(path, []byte("policies:\n  - framework: sox\n    retention_days: 2555\n"), 0644); err != nil {
		t.Fatal(err)
	}
	w, err := NewSeedWatcher(path, reg, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	defer w.Stop()

	if err := w.Reload(ctx); err != nil {
		t.Fatalf("reload failed: %v", err)
	}
	p, err := reg.Lookup(ctx, "sox", "")
	if err != nil || p.RetentionDays != 2555 {
		t.Fatalf("expected sox policy, got %+v, %v", p, err)
	}
}

func TestSeedWatcher_Watch(t *testing.T) {
	reg, _ := newTestRegistry(t)
	path := filepath.Join(t.TempDir(), "policies.yaml")
	if err := os.WriteFile(path, []byte("policies: []\n"), 0644); err != nil {
		t.Fatal(err)
	}

	w, err := NewSeedWatcher(path, reg, 20*time.Millisecond)
	if err != nil {
		t.Fatal(err)
	}
	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	errCh := make(chan error, 1)
	go func() { errCh <- w.Watch(ctx) }()
	time.Sleep(100 * time.Millisecond)

	if err := os.WriteFile(path, []byte("policies:\n  - framework: glba\n    retention_days: 1825\n"), 0644); err != nil {
		t.Fatal(err)
	}

	deadline := time.Now().Add(5 * time.Second)
	for {
		if p, err := reg.Get(context.Background(), "glba", ""); err == nil {
			if p.RetentionDays != 1825 {
				t.Errorf("expected 1825 days, got %d", p.RetentionDays)
			}
			break
		}
		if time.Now().After(deadline) {
			t.Fatal("seed file change was not applied")
		}
		time.Sleep(20 * time.Millisecond)
	}

	if err := w.Stop(); err != nil {
		t.Fatalf("stop failed: %v", err)
	}
	if err := <-errCh; err != nil {
		t.Errorf("watch returned error: %v", err)
	}
}

func TestDebouncer(t *testing.T) {
	d := NewDebouncer(30 * time.Millisecond)
	defer d.Stop()

	var calls atomic.Int32
	for i := 0; i < 5; i++ {
		d.Trigger(func() { calls.Add(1) })
	}
	time.Sleep(150 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected one callback, got %d", calls.Load())
	}

	d.Stop()
	d.Trigger(func() { calls.Add(1) })
	time.Sleep(60 * time.Millisecond)
	if calls.Load() != 1 {
		t.Errorf("expected no callback after stop, got %d", calls.Load())
	}
}
