package policy

import (
	"context"
	"log/slog"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/telemetry/metrics"
)

// Registry is the write path and resolution front of the retention policies.
// Writes go to the store with their audit entry, then invalidate the local
// cache and notify other processes. Reads for resolution go through the cache.
type Registry struct {
	store   compliance.PolicyStore
	cache   *Cache
	calc    *Calculator
	inv     Invalidator
	metrics *metrics.Collector
	logger  *slog.Logger
}

// RegistryOption configures a Registry.
type RegistryOption func(*Registry)

// WithInvalidator publishes policy changes through inv.
func WithInvalidator(inv Invalidator) RegistryOption {
	return func(r *Registry) { r.inv = inv }
}

// WithMetrics records audit and fallback metrics on collector.
func WithMetrics(collector *metrics.Collector) RegistryOption {
	return func(r *Registry) { r.metrics = collector }
}

// NewRegistry creates a registry. cache must read from the same store.
func NewRegistry(store compliance.PolicyStore, cache *Cache, calc *Calculator, opts ...RegistryOption) *Registry {
	r := &Registry{
		store:  store,
		cache:  cache,
		calc:   calc,
		logger: slog.Default().With("component", "compliance.policy"),
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Calculator returns the registry's calculator.
func (r *Registry) Calculator() *Calculator {
	return r.calc
}

// Snapshot returns the current cached policy snapshot.
func (r *Registry) Snapshot(ctx context.Context) (*Snapshot, error) {
	return r.cache.Snapshot(ctx)
}

// Upsert creates or replaces the policy keyed by (framework, pii_type).
func (r *Registry) Upsert(ctx context.Context, p *compliance.RetentionPolicy) (*compliance.RetentionPolicy, error) {
	in := *p
	in.Framework = compliance.NormalizeFramework(in.Framework)
	in.PIIType = compliance.NormalizePIIType(in.PIIType)
	if err := validatePolicy(&in); err != nil {
		return nil, err
	}

	entry := audit.NewEntry(ctx, compliance.EventPolicyUpserted, compliance.ImpactMedium)
	entry.Details["framework"] = in.Framework
	entry.Details["pii_type"] = in.PIIType
	entry.Details["retention_days"] = in.RetentionDays
	entry.Details["grace_period_days"] = in.GracePeriodDays
	entry.Details["auto_deletion_enabled"] = in.AutoDeletion
	entry.Details["active"] = in.Active

	prev, err := r.store.GetPolicy(ctx, in.Framework, in.PIIType)
	switch {
	case err == nil:
		entry.Details["previous_retention_days"] = prev.RetentionDays
		entry.Details["previous_grace_period_days"] = prev.GracePeriodDays
	case !compliance.IsNotFound(err):
		return nil, err
	}

	stored, err := r.store.UpsertPolicy(ctx, &in, entry)
	if err != nil {
		return nil, err
	}
	r.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
	r.invalidate(ctx)

	r.logger.InfoContext(ctx, "retention policy upserted",
		"policy_id", stored.ID,
		"framework", stored.Framework,
		"pii_type", stored.PIIType,
		"retention_days", stored.RetentionDays,
	)
	return stored, nil
}

// Delete removes the policy for the exact key.
func (r *Registry) Delete(ctx context.Context, framework, piiType string) error {
	framework = compliance.NormalizeFramework(framework)
	piiType = compliance.NormalizePIIType(piiType)

	entry := audit.NewEntry(ctx, compliance.EventPolicyDeleted, compliance.ImpactMedium)
	entry.Details["framework"] = framework
	entry.Details["pii_type"] = piiType

	if err := r.store.DeletePolicy(ctx, framework, piiType, entry); err != nil {
		return err
	}
	r.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
	r.invalidate(ctx)

	r.logger.InfoContext(ctx, "retention policy deleted",
		"policy_id", entry.PolicyID,
		"framework", framework,
		"pii_type", piiType,
	)
	return nil
}

// Get returns the stored policy for the exact key, bypassing the cache.
func (r *Registry) Get(ctx context.Context, framework, piiType string) (*compliance.RetentionPolicy, error) {
	return r.store.GetPolicy(ctx, compliance.NormalizeFramework(framework), compliance.NormalizePIIType(piiType))
}

// List returns every stored policy ordered by framework then pii_type.
func (r *Registry) List(ctx context.Context) ([]*compliance.RetentionPolicy, error) {
	return r.store.ListPolicies(ctx)
}

// Lookup returns the policy that applies to framework and piiType: the
// active type-specific policy, else the active framework default. When
// neither exists it returns a NotFoundError.
func (r *Registry) Lookup(ctx context.Context, framework, piiType string) (*compliance.RetentionPolicy, error) {
	framework = compliance.NormalizeFramework(framework)
	piiType = compliance.NormalizePIIType(piiType)

	snap, err := r.cache.Snapshot(ctx)
	if err != nil {
		return nil, err
	}
	p := snap.Lookup(framework, piiType)
	if p == nil {
		return nil, compliance.NewNotFoundError("policy", policyLabel(framework, piiType))
	}
	return p, nil
}

// Resolve returns the retention decision for a record with the given
// frameworks and PII type against the current snapshot.
func (r *Registry) Resolve(ctx context.Context, frameworks []string, piiType string) (Decision, error) {
	snap, err := r.cache.Snapshot(ctx)
	if err != nil {
		return Decision{}, err
	}
	d := r.calc.Resolve(snap, frameworks, piiType)
	if d.Fallback {
		r.metrics.RecordExpirationFallback()
	}
	return d, nil
}

// CalculateExpiration returns detectedAt plus the resolved retention period.
func (r *Registry) CalculateExpiration(ctx context.Context, frameworks []string, piiType string, detectedAt time.Time) (time.Time, Decision, error) {
	d, err := r.Resolve(ctx, frameworks, piiType)
	if err != nil {
		return time.Time{}, Decision{}, err
	}
	return ExpiresAt(detectedAt, d.RetentionDays), d, nil
}

// SeedResult counts what a seed pass did.
type SeedResult struct {
	Created int `json:"created"`
	Updated int `json:"updated"`
	Skipped int `json:"skipped"`
}

// Seed upserts policies. Existing keys are left untouched unless overwrite
// is set, so seeding defaults never reverts an administrator's change.
func (r *Registry) Seed(ctx context.Context, policies []*compliance.RetentionPolicy, overwrite bool) (*SeedResult, error) {
	res := &SeedResult{}
	for _, p := range policies {
		_, err := r.store.GetPolicy(ctx, compliance.NormalizeFramework(p.Framework), compliance.NormalizePIIType(p.PIIType))
		exists := err == nil
		if err != nil && !compliance.IsNotFound(err) {
			return res, err
		}
		if exists && !overwrite {
			res.Skipped++
			continue
		}
		if _, err := r.Upsert(ctx, p); err != nil {
			return res, err
		}
		if exists {
			res.Updated++
		} else {
			res.Created++
		}
	}
	r.logger.InfoContext(ctx, "retention policies seeded",
		"created", res.Created,
		"updated", res.Updated,
		"skipped", res.Skipped,
	)
	return res, nil
}

// SeedDefaults installs the built-in framework policies that are missing.
func (r *Registry) SeedDefaults(ctx context.Context) (*SeedResult, error) {
	return r.Seed(ctx, DefaultPolicies(), false)
}

func (r *Registry) invalidate(ctx context.Context) {
	r.cache.Invalidate()
	if r.inv == nil {
		return
	}
	if err := r.inv.Publish(ctx); err != nil {
		// Other processes catch up when their cache TTL lapses.
		r.logger.WarnContext(ctx, "policy invalidation publish failed", "error", err)
	}
}

func validatePolicy(p *compliance.RetentionPolicy) error {
	verr := &compliance.ValidationError{}
	if p.Framework == "" {
		verr.Add("framework", "framework is required")
	}
	if p.RetentionDays < 0 {
		verr.Add("retention_days", "must be non-negative")
	}
	if p.GracePeriodDays < 0 {
		verr.Add("grace_period_days", "must be non-negative")
	}
	return verr.OrNil()
}

func policyLabel(framework, piiType string) string {
	if piiType == "" {
		return framework
	}
	return framework + "/" + piiType
}
