package policy

import (
	"context"
	"log/slog"
	"sort"
	"sync"
	"time"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/telemetry/metrics"
)

// Snapshot is an immutable view of all retention policies at one version.
// It satisfies PolicySource.
type Snapshot struct {
	Version  uint64
	LoadedAt time.Time

	policies map[compliance.PolicyKey]*compliance.RetentionPolicy
}

// NewSnapshot builds a snapshot from policies. Inputs are copied.
func NewSnapshot(version uint64, loadedAt time.Time, policies []*compliance.RetentionPolicy) *Snapshot {
	s := &Snapshot{
		Version:  version,
		LoadedAt: loadedAt,
		policies: make(map[compliance.PolicyKey]*compliance.RetentionPolicy, len(policies)),
	}
	for _, p := range policies {
		c := *p
		s.policies[c.Key()] = &c
	}
	return s
}

// Lookup returns the active type-specific policy, else the active framework
// default, else nil. Inactive policies are treated as absent.
func (s *Snapshot) Lookup(framework, piiType string) *compliance.RetentionPolicy {
	if piiType != "" {
		if p, ok := s.policies[compliance.PolicyKey{Framework: framework, PIIType: piiType}]; ok && p.Active {
			c := *p
			return &c
		}
	}
	if p, ok := s.policies[compliance.PolicyKey{Framework: framework}]; ok && p.Active {
		c := *p
		return &c
	}
	return nil
}

// Policies returns copies of every policy ordered by framework then pii_type.
func (s *Snapshot) Policies() []*compliance.RetentionPolicy {
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
	return out
}

// Len returns the number of policies in the snapshot.
func (s *Snapshot) Len() int {
	return len(s.policies)
}

// Cache holds the current policy snapshot of one process. A snapshot is
// reloaded from the store when it was invalidated or is older than the TTL.
// Each reload bumps the version. When a reload fails the previous snapshot
// stays in service.
type Cache struct {
	store   compliance.PolicyStore
	ttl     time.Duration
	metrics *metrics.Collector
	logger  *slog.Logger
	now     func() time.Time

	mu      sync.Mutex
	snap    *Snapshot
	stale   bool
	version uint64
}

// NewCache creates a cache over store. A zero ttl disables time-based
// refresh; the snapshot is then reloaded only after Invalidate.
func NewCache(store compliance.PolicyStore, ttl time.Duration, collector *metrics.Collector) *Cache {
	return &Cache{
		store:   store,
		ttl:     ttl,
		metrics: collector,
		logger:  slog.Default().With("component", "compliance.policy_cache"),
		now:     time.Now,
	}
}

// Snapshot returns the current snapshot, reloading it first if needed.
func (c *Cache) Snapshot(ctx context.Context) (*Snapshot, error) {
	c.mu.Lock()
	defer c.mu.Unlock()

	if c.snap != nil && !c.stale && (c.ttl <= 0 || c.now().Sub(c.snap.LoadedAt) < c.ttl) {
		return c.snap, nil
	}

	policies, err := c.store.ListPolicies(ctx)
	if err != nil {
		c.metrics.RecordPolicyReload("error")
		if c.snap != nil {
			c.logger.WarnContext(ctx, "policy reload failed, serving previous snapshot",
				"version", c.snap.Version,
				"error", err,
			)
			return c.snap, nil
		}
		return nil, err
	}

	c.version++
	c.snap = NewSnapshot(c.version, c.now(), policies)
	c.stale = false
	c.metrics.RecordPolicyReload("success")
	c.metrics.SetPolicyCacheVersion(c.version)
	c.logger.DebugContext(ctx, "policy snapshot loaded",
		"version", c.version,
		"policy_count", len(policies),
	)
	return c.snap, nil
}

// Invalidate marks the current snapshot stale. The next Snapshot call reloads.
func (c *Cache) Invalidate() {
	c.mu.Lock()
	c.stale = true
	c.mu.Unlock()
}

// Version returns the version of the last loaded snapshot, 0 before the first load.
func (c *Cache) Version() uint64 {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.version
}
