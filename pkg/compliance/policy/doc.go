// Package policy implements the retention policy registry and the
// expiration calculator.
//
// A policy is keyed by (framework, pii_type); an empty pii_type is the
// framework default. For one framework the type-specific policy wins over
// the default. Across the frameworks of a record the shortest retention wins,
// and a record no framework resolves for gets the fallback period (1095 days
// unless configured otherwise).
//
// Resolution reads a versioned Snapshot held by a Cache. The Registry
// invalidates the cache after every write and publishes the change through
// an Invalidator so other processes sharing the store reload as well:
//
//	cache := policy.NewCache(store, cfg.Policy.CacheTTL, collector)
//	reg := policy.NewRegistry(store, cache, policy.NewCalculator(1095),
//		policy.WithInvalidator(inv))
//	expires, decision, err := reg.CalculateExpiration(ctx, []string{"gdpr"}, "email", detectedAt)
//
// Seed policies come from DefaultPolicies and optionally from a YAML seed
// file, which a SeedWatcher can re-apply on change.
package policy
