// Package retention enforces retention policies on detection records.
//
// # Cleanup
//
// A cleanup run scans active records with expires_at in the past, oldest
// first, in pages of BatchSize. For each record the grace period is taken
// from the policy that set its retention (or DefaultGraceDays when the
// record fell back to the default period). Once expires_at plus grace has
// passed the record is soft-deleted: deleted_at is set and a
// retention_deletion audit entry with low impact is written with it.
// Records are never removed from storage.
//
//	enforcer := retention.NewEnforcer(store, registry, retention.ConfigFrom(cfg.Retention))
//	res, err := enforcer.RunCleanup(ctx)
//
// Records under a policy with auto deletion disabled are skipped. Errors on a
// single record are logged and counted without stopping the run, and a
// record whose version moved underneath the run is left for the next one.
//
// # Scheduling
//
//   - "0 3 * * *": Daily at 3 AM (default)
//   - "0 */6 * * *": Every 6 hours
//   - "*/1 * * * *": Every minute (testing only)
//
// An empty schedule disables the scheduler; Start returns immediately.
package retention
