// Package detection is the front door of the detection record store.
//
// Ingest validates a detector's report against the known risk levels,
// confidence range, detection modes and PII types, fixes expires_at from the
// retention policies in force at that moment and stores the record with its
// audit entry. The raw matched value never enters the package: inputs carry
// SHA-256 hashes and offsets only.
//
// The review workflow moves a record's review_status through
//
//	(none) --flag--> pending --start--> in_review --resolve--> resolved | dismissed
//	                 pending ----------------------resolve--> resolved | dismissed
//
// Flagging a closed review reopens it as pending. Every step writes an audit
// entry in the same store call as the record update, and a concurrent
// modification surfaces as compliance.ConcurrencyConflictError.
package detection
