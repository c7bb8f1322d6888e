// Package compliance defines the domain model of the retention and audit
// engine: detection records, retention policies, deletion requests, audit
// entries, the error taxonomy and the storage contracts.
//
// # Records
//
// A DetectionRecord holds metadata about one detected PII span. The raw value
// never enters the engine; detectors send SHA-256 digests (see HashValue) and
// ingestion rejects anything that is not a 64-character hex digest.
//
// Each record has an expires_at fixed at ingestion from the minimum retention
// of its compliance frameworks. Records are never physically removed: the
// retention enforcer and the deletion request workflow set deleted_at.
//
// # Errors
//
// Every operation returns one of:
//
//   - ValidationError: malformed input, never retryable
//   - NotFoundError: unknown id
//   - InvalidTransitionError: the entity's current state forbids the change
//   - ConcurrencyConflictError: a concurrent writer won an optimistic-lock race; retry
//   - StorageError: backend failure
//
// # Storage
//
// Storage implementations (see package storage) write an AuditEntry in the
// same transaction as the mutation it describes, so no state change can be
// committed without its audit row.
package compliance
