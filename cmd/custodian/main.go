// Custodian is the PII compliance retention and audit engine.
//
// It records where personal data was detected, computes how long each record
// may be kept under the applicable compliance frameworks, soft-deletes records
// once retention and grace have elapsed, processes verified erasure requests
// and keeps an append-only audit trail of every change.
//
// Usage:
//
//	# Start the admin API and the cleanup schedule
//	custodian serve --config /etc/custodian/config.yaml
//
//	# Run one retention cleanup pass
//	custodian cleanup
//
//	# Inspect and manage retention policies
//	custodian policy list
//	custodian policy upsert --framework gdpr --pii-type email --retention-days 730
//
//	# Work a deletion request through its lifecycle
//	custodian request submit --type gdpr_erasure --requester user-42
//	custodian request verify <token>
//	custodian request process <id>
//
//	# Export the audit trail
//	custodian audit query --export csv --from 2026-01-01
package main

import "os"

func main() {
	os.Exit(Execute(os.Args[1:]))
}
