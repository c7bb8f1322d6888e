// Package audit builds, queries and exports the append-only audit ledger.
//
// Every mutation of a detection record, retention policy or deletion request
// hands an entry built with NewEntry to the store, which writes it in the same
// transaction as the change. Log reads the ledger back and exports it as JSON
// or CSV for auditors.
package audit
