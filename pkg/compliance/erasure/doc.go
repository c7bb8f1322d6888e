// Package erasure implements the deletion request workflow used for GDPR
// erasure, CCPA deletion and manual requests.
//
//	pending --process--> processing --> completed
//	   |                     |
//	   +------reject---------+--------> rejected
//
// Submit returns a one-time verification token; only its SHA-256 is stored.
// Unless the request type is configured otherwise, Verify must be called
// with that token before Process. Completed and rejected requests are final.
//
// Process soft-deletes every active record in the request scope, stamping
// each with the request id and writing an erasure_deletion audit entry. The
// scan is resumable: an interrupted request stays processing and the next
// Process call continues with the records that are still active. Any other
// failure rejects the request and records the cause in its deletion report.
package erasure
