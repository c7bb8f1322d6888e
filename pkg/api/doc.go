// Package api is the admin HTTP surface of Custodian.
//
// Every JSON response is wrapped in an Envelope. Failures carry one of the
// error codes validation_error, not_found, invalid_transition, conflict,
// payload_too_large, rate_limited or internal_error; the HTTP status follows
// from the code. Request bodies are decoded strictly: unknown fields are a
// validation error.
//
// Callers identify themselves with X-Actor (and optionally X-Actor-Type);
// the actor is recorded on every audit entry the request produces. The
// correlation id from X-Request-ID, or a generated one, is echoed back and
// recorded as well.
package api
