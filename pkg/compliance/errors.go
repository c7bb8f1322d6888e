package compliance

import (
	"errors"
	"fmt"
	"strings"
)

// FieldError describes one invalid input field.
type FieldError struct {
	Field   string // Dotted field path (e.g., "confidence_score")
	Message string
}

// Error returns the error message for this field error.
func (e FieldError) Error() string {
	return fmt.Sprintf("%s: %s", e.Field, e.Message)
}

// ValidationError reports malformed input. It is never retryable.
type ValidationError struct {
	Errors []FieldError
}

// Error implements the error interface.
func (e *ValidationError) Error() string {
	switch len(e.Errors) {
	case 0:
		return "validation failed"
	case 1:
		return fmt.Sprintf("validation failed: %s", e.Errors[0].Error())
	}
	parts := make([]string, 0, len(e.Errors))
	for _, fe := range e.Errors {
		parts = append(parts, fe.Error())
	}
	return fmt.Sprintf("validation failed with %d errors: %s", len(e.Errors), strings.Join(parts, "; "))
}

// Add appends a field error.
func (e *ValidationError) Add(field, message string) {
	e.Errors = append(e.Errors, FieldError{Field: field, Message: message})
}

// OrNil returns e if it carries any field errors, nil otherwise.
func (e *ValidationError) OrNil() error {
	if e == nil || len(e.Errors) == 0 {
		return nil
	}
	return e
}

// NewValidationError creates a ValidationError for a single field.
func NewValidationError(field, message string) *ValidationError {
	return &ValidationError{Errors: []FieldError{{Field: field, Message: message}}}
}

// NotFoundError reports an unknown identifier.
type NotFoundError struct {
	Kind string // "detection", "policy", "deletion_request"
	ID   string
}

// Error implements the error interface.
func (e *NotFoundError) Error() string {
	return fmt.Sprintf("%s %q not found", e.Kind, e.ID)
}

// NewNotFoundError creates a new NotFoundError.
func NewNotFoundError(kind, id string) *NotFoundError {
	return &NotFoundError{Kind: kind, ID: id}
}

// InvalidTransitionError reports a state change the current state does not allow.
type InvalidTransitionError struct {
	Kind   string
	ID     string
	From   string
	To     string
	Reason string // Optional extra context
}

// Error implements the error interface.
func (e *InvalidTransitionError) Error() string {
	msg := fmt.Sprintf("%s %q: invalid transition %s -> %s", e.Kind, e.ID, displayState(e.From), e.To)
	if e.Reason != "" {
		msg += ": " + e.Reason
	}
	return msg
}

// NewInvalidTransitionError creates a new InvalidTransitionError.
func NewInvalidTransitionError(kind, id, from, to string) *InvalidTransitionError {
	return &InvalidTransitionError{Kind: kind, ID: id, From: from, To: to}
}

func displayState(s string) string {
	if s == "" {
		return "<none>"
	}
	return s
}

// ConcurrencyConflictError reports a lost optimistic-lock race. The caller may
// reload the entity and retry.
type ConcurrencyConflictError struct {
	Kind    string
	ID      string
	Version int64 // Version the caller expected
}

// Error implements the error interface.
func (e *ConcurrencyConflictError) Error() string {
	return fmt.Sprintf("%s %q: concurrent modification (expected version %d)", e.Kind, e.ID, e.Version)
}

// Retryable always returns true.
func (e *ConcurrencyConflictError) Retryable() bool {
	return true
}

// NewConcurrencyConflictError creates a new ConcurrencyConflictError.
func NewConcurrencyConflictError(kind, id string, version int64) *ConcurrencyConflictError {
	return &ConcurrencyConflictError{Kind: kind, ID: id, Version: version}
}

// StorageError represents an error from the storage backend.
type StorageError struct {
	Backend   string // Storage backend type ("sqlite", "postgres", "memory")
	Operation string // Operation that failed ("insert_detection", "query_audit", etc.)
	Cause     error  // Underlying error
}

// Error implements the error interface.
func (e *StorageError) Error() string {
	return fmt.Sprintf("storage error [backend=%s, operation=%s]: %v", e.Backend, e.Operation, e.Cause)
}

// Unwrap returns the underlying cause error.
func (e *StorageError) Unwrap() error {
	return e.Cause
}

// NewStorageError creates a new StorageError.
func NewStorageError(backend, operation string, cause error) *StorageError {
	return &StorageError{
		Backend:   backend,
		Operation: operation,
		Cause:     cause,
	}
}

// IsValidation reports whether err is or wraps a ValidationError.
func IsValidation(err error) bool {
	var target *ValidationError
	return errors.As(err, &target)
}

// IsNotFound reports whether err is or wraps a NotFoundError.
func IsNotFound(err error) bool {
	var target *NotFoundError
	return errors.As(err, &target)
}

// IsInvalidTransition reports whether err is or wraps an InvalidTransitionError.
func IsInvalidTransition(err error) bool {
	var target *InvalidTransitionError
	return errors.As(err, &target)
}

// IsConflict reports whether err is or wraps a ConcurrencyConflictError.
func IsConflict(err error) bool {
	var target *ConcurrencyConflictError
	return errors.As(err, &target)
}
