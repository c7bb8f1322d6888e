package api

import (
	"encoding/json"
	"errors"
	"log/slog"
	"net/http"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/telemetry/logging"
)

// Error codes returned in the envelope.
const (
	CodeValidation        = "validation_error"
	CodeNotFound          = "not_found"
	CodeInvalidTransition = "invalid_transition"
	CodeConflict          = "conflict"
	CodePayloadTooLarge   = "payload_too_large"
	CodeRateLimited       = "rate_limited"
	CodeInternal          = "internal_error"
)

// Error is the error body of a failed response.
type Error struct {
	Code    string `json:"code"`
	Message string `json:"message"`
	Details any    `json:"details,omitempty"`
}

// Envelope wraps every JSON response of the admin API.
type Envelope struct {
	Success   bool   `json:"success"`
	Data      any    `json:"data,omitempty"`
	Error     *Error `json:"error,omitempty"`
	RequestID string `json:"request_id,omitempty"`
}

// FieldIssue is one invalid field of a validation failure.
type FieldIssue struct {
	Field  string `json:"field"`
	Reason string `json:"reason"`
}

// WriteJSON writes payload with the given status.
func WriteJSON(w http.ResponseWriter, status int, payload Envelope) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	if err := json.NewEncoder(w).Encode(payload); err != nil {
		slog.Warn("write json failed", "error", err)
	}
}

// Success writes a 200 envelope carrying data.
func Success(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusOK, Envelope{Success: true, Data: data, RequestID: logging.GetRequestID(r.Context())})
}

// Created writes a 201 envelope carrying data.
func Created(w http.ResponseWriter, r *http.Request, data any) {
	WriteJSON(w, http.StatusCreated, Envelope{Success: true, Data: data, RequestID: logging.GetRequestID(r.Context())})
}

// Fail writes an error envelope.
func Fail(w http.ResponseWriter, r *http.Request, status int, code, message string) {
	FailWithDetails(w, r, status, code, message, nil)
}

// FailWithDetails writes an error envelope with structured details.
func FailWithDetails(w http.ResponseWriter, r *http.Request, status int, code, message string, details any) {
	WriteJSON(w, status, Envelope{
		Success:   false,
		Error:     &Error{Code: code, Message: message, Details: details},
		RequestID: logging.GetRequestID(r.Context()),
	})
}

// WriteError maps a service error to its status and error code. Errors
// outside the compliance taxonomy are logged and reported as 500 without
// their message.
func WriteError(w http.ResponseWriter, r *http.Request, err error) {
	var (
		validation *compliance.ValidationError
		notFound   *compliance.NotFoundError
		transition *compliance.InvalidTransitionError
		conflict   *compliance.ConcurrencyConflictError
		tooLarge   *http.MaxBytesError
	)
	switch {
	case errors.As(err, &validation):
		issues := make([]FieldIssue, 0, len(validation.Errors))
		for _, fe := range validation.Errors {
			issues = append(issues, FieldIssue{Field: fe.Field, Reason: fe.Message})
		}
		FailWithDetails(w, r, http.StatusBadRequest, CodeValidation, validation.Error(), map[string]any{"fields": issues})
	case errors.As(err, &notFound):
		Fail(w, r, http.StatusNotFound, CodeNotFound, notFound.Error())
	case errors.As(err, &transition):
		Fail(w, r, http.StatusConflict, CodeInvalidTransition, transition.Error())
	case errors.As(err, &conflict):
		Fail(w, r, http.StatusConflict, CodeConflict, conflict.Error())
	case errors.As(err, &tooLarge):
		Fail(w, r, http.StatusRequestEntityTooLarge, CodePayloadTooLarge, "request body too large")
	default:
		slog.ErrorContext(r.Context(), "admin api request failed",
			"method", r.Method,
			"path", r.URL.Path,
			"error", err,
		)
		Fail(w, r, http.StatusInternalServerError, CodeInternal, "internal server error")
	}
}
