package api

import (
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"mercator-hq/custodian/pkg/compliance"
)

// decodeJSON decodes exactly one JSON object into dst. Unknown fields are
// rejected so raw values sent by mistake never reach storage or logs.
func decodeJSON(r *http.Request, dst any) error {
	dec := json.NewDecoder(r.Body)
	dec.DisallowUnknownFields()
	if err := dec.Decode(dst); err != nil {
		var tooLarge *http.MaxBytesError
		if errors.As(err, &tooLarge) {
			return err
		}
		if errors.Is(err, io.EOF) {
			return compliance.NewValidationError("body", "request body is empty")
		}
		return compliance.NewValidationError("body", decodeMessage(err))
	}
	if dec.More() {
		return compliance.NewValidationError("body", "request body must contain a single JSON object")
	}
	return nil
}

func decodeMessage(err error) string {
	var syntax *json.SyntaxError
	var typeErr *json.UnmarshalTypeError
	switch {
	case errors.As(err, &syntax):
		return fmt.Sprintf("malformed JSON at offset %d", syntax.Offset)
	case errors.As(err, &typeErr):
		return fmt.Sprintf("field %q has the wrong type", typeErr.Field)
	case strings.HasPrefix(err.Error(), "json: unknown field "):
		return strings.TrimPrefix(err.Error(), "json: ")
	}
	return "malformed JSON"
}

// queryParams collects query string parse failures into one ValidationError.
type queryParams struct {
	values url.Values
	errs   compliance.ValidationError
}

func newQueryParams(r *http.Request) *queryParams {
	return &queryParams{values: r.URL.Query()}
}

func (q *queryParams) str(name string) string {
	return strings.TrimSpace(q.values.Get(name))
}

func (q *queryParams) list(name string) []string {
	var out []string
	for _, v := range q.values[name] {
		for _, part := range strings.Split(v, ",") {
			if part = strings.TrimSpace(part); part != "" {
				out = append(out, part)
			}
		}
	}
	return out
}

func (q *queryParams) int(name string) int {
	raw := q.str(name)
	if raw == "" {
		return 0
	}
	n, err := strconv.Atoi(raw)
	if err != nil || n < 0 {
		q.errs.Add(name, "must be a non-negative integer")
		return 0
	}
	return n
}

func (q *queryParams) bool(name string) bool {
	raw := q.str(name)
	if raw == "" {
		return false
	}
	b, err := strconv.ParseBool(raw)
	if err != nil {
		q.errs.Add(name, "must be true or false")
		return false
	}
	return b
}

// time accepts RFC 3339 timestamps or YYYY-MM-DD dates (UTC midnight).
func (q *queryParams) time(name string) *time.Time {
	raw := q.str(name)
	if raw == "" {
		return nil
	}
	for _, layout := range []string{time.RFC3339Nano, time.DateOnly} {
		if t, err := time.Parse(layout, raw); err == nil {
			t = t.UTC()
			return &t
		}
	}
	q.errs.Add(name, "must be an RFC 3339 timestamp or YYYY-MM-DD date")
	return nil
}

func (q *queryParams) err() error {
	return q.errs.OrNil()
}
