package logging

import (
	"context"
)

type fieldsKey struct{}

// fields are the correlation values carried through a call. Each With*
// helper copies them so that parent contexts are never modified.
type fields struct {
	requestID string
	actor     string
	actorType string
	traceID   string
}

func fromContext(ctx context.Context) fields {
	f, _ := ctx.Value(fieldsKey{}).(fields)
	return f
}

func with(ctx context.Context, update func(*fields)) context.Context {
	f := fromContext(ctx)
	update(&f)
	return context.WithValue(ctx, fieldsKey{}, f)
}

// WithRequestID returns a context carrying the correlation id of the current
// API call or CLI invocation.
func WithRequestID(ctx context.Context, requestID string) context.Context {
	return with(ctx, func(f *fields) { f.requestID = requestID })
}

// GetRequestID returns the request id, or "".
func GetRequestID(ctx context.Context) string {
	return fromContext(ctx).requestID
}

// WithActor returns a context naming who performs the operation. Audit
// entries written under this context are attributed to actor.
func WithActor(ctx context.Context, actor, actorType string) context.Context {
	return with(ctx, func(f *fields) {
		f.actor = actor
		f.actorType = actorType
	})
}

// GetActor returns the actor, or "".
func GetActor(ctx context.Context) string {
	return fromContext(ctx).actor
}

// GetActorType returns the actor type, or "".
func GetActorType(ctx context.Context) string {
	return fromContext(ctx).actorType
}

// WithTraceID returns a context carrying the trace id of the active span.
func WithTraceID(ctx context.Context, traceID string) context.Context {
	return with(ctx, func(f *fields) { f.traceID = traceID })
}

// GetTraceID returns the trace id, or "".
func GetTraceID(ctx context.Context) string {
	return fromContext(ctx).traceID
}

// extractContextFields returns the non-empty context fields as key-value
// pairs for slog.Record.Add.
func extractContextFields(ctx context.Context) []any {
	f := fromContext(ctx)
	var kv []any
	for _, p := range [...]struct{ key, value string }{
		{"request_id", f.requestID},
		{"actor", f.actor},
		{"actor_type", f.actorType},
		{"trace_id", f.traceID},
	} {
		if p.value != "" {
			kv = append(kv, p.key, p.value)
		}
	}
	return kv
}
