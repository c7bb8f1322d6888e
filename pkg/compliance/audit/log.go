package audit

import (
	"context"
	"fmt"
	"log/slog"

	"mercator-hq/custodian/pkg/compliance"
)

// DefaultPageSize is the page size used when streaming audit entries.
const DefaultPageSize = 500

// Log is the read side of the audit ledger plus standalone appends. Entries
// that accompany a mutation are written by the store in the same
// transaction and never go through Log.
type Log struct {
	store  compliance.AuditStore
	logger *slog.Logger
}

// NewLog creates an audit log over store.
func NewLog(store compliance.AuditStore) *Log {
	return &Log{
		store:  store,
		logger: slog.Default().With("component", "compliance.audit"),
	}
}

// Record appends a standalone entry.
func (l *Log) Record(ctx context.Context, entry *compliance.AuditEntry) error {
	if entry.EventType == "" {
		return compliance.NewValidationError("event_type", "event type is required")
	}
	if entry.ComplianceImpact != "" && !entry.ComplianceImpact.Valid() {
		return compliance.NewValidationError("compliance_impact", fmt.Sprintf("unknown impact %q", entry.ComplianceImpact))
	}
	if err := l.store.AppendAudit(ctx, entry); err != nil {
		return err
	}
	l.logger.DebugContext(ctx, "audit entry recorded", "event_type", entry.EventType, "audit_id", entry.ID)
	return nil
}

// Page is one page of audit entries plus the unpaged total.
type Page struct {
	Entries []*compliance.AuditEntry `json:"entries"`
	Total   int64                    `json:"total"`
	Limit   int                      `json:"limit"`
	Offset  int                      `json:"offset"`
}

// Query returns the entries matching q in write order.
func (l *Log) Query(ctx context.Context, q *compliance.AuditQuery) (*Page, error) {
	if q == nil {
		q = &compliance.AuditQuery{}
	}
	if q.Limit < 0 || q.Offset < 0 {
		return nil, compliance.NewValidationError("limit", "limit and offset must be non-negative")
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		return nil, compliance.NewValidationError("to", "end of range is before its start")
	}

	entries, err := l.store.QueryAudit(ctx, q)
	if err != nil {
		return nil, err
	}
	total, err := l.store.CountAudit(ctx, q)
	if err != nil {
		return nil, err
	}
	return &Page{Entries: entries, Total: total, Limit: q.Limit, Offset: q.Offset}, nil
}

// Stream sends every entry matching q, page by page, until the result set is
// exhausted or ctx is cancelled. The returned error channel yields at most
// one error and is closed together with the entry channel.
func (l *Log) Stream(ctx context.Context, q compliance.AuditQuery, pageSize int) (<-chan *compliance.AuditEntry, <-chan error) {
	if pageSize <= 0 {
		pageSize = DefaultPageSize
	}
	out := make(chan *compliance.AuditEntry)
	errc := make(chan error, 1)

	go func() {
		defer close(out)
		defer close(errc)

		q.Limit = pageSize
		for {
			page, err := l.store.QueryAudit(ctx, &q)
			if err != nil {
				errc <- err
				return
			}
			for _, e := range page {
				select {
				case out <- e:
				case <-ctx.Done():
					errc <- ctx.Err()
					return
				}
			}
			if len(page) < pageSize {
				return
			}
			q.Offset += len(page)
		}
	}()

	return out, errc
}
