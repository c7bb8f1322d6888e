package erasure

import (
	"context"
	"errors"
	"fmt"
	"time"

	"go.opentelemetry.io/otel/attribute"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/telemetry/tracing"
)

// Process erases the records in a request's scope.
//
// A pending request moves to processing (verification first, where
// required); a request already processing is resumed, which only visits
// records the earlier attempt did not reach. Each record is soft-deleted
// with an erasure_deletion audit entry. When the scope is exhausted the
// request completes with records_deleted and a deletion report.
//
// Cancelling ctx stops between records and leaves the request processing
// so a later call resumes it. Any other failure rejects the request with
// the failure as reason; the returned request then has status rejected and
// the error is nil.
func (w *Workflow) Process(ctx context.Context, id string) (req *compliance.DeletionRequest, err error) {
	ctx, span := w.tracer.Start(ctx, "erasure.process")
	defer func() { tracing.End(span, err) }()

	req, err = w.store.GetRequest(ctx, id)
	if err != nil {
		return nil, err
	}
	span.SetAttributes(tracing.DeletionRequest(req.ID, string(req.Type), string(req.Status))...)

	switch req.Status {
	case compliance.StatusPending:
		if req.VerificationRequired && req.VerifiedAt == nil {
			return nil, &compliance.InvalidTransitionError{
				Kind: "deletion_request", ID: id,
				From: string(req.Status), To: string(compliance.StatusProcessing),
				Reason: "request is not verified",
			}
		}
		if err := w.start(ctx, req); err != nil {
			return nil, err
		}
	case compliance.StatusProcessing:
		w.logger.InfoContext(ctx, "resuming deletion request", "deletion_request_id", id)
	default:
		return nil, compliance.NewInvalidTransitionError("deletion_request", id, string(req.Status), string(compliance.StatusProcessing))
	}

	if err := w.eraseScope(ctx, req); err != nil {
		if errors.Is(err, errRequestClosed) {
			w.logger.WarnContext(ctx, "deletion request closed while processing, erasure stopped",
				"deletion_request_id", id,
			)
			return w.store.GetRequest(ctx, id)
		}
		if ctx.Err() != nil && errors.Is(err, ctx.Err()) {
			w.logger.WarnContext(ctx, "deletion request interrupted, left processing",
				"deletion_request_id", id,
			)
			return req, err
		}
		w.logger.ErrorContext(ctx, "deletion request processing failed",
			"deletion_request_id", id,
			"error", err,
		)
		if rerr := w.failWith(ctx, id, err); rerr != nil {
			return nil, rerr
		}
		return w.store.GetRequest(ctx, id)
	}

	// Each erasure bumped the stored request; complete from the current row.
	if req, err = w.store.GetRequest(ctx, id); err != nil {
		return nil, err
	}
	if req.Status != compliance.StatusProcessing {
		return req, nil
	}
	if err := w.complete(ctx, req); err != nil {
		return nil, err
	}
	span.SetAttributes(attribute.Int(tracing.AttrDeleted, req.RecordsDeleted))
	return req, nil
}

func (w *Workflow) start(ctx context.Context, req *compliance.DeletionRequest) error {
	now := w.now().UTC()

	entry := audit.NewEntry(ctx, compliance.EventRequestProcessing, compliance.ImpactMedium)
	entry.DeletionRequestID = req.ID
	entry.Details["from_status"] = string(req.Status)
	entry.Details["scope"] = string(req.Scope)

	req.Status = compliance.StatusProcessing
	req.StartedAt = &now
	req.Report = newReport(req)

	if err := w.store.UpdateRequest(ctx, req, entry); err != nil {
		return err
	}
	w.recordTransition(req, entry)

	w.logger.InfoContext(ctx, "deletion request processing",
		"deletion_request_id", req.ID,
		"request_type", req.Type,
		"scope", req.Scope,
	)
	return nil
}

// scopeQuery selects the active records a request covers.
func scopeQuery(req *compliance.DeletionRequest, limit int) *compliance.DetectionQuery {
	q := &compliance.DetectionQuery{
		UserID: req.Requester,
		Order:  compliance.OrderExpiresAsc,
		Limit:  limit,
	}
	switch req.Scope {
	case compliance.ScopeSpecificTypes:
		q.PIITypes = append([]string(nil), req.PIITypes...)
	case compliance.ScopeDateRange:
		q.DetectedFrom = req.From
		q.DetectedTo = req.To
	}
	return q
}

func (w *Workflow) eraseScope(ctx context.Context, req *compliance.DeletionRequest) error {
	q := scopeQuery(req, w.config.BatchSize)
	for {
		if err := ctx.Err(); err != nil {
			return err
		}

		batch, err := w.store.QueryDetections(ctx, q)
		if err != nil {
			return fmt.Errorf("failed to scan request scope: %w", err)
		}

		for _, rec := range batch {
			if err := ctx.Err(); err != nil {
				return err
			}
			if err := w.erase(ctx, req, rec); err != nil {
				return err
			}
		}

		if len(batch) < w.config.BatchSize {
			return nil
		}
		tail := batch[len(batch)-1]
		q.AfterExpiresAt = &tail.ExpiresAt
		q.AfterID = tail.ID
	}
}

// errRequestClosed stops a scan whose request was rejected underneath it.
var errRequestClosed = errors.New("deletion request is no longer processing")

// erase soft-deletes one record. A lost update is retried once against the
// reloaded record; a record deleted in between is left as is. The store
// refuses the erasure once the request has left processing.
func (w *Workflow) erase(ctx context.Context, req *compliance.DeletionRequest, rec *compliance.DetectionRecord) error {
	for attempt := 0; ; attempt++ {
		entry := audit.NewEntry(ctx, compliance.EventErasureDeletion, compliance.ImpactHigh)
		entry.DetectionRecordID = rec.ID
		entry.DeletionRequestID = req.ID
		entry.Details["pii_type"] = rec.PIIType
		entry.Details["request_type"] = string(req.Type)
		entry.Details["compliance_frameworks"] = rec.Frameworks

		now := w.now().UTC()
		rec.DeletedAt = &now
		rec.DeletionRequestID = req.ID

		err := w.store.EraseForRequest(ctx, req.ID, rec, entry)
		if compliance.IsInvalidTransition(err) {
			return errRequestClosed
		}
		if err == nil {
			w.metrics.RecordErasureDeletion(rec.PIIType)
			w.metrics.RecordAuditEntry(entry.EventType, string(entry.ComplianceImpact))
			return nil
		}
		if !compliance.IsConflict(err) || attempt > 0 {
			return fmt.Errorf("failed to erase detection %s: %w", rec.ID, err)
		}

		rec, err = w.store.GetDetection(ctx, rec.ID)
		if err != nil {
			return fmt.Errorf("failed to reload detection: %w", err)
		}
		if rec.DeletedAt != nil {
			return nil
		}
	}
}

func (w *Workflow) complete(ctx context.Context, req *compliance.DeletionRequest) error {
	report, err := w.tally(ctx, req)
	if err != nil {
		return err
	}
	now := w.now().UTC()
	report.StartedAt = req.StartedAt
	report.CompletedAt = &now

	entry := audit.NewEntry(ctx, compliance.EventRequestCompleted, compliance.ImpactHigh)
	entry.DeletionRequestID = req.ID
	entry.Details["records_deleted"] = report.Total
	entry.Details["by_pii_type"] = report.ByPIIType

	req.Status = compliance.StatusCompleted
	req.RecordsDeleted = report.Total
	req.Report = report
	req.CompletedAt = &now

	if err := w.store.UpdateRequest(ctx, req, entry); err != nil {
		return err
	}
	w.recordTransition(req, entry)

	w.logger.InfoContext(ctx, "deletion request completed",
		"deletion_request_id", req.ID,
		"records_deleted", req.RecordsDeleted,
		"duration", since(now, req.StartedAt),
	)
	return nil
}

// tally builds the deletion report from the stored records carrying the
// request's id, so records erased by an interrupted attempt count once.
func (w *Workflow) tally(ctx context.Context, req *compliance.DeletionRequest) (*compliance.DeletionReport, error) {
	report := newReport(req)
	q := &compliance.DetectionQuery{
		DeletionRequestID: req.ID,
		DeletedOnly:       true,
		Order:             compliance.OrderExpiresAsc,
		Limit:             w.config.BatchSize,
	}
	for {
		batch, err := w.store.QueryDetections(ctx, q)
		if err != nil {
			return nil, fmt.Errorf("failed to tally deleted records: %w", err)
		}
		for _, rec := range batch {
			report.Total++
			report.ByPIIType[rec.PIIType]++
			for _, fw := range rec.Frameworks {
				report.ByFramework[fw]++
			}
		}
		if len(batch) < w.config.BatchSize {
			return report, nil
		}
		tail := batch[len(batch)-1]
		q.AfterExpiresAt = &tail.ExpiresAt
		q.AfterID = tail.ID
	}
}

func (w *Workflow) failWith(ctx context.Context, id string, cause error) error {
	// Reload: the failed write may have been the request itself.
	req, err := w.store.GetRequest(ctx, id)
	if err != nil {
		return err
	}
	if req.Status.Terminal() {
		return nil
	}
	return w.reject(ctx, req, "processing failed", cause.Error(), compliance.ImpactHigh)
}

func newReport(req *compliance.DeletionRequest) *compliance.DeletionReport {
	return &compliance.DeletionReport{
		Scope:       req.Scope,
		PIITypes:    append([]string(nil), req.PIITypes...),
		From:        req.From,
		To:          req.To,
		ByPIIType:   make(map[string]int),
		ByFramework: make(map[string]int),
		StartedAt:   req.StartedAt,
	}
}

// since reports how long ago t was, or zero for nil.
func since(now time.Time, t *time.Time) time.Duration {
	if t == nil {
		return 0
	}
	return now.Sub(*t)
}
