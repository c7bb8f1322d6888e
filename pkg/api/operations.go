package api

import (
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/audit"
	"mercator-hq/custodian/pkg/compliance/report"
	"mercator-hq/custodian/pkg/compliance/retention"
)

// DefaultAuditLimit is the page size of audit queries without a limit.
const DefaultAuditLimit = 100

// OperationsHandler serves the audit trail, compliance reports and manual
// retention cleanup.
type OperationsHandler struct {
	audit    *audit.Log
	reports  *report.Generator
	enforcer *retention.Enforcer
}

// NewOperationsHandler creates the handler.
func NewOperationsHandler(log *audit.Log, reports *report.Generator, enforcer *retention.Enforcer) *OperationsHandler {
	return &OperationsHandler{audit: log, reports: reports, enforcer: enforcer}
}

// RegisterRoutes mounts the audit, report and cleanup routes on r.
func (h *OperationsHandler) RegisterRoutes(r chi.Router) {
	r.Get("/audit", h.handleAuditQuery)
	r.Get("/audit/export", h.handleAuditExport)
	r.Get("/report", h.handleReport)
	r.Post("/retention/cleanup", h.handleCleanup)
	r.Get("/retention/cleanup", h.handleLastCleanup)
}

func auditQuery(p *queryParams) compliance.AuditQuery {
	return compliance.AuditQuery{
		EventType:         p.str("event_type"),
		DetectionRecordID: p.str("detection_record_id"),
		DeletionRequestID: p.str("deletion_request_id"),
		Actor:             p.str("actor"),
		ComplianceImpact:  compliance.ComplianceImpact(p.str("compliance_impact")),
		From:              p.time("from"),
		To:                p.time("to"),
		Limit:             p.int("limit"),
		Offset:            p.int("offset"),
	}
}

func (h *OperationsHandler) handleAuditQuery(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	q := auditQuery(p)
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	if q.Limit == 0 {
		q.Limit = DefaultAuditLimit
	}
	page, err := h.audit.Query(r.Context(), &q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if page.Entries == nil {
		page.Entries = []*compliance.AuditEntry{}
	}
	Success(w, r, page)
}

// handleAuditExport streams the matching entries as JSON or CSV. Errors after
// the first byte can only be logged.
func (h *OperationsHandler) handleAuditExport(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	q := auditQuery(p)
	format := p.str("format")
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	if q.From != nil && q.To != nil && q.To.Before(*q.From) {
		WriteError(w, r, compliance.NewValidationError("to", "end of range is before its start"))
		return
	}
	if _, err := audit.NewExporter(format); err != nil {
		WriteError(w, r, err)
		return
	}
	if format == "" {
		format = audit.FormatJSON
	}

	contentType := "application/json"
	if format == audit.FormatCSV {
		contentType = "text/csv"
	}
	w.Header().Set("Content-Type", contentType)
	w.Header().Set("Content-Disposition", fmt.Sprintf(`attachment; filename="audit-%s.%s"`, time.Now().UTC().Format("20060102T150405Z"), format))

	if err := h.audit.Export(r.Context(), w, format, q); err != nil {
		slog.ErrorContext(r.Context(), "audit export failed", "format", format, "error", err)
	}
}

func (h *OperationsHandler) handleReport(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	opts := report.Options{
		ExpiringWithinDays: p.int("expiring_within_days"),
		AuditFrom:          p.time("audit_from"),
		AuditTo:            p.time("audit_to"),
		Framework:          p.str("framework"),
	}
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	rep, err := h.reports.Generate(r.Context(), opts)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rep)
}

func (h *OperationsHandler) handleCleanup(w http.ResponseWriter, r *http.Request) {
	res, err := h.enforcer.RunCleanup(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, res)
}

func (h *OperationsHandler) handleLastCleanup(w http.ResponseWriter, r *http.Request) {
	res := h.enforcer.LastResult()
	if res == nil {
		WriteError(w, r, compliance.NewNotFoundError("cleanup_run", "last"))
		return
	}
	Success(w, r, res)
}
