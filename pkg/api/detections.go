package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"
	"golang.org/x/time/rate"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/detection"
)

// DetectionHandler serves detection ingestion, query and review.
type DetectionHandler struct {
	service *detection.Service
	limiter *rate.Limiter
}

// NewDetectionHandler creates the handler. A nil limiter disables ingest
// rate limiting.
func NewDetectionHandler(service *detection.Service, limiter *rate.Limiter) *DetectionHandler {
	return &DetectionHandler{service: service, limiter: limiter}
}

// RegisterRoutes mounts the detection routes on r.
func (h *DetectionHandler) RegisterRoutes(r chi.Router) {
	r.Route("/detections", func(r chi.Router) {
		r.With(RateLimit(h.limiter)).Post("/", h.handleIngest)
		r.Get("/", h.handleQuery)
		r.Get("/pii-types", h.handlePIITypes)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Patch("/flags", h.handleUpdateFlags)
			r.Post("/review", h.handleFlag)
			r.Post("/review/start", h.handleStartReview)
			r.Post("/review/resolve", h.handleResolve)
		})
	})
}

func (h *DetectionHandler) handleIngest(w http.ResponseWriter, r *http.Request) {
	var in detection.Input
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	rec, err := h.service.Ingest(r.Context(), &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Created(w, r, rec)
}

func (h *DetectionHandler) handleQuery(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	q := compliance.DetectionQuery{
		UserID:         p.str("user_id"),
		DocumentID:     p.str("document_id"),
		HoneyJarID:     p.str("honey_jar_id"),
		PIITypes:       p.list("pii_type"),
		RiskLevel:      compliance.RiskLevel(p.str("risk_level")),
		Framework:      p.str("framework"),
		ReviewStatus:   compliance.ReviewStatus(p.str("review_status")),
		FlaggedOnly:    p.bool("flagged"),
		DetectedFrom:   p.time("detected_from"),
		DetectedTo:     p.time("detected_to"),
		ExpiresFrom:    p.time("expires_from"),
		ExpiresTo:      p.time("expires_to"),
		IncludeDeleted: p.bool("include_deleted"),
		DeletedOnly:    p.bool("deleted_only"),
		Limit:          p.int("limit"),
		Offset:         p.int("offset"),
	}
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	page, err := h.service.Query(r.Context(), q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, page)
}

func (h *DetectionHandler) handlePIITypes(w http.ResponseWriter, r *http.Request) {
	Success(w, r, map[string]any{"pii_types": h.service.PIITypes()})
}

func (h *DetectionHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rec)
}

func (h *DetectionHandler) handleUpdateFlags(w http.ResponseWriter, r *http.Request) {
	var in detection.FlagsUpdate
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	rec, err := h.service.UpdateFlags(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rec)
}

func (h *DetectionHandler) handleFlag(w http.ResponseWriter, r *http.Request) {
	var in detection.FlagInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	rec, err := h.service.FlagForReview(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rec)
}

func (h *DetectionHandler) handleStartReview(w http.ResponseWriter, r *http.Request) {
	rec, err := h.service.StartReview(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rec)
}

func (h *DetectionHandler) handleResolve(w http.ResponseWriter, r *http.Request) {
	var in detection.ResolveInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	rec, err := h.service.ResolveReview(r.Context(), chi.URLParam(r, "id"), in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, rec)
}
