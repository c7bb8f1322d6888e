package api

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/policy"
)

// PolicyHandler serves retention policy administration.
type PolicyHandler struct {
	registry *policy.Registry
	now      func() time.Time
}

// NewPolicyHandler creates the handler.
func NewPolicyHandler(registry *policy.Registry) *PolicyHandler {
	return &PolicyHandler{registry: registry, now: time.Now}
}

// RegisterRoutes mounts the policy routes on r.
func (h *PolicyHandler) RegisterRoutes(r chi.Router) {
	r.Route("/policies", func(r chi.Router) {
		r.Get("/", h.handleList)
		r.Put("/", h.handleUpsert)
		r.Post("/seed", h.handleSeed)
		r.Get("/lookup", h.handleLookup)
		r.Get("/expiration", h.handleExpiration)
		r.Get("/{framework}", h.handleGet)
		r.Delete("/{framework}", h.handleDelete)
	})
}

// policyInput is the upsert body. Omitted auto_deletion_enabled and active
// default to true.
type policyInput struct {
	Framework                  string    `json:"compliance_framework"`
	PIIType                    string    `json:"pii_type"`
	RetentionDays              *int      `json:"retention_days"`
	GracePeriodDays            int       `json:"grace_period_days"`
	AutoDeletion               *bool     `json:"auto_deletion_enabled"`
	ImmediateDeletionOnRequest bool      `json:"immediate_deletion_on_request"`
	Active                     *bool     `json:"active"`
	EffectiveDate              time.Time `json:"effective_date"`
	Description                string    `json:"description"`
}

func (in *policyInput) policy() (*compliance.RetentionPolicy, error) {
	if in.RetentionDays == nil {
		return nil, compliance.NewValidationError("retention_days", "retention_days is required")
	}
	return &compliance.RetentionPolicy{
		Framework:                  in.Framework,
		PIIType:                    in.PIIType,
		RetentionDays:              *in.RetentionDays,
		GracePeriodDays:            in.GracePeriodDays,
		AutoDeletion:               in.AutoDeletion == nil || *in.AutoDeletion,
		ImmediateDeletionOnRequest: in.ImmediateDeletionOnRequest,
		Active:                     in.Active == nil || *in.Active,
		EffectiveDate:              in.EffectiveDate,
		Description:                in.Description,
	}, nil
}

func (h *PolicyHandler) handleList(w http.ResponseWriter, r *http.Request) {
	list, err := h.registry.List(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []*compliance.RetentionPolicy{}
	}
	Success(w, r, map[string]any{"policies": list})
}

func (h *PolicyHandler) handleUpsert(w http.ResponseWriter, r *http.Request) {
	var in policyInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	p, err := in.policy()
	if err != nil {
		WriteError(w, r, err)
		return
	}
	stored, err := h.registry.Upsert(r.Context(), p)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, stored)
}

func (h *PolicyHandler) handleSeed(w http.ResponseWriter, r *http.Request) {
	res, err := h.registry.SeedDefaults(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, res)
}

func (h *PolicyHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	p, err := h.registry.Get(r.Context(), chi.URLParam(r, "framework"), r.URL.Query().Get("pii_type"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, p)
}

func (h *PolicyHandler) handleDelete(w http.ResponseWriter, r *http.Request) {
	framework := chi.URLParam(r, "framework")
	piiType := r.URL.Query().Get("pii_type")
	if err := h.registry.Delete(r.Context(), framework, piiType); err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, map[string]any{"deleted": true, "compliance_framework": framework, "pii_type": piiType})
}

// handleLookup returns the policy in effect for a framework and PII type,
// falling back to the framework default.
func (h *PolicyHandler) handleLookup(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	framework := p.str("framework")
	if framework == "" {
		WriteError(w, r, compliance.NewValidationError("framework", "framework is required"))
		return
	}
	found, err := h.registry.Lookup(r.Context(), framework, p.str("pii_type"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, found)
}

// handleExpiration previews the expiration a detection would get.
func (h *PolicyHandler) handleExpiration(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	frameworks := p.list("framework")
	piiType := p.str("pii_type")
	detectedAt := p.time("detected_at")
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	at := h.now().UTC()
	if detectedAt != nil {
		at = *detectedAt
	}
	expires, decision, err := h.registry.CalculateExpiration(r.Context(), frameworks, piiType, at)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, map[string]any{
		"detected_at": at,
		"expires_at":  expires,
		"decision":    decision,
	})
}
