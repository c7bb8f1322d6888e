package api

import (
	"net/http"

	"github.com/go-chi/chi/v5"

	"mercator-hq/custodian/pkg/compliance"
	"mercator-hq/custodian/pkg/compliance/erasure"
)

// RequestHandler serves the deletion request workflow.
type RequestHandler struct {
	workflow *erasure.Workflow
}

// NewRequestHandler creates the handler.
func NewRequestHandler(workflow *erasure.Workflow) *RequestHandler {
	return &RequestHandler{workflow: workflow}
}

// RegisterRoutes mounts the deletion request routes on r.
func (h *RequestHandler) RegisterRoutes(r chi.Router) {
	r.Route("/deletion-requests", func(r chi.Router) {
		r.Post("/", h.handleSubmit)
		r.Get("/", h.handleList)
		r.Post("/verify", h.handleVerify)
		r.Get("/overdue", h.handleOverdue)
		r.Route("/{id}", func(r chi.Router) {
			r.Get("/", h.handleGet)
			r.Post("/process", h.handleProcess)
			r.Post("/reject", h.handleReject)
		})
	})
}

type verifyInput struct {
	Token string `json:"token"`
}

type rejectInput struct {
	Reason string `json:"reason"`
}

func (h *RequestHandler) handleSubmit(w http.ResponseWriter, r *http.Request) {
	var in erasure.SubmitInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	sub, err := h.workflow.Submit(r.Context(), &in)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Created(w, r, sub)
}

func (h *RequestHandler) handleList(w http.ResponseWriter, r *http.Request) {
	p := newQueryParams(r)
	q := compliance.RequestQuery{
		Status:    compliance.RequestStatus(p.str("status")),
		Requester: p.str("requester"),
		Type:      compliance.RequestType(p.str("request_type")),
		Limit:     p.int("limit"),
		Offset:    p.int("offset"),
	}
	if err := p.err(); err != nil {
		WriteError(w, r, err)
		return
	}
	list, err := h.workflow.List(r.Context(), q)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, map[string]any{"requests": list})
}

func (h *RequestHandler) handleVerify(w http.ResponseWriter, r *http.Request) {
	var in verifyInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	req, err := h.workflow.Verify(r.Context(), in.Token)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, req)
}

func (h *RequestHandler) handleOverdue(w http.ResponseWriter, r *http.Request) {
	list, err := h.workflow.Overdue(r.Context())
	if err != nil {
		WriteError(w, r, err)
		return
	}
	if list == nil {
		list = []*compliance.DeletionRequest{}
	}
	Success(w, r, map[string]any{"requests": list})
}

func (h *RequestHandler) handleGet(w http.ResponseWriter, r *http.Request) {
	req, err := h.workflow.Get(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, req)
}

// handleProcess runs the request to completion within the HTTP call. A
// request rejected by a processing failure is still a 200: the failure is
// reported in the request itself.
func (h *RequestHandler) handleProcess(w http.ResponseWriter, r *http.Request) {
	req, err := h.workflow.Process(r.Context(), chi.URLParam(r, "id"))
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, req)
}

func (h *RequestHandler) handleReject(w http.ResponseWriter, r *http.Request) {
	var in rejectInput
	if err := decodeJSON(r, &in); err != nil {
		WriteError(w, r, err)
		return
	}
	req, err := h.workflow.Reject(r.Context(), chi.URLParam(r, "id"), in.Reason)
	if err != nil {
		WriteError(w, r, err)
		return
	}
	Success(w, r, req)
}
