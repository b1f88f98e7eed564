package handler

import (
	"net/http"

	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/apierror"
	"ecotrace-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// RecyclingHandler drives recycling requests.
type RecyclingHandler struct {
	recycling *service.RecyclingService
}

// NewRecyclingHandler creates a new recycling request handler.
func NewRecyclingHandler(recycling *service.RecyclingService) *RecyclingHandler {
	return &RecyclingHandler{recycling: recycling}
}

// DecisionRequest is the body of POST /recycling-requests/{query_id}/reject.
type DecisionRequest struct {
	Reason string `json:"reason,omitempty"`
}

// RecycleStatusRequest is the body of POST /recycling-requests/{query_id}/recycle-status.
type RecycleStatusRequest struct {
	RecycleStatus model.RecycleStatus `json:"recycleStatus"`
}

// load fetches the request and checks the caller is a party to it.
func (h *RecyclingHandler) load(w http.ResponseWriter, r *http.Request, recyclerOnly bool) (*model.RecyclingRequest, bool) {
	req, err := h.recycling.Get(r.Context(), chi.URLParam(r, "query_id"))
	if err != nil {
		writeError(w, r, err)
		return nil, false
	}

	allowed := actsAs(r, model.RoleRecycler, req.RecyclerID)
	if !recyclerOnly {
		allowed = allowed || actsAs(r, model.RoleConsumer, req.ConsumerID)
	}
	if !allowed {
		response.Error(w, apierror.Forbidden("not a party to this recycling request"))
		return nil, false
	}
	return req, true
}

// Open handles POST /api/v1/recycling-requests
func (h *RecyclingHandler) Open(w http.ResponseWriter, r *http.Request) {
	var in service.OpenRequestInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	if c := middleware.GetCaller(r.Context()); c != nil {
		if in.ConsumerName == "" {
			in.ConsumerName = c.DisplayName
		}
		if in.ConsumerEmail == "" {
			in.ConsumerEmail = c.Email
		}
	}

	req, err := h.recycling.Open(r.Context(), subjectOf(r), in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, req)
}

// Get handles GET /api/v1/recycling-requests/{query_id}
func (h *RecyclingHandler) Get(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r, false)
	if !ok {
		return
	}
	response.OK(w, req)
}

// Accept handles POST /api/v1/recycling-requests/{query_id}/accept
func (h *RecyclingHandler) Accept(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r, true)
	if !ok {
		return
	}
	accepted, err := h.recycling.Accept(r.Context(), req.QueryID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, accepted)
}

// Reject handles POST /api/v1/recycling-requests/{query_id}/reject
func (h *RecyclingHandler) Reject(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r, true)
	if !ok {
		return
	}

	var body DecisionRequest
	if r.ContentLength != 0 {
		if err := decodeJSON(w, r, &body); err != nil {
			writeError(w, r, err)
			return
		}
	}

	out, err := h.recycling.Reject(r.Context(), req.QueryID, body.Reason)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, out)
}

// AdvanceRecycleStatus handles POST /api/v1/recycling-requests/{query_id}/recycle-status
func (h *RecyclingHandler) AdvanceRecycleStatus(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r, true)
	if !ok {
		return
	}

	var body RecycleStatusRequest
	if err := decodeJSON(w, r, &body); err != nil {
		writeError(w, r, err)
		return
	}

	updated, err := h.recycling.AdvanceRecycleStatus(r.Context(), req.QueryID, body.RecycleStatus)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, updated)
}

// Delete handles DELETE /api/v1/recycling-requests/{query_id}
func (h *RecyclingHandler) Delete(w http.ResponseWriter, r *http.Request) {
	req, ok := h.load(w, r, false)
	if !ok {
		return
	}
	if err := h.recycling.DeleteLog(r.Context(), req.QueryID); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}
