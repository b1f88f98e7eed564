package handler

import (
	"net/http"

	"ecotrace-api/internal/model"
	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/apierror"
	"ecotrace-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// RecyclerHandler manages a recycler's facility, inventory and inbox.
type RecyclerHandler struct {
	recyclers *service.RecyclerService
	recycling *service.RecyclingService
}

// NewRecyclerHandler creates a new recycler handler.
func NewRecyclerHandler(recyclers *service.RecyclerService, recycling *service.RecyclingService) *RecyclerHandler {
	return &RecyclerHandler{recyclers: recyclers, recycling: recycling}
}

// owner resolves {recycler_id} and checks the caller may manage it.
func (h *RecyclerHandler) owner(w http.ResponseWriter, r *http.Request) (string, bool) {
	recyclerID := chi.URLParam(r, "recycler_id")
	if !actsAs(r, model.RoleRecycler, recyclerID) {
		response.Error(w, apierror.Forbidden("cannot manage another recycler"))
		return "", false
	}
	return recyclerID, true
}

// PutFacility handles PUT /api/v1/recyclers/{recycler_id}
func (h *RecyclerHandler) PutFacility(w http.ResponseWriter, r *http.Request) {
	recyclerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var in service.FacilityInput
	if err := decodeJSON(w, r, &in); err != nil {
		writeError(w, r, err)
		return
	}

	f, err := h.recyclers.UpsertFacility(r.Context(), recyclerID, in)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, f)
}

// GetFacility handles GET /api/v1/recyclers/{recycler_id}
func (h *RecyclerHandler) GetFacility(w http.ResponseWriter, r *http.Request) {
	f, err := h.recyclers.GetFacility(r.Context(), chi.URLParam(r, "recycler_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, f)
}

// PutInventoryItem handles POST /api/v1/recyclers/{recycler_id}/inventory
func (h *RecyclerHandler) PutInventoryItem(w http.ResponseWriter, r *http.Request) {
	recyclerID, ok := h.owner(w, r)
	if !ok {
		return
	}

	var item model.InventoryItem
	if err := decodeJSON(w, r, &item); err != nil {
		writeError(w, r, err)
		return
	}

	saved, err := h.recyclers.PutInventoryItem(r.Context(), recyclerID, item)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, saved)
}

// ListInventory handles GET /api/v1/recyclers/{recycler_id}/inventory
func (h *RecyclerHandler) ListInventory(w http.ResponseWriter, r *http.Request) {
	items, err := h.recyclers.ListInventory(r.Context(), chi.URLParam(r, "recycler_id"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.List(w, items, len(items))
}

// DeleteInventoryItem handles DELETE /api/v1/recyclers/{recycler_id}/inventory/{item_id}
func (h *RecyclerHandler) DeleteInventoryItem(w http.ResponseWriter, r *http.Request) {
	recyclerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	if err := h.recyclers.RemoveInventoryItem(r.Context(), recyclerID, chi.URLParam(r, "item_id")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// ListRequests handles GET /api/v1/recyclers/{recycler_id}/requests
func (h *RecyclerHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	recyclerID, ok := h.owner(w, r)
	if !ok {
		return
	}
	reqs, err := h.recycling.ListForRecycler(r.Context(), recyclerID)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.List(w, reqs, len(reqs))
}
