package handler

import (
	"net/http"

	"ecotrace-api/internal/model"
	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/apierror"
	"ecotrace-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ProductHandler handles manufacturer product issuance and public previews.
type ProductHandler struct {
	registry *service.Registry
}

// NewProductHandler creates a new product handler.
func NewProductHandler(registry *service.Registry) *ProductHandler {
	return &ProductHandler{registry: registry}
}

// Issue handles POST /api/v1/manufacturers/{manufacturer_id}/products
func (h *ProductHandler) Issue(w http.ResponseWriter, r *http.Request) {
	manufacturerID := chi.URLParam(r, "manufacturer_id")
	if !actsAs(r, model.RoleManufacturer, manufacturerID) {
		response.Error(w, apierror.Forbidden("cannot issue products for another manufacturer"))
		return
	}

	var spec service.ProductSpec
	if err := decodeJSON(w, r, &spec); err != nil {
		writeError(w, r, err)
		return
	}

	issued, err := h.registry.IssueProduct(r.Context(), manufacturerID, spec)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.Created(w, issued)
}

// DeleteInstance handles DELETE /api/v1/manufacturers/{manufacturer_id}/products/{product_id}/instances/{serial}
func (h *ProductHandler) DeleteInstance(w http.ResponseWriter, r *http.Request) {
	manufacturerID := chi.URLParam(r, "manufacturer_id")
	if !actsAs(r, model.RoleManufacturer, manufacturerID) {
		response.Error(w, apierror.Forbidden("cannot delete another manufacturer's products"))
		return
	}

	modelDeleted, err := h.registry.DeleteInstance(r.Context(), manufacturerID, chi.URLParam(r, "product_id"), chi.URLParam(r, "serial"))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]bool{"deleted": true, "modelDeleted": modelDeleted})
}

// Preview handles GET /api/v1/products/preview?data=
func (h *ProductHandler) Preview(w http.ResponseWriter, r *http.Request) {
	raw := r.URL.Query().Get(model.QRPayloadParam)
	if raw == "" {
		response.Error(w, apierror.BadRequest("data is required"))
		return
	}

	summary, err := h.registry.PreviewPayload(r.Context(), raw)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, summary)
}
