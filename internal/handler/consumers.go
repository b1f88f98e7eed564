package handler

import (
	"math"
	"net/http"
	"strconv"

	"ecotrace-api/internal/model"
	"ecotrace-api/internal/service"
	"ecotrace-api/pkg/apierror"
	"ecotrace-api/pkg/response"

	"github.com/go-chi/chi/v5"
)

// ConsumerHandler serves the signed-in consumer's own products, nearby
// recyclers and recycling requests.
type ConsumerHandler struct {
	registry     *service.Registry
	registration *service.Registration
	matcher      *service.Matcher
	recycling    *service.RecyclingService
}

// NewConsumerHandler creates a new consumer handler.
func NewConsumerHandler(
	registry *service.Registry,
	registration *service.Registration,
	matcher *service.Matcher,
	recycling *service.RecyclingService,
) *ConsumerHandler {
	return &ConsumerHandler{
		registry:     registry,
		registration: registration,
		matcher:      matcher,
		recycling:    recycling,
	}
}

// ListProducts handles GET /api/v1/consumers/me/products?active=true
func (h *ConsumerHandler) ListProducts(w http.ResponseWriter, r *http.Request) {
	activeOnly, _ := strconv.ParseBool(r.URL.Query().Get("active"))

	recs, err := h.registry.ListConsumerProducts(r.Context(), subjectOf(r), activeOnly)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.List(w, recs, len(recs))
}

// DeleteProduct handles DELETE /api/v1/consumers/me/products/{serial}
func (h *ConsumerHandler) DeleteProduct(w http.ResponseWriter, r *http.Request) {
	if err := h.registration.DeleteScan(r.Context(), subjectOf(r), chi.URLParam(r, "serial")); err != nil {
		writeError(w, r, err)
		return
	}
	response.NoContent(w)
}

// VerifyProducts handles POST /api/v1/consumers/me/products/verify
func (h *ConsumerHandler) VerifyProducts(w http.ResponseWriter, r *http.Request) {
	removed, err := h.registration.VerifyScans(r.Context(), subjectOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.OK(w, map[string]int{"removed": removed})
}

// FindRecyclers handles GET /api/v1/consumers/me/recyclers?lat=&lng=&maxDistanceKm=&onlyMatched=
func (h *ConsumerHandler) FindRecyclers(w http.ResponseWriter, r *http.Request) {
	q := r.URL.Query()

	lat, errLat := strconv.ParseFloat(q.Get("lat"), 64)
	lng, errLng := strconv.ParseFloat(q.Get("lng"), 64)
	if errLat != nil || errLng != nil {
		response.Error(w, apierror.ValidationError("lat and lng are required",
			apierror.FieldError{Field: "lat", Message: "must be a number"},
			apierror.FieldError{Field: "lng", Message: "must be a number"},
		))
		return
	}

	var opts service.MatchOptions
	if v := q.Get("maxDistanceKm"); v != "" {
		d, err := strconv.ParseFloat(v, 64)
		if err != nil || math.IsNaN(d) || math.IsInf(d, 0) || d <= 0 {
			response.Error(w, apierror.BadRequest("maxDistanceKm must be a positive number"))
			return
		}
		opts.MaxDistanceKm = d
	}
	opts.OnlyMatched, _ = strconv.ParseBool(q.Get("onlyMatched"))

	matches, err := h.matcher.FindNearbyMatches(r.Context(), model.GeoPoint{Lat: lat, Lng: lng}, subjectOf(r), opts)
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.List(w, matches, len(matches))
}

// ListRequests handles GET /api/v1/consumers/me/requests
func (h *ConsumerHandler) ListRequests(w http.ResponseWriter, r *http.Request) {
	reqs, err := h.recycling.ListForConsumer(r.Context(), subjectOf(r))
	if err != nil {
		writeError(w, r, err)
		return
	}
	response.List(w, reqs, len(reqs))
}
