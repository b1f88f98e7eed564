package handler

import (
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/service"
)

func TestFindRecyclers_QueryValidation(t *testing.T) {
	h := NewConsumerHandler(nil, nil, service.NewMatcher(docstore.NewMemoryStore(), nil, 0), nil)
	alice := &model.TokenData{SubjectID: "alice", Role: model.RoleConsumer}

	tests := []struct {
		name   string
		query  string
		status int
	}{
		{"valid origin", "lat=0&lng=0", http.StatusOK},
		{"explicit radius", "lat=0&lng=0&maxDistanceKm=25", http.StatusOK},
		{"missing lng", "lat=0", http.StatusBadRequest},
		{"latitude out of range", "lat=91&lng=0", http.StatusBadRequest},
		{"latitude NaN", "lat=NaN&lng=0", http.StatusBadRequest},
		{"radius NaN", "lat=0&lng=0&maxDistanceKm=NaN", http.StatusBadRequest},
		{"radius infinite", "lat=0&lng=0&maxDistanceKm=Inf", http.StatusBadRequest},
		{"radius negative", "lat=0&lng=0&maxDistanceKm=-5", http.StatusBadRequest},
		{"radius not a number", "lat=0&lng=0&maxDistanceKm=far", http.StatusBadRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/api/v1/consumers/me/recyclers?"+tt.query, nil)
			req = req.WithContext(middleware.WithCaller(req.Context(), alice))
			rec := httptest.NewRecorder()

			h.FindRecyclers(rec, req)

			assert.Equal(t, tt.status, rec.Code, rec.Body.String())
		})
	}
}
