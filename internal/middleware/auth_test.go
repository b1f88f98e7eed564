package middleware

import (
	"context"
	"errors"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/model"
)

type stubTokens map[string]*model.TokenData

func (s stubTokens) ValidateToken(_ context.Context, token string) (*model.TokenData, error) {
	if token == "ect_broken" {
		return nil, model.Wrap(model.KindInternal, errors.New("redis down"), "failed to get token")
	}
	if d, ok := s[token]; ok {
		return d, nil
	}
	return nil, model.Errorf(model.KindUnauthenticated, "token not found or expired")
}

func newAuthServer(t *testing.T, roles ...string) http.Handler {
	t.Helper()
	auth := NewAuthMiddleware(AuthConfig{
		Tokens: stubTokens{
			"ect_alice": {SubjectID: "alice", Role: model.RoleConsumer},
			"ect_r1":    {SubjectID: "R1", Role: model.RoleRecycler},
		},
		StaffKeys:   []string{"staff-key"},
		PublicPaths: []string{"/api/v1/health"},
	})
	final := http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		if c := GetCaller(r.Context()); c != nil {
			w.Header().Set("X-Subject", c.SubjectID)
		}
		w.WriteHeader(http.StatusNoContent)
	})
	if len(roles) > 0 {
		return auth(RequireRole(roles...)(final))
	}
	return auth(final)
}

func TestAuthMiddleware(t *testing.T) {
	tests := []struct {
		name    string
		path    string
		headers map[string]string
		status  int
		subject string
	}{
		{"public path", "/api/v1/health", nil, http.StatusNoContent, ""},
		{"no credentials", "/api/v1/x", nil, http.StatusUnauthorized, ""},
		{"session token", "/api/v1/x", map[string]string{"X-Token": "ect_alice"}, http.StatusNoContent, "alice"},
		{"unknown token", "/api/v1/x", map[string]string{"X-Token": "ect_nobody"}, http.StatusUnauthorized, ""},
		{"token store down", "/api/v1/x", map[string]string{"X-Token": "ect_broken"}, http.StatusServiceUnavailable, ""},
		{"staff key", "/api/v1/x", map[string]string{"X-API-Key": "staff-key"}, http.StatusNoContent, StaffSubject},
		{"staff bearer", "/api/v1/x", map[string]string{"Authorization": "Bearer staff-key"}, http.StatusNoContent, StaffSubject},
		{"wrong key", "/api/v1/x", map[string]string{"X-API-Key": "nope"}, http.StatusUnauthorized, ""},
	}

	h := newAuthServer(t)
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, tt.path, nil)
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			rec := httptest.NewRecorder()
			h.ServeHTTP(rec, req)

			require.Equal(t, tt.status, rec.Code)
			assert.Equal(t, tt.subject, rec.Header().Get("X-Subject"))
		})
	}
}

func TestRequireRole(t *testing.T) {
	h := newAuthServer(t, model.RoleConsumer)

	do := func(header, value string) int {
		req := httptest.NewRequest(http.MethodGet, "/api/v1/consumers/me/products", nil)
		req.Header.Set(header, value)
		rec := httptest.NewRecorder()
		h.ServeHTTP(rec, req)
		return rec.Code
	}

	require.Equal(t, http.StatusNoContent, do("X-Token", "ect_alice"))
	require.Equal(t, http.StatusForbidden, do("X-Token", "ect_r1"))
	require.Equal(t, http.StatusNoContent, do("X-API-Key", "staff-key"))
}

func TestRequestID(t *testing.T) {
	var seen string
	h := RequestID(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		seen = GetRequestID(r.Context())
	}))

	req := httptest.NewRequest(http.MethodGet, "/", nil)
	req.Header.Set("X-Request-ID", "abc")
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, req)
	require.Equal(t, "abc", seen)
	require.Equal(t, "abc", rec.Header().Get("X-Request-ID"))

	rec = httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.NotEmpty(t, rec.Header().Get("X-Request-ID"))
}

func TestRecovery(t *testing.T) {
	h := Recovery(http.HandlerFunc(func(http.ResponseWriter, *http.Request) {
		panic("boom")
	}))
	rec := httptest.NewRecorder()
	h.ServeHTTP(rec, httptest.NewRequest(http.MethodGet, "/", nil))
	require.Equal(t, http.StatusInternalServerError, rec.Code)
	require.Contains(t, rec.Body.String(), `"success":false`)
}
