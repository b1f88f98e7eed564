package router

import (
	"bytes"
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"net/url"
	"testing"

	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/handler"
	"ecotrace-api/internal/middleware"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/internal/service"
)

type stubTokens map[string]*model.TokenData

func (s stubTokens) ValidateToken(_ context.Context, token string) (*model.TokenData, error) {
	if d, ok := s[token]; ok {
		return d, nil
	}
	return nil, model.Errorf(model.KindUnauthenticated, "token not found or expired")
}

type envelope struct {
	Success bool            `json:"success"`
	Data    json.RawMessage `json:"data"`
	Error   struct {
		Code      string `json:"code"`
		Message   string `json:"message"`
		Retryable bool   `json:"retryable"`
	} `json:"error"`
}

type testServer struct {
	t     *testing.T
	srv   *httptest.Server
	store docstore.Store
}

func newTestServer(t *testing.T) *testServer {
	t.Helper()
	store := docstore.NewMemoryStore()

	registry := service.NewRegistry(store, "https://ecotrace.test/scan")
	registration := service.NewRegistration(store)
	recyclers := service.NewRecyclerService(store, nil)
	recycling := service.NewRecyclingService(store, nil)
	matcher := service.NewMatcher(store, repository.NewDocOrganizationRepository(store), 0)

	r := New(Config{
		Handler:             handler.New("test"),
		ProductHandler:      handler.NewProductHandler(registry),
		RegistrationHandler: handler.NewRegistrationHandler(registration),
		ConsumerHandler:     handler.NewConsumerHandler(registry, registration, matcher, recycling),
		RecyclerHandler:     handler.NewRecyclerHandler(recyclers, recycling),
		RecyclingHandler:    handler.NewRecyclingHandler(recycling),
		AdminHandler:        handler.NewAdminHandler(service.NewStatsService(store), service.NewSweepScheduler(registration, service.SweepConfig{}), "memory"),
		AuthMiddleware: middleware.NewAuthMiddleware(middleware.AuthConfig{
			Tokens: stubTokens{
				"ect_alice": {SubjectID: "alice", Role: model.RoleConsumer, Email: "alice@example.com"},
				"ect_bob":   {SubjectID: "bob", Role: model.RoleConsumer},
				"ect_mfgA":  {SubjectID: "mfgA", Role: model.RoleManufacturer},
				"ect_R1":    {SubjectID: "R1", Role: model.RoleRecycler},
				"ect_R2":    {SubjectID: "R2", Role: model.RoleRecycler},
			},
			StaffKeys:   []string{"staff"},
			PublicPaths: PublicPaths,
		}),
	})

	srv := httptest.NewServer(r)
	t.Cleanup(srv.Close)
	return &testServer{t: t, srv: srv, store: store}
}

func (s *testServer) do(method, path, token string, body interface{}) (int, envelope) {
	s.t.Helper()
	var buf bytes.Buffer
	if body != nil {
		require.NoError(s.t, json.NewEncoder(&buf).Encode(body))
	}
	req, err := http.NewRequest(method, s.srv.URL+path, &buf)
	require.NoError(s.t, err)
	req.Header.Set("Content-Type", "application/json")
	if token == "staff" {
		req.Header.Set("X-API-Key", token)
	} else if token != "" {
		req.Header.Set("X-Token", token)
	}

	resp, err := http.DefaultClient.Do(req)
	require.NoError(s.t, err)
	defer resp.Body.Close()

	var env envelope
	if resp.StatusCode != http.StatusNoContent {
		require.NoError(s.t, json.NewDecoder(resp.Body).Decode(&env))
	}
	return resp.StatusCode, env
}

func decode[T any](t *testing.T, env envelope) T {
	t.Helper()
	var v T
	require.NoError(t, json.Unmarshal(env.Data, &v))
	return v
}

func TestHealthIsPublic(t *testing.T) {
	s := newTestServer(t)
	status, env := s.do(http.MethodGet, "/api/v1/health", "", nil)
	require.Equal(t, http.StatusOK, status)
	require.True(t, env.Success)

	status, _ = s.do(http.MethodGet, "/api/v1/consumers/me/products", "", nil)
	require.Equal(t, http.StatusUnauthorized, status)
}

func TestProductLifecycleOverHTTP(t *testing.T) {
	s := newTestServer(t)

	// Manufacturers cannot issue for each other.
	status, _ := s.do(http.MethodPost, "/api/v1/manufacturers/mfgB/products", "ect_mfgA", service.ProductSpec{Name: "Kettle", Category: "Electronics", SerialNumber: "SN001"})
	require.Equal(t, http.StatusForbidden, status)

	status, env := s.do(http.MethodPost, "/api/v1/manufacturers/mfgA/products", "ect_mfgA", service.ProductSpec{Name: "Kettle", Category: "Electronics", SerialNumber: "SN001"})
	require.Equal(t, http.StatusCreated, status)
	issued := decode[service.IssuedProduct](t, env)

	status, env = s.do(http.MethodGet, "/api/v1/products/preview?data="+url.QueryEscape(issued.QRPayload), "", nil)
	require.Equal(t, http.StatusOK, status)
	summary := decode[model.PublicProductSummary](t, env)
	require.Equal(t, "Kettle", summary.Name)
	require.NotContains(t, string(env.Data), issued.SecretKey)

	// Wrong secret.
	status, env = s.do(http.MethodPost, "/api/v1/registrations", "ect_alice", handler.RegisterRequest{Payload: issued.QRPayload, SecretKey: "nope"})
	require.Equal(t, http.StatusForbidden, status)
	require.False(t, env.Success)

	status, env = s.do(http.MethodPost, "/api/v1/registrations", "ect_alice", handler.RegisterRequest{Payload: issued.QRPayload, SecretKey: issued.SecretKey})
	require.Equal(t, http.StatusCreated, status)
	require.True(t, decode[handler.RegisterResponse](t, env).Success)

	status, env = s.do(http.MethodPost, "/api/v1/registrations", "ect_bob", handler.RegisterRequest{Payload: issued.QRPayload, SecretKey: issued.SecretKey})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "ALREADY_REGISTERED_BY_OTHER", env.Error.Code)

	// Manufacturers cannot register products.
	status, _ = s.do(http.MethodPost, "/api/v1/registrations", "ect_mfgA", handler.RegisterRequest{Payload: issued.QRPayload, SecretKey: issued.SecretKey})
	require.Equal(t, http.StatusForbidden, status)

	status, env = s.do(http.MethodGet, "/api/v1/consumers/me/products", "ect_alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]model.ConsumerScanRecord](t, env), 1)

	status, _ = s.do(http.MethodDelete, "/api/v1/consumers/me/products/SN001", "ect_alice", nil)
	require.Equal(t, http.StatusNoContent, status)

	status, _ = s.do(http.MethodDelete, "/api/v1/manufacturers/mfgA/products/"+issued.ProductID+"/instances/SN001", "ect_mfgA", nil)
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodGet, "/api/v1/products/preview?data="+url.QueryEscape(issued.QRPayload), "", nil)
	require.Equal(t, http.StatusNotFound, status)
}

func TestRecyclingOverHTTP(t *testing.T) {
	s := newTestServer(t)

	status, env := s.do(http.MethodPost, "/api/v1/manufacturers/mfgA/products", "staff", service.ProductSpec{Name: "Phone", Category: "Electronics", SerialNumber: "P-1"})
	require.Equal(t, http.StatusCreated, status)
	issued := decode[service.IssuedProduct](t, env)

	status, _ = s.do(http.MethodPost, "/api/v1/registrations", "ect_alice", handler.RegisterRequest{
		ManufacturerID: "mfgA", ProductID: issued.ProductID, SerialNumber: "P-1", SecretKey: issued.SecretKey,
	})
	require.Equal(t, http.StatusCreated, status)

	status, _ = s.do(http.MethodPut, "/api/v1/recyclers/R1", "ect_R1", service.FacilityInput{Location: &model.GeoPoint{Lat: 0.01, Lng: 0}, Address: "Depot 1"})
	require.Equal(t, http.StatusOK, status)
	status, _ = s.do(http.MethodPut, "/api/v1/recyclers/R1", "ect_R2", service.FacilityInput{Address: "hijack"})
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodPost, "/api/v1/recyclers/R1/inventory", "ect_R1", model.InventoryItem{ProductID: issued.ProductID, Name: "Phone buyback", Points: 50})
	require.Equal(t, http.StatusCreated, status)

	status, env = s.do(http.MethodGet, "/api/v1/consumers/me/recyclers?lat=0&lng=0&onlyMatched=true", "ect_alice", nil)
	require.Equal(t, http.StatusOK, status)
	matches := decode[[]model.RecyclerMatch](t, env)
	require.Len(t, matches, 1)
	require.Len(t, matches[0].MatchedProducts, 1)

	status, _ = s.do(http.MethodGet, "/api/v1/consumers/me/recyclers?lat=abc&lng=0", "ect_alice", nil)
	require.Equal(t, http.StatusBadRequest, status)

	status, env = s.do(http.MethodPost, "/api/v1/recycling-requests", "ect_alice", service.OpenRequestInput{SerialNumber: "P-1", RecyclerID: "R1"})
	require.Equal(t, http.StatusCreated, status)
	req := decode[model.RecyclingRequest](t, env)
	require.Equal(t, "alice@example.com", req.ConsumerEmail)

	status, _ = s.do(http.MethodPost, "/api/v1/recycling-requests/"+req.QueryID+"/accept", "ect_R2", nil)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodPost, "/api/v1/recycling-requests/"+req.QueryID+"/accept", "ect_alice", nil)
	require.Equal(t, http.StatusForbidden, status)

	status, _ = s.do(http.MethodPost, "/api/v1/recycling-requests/"+req.QueryID+"/accept", "ect_R1", nil)
	require.Equal(t, http.StatusOK, status)

	status, env = s.do(http.MethodPost, "/api/v1/recycling-requests/"+req.QueryID+"/reject", "ect_R1", handler.DecisionRequest{Reason: "late"})
	require.Equal(t, http.StatusConflict, status)
	require.Equal(t, "FAILED_PRECONDITION", env.Error.Code)

	status, env = s.do(http.MethodPost, "/api/v1/recycling-requests/"+req.QueryID+"/recycle-status", "ect_R1", handler.RecycleStatusRequest{RecycleStatus: model.RecycleStarted})
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, model.RecycleStarted, decode[model.RecyclingRequest](t, env).RecycleStatus)

	status, env = s.do(http.MethodGet, "/api/v1/consumers/me/products?active=true", "ect_alice", nil)
	require.Equal(t, http.StatusOK, status)
	require.Empty(t, decode[[]model.ConsumerScanRecord](t, env))

	status, env = s.do(http.MethodGet, "/api/v1/recyclers/R1/requests", "ect_R1", nil)
	require.Equal(t, http.StatusOK, status)
	require.Len(t, decode[[]model.RecyclingRequest](t, env), 1)

	status, _ = s.do(http.MethodGet, "/api/v1/recycling-requests/"+req.QueryID, "ect_bob", nil)
	require.Equal(t, http.StatusForbidden, status)
	status, _ = s.do(http.MethodDelete, "/api/v1/recycling-requests/"+req.QueryID, "ect_alice", nil)
	require.Equal(t, http.StatusNoContent, status)
}

func TestAdminRoutesRequireStaff(t *testing.T) {
	s := newTestServer(t)

	status, _ := s.do(http.MethodGet, "/api/v1/admin/stats", "ect_alice", nil)
	require.Equal(t, http.StatusForbidden, status)

	status, env := s.do(http.MethodGet, "/api/v1/admin/stats", "staff", nil)
	require.Equal(t, http.StatusOK, status)
	require.Contains(t, string(env.Data), `"db_type":"memory"`)

	status, env = s.do(http.MethodPost, "/api/v1/admin/sweep", "staff", nil)
	require.Equal(t, http.StatusOK, status)
	require.Equal(t, service.SweepReport{}, decode[service.SweepReport](t, env))
}
