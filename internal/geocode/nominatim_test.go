package geocode

import (
	"context"
	"net/http"
	"net/http/httptest"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"ecotrace-api/internal/cache"
)

func TestNominatim_ReverseGeocode(t *testing.T) {
	var calls int32
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		atomic.AddInt32(&calls, 1)
		assert.Equal(t, "/reverse", r.URL.Path)
		assert.Equal(t, "52.520000", r.URL.Query().Get("lat"))
		assert.Equal(t, "ecotrace-test", r.Header.Get("User-Agent"))
		w.Header().Set("Content-Type", "application/json")
		w.Write([]byte(`{"display_name":"Pariser Platz, Berlin"}`))
	}))
	defer srv.Close()

	c := cache.NewMemoryCache(time.Minute)
	g := NewNominatim(Config{BaseURL: srv.URL, UserAgent: "ecotrace-test", CacheTTL: time.Hour}, c)

	for i := 0; i < 2; i++ {
		addr, err := g.ReverseGeocode(context.Background(), 52.52, 13.405)
		require.NoError(t, err)
		require.Equal(t, "Pariser Platz, Berlin", addr)
	}
	require.Equal(t, int32(1), atomic.LoadInt32(&calls), "second lookup must hit the cache")
}

func TestNominatim_UnknownLocation(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.Write([]byte(`{"error":"Unable to geocode"}`))
	}))
	defer srv.Close()

	g := NewNominatim(Config{BaseURL: srv.URL}, nil)
	addr, err := g.ReverseGeocode(context.Background(), 0, 0)
	require.NoError(t, err)
	require.Empty(t, addr)
}

func TestNominatim_ServerError(t *testing.T) {
	srv := httptest.NewServer(http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		w.WriteHeader(http.StatusServiceUnavailable)
	}))
	defer srv.Close()

	g := NewNominatim(Config{BaseURL: srv.URL}, cache.NewMemoryCache(time.Minute))
	_, err := g.ReverseGeocode(context.Background(), 1, 1)
	require.Error(t, err)
}

func TestNoop(t *testing.T) {
	addr, err := Noop{}.ReverseGeocode(context.Background(), 52.52, 13.405)
	require.NoError(t, err)
	require.Empty(t, addr)
}
