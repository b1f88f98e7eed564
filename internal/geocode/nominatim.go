// Package geocode resolves coordinates to postal addresses.
package geocode

import (
	"context"
	"encoding/json"
	"fmt"
	"net/http"
	"net/url"
	"strconv"
	"strings"
	"time"

	"ecotrace-api/internal/cache"
)

// Config holds Nominatim client settings.
type Config struct {
	BaseURL   string
	UserAgent string
	Timeout   time.Duration
	CacheTTL  time.Duration
}

// Nominatim is a reverse geocoder backed by a Nominatim-compatible API.
type Nominatim struct {
	baseURL   string
	userAgent string
	client    *http.Client
	cache     cache.Cache
	cacheTTL  time.Duration
}

type reverseResponse struct {
	DisplayName string `json:"display_name"`
	Error       string `json:"error"`
}

// NewNominatim creates a reverse geocoder. c may be nil to disable caching.
func NewNominatim(cfg Config, c cache.Cache) *Nominatim {
	timeout := cfg.Timeout
	if timeout <= 0 {
		timeout = 5 * time.Second
	}
	return &Nominatim{
		baseURL:   strings.TrimSuffix(cfg.BaseURL, "/"),
		userAgent: cfg.UserAgent,
		client:    &http.Client{Timeout: timeout},
		cache:     c,
		cacheTTL:  cfg.CacheTTL,
	}
}

// ReverseGeocode returns the display address for (lat, lng), or "" when the
// service knows no address there.
func (n *Nominatim) ReverseGeocode(ctx context.Context, lat, lng float64) (string, error) {
	if n.cache == nil {
		return n.lookup(ctx, lat, lng)
	}

	key := cacheKey(lat, lng)
	value, err := n.cache.GetOrSet(ctx, key, n.cacheTTL, func() ([]byte, error) {
		addr, err := n.lookup(ctx, lat, lng)
		if err != nil {
			return nil, err
		}
		return []byte(addr), nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

func (n *Nominatim) lookup(ctx context.Context, lat, lng float64) (string, error) {
	q := url.Values{}
	q.Set("format", "jsonv2")
	q.Set("lat", strconv.FormatFloat(lat, 'f', 6, 64))
	q.Set("lon", strconv.FormatFloat(lng, 'f', 6, 64))

	req, err := http.NewRequestWithContext(ctx, http.MethodGet, n.baseURL+"/reverse?"+q.Encode(), nil)
	if err != nil {
		return "", fmt.Errorf("failed to build geocode request: %w", err)
	}
	req.Header.Set("Accept", "application/json")
	if n.userAgent != "" {
		req.Header.Set("User-Agent", n.userAgent)
	}

	resp, err := n.client.Do(req)
	if err != nil {
		return "", fmt.Errorf("failed to call geocoder: %w", err)
	}
	defer resp.Body.Close()

	if resp.StatusCode != http.StatusOK {
		return "", fmt.Errorf("geocoder returned status %d", resp.StatusCode)
	}

	var body reverseResponse
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		return "", fmt.Errorf("failed to decode geocoder response: %w", err)
	}
	if body.Error != "" {
		return "", nil
	}
	return strings.TrimSpace(body.DisplayName), nil
}

// cacheKey rounds to about a metre so nearby lookups share an entry.
func cacheKey(lat, lng float64) string {
	return fmt.Sprintf("geocode:%.5f,%.5f", lat, lng)
}

// Noop never resolves an address. It is used when geocoding is disabled.
type Noop struct{}

// ReverseGeocode always returns "".
func (Noop) ReverseGeocode(context.Context, float64, float64) (string, error) {
	return "", nil
}
