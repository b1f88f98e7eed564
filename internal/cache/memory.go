package cache

import (
	"context"
	"time"

	gocache "github.com/patrickmn/go-cache"
)

// MemoryCache is an in-process Cache backed by go-cache.
// Use this for development/testing or single-instance deployments.
type MemoryCache struct {
	c *gocache.Cache
}

// NewMemoryCache creates a cache that purges expired entries every cleanupInterval.
func NewMemoryCache(cleanupInterval time.Duration) *MemoryCache {
	if cleanupInterval <= 0 {
		cleanupInterval = time.Minute
	}
	return &MemoryCache{c: gocache.New(gocache.NoExpiration, cleanupInterval)}
}

// Get retrieves a value by key.
func (m *MemoryCache) Get(ctx context.Context, key string) ([]byte, error) {
	v, ok := m.c.Get(key)
	if !ok {
		return nil, ErrCacheMiss
	}
	value := v.([]byte)
	result := make([]byte, len(value))
	copy(result, value)
	return result, nil
}

// Set stores a copy of value with the given TTL. A zero TTL never expires.
func (m *MemoryCache) Set(ctx context.Context, key string, value []byte, ttl time.Duration) error {
	valueCopy := make([]byte, len(value))
	copy(valueCopy, value)

	if ttl <= 0 {
		ttl = gocache.NoExpiration
	}
	m.c.Set(key, valueCopy, ttl)
	return nil
}

// Delete removes a value by key.
func (m *MemoryCache) Delete(ctx context.Context, key string) error {
	m.c.Delete(key)
	return nil
}

// GetOrSet retrieves a value or computes and stores it if missing.
func (m *MemoryCache) GetOrSet(ctx context.Context, key string, ttl time.Duration, fn func() ([]byte, error)) ([]byte, error) {
	return getOrSet(ctx, m, key, ttl, fn)
}

// Len returns the number of cached entries, including expired ones not yet purged.
func (m *MemoryCache) Len() int {
	return m.c.ItemCount()
}

// Close drops every entry.
func (m *MemoryCache) Close() error {
	m.c.Flush()
	return nil
}

// Ensure MemoryCache implements Cache
var _ Cache = (*MemoryCache)(nil)
