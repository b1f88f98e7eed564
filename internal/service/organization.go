package service

import (
	"context"
	"time"

	"ecotrace-api/internal/cache"
	"ecotrace-api/internal/repository"
)

const orgCacheKeyPrefix = "org:name:"

// CachedOrganizationDirectory caches successful organization name lookups.
// Failures are never cached so a transient error does not stick.
type CachedOrganizationDirectory struct {
	next  repository.OrganizationRepository
	cache cache.Cache
	ttl   time.Duration
}

// NewCachedOrganizationDirectory wraps next with c.
func NewCachedOrganizationDirectory(next repository.OrganizationRepository, c cache.Cache, ttl time.Duration) *CachedOrganizationDirectory {
	return &CachedOrganizationDirectory{next: next, cache: c, ttl: ttl}
}

// GetOrganizationName returns the cached name or loads it from next.
func (d *CachedOrganizationDirectory) GetOrganizationName(ctx context.Context, recyclerID string) (string, error) {
	value, err := d.cache.GetOrSet(ctx, orgCacheKeyPrefix+recyclerID, d.ttl, func() ([]byte, error) {
		name, err := d.next.GetOrganizationName(ctx, recyclerID)
		if err != nil {
			return nil, err
		}
		return []byte(name), nil
	})
	if err != nil {
		return "", err
	}
	return string(value), nil
}

// Invalidate drops the cached name for recyclerID.
func (d *CachedOrganizationDirectory) Invalidate(ctx context.Context, recyclerID string) error {
	return d.cache.Delete(ctx, orgCacheKeyPrefix+recyclerID)
}

// Ensure CachedOrganizationDirectory implements OrganizationRepository
var _ repository.OrganizationRepository = (*CachedOrganizationDirectory)(nil)
