package service

import (
	"context"
	"math"
	"sort"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/pkg/logger"

	"github.com/rs/zerolog"
)

const (
	// DefaultMaxDistanceKm is the search radius used when none is given.
	DefaultMaxDistanceKm = 500.0

	// UnknownRecyclerName replaces an organization name that could not be resolved.
	UnknownRecyclerName = "Unknown recycler"
)

// MatchOptions tunes a nearby-recycler search.
type MatchOptions struct {
	MaxDistanceKm float64
	// OnlyMatched drops facilities whose inventory matches none of the
	// consumer's products.
	OnlyMatched bool
}

// Matcher finds recyclers near a consumer whose inventory accepts the
// consumer's registered product models.
type Matcher struct {
	store         docstore.Reader
	orgs          repository.OrganizationRepository
	maxDistanceKm float64
	log           zerolog.Logger
}

// NewMatcher creates a matcher. A non-positive defaultMaxDistanceKm falls back
// to DefaultMaxDistanceKm.
func NewMatcher(store docstore.Reader, orgs repository.OrganizationRepository, defaultMaxDistanceKm float64) *Matcher {
	if defaultMaxDistanceKm <= 0 {
		defaultMaxDistanceKm = DefaultMaxDistanceKm
	}
	return &Matcher{
		store:         store,
		orgs:          orgs,
		maxDistanceKm: defaultMaxDistanceKm,
		log:           logger.Component("Matcher"),
	}
}

type facilityDistance struct {
	facility model.RecyclerFacility
	distance float64
}

// FindNearbyMatches lists facilities within range of origin ordered by
// distance, each with the inventory items matching the consumer's active
// products. The join is best-effort: a facility whose inventory cannot be
// read is skipped and a failed organization lookup yields a placeholder name.
func (m *Matcher) FindNearbyMatches(ctx context.Context, origin model.GeoPoint, consumerID string, opts MatchOptions) ([]model.RecyclerMatch, error) {
	if consumerID == "" {
		return nil, model.Errorf(model.KindUnauthenticated, "authentication required")
	}
	if !origin.Valid() {
		return nil, model.Errorf(model.KindInvalidArgument, "invalid location %v,%v", origin.Lat, origin.Lng)
	}
	maxDistance := opts.MaxDistanceKm
	if math.IsNaN(maxDistance) || math.IsInf(maxDistance, 0) {
		return nil, model.Errorf(model.KindInvalidArgument, "invalid max distance %v", maxDistance)
	}
	if maxDistance <= 0 {
		maxDistance = m.maxDistanceKm
	}

	facilities, bad, err := repository.ListFacilities(ctx, m.store)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		m.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed facility")
	}

	nearby := make([]facilityDistance, 0, len(facilities))
	for _, f := range facilities {
		if f.Location == nil || !f.Location.Valid() {
			continue
		}
		d := Haversine(origin, *f.Location)
		if d <= maxDistance {
			nearby = append(nearby, facilityDistance{facility: f, distance: d})
		}
	}
	sort.Slice(nearby, func(i, j int) bool {
		if nearby[i].distance != nearby[j].distance {
			return nearby[i].distance < nearby[j].distance
		}
		return nearby[i].facility.RecyclerID < nearby[j].facility.RecyclerID
	})

	wanted, err := m.activeProductIDs(ctx, consumerID)
	if err != nil {
		return nil, err
	}

	matches, failures := Gather(ctx, nearby, func(ctx context.Context, fd facilityDistance) (model.RecyclerMatch, error) {
		return m.buildMatch(ctx, fd, wanted)
	})
	for _, f := range failures {
		m.log.Warn().Err(f.Err).Str("recycler_id", f.Key.facility.RecyclerID).Msg("skipping facility")
	}

	if !opts.OnlyMatched {
		return matches, nil
	}
	out := make([]model.RecyclerMatch, 0, len(matches))
	for _, match := range matches {
		if len(match.MatchedProducts) > 0 {
			out = append(out, match)
		}
	}
	return out, nil
}

// activeProductIDs returns the productIds of the consumer's scans that are not
// yet being recycled.
func (m *Matcher) activeProductIDs(ctx context.Context, consumerID string) (map[string]struct{}, error) {
	recs, bad, err := repository.ListScans(ctx, m.store, consumerID)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		m.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed scan record")
	}

	ids := make(map[string]struct{}, len(recs))
	for _, rec := range recs {
		if rec.Active() {
			ids[rec.ProductID] = struct{}{}
		}
	}
	return ids, nil
}

func (m *Matcher) buildMatch(ctx context.Context, fd facilityDistance, wanted map[string]struct{}) (model.RecyclerMatch, error) {
	matched := []model.InventoryItem{}
	if len(wanted) > 0 {
		items, bad, err := repository.ListInventory(ctx, m.store, fd.facility.RecyclerID)
		if err != nil {
			return model.RecyclerMatch{}, err
		}
		for _, b := range bad {
			m.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed inventory item")
		}
		for _, it := range items {
			if _, ok := wanted[it.ProductID]; ok {
				matched = append(matched, it)
			}
		}
	}

	return model.RecyclerMatch{
		Facility:         fd.facility,
		OrganizationName: m.organizationName(ctx, fd.facility.RecyclerID),
		DistanceKm:       fd.distance,
		MatchedProducts:  matched,
	}, nil
}

func (m *Matcher) organizationName(ctx context.Context, recyclerID string) string {
	if m.orgs == nil {
		return UnknownRecyclerName
	}
	name, err := m.orgs.GetOrganizationName(ctx, recyclerID)
	if err != nil || name == "" {
		if err != nil && model.KindOf(err) != model.KindNotFound {
			m.log.Warn().Err(err).Str("recycler_id", recyclerID).Msg("organization lookup failed")
		}
		return UnknownRecyclerName
	}
	return name
}
