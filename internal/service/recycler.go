package service

import (
	"context"
	"fmt"
	"strings"
	"time"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
	"ecotrace-api/pkg/logger"
	"ecotrace-api/pkg/uid"

	"github.com/rs/zerolog"
)

// Geocoder resolves coordinates to a postal address. An empty address with a
// nil error means the location has no known address.
type Geocoder interface {
	ReverseGeocode(ctx context.Context, lat, lng float64) (string, error)
}

// FacilityInput describes a facility update. Empty fields are left unchanged.
type FacilityInput struct {
	Location         *model.GeoPoint `json:"location,omitempty"`
	Address          string          `json:"address,omitempty"`
	OrganizationName string          `json:"organizationName,omitempty"`
}

// RecyclerService manages recycler facilities and their inventory.
type RecyclerService struct {
	store    docstore.Store
	geocoder Geocoder
	orgCache *CachedOrganizationDirectory
	log      zerolog.Logger
	now      func() time.Time
}

// NewRecyclerService creates a recycler service. geocoder may be nil.
func NewRecyclerService(store docstore.Store, geocoder Geocoder) *RecyclerService {
	return &RecyclerService{
		store:    store,
		geocoder: geocoder,
		log:      logger.Component("RecyclerService"),
		now:      func() time.Time { return time.Now().UTC() },
	}
}

// SetOrganizationCache lets organization renames invalidate cached names.
func (s *RecyclerService) SetOrganizationCache(d *CachedOrganizationDirectory) {
	s.orgCache = d
}

// UpsertFacility merge-writes a facility. A missing address is looked up from
// the location on a best-effort basis.
func (s *RecyclerService) UpsertFacility(ctx context.Context, recyclerID string, in FacilityInput) (*model.RecyclerFacility, error) {
	if err := docstore.ValidateSegment("recyclerId", recyclerID); err != nil {
		return nil, err
	}
	if in.Location != nil && !in.Location.Valid() {
		return nil, model.Errorf(model.KindInvalidArgument, "invalid location %v,%v", in.Location.Lat, in.Location.Lng)
	}

	address := strings.TrimSpace(in.Address)
	if address == "" && in.Location != nil && s.geocoder != nil {
		resolved, err := s.geocoder.ReverseGeocode(ctx, in.Location.Lat, in.Location.Lng)
		if err != nil {
			s.log.Warn().Err(err).Str("recycler_id", recyclerID).Msg("reverse geocoding failed, address left unset")
		} else {
			address = resolved
		}
	}

	f := &model.RecyclerFacility{
		RecyclerID: recyclerID,
		Location:   in.Location,
		Address:    address,
		UpdatedAt:  s.now(),
	}
	if err := repository.PutFacility(ctx, s.store, f); err != nil {
		return nil, fmt.Errorf("failed to upsert facility: %w", err)
	}

	if name := strings.TrimSpace(in.OrganizationName); name != "" {
		if err := repository.PutOrganization(ctx, s.store, &model.Organization{RecyclerID: recyclerID, Name: name}); err != nil {
			return nil, fmt.Errorf("failed to upsert organization: %w", err)
		}
		if s.orgCache != nil {
			if err := s.orgCache.Invalidate(ctx, recyclerID); err != nil {
				s.log.Warn().Err(err).Str("recycler_id", recyclerID).Msg("organization cache invalidation failed")
			}
		}
	}

	return repository.GetFacility(ctx, s.store, recyclerID)
}

// GetFacility returns a facility or NotFound.
func (s *RecyclerService) GetFacility(ctx context.Context, recyclerID string) (*model.RecyclerFacility, error) {
	if err := docstore.ValidateSegment("recyclerId", recyclerID); err != nil {
		return nil, err
	}
	f, err := repository.GetFacility(ctx, s.store, recyclerID)
	if err != nil {
		return nil, err
	}
	if f == nil {
		return nil, model.Errorf(model.KindNotFound, "recycler %s not found", recyclerID)
	}
	return f, nil
}

// PutInventoryItem adds or replaces an inventory item. A missing ItemID is generated.
func (s *RecyclerService) PutInventoryItem(ctx context.Context, recyclerID string, item model.InventoryItem) (*model.InventoryItem, error) {
	if err := docstore.ValidateSegment("recyclerId", recyclerID); err != nil {
		return nil, err
	}
	if err := docstore.ValidateSegment("productId", item.ProductID); err != nil {
		return nil, err
	}
	if item.ItemID == "" {
		item.ItemID = uid.New()
	} else if err := docstore.ValidateSegment("itemId", item.ItemID); err != nil {
		return nil, err
	}
	if item.Points < 0 || item.Price < 0 {
		return nil, model.Errorf(model.KindInvalidArgument, "points and price must not be negative")
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		f, err := tx.Get(ctx, repository.RecyclerPath(recyclerID))
		if err != nil {
			return err
		}
		if f == nil {
			return model.Errorf(model.KindNotFound, "recycler %s not found", recyclerID)
		}
		return repository.PutInventoryItem(ctx, tx, recyclerID, &item)
	})
	if err != nil {
		return nil, fmt.Errorf("failed to put inventory item: %w", err)
	}
	return &item, nil
}

// RemoveInventoryItem deletes an inventory item.
func (s *RecyclerService) RemoveInventoryItem(ctx context.Context, recyclerID, itemID string) error {
	if err := docstore.ValidateSegment("recyclerId", recyclerID); err != nil {
		return err
	}
	if err := docstore.ValidateSegment("itemId", itemID); err != nil {
		return err
	}

	err := s.store.RunTransaction(ctx, func(ctx context.Context, tx docstore.Tx) error {
		path := repository.InventoryPath(recyclerID, itemID)
		existing, err := tx.Get(ctx, path)
		if err != nil {
			return err
		}
		if existing == nil {
			return model.Errorf(model.KindNotFound, "inventory item %s not found", itemID)
		}
		return tx.Delete(ctx, path)
	})
	if err != nil {
		return fmt.Errorf("failed to remove inventory item: %w", err)
	}
	return nil
}

// ListInventory returns a recycler's inventory, skipping malformed items.
func (s *RecyclerService) ListInventory(ctx context.Context, recyclerID string) ([]model.InventoryItem, error) {
	if err := docstore.ValidateSegment("recyclerId", recyclerID); err != nil {
		return nil, err
	}
	items, bad, err := repository.ListInventory(ctx, s.store, recyclerID)
	if err != nil {
		return nil, err
	}
	for _, b := range bad {
		s.log.Warn().Err(b.Err).Str("path", b.Path).Msg("skipping malformed inventory item")
	}
	return items, nil
}
