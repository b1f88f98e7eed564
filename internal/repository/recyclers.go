package repository

import (
	"context"
	"fmt"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
)

// GetFacility loads a recycler facility. Returns nil, nil when absent.
func GetFacility(ctx context.Context, r docstore.Reader, recyclerID string) (*model.RecyclerFacility, error) {
	f, err := get[model.RecyclerFacility](ctx, r, RecyclerPath(recyclerID))
	if err != nil || f == nil {
		return f, err
	}
	f.RecyclerID = recyclerID
	return f, nil
}

// PutFacility merge-writes a recycler facility.
func PutFacility(ctx context.Context, w docstore.Writer, f *model.RecyclerFacility) error {
	return put(ctx, w, RecyclerPath(f.RecyclerID), f, docstore.Merge())
}

// ListFacilities returns every recycler facility.
func ListFacilities(ctx context.Context, r docstore.Reader) ([]model.RecyclerFacility, []ItemError, error) {
	return list(ctx, r, colRecyclers, func(id string, f *model.RecyclerFacility) {
		f.RecyclerID = id
	})
}

// ListInventory returns a recycler's inventory.
func ListInventory(ctx context.Context, r docstore.Reader, recyclerID string) ([]model.InventoryItem, []ItemError, error) {
	return list(ctx, r, InventoryCollection(recyclerID), func(id string, it *model.InventoryItem) {
		it.ItemID = id
	})
}

// PutInventoryItem writes one inventory item.
func PutInventoryItem(ctx context.Context, w docstore.Writer, recyclerID string, it *model.InventoryItem) error {
	return put(ctx, w, InventoryPath(recyclerID, it.ItemID), it)
}

// GetOrganization loads an organization profile. Returns nil, nil when absent.
func GetOrganization(ctx context.Context, r docstore.Reader, recyclerID string) (*model.Organization, error) {
	o, err := get[model.Organization](ctx, r, OrganizationPath(recyclerID))
	if err != nil || o == nil {
		return o, err
	}
	o.RecyclerID = recyclerID
	return o, nil
}

// PutOrganization merge-writes an organization profile.
func PutOrganization(ctx context.Context, w docstore.Writer, o *model.Organization) error {
	if err := w.Set(ctx, OrganizationPath(o.RecyclerID), docstore.Document{"name": o.Name}, docstore.Merge()); err != nil {
		return fmt.Errorf("failed to write organization %s: %w", o.RecyclerID, err)
	}
	return nil
}
