package repository

import (
	"context"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
)

// DocOrganizationRepository reads organization names from organizations/{id}.
type DocOrganizationRepository struct {
	store docstore.Reader
}

// NewDocOrganizationRepository creates an organization repository over the document store.
func NewDocOrganizationRepository(store docstore.Reader) *DocOrganizationRepository {
	return &DocOrganizationRepository{store: store}
}

// GetOrganizationName returns the stored name for recyclerID.
func (r *DocOrganizationRepository) GetOrganizationName(ctx context.Context, recyclerID string) (string, error) {
	org, err := GetOrganization(ctx, r.store, recyclerID)
	if err != nil {
		return "", err
	}
	if org == nil || org.Name == "" {
		return "", model.Errorf(model.KindNotFound, "organization not found for recycler: %s", recyclerID)
	}
	return org.Name, nil
}

// Ensure DocOrganizationRepository implements OrganizationRepository
var _ OrganizationRepository = (*DocOrganizationRepository)(nil)
