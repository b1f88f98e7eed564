package repository

import (
	"context"
)

// OrganizationRepository resolves the organization behind a recycler.
type OrganizationRepository interface {
	// GetOrganizationName returns the display name for recyclerID.
	// Returns a NotFound error when the organization is unknown.
	GetOrganizationName(ctx context.Context, recyclerID string) (string, error)
}
