package model

import "time"

// GeoPoint is a WGS84 coordinate in degrees.
type GeoPoint struct {
	Lat float64 `json:"lat"`
	Lng float64 `json:"lng"`
}

// Valid reports whether the point lies within coordinate bounds.
func (p GeoPoint) Valid() bool {
	return p.Lat >= -90 && p.Lat <= 90 && p.Lng >= -180 && p.Lng <= 180
}

// RecyclerFacility is a recycling drop-off location.
type RecyclerFacility struct {
	RecyclerID string    `json:"recyclerId"`
	Location   *GeoPoint `json:"location,omitempty"`
	Address    string    `json:"address,omitempty"`
	UpdatedAt  time.Time `json:"updatedAt"`
}

// InventoryItem is a sellable or point-earning product a recycler accepts.
// It is keyed by model identity, not serial number.
type InventoryItem struct {
	ItemID    string  `json:"itemId"`
	ProductID string  `json:"productId"`
	Name      string  `json:"name"`
	Points    int     `json:"points,omitempty"`
	Price     float64 `json:"price,omitempty"`
}

// RecyclerMatch is one entry of a nearby-recycler listing.
type RecyclerMatch struct {
	Facility         RecyclerFacility `json:"facility"`
	OrganizationName string           `json:"organizationName"`
	DistanceKm       float64          `json:"distanceKm"`
	MatchedProducts  []InventoryItem  `json:"matchedProducts"`
}

// Organization is the profile behind a recycler facility.
type Organization struct {
	RecyclerID string `json:"recyclerId,omitempty"`
	Name       string `json:"name"`
}
