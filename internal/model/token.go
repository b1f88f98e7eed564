package model

import "time"

// Caller roles carried by session tokens and API keys.
const (
	RoleConsumer     = "consumer"
	RoleManufacturer = "manufacturer"
	RoleRecycler     = "recycler"
	RoleAdmin        = "admin"
)

// TokenData contains the identity stored with a session token by the
// external sign-in service.
type TokenData struct {
	SubjectID   string    `json:"subject_id"`
	Role        string    `json:"role"`
	DisplayName string    `json:"display_name,omitempty"`
	Email       string    `json:"email,omitempty"`
	CreatedAt   time.Time `json:"created_at"`
	ExpiresAt   time.Time `json:"expires_at"`
}
