package model

import "time"

// RecycleStatus is the physical recycling lifecycle of a product instance.
type RecycleStatus string

const (
	RecycleUninitiated RecycleStatus = "uninitiated"
	RecycleStarted     RecycleStatus = "started"
	RecycleFinished    RecycleStatus = "finished"
)

var recycleOrder = map[RecycleStatus]int{
	RecycleUninitiated: 0,
	RecycleStarted:     1,
	RecycleFinished:    2,
}

// Valid reports whether s is a known status. The empty string is treated as
// uninitiated for documents written before the field existed.
func (s RecycleStatus) Valid() bool {
	if s == "" {
		return true
	}
	_, ok := recycleOrder[s]
	return ok
}

// Normalize maps the empty status to uninitiated.
func (s RecycleStatus) Normalize() RecycleStatus {
	if s == "" {
		return RecycleUninitiated
	}
	return s
}

// InProgress reports whether recycling has started or finished. Such items are
// excluded from active product lists and recycler matching.
func (s RecycleStatus) InProgress() bool {
	return s == RecycleStarted || s == RecycleFinished
}

// CanAdvanceTo reports whether moving from s to next goes strictly forward.
func (s RecycleStatus) CanAdvanceTo(next RecycleStatus) bool {
	from, ok := recycleOrder[s.Normalize()]
	if !ok {
		return false
	}
	to, ok := recycleOrder[next]
	if !ok {
		return false
	}
	return to > from
}

// ProductModel is the SKU-level record shared by all instances of a product line.
type ProductModel struct {
	ManufacturerID    string    `json:"manufacturerId"`
	ProductID         string    `json:"productId"`
	Name              string    `json:"name"`
	Category          string    `json:"category"`
	Recyclability     string    `json:"recyclability,omitempty"`
	RecoverableMetals []string  `json:"recoverableMetals,omitempty"`
	InstanceCount     int       `json:"instanceCount"`
	UpdatedAt         time.Time `json:"updatedAt"`
}

// ModelAttributes are the descriptive, mergeable fields of a ProductModel.
type ModelAttributes struct {
	Recyclability     string   `json:"recyclability,omitempty"`
	RecoverableMetals []string `json:"recoverableMetals,omitempty"`
}

// ProductInstance is one physical unit, carrying its private shared secret.
type ProductInstance struct {
	ManufacturerID  string        `json:"manufacturerId"`
	ProductID       string        `json:"productId"`
	SerialNumber    string        `json:"serialNumber"`
	SecretKey       string        `json:"secretKey"`
	Registered      bool          `json:"registered"`
	RegisteredBy    *string       `json:"registeredBy"`
	RegisteredUsers []string      `json:"registeredUsers"`
	UserCount       int           `json:"userCount"`
	RecycleStatus   RecycleStatus `json:"recycleStatus"`
	CreatedAt       time.Time     `json:"createdAt"`
	UpdatedAt       time.Time     `json:"updatedAt"`
}

// Validate checks the registration invariants of a stored instance.
func (p *ProductInstance) Validate() error {
	if p.SecretKey == "" {
		return Errorf(KindDataCorruption, "product instance %s has no secret key", p.SerialNumber)
	}
	if p.UserCount != len(p.RegisteredUsers) {
		return Errorf(KindDataCorruption, "product instance %s: userCount %d does not match %d registered users",
			p.SerialNumber, p.UserCount, len(p.RegisteredUsers))
	}
	if p.RegisteredBy != nil && !contains(p.RegisteredUsers, *p.RegisteredBy) {
		return Errorf(KindDataCorruption, "product instance %s: registeredBy is not a registered user", p.SerialNumber)
	}
	if !p.RecycleStatus.Valid() {
		return Errorf(KindDataCorruption, "product instance %s: unknown recycle status %q", p.SerialNumber, p.RecycleStatus)
	}
	return nil
}

// PublicProductSummary is the secret-free projection of a ProductInstance.
type PublicProductSummary struct {
	Name           string `json:"name"`
	Category       string `json:"category"`
	SerialNumber   string `json:"serialNumber"`
	ManufacturerID string `json:"manufacturerId"`
	ProductID      string `json:"productId"`
	QRPayload      string `json:"qrPayload"`
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}
