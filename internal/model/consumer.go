package model

import "time"

// RequestRef is the copy of a recycling request embedded in a scan record.
type RequestRef struct {
	QueryID       string        `json:"queryId"`
	RecyclerID    string        `json:"recyclerId"`
	Status        RequestStatus `json:"status"`
	RecycleStatus RecycleStatus `json:"recycleStatus"`
}

// Open reports whether the referenced request still blocks a new one.
func (r *RequestRef) Open() bool {
	return r != nil && (r.Status == RequestPending || r.Status == RequestAccepted)
}

// ConsumerScanRecord is a consumer's claim on one ProductInstance.
type ConsumerScanRecord struct {
	ConsumerID     string        `json:"consumerId"`
	SerialNumber   string        `json:"serialNumber"`
	ProductID      string        `json:"productId"`
	ManufacturerID string        `json:"manufacturerId"`
	ModelNumber    string        `json:"modelNumber"`
	RecycleStatus  RecycleStatus `json:"recycleStatus"`
	RegisteredAt   time.Time     `json:"registeredAt"`
	Request        *RequestRef   `json:"request,omitempty"`
}

// Active reports whether the scanned product is still eligible for recycling.
func (r *ConsumerScanRecord) Active() bool {
	return !r.RecycleStatus.InProgress()
}

// Validate checks the fields every scan record must carry.
func (r *ConsumerScanRecord) Validate() error {
	if r.ProductID == "" || r.ManufacturerID == "" || r.SerialNumber == "" {
		return Errorf(KindDataCorruption, "scan record %s/%s is missing its product identity", r.ConsumerID, r.SerialNumber)
	}
	if !r.RecycleStatus.Valid() {
		return Errorf(KindDataCorruption, "scan record %s/%s: unknown recycle status %q", r.ConsumerID, r.SerialNumber, r.RecycleStatus)
	}
	return nil
}

// ScanClaim indexes a consumer's scan record by model identity, enforcing one
// registered unit per (consumer, productId).
type ScanClaim struct {
	ProductID      string    `json:"productId"`
	ManufacturerID string    `json:"manufacturerId"`
	SerialNumber   string    `json:"serialNumber"`
	ClaimedAt      time.Time `json:"claimedAt"`
}
