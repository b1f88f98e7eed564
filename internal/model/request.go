package model

import "time"

// RequestStatus is the approval lifecycle of a recycling request.
type RequestStatus string

const (
	RequestPending  RequestStatus = "pending"
	RequestAccepted RequestStatus = "accepted"
	RequestRejected RequestStatus = "rejected"
)

// Terminal reports whether no further approval transition is possible.
func (s RequestStatus) Terminal() bool {
	return s == RequestAccepted || s == RequestRejected
}

// RecyclingRequest asks a recycler to take back a registered product.
type RecyclingRequest struct {
	QueryID        string        `json:"queryId"`
	Status         RequestStatus `json:"status"`
	RecycleStatus  RecycleStatus `json:"recycleStatus"`
	ConsumerID     string        `json:"consumerId"`
	ConsumerName   string        `json:"consumerName,omitempty"`
	ConsumerEmail  string        `json:"consumerEmail,omitempty"`
	ConsumerPhone  string        `json:"consumerPhone,omitempty"`
	RecyclerID     string        `json:"recyclerId"`
	ManufacturerID string        `json:"manufacturerId"`
	ProductID      string        `json:"productId"`
	SerialNumber   string        `json:"serialNumber"`
	ProductName    string        `json:"productName,omitempty"`
	CreatedAt      time.Time     `json:"createdAt"`
	UpdatedAt      time.Time     `json:"updatedAt"`
	FinishedAt     *time.Time    `json:"finishedAt,omitempty"`
}

// Ref returns the copy embedded in the consumer's scan record.
func (r *RecyclingRequest) Ref() *RequestRef {
	return &RequestRef{
		QueryID:       r.QueryID,
		RecyclerID:    r.RecyclerID,
		Status:        r.Status,
		RecycleStatus: r.RecycleStatus,
	}
}

// Validate checks that a stored request carries known states.
func (r *RecyclingRequest) Validate() error {
	switch r.Status {
	case RequestPending, RequestAccepted, RequestRejected:
	default:
		return Errorf(KindDataCorruption, "recycling request %s: unknown status %q", r.QueryID, r.Status)
	}
	if !r.RecycleStatus.Valid() {
		return Errorf(KindDataCorruption, "recycling request %s: unknown recycle status %q", r.QueryID, r.RecycleStatus)
	}
	return nil
}

// RejectionNotice is the out-of-band message sent when a request is rejected.
type RejectionNotice struct {
	Recipient   string `json:"recipient"`
	ProductName string `json:"productName"`
	Reason      string `json:"reason"`
}
