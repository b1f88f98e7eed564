package service

import (
	"context"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
	"ecotrace-api/internal/repository"
)

// Stats is the admin overview of the store.
type Stats struct {
	Consumers       int                         `json:"consumers"`
	Recyclers       int                         `json:"recyclers"`
	Located         int                         `json:"recyclersWithLocation"`
	Requests        int                         `json:"requests"`
	RequestsByState map[model.RequestStatus]int `json:"requestsByStatus"`
	Malformed       int                         `json:"malformedDocuments"`
}

// StatsService computes admin statistics.
type StatsService struct {
	store docstore.Reader
}

// NewStatsService creates a stats service.
func NewStatsService(store docstore.Reader) *StatsService {
	return &StatsService{store: store}
}

// GetStats counts consumers, recyclers and requests.
func (s *StatsService) GetStats(ctx context.Context) (*Stats, error) {
	consumers, err := repository.ListConsumerIDs(ctx, s.store)
	if err != nil {
		return nil, err
	}
	facilities, badFacilities, err := repository.ListFacilities(ctx, s.store)
	if err != nil {
		return nil, err
	}
	reqs, badRequests, err := repository.ListRequests(ctx, s.store, nil)
	if err != nil {
		return nil, err
	}

	st := &Stats{
		Consumers:       len(consumers),
		Recyclers:       len(facilities),
		Requests:        len(reqs),
		RequestsByState: map[model.RequestStatus]int{},
		Malformed:       len(badFacilities) + len(badRequests),
	}
	for _, f := range facilities {
		if f.Location != nil {
			st.Located++
		}
	}
	for _, r := range reqs {
		st.RequestsByState[r.Status]++
	}
	return st, nil
}
