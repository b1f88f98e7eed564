package repository

import (
	"context"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
)

// GetRequest loads and validates a recycling request. Returns nil, nil when absent.
func GetRequest(ctx context.Context, r docstore.Reader, queryID string) (*model.RecyclingRequest, error) {
	req, err := get[model.RecyclingRequest](ctx, r, RequestPath(queryID))
	if err != nil || req == nil {
		return req, err
	}
	req.QueryID = queryID
	if err := req.Validate(); err != nil {
		return nil, err
	}
	return req, nil
}

// PutRequest writes a full recycling request.
func PutRequest(ctx context.Context, w docstore.Writer, req *model.RecyclingRequest) error {
	return put(ctx, w, RequestPath(req.QueryID), req)
}

// ListRequests returns every recycling request accepted by keep. A nil keep
// returns all of them.
func ListRequests(ctx context.Context, r docstore.Reader, keep func(*model.RecyclingRequest) bool) ([]model.RecyclingRequest, []ItemError, error) {
	reqs, bad, err := list(ctx, r, colRequests, func(id string, req *model.RecyclingRequest) {
		req.QueryID = id
	})
	if err != nil {
		return nil, nil, err
	}

	out := make([]model.RecyclingRequest, 0, len(reqs))
	for i := range reqs {
		req := &reqs[i]
		if err := req.Validate(); err != nil {
			bad = append(bad, ItemError{Path: RequestPath(req.QueryID), Err: err})
			continue
		}
		if keep == nil || keep(req) {
			out = append(out, *req)
		}
	}
	return out, bad, nil
}
