package repository

import (
	"context"
	"fmt"

	"ecotrace-api/internal/docstore"
	"ecotrace-api/internal/model"
)

// GetScan loads a consumer scan record. Returns nil, nil when absent.
func GetScan(ctx context.Context, r docstore.Reader, consumerID, serialNumber string) (*model.ConsumerScanRecord, error) {
	rec, err := get[model.ConsumerScanRecord](ctx, r, ScanPath(consumerID, serialNumber))
	if err != nil || rec == nil {
		return rec, err
	}
	rec.ConsumerID, rec.SerialNumber = consumerID, serialNumber
	if err := rec.Validate(); err != nil {
		return nil, err
	}
	return rec, nil
}

// PutScan writes a consumer scan record.
func PutScan(ctx context.Context, w docstore.Writer, rec *model.ConsumerScanRecord) error {
	return put(ctx, w, ScanPath(rec.ConsumerID, rec.SerialNumber), rec)
}

// ListScans returns a consumer's scan records. Malformed records are returned
// as ItemErrors.
func ListScans(ctx context.Context, r docstore.Reader, consumerID string) ([]model.ConsumerScanRecord, []ItemError, error) {
	recs, bad, err := list(ctx, r, ScansCollection(consumerID), func(id string, rec *model.ConsumerScanRecord) {
		rec.ConsumerID, rec.SerialNumber = consumerID, id
	})
	if err != nil {
		return nil, nil, err
	}

	out := recs[:0]
	for _, rec := range recs {
		if err := rec.Validate(); err != nil {
			bad = append(bad, ItemError{Path: ScanPath(consumerID, rec.SerialNumber), Err: err})
			continue
		}
		out = append(out, rec)
	}
	return out, bad, nil
}

// GetClaim loads the (consumer, productId) claim. Returns nil, nil when absent.
func GetClaim(ctx context.Context, r docstore.Reader, consumerID, productID string) (*model.ScanClaim, error) {
	return get[model.ScanClaim](ctx, r, ClaimPath(consumerID, productID))
}

// PutClaim writes the (consumer, productId) claim.
func PutClaim(ctx context.Context, w docstore.Writer, consumerID string, c *model.ScanClaim) error {
	return put(ctx, w, ClaimPath(consumerID, c.ProductID), c)
}

// TouchConsumer makes sure the consumer root document exists so sweeps can
// enumerate consumers.
func TouchConsumer(ctx context.Context, w docstore.Writer, consumerID string) error {
	if err := w.Set(ctx, ConsumerPath(consumerID), docstore.Document{"consumerId": consumerID}, docstore.Merge()); err != nil {
		return fmt.Errorf("failed to write consumer %s: %w", consumerID, err)
	}
	return nil
}

// ListConsumerIDs returns every consumer with a root document.
func ListConsumerIDs(ctx context.Context, r docstore.Reader) ([]string, error) {
	snaps, err := r.List(ctx, colConsumers)
	if err != nil {
		return nil, fmt.Errorf("failed to list consumers: %w", err)
	}
	ids := make([]string, 0, len(snaps))
	for _, s := range snaps {
		ids = append(ids, s.ID)
	}
	return ids, nil
}
