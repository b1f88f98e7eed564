package repository

import (
	"context"
	"fmt"

	"ecotrace-api/internal/docstore"
)

// ItemError reports a listed document that could not be decoded.
type ItemError struct {
	Path string
	Err  error
}

func (e ItemError) Error() string {
	return fmt.Sprintf("%s: %v", e.Path, e.Err)
}

func (e ItemError) Unwrap() error { return e.Err }

// get loads and decodes the document at path. Returns nil, nil when absent.
func get[T any](ctx context.Context, r docstore.Reader, path string) (*T, error) {
	doc, err := r.Get(ctx, path)
	if err != nil {
		return nil, fmt.Errorf("failed to get %s: %w", path, err)
	}
	if doc == nil {
		return nil, nil
	}
	var v T
	if err := docstore.Decode(path, doc, &v); err != nil {
		return nil, err
	}
	return &v, nil
}

// put encodes v and writes it to path.
func put(ctx context.Context, w docstore.Writer, path string, v interface{}, opts ...docstore.SetOption) error {
	doc, err := docstore.Encode(v)
	if err != nil {
		return err
	}
	if err := w.Set(ctx, path, doc, opts...); err != nil {
		return fmt.Errorf("failed to write %s: %w", path, err)
	}
	return nil
}

// list decodes every child of collection. Documents that fail to decode are
// returned as ItemErrors instead of failing the listing; fill sets key fields
// from the document id.
func list[T any](ctx context.Context, r docstore.Reader, collection string, fill func(id string, v *T)) ([]T, []ItemError, error) {
	snaps, err := r.List(ctx, collection)
	if err != nil {
		return nil, nil, fmt.Errorf("failed to list %s: %w", collection, err)
	}

	out := make([]T, 0, len(snaps))
	var bad []ItemError
	for _, snap := range snaps {
		var v T
		if err := docstore.Decode(snap.Path, snap.Data, &v); err != nil {
			bad = append(bad, ItemError{Path: snap.Path, Err: err})
			continue
		}
		if fill != nil {
			fill(snap.ID, &v)
		}
		out = append(out, v)
	}
	return out, bad, nil
}
