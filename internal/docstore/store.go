// Package docstore is a typed adapter over a transactional document database.
//
// Documents are JSON objects addressed by slash-separated paths
// ("collection/id/subcollection/id"). Every backend stores the JSON form, so
// merge and field-mutator semantics are identical across memory, SQLite,
// PostgreSQL and MongoDB.
package docstore

import (
	"context"
	"errors"
	"strings"
	"time"

	"ecotrace-api/internal/model"
)

// Document is the decoded field map of a stored document.
type Document map[string]interface{}

// Snapshot is a document read from a collection listing.
type Snapshot struct {
	Path string
	ID   string
	Data Document
}

// ErrConflict marks a store-level transaction conflict. It is the only
// failure RunTransaction retries.
var ErrConflict = errors.New("docstore: transaction conflict")

// DefaultMaxAttempts bounds how often a conflicting transaction is retried.
const DefaultMaxAttempts = 5

// Reader is the read half shared by stores and transactions.
type Reader interface {
	// Get returns the document at path, or nil when it does not exist.
	Get(ctx context.Context, path string) (Document, error)

	// List returns the direct children of a collection ordered by path.
	List(ctx context.Context, collection string) ([]Snapshot, error)
}

// Writer is the write half shared by stores and transactions.
type Writer interface {
	// Set writes fields to path, replacing the document unless Merge is given.
	Set(ctx context.Context, path string, fields Document, opts ...SetOption) error

	// Update merges fields into an existing document. Fails with NotFound when absent.
	Update(ctx context.Context, path string, fields Document) error

	// Delete removes the document at path. Deleting an absent document is not an error.
	Delete(ctx context.Context, path string) error
}

// Accessor is satisfied by both Store and Tx so helpers can run inside or
// outside a transaction.
type Accessor interface {
	Reader
	Writer
}

// Tx is a transaction handle. All reads observe one consistent snapshot and
// all writes commit together or not at all.
type Tx interface {
	Accessor
}

// TxFunc is the body of a transaction. Returning an error aborts it.
type TxFunc func(ctx context.Context, tx Tx) error

// Store is a transactional document database.
type Store interface {
	Accessor

	// RunTransaction runs fn atomically, retrying on ErrConflict.
	RunTransaction(ctx context.Context, fn TxFunc) error

	// Close releases the underlying connection.
	Close() error
}

// SetOption configures a Set call.
type SetOption func(*setOptions)

type setOptions struct {
	merge bool
}

// Merge makes Set merge fields into the existing document instead of replacing it.
func Merge() SetOption {
	return func(o *setOptions) { o.merge = true }
}

func buildSetOptions(opts []SetOption) setOptions {
	var o setOptions
	for _, opt := range opts {
		opt(&o)
	}
	return o
}

// Join builds a document path from segments.
func Join(segments ...string) string {
	return strings.Join(segments, "/")
}

// ValidateSegment rejects ids that would break path addressing.
func ValidateSegment(name, value string) error {
	if strings.TrimSpace(value) == "" {
		return model.Errorf(model.KindInvalidArgument, "%s is required", name)
	}
	if strings.Contains(value, "/") {
		return model.Errorf(model.KindInvalidArgument, "%s must not contain '/'", name)
	}
	return nil
}

// splitPath validates a document path and returns its parent collection and id.
func splitPath(path string) (parent, id string, err error) {
	segments := strings.Split(path, "/")
	if len(segments) < 2 || len(segments)%2 != 0 {
		return "", "", model.Errorf(model.KindInvalidArgument, "invalid document path %q", path)
	}
	for _, s := range segments {
		if s == "" {
			return "", "", model.Errorf(model.KindInvalidArgument, "invalid document path %q", path)
		}
	}
	return strings.Join(segments[:len(segments)-1], "/"), segments[len(segments)-1], nil
}

func validateCollection(collection string) error {
	segments := strings.Split(collection, "/")
	if len(segments)%2 != 1 {
		return model.Errorf(model.KindInvalidArgument, "invalid collection path %q", collection)
	}
	for _, s := range segments {
		if s == "" {
			return model.Errorf(model.KindInvalidArgument, "invalid collection path %q", collection)
		}
	}
	return nil
}

func notFound(path string) error {
	return model.Errorf(model.KindNotFound, "document %s not found", path)
}

// runWithRetry retries attempt while it fails with ErrConflict.
func runWithRetry(ctx context.Context, maxAttempts int, attempt func() error) error {
	if maxAttempts <= 0 {
		maxAttempts = DefaultMaxAttempts
	}
	var err error
	for i := 0; i < maxAttempts; i++ {
		if ctxErr := ctx.Err(); ctxErr != nil {
			return model.Wrap(model.KindInternal, ctxErr, "transaction cancelled")
		}
		err = attempt()
		if !errors.Is(err, ErrConflict) {
			return err
		}
		select {
		case <-ctx.Done():
			return model.Wrap(model.KindInternal, ctx.Err(), "transaction cancelled")
		case <-time.After(time.Duration(i+1) * 10 * time.Millisecond):
		}
	}
	return model.Wrap(model.KindInternal, err, "transaction aborted after repeated conflicts")
}
