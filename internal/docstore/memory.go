package docstore

import (
	"context"
	"sort"
	"strings"
	"sync"
)

// MemoryStore is an in-process Store. Transactions are serialised by a single
// lock, so they never conflict. Use it for development and tests.
type MemoryStore struct {
	mu   sync.RWMutex
	docs map[string][]byte
}

// NewMemoryStore creates an empty in-memory store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{docs: make(map[string][]byte)}
}

// Get returns the document at path, or nil when absent.
func (s *MemoryStore) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	data, ok := s.docs[path]
	if !ok {
		return nil, nil
	}
	return decodeDocument(path, data)
}

// List returns the direct children of collection.
func (s *MemoryStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	s.mu.RLock()
	defer s.mu.RUnlock()

	return listChildren(collection, s.docs, nil)
}

// Set writes fields to path.
func (s *MemoryStore) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, path, fields, opts...)
	})
}

// Update merges fields into an existing document.
func (s *MemoryStore) Update(ctx context.Context, path string, fields Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, path, fields)
	})
}

// Delete removes the document at path.
func (s *MemoryStore) Delete(ctx context.Context, path string) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Delete(ctx, path)
	})
}

// RunTransaction runs fn with exclusive access. Writes are staged and applied
// only when fn returns nil.
func (s *MemoryStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	if err := ctx.Err(); err != nil {
		return err
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	tx := &memoryTx{base: s.docs, staged: make(map[string][]byte)}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for path, data := range tx.staged {
		if data == nil {
			delete(s.docs, path)
			continue
		}
		s.docs[path] = data
	}
	return nil
}

// Len returns the number of stored documents.
func (s *MemoryStore) Len() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.docs)
}

// Close is a no-op.
func (s *MemoryStore) Close() error {
	return nil
}

// memoryTx stages writes over the committed documents. A nil staged value
// marks a deletion.
type memoryTx struct {
	base   map[string][]byte
	staged map[string][]byte
}

func (t *memoryTx) lookup(path string) ([]byte, bool) {
	if data, ok := t.staged[path]; ok {
		return data, data != nil
	}
	data, ok := t.base[path]
	return data, ok
}

func (t *memoryTx) Get(ctx context.Context, path string) (Document, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}
	data, ok := t.lookup(path)
	if !ok {
		return nil, nil
	}
	return decodeDocument(path, data)
}

func (t *memoryTx) List(ctx context.Context, collection string) ([]Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}
	return listChildren(collection, t.base, t.staged)
}

func (t *memoryTx) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	o := buildSetOptions(opts)

	var base Document
	if data, ok := t.lookup(path); ok && o.merge {
		doc, err := decodeDocument(path, data)
		if err != nil {
			return err
		}
		base = doc
	}
	return t.write(path, base, fields, o.merge)
}

func (t *memoryTx) Update(ctx context.Context, path string, fields Document) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	data, ok := t.lookup(path)
	if !ok {
		return notFound(path)
	}
	base, err := decodeDocument(path, data)
	if err != nil {
		return err
	}
	return t.write(path, base, fields, true)
}

func (t *memoryTx) Delete(ctx context.Context, path string) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	t.staged[path] = nil
	return nil
}

func (t *memoryTx) write(path string, base, fields Document, merge bool) error {
	doc, err := applyFields(base, fields, merge)
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return err
	}
	t.staged[path] = data
	return nil
}

// listChildren returns the direct children of collection, with staged writes
// taking precedence over committed ones.
func listChildren(collection string, base, staged map[string][]byte) ([]Snapshot, error) {
	prefix := collection + "/"
	merged := make(map[string][]byte)
	for path, data := range base {
		if isChild(prefix, path) {
			merged[path] = data
		}
	}
	for path, data := range staged {
		if !isChild(prefix, path) {
			continue
		}
		if data == nil {
			delete(merged, path)
			continue
		}
		merged[path] = data
	}

	paths := make([]string, 0, len(merged))
	for path := range merged {
		paths = append(paths, path)
	}
	sort.Strings(paths)

	out := make([]Snapshot, 0, len(paths))
	for _, path := range paths {
		doc, err := decodeDocument(path, merged[path])
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Path: path, ID: strings.TrimPrefix(path, prefix), Data: doc})
	}
	return out, nil
}

func isChild(prefix, path string) bool {
	return strings.HasPrefix(path, prefix) && !strings.Contains(strings.TrimPrefix(path, prefix), "/")
}

// Ensure MemoryStore implements Store
var _ Store = (*MemoryStore)(nil)
