package docstore

import (
	"context"
	"database/sql"
	"fmt"
	"strings"
	"time"

	"ecotrace-api/internal/model"
)

// dialect captures the differences between SQL backends.
type dialect struct {
	name       string
	schema     string
	txOptions  *sql.TxOptions
	rebind     func(query string) string
	isConflict func(err error) bool
}

// sqlStore keeps documents in a single table keyed by path.
type sqlStore struct {
	db          *sql.DB
	dialect     dialect
	maxAttempts int
}

const (
	queryGet    = `SELECT data FROM documents WHERE path = ?`
	queryList   = `SELECT path, data FROM documents WHERE parent = ? ORDER BY path`
	queryDelete = `DELETE FROM documents WHERE path = ?`
	queryUpsert = `
		INSERT INTO documents (path, parent, data, updated_at)
		VALUES (?, ?, ?, ?)
		ON CONFLICT (path) DO UPDATE SET
			data = excluded.data,
			updated_at = excluded.updated_at`
)

// queryer is satisfied by *sql.DB and *sql.Tx.
type queryer interface {
	ExecContext(ctx context.Context, query string, args ...interface{}) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...interface{}) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...interface{}) *sql.Row
}

func (s *sqlStore) createTables(ctx context.Context) error {
	_, err := s.db.ExecContext(ctx, s.dialect.schema)
	return err
}

func (s *sqlStore) classify(err error, action string) error {
	if err == nil {
		return nil
	}
	if s.dialect.isConflict(err) {
		return fmt.Errorf("%s: %w", action, ErrConflict)
	}
	return model.Wrap(model.KindInternal, err, fmt.Sprintf("failed to %s", action))
}

// Get returns the document at path, or nil when absent.
func (s *sqlStore) Get(ctx context.Context, path string) (Document, error) {
	return s.get(ctx, s.db, path)
}

// List returns the direct children of collection.
func (s *sqlStore) List(ctx context.Context, collection string) ([]Snapshot, error) {
	return s.list(ctx, s.db, collection)
}

// Set writes fields to path.
func (s *sqlStore) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Set(ctx, path, fields, opts...)
	})
}

// Update merges fields into an existing document.
func (s *sqlStore) Update(ctx context.Context, path string, fields Document) error {
	return s.RunTransaction(ctx, func(ctx context.Context, tx Tx) error {
		return tx.Update(ctx, path, fields)
	})
}

// Delete removes the document at path.
func (s *sqlStore) Delete(ctx context.Context, path string) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	_, err := s.db.ExecContext(ctx, s.dialect.rebind(queryDelete), path)
	return s.classify(err, "delete document")
}

// RunTransaction runs fn inside a database transaction, retrying conflicts.
func (s *sqlStore) RunTransaction(ctx context.Context, fn TxFunc) error {
	return runWithRetry(ctx, s.maxAttempts, func() error {
		return s.runOnce(ctx, fn)
	})
}

func (s *sqlStore) runOnce(ctx context.Context, fn TxFunc) error {
	sqlTx, err := s.db.BeginTx(ctx, s.dialect.txOptions)
	if err != nil {
		return s.classify(err, "begin transaction")
	}
	defer sqlTx.Rollback()

	if err := fn(ctx, &sqlTxHandle{store: s, tx: sqlTx}); err != nil {
		return err
	}

	if err := sqlTx.Commit(); err != nil {
		return s.classify(err, "commit transaction")
	}
	return nil
}

// Close closes the database connection.
func (s *sqlStore) Close() error {
	return s.db.Close()
}

func (s *sqlStore) get(ctx context.Context, q queryer, path string) (Document, error) {
	if _, _, err := splitPath(path); err != nil {
		return nil, err
	}

	var data string
	err := q.QueryRowContext(ctx, s.dialect.rebind(queryGet), path).Scan(&data)
	if err == sql.ErrNoRows {
		return nil, nil
	}
	if err != nil {
		return nil, s.classify(err, "get document")
	}
	return decodeDocument(path, []byte(data))
}

func (s *sqlStore) list(ctx context.Context, q queryer, collection string) ([]Snapshot, error) {
	if err := validateCollection(collection); err != nil {
		return nil, err
	}

	rows, err := q.QueryContext(ctx, s.dialect.rebind(queryList), collection)
	if err != nil {
		return nil, s.classify(err, "list documents")
	}
	defer rows.Close()

	prefix := collection + "/"
	var out []Snapshot
	for rows.Next() {
		var path, data string
		if err := rows.Scan(&path, &data); err != nil {
			return nil, s.classify(err, "scan document")
		}
		doc, err := decodeDocument(path, []byte(data))
		if err != nil {
			return nil, err
		}
		out = append(out, Snapshot{Path: path, ID: strings.TrimPrefix(path, prefix), Data: doc})
	}
	if err := rows.Err(); err != nil {
		return nil, s.classify(err, "list documents")
	}
	return out, nil
}

func (s *sqlStore) upsert(ctx context.Context, q queryer, path string, doc Document) error {
	parent, _, err := splitPath(path)
	if err != nil {
		return err
	}
	data, err := encodeDocument(doc)
	if err != nil {
		return model.Wrap(model.KindInvalidArgument, err, "failed to encode document")
	}
	_, err = q.ExecContext(ctx, s.dialect.rebind(queryUpsert), path, parent, string(data), time.Now().UTC())
	return s.classify(err, "write document")
}

// sqlTxHandle implements Tx over a *sql.Tx.
type sqlTxHandle struct {
	store *sqlStore
	tx    *sql.Tx
}

func (t *sqlTxHandle) Get(ctx context.Context, path string) (Document, error) {
	return t.store.get(ctx, t.tx, path)
}

func (t *sqlTxHandle) List(ctx context.Context, collection string) ([]Snapshot, error) {
	return t.store.list(ctx, t.tx, collection)
}

func (t *sqlTxHandle) Set(ctx context.Context, path string, fields Document, opts ...SetOption) error {
	o := buildSetOptions(opts)

	var base Document
	if o.merge {
		existing, err := t.store.get(ctx, t.tx, path)
		if err != nil {
			return err
		}
		base = existing
	}
	doc, err := applyFields(base, fields, o.merge)
	if err != nil {
		return err
	}
	return t.store.upsert(ctx, t.tx, path, doc)
}

func (t *sqlTxHandle) Update(ctx context.Context, path string, fields Document) error {
	existing, err := t.store.get(ctx, t.tx, path)
	if err != nil {
		return err
	}
	if existing == nil {
		return notFound(path)
	}
	doc, err := applyFields(existing, fields, true)
	if err != nil {
		return err
	}
	return t.store.upsert(ctx, t.tx, path, doc)
}

func (t *sqlTxHandle) Delete(ctx context.Context, path string) error {
	if _, _, err := splitPath(path); err != nil {
		return err
	}
	_, err := t.tx.ExecContext(ctx, t.store.dialect.rebind(queryDelete), path)
	return t.store.classify(err, "delete document")
}

func identity(query string) string { return query }

// rebindDollar rewrites ? placeholders to $1, $2, ... for PostgreSQL.
func rebindDollar(query string) string {
	var b strings.Builder
	n := 0
	for _, r := range query {
		if r == '?' {
			n++
			fmt.Fprintf(&b, "$%d", n)
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}
