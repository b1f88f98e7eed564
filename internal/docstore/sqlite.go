package docstore

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"os"
	"path/filepath"

	"github.com/rs/zerolog/log"
	"modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
	sqlite3 "modernc.org/sqlite/lib"
)

const sqliteSchema = `
	CREATE TABLE IF NOT EXISTS documents (
		path TEXT PRIMARY KEY,
		parent TEXT NOT NULL,
		data TEXT NOT NULL,
		updated_at DATETIME NOT NULL
	);
	CREATE INDEX IF NOT EXISTS idx_documents_parent ON documents(parent);
	`

// SQLiteStore implements Store on a single SQLite file.
type SQLiteStore struct {
	sqlStore
}

// NewSQLiteStore opens (or creates) the database at dbPath.
// dbPath is the path to the SQLite database file (e.g., "./data/ecotrace.db")
func NewSQLiteStore(dbPath string) (*SQLiteStore, error) {
	if dir := filepath.Dir(dbPath); dir != "" && dir != "." {
		if err := os.MkdirAll(dir, 0o755); err != nil {
			return nil, fmt.Errorf("failed to create SQLite directory: %w", err)
		}
	}

	// WAL for concurrent readers, immediate transactions so writers queue on
	// the busy timeout instead of failing on lock upgrade.
	dsn := fmt.Sprintf("file:%s?_pragma=journal_mode(WAL)&_pragma=synchronous(NORMAL)&_pragma=busy_timeout(5000)&_txlock=immediate", dbPath)

	db, err := sql.Open("sqlite", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	s := &SQLiteStore{sqlStore{
		db: db,
		dialect: dialect{
			name:       "sqlite",
			schema:     sqliteSchema,
			rebind:     identity,
			isConflict: isSQLiteConflict,
		},
		maxAttempts: DefaultMaxAttempts,
	}}

	if err := s.createTables(context.Background()); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to create tables: %w", err)
	}

	log.Info().Str("component", "SQLiteStore").Str("path", dbPath).Msg("initialized")
	return s, nil
}

func isSQLiteConflict(err error) bool {
	var se *sqlite.Error
	if !errors.As(err, &se) {
		return false
	}
	switch se.Code() & 0xff {
	case sqlite3.SQLITE_BUSY, sqlite3.SQLITE_LOCKED:
		return true
	}
	return false
}

// Ensure SQLiteStore implements Store
var _ Store = (*SQLiteStore)(nil)
