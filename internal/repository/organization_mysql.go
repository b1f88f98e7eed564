package repository

import (
	"context"
	"database/sql"
	"fmt"
	"time"

	"ecotrace-api/internal/model"

	_ "github.com/go-sql-driver/mysql"
	"github.com/rs/zerolog/log"
)

// MySQLOrganizationRepository reads organization names from the shared
// accounts database.
type MySQLOrganizationRepository struct {
	db *sql.DB
}

// OpenMySQL opens and pings a MySQL connection pool.
func OpenMySQL(dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(10)
	db.SetMaxIdleConns(5)
	db.SetConnMaxLifetime(5 * time.Minute)

	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	defer cancel()
	if err := db.PingContext(ctx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// NewMySQLOrganizationRepository creates a new MySQL organization repository.
func NewMySQLOrganizationRepository(db *sql.DB) *MySQLOrganizationRepository {
	return &MySQLOrganizationRepository{db: db}
}

// GetOrganizationName finds the active organization linked to recyclerID.
func (r *MySQLOrganizationRepository) GetOrganizationName(ctx context.Context, recyclerID string) (string, error) {
	query := `SELECT name FROM organizations WHERE recycler_id = ? AND is_active = 1 LIMIT 1`

	var name string
	err := r.db.QueryRowContext(ctx, query, recyclerID).Scan(&name)
	if err != nil {
		if err == sql.ErrNoRows {
			return "", model.Errorf(model.KindNotFound, "organization not found for recycler: %s", recyclerID)
		}
		log.Error().Err(err).Str("component", "OrganizationRepository").Str("recycler_id", recyclerID).Msg("lookup failed")
		return "", fmt.Errorf("failed to get organization: %w", err)
	}

	return name, nil
}

// Ensure MySQLOrganizationRepository implements OrganizationRepository
var _ OrganizationRepository = (*MySQLOrganizationRepository)(nil)
