package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/go-sql-driver/mysql"

	"carvalue-api/internal/model"
)

// mysqlDuplicateEntry is ER_DUP_ENTRY.
const mysqlDuplicateEntry = 1062

// MySQLListingRepository implements ListingRepository using MySQL.
type MySQLListingRepository struct {
	db *sql.DB
}

var _ ListingRepository = (*MySQLListingRepository)(nil)

// NewMySQLListingRepository connects, applies migrations and returns a repository.
func NewMySQLListingRepository(ctx context.Context, dsn string) (*MySQLListingRepository, error) {
	db, err := OpenMySQL(ctx, dsn)
	if err != nil {
		return nil, err
	}
	if _, err := Migrate(ctx, db, DialectMySQL); err != nil {
		db.Close()
		return nil, err
	}
	return NewMySQLListingRepositoryFromDB(db), nil
}

// OpenMySQL opens and pings a pooled MySQL handle.
func OpenMySQL(ctx context.Context, dsn string) (*sql.DB, error) {
	db, err := sql.Open("mysql", dsn)
	if err != nil {
		return nil, fmt.Errorf("failed to open MySQL: %w", err)
	}

	db.SetMaxOpenConns(25)
	db.SetMaxIdleConns(10)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()

	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("failed to ping MySQL: %w", err)
	}
	return db, nil
}

// NewMySQLListingRepositoryFromDB wraps an open handle without migrating.
func NewMySQLListingRepositoryFromDB(db *sql.DB) *MySQLListingRepository {
	return &MySQLListingRepository{db: db}
}

// InsertIfAbsent stores l unless its external id is already recorded.
func (r *MySQLListingRepository) InsertIfAbsent(ctx context.Context, l *model.Listing) error {
	normalize(l)

	query := `
		INSERT INTO listings (source, external_id, make, model, year, mileage, price, vehicle_condition, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)`

	res, err := r.db.ExecContext(ctx, query,
		l.Source, nullable(l.ExternalID), l.Make, l.Model, l.Year, l.Mileage, l.Price, string(l.Condition), l.CreatedAt.UTC())
	if err != nil {
		var myErr *mysql.MySQLError
		if errors.As(err, &myErr) && myErr.Number == mysqlDuplicateEntry {
			return ErrDuplicate
		}
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read listing id: %w", err)
	}
	l.ID = id
	return nil
}

// Exists reports whether externalID is stored.
func (r *MySQLListingRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	return exists(ctx, r.db, existsQuery, externalID)
}

// QueryComparables returns price points inside the comparability window.
func (r *MySQLListingRepository) QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error) {
	return queryComparables(ctx, r.db, comparablesQuery, q)
}

// GetStats returns statistics about the listing database.
func (r *MySQLListingRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	stats := make(map[string]interface{})
	stats["backend"] = "mysql"

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_listings"] = count

	dbStats := r.db.Stats()
	stats["connections"] = map[string]interface{}{
		"open":     dbStats.OpenConnections,
		"in_use":   dbStats.InUse,
		"idle":     dbStats.Idle,
		"max_open": dbStats.MaxOpenConnections,
	}
	return stats, nil
}

// DeleteOlderThan removes listings created before cutoff.
func (r *MySQLListingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old listings: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks the database connection.
func (r *MySQLListingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection pool.
func (r *MySQLListingRepository) Close() error {
	return r.db.Close()
}
