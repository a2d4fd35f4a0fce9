package repository

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"carvalue-api/internal/model"

	_ "modernc.org/sqlite" // Pure Go SQLite driver - no CGO required
)

// SQLiteListingRepository implements ListingRepository using SQLite.
// Writes are serialized; reads share the lock.
type SQLiteListingRepository struct {
	db *sql.DB
	mu sync.RWMutex
}

var _ ListingRepository = (*SQLiteListingRepository)(nil)

// NewSQLiteListingRepository opens (or creates) the database at dbPath and
// applies migrations. Pass ":memory:" for an in-memory database.
func NewSQLiteListingRepository(ctx context.Context, dbPath string) (*SQLiteListingRepository, error) {
	if dbPath != ":memory:" {
		if err := os.MkdirAll(filepath.Dir(dbPath), 0o755); err != nil {
			return nil, fmt.Errorf("failed to create data directory: %w", err)
		}
	}

	db, err := OpenSQLite(dbPath)
	if err != nil {
		return nil, err
	}

	if _, err := Migrate(ctx, db, DialectSQLite); err != nil {
		db.Close()
		return nil, err
	}

	return &SQLiteListingRepository{db: db}, nil
}

// OpenSQLite opens a single-connection SQLite handle with WAL and a busy timeout.
func OpenSQLite(dbPath string) (*sql.DB, error) {
	db, err := sql.Open("sqlite", dbPath)
	if err != nil {
		return nil, fmt.Errorf("failed to open SQLite: %w", err)
	}

	// SQLite only supports 1 writer; a single connection also keeps ":memory:" alive
	db.SetMaxOpenConns(1)
	db.SetMaxIdleConns(1)
	db.SetConnMaxLifetime(0)

	for _, pragma := range []string{"PRAGMA busy_timeout = 5000", "PRAGMA journal_mode = WAL", "PRAGMA synchronous = NORMAL"} {
		if _, err := db.Exec(pragma); err != nil {
			db.Close()
			return nil, fmt.Errorf("failed to apply %q: %w", pragma, err)
		}
	}
	return db, nil
}

// InsertIfAbsent stores l unless its external id is already recorded.
func (r *SQLiteListingRepository) InsertIfAbsent(ctx context.Context, l *model.Listing) error {
	normalize(l)

	r.mu.Lock()
	defer r.mu.Unlock()

	query := `
		INSERT INTO listings (source, external_id, make, model, year, mileage, price, vehicle_condition, created_at)
		VALUES (?, ?, ?, ?, ?, ?, ?, ?, ?)
		ON CONFLICT(external_id) DO NOTHING`

	res, err := r.db.ExecContext(ctx, query,
		l.Source, nullable(l.ExternalID), l.Make, l.Model, l.Year, l.Mileage, l.Price, string(l.Condition), l.CreatedAt.UTC())
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}

	n, err := res.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to insert listing: %w", err)
	}
	if n == 0 {
		return ErrDuplicate
	}

	id, err := res.LastInsertId()
	if err != nil {
		return fmt.Errorf("failed to read listing id: %w", err)
	}
	l.ID = id
	return nil
}

// Exists reports whether externalID is stored.
func (r *SQLiteListingRepository) Exists(ctx context.Context, externalID string) (bool, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return exists(ctx, r.db, existsQuery, externalID)
}

// QueryComparables returns price points inside the comparability window.
func (r *SQLiteListingRepository) QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return queryComparables(ctx, r.db, comparablesQuery, q)
}

// GetStats returns statistics about the listing database.
func (r *SQLiteListingRepository) GetStats(ctx context.Context) (map[string]interface{}, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()

	stats := make(map[string]interface{})
	stats["backend"] = "sqlite"

	var count int64
	if err := r.db.QueryRowContext(ctx, "SELECT COUNT(*) FROM listings").Scan(&count); err != nil {
		return nil, err
	}
	stats["total_listings"] = count

	var signatures int64
	if err := r.db.QueryRowContext(ctx,
		"SELECT COUNT(*) FROM (SELECT DISTINCT make, model, vehicle_condition FROM listings)").Scan(&signatures); err == nil {
		stats["distinct_signatures"] = signatures
	}

	// Database file size (approximate from page count)
	var pageCount, pageSize int64
	if err := r.db.QueryRowContext(ctx, "PRAGMA page_count").Scan(&pageCount); err == nil {
		if err := r.db.QueryRowContext(ctx, "PRAGMA page_size").Scan(&pageSize); err == nil {
			stats["db_size_bytes"] = pageCount * pageSize
		}
	}

	return stats, nil
}

// DeleteOlderThan removes listings created before cutoff.
func (r *SQLiteListingRepository) DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	result, err := r.db.ExecContext(ctx, `DELETE FROM listings WHERE created_at < ?`, cutoff.UTC())
	if err != nil {
		return 0, fmt.Errorf("failed to delete old listings: %w", err)
	}
	return result.RowsAffected()
}

// Ping checks the database connection.
func (r *SQLiteListingRepository) Ping(ctx context.Context) error {
	return r.db.PingContext(ctx)
}

// Close closes the database connection.
func (r *SQLiteListingRepository) Close() error {
	return r.db.Close()
}
