package repository

import (
	"context"
	"database/sql"
	"fmt"
	"strconv"
	"strings"

	"carvalue-api/internal/model"
)

// Shared SQL for the database/sql backends. Queries are written with '?'
// placeholders and rebound for PostgreSQL.

const comparablesQuery = `
	SELECT id, external_id, price FROM listings
	WHERE make = ? AND model = ? AND vehicle_condition = ?
	  AND mileage BETWEEN ? AND ?
	  AND year BETWEEN ? AND ?
	  AND (external_id IS NULL OR external_id <> ?)
	  AND id <> ?`

const existsQuery = `SELECT COUNT(*) FROM listings WHERE external_id = ?`

func normalizeName(s string) string {
	return strings.ToLower(strings.TrimSpace(s))
}

// rebindDollar rewrites '?' placeholders to $1, $2, ...
func rebindDollar(q string) string {
	var b strings.Builder
	b.Grow(len(q) + 8)
	n := 0
	for _, r := range q {
		if r == '?' {
			n++
			b.WriteByte('$')
			b.WriteString(strconv.Itoa(n))
			continue
		}
		b.WriteRune(r)
	}
	return b.String()
}

func nullable(s string) sql.NullString {
	return sql.NullString{String: s, Valid: s != ""}
}

func comparableArgs(q model.ComparableQuery) []interface{} {
	return []interface{}{
		normalizeName(q.Make),
		normalizeName(q.Model),
		string(q.Condition),
		q.MinMileage, q.MaxMileage,
		q.MinYear, q.MaxYear,
		q.ExcludeExternalID,
		q.ExcludeID,
	}
}

func queryComparables(ctx context.Context, db *sql.DB, query string, q model.ComparableQuery) ([]model.PricePoint, error) {
	rows, err := db.QueryContext(ctx, query, comparableArgs(q)...)
	if err != nil {
		return nil, fmt.Errorf("failed to query comparables: %w", err)
	}
	defer rows.Close()

	var points []model.PricePoint
	for rows.Next() {
		var (
			rowID      int64
			externalID sql.NullString
			price      int64
		)
		if err := rows.Scan(&rowID, &externalID, &price); err != nil {
			return nil, fmt.Errorf("failed to scan comparable: %w", err)
		}
		points = append(points, model.PricePoint{ID: rowID, ExternalID: externalID.String, Price: price})
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("failed to read comparables: %w", err)
	}
	return points, nil
}

func exists(ctx context.Context, db *sql.DB, query, externalID string) (bool, error) {
	if externalID == "" {
		return false, nil
	}
	var count int
	if err := db.QueryRowContext(ctx, query, externalID).Scan(&count); err != nil {
		return false, fmt.Errorf("failed to check listing: %w", err)
	}
	return count > 0, nil
}
