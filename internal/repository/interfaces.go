package repository

import (
	"context"
	"errors"
	"time"

	"carvalue-api/internal/model"
)

// ErrDuplicate is returned by InsertIfAbsent when a listing with the same
// external id is already stored.
var ErrDuplicate = errors.New("listing already recorded")

// ListingRepository defines listing data access methods.
type ListingRepository interface {
	// InsertIfAbsent stores l and sets l.ID. A listing whose external id is
	// already present is rejected with ErrDuplicate. Listings without an
	// external id are always inserted.
	InsertIfAbsent(ctx context.Context, l *model.Listing) error

	// Exists reports whether a listing with externalID is stored.
	Exists(ctx context.Context, externalID string) (bool, error)

	// QueryComparables returns price points matching q, unordered.
	QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error)

	// GetStats returns statistics about the listing store.
	GetStats(ctx context.Context) (map[string]interface{}, error)

	// DeleteOlderThan removes listings created before cutoff.
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)

	// Ping checks the store is reachable.
	Ping(ctx context.Context) error

	// Close closes the repository connection.
	Close() error
}

// PlanRepository resolves subscription plans.
type PlanRepository interface {
	PlanOf(ctx context.Context, identity string) (model.Plan, error)
}

// normalize lower-cases make and model so lookups are case-insensitive.
func normalize(l *model.Listing) {
	l.Make = normalizeName(l.Make)
	l.Model = normalizeName(l.Model)
	if !l.Condition.Valid() {
		l.Condition = model.ConditionUnknown
	}
	if l.CreatedAt.IsZero() {
		l.CreatedAt = time.Now()
	}
}
