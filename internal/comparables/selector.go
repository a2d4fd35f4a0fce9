// Package comparables selects the price sample a listing is valued against.
package comparables

import (
	"context"
	"fmt"
	"math"
	"strings"

	"carvalue-api/internal/model"
)

// DefaultTolerance is the relative mileage band on each side of a listing.
const DefaultTolerance = 0.15

// Source runs a comparability query against recorded listings.
type Source interface {
	QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error)
}

// Selector returns raw comparable prices for a listing.
type Selector interface {
	Select(ctx context.Context, listing *model.Listing) ([]int64, error)
}

// StoreSelector queries the listing store directly.
type StoreSelector struct {
	source    Source
	tolerance float64
}

var _ Selector = (*StoreSelector)(nil)

// NewStoreSelector creates a selector. A tolerance outside (0, 1) falls back to DefaultTolerance.
func NewStoreSelector(source Source, tolerance float64) *StoreSelector {
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultTolerance
	}
	return &StoreSelector{source: source, tolerance: tolerance}
}

// Window builds the comparability query for listing. It reports false when
// the listing has no make or model and therefore no signature.
func Window(listing *model.Listing, tolerance float64) (model.ComparableQuery, bool) {
	mk := strings.TrimSpace(listing.Make)
	md := strings.TrimSpace(listing.Model)
	if mk == "" || md == "" {
		return model.ComparableQuery{}, false
	}

	m := float64(listing.Mileage)
	q := model.ComparableQuery{
		Make:              mk,
		Model:             md,
		Condition:         listing.Condition,
		MinMileage:        int64(math.Floor(m * (1 - tolerance))),
		MaxMileage:        int64(math.Ceil(m * (1 + tolerance))),
		MinYear:           0,
		MaxYear:           math.MaxInt32,
		ExcludeExternalID: listing.ExternalID,
		ExcludeID:         listing.ID,
	}
	if listing.Year > 0 {
		q.MinYear = listing.Year - 1
		q.MaxYear = listing.Year + 1
	}
	if q.Condition == "" {
		q.Condition = model.ConditionUnknown
	}
	return q, true
}

// Select returns the prices of listings comparable to listing, unordered.
func (s *StoreSelector) Select(ctx context.Context, listing *model.Listing) ([]int64, error) {
	q, ok := Window(listing, s.tolerance)
	if !ok {
		return nil, nil
	}
	points, err := s.source.QueryComparables(ctx, q)
	if err != nil {
		return nil, fmt.Errorf("query comparables: %w", err)
	}
	return prices(points, q), nil
}

// prices drops the listing under evaluation, which a store may still return
// when it ignores the exclusion or the sample came from a cache. Listings
// without an external id are matched by their stored row id.
func prices(points []model.PricePoint, q model.ComparableQuery) []int64 {
	out := make([]int64, 0, len(points))
	for _, p := range points {
		if q.ExcludeID != 0 && p.ID == q.ExcludeID {
			continue
		}
		if q.ExcludeExternalID != "" && p.ExternalID == q.ExcludeExternalID {
			continue
		}
		out = append(out, p.Price)
	}
	return out
}
