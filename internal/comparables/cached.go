package comparables

import (
	"context"
	"encoding/json"
	"fmt"
	"time"

	"carvalue-api/internal/cache"
	"carvalue-api/internal/logging"
	"carvalue-api/internal/model"
)

// CachedSelector memoizes the comparable points of each signature. The
// cached sample is unfiltered; the listing under evaluation is removed on
// every read so a cached sample never contains the listing itself.
type CachedSelector struct {
	source    Source
	cache     cache.Cache
	ttl       time.Duration
	tolerance float64
	logger    logging.Logger
}

var _ Selector = (*CachedSelector)(nil)

// NewCachedSelector wraps source with c. A zero ttl uses cache.DefaultTTL.
func NewCachedSelector(source Source, c cache.Cache, ttl time.Duration, tolerance float64, logger logging.Logger) *CachedSelector {
	if ttl <= 0 {
		ttl = cache.DefaultTTL
	}
	if tolerance <= 0 || tolerance >= 1 {
		tolerance = DefaultTolerance
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &CachedSelector{source: source, cache: c, ttl: ttl, tolerance: tolerance, logger: logger}
}

// Select returns comparable prices, populating the cache on a miss.
func (s *CachedSelector) Select(ctx context.Context, listing *model.Listing) ([]int64, error) {
	q, ok := Window(listing, s.tolerance)
	if !ok {
		return nil, nil
	}
	exclude := q
	q.ExcludeExternalID, q.ExcludeID = "", 0
	key := cache.SignatureKey(q)

	data, err := s.cache.GetOrSet(ctx, key, s.ttl, func() ([]byte, error) {
		points, err := s.source.QueryComparables(ctx, q)
		if err != nil {
			return nil, err
		}
		return json.Marshal(points)
	})
	if err != nil {
		return nil, fmt.Errorf("query comparables: %w", err)
	}

	var points []model.PricePoint
	if err := json.Unmarshal(data, &points); err != nil {
		// a corrupt entry must not pin the signature until expiry
		s.logger.Warn(ctx, "dropping unreadable cached sample", "key", key, "error", err)
		_ = s.cache.Delete(ctx, key)
		return nil, fmt.Errorf("decode cached sample: %w", err)
	}
	return prices(points, exclude), nil
}
