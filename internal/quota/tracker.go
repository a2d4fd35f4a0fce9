// Package quota tracks how many evaluations each identity completed today.
package quota

import (
	"context"
	"errors"
	"fmt"
	"time"

	"carvalue-api/internal/locks"
	"carvalue-api/internal/model"
)

// Daily limits per plan. Gold uses a large sentinel rather than no limit.
const (
	FreeLimit     = 3
	StandardLimit = 10
	GoldLimit     = 1 << 30
)

// ErrNothingToRefund is returned by Refund when nothing was consumed today.
var ErrNothingToRefund = errors.New("no quota consumed today")

// Store persists one QuotaRecord per identity.
type Store interface {
	// Get returns the stored record and whether one exists.
	Get(ctx context.Context, identity string) (model.QuotaRecord, bool, error)
	Put(ctx context.Context, rec model.QuotaRecord) error
}

// Decision is the outcome of CheckAndConsume.
type Decision struct {
	Allowed   bool `json:"allowed"`
	Remaining int  `json:"remaining"`
}

// Limit returns the daily limit for plan. Unknown plans get the free limit.
func Limit(plan model.Plan) int {
	switch plan {
	case model.PlanStandard:
		return StandardLimit
	case model.PlanGold:
		return GoldLimit
	default:
		return FreeLimit
	}
}

// Tracker enforces daily limits. Calls for one identity are serialized;
// calls for different identities proceed independently.
type Tracker struct {
	store Store
	locks *locks.Keyed
	now   func() time.Time
}

// Option configures a Tracker.
type Option func(*Tracker)

// WithClock sets the time source. The calendar day is taken in the clock's location.
func WithClock(now func() time.Time) Option {
	return func(t *Tracker) { t.now = now }
}

// WithLocks shares a lock set with the caller.
func WithLocks(k *locks.Keyed) Option {
	return func(t *Tracker) { t.locks = k }
}

// NewTracker creates a tracker over store.
func NewTracker(store Store, opts ...Option) *Tracker {
	t := &Tracker{
		store: store,
		locks: locks.NewKeyed(locks.DefaultShards),
		now:   time.Now,
	}
	for _, opt := range opts {
		opt(t)
	}
	return t
}

// current returns today's record for identity. A missing record or one from
// another day is replaced by a zeroed record for today.
func (t *Tracker) current(ctx context.Context, identity string) (model.QuotaRecord, error) {
	today := model.DayOf(t.now())
	rec, ok, err := t.store.Get(ctx, identity)
	if err != nil {
		return model.QuotaRecord{}, fmt.Errorf("load quota for %s: %w", identity, err)
	}
	if !ok || rec.Day != today {
		return model.QuotaRecord{Identity: identity, Day: today}, nil
	}
	return rec, nil
}

// CheckAndConsume consumes one unit if identity is under its daily limit.
// A denied call leaves the stored record untouched.
func (t *Tracker) CheckAndConsume(ctx context.Context, identity string, plan model.Plan) (Decision, error) {
	unlock := t.locks.Lock(identity)
	defer unlock()

	rec, err := t.current(ctx, identity)
	if err != nil {
		return Decision{}, err
	}

	limit := Limit(plan)
	if rec.Used >= limit {
		return Decision{Allowed: false, Remaining: 0}, nil
	}

	rec.Used++
	if err := t.store.Put(ctx, rec); err != nil {
		return Decision{}, fmt.Errorf("save quota for %s: %w", identity, err)
	}
	return Decision{Allowed: true, Remaining: limit - rec.Used}, nil
}

// Peek returns the units left today without consuming any.
func (t *Tracker) Peek(ctx context.Context, identity string, plan model.Plan) (int, error) {
	unlock := t.locks.Lock(identity)
	defer unlock()

	rec, err := t.current(ctx, identity)
	if err != nil {
		return 0, err
	}
	if remaining := Limit(plan) - rec.Used; remaining > 0 {
		return remaining, nil
	}
	return 0, nil
}

// Refund gives back one unit consumed today. Units from a previous day are gone.
func (t *Tracker) Refund(ctx context.Context, identity string) error {
	unlock := t.locks.Lock(identity)
	defer unlock()

	rec, err := t.current(ctx, identity)
	if err != nil {
		return err
	}
	if rec.Used == 0 {
		return ErrNothingToRefund
	}

	rec.Used--
	if err := t.store.Put(ctx, rec); err != nil {
		return fmt.Errorf("save quota for %s: %w", identity, err)
	}
	return nil
}
