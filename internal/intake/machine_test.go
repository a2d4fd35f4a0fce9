package intake

import (
	"context"
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"carvalue-api/internal/comparables"
	"carvalue-api/internal/model"
	"carvalue-api/internal/quota"
	"carvalue-api/internal/repository"
	"carvalue-api/internal/valuation"
)

const egeaURL = "https://www.sahibinden.com/ilan/vasita-otomobil-fiat-egea-1-3-multijet-easy-2020-model-1145678901/detay"

// fakeListings is a listing store that also serves comparables.
type fakeListings struct {
	mu        sync.Mutex
	listings  []model.Listing
	insertErr error
	existsErr error
}

func (f *fakeListings) InsertIfAbsent(ctx context.Context, l *model.Listing) error {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.insertErr != nil {
		return f.insertErr
	}
	for _, have := range f.listings {
		if l.ExternalID != "" && have.ExternalID == l.ExternalID {
			return repository.ErrDuplicate
		}
	}
	l.ID = int64(len(f.listings) + 1)
	f.listings = append(f.listings, *l)
	return nil
}

func (f *fakeListings) Exists(ctx context.Context, externalID string) (bool, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	if f.existsErr != nil {
		return false, f.existsErr
	}
	for _, have := range f.listings {
		if have.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (f *fakeListings) QueryComparables(ctx context.Context, q model.ComparableQuery) ([]model.PricePoint, error) {
	f.mu.Lock()
	defer f.mu.Unlock()
	var out []model.PricePoint
	for _, l := range f.listings {
		if l.Make != q.Make || l.Model != q.Model || l.Condition != q.Condition {
			continue
		}
		if l.Mileage < q.MinMileage || l.Mileage > q.MaxMileage || l.Year < q.MinYear || l.Year > q.MaxYear {
			continue
		}
		out = append(out, model.PricePoint{ID: l.ID, ExternalID: l.ExternalID, Price: l.Price})
	}
	return out, nil
}

func (f *fakeListings) count() int {
	f.mu.Lock()
	defer f.mu.Unlock()
	return len(f.listings)
}

// seed adds n clean 2020 Egeas around 100k km priced from 500000 upward.
func (f *fakeListings) seed(n int) {
	f.mu.Lock()
	defer f.mu.Unlock()
	for i := 0; i < n; i++ {
		f.listings = append(f.listings, model.Listing{
			ID:         int64(len(f.listings) + 1),
			ExternalID: "seed-" + string(rune('a'+i)),
			Make:       "fiat",
			Model:      "egea",
			Year:       2020,
			Mileage:    95000 + int64(i)*1000,
			Price:      500000 + int64(i)*2000,
			Condition:  model.ConditionOriginal,
		})
	}
}

type testEnv struct {
	m        *Machine
	store    *MemoryStore
	listings *fakeListings
	tracker  *quota.Tracker
	now      time.Time
}

func (e *testEnv) advance(d time.Duration) { e.now = e.now.Add(d) }

func newTestEnv(t *testing.T) *testEnv {
	t.Helper()
	env := &testEnv{
		store:    NewMemoryStore(),
		listings: &fakeListings{},
		tracker:  quota.NewTracker(quota.NewMemoryStore()),
		now:      time.Date(2024, 6, 1, 10, 0, 0, 0, time.UTC),
	}
	plans := quota.NewPlans(quota.StaticPlans{"gold-user": model.PlanGold}, nil, nil)
	env.m = NewMachine(
		env.store,
		env.listings,
		comparables.NewStoreSelector(env.listings, 0.15),
		valuation.New(valuation.DefaultConfig()),
		env.tracker,
		plans,
		Config{TTL: 30 * time.Minute, EvaluationTimeout: time.Second},
		nil,
	)
	env.m.SetClock(func() time.Time { return env.now })
	return env
}

func (e *testEnv) send(t *testing.T, identity string, msgs ...string) Reply {
	t.Helper()
	var r Reply
	for _, msg := range msgs {
		r = e.m.Handle(context.Background(), identity, msg)
	}
	return r
}

func TestHandle_FullFlow(t *testing.T) {
	env := newTestEnv(t)
	env.listings.seed(10)

	r := env.send(t, "u1", egeaURL)
	assert.Equal(t, KindAskPrice, r.Kind)
	assert.Equal(t, model.StateAwaitingPrice, r.State)
	require.NotNil(t, r.Remaining)
	assert.Equal(t, 3, *r.Remaining)

	r = env.send(t, "u1", "400.000 TL")
	assert.Equal(t, KindAskMileage, r.Kind)

	r = env.send(t, "u1", "100.000")
	assert.Equal(t, KindAskCondition, r.Kind)
	assert.Equal(t, model.StateAwaitingCondition, r.State)

	r = env.send(t, "u1", "boyasız değişensiz")
	require.Equal(t, KindValuation, r.Kind, r.Message)
	assert.Equal(t, model.StateIdle, r.State)
	require.NotNil(t, r.Valuation)
	assert.Equal(t, model.DecisionOpportunity, r.Valuation.Decision)
	assert.Equal(t, int64(400000), r.Valuation.AskingPrice)
	assert.Equal(t, 10, r.Valuation.SampleSize)
	require.NotNil(t, r.Remaining)
	assert.Equal(t, 2, *r.Remaining)

	assert.Equal(t, 11, env.listings.count())
	assert.Equal(t, 0, env.store.Len())

	stored := env.listings.listings[10]
	assert.Equal(t, "1145678901", stored.ExternalID)
	assert.Equal(t, "sahibinden.com", stored.Source)
	assert.Equal(t, int64(100000), stored.Mileage)
	assert.Equal(t, model.ConditionOriginal, stored.Condition)
	assert.Equal(t, env.now, stored.CreatedAt)
}

func TestHandle_IdleNonURLPrompts(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", "hello")
	assert.Equal(t, KindPrompt, r.Kind)
	assert.Equal(t, model.StateIdle, r.State)
	assert.Equal(t, 0, env.store.Len())
}

func TestHandle_UnidentifiableLink(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", "https://example.com/")
	assert.Equal(t, KindValidationError, r.Kind)
	assert.Equal(t, 0, env.store.Len())
}

func TestHandle_InvalidAmountKeepsState(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", egeaURL, "cheap")
	assert.Equal(t, KindInvalidAmount, r.Kind)
	assert.Equal(t, model.StateAwaitingPrice, r.State)

	r = env.send(t, "u1", "0")
	assert.Equal(t, KindInvalidAmount, r.Kind, "zero price")

	r = env.send(t, "u1", "450000", "12a000")
	assert.Equal(t, KindInvalidAmount, r.Kind)
	assert.Equal(t, model.StateAwaitingMileage, r.State)

	p, err := env.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Equal(t, int64(450000), p.Price)
}

func TestHandle_NegativeAndFractionalAmountsRejected(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", egeaURL, "-450000")
	assert.Equal(t, KindInvalidAmount, r.Kind)
	assert.Equal(t, model.StateAwaitingPrice, r.State)

	r = env.send(t, "u1", "450000", "1.5")
	assert.Equal(t, KindInvalidAmount, r.Kind)
	assert.Equal(t, model.StateAwaitingMileage, r.State)

	p, err := env.store.Get(context.Background(), "u1")
	require.NoError(t, err)
	assert.Zero(t, p.Mileage)
}

func TestHandle_ZeroMileageAccepted(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", egeaURL, "450000", "0")
	assert.Equal(t, KindAskCondition, r.Kind)
}

func TestHandle_DuplicateAtEntry(t *testing.T) {
	env := newTestEnv(t)
	require.NoError(t, env.listings.InsertIfAbsent(context.Background(), &model.Listing{ExternalID: "1145678901"}))

	r := env.send(t, "u1", egeaURL)
	assert.Equal(t, KindDuplicate, r.Kind)
	assert.Equal(t, 0, env.store.Len())

	left, err := env.tracker.Peek(context.Background(), "u1", model.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}

func TestHandle_QuotaExhaustedAtEntry(t *testing.T) {
	env := newTestEnv(t)
	for i := 0; i < quota.FreeLimit; i++ {
		_, err := env.tracker.CheckAndConsume(context.Background(), "u1", model.PlanFree)
		require.NoError(t, err)
	}

	r := env.send(t, "u1", egeaURL)
	assert.Equal(t, KindQuotaExceeded, r.Kind)
	require.NotNil(t, r.Remaining)
	assert.Zero(t, *r.Remaining)
	assert.Equal(t, 0, env.store.Len())

	r = env.send(t, "gold-user", egeaURL)
	assert.Equal(t, KindAskPrice, r.Kind)
}

func TestHandle_QuotaExhaustedMidIntake(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL, "400000", "100000")

	for i := 0; i < quota.FreeLimit; i++ {
		_, err := env.tracker.CheckAndConsume(context.Background(), "u1", model.PlanFree)
		require.NoError(t, err)
	}

	r := env.send(t, "u1", "original")
	assert.Equal(t, KindQuotaExceeded, r.Kind)
	assert.Equal(t, 0, env.listings.count())
	assert.Equal(t, 0, env.store.Len())
}

func TestHandle_DuplicateRaceRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL, "400000", "100000")

	env.listings.insertErr = repository.ErrDuplicate
	r := env.send(t, "u1", "original")
	assert.Equal(t, KindDuplicate, r.Kind)

	left, err := env.tracker.Peek(context.Background(), "u1", model.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}

func TestHandle_StoreFailureRefunds(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL, "400000", "100000")

	env.listings.insertErr = errors.New("disk full")
	r := env.send(t, "u1", "original")
	assert.Equal(t, KindUnavailable, r.Kind)
	assert.Equal(t, model.StateIdle, r.State)

	left, err := env.tracker.Peek(context.Background(), "u1", model.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}

func TestHandle_ExistsFailureAtEntry(t *testing.T) {
	env := newTestEnv(t)
	env.listings.existsErr = errors.New("connection refused")

	r := env.send(t, "u1", egeaURL)
	assert.Equal(t, KindUnavailable, r.Kind)
	assert.Equal(t, 0, env.store.Len())
}

func TestHandle_InsufficientDataStillConsumes(t *testing.T) {
	env := newTestEnv(t)
	env.listings.seed(3)

	r := env.send(t, "u1", egeaURL, "400000", "100000", "original")
	assert.Equal(t, KindInsufficientData, r.Kind)
	assert.Equal(t, 3, r.SampleSize)
	assert.Equal(t, 5, r.Required)
	require.NotNil(t, r.Remaining)
	assert.Equal(t, 2, *r.Remaining)
	assert.Equal(t, 4, env.listings.count())
}

func TestHandle_ConditionMismatchExcludesSeeds(t *testing.T) {
	env := newTestEnv(t)
	env.listings.seed(10)

	r := env.send(t, "u1", egeaURL, "400000", "100000", "sol kapı boyalı")
	assert.Equal(t, KindInsufficientData, r.Kind)
	assert.Equal(t, 0, r.SampleSize)
}

func TestHandle_Cancel(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL, "400000")

	r := env.send(t, "u1", "/cancel")
	assert.Equal(t, KindCancelled, r.Kind)
	assert.Equal(t, 0, env.store.Len())

	r = env.send(t, "u1", "100000")
	assert.Equal(t, KindPrompt, r.Kind)
}

func TestHandle_StaleIntakeIsIdle(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL)

	env.advance(31 * time.Minute)
	r := env.send(t, "u1", "400000")
	assert.Equal(t, KindPrompt, r.Kind)
	assert.Equal(t, model.StateIdle, r.State)
}

func TestHandle_ActivityExtendsTTL(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL)

	env.advance(20 * time.Minute)
	env.send(t, "u1", "400000")
	env.advance(20 * time.Minute)

	r := env.send(t, "u1", "100000")
	assert.Equal(t, KindAskCondition, r.Kind)
}

func TestHandle_NewLinkDuringIntakeIsNotAPrice(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL)

	r := env.send(t, "u1", "https://example.com/listing/12345678")
	assert.Equal(t, KindInvalidAmount, r.Kind)
	assert.Equal(t, model.StateAwaitingPrice, r.State)
}

func TestHandle_Commands(t *testing.T) {
	env := newTestEnv(t)

	r := env.send(t, "u1", "/start")
	assert.Equal(t, KindPrompt, r.Kind)

	r = env.send(t, "u1", "/quota@carvalue_bot")
	assert.Equal(t, KindQuota, r.Kind)
	require.NotNil(t, r.Remaining)
	assert.Equal(t, 3, *r.Remaining)

	env.send(t, "u1", egeaURL)
	r = env.send(t, "u1", "/help")
	assert.Equal(t, KindPrompt, r.Kind)
	assert.Equal(t, model.StateAwaitingPrice, r.State)
	assert.Contains(t, r.Message, msgAskPrice)
}

func TestHandle_IdentitiesAreIndependent(t *testing.T) {
	env := newTestEnv(t)

	env.send(t, "u1", egeaURL)
	r := env.send(t, "u2", "400000")
	assert.Equal(t, KindPrompt, r.Kind)

	r = env.send(t, "u1", "400000")
	assert.Equal(t, KindAskMileage, r.Kind)
}

func TestHandle_ConcurrentIdentities(t *testing.T) {
	env := newTestEnv(t)
	env.listings.seed(10)

	ids := []string{"a", "b", "c", "d", "e", "f"}
	urls := []string{
		"https://example.com/fiat-egea-2020-1000001",
		"https://example.com/fiat-egea-2020-1000002",
		"https://example.com/fiat-egea-2020-1000003",
		"https://example.com/fiat-egea-2020-1000004",
		"https://example.com/fiat-egea-2020-1000005",
		"https://example.com/fiat-egea-2020-1000006",
	}

	var wg sync.WaitGroup
	replies := make([]Reply, len(ids))
	for i := range ids {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			ctx := context.Background()
			env.m.Handle(ctx, ids[i], urls[i])
			env.m.Handle(ctx, ids[i], "400000")
			env.m.Handle(ctx, ids[i], "100000")
			replies[i] = env.m.Handle(ctx, ids[i], "original")
		}(i)
	}
	wg.Wait()

	for i, r := range replies {
		assert.Equal(t, KindValuation, r.Kind, ids[i])
	}
	assert.Equal(t, 16, env.listings.count())
}

func TestSweepExpired(t *testing.T) {
	env := newTestEnv(t)
	env.send(t, "u1", egeaURL)
	env.advance(10 * time.Minute)
	env.send(t, "u2", egeaURL)

	env.advance(25 * time.Minute)
	n, err := env.m.SweepExpired(context.Background())
	require.NoError(t, err)
	assert.Equal(t, 1, n)
	assert.Equal(t, 1, env.store.Len())
}

func TestSubmit(t *testing.T) {
	env := newTestEnv(t)
	env.listings.seed(10)

	r := env.m.Submit(context.Background(), "u1", Submission{
		URL: egeaURL, Price: 400000, Mileage: 100000, Condition: "original",
	})
	require.Equal(t, KindValuation, r.Kind, r.Message)
	assert.Equal(t, model.DecisionOpportunity, r.Valuation.Decision)
	assert.Equal(t, 0, env.store.Len())

	r = env.m.Submit(context.Background(), "u1", Submission{
		URL: egeaURL, Price: 400000, Mileage: 100000, Condition: "original",
	})
	assert.Equal(t, KindDuplicate, r.Kind)
}

func TestSubmit_Validation(t *testing.T) {
	env := newTestEnv(t)

	tests := []struct {
		name string
		sub  Submission
	}{
		{"not a link", Submission{URL: "egea", Price: 1, Mileage: 1}},
		{"zero price", Submission{URL: egeaURL, Price: 0, Mileage: 1}},
		{"negative mileage", Submission{URL: egeaURL, Price: 1, Mileage: -1}},
		{"no identity", Submission{URL: "https://example.com/", Price: 1, Mileage: 1}},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			r := env.m.Submit(context.Background(), "u1", tt.sub)
			assert.Equal(t, KindValidationError, r.Kind)
		})
	}

	left, err := env.tracker.Peek(context.Background(), "u1", model.PlanFree)
	require.NoError(t, err)
	assert.Equal(t, 3, left)
}
