package service

import (
	"context"
	"sync"
	"time"

	"carvalue-api/internal/logging"
)

// IntakeSweeper drops abandoned intake conversations.
type IntakeSweeper interface {
	SweepExpired(ctx context.Context) (int, error)
}

// ListingPruner deletes listings created before a cutoff.
type ListingPruner interface {
	DeleteOlderThan(ctx context.Context, cutoff time.Time) (int64, error)
}

// CleanupConfig holds configuration for the cleanup scheduler.
type CleanupConfig struct {
	// Interval is how often the cleanup runs.
	// Default: 5 minutes
	Interval time.Duration

	// InitialDelay postpones the first run after Start.
	InitialDelay time.Duration

	// Retention is how long listings are kept. Zero keeps them forever.
	Retention time.Duration

	// RunTimeout bounds a single run.
	// Default: 5 minutes
	RunTimeout time.Duration
}

// DefaultCleanupConfig returns default cleanup configuration.
func DefaultCleanupConfig() CleanupConfig {
	return CleanupConfig{
		Interval:     5 * time.Minute,
		InitialDelay: time.Minute,
		RunTimeout:   5 * time.Minute,
	}
}

// CleanupResult counts what one run removed.
type CleanupResult struct {
	Intakes  int   `json:"intakes"`
	Listings int64 `json:"listings"`
}

// CleanupScheduler periodically sweeps expired intakes and, when a retention
// is configured, old listings.
type CleanupScheduler struct {
	intakes  IntakeSweeper
	listings ListingPruner
	config   CleanupConfig
	logger   logging.Logger
	now      func() time.Time

	ticker    *time.Ticker
	stopCh    chan struct{}
	stopOnce  sync.Once
	wg        sync.WaitGroup
	isRunning bool
	mu        sync.Mutex
}

// NewCleanupScheduler creates a new cleanup scheduler. listings may be nil.
func NewCleanupScheduler(intakes IntakeSweeper, listings ListingPruner, config CleanupConfig, logger logging.Logger) *CleanupScheduler {
	if config.Interval <= 0 {
		config.Interval = 5 * time.Minute
	}
	if config.RunTimeout <= 0 {
		config.RunTimeout = 5 * time.Minute
	}
	if logger == nil {
		logger = logging.Nop()
	}

	return &CleanupScheduler{
		intakes:  intakes,
		listings: listings,
		config:   config,
		logger:   logger.With("component", "cleanup"),
		now:      time.Now,
		stopCh:   make(chan struct{}),
	}
}

// Start begins the cleanup scheduler.
func (s *CleanupScheduler) Start() {
	s.mu.Lock()
	if s.isRunning {
		s.mu.Unlock()
		return
	}
	s.isRunning = true
	s.ticker = time.NewTicker(s.config.Interval)
	s.mu.Unlock()

	s.logger.Info(context.Background(), "cleanup scheduler started",
		"interval", s.config.Interval, "retention", s.config.Retention)

	s.wg.Add(1)
	go s.run()
}

// run is the main cleanup loop.
func (s *CleanupScheduler) run() {
	defer s.wg.Done()

	if s.config.InitialDelay > 0 {
		t := time.NewTimer(s.config.InitialDelay)
		select {
		case <-t.C:
			s.runCleanup()
		case <-s.stopCh:
			t.Stop()
			return
		}
	}

	for {
		select {
		case <-s.ticker.C:
			s.runCleanup()
		case <-s.stopCh:
			s.logger.Info(context.Background(), "cleanup scheduler stopped")
			return
		}
	}
}

func (s *CleanupScheduler) runCleanup() {
	res, err := s.RunNow()
	ctx := context.Background()
	if err != nil {
		s.logger.Error(ctx, "cleanup failed", "error", err)
		return
	}
	if res.Intakes > 0 || res.Listings > 0 {
		s.logger.Info(ctx, "cleanup removed records", "intakes", res.Intakes, "listings", res.Listings)
	} else {
		s.logger.Debug(ctx, "nothing to clean up")
	}
}

// Stop stops the cleanup scheduler and waits for a run in progress.
func (s *CleanupScheduler) Stop() {
	s.stopOnce.Do(func() {
		s.mu.Lock()
		if s.ticker != nil {
			s.ticker.Stop()
		}
		close(s.stopCh)
		s.isRunning = false
		s.mu.Unlock()
	})
	s.wg.Wait()
}

// RunNow triggers an immediate cleanup run. Both sweeps are attempted; the
// first error is returned with whatever the other sweep removed.
func (s *CleanupScheduler) RunNow() (CleanupResult, error) {
	ctx, cancel := context.WithTimeout(context.Background(), s.config.RunTimeout)
	defer cancel()

	var (
		res      CleanupResult
		firstErr error
	)

	n, err := s.intakes.SweepExpired(ctx)
	if err != nil {
		firstErr = err
	}
	res.Intakes = n

	if s.listings != nil && s.config.Retention > 0 {
		deleted, err := s.listings.DeleteOlderThan(ctx, s.now().Add(-s.config.Retention).UTC())
		if err != nil && firstErr == nil {
			firstErr = err
		}
		res.Listings = deleted
	}

	return res, firstErr
}
