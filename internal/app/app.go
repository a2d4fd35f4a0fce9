// Package app assembles the valuation pipeline from configuration.
package app

import (
	"context"
	"errors"
	"fmt"

	awsconfig "github.com/aws/aws-sdk-go-v2/config"
	"github.com/aws/aws-sdk-go-v2/service/dynamodb"
	"github.com/redis/go-redis/v9"

	"carvalue-api/internal/cache"
	"carvalue-api/internal/comparables"
	"carvalue-api/internal/config"
	"carvalue-api/internal/handler"
	"carvalue-api/internal/intake"
	"carvalue-api/internal/logging"
	"carvalue-api/internal/model"
	"carvalue-api/internal/quota"
	"carvalue-api/internal/repository"
	"carvalue-api/internal/service"
	"carvalue-api/internal/valuation"
)

const (
	backendMemory   = "memory"
	backendRedis    = "redis"
	backendDynamoDB = "dynamodb"
)

// App holds the wired components. Close releases them.
type App struct {
	Config   *config.Config
	Logger   logging.Logger
	Listings repository.ListingRepository
	Cache    cache.Cache // nil when caching is disabled
	Selector comparables.Selector
	Engine   *valuation.Engine
	Tracker  *quota.Tracker
	Plans    *quota.Plans
	Machine  *intake.Machine
	Cleanup  *service.CleanupScheduler
	Checks   []handler.ReadinessCheck

	closers []func() error
}

// New builds every component selected by cfg. On error, whatever was
// already opened is closed.
func New(ctx context.Context, cfg *config.Config, logger logging.Logger) (_ *App, err error) {
	if logger == nil {
		logger = logging.Nop()
	}
	a := &App{Config: cfg, Logger: logger}
	defer func() {
		if err != nil {
			_ = a.Close()
		}
	}()

	var rdb *redis.Client
	if needsRedis(cfg) {
		rdb, err = cache.NewRedisClient(ctx, cache.RedisConfig{
			Addr:     cfg.Cache.RedisAddress(),
			Password: cfg.Cache.RedisPassword,
			DB:       cfg.Cache.RedisDB,
		})
		if err != nil {
			return nil, err
		}
		a.closers = append(a.closers, rdb.Close)
		a.Checks = append(a.Checks, handler.ReadinessCheck{
			Name:  "redis",
			Check: func(ctx context.Context) error { return rdb.Ping(ctx).Err() },
		})
		logger.Info(ctx, "redis client initialized", "addr", cfg.Cache.RedisAddress())
	}

	a.Listings, err = repository.OpenListings(ctx, cfg.ListingDB)
	if err != nil {
		return nil, fmt.Errorf("open listing store: %w", err)
	}
	a.closers = append(a.closers, a.Listings.Close)
	a.Checks = append(a.Checks, handler.ReadinessCheck{Name: "listings", Check: a.Listings.Ping})
	logger.Info(ctx, "listing store initialized", "type", cfg.ListingDB.Type)

	a.Selector = comparables.NewStoreSelector(a.Listings, cfg.Valuation.MileageTolerance)
	if cfg.Cache.Enabled {
		if cfg.Cache.Type == backendRedis {
			a.Cache = cache.NewRedisCacheFromClient(rdb, "")
		} else {
			a.Cache = cache.NewMemoryCache()
		}
		a.Selector = comparables.NewCachedSelector(a.Listings, a.Cache, cfg.Cache.TTL, cfg.Valuation.MileageTolerance, logger)
		logger.Info(ctx, "valuation cache enabled", "type", cfg.Cache.Type, "ttl", cfg.Cache.TTL)
	}

	a.Engine = valuation.New(EngineConfig(cfg.Valuation))

	quotaStore, err := newQuotaStore(ctx, cfg.Quota, rdb)
	if err != nil {
		return nil, err
	}
	a.Tracker = quota.NewTracker(quotaStore)

	var next quota.PlanResolver
	if cfg.PlanDB.Enabled {
		plans, err := repository.OpenPlans(ctx, cfg.PlanDB)
		if err != nil {
			// plans degrade to overrides and free
			logger.Warn(ctx, "subscriptions database unavailable", "error", err)
		} else {
			a.closers = append(a.closers, plans.Close)
			next = plans
		}
	}
	a.Plans = quota.NewPlans(quota.ParseStaticPlans(cfg.Quota.PlanOverrides), next, logger)

	var intakes intake.Store = intake.NewMemoryStore()
	if cfg.Intake.Store == backendRedis {
		intakes = intake.NewRedisStore(rdb, "", cfg.Intake.TTL)
	}

	a.Machine = intake.NewMachine(
		intakes,
		a.Listings,
		a.Selector,
		a.Engine,
		a.Tracker,
		a.Plans,
		intake.Config{TTL: cfg.Intake.TTL, EvaluationTimeout: cfg.Valuation.Timeout},
		logger,
	)

	a.Cleanup = service.NewCleanupScheduler(a.Machine, a.Listings, service.CleanupConfig{
		Interval:     cfg.Intake.CleanupInterval,
		InitialDelay: cfg.Intake.CleanupInterval,
		Retention:    cfg.ListingDB.Retention,
	}, logger)

	return a, nil
}

// EngineConfig maps the valuation settings onto the engine tuning.
func EngineConfig(v config.ValuationConfig) valuation.Config {
	cfg := valuation.DefaultConfig()
	cfg.MinSample = v.MinSample
	cfg.OutlierFloor = v.OutlierFloor
	cfg.Rules = []valuation.Rule{
		{MinPercent: v.OpportunityPercent, MaxDispersion: v.OpportunitySpread, Decision: model.DecisionOpportunity},
		{MinPercent: v.NegotiablePercent, Decision: model.DecisionNegotiable},
	}
	return cfg
}

func needsRedis(cfg *config.Config) bool {
	return (cfg.Cache.Enabled && cfg.Cache.Type == backendRedis) ||
		cfg.Quota.Store == backendRedis ||
		cfg.Intake.Store == backendRedis
}

func newQuotaStore(ctx context.Context, cfg config.QuotaConfig, rdb *redis.Client) (quota.Store, error) {
	switch cfg.Store {
	case "", backendMemory:
		return quota.NewMemoryStore(), nil
	case backendRedis:
		return quota.NewRedisStore(rdb, ""), nil
	case backendDynamoDB:
		awsCfg, err := awsconfig.LoadDefaultConfig(ctx)
		if err != nil {
			return nil, fmt.Errorf("load aws config: %w", err)
		}
		return quota.NewDynamoDBStore(dynamodb.NewFromConfig(awsCfg), cfg.DynamoTable)
	default:
		return nil, fmt.Errorf("unsupported quota store %q", cfg.Store)
	}
}

// Close stops the scheduler and releases connections in reverse order.
func (a *App) Close() error {
	if a.Cleanup != nil {
		a.Cleanup.Stop()
	}
	var errs []error
	for i := len(a.closers) - 1; i >= 0; i-- {
		if err := a.closers[i](); err != nil {
			errs = append(errs, err)
		}
	}
	a.closers = nil
	return errors.Join(errs...)
}
