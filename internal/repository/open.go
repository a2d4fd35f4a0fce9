package repository

import (
	"context"
	"fmt"

	"carvalue-api/internal/config"
)

// OpenListings opens the listing store selected by cfg.Type.
func OpenListings(ctx context.Context, cfg config.ListingDBConfig) (ListingRepository, error) {
	switch cfg.Type {
	case "", DialectSQLite:
		return NewSQLiteListingRepository(ctx, cfg.Path)
	case DialectPostgres:
		return NewPostgresListingRepository(ctx, cfg.PostgresDSN())
	case DialectMySQL:
		return NewMySQLListingRepository(ctx, cfg.MySQLDSN())
	case "mongodb":
		if cfg.MongoURI == "" {
			return nil, fmt.Errorf("MONGODB_URI is required for the mongodb listing store")
		}
		return NewMongoDBListingRepository(ctx, cfg.MongoURI, cfg.MongoDatabase, cfg.MongoCollection)
	default:
		return nil, fmt.Errorf("unsupported listing store type %q", cfg.Type)
	}
}

// OpenPlans connects to the subscriptions database.
func OpenPlans(ctx context.Context, cfg config.PlanDBConfig) (*MySQLPlanRepository, error) {
	db, err := OpenMySQL(ctx, cfg.DSN())
	if err != nil {
		return nil, err
	}
	return NewMySQLPlanRepository(db), nil
}
