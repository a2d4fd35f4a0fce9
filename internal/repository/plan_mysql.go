package repository

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	"carvalue-api/internal/model"
)

// MySQLPlanRepository reads subscription plans from the subscriptions table
// owned by the billing system.
type MySQLPlanRepository struct {
	db *sql.DB
}

var _ PlanRepository = (*MySQLPlanRepository)(nil)

// NewMySQLPlanRepository creates a plan repository on db.
func NewMySQLPlanRepository(db *sql.DB) *MySQLPlanRepository {
	return &MySQLPlanRepository{db: db}
}

// PlanOf returns the active plan for identity. Identities without an active
// subscription are on the free plan.
func (r *MySQLPlanRepository) PlanOf(ctx context.Context, identity string) (model.Plan, error) {
	query := `
		SELECT plan FROM subscriptions
		WHERE identity = ?
		  AND is_active = 1
		  AND (expires_at IS NULL OR expires_at > NOW())
		ORDER BY expires_at DESC
		LIMIT 1`

	var plan string
	err := r.db.QueryRowContext(ctx, query, identity).Scan(&plan)
	if errors.Is(err, sql.ErrNoRows) {
		return model.PlanFree, nil
	}
	if err != nil {
		return model.PlanFree, fmt.Errorf("failed to get plan: %w", err)
	}
	return model.ParsePlan(plan), nil
}

// Close closes the database connection.
func (r *MySQLPlanRepository) Close() error {
	return r.db.Close()
}
