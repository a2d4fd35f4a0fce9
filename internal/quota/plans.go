package quota

import (
	"context"

	"carvalue-api/internal/logging"
	"carvalue-api/internal/model"
)

// PlanResolver maps an identity to its subscription plan.
type PlanResolver interface {
	PlanOf(ctx context.Context, identity string) (model.Plan, error)
}

// StaticPlans resolves plans from a fixed table, free for everyone else.
type StaticPlans map[string]model.Plan

// ParseStaticPlans builds a table from identity → plan name pairs.
func ParseStaticPlans(m map[string]string) StaticPlans {
	out := make(StaticPlans, len(m))
	for id, p := range m {
		out[id] = model.ParsePlan(p)
	}
	return out
}

func (s StaticPlans) PlanOf(ctx context.Context, identity string) (model.Plan, error) {
	if p, ok := s[identity]; ok {
		return p, nil
	}
	return model.PlanFree, nil
}

// Plans consults overrides first and then the optional backing resolver.
// Lookup failures degrade to the free plan.
type Plans struct {
	overrides StaticPlans
	next      PlanResolver
	logger    logging.Logger
}

// NewPlans creates a resolver. next may be nil.
func NewPlans(overrides StaticPlans, next PlanResolver, logger logging.Logger) *Plans {
	if logger == nil {
		logger = logging.Nop()
	}
	return &Plans{overrides: overrides, next: next, logger: logger}
}

// Resolve returns identity's plan, never failing.
func (p *Plans) Resolve(ctx context.Context, identity string) model.Plan {
	if plan, ok := p.overrides[identity]; ok {
		return plan
	}
	if p.next == nil {
		return model.PlanFree
	}
	plan, err := p.next.PlanOf(ctx, identity)
	if err != nil {
		p.logger.Warn(ctx, "plan lookup failed, using free plan", "identity", identity, "error", err)
		return model.PlanFree
	}
	return model.ParsePlan(string(plan))
}
