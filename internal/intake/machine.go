// Package intake runs the per-identity conversation that collects a listing's
// price, mileage and condition and evaluates it against the market.
package intake

import (
	"context"
	"errors"
	"strings"
	"time"

	"carvalue-api/internal/comparables"
	"carvalue-api/internal/listingref"
	"carvalue-api/internal/locks"
	"carvalue-api/internal/logging"
	"carvalue-api/internal/model"
	"carvalue-api/internal/quota"
	"carvalue-api/internal/repository"
	"carvalue-api/internal/valuation"
)

const (
	DefaultTTL               = 30 * time.Minute
	DefaultEvaluationTimeout = 10 * time.Second
)

// Listings is the part of the listing store the machine writes to.
type Listings interface {
	InsertIfAbsent(ctx context.Context, l *model.Listing) error
	Exists(ctx context.Context, externalID string) (bool, error)
}

// Quota is the quota tracker as seen by the machine.
type Quota interface {
	CheckAndConsume(ctx context.Context, identity string, plan model.Plan) (quota.Decision, error)
	Peek(ctx context.Context, identity string, plan model.Plan) (int, error)
	Refund(ctx context.Context, identity string) error
}

// Plans resolves an identity's plan without failing.
type Plans interface {
	Resolve(ctx context.Context, identity string) model.Plan
}

// Config tunes the machine.
type Config struct {
	// TTL after which an untouched partial intake is treated as absent.
	TTL time.Duration
	// EvaluationTimeout bounds the terminal step.
	EvaluationTimeout time.Duration
}

// Machine is the intake state machine. Messages for one identity are
// serialized; listing store access, comparable selection and evaluation
// run outside the identity lock.
type Machine struct {
	store    Store
	listings Listings
	selector comparables.Selector
	engine   *valuation.Engine
	quota    Quota
	plans    Plans
	locks    *locks.Keyed
	cfg      Config
	now      func() time.Time
	logger   logging.Logger
}

// NewMachine wires a machine. logger may be nil.
func NewMachine(
	store Store,
	listings Listings,
	selector comparables.Selector,
	engine *valuation.Engine,
	q Quota,
	plans Plans,
	cfg Config,
	logger logging.Logger,
) *Machine {
	if cfg.TTL <= 0 {
		cfg.TTL = DefaultTTL
	}
	if cfg.EvaluationTimeout <= 0 {
		cfg.EvaluationTimeout = DefaultEvaluationTimeout
	}
	if logger == nil {
		logger = logging.Nop()
	}
	return &Machine{
		store:    store,
		listings: listings,
		selector: selector,
		engine:   engine,
		quota:    q,
		plans:    plans,
		locks:    locks.NewKeyed(locks.DefaultShards),
		cfg:      cfg,
		now:      time.Now,
		logger:   logger.With("component", "intake"),
	}
}

// SetClock replaces the time source.
func (m *Machine) SetClock(now func() time.Time) {
	m.now = now
}

// Handle processes one message from identity.
func (m *Machine) Handle(ctx context.Context, identity, text string) Reply {
	text = strings.TrimSpace(text)

	if cmd, ok := command(text); ok {
		return m.command(ctx, identity, cmd)
	}

	unlock := m.locks.Lock(identity)
	p, err := m.load(ctx, identity)
	if err != nil {
		unlock()
		m.logger.Error(ctx, "failed to load intake", "identity", identity, "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}

	switch p.State {
	case model.StateAwaitingPrice, model.StateAwaitingMileage:
		defer unlock()
		return m.collectAmount(ctx, p, text)

	case model.StateAwaitingCondition:
		// reset before any fallible step so failures leave the identity idle
		err := m.store.Delete(ctx, identity)
		unlock()
		if err != nil {
			m.logger.Error(ctx, "failed to reset intake", "identity", identity, "error", err)
			return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
		}
		return m.finish(ctx, p, text)

	default:
		unlock()
		if !listingref.LooksLikeURL(text) {
			return prompt(model.StateIdle)
		}
		return m.begin(ctx, identity, text)
	}
}

// load returns the current intake, or an idle one when none is stored or
// the stored one has expired.
func (m *Machine) load(ctx context.Context, identity string) (*model.PartialIntake, error) {
	p, err := m.store.Get(ctx, identity)
	if err != nil {
		return nil, err
	}
	if p == nil || m.now().Sub(p.UpdatedAt) >= m.cfg.TTL {
		return &model.PartialIntake{Identity: identity, State: model.StateIdle}, nil
	}
	return p, nil
}

func (m *Machine) begin(ctx context.Context, identity, text string) Reply {
	ref, err := listingref.Parse(text, m.now())
	if err != nil {
		return Reply{Kind: KindValidationError, State: model.StateIdle, Message: msgBadLink}
	}

	if ref.ExternalID != "" {
		dup, err := m.listings.Exists(ctx, ref.ExternalID)
		if err != nil {
			m.logger.Error(ctx, "duplicate check failed", "external_id", ref.ExternalID, "error", err)
			return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
		}
		if dup {
			return Reply{Kind: KindDuplicate, State: model.StateIdle, Message: msgDuplicate}
		}
	}

	plan := m.plans.Resolve(ctx, identity)
	remaining, err := m.quota.Peek(ctx, identity, plan)
	if err != nil {
		m.logger.Error(ctx, "quota check failed", "identity", identity, "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}
	if remaining == 0 {
		return Reply{Kind: KindQuotaExceeded, State: model.StateIdle, Message: msgQuotaExceeded, Remaining: intPtr(0)}
	}

	unlock := m.locks.Lock(identity)
	defer unlock()

	// another message may have started an intake while the lock was released
	cur, err := m.load(ctx, identity)
	if err != nil {
		m.logger.Error(ctx, "failed to load intake", "identity", identity, "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}
	if cur.State != model.StateIdle {
		return prompt(cur.State)
	}

	p := &model.PartialIntake{
		Identity:   identity,
		State:      model.StateAwaitingPrice,
		Source:     ref.Source,
		ExternalID: ref.ExternalID,
		Make:       ref.Make,
		Model:      ref.Model,
		Year:       ref.Year,
		UpdatedAt:  m.now(),
	}
	if err := m.store.Put(ctx, p); err != nil {
		m.logger.Error(ctx, "failed to save intake", "identity", identity, "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}

	m.logger.Debug(ctx, "intake started", "identity", identity, "source", ref.Source, "external_id", ref.ExternalID)
	r := prompt(model.StateAwaitingPrice)
	r.Remaining = intPtr(remaining)
	return r
}

// collectAmount runs with the identity lock held.
func (m *Machine) collectAmount(ctx context.Context, p *model.PartialIntake, text string) Reply {
	n, err := ParseAmount(text)
	if listingref.LooksLikeURL(text) {
		err = ErrInvalidAmount
	}
	if err != nil || (p.State == model.StateAwaitingPrice && n <= 0) {
		r := prompt(p.State)
		r.Kind = KindInvalidAmount
		r.Message = msgInvalidAmount + " " + r.Message
		return r
	}

	if p.State == model.StateAwaitingPrice {
		p.Price = n
		p.State = model.StateAwaitingMileage
	} else {
		p.Mileage = n
		p.State = model.StateAwaitingCondition
	}
	p.UpdatedAt = m.now()

	if err := m.store.Put(ctx, p); err != nil {
		m.logger.Error(ctx, "failed to save intake", "identity", p.Identity, "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}
	return prompt(p.State)
}

// finish runs the terminal step. The intake has already been reset.
func (m *Machine) finish(ctx context.Context, p *model.PartialIntake, text string) Reply {
	ctx, cancel := context.WithTimeout(ctx, m.cfg.EvaluationTimeout)
	defer cancel()

	listing := p.Listing(listingref.ParseCondition(text), m.now())
	log := m.logger.With("identity", p.Identity, "external_id", listing.ExternalID)

	if listing.ExternalID != "" {
		dup, err := m.listings.Exists(ctx, listing.ExternalID)
		if err != nil {
			log.Error(ctx, "duplicate check failed", "error", err)
			return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
		}
		if dup {
			return Reply{Kind: KindDuplicate, State: model.StateIdle, Message: msgDuplicate}
		}
	}

	plan := m.plans.Resolve(ctx, p.Identity)
	decision, err := m.quota.CheckAndConsume(ctx, p.Identity, plan)
	if err != nil {
		log.Error(ctx, "quota consume failed", "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}
	if !decision.Allowed {
		return Reply{Kind: KindQuotaExceeded, State: model.StateIdle, Message: msgQuotaExceeded, Remaining: intPtr(0)}
	}

	if err := m.listings.InsertIfAbsent(ctx, listing); err != nil {
		m.refund(ctx, p.Identity)
		if errors.Is(err, repository.ErrDuplicate) {
			return Reply{Kind: KindDuplicate, State: model.StateIdle, Message: msgDuplicate}
		}
		log.Error(ctx, "failed to store listing", "error", err)
		return Reply{Kind: KindUnavailable, State: model.StateIdle, Message: msgUnavailable}
	}

	remaining := intPtr(decision.Remaining)

	sample, err := m.selector.Select(ctx, listing)
	if err != nil {
		// the stored listing stays; the user sees an insufficient-data reply
		log.Warn(ctx, "comparable selection failed", "error", err)
		sample = nil
	}

	result, err := m.engine.Evaluate(sample, listing.Price)
	if err != nil {
		r := Reply{
			Kind:       KindInsufficientData,
			State:      model.StateIdle,
			Message:    msgInsufficient,
			Remaining:  remaining,
			SampleSize: len(sample),
			Required:   m.engine.MinSample(),
		}
		var ide *valuation.InsufficientDataError
		if errors.As(err, &ide) {
			r.SampleSize, r.Required = ide.SampleSize, ide.Required
		} else {
			log.Warn(ctx, "evaluation failed", "error", err)
		}
		return r
	}

	log.Info(ctx, "listing evaluated",
		"decision", result.Decision,
		"sample_size", result.SampleSize,
		"percent_difference", result.PercentDifference,
	)
	return Reply{
		Kind:      KindValuation,
		State:     model.StateIdle,
		Message:   valuationMessage(result),
		Remaining: remaining,
		Valuation: &result,
	}
}

func (m *Machine) refund(ctx context.Context, identity string) {
	if err := m.quota.Refund(ctx, identity); err != nil {
		m.logger.Warn(ctx, "quota refund failed", "identity", identity, "error", err)
	}
}

// SweepExpired deletes intakes untouched for longer than the TTL.
func (m *Machine) SweepExpired(ctx context.Context) (int, error) {
	return m.store.DeleteStale(ctx, m.now().Add(-m.cfg.TTL))
}

// Remaining reports the evaluations identity has left today.
func (m *Machine) Remaining(ctx context.Context, identity string) (model.Plan, int, error) {
	plan := m.plans.Resolve(ctx, identity)
	n, err := m.quota.Peek(ctx, identity, plan)
	return plan, n, err
}
