// Package quota decides whether a principal may create another pet on
// their subscription tier.
//
// Guard.Authorize is a point-in-time pre-check. Two sessions of the same
// principal can both pass it before either insert lands, so callers that
// create resources must also enforce the limit at write time (see
// repository.PetRepository.CreateWithinLimit). The pre-check remains the
// cheap path that yields a distinguishable ErrQuotaExceeded without a write.
package quota

import (
	"context"
	"errors"
	"time"

	"github.com/google/uuid"
	"go.uber.org/zap"

	"github.com/rpattn/pawlog/internal/domain"
)

// TierSource reads the subscription tier of a principal.
type TierSource interface {
	GetTier(ctx context.Context, principal uuid.UUID) (domain.Tier, error)
}

// CountSource counts the pets a principal owns.
type CountSource interface {
	CountOwned(ctx context.Context, principal uuid.UUID) (int, error)
}

// Decision is the outcome of a successful Authorize call.
type Decision struct {
	Bypassed bool
	Tier     domain.Tier
	Count    int
	Limit    int
}

// Unlimited reports whether no write-time limit needs enforcing.
func (d Decision) Unlimited() bool {
	return d.Bypassed || d.Limit == Unlimited
}

// Guard gates pet creation on tier limits.
type Guard struct {
	tiers  TierSource
	counts CountSource
	bypass bool
	stats  StatsStore
	logger *zap.Logger
	now    func() time.Time
}

type Option func(*Guard)

// WithBypass disables limit checks entirely. It is an operator switch for
// test environments and is never exposed to end users.
func WithBypass(bypass bool) Option {
	return func(g *Guard) { g.bypass = bypass }
}

func WithStats(store StatsStore) Option {
	return func(g *Guard) { g.stats = store }
}

func WithLogger(logger *zap.Logger) Option {
	return func(g *Guard) {
		if logger != nil {
			g.logger = logger
		}
	}
}

func NewGuard(tiers TierSource, counts CountSource, opts ...Option) *Guard {
	g := &Guard{
		tiers:  tiers,
		counts: counts,
		logger: zap.NewNop(),
		now:    time.Now,
	}
	for _, opt := range opts {
		opt(g)
	}
	return g
}

// Bypassed reports whether the guard was built with the operator bypass.
func (g *Guard) Bypassed() bool { return g.bypass }

// Authorize decides whether principal may create one more pet.
//
// Errors match ErrTierLookupFailed, ErrCountLookupFailed or
// ErrQuotaExceeded (an *ExceededError). Nothing is retried.
func (g *Guard) Authorize(ctx context.Context, principal uuid.UUID) (Decision, error) {
	if g.bypass {
		g.record(ctx, principal, OutcomeBypassed)
		return Decision{Bypassed: true, Limit: Unlimited}, nil
	}

	tier, err := g.tiers.GetTier(ctx, principal)
	if err != nil {
		g.record(ctx, principal, OutcomeFailed)
		g.logger.Warn("quota tier lookup failed", zap.Stringer("principal", principal), zap.Error(err))
		return Decision{}, &lookupError{kind: ErrTierLookupFailed, cause: err}
	}

	count, err := g.counts.CountOwned(ctx, principal)
	if err != nil {
		g.record(ctx, principal, OutcomeFailed)
		g.logger.Warn("quota count lookup failed", zap.Stringer("principal", principal), zap.Error(err))
		return Decision{}, &lookupError{kind: ErrCountLookupFailed, cause: err}
	}

	limit := Limit(tier)
	decision := Decision{Tier: tier, Count: count, Limit: limit}
	if limit != Unlimited && count >= limit {
		g.record(ctx, principal, OutcomeExceeded)
		g.logger.Debug("quota exceeded",
			zap.Stringer("principal", principal),
			zap.String("tier", string(tier)),
			zap.Int("count", count),
			zap.Int("limit", limit))
		return decision, &ExceededError{Tier: tier, Limit: limit, Count: count}
	}

	g.record(ctx, principal, OutcomeAllowed)
	return decision, nil
}

// RequireFeature returns ErrFeatureUnavailable unless principal's tier
// includes feature. The operator bypass unlocks every feature.
func (g *Guard) RequireFeature(ctx context.Context, principal uuid.UUID, feature Feature) error {
	if g.bypass || Allows(domain.TierFree, feature) {
		return nil
	}
	tier, err := g.tiers.GetTier(ctx, principal)
	if err != nil {
		return &lookupError{kind: ErrTierLookupFailed, cause: err}
	}
	if !Allows(tier, feature) {
		return ErrFeatureUnavailable
	}
	return nil
}

// Usage reports the quota state of principal.
func (g *Guard) Usage(ctx context.Context, principal uuid.UUID) (Usage, error) {
	tier, err := g.tiers.GetTier(ctx, principal)
	if err != nil {
		return Usage{}, &lookupError{kind: ErrTierLookupFailed, cause: err}
	}
	count, err := g.counts.CountOwned(ctx, principal)
	if err != nil {
		return Usage{}, &lookupError{kind: ErrCountLookupFailed, cause: err}
	}
	usage := newUsage(tier, count)
	if g.bypass {
		usage.Limit, usage.Remaining = Unlimited, Unlimited
	}
	return usage, nil
}

// PrincipalStats returns the decision totals of one principal. It is nil
// when the configured store does not track principals.
func (g *Guard) PrincipalStats(ctx context.Context, principal uuid.UUID) (StatsSnapshot, error) {
	tracker, ok := g.stats.(PrincipalStatsStore)
	if !ok {
		return nil, nil
	}
	return tracker.PrincipalSnapshot(ctx, principal)
}

// Stats returns cumulative decision totals, or an empty snapshot when no store is configured.
func (g *Guard) Stats(ctx context.Context) (StatsSnapshot, error) {
	if g.stats == nil {
		return StatsSnapshot{}, nil
	}
	return g.stats.Snapshot(ctx)
}

func (g *Guard) record(ctx context.Context, principal uuid.UUID, outcome Outcome) {
	if g.stats == nil {
		return
	}
	err := g.stats.Record(ctx, StatsEvent{Principal: principal, Outcome: outcome, At: g.now()})
	if err != nil && !errors.Is(err, context.Canceled) {
		g.logger.Warn("record quota decision", zap.String("outcome", string(outcome)), zap.Error(err))
	}
}
