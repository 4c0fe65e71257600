package usecase

import (
	"context"
	"fmt"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

// RateLimiter admits requests against fixed-window counters, one counter
// per family, client key and window.
type RateLimiter struct {
	store ports.CounterStore
	rules map[domain.RateFamily]domain.RateRule
	now   func() time.Time
}

func NewRateLimiter(store ports.CounterStore, rules map[domain.RateFamily]domain.RateRule, now func() time.Time) (*RateLimiter, error) {
	if now == nil {
		now = time.Now
	}
	merged := domain.DefaultRateRules()
	for family, rule := range rules {
		if err := rule.Validate(); err != nil {
			return nil, err
		}
		merged[family] = rule
	}
	return &RateLimiter{store: store, rules: merged, now: now}, nil
}

func (l *RateLimiter) Rule(family domain.RateFamily) (domain.RateRule, bool) {
	rule, ok := l.rules[family]
	return rule, ok
}

// Admit charges one request to family for clientKey. The decision is always
// returned so callers can publish quota headers; the error is a
// *domain.RateLimitedError when the request is denied. Counter store
// failures admit the request and mark the decision FailOpen.
func (l *RateLimiter) Admit(ctx context.Context, family domain.RateFamily, clientKey string) (domain.RateDecision, error) {
	rule, ok := l.rules[family]
	if !ok {
		return domain.RateDecision{}, fmt.Errorf("%w: unknown rate limit family %q", domain.ErrInvalidInput, family)
	}
	now := l.now()
	start := domain.WindowStart(now, rule.Window)
	reset := start.Add(rule.Window)
	decision := domain.RateDecision{Family: family, Limit: rule.Limit, ResetAt: reset}

	key := fmt.Sprintf("rl:%s:%s:%d", family, clientKey, start.Unix())
	count, err := l.store.Increment(ctx, key, rule.Window)
	if err != nil {
		zerolog.Ctx(ctx).Warn().Err(err).Str("family", string(family)).Msg("rate limit store unavailable, admitting request")
		decision.Allowed = true
		decision.FailOpen = true
		decision.Remaining = rule.Limit - 1
		return decision, nil
	}

	decision.Remaining = max(rule.Limit-int(count), 0)
	if count > int64(rule.Limit) {
		decision.RetryAfter = reset.Sub(now)
		return decision, &domain.RateLimitedError{RetryAfter: decision.RetryAfter}
	}
	decision.Allowed = true
	return decision, nil
}
