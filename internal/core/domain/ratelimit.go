package domain

import (
	"fmt"
	"strconv"
	"strings"
	"time"
)

type RateFamily string

const (
	FamilyGlobal         RateFamily = "global"
	FamilyTenantCreation RateFamily = "tenant_creation"
	FamilyLeadIngestion  RateFamily = "lead_ingestion"
	FamilyConversation   RateFamily = "conversation"
)

func (f RateFamily) Valid() bool {
	switch f {
	case FamilyGlobal, FamilyTenantCreation, FamilyLeadIngestion, FamilyConversation:
		return true
	}
	return false
}

type RateRule struct {
	Family RateFamily
	Limit  int
	Window time.Duration
}

func (r RateRule) Validate() error {
	if !r.Family.Valid() {
		return fmt.Errorf("%w: unknown rate limit family %q", ErrInvalidInput, r.Family)
	}
	if r.Limit <= 0 {
		return fmt.Errorf("%w: %s limit must be positive", ErrInvalidInput, r.Family)
	}
	if r.Window < time.Second {
		return fmt.Errorf("%w: %s window must be at least 1s", ErrInvalidInput, r.Family)
	}
	return nil
}

func (r RateRule) String() string {
	return fmt.Sprintf("%s=%d/%s", r.Family, r.Limit, r.Window)
}

func DefaultRateRules() map[RateFamily]RateRule {
	return map[RateFamily]RateRule{
		FamilyGlobal:         {Family: FamilyGlobal, Limit: 100, Window: time.Minute},
		FamilyTenantCreation: {Family: FamilyTenantCreation, Limit: 5, Window: time.Hour},
		FamilyLeadIngestion:  {Family: FamilyLeadIngestion, Limit: 300, Window: time.Minute},
		FamilyConversation:   {Family: FamilyConversation, Limit: 60, Window: time.Minute},
	}
}

// ParseRateRule parses "family=limit/window", e.g. "lead_ingestion=300/1m".
func ParseRateRule(s string) (RateRule, error) {
	family, quota, ok := strings.Cut(strings.TrimSpace(s), "=")
	if !ok {
		return RateRule{}, fmt.Errorf("%w: rate rule %q must look like family=limit/window", ErrInvalidInput, s)
	}
	limitRaw, windowRaw, ok := strings.Cut(quota, "/")
	if !ok {
		return RateRule{}, fmt.Errorf("%w: rate rule %q must look like family=limit/window", ErrInvalidInput, s)
	}
	limit, err := strconv.Atoi(limitRaw)
	if err != nil {
		return RateRule{}, fmt.Errorf("%w: rate rule %q: bad limit", ErrInvalidInput, s)
	}
	window, err := time.ParseDuration(windowRaw)
	if err != nil {
		return RateRule{}, fmt.Errorf("%w: rate rule %q: bad window", ErrInvalidInput, s)
	}
	rule := RateRule{Family: RateFamily(family), Limit: limit, Window: window}
	if err := rule.Validate(); err != nil {
		return RateRule{}, err
	}
	return rule, nil
}

type RateDecision struct {
	Family     RateFamily
	Allowed    bool
	Limit      int
	Remaining  int
	ResetAt    time.Time
	RetryAfter time.Duration
	FailOpen   bool
}

// WindowStart aligns now to the fixed window containing it.
func WindowStart(now time.Time, window time.Duration) time.Time {
	w := window.Nanoseconds()
	return time.Unix(0, now.UnixNano()/w*w).UTC()
}
