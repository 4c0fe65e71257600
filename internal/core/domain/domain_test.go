package domain

import (
	"errors"
	"fmt"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestValidateSlug(t *testing.T) {
	cases := []struct {
		slug string
		ok   bool
	}{
		{"abc-honda", true},
		{"a", true},
		{"dealer42", true},
		{"", false},
		{"ABC", false},
		{"-abc", false},
		{"abc-", false},
		{"abc--honda", false},
		{"abc_honda", false},
		{strings.Repeat("a", 64), false},
	}
	for _, tc := range cases {
		err := ValidateSlug(tc.slug)
		if tc.ok {
			assert.NoError(t, err, tc.slug)
		} else {
			assert.ErrorIs(t, err, ErrInvalidInput, tc.slug)
		}
	}
}

func TestNamespaceHandleForIsStable(t *testing.T) {
	id := "5b0f3a8e-2c44-4d0e-9a57-0c1b2d3e4f50"
	h1, err := NamespaceHandleFor(id)
	require.NoError(t, err)
	h2, err := NamespaceHandleFor(strings.ToUpper(id))
	require.NoError(t, err)

	assert.Equal(t, "t_5b0f3a8e2c444d0e9a570c1b2d3e4f50", h1)
	assert.Equal(t, h1, h2)
	assert.NoError(t, ValidateNamespaceHandle(h1))

	_, err = NamespaceHandleFor("not-a-uuid")
	assert.ErrorIs(t, err, ErrInvalidInput)
	assert.Error(t, ValidateNamespaceHandle("t_../../etc"))
}

func TestCredentialErrorsShareUnauthorizedRoot(t *testing.T) {
	for _, err := range []error{ErrMalformedCredential, ErrExpiredCredential, ErrInvalidSignature, ErrInvalidKey} {
		wrapped := fmt.Errorf("verify: %w", err)
		assert.ErrorIs(t, wrapped, ErrUnauthorized)
		assert.ErrorIs(t, wrapped, err)
	}
	assert.False(t, errors.Is(ErrTenantMismatch, ErrUnauthorized))
	assert.ErrorIs(t, ErrTenantMismatch, ErrForbidden)
}

func TestErrorKind(t *testing.T) {
	assert.Equal(t, "expired_credential", ErrorKind(fmt.Errorf("x: %w", ErrExpiredCredential)))
	assert.Equal(t, "invalid_key", ErrorKind(ErrInvalidKey))
	assert.Equal(t, "tenant_mismatch", ErrorKind(ErrTenantMismatch))
	assert.Equal(t, "rate_limited", ErrorKind(&RateLimitedError{RetryAfter: time.Second}))
	assert.Equal(t, "invalid_request", ErrorKind(&SchemaViolationError{}))
	assert.Equal(t, "internal_error", ErrorKind(errors.New("boom")))
}

func TestParseRateRule(t *testing.T) {
	rule, err := ParseRateRule("lead_ingestion=300/1m")
	require.NoError(t, err)
	assert.Equal(t, RateRule{Family: FamilyLeadIngestion, Limit: 300, Window: time.Minute}, rule)

	for _, bad := range []string{"", "global", "global=10", "global=x/1m", "global=10/xx", "unknown=1/1m", "global=0/1m", "global=5/10ms"} {
		_, err := ParseRateRule(bad)
		assert.ErrorIs(t, err, ErrInvalidInput, bad)
	}
}

func TestWindowStart(t *testing.T) {
	now := time.Date(2026, 3, 1, 10, 41, 27, 500, time.UTC)
	assert.Equal(t, time.Date(2026, 3, 1, 10, 41, 0, 0, time.UTC), WindowStart(now, time.Minute))
	assert.Equal(t, time.Date(2026, 3, 1, 10, 0, 0, 0, time.UTC), WindowStart(now, time.Hour))
}

func TestIdentityActor(t *testing.T) {
	assert.Equal(t, "user:u1", NewIdentity("t1", "u1", nil, nil, AuthMethodToken).Actor())
	assert.Equal(t, "platform", NewIdentity("", "", []string{ScopePlatformAdmin}, nil, AuthMethodToken).Actor())
	key := Identity{TenantID: "t1", Method: AuthMethodAPIKey, KeyID: "k1"}
	assert.Equal(t, "api_key:k1", key.Actor())
}

func TestNewAPIKeyValidate(t *testing.T) {
	now := time.Now()
	past := now.Add(-time.Second)
	assert.NoError(t, NewAPIKey{Name: "crm"}.Validate(now))
	assert.ErrorIs(t, NewAPIKey{Name: " "}.Validate(now), ErrInvalidInput)
	assert.ErrorIs(t, NewAPIKey{Name: "crm", ExpiresAt: &past}.Validate(now), ErrInvalidInput)
	assert.Equal(t, "lk_abcdef", DisplayPrefix("lk_abcdefghijk"))
}
