package jwtauth

import (
	"context"
	"encoding/base64"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

var (
	secret      = []byte("0123456789abcdef0123456789abcdef")
	otherSecret = []byte("fedcba9876543210fedcba9876543210")
)

func fixedClock(t time.Time) func() time.Time { return func() time.Time { return t } }

func mint(t *testing.T, s []byte, now time.Time, req MintRequest) string {
	t.Helper()
	issuer, err := NewIssuer(s, fixedClock(now))
	require.NoError(t, err)
	token, err := issuer.Mint(req)
	require.NoError(t, err)
	return token
}

func TestVerifyRoundTrip(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	tenantID := uuid.NewString()
	token := mint(t, secret, now, MintRequest{TenantID: tenantID, Subject: "u1", Scopes: []string{"leads:write", "leads:read"}, TTL: time.Hour})

	v, err := NewVerifier(secret, fixedClock(now.Add(time.Minute)))
	require.NoError(t, err)
	identity, err := v.VerifyToken(context.Background(), token)
	require.NoError(t, err)

	assert.Equal(t, tenantID, identity.TenantID)
	assert.Equal(t, "u1", identity.UserID)
	assert.Equal(t, []string{"leads:write", "leads:read"}, identity.Scopes)
	assert.Equal(t, domain.AuthMethodToken, identity.Method)
	require.NotNil(t, identity.ExpiresAt)
	assert.True(t, identity.ExpiresAt.Equal(now.Add(time.Hour)))
}

func TestVerifyWrongSecret(t *testing.T) {
	now := time.Now()
	token := mint(t, otherSecret, now, MintRequest{TenantID: uuid.NewString(), TTL: time.Hour})
	v, err := NewVerifier(secret, fixedClock(now))
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyExpired(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	token := mint(t, secret, now, MintRequest{TenantID: uuid.NewString(), TTL: time.Minute})
	v, err := NewVerifier(secret, fixedClock(now.Add(time.Minute+time.Second)))
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
}

func TestVerifyNotYetValid(t *testing.T) {
	now := time.Date(2026, 5, 1, 12, 0, 0, 0, time.UTC)
	token := mint(t, secret, now, MintRequest{TenantID: uuid.NewString(), TTL: time.Hour})
	v, err := NewVerifier(secret, fixedClock(now.Add(-time.Minute)))
	require.NoError(t, err)

	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrExpiredCredential)
}

func TestVerifyFlippedSignatureByte(t *testing.T) {
	now := time.Now()
	token := mint(t, secret, now, MintRequest{TenantID: uuid.NewString(), TTL: time.Hour})

	parts := strings.Split(token, ".")
	require.Len(t, parts, 3)
	sig, err := base64.RawURLEncoding.DecodeString(parts[2])
	require.NoError(t, err)
	sig[0] ^= 0x01
	parts[2] = base64.RawURLEncoding.EncodeToString(sig)

	v, err := NewVerifier(secret, fixedClock(now))
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), strings.Join(parts, "."))
	assert.ErrorIs(t, err, domain.ErrInvalidSignature)
}

func TestVerifyRejectsOtherAlgorithms(t *testing.T) {
	now := time.Now()
	claims := Claims{TenantID: uuid.NewString(), RegisteredClaims: jwt.RegisteredClaims{ExpiresAt: jwt.NewNumericDate(now.Add(time.Hour))}}
	token, err := jwt.NewWithClaims(jwt.SigningMethodHS512, claims).SignedString(secret)
	require.NoError(t, err)

	v, err := NewVerifier(secret, fixedClock(now))
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), token)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	unsigned, err := jwt.NewWithClaims(jwt.SigningMethodNone, claims).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), unsigned)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)
}

func TestVerifyClaimRules(t *testing.T) {
	now := time.Now()
	v, err := NewVerifier(secret, fixedClock(now))
	require.NoError(t, err)

	noTenant := mint(t, secret, now, MintRequest{Subject: "u1", TTL: time.Hour})
	_, err = v.VerifyToken(context.Background(), noTenant)
	assert.ErrorIs(t, err, domain.ErrMalformedCredential)

	operator := mint(t, secret, now, MintRequest{Subject: "ops", Scopes: []string{domain.ScopePlatformAdmin}, TTL: time.Hour})
	identity, err := v.VerifyToken(context.Background(), operator)
	require.NoError(t, err)
	assert.True(t, identity.IsPlatformOperator())

	badTenant := mint(t, secret, now, MintRequest{TenantID: "abc-honda", TTL: time.Hour})
	_, err = v.VerifyToken(context.Background(), badTenant)
	assert.ErrorIs(t, err, domain.ErrMalformedCredential)

	noExpiry, err := jwt.NewWithClaims(jwt.SigningMethodHS256, Claims{TenantID: uuid.NewString()}).SignedString(secret)
	require.NoError(t, err)
	_, err = v.VerifyToken(context.Background(), noExpiry)
	assert.ErrorIs(t, err, domain.ErrUnauthorized)

	_, err = v.VerifyToken(context.Background(), "not.a.token")
	assert.ErrorIs(t, err, domain.ErrMalformedCredential)
}

func TestWeakSecretRejected(t *testing.T) {
	_, err := NewVerifier([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrWeakSecret)
	_, err = NewIssuer([]byte("short"), nil)
	assert.ErrorIs(t, err, ErrWeakSecret)
}
