// Package jwtauth verifies and mints HS256 bearer tokens.
package jwtauth

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/golang-jwt/jwt/v5"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

const MinSecretLength = 32

var ErrWeakSecret = fmt.Errorf("jwt secret must be at least %d bytes", MinSecretLength)

// Claims is the token payload. tid is the tenant id; a token without one is
// only accepted when it carries the platform admin scope.
type Claims struct {
	TenantID string `json:"tid,omitempty"`
	Scope    string `json:"scope,omitempty"`
	jwt.RegisteredClaims
}

type Verifier struct {
	secret []byte
	parser *jwt.Parser
}

func NewVerifier(secret []byte, now func() time.Time) (*Verifier, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if now == nil {
		now = time.Now
	}
	return &Verifier{
		secret: secret,
		parser: jwt.NewParser(
			jwt.WithValidMethods([]string{jwt.SigningMethodHS256.Alg()}),
			jwt.WithExpirationRequired(),
			jwt.WithTimeFunc(now),
		),
	}, nil
}

func (v *Verifier) VerifyToken(_ context.Context, raw string) (domain.Identity, error) {
	var claims Claims
	if _, err := v.parser.ParseWithClaims(raw, &claims, v.key); err != nil {
		return domain.Identity{}, classify(err)
	}

	scopes := strings.Fields(claims.Scope)
	expiresAt := claims.ExpiresAt.Time
	identity := domain.NewIdentity(claims.TenantID, claims.Subject, scopes, &expiresAt, domain.AuthMethodToken)

	if identity.TenantID == "" {
		if !identity.IsPlatformOperator() {
			return domain.Identity{}, fmt.Errorf("%w: token has no tenant", domain.ErrMalformedCredential)
		}
		return identity, nil
	}
	if err := domain.ValidateTenantID(identity.TenantID); err != nil {
		return domain.Identity{}, fmt.Errorf("%w: tid is not a tenant id", domain.ErrMalformedCredential)
	}
	return identity, nil
}

func (v *Verifier) key(*jwt.Token) (any, error) {
	return v.secret, nil
}

func classify(err error) error {
	switch {
	case errors.Is(err, jwt.ErrTokenExpired), errors.Is(err, jwt.ErrTokenNotValidYet):
		return fmt.Errorf("%w: %v", domain.ErrExpiredCredential, err)
	case errors.Is(err, jwt.ErrTokenSignatureInvalid), errors.Is(err, jwt.ErrTokenUnverifiable):
		return fmt.Errorf("%w: %v", domain.ErrInvalidSignature, err)
	default:
		return fmt.Errorf("%w: %v", domain.ErrMalformedCredential, err)
	}
}

// Issuer mints tokens with the same secret. It backs the operator CLI and
// tests; end-user tokens normally come from the identity provider.
type Issuer struct {
	secret []byte
	now    func() time.Time
}

func NewIssuer(secret []byte, now func() time.Time) (*Issuer, error) {
	if len(secret) < MinSecretLength {
		return nil, ErrWeakSecret
	}
	if now == nil {
		now = time.Now
	}
	return &Issuer{secret: secret, now: now}, nil
}

type MintRequest struct {
	TenantID string
	Subject  string
	Scopes   []string
	TTL      time.Duration
}

func (i *Issuer) Mint(req MintRequest) (string, error) {
	if req.TTL <= 0 {
		return "", fmt.Errorf("%w: ttl must be positive", domain.ErrInvalidInput)
	}
	now := i.now()
	claims := Claims{
		TenantID: req.TenantID,
		Scope:    strings.Join(req.Scopes, " "),
		RegisteredClaims: jwt.RegisteredClaims{
			Subject:   req.Subject,
			IssuedAt:  jwt.NewNumericDate(now),
			NotBefore: jwt.NewNumericDate(now),
			ExpiresAt: jwt.NewNumericDate(now.Add(req.TTL)),
		},
	}
	return jwt.NewWithClaims(jwt.SigningMethodHS256, claims).SignedString(i.secret)
}
