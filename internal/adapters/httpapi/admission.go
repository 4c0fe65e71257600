package httpapi

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"strings"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type CredentialVerifier interface {
	Verify(ctx context.Context, raw string) (domain.Identity, error)
}

type Admitter interface {
	Admit(ctx context.Context, family domain.RateFamily, clientKey string) (domain.RateDecision, error)
}

type ctxKey string

const identityCtxKey ctxKey = "identity"

// IdentityFromContext returns the identity placed by the admission
// middleware.
func IdentityFromContext(ctx context.Context) (domain.Identity, bool) {
	id, ok := ctx.Value(identityCtxKey).(domain.Identity)
	return id, ok
}

type clientKeyFunc func(r *http.Request) string

func byClientIP(r *http.Request) string {
	host, _, err := net.SplitHostPort(r.RemoteAddr)
	if err != nil {
		return r.RemoteAddr
	}
	return host
}

func byPathTenant(r *http.Request) string {
	return "tenant:" + chi.URLParam(r, "tenantID")
}

func byPathTenantOrIP(r *http.Request) string {
	if id := chi.URLParam(r, "tenantID"); id != "" {
		return "tenant:" + id
	}
	return byClientIP(r)
}

// admit runs the admission pipeline in its fixed order: rate limit, then
// credential verification, then the tenant guard. A denied step ends the
// request before the next one runs.
func (h *Handler) admit(family domain.RateFamily, clientKey clientKeyFunc) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			ctx := r.Context()

			decision, err := h.limiter.Admit(ctx, family, clientKey(r))
			setRateHeaders(w, decision)
			if h.metrics != nil && decision.Family != "" {
				h.metrics.RecordRateDecision(decision)
			}
			if err != nil {
				writeDomainError(w, r, err)
				return
			}

			raw, err := credentialFrom(r)
			if err != nil {
				h.rejectCredential(w, r, err)
				return
			}
			identity, err := h.verifier.Verify(ctx, raw)
			if err != nil {
				if errors.Is(err, domain.ErrUnauthorized) {
					h.rejectCredential(w, r, err)
					return
				}
				writeDomainError(w, r, err)
				return
			}

			if err := h.guard.Authorize(identity, chi.URLParam(r, "tenantID")); err != nil {
				if h.metrics != nil {
					h.metrics.RecordGuardRejection()
				}
				writeDomainError(w, r, err)
				return
			}

			next.ServeHTTP(w, r.WithContext(context.WithValue(ctx, identityCtxKey, identity)))
		})
	}
}

func (h *Handler) rejectCredential(w http.ResponseWriter, r *http.Request, err error) {
	if h.metrics != nil {
		h.metrics.RecordAuthFailure(err)
	}
	writeDomainError(w, r, err)
}

func setRateHeaders(w http.ResponseWriter, d domain.RateDecision) {
	if d.Limit == 0 {
		return
	}
	w.Header().Set("X-RateLimit-Limit", strconv.Itoa(d.Limit))
	w.Header().Set("X-RateLimit-Remaining", strconv.Itoa(d.Remaining))
	w.Header().Set("X-RateLimit-Reset", strconv.FormatInt(d.ResetAt.Unix(), 10))
}

// credentialFrom reads "Authorization: Bearer <v>" or "X-API-Key: <v>".
// Authorization wins when both are present.
func credentialFrom(r *http.Request) (string, error) {
	if auth := r.Header.Get("Authorization"); auth != "" {
		scheme, value, ok := strings.Cut(auth, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") || strings.TrimSpace(value) == "" {
			return "", fmt.Errorf("%w: authorization header must use the bearer scheme", domain.ErrMalformedCredential)
		}
		return strings.TrimSpace(value), nil
	}
	if key := strings.TrimSpace(r.Header.Get("X-API-Key")); key != "" {
		return key, nil
	}
	return "", fmt.Errorf("%w: no credential presented", domain.ErrMalformedCredential)
}

func requirePlatformOperator(identity domain.Identity) error {
	if !identity.IsPlatformOperator() {
		return fmt.Errorf("%w: platform admin scope required", domain.ErrInsufficientScope)
	}
	return nil
}

// requireToken keeps API keys away from key management so a leaked key
// cannot mint or revoke others.
func requireToken(identity domain.Identity) error {
	if identity.Method != domain.AuthMethodToken {
		return fmt.Errorf("%w: api keys cannot manage api keys", domain.ErrInsufficientScope)
	}
	return nil
}

func identityOf(r *http.Request) domain.Identity {
	id, _ := IdentityFromContext(r.Context())
	return id
}
