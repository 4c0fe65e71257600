package domain

import (
	"errors"
	"fmt"
	"time"
)

var (
	ErrNotFound     = errors.New("not found")
	ErrInvalidInput = errors.New("invalid input")
	ErrConflict     = errors.New("conflict")

	// ErrUnauthorized is the root of every credential failure. Callers that
	// only need the coarse outcome match on it; logs use ErrorKind.
	ErrUnauthorized        = errors.New("unauthorized")
	ErrMalformedCredential = fmt.Errorf("%w: malformed credential", ErrUnauthorized)
	ErrExpiredCredential   = fmt.Errorf("%w: expired credential", ErrUnauthorized)
	ErrInvalidSignature    = fmt.Errorf("%w: invalid signature", ErrUnauthorized)
	ErrInvalidKey          = fmt.Errorf("%w: invalid api key", ErrUnauthorized)

	ErrForbidden         = errors.New("forbidden")
	ErrTenantMismatch    = fmt.Errorf("%w: tenant mismatch", ErrForbidden)
	ErrInsufficientScope = fmt.Errorf("%w: insufficient scope", ErrForbidden)
	ErrTenantInactive    = fmt.Errorf("%w: tenant inactive", ErrForbidden)

	ErrRateLimited          = errors.New("rate limited")
	ErrProvisioningFailed   = errors.New("provisioning failed")
	ErrTenantNotProvisioned = errors.New("tenant not provisioned")
	ErrNamespaceHandleSet   = errors.New("namespace handle already set")
)

// RateLimitedError carries the wait a denied caller should observe.
type RateLimitedError struct {
	RetryAfter time.Duration
}

func (e *RateLimitedError) Error() string {
	return fmt.Sprintf("rate limited, retry after %s", e.RetryAfter)
}

func (e *RateLimitedError) Is(target error) bool {
	return target == ErrRateLimited
}

// ErrorKind returns a stable machine-readable name for err. The most
// specific sentinel wins.
func ErrorKind(err error) string {
	switch {
	case err == nil:
		return ""
	case errors.Is(err, ErrMalformedCredential):
		return "malformed_credential"
	case errors.Is(err, ErrExpiredCredential):
		return "expired_credential"
	case errors.Is(err, ErrInvalidSignature):
		return "invalid_signature"
	case errors.Is(err, ErrInvalidKey):
		return "invalid_key"
	case errors.Is(err, ErrUnauthorized):
		return "unauthorized"
	case errors.Is(err, ErrTenantMismatch):
		return "tenant_mismatch"
	case errors.Is(err, ErrInsufficientScope):
		return "insufficient_scope"
	case errors.Is(err, ErrTenantInactive):
		return "tenant_inactive"
	case errors.Is(err, ErrForbidden):
		return "forbidden"
	case errors.Is(err, ErrRateLimited):
		return "rate_limited"
	case errors.Is(err, ErrProvisioningFailed):
		return "provisioning_failed"
	case errors.Is(err, ErrTenantNotProvisioned):
		return "tenant_not_provisioned"
	case errors.Is(err, ErrConflict), errors.Is(err, ErrNamespaceHandleSet):
		return "conflict"
	case errors.Is(err, ErrNotFound):
		return "not_found"
	case errors.Is(err, ErrInvalidInput):
		return "invalid_request"
	default:
		var schemaErr *SchemaViolationError
		if errors.As(err, &schemaErr) {
			return "invalid_request"
		}
		return "internal_error"
	}
}
