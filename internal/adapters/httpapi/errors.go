package httpapi

import (
	"errors"
	"math"
	"net/http"
	"strconv"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type errorResponse struct {
	Error      string                   `json:"error"`
	Message    string                   `json:"message"`
	RetryAfter *int                     `json:"retryAfter,omitempty"`
	TenantID   string                   `json:"tenantId,omitempty"`
	Violations []domain.SchemaViolation `json:"violations,omitempty"`
}

// writeDomainError maps err to a status and a safe body. Credential and
// guard failures collapse to "unauthorized" and "forbidden"; the precise
// kind only reaches the log.
func writeDomainError(w http.ResponseWriter, r *http.Request, err error) {
	log := zerolog.Ctx(r.Context())
	kind := domain.ErrorKind(err)

	var (
		status int
		body   errorResponse
	)
	var rateErr *domain.RateLimitedError
	var schemaErr *domain.SchemaViolationError

	switch {
	case errors.As(err, &rateErr):
		secs := retryAfterSeconds(rateErr)
		w.Header().Set("Retry-After", strconv.Itoa(secs))
		status, body = http.StatusTooManyRequests, errorResponse{Error: "rate_limited", Message: "too many requests", RetryAfter: &secs}
	case errors.Is(err, domain.ErrUnauthorized):
		status, body = http.StatusUnauthorized, errorResponse{Error: "unauthorized", Message: "unauthorized"}
	case errors.Is(err, domain.ErrForbidden):
		status, body = http.StatusForbidden, errorResponse{Error: "forbidden", Message: "forbidden"}
	case errors.As(err, &schemaErr):
		status, body = http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: "payload violates lead schema", Violations: schemaErr.Violations}
	case errors.Is(err, domain.ErrInvalidInput):
		status, body = http.StatusBadRequest, errorResponse{Error: "invalid_request", Message: err.Error()}
	case errors.Is(err, domain.ErrNotFound):
		status, body = http.StatusNotFound, errorResponse{Error: "not_found", Message: "not found"}
	case errors.Is(err, domain.ErrTenantNotProvisioned):
		status, body = http.StatusConflict, errorResponse{Error: "tenant_not_provisioned", Message: "tenant namespace is not provisioned yet"}
	case errors.Is(err, domain.ErrConflict), errors.Is(err, domain.ErrNamespaceHandleSet):
		status, body = http.StatusConflict, errorResponse{Error: "conflict", Message: conflictMessage(err)}
	case errors.Is(err, domain.ErrProvisioningFailed):
		status, body = http.StatusInternalServerError, errorResponse{Error: "provisioning_failed", Message: "tenant provisioning failed, retry provisioning"}
	default:
		status, body = http.StatusInternalServerError, errorResponse{Error: "internal_error", Message: "internal server error"}
	}

	ev := log.Warn()
	if status >= http.StatusInternalServerError {
		ev = log.Error()
	}
	ev.Err(err).Str("kind", kind).Int("status", status).Msg("request rejected")

	writeJSON(w, status, body)
}

func conflictMessage(err error) string {
	if errors.Is(err, domain.ErrNamespaceHandleSet) {
		return "namespace handle already set"
	}
	return err.Error()
}

func retryAfterSeconds(err *domain.RateLimitedError) int {
	return max(int(math.Ceil(err.RetryAfter.Seconds())), 1)
}
