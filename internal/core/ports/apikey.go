package ports

import (
	"context"
	"time"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type APIKeyRepository interface {
	FindByHash(ctx context.Context, keyHash string) (domain.APIKey, error)
	Create(ctx context.Context, key domain.APIKey, audit domain.AuditEntry) error
	Get(ctx context.Context, tenantID, id string) (domain.APIKey, error)
	List(ctx context.Context, tenantID string) ([]domain.APIKey, error)
	// Deactivate reports whether the key exists for the tenant. Revoking an
	// already inactive key succeeds without a second audit entry.
	Deactivate(ctx context.Context, tenantID, id string, audit domain.AuditEntry) (bool, error)
	TouchLastUsed(ctx context.Context, id string, at time.Time) error
}

// TokenVerifier checks a signed bearer token and returns its identity.
type TokenVerifier interface {
	VerifyToken(ctx context.Context, raw string) (domain.Identity, error)
}
