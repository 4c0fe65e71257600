package ports

import (
	"context"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type TenantRepository interface {
	// Create returns an error wrapping domain.ErrConflict when the slug is
	// already taken. The audit entry commits with the tenant row.
	Create(ctx context.Context, tenant domain.Tenant, audit domain.AuditEntry) (domain.Tenant, error)
	Get(ctx context.Context, id string) (domain.Tenant, error)
	GetBySlug(ctx context.Context, slug string) (domain.Tenant, error)
	// SetNamespaceHandle is set-once. Setting the same handle again is a
	// no-op; a different handle fails with domain.ErrNamespaceHandleSet.
	SetNamespaceHandle(ctx context.Context, id, handle string, audit domain.AuditEntry) error
	SetActive(ctx context.Context, id string, active bool, audit domain.AuditEntry) error
	ListUnprovisioned(ctx context.Context, limit int) ([]domain.Tenant, error)
}
