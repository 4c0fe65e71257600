package usecase

import (
	"fmt"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// TenantGuard decides whether an identity may act on a tenant named in the
// request.
type TenantGuard struct{}

func (TenantGuard) Authorize(identity domain.Identity, requestedTenantID string) error {
	if requestedTenantID == "" {
		return nil
	}
	if identity.IsPlatformOperator() {
		return nil
	}
	if identity.TenantID == "" || identity.TenantID != requestedTenantID {
		return fmt.Errorf("%w: identity tenant %q, requested %q", domain.ErrTenantMismatch, identity.TenantID, requestedTenantID)
	}
	return nil
}
