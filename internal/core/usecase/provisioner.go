package usecase

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/cenkalti/backoff/v5"
	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

const (
	reconcilerActor     = "system:reconciler"
	defaultPersonaName  = "Sales assistant"
	defaultPersonaBrief = "You answer inbound leads for %s. Be brief, friendly and collect a phone number or email."
)

// Provisioner builds a tenant's isolated namespace. Each step can be
// repeated safely; the namespace handle is recorded on the tenant last, so a
// tenant with a handle always has a complete namespace.
type Provisioner struct {
	tenants    ports.TenantRepository
	namespaces ports.NamespaceStore
	now        func() time.Time
	maxTries   uint
}

func NewProvisioner(tenants ports.TenantRepository, namespaces ports.NamespaceStore) *Provisioner {
	return &Provisioner{tenants: tenants, namespaces: namespaces, now: time.Now, maxTries: 3}
}

func (p *Provisioner) Provision(ctx context.Context, tenantID, actor string) (domain.Tenant, error) {
	tenant, err := p.tenants.Get(ctx, tenantID)
	if err != nil {
		return domain.Tenant{}, err
	}
	handle, err := domain.NamespaceHandleFor(tenant.ID)
	if err != nil {
		return tenant, err
	}
	if tenant.NamespaceHandle != "" && tenant.NamespaceHandle != handle {
		return tenant, fmt.Errorf("%w: tenant %s has handle %s", domain.ErrNamespaceHandleSet, tenant.ID, tenant.NamespaceHandle)
	}

	now := p.now().UTC()
	if err := p.namespaces.Provision(ctx, handle, seedPersona(tenant, now)); err != nil {
		return tenant, fmt.Errorf("%w: build namespace %s: %w", domain.ErrProvisioningFailed, handle, err)
	}

	entry := newAuditEntry(tenant.ID, domain.ActionTenantProvisioned, domain.EntityTenant, tenant.ID, actor,
		[]byte(fmt.Sprintf(`{"namespace_handle":%q}`, handle)), now)
	if err := p.tenants.SetNamespaceHandle(ctx, tenant.ID, handle, entry); err != nil {
		return tenant, fmt.Errorf("%w: record namespace handle: %w", domain.ErrProvisioningFailed, err)
	}
	tenant.NamespaceHandle = handle
	return tenant, nil
}

// Reconcile retries provisioning for active tenants that never got a
// namespace handle. It returns how many were completed.
func (p *Provisioner) Reconcile(ctx context.Context, limit int) (int, error) {
	pending, err := p.tenants.ListUnprovisioned(ctx, limit)
	if err != nil {
		return 0, fmt.Errorf("list unprovisioned tenants: %w", err)
	}

	logger := zerolog.Ctx(ctx)
	var (
		done int
		errs []error
	)
	for _, tenant := range pending {
		if !tenant.IsActive {
			continue
		}
		_, err := backoff.Retry(ctx, func() (domain.Tenant, error) {
			t, err := p.Provision(ctx, tenant.ID, reconcilerActor)
			if errors.Is(err, domain.ErrNotFound) || errors.Is(err, domain.ErrNamespaceHandleSet) {
				return t, backoff.Permanent(err)
			}
			return t, err
		}, backoff.WithBackOff(backoff.NewExponentialBackOff()), backoff.WithMaxTries(p.maxTries))
		if err != nil {
			logger.Error().Err(err).Str("tenant_id", tenant.ID).Msg("reconcile tenant namespace")
			errs = append(errs, fmt.Errorf("tenant %s: %w", tenant.ID, err))
			continue
		}
		logger.Info().Str("tenant_id", tenant.ID).Str("slug", tenant.Slug).Msg("tenant namespace reconciled")
		done++
	}
	return done, errors.Join(errs...)
}

func seedPersona(tenant domain.Tenant, now time.Time) domain.Persona {
	id := uuid.NewSHA1(uuid.MustParse(tenant.ID), []byte("persona/default"))
	return domain.Persona{
		ID:           id.String(),
		Name:         defaultPersonaName,
		Instructions: fmt.Sprintf(defaultPersonaBrief, tenant.Slug),
		IsDefault:    true,
		CreatedAt:    now,
	}
}
