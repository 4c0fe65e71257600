package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

type TenantService struct {
	repo        ports.TenantRepository
	provisioner *Provisioner
	now         func() time.Time
}

func NewTenantService(repo ports.TenantRepository, provisioner *Provisioner) *TenantService {
	return &TenantService{repo: repo, provisioner: provisioner, now: time.Now}
}

// Create registers a tenant and provisions its namespace. When provisioning
// fails the tenant row stays, the error wraps domain.ErrProvisioningFailed
// and the returned tenant carries the new id so the caller can retry.
func (s *TenantService) Create(ctx context.Context, in domain.NewTenant, actor string) (domain.Tenant, error) {
	if err := in.Validate(); err != nil {
		return domain.Tenant{}, err
	}
	metadata := in.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}

	now := s.now().UTC()
	tenant := domain.Tenant{
		ID:        uuid.NewString(),
		Slug:      in.Slug,
		IsActive:  true,
		Metadata:  metadata,
		CreatedAt: now,
		UpdatedAt: now,
	}
	changes, _ := json.Marshal(map[string]any{"slug": tenant.Slug, "metadata": metadata})
	entry := newAuditEntry(tenant.ID, domain.ActionTenantCreated, domain.EntityTenant, tenant.ID, actor, changes, now)

	created, err := CreateUnique(ctx,
		func(ctx context.Context) (bool, error) {
			_, err := s.repo.GetBySlug(ctx, in.Slug)
			if errors.Is(err, domain.ErrNotFound) {
				return false, nil
			}
			return err == nil, err
		},
		func(ctx context.Context) (domain.Tenant, error) {
			return s.repo.Create(ctx, tenant, entry)
		},
	)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Tenant{}, fmt.Errorf("%w: tenant slug %q already exists", domain.ErrConflict, in.Slug)
		}
		return domain.Tenant{}, fmt.Errorf("create tenant: %w", err)
	}

	provisioned, err := s.provisioner.Provision(ctx, created.ID, actor)
	if err != nil {
		return created, err
	}
	return provisioned, nil
}

func (s *TenantService) Get(ctx context.Context, id string) (domain.Tenant, error) {
	if err := domain.ValidateTenantID(id); err != nil {
		return domain.Tenant{}, err
	}
	return s.repo.Get(ctx, id)
}

func (s *TenantService) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	if err := domain.ValidateSlug(slug); err != nil {
		return domain.Tenant{}, err
	}
	return s.repo.GetBySlug(ctx, slug)
}

func (s *TenantService) Provision(ctx context.Context, id, actor string) (domain.Tenant, error) {
	if err := domain.ValidateTenantID(id); err != nil {
		return domain.Tenant{}, err
	}
	return s.provisioner.Provision(ctx, id, actor)
}

// Deactivate is a soft delete. API keys of an inactive tenant stop
// validating; data stays in place.
func (s *TenantService) Deactivate(ctx context.Context, id, actor string) error {
	if err := domain.ValidateTenantID(id); err != nil {
		return err
	}
	entry := newAuditEntry(id, domain.ActionTenantDeactivated, domain.EntityTenant, id, actor, nil, s.now().UTC())
	return s.repo.SetActive(ctx, id, false, entry)
}
