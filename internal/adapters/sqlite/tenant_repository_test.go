package sqlite

import (
	"context"
	"errors"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/usecase"
)

func TestTenantRepositoryCreateAndGet(t *testing.T) {
	repo := NewTenantRepository(openSystemDB(t))
	ctx := context.Background()
	tenant := newTenant("abc-honda")

	created, err := repo.Create(ctx, tenant, auditFor(tenant.ID, domain.ActionTenantCreated))
	require.NoError(t, err)
	assert.JSONEq(t, `{}`, string(created.Metadata))

	byID, err := repo.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, "abc-honda", byID.Slug)
	assert.False(t, byID.Provisioned())

	bySlug, err := repo.GetBySlug(ctx, "abc-honda")
	require.NoError(t, err)
	assert.Equal(t, tenant.ID, bySlug.ID)

	_, err = repo.Get(ctx, "missing")
	assert.ErrorIs(t, err, domain.ErrNotFound)
}

func TestTenantRepositoryDuplicateSlugIsConflict(t *testing.T) {
	repo := NewTenantRepository(openSystemDB(t))
	ctx := context.Background()

	first := newTenant("abc-honda")
	_, err := repo.Create(ctx, first, auditFor(first.ID, domain.ActionTenantCreated))
	require.NoError(t, err)

	second := newTenant("abc-honda")
	_, err = repo.Create(ctx, second, auditFor(second.ID, domain.ActionTenantCreated))
	assert.ErrorIs(t, err, domain.ErrConflict)
}

func TestTenantRepositoryConcurrentCreateUnique(t *testing.T) {
	repo := NewTenantRepository(openSystemDB(t))
	ctx := context.Background()

	var (
		wg       sync.WaitGroup
		mu       sync.Mutex
		outcomes []error
		gate     = make(chan struct{})
	)
	for range 2 {
		wg.Add(1)
		go func() {
			defer wg.Done()
			tenant := newTenant("race-dealer")
			_, err := usecase.CreateUnique(ctx,
				func(ctx context.Context) (bool, error) {
					<-gate
					return false, nil
				},
				func(ctx context.Context) (domain.Tenant, error) {
					return repo.Create(ctx, tenant, auditFor(tenant.ID, domain.ActionTenantCreated))
				})
			mu.Lock()
			outcomes = append(outcomes, err)
			mu.Unlock()
		}()
	}
	close(gate)
	wg.Wait()

	var created, conflicts int
	for _, err := range outcomes {
		switch {
		case err == nil:
			created++
		case errors.Is(err, domain.ErrConflict):
			conflicts++
		default:
			t.Fatalf("unexpected error: %v", err)
		}
	}
	assert.Equal(t, 1, created)
	assert.Equal(t, 1, conflicts)
}

func TestTenantRepositoryNamespaceHandleIsSetOnce(t *testing.T) {
	db := openSystemDB(t)
	repo := NewTenantRepository(db)
	audit := NewAuditRepository(db)
	ctx := context.Background()
	tenant := newTenant("abc-honda")
	_, err := repo.Create(ctx, tenant, auditFor(tenant.ID, domain.ActionTenantCreated))
	require.NoError(t, err)

	handle, err := domain.NamespaceHandleFor(tenant.ID)
	require.NoError(t, err)
	require.NoError(t, repo.SetNamespaceHandle(ctx, tenant.ID, handle, auditFor(tenant.ID, domain.ActionTenantProvisioned)))
	require.NoError(t, repo.SetNamespaceHandle(ctx, tenant.ID, handle, auditFor(tenant.ID, domain.ActionTenantProvisioned)))

	err = repo.SetNamespaceHandle(ctx, tenant.ID, "t_00000000000000000000000000000000", auditFor(tenant.ID, domain.ActionTenantProvisioned))
	assert.ErrorIs(t, err, domain.ErrNamespaceHandleSet)

	stored, err := repo.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.Equal(t, handle, stored.NamespaceHandle)

	entries, err := audit.List(ctx, domain.AuditFilter{TenantID: tenant.ID, Action: domain.ActionTenantProvisioned, Limit: 10})
	require.NoError(t, err)
	assert.Len(t, entries, 1)

	pending, err := repo.ListUnprovisioned(ctx, 10)
	require.NoError(t, err)
	assert.Empty(t, pending)
}

func TestTenantRepositorySetActive(t *testing.T) {
	repo := NewTenantRepository(openSystemDB(t))
	ctx := context.Background()
	tenant := newTenant("abc-honda")
	_, err := repo.Create(ctx, tenant, auditFor(tenant.ID, domain.ActionTenantCreated))
	require.NoError(t, err)

	require.NoError(t, repo.SetActive(ctx, tenant.ID, false, auditFor(tenant.ID, domain.ActionTenantDeactivated)))
	stored, err := repo.Get(ctx, tenant.ID)
	require.NoError(t, err)
	assert.False(t, stored.IsActive)

	err = repo.SetActive(ctx, "missing", false, auditFor("missing", domain.ActionTenantDeactivated))
	assert.ErrorIs(t, err, domain.ErrNotFound)
}
