package usecase

import (
	"context"
	"encoding/json"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type leadFixture struct {
	tenants  *TenantService
	leads    *LeadService
	audit    *memAuditRepo
	spaces   *memNamespaces
	tenantDB *memTenantRepo
}

func newLeadFixture(t *testing.T) leadFixture {
	t.Helper()
	tenants := newMemTenantRepo()
	spaces := newMemNamespaces()
	audit := &memAuditRepo{}
	schema, err := NewLeadSchema()
	require.NoError(t, err)
	return leadFixture{
		tenants:  NewTenantService(tenants, NewProvisioner(tenants, spaces)),
		leads:    NewLeadService(tenants, spaces, audit, schema),
		audit:    audit,
		spaces:   spaces,
		tenantDB: tenants,
	}
}

var leadPayload = json.RawMessage(`{"name":"Ona","email":"ona@example.com"}`)

func TestLeadIngestionIsolatedPerTenant(t *testing.T) {
	f := newLeadFixture(t)
	ctx := context.Background()

	honda, err := f.tenants.Create(ctx, domain.NewTenant{Slug: "abc-honda"}, "platform")
	require.NoError(t, err)
	toyota, err := f.tenants.Create(ctx, domain.NewTenant{Slug: "xyz-toyota"}, "platform")
	require.NoError(t, err)
	assert.NotEqual(t, honda.NamespaceHandle, toyota.NamespaceHandle)

	in := domain.NewLead{ExternalID: "LEAD-001", Source: "web", Payload: leadPayload}
	first, err := f.leads.Ingest(ctx, honda.ID, in, "api_key:k1")
	require.NoError(t, err)
	assert.Equal(t, domain.LeadStatusNew, first.Status)

	_, err = f.leads.Ingest(ctx, honda.ID, in, "api_key:k1")
	assert.ErrorIs(t, err, domain.ErrConflict)

	_, err = f.leads.Ingest(ctx, toyota.ID, in, "api_key:k2")
	require.NoError(t, err, "external ids are unique per tenant only")

	_, err = f.leads.Get(ctx, toyota.ID, first.ID)
	assert.ErrorIs(t, err, domain.ErrNotFound)

	require.Len(t, f.audit.entries, 2)
	assert.Equal(t, domain.ActionLeadIngested, f.audit.entries[0].Action)
}

func TestLeadIngestionRejectsSchemaViolation(t *testing.T) {
	f := newLeadFixture(t)
	tenant, err := f.tenants.Create(context.Background(), domain.NewTenant{Slug: "abc-honda"}, "platform")
	require.NoError(t, err)

	_, err = f.leads.Ingest(context.Background(), tenant.ID, domain.NewLead{ExternalID: "L1", Source: "web", Payload: json.RawMessage(`{"name":"no contact"}`)}, "x")
	var violation *domain.SchemaViolationError
	assert.ErrorAs(t, err, &violation)
}

func TestLeadIngestionRequiresProvisionedActiveTenant(t *testing.T) {
	f := newLeadFixture(t)
	ctx := context.Background()

	unprovisioned := domain.Tenant{ID: uuid.NewString(), Slug: "later", IsActive: true}
	f.tenantDB.put(unprovisioned)
	_, err := f.leads.Ingest(ctx, unprovisioned.ID, domain.NewLead{ExternalID: "L1", Source: "web", Payload: leadPayload}, "x")
	assert.ErrorIs(t, err, domain.ErrTenantNotProvisioned)

	tenant, err := f.tenants.Create(ctx, domain.NewTenant{Slug: "abc-honda"}, "platform")
	require.NoError(t, err)
	require.NoError(t, f.tenants.Deactivate(ctx, tenant.ID, "platform"))
	_, err = f.leads.Ingest(ctx, tenant.ID, domain.NewLead{ExternalID: "L1", Source: "web", Payload: leadPayload}, "x")
	assert.ErrorIs(t, err, domain.ErrTenantInactive)
}

func TestLeadAuditFailureDoesNotFailIngestion(t *testing.T) {
	f := newLeadFixture(t)
	tenant, err := f.tenants.Create(context.Background(), domain.NewTenant{Slug: "abc-honda"}, "platform")
	require.NoError(t, err)
	f.audit.appendErr = errStoreDown

	_, err = f.leads.Ingest(context.Background(), tenant.ID, domain.NewLead{ExternalID: "L1", Source: "web", Payload: leadPayload}, "x")
	assert.NoError(t, err)
}

func TestConversationMessages(t *testing.T) {
	f := newLeadFixture(t)
	ctx := context.Background()
	tenant, err := f.tenants.Create(ctx, domain.NewTenant{Slug: "abc-honda"}, "platform")
	require.NoError(t, err)
	lead, err := f.leads.Ingest(ctx, tenant.ID, domain.NewLead{ExternalID: "L1", Source: "web", Payload: leadPayload}, "x")
	require.NoError(t, err)

	_, err = f.leads.AppendMessage(ctx, tenant.ID, lead.ID, domain.RoleCustomer, "Is the Civic still available?", "x")
	require.NoError(t, err)
	_, err = f.leads.AppendMessage(ctx, tenant.ID, lead.ID, "robot", "hi", "x")
	assert.ErrorIs(t, err, domain.ErrInvalidInput)
	_, err = f.leads.AppendMessage(ctx, tenant.ID, uuid.NewString(), domain.RoleCustomer, "hi", "x")
	assert.ErrorIs(t, err, domain.ErrNotFound)

	msgs, err := f.leads.ListMessages(ctx, tenant.ID, lead.ID, 0)
	require.NoError(t, err)
	require.Len(t, msgs, 1)
	assert.Equal(t, domain.RoleCustomer, msgs[0].Role)

	persona, err := f.leads.DefaultPersona(ctx, tenant.ID)
	require.NoError(t, err)
	assert.True(t, persona.IsDefault)
	assert.Contains(t, persona.Instructions, "abc-honda")
}
