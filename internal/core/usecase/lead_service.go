package usecase

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

const (
	defaultLeadPageSize    = 50
	maxLeadPageSize        = 500
	defaultMessagePageSize = 100
	maxMessagePageSize     = 1000
)

// LeadService reads and writes tenant data. Every call resolves the
// tenant's namespace first; nothing crosses namespaces.
type LeadService struct {
	tenants ports.TenantRepository
	leads   ports.LeadStore
	audit   ports.AuditRepository
	schema  *LeadSchema
	now     func() time.Time
}

func NewLeadService(tenants ports.TenantRepository, leads ports.LeadStore, audit ports.AuditRepository, schema *LeadSchema) *LeadService {
	return &LeadService{tenants: tenants, leads: leads, audit: audit, schema: schema, now: time.Now}
}

func (s *LeadService) namespace(ctx context.Context, tenantID string) (string, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return "", err
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return "", err
	}
	if !tenant.IsActive {
		return "", domain.ErrTenantInactive
	}
	if !tenant.Provisioned() {
		return "", domain.ErrTenantNotProvisioned
	}
	return tenant.NamespaceHandle, nil
}

// Ingest stores a new lead. external_id is unique per tenant; a repeat
// yields domain.ErrConflict.
func (s *LeadService) Ingest(ctx context.Context, tenantID string, in domain.NewLead, actor string) (domain.Lead, error) {
	if err := in.Validate(); err != nil {
		return domain.Lead{}, err
	}
	payload := in.Payload
	if len(payload) == 0 {
		payload = json.RawMessage(`{}`)
	}
	if err := s.schema.Validate(payload); err != nil {
		return domain.Lead{}, err
	}
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return domain.Lead{}, err
	}

	now := s.now().UTC()
	lead := domain.Lead{
		ID:         uuid.Must(uuid.NewV7()).String(),
		ExternalID: in.ExternalID,
		Source:     in.Source,
		Status:     domain.LeadStatusNew,
		Payload:    payload,
		CreatedAt:  now,
		UpdatedAt:  now,
	}
	created, err := CreateUnique(ctx,
		func(ctx context.Context) (bool, error) { return s.leads.LeadExists(ctx, handle, in.ExternalID) },
		func(ctx context.Context) (domain.Lead, error) { return s.leads.InsertLead(ctx, handle, lead) },
	)
	if err != nil {
		if errors.Is(err, domain.ErrConflict) {
			return domain.Lead{}, fmt.Errorf("%w: lead %q already exists", domain.ErrConflict, in.ExternalID)
		}
		return domain.Lead{}, fmt.Errorf("ingest lead: %w", err)
	}

	changes, _ := json.Marshal(map[string]string{"external_id": created.ExternalID, "source": created.Source})
	s.appendAudit(ctx, newAuditEntry(tenantID, domain.ActionLeadIngested, domain.EntityLead, created.ID, actor, changes, now))
	return created, nil
}

func (s *LeadService) Get(ctx context.Context, tenantID, leadID string) (domain.Lead, error) {
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return domain.Lead{}, err
	}
	return s.leads.GetLead(ctx, handle, leadID)
}

func (s *LeadService) List(ctx context.Context, tenantID string, filter domain.LeadFilter) ([]domain.Lead, error) {
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	filter.Limit = clampLimit(filter.Limit, defaultLeadPageSize, maxLeadPageSize)
	return s.leads.ListLeads(ctx, handle, filter)
}

func (s *LeadService) AppendMessage(ctx context.Context, tenantID, leadID, role, body, actor string) (domain.ConversationMessage, error) {
	if err := domain.ValidateMessage(role, body); err != nil {
		return domain.ConversationMessage{}, err
	}
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return domain.ConversationMessage{}, err
	}
	if _, err := s.leads.GetLead(ctx, handle, leadID); err != nil {
		return domain.ConversationMessage{}, err
	}

	now := s.now().UTC()
	msg, err := s.leads.InsertMessage(ctx, handle, domain.ConversationMessage{
		ID:        uuid.Must(uuid.NewV7()).String(),
		LeadID:    leadID,
		Role:      role,
		Body:      body,
		CreatedAt: now,
	})
	if err != nil {
		return domain.ConversationMessage{}, fmt.Errorf("append message: %w", err)
	}
	changes, _ := json.Marshal(map[string]string{"lead_id": leadID, "role": role})
	s.appendAudit(ctx, newAuditEntry(tenantID, domain.ActionMessageAppended, domain.EntityMessage, msg.ID, actor, changes, now))
	return msg, nil
}

func (s *LeadService) ListMessages(ctx context.Context, tenantID, leadID string, limit int) ([]domain.ConversationMessage, error) {
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return nil, err
	}
	if _, err := s.leads.GetLead(ctx, handle, leadID); err != nil {
		return nil, err
	}
	return s.leads.ListMessages(ctx, handle, leadID, clampLimit(limit, defaultMessagePageSize, maxMessagePageSize))
}

func (s *LeadService) DefaultPersona(ctx context.Context, tenantID string) (domain.Persona, error) {
	handle, err := s.namespace(ctx, tenantID)
	if err != nil {
		return domain.Persona{}, err
	}
	return s.leads.DefaultPersona(ctx, handle)
}

// appendAudit records tenant data changes after they commit. The write
// itself has already succeeded, so a failure here is only logged.
func (s *LeadService) appendAudit(ctx context.Context, entry domain.AuditEntry) {
	if err := s.audit.Append(ctx, entry); err != nil {
		zerolog.Ctx(ctx).Error().Err(err).Str("action", entry.Action).Str("entity_id", entry.EntityID).Msg("append audit entry")
	}
}

func clampLimit(limit, def, maxLimit int) int {
	if limit <= 0 {
		return def
	}
	return min(limit, maxLimit)
}
