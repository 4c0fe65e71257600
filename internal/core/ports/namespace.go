package ports

import (
	"context"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// NamespaceStore owns the per-tenant storage namespaces.
type NamespaceStore interface {
	// Provision creates the namespace, its tables and the seed persona.
	// Every step tolerates having run before.
	Provision(ctx context.Context, handle string, seed domain.Persona) error
}

// LeadStore reads and writes tenant data inside a provisioned namespace.
type LeadStore interface {
	LeadExists(ctx context.Context, handle, externalID string) (bool, error)
	InsertLead(ctx context.Context, handle string, lead domain.Lead) (domain.Lead, error)
	GetLead(ctx context.Context, handle, id string) (domain.Lead, error)
	ListLeads(ctx context.Context, handle string, filter domain.LeadFilter) ([]domain.Lead, error)
	InsertMessage(ctx context.Context, handle string, msg domain.ConversationMessage) (domain.ConversationMessage, error)
	ListMessages(ctx context.Context, handle, leadID string, limit int) ([]domain.ConversationMessage, error)
	DefaultPersona(ctx context.Context, handle string) (domain.Persona, error)
}
