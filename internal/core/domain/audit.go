package domain

import (
	"encoding/json"
	"time"
)

const CurrentEventSchemaVersion = 1

const (
	ActionTenantCreated     = "tenant.created"
	ActionTenantProvisioned = "tenant.provisioned"
	ActionTenantDeactivated = "tenant.deactivated"
	ActionAPIKeyIssued      = "api_key.issued"
	ActionAPIKeyRevoked     = "api_key.revoked"
	ActionLeadIngested      = "lead.ingested"
	ActionMessageAppended   = "lead.message_appended"
)

const (
	EntityTenant  = "tenant"
	EntityAPIKey  = "api_key"
	EntityLead    = "lead"
	EntityMessage = "conversation_message"
)

// AuditEntry is append-only. TenantID is empty for platform level actions.
type AuditEntry struct {
	ID         int64           `json:"id"`
	EventID    string          `json:"event_id"`
	TenantID   string          `json:"tenant_id,omitempty"`
	Action     string          `json:"action"`
	EntityType string          `json:"entity_type"`
	EntityID   string          `json:"entity_id"`
	Actor      string          `json:"actor"`
	Changes    json.RawMessage `json:"changes,omitempty"`
	CreatedAt  time.Time       `json:"created_at"`
}

type EventEnvelope struct {
	EventID       string          `json:"event_id"`
	EventType     string          `json:"event_type"`
	SchemaVersion int             `json:"schema_version"`
	TenantID      string          `json:"tenant_id,omitempty"`
	EntityType    string          `json:"entity_type"`
	EntityID      string          `json:"entity_id"`
	OccurredAt    time.Time       `json:"occurred_at"`
	Actor         string          `json:"actor"`
	Payload       json.RawMessage `json:"payload,omitempty"`
}

func EnvelopeFor(entry AuditEntry) EventEnvelope {
	return EventEnvelope{
		EventID:       entry.EventID,
		EventType:     entry.Action,
		SchemaVersion: CurrentEventSchemaVersion,
		TenantID:      entry.TenantID,
		EntityType:    entry.EntityType,
		EntityID:      entry.EntityID,
		OccurredAt:    entry.CreatedAt,
		Actor:         entry.Actor,
		Payload:       entry.Changes,
	}
}

// EventTopic names the outbox topic for an entry.
func EventTopic(entry AuditEntry) string {
	scope := entry.TenantID
	if scope == "" {
		scope = "platform"
	}
	return "events." + scope + "." + entry.Action
}

type OutboxEvent struct {
	ID            int64
	EventID       string
	TenantID      string
	Topic         string
	PayloadJSON   json.RawMessage
	Status        string
	Attempts      int
	NextAttemptAt time.Time
	LastError     string
	CreatedAt     time.Time
	DispatchedAt  *time.Time
}

type AuditFilter struct {
	TenantID   string
	EntityType string
	EntityID   string
	Action     string
	AfterID    int64
	Limit      int
}
