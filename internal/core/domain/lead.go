package domain

import (
	"encoding/json"
	"fmt"
	"regexp"
	"strings"
	"time"
)

const maxMessageBodyLen = 16 << 10

var externalIDPattern = regexp.MustCompile(`^[A-Za-z0-9][A-Za-z0-9._:-]{0,127}$`)

const (
	LeadStatusNew = "new"

	RoleCustomer  = "customer"
	RoleAssistant = "assistant"
	RoleAgent     = "agent"
)

type Lead struct {
	ID         string          `json:"id"`
	ExternalID string          `json:"external_id"`
	Source     string          `json:"source"`
	Status     string          `json:"status"`
	Payload    json.RawMessage `json:"payload"`
	CreatedAt  time.Time       `json:"created_at"`
	UpdatedAt  time.Time       `json:"updated_at"`
}

type NewLead struct {
	ExternalID string
	Source     string
	Payload    json.RawMessage
}

func (n NewLead) Validate() error {
	if !externalIDPattern.MatchString(n.ExternalID) {
		return fmt.Errorf("%w: external_id must be 1-128 characters of [A-Za-z0-9._:-]", ErrInvalidInput)
	}
	if strings.TrimSpace(n.Source) == "" {
		return fmt.Errorf("%w: source is required", ErrInvalidInput)
	}
	if len(n.Payload) > 0 && !json.Valid(n.Payload) {
		return fmt.Errorf("%w: payload must be valid json", ErrInvalidInput)
	}
	return nil
}

type LeadFilter struct {
	Status  string
	AfterID string
	Limit   int
}

type ConversationMessage struct {
	ID        string    `json:"id"`
	LeadID    string    `json:"lead_id"`
	Role      string    `json:"role"`
	Body      string    `json:"body"`
	CreatedAt time.Time `json:"created_at"`
}

func ValidateMessage(role, body string) error {
	switch role {
	case RoleCustomer, RoleAssistant, RoleAgent:
	default:
		return fmt.Errorf("%w: role must be customer, assistant or agent", ErrInvalidInput)
	}
	if strings.TrimSpace(body) == "" || len(body) > maxMessageBodyLen {
		return fmt.Errorf("%w: body must be 1-%d bytes", ErrInvalidInput, maxMessageBodyLen)
	}
	return nil
}

type Persona struct {
	ID           string    `json:"id"`
	Name         string    `json:"name"`
	Instructions string    `json:"instructions"`
	IsDefault    bool      `json:"is_default"`
	CreatedAt    time.Time `json:"created_at"`
}

type SchemaViolation struct {
	Path    string `json:"path"`
	Message string `json:"message"`
}

// SchemaViolationError reports a lead payload that does not match the
// ingestion schema.
type SchemaViolationError struct {
	Violations []SchemaViolation
}

func (e *SchemaViolationError) Error() string {
	if len(e.Violations) == 0 {
		return "payload violates lead schema"
	}
	return "payload violates lead schema: " + e.Violations[0].Path + ": " + e.Violations[0].Message
}
