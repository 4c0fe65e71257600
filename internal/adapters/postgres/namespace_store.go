package postgres

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// NamespaceStore keeps each tenant in its own PostgreSQL schema named by
// the namespace handle.
type NamespaceStore struct {
	pool *pgxpool.Pool
}

func NewNamespaceStore(pool *pgxpool.Pool) *NamespaceStore {
	return &NamespaceStore{pool: pool}
}

func table(handle, name string) (string, error) {
	if err := domain.ValidateNamespaceHandle(handle); err != nil {
		return "", err
	}
	return pgx.Identifier{handle, name}.Sanitize(), nil
}

func namespaceDDL(handle string) []string {
	schema := pgx.Identifier{handle}.Sanitize()
	leads := pgx.Identifier{handle, "leads"}.Sanitize()
	messages := pgx.Identifier{handle, "conversation_messages"}.Sanitize()
	personas := pgx.Identifier{handle, "personas"}.Sanitize()
	return []string{
		`CREATE SCHEMA IF NOT EXISTS ` + schema,
		`CREATE TABLE IF NOT EXISTS ` + leads + ` (
			id UUID PRIMARY KEY,
			external_id TEXT NOT NULL UNIQUE,
			source TEXT NOT NULL,
			status TEXT NOT NULL,
			payload JSONB NOT NULL,
			created_at TIMESTAMPTZ NOT NULL,
			updated_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE TABLE IF NOT EXISTS ` + messages + ` (
			id UUID PRIMARY KEY,
			lead_id UUID NOT NULL REFERENCES ` + leads + `(id),
			role TEXT NOT NULL,
			body TEXT NOT NULL,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE INDEX IF NOT EXISTS ix_conversation_messages_lead ON ` + messages + ` (lead_id, id)`,
		`CREATE TABLE IF NOT EXISTS ` + personas + ` (
			id UUID PRIMARY KEY,
			name TEXT NOT NULL,
			instructions TEXT NOT NULL,
			is_default BOOLEAN NOT NULL DEFAULT FALSE,
			created_at TIMESTAMPTZ NOT NULL
		)`,
		`CREATE UNIQUE INDEX IF NOT EXISTS ux_personas_default ON ` + personas + ` (is_default) WHERE is_default`,
	}
}

// Provision runs under a transaction-scoped advisory lock keyed by the
// handle, so concurrent provisioning of one tenant serializes.
func (s *NamespaceStore) Provision(ctx context.Context, handle string, seed domain.Persona) error {
	personas, err := table(handle, "personas")
	if err != nil {
		return err
	}
	tx, err := s.pool.BeginTx(ctx, pgx.TxOptions{})
	if err != nil {
		return mapPostgresError("begin provision", err)
	}
	defer func() { _ = tx.Rollback(ctx) }()

	if _, err := tx.Exec(ctx, `SELECT pg_advisory_xact_lock(hashtext($1))`, handle); err != nil {
		return mapPostgresError("lock namespace", err)
	}
	for _, stmt := range namespaceDDL(handle) {
		if _, err := tx.Exec(ctx, stmt); err != nil {
			return mapPostgresError("apply namespace schema", err)
		}
	}
	_, err = tx.Exec(ctx,
		`INSERT INTO `+personas+` (id, name, instructions, is_default, created_at)
		 VALUES ($1, $2, $3, TRUE, $4) ON CONFLICT DO NOTHING`,
		seed.ID, seed.Name, seed.Instructions, seed.CreatedAt)
	if err != nil {
		return mapPostgresError("seed default persona", err)
	}
	if err := tx.Commit(ctx); err != nil {
		return mapPostgresError("commit provision", err)
	}
	return nil
}

func (s *NamespaceStore) LeadExists(ctx context.Context, handle, externalID string) (bool, error) {
	leads, err := table(handle, "leads")
	if err != nil {
		return false, err
	}
	var exists bool
	err = s.pool.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM `+leads+` WHERE external_id = $1)`, externalID).Scan(&exists)
	if err != nil {
		return false, mapPostgresError("check lead", err)
	}
	return exists, nil
}

func (s *NamespaceStore) InsertLead(ctx context.Context, handle string, lead domain.Lead) (domain.Lead, error) {
	leads, err := table(handle, "leads")
	if err != nil {
		return domain.Lead{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+leads+` (id, external_id, source, status, payload, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		lead.ID, lead.ExternalID, lead.Source, lead.Status, []byte(lead.Payload), lead.CreatedAt, lead.UpdatedAt)
	if err != nil {
		return domain.Lead{}, mapPostgresError("insert lead", err)
	}
	return lead, nil
}

const leadColumns = `id::text, external_id, source, status, payload, created_at, updated_at`

func scanLead(row pgx.Row) (domain.Lead, error) {
	var (
		l       domain.Lead
		payload []byte
	)
	if err := row.Scan(&l.ID, &l.ExternalID, &l.Source, &l.Status, &payload, &l.CreatedAt, &l.UpdatedAt); err != nil {
		return domain.Lead{}, err
	}
	l.Payload = payload
	return l, nil
}

func (s *NamespaceStore) GetLead(ctx context.Context, handle, id string) (domain.Lead, error) {
	leads, err := table(handle, "leads")
	if err != nil {
		return domain.Lead{}, err
	}
	if err := domain.ValidateTenantID(id); err != nil {
		return domain.Lead{}, domain.ErrNotFound
	}
	lead, err := scanLead(s.pool.QueryRow(ctx, `SELECT `+leadColumns+` FROM `+leads+` WHERE id = $1`, id))
	if err != nil {
		return domain.Lead{}, mapPostgresError("get lead", err)
	}
	return lead, nil
}

func (s *NamespaceStore) ListLeads(ctx context.Context, handle string, filter domain.LeadFilter) ([]domain.Lead, error) {
	leads, err := table(handle, "leads")
	if err != nil {
		return nil, err
	}
	query := `SELECT ` + leadColumns + ` FROM ` + leads + ` WHERE ($1 = '' OR status = $1) AND ($2 = '' OR id::text > $2) ORDER BY id LIMIT $3`
	rows, err := s.pool.Query(ctx, query, filter.Status, filter.AfterID, filter.Limit)
	if err != nil {
		return nil, mapPostgresError("list leads", err)
	}
	defer rows.Close()

	var out []domain.Lead
	for rows.Next() {
		lead, err := scanLead(rows)
		if err != nil {
			return nil, mapPostgresError("scan lead", err)
		}
		out = append(out, lead)
	}
	if err := rows.Err(); err != nil {
		return nil, mapPostgresError("list leads", err)
	}
	return out, nil
}

func (s *NamespaceStore) InsertMessage(ctx context.Context, handle string, msg domain.ConversationMessage) (domain.ConversationMessage, error) {
	messages, err := table(handle, "conversation_messages")
	if err != nil {
		return domain.ConversationMessage{}, err
	}
	_, err = s.pool.Exec(ctx,
		`INSERT INTO `+messages+` (id, lead_id, role, body, created_at) VALUES ($1, $2, $3, $4, $5)`,
		msg.ID, msg.LeadID, msg.Role, msg.Body, msg.CreatedAt)
	if err != nil {
		return domain.ConversationMessage{}, mapPostgresError("insert message", err)
	}
	return msg, nil
}

func (s *NamespaceStore) ListMessages(ctx context.Context, handle, leadID string, limit int) ([]domain.ConversationMessage, error) {
	messages, err := table(handle, "conversation_messages")
	if err != nil {
		return nil, err
	}
	rows, err := s.pool.Query(ctx,
		`SELECT id::text, lead_id::text, role, body, created_at FROM `+messages+` WHERE lead_id = $1 ORDER BY id LIMIT $2`,
		leadID, limit)
	if err != nil {
		return nil, mapPostgresError("list messages", err)
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (domain.ConversationMessage, error) {
		var (
			m       domain.ConversationMessage
			created time.Time
		)
		err := row.Scan(&m.ID, &m.LeadID, &m.Role, &m.Body, &created)
		m.CreatedAt = created.UTC()
		return m, err
	})
}

func (s *NamespaceStore) DefaultPersona(ctx context.Context, handle string) (domain.Persona, error) {
	personas, err := table(handle, "personas")
	if err != nil {
		return domain.Persona{}, err
	}
	var p domain.Persona
	err = s.pool.QueryRow(ctx,
		`SELECT id::text, name, instructions, is_default, created_at FROM `+personas+` WHERE is_default`).
		Scan(&p.ID, &p.Name, &p.Instructions, &p.IsDefault, &p.CreatedAt)
	if err != nil {
		return domain.Persona{}, mapPostgresError("get default persona", err)
	}
	return p, nil
}

// DropNamespace removes a tenant schema. It exists for test cleanup and
// operator tooling; nothing in the request path calls it.
func (s *NamespaceStore) DropNamespace(ctx context.Context, handle string) error {
	if err := domain.ValidateNamespaceHandle(handle); err != nil {
		return err
	}
	if _, err := s.pool.Exec(ctx, fmt.Sprintf(`DROP SCHEMA IF EXISTS %s CASCADE`, pgx.Identifier{handle}.Sanitize())); err != nil {
		return mapPostgresError("drop namespace", err)
	}
	return nil
}
