package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"os"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"
	"gorm.io/gorm/clause"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// namespaceDDL builds one tenant database. Statements are repeatable.
var namespaceDDL = []string{
	`CREATE TABLE IF NOT EXISTS leads (
		id TEXT PRIMARY KEY,
		external_id TEXT NOT NULL,
		source TEXT NOT NULL,
		status TEXT NOT NULL,
		payload_json TEXT NOT NULL,
		created_at DATETIME NOT NULL,
		updated_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_leads_external_id ON leads(external_id)`,
	`CREATE TABLE IF NOT EXISTS conversation_messages (
		id TEXT PRIMARY KEY,
		lead_id TEXT NOT NULL REFERENCES leads(id),
		role TEXT NOT NULL,
		body TEXT NOT NULL,
		created_at DATETIME NOT NULL
	)`,
	`CREATE INDEX IF NOT EXISTS ix_conversation_messages_lead ON conversation_messages(lead_id, id)`,
	`CREATE TABLE IF NOT EXISTS personas (
		id TEXT PRIMARY KEY,
		name TEXT NOT NULL,
		instructions TEXT NOT NULL,
		is_default INTEGER NOT NULL DEFAULT 0,
		created_at DATETIME NOT NULL
	)`,
	`CREATE UNIQUE INDEX IF NOT EXISTS ux_personas_default ON personas(is_default) WHERE is_default = 1`,
}

type leadModel struct {
	ID          string    `gorm:"column:id;primaryKey"`
	ExternalID  string    `gorm:"column:external_id;not null"`
	Source      string    `gorm:"column:source;not null"`
	Status      string    `gorm:"column:status;not null"`
	PayloadJSON string    `gorm:"column:payload_json;not null"`
	CreatedAt   time.Time `gorm:"column:created_at;not null"`
	UpdatedAt   time.Time `gorm:"column:updated_at;not null"`
}

func (leadModel) TableName() string { return "leads" }

func (m leadModel) toDomain() domain.Lead {
	return domain.Lead{
		ID:         m.ID,
		ExternalID: m.ExternalID,
		Source:     m.Source,
		Status:     m.Status,
		Payload:    json.RawMessage(m.PayloadJSON),
		CreatedAt:  m.CreatedAt,
		UpdatedAt:  m.UpdatedAt,
	}
}

type messageModel struct {
	ID        string    `gorm:"column:id;primaryKey"`
	LeadID    string    `gorm:"column:lead_id;not null"`
	Role      string    `gorm:"column:role;not null"`
	Body      string    `gorm:"column:body;not null"`
	CreatedAt time.Time `gorm:"column:created_at;not null"`
}

func (messageModel) TableName() string { return "conversation_messages" }

type personaModel struct {
	ID           string    `gorm:"column:id;primaryKey"`
	Name         string    `gorm:"column:name;not null"`
	Instructions string    `gorm:"column:instructions;not null"`
	IsDefault    bool      `gorm:"column:is_default;not null"`
	CreatedAt    time.Time `gorm:"column:created_at;not null"`
}

func (personaModel) TableName() string { return "personas" }

// NamespaceStore keeps one SQLite database file per tenant under dir. Open
// handles are cached for the life of the process.
type NamespaceStore struct {
	dir       string
	logger    zerolog.Logger
	readConns int

	mu   sync.Mutex
	open map[string]*gormsqlite.DB
}

func NewNamespaceStore(dir string, logger zerolog.Logger) (*NamespaceStore, error) {
	if err := os.MkdirAll(dir, 0o750); err != nil {
		return nil, fmt.Errorf("create namespace dir: %w", err)
	}
	return &NamespaceStore{dir: dir, logger: logger, readConns: 2, open: map[string]*gormsqlite.DB{}}, nil
}

func (s *NamespaceStore) path(handle string) string {
	return filepath.Join(s.dir, handle+".db")
}

// db returns the handle's database. Unless create is set a missing file
// means the namespace was never provisioned.
func (s *NamespaceStore) db(handle string, create bool) (*gormsqlite.DB, error) {
	if err := domain.ValidateNamespaceHandle(handle); err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	if db, ok := s.open[handle]; ok {
		return db, nil
	}
	if !create {
		if _, err := os.Stat(s.path(handle)); errors.Is(err, os.ErrNotExist) {
			return nil, domain.ErrTenantNotProvisioned
		}
	}
	db, err := gormsqlite.Open(s.path(handle), gormsqlite.WithReadConns(s.readConns), gormsqlite.WithLogger(s.logger))
	if err != nil {
		return nil, fmt.Errorf("open namespace %s: %w", handle, err)
	}
	s.open[handle] = db
	return db, nil
}

func (s *NamespaceStore) Provision(ctx context.Context, handle string, seed domain.Persona) error {
	db, err := s.db(handle, true)
	if err != nil {
		return err
	}
	return db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		for _, stmt := range namespaceDDL {
			if err := tx.Exec(stmt).Error; err != nil {
				return fmt.Errorf("apply namespace schema: %w", err)
			}
		}
		persona := personaModel{
			ID:           seed.ID,
			Name:         seed.Name,
			Instructions: seed.Instructions,
			IsDefault:    true,
			CreatedAt:    seed.CreatedAt,
		}
		if err := tx.Clauses(clause.OnConflict{DoNothing: true}).Create(&persona).Error; err != nil {
			return fmt.Errorf("seed default persona: %w", err)
		}
		return nil
	})
}

func (s *NamespaceStore) LeadExists(ctx context.Context, handle, externalID string) (bool, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return false, err
	}
	var count int64
	err = db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&leadModel{}).Where("external_id = ?", externalID).Count(&count).Error
	})
	if err != nil {
		return false, fmt.Errorf("check lead: %w", err)
	}
	return count > 0, nil
}

func (s *NamespaceStore) InsertLead(ctx context.Context, handle string, lead domain.Lead) (domain.Lead, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return domain.Lead{}, err
	}
	model := leadModel{
		ID:          lead.ID,
		ExternalID:  lead.ExternalID,
		Source:      lead.Source,
		Status:      lead.Status,
		PayloadJSON: string(lead.Payload),
		CreatedAt:   lead.CreatedAt,
		UpdatedAt:   lead.UpdatedAt,
	}
	err = db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.Lead{}, mapError("insert lead", err)
	}
	return model.toDomain(), nil
}

func (s *NamespaceStore) GetLead(ctx context.Context, handle, id string) (domain.Lead, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return domain.Lead{}, err
	}
	var model leadModel
	err = db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("id = ?", id).First(&model).Error
	})
	if err != nil {
		return domain.Lead{}, mapError("get lead", err)
	}
	return model.toDomain(), nil
}

func (s *NamespaceStore) ListLeads(ctx context.Context, handle string, filter domain.LeadFilter) ([]domain.Lead, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return nil, err
	}
	var rows []leadModel
	err = db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		query := tx.Model(&leadModel{})
		if filter.Status != "" {
			query = query.Where("status = ?", filter.Status)
		}
		if filter.AfterID != "" {
			query = query.Where("id > ?", filter.AfterID)
		}
		return query.Order("id ASC").Limit(filter.Limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list leads: %w", err)
	}
	out := make([]domain.Lead, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (s *NamespaceStore) InsertMessage(ctx context.Context, handle string, msg domain.ConversationMessage) (domain.ConversationMessage, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return domain.ConversationMessage{}, err
	}
	model := messageModel{ID: msg.ID, LeadID: msg.LeadID, Role: msg.Role, Body: msg.Body, CreatedAt: msg.CreatedAt}
	err = db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Create(&model).Error
	})
	if err != nil {
		return domain.ConversationMessage{}, mapError("insert message", err)
	}
	return msg, nil
}

func (s *NamespaceStore) ListMessages(ctx context.Context, handle, leadID string, limit int) ([]domain.ConversationMessage, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return nil, err
	}
	var rows []messageModel
	err = db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("lead_id = ?", leadID).Order("id ASC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list messages: %w", err)
	}
	out := make([]domain.ConversationMessage, 0, len(rows))
	for _, row := range rows {
		out = append(out, domain.ConversationMessage{ID: row.ID, LeadID: row.LeadID, Role: row.Role, Body: row.Body, CreatedAt: row.CreatedAt})
	}
	return out, nil
}

func (s *NamespaceStore) DefaultPersona(ctx context.Context, handle string) (domain.Persona, error) {
	db, err := s.db(handle, false)
	if err != nil {
		return domain.Persona{}, err
	}
	var model personaModel
	err = db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("is_default = ?", true).First(&model).Error
	})
	if err != nil {
		return domain.Persona{}, mapError("get default persona", err)
	}
	return domain.Persona{
		ID:           model.ID,
		Name:         model.Name,
		Instructions: model.Instructions,
		IsDefault:    model.IsDefault,
		CreatedAt:    model.CreatedAt,
	}, nil
}

func (s *NamespaceStore) Close() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	var errs []error
	for handle, db := range s.open {
		if err := db.Close(); err != nil {
			errs = append(errs, fmt.Errorf("close namespace %s: %w", handle, err))
		}
		delete(s.open, handle)
	}
	return errors.Join(errs...)
}
