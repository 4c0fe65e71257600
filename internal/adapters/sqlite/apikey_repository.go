package sqlite

import (
	"context"
	"fmt"
	"time"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type apiKeyModel struct {
	ID         string     `gorm:"column:id;primaryKey"`
	TenantID   string     `gorm:"column:tenant_id;not null"`
	KeyHash    string     `gorm:"column:key_hash;not null"`
	KeyPrefix  string     `gorm:"column:key_prefix;not null"`
	Name       string     `gorm:"column:name;not null"`
	IsActive   bool       `gorm:"column:is_active;not null"`
	CreatedAt  time.Time  `gorm:"column:created_at;not null"`
	ExpiresAt  *time.Time `gorm:"column:expires_at"`
	LastUsedAt *time.Time `gorm:"column:last_used_at"`
}

func (apiKeyModel) TableName() string {
	return "api_keys"
}

func (m apiKeyModel) toDomain() domain.APIKey {
	return domain.APIKey{
		ID:         m.ID,
		TenantID:   m.TenantID,
		KeyHash:    m.KeyHash,
		KeyPrefix:  m.KeyPrefix,
		Name:       m.Name,
		IsActive:   m.IsActive,
		CreatedAt:  m.CreatedAt,
		ExpiresAt:  m.ExpiresAt,
		LastUsedAt: m.LastUsedAt,
	}
}

type APIKeyRepository struct {
	db *gormsqlite.DB
}

func NewAPIKeyRepository(db *gormsqlite.DB) *APIKeyRepository {
	return &APIKeyRepository{db: db}
}

func (r *APIKeyRepository) FindByHash(ctx context.Context, keyHash string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("key_hash = ?", keyHash).First(&model).Error
	})
	if err != nil {
		return domain.APIKey{}, mapError("find api key", err)
	}
	return model.toDomain(), nil
}

func (r *APIKeyRepository) Create(ctx context.Context, key domain.APIKey, audit domain.AuditEntry) error {
	model := apiKeyModel{
		ID:        key.ID,
		TenantID:  key.TenantID,
		KeyHash:   key.KeyHash,
		KeyPrefix: key.KeyPrefix,
		Name:      key.Name,
		IsActive:  key.IsActive,
		CreatedAt: key.CreatedAt,
		ExpiresAt: key.ExpiresAt,
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return insertAuditAndOutbox(tx.DB, audit)
	})
	return mapError("create api key", err)
}

func (r *APIKeyRepository) Get(ctx context.Context, tenantID, id string) (domain.APIKey, error) {
	var model apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ? AND id = ?", tenantID, id).First(&model).Error
	})
	if err != nil {
		return domain.APIKey{}, mapError("get api key", err)
	}
	return model.toDomain(), nil
}

func (r *APIKeyRepository) List(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	var rows []apiKeyModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("tenant_id = ?", tenantID).Order("created_at ASC").Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list api keys: %w", err)
	}
	out := make([]domain.APIKey, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}

func (r *APIKeyRepository) Deactivate(ctx context.Context, tenantID, id string, audit domain.AuditEntry) (bool, error) {
	found := false
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		var model apiKeyModel
		res := tx.Where("tenant_id = ? AND id = ?", tenantID, id).Limit(1).Find(&model)
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return nil
		}
		found = true
		if !model.IsActive {
			return nil
		}
		if err := tx.Model(&apiKeyModel{}).Where("id = ?", id).Update("is_active", false).Error; err != nil {
			return err
		}
		return insertAuditAndOutbox(tx.DB, audit)
	})
	if err != nil {
		return false, fmt.Errorf("deactivate api key: %w", err)
	}
	return found, nil
}

func (r *APIKeyRepository) TouchLastUsed(ctx context.Context, id string, at time.Time) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Model(&apiKeyModel{}).
			Where("id = ? AND (last_used_at IS NULL OR last_used_at < ?)", id, at).
			Update("last_used_at", at).Error
	})
	if err != nil {
		return fmt.Errorf("touch api key: %w", err)
	}
	return nil
}
