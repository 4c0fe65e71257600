package sqlite

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"time"

	"gorm.io/gorm"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type tenantModel struct {
	ID              string    `gorm:"column:id;primaryKey"`
	Slug            string    `gorm:"column:slug;not null"`
	IsActive        bool      `gorm:"column:is_active;not null"`
	NamespaceHandle *string   `gorm:"column:namespace_handle"`
	MetadataJSON    string    `gorm:"column:metadata_json;not null"`
	CreatedAt       time.Time `gorm:"column:created_at;not null"`
	UpdatedAt       time.Time `gorm:"column:updated_at;not null"`
}

func (tenantModel) TableName() string {
	return "tenants"
}

func (m tenantModel) toDomain() domain.Tenant {
	t := domain.Tenant{
		ID:        m.ID,
		Slug:      m.Slug,
		IsActive:  m.IsActive,
		Metadata:  rawJSON(m.MetadataJSON),
		CreatedAt: m.CreatedAt,
		UpdatedAt: m.UpdatedAt,
	}
	if m.NamespaceHandle != nil {
		t.NamespaceHandle = *m.NamespaceHandle
	}
	return t
}

type TenantRepository struct {
	db *gormsqlite.DB
}

func NewTenantRepository(db *gormsqlite.DB) *TenantRepository {
	return &TenantRepository{db: db}
}

func (r *TenantRepository) Create(ctx context.Context, tenant domain.Tenant, audit domain.AuditEntry) (domain.Tenant, error) {
	metadata := tenant.Metadata
	if len(metadata) == 0 {
		metadata = json.RawMessage(`{}`)
	}
	model := tenantModel{
		ID:           tenant.ID,
		Slug:         tenant.Slug,
		IsActive:     tenant.IsActive,
		MetadataJSON: string(metadata),
		CreatedAt:    tenant.CreatedAt,
		UpdatedAt:    tenant.UpdatedAt,
	}
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		if err := tx.Create(&model).Error; err != nil {
			return err
		}
		return insertAuditAndOutbox(tx.DB, audit)
	})
	if err != nil {
		return domain.Tenant{}, mapError("create tenant", err)
	}
	return model.toDomain(), nil
}

func (r *TenantRepository) Get(ctx context.Context, id string) (domain.Tenant, error) {
	return r.first(ctx, "get tenant", "id = ?", id)
}

func (r *TenantRepository) GetBySlug(ctx context.Context, slug string) (domain.Tenant, error) {
	return r.first(ctx, "get tenant by slug", "slug = ?", slug)
}

func (r *TenantRepository) first(ctx context.Context, op, where string, arg any) (domain.Tenant, error) {
	var model tenantModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where(where, arg).First(&model).Error
	})
	if err != nil {
		return domain.Tenant{}, mapError(op, err)
	}
	return model.toDomain(), nil
}

func (r *TenantRepository) SetNamespaceHandle(ctx context.Context, id, handle string, audit domain.AuditEntry) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&tenantModel{}).
			Where("id = ? AND namespace_handle IS NULL", id).
			Updates(map[string]any{"namespace_handle": handle, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 1 {
			return insertAuditAndOutbox(tx.DB, audit)
		}

		var existing tenantModel
		if err := tx.Where("id = ?", id).First(&existing).Error; err != nil {
			return err
		}
		if existing.NamespaceHandle != nil && *existing.NamespaceHandle == handle {
			return nil
		}
		return domain.ErrNamespaceHandleSet
	})
	if errors.Is(err, domain.ErrNamespaceHandleSet) {
		return err
	}
	return mapError("set namespace handle", err)
}

func (r *TenantRepository) SetActive(ctx context.Context, id string, active bool, audit domain.AuditEntry) error {
	err := r.db.WriteTX(ctx, func(tx *gormsqlite.Tx) error {
		res := tx.Model(&tenantModel{}).Where("id = ?", id).
			Updates(map[string]any{"is_active": active, "updated_at": time.Now().UTC()})
		if res.Error != nil {
			return res.Error
		}
		if res.RowsAffected == 0 {
			return gorm.ErrRecordNotFound
		}
		return insertAuditAndOutbox(tx.DB, audit)
	})
	return mapError("set tenant active", err)
}

func (r *TenantRepository) ListUnprovisioned(ctx context.Context, limit int) ([]domain.Tenant, error) {
	if limit <= 0 {
		limit = 100
	}
	var rows []tenantModel
	err := r.db.ReadTX(ctx, func(tx *gormsqlite.Tx) error {
		return tx.Where("namespace_handle IS NULL").Order("created_at ASC").Limit(limit).Find(&rows).Error
	})
	if err != nil {
		return nil, fmt.Errorf("list unprovisioned tenants: %w", err)
	}
	out := make([]domain.Tenant, 0, len(rows))
	for _, row := range rows {
		out = append(out, row.toDomain())
	}
	return out, nil
}
