package sqlite

import (
	"context"
	"path/filepath"
	"testing"
	"time"

	"github.com/google/uuid"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/migrations"
)

func openSystemDB(t *testing.T) *gormsqlite.DB {
	t.Helper()
	db, err := gormsqlite.Open(filepath.Join(t.TempDir(), "system.sqlite"))
	if err != nil {
		t.Fatalf("open db: %v", err)
	}
	t.Cleanup(func() { _ = db.Close() })

	wdb, err := db.WriteSQLDB()
	if err != nil {
		t.Fatalf("writer sql db: %v", err)
	}
	if err := migrations.Up(context.Background(), wdb); err != nil {
		t.Fatalf("migrate: %v", err)
	}
	return db
}

func newTenant(slug string) domain.Tenant {
	now := time.Now().UTC()
	return domain.Tenant{ID: uuid.NewString(), Slug: slug, IsActive: true, CreatedAt: now, UpdatedAt: now}
}

func auditFor(tenantID, action string) domain.AuditEntry {
	return domain.AuditEntry{
		EventID:    uuid.NewString(),
		TenantID:   tenantID,
		Action:     action,
		EntityType: domain.EntityTenant,
		EntityID:   tenantID,
		Actor:      "platform",
		CreatedAt:  time.Now().UTC(),
	}
}
