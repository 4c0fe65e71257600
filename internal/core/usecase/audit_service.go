package usecase

import (
	"context"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

type AuditService struct {
	repo ports.AuditRepository
}

func NewAuditService(repo ports.AuditRepository) *AuditService {
	return &AuditService{repo: repo}
}

func (s *AuditService) List(ctx context.Context, filter domain.AuditFilter) ([]domain.AuditEntry, error) {
	if err := domain.ValidateTenantID(filter.TenantID); err != nil {
		return nil, err
	}
	filter.Limit = clampLimit(filter.Limit, 100, 1000)
	return s.repo.List(ctx, filter)
}
