package usecase

import (
	"context"
	"crypto/rand"
	"crypto/sha256"
	"encoding/hex"
	"encoding/json"
	"errors"
	"fmt"
	"io"
	"time"

	"github.com/google/uuid"
	"github.com/mr-tron/base58"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

const apiKeySecretBytes = 32

// APIKeyService issues, validates and revokes tenant API keys.
type APIKeyService struct {
	repo    ports.APIKeyRepository
	tenants ports.TenantRepository
	now     func() time.Time
	entropy io.Reader
}

type APIKeyOption func(*APIKeyService)

func WithAPIKeyClock(now func() time.Time) APIKeyOption {
	return func(s *APIKeyService) { s.now = now }
}

func WithAPIKeyEntropy(r io.Reader) APIKeyOption {
	return func(s *APIKeyService) { s.entropy = r }
}

func NewAPIKeyService(repo ports.APIKeyRepository, tenants ports.TenantRepository, opts ...APIKeyOption) *APIKeyService {
	s := &APIKeyService{repo: repo, tenants: tenants, now: time.Now, entropy: rand.Reader}
	for _, opt := range opts {
		opt(s)
	}
	return s
}

func (s *APIKeyService) Issue(ctx context.Context, tenantID string, in domain.NewAPIKey, actor string) (domain.IssuedAPIKey, error) {
	now := s.now().UTC()
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return domain.IssuedAPIKey{}, err
	}
	if err := in.Validate(now); err != nil {
		return domain.IssuedAPIKey{}, err
	}
	tenant, err := s.tenants.Get(ctx, tenantID)
	if err != nil {
		return domain.IssuedAPIKey{}, err
	}
	if !tenant.IsActive {
		return domain.IssuedAPIKey{}, domain.ErrTenantInactive
	}

	secret := make([]byte, apiKeySecretBytes)
	if _, err := io.ReadFull(s.entropy, secret); err != nil {
		return domain.IssuedAPIKey{}, fmt.Errorf("generate api key: %w", err)
	}
	plaintext := domain.APIKeyPrefix + base58.Encode(secret)

	key := domain.APIKey{
		ID:        uuid.NewString(),
		TenantID:  tenantID,
		KeyHash:   HashToken(plaintext),
		KeyPrefix: domain.DisplayPrefix(plaintext),
		Name:      in.Name,
		IsActive:  true,
		CreatedAt: now,
		ExpiresAt: in.ExpiresAt,
	}
	changes, _ := json.Marshal(map[string]any{"name": key.Name, "key_prefix": key.KeyPrefix, "expires_at": key.ExpiresAt})
	entry := newAuditEntry(tenantID, domain.ActionAPIKeyIssued, domain.EntityAPIKey, key.ID, actor, changes, now)
	if err := s.repo.Create(ctx, key, entry); err != nil {
		return domain.IssuedAPIKey{}, fmt.Errorf("store api key: %w", err)
	}
	return domain.IssuedAPIKey{Key: key, Plaintext: plaintext}, nil
}

// Validate resolves a presented plaintext key. Storage failures are
// returned unwrapped from the unauthorized family so callers fail closed.
func (s *APIKeyService) Validate(ctx context.Context, plaintext string) (domain.APIKey, error) {
	key, err := s.repo.FindByHash(ctx, HashToken(plaintext))
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, fmt.Errorf("%w: unknown key", domain.ErrInvalidKey)
		}
		return domain.APIKey{}, fmt.Errorf("lookup api key: %w", err)
	}
	if !key.IsActive {
		return domain.APIKey{}, fmt.Errorf("%w: key revoked", domain.ErrInvalidKey)
	}
	if key.Expired(s.now()) {
		return domain.APIKey{}, fmt.Errorf("%w: api key expired", domain.ErrExpiredCredential)
	}
	tenant, err := s.tenants.Get(ctx, key.TenantID)
	if err != nil {
		if errors.Is(err, domain.ErrNotFound) {
			return domain.APIKey{}, fmt.Errorf("%w: owning tenant missing", domain.ErrInvalidKey)
		}
		return domain.APIKey{}, fmt.Errorf("lookup key tenant: %w", err)
	}
	if !tenant.IsActive {
		return domain.APIKey{}, fmt.Errorf("%w: owning tenant inactive", domain.ErrInvalidKey)
	}
	return key, nil
}

func (s *APIKeyService) MarkUsed(ctx context.Context, keyID string) error {
	return s.repo.TouchLastUsed(ctx, keyID, s.now().UTC())
}

func (s *APIKeyService) Revoke(ctx context.Context, tenantID, keyID, actor string) error {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return err
	}
	now := s.now().UTC()
	entry := newAuditEntry(tenantID, domain.ActionAPIKeyRevoked, domain.EntityAPIKey, keyID, actor, nil, now)
	found, err := s.repo.Deactivate(ctx, tenantID, keyID, entry)
	if err != nil {
		return fmt.Errorf("revoke api key: %w", err)
	}
	if !found {
		return domain.ErrNotFound
	}
	return nil
}

func (s *APIKeyService) List(ctx context.Context, tenantID string) ([]domain.APIKey, error) {
	if err := domain.ValidateTenantID(tenantID); err != nil {
		return nil, err
	}
	return s.repo.List(ctx, tenantID)
}

func HashToken(token string) string {
	digest := sha256.Sum256([]byte(token))
	return hex.EncodeToString(digest[:])
}

func newAuditEntry(tenantID, action, entityType, entityID, actor string, changes json.RawMessage, at time.Time) domain.AuditEntry {
	return domain.AuditEntry{
		EventID:    uuid.NewString(),
		TenantID:   tenantID,
		Action:     action,
		EntityType: entityType,
		EntityID:   entityID,
		Actor:      actor,
		Changes:    changes,
		CreatedAt:  at,
	}
}
