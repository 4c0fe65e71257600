package usecase

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
)

const defaultTouchTimeout = 2 * time.Second

// CredentialVerifier turns a presented credential into an Identity. Values
// carrying the API key prefix are resolved through the key service, anything
// else is treated as a signed token.
type CredentialVerifier struct {
	tokens       ports.TokenVerifier
	keys         *APIKeyService
	touchTimeout time.Duration

	wg sync.WaitGroup
}

func NewCredentialVerifier(tokens ports.TokenVerifier, keys *APIKeyService) *CredentialVerifier {
	return &CredentialVerifier{tokens: tokens, keys: keys, touchTimeout: defaultTouchTimeout}
}

func (v *CredentialVerifier) Verify(ctx context.Context, raw string) (domain.Identity, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return domain.Identity{}, fmt.Errorf("%w: no credential presented", domain.ErrMalformedCredential)
	}
	if domain.IsAPIKeyCredential(raw) {
		return v.verifyKey(ctx, raw)
	}
	return v.tokens.VerifyToken(ctx, raw)
}

func (v *CredentialVerifier) verifyKey(ctx context.Context, raw string) (domain.Identity, error) {
	key, err := v.keys.Validate(ctx, raw)
	if err != nil {
		return domain.Identity{}, err
	}
	v.touch(ctx, key.ID)

	identity := domain.NewIdentity(key.TenantID, "", nil, key.ExpiresAt, domain.AuthMethodAPIKey)
	identity.KeyID = key.ID
	return identity, nil
}

// touch records key usage off the request path. A failed write is logged
// and never affects the admission outcome.
func (v *CredentialVerifier) touch(ctx context.Context, keyID string) {
	logger := zerolog.Ctx(ctx)
	v.wg.Add(1)
	go func() {
		defer v.wg.Done()
		tctx, cancel := context.WithTimeout(context.WithoutCancel(ctx), v.touchTimeout)
		defer cancel()
		if err := v.keys.MarkUsed(tctx, keyID); err != nil {
			logger.Warn().Err(err).Str("key_id", keyID).Msg("record api key usage")
		}
	}()
}

// Close waits for outstanding usage writes.
func (v *CredentialVerifier) Close() error {
	v.wg.Wait()
	return nil
}
