package domain

import (
	"fmt"
	"strings"
	"time"
)

const (
	APIKeyPrefix       = "lk_"
	apiKeyDisplayChars = 6
	maxAPIKeyNameLen   = 128
)

type APIKey struct {
	ID         string
	TenantID   string
	KeyHash    string
	KeyPrefix  string
	Name       string
	IsActive   bool
	CreatedAt  time.Time
	ExpiresAt  *time.Time
	LastUsedAt *time.Time
}

func (k APIKey) Expired(now time.Time) bool {
	return k.ExpiresAt != nil && !now.Before(*k.ExpiresAt)
}

// IssuedAPIKey is returned exactly once, at creation. Plaintext is never
// stored.
type IssuedAPIKey struct {
	Key       APIKey
	Plaintext string
}

type NewAPIKey struct {
	Name      string
	ExpiresAt *time.Time
}

func (n NewAPIKey) Validate(now time.Time) error {
	name := strings.TrimSpace(n.Name)
	if name == "" || len(name) > maxAPIKeyNameLen {
		return fmt.Errorf("%w: key name must be 1-%d characters", ErrInvalidInput, maxAPIKeyNameLen)
	}
	if n.ExpiresAt != nil && !n.ExpiresAt.After(now) {
		return fmt.Errorf("%w: expires_at must be in the future", ErrInvalidInput)
	}
	return nil
}

func IsAPIKeyCredential(raw string) bool {
	return strings.HasPrefix(raw, APIKeyPrefix)
}

// DisplayPrefix is the non-secret head of a key shown in listings.
func DisplayPrefix(plaintext string) string {
	n := len(APIKeyPrefix) + apiKeyDisplayChars
	if len(plaintext) < n {
		return plaintext
	}
	return plaintext[:n]
}
