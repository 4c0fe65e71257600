package domain

import (
	"encoding/hex"
	"encoding/json"
	"fmt"
	"regexp"
	"time"

	"github.com/google/uuid"
)

const (
	maxSlugLength         = 63
	namespaceHandlePrefix = "t_"
)

var (
	slugPattern            = regexp.MustCompile(`^[a-z0-9]+(?:-[a-z0-9]+)*$`)
	namespaceHandlePattern = regexp.MustCompile(`^t_[0-9a-f]{32}$`)
)

type Tenant struct {
	ID              string
	Slug            string
	IsActive        bool
	NamespaceHandle string
	Metadata        json.RawMessage
	CreatedAt       time.Time
	UpdatedAt       time.Time
}

// Provisioned reports whether the tenant's namespace has been fully built.
func (t Tenant) Provisioned() bool {
	return t.NamespaceHandle != ""
}

type NewTenant struct {
	Slug     string
	Metadata json.RawMessage
}

func (n NewTenant) Validate() error {
	if err := ValidateSlug(n.Slug); err != nil {
		return err
	}
	if len(n.Metadata) == 0 {
		return nil
	}
	var obj map[string]any
	if err := json.Unmarshal(n.Metadata, &obj); err != nil || obj == nil {
		return fmt.Errorf("%w: metadata must be a json object", ErrInvalidInput)
	}
	return nil
}

func ValidateSlug(slug string) error {
	if slug == "" || len(slug) > maxSlugLength || !slugPattern.MatchString(slug) {
		return fmt.Errorf("%w: slug must be 1-%d lowercase letters, digits or single hyphens", ErrInvalidInput, maxSlugLength)
	}
	return nil
}

func ValidateTenantID(id string) error {
	if _, err := uuid.Parse(id); err != nil {
		return fmt.Errorf("%w: tenant id must be a uuid", ErrInvalidInput)
	}
	return nil
}

// NamespaceHandleFor derives the storage handle for a tenant. The handle is
// a pure function of the id so repeated provisioning lands on the same place.
func NamespaceHandleFor(tenantID string) (string, error) {
	id, err := uuid.Parse(tenantID)
	if err != nil {
		return "", fmt.Errorf("%w: tenant id must be a uuid", ErrInvalidInput)
	}
	return namespaceHandlePrefix + hex.EncodeToString(id[:]), nil
}

func ValidateNamespaceHandle(handle string) error {
	if !namespaceHandlePattern.MatchString(handle) {
		return fmt.Errorf("%w: invalid namespace handle", ErrInvalidInput)
	}
	return nil
}
