package domain

import (
	"slices"
	"time"
)

type AuthMethod string

const (
	AuthMethodToken  AuthMethod = "token"
	AuthMethodAPIKey AuthMethod = "api_key"
)

const ScopePlatformAdmin = "platform:admin"

// Identity is the verified principal of a request. It is built once per
// request and never mutated afterwards.
type Identity struct {
	TenantID  string
	UserID    string
	Scopes    []string
	ExpiresAt *time.Time
	Method    AuthMethod
	KeyID     string
}

func NewIdentity(tenantID, userID string, scopes []string, expiresAt *time.Time, method AuthMethod) Identity {
	return Identity{
		TenantID:  tenantID,
		UserID:    userID,
		Scopes:    slices.Clone(scopes),
		ExpiresAt: expiresAt,
		Method:    method,
	}
}

func (i Identity) HasScope(scope string) bool {
	return slices.Contains(i.Scopes, scope)
}

// IsPlatformOperator reports a cross-tenant identity.
func (i Identity) IsPlatformOperator() bool {
	return i.TenantID == "" && i.HasScope(ScopePlatformAdmin)
}

// Actor renders the identity for audit entries.
func (i Identity) Actor() string {
	switch {
	case i.Method == AuthMethodAPIKey:
		return "api_key:" + i.KeyID
	case i.UserID != "":
		return "user:" + i.UserID
	case i.IsPlatformOperator():
		return "platform"
	default:
		return "anonymous"
	}
}
