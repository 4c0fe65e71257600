package httpapi

import (
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type issueKeyRequest struct {
	Name      string     `json:"name"`
	ExpiresAt *time.Time `json:"expires_at,omitempty"`
}

type apiKeyResponse struct {
	ID         string  `json:"id"`
	TenantID   string  `json:"tenant_id"`
	Name       string  `json:"name"`
	Prefix     string  `json:"prefix"`
	IsActive   bool    `json:"is_active"`
	CreatedAt  string  `json:"created_at"`
	ExpiresAt  *string `json:"expires_at,omitempty"`
	LastUsedAt *string `json:"last_used_at,omitempty"`
}

func toAPIKeyResponse(k domain.APIKey) apiKeyResponse {
	return apiKeyResponse{
		ID:         k.ID,
		TenantID:   k.TenantID,
		Name:       k.Name,
		Prefix:     k.KeyPrefix,
		IsActive:   k.IsActive,
		CreatedAt:  formatTime(k.CreatedAt),
		ExpiresAt:  formatTimePtr(k.ExpiresAt),
		LastUsedAt: formatTimePtr(k.LastUsedAt),
	}
}

func (h *Handler) issueKey(w http.ResponseWriter, r *http.Request) {
	identity := identityOf(r)
	if err := requireToken(identity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	var req issueKeyRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	issued, err := h.keys.Issue(r.Context(), chi.URLParam(r, "tenantID"), domain.NewAPIKey{Name: req.Name, ExpiresAt: req.ExpiresAt}, identity.Actor())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	// the plaintext is only ever returned here
	writeJSON(w, http.StatusCreated, map[string]any{
		"key":     toAPIKeyResponse(issued.Key),
		"api_key": issued.Plaintext,
	})
}

func (h *Handler) listKeys(w http.ResponseWriter, r *http.Request) {
	if err := requireToken(identityOf(r)); err != nil {
		writeDomainError(w, r, err)
		return
	}
	keys, err := h.keys.List(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	out := make([]apiKeyResponse, 0, len(keys))
	for _, k := range keys {
		out = append(out, toAPIKeyResponse(k))
	}
	writeJSON(w, http.StatusOK, map[string]any{"keys": out})
}

func (h *Handler) revokeKey(w http.ResponseWriter, r *http.Request) {
	identity := identityOf(r)
	if err := requireToken(identity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.keys.Revoke(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "keyID"), identity.Actor()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"revoked": true})
}
