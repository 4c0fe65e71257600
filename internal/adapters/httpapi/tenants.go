package httpapi

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type createTenantRequest struct {
	Slug     string          `json:"slug"`
	Metadata json.RawMessage `json:"metadata,omitempty"`
}

type tenantResponse struct {
	ID              string          `json:"id"`
	Slug            string          `json:"slug"`
	IsActive        bool            `json:"is_active"`
	Provisioned     bool            `json:"provisioned"`
	NamespaceHandle string          `json:"namespace_handle,omitempty"`
	Metadata        json.RawMessage `json:"metadata,omitempty"`
	CreatedAt       string          `json:"created_at"`
	UpdatedAt       string          `json:"updated_at"`
}

func toTenantResponse(t domain.Tenant) tenantResponse {
	return tenantResponse{
		ID:              t.ID,
		Slug:            t.Slug,
		IsActive:        t.IsActive,
		Provisioned:     t.Provisioned(),
		NamespaceHandle: t.NamespaceHandle,
		Metadata:        t.Metadata,
		CreatedAt:       formatTime(t.CreatedAt),
		UpdatedAt:       formatTime(t.UpdatedAt),
	}
}

func (h *Handler) createTenant(w http.ResponseWriter, r *http.Request) {
	identity := identityOf(r)
	if err := requirePlatformOperator(identity); err != nil {
		writeDomainError(w, r, err)
		return
	}

	var req createTenantRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}

	tenant, err := h.tenants.Create(r.Context(), domain.NewTenant{Slug: req.Slug, Metadata: req.Metadata}, identity.Actor())
	if err != nil {
		if errors.Is(err, domain.ErrProvisioningFailed) && tenant.ID != "" {
			// the row exists; hand the id back so provisioning can be retried
			zerolog.Ctx(r.Context()).Error().Err(err).Str("tenant_id", tenant.ID).Msg("tenant provisioning failed")
			writeJSON(w, http.StatusInternalServerError, errorResponse{
				Error:    "provisioning_failed",
				Message:  "tenant created but provisioning failed, retry provisioning",
				TenantID: tenant.ID,
			})
			return
		}
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, toTenantResponse(tenant))
}

func (h *Handler) getTenant(w http.ResponseWriter, r *http.Request) {
	tenant, err := h.tenants.Get(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) provisionTenant(w http.ResponseWriter, r *http.Request) {
	identity := identityOf(r)
	if err := requirePlatformOperator(identity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	tenant, err := h.tenants.Provision(r.Context(), chi.URLParam(r, "tenantID"), identity.Actor())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, toTenantResponse(tenant))
}

func (h *Handler) deactivateTenant(w http.ResponseWriter, r *http.Request) {
	identity := identityOf(r)
	if err := requirePlatformOperator(identity); err != nil {
		writeDomainError(w, r, err)
		return
	}
	if err := h.tenants.Deactivate(r.Context(), chi.URLParam(r, "tenantID"), identity.Actor()); err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, map[string]bool{"deactivated": true})
}

func (h *Handler) getPersona(w http.ResponseWriter, r *http.Request) {
	persona, err := h.leads.DefaultPersona(r.Context(), chi.URLParam(r, "tenantID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, persona)
}

func (h *Handler) listAudit(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	q := r.URL.Query()
	var after int64
	if raw := q.Get("after"); raw != "" {
		after, err = strconv.ParseInt(raw, 10, 64)
		if err != nil {
			writeDomainError(w, r, fmt.Errorf("%w: after must be an integer", domain.ErrInvalidInput))
			return
		}
	}

	entries, err := h.audit.List(r.Context(), domain.AuditFilter{
		TenantID:   chi.URLParam(r, "tenantID"),
		EntityType: q.Get("entity_type"),
		EntityID:   q.Get("entity_id"),
		Action:     q.Get("action"),
		AfterID:    after,
		Limit:      limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if entries == nil {
		entries = []domain.AuditEntry{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"entries": entries})
}
