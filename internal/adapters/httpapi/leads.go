package httpapi

import (
	"encoding/json"
	"net/http"

	"github.com/go-chi/chi/v5"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

type ingestLeadRequest struct {
	ExternalID string          `json:"external_id"`
	Source     string          `json:"source"`
	Payload    json.RawMessage `json:"payload"`
}

type appendMessageRequest struct {
	Role string `json:"role"`
	Body string `json:"body"`
}

func (h *Handler) ingestLead(w http.ResponseWriter, r *http.Request) {
	var req ingestLeadRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	lead, err := h.leads.Ingest(r.Context(), chi.URLParam(r, "tenantID"), domain.NewLead{
		ExternalID: req.ExternalID,
		Source:     req.Source,
		Payload:    req.Payload,
	}, identityOf(r).Actor())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, lead)
}

func (h *Handler) listLeads(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	leads, err := h.leads.List(r.Context(), chi.URLParam(r, "tenantID"), domain.LeadFilter{
		Status:  r.URL.Query().Get("status"),
		AfterID: r.URL.Query().Get("after"),
		Limit:   limit,
	})
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if leads == nil {
		leads = []domain.Lead{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"leads": leads})
}

func (h *Handler) getLead(w http.ResponseWriter, r *http.Request) {
	lead, err := h.leads.Get(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"))
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, lead)
}

func (h *Handler) appendMessage(w http.ResponseWriter, r *http.Request) {
	var req appendMessageRequest
	if err := decodeJSON(w, r, &req); err != nil {
		writeDomainError(w, r, err)
		return
	}
	msg, err := h.leads.AppendMessage(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"), req.Role, req.Body, identityOf(r).Actor())
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	writeJSON(w, http.StatusCreated, msg)
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	limit, err := parseLimit(r)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	msgs, err := h.leads.ListMessages(r.Context(), chi.URLParam(r, "tenantID"), chi.URLParam(r, "leadID"), limit)
	if err != nil {
		writeDomainError(w, r, err)
		return
	}
	if msgs == nil {
		msgs = []domain.ConversationMessage{}
	}
	writeJSON(w, http.StatusOK, map[string]any{"messages": msgs})
}
