package httpapi

import (
	"encoding/json"
	"fmt"
	"io"
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/chi/v5/middleware"
	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/usecase"
	"github.com/atvirokodosprendimai/leadgate/internal/logger"
	"github.com/atvirokodosprendimai/leadgate/internal/metrics"
)

const (
	timeFormat      = "2006-01-02T15:04:05.999999999Z07:00"
	maxJSONBodySize = 1 << 20
)

// Deps are the collaborators the router needs. Metrics is optional.
type Deps struct {
	Tenants  *usecase.TenantService
	Keys     *usecase.APIKeyService
	Leads    *usecase.LeadService
	Audit    *usecase.AuditService
	Verifier CredentialVerifier
	Limiter  Admitter
	Metrics  *metrics.Metrics
	Logger   zerolog.Logger

	// TrustProxy takes the client IP from X-Forwarded-For / X-Real-IP.
	TrustProxy bool
}

type Handler struct {
	tenants  *usecase.TenantService
	keys     *usecase.APIKeyService
	leads    *usecase.LeadService
	audit    *usecase.AuditService
	verifier CredentialVerifier
	limiter  Admitter
	guard    usecase.TenantGuard
	metrics  *metrics.Metrics
	logger   zerolog.Logger

	trustProxy bool
}

func NewHandler(deps Deps) *Handler {
	return &Handler{
		tenants:    deps.Tenants,
		keys:       deps.Keys,
		leads:      deps.Leads,
		audit:      deps.Audit,
		verifier:   deps.Verifier,
		limiter:    deps.Limiter,
		metrics:    deps.Metrics,
		logger:     deps.Logger,
		trustProxy: deps.TrustProxy,
	}
}

func (h *Handler) Router() http.Handler {
	r := chi.NewRouter()
	r.Use(middleware.RequestID)
	if h.trustProxy {
		r.Use(middleware.RealIP)
	}
	r.Use(logger.Requests(h.logger))
	r.Use(h.recordMetrics)
	r.Use(middleware.Recoverer)

	r.Get("/healthz", h.healthz)
	if h.metrics != nil {
		r.Method(http.MethodGet, "/metrics", h.metrics.Handler())
	}

	r.Route("/v1/tenants", func(r chi.Router) {
		r.With(h.admit(domain.FamilyTenantCreation, byClientIP)).Post("/", h.createTenant)

		r.Route("/{tenantID}", func(r chi.Router) {
			r.Group(func(r chi.Router) {
				r.Use(h.admit(domain.FamilyGlobal, byClientIP))
				r.Get("/", h.getTenant)
				r.Delete("/", h.deactivateTenant)
				r.Post("/provision", h.provisionTenant)
				r.Get("/persona", h.getPersona)
				r.Get("/audit", h.listAudit)

				r.Post("/api-keys", h.issueKey)
				r.Get("/api-keys", h.listKeys)
				r.Delete("/api-keys/{keyID}", h.revokeKey)

				r.Get("/leads", h.listLeads)
				r.Get("/leads/{leadID}", h.getLead)
			})

			r.With(h.admit(domain.FamilyLeadIngestion, byPathTenant)).Post("/leads", h.ingestLead)

			r.Group(func(r chi.Router) {
				r.Use(h.admit(domain.FamilyConversation, byPathTenantOrIP))
				r.Post("/leads/{leadID}/messages", h.appendMessage)
				r.Get("/leads/{leadID}/messages", h.listMessages)
			})
		})
	})

	return r
}

func (h *Handler) healthz(w http.ResponseWriter, _ *http.Request) {
	writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
}

func (h *Handler) recordMetrics(next http.Handler) http.Handler {
	if h.metrics == nil {
		return next
	}
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		started := time.Now()
		ww := middleware.NewWrapResponseWriter(w, r.ProtoMajor)
		next.ServeHTTP(ww, r)

		status := ww.Status()
		if status == 0 {
			status = http.StatusOK
		}
		route := ""
		if rctx := chi.RouteContext(r.Context()); rctx != nil {
			route = rctx.RoutePattern()
		}
		h.metrics.RecordRequest(r.Method, route, status, time.Since(started))
	})
}

func decodeJSON(w http.ResponseWriter, r *http.Request, dst any) error {
	r.Body = http.MaxBytesReader(w, r.Body, maxJSONBodySize)
	decoder := json.NewDecoder(r.Body)
	decoder.DisallowUnknownFields()
	if err := decoder.Decode(dst); err != nil {
		return fmt.Errorf("%w: invalid json body", domain.ErrInvalidInput)
	}
	var extra json.RawMessage
	if err := decoder.Decode(&extra); err != io.EOF {
		return fmt.Errorf("%w: invalid json body", domain.ErrInvalidInput)
	}
	return nil
}

func parseLimit(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("limit")
	if raw == "" {
		return 0, nil
	}
	limit, err := strconv.Atoi(raw)
	if err != nil || limit < 0 {
		return 0, fmt.Errorf("%w: limit must be a non-negative integer", domain.ErrInvalidInput)
	}
	return limit, nil
}

func writeJSON(w http.ResponseWriter, status int, body any) {
	data, err := json.Marshal(body)
	if err != nil {
		http.Error(w, "internal server error", http.StatusInternalServerError)
		return
	}
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	_, _ = w.Write(append(data, '\n'))
}

func formatTime(t time.Time) string {
	return t.UTC().Format(timeFormat)
}

func formatTimePtr(t *time.Time) *string {
	if t == nil {
		return nil
	}
	s := formatTime(*t)
	return &s
}
