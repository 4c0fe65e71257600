package usecase

import (
	"context"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
)

// memTenantRepo enforces slug uniqueness the way the storage constraint does.
type memTenantRepo struct {
	mu      sync.Mutex
	byID    map[string]domain.Tenant
	audit   []domain.AuditEntry
	getErr  error
	setErr  error
	creates int
}

func newMemTenantRepo() *memTenantRepo {
	return &memTenantRepo{byID: map[string]domain.Tenant{}}
}

func (r *memTenantRepo) Create(_ context.Context, t domain.Tenant, audit domain.AuditEntry) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.creates++
	for _, existing := range r.byID {
		if existing.Slug == t.Slug {
			return domain.Tenant{}, domain.ErrConflict
		}
	}
	r.byID[t.ID] = t
	r.audit = append(r.audit, audit)
	return t, nil
}

func (r *memTenantRepo) Get(_ context.Context, id string) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.getErr != nil {
		return domain.Tenant{}, r.getErr
	}
	t, ok := r.byID[id]
	if !ok {
		return domain.Tenant{}, domain.ErrNotFound
	}
	return t, nil
}

func (r *memTenantRepo) GetBySlug(_ context.Context, slug string) (domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	for _, t := range r.byID {
		if t.Slug == slug {
			return t, nil
		}
	}
	return domain.Tenant{}, domain.ErrNotFound
}

func (r *memTenantRepo) SetNamespaceHandle(_ context.Context, id, handle string, audit domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.setErr != nil {
		return r.setErr
	}
	t, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	switch t.NamespaceHandle {
	case handle:
		return nil
	case "":
		t.NamespaceHandle = handle
		r.byID[id] = t
		r.audit = append(r.audit, audit)
		return nil
	default:
		return domain.ErrNamespaceHandleSet
	}
}

func (r *memTenantRepo) SetActive(_ context.Context, id string, active bool, audit domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	t, ok := r.byID[id]
	if !ok {
		return domain.ErrNotFound
	}
	t.IsActive = active
	r.byID[id] = t
	r.audit = append(r.audit, audit)
	return nil
}

func (r *memTenantRepo) ListUnprovisioned(_ context.Context, limit int) ([]domain.Tenant, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.Tenant
	for _, t := range r.byID {
		if t.NamespaceHandle == "" {
			out = append(out, t)
		}
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > limit {
		out = out[:limit]
	}
	return out, nil
}

func (r *memTenantRepo) put(t domain.Tenant) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.byID[t.ID] = t
}

type memKeyRepo struct {
	mu       sync.Mutex
	keys     map[string]domain.APIKey
	audit    []domain.AuditEntry
	findErr  error
	touchErr error
	touched  chan string
}

func newMemKeyRepo() *memKeyRepo {
	return &memKeyRepo{keys: map[string]domain.APIKey{}, touched: make(chan string, 16)}
}

func (r *memKeyRepo) FindByHash(_ context.Context, hash string) (domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.findErr != nil {
		return domain.APIKey{}, r.findErr
	}
	for _, k := range r.keys {
		if k.KeyHash == hash {
			return k, nil
		}
	}
	return domain.APIKey{}, domain.ErrNotFound
}

func (r *memKeyRepo) Create(_ context.Context, key domain.APIKey, audit domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.keys[key.ID] = key
	r.audit = append(r.audit, audit)
	return nil
}

func (r *memKeyRepo) Get(_ context.Context, tenantID, id string) (domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.TenantID != tenantID {
		return domain.APIKey{}, domain.ErrNotFound
	}
	return k, nil
}

func (r *memKeyRepo) List(_ context.Context, tenantID string) ([]domain.APIKey, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.APIKey
	for _, k := range r.keys {
		if k.TenantID == tenantID {
			out = append(out, k)
		}
	}
	return out, nil
}

func (r *memKeyRepo) Deactivate(_ context.Context, tenantID, id string, audit domain.AuditEntry) (bool, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	k, ok := r.keys[id]
	if !ok || k.TenantID != tenantID {
		return false, nil
	}
	if k.IsActive {
		k.IsActive = false
		r.keys[id] = k
		r.audit = append(r.audit, audit)
	}
	return true, nil
}

func (r *memKeyRepo) TouchLastUsed(_ context.Context, id string, at time.Time) error {
	defer func() { r.touched <- id }()
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.touchErr != nil {
		return r.touchErr
	}
	k, ok := r.keys[id]
	if !ok {
		return domain.ErrNotFound
	}
	k.LastUsedAt = &at
	r.keys[id] = k
	return nil
}

type memAuditRepo struct {
	mu        sync.Mutex
	entries   []domain.AuditEntry
	appendErr error
}

func (r *memAuditRepo) Append(_ context.Context, e domain.AuditEntry) error {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.appendErr != nil {
		return r.appendErr
	}
	e.ID = int64(len(r.entries) + 1)
	r.entries = append(r.entries, e)
	return nil
}

func (r *memAuditRepo) List(_ context.Context, f domain.AuditFilter) ([]domain.AuditEntry, error) {
	r.mu.Lock()
	defer r.mu.Unlock()
	var out []domain.AuditEntry
	for _, e := range r.entries {
		if e.TenantID == f.TenantID && e.ID > f.AfterID {
			out = append(out, e)
		}
	}
	return out, nil
}

// memNamespaces models one namespace per handle with the uniqueness rules
// of the real stores.
type memNamespaces struct {
	mu           sync.Mutex
	spaces       map[string]*memNamespace
	provisionErr error
	provisions   int
}

type memNamespace struct {
	leads    map[string]domain.Lead
	messages []domain.ConversationMessage
	personas map[string]domain.Persona
}

func newMemNamespaces() *memNamespaces {
	return &memNamespaces{spaces: map[string]*memNamespace{}}
}

func (n *memNamespaces) Provision(_ context.Context, handle string, seed domain.Persona) error {
	n.mu.Lock()
	defer n.mu.Unlock()
	n.provisions++
	if n.provisionErr != nil {
		return n.provisionErr
	}
	ns, ok := n.spaces[handle]
	if !ok {
		ns = &memNamespace{leads: map[string]domain.Lead{}, personas: map[string]domain.Persona{}}
		n.spaces[handle] = ns
	}
	for _, p := range ns.personas {
		if p.IsDefault {
			return nil
		}
	}
	ns.personas[seed.ID] = seed
	return nil
}

func (n *memNamespaces) space(handle string) (*memNamespace, error) {
	ns, ok := n.spaces[handle]
	if !ok {
		return nil, domain.ErrTenantNotProvisioned
	}
	return ns, nil
}

func (n *memNamespaces) LeadExists(_ context.Context, handle, externalID string) (bool, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return false, err
	}
	for _, l := range ns.leads {
		if l.ExternalID == externalID {
			return true, nil
		}
	}
	return false, nil
}

func (n *memNamespaces) InsertLead(_ context.Context, handle string, lead domain.Lead) (domain.Lead, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return domain.Lead{}, err
	}
	for _, l := range ns.leads {
		if l.ExternalID == lead.ExternalID {
			return domain.Lead{}, domain.ErrConflict
		}
	}
	ns.leads[lead.ID] = lead
	return lead, nil
}

func (n *memNamespaces) GetLead(_ context.Context, handle, id string) (domain.Lead, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return domain.Lead{}, err
	}
	l, ok := ns.leads[id]
	if !ok {
		return domain.Lead{}, domain.ErrNotFound
	}
	return l, nil
}

func (n *memNamespaces) ListLeads(_ context.Context, handle string, f domain.LeadFilter) ([]domain.Lead, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return nil, err
	}
	var out []domain.Lead
	for _, l := range ns.leads {
		out = append(out, l)
	}
	sort.Slice(out, func(i, j int) bool { return out[i].ID < out[j].ID })
	if len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out, nil
}

func (n *memNamespaces) InsertMessage(_ context.Context, handle string, msg domain.ConversationMessage) (domain.ConversationMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return domain.ConversationMessage{}, err
	}
	ns.messages = append(ns.messages, msg)
	return msg, nil
}

func (n *memNamespaces) ListMessages(_ context.Context, handle, leadID string, limit int) ([]domain.ConversationMessage, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return nil, err
	}
	var out []domain.ConversationMessage
	for _, m := range ns.messages {
		if m.LeadID == leadID && len(out) < limit {
			out = append(out, m)
		}
	}
	return out, nil
}

func (n *memNamespaces) DefaultPersona(_ context.Context, handle string) (domain.Persona, error) {
	n.mu.Lock()
	defer n.mu.Unlock()
	ns, err := n.space(handle)
	if err != nil {
		return domain.Persona{}, err
	}
	for _, p := range ns.personas {
		if p.IsDefault {
			return p, nil
		}
	}
	return domain.Persona{}, domain.ErrNotFound
}

func (n *memNamespaces) personaCount(handle string) int {
	n.mu.Lock()
	defer n.mu.Unlock()
	if ns, ok := n.spaces[handle]; ok {
		return len(ns.personas)
	}
	return 0
}

type stubTokenVerifier struct {
	calls    int
	identity domain.Identity
	err      error
}

func (s *stubTokenVerifier) VerifyToken(context.Context, string) (domain.Identity, error) {
	s.calls++
	return s.identity, s.err
}

type counterStoreStub struct {
	mu     sync.Mutex
	counts map[string]int64
	ttls   map[string]time.Duration
	err    error
}

func newCounterStoreStub() *counterStoreStub {
	return &counterStoreStub{counts: map[string]int64{}, ttls: map[string]time.Duration{}}
}

func (c *counterStoreStub) Increment(_ context.Context, key string, ttl time.Duration) (int64, error) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.err != nil {
		return 0, c.err
	}
	c.counts[key]++
	if c.counts[key] == 1 {
		c.ttls[key] = ttl
	}
	return c.counts[key], nil
}

var errStoreDown = errors.New("store down")
