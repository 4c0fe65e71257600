package app

import (
	"context"
	"errors"
	"fmt"
	"io"
	"net/http"
	"path/filepath"
	"sync"
	"time"

	"github.com/rs/zerolog"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/events"
	"github.com/atvirokodosprendimai/leadgate/internal/adapters/httpapi"
	"github.com/atvirokodosprendimai/leadgate/internal/adapters/jwtauth"
	"github.com/atvirokodosprendimai/leadgate/internal/adapters/memory"
	"github.com/atvirokodosprendimai/leadgate/internal/adapters/postgres"
	redisadapter "github.com/atvirokodosprendimai/leadgate/internal/adapters/redis"
	sqliteadapter "github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/adapters/sqlite/gormsqlite"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/core/ports"
	"github.com/atvirokodosprendimai/leadgate/internal/core/usecase"
	"github.com/atvirokodosprendimai/leadgate/internal/metrics"
	"github.com/atvirokodosprendimai/leadgate/migrations"
)

const (
	BackendSQLite   = "sqlite"
	BackendPostgres = "postgres"
)

type Config struct {
	Addr   string
	DBPath string

	// JWTSecret signs and verifies bearer tokens. Required to serve.
	JWTSecret string

	// RedisURL selects the shared counter store; empty keeps counters in
	// process memory.
	RedisURL string

	NamespaceBackend string
	NamespaceDir     string
	PostgresURL      string

	// RateRules override defaults, each "family=limit/window".
	RateRules  []string
	TrustProxy bool

	WebhookURL     string
	WebhookSecret  string
	OutboxInterval time.Duration
}

func (c *Config) ApplyDefaults() {
	if c.Addr == "" {
		c.Addr = ":8080"
	}
	if c.DBPath == "" {
		c.DBPath = "./leadgate.sqlite"
	}
	if c.NamespaceBackend == "" {
		c.NamespaceBackend = BackendSQLite
	}
	if c.NamespaceDir == "" {
		c.NamespaceDir = filepath.Join(filepath.Dir(c.DBPath), "tenants")
	}
	if c.OutboxInterval == 0 {
		c.OutboxInterval = 2 * time.Second
	}
}

func (c *Config) Validate() error {
	switch c.NamespaceBackend {
	case BackendSQLite:
	case BackendPostgres:
		if c.PostgresURL == "" {
			return errors.New("postgres namespace backend needs a postgres url")
		}
	default:
		return fmt.Errorf("unknown namespace backend %q", c.NamespaceBackend)
	}
	if c.JWTSecret != "" && len(c.JWTSecret) < jwtauth.MinSecretLength {
		return jwtauth.ErrWeakSecret
	}
	if c.WebhookURL != "" && c.WebhookSecret == "" {
		return errors.New("webhook url needs a webhook secret")
	}
	if _, err := c.rateRules(); err != nil {
		return err
	}
	return nil
}

func (c *Config) rateRules() (map[domain.RateFamily]domain.RateRule, error) {
	rules := make(map[domain.RateFamily]domain.RateRule, len(c.RateRules))
	for _, raw := range c.RateRules {
		rule, err := domain.ParseRateRule(raw)
		if err != nil {
			return nil, err
		}
		rules[rule.Family] = rule
	}
	return rules, nil
}

type resourceCloser struct {
	closers []io.Closer
}

func (r resourceCloser) Close() error {
	var firstErr error
	// reverse order: later resources depend on earlier ones
	for i := len(r.closers) - 1; i >= 0; i-- {
		c := r.closers[i]
		if c == nil {
			continue
		}
		if err := c.Close(); err != nil && firstErr == nil {
			firstErr = err
		}
	}
	return firstErr
}

type closerFunc func() error

func (f closerFunc) Close() error { return f() }

// Runtime holds the wired services. The CLI uses it directly; NewServer
// puts HTTP on top.
type Runtime struct {
	Tenants     *usecase.TenantService
	Keys        *usecase.APIKeyService
	Leads       *usecase.LeadService
	Audit       *usecase.AuditService
	Provisioner *usecase.Provisioner
	Outbox      ports.OutboxRepository

	logger  zerolog.Logger
	closers resourceCloser
}

func (rt *Runtime) Close() error {
	return rt.closers.Close()
}

func (rt *Runtime) track(c io.Closer) {
	rt.closers.closers = append(rt.closers.closers, c)
}

// Open opens the system store, runs migrations and wires the services.
func Open(ctx context.Context, cfg Config, logger zerolog.Logger) (_ *Runtime, err error) {
	cfg.ApplyDefaults()
	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("invalid config: %w", err)
	}

	rt := &Runtime{logger: logger}
	defer func() {
		if err != nil {
			_ = rt.Close()
		}
	}()

	db, err := gormsqlite.Open(cfg.DBPath, gormsqlite.WithLogger(logger))
	if err != nil {
		return nil, fmt.Errorf("open system store: %w", err)
	}
	rt.track(db)

	writeSQLDB, err := db.WriteSQLDB()
	if err != nil {
		return nil, fmt.Errorf("resolve writer sql db: %w", err)
	}
	migrateCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := migrations.Up(migrateCtx, writeSQLDB); err != nil {
		return nil, err
	}

	namespaces, leads, err := openNamespaces(ctx, cfg, logger, rt)
	if err != nil {
		return nil, err
	}

	tenantRepo := sqliteadapter.NewTenantRepository(db)
	auditRepo := sqliteadapter.NewAuditRepository(db)
	schema, err := usecase.NewLeadSchema()
	if err != nil {
		return nil, err
	}

	rt.Provisioner = usecase.NewProvisioner(tenantRepo, namespaces)
	rt.Tenants = usecase.NewTenantService(tenantRepo, rt.Provisioner)
	rt.Keys = usecase.NewAPIKeyService(sqliteadapter.NewAPIKeyRepository(db), tenantRepo)
	rt.Leads = usecase.NewLeadService(tenantRepo, leads, auditRepo, schema)
	rt.Audit = usecase.NewAuditService(auditRepo)
	rt.Outbox = sqliteadapter.NewOutboxRepository(db)
	return rt, nil
}

func openNamespaces(ctx context.Context, cfg Config, logger zerolog.Logger, rt *Runtime) (ports.NamespaceStore, ports.LeadStore, error) {
	if cfg.NamespaceBackend == BackendPostgres {
		pool, err := postgres.NewPool(ctx, &postgres.PoolConfig{ConnString: cfg.PostgresURL})
		if err != nil {
			return nil, nil, fmt.Errorf("open postgres namespaces: %w", err)
		}
		rt.track(closerFunc(func() error { pool.Close(); return nil }))
		store := postgres.NewNamespaceStore(pool)
		return store, store, nil
	}
	store, err := sqliteadapter.NewNamespaceStore(cfg.NamespaceDir, logger)
	if err != nil {
		return nil, nil, err
	}
	rt.track(store)
	return store, store, nil
}

func openCounterStore(ctx context.Context, cfg Config, rt *Runtime) (ports.CounterStore, error) {
	if cfg.RedisURL == "" {
		rt.logger.Warn().Msg("no redis url, rate limit counters are local to this process")
		return memory.NewCounterStore(nil), nil
	}
	store, err := redisadapter.Dial(ctx, cfg.RedisURL, redisadapter.WithKeyPrefix("leadgate:"))
	if err != nil {
		return nil, err
	}
	rt.track(store)
	return store, nil
}

func newPublisher(cfg Config, logger zerolog.Logger) ports.EventPublisher {
	if cfg.WebhookURL != "" {
		return events.NewWebhookPublisher(cfg.WebhookURL, cfg.WebhookSecret, 0)
	}
	return events.NewLogPublisher(logger)
}

// NewServer wires the HTTP server, starts the outbox dispatcher and kicks
// off a reconcile of tenants left unprovisioned by an earlier failure.
func NewServer(ctx context.Context, cfg Config, logger zerolog.Logger) (*http.Server, io.Closer, error) {
	cfg.ApplyDefaults()
	if cfg.JWTSecret == "" {
		return nil, nil, errors.New("jwt secret is required to serve")
	}

	rt, err := Open(ctx, cfg, logger)
	if err != nil {
		return nil, nil, err
	}

	tokens, err := jwtauth.NewVerifier([]byte(cfg.JWTSecret), nil)
	if err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	counters, err := openCounterStore(ctx, cfg, rt)
	if err != nil {
		_ = rt.Close()
		return nil, nil, fmt.Errorf("open counter store: %w", err)
	}
	rules, _ := cfg.rateRules()
	limiter, err := usecase.NewRateLimiter(counters, rules, nil)
	if err != nil {
		_ = rt.Close()
		return nil, nil, err
	}
	verifier := usecase.NewCredentialVerifier(tokens, rt.Keys)
	rt.track(verifier)

	m := metrics.New()
	dispatcher := usecase.NewOutboxDispatcher(rt.Outbox, newPublisher(cfg, logger), logger,
		usecase.WithOutboxInterval(cfg.OutboxInterval),
		usecase.WithOutboxBatchSize(100),
	)
	m.ObserveOutbox(dispatcher)
	dispatcher.Start(context.Background())
	rt.track(dispatcher)

	bg, cancel := context.WithCancel(logger.WithContext(context.Background()))
	var wg sync.WaitGroup
	wg.Add(1)
	go func() {
		defer wg.Done()
		n, err := rt.Provisioner.Reconcile(bg, 100)
		if err != nil {
			logger.Error().Err(err).Msg("reconcile unprovisioned tenants")
			return
		}
		if n > 0 {
			logger.Info().Int("tenants", n).Msg("reconciled unprovisioned tenants")
		}
	}()
	rt.track(closerFunc(func() error { cancel(); wg.Wait(); return nil }))

	handler := httpapi.NewHandler(httpapi.Deps{
		Tenants:    rt.Tenants,
		Keys:       rt.Keys,
		Leads:      rt.Leads,
		Audit:      rt.Audit,
		Verifier:   verifier,
		Limiter:    limiter,
		Metrics:    m,
		Logger:     logger,
		TrustProxy: cfg.TrustProxy,
	})

	server := &http.Server{
		Addr:              cfg.Addr,
		Handler:           handler.Router(),
		ReadHeaderTimeout: 5 * time.Second,
	}
	return server, rt, nil
}
