package main

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/rs/zerolog"
	"github.com/urfave/cli/v3"

	"github.com/atvirokodosprendimai/leadgate/internal/adapters/jwtauth"
	"github.com/atvirokodosprendimai/leadgate/internal/app"
	"github.com/atvirokodosprendimai/leadgate/internal/core/domain"
	"github.com/atvirokodosprendimai/leadgate/internal/logger"
)

const operatorActor = "cli"

func main() {
	cmd := &cli.Command{
		Name:  "leadgate",
		Usage: "multi-tenant lead intake with per-tenant isolation",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "db-path",
				Value:   "./leadgate.sqlite",
				Sources: cli.EnvVars("LEADGATE_DB_PATH"),
				Usage:   "system store SQLite file",
			},
			&cli.StringFlag{
				Name:    "namespace-backend",
				Value:   app.BackendSQLite,
				Sources: cli.EnvVars("LEADGATE_NAMESPACE_BACKEND"),
				Usage:   "tenant namespace backend: sqlite (file per tenant) or postgres (schema per tenant)",
			},
			&cli.StringFlag{
				Name:    "namespace-dir",
				Sources: cli.EnvVars("LEADGATE_NAMESPACE_DIR"),
				Usage:   "directory for SQLite tenant namespaces (default: <db dir>/tenants)",
			},
			&cli.StringFlag{
				Name:    "postgres-url",
				Sources: cli.EnvVars("LEADGATE_POSTGRES_URL"),
				Usage:   "postgres connection string for the postgres namespace backend",
			},
			&cli.StringFlag{
				Name:    "jwt-secret",
				Sources: cli.EnvVars("LEADGATE_JWT_SECRET"),
				Usage:   "HS256 secret for bearer tokens (at least 32 bytes)",
			},
			&cli.BoolFlag{
				Name:    "dev",
				Sources: cli.EnvVars("LEADGATE_DEV"),
				Usage:   "console logging at debug level",
			},
		},
		Commands: []*cli.Command{
			serveCommand(),
			tenantCommand(),
			keyCommand(),
			tokenCommand(),
		},
		DefaultCommand: "serve",
	}

	if err := cmd.Run(context.Background(), os.Args); err != nil {
		fmt.Fprintln(os.Stderr, err)
		os.Exit(1)
	}
}

func baseConfig(c *cli.Command) app.Config {
	return app.Config{
		DBPath:           c.String("db-path"),
		NamespaceBackend: c.String("namespace-backend"),
		NamespaceDir:     c.String("namespace-dir"),
		PostgresURL:      c.String("postgres-url"),
		JWTSecret:        c.String("jwt-secret"),
	}
}

func serveCommand() *cli.Command {
	return &cli.Command{
		Name:  "serve",
		Usage: "run the HTTP API",
		Flags: []cli.Flag{
			&cli.StringFlag{
				Name:    "addr",
				Value:   ":8080",
				Sources: cli.EnvVars("LEADGATE_ADDR"),
				Usage:   "HTTP listen address",
			},
			&cli.StringFlag{
				Name:    "redis-url",
				Sources: cli.EnvVars("LEADGATE_REDIS_URL"),
				Usage:   "redis:// URL for shared rate limit counters (empty: in-process counters)",
			},
			&cli.StringSliceFlag{
				Name:    "rate-limit",
				Sources: cli.EnvVars("LEADGATE_RATE_LIMITS"),
				Usage:   "override a quota, e.g. lead_ingestion=300/1m (repeatable)",
			},
			&cli.BoolFlag{
				Name:    "trust-proxy",
				Sources: cli.EnvVars("LEADGATE_TRUST_PROXY"),
				Usage:   "take the client IP from X-Forwarded-For / X-Real-IP",
			},
			&cli.StringFlag{
				Name:    "webhook-url",
				Sources: cli.EnvVars("LEADGATE_WEBHOOK_URL"),
				Usage:   "deliver outbox events to this URL instead of the log",
			},
			&cli.StringFlag{
				Name:    "webhook-secret",
				Sources: cli.EnvVars("LEADGATE_WEBHOOK_SECRET"),
				Usage:   "HMAC-SHA256 signing secret for webhook deliveries",
			},
		},
		Action: func(ctx context.Context, c *cli.Command) error {
			log := logger.Setup(c.Bool("dev"))

			cfg := baseConfig(c)
			cfg.Addr = c.String("addr")
			cfg.RedisURL = c.String("redis-url")
			cfg.RateRules = c.StringSlice("rate-limit")
			cfg.TrustProxy = c.Bool("trust-proxy")
			cfg.WebhookURL = c.String("webhook-url")
			cfg.WebhookSecret = c.String("webhook-secret")

			server, closer, err := app.NewServer(ctx, cfg, log)
			if err != nil {
				return fmt.Errorf("create server: %w", err)
			}
			defer func() {
				if closeErr := closer.Close(); closeErr != nil {
					log.Error().Err(closeErr).Msg("close resources")
				}
			}()

			errCh := make(chan error, 1)
			go func() {
				log.Info().Str("addr", cfg.Addr).Msg("listening")
				errCh <- server.ListenAndServe()
			}()

			sigCh := make(chan os.Signal, 1)
			signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
			defer signal.Stop(sigCh)

			select {
			case <-ctx.Done():
			case sig := <-sigCh:
				log.Info().Str("signal", sig.String()).Msg("shutting down")
			case err := <-errCh:
				if errors.Is(err, http.ErrServerClosed) {
					return nil
				}
				return err
			}
			shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
			defer cancel()
			return server.Shutdown(shutdownCtx)
		},
	}
}

// withRuntime opens the stores for one-shot operator commands.
func withRuntime(ctx context.Context, c *cli.Command, fn func(context.Context, *app.Runtime) error) error {
	log := logger.Setup(c.Bool("dev")).Level(zerolog.WarnLevel)
	rt, err := app.Open(ctx, baseConfig(c), log)
	if err != nil {
		return err
	}
	defer rt.Close()
	return fn(log.WithContext(ctx), rt)
}

func printJSON(v any) error {
	enc := json.NewEncoder(os.Stdout)
	enc.SetIndent("", "  ")
	return enc.Encode(v)
}

func tenantCommand() *cli.Command {
	return &cli.Command{
		Name:  "tenant",
		Usage: "manage tenants",
		Commands: []*cli.Command{
			{
				Name:  "create",
				Usage: "create and provision a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "slug", Required: true},
					&cli.StringFlag{Name: "metadata", Usage: "JSON object"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRuntime(ctx, c, func(ctx context.Context, rt *app.Runtime) error {
						var metadata json.RawMessage
						if raw := c.String("metadata"); raw != "" {
							metadata = json.RawMessage(raw)
						}
						tenant, err := rt.Tenants.Create(ctx, domain.NewTenant{Slug: c.String("slug"), Metadata: metadata}, operatorActor)
						if err != nil {
							if tenant.ID != "" {
								return fmt.Errorf("tenant %s created but not provisioned: %w", tenant.ID, err)
							}
							return err
						}
						return printJSON(tenant)
					})
				},
			},
			{
				Name:  "provision",
				Usage: "(re)run provisioning for a tenant",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRuntime(ctx, c, func(ctx context.Context, rt *app.Runtime) error {
						tenant, err := rt.Tenants.Provision(ctx, c.String("id"), operatorActor)
						if err != nil {
							return err
						}
						return printJSON(tenant)
					})
				},
			},
			{
				Name:  "deactivate",
				Usage: "deactivate a tenant; its API keys stop working",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRuntime(ctx, c, func(ctx context.Context, rt *app.Runtime) error {
						return rt.Tenants.Deactivate(ctx, c.String("id"), operatorActor)
					})
				},
			},
		},
	}
}

func keyCommand() *cli.Command {
	return &cli.Command{
		Name:  "key",
		Usage: "manage tenant API keys",
		Commands: []*cli.Command{
			{
				Name:  "issue",
				Usage: "issue an API key; the plaintext is printed once",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Required: true},
					&cli.StringFlag{Name: "name", Required: true},
					&cli.DurationFlag{Name: "ttl", Usage: "expire the key after this long (default: never)"},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRuntime(ctx, c, func(ctx context.Context, rt *app.Runtime) error {
						in := domain.NewAPIKey{Name: c.String("name")}
						if ttl := c.Duration("ttl"); ttl > 0 {
							expires := time.Now().UTC().Add(ttl)
							in.ExpiresAt = &expires
						}
						issued, err := rt.Keys.Issue(ctx, c.String("tenant"), in, operatorActor)
						if err != nil {
							return err
						}
						return printJSON(map[string]any{"id": issued.Key.ID, "api_key": issued.Plaintext, "expires_at": issued.Key.ExpiresAt})
					})
				},
			},
			{
				Name:  "revoke",
				Usage: "revoke an API key",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Required: true},
					&cli.StringFlag{Name: "id", Required: true},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					return withRuntime(ctx, c, func(ctx context.Context, rt *app.Runtime) error {
						return rt.Keys.Revoke(ctx, c.String("tenant"), c.String("id"), operatorActor)
					})
				},
			},
		},
	}
}

func tokenCommand() *cli.Command {
	return &cli.Command{
		Name:  "token",
		Usage: "bearer token helpers",
		Commands: []*cli.Command{
			{
				Name:  "mint",
				Usage: "mint a bearer token signed with --jwt-secret",
				Flags: []cli.Flag{
					&cli.StringFlag{Name: "tenant", Usage: "tenant id; omit with --scope platform:admin for an operator token"},
					&cli.StringFlag{Name: "user"},
					&cli.StringSliceFlag{Name: "scope"},
					&cli.DurationFlag{Name: "ttl", Value: time.Hour},
				},
				Action: func(ctx context.Context, c *cli.Command) error {
					issuer, err := jwtauth.NewIssuer([]byte(c.String("jwt-secret")), nil)
					if err != nil {
						return err
					}
					token, err := issuer.Mint(jwtauth.MintRequest{
						TenantID: c.String("tenant"),
						Subject:  c.String("user"),
						Scopes:   c.StringSlice("scope"),
						TTL:      c.Duration("ttl"),
					})
					if err != nil {
						return err
					}
					fmt.Println(token)
					return nil
				},
			},
		},
	}
}
