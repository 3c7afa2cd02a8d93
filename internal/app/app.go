// Package app assembles the refresh pipeline, report service and HTTP
// surface from a Config.
package app

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	_ "github.com/lib/pq" // PostgreSQL driver
	"github.com/redis/go-redis/v9"

	"github.com/ignite/pulse/internal/api"
	"github.com/ignite/pulse/internal/appsflyer"
	"github.com/ignite/pulse/internal/config"
	"github.com/ignite/pulse/internal/credentials"
	"github.com/ignite/pulse/internal/domain"
	"github.com/ignite/pulse/internal/llm"
	"github.com/ignite/pulse/internal/notify"
	"github.com/ignite/pulse/internal/pkg/distlock"
	"github.com/ignite/pulse/internal/pkg/logger"
	"github.com/ignite/pulse/internal/registry"
	"github.com/ignite/pulse/internal/report"
	"github.com/ignite/pulse/internal/revenuecat"
	"github.com/ignite/pulse/internal/scheduler"
	"github.com/ignite/pulse/internal/settings"
	"github.com/ignite/pulse/internal/telemetry"
)

const (
	category       = "app"
	refreshLockID  = "pulse:refresh"
	refreshLockTTL = 10 * time.Minute
)

// App holds every wired component.
type App struct {
	Config        *config.Config
	Redis         *redis.Client
	DB            *sql.DB
	Credentials   *credentials.CachedStore
	Registry      registry.Registry
	Settings      *settings.Store
	Subscriptions *revenuecat.Client
	Attribution   *appsflyer.Client
	LLM           llm.Client
	Metrics       *telemetry.Metrics
	Notifier      notify.Notifier
	Scheduler     *scheduler.Scheduler
	Reports       *report.Service

	log logger.Func
}

// New connects the configured stores and builds every component. Secrets
// present in cfg are written to the credential store.
func New(ctx context.Context, cfg *config.Config, log logger.Func) (*App, error) {
	if log == nil {
		log = logger.Nop
	}
	a := &App{Config: cfg, log: log}

	if cfg.Redis.Enabled() {
		a.Redis = connectRedis(ctx, cfg.Redis, log)
	}
	if cfg.Registry.Backend == "postgres" {
		db, err := connectPostgres(ctx, cfg.Registry.DatabaseURL)
		if err != nil {
			a.Close()
			return nil, err
		}
		a.DB = db
	}

	if err := a.buildStores(ctx); err != nil {
		a.Close()
		return nil, err
	}

	a.Settings = settings.NewStore(cfg)
	a.Subscriptions = revenuecat.NewClient(cfg.RevenueCat, log)
	a.Attribution = appsflyer.NewClient(cfg.AppsFlyer, log)
	a.Metrics = telemetry.New()

	textGen, err := llm.New(ctx, cfg, a.textGenKey, log)
	if err != nil {
		a.Close()
		return nil, err
	}
	a.LLM = textGen

	a.Notifier = notify.Nop{}
	if cfg.Notify.Enabled {
		a.Notifier = notify.NewDesktop(cfg.Notify.AppName, log)
	}

	a.Scheduler = scheduler.New(scheduler.Options{
		Fetcher:     a.Subscriptions,
		Projects:    a.Registry,
		Credentials: a.Credentials,
		Currency:    func() string { return a.Settings.Get().Currency },
		Interval:    a.Settings.Get().RefreshInterval(),
		Lock:        distlock.NewLock(a.Redis, a.DB, refreshLockID, refreshLockTTL),
		Observer:    a.Metrics,
		Notifier:    a.Notifier,
	}, log)

	a.Reports = report.NewService(report.Deps{
		LLM:         a.LLM,
		Charts:      a.Subscriptions,
		Marketing:   a.Attribution,
		Projects:    a.Registry,
		Snapshots:   a.Scheduler,
		Credentials: a.Credentials,
		Settings:    a.Settings,
		Observer:    a.Metrics,
		Notifier:    a.Notifier,
	}, log)

	return a, nil
}

func (a *App) buildStores(ctx context.Context) error {
	cfg := a.Config

	var base credentials.Store
	switch cfg.Credentials.Backend {
	case "", "memory":
		base = credentials.NewMemoryStore(cfg.Credentials.Prefix)
	case "redis":
		if a.Redis == nil {
			return errors.New("credentials backend redis needs a reachable redis.addr")
		}
		base = credentials.NewRedisStore(a.Redis, cfg.Credentials.Prefix)
	default:
		return fmt.Errorf("unknown credentials backend %q", cfg.Credentials.Backend)
	}
	a.Credentials = credentials.NewCachedStore(base, cfg.Credentials.CacheTTL())

	seeds := registry.FromConfig(cfg.Projects)
	switch cfg.Registry.Backend {
	case "", "config":
		a.Registry = registry.NewMemoryRegistry(seeds)
	case "postgres":
		pg := registry.NewPostgresRegistry(a.DB)
		if err := pg.EnsureSchema(ctx); err != nil {
			return err
		}
		if err := pg.Seed(ctx, seeds); err != nil {
			return err
		}
		a.Registry = pg
	default:
		return fmt.Errorf("unknown registry backend %q", cfg.Registry.Backend)
	}

	return a.seedSecrets(ctx, seeds)
}

// seedSecrets stores the non-empty secrets from the config. Empty values
// never remove secrets saved at runtime.
func (a *App) seedSecrets(ctx context.Context, seeds []domain.Project) error {
	cfg := a.Config
	type secret struct {
		scope credentials.Scope
		value string
	}
	secrets := []secret{
		{credentials.Global(credentials.Subscription), cfg.RevenueCat.APIKey},
		{credentials.Global(credentials.TextGen), cfg.LLM.APIKey},
	}
	for i, pc := range cfg.Projects {
		id := seeds[i].ID
		secrets = append(secrets,
			secret{credentials.ForProject(credentials.Subscription, id), pc.SubscriptionAPIKey},
			secret{credentials.ForProject(credentials.Attribution, id), appsflyer.NormalizeToken(pc.AttributionToken)},
		)
	}

	var seeded int
	for _, s := range secrets {
		if s.value == "" {
			continue
		}
		if err := a.Credentials.Save(ctx, s.scope, s.value); err != nil {
			return fmt.Errorf("storing %s secret: %w", s.scope, err)
		}
		seeded++
	}
	if seeded > 0 {
		a.log(fmt.Sprintf("stored %d secrets from config", seeded), logger.INFO, category)
	}
	return nil
}

func (a *App) textGenKey(ctx context.Context) (string, error) {
	return a.Credentials.Get(ctx, credentials.Global(credentials.TextGen))
}

// Server builds the HTTP server over the wired components.
func (a *App) Server() *api.Server {
	return api.NewServer(a.Config.Server, api.Deps{
		Scheduler:    a.Scheduler,
		Registry:     a.Registry,
		Credentials:  a.Credentials,
		Settings:     a.Settings,
		Reports:      a.Reports,
		Subscription: a.Subscriptions,
		Attribution:  a.Attribution,
		Health:       api.NewHealthChecker(a.DB, a.Redis, a.Scheduler),
		Metrics:      a.Metrics.Handler(),
		Log:          a.log,
	})
}

// Close stops the scheduler and closes the store connections.
func (a *App) Close() error {
	if a.Scheduler != nil {
		a.Scheduler.Stop()
	}
	var errs []error
	if a.Redis != nil {
		errs = append(errs, a.Redis.Close())
	}
	if a.DB != nil {
		errs = append(errs, a.DB.Close())
	}
	return errors.Join(errs...)
}

// connectRedis returns nil when the server cannot be reached; the lock
// then falls back to the next backend.
func connectRedis(ctx context.Context, cfg config.RedisConfig, log logger.Func) *redis.Client {
	client := redis.NewClient(&redis.Options{
		Addr:     cfg.Addr,
		Password: cfg.Password,
		DB:       cfg.DB,
	})
	pingCtx, cancel := context.WithTimeout(ctx, 3*time.Second)
	defer cancel()
	if err := client.Ping(pingCtx).Err(); err != nil {
		log(fmt.Sprintf("redis at %s unreachable: %v", cfg.Addr, err), logger.WARN, category)
		client.Close()
		return nil
	}
	log(fmt.Sprintf("connected to redis at %s", cfg.Addr), logger.INFO, category)
	return client
}

func connectPostgres(ctx context.Context, dsn string) (*sql.DB, error) {
	if dsn == "" {
		return nil, errors.New("registry backend postgres needs registry.database_url")
	}
	db, err := sql.Open("postgres", dsn)
	if err != nil {
		return nil, fmt.Errorf("opening database: %w", err)
	}
	db.SetMaxOpenConns(5)
	db.SetMaxIdleConns(2)
	db.SetConnMaxLifetime(5 * time.Minute)

	pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
	defer cancel()
	if err := db.PingContext(pingCtx); err != nil {
		db.Close()
		return nil, fmt.Errorf("connecting to database: %w", err)
	}
	return db, nil
}
