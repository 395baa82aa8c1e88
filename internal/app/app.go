// Package app is the composition root: it wires configuration into adapters,
// the adapters into an orchestrator.Registry, and the registry into an
// orchestrator.Orchestrator fronted by an optional HTTP surface. Grounded on
// internal/app/app.go's ordered initInfra -> initProviders -> initServices ->
// initGateway staging, generalized from a flat providers.Provider map and a
// single fasthttp.Gateway to the registry/adapter/orchestrator shape.
package app

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"golang.org/x/sync/errgroup"

	"github.com/redis/go-redis/v9"

	"github.com/nulpointcorp/ai-orchestrator/internal/adapter"
	"github.com/nulpointcorp/ai-orchestrator/internal/apikey"
	"github.com/nulpointcorp/ai-orchestrator/internal/audit"
	"github.com/nulpointcorp/ai-orchestrator/internal/cache"
	"github.com/nulpointcorp/ai-orchestrator/internal/config"
	"github.com/nulpointcorp/ai-orchestrator/internal/httpapi"
	"github.com/nulpointcorp/ai-orchestrator/internal/orchestrator"
	"github.com/nulpointcorp/ai-orchestrator/internal/quota"
	"github.com/nulpointcorp/ai-orchestrator/internal/ratelimit"
	"github.com/nulpointcorp/ai-orchestrator/internal/resilience"
	"github.com/nulpointcorp/ai-orchestrator/internal/telemetry"
)

// App holds every long-lived resource started by New, released in reverse
// order by Close.
type App struct {
	cfg *config.Config
	log *slog.Logger

	rdb     *redis.Client
	quota   quota.Manager
	auditS  audit.Sink
	metrics *telemetry.Registry

	orch   *orchestrator.Orchestrator
	server *httpapi.Server
}

// New builds one adapter per entry in cfg.Providers, registers it, and wires
// the resulting orchestrator behind an HTTP server. Matches the teacher's
// "build everything up front, fail fast on misconfiguration" startup
// discipline.
func New(ctx context.Context, cfg *config.Config, logger *slog.Logger, version string) (*App, error) {
	a := &App{cfg: cfg, log: logger}

	if err := a.initInfra(ctx); err != nil {
		return nil, fmt.Errorf("app: infra init: %w", err)
	}
	registry, err := a.initAdapters(ctx)
	if err != nil {
		return nil, fmt.Errorf("app: adapter init: %w", err)
	}

	a.orch = orchestrator.New(registry)
	a.server = httpapi.New(a.orch, a.metrics, cfg.CORSOrigins)

	a.log.Info("app initialized",
		slog.String("version", version),
		slog.Int("providers", len(cfg.Providers)),
		slog.Bool("quota_management", cfg.Orchestration.EnableQuotaManagement),
		slog.Bool("audit_logging", cfg.Orchestration.EnableAuditLogging),
		slog.Bool("caching", cfg.Orchestration.EnableCaching),
		slog.Bool("metrics", cfg.Orchestration.EnableMetricsCollection),
	)

	return a, nil
}

// initInfra builds the resources shared across every adapter: Redis (if
// configured), the quota manager, the audit sink, and the metrics registry.
func (a *App) initInfra(ctx context.Context) error {
	if a.cfg.Redis.URL != "" {
		opts, err := redis.ParseURL(a.cfg.Redis.URL)
		if err != nil {
			return fmt.Errorf("redis: parse url: %w", err)
		}
		a.rdb = redis.NewClient(opts)
		pingCtx, cancel := context.WithTimeout(ctx, 5*time.Second)
		defer cancel()
		if err := a.rdb.Ping(pingCtx).Err(); err != nil {
			return fmt.Errorf("redis: ping: %w", err)
		}
	}

	if a.cfg.Orchestration.EnableQuotaManagement {
		mgr, err := quota.NewSQLManager(ctx, a.cfg.ClickHouse.DSN, defaultQuotaLimits(a.cfg))
		if err != nil {
			return fmt.Errorf("quota: %w", err)
		}
		a.quota = mgr
	} else {
		a.quota = quota.NewNullManager()
	}

	if a.cfg.Orchestration.EnableAuditLogging {
		sink, err := audit.NewSQLSink(ctx, a.cfg.ClickHouse.DSN, a.log)
		if err != nil {
			return fmt.Errorf("audit: %w", err)
		}
		a.auditS = sink
	} else {
		a.auditS = audit.NewNullSink()
	}

	if a.cfg.Orchestration.EnableMetricsCollection {
		a.metrics = telemetry.New()
	}

	return nil
}

// defaultQuotaLimits builds a conservative per-provider bootstrap Limits
// table; an operator tunes real limits through the persisted quota store
// once the SQLManager is running.
func defaultQuotaLimits(cfg *config.Config) map[string]quota.Limits {
	limits := make(map[string]quota.Limits, len(cfg.Providers))
	for name := range cfg.Providers {
		limits[name] = quota.Limits{
			DailyRequests:   10_000,
			MonthlyRequests: 250_000,
		}
	}
	return limits
}

// initAdapters builds one orchestrator.Adapter per enabled entry in
// cfg.Providers and registers it.
func (a *App) initAdapters(ctx context.Context) (*orchestrator.Registry, error) {
	registry := orchestrator.NewRegistry()

	exclusions, err := cache.NewExclusionList(a.cfg.Cache.ExcludeExactModels, a.cfg.Cache.ExcludeModelPattern)
	if err != nil {
		return nil, fmt.Errorf("cache exclusions: %w", err)
	}
	cacheBackend, err := a.buildCacheBackend(ctx)
	if err != nil {
		return nil, fmt.Errorf("cache backend: %w", err)
	}
	responseCache := cache.NewResponseCache(cacheBackend, exclusions)

	rateLimiter := a.buildRateLimiter()
	keys := a.buildAPIKeyManager()

	for name, pc := range a.cfg.Providers {
		meta, ok := adapterMetadata[name]
		if !ok {
			a.log.Warn("skipping unknown provider", slog.String("provider", name))
			continue
		}

		pc.EnableCaching = pc.EnableCaching && a.cfg.Orchestration.EnableCaching

		base := adapter.BaseAdapter{
			ProviderName:     name,
			Config:           pc,
			Caps:             meta.caps,
			Local:            meta.local,
			ProviderPriority: fallbackPriority(a.cfg.Orchestration.FallbackOrder, name),
			HTTPClient:   &http.Client{Timeout: pc.Timeout()},
			Pipeline: resilience.NewPipeline(resilience.PipelineConfig{
				Timeout: pc.Timeout(),
				CircuitBreaker: resilience.CircuitBreakerConfig{
					FailuresBeforeBreaking: pc.CircuitBreakerFailuresBeforeBreaking,
					CooldownDuration:       time.Duration(pc.CircuitBreakerDurationSeconds) * time.Second,
				},
				Retry: resilience.RetryConfig{MaxRetries: pc.MaxRetries},
			}),
			RateLimit:                rateLimiter,
			Cache:                    responseCache,
			Quota:                    a.quota,
			Audit:                    a.auditS,
			Keys:                     keys,
			CostTable:                meta.costTable,
			Metrics:                  a.metrics,
			CacheEvenWithTemperature: true,
		}

		adp, err := meta.build(ctx, base)
		if err != nil {
			return nil, fmt.Errorf("adapter %s: %w", name, err)
		}
		registry.Register(adp)
		a.log.Info("registered adapter", slog.String("provider", name), slog.Bool("local", meta.local))
	}

	return registry, nil
}

// fallbackPriority returns name's 1-based position in order. A name absent
// from order (including every name, when order is empty) sorts after every
// explicitly ordered provider, at len(order)+1 — ties among unlisted
// providers fall back to registration order.
func fallbackPriority(order []string, name string) int {
	for i, n := range order {
		if n == name {
			return i + 1
		}
	}
	return len(order) + 1
}

func (a *App) buildCacheBackend(ctx context.Context) (cache.Cache, error) {
	if a.rdb != nil {
		return cache.NewExactCacheFromClient(a.rdb), nil
	}
	return cache.NewMemoryCache(ctx), nil
}

func (a *App) buildRateLimiter() ratelimit.Limiter {
	if a.rdb != nil {
		return ratelimit.NewRedisWindowLimiter(a.rdb)
	}
	return ratelimit.NewMemoryWindowLimiter()
}

func (a *App) buildAPIKeyManager() apikey.Manager {
	keys := make(map[string]string, len(a.cfg.Providers))
	for name, pc := range a.cfg.Providers {
		keys[name] = pc.APIKey
	}
	return apikey.NewStaticManager(keys)
}

// Run starts the HTTP surface and blocks until ctx is cancelled or the
// server stops on its own.
func (a *App) Run(ctx context.Context) error {
	g, gctx := errgroup.WithContext(ctx)

	g.Go(func() error {
		addr := fmt.Sprintf(":%d", a.cfg.Port)
		a.log.Info("listening", slog.String("addr", addr))
		return a.server.Start(addr)
	})

	g.Go(func() error {
		<-gctx.Done()
		return gctx.Err()
	})

	err := g.Wait()
	if err != nil && ctx.Err() != nil {
		return nil // clean shutdown via context cancellation
	}
	return err
}

// Close releases resources acquired by New, in reverse order.
func (a *App) Close() error {
	if a.auditS != nil {
		_ = a.auditS.Close()
	}
	if a.rdb != nil {
		_ = a.rdb.Close()
	}
	return nil
}
