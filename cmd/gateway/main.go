// Package main is the entry point for the modelgate routing gateway.
package main

import (
	"context"
	"flag"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/modelgate/gateway/internal/adapters"
	"github.com/modelgate/gateway/internal/analytics"
	"github.com/modelgate/gateway/internal/breaker"
	"github.com/modelgate/gateway/internal/budget"
	"github.com/modelgate/gateway/internal/config"
	"github.com/modelgate/gateway/internal/connmgr"
	"github.com/modelgate/gateway/internal/httpapi"
	"github.com/modelgate/gateway/internal/metricstore"
	"github.com/modelgate/gateway/internal/offlinecache"
	"github.com/modelgate/gateway/internal/profiles"
	"github.com/modelgate/gateway/internal/quota"
	"github.com/modelgate/gateway/internal/router"
	"github.com/modelgate/gateway/internal/scheduler"
	"github.com/modelgate/gateway/internal/streaming"
)

func main() {
	if err := run(); err != nil {
		slog.Error("gateway failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	configPath := flag.String("config", "config/config.yaml", "path to configuration file")
	budgetStatePath := flag.String("budget-state", "", "path to persist budget limits across restarts (optional)")
	flag.Parse()

	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{Level: slog.LevelInfo}))
	slog.SetDefault(logger)
	logger.Info("starting modelgate gateway")

	cfgManager, err := config.NewManager(*configPath, logger)
	if err != nil {
		return fmt.Errorf("load configuration: %w", err)
	}
	defer func() { _ = cfgManager.Close() }()

	cfg := cfgManager.Get()
	logger = newLogger(cfg.Logging)
	slog.SetDefault(logger)

	for _, w := range cfg.Warnings() {
		logger.Warn("configuration warning", "code", w.Code, "message", w.Message)
	}

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()

	if err := cfgManager.Watch(ctx); err != nil {
		logger.Warn("config hot-reload disabled", "error", err)
	}

	db, err := metricstore.Open(cfg.Database)
	if err != nil {
		return fmt.Errorf("open metric store: %w", err)
	}
	defer db.Close()

	store := metricstore.NewStore(db)
	localCache := offlinecache.New(cfg.Cache.Memory)
	defer localCache.Close()

	var sharedCache *offlinecache.SharedCache
	if cfg.Cache.Type == "redis" {
		sharedCache, err = offlinecache.NewSharedCache(cfg.Cache.Redis)
		if err != nil {
			logger.Warn("shared cache unavailable, falling back to local-only invalidation", "error", err)
			sharedCache = nil
		} else {
			defer sharedCache.Close()
			go func() {
				for key := range sharedCache.Subscribe(ctx) {
					localCache.Delete(key)
				}
			}()
		}
	}
	store.OnInvalidate(func(canonicalID int64) {
		key := fmt.Sprintf("model:%d", canonicalID)
		localCache.Delete(key)
		if sharedCache != nil {
			_ = sharedCache.PublishInvalidation(ctx, key)
		}
	})

	profileMap := make(map[string]profiles.Profile, len(cfg.Profiles))
	for _, p := range cfg.Profiles {
		profileMap[p.Name] = p.Profile()
	}

	quotaMgr := quota.NewManager(cfg.Quota)
	analyticsCollector := analytics.NewCollector(db, 4096)

	budgetMgr := budget.NewManager(analyticsCollector, *budgetStatePath)
	if *budgetStatePath == "" {
		if err := budgetMgr.Update(cfg.Budget); err != nil {
			logger.Warn("failed to seed budget limits from config", "error", err)
		}
	}

	breakerRegistry := breaker.NewRegistry(cfg.Breaker)
	rtr := router.New(breakerRegistry, 2)
	connManager := connmgr.NewManager(cfg.ConnManager)
	cancelSet := &streaming.CancelSet{}

	sched := scheduler.New(db, cfg.Scheduler, logger)
	if err := sched.EnsureSchema(ctx); err != nil {
		return fmt.Errorf("ensure scheduler schema: %w", err)
	}
	registerJobs(ctx, sched, store, localCache, analyticsCollector, cfg, logger)
	defer sched.Stop()

	handler := &httpapi.Handler{
		Store:     store,
		Router:    rtr,
		Profiles:  profileMap,
		Quota:     quotaMgr,
		Budget:    budgetMgr,
		Conns:     connManager,
		Analytics: analyticsCollector,
		Cancels:   cancelSet,
		Logger:    logger,
		// Producer is left nil: chat-completion content generation is a
		// pluggable collaborator a concrete deployment supplies, not
		// something this gateway implements.
	}

	mux := http.NewServeMux()
	handler.RegisterRoutes(mux)
	if cfg.Metrics.Enabled && cfg.Metrics.Path != "" {
		mux.Handle("GET "+cfg.Metrics.Path, promhttp.Handler())
	}

	var httpHandler http.Handler = mux
	httpHandler = httpapi.CORSMiddleware(toAPICORS(cfg.CORS))(httpHandler)
	httpHandler = httpapi.AuthMiddleware(toAPIAuth(cfg.Auth))(httpHandler)
	httpHandler = httpapi.RequestLogMiddleware(logger)(httpHandler)

	server := &http.Server{
		Addr:         fmt.Sprintf(":%d", cfg.Server.Port),
		Handler:      httpHandler,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	serverErr := make(chan error, 1)
	go func() {
		logger.Info("server listening", "port", cfg.Server.Port)
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			serverErr <- err
		}
		close(serverErr)
	}()

	quitCh := make(chan os.Signal, 1)
	signal.Notify(quitCh, syscall.SIGINT, syscall.SIGTERM)

	select {
	case <-quitCh:
		logger.Info("shutting down gateway")
	case err := <-serverErr:
		return fmt.Errorf("server error: %w", err)
	}

	shutdownCtx, shutdownCancel := context.WithTimeout(context.Background(), 30*time.Second)
	defer shutdownCancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("server shutdown error", "error", err)
	}
	if _, err := analyticsCollector.Flush(shutdownCtx); err != nil {
		logger.Warn("final analytics flush failed", "error", err)
	}

	logger.Info("gateway stopped")
	return nil
}

func newLogger(cfg config.LoggingConfig) *slog.Logger {
	level := slog.LevelInfo
	switch cfg.Level {
	case "debug":
		level = slog.LevelDebug
	case "warn":
		level = slog.LevelWarn
	case "error":
		level = slog.LevelError
	}
	opts := &slog.HandlerOptions{Level: level}
	if cfg.Format == "text" {
		return slog.New(slog.NewTextHandler(os.Stdout, opts))
	}
	return slog.New(slog.NewJSONHandler(os.Stdout, opts))
}

func toAPICORS(c config.CORSConfig) httpapi.CORSConfig {
	return httpapi.CORSConfig{
		Enabled:          c.Enabled,
		AllowAllOrigins:  c.AllowAllOrigins,
		AllowCredentials: c.AllowCredentials,
		AllowMethods:     c.AllowMethods,
		AllowHeaders:     c.AllowHeaders,
		Allowlist:        c.Allowlist,
		MaxAge:           c.MaxAge,
	}
}

func toAPIAuth(c config.AuthConfig) httpapi.AuthConfig {
	return httpapi.AuthConfig{Enabled: c.Enabled, SkipPaths: c.SkipPaths, Tokens: c.Tokens}
}

// newAdapter constructs the adapter for one enabled source, or nil for an
// unrecognized type (already rejected by config.Validate, but defensive
// here since this runs after hot-reload too).
func newAdapter(src config.SourceConfig) adapters.Adapter {
	switch src.Type {
	case "pricing":
		return adapters.NewPricingAdapter(src.URL)
	case "arena":
		return adapters.NewArenaAdapter(src.URL)
	case "leaderboard":
		return adapters.NewLeaderboardAdapter(src.URL)
	case "local":
		return adapters.NewLocalAdapter(src.URL)
	default:
		return nil
	}
}

// registerJobs wires every enabled benchmark source, the analytics flush
// loop, and metric-store pruning onto the scheduler.
func registerJobs(ctx context.Context, sched *scheduler.Scheduler, store *metricstore.Store, cache *offlinecache.Cache, collector *analytics.Collector, cfg *config.Config, logger *slog.Logger) {
	for _, src := range cfg.Sources {
		if !src.Enabled {
			continue
		}
		adapter := newAdapter(src)
		if adapter == nil {
			continue
		}
		sched.AddJob(ctx, scheduler.Job{
			Name:        "sync:" + adapter.SourceTag(),
			Interval:    adapter.SyncInterval(),
			GracePeriod: adapter.SyncInterval() / 2,
			Run: func(jobCtx context.Context) error {
				return syncSource(jobCtx, store, cache, adapter, logger)
			},
		})
	}

	sched.AddJob(ctx, scheduler.Job{
		Name:        "analytics:flush",
		Interval:    30 * time.Second,
		GracePeriod: 30 * time.Second,
		Run: func(jobCtx context.Context) error {
			_, err := collector.Flush(jobCtx)
			return err
		},
	})

	sched.AddJob(ctx, scheduler.Job{
		Name:        "metricstore:prune",
		Interval:    24 * time.Hour,
		GracePeriod: time.Hour,
		Run: func(jobCtx context.Context) error {
			_, err := store.Prune(jobCtx, 90*24*time.Hour)
			return err
		},
	})
}

// syncSource fetches, validates, and parses one adapter's payload into raw
// metrics and ingests them. A fetch or validation failure falls back to the
// last-good payload in cache rather than leaving the catalog stale with no
// recorded reason; a genuine first-run failure with nothing cached is
// recorded against the source's ingest status and returned.
func syncSource(ctx context.Context, store *metricstore.Store, cache *offlinecache.Cache, adapter adapters.Adapter, logger *slog.Logger) error {
	cacheKey := "source:" + adapter.SourceTag()

	raw, fetchErr := adapter.Fetch(ctx)
	if fetchErr != nil || !adapter.Validate(raw) {
		stale, ok := cache.RetrieveStale(cacheKey)
		if !ok {
			if fetchErr == nil {
				fetchErr = fmt.Errorf("invalid payload from source %s", adapter.SourceTag())
			}
			_ = store.RecordIngestFailure(ctx, adapter.SourceTag(), fetchErr)
			return fetchErr
		}
		logger.Warn("falling back to cached payload", "source", adapter.SourceTag(), "error", fetchErr)
		raw = stale
	} else {
		cache.SetInfinite(cacheKey, raw)
	}

	metrics, err := adapter.Parse(raw)
	if err != nil {
		_ = store.RecordIngestFailure(ctx, adapter.SourceTag(), err)
		return err
	}

	_, err = store.IngestBatch(ctx, adapter.SourceTag(), metrics)
	return err
}
