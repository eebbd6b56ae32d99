// Package main is the entrypoint for the pricewatch API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"io/fs"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/joho/godotenv"
	"github.com/kiranshivaraju/pricewatch/internal/api"
	"github.com/kiranshivaraju/pricewatch/internal/api/handler"
	mw "github.com/kiranshivaraju/pricewatch/internal/api/middleware"
	"github.com/kiranshivaraju/pricewatch/internal/api/response"
	"github.com/kiranshivaraju/pricewatch/internal/cache"
	"github.com/kiranshivaraju/pricewatch/internal/config"
	"github.com/kiranshivaraju/pricewatch/internal/elasticity"
	"github.com/kiranshivaraju/pricewatch/internal/jobs"
	"github.com/kiranshivaraju/pricewatch/internal/simulation"
	"github.com/kiranshivaraju/pricewatch/internal/store"
	"github.com/kiranshivaraju/pricewatch/internal/velocity"
	"github.com/kiranshivaraju/pricewatch/internal/watchlist"
)

const shutdownTimeout = 30 * time.Second

var logLevel = new(slog.LevelVar)

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: logLevel,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config. A missing .env file is fine; the environment wins over it.
	if err := godotenv.Load(); err != nil && !errors.Is(err, fs.ErrNotExist) {
		return fmt.Errorf("load .env: %w", err)
	}
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	if cfg.Server.Env == "development" {
		logLevel.Set(slog.LevelDebug)
	}
	slog.Info("config loaded",
		"env", cfg.Server.Env,
		"elasticity_source", elasticitySource(cfg.Elasticity),
		"window_days", cfg.Watchlist.WindowDays,
	)

	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	// 2. Connect to database
	pool, err := store.Connect(ctx, cfg.Database)
	if err != nil {
		return fmt.Errorf("connect database: %w", err)
	}
	defer pool.Close()
	slog.Info("database connected")

	// 3. Run migrations
	if err := store.RunMigrations(cfg.Database.URL, cfg.Database.MigrationsDir); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL, cache.WithNamespace("pricewatch"))
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Create store and services
	pgStore := store.NewPostgresStore(pool)
	estimator := newEstimator(cfg.Elasticity, pgStore, redisCache)
	manager := jobs.NewManager(pgStore, pgStore, redisCache, watchlist.FlagClassifier{}, jobsConfig(cfg.Watchlist))
	simulator := simulation.NewService(simulationConfig(cfg.Simulation), pgStore, estimator, cfg.Watchlist.WindowDays)

	// 6. Build router with dependencies
	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitPerMinute),

		HealthHandler: healthHandler(pgStore, redisCache),

		SubmitJobHandler:  handler.NewSubmitJobHandler(manager),
		JobStatusHandler:  handler.NewJobStatusHandler(manager),
		CancelJobHandler:  handler.NewCancelJobHandler(manager),
		JobResultsHandler: handler.NewJobResultsHandler(manager),
		SimulateHandler:   handler.NewSimulateHandler(simulator),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 7. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  15 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Stop HTTP first so no job is submitted while workers drain.
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := shutdown(shutdownCtx, srv, manager); err != nil {
		return err
	}

	slog.Info("server stopped gracefully")
	return nil
}

type shutdowner interface {
	Shutdown(ctx context.Context) error
}

// shutdown stops the HTTP server and then the job manager. The manager is
// drained even when the server fails to stop cleanly.
func shutdown(ctx context.Context, srv, manager shutdowner) error {
	var errs []error
	if err := srv.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("server shutdown: %w", err))
	}
	if err := manager.Shutdown(ctx); err != nil {
		errs = append(errs, fmt.Errorf("job manager shutdown: %w", err))
	}
	return errors.Join(errs...)
}

// newEstimator picks the remote estimator when one is configured, otherwise the
// precomputed cluster table, and puts the cache in front of either.
func newEstimator(cfg config.ElasticityConfig, src elasticity.ClusterSource, c cache.Cache) elasticity.Estimator {
	var next elasticity.Estimator = elasticity.NewSourceEstimator(src)
	if cfg.BaseURL != "" {
		next = elasticity.NewHTTPClient(cfg.BaseURL, cfg.APIKey, cfg.Timeout)
	}
	return elasticity.NewCachedEstimator(next, c, cfg.CacheTTL)
}

func elasticitySource(cfg config.ElasticityConfig) string {
	if cfg.BaseURL != "" {
		return "http"
	}
	return "table"
}

func jobsConfig(cfg config.WatchlistConfig) jobs.Config {
	jc := jobs.DefaultConfig()
	jc.BatchSize = cfg.BatchSize
	jc.WindowDays = cfg.WindowDays
	jc.CycleDays = cfg.CycleDays
	jc.Thresholds = velocity.Thresholds{
		Critico: cfg.SeverityCritico,
		Bajo:    cfg.SeverityBajo,
		Alto:    cfg.SeverityAlto,
	}
	return jc
}

func simulationConfig(cfg config.SimulationConfig) simulation.Config {
	sc := simulation.DefaultConfig()
	sc.DefaultHorizonDays = cfg.HorizonDays
	sc.FallbackPaceFactor = cfg.FallbackPaceFactor
	sc.FallbackBase = cfg.FallbackBase
	sc.CutBoostScale = cfg.CutBoostScale
	sc.LowSellThroughPct = cfg.LowSellThroughPct
	sc.MinMarginPct = cfg.MinMarginPct
	return sc
}

type pinger interface {
	Ping(ctx context.Context) error
}

// healthHandler checks database and cache connectivity.
func healthHandler(db, c pinger) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
		}

		if err := db.Ping(r.Context()); err != nil {
			slog.Warn("health check: database unreachable", "error", err)
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			slog.Warn("health check: cache unreachable", "error", err)
			checks["cache"] = "degraded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":   "ok",
			"services": checks,
		})
	}
}
