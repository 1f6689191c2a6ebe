// Package main is the entrypoint for the testscout API server.
package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/kiranshivaraju/testscout/internal/api"
	"github.com/kiranshivaraju/testscout/internal/api/handler"
	mw "github.com/kiranshivaraju/testscout/internal/api/middleware"
	"github.com/kiranshivaraju/testscout/internal/api/response"
	"github.com/kiranshivaraju/testscout/internal/app"
	"github.com/kiranshivaraju/testscout/internal/cache"
	"github.com/kiranshivaraju/testscout/internal/config"
	"github.com/kiranshivaraju/testscout/internal/corpus"
	"github.com/kiranshivaraju/testscout/internal/jobs"
	"github.com/kiranshivaraju/testscout/internal/report"
	"github.com/kiranshivaraju/testscout/internal/store"
)

const shutdownTimeout = 30 * time.Second

func main() {
	logger := slog.New(slog.NewJSONHandler(os.Stdout, &slog.HandlerOptions{
		Level: slog.LevelInfo,
	}))
	slog.SetDefault(logger)

	if err := run(); err != nil {
		slog.Error("server failed", "error", err)
		os.Exit(1)
	}
}

func run() error {
	// 1. Load config, failing fast on invalid values
	cfg, err := config.Load()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	slog.Info("config loaded",
		"ai_provider", cfg.AI.Provider,
		"embedding_provider", cfg.Embedding.Provider,
		"strictness", cfg.Analysis.Strictness,
		"env", cfg.Server.Env,
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
	if err := store.RunMigrations(cfg.Database.URL); err != nil {
		return fmt.Errorf("run migrations: %w", err)
	}
	slog.Info("database migrations applied")

	// 4. Create Redis cache
	redisCache, err := cache.NewRedisCache(cfg.Redis.URL)
	if err != nil {
		return fmt.Errorf("create redis cache: %w", err)
	}
	defer redisCache.Close()

	if err := redisCache.Ping(ctx); err != nil {
		return fmt.Errorf("ping redis: %w", err)
	}
	slog.Info("redis connected")

	// 5. Build the pipeline
	components, err := app.Build(cfg, app.Options{})
	if err != nil {
		return err
	}
	defaults, err := app.PipelineConfig(cfg.Analysis)
	if err != nil {
		return fmt.Errorf("analysis defaults: %w", err)
	}

	// 6. Load the corpus. A missing corpus is not fatal: analysis endpoints
	// report CORPUS_UNAVAILABLE until a reload succeeds.
	src := app.CorpusSource(cfg.Corpus.Path)
	loadCorpus(ctx, components.Corpus, src)

	// 7. Create store, report directory and job runner
	pgStore := store.NewPostgresStore(pool)

	reports, err := report.NewDir(cfg.Corpus.ReportDir)
	if err != nil {
		return err
	}

	runner := jobs.NewRunner(components.Orchestrator, pgStore, redisCache, reports, 0)
	resolver := app.Intake(cfg, redisCache)

	// 8. Build router with dependencies
	analysisDefaults := handler.AnalysisDefaults{
		Strictness: defaults.Strictness,
		Overrides:  app.Overrides(cfg.Analysis),
		AreaBoost:  defaults.AreaBoostEnabled,
		TopK:       defaults.TopK,
	}
	catalog := components.Catalog

	deps := api.Dependencies{
		Auth:      mw.NewAuth(pgStore),
		RateLimit: mw.NewRateLimit(redisCache, cfg.Server.RateLimitRPM),

		HealthHandler: healthHandler(pgStore, redisCache, components.Corpus),

		AnalyzeHandler:    handler.NewAnalyzeHandler(components.Orchestrator, resolver, runner, analysisDefaults),
		TriggerJobHandler: handler.NewTriggerJobHandler(runner, resolver, analysisDefaults),
		PollJobHandler:    handler.NewPollJobHandler(runner),
		DuplicatesHandler: handler.NewDuplicatesHandler(components.Orchestrator, nil),

		ListReports: handler.NewListReportsHandler(pgStore),
		GetReport:   handler.NewGetReportHandler(pgStore),
		ReportCSV:   handler.NewReportCSVHandler(pgStore, reports),

		ListAreas:   handler.NewListAreasHandler(catalog),
		DetectAreas: handler.NewDetectAreasHandler(catalog),

		CorpusStats:  handler.NewCorpusStatsHandler(components.Corpus, catalog),
		CorpusReload: handler.NewCorpusReloadHandler(components.Corpus, src, catalog),
		GetTestCase:  handler.NewGetTestCaseHandler(components.Corpus),
		SearchCorpus: handler.NewSearchCorpusHandler(components.Corpus, catalog),

		GetBug:  handler.NewGetBugHandler(resolver),
		GetPull: handler.NewGetPullHandler(resolver),

		CreateKeyHandler: handler.NewCreateKeyHandler(pgStore),
		ListKeysHandler:  handler.NewListKeysHandler(pgStore),
		RevokeKeyHandler: handler.NewRevokeKeyHandler(pgStore),
	}

	router := api.NewRouter(deps)

	// 9. Start HTTP server
	addr := fmt.Sprintf(":%d", cfg.Server.Port)
	srv := &http.Server{
		Addr:         addr,
		Handler:      router,
		ReadTimeout:  30 * time.Second,
		WriteTimeout: 5 * time.Minute,
		IdleTimeout:  60 * time.Second,
	}

	// Start server in background
	errCh := make(chan error, 1)
	go func() {
		slog.Info("server listening", "addr", addr)
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
		close(errCh)
	}()

	// Wait for shutdown signal or server error
	select {
	case err := <-errCh:
		return fmt.Errorf("server error: %w", err)
	case <-ctx.Done():
		slog.Info("shutdown signal received, draining connections...")
	}

	// Graceful shutdown with timeout
	shutdownCtx, cancel := context.WithTimeout(context.Background(), shutdownTimeout)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server shutdown: %w", err)
	}
	if !waitJobs(shutdownCtx, runner) {
		slog.Warn("analysis jobs still running at shutdown")
	}

	slog.Info("server stopped gracefully")
	return nil
}

// loadCorpus publishes the initial corpus snapshot, logging a failure.
func loadCorpus(ctx context.Context, c *corpus.Cache, src corpus.Source) {
	snap, err := c.Reload(ctx, src)
	if err != nil {
		slog.Warn("initial corpus load failed", "source", src.Key(), "error", err)
		return
	}
	d := snap.Diagnostics()
	slog.Info("corpus loaded",
		"source", src.Key(),
		"records", snap.Len(),
		"malformed", d.Malformed,
		"unembedded", snap.Unembedded(),
	)
}

// waitJobs waits for in-flight jobs until ctx is done. It reports whether
// every job finished.
func waitJobs(ctx context.Context, r *jobs.Runner) bool {
	done := make(chan struct{})
	go func() {
		r.Wait()
		close(done)
	}()
	select {
	case <-done:
		return true
	case <-ctx.Done():
		return false
	}
}

type pinger interface {
	Ping(ctx context.Context) error
}

// corpusState is the part of corpus.Cache the health check reads.
type corpusState interface {
	Current() *corpus.Snapshot
}

// healthHandler checks database, cache and corpus availability. A corpus
// that is not loaded is reported but does not fail the check.
func healthHandler(s, c pinger, cc corpusState) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		checks := map[string]string{
			"database": "ok",
			"cache":    "ok",
			"corpus":   "ok",
		}

		if err := s.Ping(r.Context()); err != nil {
			checks["database"] = "degraded"
		}
		if err := c.Ping(r.Context()); err != nil {
			checks["cache"] = "degraded"
		}
		records := 0
		if snap := cc.Current(); snap != nil {
			records = snap.Len()
		} else {
			checks["corpus"] = "not_loaded"
		}

		degraded := checks["database"] != "ok" || checks["cache"] != "ok"
		if degraded {
			response.Error(w, http.StatusServiceUnavailable, "DEGRADED",
				"One or more services degraded", checks)
			return
		}

		response.JSON(w, map[string]any{
			"status":         "ok",
			"services":       checks,
			"corpus_records": records,
		})
	}
}
