package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"strings"
	"syscall"
	"time"

	"github.com/google/uuid"

	"github.com/p-n-ai/pai-courseware/internal/catalog"
	"github.com/p-n-ai/pai-courseware/internal/importer"
	"github.com/p-n-ai/pai-courseware/internal/platform/cache"
	"github.com/p-n-ai/pai-courseware/internal/platform/config"
	"github.com/p-n-ai/pai-courseware/internal/platform/database"
	"github.com/p-n-ai/pai-courseware/internal/progress"
	"github.com/p-n-ai/pai-courseware/internal/report"
)

func main() {
	slog.SetDefault(slog.New(slog.NewJSONHandler(os.Stdout, nil)))

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load config", "error", err)
		os.Exit(1)
	}
	if err := cfg.Validate(); err != nil {
		slog.Error("invalid config", "error", err)
		os.Exit(1)
	}
	slog.SetDefault(newLogger(cfg.Log, os.Stdout))

	// Graceful shutdown on SIGTERM/SIGINT.
	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGTERM, syscall.SIGINT)
	defer stop()

	if err := run(ctx, cfg); err != nil {
		slog.Error("server error", "error", err)
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *config.Config) error {
	db, err := database.New(ctx, cfg.Database.URL, cfg.Database.MaxConns, cfg.Database.MinConns)
	if err != nil {
		return err
	}
	defer db.Close()

	if cfg.Database.Migrate {
		if err := db.Migrate(ctx); err != nil {
			return err
		}
		slog.Info("database migrated")
	}

	checks := map[string]checker{"database": db}

	var summaries catalog.SummaryCache = catalog.NopSummaryCache{}
	if cfg.Cache.Enabled {
		c, err := cache.New(ctx, cfg.Cache.URL)
		if err != nil {
			return err
		}
		defer c.Close()
		summaries = catalog.NewRedisSummaryCache(c, cfg.Cache.SummaryTTL)
		checks["cache"] = c
		slog.Info("summary cache enabled", "ttl", cfg.Cache.SummaryTTL)
	}

	catalogStore, err := catalog.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}
	progressStore, err := progress.NewPostgresStore(db.Pool)
	if err != nil {
		return err
	}

	svc := catalog.NewService(catalog.ServiceConfig{
		Store:    catalogStore,
		Activity: progressStore,
		Cache:    summaries,
	})
	agg := catalog.NewAggregator(catalog.AggregatorConfig{Store: catalogStore, Cache: summaries})
	engine := progress.NewEngine(progress.EngineConfig{
		Catalog:     catalogStore,
		Store:       progressStore,
		Events:      progress.NewPostgresEventLogger(db.Pool),
		PassPercent: cfg.Quiz.PassPercent,
	})

	if cfg.Catalog.SeedPath != "" {
		if err := seedCatalog(ctx, svc, cfg.Catalog); err != nil {
			return err
		}
	}

	srv := &http.Server{
		Addr: fmt.Sprintf("%s:%d", cfg.Server.Host, cfg.Server.Port),
		Handler: newMux(&server{
			checks: checks,
			reports: report.New(report.Config{
				Catalog:    svc,
				Aggregator: agg,
				Progress:   engine,
			}),
		}),
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		slog.Info("server starting", "addr", srv.Addr)
		if err := srv.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
		close(errCh)
	}()

	select {
	case err := <-errCh:
		return err
	case <-ctx.Done():
	}
	slog.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()

	if err := srv.Shutdown(shutdownCtx); err != nil {
		slog.Error("shutdown error", "error", err)
	}
	return nil
}

func seedCatalog(ctx context.Context, svc *catalog.Service, cfg config.CatalogConfig) error {
	orgID, err := uuid.Parse(cfg.OrgID)
	if err != nil {
		return fmt.Errorf("parse LEARN_CATALOG_ORG_ID: %w", err)
	}
	im, err := importer.New(importer.Config{Service: svc, OrgID: orgID})
	if err != nil {
		return err
	}
	if _, err := im.ImportDir(ctx, cfg.SeedPath); err != nil {
		return fmt.Errorf("seed catalog: %w", err)
	}
	return nil
}

func newLogger(cfg config.LogConfig, w io.Writer) *slog.Logger {
	var level slog.Level
	if err := level.UnmarshalText([]byte(cfg.Level)); err != nil {
		level = slog.LevelInfo
	}
	opts := &slog.HandlerOptions{Level: level}
	if strings.EqualFold(cfg.Format, "text") {
		return slog.New(slog.NewTextHandler(w, opts))
	}
	return slog.New(slog.NewJSONHandler(w, opts))
}
