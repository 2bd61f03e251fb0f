package main

import (
	"context"
	"log/slog"
	"net/url"
	"os"
	"os/signal"
	"strings"
	"syscall"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/joho/godotenv"

	"github.com/rowhouse/rowhouse/internal/config"
	"github.com/rowhouse/rowhouse/internal/core"
	"github.com/rowhouse/rowhouse/internal/files"
	"github.com/rowhouse/rowhouse/internal/logging"
	"github.com/rowhouse/rowhouse/internal/store"
	"github.com/rowhouse/rowhouse/internal/web"
)

func main() {
	// Load .env file if it exists (Overload overwrites existing env vars)
	if err := godotenv.Overload(); err != nil {
		slog.Info("no .env file found, using environment variables")
	} else {
		slog.Info("loaded .env file (overwriting existing env vars)")
	}

	cfg, err := config.Load()
	if err != nil {
		slog.Error("failed to load configuration", "error", err)
		os.Exit(1)
	}

	logging.Setup(cfg.Logging.Level, cfg.Logging.Format)

	slog.Info("configuration loaded",
		"port", cfg.Server.Port,
		"store_engine", cfg.Store.Engine,
		"ingest_max_concurrent", cfg.Ingest.MaxConcurrent,
		"rate_limit_enabled", cfg.Rate.Enabled,
	)

	ctx := context.Background()

	datasets, cleanup, err := openStore(ctx, cfg)
	if err != nil {
		slog.Error("failed to open dataset store", "error", err)
		os.Exit(1)
	}
	defer cleanup()

	dir, err := files.New(cfg.Files.Path())
	if err != nil {
		slog.Error("failed to prepare upload directory", "error", err, "dir", cfg.Files.Path())
		os.Exit(1)
	}

	core.JobTimeout = cfg.Ingest.JobTimeout
	limits := core.Limits{
		DefaultRows:    cfg.Ingest.DefaultRowLimit,
		MaxRows:        cfg.Ingest.MaxRowLimit,
		DefaultPreview: cfg.Ingest.DefaultPreviewRows,
		MaxPreview:     cfg.Ingest.MaxPreviewRows,
	}
	limiter := core.NewIngestLimiter(cfg.Ingest.MaxConcurrent, cfg.Ingest.MaxWaitTime)
	service := core.NewService(datasets, dir, limits, limiter)

	server := web.NewServer(service, cfg)

	// Cancellable context for background work
	jobCtx, cancelJobs := context.WithCancel(context.Background())

	go dir.StartSweeper(jobCtx, cfg.Files.TTL(), cfg.Files.SweepInterval)

	// Graceful shutdown
	go func() {
		sigCh := make(chan os.Signal, 1)
		signal.Notify(sigCh, syscall.SIGINT, syscall.SIGTERM)
		<-sigCh

		slog.Info("shutting down...")

		cancelJobs()

		shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
		defer cancel()

		// Let in-flight ingest jobs land their rows before the listener closes
		status := service.IngestStatus()
		if status.Active > 0 {
			slog.Info("waiting for ingest jobs to complete", "active", status.Active)
			if err := service.WaitForJobs(shutdownCtx); err != nil {
				slog.Warn("ingest jobs did not complete in time", "error", err)
			} else {
				slog.Info("all ingest jobs completed")
			}
		}

		if err := server.Shutdown(shutdownCtx); err != nil {
			slog.Error("shutdown error", "error", err)
		}
	}()

	slog.Info("server starting", "addr", cfg.Server.Addr())
	if err := server.Start(); err != nil {
		slog.Info("server stopped", "error", err)
	}
}

// openStore builds the configured dataset store. The returned cleanup closes
// whatever the engine holds open.
func openStore(ctx context.Context, cfg *config.Config) (core.Store, func(), error) {
	switch strings.ToLower(cfg.Store.Engine) {
	case "postgres":
		pool, err := openPool(ctx, cfg)
		if err != nil {
			return nil, nil, err
		}
		pg := store.NewPostgres(pool)
		if err := pg.EnsureSchema(ctx); err != nil {
			pool.Close()
			return nil, nil, err
		}
		return pg, pool.Close, nil
	default:
		slog.Info("using in-memory dataset store; datasets do not survive restarts")
		return store.NewMemory(), func() {}, nil
	}
}

// openPool connects a configured pgx pool and verifies it.
func openPool(ctx context.Context, cfg *config.Config) (*pgxpool.Pool, error) {
	poolConfig, err := pgxpool.ParseConfig(cfg.Store.URL)
	if err != nil {
		return nil, err
	}

	poolConfig.MaxConns = int32(cfg.Store.MaxConns)
	poolConfig.MinConns = int32(cfg.Store.MinConns)
	poolConfig.MaxConnLifetime = cfg.Store.MaxConnLifetime
	poolConfig.MaxConnIdleTime = cfg.Store.MaxConnIdleTime

	pool, err := pgxpool.NewWithConfig(ctx, poolConfig)
	if err != nil {
		return nil, err
	}
	if err := pool.Ping(ctx); err != nil {
		pool.Close()
		return nil, err
	}

	if u, err := url.Parse(cfg.Store.URL); err == nil {
		slog.Info("connected to database", "name", strings.TrimPrefix(u.Path, "/"))
	} else {
		slog.Info("connected to database")
	}
	return pool, nil
}
