package app

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/jackc/pgx/v5/pgxpool"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/redis/go-redis/v9"

	"github.com/wisbric/companyid/internal/config"
	"github.com/wisbric/companyid/internal/httpserver"
	"github.com/wisbric/companyid/internal/platform"
	"github.com/wisbric/companyid/internal/telemetry"
	"github.com/wisbric/companyid/pkg/eqc"
	"github.com/wisbric/companyid/pkg/mapping"
	"github.com/wisbric/companyid/pkg/queue"
)

// Run is the main application entry point. It reads config, connects to
// infrastructure, and starts the requested mode.
func Run(ctx context.Context, cfg *config.Config) error {
	logger := telemetry.NewLogger(cfg.LogFormat, cfg.LogLevel)
	slog.SetDefault(logger)

	logger.Info("starting companyid",
		"mode", cfg.Mode,
		"listen", cfg.ListenAddr(),
	)

	if cfg.Mode == "migrate" {
		if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
			return fmt.Errorf("running migrations: %w", err)
		}
		logger.Info("migrations applied")
		return nil
	}

	pool, err := platform.NewPostgresPool(ctx, cfg.DatabaseURL)
	if err != nil {
		return fmt.Errorf("connecting to database: %w", err)
	}
	defer pool.Close()

	var rdb *redis.Client
	if cfg.RedisURL != "" {
		rdb, err = platform.NewRedisClient(ctx, cfg.RedisURL)
		if err != nil {
			return fmt.Errorf("connecting to redis: %w", err)
		}
		defer func() {
			if err := rdb.Close(); err != nil {
				logger.Error("closing redis", "error", err)
			}
		}()
	} else {
		logger.Info("redis not configured, queue workers rely on polling")
	}

	if err := platform.RunMigrations(cfg.DatabaseURL, cfg.MigrationsDir); err != nil {
		return fmt.Errorf("running migrations: %w", err)
	}
	logger.Info("migrations applied")

	metricsReg := telemetry.NewMetricsRegistry(telemetry.All()...)

	switch cfg.Mode {
	case "worker":
		return runWorker(ctx, cfg, logger, pool, rdb, metricsReg)
	default:
		return fmt.Errorf("unknown mode: %s", cfg.Mode)
	}
}

// runWorker starts the queue drainer engine alongside the ops HTTP server
// and blocks until the context is cancelled.
func runWorker(ctx context.Context, cfg *config.Config, logger *slog.Logger, pool *pgxpool.Pool, rdb *redis.Client, metricsReg *prometheus.Registry) error {
	queueStore := queue.NewStore(pool)
	mappingStore := mapping.NewStore(pool)

	if cfg.EqcToken == "" {
		return fmt.Errorf("worker mode requires EQC_TOKEN")
	}
	searcher := eqc.NewClient(cfg.EqcBaseURL, cfg.EqcToken, time.Duration(cfg.EqcTimeout)*time.Second, logger)

	engine := queue.NewEngine(queueStore, mappingStore, searcher, rdb, logger, queue.EngineMetrics{
		ProcessedTotal: telemetry.QueueRequestsProcessedTotal,
		PendingDepth:   telemetry.QueuePendingDepth,
	})

	srv := httpserver.NewServer(logger, pool, queueStore, metricsReg)
	httpSrv := &http.Server{
		Addr:         cfg.ListenAddr(),
		Handler:      srv,
		ReadTimeout:  10 * time.Second,
		WriteTimeout: 30 * time.Second,
		IdleTimeout:  60 * time.Second,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("ops server listening", "addr", cfg.ListenAddr())
		if err := httpSrv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- fmt.Errorf("http server: %w", err)
		}
	}()

	engineErr := make(chan error, 1)
	go func() {
		engineErr <- engine.Run(ctx)
	}()

	select {
	case <-ctx.Done():
		logger.Info("shutting down worker")
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
		defer cancel()
		if err := httpSrv.Shutdown(shutdownCtx); err != nil {
			logger.Error("shutting down ops server", "error", err)
		}
		return <-engineErr
	case err := <-errCh:
		return err
	case err := <-engineErr:
		return err
	}
}
