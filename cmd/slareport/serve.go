package main

import (
	"context"
	"errors"
	"flag"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"go.uber.org/zap"

	"github.com/bayneri/slareport/internal/analyze"
	"github.com/bayneri/slareport/internal/api"
	"github.com/bayneri/slareport/internal/config"
	"github.com/bayneri/slareport/internal/jobs"
	"github.com/bayneri/slareport/internal/logging"
	"github.com/bayneri/slareport/internal/metrics"
	"github.com/bayneri/slareport/internal/monitoring"
	"github.com/bayneri/slareport/internal/spec"
)

func runServe(args []string) error {
	fs := flag.NewFlagSet("serve", flag.ContinueOnError)
	fs.SetOutput(os.Stderr)
	if err := fs.Parse(args); err != nil {
		return err
	}

	cfg, err := config.LoadConfig()
	if err != nil {
		return fmt.Errorf("load config: %w", err)
	}
	logger, err := logging.New(cfg.Logging)
	if err != nil {
		return fmt.Errorf("init logger: %w", err)
	}
	defer logger.Sync()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	types, err := loadTypes(cfg.ServiceTypesFile)
	if err != nil {
		return err
	}
	registry := spec.NewRegistry(types)
	if cfg.ServiceTypesFile != "" {
		go func() {
			if err := spec.Watch(ctx, cfg.ServiceTypesFile, logger, registry.Replace); err != nil {
				logger.Error("service types watcher stopped", zap.Error(err))
			}
		}()
	}

	metricsService := metrics.NewService()

	gcp, err := monitoring.NewGCPProvider(ctx)
	if err != nil {
		return err
	}
	defer gcp.Close()
	provider := monitoring.WithBreaker(
		monitoring.WithRateLimit(gcp, cfg.Monitoring.QPS, cfg.Monitoring.Burst),
		monitoring.BreakerSettings{
			Name:                "cloud-monitoring",
			ConsecutiveFailures: cfg.Monitoring.BreakerFailures,
			OpenTimeout:         cfg.Monitoring.BreakerTimeout,
		},
		logger,
	)

	store, closeStore, err := openStore(ctx, cfg, logger)
	if err != nil {
		return err
	}
	defer closeStore()

	fetcher := analyze.NewFetcher(provider, registry, analyze.FetcherConfig{
		Timeout:  cfg.Jobs.FetchTimeout,
		Logger:   logger,
		Recorder: metricsService,
	})
	orchestrator := analyze.NewOrchestrator(fetcher, cfg.Jobs.MaxWorkersCap, logger)
	runner := jobs.NewRunner(store, orchestrator, metricsService, logger)

	handler := api.NewReportHandler(runner, store, registry, api.HandlerConfig{
		Defaults: spec.Defaults{
			WindowDays: cfg.Jobs.DefaultWindowDays,
			MaxWorkers: cfg.Jobs.DefaultMaxWorkers,
		},
		MaxWorkersCap: cfg.Jobs.MaxWorkersCap,
		ListLimit:     cfg.Jobs.ListLimit,
		ListMax:       cfg.Jobs.ListMax,
	}, logger)
	router := api.NewRouter(handler, metricsService, metricsService.Handler(), logger)

	srv := &http.Server{
		Addr:         cfg.Server.Addr(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
	}

	serveErr := make(chan error, 1)
	go func() {
		logger.Info("starting server",
			zap.String("addr", srv.Addr),
			zap.String("store", cfg.Store.Backend))
		if err := srv.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			serveErr <- err
		}
		close(serveErr)
	}()

	select {
	case err := <-serveErr:
		if err != nil {
			return fmt.Errorf("server failed: %w", err)
		}
	case <-ctx.Done():
	}

	logger.Info("shutting down server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), cfg.Server.ShutdownTimeout)
	defer cancel()
	if err := srv.Shutdown(shutdownCtx); err != nil {
		logger.Error("server forced to shutdown", zap.Error(err))
	}
	if err := runner.Wait(shutdownCtx); err != nil {
		logger.Warn("jobs still running at shutdown", zap.Error(err))
	}
	logger.Info("server exited")
	return nil
}

// openStore builds the configured job store and a func releasing it.
func openStore(ctx context.Context, cfg *config.Config, logger *zap.Logger) (jobs.Store, func(), error) {
	switch cfg.Store.Backend {
	case config.BackendRedis:
		client, err := jobs.NewRedisClient(ctx, cfg.Redis.Addr, cfg.Redis.Password, cfg.Redis.DB)
		if err != nil {
			return nil, nil, err
		}
		store := jobs.NewRedisStore(client, cfg.Redis.KeyPrefix, cfg.Redis.JobTTL, logger)
		return store, func() { client.Close() }, nil
	case config.BackendPostgres:
		db, err := jobs.OpenPostgres(ctx, cfg.Postgres.DSN, cfg.Postgres.MaxConnections)
		if err != nil {
			return nil, nil, err
		}
		store := jobs.NewPostgresStore(db, logger)
		if err := store.Migrate(ctx); err != nil {
			db.Close()
			return nil, nil, fmt.Errorf("migrate job store: %w", err)
		}
		return store, func() { db.Close() }, nil
	default:
		return jobs.NewMemoryStore(), func() {}, nil
	}
}
