package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"golang.org/x/sync/errgroup"

	"github.com/cabinetworks/mto/internal/app"
	jobmetrics "github.com/cabinetworks/mto/internal/jobs"
	"github.com/cabinetworks/mto/internal/mto"
	"github.com/cabinetworks/mto/internal/observability"
	"github.com/cabinetworks/mto/internal/platform/cache"
	"github.com/cabinetworks/mto/internal/platform/db"
	"github.com/cabinetworks/mto/internal/shared"
	"github.com/cabinetworks/mto/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg).With(slog.String("process", "worker"))

	pool, err := db.New(ctx, cfg.PGDSN, db.PoolOptions{
		MaxConns:         cfg.PGMaxConns,
		LockTimeout:      cfg.PGLockTimeout,
		StatementTimeout: cfg.PGStatementTimeout,
	})
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	// The worker cannot run without its queue.
	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil || redisClient == nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	statusMetrics := observability.NewMetrics()
	metrics := jobmetrics.NewMetrics(statusMetrics.Registerer())

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	var notifier shared.Notifier = shared.NoopNotifier{}
	if cfg.NotificationsEnabled {
		client := jobs.NewClient(redisOpts)
		defer client.Close()
		notifier = client
	}

	resolver := mto.NewResolver(mto.NewRepository(pool), statusMetrics, notifier, logger.With(slog.String("component", "resolver")))

	notifyJob := &jobs.NotifyJob{Sink: jobs.LogSink{Logger: logger}, Metrics: metrics}
	resolveJob := &jobs.ResolveStatusJob{
		Resolver: resolver,
		Redis:    redisClient,
		LockTTL:  cfg.ResolveLockTTL,
		Logger:   logger,
		Metrics:  metrics,
	}
	sweepJob := &jobs.ResolveSweepJob{Sweeper: resolver, Logger: logger, Metrics: metrics}
	cleanupJob := &jobs.IdempotencyCleanupJob{
		Store:     shared.NewIdempotencyStore(pool),
		Retention: cfg.IdempotencyRetention,
		Metrics:   metrics,
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   redisOpts,
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskNotify, Handler: notifyJob.Handle},
			{Type: jobs.TaskResolveStatus, Handler: resolveJob.Handle},
			{Type: jobs.TaskResolveSweep, Handler: sweepJob.Handle},
			{Type: jobs.TaskIdempotencyCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.ResolveSweepCron, Task: jobs.NewResolveSweepTask()},
			{Spec: "30 3 * * *", Task: jobs.NewIdempotencyCleanupTask()},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.Go(func() error { return worker.Run(gctx) })
	if cfg.WorkerMetricsAddr != "" {
		mux := http.NewServeMux()
		mux.Handle("/metrics", statusMetrics.Handler())
		server := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: mux, ReadTimeout: cfg.AppReadTimeout}
		g.Go(func() error {
			if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
				return err
			}
			return nil
		})
		g.Go(func() error {
			<-gctx.Done()
			return server.Close()
		})
	}
	if err := g.Wait(); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
