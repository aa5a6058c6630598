package main

import (
	"context"
	"errors"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	jobmetrics "github.com/odyssey-erp/odyssey-crm/internal/jobs"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/reconcile"
	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

func main() {
	os.Exit(run())
}

func run() int {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return 0
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		return 1
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		return 1
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		return 1
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	jobMetrics := jobmetrics.NewMetrics(metrics.Registerer())

	store := crm.NewRepository(pool)
	gateway := metrics.InstrumentGateway(skyline.New(ctx, cfg.SkylineOptions()))
	locker := cache.NewRedisLocker(redisClient, cfg.InvoiceSyncLockTTL, cfg.InvoiceSyncLockWait)
	engine := reconcile.NewEngine(store, gateway, locker, logger, reconcile.Options{Lookback: cfg.InvoiceSyncLookback})
	syncJob := jobs.NewInvoiceSyncJob(engine, logger, jobMetrics)

	syncTask, err := jobs.NewInvoiceSyncTask(nil)
	if err != nil {
		logger.Error("build invoice sync task", slog.Any("error", err))
		return 1
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskInvoiceSync, Handler: syncJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.InvoiceSyncCron(), Task: syncTask, Options: jobs.InvoiceSyncOptions(cfg.InvoiceSyncLockTTL)},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		return 1
	}

	metricsServer := &http.Server{Addr: cfg.WorkerMetricsAddr, Handler: metrics.Handler(), ReadHeaderTimeout: 5 * time.Second}
	go func() {
		if err := metricsServer.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Warn("worker metrics server", slog.Any("error", err))
		}
	}()
	defer func() {
		shutdownCtx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
		defer cancel()
		_ = metricsServer.Shutdown(shutdownCtx)
	}()

	logger.Info("worker started",
		slog.String("invoice_sync_cron", cfg.InvoiceSyncCron()),
		slog.Bool("skyline_mock", cfg.SkylineMockMode))
	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		return 1
	}
	return 0
}
