package main

import (
	"context"
	"errors"
	"fmt"
	"io"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-crm/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-crm/internal/app"
	"github.com/odyssey-erp/odyssey-crm/internal/crm"
	"github.com/odyssey-erp/odyssey-crm/internal/observability"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-crm/internal/platform/db"
	"github.com/odyssey-erp/odyssey-crm/internal/reconcile"
	"github.com/odyssey-erp/odyssey-crm/internal/reporting"
	"github.com/odyssey-erp/odyssey-crm/internal/salesdate"
	"github.com/odyssey-erp/odyssey-crm/internal/skyline"
	"github.com/odyssey-erp/odyssey-crm/jobs"
)

const usage = `usage: odyssey [serve|migrate <up|down>|jobs <trigger [since]|stats|scheduled>]`

func main() {
	os.Exit(run(os.Args[1:], os.Stdout, os.Stderr))
}

// run returns the process exit code so deferred cleanup completes before exit.
func run(args []string, stdout, stderr io.Writer) int {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	cmd := "serve"
	if len(args) > 0 {
		cmd, args = args[0], args[1:]
	}

	switch cmd {
	case "serve":
		err = serve(ctx, cfg, logger)
	case "migrate":
		err = migrateCmd(cfg, logger, args)
	case "jobs":
		jobsCLI, cliErr := cli.NewJobsCLI(cfg.RedisAddr, cfg.InvoiceSyncLockTTL)
		if cliErr != nil {
			err = cliErr
			break
		}
		defer func() {
			if err := jobsCLI.Close(); err != nil {
				logger.Warn("jobs cli close", slog.Any("error", err))
			}
		}()
		return jobsCLI.Run(ctx, args, stdout, stderr)
	default:
		_, _ = fmt.Fprintln(stderr, usage)
		return 2
	}
	if err != nil && !errors.Is(err, context.Canceled) {
		logger.Error(cmd, slog.Any("error", err))
		return 1
	}
	return 0
}

func migrateCmd(cfg *app.Config, logger *slog.Logger, args []string) error {
	if len(args) != 1 || (args[0] != "up" && args[0] != "down") {
		return errors.New(usage)
	}
	migrator, err := db.NewMigrator(cfg.PGDSN, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := migrator.Close(); err != nil {
			logger.Warn("migrator close", slog.Any("error", err))
		}
	}()
	if args[0] == "down" {
		return migrator.Down()
	}
	return migrator.Up()
}

func serve(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if cfg.DBAutoMigrate {
		if err := migrateCmd(cfg, logger, []string{"up"}); err != nil {
			return fmt.Errorf("auto migrate: %w", err)
		}
	}

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return fmt.Errorf("connect postgres: %w", err)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		return fmt.Errorf("connect redis: %w", err)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	store := crm.NewRepository(pool)
	metrics := observability.NewMetrics()
	gateway := metrics.InstrumentGateway(skyline.New(ctx, cfg.SkylineOptions()))
	locker := cache.NewRedisLocker(redisClient, cfg.InvoiceSyncLockTTL, cfg.InvoiceSyncLockWait)
	engine := reconcile.NewEngine(store, gateway, locker, logger, reconcile.Options{Lookback: cfg.InvoiceSyncLookback})

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()
	jobClient, err := jobs.NewClient(redisOpts, cfg.InvoiceSyncLockTTL)
	if err != nil {
		return fmt.Errorf("init job client: %w", err)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:           logger,
		Config:           cfg,
		CRMHandler:       crm.NewHandler(logger, crm.NewService(store, logger)),
		SalesDateHandler: salesdate.NewHandler(logger, salesdate.NewWorkflow(store, gateway, logger)),
		ReconcileHandler: reconcile.NewHandler(logger, engine, cfg.SyncTriggerTokenHash),
		ReportingHandler: reporting.NewHandler(logger, reporting.NewService(store)),
		JobHandler:       jobs.NewHandler(inspector, jobClient, logger),
		Metrics:          metrics,
		Ready:            pool.Ping,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	errCh := make(chan error, 1)
	go func() {
		logger.Info("starting http server",
			slog.String("addr", cfg.AppAddr),
			slog.Bool("skyline_mock", cfg.SkylineMockMode))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- err
		}
	}()

	select {
	case <-ctx.Done():
	case err := <-errCh:
		return fmt.Errorf("http server: %w", err)
	}
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
