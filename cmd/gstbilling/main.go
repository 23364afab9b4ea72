package main

import (
	"context"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/gstbilling/internal/app"
	"github.com/odyssey-erp/gstbilling/internal/billing"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/ledger/export"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/observability"
	"github.com/odyssey-erp/gstbilling/internal/platform/cache"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/internal/platform/migrate"
	"github.com/odyssey-erp/gstbilling/internal/sales/quotations"
	"github.com/odyssey-erp/gstbilling/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
		return
	}
	_ = godotenv.Load()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)

	if len(os.Args) > 1 && os.Args[1] == "migrate" {
		if err := runMigrations(cfg, logger, os.Args[2:]); err != nil {
			logger.Error("migrate", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect postgres", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	redisClient, err := cache.New(ctx, cfg.RedisAddr)
	if err != nil {
		logger.Error("connect redis", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := redisClient.Close(); err != nil {
			logger.Warn("redis close", slog.Any("error", err))
		}
	}()

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init job client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobClient.Close(); err != nil {
			logger.Warn("job client close", slog.Any("error", err))
		}
	}()
	inspector := asynq.NewInspector(redisOpts)
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	metrics := observability.NewMetrics()
	sink := notify.NewAsynqSink(jobClient.Enqueuer(), cfg.NotifyQueue, logger)
	locker := lock.New(redisClient, cfg.MergeLockTTL)

	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer(cfg.PhoneRegion), engine)

	ledgerService := ledger.NewService(ledger.NewRepository(pool), engine, sink, ledger.NewMetrics(metrics.Registerer()), logger)
	identityService := identity.NewService(identity.NewRepository(pool), resolver, identity.NewMerger(engine), locker, logger)
	invoiceService := billing.NewService(billing.NewRepository(pool), resolver, engine, sink, logger)
	quotationService := quotations.NewService(quotations.NewRepository(pool), invoiceService, resolver, sink, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		LedgerHandler:     ledger.NewHandler(logger, ledgerService, export.NewExporter()),
		IdentityHandler:   identity.NewHandler(identityService),
		BillingHandler:    billing.NewHandler(logger, invoiceService),
		QuotationsHandler: quotations.NewHandler(logger, quotationService),
		JobHandler:        jobs.NewHandler(inspector, logger),
		Metrics:           metrics,
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	if err := server.Shutdown(shutdownCtx); err != nil {
		logger.Error("graceful shutdown", slog.Any("error", err))
	}
}

// runMigrations applies the schema; "migrate down" rolls it back.
func runMigrations(cfg *app.Config, logger *slog.Logger, args []string) error {
	m, err := migrate.Open(cfg.PGDSN, cfg.MigrationsPath, logger)
	if err != nil {
		return err
	}
	defer func() {
		if err := m.Close(); err != nil {
			logger.Warn("migrator close", slog.Any("error", err))
		}
	}()
	if len(args) > 0 && args[0] == "down" {
		return m.Down()
	}
	return m.Up()
}
