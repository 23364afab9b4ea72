package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"
	"github.com/joho/godotenv"

	"github.com/odyssey-erp/gstbilling/internal/app"
	"github.com/odyssey-erp/gstbilling/internal/identity"
	jobmetrics "github.com/odyssey-erp/gstbilling/internal/jobs"
	"github.com/odyssey-erp/gstbilling/internal/ledger"
	"github.com/odyssey-erp/gstbilling/internal/notify"
	"github.com/odyssey-erp/gstbilling/internal/platform/cache"
	"github.com/odyssey-erp/gstbilling/internal/platform/db"
	"github.com/odyssey-erp/gstbilling/internal/platform/lock"
	"github.com/odyssey-erp/gstbilling/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping worker startup")
		return
	}
	_ = godotenv.Load()

	ctx, stop := signal.NotifyContext(context.Background(), syscall.SIGINT, syscall.SIGTERM)
	defer stop()

	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}

	logger := app.NewLogger(cfg)

	pool, err := db.New(ctx, cfg.PGDSN, cfg.PGMaxConns)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
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

	metrics := jobmetrics.NewMetrics(nil)
	locker := lock.New(redisClient, cfg.MergeLockTTL)
	engine := ledger.NewEngine()
	resolver := identity.NewResolver(identity.NewNormalizer(cfg.PhoneRegion), engine)

	ledgerRepo := ledger.NewRepository(pool)
	ledgerService := ledger.NewService(ledgerRepo, engine, nil, ledger.NewMetrics(nil), logger)
	identityService := identity.NewService(identity.NewRepository(pool), resolver, identity.NewMerger(engine), locker, logger)

	deliverer := notify.NewDeliverer(notify.NewRepository(pool), redisClient, logger)
	recomputeJob := jobs.NewRecomputeAllJob(ledgerService, ledgerRepo, locker, cfg.RecomputeConcurrency, logger, metrics)
	mergeJob := jobs.NewMergeDuplicatesJob(identityService, logger, metrics)

	recomputeTask, err := jobs.NewRecomputeTask(0)
	if err != nil {
		logger.Error("build recompute task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts:   asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:      logger,
		Concurrency: cfg.WorkerConcurrency,
		NotifyQueue: cfg.NotifyQueue,
		Handlers: []jobs.TaskHandler{
			{Type: notify.TaskTypeDeliver, Handler: deliverer.HandleTask},
			{Type: jobs.TaskRecomputeAll, Handler: recomputeJob.Handle},
			{Type: jobs.TaskMergeDuplicates, Handler: mergeJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: cfg.RecomputeCron, Task: recomputeTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && err != context.Canceled {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}
