package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/smdhc/parcerias/internal/app"
	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/platform/cache"
	"github.com/smdhc/parcerias/internal/platform/db"
	"github.com/smdhc/parcerias/internal/shared"
	"github.com/smdhc/parcerias/jobs"
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

	logger := app.NewLogger(cfg)

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

	empenhosRepo := empenhos.NewRepository(pool)
	empenhosCache := empenhos.NewCache(redisClient, cfg.CacheTTL)
	empenhosService := empenhos.NewService(empenhosRepo, empenhosCache, logger)

	refreshJob := jobs.NewEspelhoRefreshJob(pool, empenhosService, logger, nil)

	idemStore := shared.NewIdempotencyStore(pool)
	cleanupJob := jobs.NewIdemCleanupJob(idemStore, logger, nil, cfg.IdemRetention)

	refreshTask, err := jobs.NewEspelhoRefreshTask(jobs.EspelhoRefreshPayload{})
	if err != nil {
		logger.Error("build refresh task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskTypeEspelhoRefresh, Handler: refreshJob.Handle},
			{Type: jobs.TaskTypeIdemCleanup, Handler: cleanupJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			// SOF exports land overnight; reload the mirror before the first
			// operators arrive.
			{Spec: "0 5 * * *", Task: refreshTask, Options: []asynq.Option{asynq.MaxRetry(3)}},
			// Weekly key expiry, Sunday before the mirror reload.
			{Spec: "30 4 * * 0", Task: jobs.NewIdemCleanupTask()},
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
