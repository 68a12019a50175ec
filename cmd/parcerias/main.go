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

	"github.com/smdhc/parcerias/internal/app"
	"github.com/smdhc/parcerias/internal/cronograma"
	"github.com/smdhc/parcerias/internal/empenhos"
	"github.com/smdhc/parcerias/internal/observability"
	"github.com/smdhc/parcerias/internal/parcelas"
	"github.com/smdhc/parcerias/internal/platform/cache"
	"github.com/smdhc/parcerias/internal/platform/db"
	"github.com/smdhc/parcerias/internal/shared"
	"github.com/smdhc/parcerias/internal/termos"
	"github.com/smdhc/parcerias/jobs"
)

func main() {
	if app.InTestMode() {
		slog.Default().Info("test mode detected, skipping runtime startup")
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

	metrics := observability.NewMetrics()
	audit := shared.NewAuditLogger(pool)
	idem := shared.NewIdempotencyStore(pool)

	empenhosRepo := empenhos.NewRepository(pool)
	empenhosCache := empenhos.NewCache(redisClient, cfg.CacheTTL)
	empenhosService := empenhos.NewService(empenhosRepo, empenhosCache, logger)
	empenhosHandler := empenhos.NewHandler(logger, empenhosService)

	parcelasRepo := parcelas.NewRepository(pool)
	parcelasService := parcelas.NewService(parcelasRepo, empenhosService, audit, idem, logger)
	parcelasHandler := parcelas.NewHandler(logger, parcelasService)

	cronogramaRepo := cronograma.NewRepository(pool)
	cronogramaService := cronograma.NewService(cronogramaRepo, parcelasService, audit, logger)
	cronogramaHandler := cronograma.NewHandler(logger, cronogramaService)

	termosRepo := termos.NewRepository(pool)
	termosService := termos.NewService(termosRepo, logger, cfg.ToleranciaMeses)
	termosHandler := termos.NewHandler(logger, termosService)

	redisOpts := asynq.RedisClientOpt{Addr: cfg.RedisAddr}
	jobsClient, err := jobs.NewClient(redisOpts)
	if err != nil {
		logger.Error("init jobs client", slog.Any("error", err))
		os.Exit(1)
	}
	defer func() {
		if err := jobsClient.Close(); err != nil {
			logger.Warn("jobs client close", slog.Any("error", err))
		}
	}()
	jobsHandler := jobs.NewHandler(asynq.NewInspector(redisOpts), jobsClient, logger)

	router := app.NewRouter(app.RouterParams{
		Logger:            logger,
		Config:            cfg,
		ParcelasHandler:   parcelasHandler,
		CronogramaHandler: cronogramaHandler,
		TermosHandler:     termosHandler,
		EmpenhosHandler:   empenhosHandler,
		JobsHandler:       jobsHandler,
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
