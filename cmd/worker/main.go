package main

import (
	"context"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/meridian-fp/meridian-fp/internal/app"
	"github.com/meridian-fp/meridian-fp/internal/forecast"
	jobmetrics "github.com/meridian-fp/meridian-fp/internal/jobs"
	"github.com/meridian-fp/meridian-fp/internal/platform/cache"
	"github.com/meridian-fp/meridian-fp/internal/platform/db"
	"github.com/meridian-fp/meridian-fp/jobs"
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

	repo := forecast.NewRepository(pool)
	locker := forecast.NewRedisLocker(redisClient)
	service := forecast.NewService(repo, locker, logger, forecast.ServiceConfig{
		Offset:  cfg.FiscalMonthOffset,
		LockTTL: cfg.ForecastLockTTL,
	})

	metrics := jobmetrics.NewMetrics(nil)
	recalcJob := jobs.NewForecastRecalculateJob(service, repo, logger, metrics, cfg.FiscalMonthOffset)

	nightly, err := jobs.NewForecastRecalculateTask(jobs.ForecastRecalculatePayload{})
	if err != nil {
		logger.Error("build nightly task", slog.Any("error", err))
		os.Exit(1)
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskForecastRecalculate, Handler: recalcJob.Handle},
		},
		Cron: []jobs.CronRegistration{
			{Spec: "0 2 * * *", Task: nightly},
		},
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil {
		logger.Error("worker stopped", slog.Any("error", err))
		os.Exit(1)
	}
}
