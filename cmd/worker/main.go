package main

import (
	"context"
	"errors"
	"log/slog"
	"os"
	"os/signal"
	"syscall"

	"github.com/hibiken/asynq"

	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/internal/observability"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/jobs"
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

	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		logger.Error("connect database", slog.Any("error", err))
		os.Exit(1)
	}
	defer pool.Close()

	var permCache rbac.PermissionCache
	if cfg.PermissionCacheEnabled {
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
		permCache = rbac.NewRedisCache(redisClient, cfg.PermissionCacheTTL)
	}

	resolver := rbac.NewResolver(rbac.NewRepository(pool), permCache, logger)
	metrics := observability.NewMetrics()
	warmupJob := jobs.NewPermissionsWarmupJob(resolver, logger, metrics.Jobs())

	cron, err := cronRegistrations(cfg)
	if err != nil {
		logger.Error("build cron schedule", slog.Any("error", err))
		os.Exit(1)
	}
	if len(cron) == 0 {
		logger.Info("permission warmup schedule disabled",
			slog.Bool("cache_enabled", cfg.PermissionCacheEnabled),
			slog.String("cron", cfg.WarmupCron))
	}

	worker, err := jobs.NewWorker(jobs.WorkerConfig{
		RedisOpts: asynq.RedisClientOpt{Addr: cfg.RedisAddr},
		Logger:    logger,
		Handlers: []jobs.TaskHandler{
			{Type: jobs.TaskPermissionsWarmup, Handler: warmupJob.Handle},
		},
		Cron: cron,
	})
	if err != nil {
		logger.Error("init worker", slog.Any("error", err))
		os.Exit(1)
	}

	if err := worker.Run(ctx); err != nil && !errors.Is(err, context.Canceled) {
		logger.Error("worker run", slog.Any("error", err))
		os.Exit(1)
	}
}

// cronRegistrations returns the periodic tasks for cfg. Warmup only runs when
// the permission cache is enabled.
func cronRegistrations(cfg *app.Config) ([]jobs.CronRegistration, error) {
	if !cfg.PermissionCacheEnabled || cfg.WarmupCron == "" {
		return nil, nil
	}
	task, err := jobs.NewPermissionsWarmupTask(jobs.DefaultWarmupLimit)
	if err != nil {
		return nil, err
	}
	return []jobs.CronRegistration{{
		Spec:    cfg.WarmupCron,
		Task:    task,
		Options: []asynq.Option{asynq.Queue(jobs.QueueDefault), asynq.MaxRetry(3)},
	}}, nil
}
