package main

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/hibiken/asynq"
	"github.com/redis/go-redis/v9"

	"github.com/odyssey-erp/odyssey-hr/cmd/odyssey/cli"
	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	activityhttp "github.com/odyssey-erp/odyssey-hr/internal/activity/http"
	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/internal/observability"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/cache"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
	"github.com/odyssey-erp/odyssey-hr/jobs"
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

	if len(os.Args) > 1 {
		if err := runCommand(ctx, cfg, os.Args[1:]); err != nil {
			logger.Error("command failed", slog.Any("error", err))
			os.Exit(1)
		}
		return
	}

	if err := serve(ctx, stop, cfg, logger); err != nil {
		logger.Error("server", slog.Any("error", err))
		os.Exit(1)
	}
}

func runCommand(ctx context.Context, cfg *app.Config, args []string) error {
	if len(args) < 3 || args[0] != "jobs" || args[1] != "trigger" {
		return errors.New("usage: odyssey [jobs trigger <task>]")
	}
	jobsCLI, err := cli.NewJobsCLI(cfg.RedisAddr)
	if err != nil {
		return err
	}
	defer jobsCLI.Close()

	info, err := jobsCLI.Trigger(ctx, args[2])
	if err != nil {
		return err
	}
	fmt.Printf("enqueued %s as %s on %s\n", info.Type, info.ID, info.Queue)
	return nil
}

func serve(ctx context.Context, stop context.CancelFunc, cfg *app.Config, logger *slog.Logger) error {
	if cfg.MigrateOnStart {
		if err := db.Migrate(cfg.PGDSN, logger); err != nil {
			return err
		}
	}

	dbpool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer dbpool.Close()

	var permCache rbac.PermissionCache
	var redisClient *redis.Client
	if cfg.PermissionCacheEnabled {
		redisClient, err = cache.New(ctx, cfg.RedisAddr)
		if err != nil {
			logger.Warn("permission cache disabled", slog.Any("error", err))
		} else {
			defer func() {
				if err := redisClient.Close(); err != nil {
					logger.Warn("redis close", slog.Any("error", err))
				}
			}()
			permCache = rbac.NewRedisCache(redisClient, cfg.PermissionCacheTTL)
		}
	}

	metrics := observability.NewMetrics()

	rbacRepo := rbac.NewRepository(dbpool)
	rbacService := rbac.NewService(rbacRepo, logger)
	resolver := rbac.NewResolver(rbacRepo, permCache, logger).WithObserver(metrics)
	if err := rbacService.SeedSystemRoles(ctx); err != nil {
		return err
	}
	rbacMiddleware := rbac.Middleware{Resolver: resolver, Logger: logger}

	usersService := users.NewService(users.NewRepository(dbpool))
	activityService := activity.NewService(activity.NewRepository(dbpool), cfg.ActivityMaxPageSize)

	inspector := asynq.NewInspector(asynq.RedisClientOpt{Addr: cfg.RedisAddr})
	defer func() {
		if err := inspector.Close(); err != nil {
			logger.Warn("inspector close", slog.Any("error", err))
		}
	}()

	router := app.NewRouter(app.RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		RBACMiddleware:  rbacMiddleware,
		RBACHandler:     rbac.NewHandler(logger, rbacService, resolver, rbacMiddleware),
		UsersHandler:    users.NewHandler(logger, usersService, rbacMiddleware),
		ActivityHandler: activityhttp.NewHandler(logger, activityService, resolver),
		JobHandler:      jobs.NewHandler(inspector, logger),
	})

	server := &http.Server{
		Addr:         cfg.AppAddr,
		Handler:      router,
		ReadTimeout:  cfg.AppReadTimeout,
		WriteTimeout: cfg.AppWriteTimeout,
	}

	go func() {
		logger.Info("starting http server", slog.String("addr", cfg.AppAddr))
		if err := server.ListenAndServe(); err != nil && !errors.Is(err, http.ErrServerClosed) {
			logger.Error("http server", slog.Any("error", err))
			stop()
		}
	}()

	<-ctx.Done()
	logger.Info("shutting down")

	shutdownCtx, cancel := context.WithTimeout(context.Background(), 10*time.Second)
	defer cancel()
	return server.Shutdown(shutdownCtx)
}
