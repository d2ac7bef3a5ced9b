package main

import (
	"context"
	"fmt"
	"log/slog"
	"os"

	"github.com/odyssey-erp/odyssey-hr/internal/app"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
)

func main() {
	cfg, err := app.LoadConfig()
	if err != nil {
		slog.Default().Error("load config", slog.Any("error", err))
		os.Exit(1)
	}
	logger := app.NewLogger(cfg)
	if err := run(context.Background(), cfg, logger); err != nil {
		logger.Error("seed failed", slog.Any("error", err))
		os.Exit(1)
	}
}

func run(ctx context.Context, cfg *app.Config, logger *slog.Logger) error {
	if err := db.Migrate(cfg.PGDSN, logger); err != nil {
		return err
	}
	pool, err := db.New(ctx, cfg.PGDSN)
	if err != nil {
		return err
	}
	defer pool.Close()

	logger.Info("seeding system roles")
	rbacService := rbac.NewService(rbac.NewRepository(pool), logger)
	if err := rbacService.SeedSystemRoles(ctx); err != nil {
		return err
	}

	logger.Info("seeding admin user")
	admin, created, err := users.NewService(users.NewRepository(pool)).EnsureUser(ctx, users.NewUser{
		Username: getenv("SEED_ADMIN_USERNAME", "admin"),
		Email:    getenv("SEED_ADMIN_EMAIL", "admin@odyssey.local"),
		Password: getenv("SEED_ADMIN_PASSWORD", "admin123"),
		Type:     shared.ActorAdmin,
	})
	if err != nil {
		return err
	}

	roles, err := rbacService.ListRoles(ctx)
	if err != nil {
		return err
	}
	for _, role := range roles {
		if role.Name != rbac.RoleSuperAdmin {
			continue
		}
		if _, err := rbacService.Assign(ctx, shared.SystemActor(), admin.ID, role.ID); err != nil {
			return err
		}
		logger.Info("seed complete",
			slog.Int64("admin_id", admin.ID),
			slog.Bool("admin_created", created),
			slog.Int("roles", len(roles)))
		return nil
	}
	return fmt.Errorf("seed: role %q missing after seeding", rbac.RoleSuperAdmin)
}

func getenv(key, fallback string) string {
	if v := os.Getenv(key); v != "" {
		return v
	}
	return fallback
}
