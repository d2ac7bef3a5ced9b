package rbac

import (
	"context"
	"fmt"
	"log/slog"

	"golang.org/x/sync/errgroup"
	"golang.org/x/sync/singleflight"
)

// CheckObserver is notified of every answered permission check.
type CheckObserver interface {
	ObservePermissionCheck(permission string, granted bool)
}

// Resolver answers permission questions about users. Effective permissions
// are the OR of every held role's set and are never persisted.
type Resolver struct {
	repo     RepositoryPort
	cache    PermissionCache
	logger   *slog.Logger
	observer CheckObserver
	group    singleflight.Group
}

// NewResolver constructs Resolver. cache may be nil.
func NewResolver(repo RepositoryPort, cache PermissionCache, logger *slog.Logger) *Resolver {
	if logger == nil {
		logger = slog.Default()
	}
	return &Resolver{repo: repo, cache: cache, logger: logger}
}

// WithObserver attaches an observer and returns the resolver.
func (r *Resolver) WithObserver(observer CheckObserver) *Resolver {
	r.observer = observer
	return r
}

// HasPermission reports whether any role held by userID grants key. Unknown
// keys fail with ErrInvalidPermissionKey.
func (r *Resolver) HasPermission(ctx context.Context, userID int64, key string) (bool, error) {
	p, err := ParsePermission(key)
	if err != nil {
		return false, err
	}
	granted, err := r.check(ctx, userID, p)
	if err != nil {
		return false, err
	}
	if r.observer != nil {
		r.observer.ObservePermissionCheck(string(p), granted)
	}
	return granted, nil
}

func (r *Resolver) check(ctx context.Context, userID int64, p Permission) (bool, error) {
	if r.cache != nil {
		set, err := r.EffectivePermissions(ctx, userID)
		if err != nil {
			return false, err
		}
		return set.Grants(p), nil
	}

	granted := false
	err := r.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		ids, err := rd.RoleIDsOf(ctx, userID)
		if err != nil {
			return err
		}
		for _, id := range ids {
			role, err := rd.GetRole(ctx, id)
			if err != nil {
				return err
			}
			if role.Permissions.Grants(p) {
				granted = true
				return nil
			}
		}
		return nil
	})
	if err != nil {
		return false, fmt.Errorf("rbac: check %s for user %d: %w", p, userID, err)
	}
	return granted, nil
}

// EffectivePermissions returns the union of every held role's set.
func (r *Resolver) EffectivePermissions(ctx context.Context, userID int64) (PermissionSet, error) {
	var effective PermissionSet
	err := r.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		if r.cache == nil {
			var err error
			effective, err = union(ctx, rd, userID)
			return err
		}
		// The generation comes from the same snapshot as the roles, so a
		// cached set is only ever served for the state it was computed from.
		gen, err := rd.Generation(ctx)
		if err != nil {
			return err
		}
		effective, err = r.cached(ctx, rd, gen, userID)
		return err
	})
	if err != nil {
		return PermissionSet{}, fmt.Errorf("rbac: effective permissions for user %d: %w", userID, err)
	}
	return effective, nil
}

func (r *Resolver) cached(ctx context.Context, rd Reader, gen, userID int64) (PermissionSet, error) {
	set, ok, err := r.cache.Load(ctx, gen, userID)
	if err != nil {
		r.logger.Warn("permission cache read failed", slog.Int64("user_id", userID), slog.Any("error", err))
	} else if ok {
		return set, nil
	}

	key := fmt.Sprintf("%d:%d", gen, userID)
	v, err, shared := r.group.Do(key, func() (any, error) {
		set, err := union(ctx, rd, userID)
		if err != nil {
			return nil, err
		}
		if err := r.cache.Store(ctx, gen, userID, set); err != nil {
			r.logger.Warn("permission cache write failed", slog.Int64("user_id", userID), slog.Any("error", err))
		}
		return set, nil
	})
	if err != nil && shared {
		// the leader's request may have been cancelled; compute on our own snapshot
		return union(ctx, rd, userID)
	}
	if err != nil {
		return PermissionSet{}, err
	}
	return v.(PermissionSet), nil
}

func union(ctx context.Context, rd Reader, userID int64) (PermissionSet, error) {
	var effective PermissionSet
	ids, err := rd.RoleIDsOf(ctx, userID)
	if err != nil {
		return PermissionSet{}, err
	}
	for _, id := range ids {
		role, err := rd.GetRole(ctx, id)
		if err != nil {
			return PermissionSet{}, err
		}
		effective = effective.Union(role.Permissions)
	}
	return effective, nil
}

// Warmup precomputes effective permissions for up to limit users holding at
// least one role and returns how many were loaded.
func (r *Resolver) Warmup(ctx context.Context, limit int) (int, error) {
	if r.cache == nil {
		return 0, nil
	}
	var users []int64
	err := r.repo.WithSnapshot(ctx, func(ctx context.Context, rd Reader) error {
		var err error
		users, err = rd.UsersWithRoles(ctx, limit)
		return err
	})
	if err != nil {
		return 0, fmt.Errorf("rbac: warmup: %w", err)
	}

	g, gctx := errgroup.WithContext(ctx)
	g.SetLimit(8)
	for _, userID := range users {
		g.Go(func() error {
			_, err := r.EffectivePermissions(gctx, userID)
			return err
		})
	}
	if err := g.Wait(); err != nil {
		return 0, fmt.Errorf("rbac: warmup: %w", err)
	}
	return len(users), nil
}
