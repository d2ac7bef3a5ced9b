package rbac

import (
	"context"
	"sync"
	"testing"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

func TestHasPermissionUnionsRoles(t *testing.T) {
	f := newFixture(t, 9)
	ctx := context.Background()
	denies := f.mustCreate(t, "A", map[string]bool{"view_leave": false})
	grants := f.mustCreate(t, "B", map[string]bool{"view_leave": true})
	for _, role := range []Role{grants, denies} {
		_, err := f.service.Assign(ctx, admin, 9, role.ID)
		require.NoError(t, err)
	}

	ok, err := f.resolver.HasPermission(ctx, 9, "view_leave")
	require.NoError(t, err)
	assert.True(t, ok)

	set, err := f.resolver.EffectivePermissions(ctx, 9)
	require.NoError(t, err)
	assert.Equal(t, map[string]bool{"view_leave": true}, set.Entries())
}

func TestHasPermissionAssignUnassignScenario(t *testing.T) {
	f := newFixture(t, 42)
	ctx := context.Background()
	role := f.mustCreate(t, "Test Manager", map[string]bool{"view_leave": true, "approve_leave": true})

	_, err := f.service.Assign(ctx, admin, 42, role.ID)
	require.NoError(t, err)
	ok, err := f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.service.Unassign(ctx, admin, 42, role.ID))
	ok, err = f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestHasPermissionWithoutRoles(t *testing.T) {
	f := newFixture(t, 5)
	ok, err := f.resolver.HasPermission(context.Background(), 5, "view_employees")
	require.NoError(t, err)
	assert.False(t, ok)

	set, err := f.resolver.EffectivePermissions(context.Background(), 5)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestHasPermissionUnknownKey(t *testing.T) {
	f := newFixture(t, 5)
	_, err := f.resolver.HasPermission(context.Background(), 5, "view_everything")
	assert.ErrorIs(t, err, shared.ErrInvalidPermissionKey)
}

type countingRepo struct {
	*MemoryRepository
	mu   sync.Mutex
	gets int
}

type countingReader struct {
	Reader
	repo *countingRepo
}

func (c countingReader) GetRole(ctx context.Context, id int64) (Role, error) {
	c.repo.mu.Lock()
	c.repo.gets++
	c.repo.mu.Unlock()
	return c.Reader.GetRole(ctx, id)
}

func (c *countingRepo) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	return c.MemoryRepository.WithSnapshot(ctx, func(ctx context.Context, r Reader) error {
		return fn(ctx, countingReader{Reader: r, repo: c})
	})
}

func TestHasPermissionShortCircuits(t *testing.T) {
	f := newFixture(t, 3)
	ctx := context.Background()
	first := f.mustCreate(t, "First", map[string]bool{"view_roles": true})
	for _, role := range []Role{first, f.mustCreate(t, "Second", nil), f.mustCreate(t, "Third", nil)} {
		_, err := f.service.Assign(ctx, admin, 3, role.ID)
		require.NoError(t, err)
	}

	repo := &countingRepo{MemoryRepository: f.repo}
	resolver := NewResolver(repo, nil, nil)

	ok, err := resolver.HasPermission(ctx, 3, "view_roles")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.Equal(t, 1, repo.gets)

	repo.gets = 0
	ok, err = resolver.HasPermission(ctx, 3, "manage_roles")
	require.NoError(t, err)
	assert.False(t, ok)
	assert.Equal(t, 3, repo.gets)
}

type recordingObserver struct {
	checks map[string][]bool
}

func (o *recordingObserver) ObservePermissionCheck(p string, granted bool) {
	o.checks[p] = append(o.checks[p], granted)
}

func TestResolverReportsChecks(t *testing.T) {
	f := newFixture(t, 3)
	obs := &recordingObserver{checks: map[string][]bool{}}
	resolver := NewResolver(f.repo, nil, nil).WithObserver(obs)

	_, err := resolver.HasPermission(context.Background(), 3, "view_payroll")
	require.NoError(t, err)
	_, err = resolver.HasPermission(context.Background(), 3, "nope")
	require.Error(t, err)

	assert.Equal(t, map[string][]bool{"view_payroll": {false}}, obs.checks)
}

func newCachedFixture(t *testing.T, users ...int64) (fixture, *miniredis.Miniredis) {
	t.Helper()
	f := newFixture(t, users...)
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { _ = client.Close() })
	cache := NewRedisCache(client, 0)
	f.service = NewService(f.repo, nil)
	f.resolver = NewResolver(f.repo, cache, nil)
	return f, mr
}

func TestCachedResolverSeesMutationsImmediately(t *testing.T) {
	f, mr := newCachedFixture(t, 42)
	ctx := context.Background()
	role := f.mustCreate(t, "Test Manager", map[string]bool{"approve_leave": true})

	ok, err := f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.False(t, ok)

	_, err = f.service.Assign(ctx, admin, 42, role.ID)
	require.NoError(t, err)
	ok, err = f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.True(t, ok)
	assert.True(t, mr.Exists("rbac:perm:1:42"))

	revoke := map[string]bool{"approve_leave": false}
	_, err = f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Permissions: &revoke})
	require.NoError(t, err)
	ok, err = f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.False(t, ok)

	require.NoError(t, f.service.DeleteRole(ctx, admin, role.ID))
	set, err := f.resolver.EffectivePermissions(ctx, 42)
	require.NoError(t, err)
	assert.Zero(t, set.Len())
}

func TestCachedResolverFallsBackWhenRedisIsDown(t *testing.T) {
	f, mr := newCachedFixture(t, 42)
	ctx := context.Background()
	role := f.mustCreate(t, "Viewer", map[string]bool{"view_holidays": true})
	_, err := f.service.Assign(ctx, admin, 42, role.ID)
	require.NoError(t, err)

	mr.Close()
	ok, err := f.resolver.HasPermission(ctx, 42, "view_holidays")
	require.NoError(t, err)
	assert.True(t, ok)

	require.NoError(t, f.service.Unassign(ctx, admin, 42, role.ID), "writes do not depend on redis")
	ok, err = f.resolver.HasPermission(ctx, 42, "view_holidays")
	require.NoError(t, err)
	assert.False(t, ok)
}

func TestRevocationDuringRedisErrorIsNotServedStale(t *testing.T) {
	f, mr := newCachedFixture(t, 42)
	ctx := context.Background()
	role := f.mustCreate(t, "Test Manager", map[string]bool{"approve_leave": true})
	_, err := f.service.Assign(ctx, admin, 42, role.ID)
	require.NoError(t, err)

	ok, err := f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	require.True(t, ok)
	require.True(t, mr.Exists("rbac:perm:1:42"))

	mr.SetError("LOADING redis is loading the dataset in memory")
	require.NoError(t, f.service.Unassign(ctx, admin, 42, role.ID))
	ok, err = f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.False(t, ok)

	mr.SetError("")
	ids, err := f.service.RolesOf(ctx, 42)
	require.NoError(t, err)
	assert.Empty(t, ids)
	ok, err = f.resolver.HasPermission(ctx, 42, "approve_leave")
	require.NoError(t, err)
	assert.False(t, ok, "the set cached before the revocation must not be served")
	assert.True(t, mr.Exists("rbac:perm:1:42"))
	assert.True(t, mr.Exists("rbac:perm:2:42"))
}

func TestWarmupFillsCache(t *testing.T) {
	f, mr := newCachedFixture(t, 10, 11, 12)
	ctx := context.Background()
	role := f.mustCreate(t, "Viewer", map[string]bool{"view_holidays": true})
	for _, user := range []int64{10, 11} {
		_, err := f.service.Assign(ctx, admin, user, role.ID)
		require.NoError(t, err)
	}

	n, err := f.resolver.Warmup(ctx, 100)
	require.NoError(t, err)
	assert.Equal(t, 2, n)
	assert.True(t, mr.Exists("rbac:perm:2:10"))
	assert.True(t, mr.Exists("rbac:perm:2:11"))
	assert.False(t, mr.Exists("rbac:perm:2:12"))
}

func TestWarmupWithoutCacheIsNoop(t *testing.T) {
	f := newFixture(t)
	n, err := f.resolver.Warmup(context.Background(), 10)
	require.NoError(t, err)
	assert.Zero(t, n)
}
