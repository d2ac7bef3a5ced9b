package rbac

import (
	"context"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

var admin = shared.Actor{ID: 1, Username: "admin", Type: shared.ActorAdmin}

type fixture struct {
	repo     *MemoryRepository
	log      *activity.MemoryStore
	service  *Service
	resolver *Resolver
}

func newFixture(t *testing.T, users ...int64) fixture {
	t.Helper()
	log := activity.NewMemoryStore()
	repo := NewMemoryRepository(log)
	repo.AddUser(append([]int64{admin.ID}, users...)...)
	return fixture{
		repo:     repo,
		log:      log,
		service:  NewService(repo, nil),
		resolver: NewResolver(repo, nil, nil),
	}
}

func (f fixture) seed(t *testing.T) map[string]Role {
	t.Helper()
	require.NoError(t, f.service.SeedSystemRoles(context.Background()))
	roles, err := f.service.ListRoles(context.Background())
	require.NoError(t, err)
	byName := make(map[string]Role, len(roles))
	for _, r := range roles {
		byName[r.Name] = r
	}
	return byName
}

func (f fixture) mustCreate(t *testing.T, name string, perms map[string]bool) Role {
	t.Helper()
	role, err := f.service.CreateRole(context.Background(), admin, RoleInput{Name: name, Permissions: perms})
	require.NoError(t, err)
	return role
}

func TestCreateRoleRoundTrip(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	perms := map[string]bool{"view_leave": true, "approve_leave": false, "view_payroll": true}

	created, err := f.service.CreateRole(ctx, admin, RoleInput{Name: "  Payroll Clerk ", Description: "payroll", Permissions: perms})
	require.NoError(t, err)
	assert.NotZero(t, created.ID)
	assert.Equal(t, "Payroll Clerk", created.Name)

	got, err := f.service.GetRole(ctx, created.ID)
	require.NoError(t, err)
	assert.Equal(t, perms, got.Permissions.Entries())
	assert.False(t, got.System)
}

func TestCreateRoleDuplicateName(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()

	f.mustCreate(t, "Dup", map[string]bool{"view_leave": true})
	_, err := f.service.CreateRole(ctx, admin, RoleInput{Name: "Dup"})
	require.ErrorIs(t, err, shared.ErrDuplicateName)

	roles, err := f.service.ListRoles(ctx)
	require.NoError(t, err)
	count := 0
	for _, r := range roles {
		if r.Name == "Dup" {
			count++
		}
	}
	assert.Equal(t, 1, count)
}

func TestCreateRoleNameIsCaseSensitive(t *testing.T) {
	f := newFixture(t)
	f.mustCreate(t, "Auditor", nil)
	_, err := f.service.CreateRole(context.Background(), admin, RoleInput{Name: "auditor"})
	assert.NoError(t, err)
}

func TestCreateRoleRejectsUnknownPermission(t *testing.T) {
	f := newFixture(t)
	_, err := f.service.CreateRole(context.Background(), admin, RoleInput{
		Name:        "Typo",
		Permissions: map[string]bool{"view_leave": true, "aprove_leave": true},
	})
	require.ErrorIs(t, err, shared.ErrInvalidPermissionKey)

	roles, err := f.service.ListRoles(context.Background())
	require.NoError(t, err)
	assert.Empty(t, roles)
	assert.Zero(t, f.log.Len())
}

func TestCreateRoleValidatesName(t *testing.T) {
	f := newFixture(t)
	for _, name := range []string{"", "   ", strings.Repeat("x", maxNameLength+1)} {
		_, err := f.service.CreateRole(context.Background(), admin, RoleInput{Name: name})
		assert.ErrorIs(t, err, shared.ErrValidation)
	}
}

func TestUpdateRolePartial(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	role := f.mustCreate(t, "Reviewer", map[string]bool{"view_leave": true})

	desc := "reviews leave"
	updated, err := f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Description: &desc})
	require.NoError(t, err)
	assert.Equal(t, "Reviewer", updated.Name)
	assert.Equal(t, desc, updated.Description)
	assert.True(t, updated.Permissions.Grants(PermViewLeave))

	perms := map[string]bool{"approve_leave": true}
	updated, err = f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Permissions: &perms})
	require.NoError(t, err)
	assert.Equal(t, perms, updated.Permissions.Entries())
	assert.Equal(t, desc, updated.Description)
}

func TestUpdateRoleErrors(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	a := f.mustCreate(t, "A", nil)
	f.mustCreate(t, "B", nil)

	name := "B"
	_, err := f.service.UpdateRole(ctx, admin, a.ID, RolePatch{Name: &name})
	assert.ErrorIs(t, err, shared.ErrDuplicateName)

	_, err = f.service.UpdateRole(ctx, admin, 999, RolePatch{})
	assert.ErrorIs(t, err, shared.ErrNotFound)

	bad := map[string]bool{"drop_tables": true}
	_, err = f.service.UpdateRole(ctx, admin, a.ID, RolePatch{Permissions: &bad})
	assert.ErrorIs(t, err, shared.ErrInvalidPermissionKey)

	same := "A"
	_, err = f.service.UpdateRole(ctx, admin, a.ID, RolePatch{Name: &same})
	assert.NoError(t, err)
}

func TestAssignIsIdempotent(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	role := f.mustCreate(t, "Clerk", map[string]bool{"view_leave": true})

	inserted, err := f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)
	assert.True(t, inserted)
	once, err := f.service.RolesOf(ctx, 7)
	require.NoError(t, err)

	inserted, err = f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)
	assert.False(t, inserted)
	twice, err := f.service.RolesOf(ctx, 7)
	require.NoError(t, err)

	assert.Equal(t, once, twice)
	assert.Equal(t, []int64{role.ID}, twice)
}

func TestAssignUnknownIDs(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	role := f.mustCreate(t, "Clerk", nil)

	_, err := f.service.Assign(ctx, admin, 404, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
	_, err = f.service.Assign(ctx, admin, 7, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestUnassignMissingAssignment(t *testing.T) {
	f := newFixture(t, 7)
	role := f.mustCreate(t, "Clerk", nil)
	err := f.service.Unassign(context.Background(), admin, 7, role.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestRolesOfUserWithoutRoles(t *testing.T) {
	f := newFixture(t, 7)
	ids, err := f.service.RolesOf(context.Background(), 7)
	require.NoError(t, err)
	assert.Empty(t, ids)
	assert.NotNil(t, ids)

	ids, err = f.service.RolesOf(context.Background(), 12345)
	require.NoError(t, err)
	assert.Empty(t, ids)
}

func TestUserRoles(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	role := f.mustCreate(t, "Clerk", map[string]bool{"view_leave": true})
	_, err := f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)

	held, err := f.service.UserRoles(ctx, 7)
	require.NoError(t, err)
	require.Len(t, held, 1)
	assert.Equal(t, "Clerk", held[0].Role.Name)
	assert.Equal(t, admin.ID, held[0].AssignedBy)
	assert.False(t, held[0].AssignedAt.IsZero())

	_, err = f.service.UserRoles(ctx, 404)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteRoleCascadesAssignments(t *testing.T) {
	f := newFixture(t, 7, 8)
	ctx := context.Background()
	keep := f.mustCreate(t, "Keep", nil)
	drop := f.mustCreate(t, "Drop", nil)
	for _, user := range []int64{7, 8} {
		for _, role := range []Role{keep, drop} {
			_, err := f.service.Assign(ctx, admin, user, role.ID)
			require.NoError(t, err)
		}
	}

	require.NoError(t, f.service.DeleteRole(ctx, admin, drop.ID))

	for _, user := range []int64{7, 8} {
		ids, err := f.service.RolesOf(ctx, user)
		require.NoError(t, err)
		assert.Equal(t, []int64{keep.ID}, ids)
	}
	_, err := f.service.GetRole(ctx, drop.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)

	err = f.service.DeleteRole(ctx, admin, drop.ID)
	assert.ErrorIs(t, err, shared.ErrNotFound)
}

func TestDeleteSystemRoleIsRefused(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	seeded := f.seed(t)
	require.Len(t, seeded, 4)

	for _, name := range []string{RoleSuperAdmin, RoleHRManager, RoleDepartmentManager, RoleEmployee} {
		role, ok := seeded[name]
		require.Truef(t, ok, "missing seeded role %s", name)
		err := f.service.DeleteRole(ctx, admin, role.ID)
		require.ErrorIs(t, err, shared.ErrProtectedRole)
		assert.Contains(t, err.Error(), name)

		still, err := f.service.GetRole(ctx, role.ID)
		require.NoError(t, err)
		assert.Equal(t, name, still.Name)
	}
}

func TestSeedSystemRolesIsIdempotent(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	custom := f.mustCreate(t, RoleEmployee, map[string]bool{"view_leave": true})

	f.seed(t)
	seeded := f.seed(t)
	assert.Len(t, seeded, 4)

	employee := seeded[RoleEmployee]
	assert.Equal(t, custom.ID, employee.ID)
	assert.True(t, employee.System)
	assert.Equal(t, map[string]bool{"view_leave": true}, employee.Permissions.Entries())

	assert.ErrorIs(t, f.service.DeleteRole(ctx, admin, employee.ID), shared.ErrProtectedRole)
}

func TestMutationsAreLogged(t *testing.T) {
	f := newFixture(t, 42)
	ctx := context.Background()
	role := f.mustCreate(t, "Logged", nil)
	_, err := f.service.Assign(ctx, admin, 42, role.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.Unassign(ctx, admin, 42, role.ID))
	require.NoError(t, f.service.DeleteRole(ctx, admin, role.ID))

	page, total, err := f.log.List(ctx, 0, 10)
	require.NoError(t, err)
	require.Len(t, page, 4)
	assert.Equal(t, 4, total)
	for _, e := range page {
		assert.Equal(t, admin.ID, e.ActorID)
		assert.Equal(t, "admin", e.ActorUsername)
		assert.Equal(t, shared.ActorAdmin, e.ActorType)
	}
	assert.Contains(t, page[0].Description, `Deleted role "Logged"`)
	assert.Contains(t, page[3].Description, `Created role "Logged"`)
}

func TestFailedMutationLeavesNoTrace(t *testing.T) {
	f := newFixture(t)
	ctx := context.Background()
	f.seed(t)
	before := f.log.Len()

	roles, err := f.service.ListRoles(ctx)
	require.NoError(t, err)
	assert.Error(t, f.service.DeleteRole(ctx, admin, roles[0].ID))
	assert.Equal(t, before, f.log.Len())
}

func generation(t *testing.T, repo *MemoryRepository) int64 {
	t.Helper()
	var gen int64
	require.NoError(t, repo.WithSnapshot(context.Background(), func(ctx context.Context, r Reader) error {
		var err error
		gen, err = r.Generation(ctx)
		return err
	}))
	return gen
}

func TestGrantChangesBumpGeneration(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	f.seed(t)
	role := f.mustCreate(t, "Clerk", map[string]bool{"view_leave": true})
	assert.Equal(t, int64(0), generation(t, f.repo), "seeding and creating grant nothing to anyone")

	_, err := f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation(t, f.repo))

	_, err = f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation(t, f.repo), "repeated assignment changes nothing")

	rename := "Senior Clerk"
	_, err = f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Name: &rename})
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation(t, f.repo))

	same := map[string]bool{"view_leave": true}
	_, err = f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Permissions: &same})
	require.NoError(t, err)
	assert.Equal(t, int64(1), generation(t, f.repo))

	more := map[string]bool{"view_leave": true, "approve_leave": true}
	_, err = f.service.UpdateRole(ctx, admin, role.ID, RolePatch{Permissions: &more})
	require.NoError(t, err)
	assert.Equal(t, int64(2), generation(t, f.repo))

	require.NoError(t, f.service.Unassign(ctx, admin, 7, role.ID))
	assert.Equal(t, int64(3), generation(t, f.repo))

	_, err = f.service.Assign(ctx, admin, 7, role.ID)
	require.NoError(t, err)
	require.NoError(t, f.service.DeleteRole(ctx, admin, role.ID))
	assert.Equal(t, int64(5), generation(t, f.repo))
}

func TestFailedMutationKeepsGeneration(t *testing.T) {
	f := newFixture(t, 7)
	ctx := context.Background()
	role := f.mustCreate(t, "Clerk", nil)

	_, err := f.service.Assign(ctx, admin, 99, role.ID)
	require.ErrorIs(t, err, shared.ErrNotFound)
	require.ErrorIs(t, f.service.Unassign(ctx, admin, 7, role.ID), shared.ErrNotFound)
	assert.Equal(t, int64(0), generation(t, f.repo))
}
