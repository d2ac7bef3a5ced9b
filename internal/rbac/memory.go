package rbac

import (
	"context"
	"fmt"
	"sort"
	"sync"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// MemoryRepository keeps roles and assignments in process. Transactions work
// on a copy of the state that replaces the original only when fn succeeds.
type MemoryRepository struct {
	mu    sync.RWMutex
	state *memoryState
	log   activity.Store
	now   func() time.Time
}

type memoryState struct {
	generation  int64
	nextRoleID  int64
	roles       map[int64]Role
	users       map[int64]struct{}
	assignments map[int64]map[int64]Assignment
}

func (s *memoryState) clone() *memoryState {
	out := &memoryState{
		generation:  s.generation,
		nextRoleID:  s.nextRoleID,
		roles:       make(map[int64]Role, len(s.roles)),
		users:       make(map[int64]struct{}, len(s.users)),
		assignments: make(map[int64]map[int64]Assignment, len(s.assignments)),
	}
	for id, r := range s.roles {
		out.roles[id] = r
	}
	for id := range s.users {
		out.users[id] = struct{}{}
	}
	for user, held := range s.assignments {
		cp := make(map[int64]Assignment, len(held))
		for role, a := range held {
			cp[role] = a
		}
		out.assignments[user] = cp
	}
	return out
}

// NewMemoryRepository constructs an empty repository appending activity to log.
func NewMemoryRepository(log activity.Store) *MemoryRepository {
	return &MemoryRepository{
		state: &memoryState{
			roles:       map[int64]Role{},
			users:       map[int64]struct{}{},
			assignments: map[int64]map[int64]Assignment{},
		},
		log: log,
		now: time.Now,
	}
}

// AddUser registers user ids so assignments can reference them.
func (m *MemoryRepository) AddUser(ids ...int64) {
	m.mu.Lock()
	defer m.mu.Unlock()
	for _, id := range ids {
		m.state.users[id] = struct{}{}
	}
}

// WithTx runs fn against a staged copy and publishes it on success.
func (m *MemoryRepository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	m.mu.Lock()
	defer m.mu.Unlock()

	tx := &memoryTx{state: m.state.clone(), now: m.now}
	if err := fn(ctx, tx); err != nil {
		return err
	}
	for _, entry := range tx.pending {
		if m.log == nil {
			break
		}
		if _, err := m.log.Insert(ctx, entry); err != nil {
			return fmt.Errorf("%w: %v", shared.ErrStorageUnavailable, err)
		}
	}
	m.state = tx.state
	return nil
}

// WithSnapshot runs fn under a read lock.
func (m *MemoryRepository) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return fn(ctx, &memoryTx{state: m.state, now: m.now})
}

type memoryTx struct {
	state   *memoryState
	pending []activity.Entry
	now     func() time.Time
}

func (t *memoryTx) GetRole(ctx context.Context, id int64) (Role, error) {
	role, ok := t.state.roles[id]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return role, nil
}

func (t *memoryTx) GetRoleByName(ctx context.Context, name string) (Role, error) {
	for _, role := range t.state.roles {
		if role.Name == name {
			return role, nil
		}
	}
	return Role{}, fmt.Errorf("%w: role %q", shared.ErrNotFound, name)
}

func (t *memoryTx) ListRoles(ctx context.Context) ([]Role, error) {
	roles := make([]Role, 0, len(t.state.roles))
	for _, role := range t.state.roles {
		roles = append(roles, role)
	}
	sort.Slice(roles, func(i, j int) bool { return roles[i].ID < roles[j].ID })
	return roles, nil
}

func (t *memoryTx) UserExists(ctx context.Context, userID int64) (bool, error) {
	_, ok := t.state.users[userID]
	return ok, nil
}

func (t *memoryTx) RoleIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	held := t.state.assignments[userID]
	ids := make([]int64, 0, len(held))
	for id := range held {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

func (t *memoryTx) UserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	ids, _ := t.RoleIDsOf(ctx, userID)
	out := make([]UserRole, 0, len(ids))
	for _, id := range ids {
		a := t.state.assignments[userID][id]
		out = append(out, UserRole{Role: t.state.roles[id], AssignedBy: a.AssignedBy, AssignedAt: a.AssignedAt})
	}
	return out, nil
}

func (t *memoryTx) UsersWithRoles(ctx context.Context, limit int) ([]int64, error) {
	users := make([]int64, 0, len(t.state.assignments))
	for id, held := range t.state.assignments {
		if len(held) > 0 {
			users = append(users, id)
		}
	}
	sort.Slice(users, func(i, j int) bool { return users[i] < users[j] })
	if limit > 0 && len(users) > limit {
		users = users[:limit]
	}
	return users, nil
}

func (t *memoryTx) Generation(ctx context.Context) (int64, error) {
	return t.state.generation, nil
}

func (t *memoryTx) BumpGeneration(ctx context.Context) error {
	t.state.generation++
	return nil
}

func (t *memoryTx) InsertRole(ctx context.Context, role Role) (Role, error) {
	if _, err := t.GetRoleByName(ctx, role.Name); err == nil {
		return Role{}, fmt.Errorf("%w: %q", shared.ErrDuplicateName, role.Name)
	}
	t.state.nextRoleID++
	role.ID = t.state.nextRoleID
	role.CreatedAt = t.now().UTC()
	role.UpdatedAt = role.CreatedAt
	t.state.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) UpdateRole(ctx context.Context, role Role) (Role, error) {
	current, ok := t.state.roles[role.ID]
	if !ok {
		return Role{}, fmt.Errorf("%w: role %d", shared.ErrNotFound, role.ID)
	}
	if other, err := t.GetRoleByName(ctx, role.Name); err == nil && other.ID != role.ID {
		return Role{}, fmt.Errorf("%w: %q", shared.ErrDuplicateName, role.Name)
	}
	role.CreatedAt = current.CreatedAt
	role.System = current.System
	role.UpdatedAt = t.now().UTC()
	t.state.roles[role.ID] = role
	return role, nil
}

func (t *memoryTx) DeleteRole(ctx context.Context, id int64) error {
	if _, ok := t.state.roles[id]; !ok {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	delete(t.state.roles, id)
	return nil
}

func (t *memoryTx) MarkSystem(ctx context.Context, id int64) error {
	role, ok := t.state.roles[id]
	if !ok {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	role.System = true
	t.state.roles[id] = role
	return nil
}

func (t *memoryTx) InsertAssignment(ctx context.Context, a Assignment) (bool, error) {
	if _, ok := t.state.users[a.UserID]; !ok {
		return false, fmt.Errorf("%w: user %d", shared.ErrNotFound, a.UserID)
	}
	if _, ok := t.state.roles[a.RoleID]; !ok {
		return false, fmt.Errorf("%w: role %d", shared.ErrNotFound, a.RoleID)
	}
	held := t.state.assignments[a.UserID]
	if held == nil {
		held = map[int64]Assignment{}
		t.state.assignments[a.UserID] = held
	}
	if _, ok := held[a.RoleID]; ok {
		return false, nil
	}
	held[a.RoleID] = a
	return true, nil
}

func (t *memoryTx) DeleteAssignment(ctx context.Context, userID, roleID int64) (bool, error) {
	held := t.state.assignments[userID]
	if _, ok := held[roleID]; !ok {
		return false, nil
	}
	delete(held, roleID)
	if len(held) == 0 {
		delete(t.state.assignments, userID)
	}
	return true, nil
}

func (t *memoryTx) DeleteAssignmentsForRole(ctx context.Context, roleID int64) (int, error) {
	n := 0
	for user, held := range t.state.assignments {
		if _, ok := held[roleID]; ok {
			delete(held, roleID)
			n++
		}
		if len(held) == 0 {
			delete(t.state.assignments, user)
		}
	}
	return n, nil
}

func (t *memoryTx) RecordActivity(ctx context.Context, entry activity.Entry) error {
	t.pending = append(t.pending, entry)
	return nil
}
