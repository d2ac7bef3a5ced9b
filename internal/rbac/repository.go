package rbac

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Repository provides PostgreSQL backed persistence.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

// WithTx executes the callback inside a repeatable-read transaction. Roles
// read through the callback are locked until commit.
func (r *Repository) WithTx(ctx context.Context, fn func(context.Context, TxRepository) error) error {
	return db.WithTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{conn: tx, log: activity.NewRepository(tx), lock: true})
	})
}

// WithSnapshot executes the callback inside a read-only repeatable-read
// transaction.
func (r *Repository) WithSnapshot(ctx context.Context, fn func(context.Context, Reader) error) error {
	return db.WithReadTx(ctx, r.pool, func(tx pgx.Tx) error {
		return fn(ctx, &txRepo{conn: tx})
	})
}

type txRepo struct {
	conn db.DBTX
	log  *activity.Repository
	lock bool
}

const roleColumns = `id, name, description, permissions, is_system, created_at, updated_at`

func scanRole(row pgx.Row) (Role, error) {
	var (
		role Role
		raw  []byte
	)
	if err := row.Scan(&role.ID, &role.Name, &role.Description, &raw, &role.System, &role.CreatedAt, &role.UpdatedAt); err != nil {
		return Role{}, db.Classify(err)
	}
	if err := json.Unmarshal(raw, &role.Permissions); err != nil {
		return Role{}, fmt.Errorf("rbac: decode permissions of role %d: %w", role.ID, err)
	}
	return role, nil
}

func (r *txRepo) lockClause() string {
	if r.lock {
		return " FOR UPDATE"
	}
	return ""
}

func (r *txRepo) GetRole(ctx context.Context, id int64) (Role, error) {
	role, err := scanRole(r.conn.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE id = $1`+r.lockClause(), id))
	if err != nil {
		return Role{}, fmt.Errorf("role %d: %w", id, err)
	}
	return role, nil
}

func (r *txRepo) GetRoleByName(ctx context.Context, name string) (Role, error) {
	role, err := scanRole(r.conn.QueryRow(ctx, `SELECT `+roleColumns+` FROM roles WHERE name = $1`+r.lockClause(), name))
	if err != nil {
		return Role{}, fmt.Errorf("role %q: %w", name, err)
	}
	return role, nil
}

func (r *txRepo) ListRoles(ctx context.Context) ([]Role, error) {
	rows, err := r.conn.Query(ctx, `SELECT `+roleColumns+` FROM roles ORDER BY id`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var roles []Role
	for rows.Next() {
		role, err := scanRole(rows)
		if err != nil {
			return nil, err
		}
		roles = append(roles, role)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return roles, nil
}

func (r *txRepo) UserExists(ctx context.Context, userID int64) (bool, error) {
	var ok bool
	if err := r.conn.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM users WHERE id = $1)`, userID).Scan(&ok); err != nil {
		return false, db.Classify(err)
	}
	return ok, nil
}

func (r *txRepo) RoleIDsOf(ctx context.Context, userID int64) ([]int64, error) {
	rows, err := r.conn.Query(ctx, `SELECT role_id FROM user_roles WHERE user_id = $1 ORDER BY role_id`, userID)
	if err != nil {
		return nil, db.Classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, db.Classify(err)
	}
	return ids, nil
}

func (r *txRepo) UserRoles(ctx context.Context, userID int64) ([]UserRole, error) {
	rows, err := r.conn.Query(ctx, `
    SELECT r.id, r.name, r.description, r.permissions, r.is_system, r.created_at, r.updated_at,
           ur.assigned_by, ur.assigned_at
    FROM user_roles ur
    JOIN roles r ON r.id = ur.role_id
    WHERE ur.user_id = $1
    ORDER BY r.id`, userID)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var out []UserRole
	for rows.Next() {
		var (
			ur  UserRole
			raw []byte
		)
		if err := rows.Scan(&ur.Role.ID, &ur.Role.Name, &ur.Role.Description, &raw, &ur.Role.System,
			&ur.Role.CreatedAt, &ur.Role.UpdatedAt, &ur.AssignedBy, &ur.AssignedAt); err != nil {
			return nil, db.Classify(err)
		}
		if err := json.Unmarshal(raw, &ur.Role.Permissions); err != nil {
			return nil, fmt.Errorf("rbac: decode permissions of role %d: %w", ur.Role.ID, err)
		}
		out = append(out, ur)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return out, nil
}

func (r *txRepo) UsersWithRoles(ctx context.Context, limit int) ([]int64, error) {
	if limit <= 0 {
		limit = 1000
	}
	rows, err := r.conn.Query(ctx, `SELECT DISTINCT user_id FROM user_roles ORDER BY user_id LIMIT $1`, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, db.Classify(err)
	}
	return ids, nil
}

func (r *txRepo) Generation(ctx context.Context) (int64, error) {
	var gen int64
	if err := r.conn.QueryRow(ctx, `SELECT generation FROM rbac_state WHERE id = 1`).Scan(&gen); err != nil {
		return 0, db.Classify(err)
	}
	return gen, nil
}

func (r *txRepo) BumpGeneration(ctx context.Context) error {
	tag, err := r.conn.Exec(ctx, `UPDATE rbac_state SET generation = generation + 1, updated_at = NOW() WHERE id = 1`)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: rbac_state row missing", shared.ErrStorageUnavailable)
	}
	return nil
}

func (r *txRepo) InsertRole(ctx context.Context, role Role) (Role, error) {
	raw, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	created, err := scanRole(r.conn.QueryRow(ctx, `
    INSERT INTO roles (name, description, permissions, is_system)
    VALUES ($1, $2, $3, $4)
    RETURNING `+roleColumns, role.Name, role.Description, raw, role.System))
	if err != nil {
		return Role{}, fmt.Errorf("insert role %q: %w", role.Name, err)
	}
	return created, nil
}

func (r *txRepo) UpdateRole(ctx context.Context, role Role) (Role, error) {
	raw, err := json.Marshal(role.Permissions)
	if err != nil {
		return Role{}, err
	}
	updated, err := scanRole(r.conn.QueryRow(ctx, `
    UPDATE roles
    SET name = $2, description = $3, permissions = $4, updated_at = NOW()
    WHERE id = $1
    RETURNING `+roleColumns, role.ID, role.Name, role.Description, raw))
	if err != nil {
		return Role{}, fmt.Errorf("update role %d: %w", role.ID, err)
	}
	return updated, nil
}

func (r *txRepo) DeleteRole(ctx context.Context, id int64) error {
	tag, err := r.conn.Exec(ctx, `DELETE FROM roles WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepo) MarkSystem(ctx context.Context, id int64) error {
	tag, err := r.conn.Exec(ctx, `UPDATE roles SET is_system = TRUE, updated_at = NOW() WHERE id = $1`, id)
	if err != nil {
		return db.Classify(err)
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %d", shared.ErrNotFound, id)
	}
	return nil
}

func (r *txRepo) InsertAssignment(ctx context.Context, a Assignment) (bool, error) {
	tag, err := r.conn.Exec(ctx, `
    INSERT INTO user_roles (user_id, role_id, assigned_by, assigned_at)
    VALUES ($1, $2, $3, $4)
    ON CONFLICT (user_id, role_id) DO NOTHING`, a.UserID, a.RoleID, a.AssignedBy, a.AssignedAt)
	if err != nil {
		return false, db.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) DeleteAssignment(ctx context.Context, userID, roleID int64) (bool, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM user_roles WHERE user_id = $1 AND role_id = $2`, userID, roleID)
	if err != nil {
		return false, db.Classify(err)
	}
	return tag.RowsAffected() == 1, nil
}

func (r *txRepo) DeleteAssignmentsForRole(ctx context.Context, roleID int64) (int, error) {
	tag, err := r.conn.Exec(ctx, `DELETE FROM user_roles WHERE role_id = $1`, roleID)
	if err != nil {
		return 0, db.Classify(err)
	}
	return int(tag.RowsAffected()), nil
}

func (r *txRepo) RecordActivity(ctx context.Context, entry activity.Entry) error {
	if r.log == nil {
		return fmt.Errorf("rbac: activity recorded outside a write transaction")
	}
	_, err := r.log.Insert(ctx, entry)
	return err
}
