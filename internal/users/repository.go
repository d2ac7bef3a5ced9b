package users

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

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

const userColumns = `id, username, COALESCE(email, ''), user_type, created_at`

func scanUser(row pgx.Row) (User, error) {
	var (
		u    User
		kind string
	)
	if err := row.Scan(&u.ID, &u.Username, &u.Email, &kind, &u.CreatedAt); err != nil {
		return User{}, db.Classify(err)
	}
	u.Type = shared.ActorType(kind)
	return u, nil
}

// ListUsers returns all users ordered by username.
func (r *Repository) ListUsers(ctx context.Context) ([]User, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+userColumns+` FROM users ORDER BY username`)
	if err != nil {
		return nil, db.Classify(err)
	}
	defer rows.Close()

	var users []User
	for rows.Next() {
		u, err := scanUser(rows)
		if err != nil {
			return nil, err
		}
		users = append(users, u)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return users, nil
}

// GetUser returns a user by id.
func (r *Repository) GetUser(ctx context.Context, id int64) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE id = $1`, id))
	if err != nil {
		return User{}, fmt.Errorf("user %d: %w", id, err)
	}
	return u, nil
}

// GetByUsername returns a user by username.
func (r *Repository) GetByUsername(ctx context.Context, username string) (User, error) {
	u, err := scanUser(r.pool.QueryRow(ctx, `SELECT `+userColumns+` FROM users WHERE username = $1`, username))
	if err != nil {
		return User{}, fmt.Errorf("user %q: %w", username, err)
	}
	return u, nil
}

// CreateUser inserts a user with an already hashed password.
func (r *Repository) CreateUser(ctx context.Context, u User, passwordHash string) (User, error) {
	created, err := scanUser(r.pool.QueryRow(ctx, `
    INSERT INTO users (username, email, password_hash, user_type)
    VALUES ($1, $2, $3, $4)
    RETURNING `+userColumns, u.Username, u.Email, passwordHash, string(u.Type)))
	if err != nil {
		return User{}, fmt.Errorf("create user %q: %w", u.Username, err)
	}
	return created, nil
}
