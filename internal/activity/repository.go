package activity

import (
	"context"
	"strings"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/db"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Repository persists activity entries in PostgreSQL. It accepts a pool or a
// transaction so writers can append inside their own transaction.
type Repository struct {
	db db.DBTX
}

// NewRepository constructs a repository.
func NewRepository(conn db.DBTX) *Repository {
	return &Repository{db: conn}
}

const entryColumns = `id, actor_id, actor_username, actor_type, description, resource_type, resource_id, occurred_at`

// Insert appends an entry and returns it with its identifier.
func (r *Repository) Insert(ctx context.Context, entry Entry) (Entry, error) {
	err := r.db.QueryRow(ctx, `
    INSERT INTO activity_logs (actor_id, actor_username, actor_type, description, resource_type, resource_id, occurred_at)
    VALUES ($1, $2, $3, $4, $5, $6, $7)
    RETURNING id, occurred_at
  `, entry.ActorID, entry.ActorUsername, string(entry.ActorType), entry.Description, entry.ResourceType, entry.ResourceID, entry.At).
		Scan(&entry.ID, &entry.At)
	if err != nil {
		return Entry{}, db.Classify(err)
	}
	return entry, nil
}

// List returns a window of entries ordered most-recent-first plus the total count.
func (r *Repository) List(ctx context.Context, offset, limit int) ([]Entry, int, error) {
	var total int
	if err := r.db.QueryRow(ctx, `SELECT COUNT(1) FROM activity_logs`).Scan(&total); err != nil {
		return nil, 0, db.Classify(err)
	}
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+`
    FROM activity_logs
    ORDER BY occurred_at DESC, id DESC
    OFFSET $1 LIMIT $2`, offset, limit)
	if err != nil {
		return nil, 0, db.Classify(err)
	}
	entries, err := scanEntries(rows)
	if err != nil {
		return nil, 0, err
	}
	return entries, total, nil
}

// Search returns entries whose description or actor fields contain query.
func (r *Repository) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	pattern := "%" + escapeLike(query) + "%"
	rows, err := r.db.Query(ctx, `SELECT `+entryColumns+`
    FROM activity_logs
    WHERE description ILIKE $1 OR actor_username ILIKE $1 OR actor_type ILIKE $1
    ORDER BY occurred_at DESC, id DESC
    LIMIT $2`, pattern, limit)
	if err != nil {
		return nil, db.Classify(err)
	}
	return scanEntries(rows)
}

type rowScanner interface {
	Next() bool
	Scan(dest ...any) error
	Err() error
	Close()
}

func scanEntries(rows rowScanner) ([]Entry, error) {
	defer rows.Close()
	entries := make([]Entry, 0)
	for rows.Next() {
		var (
			e         Entry
			actorType string
		)
		if err := rows.Scan(&e.ID, &e.ActorID, &e.ActorUsername, &actorType, &e.Description, &e.ResourceType, &e.ResourceID, &e.At); err != nil {
			return nil, db.Classify(err)
		}
		e.ActorType = shared.ActorType(actorType)
		entries = append(entries, e)
	}
	if err := rows.Err(); err != nil {
		return nil, db.Classify(err)
	}
	return entries, nil
}

var likeEscaper = strings.NewReplacer(`\`, `\\`, `%`, `\%`, `_`, `\_`)

func escapeLike(s string) string {
	return likeEscaper.Replace(s)
}
