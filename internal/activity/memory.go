package activity

import (
	"context"
	"sort"
	"strings"
	"sync"
	"time"

	"golang.org/x/text/cases"
)

// MemoryStore keeps the log in process. It backs tests and single-node
// development runs.
type MemoryStore struct {
	mu      sync.RWMutex
	entries []Entry
	nextID  int64
}

// NewMemoryStore constructs an empty store.
func NewMemoryStore() *MemoryStore {
	return &MemoryStore{}
}

// Insert appends an entry.
func (m *MemoryStore) Insert(ctx context.Context, entry Entry) (Entry, error) {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.nextID++
	entry.ID = m.nextID
	if entry.At.IsZero() {
		entry.At = time.Now().UTC()
	}
	m.entries = append(m.entries, entry)
	return entry, nil
}

// List returns a most-recent-first window and the total count.
func (m *MemoryStore) List(ctx context.Context, offset, limit int) ([]Entry, int, error) {
	sorted := m.sorted()
	total := len(sorted)
	if offset >= total {
		return []Entry{}, total, nil
	}
	end := offset + limit
	if end > total {
		end = total
	}
	return sorted[offset:end], total, nil
}

// Search matches query case-insensitively against description and actor fields.
func (m *MemoryStore) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	fold := cases.Fold()
	needle := fold.String(query)
	out := make([]Entry, 0)
	for _, e := range m.sorted() {
		if len(out) == limit {
			break
		}
		for _, field := range []string{e.Description, e.ActorUsername, string(e.ActorType)} {
			if strings.Contains(fold.String(field), needle) {
				out = append(out, e)
				break
			}
		}
	}
	return out, nil
}

// Len reports the number of stored entries.
func (m *MemoryStore) Len() int {
	m.mu.RLock()
	defer m.mu.RUnlock()
	return len(m.entries)
}

func (m *MemoryStore) sorted() []Entry {
	m.mu.RLock()
	out := make([]Entry, len(m.entries))
	copy(out, m.entries)
	m.mu.RUnlock()
	sort.SliceStable(out, func(i, j int) bool {
		if !out[i].At.Equal(out[j].At) {
			return out[i].At.After(out[j].At)
		}
		return out[i].ID > out[j].ID
	})
	return out
}
