package activity

import (
	"context"
	"fmt"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	// DefaultPageSize applies when callers do not ask for a limit.
	DefaultPageSize = 50
	// DefaultMaxPageSize bounds any single response.
	DefaultMaxPageSize = 100
	// ExportLimit bounds how many entries one export returns.
	ExportLimit = 5000
)

// Store abstracts entry persistence.
type Store interface {
	Insert(ctx context.Context, entry Entry) (Entry, error)
	List(ctx context.Context, offset, limit int) ([]Entry, int, error)
	Search(ctx context.Context, query string, limit int) ([]Entry, error)
}

// Service is the append-only activity log sink.
type Service struct {
	store       Store
	maxPageSize int
	now         func() time.Time
}

// NewService builds a Service. maxPageSize <= 0 selects DefaultMaxPageSize.
func NewService(store Store, maxPageSize int) *Service {
	if maxPageSize <= 0 {
		maxPageSize = DefaultMaxPageSize
	}
	return &Service{store: store, maxPageSize: maxPageSize, now: time.Now}
}

// Normalize validates an entry before it is appended. Zero timestamps become now.
func Normalize(entry Entry, now time.Time) (Entry, error) {
	entry.Description = strings.TrimSpace(entry.Description)
	if entry.Description == "" {
		return Entry{}, fmt.Errorf("activity: %w: description required", shared.ErrValidation)
	}
	if entry.At.IsZero() {
		entry.At = now
	}
	entry.At = entry.At.UTC()
	return entry, nil
}

// Record appends an entry. Only storage failures are expected here.
func (s *Service) Record(ctx context.Context, entry Entry) (Entry, error) {
	entry, err := Normalize(entry, s.now())
	if err != nil {
		return Entry{}, err
	}
	saved, err := s.store.Insert(ctx, entry)
	if err != nil {
		return Entry{}, fmt.Errorf("activity: record: %w", err)
	}
	return saved, nil
}

// Page returns a bounded most-recent-first window of the log.
func (s *Service) Page(ctx context.Context, offset, limit int) (PageResult, error) {
	if offset < 0 {
		offset = 0
	}
	limit = shared.ClampLimit(limit, DefaultPageSize, s.maxPageSize)
	entries, total, err := s.store.List(ctx, offset, limit)
	if err != nil {
		return PageResult{}, fmt.Errorf("activity: page: %w", err)
	}
	return PageResult{Entries: entries, Pagination: shared.NewPagination(offset, limit, total)}, nil
}

// Search returns entries matching query, most-recent-first.
func (s *Service) Search(ctx context.Context, query string, limit int) ([]Entry, error) {
	query = strings.TrimSpace(query)
	if query == "" {
		return nil, fmt.Errorf("activity: %w: query required", shared.ErrValidation)
	}
	limit = shared.ClampLimit(limit, DefaultPageSize, s.maxPageSize)
	entries, err := s.store.Search(ctx, query, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: search: %w", err)
	}
	return entries, nil
}

// Export returns up to limit most-recent entries read in one statement, so
// entries appended meanwhile cannot shift rows between windows.
func (s *Service) Export(ctx context.Context, limit int) ([]Entry, error) {
	if limit <= 0 || limit > ExportLimit {
		limit = ExportLimit
	}
	entries, _, err := s.store.List(ctx, 0, limit)
	if err != nil {
		return nil, fmt.Errorf("activity: export: %w", err)
	}
	return entries, nil
}

// MaxPageSize reports the configured clamp.
func (s *Service) MaxPageSize() int {
	return s.maxPageSize
}
