package activityhttp

import (
	"bytes"
	"context"
	"encoding/csv"
	"fmt"
	"log/slog"
	"net/http"
	"strconv"
	"strings"
	"time"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const permViewActivityLogs = string(rbac.PermViewActivityLogs)

// LogService defines the read side of the activity log.
type LogService interface {
	Page(ctx context.Context, offset, limit int) (activity.PageResult, error)
	Search(ctx context.Context, query string, limit int) ([]activity.Entry, error)
	Export(ctx context.Context, limit int) ([]activity.Entry, error)
	MaxPageSize() int
}

// Authorizer answers permission checks for the acting user.
type Authorizer interface {
	HasPermission(ctx context.Context, userID int64, key string) (bool, error)
}

// Handler serves the activity log endpoints.
type Handler struct {
	logger  *slog.Logger
	service LogService
	authz   Authorizer
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service LogService, authz Authorizer) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, authz: authz}
}

func (h *Handler) handleList(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	offset, limit, err := parseWindow(r, h.service.MaxPageSize())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	result, err := h.service.Page(r.Context(), offset, limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{
		"logs":       nonNil(result.Entries),
		"pagination": result.Pagination,
	})
}

func (h *Handler) handleSearch(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	_, limit, err := parseWindow(r, h.service.MaxPageSize())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.service.Search(r.Context(), r.URL.Query().Get("query"), limit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"logs": nonNil(entries)})
}

func (h *Handler) handleExport(w http.ResponseWriter, r *http.Request) {
	if err := h.authorize(r.Context()); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	entries, err := h.service.Export(r.Context(), activity.ExportLimit)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	body, err := writeCSV(entries)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	w.Header().Set("Content-Type", "text/csv; charset=utf-8")
	w.Header().Set("Content-Disposition", "attachment; filename=\"activity-logs.csv\"")
	if _, err := w.Write(body); err != nil {
		h.logger.Warn("write csv", slog.Any("error", err))
	}
}

func (h *Handler) authorize(ctx context.Context) error {
	actor, ok := shared.ActorFromContext(ctx)
	if !ok {
		return shared.ErrUnauthenticated
	}
	if h.authz == nil {
		return fmt.Errorf("activity: authorizer not configured")
	}
	granted, err := h.authz.HasPermission(ctx, actor.ID, permViewActivityLogs)
	if err != nil {
		return err
	}
	if !granted {
		return fmt.Errorf("%w: requires %s", shared.ErrForbidden, permViewActivityLogs)
	}
	return nil
}

// parseWindow reads offset/limit, accepting the 0-based page parameter older
// clients send in place of offset.
func parseWindow(r *http.Request, maxLimit int) (int, int, error) {
	q := r.URL.Query()
	limit, err := optionalInt(q.Get("limit"), "limit")
	if err != nil {
		return 0, 0, err
	}
	offset, err := optionalInt(q.Get("offset"), "offset")
	if err != nil {
		return 0, 0, err
	}
	if raw := q.Get("page"); raw != "" && q.Get("offset") == "" {
		page, err := optionalInt(raw, "page")
		if err != nil {
			return 0, 0, err
		}
		offset = page * shared.ClampLimit(limit, activity.DefaultPageSize, maxLimit)
	}
	return offset, limit, nil
}

func optionalInt(raw, field string) (int, error) {
	raw = strings.TrimSpace(raw)
	if raw == "" {
		return 0, nil
	}
	v, err := strconv.Atoi(raw)
	if err != nil || v < 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", shared.ErrValidation, field, raw)
	}
	return v, nil
}

func nonNil(entries []activity.Entry) []activity.Entry {
	if entries == nil {
		return []activity.Entry{}
	}
	return entries
}

func writeCSV(entries []activity.Entry) ([]byte, error) {
	var buf bytes.Buffer
	writer := csv.NewWriter(&buf)
	if err := writer.Write([]string{"id", "timestamp", "actor_id", "actor_username", "actor_type", "description", "resource_type", "resource_id"}); err != nil {
		return nil, err
	}
	for _, e := range entries {
		record := []string{
			strconv.FormatInt(e.ID, 10),
			e.At.UTC().Format(time.RFC3339),
			strconv.FormatInt(e.ActorID, 10),
			e.ActorUsername,
			string(e.ActorType),
			e.Description,
			e.ResourceType,
			e.ResourceID,
		}
		if err := writer.Write(record); err != nil {
			return nil, err
		}
	}
	writer.Flush()
	if err := writer.Error(); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
