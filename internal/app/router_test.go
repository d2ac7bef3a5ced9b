package app

import (
	"context"
	"encoding/json"
	"io"
	"log/slog"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/odyssey-erp/odyssey-hr/internal/activity"
	activityhttp "github.com/odyssey-erp/odyssey-hr/internal/activity/http"
	"github.com/odyssey-erp/odyssey-hr/internal/observability"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
	"github.com/odyssey-erp/odyssey-hr/jobs"
)

func newTestRouter(t *testing.T) (http.Handler, map[string]int64) {
	t.Helper()
	logger := slog.New(slog.NewTextHandler(io.Discard, nil))
	log := activity.NewMemoryStore()
	repo := rbac.NewMemoryRepository(log)
	repo.AddUser(1, 42)
	service := rbac.NewService(repo, logger)
	metrics := observability.NewMetrics()
	resolver := rbac.NewResolver(repo, nil, logger).WithObserver(metrics)

	ctx := context.Background()
	require.NoError(t, service.SeedSystemRoles(ctx))
	roles := map[string]int64{}
	list, err := service.ListRoles(ctx)
	require.NoError(t, err)
	for _, r := range list {
		roles[r.Name] = r.ID
	}
	_, err = service.Assign(ctx, shared.SystemActor(), 1, roles[rbac.RoleSuperAdmin])
	require.NoError(t, err)

	mw := rbac.Middleware{Resolver: resolver, Logger: logger}
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000}
	router := NewRouter(RouterParams{
		Logger:          logger,
		Config:          cfg,
		Metrics:         metrics,
		RBACMiddleware:  mw,
		RBACHandler:     rbac.NewHandler(logger, service, resolver, mw),
		ActivityHandler: activityhttp.NewHandler(logger, activity.NewService(log, 100), resolver),
		JobHandler:      jobs.NewHandler(nil, logger),
	})
	return router, roles
}

func serve(router http.Handler, method, target, body string, actor string) *httptest.ResponseRecorder {
	var reader io.Reader
	if body != "" {
		reader = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, target, reader)
	req.Header.Set("Content-Type", "application/json")
	if actor != "" {
		req.Header.Set(rbac.HeaderUserID, actor)
		req.Header.Set(rbac.HeaderUsername, "admin")
		req.Header.Set(rbac.HeaderUserType, "admin")
	}
	rr := httptest.NewRecorder()
	router.ServeHTTP(rr, req)
	return rr
}

func TestRouterHealthz(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := serve(router, http.MethodGet, "/healthz", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
}

func TestRouterRequiresActorUnderAPI(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := serve(router, http.MethodGet, "/api/roles", "", "")
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterUnknownRoute(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := serve(router, http.MethodGet, "/nope", "", "")
	require.Equal(t, http.StatusNotFound, rr.Code)
	var body map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	assert.Equal(t, false, body["success"])
}

func TestRouterMutationShowsInActivityLog(t *testing.T) {
	router, _ := newTestRouter(t)

	rr := serve(router, http.MethodPost, "/api/roles", `{"role_name":"Auditor","permissions":{"view_activity_logs":true}}`, "1")
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())

	rr = serve(router, http.MethodGet, "/api/activity-logs/search?query=Auditor", "", "1")
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var body struct {
		Logs []activity.Entry `json:"logs"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &body))
	require.NotEmpty(t, body.Logs)
	assert.Equal(t, "admin", body.Logs[0].ActorUsername)
}

func TestRouterMetricsCountPermissionChecks(t *testing.T) {
	router, _ := newTestRouter(t)
	serve(router, http.MethodGet, "/api/roles", "", "1")

	rr := serve(router, http.MethodGet, "/metrics", "", "")
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `odyssey_permission_checks_total{permission="view_roles",result="granted"} 1`)
}

func TestRouterJobsHealth(t *testing.T) {
	router, _ := newTestRouter(t)
	rr := serve(router, http.MethodGet, "/jobs/health", "", "")
	assert.Equal(t, http.StatusOK, rr.Code)
}
