package app

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	chimw "github.com/go-chi/chi/v5/middleware"

	activityhttp "github.com/odyssey-erp/odyssey-hr/internal/activity/http"
	"github.com/odyssey-erp/odyssey-hr/internal/observability"
	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/rbac"
	"github.com/odyssey-erp/odyssey-hr/internal/users"
	"github.com/odyssey-erp/odyssey-hr/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger          *slog.Logger
	Config          *Config
	Metrics         *observability.Metrics
	RBACMiddleware  rbac.Middleware
	RBACHandler     *rbac.Handler
	UsersHandler    *users.Handler
	ActivityHandler *activityhttp.Handler
	JobHandler      *jobs.Handler
}

// NewRouter constructs the chi.Router with Odyssey defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:  params.Logger,
		Config:  params.Config,
		Metrics: params.Metrics,
	}) {
		r.Use(mw)
	}

	r.Use(chimw.Logger)

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})

	if params.Metrics != nil {
		r.Method(http.MethodGet, "/metrics", params.Metrics.Handler())
	}
	if params.JobHandler != nil {
		r.Route("/jobs", params.JobHandler.MountRoutes)
	}

	perMinute := 0
	if params.Config != nil {
		perMinute = params.Config.RateLimitPerMinute
	}

	r.Route("/api", func(r chi.Router) {
		r.Use(params.RBACMiddleware.Actor)
		if params.RBACHandler != nil {
			params.RBACHandler.MountRoutes(r)
		}
		if params.UsersHandler != nil {
			params.UsersHandler.MountRoutes(r)
		}
		if params.ActivityHandler != nil {
			params.ActivityHandler.MountRoutes(r, perMinute)
		}
	})

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Fail(w, http.StatusNotFound, "route not found")
	})

	return r
}
