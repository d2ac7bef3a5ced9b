package activityhttp

import (
	"net/http"
	"strconv"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

const (
	defaultRateLimit = 30
	rateWindow       = time.Minute
)

// MountRoutes registers the activity log endpoints. Search and export are
// rate limited per acting user. perMinute <= 0 selects the default.
func (h *Handler) MountRoutes(r chi.Router, perMinute int) {
	if h == nil {
		return
	}
	if perMinute <= 0 {
		perMinute = defaultRateLimit
	}
	limiter := httprate.Limit(perMinute, rateWindow,
		httprate.WithKeyFuncs(rateLimitKey),
		httprate.WithLimitHandler(func(w http.ResponseWriter, r *http.Request) {
			httpx.Fail(w, http.StatusTooManyRequests, "too many requests, slow down")
		}),
	)
	r.Get("/activity-logs", h.handleList)
	r.Group(func(gr chi.Router) {
		gr.Use(limiter)
		gr.Get("/activity-logs/search", h.handleSearch)
		gr.Get("/activity-logs/export.csv", h.handleExport)
	})
}

func rateLimitKey(r *http.Request) (string, error) {
	if actor, ok := shared.ActorFromContext(r.Context()); ok {
		return "user:" + strconv.FormatInt(actor.ID, 10), nil
	}
	key, err := httprate.KeyByIP(r)
	if err != nil {
		return "", err
	}
	return "ip:" + key, nil
}
