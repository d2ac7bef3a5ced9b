package rbac

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Acting-user request headers, with the query parameters older clients send.
const (
	HeaderUserID   = "X-User-ID"
	HeaderUsername = "X-Username"
	HeaderUserType = "X-User-Type"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Resolver *Resolver
	Logger   *slog.Logger
}

// Actor resolves the acting user from the request and stores it in context.
// Requests without one are answered with 401.
func (m Middleware) Actor(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		q := r.URL.Query()
		actor, err := shared.ParseActor(
			firstNonEmpty(r.Header.Get(HeaderUserID), q.Get("current_user_id")),
			firstNonEmpty(r.Header.Get(HeaderUsername), q.Get("current_username")),
			firstNonEmpty(r.Header.Get(HeaderUserType), q.Get("current_user_type")),
		)
		if err != nil {
			httpx.RespondError(w, m.Logger, err)
			return
		}
		next.ServeHTTP(w, r.WithContext(shared.ContextWithActor(r.Context(), actor)))
	})
}

// RequireAny ensures the current user has at least one of the required permissions.
func (m Middleware) RequireAny(perms ...Permission) func(http.Handler) http.Handler {
	return m.require(perms, false)
}

// RequireAll ensures the current user has all required permissions.
func (m Middleware) RequireAll(perms ...Permission) func(http.Handler) http.Handler {
	return m.require(perms, true)
}

// RequireSelfOr lets the user named by the URL parameter through, and anyone
// else only when they hold one of perms.
func (m Middleware) RequireSelfOr(param string, perms ...Permission) func(http.Handler) http.Handler {
	guard := m.require(perms, false)
	return func(next http.Handler) http.Handler {
		guarded := guard(next)
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			actor, ok := shared.ActorFromContext(r.Context())
			if ok {
				if id, err := strconv.ParseInt(chi.URLParam(r, param), 10, 64); err == nil && id == actor.ID {
					next.ServeHTTP(w, r)
					return
				}
			}
			guarded.ServeHTTP(w, r)
		})
	}
}

func (m Middleware) require(perms []Permission, all bool) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if len(perms) == 0 {
				next.ServeHTTP(w, r)
				return
			}
			actor, ok := shared.ActorFromContext(r.Context())
			if !ok {
				httpx.RespondError(w, m.Logger, shared.ErrUnauthenticated)
				return
			}
			allowed := all
			for _, p := range perms {
				granted, err := m.Resolver.HasPermission(r.Context(), actor.ID, string(p))
				if err != nil {
					httpx.RespondError(w, m.Logger, err)
					return
				}
				if granted && !all {
					allowed = true
					break
				}
				if !granted && all {
					allowed = false
					break
				}
			}
			if !allowed {
				httpx.RespondError(w, m.Logger, fmt.Errorf("%w: requires %s", shared.ErrForbidden, describe(perms, all)))
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}

func describe(perms []Permission, all bool) string {
	if len(perms) == 1 {
		return string(perms[0])
	}
	joiner := " or "
	if all {
		joiner = " and "
	}
	out := ""
	for i, p := range perms {
		if i > 0 {
			out += joiner
		}
		out += string(p)
	}
	return out
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
