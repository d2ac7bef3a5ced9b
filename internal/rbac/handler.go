package rbac

import (
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"reflect"
	"strconv"
	"strings"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/odyssey-erp/odyssey-hr/internal/platform/httpx"
	"github.com/odyssey-erp/odyssey-hr/internal/shared"
)

// Handler exposes roles, assignments and permission checks over JSON.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	resolver  *Resolver
	rbac      Middleware
	validator *validator.Validate
}

// NewHandler builds Handler instance.
func NewHandler(logger *slog.Logger, service *Service, resolver *Resolver, rbac Middleware) *Handler {
	v := validator.New()
	v.RegisterTagNameFunc(func(f reflect.StructField) string {
		name, _, _ := strings.Cut(f.Tag.Get("json"), ",")
		if name == "" || name == "-" {
			return f.Name
		}
		return name
	})
	return &Handler{logger: logger, service: service, resolver: resolver, rbac: rbac, validator: v}
}

// MountRoutes registers role and assignment routes. The router is expected to
// run Middleware.Actor already.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAny(PermViewRoles))
		r.Get("/roles", h.listRoles)
		r.Get("/roles/{roleID}", h.getRole)
		r.Get("/permissions", h.listPermissions)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireAll(PermManageRoles))
		r.Post("/roles", h.createRole)
		r.Put("/roles/{roleID}", h.updateRole)
		r.Delete("/roles/{roleID}", h.deleteRole)
		r.Post("/users/{userID}/roles", h.assignRole)
		r.Delete("/users/{userID}/roles/{roleID}", h.removeRole)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireSelfOr("userID", PermViewRoles))
		r.Get("/users/{userID}/roles", h.userRoles)
		r.Get("/users/{userID}/permissions", h.userPermissions)
	})
	r.Post("/users/{userID}/check-permission", h.checkPermission)
}

type roleResponse struct {
	ID          int64         `json:"id"`
	RoleName    string        `json:"role_name"`
	Description string        `json:"description"`
	Permissions PermissionSet `json:"permissions"`
	System      bool          `json:"system"`
	CreatedAt   time.Time     `json:"created_at"`
	UpdatedAt   time.Time     `json:"updated_at"`
}

type userRoleResponse struct {
	roleResponse
	AssignedBy int64     `json:"assigned_by"`
	AssignedAt time.Time `json:"assigned_at"`
}

func toRoleResponse(role Role) roleResponse {
	return roleResponse{
		ID:          role.ID,
		RoleName:    role.Name,
		Description: role.Description,
		Permissions: role.Permissions,
		System:      role.System,
		CreatedAt:   role.CreatedAt,
		UpdatedAt:   role.UpdatedAt,
	}
}

type createRoleRequest struct {
	RoleName    string          `json:"role_name" validate:"required,max=100"`
	Description string          `json:"description" validate:"max=500"`
	Permissions map[string]bool `json:"permissions"`
}

type updateRoleRequest struct {
	RoleName    *string          `json:"role_name" validate:"omitempty,max=100"`
	Description *string          `json:"description" validate:"omitempty,max=500"`
	Permissions *map[string]bool `json:"permissions"`
}

type assignRoleRequest struct {
	RoleID int64 `json:"role_id" validate:"required,gt=0"`
}

type checkPermissionRequest struct {
	Permission string `json:"permission" validate:"required"`
}

func (h *Handler) listRoles(w http.ResponseWriter, r *http.Request) {
	roles, err := h.service.ListRoles(r.Context())
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]roleResponse, 0, len(roles))
	for _, role := range roles {
		out = append(out, toRoleResponse(role))
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"roles": out})
}

func (h *Handler) getRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	role, err := h.service.GetRole(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"role": toRoleResponse(role)})
}

func (h *Handler) listPermissions(w http.ResponseWriter, r *http.Request) {
	httpx.OK(w, http.StatusOK, httpx.Envelope{"permissions": AllPermissions()})
}

func (h *Handler) createRole(w http.ResponseWriter, r *http.Request) {
	var req createRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.CreateRole(r.Context(), actor, RoleInput{
		Name:        req.RoleName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusCreated, httpx.Envelope{
		"role":    toRoleResponse(role),
		"message": "Role created successfully",
	})
}

func (h *Handler) updateRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req updateRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	role, err := h.service.UpdateRole(r.Context(), actor, id, RolePatch{
		Name:        req.RoleName,
		Description: req.Description,
		Permissions: req.Permissions,
	})
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{
		"role":    toRoleResponse(role),
		"message": "Role updated successfully",
	})
}

func (h *Handler) deleteRole(w http.ResponseWriter, r *http.Request) {
	id, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.DeleteRole(r.Context(), actor, id); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"message": "Role deleted successfully"})
}

func (h *Handler) assignRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req assignRoleRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	inserted, err := h.service.Assign(r.Context(), actor, userID, req.RoleID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	msg := "Role assigned successfully"
	if !inserted {
		msg = "User already has this role"
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"message": msg})
}

func (h *Handler) removeRole(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	roleID, err := pathID(r, "roleID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	actor, _ := shared.ActorFromContext(r.Context())
	if err := h.service.Unassign(r.Context(), actor, userID, roleID); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"message": "Role removed successfully"})
}

func (h *Handler) userRoles(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	held, err := h.service.UserRoles(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	out := make([]userRoleResponse, 0, len(held))
	for _, ur := range held {
		out = append(out, userRoleResponse{
			roleResponse: toRoleResponse(ur.Role),
			AssignedBy:   ur.AssignedBy,
			AssignedAt:   ur.AssignedAt,
		})
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"roles": out})
}

func (h *Handler) userPermissions(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	set, err := h.resolver.EffectivePermissions(r.Context(), userID)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{"user_id": userID, "permissions": set})
}

func (h *Handler) checkPermission(w http.ResponseWriter, r *http.Request) {
	userID, err := pathID(r, "userID")
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	var req checkPermissionRequest
	if err := h.decode(r, &req); err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	granted, err := h.resolver.HasPermission(r.Context(), userID, req.Permission)
	if err != nil {
		httpx.RespondError(w, h.logger, err)
		return
	}
	httpx.OK(w, http.StatusOK, httpx.Envelope{
		"user_id":    userID,
		"permission": req.Permission,
		"granted":    granted,
	})
}

func (h *Handler) decode(r *http.Request, target any) error {
	if err := httpx.DecodeJSON(r, target); err != nil {
		return fmt.Errorf("%w: malformed request body: %v", shared.ErrValidation, err)
	}
	if err := h.validator.Struct(target); err != nil {
		var fieldErrs validator.ValidationErrors
		if !errors.As(err, &fieldErrs) {
			return fmt.Errorf("%w: %v", shared.ErrValidation, err)
		}
		msgs := make([]string, 0, len(fieldErrs))
		for _, fe := range fieldErrs {
			msgs = append(msgs, fmt.Sprintf("%s failed on %s", fe.Field(), fe.Tag()))
		}
		return fmt.Errorf("%w: %s", shared.ErrValidation, strings.Join(msgs, "; "))
	}
	return nil
}

func pathID(r *http.Request, param string) (int64, error) {
	raw := chi.URLParam(r, param)
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid %s %q", shared.ErrValidation, param, raw)
	}
	return id, nil
}
