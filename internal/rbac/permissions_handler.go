package rbac

import (
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taxpilot/taxpilot/internal/platform/httpx"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// PermissionsHandler exposes catalog, matrix and grant administration.
type PermissionsHandler struct {
	logger    *slog.Logger
	service   *Service
	rbac      Middleware
	validator *validator.Validate
}

// NewPermissionsHandler builds PermissionsHandler instance.
func NewPermissionsHandler(logger *slog.Logger, service *Service, rbac Middleware) *PermissionsHandler {
	if logger == nil {
		logger = slog.Default()
	}
	return &PermissionsHandler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers permission routes.
func (h *PermissionsHandler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermPermissionsView, shared.PermPermissionsManage))
		r.Get("/", h.listPermissions)
		r.Get("/matrix", h.matrix)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireRole(RoleAdmin))
		r.Put("/roles/{role}/{slug}", h.setRolePermission)
		r.Delete("/cache", h.clearCache)
	})
}

type setGrantRequest struct {
	Granted *bool `json:"granted" validate:"required"`
}

func (h *PermissionsHandler) listPermissions(w http.ResponseWriter, r *http.Request) {
	perms, err := h.service.ListPermissions(r.Context())
	if err != nil {
		h.logger.Error("list permissions", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"permissions": perms})
}

func (h *PermissionsHandler) matrix(w http.ResponseWriter, r *http.Request) {
	m, err := h.service.RolePermissionMatrix(r.Context())
	if err != nil {
		h.logger.Error("role permission matrix", slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *PermissionsHandler) setRolePermission(w http.ResponseWriter, r *http.Request) {
	role, err := ParseRole(chi.URLParam(r, "role"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req setGrantRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	slug := chi.URLParam(r, "slug")
	var actorID int64
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		actorID = p.UserID
	}
	if err := h.service.SetRolePermission(r.Context(), actorID, role, slug, *req.Granted); err != nil {
		h.logger.Error("set role permission", slog.String("role", string(role)), slog.String("slug", slug), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	h.service.ClearPermissionCache(r.Context(), role)
	httpx.JSON(w, http.StatusOK, map[string]any{"role": role, "slug": slug, "granted": *req.Granted})
}

func (h *PermissionsHandler) clearCache(w http.ResponseWriter, r *http.Request) {
	var role Role
	if raw := r.URL.Query().Get("role"); raw != "" {
		parsed, err := ParseRole(raw)
		if err != nil {
			httpx.RespondError(w, err)
			return
		}
		role = parsed
	}
	h.service.ClearPermissionCache(r.Context(), role)
	w.WriteHeader(http.StatusNoContent)
}
