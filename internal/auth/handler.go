package auth

import (
	"context"
	"errors"
	"log/slog"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taxpilot/taxpilot/internal/platform/httpx"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// PermissionLister reports what a role may do.
type PermissionLister interface {
	EffectivePermissions(ctx context.Context, role rbac.Role) ([]string, error)
}

// Handler wires HTTP endpoints for authentication flows.
type Handler struct {
	logger      *slog.Logger
	service     *Service
	permissions PermissionLister
	validator   *validator.Validate
}

// NewHandler constructs a Handler instance.
func NewHandler(logger *slog.Logger, service *Service, permissions PermissionLister) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, permissions: permissions, validator: validator.New()}
}

// MountRoutes registers auth routes on provided router.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/login", h.handleLogin)
	r.Get("/me", h.handleMe)
}

type loginRequest struct {
	Email    string `json:"email" validate:"required,email"`
	Password string `json:"password" validate:"required,min=8"`
}

func (h *Handler) handleLogin(w http.ResponseWriter, r *http.Request) {
	var req loginRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.validator.Struct(req); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return
	}
	result, err := h.service.Login(r.Context(), req.Email, req.Password)
	if err != nil {
		if !errors.Is(err, shared.ErrInvalidCredentials) {
			h.logger.Error("login", slog.Any("error", err))
		}
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, result)
}

type meResponse struct {
	UserID      int64    `json:"userId"`
	Role        string   `json:"role"`
	Permissions []string `json:"permissions"`
}

func (h *Handler) handleMe(w http.ResponseWriter, r *http.Request) {
	p := shared.PrincipalFromContext(r.Context())
	if p == nil {
		httpx.RespondError(w, shared.ErrUnauthenticated)
		return
	}
	resp := meResponse{UserID: p.UserID, Role: p.Role, Permissions: []string{}}
	if role, err := rbac.ParseRole(p.Role); err == nil && h.permissions != nil {
		perms, err := h.permissions.EffectivePermissions(r.Context(), role)
		if err != nil {
			h.logger.Error("effective permissions", slog.String("role", p.Role), slog.Any("error", err))
			httpx.RespondError(w, err)
			return
		}
		if perms != nil {
			resp.Permissions = perms
		}
	}
	httpx.JSON(w, http.StatusOK, resp)
}
