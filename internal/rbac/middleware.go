package rbac

import (
	"log/slog"
	"net/http"

	"github.com/taxpilot/taxpilot/internal/platform/httpx"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// Middleware wires RBAC authorization helpers for HTTP handlers.
type Middleware struct {
	Service *Service
	Logger  *slog.Logger
}

// RequireRole allows callers whose role is listed, and admins unconditionally.
func (m Middleware) RequireRole(roles ...Role) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) error {
		return m.Service.AuthorizeRole(shared.PrincipalFromContext(r.Context()), roles...)
	})
}

// RequireMinimumRole allows callers ranked at or above role.
func (m Middleware) RequireMinimumRole(role Role) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) error {
		return m.Service.AuthorizeMinimumRole(shared.PrincipalFromContext(r.Context()), role)
	})
}

// RequirePermission allows callers holding any of perms, and admins unconditionally.
func (m Middleware) RequirePermission(perms ...string) func(http.Handler) http.Handler {
	return m.guard(func(r *http.Request) error {
		return m.Service.AuthorizePermission(r.Context(), shared.PrincipalFromContext(r.Context()), perms...)
	})
}

func (m Middleware) guard(check func(*http.Request) error) func(http.Handler) http.Handler {
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			if err := check(r); err != nil {
				if m.Logger != nil {
					m.Logger.Info("request denied", slog.String("path", r.URL.Path), slog.Any("error", err))
				}
				httpx.RespondError(w, err)
				return
			}
			next.ServeHTTP(w, r)
		})
	}
}
