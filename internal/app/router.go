package app

import (
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/go-chi/httprate"

	"github.com/taxpilot/taxpilot/internal/auth"
	"github.com/taxpilot/taxpilot/internal/filings"
	"github.com/taxpilot/taxpilot/internal/observability"
	"github.com/taxpilot/taxpilot/internal/platform/httpx"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/users"
	"github.com/taxpilot/taxpilot/jobs"
)

// RouterParams groups dependencies for building the HTTP router.
type RouterParams struct {
	Logger             *slog.Logger
	Config             *Config
	AuthService        *auth.Service
	AuthHandler        *auth.Handler
	UsersHandler       *users.Handler
	FilingsHandler     *filings.Handler
	PermissionsHandler *rbac.PermissionsHandler
	JobHandler         *jobs.Handler
	RBACMiddleware     rbac.Middleware
	Metrics            *observability.Metrics
}

// NewRouter constructs the chi.Router with API defaults.
func NewRouter(params RouterParams) http.Handler {
	r := chi.NewRouter()

	var authenticate func(http.Handler) http.Handler
	if params.AuthService != nil {
		authenticate = auth.Authenticate(params.AuthService, params.Logger)
	}
	for _, mw := range MiddlewareStack(MiddlewareConfig{
		Logger:       params.Logger,
		Config:       params.Config,
		Authenticate: authenticate,
		Metrics:      params.Metrics,
	}) {
		r.Use(mw)
	}

	r.NotFound(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusNotFound, "Not Found", "no route for "+r.URL.Path)
	})
	r.MethodNotAllowed(func(w http.ResponseWriter, r *http.Request) {
		httpx.Problem(w, http.StatusMethodNotAllowed, "Method Not Allowed", r.Method+" is not supported here")
	})

	r.Get("/healthz", func(w http.ResponseWriter, r *http.Request) {
		httpx.JSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	if params.Metrics != nil {
		r.Handle("/metrics", params.Metrics.Handler())
	}

	if params.AuthHandler != nil {
		loginRate := 10
		if params.Config != nil && params.Config.LoginRateLimitPerMinute > 0 {
			loginRate = params.Config.LoginRateLimitPerMinute
		}
		r.Route("/auth", func(r chi.Router) {
			r.Use(httprate.LimitByIP(loginRate, time.Minute))
			params.AuthHandler.MountRoutes(r)
		})
	}
	if params.FilingsHandler != nil {
		r.Route("/filings", params.FilingsHandler.MountRoutes)
		r.Route("/clients/{clientID}", params.FilingsHandler.MountClientRoutes)
	}
	if params.UsersHandler != nil {
		r.Route("/staff", params.UsersHandler.MountRoutes)
	}
	if params.PermissionsHandler != nil {
		r.Route("/permissions", params.PermissionsHandler.MountRoutes)
	}
	if params.JobHandler != nil {
		r.Route("/jobs", func(r chi.Router) {
			r.Use(params.RBACMiddleware.RequireMinimumRole(rbac.RoleTaxOffice))
			params.JobHandler.MountRoutes(r)
		})
	}
	return r
}
