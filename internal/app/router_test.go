package app

import (
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxpilot/taxpilot/internal/auth"
	"github.com/taxpilot/taxpilot/internal/filings"
	"github.com/taxpilot/taxpilot/internal/observability"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/jobs"
	_ "github.com/taxpilot/taxpilot/testing"
)

func newTestRouter(t *testing.T) (http.Handler, *auth.TokenIssuer) {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("router-secret", time.Hour)
	require.NoError(t, err)
	authService := auth.NewService(nil, issuer)
	authz := rbac.NewService(nil, rbac.ServiceConfig{})
	mw := rbac.Middleware{Service: authz}
	cfg := &Config{AppEnv: "test", RateLimitPerMinute: 1000, LoginRateLimitPerMinute: 2, CORSAllowedOrigins: []string{"https://app.example"}}
	return NewRouter(RouterParams{
		Config:         cfg,
		AuthService:    authService,
		AuthHandler:    auth.NewHandler(nil, authService, authz),
		FilingsHandler: filings.NewHandler(nil, filings.NewService(nil, filings.ServiceConfig{}), mw),
		JobHandler:     jobs.NewHandler(nil, nil),
		RBACMiddleware: mw,
		Metrics:        observability.NewMetrics(),
	}), issuer
}

func TestRouterHealthAndMetrics(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/healthz", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.JSONEq(t, `{"status":"ok"}`, rr.Body.String())
	assert.Equal(t, "nosniff", rr.Header().Get("X-Content-Type-Options"))
	assert.NotEmpty(t, rr.Header().Get("Content-Security-Policy"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/metrics", nil))
	require.Equal(t, http.StatusOK, rr.Code)
	assert.Contains(t, rr.Body.String(), `taxpilot_http_requests_total{code="200",route="/healthz"} 1`)
}

func TestRouterProblemResponses(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/nope", nil))
	assert.Equal(t, http.StatusNotFound, rr.Code)
	assert.Equal(t, "application/problem+json", rr.Header().Get("Content-Type"))

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/filings/1", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)

	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, httptest.NewRequest(http.MethodGet, "/jobs/health", nil))
	assert.Equal(t, http.StatusUnauthorized, rr.Code)
}

func TestRouterCORSPreflight(t *testing.T) {
	h, _ := newTestRouter(t)
	req := httptest.NewRequest(http.MethodOptions, "/filings", nil)
	req.Header.Set("Origin", "https://app.example")
	req.Header.Set("Access-Control-Request-Method", http.MethodPost)
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	assert.Equal(t, "https://app.example", rr.Header().Get("Access-Control-Allow-Origin"))
}

func TestRouterLoginRateLimit(t *testing.T) {
	h, _ := newTestRouter(t)
	var last int
	for i := 0; i < 3; i++ {
		req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(`{}`))
		req.RemoteAddr = "203.0.113.7:4000"
		rr := httptest.NewRecorder()
		h.ServeHTTP(rr, req)
		last = rr.Code
	}
	assert.Equal(t, http.StatusTooManyRequests, last)
}
