package filings

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"

	"github.com/go-chi/chi/v5"
	"github.com/shopspring/decimal"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// grantsRepo serves fixed role grants to the RBAC service.
type grantsRepo map[rbac.Role][]string

func (g grantsRepo) ListPermissions(ctx context.Context) ([]rbac.Permission, error) { return nil, nil }
func (g grantsRepo) UpsertPermission(ctx context.Context, p rbac.Permission) (rbac.Permission, error) {
	return p, nil
}
func (g grantsRepo) FindPermission(ctx context.Context, slug string) (rbac.Permission, error) {
	return rbac.Permission{}, shared.ErrNotFound
}
func (g grantsRepo) GrantedSlugs(ctx context.Context, role rbac.Role) ([]string, error) {
	return g[role], nil
}
func (g grantsRepo) UpsertRolePermission(ctx context.Context, role rbac.Role, permissionID int64, granted bool) error {
	return nil
}
func (g grantsRepo) MatrixRows(ctx context.Context) ([]rbac.MatrixRow, error) { return nil, nil }

func newTestRouter(t *testing.T) (http.Handler, *Service) {
	t.Helper()
	svc, _, _, _ := newTestService(t)
	authz := rbac.NewService(grantsRepo{
		rbac.RoleClient:    {shared.PermFilingsView},
		rbac.RoleAgent:     {shared.PermFilingsView, shared.PermFilingsManage},
		rbac.RoleTaxOffice: {shared.PermFilingsView, shared.PermFilingsManage},
	}, rbac.ServiceConfig{})
	h := NewHandler(nil, svc, rbac.Middleware{Service: authz})
	r := chi.NewRouter()
	r.Route("/filings", h.MountRoutes)
	r.Route("/clients/{clientID}", h.MountClientRoutes)
	return r, svc
}

func do(t *testing.T, h http.Handler, role, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var req *http.Request
	if body == "" {
		req = httptest.NewRequest(method, path, nil)
	} else {
		req = httptest.NewRequest(method, path, strings.NewReader(body))
	}
	if role != "" {
		req = req.WithContext(shared.ContextWithPrincipal(req.Context(), &shared.Principal{UserID: 5, Role: role}))
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func TestHandlerLifecycle(t *testing.T) {
	h, _ := newTestRouter(t)

	rr := do(t, h, "agent", http.MethodPost, "/filings", `{"clientId":"c1","taxYear":2024,"estimatedRefund":"950.00"}`)
	require.Equal(t, http.StatusCreated, rr.Code, rr.Body.String())
	var created map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &created))
	assert.Equal(t, "new", created["status"])
	est, ok := created["estimatedRefund"].(string)
	require.True(t, ok)
	assert.True(t, decimal.RequireFromString("950.00").Equal(decimal.RequireFromString(est)))

	rr = do(t, h, "agent", http.MethodPost, "/filings", `{"clientId":"c1","taxYear":2024}`)
	assert.Equal(t, http.StatusConflict, rr.Code)

	rr = do(t, h, "agent", http.MethodPost, "/filings/1/status", `{"status":"filed","note":"e-filed"}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var filed TaxFiling
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &filed))
	assert.Equal(t, StatusFiled, filed.Status)
	assert.NotNil(t, filed.SubmittedAt)
	assert.Len(t, filed.StatusHistory, 2)

	rr = do(t, h, "agent", http.MethodPatch, "/filings/1", `{"actualRefund":1200.00}`)
	require.Equal(t, http.StatusOK, rr.Code, rr.Body.String())
	var patched TaxFiling
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &patched))
	assert.Equal(t, "1200.00", patched.ActualRefund.Decimal.StringFixed(2))
	assert.Len(t, patched.StatusHistory, 2)

	rr = do(t, h, "client", http.MethodGet, "/clients/c1/filings", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var listed struct {
		Filings []TaxFiling `json:"filings"`
	}
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &listed))
	assert.Len(t, listed.Filings, 1)

	rr = do(t, h, "client", http.MethodGet, "/filings/metrics?year=2024", "")
	require.Equal(t, http.StatusOK, rr.Code)
	var m map[string]any
	require.NoError(t, json.Unmarshal(rr.Body.Bytes(), &m))
	assert.Len(t, m["byStatus"], 7)
}

func TestHandlerAuthorization(t *testing.T) {
	h, _ := newTestRouter(t)
	rr := do(t, h, "agent", http.MethodPost, "/filings", `{"clientId":"c1","taxYear":2024}`)
	require.Equal(t, http.StatusCreated, rr.Code)

	cases := []struct {
		name   string
		role   string
		method string
		path   string
		body   string
		want   int
	}{
		{"anonymous read", "", http.MethodGet, "/filings/1", "", http.StatusUnauthorized},
		{"client read", "client", http.MethodGet, "/filings/1", "", http.StatusOK},
		{"client status", "client", http.MethodPost, "/filings/1/status", `{"status":"review"}`, http.StatusForbidden},
		{"agent delete", "agent", http.MethodDelete, "/filings/1", "", http.StatusForbidden},
		{"tax office delete", "tax_office", http.MethodDelete, "/filings/1", "", http.StatusNoContent},
		{"admin read deleted", "admin", http.MethodGet, "/filings/1", "", http.StatusNotFound},
	}
	for _, tc := range cases {
		rr := do(t, h, tc.role, tc.method, tc.path, tc.body)
		assert.Equal(t, tc.want, rr.Code, tc.name)
	}
}

func TestHandlerValidation(t *testing.T) {
	h, _ := newTestRouter(t)
	cases := []struct {
		name   string
		method string
		path   string
		body   string
	}{
		{"missing year", http.MethodPost, "/filings", `{"clientId":"c1"}`},
		{"unknown status", http.MethodPost, "/filings", `{"clientId":"c1","taxYear":2024,"status":"lost"}`},
		{"status via patch", http.MethodPatch, "/filings/1", `{"status":"paid"}`},
		{"bad id", http.MethodPost, "/filings/abc/status", `{"status":"paid"}`},
		{"missing year query", http.MethodGet, "/filings", ""},
	}
	for _, tc := range cases {
		rr := do(t, h, "admin", tc.method, tc.path, tc.body)
		assert.Equal(t, http.StatusBadRequest, rr.Code, tc.name)
	}
}
