package auth_test

import (
	"context"
	"encoding/json"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/go-chi/chi/v5"
	"golang.org/x/crypto/bcrypt"

	"github.com/taxpilot/taxpilot/internal/auth"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
	_ "github.com/taxpilot/taxpilot/testing"
)

type stubRepo struct {
	users map[int64]*auth.User
}

func (s *stubRepo) FindByEmail(ctx context.Context, email string) (*auth.User, error) {
	for _, u := range s.users {
		if u.Email == email {
			return u, nil
		}
	}
	return nil, shared.ErrNotFound
}

func (s *stubRepo) FindByID(ctx context.Context, id int64) (*auth.User, error) {
	if u, ok := s.users[id]; ok {
		return u, nil
	}
	return nil, shared.ErrNotFound
}

type stubPermissions map[rbac.Role][]string

func (s stubPermissions) EffectivePermissions(ctx context.Context, role rbac.Role) ([]string, error) {
	return s[role], nil
}

func newAuthRouter(t *testing.T, repo *stubRepo) http.Handler {
	t.Helper()
	issuer, err := auth.NewTokenIssuer("secret", time.Hour)
	if err != nil {
		t.Fatalf("issuer: %v", err)
	}
	svc := auth.NewService(repo, issuer)
	handler := auth.NewHandler(nil, svc, stubPermissions{rbac.RoleAgent: {"filings.view", "filings.manage"}})
	r := chi.NewRouter()
	r.Use(auth.Authenticate(svc, nil))
	r.Route("/auth", handler.MountRoutes)
	return r
}

func agentRepo(t *testing.T) *stubRepo {
	t.Helper()
	hashed, err := bcrypt.GenerateFromPassword([]byte("correctpass"), bcrypt.MinCost)
	if err != nil {
		t.Fatalf("hash: %v", err)
	}
	return &stubRepo{users: map[int64]*auth.User{
		1: {ID: 1, Email: "agent@test.local", Role: "agent", PasswordHash: string(hashed), IsActive: true},
	}}
}

func login(t *testing.T, h http.Handler, body string) *httptest.ResponseRecorder {
	t.Helper()
	req := httptest.NewRequest(http.MethodPost, "/auth/login", strings.NewReader(body))
	req.Header.Set("Content-Type", "application/json")
	res := httptest.NewRecorder()
	h.ServeHTTP(res, req)
	return res
}

func TestLoginInvalidCredentials(t *testing.T) {
	h := newAuthRouter(t, agentRepo(t))
	res := login(t, h, `{"email":"agent@test.local","password":"wrongpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginValidation(t *testing.T) {
	h := newAuthRouter(t, agentRepo(t))
	res := login(t, h, `{"email":"not-an-email","password":"x"}`)
	if res.Code != http.StatusBadRequest {
		t.Fatalf("expected 400, got %d", res.Code)
	}
}

func TestLoginInactiveUser(t *testing.T) {
	repo := agentRepo(t)
	repo.users[1].IsActive = false
	h := newAuthRouter(t, repo)
	res := login(t, h, `{"email":"agent@test.local","password":"correctpass"}`)
	if res.Code != http.StatusUnauthorized {
		t.Fatalf("expected 401, got %d", res.Code)
	}
}

func TestLoginThenMe(t *testing.T) {
	repo := agentRepo(t)
	h := newAuthRouter(t, repo)
	res := login(t, h, `{"email":"agent@test.local","password":"correctpass"}`)
	if res.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d: %s", res.Code, res.Body.String())
	}
	var result auth.LoginResult
	if err := json.Unmarshal(res.Body.Bytes(), &result); err != nil {
		t.Fatalf("decode: %v", err)
	}
	if result.Token == "" || result.Role != "agent" {
		t.Fatalf("unexpected login result %+v", result)
	}

	req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
	req.Header.Set("Authorization", "Bearer "+result.Token)
	me := httptest.NewRecorder()
	h.ServeHTTP(me, req)
	if me.Code != http.StatusOK {
		t.Fatalf("expected 200, got %d", me.Code)
	}
	var body struct {
		UserID      int64    `json:"userId"`
		Role        string   `json:"role"`
		Permissions []string `json:"permissions"`
	}
	if err := json.Unmarshal(me.Body.Bytes(), &body); err != nil {
		t.Fatalf("decode me: %v", err)
	}
	if body.UserID != 1 || body.Role != "agent" || len(body.Permissions) != 2 {
		t.Fatalf("unexpected me body %+v", body)
	}

	// Role changes apply to existing tokens.
	repo.users[1].Role = "client"
	me = httptest.NewRecorder()
	h.ServeHTTP(me, req)
	if !strings.Contains(me.Body.String(), `"role":"client"`) {
		t.Fatalf("expected refreshed role, got %s", me.Body.String())
	}
}

func TestMeAnonymous(t *testing.T) {
	h := newAuthRouter(t, agentRepo(t))
	for _, header := range []string{"", "Bearer garbage", "Basic abc"} {
		req := httptest.NewRequest(http.MethodGet, "/auth/me", nil)
		if header != "" {
			req.Header.Set("Authorization", header)
		}
		res := httptest.NewRecorder()
		h.ServeHTTP(res, req)
		if res.Code != http.StatusUnauthorized {
			t.Fatalf("header %q: expected 401, got %d", header, res.Code)
		}
	}
}
