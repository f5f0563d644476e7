package auth

import (
	"errors"
	"log/slog"
	"net/http"
	"strings"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// TokenCookie is consulted when no Authorization header is sent.
const TokenCookie = "access_token"

// Authenticate resolves the bearer token into a Principal on the request
// context. Requests without a valid token continue anonymously.
func Authenticate(service *Service, logger *slog.Logger) func(http.Handler) http.Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return func(next http.Handler) http.Handler {
		return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
			token := bearerToken(r)
			if token == "" {
				next.ServeHTTP(w, r)
				return
			}
			principal, err := service.Principal(r.Context(), token)
			if err != nil {
				if !errors.Is(err, shared.ErrUnauthenticated) && !errors.Is(err, shared.ErrNotFound) {
					logger.Error("resolve principal", slog.Any("error", err))
				}
				next.ServeHTTP(w, r)
				return
			}
			next.ServeHTTP(w, r.WithContext(shared.ContextWithPrincipal(r.Context(), principal)))
		})
	}
}

func bearerToken(r *http.Request) string {
	if header := r.Header.Get("Authorization"); header != "" {
		scheme, token, ok := strings.Cut(header, " ")
		if !ok || !strings.EqualFold(scheme, "Bearer") {
			return ""
		}
		return strings.TrimSpace(token)
	}
	if c, err := r.Cookie(TokenCookie); err == nil {
		return c.Value
	}
	return ""
}
