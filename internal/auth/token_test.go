package auth

import (
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/golang-jwt/jwt/v5"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxpilot/taxpilot/internal/shared"
)

func TestTokenRoundTrip(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", time.Hour)
	require.NoError(t, err)

	token, expiresAt, err := issuer.Issue(&User{ID: 42, Role: "agent"})
	require.NoError(t, err)
	assert.WithinDuration(t, time.Now().Add(time.Hour), expiresAt, 5*time.Second)

	userID, claims, err := issuer.Parse(token)
	require.NoError(t, err)
	assert.EqualValues(t, 42, userID)
	assert.Equal(t, "agent", claims.Role)
	assert.NotEmpty(t, claims.ID)
}

func TestTokenRejections(t *testing.T) {
	issuer, err := NewTokenIssuer("s3cret", time.Hour)
	require.NoError(t, err)
	token, _, err := issuer.Issue(&User{ID: 1, Role: "client"})
	require.NoError(t, err)

	other, err := NewTokenIssuer("different", time.Hour)
	require.NoError(t, err)
	_, _, err = other.Parse(token)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))

	issuer.now = func() time.Time { return time.Now().Add(2 * time.Hour) }
	_, _, err = issuer.Parse(token)
	assert.True(t, errors.Is(err, shared.ErrUnauthenticated))

	none, err := jwt.NewWithClaims(jwt.SigningMethodNone, jwt.MapClaims{"sub": "1", "iss": tokenIssuer}).SignedString(jwt.UnsafeAllowNoneSignatureType)
	require.NoError(t, err)
	_, _, err = other.Parse(none)
	assert.Error(t, err)

	_, _, err = issuer.Parse(strings.Repeat("x", 20))
	assert.Error(t, err)
}

func TestNewTokenIssuerRequiresSecret(t *testing.T) {
	_, err := NewTokenIssuer("", time.Hour)
	assert.Error(t, err)
}
