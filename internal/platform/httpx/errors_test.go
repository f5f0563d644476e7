package httpx

import (
	"encoding/json"
	"errors"
	"fmt"
	"net/http"
	"net/http/httptest"
	"testing"

	"github.com/jackc/pgx/v5/pgconn"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/taxpilot/taxpilot/internal/shared"
)

func decodeProblem(t *testing.T, rec *httptest.ResponseRecorder) ProblemDetail {
	t.Helper()
	var body ProblemDetail
	require.NoError(t, json.NewDecoder(rec.Body).Decode(&body))
	return body
}

func TestRespondErrorHidesDriverCause(t *testing.T) {
	pgErr := &pgconn.PgError{
		Code:           "23505",
		Message:        "duplicate key value violates unique constraint",
		ConstraintName: "tax_filings_client_id_tax_year_key",
	}
	err := fmt.Errorf("create filing: %w", &shared.PublicError{
		Kind:  shared.ErrConflict,
		Msg:   "filing for client c-1 and year 2025 already exists",
		Cause: pgErr,
	})

	require.ErrorIs(t, err, shared.ErrConflict)
	var asPg *pgconn.PgError
	require.ErrorAs(t, err, &asPg)
	assert.Contains(t, err.Error(), "tax_filings_client_id_tax_year_key")

	rec := httptest.NewRecorder()
	RespondError(rec, err)

	assert.Equal(t, http.StatusConflict, rec.Code)
	body := decodeProblem(t, rec)
	assert.Equal(t, "conflict: filing for client c-1 and year 2025 already exists", body.Detail)
	assert.NotContains(t, body.Detail, "tax_filings_client_id_tax_year_key")
	assert.NotContains(t, body.Detail, "23505")
}

func TestRespondErrorStatusMapping(t *testing.T) {
	cases := []struct {
		name   string
		err    error
		status int
	}{
		{"not found", fmt.Errorf("filing f-1: %w", shared.ErrNotFound), http.StatusNotFound},
		{"validation", fmt.Errorf("%w: tax year", shared.ErrValidation), http.StatusBadRequest},
		{"unauthenticated", shared.ErrUnauthenticated, http.StatusUnauthorized},
		{"denial", &shared.DenialError{Role: "client", Allowed: []string{"admin"}}, http.StatusForbidden},
		{"internal", errors.New("connection reset"), http.StatusInternalServerError},
	}
	for _, tc := range cases {
		t.Run(tc.name, func(t *testing.T) {
			rec := httptest.NewRecorder()
			RespondError(rec, tc.err)
			assert.Equal(t, tc.status, rec.Code)
		})
	}

	rec := httptest.NewRecorder()
	RespondError(rec, errors.New("connection reset"))
	assert.Empty(t, decodeProblem(t, rec).Detail)
}
