// Package httpx provides HTTP response utilities.
package httpx

import (
	"errors"
	"net/http"

	"github.com/taxpilot/taxpilot/internal/shared"
)

// RespondError maps domain errors to HTTP responses using RFC7807.
func RespondError(w http.ResponseWriter, err error) {
	var denial *shared.DenialError
	switch {
	case errors.As(err, &denial):
		JSON(w, http.StatusForbidden, ProblemDetail{
			Title:   "Forbidden",
			Status:  http.StatusForbidden,
			Detail:  denial.Error(),
			Role:    denial.Role,
			Allowed: denial.Allowed,
			Missing: denial.Missing,
		})
	case errors.Is(err, shared.ErrNotFound):
		Problem(w, http.StatusNotFound, "Not Found", detail(err))
	case errors.Is(err, shared.ErrConflict):
		Problem(w, http.StatusConflict, "Conflict", detail(err))
	case errors.Is(err, shared.ErrValidation):
		Problem(w, http.StatusBadRequest, "Validation Failed", detail(err))
	case errors.Is(err, shared.ErrInvalidCredentials):
		Problem(w, http.StatusUnauthorized, "Unauthorized", detail(err))
	case errors.Is(err, shared.ErrUnauthenticated):
		Problem(w, http.StatusUnauthorized, "Unauthorized", detail(err))
	case errors.Is(err, shared.ErrNoRole):
		Problem(w, http.StatusUnauthorized, "No Role Assigned", detail(err))
	case errors.Is(err, shared.ErrForbidden):
		Problem(w, http.StatusForbidden, "Forbidden", detail(err))
	default:
		Problem(w, http.StatusInternalServerError, "Internal Error", "")
	}
}

func detail(err error) string {
	var public *shared.PublicError
	if errors.As(err, &public) {
		return public.Public()
	}
	return err.Error()
}
