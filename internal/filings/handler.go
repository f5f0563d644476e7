package filings

import (
	"fmt"
	"log/slog"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taxpilot/taxpilot/internal/platform/httpx"
	"github.com/taxpilot/taxpilot/internal/rbac"
	"github.com/taxpilot/taxpilot/internal/shared"
)

// Handler exposes filing endpoints.
type Handler struct {
	logger    *slog.Logger
	service   *Service
	rbac      rbac.Middleware
	validator *validator.Validate
}

// NewHandler builds a Handler.
func NewHandler(logger *slog.Logger, service *Service, rbac rbac.Middleware) *Handler {
	if logger == nil {
		logger = slog.Default()
	}
	return &Handler{logger: logger, service: service, rbac: rbac, validator: validator.New()}
}

// MountRoutes registers routes under /filings.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermFilingsView))
		r.Get("/", h.listByYear)
		r.Get("/metrics", h.metrics)
		r.Get("/{id}", h.get)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequirePermission(shared.PermFilingsManage))
		r.Post("/", h.create)
		r.Patch("/{id}", h.update)
		r.Post("/{id}/status", h.updateStatus)
	})
	r.Group(func(r chi.Router) {
		r.Use(h.rbac.RequireMinimumRole(rbac.RoleTaxOffice))
		r.Use(h.rbac.RequirePermission(shared.PermFilingsManage))
		r.Delete("/{id}", h.delete)
	})
}

// MountClientRoutes registers routes under /clients/{clientID}.
func (h *Handler) MountClientRoutes(r chi.Router) {
	r.With(h.rbac.RequirePermission(shared.PermFilingsView)).Get("/filings", h.listByClient)
}

func (h *Handler) listByYear(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	items, err := h.service.ListByYear(r.Context(), year)
	if err != nil {
		h.logger.Error("list filings", slog.Int("year", year), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"filings": nonNil(items)})
}

func (h *Handler) listByClient(w http.ResponseWriter, r *http.Request) {
	clientID := chi.URLParam(r, "clientID")
	items, err := h.service.ListByClient(r.Context(), clientID)
	if err != nil {
		h.logger.Error("list client filings", slog.String("client_id", clientID), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"filings": nonNil(items)})
}

func (h *Handler) metrics(w http.ResponseWriter, r *http.Request) {
	year, err := yearParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	m, err := h.service.Metrics(r.Context(), year)
	if err != nil {
		h.logger.Error("filing metrics", slog.Int("year", year), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	f, err := h.service.Get(r.Context(), id)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	var req createFilingRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.service.Create(r.Context(), actorID(r), req.input())
	if err != nil {
		h.logger.Warn("create filing", slog.String("client_id", req.ClientID), slog.Int("tax_year", req.TaxYear), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) update(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req patchFilingRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.service.Update(r.Context(), actorID(r), id, req.patch())
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) updateStatus(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	var req statusRequest
	if !h.decode(w, r, &req) {
		return
	}
	f, err := h.service.UpdateStatus(r.Context(), actorID(r), id, Status(req.Status), req.Note)
	if err != nil {
		h.logger.Warn("update filing status", slog.Int64("filing_id", id), slog.String("status", req.Status), slog.Any("error", err))
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) delete(w http.ResponseWriter, r *http.Request) {
	id, err := idParam(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	if err := h.service.Delete(r.Context(), actorID(r), id); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) decode(w http.ResponseWriter, r *http.Request, dst any) bool {
	if err := httpx.DecodeJSON(r, dst); err != nil {
		httpx.RespondError(w, err)
		return false
	}
	if err := h.validator.Struct(dst); err != nil {
		httpx.Problem(w, http.StatusBadRequest, "Validation Failed", err.Error())
		return false
	}
	return true
}

func idParam(r *http.Request) (int64, error) {
	raw := chi.URLParam(r, "id")
	id, err := strconv.ParseInt(raw, 10, 64)
	if err != nil || id <= 0 {
		return 0, fmt.Errorf("%w: invalid filing id %q", shared.ErrValidation, raw)
	}
	return id, nil
}

func yearParam(r *http.Request) (int, error) {
	raw := r.URL.Query().Get("year")
	year, err := strconv.Atoi(raw)
	if err != nil || year <= 0 {
		return 0, fmt.Errorf("%w: year query parameter required", shared.ErrValidation)
	}
	return year, nil
}

func actorID(r *http.Request) int64 {
	if p := shared.PrincipalFromContext(r.Context()); p != nil {
		return p.UserID
	}
	return 0
}

func nonNil(items []TaxFiling) []TaxFiling {
	if items == nil {
		return []TaxFiling{}
	}
	return items
}
