package kpis

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// Handler exposes the KPI endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers KPI routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.create)
	r.Get("/{kpiID}", h.get)
	r.Patch("/{kpiID}/target", h.updateTarget)
	r.Delete("/{kpiID}", h.remove)
	r.Post("/refresh/{metric}", h.refresh)
}

type createKPIRequest struct {
	UserID string  `json:"userId" validate:"required,uuid"`
	TeamID string  `json:"teamId" validate:"omitempty,uuid"`
	Metric string  `json:"metric" validate:"required,oneof=productivity efficiency quality"`
	Value  float64 `json:"value" validate:"min=0,max=100"`
	Target float64 `json:"target" validate:"min=0,max=100"`
	Period string  `json:"period" validate:"required"`
}

func (h *Handler) create(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createKPIRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("kpis: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("kpis: %s: %w", err, httpx.ErrValidation))
		return
	}
	k, err := h.service.Create(r.Context(), p, CreateInput{
		UserID: req.UserID,
		TeamID: req.TeamID,
		Metric: req.Metric,
		Value:  req.Value,
		Target: req.Target,
		Period: req.Period,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, k)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	items, err := h.service.List(r.Context(), p, r.URL.Query().Get("userId"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"kpis": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	k, err := h.service.Get(r.Context(), p, chi.URLParam(r, "kpiID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, k)
}

type targetRequest struct {
	Target float64 `json:"target" validate:"min=0,max=100"`
}

func (h *Handler) updateTarget(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req targetRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("kpis: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("kpis: %s: %w", err, httpx.ErrValidation))
		return
	}
	k, err := h.service.UpdateTarget(r.Context(), p, chi.URLParam(r, "kpiID"), req.Target)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, k)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "kpiID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

func (h *Handler) refresh(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	k, err := h.service.Refresh(r.Context(), p, r.URL.Query().Get("userId"), chi.URLParam(r, "metric"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, k)
}
