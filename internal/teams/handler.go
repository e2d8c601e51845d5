package teams

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// Handler exposes the team and membership endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers team routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Post("/", h.createTeam)
	r.Get("/{teamID}", h.getTeam)
	r.Get("/{teamID}/members", h.listMembers)
	r.Post("/{teamID}/members", h.addMember)
	r.Patch("/members/{userID}", h.updateMember)
	r.Delete("/members/{userID}", h.removeMember)
	r.Patch("/profile", h.updateProfile)
}

type createTeamRequest struct {
	Name         string `json:"name" validate:"required"`
	DepartmentID string `json:"departmentId" validate:"omitempty,uuid"`
}

func (h *Handler) createTeam(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createTeamRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: %s: %w", err, httpx.ErrValidation))
		return
	}
	t, err := h.service.CreateTeam(r.Context(), p, req.Name, req.DepartmentID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, t)
}

func (h *Handler) getTeam(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	t, err := h.service.GetTeam(r.Context(), p, chi.URLParam(r, "teamID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, t)
}

func (h *Handler) listMembers(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	members, err := h.service.ListMembers(r.Context(), p, chi.URLParam(r, "teamID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"members": members})
}

type addMemberRequest struct {
	UserID string `json:"userId" validate:"required,uuid"`
	Role   string `json:"role" validate:"required,oneof=admin manager employee viewer"`
}

func (h *Handler) addMember(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req addMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: %s: %w", err, httpx.ErrValidation))
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	member, err := h.service.AddMember(r.Context(), p, chi.URLParam(r, "teamID"), req.UserID, role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, member)
}

type updateMemberRequest struct {
	Role string `json:"role" validate:"required,oneof=admin manager employee viewer"`
}

func (h *Handler) updateMember(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req updateMemberRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: %s: %w", err, httpx.ErrValidation))
		return
	}
	role, err := authz.ParseRole(req.Role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	member, err := h.service.UpdateMember(r.Context(), p, chi.URLParam(r, "userID"), role)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}

func (h *Handler) removeMember(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.RemoveMember(r.Context(), p, chi.URLParam(r, "userID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type profileRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) updateProfile(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req profileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("teams: %s: %w", err, httpx.ErrValidation))
		return
	}
	member, err := h.service.UpdateProfile(r.Context(), p, req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, member)
}
