package files

import (
	"fmt"
	"net/http"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// Handler exposes the file metadata endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers file routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/", h.list)
	r.Post("/", h.register)
	r.Get("/{fileID}", h.get)
	r.Patch("/{fileID}", h.rename)
	r.Delete("/{fileID}", h.remove)
}

type registerFileRequest struct {
	Name       string `json:"name" validate:"required"`
	MimeType   string `json:"mimeType" validate:"required"`
	SizeBytes  int64  `json:"sizeBytes" validate:"min=0"`
	StorageKey string `json:"storageKey" validate:"required"`
	TeamID     string `json:"teamId" validate:"omitempty,uuid"`
	TaskID     string `json:"taskId" validate:"omitempty,uuid"`
	IsPublic   bool   `json:"isPublic"`
}

func (h *Handler) register(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req registerFileRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("files: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("files: %s: %w", err, httpx.ErrValidation))
		return
	}
	f, err := h.service.Register(r.Context(), p, RegisterInput{
		Name:       req.Name,
		MimeType:   req.MimeType,
		SizeBytes:  req.SizeBytes,
		StorageKey: req.StorageKey,
		TeamID:     req.TeamID,
		TaskID:     req.TaskID,
		IsPublic:   req.IsPublic,
	})
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, f)
}

func (h *Handler) list(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	items, err := h.service.List(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"files": items})
}

func (h *Handler) get(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	f, err := h.service.Get(r.Context(), p, chi.URLParam(r, "fileID"))
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

type renameRequest struct {
	Name string `json:"name" validate:"required"`
}

func (h *Handler) rename(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req renameRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("files: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("files: %s: %w", err, httpx.ErrValidation))
		return
	}
	f, err := h.service.Rename(r.Context(), p, chi.URLParam(r, "fileID"), req.Name)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, f)
}

func (h *Handler) remove(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.Delete(r.Context(), p, chi.URLParam(r, "fileID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}
