package chat

import (
	"fmt"
	"net/http"
	"strconv"

	"github.com/go-chi/chi/v5"
	"github.com/go-playground/validator/v10"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// Handler exposes the chat endpoints.
type Handler struct {
	service  *Service
	validate *validator.Validate
}

// NewHandler builds a Handler instance.
func NewHandler(service *Service) *Handler {
	return &Handler{service: service, validate: validator.New()}
}

// MountRoutes registers chat routes.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/conversations", h.listConversations)
	r.Post("/conversations", h.createConversation)
	r.Get("/conversations/{conversationID}/messages", h.listMessages)
	r.Post("/conversations/{conversationID}/messages", h.sendMessage)
	r.Patch("/messages/{messageID}", h.editMessage)
	r.Delete("/messages/{messageID}", h.deleteMessage)
	r.Post("/messages/{messageID}/reactions", h.react)
}

type createConversationRequest struct {
	Name         string   `json:"name"`
	Participants []string `json:"participants" validate:"required,min=1,dive,uuid"`
	TeamID       string   `json:"teamId" validate:"omitempty,uuid"`
}

func (h *Handler) createConversation(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req createConversationRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: %s: %w", err, httpx.ErrValidation))
		return
	}
	c, err := h.service.CreateConversation(r.Context(), p, req.Name, req.Participants, req.TeamID)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, c)
}

func (h *Handler) listConversations(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	items, err := h.service.ListConversations(r.Context(), p)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"conversations": items})
}

func (h *Handler) listMessages(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	limit, _ := strconv.Atoi(r.URL.Query().Get("limit"))
	items, err := h.service.ListMessages(r.Context(), p, chi.URLParam(r, "conversationID"), limit)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, map[string]any{"messages": items})
}

type messageRequest struct {
	Text string `json:"text" validate:"required"`
}

func (h *Handler) sendMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req messageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: %s: %w", err, httpx.ErrValidation))
		return
	}
	m, err := h.service.SendMessage(r.Context(), p, chi.URLParam(r, "conversationID"), req.Text)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusCreated, m)
}

func (h *Handler) editMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req messageRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: %s: %w", err, httpx.ErrValidation))
		return
	}
	m, err := h.service.EditMessage(r.Context(), p, chi.URLParam(r, "messageID"), req.Text)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}

func (h *Handler) deleteMessage(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	if err := h.service.DeleteMessage(r.Context(), p, chi.URLParam(r, "messageID")); err != nil {
		httpx.RespondError(w, err)
		return
	}
	w.WriteHeader(http.StatusNoContent)
}

type reactionRequest struct {
	Emoji string `json:"emoji" validate:"required"`
}

func (h *Handler) react(w http.ResponseWriter, r *http.Request) {
	p, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}
	var req reactionRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: decode body: %w", httpx.ErrValidation))
		return
	}
	if err := h.validate.Struct(req); err != nil {
		httpx.RespondError(w, fmt.Errorf("chat: %s: %w", err, httpx.ErrValidation))
		return
	}
	m, err := h.service.React(r.Context(), p, chi.URLParam(r, "messageID"), req.Emoji)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	httpx.JSON(w, http.StatusOK, m)
}
