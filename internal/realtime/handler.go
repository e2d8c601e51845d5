package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/go-chi/chi/v5"
	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// ConversationResolver loads the relationship facts tying a principal to a
// conversation, used to authorize join-chat commands.
type ConversationResolver interface {
	ConversationFacts(ctx context.Context, conversationID, principalID string) (authz.Facts, error)
}

// HandlerConfig collects the realtime endpoint knobs.
type HandlerConfig struct {
	// OpenJoins disables join-time authorization, restoring the
	// trust-the-client behavior of older deployments.
	OpenJoins     bool
	SessionBuffer int
	WriteTimeout  time.Duration
	Heartbeat     time.Duration
}

// Handler exposes the event stream and room join commands over HTTP.
type Handler struct {
	logger        *slog.Logger
	registry      *Registry
	metrics       Metrics
	conversations ConversationResolver
	cfg           HandlerConfig
}

// NewHandler builds a Handler. metrics and conversations may be nil.
func NewHandler(logger *slog.Logger, registry *Registry, metrics Metrics, conversations ConversationResolver, cfg HandlerConfig) *Handler {
	if cfg.SessionBuffer <= 0 {
		cfg.SessionBuffer = 64
	}
	if cfg.WriteTimeout <= 0 {
		cfg.WriteTimeout = 10 * time.Second
	}
	if cfg.Heartbeat <= 0 {
		cfg.Heartbeat = 25 * time.Second
	}
	return &Handler{logger: logger, registry: registry, metrics: metrics, conversations: conversations, cfg: cfg}
}

// MountRoutes registers realtime routes. The caller applies authentication.
func (h *Handler) MountRoutes(r chi.Router) {
	r.Get("/stream", h.stream)
	r.Post("/sessions/{sessionID}/join", h.join)
	r.Post("/sessions/{sessionID}/leave", h.leave)
}

// stream opens a server-sent-events connection, registers a session handle
// and joins the caller's own user room. The handle id is announced in the
// first event so the client can issue join commands for it.
func (h *Handler) stream(w http.ResponseWriter, r *http.Request) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		httpx.RespondError(w, httpx.ErrUnauthorized)
		return
	}

	rc := http.NewResponseController(w)

	s := newSession(uuid.NewString(), principal.ID, h.cfg.SessionBuffer)
	h.registry.Register(s)
	h.registry.Join(s, UserRoom(principal.ID))
	if h.metrics != nil {
		h.metrics.SessionConnected()
	}
	defer func() {
		h.registry.DropSession(s)
		if h.metrics != nil {
			h.metrics.SessionDisconnected()
		}
	}()

	w.Header().Set("Content-Type", "text/event-stream")
	w.Header().Set("Cache-Control", "no-cache")
	w.Header().Set("Connection", "keep-alive")
	w.WriteHeader(http.StatusOK)

	if err := h.writeEvent(w, rc, Event{Name: "connected", Payload: map[string]string{"sessionId": s.ID()}}); err != nil {
		return
	}

	heartbeat := time.NewTicker(h.cfg.Heartbeat)
	defer heartbeat.Stop()

	for {
		select {
		case <-r.Context().Done():
			return
		case <-s.Done():
			return
		case ev := <-s.out:
			if err := h.writeEvent(w, rc, ev); err != nil {
				h.logger.Debug("realtime: write event",
					slog.String("session", s.ID()),
					slog.Any("error", err))
				return
			}
		case <-heartbeat.C:
			if err := h.writeComment(w, rc, "ping"); err != nil {
				return
			}
		}
	}
}

func (h *Handler) writeEvent(w http.ResponseWriter, rc *http.ResponseController, ev Event) error {
	data, err := json.Marshal(ev.Payload)
	if err != nil {
		return fmt.Errorf("realtime: encode payload: %w", err)
	}
	if err := rc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprintf(w, "event: %s\ndata: %s\n\n", ev.Name, data); err != nil {
		return err
	}
	return rc.Flush()
}

func (h *Handler) writeComment(w http.ResponseWriter, rc *http.ResponseController, comment string) error {
	if err := rc.SetWriteDeadline(time.Now().Add(h.cfg.WriteTimeout)); err != nil && !errors.Is(err, http.ErrNotSupported) {
		return err
	}
	if _, err := fmt.Fprintf(w, ": %s\n\n", comment); err != nil {
		return err
	}
	return rc.Flush()
}

// joinRequest carries one room command: join-user, join-team,
// join-department, join-notifications, join-chat, join-tasks or
// join-analytics, plus the scope id.
type joinRequest struct {
	Command string `json:"command"`
	ID      string `json:"id"`
}

func (h *Handler) join(w http.ResponseWriter, r *http.Request) {
	principal, s, req, err := h.resolveCommand(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	room, err := h.roomFor(r.Context(), principal, req)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	h.registry.Join(s, room)
	httpx.JSON(w, http.StatusOK, map[string]string{"room": room})
}

func (h *Handler) leave(w http.ResponseWriter, r *http.Request) {
	_, s, req, err := h.resolveCommand(r)
	if err != nil {
		httpx.RespondError(w, err)
		return
	}
	room, ok := deriveRoom(req.Command, req.ID)
	if !ok {
		httpx.RespondError(w, fmt.Errorf("realtime: unknown command %q: %w", req.Command, httpx.ErrValidation))
		return
	}
	h.registry.Leave(s, room)
	httpx.JSON(w, http.StatusOK, map[string]string{"room": room})
}

func (h *Handler) resolveCommand(r *http.Request) (authz.Principal, *Session, joinRequest, error) {
	principal, ok := shared.PrincipalFromContext(r.Context())
	if !ok {
		return authz.Principal{}, nil, joinRequest{}, httpx.ErrUnauthorized
	}
	var req joinRequest
	if err := httpx.DecodeJSON(r, &req); err != nil {
		return authz.Principal{}, nil, joinRequest{}, fmt.Errorf("realtime: decode body: %w", httpx.ErrValidation)
	}
	if req.ID == "" {
		return authz.Principal{}, nil, joinRequest{}, fmt.Errorf("realtime: scope id required: %w", httpx.ErrValidation)
	}
	sid := chi.URLParam(r, "sessionID")
	s, ok := h.registry.Session(sid)
	if !ok || s.PrincipalID() != principal.ID {
		// A session handle belongs to the connection that created it;
		// other principals cannot tell a foreign handle from a stale one.
		return authz.Principal{}, nil, joinRequest{}, fmt.Errorf("realtime: session %s: %w", sid, httpx.ErrNotFound)
	}
	return principal, s, req, nil
}

func deriveRoom(command, id string) (string, bool) {
	switch command {
	case "join-user":
		return UserRoom(id), true
	case "join-team":
		return TeamRoom(id), true
	case "join-department":
		return DepartmentRoom(id), true
	case "join-notifications":
		return NotificationsRoom(id), true
	case "join-chat":
		return ConversationRoom(id), true
	case "join-tasks":
		return TasksRoom(id), true
	case "join-analytics":
		return AnalyticsRoom(id), true
	default:
		return "", false
	}
}

// roomFor derives the room key and, unless OpenJoins is set, authorizes
// the join with the same evaluator the REST surface uses.
func (h *Handler) roomFor(ctx context.Context, p authz.Principal, req joinRequest) (string, error) {
	room, ok := deriveRoom(req.Command, req.ID)
	if !ok {
		return "", fmt.Errorf("realtime: unknown command %q: %w", req.Command, httpx.ErrValidation)
	}
	if h.cfg.OpenJoins {
		return room, nil
	}

	var err error
	switch req.Command {
	case "join-user":
		if req.ID != p.ID {
			err = authz.Authorize(p, authz.ActionRead, authz.KindMember, authz.Facts{TargetUserID: req.ID})
		}
	case "join-team":
		err = authz.Authorize(p, authz.ActionRead, authz.KindMember, authz.Facts{TeamID: req.ID})
	case "join-department":
		err = authz.Authorize(p, authz.ActionRead, authz.KindDepartment, authz.Facts{DepartmentID: req.ID})
	case "join-notifications":
		err = authz.Authorize(p, authz.ActionRead, authz.KindNotification, authz.Facts{OwnerID: req.ID})
	case "join-tasks":
		err = authz.Authorize(p, authz.ActionRead, authz.KindTask, authz.Facts{OwnerID: req.ID})
	case "join-analytics":
		err = authz.Authorize(p, authz.ActionRead, authz.KindKPI, authz.Facts{OwnerID: req.ID})
	case "join-chat":
		if h.conversations == nil {
			return "", fmt.Errorf("realtime: conversation joins unavailable: %w", httpx.ErrForbidden)
		}
		var facts authz.Facts
		facts, err = h.conversations.ConversationFacts(ctx, req.ID, p.ID)
		if err == nil {
			err = authz.Authorize(p, authz.ActionRead, authz.KindConversation, facts)
		}
	}
	if err != nil {
		return "", err
	}
	return room, nil
}
