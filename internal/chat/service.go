package chat

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
)

// RepositoryPort defines data access methods for conversations and
// messages.
type RepositoryPort interface {
	InsertConversation(ctx context.Context, c *Conversation) error
	GetConversation(ctx context.Context, id string) (*Conversation, error)
	ListConversations(ctx context.Context, userID string) ([]Conversation, error)
	InsertMessage(ctx context.Context, m *Message) error
	GetMessage(ctx context.Context, id string) (*Message, error)
	ListMessages(ctx context.Context, conversationID string, limit int) ([]Message, error)
	UpdateMessage(ctx context.Context, m *Message) error
}

// EventPublisher fans a domain event out to a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// Service handles chat business logic.
type Service struct {
	repo   RepositoryPort
	events EventPublisher
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

// ConversationFacts resolves the authorization facts for a conversation
// as seen by one principal. Participants own the conversation for access
// purposes; team managers reach it through the team fact. Used by the
// realtime join handler.
func (s *Service) ConversationFacts(ctx context.Context, conversationID, principalID string) (authz.Facts, error) {
	c, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return authz.Facts{}, err
	}
	facts := authz.Facts{TeamID: c.TeamID}
	if c.HasParticipant(principalID) {
		facts.OwnerID = principalID
	}
	return facts, nil
}

// CreateConversation starts a conversation. The creator is always a
// participant.
func (s *Service) CreateConversation(ctx context.Context, p authz.Principal, name string, participants []string, teamID string) (*Conversation, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindConversation, authz.Facts{TeamID: teamID}); err != nil {
		return nil, err
	}
	if len(participants) == 0 {
		return nil, fmt.Errorf("chat: participants required: %w", httpx.ErrValidation)
	}
	c := &Conversation{
		ID:           uuid.NewString(),
		Name:         name,
		Participants: participants,
		TeamID:       teamID,
		CreatedBy:    p.ID,
		CreatedAt:    time.Now(),
	}
	if !c.HasParticipant(p.ID) {
		c.Participants = append(c.Participants, p.ID)
	}
	if err := s.repo.InsertConversation(ctx, c); err != nil {
		return nil, err
	}
	return c, nil
}

// ListConversations returns the conversations the principal belongs to.
func (s *Service) ListConversations(ctx context.Context, p authz.Principal) ([]Conversation, error) {
	return s.repo.ListConversations(ctx, p.ID)
}

// ListMessages returns recent messages from a conversation the principal
// may read.
func (s *Service) ListMessages(ctx context.Context, p authz.Principal, conversationID string, limit int) ([]Message, error) {
	if _, err := s.authorizeConversation(ctx, p, conversationID); err != nil {
		return nil, err
	}
	if limit <= 0 || limit > 200 {
		limit = 50
	}
	return s.repo.ListMessages(ctx, conversationID, limit)
}

// SendMessage posts a message and pushes it to the conversation room.
func (s *Service) SendMessage(ctx context.Context, p authz.Principal, conversationID, text string) (*Message, error) {
	if text == "" {
		return nil, fmt.Errorf("chat: message text required: %w", httpx.ErrValidation)
	}
	if _, err := s.authorizeConversation(ctx, p, conversationID); err != nil {
		return nil, err
	}
	m := &Message{
		ID:             uuid.NewString(),
		ConversationID: conversationID,
		SenderID:       p.ID,
		Text:           text,
		CreatedAt:      time.Now(),
	}
	if err := s.repo.InsertMessage(ctx, m); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.ConversationRoom(conversationID), realtime.EventNewMessage, m)
	return m, nil
}

// EditMessage rewrites the text of the principal's own message.
func (s *Service) EditMessage(ctx context.Context, p authz.Principal, messageID, text string) (*Message, error) {
	if text == "" {
		return nil, fmt.Errorf("chat: message text required: %w", httpx.ErrValidation)
	}
	m, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	// Edits are sender-only: even managers may not rewrite someone
	// else's words.
	if m.SenderID != p.ID {
		return nil, fmt.Errorf("chat: not the sender: %w", httpx.ErrForbidden)
	}
	now := time.Now()
	m.Text = text
	m.EditedAt = &now
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.ConversationRoom(m.ConversationID), realtime.EventMessageUpdated, m)
	return m, nil
}

// DeleteMessage removes a message's content. Senders delete their own;
// managers and admins may moderate anyone's.
func (s *Service) DeleteMessage(ctx context.Context, p authz.Principal, messageID string) error {
	m, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return err
	}
	if m.SenderID != p.ID {
		if err := authz.Authorize(p, authz.ActionDelete, authz.KindConversation, authz.Facts{OwnerID: m.SenderID}); err != nil {
			return err
		}
	}
	m.IsDeleted = true
	m.Text = ""
	m.Reactions = nil
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return err
	}
	s.events.Publish(ctx, realtime.ConversationRoom(m.ConversationID), realtime.EventMessageDeleted, map[string]string{"messageId": m.ID})
	return nil
}

// React toggles the principal's emoji reaction on a message.
func (s *Service) React(ctx context.Context, p authz.Principal, messageID, emoji string) (*Message, error) {
	if emoji == "" {
		return nil, fmt.Errorf("chat: emoji required: %w", httpx.ErrValidation)
	}
	m, err := s.loadMessage(ctx, messageID)
	if err != nil {
		return nil, err
	}
	if _, err := s.authorizeConversation(ctx, p, m.ConversationID); err != nil {
		return nil, err
	}
	removed := false
	for i, r := range m.Reactions {
		if r.UserID == p.ID && r.Emoji == emoji {
			m.Reactions = append(m.Reactions[:i], m.Reactions[i+1:]...)
			removed = true
			break
		}
	}
	if !removed {
		m.Reactions = append(m.Reactions, Reaction{UserID: p.ID, Emoji: emoji})
	}
	if err := s.repo.UpdateMessage(ctx, m); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.ConversationRoom(m.ConversationID), realtime.EventMessageReaction, m)
	return m, nil
}

func (s *Service) authorizeConversation(ctx context.Context, p authz.Principal, conversationID string) (*Conversation, error) {
	c, err := s.repo.GetConversation(ctx, conversationID)
	if err != nil {
		return nil, err
	}
	facts := authz.Facts{TeamID: c.TeamID}
	if c.HasParticipant(p.ID) {
		facts.OwnerID = p.ID
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindConversation, facts); err != nil {
		return nil, err
	}
	return c, nil
}

func (s *Service) loadMessage(ctx context.Context, id string) (*Message, error) {
	m, err := s.repo.GetMessage(ctx, id)
	if err != nil {
		return nil, err
	}
	if m.IsDeleted {
		return nil, fmt.Errorf("chat: message %s: %w", id, httpx.ErrNotFound)
	}
	return m, nil
}
