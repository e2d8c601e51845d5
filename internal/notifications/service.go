package notifications

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/shared"
)

// RepositoryPort defines data access methods for notifications. Every
// lookup takes the owner id; rows belonging to other users are invisible.
type RepositoryPort interface {
	Insert(ctx context.Context, n *Notification) error
	ListByUser(ctx context.Context, userID string, unreadOnly bool, limit, offset int) ([]Notification, int, error)
	Get(ctx context.Context, id, userID string) (*Notification, error)
	MarkRead(ctx context.Context, id, userID string) error
	MarkAllRead(ctx context.Context, userID string) (int64, error)
	Delete(ctx context.Context, id, userID string) error
}

// EventPublisher fans a domain event out to a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// Service handles notification business logic.
type Service struct {
	repo   RepositoryPort
	events EventPublisher
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

// Notify creates a notification for a user and pushes it to their
// notifications room. It is called by other services, not the HTTP
// surface, so there is no principal check beyond input validation.
func (s *Service) Notify(ctx context.Context, userID, title, message, kind string) (*Notification, error) {
	if userID == "" || title == "" {
		return nil, fmt.Errorf("notifications: user and title required: %w", httpx.ErrValidation)
	}
	if kind == "" {
		kind = TypeSystem
	}
	if !validType(kind) {
		return nil, fmt.Errorf("notifications: invalid type %q: %w", kind, httpx.ErrValidation)
	}
	n := &Notification{
		ID:        uuid.NewString(),
		UserID:    userID,
		Title:     title,
		Message:   message,
		Type:      kind,
		CreatedAt: time.Now(),
	}
	if err := s.repo.Insert(ctx, n); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.NotificationsRoom(userID), realtime.EventNewNotification, n)
	return n, nil
}

// List returns one page of the principal's own notifications.
func (s *Service) List(ctx context.Context, p authz.Principal, unreadOnly bool, page, perPage int) ([]Notification, shared.Pagination, error) {
	page, perPage = shared.NormalizePage(page, perPage)
	items, total, err := s.repo.ListByUser(ctx, p.ID, unreadOnly, perPage, shared.PageOffset(page, perPage))
	if err != nil {
		return nil, shared.Pagination{}, err
	}
	return items, shared.NewPagination(page, perPage, total), nil
}

// MarkRead flags one of the principal's notifications as read. A foreign
// id is indistinguishable from a missing one.
func (s *Service) MarkRead(ctx context.Context, p authz.Principal, id string) error {
	n, err := s.repo.Get(ctx, id, p.ID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindNotification, authz.Facts{OwnerID: n.UserID}); err != nil {
		return err
	}
	if n.IsRead {
		return nil
	}
	if err := s.repo.MarkRead(ctx, id, p.ID); err != nil {
		return err
	}
	s.events.Publish(ctx, realtime.NotificationsRoom(p.ID), realtime.EventNotificationRead, map[string]string{"notificationId": id})
	return nil
}

// MarkAllRead flags every unread notification of the principal as read
// and announces the bulk update once.
func (s *Service) MarkAllRead(ctx context.Context, p authz.Principal) (int64, error) {
	count, err := s.repo.MarkAllRead(ctx, p.ID)
	if err != nil {
		return 0, err
	}
	if count > 0 {
		s.events.Publish(ctx, realtime.NotificationsRoom(p.ID), realtime.EventNotificationsBulkRead, map[string]int64{"count": count})
	}
	return count, nil
}

// Delete removes one of the principal's notifications.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id string) error {
	n, err := s.repo.Get(ctx, id, p.ID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionDelete, authz.KindNotification, authz.Facts{OwnerID: n.UserID}); err != nil {
		return err
	}
	if err := s.repo.Delete(ctx, id, p.ID); err != nil {
		return err
	}
	s.events.Publish(ctx, realtime.NotificationsRoom(p.ID), realtime.EventNotificationDeleted, map[string]string{"notificationId": id})
	return nil
}
