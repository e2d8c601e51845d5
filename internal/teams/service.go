package teams

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

// RepositoryPort defines data access methods for teams and membership.
type RepositoryPort interface {
	InsertTeam(ctx context.Context, t *Team) error
	GetTeam(ctx context.Context, id string) (*Team, error)
	ListTeams(ctx context.Context) ([]Team, error)
	GetMember(ctx context.Context, userID string) (*Member, error)
	ListMembers(ctx context.Context, teamID string) ([]Member, error)
	SetMembership(ctx context.Context, userID, teamID string, role authz.Role) error
	ClearMembership(ctx context.Context, userID string) error
	UpdateProfile(ctx context.Context, userID, name string) error
}

// EventPublisher fans a domain event out to a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// Service handles team and membership business logic.
type Service struct {
	repo   RepositoryPort
	events EventPublisher
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, events EventPublisher) *Service {
	return &Service{repo: repo, events: events}
}

// CreateTeam registers a new team. Team names are normalized to display
// casing.
func (s *Service) CreateTeam(ctx context.Context, p authz.Principal, name, departmentID string) (*Team, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindMember, authz.Facts{}); err != nil {
		return nil, err
	}
	if name == "" {
		return nil, fmt.Errorf("teams: name required: %w", httpx.ErrValidation)
	}
	now := time.Now()
	t := &Team{
		ID:           uuid.NewString(),
		Name:         shared.DisplayName(name),
		DepartmentID: departmentID,
		ManagerID:    p.ID,
		CreatedAt:    now,
		UpdatedAt:    now,
	}
	if err := s.repo.InsertTeam(ctx, t); err != nil {
		return nil, err
	}
	return t, nil
}

// GetTeam loads a team visible to the principal.
func (s *Service) GetTeam(ctx context.Context, p authz.Principal, id string) (*Team, error) {
	t, err := s.repo.GetTeam(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindMember, authz.Facts{TeamID: t.ID}); err != nil {
		return nil, err
	}
	return t, nil
}

// ListMembers returns the roster of a team the principal may see.
func (s *Service) ListMembers(ctx context.Context, p authz.Principal, teamID string) ([]Member, error) {
	if err := authz.Authorize(p, authz.ActionRead, authz.KindMember, authz.Facts{TeamID: teamID}); err != nil {
		return nil, err
	}
	return s.repo.ListMembers(ctx, teamID)
}

// AddMember places a user on a team and announces it to the room.
func (s *Service) AddMember(ctx context.Context, p authz.Principal, teamID, userID string, role authz.Role) (*Member, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindMember, authz.Facts{TeamID: teamID, TargetUserID: userID, GrantedRole: role}); err != nil {
		return nil, err
	}
	if _, err := s.repo.GetTeam(ctx, teamID); err != nil {
		return nil, err
	}
	if err := s.repo.SetMembership(ctx, userID, teamID, role); err != nil {
		return nil, err
	}
	member, err := s.repo.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.TeamRoom(teamID), realtime.EventMemberAdded, member)
	return member, nil
}

// UpdateMember changes a member's role. Granting admin to yourself is
// always refused.
func (s *Service) UpdateMember(ctx context.Context, p authz.Principal, userID string, role authz.Role) (*Member, error) {
	member, err := s.repo.GetMember(ctx, userID)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindMember, authz.Facts{TeamID: member.TeamID, TargetUserID: userID, GrantedRole: role}); err != nil {
		return nil, err
	}
	if member.TeamID == "" {
		return nil, fmt.Errorf("teams: user %s has no team: %w", userID, httpx.ErrValidation)
	}
	if err := s.repo.SetMembership(ctx, userID, member.TeamID, role); err != nil {
		return nil, err
	}
	member.Role = role
	member.RoleName = role.String()
	s.events.Publish(ctx, realtime.TeamRoom(member.TeamID), realtime.EventMemberUpdated, member)
	s.events.Publish(ctx, realtime.UserRoom(userID), realtime.EventMemberUpdated, member)
	return member, nil
}

// RemoveMember takes a user off their team. The room hears the removal;
// the user is told directly so their client can drop team state.
func (s *Service) RemoveMember(ctx context.Context, p authz.Principal, userID string) error {
	member, err := s.repo.GetMember(ctx, userID)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionDelete, authz.KindMember, authz.Facts{TeamID: member.TeamID, TargetUserID: userID}); err != nil {
		return err
	}
	if member.TeamID == "" {
		return fmt.Errorf("teams: user %s has no team: %w", userID, httpx.ErrValidation)
	}
	if err := s.repo.ClearMembership(ctx, userID); err != nil {
		return err
	}
	payload := map[string]string{"userId": userID, "teamId": member.TeamID}
	s.events.Publish(ctx, realtime.TeamRoom(member.TeamID), realtime.EventMemberRemoved, payload)
	s.events.Publish(ctx, realtime.UserRoom(userID), realtime.EventRemovedFromTeam, payload)
	return nil
}

// UpdateProfile lets a user rename themselves; the new display name is
// announced to their team.
func (s *Service) UpdateProfile(ctx context.Context, p authz.Principal, name string) (*Member, error) {
	if name == "" {
		return nil, fmt.Errorf("teams: name required: %w", httpx.ErrValidation)
	}
	display := shared.DisplayName(name)
	if err := s.repo.UpdateProfile(ctx, p.ID, display); err != nil {
		return nil, err
	}
	member, err := s.repo.GetMember(ctx, p.ID)
	if err != nil {
		return nil, err
	}
	if member.TeamID != "" {
		s.events.Publish(ctx, realtime.TeamRoom(member.TeamID), realtime.EventProfileUpdated, member)
	}
	s.events.Publish(ctx, realtime.UserRoom(p.ID), realtime.EventProfileUpdated, member)
	return member, nil
}
