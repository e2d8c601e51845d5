package kpis

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
)

// RepositoryPort defines data access methods for KPIs.
type RepositoryPort interface {
	Insert(ctx context.Context, k *KPI) error
	Get(ctx context.Context, id string) (*KPI, error)
	List(ctx context.Context, userID, teamID string) ([]KPI, error)
	Update(ctx context.Context, k *KPI) error
	Delete(ctx context.Context, id string) error
	Upsert(ctx context.Context, k *KPI) error
}

// Estimator computes the current score of one metric for a user.
// Implementations range from task-completion ratios to external
// analytics systems.
type Estimator interface {
	Score(ctx context.Context, userID, metric string) (float64, error)
}

// EventPublisher fans a domain event out to a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// Service handles KPI business logic.
type Service struct {
	repo      RepositoryPort
	estimator Estimator
	events    EventPublisher
}

// NewService builds a Service instance.
func NewService(repo RepositoryPort, estimator Estimator, events EventPublisher) *Service {
	return &Service{repo: repo, estimator: estimator, events: events}
}

// CreateInput carries the fields accepted on KPI creation.
type CreateInput struct {
	UserID string
	TeamID string
	Metric string
	Value  float64
	Target float64
	Period string
}

// Create records a KPI for a user.
func (s *Service) Create(ctx context.Context, p authz.Principal, input CreateInput) (*KPI, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindKPI, authz.Facts{TeamID: input.TeamID}); err != nil {
		return nil, err
	}
	if !validMetric(input.Metric) {
		return nil, fmt.Errorf("kpis: invalid metric %q: %w", input.Metric, httpx.ErrValidation)
	}
	if input.UserID == "" || input.Period == "" {
		return nil, fmt.Errorf("kpis: user and period required: %w", httpx.ErrValidation)
	}
	now := time.Now()
	k := &KPI{
		ID:        uuid.NewString(),
		UserID:    input.UserID,
		TeamID:    input.TeamID,
		Metric:    input.Metric,
		Value:     input.Value,
		Target:    input.Target,
		Period:    input.Period,
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Insert(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// List returns KPIs the principal may see: their own, or the whole team
// for managers.
func (s *Service) List(ctx context.Context, p authz.Principal, userID string) ([]KPI, error) {
	if userID == "" {
		userID = p.ID
	}
	if userID != p.ID {
		if err := authz.Authorize(p, authz.ActionRead, authz.KindKPI, authz.Facts{OwnerID: userID, TeamID: p.TeamID}); err != nil {
			return nil, err
		}
	}
	return s.repo.List(ctx, userID, "")
}

// Get loads one KPI the principal may read.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*KPI, error) {
	k, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindKPI, authz.Facts{OwnerID: k.UserID, TeamID: k.TeamID}); err != nil {
		return nil, err
	}
	return k, nil
}

// UpdateTarget adjusts the target of a KPI.
func (s *Service) UpdateTarget(ctx context.Context, p authz.Principal, id string, target float64) (*KPI, error) {
	k, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionUpdate, authz.KindKPI, authz.Facts{OwnerID: k.UserID, TeamID: k.TeamID}); err != nil {
		return nil, err
	}
	k.Target = target
	k.UpdatedAt = time.Now()
	if err := s.repo.Update(ctx, k); err != nil {
		return nil, err
	}
	return k, nil
}

// Delete removes a KPI. Managers only.
func (s *Service) Delete(ctx context.Context, p authz.Principal, id string) error {
	k, err := s.repo.Get(ctx, id)
	if err != nil {
		return err
	}
	if err := authz.Authorize(p, authz.ActionDelete, authz.KindKPI, authz.Facts{OwnerID: k.UserID, TeamID: k.TeamID}); err != nil {
		return err
	}
	return s.repo.Delete(ctx, id)
}

var refreshEvents = map[string]string{
	MetricProductivity: realtime.EventProductivityUpdated,
	MetricEfficiency:   realtime.EventEfficiencyUpdated,
	MetricQuality:      realtime.EventQualityUpdated,
}

// Refresh recomputes one metric for a user through the estimator, stores
// the new value for the current period and pushes it to the user's
// analytics room.
func (s *Service) Refresh(ctx context.Context, p authz.Principal, userID, metric string) (*KPI, error) {
	event, ok := refreshEvents[metric]
	if !ok {
		return nil, fmt.Errorf("kpis: invalid metric %q: %w", metric, httpx.ErrValidation)
	}
	if userID == "" {
		userID = p.ID
	}
	if userID != p.ID {
		if err := authz.Authorize(p, authz.ActionUpdate, authz.KindKPI, authz.Facts{OwnerID: userID}); err != nil {
			return nil, err
		}
	}
	score, err := s.estimator.Score(ctx, userID, metric)
	if err != nil {
		return nil, fmt.Errorf("kpis: estimate %s: %w", metric, err)
	}
	now := time.Now()
	k := &KPI{
		ID:        uuid.NewString(),
		UserID:    userID,
		TeamID:    p.TeamID,
		Metric:    metric,
		Value:     score,
		Period:    now.Format("2006-01"),
		CreatedAt: now,
		UpdatedAt: now,
	}
	if err := s.repo.Upsert(ctx, k); err != nil {
		return nil, err
	}
	s.events.Publish(ctx, realtime.AnalyticsRoom(userID), event, k)
	return k, nil
}
