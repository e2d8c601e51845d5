package kpis

import (
	"context"
	"errors"
	"fmt"
	"testing"

	"github.com/google/uuid"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
)

type stubRepo struct {
	kpis map[string]*KPI
}

func newStubRepo() *stubRepo {
	return &stubRepo{kpis: map[string]*KPI{}}
}

func (s *stubRepo) Insert(_ context.Context, k *KPI) error {
	copied := *k
	s.kpis[k.ID] = &copied
	return nil
}

func (s *stubRepo) Get(_ context.Context, id string) (*KPI, error) {
	k, ok := s.kpis[id]
	if !ok {
		return nil, fmt.Errorf("kpis: kpi: %w", httpx.ErrNotFound)
	}
	copied := *k
	return &copied, nil
}

func (s *stubRepo) List(_ context.Context, userID, teamID string) ([]KPI, error) {
	var out []KPI
	for _, k := range s.kpis {
		if userID != "" && k.UserID != userID {
			continue
		}
		if teamID != "" && k.TeamID != teamID {
			continue
		}
		out = append(out, *k)
	}
	return out, nil
}

func (s *stubRepo) Update(_ context.Context, k *KPI) error {
	copied := *k
	s.kpis[k.ID] = &copied
	return nil
}

func (s *stubRepo) Delete(_ context.Context, id string) error {
	delete(s.kpis, id)
	return nil
}

func (s *stubRepo) Upsert(_ context.Context, k *KPI) error {
	for _, existing := range s.kpis {
		if existing.UserID == k.UserID && existing.Metric == k.Metric && existing.Period == k.Period {
			existing.Value = k.Value
			existing.UpdatedAt = k.UpdatedAt
			return nil
		}
	}
	copied := *k
	s.kpis[k.ID] = &copied
	return nil
}

type stubEstimator struct {
	scores map[string]float64
	err    error
}

func (s *stubEstimator) Score(_ context.Context, _, metric string) (float64, error) {
	if s.err != nil {
		return 0, s.err
	}
	return s.scores[metric], nil
}

type published struct {
	Room string
	Name string
}

type capturePublisher struct {
	events []published
}

func (c *capturePublisher) Publish(_ context.Context, room, name string, _ any) {
	c.events = append(c.events, published{Room: room, Name: name})
}

func manager() authz.Principal {
	return authz.Principal{ID: uuid.NewString(), Role: authz.RoleManager, TeamID: "team-1"}
}

func TestRefreshPublishesMetricEvent(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	est := &stubEstimator{scores: map[string]float64{
		MetricProductivity: 82.5,
		MetricEfficiency:   64,
		MetricQuality:      91,
	}}
	svc := NewService(repo, est, pub)
	p := manager()

	cases := []struct {
		metric string
		event  string
	}{
		{MetricProductivity, realtime.EventProductivityUpdated},
		{MetricEfficiency, realtime.EventEfficiencyUpdated},
		{MetricQuality, realtime.EventQualityUpdated},
	}
	for _, tc := range cases {
		k, err := svc.Refresh(context.Background(), p, "", tc.metric)
		require.NoError(t, err)
		require.Equal(t, est.scores[tc.metric], k.Value)
		last := pub.events[len(pub.events)-1]
		require.Equal(t, realtime.AnalyticsRoom(p.ID), last.Room)
		require.Equal(t, tc.event, last.Name)
	}
	require.Len(t, pub.events, 3)
}

func TestRefreshUpsertsPerPeriod(t *testing.T) {
	repo := newStubRepo()
	est := &stubEstimator{scores: map[string]float64{MetricProductivity: 50}}
	svc := NewService(repo, est, &capturePublisher{})
	p := manager()

	_, err := svc.Refresh(context.Background(), p, "", MetricProductivity)
	require.NoError(t, err)
	est.scores[MetricProductivity] = 75
	_, err = svc.Refresh(context.Background(), p, "", MetricProductivity)
	require.NoError(t, err)

	require.Len(t, repo.kpis, 1)
	for _, k := range repo.kpis {
		require.Equal(t, 75.0, k.Value)
	}
}

func TestRefreshRejectsUnknownMetric(t *testing.T) {
	svc := NewService(newStubRepo(), &stubEstimator{}, &capturePublisher{})
	_, err := svc.Refresh(context.Background(), manager(), "", "velocity")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestRefreshForOtherUserNeedsManager(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	est := &stubEstimator{scores: map[string]float64{MetricQuality: 40}}
	svc := NewService(repo, est, pub)

	employee := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	target := uuid.NewString()
	_, err := svc.Refresh(context.Background(), employee, target, MetricQuality)
	require.ErrorIs(t, err, httpx.ErrForbidden)
	require.Empty(t, pub.events)

	k, err := svc.Refresh(context.Background(), manager(), target, MetricQuality)
	require.NoError(t, err)
	require.Equal(t, target, k.UserID)
	require.Equal(t, realtime.AnalyticsRoom(target), pub.events[0].Room)
}

func TestEstimatorFailureSuppressesPublish(t *testing.T) {
	pub := &capturePublisher{}
	est := &stubEstimator{err: errors.New("analytics store down")}
	svc := NewService(newStubRepo(), est, pub)

	_, err := svc.Refresh(context.Background(), manager(), "", MetricProductivity)
	require.Error(t, err)
	require.Empty(t, pub.events)
}

func TestCreateRequiresManager(t *testing.T) {
	svc := NewService(newStubRepo(), &stubEstimator{}, &capturePublisher{})

	employee := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	_, err := svc.Create(context.Background(), employee, CreateInput{
		UserID: uuid.NewString(), Metric: MetricQuality, Period: "2026-08",
	})
	require.ErrorIs(t, err, httpx.ErrForbidden)

	k, err := svc.Create(context.Background(), manager(), CreateInput{
		UserID: uuid.NewString(), TeamID: "team-1", Metric: MetricQuality, Value: 70, Target: 90, Period: "2026-08",
	})
	require.NoError(t, err)
	require.Equal(t, MetricQuality, k.Metric)
}

func TestListDefaultsToSelf(t *testing.T) {
	repo := newStubRepo()
	svc := NewService(repo, &stubEstimator{}, &capturePublisher{})
	p := manager()
	repo.kpis["a"] = &KPI{ID: "a", UserID: p.ID, Metric: MetricQuality, Period: "2026-08"}
	repo.kpis["b"] = &KPI{ID: "b", UserID: uuid.NewString(), Metric: MetricQuality, Period: "2026-08"}

	items, err := svc.List(context.Background(), p, "")
	require.NoError(t, err)
	require.Len(t, items, 1)
	require.Equal(t, p.ID, items[0].UserID)
}
