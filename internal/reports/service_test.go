package reports

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"testing"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/stretchr/testify/require"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/shared"
	"github.com/taskpulse/taskpulse/jobs"
)

type stubRepo struct {
	reports   map[string]*Report
	insertErr error
}

func newStubRepo() *stubRepo {
	return &stubRepo{reports: map[string]*Report{}}
}

func (s *stubRepo) Insert(_ context.Context, r *Report) error {
	if s.insertErr != nil {
		return s.insertErr
	}
	copied := *r
	s.reports[r.ID] = &copied
	return nil
}

func (s *stubRepo) Get(_ context.Context, id string) (*Report, error) {
	r, ok := s.reports[id]
	if !ok {
		return nil, fmt.Errorf("reports: report: %w", httpx.ErrNotFound)
	}
	copied := *r
	return &copied, nil
}

func (s *stubRepo) ListByTeam(_ context.Context, teamID string) ([]Report, error) {
	var out []Report
	for _, r := range s.reports {
		if r.TeamID == teamID {
			out = append(out, *r)
		}
	}
	return out, nil
}

func (s *stubRepo) MarkCompleted(_ context.Context, id string, result map[string]any) error {
	r, ok := s.reports[id]
	if !ok || r.Status != StatusPending {
		return httpx.ErrConflict
	}
	now := time.Now()
	r.Status = StatusCompleted
	r.Result = result
	r.CompletedAt = &now
	return nil
}

func (s *stubRepo) MarkFailed(_ context.Context, id, reason string) error {
	r, ok := s.reports[id]
	if !ok || r.Status != StatusPending {
		return httpx.ErrConflict
	}
	now := time.Now()
	r.Status = StatusFailed
	r.Error = reason
	r.CompletedAt = &now
	return nil
}

type stubBuilder struct {
	result map[string]any
	err    error
}

func (s *stubBuilder) Build(_ context.Context, _ *Report) (map[string]any, error) {
	return s.result, s.err
}

type stubEnqueuer struct {
	payloads []jobs.ReportPayload
	err      error
}

func (s *stubEnqueuer) EnqueueReportGenerate(_ context.Context, payload jobs.ReportPayload) (*asynq.TaskInfo, error) {
	if s.err != nil {
		return nil, s.err
	}
	s.payloads = append(s.payloads, payload)
	return &asynq.TaskInfo{}, nil
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

type stubIdempotency struct {
	keys map[string]bool
}

func newStubIdempotency() *stubIdempotency {
	return &stubIdempotency{keys: map[string]bool{}}
}

func (s *stubIdempotency) CheckAndInsert(_ context.Context, key, module string) error {
	if s.keys[module+"/"+key] {
		return shared.ErrIdempotencyConflict
	}
	s.keys[module+"/"+key] = true
	return nil
}

func (s *stubIdempotency) Delete(_ context.Context, key, module string) error {
	delete(s.keys, module+"/"+key)
	return nil
}

func testService(repo *stubRepo, builder *stubBuilder, enq *stubEnqueuer, pub *capturePublisher) *Service {
	return NewService(repo, builder, enq, pub, nil, slog.New(slog.DiscardHandler))
}

func manager() authz.Principal {
	return authz.Principal{ID: uuid.NewString(), Role: authz.RoleManager, TeamID: "team-1"}
}

func TestRequestInsertsPendingAndEnqueues(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{}
	svc := testService(repo, &stubBuilder{}, enq, &capturePublisher{})

	r, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "")
	require.NoError(t, err)
	require.Equal(t, StatusPending, r.Status)
	require.Equal(t, "team-1", r.TeamID)

	require.Len(t, enq.payloads, 1)
	require.Equal(t, r.ID, enq.payloads[0].ReportID)
}

func TestRequestRequiresManagerWithTeam(t *testing.T) {
	svc := testService(newStubRepo(), &stubBuilder{}, &stubEnqueuer{}, &capturePublisher{})

	employee := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-1"}
	_, err := svc.Request(context.Background(), employee, TypeTeamSummary, "2026-08", "")
	require.ErrorIs(t, err, httpx.ErrForbidden)

	teamless := authz.Principal{ID: uuid.NewString(), Role: authz.RoleManager}
	_, err = svc.Request(context.Background(), teamless, TypeTeamSummary, "2026-08", "")
	require.ErrorIs(t, err, httpx.ErrValidation)
}

func TestDuplicateIdempotencyKeyConflicts(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{}
	svc := NewService(repo, &stubBuilder{}, enq, &capturePublisher{}, newStubIdempotency(), slog.New(slog.DiscardHandler))

	_, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-1")
	require.NoError(t, err)

	_, err = svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-1")
	require.ErrorIs(t, err, httpx.ErrConflict)
	require.Len(t, enq.payloads, 1)
}

func TestFailedRequestReleasesIdempotencyKey(t *testing.T) {
	repo := newStubRepo()
	repo.insertErr = errors.New("connection reset")
	enq := &stubEnqueuer{}
	svc := NewService(repo, &stubBuilder{}, enq, &capturePublisher{}, newStubIdempotency(), slog.New(slog.DiscardHandler))

	_, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-1")
	require.Error(t, err)

	repo.insertErr = nil
	r, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-1")
	require.NoError(t, err)
	require.Equal(t, StatusPending, r.Status)
	require.Len(t, enq.payloads, 1)
}

func TestFailedEnqueueReleasesIdempotencyKey(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{err: errors.New("redis down")}
	svc := NewService(repo, &stubBuilder{}, enq, &capturePublisher{}, newStubIdempotency(), slog.New(slog.DiscardHandler))

	_, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-2")
	require.Error(t, err)

	enq.err = nil
	_, err = svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "key-2")
	require.NoError(t, err)
	require.Len(t, enq.payloads, 1)
}

func TestGeneratePublishesReportGenerated(t *testing.T) {
	repo := newStubRepo()
	enq := &stubEnqueuer{}
	pub := &capturePublisher{}
	builder := &stubBuilder{result: map[string]any{"totalTasks": 12}}
	svc := testService(repo, builder, enq, pub)

	r, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "")
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), r.ID))

	stored := repo.reports[r.ID]
	require.Equal(t, StatusCompleted, stored.Status)
	require.Equal(t, builder.result, stored.Result)

	require.Len(t, pub.events, 1)
	require.Equal(t, realtime.TeamRoom("team-1"), pub.events[0].Room)
	require.Equal(t, realtime.EventReportGenerated, pub.events[0].Name)
}

func TestGenerateIsIdempotentPerReport(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	svc := testService(repo, &stubBuilder{result: map[string]any{}}, &stubEnqueuer{}, pub)

	r, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "")
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), r.ID))
	require.NoError(t, svc.Generate(context.Background(), r.ID))
	require.Len(t, pub.events, 1)
}

func TestGenerateFailureRecordsErrorWithoutEvent(t *testing.T) {
	repo := newStubRepo()
	pub := &capturePublisher{}
	builder := &stubBuilder{err: errors.New("tasks table unreachable")}
	svc := testService(repo, builder, &stubEnqueuer{}, pub)

	r, err := svc.Request(context.Background(), manager(), TypeTeamSummary, "2026-08", "")
	require.NoError(t, err)

	require.NoError(t, svc.Generate(context.Background(), r.ID))
	require.Equal(t, StatusFailed, repo.reports[r.ID].Status)
	require.Contains(t, repo.reports[r.ID].Error, "unreachable")
	require.Empty(t, pub.events)
}

func TestGetScopedToTeam(t *testing.T) {
	repo := newStubRepo()
	svc := testService(repo, &stubBuilder{}, &stubEnqueuer{}, &capturePublisher{})

	p := manager()
	r, err := svc.Request(context.Background(), p, TypeUserActivity, "2026-08", "")
	require.NoError(t, err)

	_, err = svc.Get(context.Background(), p, r.ID)
	require.NoError(t, err)

	outsider := authz.Principal{ID: uuid.NewString(), Role: authz.RoleEmployee, TeamID: "team-9"}
	_, err = svc.Get(context.Background(), outsider, r.ID)
	require.ErrorIs(t, err, httpx.ErrForbidden)
}

func TestHandleGenerateTaskSkipsBadPayload(t *testing.T) {
	svc := testService(newStubRepo(), &stubBuilder{}, &stubEnqueuer{}, &capturePublisher{})

	task := asynq.NewTask(jobs.TaskReportGenerate, []byte("{not json"))
	err := svc.HandleGenerateTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)

	task = asynq.NewTask(jobs.TaskReportGenerate, []byte(`{"reportId":"missing"}`))
	err = svc.HandleGenerateTask(context.Background(), task)
	require.ErrorIs(t, err, asynq.SkipRetry)
}
