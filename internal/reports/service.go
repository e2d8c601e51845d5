package reports

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/internal/shared"
	"github.com/taskpulse/taskpulse/jobs"
)

// RepositoryPort defines data access methods for reports.
type RepositoryPort interface {
	Insert(ctx context.Context, r *Report) error
	Get(ctx context.Context, id string) (*Report, error)
	ListByTeam(ctx context.Context, teamID string) ([]Report, error)
	MarkCompleted(ctx context.Context, id string, result map[string]any) error
	MarkFailed(ctx context.Context, id, reason string) error
}

// Builder computes the body of one report.
type Builder interface {
	Build(ctx context.Context, r *Report) (map[string]any, error)
}

// Enqueuer submits report builds to the job queue. Implemented by
// jobs.Client.
type Enqueuer interface {
	EnqueueReportGenerate(ctx context.Context, payload jobs.ReportPayload) (*asynq.TaskInfo, error)
}

// EventPublisher fans a domain event out to a room.
type EventPublisher interface {
	Publish(ctx context.Context, room, name string, payload any)
}

// IdempotencyPort reserves and releases request keys. Implemented by
// *shared.IdempotencyStore.
type IdempotencyPort interface {
	CheckAndInsert(ctx context.Context, key, module string) error
	Delete(ctx context.Context, key, module string) error
}

// Service handles report requests on the API side and report builds on
// the worker side.
type Service struct {
	repo        RepositoryPort
	builder     Builder
	enqueuer    Enqueuer
	events      EventPublisher
	idempotency IdempotencyPort
	logger      *slog.Logger
}

// NewService builds a Service instance. The idempotency store may be nil
// when callers never pass request keys.
func NewService(repo RepositoryPort, builder Builder, enqueuer Enqueuer, events EventPublisher, idempotency IdempotencyPort, logger *slog.Logger) *Service {
	return &Service{
		repo:        repo,
		builder:     builder,
		enqueuer:    enqueuer,
		events:      events,
		idempotency: idempotency,
		logger:      logger,
	}
}

// Request records a pending report and enqueues its build. A repeated
// idempotency key maps to Conflict instead of a duplicate job.
func (s *Service) Request(ctx context.Context, p authz.Principal, reportType, period, idempotencyKey string) (*Report, error) {
	if err := authz.Authorize(p, authz.ActionCreate, authz.KindReport, authz.Facts{TeamID: p.TeamID}); err != nil {
		return nil, err
	}
	if !validType(reportType) {
		return nil, fmt.Errorf("reports: invalid type %q: %w", reportType, httpx.ErrValidation)
	}
	if period == "" {
		return nil, fmt.Errorf("reports: period required: %w", httpx.ErrValidation)
	}
	if p.TeamID == "" {
		return nil, fmt.Errorf("reports: requester has no team: %w", httpx.ErrValidation)
	}
	reserved := idempotencyKey != "" && s.idempotency != nil
	if reserved {
		if err := s.idempotency.CheckAndInsert(ctx, idempotencyKey, "reports"); err != nil {
			if errors.Is(err, shared.ErrIdempotencyConflict) {
				return nil, fmt.Errorf("reports: duplicate request: %w", httpx.ErrConflict)
			}
			return nil, err
		}
	}
	r := &Report{
		ID:          uuid.NewString(),
		Type:        reportType,
		Period:      period,
		TeamID:      p.TeamID,
		RequestedBy: p.ID,
		Status:      StatusPending,
		CreatedAt:   time.Now(),
	}
	if err := s.repo.Insert(ctx, r); err != nil {
		s.releaseKey(ctx, idempotencyKey, reserved)
		return nil, err
	}
	if _, err := s.enqueuer.EnqueueReportGenerate(ctx, jobs.ReportPayload{ReportID: r.ID}); err != nil {
		s.releaseKey(ctx, idempotencyKey, reserved)
		return nil, fmt.Errorf("reports: enqueue: %w", err)
	}
	return r, nil
}

// releaseKey frees a reserved idempotency key after a failed mutation so
// the client can retry with the same key.
func (s *Service) releaseKey(ctx context.Context, key string, reserved bool) {
	if !reserved {
		return
	}
	if err := s.idempotency.Delete(ctx, key, "reports"); err != nil {
		s.logger.Warn("release idempotency key", slog.String("key", key), slog.Any("error", err))
	}
}

// Get loads a report visible to the principal.
func (s *Service) Get(ctx context.Context, p authz.Principal, id string) (*Report, error) {
	r, err := s.repo.Get(ctx, id)
	if err != nil {
		return nil, err
	}
	if err := authz.Authorize(p, authz.ActionRead, authz.KindReport, authz.Facts{TeamID: r.TeamID}); err != nil {
		return nil, err
	}
	return r, nil
}

// List returns the principal's team reports.
func (s *Service) List(ctx context.Context, p authz.Principal) ([]Report, error) {
	if err := authz.Authorize(p, authz.ActionRead, authz.KindReport, authz.Facts{TeamID: p.TeamID}); err != nil {
		return nil, err
	}
	return s.repo.ListByTeam(ctx, p.TeamID)
}

// Generate runs on the worker: it builds the report body, stores the
// outcome and announces completion to the requesting team. Build
// failures are recorded on the row and not retried.
func (s *Service) Generate(ctx context.Context, reportID string) error {
	r, err := s.repo.Get(ctx, reportID)
	if err != nil {
		return err
	}
	if r.Status != StatusPending {
		return nil
	}
	result, err := s.builder.Build(ctx, r)
	if err != nil {
		s.logger.Error("report build failed", slog.String("report_id", r.ID), slog.Any("error", err))
		if markErr := s.repo.MarkFailed(ctx, r.ID, err.Error()); markErr != nil {
			return markErr
		}
		return nil
	}
	if err := s.repo.MarkCompleted(ctx, r.ID, result); err != nil {
		return err
	}
	r.Status = StatusCompleted
	r.Result = result
	s.events.Publish(ctx, realtime.TeamRoom(r.TeamID), realtime.EventReportGenerated, r)
	return nil
}

// HandleGenerateTask adapts Generate to the Asynq handler signature.
func (s *Service) HandleGenerateTask(ctx context.Context, t *asynq.Task) error {
	var payload jobs.ReportPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}
	if err := s.Generate(ctx, payload.ReportID); err != nil {
		if errors.Is(err, httpx.ErrNotFound) {
			return asynq.SkipRetry
		}
		return err
	}
	return nil
}
