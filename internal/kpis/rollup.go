package kpis

import (
	"context"
	"encoding/json"
	"log/slog"
	"time"

	"github.com/google/uuid"
	"github.com/hibiken/asynq"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/realtime"
	"github.com/taskpulse/taskpulse/jobs"
)

// RollupJob recomputes every metric for every active user. It runs on
// the worker from a cron schedule, so it bypasses the per-principal
// authorization the HTTP surface applies.
type RollupJob struct {
	pool      *pgxpool.Pool
	repo      RepositoryPort
	estimator Estimator
	events    EventPublisher
	logger    *slog.Logger
}

// NewRollupJob builds a RollupJob.
func NewRollupJob(pool *pgxpool.Pool, repo RepositoryPort, estimator Estimator, events EventPublisher, logger *slog.Logger) *RollupJob {
	return &RollupJob{pool: pool, repo: repo, estimator: estimator, events: events, logger: logger}
}

// Handle processes one rollup task. Per-user failures are logged and
// skipped so a single bad row cannot stall the schedule.
func (j *RollupJob) Handle(ctx context.Context, t *asynq.Task) error {
	var payload jobs.KPIRollupPayload
	if err := json.Unmarshal(t.Payload(), &payload); err != nil {
		return asynq.SkipRetry
	}

	query := `SELECT id, COALESCE(team_id, '') FROM users WHERE is_active`
	args := []any{}
	if payload.TeamID != "" {
		query += ` AND team_id = $1`
		args = append(args, payload.TeamID)
	}
	rows, err := j.pool.Query(ctx, query, args...)
	if err != nil {
		return err
	}
	defer rows.Close()

	type target struct{ userID, teamID string }
	var targets []target
	for rows.Next() {
		var tg target
		if err := rows.Scan(&tg.userID, &tg.teamID); err != nil {
			return err
		}
		targets = append(targets, tg)
	}
	if err := rows.Err(); err != nil {
		return err
	}

	period := time.Now().Format("2006-01")
	for _, tg := range targets {
		for metric, event := range refreshEvents {
			score, err := j.estimator.Score(ctx, tg.userID, metric)
			if err != nil {
				j.logger.Warn("rollup score", slog.String("user_id", tg.userID), slog.String("metric", metric), slog.Any("error", err))
				continue
			}
			now := time.Now()
			k := &KPI{
				ID:        uuid.NewString(),
				UserID:    tg.userID,
				TeamID:    tg.teamID,
				Metric:    metric,
				Value:     score,
				Period:    period,
				CreatedAt: now,
				UpdatedAt: now,
			}
			if err := j.repo.Upsert(ctx, k); err != nil {
				j.logger.Warn("rollup upsert", slog.String("user_id", tg.userID), slog.String("metric", metric), slog.Any("error", err))
				continue
			}
			j.events.Publish(ctx, realtime.AnalyticsRoom(tg.userID), event, k)
		}
	}
	return nil
}
