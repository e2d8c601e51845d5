package kpis

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// TaskEstimator scores metrics from the tasks table. Productivity is the
// completion ratio, efficiency the share of completed work finished
// before its deadline, quality the share of work that never hit a
// blocker. A user with no tasks scores zero everywhere.
type TaskEstimator struct {
	pool *pgxpool.Pool
}

// NewTaskEstimator builds a TaskEstimator.
func NewTaskEstimator(pool *pgxpool.Pool) *TaskEstimator {
	return &TaskEstimator{pool: pool}
}

// Score implements Estimator. Values are percentages in [0, 100].
func (e *TaskEstimator) Score(ctx context.Context, userID, metric string) (float64, error) {
	var query string
	switch metric {
	case MetricProductivity:
		query = `SELECT COALESCE(100.0 * COUNT(*) FILTER (WHERE status = 'completed') / NULLIF(COUNT(*), 0), 0)
		 FROM tasks WHERE assigned_to = $1 AND NOT is_deleted`
	case MetricEfficiency:
		query = `SELECT COALESCE(100.0 * COUNT(*) FILTER (WHERE deadline IS NULL OR updated_at <= deadline) / NULLIF(COUNT(*), 0), 0)
		 FROM tasks WHERE assigned_to = $1 AND NOT is_deleted AND status = 'completed'`
	case MetricQuality:
		query = `SELECT COALESCE(100.0 * COUNT(*) FILTER (WHERE blockers = '[]'::jsonb OR blockers IS NULL) / NULLIF(COUNT(*), 0), 0)
		 FROM tasks WHERE assigned_to = $1 AND NOT is_deleted`
	default:
		return 0, fmt.Errorf("kpis: unknown metric %q", metric)
	}
	var score float64
	if err := e.pool.QueryRow(ctx, query, userID).Scan(&score); err != nil {
		return 0, fmt.Errorf("kpis: score %s: %w", metric, err)
	}
	return score, nil
}
