package reports

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5/pgxpool"
)

// SQLBuilder computes report bodies from the live tables.
type SQLBuilder struct {
	pool *pgxpool.Pool
}

// NewSQLBuilder builds an SQLBuilder.
func NewSQLBuilder(pool *pgxpool.Pool) *SQLBuilder {
	return &SQLBuilder{pool: pool}
}

// Build implements Builder.
func (b *SQLBuilder) Build(ctx context.Context, r *Report) (map[string]any, error) {
	switch r.Type {
	case TypeTeamSummary:
		return b.teamSummary(ctx, r.TeamID)
	case TypeUserActivity:
		return b.userActivity(ctx, r.TeamID)
	default:
		return nil, fmt.Errorf("reports: unknown type %q", r.Type)
	}
}

func (b *SQLBuilder) teamSummary(ctx context.Context, teamID string) (map[string]any, error) {
	var total, completed, blocked int
	err := b.pool.QueryRow(ctx,
		`SELECT COUNT(*),
		        COUNT(*) FILTER (WHERE status = 'completed'),
		        COUNT(*) FILTER (WHERE status = 'blocked')
		 FROM tasks WHERE team_id = $1 AND NOT is_deleted`, teamID).
		Scan(&total, &completed, &blocked)
	if err != nil {
		return nil, fmt.Errorf("reports: team summary: %w", err)
	}
	return map[string]any{
		"totalTasks":     total,
		"completedTasks": completed,
		"blockedTasks":   blocked,
	}, nil
}

func (b *SQLBuilder) userActivity(ctx context.Context, teamID string) (map[string]any, error) {
	rows, err := b.pool.Query(ctx,
		`SELECT assigned_to, COUNT(*), COUNT(*) FILTER (WHERE status = 'completed')
		 FROM tasks WHERE team_id = $1 AND NOT is_deleted GROUP BY assigned_to`, teamID)
	if err != nil {
		return nil, fmt.Errorf("reports: user activity: %w", err)
	}
	defer rows.Close()

	users := []map[string]any{}
	for rows.Next() {
		var userID string
		var total, completed int
		if err := rows.Scan(&userID, &total, &completed); err != nil {
			return nil, err
		}
		users = append(users, map[string]any{
			"userId":    userID,
			"total":     total,
			"completed": completed,
		})
	}
	if err := rows.Err(); err != nil {
		return nil, err
	}
	return map[string]any{"users": users}, nil
}
