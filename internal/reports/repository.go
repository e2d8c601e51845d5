package reports

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for reports. The
// result document is a JSONB column.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const reportColumns = `id, type, period, team_id, requested_by, status, result, COALESCE(error, ''), created_at, completed_at`

func scanReport(row pgx.Row) (*Report, error) {
	var r Report
	err := row.Scan(&r.ID, &r.Type, &r.Period, &r.TeamID, &r.RequestedBy, &r.Status, &r.Result, &r.Error, &r.CreatedAt, &r.CompletedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("reports: report: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &r, nil
}

// Insert persists a new report request.
func (r *Repository) Insert(ctx context.Context, rep *Report) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO reports (id, type, period, team_id, requested_by, status, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7)`,
		rep.ID, rep.Type, rep.Period, rep.TeamID, rep.RequestedBy, rep.Status, rep.CreatedAt)
	return err
}

// Get loads one report by ID.
func (r *Repository) Get(ctx context.Context, id string) (*Report, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+reportColumns+` FROM reports WHERE id = $1`, id)
	return scanReport(row)
}

// ListByTeam returns a team's reports, newest first.
func (r *Repository) ListByTeam(ctx context.Context, teamID string) ([]Report, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+reportColumns+` FROM reports WHERE team_id = $1 ORDER BY created_at DESC`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Report
	for rows.Next() {
		rep, err := scanReport(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *rep)
	}
	return out, rows.Err()
}

// MarkCompleted stores the result and flips the status.
func (r *Repository) MarkCompleted(ctx context.Context, id string, result map[string]any) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reports SET status = $2, result = $3, completed_at = $4 WHERE id = $1 AND status = $5`,
		id, StatusCompleted, result, time.Now(), StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reports: report %s not pending: %w", id, httpx.ErrConflict)
	}
	return nil
}

// MarkFailed records a build failure.
func (r *Repository) MarkFailed(ctx context.Context, id, reason string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE reports SET status = $2, error = $3, completed_at = $4 WHERE id = $1 AND status = $5`,
		id, StatusFailed, reason, time.Now(), StatusPending)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("reports: report %s not pending: %w", id, httpx.ErrConflict)
	}
	return nil
}
