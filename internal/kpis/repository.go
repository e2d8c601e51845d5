package kpis

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for KPIs.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const kpiColumns = `id, user_id, COALESCE(team_id, ''), metric, value, target, period, created_at, updated_at`

func scanKPI(row pgx.Row) (*KPI, error) {
	var k KPI
	err := row.Scan(&k.ID, &k.UserID, &k.TeamID, &k.Metric, &k.Value, &k.Target, &k.Period, &k.CreatedAt, &k.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("kpis: kpi: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &k, nil
}

// Insert persists a new KPI row.
func (r *Repository) Insert(ctx context.Context, k *KPI) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO kpis (id, user_id, team_id, metric, value, target, period, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)`,
		k.ID, k.UserID, k.TeamID, k.Metric, k.Value, k.Target, k.Period, k.CreatedAt, k.UpdatedAt)
	return err
}

// Get loads one KPI by ID.
func (r *Repository) Get(ctx context.Context, id string) (*KPI, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+kpiColumns+` FROM kpis WHERE id = $1`, id)
	return scanKPI(row)
}

// List returns KPIs for a user or a team, newest period first.
func (r *Repository) List(ctx context.Context, userID, teamID string) ([]KPI, error) {
	query := `SELECT ` + kpiColumns + ` FROM kpis WHERE 1=1`
	args := []any{}
	if userID != "" {
		args = append(args, userID)
		query += fmt.Sprintf(" AND user_id = $%d", len(args))
	}
	if teamID != "" {
		args = append(args, teamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	query += ` ORDER BY period DESC, metric`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []KPI
	for rows.Next() {
		k, err := scanKPI(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *k)
	}
	return out, rows.Err()
}

// Update rewrites a KPI row.
func (r *Repository) Update(ctx context.Context, k *KPI) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE kpis SET value = $2, target = $3, updated_at = $4 WHERE id = $1`,
		k.ID, k.Value, k.Target, k.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kpis: kpi %s: %w", k.ID, httpx.ErrNotFound)
	}
	return nil
}

// Delete removes a KPI row.
func (r *Repository) Delete(ctx context.Context, id string) error {
	tag, err := r.pool.Exec(ctx, `DELETE FROM kpis WHERE id = $1`, id)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("kpis: kpi %s: %w", id, httpx.ErrNotFound)
	}
	return nil
}

// Upsert writes the value for one (user, metric, period), replacing any
// existing row for that key.
func (r *Repository) Upsert(ctx context.Context, k *KPI) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO kpis (id, user_id, team_id, metric, value, target, period, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), $4, $5, $6, $7, $8, $9)
		 ON CONFLICT (user_id, metric, period)
		 DO UPDATE SET value = EXCLUDED.value, updated_at = EXCLUDED.updated_at`,
		k.ID, k.UserID, k.TeamID, k.Metric, k.Value, k.Target, k.Period, k.CreatedAt, k.UpdatedAt)
	return err
}
