package tasks

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for tasks. Comments
// and blockers are embedded JSONB documents; they are always read and
// written together with their task.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const taskColumns = `id, title, description, assigned_to, assigned_by, status, priority, progress,
	deadline, COALESCE(team_id, ''), COALESCE(department_id, ''), tags, comments, blockers,
	is_deleted, created_at, updated_at`

func scanTask(row pgx.Row) (*Task, error) {
	var t Task
	err := row.Scan(&t.ID, &t.Title, &t.Description, &t.AssignedTo, &t.AssignedBy, &t.Status,
		&t.Priority, &t.Progress, &t.Deadline, &t.TeamID, &t.DepartmentID, &t.Tags,
		&t.Comments, &t.Blockers, &t.IsDeleted, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("tasks: task: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

// Get loads one task by ID, including soft-deleted rows; the service
// decides how deleted tasks surface.
func (r *Repository) Get(ctx context.Context, id string) (*Task, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+taskColumns+` FROM tasks WHERE id = $1`, id)
	return scanTask(row)
}

func listWhere(filter ListFilter) (string, []any) {
	where := ` WHERE NOT is_deleted`
	args := []any{}
	if filter.AssignedTo != "" {
		args = append(args, filter.AssignedTo)
		where += fmt.Sprintf(" AND assigned_to = $%d", len(args))
	}
	if filter.TeamID != "" {
		args = append(args, filter.TeamID)
		where += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	if filter.Status != "" {
		args = append(args, filter.Status)
		where += fmt.Sprintf(" AND status = $%d", len(args))
	}
	return where, args
}

// List returns one page of non-deleted tasks matching the filter, newest
// first, along with the unpaged match count.
func (r *Repository) List(ctx context.Context, filter ListFilter) ([]Task, int, error) {
	where, args := listWhere(filter)

	var total int
	if err := r.pool.QueryRow(ctx, `SELECT COUNT(*) FROM tasks`+where, args...).Scan(&total); err != nil {
		return nil, 0, err
	}

	query := `SELECT ` + taskColumns + ` FROM tasks` + where + ` ORDER BY created_at DESC`
	if filter.Limit > 0 {
		args = append(args, filter.Limit)
		query += fmt.Sprintf(" LIMIT $%d", len(args))
		args = append(args, filter.Offset)
		query += fmt.Sprintf(" OFFSET $%d", len(args))
	}

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, 0, err
	}
	defer rows.Close()

	var out []Task
	for rows.Next() {
		t, err := scanTask(rows)
		if err != nil {
			return nil, 0, err
		}
		out = append(out, *t)
	}
	return out, total, rows.Err()
}

// Insert persists a new task.
func (r *Repository) Insert(ctx context.Context, task *Task) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO tasks (id, title, description, assigned_to, assigned_by, status, priority, progress,
		 deadline, team_id, department_id, tags, comments, blockers, is_deleted, created_at, updated_at)
		 VALUES ($1, $2, $3, $4, $5, $6, $7, $8, $9, NULLIF($10, ''), NULLIF($11, ''), $12, $13, $14, $15, $16, $17)`,
		task.ID, task.Title, task.Description, task.AssignedTo, task.AssignedBy, task.Status,
		task.Priority, task.Progress, task.Deadline, task.TeamID, task.DepartmentID,
		task.Tags, task.Comments, task.Blockers, task.IsDeleted, task.CreatedAt, task.UpdatedAt)
	return err
}

// Update rewrites a task row in full.
func (r *Repository) Update(ctx context.Context, task *Task) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE tasks SET title = $2, description = $3, assigned_to = $4, status = $5, priority = $6,
		 progress = $7, deadline = $8, team_id = NULLIF($9, ''), department_id = NULLIF($10, ''),
		 tags = $11, comments = $12, blockers = $13, is_deleted = $14, updated_at = $15
		 WHERE id = $1`,
		task.ID, task.Title, task.Description, task.AssignedTo, task.Status, task.Priority,
		task.Progress, task.Deadline, task.TeamID, task.DepartmentID, task.Tags,
		task.Comments, task.Blockers, task.IsDeleted, task.UpdatedAt)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("tasks: task %s: %w", task.ID, httpx.ErrNotFound)
	}
	return nil
}
