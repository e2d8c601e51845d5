package files

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for file metadata.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const fileColumns = `id, name, mime_type, size_bytes, storage_key, owner_id,
	COALESCE(team_id, ''), COALESCE(task_id, ''), is_public, is_deleted, created_at`

func scanFile(row pgx.Row) (*File, error) {
	var f File
	err := row.Scan(&f.ID, &f.Name, &f.MimeType, &f.SizeBytes, &f.StorageKey, &f.OwnerID,
		&f.TeamID, &f.TaskID, &f.IsPublic, &f.IsDeleted, &f.CreatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("files: file: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &f, nil
}

// Insert persists new file metadata.
func (r *Repository) Insert(ctx context.Context, f *File) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO files (id, name, mime_type, size_bytes, storage_key, owner_id, team_id, task_id, is_public, is_deleted, created_at)
		 VALUES ($1, $2, $3, $4, $5, $6, NULLIF($7, ''), NULLIF($8, ''), $9, $10, $11)`,
		f.ID, f.Name, f.MimeType, f.SizeBytes, f.StorageKey, f.OwnerID, f.TeamID, f.TaskID, f.IsPublic, f.IsDeleted, f.CreatedAt)
	return err
}

// Get loads one file by ID, including soft-deleted rows.
func (r *Repository) Get(ctx context.Context, id string) (*File, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+fileColumns+` FROM files WHERE id = $1`, id)
	return scanFile(row)
}

// List returns non-deleted files by owner or team, newest first.
func (r *Repository) List(ctx context.Context, ownerID, teamID string) ([]File, error) {
	query := `SELECT ` + fileColumns + ` FROM files WHERE NOT is_deleted`
	args := []any{}
	if ownerID != "" {
		args = append(args, ownerID)
		query += fmt.Sprintf(" AND owner_id = $%d", len(args))
	}
	if teamID != "" {
		args = append(args, teamID)
		query += fmt.Sprintf(" AND team_id = $%d", len(args))
	}
	query += ` ORDER BY created_at DESC`

	rows, err := r.pool.Query(ctx, query, args...)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []File
	for rows.Next() {
		f, err := scanFile(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *f)
	}
	return out, rows.Err()
}

// Update rewrites the mutable columns of a file row.
func (r *Repository) Update(ctx context.Context, f *File) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE files SET name = $2, is_public = $3, is_deleted = $4 WHERE id = $1`,
		f.ID, f.Name, f.IsPublic, f.IsDeleted)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("files: file %s: %w", f.ID, httpx.ErrNotFound)
	}
	return nil
}
