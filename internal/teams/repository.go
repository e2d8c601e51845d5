package teams

import (
	"context"
	"errors"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/taskpulse/taskpulse/internal/authz"
	"github.com/taskpulse/taskpulse/internal/platform/httpx"
)

// Repository provides PostgreSQL backed persistence for teams. Member
// data lives on the users table; this repository reads the team-facing
// slice of it.
type Repository struct {
	pool *pgxpool.Pool
}

// NewRepository constructs a repository.
func NewRepository(pool *pgxpool.Pool) *Repository {
	return &Repository{pool: pool}
}

const teamColumns = `id, name, COALESCE(department_id, ''), COALESCE(manager_id, ''), created_at, updated_at`

func scanTeam(row pgx.Row) (*Team, error) {
	var t Team
	err := row.Scan(&t.ID, &t.Name, &t.DepartmentID, &t.ManagerID, &t.CreatedAt, &t.UpdatedAt)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("teams: team: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	return &t, nil
}

// InsertTeam persists a new team. A duplicate name maps to Conflict.
func (r *Repository) InsertTeam(ctx context.Context, t *Team) error {
	_, err := r.pool.Exec(ctx,
		`INSERT INTO teams (id, name, department_id, manager_id, created_at, updated_at)
		 VALUES ($1, $2, NULLIF($3, ''), NULLIF($4, ''), $5, $6)`,
		t.ID, t.Name, t.DepartmentID, t.ManagerID, t.CreatedAt, t.UpdatedAt)
	if err != nil {
		var pgErr *pgconn.PgError
		if errors.As(err, &pgErr) && pgErr.Code == "23505" {
			return fmt.Errorf("teams: name already taken: %w", httpx.ErrConflict)
		}
		return err
	}
	return nil
}

// GetTeam loads one team by ID.
func (r *Repository) GetTeam(ctx context.Context, id string) (*Team, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+teamColumns+` FROM teams WHERE id = $1`, id)
	return scanTeam(row)
}

// ListTeams returns all teams.
func (r *Repository) ListTeams(ctx context.Context) ([]Team, error) {
	rows, err := r.pool.Query(ctx, `SELECT `+teamColumns+` FROM teams ORDER BY name`)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Team
	for rows.Next() {
		t, err := scanTeam(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *t)
	}
	return out, rows.Err()
}

const memberColumns = `id, name, email, role, COALESCE(team_id, ''), is_active`

func scanMember(row pgx.Row) (*Member, error) {
	var m Member
	var role string
	err := row.Scan(&m.UserID, &m.Name, &m.Email, &role, &m.TeamID, &m.IsActive)
	if err != nil {
		if errors.Is(err, pgx.ErrNoRows) {
			return nil, fmt.Errorf("teams: member: %w", httpx.ErrNotFound)
		}
		return nil, err
	}
	parsed, err := authz.ParseRole(role)
	if err != nil {
		return nil, fmt.Errorf("teams: member %s: %w", m.UserID, err)
	}
	m.Role = parsed
	m.RoleName = parsed.String()
	return &m, nil
}

// GetMember loads the team-facing view of one user.
func (r *Repository) GetMember(ctx context.Context, userID string) (*Member, error) {
	row := r.pool.QueryRow(ctx, `SELECT `+memberColumns+` FROM users WHERE id = $1`, userID)
	return scanMember(row)
}

// ListMembers returns the active members of a team.
func (r *Repository) ListMembers(ctx context.Context, teamID string) ([]Member, error) {
	rows, err := r.pool.Query(ctx,
		`SELECT `+memberColumns+` FROM users WHERE team_id = $1 AND is_active ORDER BY name`, teamID)
	if err != nil {
		return nil, err
	}
	defer rows.Close()

	var out []Member
	for rows.Next() {
		m, err := scanMember(rows)
		if err != nil {
			return nil, err
		}
		out = append(out, *m)
	}
	return out, rows.Err()
}

// SetMembership assigns a user to a team with a role.
func (r *Repository) SetMembership(ctx context.Context, userID, teamID string, role authz.Role) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET team_id = $2, role = $3, updated_at = NOW() WHERE id = $1`,
		userID, teamID, role.String())
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("teams: user %s: %w", userID, httpx.ErrNotFound)
	}
	return nil
}

// ClearMembership takes a user off whatever team they are on.
func (r *Repository) ClearMembership(ctx context.Context, userID string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET team_id = NULL, updated_at = NOW() WHERE id = $1`, userID)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("teams: user %s: %w", userID, httpx.ErrNotFound)
	}
	return nil
}

// UpdateProfile renames a user.
func (r *Repository) UpdateProfile(ctx context.Context, userID, name string) error {
	tag, err := r.pool.Exec(ctx,
		`UPDATE users SET name = $2, updated_at = NOW() WHERE id = $1`, userID, name)
	if err != nil {
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("teams: user %s: %w", userID, httpx.ErrNotFound)
	}
	return nil
}
