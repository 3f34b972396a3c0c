package postgres

import (
	"context"
	"errors"
	"fmt"

	"github.com/fabgilson/scrumboard-live/internal/domain"
	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgxpool"
)

// MembershipRepo reads project roles from the project_members table. It implements
// domain.MembershipResolver.
type MembershipRepo struct {
	pool *pgxpool.Pool
}

func NewMembershipRepo(pool *pgxpool.Pool) *MembershipRepo {
	return &MembershipRepo{pool: pool}
}

const getRoleQuery = `SELECT role FROM project_members WHERE project_id = $1 AND user_id = $2`

func (r *MembershipRepo) GetRoleForUserInProject(ctx context.Context, projectID, userID int64) (domain.ProjectRole, bool, error) {
	var raw string
	err := r.pool.QueryRow(ctx, getRoleQuery, projectID, userID).Scan(&raw)
	if errors.Is(err, pgx.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to get project role: %w", err)
	}

	role, err := domain.ParseProjectRole(raw)
	if err != nil {
		return "", false, fmt.Errorf("project %d user %d: %w", projectID, userID, err)
	}
	return role, true, nil
}

const upsertMemberQuery = `
INSERT INTO project_members (project_id, user_id, role)
VALUES ($1, $2, $3)
ON CONFLICT (project_id, user_id) DO UPDATE SET role = EXCLUDED.role, updated_at = now()`

func (r *MembershipRepo) Upsert(ctx context.Context, projectID, userID int64, role domain.ProjectRole) error {
	if _, err := domain.ParseProjectRole(string(role)); err != nil {
		return err
	}
	if _, err := r.pool.Exec(ctx, upsertMemberQuery, projectID, userID, string(role)); err != nil {
		return fmt.Errorf("failed to upsert project member: %w", err)
	}
	return nil
}

// Delete removes a membership. It reports whether a row was removed.
func (r *MembershipRepo) Delete(ctx context.Context, projectID, userID int64) (bool, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1 AND user_id = $2`, projectID, userID)
	if err != nil {
		return false, fmt.Errorf("failed to delete project member: %w", err)
	}
	return tag.RowsAffected() > 0, nil
}

// ListProjectMembers returns the user ids of a project's members in ascending order.
func (r *MembershipRepo) ListProjectMembers(ctx context.Context, projectID int64) ([]int64, error) {
	rows, err := r.pool.Query(ctx, `SELECT user_id FROM project_members WHERE project_id = $1 ORDER BY user_id`, projectID)
	if err != nil {
		return nil, fmt.Errorf("failed to list project members: %w", err)
	}
	ids, err := pgx.CollectRows(rows, pgx.RowTo[int64])
	if err != nil {
		return nil, fmt.Errorf("failed to scan project members: %w", err)
	}
	return ids, nil
}

// DeleteProject removes every membership of a project and returns how many were removed.
func (r *MembershipRepo) DeleteProject(ctx context.Context, projectID int64) (int64, error) {
	tag, err := r.pool.Exec(ctx, `DELETE FROM project_members WHERE project_id = $1`, projectID)
	if err != nil {
		return 0, fmt.Errorf("failed to delete project members: %w", err)
	}
	return tag.RowsAffected(), nil
}
