package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

const assignmentColumns = `id, user_id, role_name, assigned_by, assigned_at, expires_at`

// Assign upserts on (user_id, role_name); an existing row keeps its id.
func (s *Store) Assign(ctx context.Context, a rbac.Assignment) (rbac.Assignment, error) {
	if a.UserID == "" || a.Role == "" {
		return rbac.Assignment{}, rbac.ErrInvalidArgument
	}
	if a.ID == uuid.Nil {
		a.ID = uuid.New()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO rbac_user_roles (`+assignmentColumns+`)
		VALUES ($1, $2, $3, $4, COALESCE($5, NOW()), $6)
		ON CONFLICT (user_id, role_name) DO UPDATE SET
			assigned_by = EXCLUDED.assigned_by,
			assigned_at = EXCLUDED.assigned_at,
			expires_at  = EXCLUDED.expires_at
		RETURNING `+assignmentColumns,
		a.ID, a.UserID, a.Role, a.AssignedBy, nullTime(a.AssignedAt), a.ExpiresAt,
	)
	stored, err := scanAssignment(row)
	if err != nil {
		return rbac.Assignment{}, mapError(err, fmt.Sprintf("role %q", a.Role))
	}
	return stored, nil
}

func (s *Store) Revoke(ctx context.Context, userID, role string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rbac_user_roles
		WHERE user_id = $1 AND role_name = $2`,
		userID, role,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ActiveRoles(ctx context.Context, userID string, asOf time.Time) ([]string, error) {
	return collectStrings(s.pool.Query(ctx, `
		SELECT role_name
		FROM rbac_user_roles
		WHERE user_id = $1 AND (expires_at IS NULL OR expires_at > $2)
		ORDER BY role_name`,
		userID, asOf,
	))
}

func (s *Store) Assignments(ctx context.Context, userID string) ([]rbac.Assignment, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+assignmentColumns+`
		FROM rbac_user_roles
		WHERE user_id = $1
		ORDER BY role_name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Assignment, error) {
		return scanAssignment(row)
	})
}

func (s *Store) CountForRole(ctx context.Context, role string) (int, error) {
	var n int
	err := s.pool.QueryRow(ctx, `SELECT COUNT(*) FROM rbac_user_roles WHERE role_name = $1`, role).Scan(&n)
	return n, err
}

func scanAssignment(row pgx.Row) (rbac.Assignment, error) {
	var a rbac.Assignment
	err := row.Scan(&a.ID, &a.UserID, &a.Role, &a.AssignedBy, &a.AssignedAt, &a.ExpiresAt)
	return a, err
}
