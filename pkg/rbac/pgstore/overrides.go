package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/jackc/pgx/v5"

	"github.com/phillgates2/panel-sub002/pkg/pg"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

const overrideColumns = `id, user_id, permission_name, granted, reason, granted_by, granted_at, expires_at`

// SetOverride upserts on (user_id, permission_name); an existing row keeps its id.
func (s *Store) SetOverride(ctx context.Context, o rbac.Override) (rbac.Override, error) {
	if o.UserID == "" || o.Permission == "" {
		return rbac.Override{}, rbac.ErrInvalidArgument
	}
	if o.ID == uuid.Nil {
		o.ID = uuid.New()
	}

	row := s.pool.QueryRow(ctx, `
		INSERT INTO rbac_user_permission_overrides (`+overrideColumns+`)
		VALUES ($1, $2, $3, $4, $5, $6, COALESCE($7, NOW()), $8)
		ON CONFLICT (user_id, permission_name) DO UPDATE SET
			granted    = EXCLUDED.granted,
			reason     = EXCLUDED.reason,
			granted_by = EXCLUDED.granted_by,
			granted_at = EXCLUDED.granted_at,
			expires_at = EXCLUDED.expires_at
		RETURNING `+overrideColumns,
		o.ID, o.UserID, o.Permission, o.Granted, o.Reason, o.GrantedBy, nullTime(o.GrantedAt), o.ExpiresAt,
	)
	stored, err := scanOverride(row)
	if err != nil {
		return rbac.Override{}, mapError(err, fmt.Sprintf("permission %q", o.Permission))
	}
	return stored, nil
}

func (s *Store) ClearOverride(ctx context.Context, userID, permission string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rbac_user_permission_overrides
		WHERE user_id = $1 AND permission_name = $2`,
		userID, permission,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) ActiveOverride(ctx context.Context, userID, permission string, asOf time.Time) (rbac.Override, bool, error) {
	row := s.pool.QueryRow(ctx, `
		SELECT `+overrideColumns+`
		FROM rbac_user_permission_overrides
		WHERE user_id = $1 AND permission_name = $2
		  AND (expires_at IS NULL OR expires_at > $3)`,
		userID, permission, asOf,
	)
	o, err := scanOverride(row)
	if err != nil {
		if pg.IsNotFoundError(err) {
			return rbac.Override{}, false, nil
		}
		return rbac.Override{}, false, err
	}
	return o, true, nil
}

func (s *Store) Overrides(ctx context.Context, userID string) ([]rbac.Override, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT `+overrideColumns+`
		FROM rbac_user_permission_overrides
		WHERE user_id = $1
		ORDER BY permission_name`, userID)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Override, error) {
		return scanOverride(row)
	})
}

func scanOverride(row pgx.Row) (rbac.Override, error) {
	var o rbac.Override
	err := row.Scan(&o.ID, &o.UserID, &o.Permission, &o.Granted, &o.Reason, &o.GrantedBy, &o.GrantedAt, &o.ExpiresAt)
	return o, err
}
