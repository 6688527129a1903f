package pgstore

import (
	"context"
	"fmt"
	"time"

	"github.com/jackc/pgx/v5"

	"github.com/phillgates2/panel-sub002/pkg/pg"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

func (s *Store) CreateRole(ctx context.Context, r rbac.Role) error {
	if r.Name == "" {
		return rbac.ErrInvalidArgument
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rbac_roles (name, description, is_system, created_at, updated_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()), COALESCE($5, NOW()))`,
		r.Name, r.Description, r.IsSystem, nullTime(r.CreatedAt), nullTime(r.UpdatedAt),
	)
	return mapError(err, fmt.Sprintf("role %q", r.Name))
}

func (s *Store) Role(ctx context.Context, name string) (rbac.Role, error) {
	var r rbac.Role
	err := s.pool.QueryRow(ctx, `
		SELECT name, description, is_system, created_at, updated_at
		FROM rbac_roles
		WHERE name = $1`, name,
	).Scan(&r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
	if err != nil {
		return rbac.Role{}, mapError(err, fmt.Sprintf("role %q", name))
	}
	return r, nil
}

func (s *Store) Roles(ctx context.Context) ([]rbac.Role, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, description, is_system, created_at, updated_at
		FROM rbac_roles
		ORDER BY name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Role, error) {
		var r rbac.Role
		err := row.Scan(&r.Name, &r.Description, &r.IsSystem, &r.CreatedAt, &r.UpdatedAt)
		return r, err
	})
}

// DeleteRole relies on ON DELETE CASCADE for permissions and edges. Remaining
// assignments block the delete through their foreign key.
func (s *Store) DeleteRole(ctx context.Context, name string) error {
	tag, err := s.pool.Exec(ctx, `DELETE FROM rbac_roles WHERE name = $1`, name)
	if err != nil {
		if pg.IsForeignKeyViolationError(err) {
			return fmt.Errorf("%w: %q", rbac.ErrRoleInUse, name)
		}
		return err
	}
	if tag.RowsAffected() == 0 {
		return fmt.Errorf("%w: role %q", rbac.ErrNotFound, name)
	}
	return nil
}

func (s *Store) AddPermission(ctx context.Context, role, permission string) error {
	return pg.WithTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			INSERT INTO rbac_role_permissions (role_name, permission_name)
			VALUES ($1, $2)
			ON CONFLICT (role_name, permission_name) DO NOTHING`,
			role, permission,
		)
		if err != nil {
			return mapError(err, fmt.Sprintf("role %q or permission %q", role, permission))
		}
		if tag.RowsAffected() == 0 {
			return nil
		}
		return touchRole(ctx, tx, role)
	})
}

func (s *Store) RemovePermission(ctx context.Context, role, permission string) (bool, error) {
	removed := false
	err := pg.WithTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		tag, err := tx.Exec(ctx, `
			DELETE FROM rbac_role_permissions
			WHERE role_name = $1 AND permission_name = $2`,
			role, permission,
		)
		if err != nil {
			return err
		}
		if tag.RowsAffected() == 0 {
			return roleExists(ctx, tx, role)
		}
		removed = true
		return touchRole(ctx, tx, role)
	})
	return removed, err
}

func (s *Store) DirectPermissions(ctx context.Context, role string) ([]string, error) {
	perms, err := collectStrings(s.pool.Query(ctx, `
		SELECT permission_name
		FROM rbac_role_permissions
		WHERE role_name = $1
		ORDER BY permission_name`, role))
	if err != nil {
		return nil, err
	}
	if len(perms) == 0 {
		if err := roleExists(ctx, s.pool, role); err != nil {
			return nil, err
		}
	}
	return perms, nil
}

// AddEdge serializes edge writers with a table lock so two opposing edges
// cannot both pass the cycle check. Readers are not blocked.
func (s *Store) AddEdge(ctx context.Context, parent, child string) error {
	return pg.WithTx(ctx, s.pool, pgx.TxOptions{}, func(tx pgx.Tx) error {
		if _, err := tx.Exec(ctx, `LOCK TABLE rbac_role_hierarchy IN SHARE ROW EXCLUSIVE MODE`); err != nil {
			return err
		}
		for _, name := range []string{parent, child} {
			if err := roleExists(ctx, tx, name); err != nil {
				return err
			}
		}

		cycle, err := rbac.WouldCycle(ctx, parentsFunc(tx), parent, child)
		if err != nil {
			return err
		}
		if cycle {
			return fmt.Errorf("%w: %s -> %s", rbac.ErrCycle, parent, child)
		}

		_, err = tx.Exec(ctx, `
			INSERT INTO rbac_role_hierarchy (parent_role, child_role)
			VALUES ($1, $2)
			ON CONFLICT (parent_role, child_role) DO NOTHING`,
			parent, child,
		)
		return mapError(err, fmt.Sprintf("edge %s -> %s", parent, child))
	})
}

func (s *Store) RemoveEdge(ctx context.Context, parent, child string) (bool, error) {
	tag, err := s.pool.Exec(ctx, `
		DELETE FROM rbac_role_hierarchy
		WHERE parent_role = $1 AND child_role = $2`,
		parent, child,
	)
	if err != nil {
		return false, err
	}
	return tag.RowsAffected() > 0, nil
}

func (s *Store) Parents(ctx context.Context, role string) ([]string, error) {
	return parentsFunc(s.pool)(ctx, role)
}

// EffectivePermissions expands inheritance in a single recursive query.
// UNION discards rows already produced, so a stored cycle terminates.
func (s *Store) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	if err := roleExists(ctx, s.pool, role); err != nil {
		return nil, err
	}
	return collectStrings(s.pool.Query(ctx, `
		WITH RECURSIVE ancestors (role_name) AS (
			SELECT $1::VARCHAR
			UNION
			SELECT h.parent_role
			FROM rbac_role_hierarchy h
			JOIN ancestors a ON h.child_role = a.role_name
		)
		SELECT DISTINCT rp.permission_name
		FROM rbac_role_permissions rp
		JOIN ancestors a ON rp.role_name = a.role_name
		ORDER BY rp.permission_name`, role))
}

func parentsFunc(q querier) rbac.ParentsFunc {
	return func(ctx context.Context, role string) ([]string, error) {
		parents, err := collectStrings(q.Query(ctx, `
			SELECT parent_role
			FROM rbac_role_hierarchy
			WHERE child_role = $1
			ORDER BY parent_role`, role))
		if err != nil {
			return nil, err
		}
		if len(parents) == 0 {
			if err := roleExists(ctx, q, role); err != nil {
				return nil, err
			}
		}
		return parents, nil
	}
}

func touchRole(ctx context.Context, q querier, role string) error {
	_, err := q.Exec(ctx, `UPDATE rbac_roles SET updated_at = NOW() WHERE name = $1`, role)
	return err
}

// nullTime maps the zero time to NULL so the column default applies.
func nullTime(t time.Time) *time.Time {
	if t.IsZero() {
		return nil
	}
	return &t
}
