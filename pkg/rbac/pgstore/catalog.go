package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"

	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

func (s *Store) Register(ctx context.Context, p rbac.Permission) error {
	if p.Name == "" {
		return rbac.ErrInvalidArgument
	}

	_, err := s.pool.Exec(ctx, `
		INSERT INTO rbac_permissions (name, description, category, created_at)
		VALUES ($1, $2, $3, COALESCE($4, NOW()))`,
		p.Name, p.Description, p.Category, nullTime(p.CreatedAt),
	)
	return mapError(err, fmt.Sprintf("permission %q", p.Name))
}

func (s *Store) Lookup(ctx context.Context, name string) (rbac.Permission, error) {
	var p rbac.Permission
	err := s.pool.QueryRow(ctx, `
		SELECT name, description, category, created_at
		FROM rbac_permissions
		WHERE name = $1`, name,
	).Scan(&p.Name, &p.Description, &p.Category, &p.CreatedAt)
	if err != nil {
		return rbac.Permission{}, mapError(err, fmt.Sprintf("permission %q", name))
	}
	return p, nil
}

func (s *Store) Permissions(ctx context.Context) ([]rbac.Permission, error) {
	rows, err := s.pool.Query(ctx, `
		SELECT name, description, category, created_at
		FROM rbac_permissions
		ORDER BY category, name`)
	if err != nil {
		return nil, err
	}
	return pgx.CollectRows(rows, func(row pgx.CollectableRow) (rbac.Permission, error) {
		var p rbac.Permission
		err := row.Scan(&p.Name, &p.Description, &p.Category, &p.CreatedAt)
		return p, err
	})
}
