package pgstore

import (
	"context"
	"fmt"

	"github.com/jackc/pgx/v5"
	"github.com/jackc/pgx/v5/pgconn"
	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phillgates2/panel-sub002/pkg/pg"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

// Store implements the rbac stores on PostgreSQL.
type Store struct {
	pool *pgxpool.Pool
}

var (
	_ rbac.Catalog           = (*Store)(nil)
	_ rbac.RoleGraph         = (*Store)(nil)
	_ rbac.EffectiveResolver = (*Store)(nil)
	_ rbac.AssignmentStore   = (*Store)(nil)
	_ rbac.OverrideStore     = (*Store)(nil)
)

// New constructs a Store using the provided pool. The schema must already be
// migrated, see Migrate.
func New(pool *pgxpool.Pool) *Store {
	if pool == nil {
		panic("pgstore: pool cannot be nil")
	}
	return &Store{pool: pool}
}

// Stores returns s in every store role, ready for rbac.NewEngine.
func (s *Store) Stores() rbac.Stores {
	return rbac.Stores{
		Catalog:     s,
		Graph:       s,
		Assignments: s,
		Overrides:   s,
	}
}

// querier is satisfied by both *pgxpool.Pool and pgx.Tx.
type querier interface {
	Exec(ctx context.Context, sql string, args ...any) (pgconn.CommandTag, error)
	Query(ctx context.Context, sql string, args ...any) (pgx.Rows, error)
	QueryRow(ctx context.Context, sql string, args ...any) pgx.Row
}

// mapError translates PostgreSQL errors into rbac sentinels. what names the
// object involved and ends up in the message.
func mapError(err error, what string) error {
	switch {
	case err == nil:
		return nil
	case pg.IsNotFoundError(err):
		return fmt.Errorf("%w: %s", rbac.ErrNotFound, what)
	case pg.IsDuplicateKeyError(err):
		return fmt.Errorf("%w: %s", rbac.ErrDuplicateName, what)
	case pg.IsForeignKeyViolationError(err):
		return fmt.Errorf("%w: %s", rbac.ErrNotFound, what)
	case pg.IsCheckViolationError(err):
		return fmt.Errorf("%w: %s", rbac.ErrInvalidArgument, what)
	}
	return err
}

func roleExists(ctx context.Context, q querier, name string) error {
	var found bool
	err := q.QueryRow(ctx, `SELECT EXISTS (SELECT 1 FROM rbac_roles WHERE name = $1)`, name).Scan(&found)
	if err != nil {
		return err
	}
	if !found {
		return fmt.Errorf("%w: role %q", rbac.ErrNotFound, name)
	}
	return nil
}

// collectStrings reads a single text column.
func collectStrings(rows pgx.Rows, err error) ([]string, error) {
	if err != nil {
		return nil, err
	}
	list, err := pgx.CollectRows(rows, pgx.RowTo[string])
	if err != nil {
		return nil, err
	}
	if list == nil {
		list = []string{}
	}
	return list, nil
}
