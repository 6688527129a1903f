package pgstore

import (
	"context"
	"embed"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phillgates2/panel-sub002/pkg/pg"
)

//go:embed migrations/*.sql
var migrations embed.FS

// Migrate applies the embedded schema migrations. cfg.MigrationsPath is ignored.
func Migrate(ctx context.Context, pool *pgxpool.Pool, cfg pg.Config, log *slog.Logger) error {
	cfg.MigrationsPath = "migrations"
	return pg.Migrate(ctx, pool, cfg, log, pg.WithMigrationsFS(migrations))
}
