// Package pg bootstraps PostgreSQL access on top of pgx/v5.
//
// Config is populated from PG_* environment variables. Connect opens a
// *pgxpool.Pool and retries until the database answers a ping. Migrate applies
// goose migrations from disk or, with WithMigrationsFS, from an embedded file
// system owned by the package that defines the schema. WithTx wraps a unit of
// work in a transaction.
//
//	var cfg pg.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer pool.Close()
//
//	cfg.MigrationsPath = "migrations"
//	if err := pg.Migrate(ctx, pool, cfg, log, pg.WithMigrationsFS(migrationsFS)); err != nil {
//	    return err
//	}
//
// IsDuplicateKeyError, IsForeignKeyViolationError and IsCheckViolationError
// classify *pgconn.PgError values so stores can translate them into domain
// errors.
package pg
