package main

import (
	"context"
	"io"
	"log/slog"

	"github.com/jackc/pgx/v5/pgxpool"

	"github.com/phillgates2/panel-sub002/pkg/audit"
	"github.com/phillgates2/panel-sub002/pkg/config"
	"github.com/phillgates2/panel-sub002/pkg/pg"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
	"github.com/phillgates2/panel-sub002/pkg/rbac/pgstore"
)

// app holds everything a command needs.
type app struct {
	stores  rbac.Stores
	engine  *rbac.Engine
	manager *rbac.Manager
	audit   audit.Storage
	log     *slog.Logger
	out     io.Writer

	pool   *pgxpool.Pool // nil when not backed by PostgreSQL
	pgCfg  pg.Config
	health map[string]func(context.Context) error

	closers []func()
}

func newApp(stores rbac.Stores, auditStore audit.Storage, cache rbac.EffectiveCache, log *slog.Logger, out io.Writer) *app {
	engine := rbac.NewEngine(stores, rbac.WithLogger(log), rbac.WithCache(cache))
	manager := rbac.NewManager(engine, rbac.WithAuditLogger(
		audit.NewLogger(auditStore, audit.WithActorExtractor(rbac.UserFromContext)),
	))

	return &app{
		stores:  stores,
		engine:  engine,
		manager: manager,
		audit:   auditStore,
		log:     log,
		out:     out,
		health:  make(map[string]func(context.Context) error),
	}
}

// openApp connects to PostgreSQL and, if configured, Redis.
func openApp(ctx context.Context, cfg appConfig, log *slog.Logger, out io.Writer) (*app, error) {
	var pgCfg pg.Config
	if err := config.Load(&pgCfg); err != nil {
		return nil, err
	}

	pool, err := pg.Connect(ctx, pgCfg)
	if err != nil {
		return nil, err
	}

	cache, cacheHealth, cacheClose, err := openCache(ctx, cfg)
	if err != nil {
		pool.Close()
		return nil, err
	}

	store := pgstore.New(pool)
	a := newApp(store.Stores(), store.Audit(), cache, log, out)
	a.pool = pool
	a.pgCfg = pgCfg
	a.health["postgres"] = pg.Healthcheck(pool)
	a.closers = append(a.closers, pool.Close)
	if cacheHealth != nil {
		a.health["redis"] = cacheHealth
	}
	if cacheClose != nil {
		a.closers = append(a.closers, cacheClose)
	}
	return a, nil
}

// Close releases connections in reverse order of opening.
func (a *app) Close() {
	for i := len(a.closers) - 1; i >= 0; i-- {
		a.closers[i]()
	}
}
