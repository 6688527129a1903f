// Package pgstore stores the rbac catalog, role graph, assignments, overrides
// and audit log in PostgreSQL.
//
//	pool, err := pg.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	if err := pgstore.Migrate(ctx, pool, cfg, log); err != nil {
//	    return err
//	}
//
//	store := pgstore.New(pool)
//	engine := rbac.NewEngine(store.Stores())
//	manager := rbac.NewManager(engine, rbac.WithAuditLogger(audit.NewLogger(store.Audit())))
//
// Store implements rbac.EffectiveResolver, so the engine expands inheritance
// with one recursive query per role instead of one query per ancestor.
// Inheritance edges are written under a table lock on rbac_role_hierarchy, so
// concurrent writers cannot jointly introduce a cycle.
package pgstore
