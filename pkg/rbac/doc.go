// Package rbac decides whether a user holds a named permission.
//
// Permissions live in an append-only Catalog. Roles own direct permissions and
// are linked by parent->child inheritance edges in a RoleGraph: a child holds
// every effective permission of its parents. Users receive roles through an
// AssignmentStore and per-permission grants or denials through an
// OverrideStore. Assignments and overrides may expire; an expired record is
// treated as if it did not exist.
//
// Resolution order for HasPermission(user, permission, asOf):
//
//  1. An empty permission name is a malformed query (ErrInvalidArgument).
//  2. An empty user is not authorized.
//  3. An active override for (user, permission) decides alone.
//  4. Otherwise the permission must be in the effective set of at least one
//     role the user is actively assigned.
//
// Inheritance is expanded with an iterative depth-first walk that expands each
// role once, so resolution terminates even if a cycle was written to the
// backing store by other means. New edges that would create a cycle are
// rejected with ErrCycle.
//
// # Usage
//
//	stores := rbac.NewMemoryStores()
//	engine := rbac.NewEngine(stores, rbac.WithCache(rbac.NewLRUCache(1024, 0)))
//	manager := rbac.NewManager(engine)
//
//	if _, err := manager.Bootstrap(ctx, rbac.DefaultSeed()); err != nil {
//	    return err
//	}
//
//	_, err := manager.Assign(ctx, rbac.AssignInput{UserID: "u1", Role: rbac.RoleModerator})
//
//	ok, err := engine.Can(ctx, "u1", "player.kick") // true
//
// AllPermissions lists what a user's roles grant and ignores overrides;
// ResolvedPermissions applies them and agrees with HasPermission.
//
// The in-memory stores are safe for concurrent use, each guarded by its own
// lock. A PostgreSQL implementation lives in the pgstore subpackage and a
// Redis-backed EffectiveCache in rediscache.
package rbac
