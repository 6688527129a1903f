package rbac

import (
	"context"
	"time"
)

// Catalog is the append-only set of known permissions.
type Catalog interface {
	// Register adds a permission. Returns ErrDuplicateName if the name exists.
	Register(ctx context.Context, p Permission) error
	// Lookup returns ErrNotFound for unknown names.
	Lookup(ctx context.Context, name string) (Permission, error)
	// Permissions lists the catalog ordered by category, then name.
	Permissions(ctx context.Context) ([]Permission, error)
}

// RoleGraph stores roles, their direct permissions and parent->child
// inheritance edges. A child inherits every effective permission of its parents.
type RoleGraph interface {
	CreateRole(ctx context.Context, r Role) error
	Role(ctx context.Context, name string) (Role, error)
	Roles(ctx context.Context) ([]Role, error)
	// DeleteRole removes the role with its permissions and edges.
	DeleteRole(ctx context.Context, name string) error

	// AddPermission is idempotent.
	AddPermission(ctx context.Context, role, permission string) error
	RemovePermission(ctx context.Context, role, permission string) (bool, error)
	DirectPermissions(ctx context.Context, role string) ([]string, error)

	// AddEdge makes child inherit from parent. Returns ErrCycle, leaving the
	// graph unchanged, if child is parent or already an ancestor of parent.
	// Re-adding an existing edge is a no-op.
	AddEdge(ctx context.Context, parent, child string) error
	RemoveEdge(ctx context.Context, parent, child string) (bool, error)
	// Parents returns the roles the given role directly inherits from.
	Parents(ctx context.Context, role string) ([]string, error)
}

// EffectiveResolver is implemented by graphs that can expand inheritance
// natively. The engine prefers it over walking Parents one role at a time.
type EffectiveResolver interface {
	EffectivePermissions(ctx context.Context, role string) ([]string, error)
}

// AssignmentStore maps users to roles.
type AssignmentStore interface {
	// Assign inserts or updates the (user, role) assignment and returns the stored record.
	Assign(ctx context.Context, a Assignment) (Assignment, error)
	// Revoke reports whether an assignment existed.
	Revoke(ctx context.Context, userID, role string) (bool, error)
	// ActiveRoles returns the roles whose assignment has not expired at asOf.
	ActiveRoles(ctx context.Context, userID string, asOf time.Time) ([]string, error)
	// Assignments returns every assignment of the user, expired ones included.
	Assignments(ctx context.Context, userID string) ([]Assignment, error)
	CountForRole(ctx context.Context, role string) (int, error)
}

// OverrideStore holds per-user permission grants and denials.
type OverrideStore interface {
	// SetOverride inserts or updates the (user, permission) override.
	SetOverride(ctx context.Context, o Override) (Override, error)
	// ClearOverride reports whether an override existed.
	ClearOverride(ctx context.Context, userID, permission string) (bool, error)
	// ActiveOverride returns false when there is no override or it expired at asOf.
	ActiveOverride(ctx context.Context, userID, permission string, asOf time.Time) (Override, bool, error)
	Overrides(ctx context.Context, userID string) ([]Override, error)
}

// Stores bundles the collaborators the engine and manager work with.
type Stores struct {
	Catalog     Catalog
	Graph       RoleGraph
	Assignments AssignmentStore
	Overrides   OverrideStore
}

// NewMemoryStores returns empty in-memory stores, each guarded by its own lock.
//
// The graph and the assignment store are linked the way a foreign key links
// them in SQL: assigning an unknown role fails with ErrNotFound and deleting
// an assigned role fails with ErrRoleInUse. WithClock sets the time stamped
// into Role.UpdatedAt.
func NewMemoryStores(opts ...Option) Stores {
	graph := newMemoryRoleGraph(opts...)
	assignments := &memoryAssignments{
		byUser: make(map[string]map[string]Assignment),
		graph:  graph,
	}
	graph.assignments = assignments

	return Stores{
		Catalog:     NewMemoryCatalog(),
		Graph:       graph,
		Assignments: assignments,
		Overrides:   NewMemoryOverrides(),
	}
}
