package rbac

import (
	"context"
	"fmt"
	"slices"
	"strings"
	"time"

	"github.com/google/uuid"

	"github.com/phillgates2/panel-sub002/pkg/audit"
	"github.com/phillgates2/panel-sub002/pkg/logger"
)

// Audit actions recorded by the Manager.
const (
	ActionPermissionRegistered  = "rbac.permission_registered"
	ActionRoleCreated           = "rbac.role_created"
	ActionRoleDeleted           = "rbac.role_deleted"
	ActionRolePermissionAdded   = "rbac.role_permission_added"
	ActionRolePermissionRemoved = "rbac.role_permission_removed"
	ActionRolePermissionsSet    = "rbac.role_permissions_set"
	ActionInheritanceAdded      = "rbac.inheritance_added"
	ActionInheritanceRemoved    = "rbac.inheritance_removed"
	ActionRoleAssigned          = "rbac.role_assigned"
	ActionRoleRevoked           = "rbac.role_revoked"
	ActionOverrideSet           = "rbac.override_set"
	ActionOverrideCleared       = "rbac.override_cleared"
)

// AssignInput describes a role assignment.
type AssignInput struct {
	UserID     string     `validate:"required,max=255,trimmed"`
	Role       string     `validate:"required,max=64"`
	AssignedBy string     `validate:"max=255"`
	ExpiresAt  *time.Time // nil never expires
}

// OverrideInput describes a per-user permission override.
type OverrideInput struct {
	UserID     string `validate:"required,max=255,trimmed"`
	Permission string `validate:"required,max=64,identifier"`
	Granted    bool
	Reason     string     `validate:"max=255"`
	GrantedBy  string     `validate:"max=255"`
	ExpiresAt  *time.Time // nil never expires
}

// Manager performs administrative changes to the catalog, the role graph,
// assignments and overrides. It validates input, checks referenced roles and
// permissions exist, stamps timestamps from the clock, invalidates the
// effective-permission cache and records audit events.
//
// Writes made directly against the stores bypass cache invalidation.
type Manager struct {
	stores Stores
	opts   options
}

// NewManager creates a Manager over the engine's stores. It inherits the
// engine's clock, logger and cache; opts may add an audit logger or replace
// the clock and logger. The cache is always the engine's.
func NewManager(e *Engine, opts ...Option) *Manager {
	o := e.opts
	for _, opt := range opts {
		opt(&o)
	}
	o.cache = e.opts.cache

	return &Manager{stores: e.stores, opts: o}
}

// RegisterPermission adds a permission to the catalog.
func (m *Manager) RegisterPermission(ctx context.Context, p Permission) error {
	if err := validateStruct(p); err != nil {
		return err
	}
	if p.CreatedAt.IsZero() {
		p.CreatedAt = m.now()
	}

	if err := m.stores.Catalog.Register(ctx, p); err != nil {
		return err
	}

	m.opts.log.InfoContext(ctx, "permission registered", logger.Permission(p.Name))
	m.record(ctx, ActionPermissionRegistered, "", audit.WithResource("permission", p.Name),
		audit.WithMetadata("category", p.Category))
	return nil
}

// CreateRole adds a role without permissions.
func (m *Manager) CreateRole(ctx context.Context, r Role) error {
	if err := validateStruct(r); err != nil {
		return err
	}
	now := m.now()
	if r.CreatedAt.IsZero() {
		r.CreatedAt = now
	}
	r.UpdatedAt = now

	if err := m.stores.Graph.CreateRole(ctx, r); err != nil {
		return err
	}

	m.opts.log.InfoContext(ctx, "role created", logger.Role(r.Name))
	m.record(ctx, ActionRoleCreated, "", audit.WithResource("role", r.Name),
		audit.WithMetadata("is_system", r.IsSystem))
	return nil
}

// DeleteRole removes a role. System roles return ErrSystemRole and roles
// still assigned to any user, expired assignments included, return ErrRoleInUse.
func (m *Manager) DeleteRole(ctx context.Context, name string) error {
	role, err := m.stores.Graph.Role(ctx, name)
	if err != nil {
		return err
	}
	if role.IsSystem {
		return fmt.Errorf("%w: %q", ErrSystemRole, name)
	}

	n, err := m.stores.Assignments.CountForRole(ctx, name)
	if err != nil {
		return err
	}
	if n > 0 {
		return fmt.Errorf("%w: %q has %d assignments", ErrRoleInUse, name, n)
	}

	if err := m.stores.Graph.DeleteRole(ctx, name); err != nil {
		return err
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "role deleted", logger.Role(name))
	m.record(ctx, ActionRoleDeleted, "", audit.WithResource("role", name))
	return nil
}

// AddPermissionToRole grants a catalog permission directly to a role. Idempotent.
func (m *Manager) AddPermissionToRole(ctx context.Context, role, permission string) error {
	if err := requireNames(role, permission); err != nil {
		return err
	}
	if _, err := m.stores.Catalog.Lookup(ctx, permission); err != nil {
		return err
	}

	if err := m.stores.Graph.AddPermission(ctx, role, permission); err != nil {
		return err
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "role permission added", logger.Role(role), logger.Permission(permission))
	m.record(ctx, ActionRolePermissionAdded, "", audit.WithResource("role", role),
		audit.WithMetadata("permission", permission))
	return nil
}

// RemovePermissionFromRole reports whether the role held the permission directly.
func (m *Manager) RemovePermissionFromRole(ctx context.Context, role, permission string) (bool, error) {
	if err := requireNames(role, permission); err != nil {
		return false, err
	}

	removed, err := m.stores.Graph.RemovePermission(ctx, role, permission)
	if err != nil || !removed {
		return removed, err
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "role permission removed", logger.Role(role), logger.Permission(permission))
	m.record(ctx, ActionRolePermissionRemoved, "", audit.WithResource("role", role),
		audit.WithMetadata("permission", permission))
	return true, nil
}

// SetRolePermissions makes permissions the role's exact direct permission set.
// Every permission must exist in the catalog; nothing changes otherwise.
func (m *Manager) SetRolePermissions(ctx context.Context, role string, permissions []string) error {
	if _, err := m.stores.Graph.Role(ctx, role); err != nil {
		return err
	}

	want := slices.Clone(permissions)
	slices.Sort(want)
	want = slices.Compact(want)
	for _, p := range want {
		if _, err := m.stores.Catalog.Lookup(ctx, p); err != nil {
			return err
		}
	}

	current, err := m.stores.Graph.DirectPermissions(ctx, role)
	if err != nil {
		return err
	}

	changed := false
	for _, p := range want {
		if slices.Contains(current, p) {
			continue
		}
		if err := m.stores.Graph.AddPermission(ctx, role, p); err != nil {
			m.invalidateIf(ctx, changed)
			return err
		}
		changed = true
	}
	for _, p := range current {
		if _, found := slices.BinarySearch(want, p); found {
			continue
		}
		if _, err := m.stores.Graph.RemovePermission(ctx, role, p); err != nil {
			m.invalidateIf(ctx, changed)
			return err
		}
		changed = true
	}
	if !changed {
		return nil
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "role permissions replaced", logger.Role(role), logger.Count(len(want)))
	m.record(ctx, ActionRolePermissionsSet, "", audit.WithResource("role", role),
		audit.WithMetadata("permissions", want))
	return nil
}

// AddInheritance makes child inherit every effective permission of parent.
// Returns ErrCycle if child is parent or parent already inherits from child.
func (m *Manager) AddInheritance(ctx context.Context, parent, child string) error {
	if err := requireNames(parent, child); err != nil {
		return err
	}

	if err := m.stores.Graph.AddEdge(ctx, parent, child); err != nil {
		return err
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "inheritance added", slogEdge(parent, child)...)
	m.record(ctx, ActionInheritanceAdded, "", audit.WithResource("role", child),
		audit.WithMetadata("parent", parent))
	return nil
}

// RemoveInheritance reports whether the edge existed.
func (m *Manager) RemoveInheritance(ctx context.Context, parent, child string) (bool, error) {
	if err := requireNames(parent, child); err != nil {
		return false, err
	}

	removed, err := m.stores.Graph.RemoveEdge(ctx, parent, child)
	if err != nil || !removed {
		return removed, err
	}
	m.invalidate(ctx)

	m.opts.log.InfoContext(ctx, "inheritance removed", slogEdge(parent, child)...)
	m.record(ctx, ActionInheritanceRemoved, "", audit.WithResource("role", child),
		audit.WithMetadata("parent", parent))
	return true, nil
}

// Assign gives the user a role, or refreshes an existing assignment with a
// new assigner, timestamp and expiry.
func (m *Manager) Assign(ctx context.Context, in AssignInput) (Assignment, error) {
	if err := validateStruct(in); err != nil {
		return Assignment{}, err
	}
	if _, err := m.stores.Graph.Role(ctx, in.Role); err != nil {
		return Assignment{}, err
	}

	a, err := m.stores.Assignments.Assign(ctx, Assignment{
		ID:         uuid.New(),
		UserID:     in.UserID,
		Role:       in.Role,
		AssignedBy: in.AssignedBy,
		AssignedAt: m.now(),
		ExpiresAt:  in.ExpiresAt,
	})
	if err != nil {
		return Assignment{}, err
	}

	m.opts.log.InfoContext(ctx, "role assigned",
		logger.UserID(a.UserID), logger.Role(a.Role), logger.ActorID(a.AssignedBy))
	opts := []audit.EventOption{audit.WithResource("role", a.Role), audit.WithSubject(a.UserID)}
	if a.ExpiresAt != nil {
		opts = append(opts, audit.WithMetadata("expires_at", a.ExpiresAt.UTC().Format(time.RFC3339)))
	}
	m.record(ctx, ActionRoleAssigned, a.AssignedBy, opts...)
	return a, nil
}

// Revoke removes the user's assignment of role and reports whether it existed.
func (m *Manager) Revoke(ctx context.Context, userID, role string) (bool, error) {
	if err := requireNames(userID, role); err != nil {
		return false, err
	}

	revoked, err := m.stores.Assignments.Revoke(ctx, userID, role)
	if err != nil || !revoked {
		return revoked, err
	}

	m.opts.log.InfoContext(ctx, "role revoked", logger.UserID(userID), logger.Role(role))
	m.record(ctx, ActionRoleRevoked, "", audit.WithResource("role", role), audit.WithSubject(userID))
	return true, nil
}

// SetOverride grants or denies a catalog permission to a single user,
// replacing any existing override for the same permission.
func (m *Manager) SetOverride(ctx context.Context, in OverrideInput) (Override, error) {
	if err := validateStruct(in); err != nil {
		return Override{}, err
	}
	if _, err := m.stores.Catalog.Lookup(ctx, in.Permission); err != nil {
		return Override{}, err
	}

	o, err := m.stores.Overrides.SetOverride(ctx, Override{
		ID:         uuid.New(),
		UserID:     in.UserID,
		Permission: in.Permission,
		Granted:    in.Granted,
		Reason:     in.Reason,
		GrantedBy:  in.GrantedBy,
		GrantedAt:  m.now(),
		ExpiresAt:  in.ExpiresAt,
	})
	if err != nil {
		return Override{}, err
	}

	m.opts.log.InfoContext(ctx, "override set",
		logger.UserID(o.UserID), logger.Permission(o.Permission),
		"granted", o.Granted, logger.ActorID(o.GrantedBy))
	m.record(ctx, ActionOverrideSet, o.GrantedBy,
		audit.WithResource("permission", o.Permission),
		audit.WithSubject(o.UserID),
		audit.WithMetadata("granted", o.Granted),
		audit.WithMetadata("reason", o.Reason),
	)
	return o, nil
}

// ClearOverride removes the user's override for permission and reports whether it existed.
func (m *Manager) ClearOverride(ctx context.Context, userID, permission string) (bool, error) {
	if err := requireNames(userID, permission); err != nil {
		return false, err
	}

	cleared, err := m.stores.Overrides.ClearOverride(ctx, userID, permission)
	if err != nil || !cleared {
		return cleared, err
	}

	m.opts.log.InfoContext(ctx, "override cleared", logger.UserID(userID), logger.Permission(permission))
	m.record(ctx, ActionOverrideCleared, "", audit.WithResource("permission", permission), audit.WithSubject(userID))
	return true, nil
}

func (m *Manager) now() time.Time {
	return m.opts.now().UTC()
}

func (m *Manager) invalidate(ctx context.Context) {
	if m.opts.cache == nil {
		return
	}
	if err := m.opts.cache.Invalidate(ctx); err != nil {
		m.opts.log.ErrorContext(ctx, "effective cache invalidation failed", logger.Error(err))
	}
}

func (m *Manager) invalidateIf(ctx context.Context, changed bool) {
	if changed {
		m.invalidate(ctx)
	}
}

// record writes an audit event. A failure is logged and does not undo the change.
func (m *Manager) record(ctx context.Context, action, actor string, opts ...audit.EventOption) {
	if m.opts.audit == nil {
		return
	}
	opts = append(opts, audit.WithActor(actor))
	if err := m.opts.audit.Log(ctx, action, opts...); err != nil {
		m.opts.log.WarnContext(ctx, "audit record failed", "action", action, logger.Error(err))
	}
}

func requireNames(names ...string) error {
	for _, n := range names {
		if strings.TrimSpace(n) == "" {
			return fmt.Errorf("%w: empty name", ErrInvalidArgument)
		}
	}
	return nil
}

func slogEdge(parent, child string) []any {
	return []any{"parent", parent, "child", child}
}
