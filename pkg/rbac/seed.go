package rbac

import (
	"context"
	"errors"
	"slices"
)

// Names of the roles shipped with the panel.
const (
	RoleSuperAdministrator = "Super Administrator"
	RoleAdministrator      = "Administrator"
	RoleServerManager      = "Server Manager"
	RoleModerator          = "Moderator"
	RoleUser               = "User"
)

// SeedRole is a role with the direct permissions it starts with.
type SeedRole struct {
	Role
	Permissions []string
}

// Edge is a parent->child inheritance edge.
type Edge struct {
	Parent string
	Child  string
}

// Seed is the initial content of the catalog and role graph.
type Seed struct {
	Permissions []Permission
	Roles       []SeedRole
	Inheritance []Edge
}

// BootstrapResult counts what Bootstrap created.
type BootstrapResult struct {
	PermissionsCreated int
	RolesCreated       int
}

// DefaultSeed returns the panel's built-in permissions and roles.
func DefaultSeed() Seed {
	perm := func(name, description, category string) Permission {
		return Permission{Name: name, Description: description, Category: category}
	}

	return Seed{
		Permissions: []Permission{
			perm("admin.full_access", "Full system administration access", "admin"),
			perm("admin.user_management", "Manage users and roles", "admin"),
			perm("admin.system_config", "Modify system configuration", "admin"),
			perm("admin.view_logs", "View system logs and audit trails", "admin"),
			perm("admin.backup_restore", "Perform backups and restores", "admin"),
			perm("admin.audit_view", "View the administrative audit log", "admin"),
			perm("admin.server_management", "Manage all game servers from the admin area", "admin"),
			perm("admin.job_management", "Manage background jobs", "admin"),

			perm("user.create", "Create new users", "user"),
			perm("user.edit", "Edit user profiles", "user"),
			perm("user.delete", "Delete users", "user"),
			perm("user.view_all", "View all user profiles", "user"),
			perm("user.view_own", "View own profile", "user"),
			perm("user.change_password", "Change user passwords", "user"),

			perm("server.create", "Create new game servers", "server"),
			perm("server.edit", "Edit server configurations", "server"),
			perm("server.delete", "Delete game servers", "server"),
			perm("server.start_stop", "Start/stop game servers", "server"),
			perm("server.view_all", "View all servers", "server"),
			perm("server.view_assigned", "View assigned servers", "server"),
			perm("server.rcon", "Execute RCON commands", "server"),

			perm("monitor.view_system", "View system monitoring dashboard", "monitor"),
			perm("monitor.view_metrics", "View detailed system metrics", "monitor"),
			perm("monitor.view_logs", "View application logs", "monitor"),

			perm("security.view_audit", "View audit logs", "security"),
			perm("security.manage_sessions", "Manage user sessions", "security"),
			perm("security.manage_api_keys", "Manage API keys", "security"),
			perm("security.two_factor", "Manage two-factor authentication", "security"),

			perm("player.view", "View player information", "player"),
			perm("player.ban", "Ban/unban players", "player"),
			perm("player.kick", "Kick players from servers", "player"),
			perm("player.moderate", "Moderate player chat and behavior", "player"),
		},
		Roles: []SeedRole{
			{
				Role: Role{Name: RoleSuperAdministrator, Description: "Full system access", IsSystem: true},
				Permissions: []string{
					"admin.full_access", "admin.audit_view", "admin.server_management", "admin.job_management",
				},
			},
			{
				Role: Role{Name: RoleAdministrator, Description: "System administration with limited access", IsSystem: true},
				Permissions: []string{
					"admin.user_management", "admin.view_logs", "admin.backup_restore",
					"user.create", "user.edit", "user.delete", "user.view_all", "user.change_password",
					"server.create", "server.edit", "server.delete", "server.start_stop", "server.view_all", "server.rcon",
					"monitor.view_system", "monitor.view_metrics", "monitor.view_logs",
					"security.view_audit", "security.manage_sessions", "security.manage_api_keys",
					"player.view", "player.ban", "player.kick", "player.moderate",
				},
			},
			{
				Role: Role{Name: RoleServerManager, Description: "Game server management"},
				Permissions: []string{
					"server.create", "server.edit", "server.start_stop", "server.rcon",
					"monitor.view_metrics",
				},
			},
			{
				Role: Role{Name: RoleModerator, Description: "Player and chat moderation"},
				Permissions: []string{
					"monitor.view_system",
					"player.view", "player.kick", "player.moderate",
				},
			},
			{
				Role:        Role{Name: RoleUser, Description: "Basic user access", IsSystem: true},
				Permissions: []string{"user.view_own", "server.view_assigned"},
			},
		},
		// Moderators get everything a User has, Server Managers everything a Moderator has.
		Inheritance: []Edge{
			{Parent: RoleUser, Child: RoleModerator},
			{Parent: RoleModerator, Child: RoleServerManager},
		},
	}
}

// Bootstrap applies seed and can be run any number of times.
//
// Permissions and roles that already exist are left as they are. System
// roles always get their seed permissions and edges back; other roles only
// receive them when this call created the role, so permissions an
// administrator removed from a custom role stay removed.
func (m *Manager) Bootstrap(ctx context.Context, seed Seed) (BootstrapResult, error) {
	var res BootstrapResult

	for _, p := range seed.Permissions {
		switch err := m.RegisterPermission(ctx, p); {
		case err == nil:
			res.PermissionsCreated++
		case errors.Is(err, ErrDuplicateName):
		default:
			return res, err
		}
	}

	created := make(map[string]bool, len(seed.Roles))
	for _, r := range seed.Roles {
		switch err := m.CreateRole(ctx, r.Role); {
		case err == nil:
			res.RolesCreated++
			created[r.Name] = true
		case errors.Is(err, ErrDuplicateName):
		default:
			return res, err
		}
	}

	for _, r := range seed.Roles {
		if !r.IsSystem && !created[r.Name] {
			continue
		}
		current, err := m.stores.Graph.DirectPermissions(ctx, r.Name)
		if err != nil {
			return res, err
		}
		for _, p := range r.Permissions {
			if slices.Contains(current, p) {
				continue
			}
			if err := m.AddPermissionToRole(ctx, r.Name, p); err != nil {
				return res, err
			}
		}
	}

	systemRoles := make(map[string]bool)
	for _, r := range seed.Roles {
		systemRoles[r.Name] = r.IsSystem
	}
	for _, e := range seed.Inheritance {
		if !created[e.Child] && !systemRoles[e.Child] {
			continue
		}
		parents, err := m.stores.Graph.Parents(ctx, e.Child)
		if err != nil {
			return res, err
		}
		if slices.Contains(parents, e.Parent) {
			continue
		}
		if err := m.AddInheritance(ctx, e.Parent, e.Child); err != nil {
			return res, err
		}
	}

	m.opts.log.InfoContext(ctx, "rbac bootstrap complete",
		"permissions_created", res.PermissionsCreated,
		"roles_created", res.RolesCreated,
	)
	return res, nil
}
