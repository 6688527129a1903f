package main

import (
	"context"
	"errors"
	"fmt"
	"slices"
	"strings"
	"text/tabwriter"
	"time"

	"github.com/spf13/pflag"

	"github.com/phillgates2/panel-sub002/pkg/audit"
	"github.com/phillgates2/panel-sub002/pkg/environment"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
	"github.com/phillgates2/panel-sub002/pkg/rbac/pgstore"
)

type command struct {
	summary string
	run     func(ctx context.Context, a *app, args []string) error
}

var commands = map[string]command{
	"migrate":        {"apply database migrations", runMigrate},
	"seed":           {"create the built-in permissions and roles", runSeed},
	"ping":           {"check database and cache connectivity", runPing},
	"check":          {"check <user> <permission>, exits 1 when denied", runCheck},
	"permissions":    {"permissions <user>, list what the user holds", runPermissions},
	"assign":         {"assign <user> <role>", runAssign},
	"revoke":         {"revoke <user> <role>", runRevoke},
	"override":       {"override <user> <permission> --grant|--deny", runOverride},
	"clear-override": {"clear-override <user> <permission>", runClearOverride},
	"catalog":        {"list registered permissions", runCatalog},
	"roles":          {"list roles", runRoles},
	"role":           {"role <name>, show a role's permissions and parents", runRole},
	"create-role":    {"create-role <name>", runCreateRole},
	"delete-role":    {"delete-role <name>", runDeleteRole},
	"role-add":       {"role-add <role> <permission>...", runRoleAdd},
	"role-remove":    {"role-remove <role> <permission>...", runRoleRemove},
	"inherit":        {"inherit <parent> <child>, child gains parent's permissions", runInherit},
	"uninherit":      {"uninherit <parent> <child>", runUninherit},
	"audit":          {"show recent audit events", runAudit},
}

func newFlagSet(name string) *pflag.FlagSet {
	fs := pflag.NewFlagSet(name, pflag.ContinueOnError)
	fs.SetInterspersed(true)
	return fs
}

// parseArgs parses flags and requires exactly n positional arguments, or at
// least n when n is negative.
func parseArgs(fs *pflag.FlagSet, args []string, n int, usage string) ([]string, error) {
	if err := fs.Parse(args); err != nil {
		return nil, err
	}
	rest := fs.Args()
	switch {
	case n >= 0 && len(rest) != n:
		return nil, fmt.Errorf("usage: rbacctl %s %s", fs.Name(), usage)
	case n < 0 && len(rest) < -n:
		return nil, fmt.Errorf("usage: rbacctl %s %s", fs.Name(), usage)
	}
	return rest, nil
}

func runMigrate(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet("migrate"), args, 0, ""); err != nil {
		return err
	}
	if a.pool == nil {
		return errors.New("migrate requires a PostgreSQL connection")
	}
	if err := pgstore.Migrate(ctx, a.pool, a.pgCfg, a.log); err != nil {
		return err
	}
	fmt.Fprintln(a.out, "migrations applied")
	return nil
}

func runSeed(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet("seed"), args, 0, ""); err != nil {
		return err
	}
	res, err := a.manager.Bootstrap(ctx, rbac.DefaultSeed())
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created %d permissions and %d roles\n", res.PermissionsCreated, res.RolesCreated)
	return nil
}

func runPing(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet("ping"), args, 0, ""); err != nil {
		return err
	}

	names := make([]string, 0, len(a.health))
	for name := range a.health {
		names = append(names, name)
	}
	slices.Sort(names)

	failed := false
	for _, name := range names {
		if err := a.health[name](ctx); err != nil {
			fmt.Fprintf(a.out, "%s: %v\n", name, err)
			failed = true
			continue
		}
		fmt.Fprintf(a.out, "%s: ok\n", name)
	}
	if failed {
		return &exitError{code: 1}
	}
	return nil
}

func runCheck(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("check")
	at := fs.String("at", "", "evaluate at this RFC 3339 time instead of now")
	rest, err := parseArgs(fs, args, 2, "<user> <permission>")
	if err != nil {
		return err
	}
	asOf, err := parseTime(*at, a.engine.Now())
	if err != nil {
		return err
	}

	ok, err := a.engine.HasPermission(ctx, rest[0], rest[1], asOf)
	if err != nil {
		return err
	}
	if ok {
		fmt.Fprintln(a.out, "allowed")
		return nil
	}
	fmt.Fprintln(a.out, "denied")
	return &exitError{code: 1}
}

func runPermissions(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("permissions")
	resolved := fs.Bool("resolved", false, "apply per-user overrides")
	at := fs.String("at", "", "evaluate at this RFC 3339 time instead of now")
	rest, err := parseArgs(fs, args, 1, "<user> [--resolved]")
	if err != nil {
		return err
	}
	asOf, err := parseTime(*at, a.engine.Now())
	if err != nil {
		return err
	}

	var perms []string
	if *resolved {
		perms, err = a.engine.ResolvedPermissions(ctx, rest[0], asOf)
	} else {
		perms, err = a.engine.AllPermissions(ctx, rest[0], asOf)
	}
	if err != nil {
		return err
	}
	for _, p := range perms {
		fmt.Fprintln(a.out, p)
	}
	return nil
}

func runAssign(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("assign")
	expiresIn := fs.Duration("expires-in", 0, "expire the assignment after this long")
	expiresAt := fs.String("expires-at", "", "expire the assignment at this RFC 3339 time")
	rest, err := parseArgs(fs, args, 2, "<user> <role>")
	if err != nil {
		return err
	}
	expiry, err := parseExpiry(a.engine.Now(), *expiresIn, *expiresAt)
	if err != nil {
		return err
	}

	actor, _ := rbac.UserFromContext(ctx)
	assignment, err := a.manager.Assign(ctx, rbac.AssignInput{
		UserID:     rest[0],
		Role:       rest[1],
		AssignedBy: actor,
		ExpiresAt:  expiry,
	})
	if err != nil {
		return err
	}
	fmt.Fprintf(a.out, "assigned %q to %s%s\n", assignment.Role, assignment.UserID, describeExpiry(assignment.ExpiresAt))
	return nil
}

func runRevoke(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("revoke"), args, 2, "<user> <role>")
	if err != nil {
		return err
	}
	revoked, err := a.manager.Revoke(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	if !revoked {
		fmt.Fprintf(a.out, "%s does not have role %q\n", rest[0], rest[1])
		return nil
	}
	fmt.Fprintf(a.out, "revoked %q from %s\n", rest[1], rest[0])
	return nil
}

func runOverride(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("override")
	grant := fs.Bool("grant", false, "grant the permission")
	deny := fs.Bool("deny", false, "deny the permission")
	reason := fs.String("reason", "", "why the override exists")
	expiresIn := fs.Duration("expires-in", 0, "expire the override after this long")
	expiresAt := fs.String("expires-at", "", "expire the override at this RFC 3339 time")
	rest, err := parseArgs(fs, args, 2, "<user> <permission> --grant|--deny")
	if err != nil {
		return err
	}
	if *grant == *deny {
		return errors.New("exactly one of --grant or --deny is required")
	}
	expiry, err := parseExpiry(a.engine.Now(), *expiresIn, *expiresAt)
	if err != nil {
		return err
	}

	actor, _ := rbac.UserFromContext(ctx)
	o, err := a.manager.SetOverride(ctx, rbac.OverrideInput{
		UserID:     rest[0],
		Permission: rest[1],
		Granted:    *grant,
		Reason:     *reason,
		GrantedBy:  actor,
		ExpiresAt:  expiry,
	})
	if err != nil {
		return err
	}

	verb := "denied"
	if o.Granted {
		verb = "granted"
	}
	fmt.Fprintf(a.out, "%s %s to %s%s\n", verb, o.Permission, o.UserID, describeExpiry(o.ExpiresAt))
	return nil
}

func runClearOverride(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("clear-override"), args, 2, "<user> <permission>")
	if err != nil {
		return err
	}
	cleared, err := a.manager.ClearOverride(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	if !cleared {
		fmt.Fprintf(a.out, "no override of %s for %s\n", rest[1], rest[0])
		return nil
	}
	fmt.Fprintf(a.out, "cleared override of %s for %s\n", rest[1], rest[0])
	return nil
}

func runCatalog(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("catalog")
	category := fs.String("category", "", "only permissions in this category")
	if _, err := parseArgs(fs, args, 0, "[--category C]"); err != nil {
		return err
	}
	perms, err := a.stores.Catalog.Permissions(ctx)
	if err != nil {
		return err
	}
	if *category != "" {
		perms = rbac.GroupByCategory(perms)[*category]
	}

	w := tabwriter.NewWriter(a.out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(w, "CATEGORY\tNAME\tDESCRIPTION\n")
	for _, p := range perms {
		fmt.Fprintf(w, "%s\t%s\t%s\n", p.Category, p.Name, p.Description)
	}
	return w.Flush()
}

func runRoles(ctx context.Context, a *app, args []string) error {
	if _, err := parseArgs(newFlagSet("roles"), args, 0, ""); err != nil {
		return err
	}
	roles, err := a.stores.Graph.Roles(ctx)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(w, "NAME\tSYSTEM\tINHERITS\tPERMISSIONS\n")
	for _, r := range roles {
		parents, err := a.stores.Graph.Parents(ctx, r.Name)
		if err != nil {
			return err
		}
		effective, err := a.engine.EffectivePermissions(ctx, r.Name)
		if err != nil {
			return err
		}
		fmt.Fprintf(w, "%s\t%t\t%s\t%d\n", r.Name, r.IsSystem, orDash(strings.Join(parents, ", ")), len(effective))
	}
	return w.Flush()
}

func runRole(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("role"), args, 1, "<name>")
	if err != nil {
		return err
	}
	name := rest[0]

	role, err := a.stores.Graph.Role(ctx, name)
	if err != nil {
		return err
	}
	parents, err := a.stores.Graph.Parents(ctx, name)
	if err != nil {
		return err
	}
	direct, err := a.stores.Graph.DirectPermissions(ctx, name)
	if err != nil {
		return err
	}
	effective, err := a.engine.EffectivePermissions(ctx, name)
	if err != nil {
		return err
	}

	fmt.Fprintf(a.out, "name:        %s\n", role.Name)
	fmt.Fprintf(a.out, "description: %s\n", orDash(role.Description))
	fmt.Fprintf(a.out, "system:      %t\n", role.IsSystem)
	fmt.Fprintf(a.out, "inherits:    %s\n", orDash(strings.Join(parents, ", ")))
	fmt.Fprintf(a.out, "permissions:\n")
	for _, p := range effective {
		marker := " (inherited)"
		if slices.Contains(direct, p) {
			marker = ""
		}
		fmt.Fprintf(a.out, "  %s%s\n", p, marker)
	}
	return nil
}

func runCreateRole(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("create-role")
	description := fs.String("description", "", "role description")
	rest, err := parseArgs(fs, args, 1, "<name>")
	if err != nil {
		return err
	}
	if err := a.manager.CreateRole(ctx, rbac.Role{Name: rest[0], Description: *description}); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "created role %q\n", rest[0])
	return nil
}

func runDeleteRole(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("delete-role")
	force := fs.Bool("force", false, "required in production")
	rest, err := parseArgs(fs, args, 1, "<name>")
	if err != nil {
		return err
	}
	if environment.IsProduction(ctx) && !*force {
		return errors.New("refusing to delete a role in production without --force")
	}
	if err := a.manager.DeleteRole(ctx, rest[0]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "deleted role %q\n", rest[0])
	return nil
}

func runRoleAdd(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("role-add"), args, -2, "<role> <permission>...")
	if err != nil {
		return err
	}
	for _, p := range rest[1:] {
		if err := a.manager.AddPermissionToRole(ctx, rest[0], p); err != nil {
			return err
		}
		fmt.Fprintf(a.out, "added %s to %q\n", p, rest[0])
	}
	return nil
}

func runRoleRemove(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("role-remove"), args, -2, "<role> <permission>...")
	if err != nil {
		return err
	}
	for _, p := range rest[1:] {
		removed, err := a.manager.RemovePermissionFromRole(ctx, rest[0], p)
		if err != nil {
			return err
		}
		if removed {
			fmt.Fprintf(a.out, "removed %s from %q\n", p, rest[0])
		} else {
			fmt.Fprintf(a.out, "%q does not hold %s directly\n", rest[0], p)
		}
	}
	return nil
}

func runInherit(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("inherit"), args, 2, "<parent> <child>")
	if err != nil {
		return err
	}
	if err := a.manager.AddInheritance(ctx, rest[0], rest[1]); err != nil {
		return err
	}
	fmt.Fprintf(a.out, "%q now inherits from %q\n", rest[1], rest[0])
	return nil
}

func runUninherit(ctx context.Context, a *app, args []string) error {
	rest, err := parseArgs(newFlagSet("uninherit"), args, 2, "<parent> <child>")
	if err != nil {
		return err
	}
	removed, err := a.manager.RemoveInheritance(ctx, rest[0], rest[1])
	if err != nil {
		return err
	}
	if !removed {
		fmt.Fprintf(a.out, "%q does not inherit from %q\n", rest[1], rest[0])
		return nil
	}
	fmt.Fprintf(a.out, "%q no longer inherits from %q\n", rest[1], rest[0])
	return nil
}

func runAudit(ctx context.Context, a *app, args []string) error {
	fs := newFlagSet("audit")
	subject := fs.String("user", "", "only events applied to this user")
	actor := fs.String("actor", "", "only events performed by this actor")
	action := fs.String("action", "", "only this action, e.g. rbac.role_assigned")
	since := fs.Duration("since", 0, "only events newer than this")
	limit := fs.Int("limit", 20, "maximum number of events")
	if _, err := parseArgs(fs, args, 0, "[--user U] [--action A] [--limit N]"); err != nil {
		return err
	}

	criteria := audit.Criteria{
		Subject: *subject,
		ActorID: *actor,
		Action:  *action,
		Limit:   *limit,
	}
	if *since > 0 {
		criteria.StartTime = a.engine.Now().Add(-*since)
	}
	events, err := a.audit.Query(ctx, criteria)
	if err != nil {
		return err
	}

	w := tabwriter.NewWriter(a.out, 2, 0, 3, ' ', 0)
	fmt.Fprintf(w, "TIME\tACTION\tACTOR\tSUBJECT\tRESOURCE\n")
	for _, e := range events {
		fmt.Fprintf(w, "%s\t%s\t%s\t%s\t%s\n",
			e.CreatedAt.UTC().Format(time.RFC3339),
			e.Action,
			orDash(e.ActorID),
			orDash(e.Subject),
			orDash(strings.Trim(e.Resource+"/"+e.ResourceID, "/")),
		)
	}
	return w.Flush()
}

func parseTime(s string, fallback time.Time) (time.Time, error) {
	if s == "" {
		return fallback, nil
	}
	t, err := time.Parse(time.RFC3339, s)
	if err != nil {
		return time.Time{}, fmt.Errorf("invalid time %q: %w", s, err)
	}
	return t, nil
}

// parseExpiry returns nil when neither flag is set.
func parseExpiry(now time.Time, in time.Duration, at string) (*time.Time, error) {
	switch {
	case in != 0 && at != "":
		return nil, errors.New("use only one of --expires-in and --expires-at")
	case in < 0:
		return nil, fmt.Errorf("invalid --expires-in %s: must be positive", in)
	case in > 0:
		t := now.Add(in).UTC()
		return &t, nil
	case at != "":
		t, err := parseTime(at, time.Time{})
		if err != nil {
			return nil, err
		}
		return &t, nil
	}
	return nil, nil
}

func describeExpiry(t *time.Time) string {
	if t == nil {
		return ""
	}
	return " until " + t.UTC().Format(time.RFC3339)
}

func orDash(s string) string {
	if s == "" {
		return "-"
	}
	return s
}
