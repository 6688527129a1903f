package main

import (
	"bytes"
	"context"
	"errors"
	"io"
	"log/slog"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/audit"
	"github.com/phillgates2/panel-sub002/pkg/environment"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

type harness struct {
	t   *testing.T
	ctx context.Context
	app *app
	out *bytes.Buffer
}

func newHarness(t *testing.T) *harness {
	t.Helper()
	out := &bytes.Buffer{}
	log := slog.New(slog.NewTextHandler(io.Discard, nil))
	a := newApp(rbac.NewMemoryStores(), audit.NewMemoryStorage(), rbac.NewLRUCache(64, 0), log, out)

	h := &harness{
		t:   t,
		ctx: rbac.WithUser(context.Background(), "alice"),
		app: a,
		out: out,
	}
	h.ok("seed")
	return h
}

func (h *harness) exec(name string, args ...string) (string, error) {
	h.t.Helper()
	cmd, ok := commands[name]
	require.True(h.t, ok, "command %q", name)
	h.out.Reset()
	err := cmd.run(h.ctx, h.app, args)
	return h.out.String(), err
}

func (h *harness) ok(name string, args ...string) string {
	h.t.Helper()
	out, err := h.exec(name, args...)
	require.NoError(h.t, err, "rbacctl %s %v", name, args)
	return out
}

func exitCode(t *testing.T, err error) int {
	t.Helper()
	var ee *exitError
	require.ErrorAs(t, err, &ee)
	return ee.ExitCode()
}

func TestSeed(t *testing.T) {
	h := newHarness(t)

	assert.Equal(t, "created 0 permissions and 0 roles\n", h.ok("seed"))

	out, err := h.exec("seed", "extra")
	assert.ErrorContains(t, err, "usage")
	assert.Empty(t, out)
}

func TestCheck(t *testing.T) {
	h := newHarness(t)

	out, err := h.exec("check", "bob", "player.kick")
	assert.Equal(t, "denied\n", out)
	assert.Equal(t, 1, exitCode(t, err))

	assert.Equal(t, `assigned "Moderator" to bob`+"\n", h.ok("assign", "bob", rbac.RoleModerator))
	assert.Equal(t, "allowed\n", h.ok("check", "bob", "player.kick"))
	assert.Equal(t, "allowed\n", h.ok("check", "bob", "server.view_assigned"), "inherited from User")

	_, err = h.exec("check", "bob", "")
	assert.ErrorIs(t, err, rbac.ErrInvalidArgument)

	_, err = h.exec("check", "bob")
	assert.ErrorContains(t, err, "usage: rbacctl check")

	_, err = h.exec("check", "bob", "player.kick", "--at", "yesterday")
	assert.ErrorContains(t, err, "invalid time")
}

func TestAssign_Expiry(t *testing.T) {
	h := newHarness(t)

	out := h.ok("assign", "bob", rbac.RoleModerator, "--expires-in", "1h")
	assert.Contains(t, out, " until ")

	later := time.Now().Add(2 * time.Hour).UTC().Format(time.RFC3339)
	out, err := h.exec("check", "bob", "player.kick", "--at", later)
	assert.Equal(t, "denied\n", out)
	assert.Equal(t, 1, exitCode(t, err))
	assert.Equal(t, "allowed\n", h.ok("check", "bob", "player.kick"))

	_, err = h.exec("assign", "bob", rbac.RoleUser, "--expires-in", "1h", "--expires-at", later)
	assert.ErrorContains(t, err, "only one of")

	_, err = h.exec("assign", "bob", "Nobody")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestRevoke(t *testing.T) {
	h := newHarness(t)
	h.ok("assign", "bob", rbac.RoleModerator)

	assert.Equal(t, `revoked "Moderator" from bob`+"\n", h.ok("revoke", "bob", rbac.RoleModerator))
	assert.Equal(t, `bob does not have role "Moderator"`+"\n", h.ok("revoke", "bob", rbac.RoleModerator))

	_, err := h.exec("check", "bob", "player.kick")
	assert.Equal(t, 1, exitCode(t, err))
}

func TestOverride(t *testing.T) {
	h := newHarness(t)
	h.ok("assign", "bob", rbac.RoleModerator)

	assert.Equal(t, "denied player.kick to bob\n",
		h.ok("override", "bob", "player.kick", "--deny", "--reason", "abuse"))

	_, err := h.exec("check", "bob", "player.kick")
	assert.Equal(t, 1, exitCode(t, err))

	assert.Contains(t, h.ok("permissions", "bob"), "player.kick\n", "role permissions ignore overrides")
	assert.NotContains(t, h.ok("permissions", "bob", "--resolved"), "player.kick")

	assert.Equal(t, "cleared override of player.kick for bob\n", h.ok("clear-override", "bob", "player.kick"))
	assert.Equal(t, "no override of player.kick for bob\n", h.ok("clear-override", "bob", "player.kick"))
	assert.Equal(t, "allowed\n", h.ok("check", "bob", "player.kick"))

	h.ok("override", "carol", "server.rcon", "--grant")
	assert.Equal(t, "allowed\n", h.ok("check", "carol", "server.rcon"))

	for _, args := range [][]string{
		{"bob", "player.kick"},
		{"bob", "player.kick", "--grant", "--deny"},
	} {
		_, err := h.exec("override", args...)
		assert.ErrorContains(t, err, "exactly one of --grant or --deny", "%v", args)
	}

	_, err = h.exec("override", "bob", "no.such", "--grant")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestListings(t *testing.T) {
	h := newHarness(t)

	catalog := h.ok("catalog")
	assert.Contains(t, catalog, "CATEGORY")
	assert.Contains(t, catalog, "player.kick")
	assert.Contains(t, catalog, "Kick players from servers")

	players := h.ok("catalog", "--category", "player")
	assert.Contains(t, players, "player.ban")
	assert.NotContains(t, players, "server.create")

	roles := h.ok("roles")
	assert.Contains(t, roles, "INHERITS")
	assert.Contains(t, roles, rbac.RoleServerManager)
	assert.Contains(t, roles, rbac.RoleSuperAdministrator)

	role := h.ok("role", rbac.RoleServerManager)
	assert.Contains(t, role, "inherits:    Moderator\n")
	assert.Contains(t, role, "  server.create\n")
	assert.Contains(t, role, "  player.kick (inherited)\n")
	assert.Contains(t, role, "  user.view_own (inherited)\n")

	_, err := h.exec("role", "Nobody")
	assert.ErrorIs(t, err, rbac.ErrNotFound)
}

func TestRoleAdministration(t *testing.T) {
	h := newHarness(t)

	h.ok("create-role", "Support", "--description", "Helpdesk")
	assert.Equal(t, `added player.view to "Support"`+"\n"+`added user.view_all to "Support"`+"\n",
		h.ok("role-add", "Support", "player.view", "user.view_all"))
	h.ok("inherit", rbac.RoleUser, "Support")
	h.ok("assign", "dave", "Support")

	assert.Equal(t, "allowed\n", h.ok("check", "dave", "user.view_all"))
	assert.Equal(t, "allowed\n", h.ok("check", "dave", "user.view_own"))

	_, err := h.exec("inherit", "Support", rbac.RoleUser)
	assert.ErrorIs(t, err, rbac.ErrCycle)

	assert.Equal(t, `"Support" no longer inherits from "User"`+"\n", h.ok("uninherit", rbac.RoleUser, "Support"))
	assert.Equal(t, `"Support" does not inherit from "User"`+"\n", h.ok("uninherit", rbac.RoleUser, "Support"))
	_, err = h.exec("check", "dave", "user.view_own")
	assert.Equal(t, 1, exitCode(t, err))

	out := h.ok("role-remove", "Support", "user.view_all", "user.view_all")
	assert.Equal(t, `removed user.view_all from "Support"`+"\n"+`"Support" does not hold user.view_all directly`+"\n", out)

	_, err = h.exec("delete-role", "Support")
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)

	h.ok("revoke", "dave", "Support")
	assert.Equal(t, `deleted role "Support"`+"\n", h.ok("delete-role", "Support"))

	_, err = h.exec("delete-role", rbac.RoleUser)
	assert.ErrorIs(t, err, rbac.ErrSystemRole)

	_, err = h.exec("role-add", "Support")
	assert.ErrorContains(t, err, "usage")
}

func TestDeleteRole_Production(t *testing.T) {
	h := newHarness(t)
	h.ok("create-role", "Temp")
	h.ctx = environment.WithContext(h.ctx, environment.Production)

	_, err := h.exec("delete-role", "Temp")
	assert.ErrorContains(t, err, "--force")

	h.ok("delete-role", "Temp", "--force")
}

func TestAudit(t *testing.T) {
	h := newHarness(t)
	h.ok("assign", "bob", rbac.RoleModerator)
	h.ok("override", "erin", "player.ban", "--grant")

	out := h.ok("audit", "--user", "bob")
	assert.Contains(t, out, rbac.ActionRoleAssigned)
	assert.Contains(t, out, "alice", "actor comes from --actor")
	assert.Contains(t, out, "role/Moderator")
	assert.NotContains(t, out, "erin")

	out = h.ok("audit", "--action", rbac.ActionOverrideSet)
	assert.Contains(t, out, "erin")
	assert.NotContains(t, out, rbac.ActionRoleAssigned)

	out = h.ok("audit", "--limit", "1")
	assert.Len(t, bytes.Split(bytes.TrimSpace([]byte(out)), []byte("\n")), 2, "header plus one event")
}

func TestPing(t *testing.T) {
	h := newHarness(t)

	assert.Empty(t, h.ok("ping"))

	h.app.health["postgres"] = func(context.Context) error { return nil }
	assert.Equal(t, "postgres: ok\n", h.ok("ping"))

	h.app.health["redis"] = func(context.Context) error { return errors.New("connection refused") }
	out, err := h.exec("ping")
	assert.Equal(t, "postgres: ok\nredis: connection refused\n", out)
	assert.Equal(t, 1, exitCode(t, err))
}

func TestMigrate_RequiresDatabase(t *testing.T) {
	h := newHarness(t)

	_, err := h.exec("migrate")
	assert.ErrorContains(t, err, "PostgreSQL")
}

func TestParseExpiry(t *testing.T) {
	now := time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)
	at := time.Date(2025, 7, 1, 0, 0, 0, 0, time.UTC)

	tests := []struct {
		name    string
		in      time.Duration
		at      string
		want    *time.Time
		wantErr bool
	}{
		{name: "never", want: nil},
		{name: "duration", in: time.Hour, want: ptr(now.Add(time.Hour))},
		{name: "timestamp", at: "2025-07-01T00:00:00Z", want: &at},
		{name: "both", in: time.Hour, at: "2025-07-01T00:00:00Z", wantErr: true},
		{name: "negative", in: -time.Hour, wantErr: true},
		{name: "malformed", at: "next week", wantErr: true},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := parseExpiry(now, tt.in, tt.at)
			if tt.wantErr {
				assert.Error(t, err)
				return
			}
			require.NoError(t, err)
			if tt.want == nil {
				assert.Nil(t, got)
				return
			}
			require.NotNil(t, got)
			assert.True(t, tt.want.Equal(*got), "got %s", got)
		})
	}
}

func ptr[T any](v T) *T { return &v }
