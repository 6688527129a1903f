package rbac_test

import (
	"context"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/audit"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

type testClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *testClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *testClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

type fixture struct {
	ctx     context.Context
	clock   *testClock
	stores  rbac.Stores
	engine  *rbac.Engine
	manager *rbac.Manager
	audit   *audit.MemoryStorage
}

func newFixture(t *testing.T, opts ...rbac.Option) *fixture {
	t.Helper()

	clock := &testClock{now: time.Date(2025, 6, 1, 12, 0, 0, 0, time.UTC)}
	stores := rbac.NewMemoryStores(rbac.WithClock(clock.Now))
	auditStore := audit.NewMemoryStorage()

	opts = append([]rbac.Option{rbac.WithClock(clock.Now)}, opts...)
	engine := rbac.NewEngine(stores, opts...)
	manager := rbac.NewManager(engine, rbac.WithAuditLogger(audit.NewLogger(auditStore)))

	return &fixture{
		ctx:     context.Background(),
		clock:   clock,
		stores:  stores,
		engine:  engine,
		manager: manager,
		audit:   auditStore,
	}
}

// permissions registers names, using the part before the first dot as category.
func (f *fixture) permissions(t *testing.T, names ...string) {
	t.Helper()
	for _, name := range names {
		category, _, ok := strings.Cut(name, ".")
		if !ok {
			category = "misc"
		}
		require.NoError(t, f.manager.RegisterPermission(f.ctx, rbac.Permission{Name: name, Category: category}))
	}
}

// role creates a role holding perms, registering any permission not yet in the catalog.
func (f *fixture) role(t *testing.T, name string, perms ...string) {
	t.Helper()
	require.NoError(t, f.manager.CreateRole(f.ctx, rbac.Role{Name: name}))
	for _, p := range perms {
		if _, err := f.stores.Catalog.Lookup(f.ctx, p); err != nil {
			f.permissions(t, p)
		}
		require.NoError(t, f.manager.AddPermissionToRole(f.ctx, name, p))
	}
}

func (f *fixture) inherit(t *testing.T, parent, child string) {
	t.Helper()
	require.NoError(t, f.manager.AddInheritance(f.ctx, parent, child))
}

func (f *fixture) assign(t *testing.T, userID, role string, expiresAt *time.Time) rbac.Assignment {
	t.Helper()
	a, err := f.manager.Assign(f.ctx, rbac.AssignInput{UserID: userID, Role: role, AssignedBy: "admin", ExpiresAt: expiresAt})
	require.NoError(t, err)
	return a
}

func (f *fixture) can(t *testing.T, userID, permission string) bool {
	t.Helper()
	ok, err := f.engine.HasPermission(f.ctx, userID, permission, f.clock.Now())
	require.NoError(t, err)
	return ok
}

func ptr[T any](v T) *T {
	return &v
}
