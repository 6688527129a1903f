package rbac_test

import (
	"errors"
	"fmt"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

func TestMemoryAssignments_ReturnedRecordsAreCopies(t *testing.T) {
	f := newFixture(t)
	f.role(t, "r", "p.x")
	expiry := f.clock.Now().Add(time.Hour)

	assigned := f.assign(t, "u", "r", &expiry)
	*assigned.ExpiresAt = f.clock.Now().Add(-time.Hour)
	assert.True(t, f.can(t, "u", "p.x"), "record returned by Assign")

	list, err := f.stores.Assignments.Assignments(f.ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 1)
	*list[0].ExpiresAt = f.clock.Now().Add(-time.Hour)
	assert.True(t, f.can(t, "u", "p.x"), "record returned by Assignments")

	list, err = f.stores.Assignments.Assignments(f.ctx, "u")
	require.NoError(t, err)
	assert.True(t, expiry.Equal(*list[0].ExpiresAt))
}

func TestMemoryOverrides_ReturnedRecordsAreCopies(t *testing.T) {
	f := newFixture(t)
	f.role(t, "r", "p.x")
	f.assign(t, "u", "r", nil)
	expiry := f.clock.Now().Add(time.Hour)

	o, err := f.manager.SetOverride(f.ctx, rbac.OverrideInput{UserID: "u", Permission: "p.x", Granted: false, ExpiresAt: &expiry})
	require.NoError(t, err)
	*o.ExpiresAt = f.clock.Now().Add(-time.Hour)
	assert.False(t, f.can(t, "u", "p.x"), "record returned by SetOverride")

	active, ok, err := f.stores.Overrides.ActiveOverride(f.ctx, "u", "p.x", f.clock.Now())
	require.NoError(t, err)
	require.True(t, ok)
	*active.ExpiresAt = f.clock.Now().Add(-time.Hour)
	assert.False(t, f.can(t, "u", "p.x"), "record returned by ActiveOverride")

	list, err := f.stores.Overrides.Overrides(f.ctx, "u")
	require.NoError(t, err)
	require.Len(t, list, 1)
	*list[0].ExpiresAt = f.clock.Now().Add(-time.Hour)
	assert.False(t, f.can(t, "u", "p.x"), "record returned by Overrides")
}

func TestMemoryRoleGraph_UpdatedAtUsesClock(t *testing.T) {
	f := newFixture(t)
	f.role(t, "r")
	f.permissions(t, "p.x")

	f.clock.Advance(time.Hour)
	require.NoError(t, f.manager.AddPermissionToRole(f.ctx, "r", "p.x"))

	r, err := f.stores.Graph.Role(f.ctx, "r")
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(r.UpdatedAt), "updated at %s", r.UpdatedAt)

	f.clock.Advance(time.Minute)
	_, err = f.manager.RemovePermissionFromRole(f.ctx, "r", "p.x")
	require.NoError(t, err)

	r, err = f.stores.Graph.Role(f.ctx, "r")
	require.NoError(t, err)
	assert.True(t, f.clock.Now().Equal(r.UpdatedAt), "updated at %s", r.UpdatedAt)
}

func TestMemoryStores_RoleReferences(t *testing.T) {
	f := newFixture(t)
	f.role(t, "r")

	_, err := f.stores.Assignments.Assign(f.ctx, rbac.Assignment{UserID: "u", Role: "ghost"})
	assert.ErrorIs(t, err, rbac.ErrNotFound)

	_, err = f.stores.Assignments.Assign(f.ctx, rbac.Assignment{UserID: "u", Role: "r"})
	require.NoError(t, err)

	err = f.stores.Graph.DeleteRole(f.ctx, "r")
	assert.ErrorIs(t, err, rbac.ErrRoleInUse)
	_, err = f.stores.Graph.Role(f.ctx, "r")
	assert.NoError(t, err, "role survives the refused delete")
}

func TestMemoryStores_DeleteRoleRacesAssign(t *testing.T) {
	t.Parallel()

	for i := range 50 {
		f := newFixture(t)
		role := fmt.Sprintf("r%d", i)
		f.role(t, role)

		var (
			wg        sync.WaitGroup
			assignErr error
			deleteErr error
		)
		wg.Add(2)
		go func() {
			defer wg.Done()
			_, assignErr = f.stores.Assignments.Assign(f.ctx, rbac.Assignment{UserID: "u", Role: role})
		}()
		go func() {
			defer wg.Done()
			deleteErr = f.stores.Graph.DeleteRole(f.ctx, role)
		}()
		wg.Wait()

		_, roleErr := f.stores.Graph.Role(f.ctx, role)
		n, err := f.stores.Assignments.CountForRole(f.ctx, role)
		require.NoError(t, err)

		if errors.Is(roleErr, rbac.ErrNotFound) {
			assert.Zero(t, n, "deleted role left an assignment behind")
			assert.ErrorIs(t, assignErr, rbac.ErrNotFound)
			assert.NoError(t, deleteErr)
		} else {
			assert.Equal(t, 1, n)
			assert.NoError(t, assignErr)
			assert.ErrorIs(t, deleteErr, rbac.ErrRoleInUse)
		}
	}
}
