package rbac_test

import (
	"fmt"
	"sync"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

func TestEngine_ConcurrentReadsAndWrites(t *testing.T) {
	t.Parallel()

	f := newFixture(t, rbac.WithCache(rbac.NewLRUCache(128, 0)))
	_, err := f.manager.Bootstrap(f.ctx, rbac.DefaultSeed())
	require.NoError(t, err)

	const workers = 100
	var wg sync.WaitGroup
	errs := make(chan error, workers*3)

	for i := range workers {
		userID := fmt.Sprintf("user-%d", i)
		wg.Add(1)
		go func() {
			defer wg.Done()
			if _, err := f.manager.Assign(f.ctx, rbac.AssignInput{UserID: userID, Role: rbac.RoleModerator}); err != nil {
				errs <- err
				return
			}
			ok, err := f.engine.Can(f.ctx, userID, "player.kick")
			if err != nil {
				errs <- err
				return
			}
			if !ok {
				errs <- fmt.Errorf("%s: moderator cannot kick", userID)
			}
			if _, err := f.engine.ResolvedPermissions(f.ctx, userID, f.clock.Now()); err != nil {
				errs <- err
			}
		}()
	}

	// Graph churn on an unrelated role while users are resolved.
	wg.Add(1)
	go func() {
		defer wg.Done()
		for range 50 {
			if err := f.manager.AddPermissionToRole(f.ctx, rbac.RoleServerManager, "server.delete"); err != nil {
				errs <- err
				return
			}
			if _, err := f.manager.RemovePermissionFromRole(f.ctx, rbac.RoleServerManager, "server.delete"); err != nil {
				errs <- err
				return
			}
		}
	}()

	wg.Wait()
	close(errs)
	for err := range errs {
		assert.NoError(t, err)
	}

	n, err := f.stores.Assignments.CountForRole(f.ctx, rbac.RoleModerator)
	require.NoError(t, err)
	assert.Equal(t, workers, n)
}

func TestAddEdge_ConcurrentCycleAttempts(t *testing.T) {
	t.Parallel()

	f := newFixture(t)
	f.role(t, "a")
	f.role(t, "b")

	var wg sync.WaitGroup
	results := make([]error, 2)
	for i, edge := range [][2]string{{"a", "b"}, {"b", "a"}} {
		wg.Add(1)
		go func() {
			defer wg.Done()
			results[i] = f.manager.AddInheritance(f.ctx, edge[0], edge[1])
		}()
	}
	wg.Wait()

	failures := 0
	for _, err := range results {
		if err != nil {
			assert.ErrorIs(t, err, rbac.ErrCycle)
			failures++
		}
	}
	assert.Equal(t, 1, failures, "exactly one of two opposing edges is accepted")

	for _, role := range []string{"a", "b"} {
		_, err := f.engine.EffectivePermissions(f.ctx, role)
		require.NoError(t, err)
	}
}
