package rbac

import (
	"context"
	"errors"
	"fmt"
	"maps"
	"slices"
	"strconv"
	"strings"
	"time"

	"golang.org/x/sync/singleflight"

	"github.com/phillgates2/panel-sub002/pkg/logger"
)

// Engine answers authorization queries. It never mutates the stores.
//
// A user holds a permission when an active override says so, or, absent an
// active override, when any role the user is actively assigned grants it
// directly or through inheritance. Overrides are the only way to deny a
// permission a role grants.
type Engine struct {
	stores Stores
	opts   options
	fills  singleflight.Group
}

// NewEngine creates an Engine reading from the given stores.
// It panics if any store is nil.
func NewEngine(stores Stores, opts ...Option) *Engine {
	if stores.Catalog == nil || stores.Graph == nil || stores.Assignments == nil || stores.Overrides == nil {
		panic("rbac: all stores must be provided")
	}

	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}

	return &Engine{stores: stores, opts: o}
}

// Now returns the current time according to the engine clock.
func (e *Engine) Now() time.Time {
	return e.opts.now()
}

// HasPermission reports whether userID holds permission at asOf.
//
// An empty permission name is a malformed query and returns ErrInvalidArgument.
// An empty user is not authorized. Missing data is never an error: unknown
// users, roles or permissions simply resolve to false. On a store failure the
// result is false together with the error.
func (e *Engine) HasPermission(ctx context.Context, userID, permission string, asOf time.Time) (bool, error) {
	if err := validPermissionQuery(permission); err != nil {
		return false, err
	}
	if strings.TrimSpace(userID) == "" {
		return false, nil
	}

	ov, ok, err := e.stores.Overrides.ActiveOverride(ctx, userID, permission, asOf)
	if err != nil {
		e.storeFailure(ctx, "override lookup failed", userID, err)
		return false, err
	}
	if ok {
		return ov.Granted, nil
	}

	roles, err := e.stores.Assignments.ActiveRoles(ctx, userID, asOf)
	if err != nil {
		e.storeFailure(ctx, "active roles lookup failed", userID, err)
		return false, err
	}

	for _, role := range roles {
		perms, err := e.effective(ctx, role)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			e.storeFailure(ctx, "effective permissions lookup failed", userID, err)
			return false, err
		}
		if slices.Contains(perms, permission) {
			return true, nil
		}
	}

	e.opts.log.DebugContext(ctx, "permission denied",
		logger.UserID(userID),
		logger.Permission(permission),
	)
	return false, nil
}

// Can is HasPermission evaluated at the engine's current time.
func (e *Engine) Can(ctx context.Context, userID, permission string) (bool, error) {
	return e.HasPermission(ctx, userID, permission, e.opts.now())
}

// CanFromContext checks the user stored in ctx by WithUser.
// A context without a user is not authorized.
func (e *Engine) CanFromContext(ctx context.Context, permission string) (bool, error) {
	userID, _ := UserFromContext(ctx)
	return e.Can(ctx, userID, permission)
}

// HasAny reports whether the user holds at least one of the permissions.
func (e *Engine) HasAny(ctx context.Context, userID string, asOf time.Time, permissions ...string) (bool, error) {
	if len(permissions) == 0 {
		return false, fmt.Errorf("%w: no permissions given", ErrInvalidArgument)
	}
	for _, p := range permissions {
		ok, err := e.HasPermission(ctx, userID, p, asOf)
		if err != nil {
			return false, err
		}
		if ok {
			return true, nil
		}
	}
	return false, nil
}

// HasAll reports whether the user holds every one of the permissions.
func (e *Engine) HasAll(ctx context.Context, userID string, asOf time.Time, permissions ...string) (bool, error) {
	if len(permissions) == 0 {
		return false, fmt.Errorf("%w: no permissions given", ErrInvalidArgument)
	}
	for _, p := range permissions {
		ok, err := e.HasPermission(ctx, userID, p, asOf)
		if err != nil || !ok {
			return false, err
		}
	}
	return true, nil
}

// EffectivePermissions returns the sorted union of the role's direct
// permissions and those of every role it transitively inherits from.
func (e *Engine) EffectivePermissions(ctx context.Context, role string) ([]string, error) {
	if strings.TrimSpace(role) == "" {
		return nil, fmt.Errorf("%w: empty role name", ErrInvalidArgument)
	}
	perms, err := e.effective(ctx, role)
	if err != nil {
		return nil, err
	}
	slices.Sort(perms)
	return perms, nil
}

// AllPermissions returns the sorted union of effective permissions over the
// user's active roles at asOf. Overrides are not applied; use
// ResolvedPermissions for the set HasPermission would agree with.
func (e *Engine) AllPermissions(ctx context.Context, userID string, asOf time.Time) ([]string, error) {
	set, err := e.rolePermissions(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}
	return slices.Sorted(maps.Keys(set)), nil
}

// ResolvedPermissions is AllPermissions with the user's active overrides
// applied: grants are added and denials removed.
func (e *Engine) ResolvedPermissions(ctx context.Context, userID string, asOf time.Time) ([]string, error) {
	if strings.TrimSpace(userID) == "" {
		return nil, nil
	}
	set, err := e.rolePermissions(ctx, userID, asOf)
	if err != nil {
		return nil, err
	}

	overrides, err := e.stores.Overrides.Overrides(ctx, userID)
	if err != nil {
		e.storeFailure(ctx, "overrides lookup failed", userID, err)
		return nil, err
	}
	for _, ov := range overrides {
		if !ov.ActiveAt(asOf) {
			continue
		}
		if ov.Granted {
			set[ov.Permission] = struct{}{}
		} else {
			delete(set, ov.Permission)
		}
	}

	return slices.Sorted(maps.Keys(set)), nil
}

func (e *Engine) rolePermissions(ctx context.Context, userID string, asOf time.Time) (map[string]struct{}, error) {
	set := make(map[string]struct{})
	if strings.TrimSpace(userID) == "" {
		return set, nil
	}

	roles, err := e.stores.Assignments.ActiveRoles(ctx, userID, asOf)
	if err != nil {
		e.storeFailure(ctx, "active roles lookup failed", userID, err)
		return nil, err
	}

	for _, role := range roles {
		perms, err := e.effective(ctx, role)
		if err != nil {
			if errors.Is(err, ErrNotFound) {
				continue
			}
			return nil, err
		}
		for _, p := range perms {
			set[p] = struct{}{}
		}
	}
	return set, nil
}

// effective returns an unsorted copy of the role's effective permissions,
// consulting the cache when one is configured.
func (e *Engine) effective(ctx context.Context, role string) ([]string, error) {
	c := e.opts.cache
	if c == nil {
		return e.compute(ctx, role)
	}

	gen, err := c.Generation(ctx)
	if err != nil {
		e.opts.log.WarnContext(ctx, "effective cache unavailable", logger.Role(role), logger.Error(err))
		return e.compute(ctx, role)
	}

	if perms, ok, err := c.Get(ctx, gen, role); err != nil {
		e.opts.log.WarnContext(ctx, "effective cache read failed", logger.Role(role), logger.Error(err))
	} else if ok {
		return perms, nil
	}

	// The fill is shared by every caller waiting on key and outlives the
	// caller that started it. Each waiter still honors its own context.
	key := strconv.FormatUint(gen, 10) + ":" + role
	fillCtx := context.WithoutCancel(ctx)
	ch := e.fills.DoChan(key, func() (any, error) {
		perms, err := e.compute(fillCtx, role)
		if err != nil {
			return nil, err
		}
		if err := c.Set(fillCtx, gen, role, perms); err != nil {
			e.opts.log.WarnContext(fillCtx, "effective cache write failed", logger.Role(role), logger.Error(err))
		}
		return perms, nil
	})

	select {
	case <-ctx.Done():
		return nil, ctx.Err()
	case res := <-ch:
		if res.Err != nil {
			return nil, res.Err
		}
		return slices.Clone(res.Val.([]string)), nil
	}
}

func (e *Engine) compute(ctx context.Context, role string) ([]string, error) {
	if r, ok := e.stores.Graph.(EffectiveResolver); ok {
		return r.EffectivePermissions(ctx, role)
	}
	return expand(ctx, e.stores.Graph, role)
}

func (e *Engine) storeFailure(ctx context.Context, msg, userID string, err error) {
	e.opts.log.ErrorContext(ctx, msg, logger.UserID(userID), logger.Error(err))
}

func validPermissionQuery(permission string) error {
	if strings.TrimSpace(permission) == "" {
		return fmt.Errorf("%w: empty permission name", ErrInvalidArgument)
	}
	return nil
}
