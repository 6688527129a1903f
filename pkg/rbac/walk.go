package rbac

import (
	"context"
	"errors"
)

// ParentsFunc returns the direct parents of a role.
type ParentsFunc func(ctx context.Context, role string) ([]string, error)

// Walk visits start and every role it transitively inherits from, each exactly
// once. It uses an explicit stack and a visited set, so it terminates on any
// graph, including one that contains cycles. Roles reported as ErrNotFound by
// parents are visited but have no parents. Returning a non-nil error from fn
// stops the walk with that error.
func Walk(ctx context.Context, parents ParentsFunc, start string, fn func(role string) error) error {
	visited := map[string]struct{}{start: {}}
	stack := []string{start}

	for len(stack) > 0 {
		if err := ctx.Err(); err != nil {
			return err
		}

		role := stack[len(stack)-1]
		stack = stack[:len(stack)-1]

		if err := fn(role); err != nil {
			return err
		}

		ps, err := parents(ctx, role)
		if err != nil && !errors.Is(err, ErrNotFound) {
			return err
		}
		for _, p := range ps {
			if _, seen := visited[p]; seen {
				continue
			}
			visited[p] = struct{}{}
			stack = append(stack, p)
		}
	}

	return nil
}

var errStopWalk = errors.New("stop walk")

// Inherits reports whether role equals ancestor or transitively inherits from it.
func Inherits(ctx context.Context, parents ParentsFunc, role, ancestor string) (bool, error) {
	found := false
	err := Walk(ctx, parents, role, func(r string) error {
		if r == ancestor {
			found = true
			return errStopWalk
		}
		return nil
	})
	if err != nil && !errors.Is(err, errStopWalk) {
		return false, err
	}
	return found, nil
}

// WouldCycle reports whether adding the edge parent->child closes a cycle.
func WouldCycle(ctx context.Context, parents ParentsFunc, parent, child string) (bool, error) {
	// child inheriting from parent is a cycle if parent already inherits from child.
	return Inherits(ctx, parents, parent, child)
}

// expand collects the union of direct permissions over start and all its ancestors.
func expand(ctx context.Context, g RoleGraph, start string) ([]string, error) {
	seen := make(map[string]struct{})
	perms := make([]string, 0)
	err := Walk(ctx, g.Parents, start, func(role string) error {
		direct, err := g.DirectPermissions(ctx, role)
		if err != nil {
			// Dangling edges to removed roles contribute nothing.
			if errors.Is(err, ErrNotFound) && role != start {
				return nil
			}
			return err
		}
		for _, p := range direct {
			if _, ok := seen[p]; ok {
				continue
			}
			seen[p] = struct{}{}
			perms = append(perms, p)
		}
		return nil
	})
	if err != nil {
		return nil, err
	}
	return perms, nil
}
