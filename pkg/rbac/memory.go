package rbac

import (
	"cmp"
	"context"
	"fmt"
	"maps"
	"slices"
	"sync"
	"time"
)

type memoryCatalog struct {
	mu    sync.RWMutex
	perms map[string]Permission
}

// NewMemoryCatalog returns an empty, concurrency-safe in-memory catalog.
func NewMemoryCatalog() Catalog {
	return &memoryCatalog{perms: make(map[string]Permission)}
}

func (c *memoryCatalog) Register(_ context.Context, p Permission) error {
	if p.Name == "" {
		return ErrInvalidArgument
	}

	c.mu.Lock()
	defer c.mu.Unlock()

	if _, ok := c.perms[p.Name]; ok {
		return fmt.Errorf("%w: permission %q", ErrDuplicateName, p.Name)
	}
	c.perms[p.Name] = p
	return nil
}

func (c *memoryCatalog) Lookup(_ context.Context, name string) (Permission, error) {
	c.mu.RLock()
	defer c.mu.RUnlock()

	p, ok := c.perms[name]
	if !ok {
		return Permission{}, fmt.Errorf("%w: permission %q", ErrNotFound, name)
	}
	return p, nil
}

func (c *memoryCatalog) Permissions(_ context.Context) ([]Permission, error) {
	c.mu.RLock()
	list := slices.Collect(maps.Values(c.perms))
	c.mu.RUnlock()

	slices.SortFunc(list, func(a, b Permission) int {
		return cmp.Or(cmp.Compare(a.Category, b.Category), cmp.Compare(a.Name, b.Name))
	})
	return list, nil
}

type memoryRoleGraph struct {
	mu      sync.RWMutex
	now     func() time.Time
	roles   map[string]Role
	perms   map[string]map[string]struct{}
	parents map[string]map[string]struct{} // child -> parents

	// assignments is set when the graph was built by NewMemoryStores.
	assignments *memoryAssignments
}

// NewMemoryRoleGraph returns an empty, concurrency-safe in-memory role graph.
// WithClock sets the time stamped into Role.UpdatedAt; other options are ignored.
func NewMemoryRoleGraph(opts ...Option) RoleGraph {
	return newMemoryRoleGraph(opts...)
}

func newMemoryRoleGraph(opts ...Option) *memoryRoleGraph {
	o := defaultOptions()
	for _, opt := range opts {
		opt(&o)
	}
	return &memoryRoleGraph{
		now:     o.now,
		roles:   make(map[string]Role),
		perms:   make(map[string]map[string]struct{}),
		parents: make(map[string]map[string]struct{}),
	}
}

func (g *memoryRoleGraph) CreateRole(_ context.Context, r Role) error {
	if r.Name == "" {
		return ErrInvalidArgument
	}

	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.roles[r.Name]; ok {
		return fmt.Errorf("%w: role %q", ErrDuplicateName, r.Name)
	}
	g.roles[r.Name] = r
	g.perms[r.Name] = make(map[string]struct{})
	return nil
}

func (g *memoryRoleGraph) Role(_ context.Context, name string) (Role, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	r, ok := g.roles[name]
	if !ok {
		return Role{}, roleNotFound(name)
	}
	return r, nil
}

func (g *memoryRoleGraph) Roles(_ context.Context) ([]Role, error) {
	g.mu.RLock()
	list := slices.Collect(maps.Values(g.roles))
	g.mu.RUnlock()

	slices.SortFunc(list, func(a, b Role) int { return cmp.Compare(a.Name, b.Name) })
	return list, nil
}

func (g *memoryRoleGraph) DeleteRole(_ context.Context, name string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.roles[name]; !ok {
		return roleNotFound(name)
	}
	if g.assignments != nil {
		if n := g.assignments.countForRole(name); n > 0 {
			return fmt.Errorf("%w: %q has %d assignments", ErrRoleInUse, name, n)
		}
	}
	delete(g.roles, name)
	delete(g.perms, name)
	delete(g.parents, name)
	for _, ps := range g.parents {
		delete(ps, name)
	}
	return nil
}

func (g *memoryRoleGraph) AddPermission(_ context.Context, role, permission string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.perms[role]
	if !ok {
		return roleNotFound(role)
	}
	set[permission] = struct{}{}
	g.touch(role)
	return nil
}

func (g *memoryRoleGraph) RemovePermission(_ context.Context, role, permission string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	set, ok := g.perms[role]
	if !ok {
		return false, roleNotFound(role)
	}
	if _, ok := set[permission]; !ok {
		return false, nil
	}
	delete(set, permission)
	g.touch(role)
	return true, nil
}

func (g *memoryRoleGraph) DirectPermissions(_ context.Context, role string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()

	set, ok := g.perms[role]
	if !ok {
		return nil, roleNotFound(role)
	}
	return slices.Sorted(maps.Keys(set)), nil
}

func (g *memoryRoleGraph) AddEdge(ctx context.Context, parent, child string) error {
	g.mu.Lock()
	defer g.mu.Unlock()

	if _, ok := g.roles[parent]; !ok {
		return roleNotFound(parent)
	}
	if _, ok := g.roles[child]; !ok {
		return roleNotFound(child)
	}

	cycle, err := WouldCycle(ctx, g.parentsLocked, parent, child)
	if err != nil {
		return err
	}
	if cycle {
		return fmt.Errorf("%w: %s -> %s", ErrCycle, parent, child)
	}

	g.link(parent, child)
	return nil
}

func (g *memoryRoleGraph) RemoveEdge(_ context.Context, parent, child string) (bool, error) {
	g.mu.Lock()
	defer g.mu.Unlock()

	ps, ok := g.parents[child]
	if !ok {
		return false, nil
	}
	if _, ok := ps[parent]; !ok {
		return false, nil
	}
	delete(ps, parent)
	return true, nil
}

func (g *memoryRoleGraph) Parents(ctx context.Context, role string) ([]string, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.parentsLocked(ctx, role)
}

// Must be called with lock held.
func (g *memoryRoleGraph) parentsLocked(_ context.Context, role string) ([]string, error) {
	if _, ok := g.roles[role]; !ok {
		return nil, roleNotFound(role)
	}
	return slices.Sorted(maps.Keys(g.parents[role])), nil
}

// Must be called with lock held.
func (g *memoryRoleGraph) link(parent, child string) {
	ps, ok := g.parents[child]
	if !ok {
		ps = make(map[string]struct{})
		g.parents[child] = ps
	}
	ps[parent] = struct{}{}
}

// Must be called with lock held.
func (g *memoryRoleGraph) touch(role string) {
	r := g.roles[role]
	r.UpdatedAt = g.now().UTC()
	g.roles[role] = r
}

func roleNotFound(name string) error {
	return fmt.Errorf("%w: role %q", ErrNotFound, name)
}

type memoryAssignments struct {
	mu     sync.RWMutex
	byUser map[string]map[string]Assignment

	// graph is set when the store was built by NewMemoryStores. Assign then
	// refuses unknown roles, and lock order is always graph before assignments.
	graph *memoryRoleGraph
}

// NewMemoryAssignments returns an empty, concurrency-safe in-memory assignment store.
func NewMemoryAssignments() AssignmentStore {
	return &memoryAssignments{byUser: make(map[string]map[string]Assignment)}
}

func (s *memoryAssignments) Assign(_ context.Context, a Assignment) (Assignment, error) {
	if a.UserID == "" || a.Role == "" {
		return Assignment{}, ErrInvalidArgument
	}
	a.ExpiresAt = cloneTime(a.ExpiresAt)

	if s.graph != nil {
		s.graph.mu.RLock()
		defer s.graph.mu.RUnlock()
		if _, ok := s.graph.roles[a.Role]; !ok {
			return Assignment{}, roleNotFound(a.Role)
		}
	}

	s.mu.Lock()
	defer s.mu.Unlock()

	roles, ok := s.byUser[a.UserID]
	if !ok {
		roles = make(map[string]Assignment)
		s.byUser[a.UserID] = roles
	}
	if existing, ok := roles[a.Role]; ok {
		a.ID = existing.ID
	}
	roles[a.Role] = a
	return a.clone(), nil
}

func (s *memoryAssignments) Revoke(_ context.Context, userID, role string) (bool, error) {
	s.mu.Lock()
	defer s.mu.Unlock()

	roles, ok := s.byUser[userID]
	if !ok {
		return false, nil
	}
	if _, ok := roles[role]; !ok {
		return false, nil
	}
	delete(roles, role)
	if len(roles) == 0 {
		delete(s.byUser, userID)
	}
	return true, nil
}

func (s *memoryAssignments) ActiveRoles(_ context.Context, userID string, asOf time.Time) ([]string, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	var active []string
	for role, a := range s.byUser[userID] {
		if a.ActiveAt(asOf) {
			active = append(active, role)
		}
	}
	slices.Sort(active)
	return active, nil
}

func (s *memoryAssignments) Assignments(_ context.Context, userID string) ([]Assignment, error) {
	s.mu.RLock()
	list := make([]Assignment, 0, len(s.byUser[userID]))
	for _, a := range s.byUser[userID] {
		list = append(list, a.clone())
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b Assignment) int { return cmp.Compare(a.Role, b.Role) })
	return list, nil
}

func (s *memoryAssignments) CountForRole(_ context.Context, role string) (int, error) {
	return s.countForRole(role), nil
}

func (s *memoryAssignments) countForRole(role string) int {
	s.mu.RLock()
	defer s.mu.RUnlock()

	n := 0
	for _, roles := range s.byUser {
		if _, ok := roles[role]; ok {
			n++
		}
	}
	return n
}

type overrideKey struct {
	userID     string
	permission string
}

type memoryOverrides struct {
	mu        sync.RWMutex
	overrides map[overrideKey]Override
}

// NewMemoryOverrides returns an empty, concurrency-safe in-memory override store.
func NewMemoryOverrides() OverrideStore {
	return &memoryOverrides{overrides: make(map[overrideKey]Override)}
}

func (s *memoryOverrides) SetOverride(_ context.Context, o Override) (Override, error) {
	if o.UserID == "" || o.Permission == "" {
		return Override{}, ErrInvalidArgument
	}
	o.ExpiresAt = cloneTime(o.ExpiresAt)
	key := overrideKey{userID: o.UserID, permission: o.Permission}

	s.mu.Lock()
	defer s.mu.Unlock()

	if existing, ok := s.overrides[key]; ok {
		o.ID = existing.ID
	}
	s.overrides[key] = o
	return o.clone(), nil
}

func (s *memoryOverrides) ClearOverride(_ context.Context, userID, permission string) (bool, error) {
	key := overrideKey{userID: userID, permission: permission}

	s.mu.Lock()
	defer s.mu.Unlock()

	if _, ok := s.overrides[key]; !ok {
		return false, nil
	}
	delete(s.overrides, key)
	return true, nil
}

func (s *memoryOverrides) ActiveOverride(_ context.Context, userID, permission string, asOf time.Time) (Override, bool, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()

	o, ok := s.overrides[overrideKey{userID: userID, permission: permission}]
	if !ok || !o.ActiveAt(asOf) {
		return Override{}, false, nil
	}
	return o.clone(), true, nil
}

func (s *memoryOverrides) Overrides(_ context.Context, userID string) ([]Override, error) {
	s.mu.RLock()
	var list []Override
	for key, o := range s.overrides {
		if key.userID == userID {
			list = append(list, o.clone())
		}
	}
	s.mu.RUnlock()

	slices.SortFunc(list, func(a, b Override) int { return cmp.Compare(a.Permission, b.Permission) })
	return list, nil
}

func (a Assignment) clone() Assignment {
	a.ExpiresAt = cloneTime(a.ExpiresAt)
	return a
}

func (o Override) clone() Override {
	o.ExpiresAt = cloneTime(o.ExpiresAt)
	return o
}

func cloneTime(t *time.Time) *time.Time {
	if t == nil {
		return nil
	}
	c := *t
	return &c
}
