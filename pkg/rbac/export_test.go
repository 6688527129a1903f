package rbac

// ForceEdge links parent->child in an in-memory graph without the cycle check,
// so tests can build graphs that AddEdge would refuse.
func ForceEdge(g RoleGraph, parent, child string) {
	mg := g.(*memoryRoleGraph)
	mg.mu.Lock()
	defer mg.mu.Unlock()
	mg.link(parent, child)
}
