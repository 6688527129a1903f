package rbac

import (
	"context"
	"slices"
	"sync/atomic"
	"time"

	"github.com/phillgates2/panel-sub002/pkg/cache"
)

// EffectiveCache memoizes the effective permission set of roles.
//
// Entries are scoped to a generation. Invalidate starts a new generation, so a
// value computed before a graph write can only ever be stored under a
// generation that is no longer read.
type EffectiveCache interface {
	Generation(ctx context.Context) (uint64, error)
	Get(ctx context.Context, gen uint64, role string) ([]string, bool, error)
	Set(ctx context.Context, gen uint64, role string, perms []string) error
	Invalidate(ctx context.Context) error
}

type lruKey struct {
	gen  uint64
	role string
}

// LRUCache is an in-process EffectiveCache.
type LRUCache struct {
	gen   atomic.Uint64
	items *cache.LRUCache[lruKey, []string]
}

// NewLRUCache returns an in-process cache holding up to size roles.
// A positive ttl additionally bounds how long an entry is served.
func NewLRUCache(size int, ttl time.Duration) *LRUCache {
	return &LRUCache{items: cache.NewLRUCache[lruKey, []string](size, cache.WithTTL(ttl))}
}

// Generation returns the current generation. It never fails.
func (c *LRUCache) Generation(context.Context) (uint64, error) {
	return c.gen.Load(), nil
}

// Get returns a copy of the role's cached set for gen.
func (c *LRUCache) Get(_ context.Context, gen uint64, role string) ([]string, bool, error) {
	perms, ok := c.items.Get(lruKey{gen: gen, role: role})
	if !ok {
		return nil, false, nil
	}
	return slices.Clone(perms), true, nil
}

// Set stores a copy of perms. Writes for a generation other than the current one are dropped.
func (c *LRUCache) Set(_ context.Context, gen uint64, role string, perms []string) error {
	if gen != c.gen.Load() {
		return nil
	}
	c.items.Put(lruKey{gen: gen, role: role}, slices.Clone(perms))
	return nil
}

// Invalidate starts a new generation and frees every entry.
func (c *LRUCache) Invalidate(context.Context) error {
	c.gen.Add(1)
	c.items.Clear()
	return nil
}
