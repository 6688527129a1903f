// Package rediscache provides a Redis-backed rbac.EffectiveCache so several
// processes can share memoized role expansions and see each other's
// invalidations.
//
// Keys:
//
//	{prefix}:gen              generation counter, bumped by Invalidate
//	{prefix}:eff:{gen}:{role} JSON array of the role's effective permissions
//
// Usage:
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	cache := rediscache.New(client, rediscache.WithTTL(5*time.Minute))
//	engine := rbac.NewEngine(stores, rbac.WithCache(cache))
package rediscache
