// Package cache provides a generic, thread-safe LRU cache with optional
// time-based expiry.
//
// The cache evicts the least recently used entry once it holds more than its
// configured capacity. When a TTL is configured, entries also expire a fixed
// duration after they were last written; expired entries are reported as
// missing and reclaimed lazily on access.
//
// # Usage
//
//	c := cache.NewLRUCache[string, []string](1024, cache.WithTTL(5*time.Minute))
//
//	c.Put("Moderator", perms)
//	if perms, ok := c.Get("Moderator"); ok {
//		// use perms
//	}
//
//	c.Clear()
//
// All operations are O(1) and safe for concurrent use. Tests can control
// expiry with WithClock.
package cache
