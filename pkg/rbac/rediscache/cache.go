package rediscache

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"strconv"
	"time"

	"github.com/redis/go-redis/v9"

	"github.com/phillgates2/panel-sub002/pkg/rbac"
)

const (
	DefaultPrefix = "rbac"
	DefaultTTL    = 10 * time.Minute
)

// Cache is an rbac.EffectiveCache shared by every process using the same
// Redis and prefix. Invalidate increments a generation counter; entries of
// older generations are never read again and expire through their TTL.
type Cache struct {
	client redis.UniversalClient
	prefix string
	ttl    time.Duration
}

var _ rbac.EffectiveCache = (*Cache)(nil)

// Option configures the cache.
type Option func(*Cache)

// WithPrefix namespaces every key. Empty is ignored.
func WithPrefix(prefix string) Option {
	return func(c *Cache) {
		if prefix != "" {
			c.prefix = prefix
		}
	}
}

// WithTTL bounds how long an entry lives. Non-positive values are ignored.
func WithTTL(ttl time.Duration) Option {
	return func(c *Cache) {
		if ttl > 0 {
			c.ttl = ttl
		}
	}
}

// New creates a cache on client.
func New(client redis.UniversalClient, opts ...Option) *Cache {
	if client == nil {
		panic("rediscache: client cannot be nil")
	}
	c := &Cache{client: client, prefix: DefaultPrefix, ttl: DefaultTTL}
	for _, opt := range opts {
		opt(c)
	}
	return c
}

// Generation returns 0 until the first Invalidate.
func (c *Cache) Generation(ctx context.Context) (uint64, error) {
	gen, err := c.client.Get(ctx, c.genKey()).Uint64()
	if errors.Is(err, redis.Nil) {
		return 0, nil
	}
	if err != nil {
		return 0, fmt.Errorf("read generation: %w", err)
	}
	return gen, nil
}

func (c *Cache) Get(ctx context.Context, gen uint64, role string) ([]string, bool, error) {
	payload, err := c.client.Get(ctx, c.entryKey(gen, role)).Bytes()
	if errors.Is(err, redis.Nil) {
		return nil, false, nil
	}
	if err != nil {
		return nil, false, fmt.Errorf("read %q: %w", role, err)
	}

	var perms []string
	if err := json.Unmarshal(payload, &perms); err != nil {
		return nil, false, fmt.Errorf("decode %q: %w", role, err)
	}
	return perms, true, nil
}

func (c *Cache) Set(ctx context.Context, gen uint64, role string, perms []string) error {
	if perms == nil {
		perms = []string{}
	}
	payload, err := json.Marshal(perms)
	if err != nil {
		return err
	}
	if err := c.client.Set(ctx, c.entryKey(gen, role), payload, c.ttl).Err(); err != nil {
		return fmt.Errorf("write %q: %w", role, err)
	}
	return nil
}

func (c *Cache) Invalidate(ctx context.Context) error {
	if err := c.client.Incr(ctx, c.genKey()).Err(); err != nil {
		return fmt.Errorf("bump generation: %w", err)
	}
	return nil
}

func (c *Cache) genKey() string {
	return c.prefix + ":gen"
}

func (c *Cache) entryKey(gen uint64, role string) string {
	return c.prefix + ":eff:" + strconv.FormatUint(gen, 10) + ":" + role
}
