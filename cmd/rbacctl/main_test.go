package main

import (
	"bytes"
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/phillgates2/panel-sub002/pkg/config"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
	"github.com/phillgates2/panel-sub002/pkg/rbac/rediscache"
)

func TestRun_Help(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"--help"}, &stdout, &stderr)
	require.NoError(t, err)
	assert.Empty(t, stdout.String())
	assert.Contains(t, stderr.String(), "Commands:")
	assert.Contains(t, stderr.String(), "clear-override")
	assert.Contains(t, stderr.String(), "--env-file")
}

func TestRun_NoCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), nil, &stdout, &stderr)
	assert.Equal(t, 2, exitCode(t, err))
	assert.Contains(t, stderr.String(), "Usage:")
}

func TestRun_UnknownCommand(t *testing.T) {
	var stdout, stderr bytes.Buffer

	err := run(context.Background(), []string{"frobnicate"}, &stdout, &stderr)
	assert.ErrorContains(t, err, `unknown command "frobnicate"`)
}

func TestNewLogger(t *testing.T) {
	var buf bytes.Buffer
	log, err := newLogger(appConfig{Env: "production", LogLevel: "debug", LogFormat: "json"}, &buf)
	require.NoError(t, err)

	log.DebugContext(rbac.WithUser(context.Background(), "bob"), "hello")
	assert.Contains(t, buf.String(), `"msg":"hello"`)
	assert.Contains(t, buf.String(), `"bob"`)

	_, err = newLogger(appConfig{Env: "mars"}, &buf)
	assert.Error(t, err)
	_, err = newLogger(appConfig{LogLevel: "loud"}, &buf)
	assert.Error(t, err)
	_, err = newLogger(appConfig{LogFormat: "xml"}, &buf)
	assert.Error(t, err)
}

func TestOpenCache(t *testing.T) {
	ctx := context.Background()

	t.Run("none", func(t *testing.T) {
		cache, health, closer, err := openCache(ctx, appConfig{Cache: "none"})
		require.NoError(t, err)
		assert.Nil(t, cache)
		assert.Nil(t, health)
		assert.Nil(t, closer)
	})

	t.Run("lru", func(t *testing.T) {
		cache, _, _, err := openCache(ctx, appConfig{Cache: "lru", CacheSize: 8, CacheTTL: time.Minute})
		require.NoError(t, err)
		assert.IsType(t, &rbac.LRUCache{}, cache)

		_, _, _, err = openCache(ctx, appConfig{Cache: "lru"})
		assert.ErrorContains(t, err, "RBAC_CACHE_SIZE")
	})

	t.Run("redis", func(t *testing.T) {
		mr := miniredis.RunT(t)
		t.Setenv("REDIS_URL", "redis://"+mr.Addr()+"/0")
		config.ResetCache()
		t.Cleanup(config.ResetCache)

		cache, health, closer, err := openCache(ctx, appConfig{Cache: "redis"})
		require.NoError(t, err)
		require.NotNil(t, closer)
		defer closer()

		assert.IsType(t, &rediscache.Cache{}, cache)
		assert.NoError(t, health(ctx))
	})

	t.Run("unknown", func(t *testing.T) {
		_, _, _, err := openCache(ctx, appConfig{Cache: "memcached"})
		assert.ErrorContains(t, err, "RBAC_CACHE")
	})
}
