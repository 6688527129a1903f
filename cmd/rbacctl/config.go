package main

import (
	"context"
	"fmt"
	"io"
	"log/slog"
	"strings"
	"time"

	"github.com/phillgates2/panel-sub002/pkg/config"
	"github.com/phillgates2/panel-sub002/pkg/environment"
	"github.com/phillgates2/panel-sub002/pkg/logger"
	"github.com/phillgates2/panel-sub002/pkg/rbac"
	"github.com/phillgates2/panel-sub002/pkg/rbac/rediscache"
	"github.com/phillgates2/panel-sub002/pkg/redis"
)

const serviceName = "rbacctl"

// appConfig is read from the environment. Database and Redis settings live in
// pg.Config and redis.Config and are only loaded when needed.
type appConfig struct {
	Env string `env:"APP_ENV" envDefault:"development"`

	// LogLevel and LogFormat override the environment preset when set.
	LogLevel  string `env:"LOG_LEVEL"`
	LogFormat string `env:"LOG_FORMAT"`

	// Cache is none, lru or redis.
	Cache     string        `env:"RBAC_CACHE" envDefault:"lru"`
	CacheSize int           `env:"RBAC_CACHE_SIZE" envDefault:"1024"`
	CacheTTL  time.Duration `env:"RBAC_CACHE_TTL" envDefault:"0s"`
}

func (c appConfig) environment() (environment.Environment, error) {
	return environment.Parse(c.Env)
}

func newLogger(cfg appConfig, out io.Writer) (*slog.Logger, error) {
	env, err := cfg.environment()
	if err != nil {
		return nil, err
	}

	opts := []logger.Option{
		logger.WithEnvironment(env, serviceName),
		logger.WithOutput(out),
		logger.WithContextExtractors(rbac.LoggerExtractor(), environment.LoggerExtractor()),
	}
	if cfg.LogLevel != "" {
		level, err := logger.ParseLevel(cfg.LogLevel)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithLevel(level))
	}
	if cfg.LogFormat != "" {
		format, err := logger.ParseFormat(cfg.LogFormat)
		if err != nil {
			return nil, err
		}
		opts = append(opts, logger.WithFormat(format))
	}
	return logger.New(opts...), nil
}

// openCache builds the configured EffectiveCache. The returned health check
// and closer are nil when there is nothing to check or release.
func openCache(ctx context.Context, cfg appConfig) (rbac.EffectiveCache, func(context.Context) error, func(), error) {
	switch strings.ToLower(cfg.Cache) {
	case "", "none":
		return nil, nil, nil, nil
	case "lru":
		if cfg.CacheSize <= 0 {
			return nil, nil, nil, fmt.Errorf("invalid RBAC_CACHE_SIZE %d: must be positive", cfg.CacheSize)
		}
		return rbac.NewLRUCache(cfg.CacheSize, cfg.CacheTTL), nil, nil, nil
	case "redis":
		var redisCfg redis.Config
		if err := config.Load(&redisCfg); err != nil {
			return nil, nil, nil, err
		}
		client, err := redis.Connect(ctx, redisCfg)
		if err != nil {
			return nil, nil, nil, err
		}
		cache := rediscache.New(client, rediscache.WithTTL(cfg.CacheTTL))
		return cache, redis.Healthcheck(client), func() { _ = client.Close() }, nil
	default:
		return nil, nil, nil, fmt.Errorf("invalid RBAC_CACHE %q: must be none, lru or redis", cfg.Cache)
	}
}
