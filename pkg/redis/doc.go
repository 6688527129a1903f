// Package redis connects to Redis through github.com/redis/go-redis/v9.
//
// Config is populated from REDIS_* environment variables. Connect retries
// until the server answers a ping or the connect timeout elapses, and
// Healthcheck turns a client into a liveness probe.
//
//	var cfg redis.Config
//	if err := config.Load(&cfg); err != nil {
//	    return err
//	}
//
//	client, err := redis.Connect(ctx, cfg)
//	if err != nil {
//	    return err
//	}
//	defer client.Close()
//
// Errors wrap the underlying go-redis error with errors.Join, so both the
// package sentinel and the cause match errors.Is.
package redis
