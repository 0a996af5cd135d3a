// Package ratelimit limits requests per client key over a fixed window.
package ratelimit

import (
	"context"
	"time"

	"github.com/redis/go-redis/v9"
)

// Limiter reports whether another request for key is allowed. When it is not,
// retryAfter is how long the caller should wait.
type Limiter interface {
	Allow(ctx context.Context, key string) (allowed bool, retryAfter time.Duration, err error)
}

type Config struct {
	// Limit is the number of requests allowed per Window. Zero or less
	// disables limiting.
	Limit         int
	Window        time.Duration
	RedisAddr     string
	RedisPassword string
	RedisTimeout  time.Duration
	KeyPrefix     string
}

// New returns a Redis backed limiter when RedisAddr is set and an in-process
// one otherwise. It returns nil when limiting is disabled.
func New(cfg Config) Limiter {
	if cfg.Limit <= 0 {
		return nil
	}
	if cfg.Window <= 0 {
		cfg.Window = time.Minute
	}
	if cfg.RedisAddr == "" {
		return NewMemoryLimiter(cfg.Limit, cfg.Window)
	}

	timeout := cfg.RedisTimeout
	if timeout <= 0 {
		timeout = 2 * time.Second
	}
	client := redis.NewClient(&redis.Options{
		Addr:         cfg.RedisAddr,
		Password:     cfg.RedisPassword,
		DialTimeout:  timeout,
		ReadTimeout:  timeout,
		WriteTimeout: timeout,
	})
	prefix := cfg.KeyPrefix
	if prefix == "" {
		prefix = "photographies:ratelimit:"
	}
	return NewRedisLimiter(client, cfg.Limit, cfg.Window, prefix)
}
