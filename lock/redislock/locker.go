// Package redislock implements lock.Locker on Redis: SET NX PX with a random token, renewed
// and released by scripts that only touch the key while it still holds that token.
package redislock

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"github.com/redis/go-redis/v9"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/lifecycle"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/metrics"
)

var renewScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("PEXPIRE", KEYS[1], ARGV[2])
end
return 0
`)

var releaseScript = redis.NewScript(`
if redis.call("GET", KEYS[1]) == ARGV[1] then
	return redis.call("DEL", KEYS[1])
end
return 0
`)

// Config configures the Redis locker.
type Config struct {
	// Prefix is prepended to every lock key (default: "migrate:lock:").
	Prefix string

	// TTL is how long a lease survives without a heartbeat (default: 30s).
	TTL time.Duration

	// HeartbeatInterval is the renewal interval (default: TTL/3).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger migrate.Logger

	// Metrics records heartbeat latency and lost leases (optional).
	Metrics *metrics.Collector
}

// Locker is a Redis-backed lock.Locker.
type Locker struct {
	client redis.UniversalClient
	config Config
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker using client.
func New(client redis.UniversalClient, cfg Config) *Locker {
	if cfg.Prefix == "" {
		cfg.Prefix = "migrate:lock:"
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = cfg.TTL / 3
	}
	return &Locker{client: client, config: cfg}
}

// Acquire implements lock.Locker.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	redisKey := l.config.Prefix + key
	token := uuid.NewString()

	ok, err := l.client.SetNX(ctx, redisKey, token, l.config.TTL).Result()
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !ok {
		holder, err := l.client.Get(ctx, redisKey).Result()
		if err != nil && !errors.Is(err, redis.Nil) {
			return nil, fmt.Errorf("failed to read lock %s: %w", key, err)
		}
		return nil, &migrate.LockContentionError{Key: key, Holder: holder}
	}

	ttl := l.config.TTL.Milliseconds()
	return lock.StartHeartbeat(lifecycle.Config{
		Key:               key,
		HeartbeatInterval: l.config.HeartbeatInterval,
		Logger:            l.config.Logger,
		Metrics:           l.config.Metrics,
		Renewer: lifecycle.RenewFunc(func(ctx context.Context) error {
			n, err := renewScript.Run(ctx, l.client, []string{redisKey}, token, ttl).Int64()
			if err != nil {
				return fmt.Errorf("failed to renew lock %s: %w", key, err)
			}
			if n == 0 {
				return fmt.Errorf("lock %s: %w", key, migrate.ErrLockLost)
			}
			return nil
		}),
	}, func(ctx context.Context) error {
		if err := releaseScript.Run(context.WithoutCancel(ctx), l.client, []string{redisKey}, token).Err(); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}), nil
}
