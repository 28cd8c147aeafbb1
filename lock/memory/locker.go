// Package memory provides an in-process Locker with expiring leases, for tests and single
// process deployments.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/lifecycle"
	"github.com/getpup/pupsourcing-migrate/lock"
)

// Config configures the in-memory locker.
type Config struct {
	// TTL is how long a lease survives without a heartbeat (default: 30s).
	TTL time.Duration

	// HeartbeatInterval is the renewal interval (default: TTL/3).
	HeartbeatInterval time.Duration

	// Now returns the current time (default: time.Now).
	Now func() time.Time

	// Logger is for observability (optional).
	Logger migrate.Logger
}

type entry struct {
	token   string
	expires time.Time
}

// Locker is a map of keys to expiring holders.
type Locker struct {
	config Config

	mu    sync.Mutex
	locks map[string]entry
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker with the given configuration.
func New(cfg Config) *Locker {
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = cfg.TTL / 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Locker{
		config: cfg,
		locks:  make(map[string]entry),
	}
}

// Acquire implements lock.Locker. Expired holders are taken over.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}

	l.mu.Lock()
	defer l.mu.Unlock()

	now := l.config.Now()
	if held, ok := l.locks[key]; ok && now.Before(held.expires) {
		return nil, &migrate.LockContentionError{Key: key, Holder: held.token}
	}

	token := uuid.NewString()
	l.locks[key] = entry{token: token, expires: now.Add(l.config.TTL)}

	return lock.StartHeartbeat(lifecycle.Config{
		Key:               key,
		HeartbeatInterval: l.config.HeartbeatInterval,
		Logger:            l.config.Logger,
		Renewer: lifecycle.RenewFunc(func(ctx context.Context) error {
			return l.renew(key, token)
		}),
	}, func(ctx context.Context) error {
		l.release(key, token)
		return nil
	}), nil
}

// Holder returns the token of the current holder of key, if any.
func (l *Locker) Holder(key string) (string, bool) {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.locks[key]
	if !ok || !l.config.Now().Before(held.expires) {
		return "", false
	}
	return held.token, true
}

func (l *Locker) renew(key, token string) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	held, ok := l.locks[key]
	if !ok || held.token != token {
		return fmt.Errorf("lock %s: %w", key, migrate.ErrLockLost)
	}
	held.expires = l.config.Now().Add(l.config.TTL)
	l.locks[key] = held
	return nil
}

func (l *Locker) release(key, token string) {
	l.mu.Lock()
	defer l.mu.Unlock()

	if held, ok := l.locks[key]; ok && held.token == token {
		delete(l.locks, key)
	}
}
