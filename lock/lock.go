// Package lock defines the advisory lock that serializes migration runs against one target.
//
// Acquire is a try-lock: it fails immediately with a *migrate.LockContentionError when
// another holder owns the key. AcquireWait polls until a deadline. A Lease reports through
// Lost when it can no longer guarantee exclusivity, for example when heartbeats stop
// reaching the backend.
package lock

import (
	"context"
	"errors"
	"fmt"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/metrics"
)

// DefaultKey is the lock key used when none is configured.
const DefaultKey = "pupsourcing_migrate"

// DefaultPollInterval is the retry interval used by AcquireWait when poll is zero.
const DefaultPollInterval = 500 * time.Millisecond

// Locker acquires exclusive leases on keys.
type Locker interface {
	// Acquire takes the lock without waiting.
	Acquire(ctx context.Context, key string) (Lease, error)
}

// Lease is a held lock.
type Lease interface {
	// Key returns the locked key.
	Key() string

	// Release gives the lock up. Releasing twice is a no-op.
	Release(ctx context.Context) error

	// Lost is closed when the lease can no longer be trusted.
	Lost() <-chan struct{}
}

// AcquireWait retries Acquire every poll interval until it succeeds, wait elapses or ctx is
// done. A zero wait tries once. The contention error of the last attempt is returned when
// the wait elapses.
func AcquireWait(ctx context.Context, l Locker, key string, wait, poll time.Duration, m *metrics.Collector) (Lease, error) {
	if poll <= 0 {
		poll = DefaultPollInterval
	}
	start := time.Now()
	deadline := start.Add(wait)

	for {
		lease, err := l.Acquire(ctx, key)
		if err == nil {
			m.ObserveLockWait(time.Since(start).Seconds())
			return lease, nil
		}
		if !errors.Is(err, migrate.ErrLockContention) {
			return nil, err
		}
		m.IncLockContention()

		remaining := time.Until(deadline)
		if remaining <= 0 {
			return nil, err
		}

		timer := time.NewTimer(min(poll, remaining))
		select {
		case <-ctx.Done():
			timer.Stop()
			return nil, fmt.Errorf("waiting for lock %s: %w", key, ctx.Err())
		case <-timer.C:
		}
	}
}
