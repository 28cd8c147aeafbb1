package lock

import (
	"context"
	"sync"

	"golang.org/x/sync/errgroup"

	"github.com/getpup/pupsourcing-migrate/lifecycle"
)

// HeartbeatLease is a Lease kept alive by a background heartbeat. Backends build it around
// their renew and release primitives.
type HeartbeatLease struct {
	key     string
	release func(ctx context.Context) error

	cancel context.CancelFunc
	group  *errgroup.Group
	lost   chan struct{}

	lostOnce    sync.Once
	releaseOnce sync.Once
	releaseErr  error
}

var _ Lease = (*HeartbeatLease)(nil)

// StartHeartbeat starts renewing the lease on cfg.Renewer every cfg.HeartbeatInterval.
// The first failed renewal closes Lost. release runs once, after the heartbeat has stopped.
func StartHeartbeat(cfg lifecycle.Config, release func(ctx context.Context) error) *HeartbeatLease {
	ctx, cancel := context.WithCancel(context.Background())
	g, gctx := errgroup.WithContext(ctx)

	l := &HeartbeatLease{
		key:     cfg.Key,
		release: release,
		cancel:  cancel,
		group:   g,
		lost:    make(chan struct{}),
	}

	manager := lifecycle.New(cfg)
	g.Go(func() error {
		err := manager.StartHeartbeat(gctx)
		if err != nil {
			cfg.Metrics.IncLockLost()
			l.markLost()
		}
		return err
	})
	return l
}

// Key implements Lease.
func (l *HeartbeatLease) Key() string {
	return l.key
}

// Lost implements Lease.
func (l *HeartbeatLease) Lost() <-chan struct{} {
	return l.lost
}

// Release implements Lease. It stops the heartbeat and then releases the lock.
func (l *HeartbeatLease) Release(ctx context.Context) error {
	l.releaseOnce.Do(func() {
		l.cancel()
		_ = l.group.Wait()
		l.releaseErr = l.release(ctx)
	})
	return l.releaseErr
}

func (l *HeartbeatLease) markLost() {
	l.lostOnce.Do(func() { close(l.lost) })
}
