// Package lifecycle keeps a held lock alive by renewing it on a fixed interval.
package lifecycle

import (
	"context"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/metrics"
)

// Renewer extends a held lease. Renew returns migrate.ErrLockLost (possibly wrapped) when
// the lease now belongs to someone else.
type Renewer interface {
	Renew(ctx context.Context) error
}

// RenewFunc adapts a function to Renewer.
type RenewFunc func(ctx context.Context) error

// Renew implements Renewer.
func (f RenewFunc) Renew(ctx context.Context) error {
	return f(ctx)
}

// Config holds configuration for the lifecycle Manager.
type Config struct {
	// Renewer extends the lease on every tick (required).
	Renewer Renewer

	// Key names the lease in logs.
	Key string

	// HeartbeatInterval is the interval between heartbeats (default: 5s).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger migrate.Logger

	// Metrics records heartbeat latency (optional).
	Metrics *metrics.Collector
}

// Manager runs the heartbeat loop for a single lease.
type Manager struct {
	config Config
}

// New creates a new lifecycle Manager with the given configuration.
// Applies default values for HeartbeatInterval if not set.
func New(cfg Config) *Manager {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 5 * time.Second
	}

	return &Manager{
		config: cfg,
	}
}

// Interval returns the configured heartbeat interval.
func (m *Manager) Interval() time.Duration {
	return m.config.HeartbeatInterval
}

// StartHeartbeat runs a heartbeat loop until the context is cancelled.
// It returns nil on cancellation and the renewal error when a heartbeat fails.
func (m *Manager) StartHeartbeat(ctx context.Context) error {
	ticker := time.NewTicker(m.config.HeartbeatInterval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return nil
		case <-ticker.C:
			start := time.Now()
			err := m.config.Renewer.Renew(ctx)
			if err != nil && ctx.Err() != nil {
				// released while renewing
				return nil
			}
			if err != nil {
				if m.config.Logger != nil {
					m.config.Logger.Error(ctx, "heartbeat failed", "key", m.config.Key, "error", err)
				}
				return err
			}
			m.config.Metrics.ObserveHeartbeatLatency(time.Since(start).Seconds())

			if m.config.Logger != nil {
				m.config.Logger.Debug(ctx, "heartbeat sent", "key", m.config.Key)
			}
		}
	}
}
