package metrics

import migrate "github.com/getpup/pupsourcing-migrate"

// Collector wraps metrics and provides helper methods with the target label pre-filled.
// A nil *Collector is valid and records nothing.
type Collector struct {
	target string
}

// NewCollector creates a new Collector for the given target store.
func NewCollector(target string) *Collector {
	return &Collector{target: target}
}

// Target returns the target label value.
func (c *Collector) Target() string {
	if c == nil {
		return ""
	}
	return c.target
}

// IncMigrations increments the successful migrations counter.
func (c *Collector) IncMigrations(direction migrate.Direction) {
	if c == nil {
		return
	}
	MigrationsTotal.WithLabelValues(c.target, string(direction)).Inc()
}

// IncFailures increments the failed migrations counter.
func (c *Collector) IncFailures(direction migrate.Direction) {
	if c == nil {
		return
	}
	MigrationFailuresTotal.WithLabelValues(c.target, string(direction)).Inc()
}

// IncSkipped increments the skipped migrations counter.
func (c *Collector) IncSkipped(direction migrate.Direction) {
	if c == nil {
		return
	}
	MigrationsSkippedTotal.WithLabelValues(c.target, string(direction)).Inc()
}

// ObserveMigrationDuration records a single migration duration.
func (c *Collector) ObserveMigrationDuration(direction migrate.Direction, seconds float64) {
	if c == nil {
		return
	}
	MigrationDuration.WithLabelValues(c.target, string(direction)).Observe(seconds)
}

// ObservePlanDuration records a plan duration.
func (c *Collector) ObservePlanDuration(direction migrate.Direction, seconds float64) {
	if c == nil {
		return
	}
	PlanDuration.WithLabelValues(c.target, string(direction)).Observe(seconds)
}

// SetStatus updates the ledger gauges from a status report.
func (c *Collector) SetStatus(status migrate.Status) {
	if c == nil {
		return
	}
	PendingMigrations.WithLabelValues(c.target).Set(float64(len(status.Pending)))
	AppliedMigrations.WithLabelValues(c.target).Set(float64(len(status.Applied)))
	CurrentVersion.WithLabelValues(c.target).Set(float64(status.Current()))
}

// IncLockContention increments the lock contention counter.
func (c *Collector) IncLockContention() {
	if c == nil {
		return
	}
	LockContentionTotal.WithLabelValues(c.target).Inc()
}

// IncLockLost increments the lost lease counter.
func (c *Collector) IncLockLost() {
	if c == nil {
		return
	}
	LockLostTotal.WithLabelValues(c.target).Inc()
}

// ObserveLockWait records time spent acquiring the lock.
func (c *Collector) ObserveLockWait(seconds float64) {
	if c == nil {
		return
	}
	LockWaitDuration.WithLabelValues(c.target).Observe(seconds)
}

// ObserveHeartbeatLatency records a heartbeat latency observation.
func (c *Collector) ObserveHeartbeatLatency(seconds float64) {
	if c == nil {
		return
	}
	HeartbeatLatency.WithLabelValues(c.target).Observe(seconds)
}
