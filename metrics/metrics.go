// Package metrics exposes Prometheus metrics for migration runs and the migrate lock.
//
// Metrics are registered with the default registry on import. Every metric carries a
// "target" label naming the store being migrated, so one process can migrate several
// stores.
package metrics

import (
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promauto"
)

// MigrationsTotal tracks migrations applied or reverted successfully.
var MigrationsTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrate_migrations_total",
		Help: "Total migrations applied or reverted",
	},
	[]string{"target", "direction"},
)

// MigrationFailuresTotal tracks migrations that halted a plan.
var MigrationFailuresTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrate_migration_failures_total",
		Help: "Total migrations that failed and halted their plan",
	},
	[]string{"target", "direction"},
)

// MigrationsSkippedTotal tracks planned migrations the ledger already reflected.
var MigrationsSkippedTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrate_migrations_skipped_total",
		Help: "Total planned migrations skipped because the ledger already reflected them",
	},
	[]string{"target", "direction"},
)

// MigrationDuration tracks how long single migrations take, including ledger writes.
var MigrationDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrate_migration_duration_seconds",
		Help:    "Time spent running a single migration",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"target", "direction"},
)

// PlanDuration tracks how long whole plans take.
var PlanDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrate_plan_duration_seconds",
		Help:    "Time spent running a plan",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"target", "direction"},
)

// PendingMigrations tracks the number of discovered migrations not yet applied.
var PendingMigrations = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_migrate_pending_migrations",
		Help: "Discovered migrations not yet applied",
	},
	[]string{"target"},
)

// AppliedMigrations tracks the number of ledger entries.
var AppliedMigrations = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_migrate_applied_migrations",
		Help: "Migrations recorded in the ledger",
	},
	[]string{"target"},
)

// CurrentVersion tracks the highest applied migration ID.
var CurrentVersion = promauto.NewGaugeVec(
	prometheus.GaugeOpts{
		Name: "pupsourcing_migrate_current_version",
		Help: "Highest applied migration id",
	},
	[]string{"target"},
)

// LockContentionTotal tracks failed attempts to take the migrate lock.
var LockContentionTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrate_lock_contention_total",
		Help: "Total attempts to take a migrate lock held by another run",
	},
	[]string{"target"},
)

// LockLostTotal tracks leases that expired or were taken over while held.
var LockLostTotal = promauto.NewCounterVec(
	prometheus.CounterOpts{
		Name: "pupsourcing_migrate_lock_lost_total",
		Help: "Total migrate lock leases lost while held",
	},
	[]string{"target"},
)

// LockWaitDuration tracks time spent acquiring the migrate lock.
var LockWaitDuration = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrate_lock_wait_duration_seconds",
		Help:    "Time spent acquiring the migrate lock",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"target"},
)

// HeartbeatLatency tracks lease heartbeat round-trip latency.
var HeartbeatLatency = promauto.NewHistogramVec(
	prometheus.HistogramOpts{
		Name:    "pupsourcing_migrate_lock_heartbeat_latency_seconds",
		Help:    "Lease heartbeat round-trip latency",
		Buckets: prometheus.DefBuckets,
	},
	[]string{"target"},
)
