package migrator

import (
	"database/sql"
	"io/fs"
	"time"

	"go.opentelemetry.io/otel/trace"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/executor"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/ledger/sqlledger"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/metrics"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/snapshot"
	"github.com/getpup/pupsourcing-migrate/source"
)

// Option configures a Migrator.
type Option func(*config)

// config holds the internal configuration for creating a Migrator.
type config struct {
	db               *sql.DB
	dialect          dialect.Dialect
	tableConfig      sqlledger.TableConfig
	driver           driver.Driver
	ledger           ledger.Ledger
	source           source.Source
	locker           lock.Locker
	lockKey          string
	lockWait         time.Duration
	lockPoll         time.Duration
	snapshots        snapshot.Store
	runner           executor.Runner
	migrationTimeout time.Duration
	logger           migrate.Logger
	metrics          *metrics.Collector
	tracer           trace.Tracer
}

// WithDatabase runs migrations against db using the SQL dialect d. It sets the driver and,
// unless WithLedger is given, a ledger table in the same database.
func WithDatabase(db *sql.DB, d dialect.Dialect) Option {
	return func(c *config) {
		c.db = db
		c.dialect = d
	}
}

// WithLedgerTable sets the ledger table used with WithDatabase (default: schema_migrations).
func WithLedgerTable(name string) Option {
	return func(c *config) {
		c.tableConfig = sqlledger.TableConfig{LedgerTable: name}
	}
}

// WithDriver sets a custom driver.
func WithDriver(d driver.Driver) Option {
	return func(c *config) {
		c.driver = d
	}
}

// WithLedger sets a custom ledger.
func WithLedger(l ledger.Ledger) Option {
	return func(c *config) {
		c.ledger = l
	}
}

// WithSource sets where migrations are discovered.
func WithSource(s source.Source) Option {
	return func(c *config) {
		c.source = s
	}
}

// WithMigrationsFS discovers YAML migration files in the root of fsys.
func WithMigrationsFS(fsys fs.FS) Option {
	return func(c *config) {
		c.source = source.NewFS(fsys)
	}
}

// WithMigrations uses migrations defined in Go.
func WithMigrations(migrations ...migration.Migration) Option {
	return func(c *config) {
		c.source = source.Static(migrations)
	}
}

// WithLocker sets the lock serializing runs against the target (default: an in-process lock,
// which only protects against concurrent runs inside one process).
func WithLocker(l lock.Locker) Option {
	return func(c *config) {
		c.locker = l
	}
}

// WithLockKey sets the lock key (default: lock.DefaultKey).
func WithLockKey(key string) Option {
	return func(c *config) {
		c.lockKey = key
	}
}

// WithLockWait sets how long to wait for a held lock and how often to retry. A zero wait
// fails immediately with a *migrate.LockContentionError.
func WithLockWait(wait, poll time.Duration) Option {
	return func(c *config) {
		c.lockWait = wait
		c.lockPoll = poll
	}
}

// WithSnapshotStore enables snapshot regeneration after runs and Bootstrap.
func WithSnapshotStore(s snapshot.Store) Option {
	return func(c *config) {
		c.snapshots = s
	}
}

// WithRunner sets a custom runner (default: executor.New).
func WithRunner(r executor.Runner) Option {
	return func(c *config) {
		c.runner = r
	}
}

// WithMigrationTimeout bounds each migration (default: 5m).
func WithMigrationTimeout(timeout time.Duration) Option {
	return func(c *config) {
		c.migrationTimeout = timeout
	}
}

// WithLogger sets the logger for observability.
func WithLogger(logger migrate.Logger) Option {
	return func(c *config) {
		c.logger = logger
	}
}

// WithMetrics sets the metrics collector.
func WithMetrics(collector *metrics.Collector) Option {
	return func(c *config) {
		c.metrics = collector
	}
}

// WithTracer sets the tracer for migration spans.
func WithTracer(tracer trace.Tracer) Option {
	return func(c *config) {
		c.tracer = tracer
	}
}
