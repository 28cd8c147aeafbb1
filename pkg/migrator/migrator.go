// Package migrator wires the engine together: it discovers migrations, serializes runs with
// a lock, plans from the ledger, executes the plan and keeps the schema snapshot current.
package migrator

import (
	"context"
	"errors"
	"fmt"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/driver/sqldriver"
	"github.com/getpup/pupsourcing-migrate/executor"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/ledger/sqlledger"
	"github.com/getpup/pupsourcing-migrate/lock"
	lockmemory "github.com/getpup/pupsourcing-migrate/lock/memory"
	"github.com/getpup/pupsourcing-migrate/planner"
	"github.com/getpup/pupsourcing-migrate/snapshot"
	"github.com/getpup/pupsourcing-migrate/source"
)

// ErrNoSnapshotStore is returned by operations that need a snapshot store when none is set.
var ErrNoSnapshotStore = errors.New("no snapshot store configured: use WithSnapshotStore option")

// Migrator runs directives against one target store.
type Migrator struct {
	driver    driver.Driver
	ledger    ledger.Ledger
	source    source.Source
	locker    lock.Locker
	snapshots snapshot.Store
	runner    executor.Runner
	config    *config
}

var _ migrate.Migrator = (*Migrator)(nil)

// New creates a new Migrator with the given options.
//
// Required options:
//   - WithDatabase, or WithDriver and WithLedger: the target store
//   - WithMigrationsFS, WithMigrations or WithSource: the discovered migrations
//
// Optional configuration (with defaults):
//   - WithLedgerTable: ledger table used with WithDatabase (default: schema_migrations)
//   - WithLocker: lock serializing runs (default: in-process lock)
//   - WithLockKey: lock key (default: pupsourcing_migrate)
//   - WithLockWait: wait for a held lock (default: fail immediately)
//   - WithSnapshotStore: schema snapshot persistence (default: none)
//   - WithMigrationTimeout: per-migration timeout (default: 5m)
//   - WithLogger, WithMetrics, WithTracer: observability (default: none, none, global tracer)
//   - WithRunner: custom plan runner (default: executor.New)
//
// Example:
//
//	m, err := migrator.New(
//	    migrator.WithDatabase(db, dialect.Postgres),
//	    migrator.WithMigrationsFS(os.DirFS("migrations")),
//	    migrator.WithLocker(advisoryLocker),
//	)
//
// Returns an error if any required option is missing.
func New(opts ...Option) (*Migrator, error) {
	cfg := &config{
		tableConfig: sqlledger.DefaultTableConfig(),
		lockKey:     lock.DefaultKey,
	}

	for _, opt := range opts {
		opt(cfg)
	}

	if cfg.db != nil {
		if cfg.dialect == nil {
			return nil, fmt.Errorf("dialect is required with WithDatabase")
		}
		if err := cfg.tableConfig.Validate(); err != nil {
			return nil, fmt.Errorf("invalid ledger table: %w", err)
		}
		if cfg.driver == nil {
			cfg.driver = sqldriver.NewWithConfig(cfg.db, sqldriver.Config{Dialect: cfg.dialect, Logger: cfg.logger})
		}
		if cfg.ledger == nil {
			cfg.ledger = sqlledger.NewWithConfig(cfg.db, cfg.dialect, cfg.tableConfig)
		}
	}
	if cfg.driver == nil {
		return nil, fmt.Errorf("driver is required: use WithDatabase or WithDriver option")
	}
	if cfg.ledger == nil {
		return nil, fmt.Errorf("ledger is required: use WithDatabase or WithLedger option")
	}
	if cfg.source == nil {
		return nil, fmt.Errorf("migrations are required: use WithMigrationsFS, WithMigrations or WithSource option")
	}

	if cfg.locker == nil {
		cfg.locker = lockmemory.New(lockmemory.Config{Logger: cfg.logger})
	}
	if cfg.runner == nil {
		cfg.runner = executor.New(executor.Config{
			Driver:           cfg.driver,
			Ledger:           cfg.ledger,
			MigrationTimeout: cfg.migrationTimeout,
			Logger:           cfg.logger,
			Metrics:          cfg.metrics,
			Tracer:           cfg.tracer,
		})
	}

	return &Migrator{
		driver:    cfg.driver,
		ledger:    cfg.ledger,
		source:    cfg.source,
		locker:    cfg.locker,
		snapshots: cfg.snapshots,
		runner:    cfg.runner,
		config:    cfg,
	}, nil
}

// Up implements migrate.Migrator.
func (m *Migrator) Up(ctx context.Context) (*migrate.ExecutionReport, error) {
	return m.UpTo(ctx, 0)
}

// UpTo implements migrate.Migrator. A zero target applies everything pending.
func (m *Migrator) UpTo(ctx context.Context, target migrate.ID) (*migrate.ExecutionReport, error) {
	var report *migrate.ExecutionReport
	err := m.withLock(ctx, func(ctx context.Context, p *planner.Planner) error {
		plan, err := p.ForwardTo(ctx, target)
		if err != nil {
			return err
		}
		if m.config.logger != nil {
			m.config.logger.Info(ctx, "forward plan ready", "pending", len(plan), "target", target.String())
		}

		report, err = m.runner.RunForward(ctx, plan)
		return m.afterRun(ctx, p, report, err)
	})
	return report, err
}

// Down implements migrate.Migrator.
func (m *Migrator) Down(ctx context.Context, count int) (*migrate.ExecutionReport, error) {
	var report *migrate.ExecutionReport
	err := m.withLock(ctx, func(ctx context.Context, p *planner.Planner) error {
		plan, err := p.Backward(ctx, count)
		if err != nil {
			return err
		}
		if m.config.logger != nil {
			m.config.logger.Info(ctx, "backward plan ready", "count", len(plan))
		}

		report, err = m.runner.RunBackward(ctx, plan)
		return m.afterRun(ctx, p, report, err)
	})
	return report, err
}

// Status implements migrate.Migrator. It does not take the lock.
func (m *Migrator) Status(ctx context.Context) (migrate.Status, error) {
	p, err := m.prepare(ctx)
	if err != nil {
		return migrate.Status{}, err
	}
	status, err := p.Status(ctx)
	if err != nil {
		return migrate.Status{}, err
	}
	m.config.metrics.SetStatus(status)
	return status, nil
}

// Bootstrap implements migrate.Migrator. It loads the document from the snapshot store.
func (m *Migrator) Bootstrap(ctx context.Context) error {
	if m.snapshots == nil {
		return ErrNoSnapshotStore
	}
	doc, err := m.snapshots.Load(ctx)
	if err != nil {
		return fmt.Errorf("failed to load snapshot: %w", err)
	}
	return m.BootstrapFrom(ctx, doc)
}

// BootstrapFrom loads doc into an empty store under the lock.
func (m *Migrator) BootstrapFrom(ctx context.Context, doc snapshot.Document) error {
	return m.withLock(ctx, func(ctx context.Context, _ *planner.Planner) error {
		if err := snapshot.Bootstrap(ctx, m.driver, m.ledger, doc); err != nil {
			return err
		}
		if m.config.logger != nil {
			m.config.logger.Info(ctx, "store bootstrapped from snapshot",
				"version", doc.Version.String(), "tables", len(doc.Tables), "migrations", len(doc.Migrations))
		}
		return nil
	})
}

// Snapshot rebuilds the snapshot document from the applied migrations.
func (m *Migrator) Snapshot(ctx context.Context) (snapshot.Document, error) {
	p, err := m.prepare(ctx)
	if err != nil {
		return snapshot.Document{}, err
	}
	applied, err := p.Applied(ctx)
	if err != nil {
		return snapshot.Document{}, err
	}
	_, doc, err := snapshot.Build(applied)
	return doc, err
}

// prepare provisions the ledger and binds a planner to the discovered migrations.
func (m *Migrator) prepare(ctx context.Context) (*planner.Planner, error) {
	if err := m.ledger.Provision(ctx); err != nil {
		return nil, fmt.Errorf("failed to provision ledger: %w", err)
	}
	discovered, err := m.source.Discover(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to discover migrations: %w", err)
	}
	return planner.New(m.ledger, discovered), nil
}

// withLock acquires the lock, cancels ctx with migrate.ErrLockLost if the lease is lost and
// releases the lock on every exit path.
func (m *Migrator) withLock(ctx context.Context, fn func(ctx context.Context, p *planner.Planner) error) error {
	lease, err := lock.AcquireWait(ctx, m.locker, m.config.lockKey, m.config.lockWait, m.config.lockPoll, m.config.metrics)
	if err != nil {
		return err
	}
	defer func() {
		if err := lease.Release(context.WithoutCancel(ctx)); err != nil && m.config.logger != nil {
			m.config.logger.Error(ctx, "failed to release lock", "key", lease.Key(), "error", err)
		}
	}()

	ctx, cancel := context.WithCancelCause(ctx)
	defer cancel(nil)
	go func() {
		select {
		case <-lease.Lost():
			if m.config.logger != nil {
				m.config.logger.Error(ctx, "lock lost, stopping at next migration boundary", "key", lease.Key())
			}
			cancel(migrate.ErrLockLost)
		case <-ctx.Done():
		}
	}()

	p, err := m.prepare(ctx)
	if err != nil {
		return err
	}
	return fn(ctx, p)
}

// afterRun regenerates the snapshot and status metrics once a run changed the store.
func (m *Migrator) afterRun(ctx context.Context, p *planner.Planner, report *migrate.ExecutionReport, runErr error) error {
	if report == nil || report.Applied() == 0 {
		return runErr
	}

	if err := m.writeSnapshot(context.WithoutCancel(ctx), p); err != nil {
		if runErr != nil {
			if m.config.logger != nil {
				m.config.logger.Error(ctx, "failed to write snapshot", "error", err)
			}
			return runErr
		}
		return err
	}

	if status, err := p.Status(context.WithoutCancel(ctx)); err == nil {
		m.config.metrics.SetStatus(status)
	}
	return runErr
}

func (m *Migrator) writeSnapshot(ctx context.Context, p *planner.Planner) error {
	if m.snapshots == nil {
		return nil
	}
	applied, err := p.Applied(ctx)
	if err != nil {
		return fmt.Errorf("failed to rebuild snapshot: %w", err)
	}
	_, doc, err := snapshot.Build(applied)
	if err != nil {
		return err
	}
	if err := m.snapshots.Save(ctx, doc); err != nil {
		return fmt.Errorf("failed to write snapshot: %w", err)
	}
	if m.config.logger != nil {
		m.config.logger.Debug(ctx, "snapshot written", "version", doc.Version.String())
	}
	return nil
}
