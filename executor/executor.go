package executor

import (
	"context"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"
	"go.opentelemetry.io/otel"
	"go.opentelemetry.io/otel/attribute"
	"go.opentelemetry.io/otel/codes"
	"go.opentelemetry.io/otel/trace"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/metrics"
	"github.com/getpup/pupsourcing-migrate/migration"
)

// DefaultMigrationTimeout bounds a single migration when Config.MigrationTimeout is zero.
const DefaultMigrationTimeout = 5 * time.Minute

// Config configures the executor.
type Config struct {
	// Driver executes operations against the target store (required).
	Driver driver.Driver

	// Ledger records applied migrations (required). When it implements ledger.TxBinder,
	// ledger writes share the migration's transaction.
	Ledger ledger.Ledger

	// MigrationTimeout bounds each migration (default: 5m). A timeout is handled like any
	// other migration failure.
	MigrationTimeout time.Duration

	// Logger is an optional logger for observability.
	Logger migrate.Logger

	// Metrics is an optional metrics collector.
	Metrics *metrics.Collector

	// Tracer creates one span per migration (default: the global tracer provider).
	Tracer trace.Tracer

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Executor applies and reverts planned migrations one at a time.
type Executor struct {
	config Config
}

// Compile-time check that Executor implements Runner.
var _ Runner = (*Executor)(nil)

// New creates a new Executor with the given configuration.
// It applies default values for MigrationTimeout, Tracer and Now if unset.
func New(cfg Config) *Executor {
	if cfg.MigrationTimeout == 0 {
		cfg.MigrationTimeout = DefaultMigrationTimeout
	}
	if cfg.Tracer == nil {
		cfg.Tracer = otel.GetTracerProvider().Tracer("github.com/getpup/pupsourcing-migrate/executor")
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}

	return &Executor{
		config: cfg,
	}
}

// RunForward applies plan in order. Migrations the ledger already records are skipped, so
// re-running a halted plan retries the failed migration from its first operation.
//
// Cancelling ctx stops the plan at the next migration boundary; a migration that already
// started runs to completion or to its timeout. When the plan halts, the returned error is a
// *migrate.PartialFailureError carrying the report.
func (e *Executor) RunForward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
	return e.run(ctx, migrate.DirectionForward, plan)
}

// RunBackward reverts plan in order, newest first as produced by the planner. Every
// migration is checked for reversibility before anything runs; an irreversible one fails
// the whole request with a *migrate.IrreversibleOperationError.
func (e *Executor) RunBackward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
	return e.run(ctx, migrate.DirectionBackward, plan)
}

func (e *Executor) run(ctx context.Context, direction migrate.Direction, plan []migration.Migration) (*migrate.ExecutionReport, error) {
	report := &migrate.ExecutionReport{
		RunID:     uuid.NewString(),
		Direction: direction,
		StartedAt: e.config.Now(),
	}
	defer func() {
		report.FinishedAt = e.config.Now()
		e.config.Metrics.ObservePlanDuration(direction, report.FinishedAt.Sub(report.StartedAt).Seconds())
	}()

	if direction == migrate.DirectionBackward {
		for _, m := range plan {
			if _, err := m.DownOperations(); err != nil {
				report.Failed = &migrate.MigrationResult{ID: m.ID, Name: m.Name, Err: err}
				report.Cause = err
				e.logError(ctx, "rollback refused", m, err)
				return report, err
			}
		}
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "plan started", "run_id", report.RunID, "direction", string(direction), "migrations", len(plan))
	}

	for _, m := range plan {
		if err := ctx.Err(); err != nil {
			report.Cancelled = true
			report.Cause = context.Cause(ctx)
			if e.config.Logger != nil {
				e.config.Logger.Info(ctx, "plan cancelled at migration boundary",
					"run_id", report.RunID, "next", m.ID.String(), "cause", report.Cause)
			}
			return report, &migrate.PartialFailureError{Report: report}
		}

		skip, err := e.shouldSkip(ctx, direction, m)
		if err != nil {
			report.Failed = &migrate.MigrationResult{ID: m.ID, Name: m.Name, Err: err}
			report.Cause = err
			report.RolledBack = true
			e.config.Metrics.IncFailures(direction)
			e.logError(ctx, "ledger check failed", m, err)
			return report, &migrate.PartialFailureError{Report: report}
		}
		if skip {
			report.Skipped = append(report.Skipped, m.ID)
			e.config.Metrics.IncSkipped(direction)
			if e.config.Logger != nil {
				e.config.Logger.Debug(ctx, "migration skipped", "id", m.ID.String(), "name", m.Name)
			}
			continue
		}

		result, rolledBack := e.runOne(ctx, direction, m)
		if result.Err != nil {
			report.Failed = &result
			report.Cause = result.Err
			report.RolledBack = rolledBack
			e.config.Metrics.IncFailures(direction)
			e.logError(ctx, "migration failed", m, result.Err, "rolled_back", rolledBack)
			return report, &migrate.PartialFailureError{Report: report}
		}

		report.Succeeded = append(report.Succeeded, result)
		e.config.Metrics.IncMigrations(direction)
		e.config.Metrics.ObserveMigrationDuration(direction, result.Duration.Seconds())
		if e.config.Logger != nil {
			e.config.Logger.Info(ctx, "migration finished",
				"id", m.ID.String(), "name", m.Name, "direction", string(direction), "duration", result.Duration)
		}
	}

	if e.config.Logger != nil {
		e.config.Logger.Info(ctx, "plan finished",
			"run_id", report.RunID, "direction", string(direction), "succeeded", len(report.Succeeded), "skipped", len(report.Skipped))
	}
	return report, nil
}

func (e *Executor) shouldSkip(ctx context.Context, direction migrate.Direction, m migration.Migration) (bool, error) {
	applied, err := e.config.Ledger.IsApplied(ctx, m.ID)
	if err != nil {
		return false, fmt.Errorf("failed to check ledger for %s: %w", m.ID, err)
	}
	if direction == migrate.DirectionForward {
		return applied, nil
	}
	return !applied, nil
}

// runOne runs a single migration on a context detached from caller cancellation and
// bounded by the migration timeout. It reports whether a failure was rolled back.
func (e *Executor) runOne(parent context.Context, direction migrate.Direction, m migration.Migration) (migrate.MigrationResult, bool) {
	ctx, cancel := context.WithTimeout(context.WithoutCancel(parent), e.config.MigrationTimeout)
	defer cancel()

	ctx, span := e.config.Tracer.Start(ctx, "migrate."+string(direction),
		trace.WithSpanKind(trace.SpanKindInternal),
		trace.WithAttributes(
			attribute.Int64("migration.id", int64(m.ID)),
			attribute.String("migration.name", m.Name),
			attribute.String("migration.direction", string(direction)),
		),
	)
	defer span.End()

	start := e.config.Now()
	var (
		err        error
		rolledBack bool
	)
	if e.config.Driver.SupportsTransactionalDDL() {
		rolledBack, err = e.runInTx(ctx, direction, m, start)
	} else {
		rolledBack, err = e.runSequential(ctx, direction, m, start)
	}

	result := migrate.MigrationResult{
		ID:       m.ID,
		Name:     m.Name,
		Duration: e.config.Now().Sub(start),
		Err:      err,
	}
	if err != nil {
		span.RecordError(err)
		span.SetStatus(codes.Error, err.Error())
	} else {
		span.SetStatus(codes.Ok, "")
	}
	return result, rolledBack
}

func (e *Executor) runInTx(ctx context.Context, direction migrate.Direction, m migration.Migration, start time.Time) (bool, error) {
	tx, err := e.config.Driver.Begin(ctx)
	if err != nil {
		return true, fmt.Errorf("migration %s: %w", m.ID, err)
	}

	if err := apply(ctx, direction, m, tx); err != nil {
		return e.rollback(ctx, tx, m, err)
	}

	bound, ok := e.bindLedger(tx)
	if ok {
		if err := e.record(ctx, bound, direction, m, start); err != nil {
			return e.rollback(ctx, tx, m, err)
		}
	}

	if err := tx.Commit(); err != nil {
		return true, fmt.Errorf("migration %s: %w", m.ID, err)
	}

	if !ok {
		if err := e.record(ctx, e.config.Ledger, direction, m, start); err != nil {
			return e.compensate(ctx, direction, m, err), err
		}
	}
	return false, nil
}

// runSequential applies operations one by one. A failed operation leaves the earlier ones
// in place; a failed ledger write after every operation succeeded is compensated.
func (e *Executor) runSequential(ctx context.Context, direction migrate.Direction, m migration.Migration, start time.Time) (bool, error) {
	if err := apply(ctx, direction, m, e.config.Driver); err != nil {
		return false, err
	}
	if err := e.record(ctx, e.config.Ledger, direction, m, start); err != nil {
		return e.compensate(ctx, direction, m, err), err
	}
	return false, nil
}

func (e *Executor) rollback(ctx context.Context, tx driver.Tx, m migration.Migration, cause error) (bool, error) {
	if err := tx.Rollback(); err != nil && !errors.Is(err, driver.ErrTxDone) {
		e.logError(ctx, "rollback failed", m, err)
		return false, cause
	}
	return true, cause
}

// compensate undoes a committed migration whose ledger write failed, so the store and the
// ledger agree again. It reports whether the undo succeeded.
func (e *Executor) compensate(ctx context.Context, direction migrate.Direction, m migration.Migration, cause error) bool {
	opposite := migrate.DirectionBackward
	if direction == migrate.DirectionBackward {
		opposite = migrate.DirectionForward
	}
	if err := apply(ctx, opposite, m, e.config.Driver); err != nil {
		e.logError(ctx, "compensation failed, store and ledger disagree", m, err, "cause", cause)
		return false
	}
	return true
}

func (e *Executor) bindLedger(tx driver.Tx) (ledger.Ledger, bool) {
	binder, ok := e.config.Ledger.(ledger.TxBinder)
	if !ok {
		return nil, false
	}
	return binder.Bind(tx)
}

func (e *Executor) record(ctx context.Context, l ledger.Ledger, direction migrate.Direction, m migration.Migration, start time.Time) error {
	if direction == migrate.DirectionBackward {
		if err := l.RecordReverted(ctx, m.ID); err != nil {
			return fmt.Errorf("failed to remove ledger entry for %s: %w", m.ID, err)
		}
		return nil
	}

	now := e.config.Now()
	entry := migrate.LedgerEntry{
		ID:            m.ID,
		Name:          m.Name,
		Checksum:      m.Checksum(),
		AppliedAt:     now,
		ExecutionTime: now.Sub(start),
	}
	if err := l.RecordApplied(ctx, entry); err != nil {
		return fmt.Errorf("failed to record ledger entry for %s: %w", m.ID, err)
	}
	return nil
}

func apply(ctx context.Context, direction migrate.Direction, m migration.Migration, a migration.Applier) error {
	if direction == migrate.DirectionBackward {
		return m.Backward(ctx, a)
	}
	return m.Forward(ctx, a)
}

func (e *Executor) logError(ctx context.Context, msg string, m migration.Migration, err error, args ...interface{}) {
	if e.config.Logger == nil {
		return
	}
	kv := append([]interface{}{"id", m.ID.String(), "name", m.Name, "error", err}, args...)
	e.config.Logger.Error(ctx, msg, kv...)
}
