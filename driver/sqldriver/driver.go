// Package sqldriver implements driver.Driver on top of database/sql.
//
// It works with any registered database/sql driver; the dialect decides the SQL that
// operations translate into and whether DDL runs transactionally.
package sqldriver

import (
	"context"
	"database/sql"
	"errors"
	"fmt"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/operation"
)

// Driver executes operations through a *sql.DB.
type Driver struct {
	db      *sql.DB
	dialect dialect.Dialect
	logger  migrate.Logger
}

var _ driver.Driver = (*Driver)(nil)

// Config configures a Driver.
type Config struct {
	// Dialect renders operations as SQL. Required.
	Dialect dialect.Dialect

	// Logger receives every executed statement at debug level. Optional.
	Logger migrate.Logger
}

// New creates a driver for db.
func New(db *sql.DB, d dialect.Dialect) *Driver {
	return NewWithConfig(db, Config{Dialect: d})
}

// NewWithConfig creates a driver for db with custom configuration.
func NewWithConfig(db *sql.DB, cfg Config) *Driver {
	return &Driver{
		db:      db,
		dialect: cfg.Dialect,
		logger:  cfg.Logger,
	}
}

// DB returns the underlying database handle.
func (d *Driver) DB() *sql.DB {
	return d.db
}

// Dialect returns the driver's dialect.
func (d *Driver) Dialect() dialect.Dialect {
	return d.dialect
}

// SupportsTransactionalDDL implements driver.Driver.
func (d *Driver) SupportsTransactionalDDL() bool {
	return d.dialect.TransactionalDDL()
}

// ExecuteDDL implements driver.Driver.
func (d *Driver) ExecuteDDL(ctx context.Context, op operation.Operation) error {
	return execute(ctx, d.db, d.dialect, d.logger, op)
}

// Begin implements driver.Driver.
func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	tx, err := d.db.BeginTx(ctx, nil)
	if err != nil {
		return nil, fmt.Errorf("failed to begin transaction: %w", err)
	}
	return &Tx{tx: tx, dialect: d.dialect, logger: d.logger}, nil
}

// Tx is an open database/sql transaction.
type Tx struct {
	tx      *sql.Tx
	dialect dialect.Dialect
	logger  migrate.Logger
}

var _ driver.Tx = (*Tx)(nil)

// SQLTx returns the underlying transaction so ledgers can write in the same transaction.
func (t *Tx) SQLTx() *sql.Tx {
	return t.tx
}

// ExecuteDDL implements driver.Tx.
func (t *Tx) ExecuteDDL(ctx context.Context, op operation.Operation) error {
	return execute(ctx, t.tx, t.dialect, t.logger, op)
}

// Commit implements driver.Tx.
func (t *Tx) Commit() error {
	if err := t.tx.Commit(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return driver.ErrTxDone
		}
		return fmt.Errorf("failed to commit transaction: %w", err)
	}
	return nil
}

// Rollback implements driver.Tx.
func (t *Tx) Rollback() error {
	if err := t.tx.Rollback(); err != nil {
		if errors.Is(err, sql.ErrTxDone) {
			return driver.ErrTxDone
		}
		return fmt.Errorf("failed to rollback transaction: %w", err)
	}
	return nil
}

type execer interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
}

func execute(ctx context.Context, db execer, d dialect.Dialect, logger migrate.Logger, op operation.Operation) error {
	stmts, err := d.Statements(op)
	if err != nil {
		if errors.Is(err, dialect.ErrUnsupported) {
			return fmt.Errorf("%w: %v", driver.ErrUnsupported, err)
		}
		return err
	}
	for _, stmt := range stmts {
		if logger != nil {
			logger.Debug(ctx, "executing statement", "dialect", d.Name(), "statement", stmt)
		}
		if _, err := db.ExecContext(ctx, stmt); err != nil {
			return err
		}
	}
	return nil
}
