// Package memory provides an in-process driver backed by a schema.Definition.
// It is used for tests, examples and dry runs.
package memory

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// Driver is an in-memory implementation of driver.Driver.
// It provides thread-safe access to the current schema using a sync.RWMutex.
type Driver struct {
	mu            sync.RWMutex
	schema        schema.Definition
	transactional bool
	executed      []string

	// FailOn, when set, is consulted before every operation. A non-nil error rejects
	// the operation as a real datastore would.
	FailOn func(op operation.Operation) error

	// Delay is slept before every operation, honouring context cancellation.
	Delay time.Duration
}

var _ driver.Driver = (*Driver)(nil)

// Option configures a Driver.
type Option func(*Driver)

// NonTransactional makes the driver apply DDL immediately even inside a transaction,
// like MySQL.
func NonTransactional() Option {
	return func(d *Driver) {
		d.transactional = false
	}
}

// WithSchema seeds the driver with an existing schema.
func WithSchema(def schema.Definition) Option {
	return func(d *Driver) {
		d.schema = def
	}
}

// New creates an empty transactional driver.
func New(opts ...Option) *Driver {
	d := &Driver{
		schema:        schema.Empty(),
		transactional: true,
	}
	for _, opt := range opts {
		opt(d)
	}
	return d
}

// SupportsTransactionalDDL implements driver.Driver.
func (d *Driver) SupportsTransactionalDDL() bool {
	return d.transactional
}

// Schema returns the current committed schema.
func (d *Driver) Schema() schema.Definition {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return d.schema
}

// Executed returns the canonical rendering of every operation that took effect, in order.
func (d *Driver) Executed() []string {
	d.mu.RLock()
	defer d.mu.RUnlock()
	return append([]string(nil), d.executed...)
}

// ExecuteDDL implements driver.Driver.
func (d *Driver) ExecuteDDL(ctx context.Context, op operation.Operation) error {
	if err := d.before(ctx, op); err != nil {
		return err
	}

	d.mu.Lock()
	defer d.mu.Unlock()

	next, err := op.Apply(d.schema)
	if err != nil {
		return err
	}
	d.schema = next
	d.executed = append(d.executed, op.String())
	return nil
}

// Begin implements driver.Driver.
func (d *Driver) Begin(ctx context.Context) (driver.Tx, error) {
	if err := ctx.Err(); err != nil {
		return nil, err
	}
	if !d.transactional {
		return &directTx{d: d}, nil
	}
	return &tx{d: d, schema: d.Schema()}, nil
}

func (d *Driver) before(ctx context.Context, op operation.Operation) error {
	if d.Delay > 0 {
		timer := time.NewTimer(d.Delay)
		defer timer.Stop()
		select {
		case <-ctx.Done():
			return ctx.Err()
		case <-timer.C:
		}
	}
	if err := ctx.Err(); err != nil {
		return err
	}
	if d.FailOn != nil {
		if err := d.FailOn(op); err != nil {
			return err
		}
	}
	return nil
}

// tx buffers changes on a private copy of the schema and publishes it on commit.
type tx struct {
	d        *Driver
	schema   schema.Definition
	executed []string
	done     bool
}

func (t *tx) ExecuteDDL(ctx context.Context, op operation.Operation) error {
	if t.done {
		return driver.ErrTxDone
	}
	if err := t.d.before(ctx, op); err != nil {
		return err
	}
	next, err := op.Apply(t.schema)
	if err != nil {
		return err
	}
	t.schema = next
	t.executed = append(t.executed, op.String())
	return nil
}

func (t *tx) Commit() error {
	if t.done {
		return driver.ErrTxDone
	}
	t.done = true

	t.d.mu.Lock()
	defer t.d.mu.Unlock()
	t.d.schema = t.schema
	t.d.executed = append(t.d.executed, t.executed...)
	return nil
}

func (t *tx) Rollback() error {
	if t.done {
		return driver.ErrTxDone
	}
	t.done = true
	return nil
}

// directTx applies every statement immediately; rollback cannot undo anything.
type directTx struct {
	d    *Driver
	done bool
}

func (t *directTx) ExecuteDDL(ctx context.Context, op operation.Operation) error {
	if t.done {
		return driver.ErrTxDone
	}
	if err := t.d.ExecuteDDL(ctx, op); err != nil {
		return fmt.Errorf("non-transactional ddl: %w", err)
	}
	return nil
}

func (t *directTx) Commit() error {
	if t.done {
		return driver.ErrTxDone
	}
	t.done = true
	return nil
}

func (t *directTx) Rollback() error {
	if t.done {
		return driver.ErrTxDone
	}
	t.done = true
	return nil
}
