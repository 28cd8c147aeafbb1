// Package driver defines the datastore capability set the engine runs migrations through.
//
// A driver translates operations into its datastore's statements and reports whether DDL
// can run inside a transaction. The engine never issues dialect-specific statements itself.
package driver

import (
	"context"
	"errors"

	"github.com/getpup/pupsourcing-migrate/operation"
)

// ErrTxDone indicates a commit or rollback on a finished transaction.
var ErrTxDone = errors.New("transaction already finished")

// ErrUnsupported indicates the datastore cannot express an operation.
var ErrUnsupported = errors.New("operation not supported by driver")

// Driver executes operations against one target store.
type Driver interface {
	// SupportsTransactionalDDL reports whether DDL statements can be rolled back.
	SupportsTransactionalDDL() bool

	// Begin starts a transaction. Drivers without transactional DDL may return a
	// transaction whose DDL takes effect immediately.
	Begin(ctx context.Context) (Tx, error)

	// ExecuteDDL applies op outside of any transaction.
	ExecuteDDL(ctx context.Context, op operation.Operation) error
}

// Tx is an open driver transaction.
type Tx interface {
	// ExecuteDDL applies op inside the transaction.
	ExecuteDDL(ctx context.Context, op operation.Operation) error

	// Commit makes the transaction's effects durable.
	Commit() error

	// Rollback discards the transaction's effects. Calling Rollback after Commit returns
	// ErrTxDone and has no effect.
	Rollback() error
}
