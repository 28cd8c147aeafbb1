package migrate

import (
	"errors"
	"fmt"
	"strings"
)

var (
	// ErrIrreversibleOperation indicates an operation or migration has no safe inverse.
	// Rolling it back requires a new corrective migration.
	ErrIrreversibleOperation = errors.New("irreversible operation")

	// ErrDuplicateMigrationID indicates two discovered migrations share an identifier.
	// This is a fatal configuration error and is never resolved automatically.
	ErrDuplicateMigrationID = errors.New("duplicate migration id")

	// ErrOperationApply indicates the target store rejected an operation.
	ErrOperationApply = errors.New("operation apply failed")

	// ErrLockContention indicates another run holds the migrate lock.
	ErrLockContention = errors.New("migrate lock held by another run")

	// ErrLockLost indicates the migrate lock expired or was taken over while a run held it.
	ErrLockLost = errors.New("migrate lock lost")

	// ErrPartialFailure indicates a plan halted before completing.
	ErrPartialFailure = errors.New("plan halted")

	// ErrMissingMigration indicates the ledger records a migration that is not among the
	// discovered migrations.
	ErrMissingMigration = errors.New("applied migration not found")
)

// IrreversibleOperationError reports an operation without a computable inverse.
type IrreversibleOperationError struct {
	// Migration is the migration that holds the operation. Zero when the operation
	// was inverted on its own.
	Migration ID

	// Operation is the canonical rendering of the operation.
	Operation string

	// Reason explains what is missing for an inverse.
	Reason string
}

// Error implements the error interface.
func (e *IrreversibleOperationError) Error() string {
	if e.Migration != 0 {
		return fmt.Sprintf("migration %s: %s: %s: %s", e.Migration, ErrIrreversibleOperation, e.Operation, e.Reason)
	}
	return fmt.Sprintf("%s: %s: %s", ErrIrreversibleOperation, e.Operation, e.Reason)
}

// Is matches ErrIrreversibleOperation.
func (e *IrreversibleOperationError) Is(target error) bool {
	return target == ErrIrreversibleOperation
}

// DuplicateMigrationIDError reports migrations that share an identifier.
type DuplicateMigrationIDError struct {
	ID    ID
	Names []string
}

// Error implements the error interface.
func (e *DuplicateMigrationIDError) Error() string {
	return fmt.Sprintf("%s %s: %s", ErrDuplicateMigrationID, e.ID, strings.Join(e.Names, ", "))
}

// Is matches ErrDuplicateMigrationID.
func (e *DuplicateMigrationIDError) Is(target error) bool {
	return target == ErrDuplicateMigrationID
}

// OperationApplyError reports an operation the driver rejected.
type OperationApplyError struct {
	// Migration is the migration being executed.
	Migration ID

	// Index is the position of the failing operation in the executed sequence.
	Index int

	// Operation is the canonical rendering of the failing operation.
	Operation string

	// Err is the underlying driver error.
	Err error
}

// Error implements the error interface.
func (e *OperationApplyError) Error() string {
	return fmt.Sprintf("migration %s: operation %d (%s): %v", e.Migration, e.Index, e.Operation, e.Err)
}

// Unwrap returns the underlying driver error.
func (e *OperationApplyError) Unwrap() error {
	return e.Err
}

// Is matches ErrOperationApply.
func (e *OperationApplyError) Is(target error) bool {
	return target == ErrOperationApply
}

// LockContentionError reports that another run holds the advisory lock.
type LockContentionError struct {
	// Key is the lock key.
	Key string

	// Holder identifies the current holder when the backend exposes it.
	Holder string
}

// Error implements the error interface.
func (e *LockContentionError) Error() string {
	if e.Holder != "" {
		return fmt.Sprintf("%s: key %q held by %s", ErrLockContention, e.Key, e.Holder)
	}
	return fmt.Sprintf("%s: key %q", ErrLockContention, e.Key)
}

// Is matches ErrLockContention.
func (e *LockContentionError) Is(target error) bool {
	return target == ErrLockContention
}

// PartialFailureError reports a plan that halted. The report enumerates completed
// migrations and the failing one.
type PartialFailureError struct {
	Report *ExecutionReport
}

// Error implements the error interface.
func (e *PartialFailureError) Error() string {
	if e.Report == nil {
		return ErrPartialFailure.Error()
	}
	if e.Report.Failed != nil {
		return fmt.Sprintf("%s after %d of plan (%s): failed at %s: %v",
			ErrPartialFailure, len(e.Report.Succeeded), e.Report.Direction, e.Report.Failed.ID, e.Report.Cause)
	}
	return fmt.Sprintf("%s after %d of plan (%s): %v",
		ErrPartialFailure, len(e.Report.Succeeded), e.Report.Direction, e.Report.Cause)
}

// Unwrap returns the underlying cause.
func (e *PartialFailureError) Unwrap() error {
	if e.Report == nil {
		return nil
	}
	return e.Report.Cause
}

// Is matches ErrPartialFailure.
func (e *PartialFailureError) Is(target error) bool {
	return target == ErrPartialFailure
}

// MissingMigrationError reports a ledgered migration with no discovered definition.
type MissingMigrationError struct {
	ID ID
}

// Error implements the error interface.
func (e *MissingMigrationError) Error() string {
	return fmt.Sprintf("%s: %s", ErrMissingMigration, e.ID)
}

// Is matches ErrMissingMigration.
func (e *MissingMigrationError) Is(target error) bool {
	return target == ErrMissingMigration
}
