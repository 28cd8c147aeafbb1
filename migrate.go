// Package migrate is the core of a datastore-agnostic schema migration engine: ordered,
// idempotent, reversible application of schema-changing operations with a durable ledger of
// what has been applied.
//
// The root package holds the shared vocabulary (identifiers, ledger entries, execution
// reports, the error taxonomy and the logger contract). Behaviour lives in sibling packages:
// schema, operation, migration, ledger, planner, executor, snapshot, lock and driver.
// Most callers use pkg/migrator, which wires them together behind functional options.
package migrate

import "context"

// Migrator runs migration directives against one target store.
type Migrator interface {
	// Up applies every pending migration in ascending ID order.
	//
	// Up will:
	// 1. Acquire the migrate lock for the target store
	// 2. Provision the ledger if needed
	// 3. Plan the pending migrations from the ledger and the discovered set
	// 4. Apply each migration in its own transaction when the store supports it
	// 5. Regenerate the schema snapshot
	//
	// Up returns the report together with a *PartialFailureError if the plan halted.
	// Calling Up again after a failure is always safe.
	Up(ctx context.Context) (*ExecutionReport, error)

	// UpTo applies pending migrations whose ID is not greater than target.
	UpTo(ctx context.Context, target ID) (*ExecutionReport, error)

	// Down reverts the count most recently applied migrations, newest first.
	// Down refuses plans that contain an irreversible migration before touching the store.
	Down(ctx context.Context, count int) (*ExecutionReport, error)

	// Status reports applied, pending and inconsistent migrations without taking the lock.
	Status(ctx context.Context) (Status, error)

	// Bootstrap loads the schema snapshot into an empty store and marks every migration it
	// covers as applied.
	Bootstrap(ctx context.Context) error
}

// Status describes the ledger of a target store relative to the discovered migrations.
type Status struct {
	// Applied lists ledger entries in ascending ID order.
	Applied []LedgerEntry

	// Pending lists discovered migrations that are not applied, ascending.
	Pending []PendingMigration

	// Missing lists applied IDs with no discovered definition.
	Missing []ID

	// Drifted lists applied IDs whose current checksum differs from the recorded one.
	Drifted []ID
}

// PendingMigration identifies a discovered migration that has not been applied.
type PendingMigration struct {
	ID   ID
	Name string
}

// Current returns the highest applied ID, or zero when nothing is applied.
func (s Status) Current() ID {
	var current ID
	for _, e := range s.Applied {
		if e.ID > current {
			current = e.ID
		}
	}
	return current
}

// Clean reports whether the ledger has no missing or drifted entries.
func (s Status) Clean() bool {
	return len(s.Missing) == 0 && len(s.Drifted) == 0
}
