// Package ledger defines the durable record of applied migrations.
//
// The ledger is the single source of truth for what has run against a target store. It is
// never inferred from the schema snapshot, since the two can diverge after a partial failure.
package ledger

import (
	"context"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/driver"
)

// Ledger records applied migrations for one target store.
// Implementations must be safe for concurrent readers.
type Ledger interface {
	// Provision creates the ledger's backing table if it does not exist.
	// It must run before any migration operation.
	Provision(ctx context.Context) error

	// IsApplied reports whether id is recorded.
	IsApplied(ctx context.Context, id migrate.ID) (bool, error)

	// RecordApplied records entry.
	// Returns ErrAlreadyRecorded if the ID is already recorded.
	RecordApplied(ctx context.Context, entry migrate.LedgerEntry) error

	// RecordReverted removes the record for id.
	// Returns ErrNotRecorded if the ID is not recorded.
	RecordReverted(ctx context.Context, id migrate.ID) error

	// AppliedIDs returns every recorded ID in ascending order.
	AppliedIDs(ctx context.Context) ([]migrate.ID, error)

	// Entries returns every recorded entry in ascending ID order.
	Entries(ctx context.Context) ([]migrate.LedgerEntry, error)
}

// TxBinder is implemented by ledgers that can write inside a driver transaction, so a
// migration's effects and its ledger row commit or roll back together.
type TxBinder interface {
	// Bind returns a ledger that writes through tx. It returns ok=false when tx does not
	// belong to a compatible driver.
	Bind(tx driver.Tx) (Ledger, bool)
}

// Set returns the IDs of entries as a set.
func Set(ids []migrate.ID) map[migrate.ID]bool {
	set := make(map[migrate.ID]bool, len(ids))
	for _, id := range ids {
		set[id] = true
	}
	return set
}
