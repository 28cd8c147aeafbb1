// Package migration defines a migration: a named, identified, ordered sequence of
// operations with forward and backward behaviour.
package migration

import (
	"context"
	"crypto/sha256"
	"encoding/hex"
	"errors"
	"fmt"
	"sort"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// ErrInvalidMigration indicates a migration that cannot be planned or run.
var ErrInvalidMigration = errors.New("invalid migration")

// Applier executes a single operation against a target, typically a driver or an open
// driver transaction.
type Applier interface {
	ExecuteDDL(ctx context.Context, op operation.Operation) error
}

// Migration is a unit of schema change. Once applied to a shared environment it must not
// be edited; corrections go into a new migration.
type Migration struct {
	// ID orders migrations and must be unique within a discovered set.
	ID migrate.ID

	// Name is the human name, e.g. "CreateUsers".
	Name string

	// Up is the forward operation sequence.
	Up []operation.Operation

	// Down is an optional explicit backward sequence. When empty the backward sequence is
	// derived by inverting Up in reverse order.
	Down []operation.Operation
}

// Validate rejects migrations without an ID, name or forward operations.
func (m Migration) Validate() error {
	if m.ID == 0 {
		return fmt.Errorf("%w: %q has no id", ErrInvalidMigration, m.Name)
	}
	if m.ID > migrate.MaxID {
		return fmt.Errorf("%w: %q id %s exceeds %s", ErrInvalidMigration, m.Name, m.ID, migrate.MaxID)
	}
	if m.Name == "" {
		return fmt.Errorf("%w: %s has no name", ErrInvalidMigration, m.ID)
	}
	if len(m.Up) == 0 {
		return fmt.Errorf("%w: %s %s has no operations", ErrInvalidMigration, m.ID, m.Name)
	}
	return nil
}

// String returns "<id>_<name>".
func (m Migration) String() string {
	return fmt.Sprintf("%s_%s", m.ID, m.Name)
}

// DownOperations returns the backward sequence, derived from Up when Down is empty.
func (m Migration) DownOperations() ([]operation.Operation, error) {
	if len(m.Down) > 0 {
		return m.Down, nil
	}
	down := make([]operation.Operation, 0, len(m.Up))
	for i := len(m.Up) - 1; i >= 0; i-- {
		inv, err := m.Up[i].Invert()
		if err != nil {
			var irr *migrate.IrreversibleOperationError
			if errors.As(err, &irr) {
				withID := *irr
				withID.Migration = m.ID
				return nil, &withID
			}
			return nil, fmt.Errorf("migration %s: %w", m.ID, err)
		}
		down = append(down, inv)
	}
	return down, nil
}

// Reversible reports whether a backward sequence exists.
func (m Migration) Reversible() bool {
	_, err := m.DownOperations()
	return err == nil
}

// Forward applies the Up operations in order, stopping at the first failure.
func (m Migration) Forward(ctx context.Context, a Applier) error {
	return run(ctx, a, m.ID, m.Up)
}

// Backward applies the backward sequence. It fails before touching the target when the
// migration is irreversible.
func (m Migration) Backward(ctx context.Context, a Applier) error {
	down, err := m.DownOperations()
	if err != nil {
		return err
	}
	return run(ctx, a, m.ID, down)
}

func run(ctx context.Context, a Applier, id migrate.ID, ops []operation.Operation) error {
	for i, op := range ops {
		if err := a.ExecuteDDL(ctx, op); err != nil {
			return &migrate.OperationApplyError{Migration: id, Index: i, Operation: op.String(), Err: err}
		}
	}
	return nil
}

// Fold applies the Up operations to def without touching any store.
func (m Migration) Fold(def schema.Definition) (schema.Definition, error) {
	return fold(def, m.ID, m.Up)
}

// Unfold applies the backward sequence to def without touching any store.
func (m Migration) Unfold(def schema.Definition) (schema.Definition, error) {
	down, err := m.DownOperations()
	if err != nil {
		return schema.Definition{}, err
	}
	return fold(def, m.ID, down)
}

func fold(def schema.Definition, id migrate.ID, ops []operation.Operation) (schema.Definition, error) {
	var err error
	for i, op := range ops {
		def, err = op.Apply(def)
		if err != nil {
			return schema.Definition{}, fmt.Errorf("migration %s: operation %d (%s): %w", id, i, op, err)
		}
	}
	return def, nil
}

// Checksum returns a sha256 over the canonical rendering of the Up and explicit Down
// operations. It changes whenever an applied migration is edited.
func (m Migration) Checksum() string {
	h := sha256.New()
	for _, op := range m.Up {
		fmt.Fprintf(h, "up %s\n", op)
	}
	for _, op := range m.Down {
		fmt.Fprintf(h, "down %s\n", op)
	}
	return hex.EncodeToString(h.Sum(nil))
}

// Sort orders migrations by ascending ID in place.
func Sort(migrations []Migration) {
	sort.SliceStable(migrations, func(i, j int) bool {
		return migrations[i].ID < migrations[j].ID
	})
}

// CapturePriors folds migrations in ascending ID order from an empty definition and fills
// the prior definitions of destructive operations, so that migrations authored without
// them stay reversible. The input is not modified.
func CapturePriors(migrations []Migration) ([]Migration, error) {
	sorted := append([]Migration(nil), migrations...)
	Sort(sorted)

	def := schema.Empty()
	out := make([]Migration, 0, len(sorted))
	for _, m := range sorted {
		captured := m
		captured.Up = make([]operation.Operation, 0, len(m.Up))
		for i, op := range m.Up {
			withPrior, err := operation.Capture(def, op)
			if err != nil {
				return nil, fmt.Errorf("migration %s: operation %d (%s): %w", m.ID, i, op, err)
			}
			captured.Up = append(captured.Up, withPrior)

			def, err = withPrior.Apply(def)
			if err != nil {
				return nil, fmt.Errorf("migration %s: operation %d (%s): %w", m.ID, i, op, err)
			}
		}
		out = append(out, captured)
	}
	return out, nil
}
