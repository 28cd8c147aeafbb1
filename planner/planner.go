// Package planner computes which migrations to run given the ledger and the discovered set.
//
// Ordering is by identifier only. There is no dependency graph: authors choose identifiers
// that respect the logical order of their changes.
package planner

import (
	"context"
	"fmt"
	"sort"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/migration"
)

// CheckUnique returns a *migrate.DuplicateMigrationIDError for the lowest ID shared by two
// or more discovered migrations.
func CheckUnique(discovered []migration.Migration) error {
	names := make(map[migrate.ID][]string, len(discovered))
	for _, m := range discovered {
		names[m.ID] = append(names[m.ID], m.Name)
	}

	var dup migrate.ID
	for id, n := range names {
		if len(n) > 1 && (dup == 0 || id < dup) {
			dup = id
		}
	}
	if dup == 0 {
		return nil
	}
	sorted := append([]string(nil), names[dup]...)
	sort.Strings(sorted)
	return &migrate.DuplicateMigrationIDError{ID: dup, Names: sorted}
}

// PlanForward returns the discovered migrations whose ID is absent from applied, in
// ascending ID order.
func PlanForward(discovered []migration.Migration, applied []migrate.ID) ([]migration.Migration, error) {
	return PlanForwardTo(discovered, applied, 0)
}

// PlanForwardTo is PlanForward limited to IDs not greater than target. A zero target means
// no limit.
func PlanForwardTo(discovered []migration.Migration, applied []migrate.ID, target migrate.ID) ([]migration.Migration, error) {
	if err := CheckUnique(discovered); err != nil {
		return nil, err
	}

	done := ledger.Set(applied)
	plan := make([]migration.Migration, 0, len(discovered))
	for _, m := range discovered {
		if done[m.ID] {
			continue
		}
		if target != 0 && m.ID > target {
			continue
		}
		plan = append(plan, m)
	}
	migration.Sort(plan)
	return plan, nil
}

// PlanBackward returns the count most recently applied migrations in descending ID order.
// Every planned ID must have a discovered definition, otherwise it fails with a
// *migrate.MissingMigrationError. A count larger than the ledger plans everything applied.
func PlanBackward(discovered []migration.Migration, applied []migrate.ID, count int) ([]migration.Migration, error) {
	if count < 0 {
		return nil, fmt.Errorf("rollback count must not be negative (got %d)", count)
	}
	if err := CheckUnique(discovered); err != nil {
		return nil, err
	}

	byID := make(map[migrate.ID]migration.Migration, len(discovered))
	for _, m := range discovered {
		byID[m.ID] = m
	}

	desc := append([]migrate.ID(nil), applied...)
	sort.Slice(desc, func(i, j int) bool { return desc[i] > desc[j] })
	if count < len(desc) {
		desc = desc[:count]
	}

	plan := make([]migration.Migration, 0, len(desc))
	for _, id := range desc {
		m, ok := byID[id]
		if !ok {
			return nil, &migrate.MissingMigrationError{ID: id}
		}
		plan = append(plan, m)
	}
	return plan, nil
}

// Status compares ledger entries with the discovered migrations. Entries whose definition
// is missing or whose checksum changed since they were applied are reported rather than
// failing, so operators can inspect a drifted store.
func Status(discovered []migration.Migration, entries []migrate.LedgerEntry) (migrate.Status, error) {
	if err := CheckUnique(discovered); err != nil {
		return migrate.Status{}, err
	}

	byID := make(map[migrate.ID]migration.Migration, len(discovered))
	for _, m := range discovered {
		byID[m.ID] = m
	}

	applied := append([]migrate.LedgerEntry(nil), entries...)
	sort.Slice(applied, func(i, j int) bool { return applied[i].ID < applied[j].ID })

	status := migrate.Status{Applied: applied}
	seen := make(map[migrate.ID]bool, len(applied))
	for _, e := range applied {
		seen[e.ID] = true
		m, ok := byID[e.ID]
		if !ok {
			status.Missing = append(status.Missing, e.ID)
			continue
		}
		// bootstrap records carry no checksum
		if e.Checksum != "" && e.Checksum != m.Checksum() {
			status.Drifted = append(status.Drifted, e.ID)
		}
	}

	pending := make([]migration.Migration, 0, len(discovered))
	for _, m := range discovered {
		if !seen[m.ID] {
			pending = append(pending, m)
		}
	}
	migration.Sort(pending)
	for _, m := range pending {
		status.Pending = append(status.Pending, migrate.PendingMigration{ID: m.ID, Name: m.Name})
	}
	return status, nil
}

// Planner binds the planning functions to a ledger.
type Planner struct {
	ledger     ledger.Ledger
	discovered []migration.Migration
}

// New creates a planner over the discovered migrations and ledger.
func New(l ledger.Ledger, discovered []migration.Migration) *Planner {
	return &Planner{ledger: l, discovered: discovered}
}

// Forward plans every pending migration.
func (p *Planner) Forward(ctx context.Context) ([]migration.Migration, error) {
	return p.ForwardTo(ctx, 0)
}

// ForwardTo plans pending migrations up to and including target.
func (p *Planner) ForwardTo(ctx context.Context, target migrate.ID) ([]migration.Migration, error) {
	applied, err := p.ledger.AppliedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return PlanForwardTo(p.discovered, applied, target)
}

// Backward plans the count most recently applied migrations.
func (p *Planner) Backward(ctx context.Context, count int) ([]migration.Migration, error) {
	applied, err := p.ledger.AppliedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	return PlanBackward(p.discovered, applied, count)
}

// Status reports applied, pending, missing and drifted migrations.
func (p *Planner) Status(ctx context.Context) (migrate.Status, error) {
	entries, err := p.ledger.Entries(ctx)
	if err != nil {
		return migrate.Status{}, fmt.Errorf("failed to read ledger: %w", err)
	}
	return Status(p.discovered, entries)
}

// Applied returns the discovered migrations recorded in the ledger, in ascending ID order.
// Applied IDs without a definition fail with *migrate.MissingMigrationError.
func (p *Planner) Applied(ctx context.Context) ([]migration.Migration, error) {
	applied, err := p.ledger.AppliedIDs(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to read ledger: %w", err)
	}
	plan, err := PlanBackward(p.discovered, applied, len(applied))
	if err != nil {
		return nil, err
	}
	for i, j := 0, len(plan)-1; i < j; i, j = i+1, j-1 {
		plan[i], plan[j] = plan[j], plan[i]
	}
	return plan, nil
}
