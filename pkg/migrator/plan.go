package migrator

import (
	"context"
	"fmt"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/schema"
	"github.com/getpup/pupsourcing-migrate/snapshot"
)

// Directive selects what a run does.
type Directive struct {
	Kind migrate.DirectiveKind

	// Target bounds an up run. Zero means every pending migration.
	Target migrate.ID

	// Count is the number of migrations a down run reverts.
	Count int
}

// DryRun describes what a directive would do without touching the store.
type DryRun struct {
	Direction  migrate.Direction
	Migrations []migration.Migration

	// Before is the definition rebuilt from the ledger, After the one the plan would leave.
	Before schema.Definition
	After  schema.Definition
}

// Plan computes the plan for d and folds it over the current definition. It takes no lock.
func (m *Migrator) Plan(ctx context.Context, d Directive) (*DryRun, error) {
	p, err := m.prepare(ctx)
	if err != nil {
		return nil, err
	}

	applied, err := p.Applied(ctx)
	if err != nil {
		return nil, err
	}
	before, err := snapshot.Rebuild(applied)
	if err != nil {
		return nil, err
	}

	dry := &DryRun{Before: before, After: before}
	switch d.Kind {
	case migrate.DirectiveApply:
		dry.Direction = migrate.DirectionForward
		dry.Migrations, err = p.ForwardTo(ctx, d.Target)
	case migrate.DirectiveRollback:
		dry.Direction = migrate.DirectionBackward
		dry.Migrations, err = p.Backward(ctx, d.Count)
	default:
		return nil, fmt.Errorf("directive %q cannot be planned", d.Kind)
	}
	if err != nil {
		return nil, err
	}

	for _, mig := range dry.Migrations {
		if dry.Direction == migrate.DirectionForward {
			dry.After, err = mig.Fold(dry.After)
		} else {
			dry.After, err = mig.Unfold(dry.After)
		}
		if err != nil {
			return nil, err
		}
	}
	return dry, nil
}

// Run executes d. Status directives return a nil report.
func (m *Migrator) Run(ctx context.Context, d Directive) (*migrate.ExecutionReport, error) {
	switch d.Kind {
	case migrate.DirectiveApply:
		return m.UpTo(ctx, d.Target)
	case migrate.DirectiveRollback:
		return m.Down(ctx, d.Count)
	case migrate.DirectiveBootstrap:
		return nil, m.Bootstrap(ctx)
	case migrate.DirectiveStatus:
		_, err := m.Status(ctx)
		return nil, err
	default:
		return nil, fmt.Errorf("unknown directive %q", d.Kind)
	}
}
