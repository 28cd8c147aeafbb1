package migrate

import (
	"fmt"
	"io"
	"time"
)

// MigrationResult describes the outcome of running a single migration.
type MigrationResult struct {
	// ID is the migration identifier.
	ID ID

	// Name is the migration's human name.
	Name string

	// Duration is how long the migration ran, including ledger bookkeeping.
	Duration time.Duration

	// Err is the failure cause. Nil for successful migrations.
	Err error
}

// ExecutionReport enumerates what a plan run did. It carries enough detail to resume safely:
// re-invoking the same directive skips everything in Succeeded and retries Failed from the
// start of its operation sequence.
type ExecutionReport struct {
	// RunID uniquely identifies the run (UUID).
	RunID string

	// Direction is the direction the plan ran in.
	Direction Direction

	// Succeeded lists migrations applied (or reverted) by this run, in execution order.
	Succeeded []MigrationResult

	// Skipped lists plan entries that needed no work because the ledger already
	// reflected them.
	Skipped []ID

	// Failed is the migration that halted the plan, if any.
	Failed *MigrationResult

	// Cause is the underlying reason the plan halted, if it did.
	Cause error

	// RolledBack reports whether the failed migration's partial effects were undone by a
	// transaction rollback. False means effects may remain on stores without
	// transactional DDL.
	RolledBack bool

	// Cancelled reports that the run stopped at a migration boundary because the caller
	// cancelled or the advisory lock was lost.
	Cancelled bool

	// StartedAt is when the run started.
	StartedAt time.Time

	// FinishedAt is when the run finished.
	FinishedAt time.Time
}

// Applied returns the number of migrations this run changed.
func (r *ExecutionReport) Applied() int {
	if r == nil {
		return 0
	}
	return len(r.Succeeded)
}

// SucceededIDs returns the IDs in Succeeded, in execution order.
func (r *ExecutionReport) SucceededIDs() []ID {
	if r == nil {
		return nil
	}
	ids := make([]ID, 0, len(r.Succeeded))
	for _, res := range r.Succeeded {
		ids = append(ids, res.ID)
	}
	return ids
}

// Halted reports whether the plan stopped before completing.
func (r *ExecutionReport) Halted() bool {
	return r != nil && (r.Failed != nil || r.Cancelled)
}

// Write prints a human readable summary of the report to w.
func (r *ExecutionReport) Write(w io.Writer) error {
	if r == nil {
		_, err := fmt.Fprintln(w, "no run")
		return err
	}

	verb := "applied"
	if r.Direction == DirectionBackward {
		verb = "reverted"
	}

	if _, err := fmt.Fprintf(w, "run %s (%s)\n", r.RunID, r.Direction); err != nil {
		return err
	}
	for _, res := range r.Succeeded {
		if _, err := fmt.Fprintf(w, "  %-8s %s %s (%s)\n", verb, res.ID, res.Name, res.Duration.Round(time.Millisecond)); err != nil {
			return err
		}
	}
	for _, id := range r.Skipped {
		if _, err := fmt.Fprintf(w, "  %-8s %s\n", "skipped", id); err != nil {
			return err
		}
	}
	if r.Failed != nil {
		state := "partial effects may remain"
		if r.RolledBack {
			state = "rolled back"
		}
		if _, err := fmt.Fprintf(w, "  %-8s %s %s: %v (%s)\n", "failed", r.Failed.ID, r.Failed.Name, r.Cause, state); err != nil {
			return err
		}
	}
	if r.Cancelled {
		if _, err := fmt.Fprintf(w, "  cancelled at migration boundary: %v\n", r.Cause); err != nil {
			return err
		}
	}

	_, err := fmt.Fprintf(w, "%d %s in %s\n", len(r.Succeeded), verb, r.FinishedAt.Sub(r.StartedAt).Round(time.Millisecond))
	return err
}
