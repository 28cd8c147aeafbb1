package snapshot

import (
	"context"
	"fmt"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/operation"
)

// BootstrapName is the ledger name recorded for migrations marked applied by Bootstrap.
const BootstrapName = "bootstrap"

// Bootstrap creates every table and index of doc directly, without replaying migrations,
// and then records each migration of doc as applied. The ledger must be provisioned and
// empty. When the driver supports transactional DDL the tables and, for binding ledgers, the
// ledger rows are written in one transaction.
//
// Bootstrapped entries carry no checksum, so later drift checks skip them.
func Bootstrap(ctx context.Context, d driver.Driver, l ledger.Ledger, doc Document) error {
	if err := doc.Validate(); err != nil {
		return err
	}

	ids, err := l.AppliedIDs(ctx)
	if err != nil {
		return fmt.Errorf("failed to read ledger: %w", err)
	}
	if len(ids) > 0 {
		return fmt.Errorf("%w: %d migrations already applied", ErrLedgerNotEmpty, len(ids))
	}

	ops := make([]operation.Operation, 0, len(doc.Tables))
	for _, t := range doc.Tables {
		ops = append(ops, operation.CreateTable{Table: t.Clone()})
	}

	now := time.Now().UTC()
	if !d.SupportsTransactionalDDL() {
		for _, op := range ops {
			if err := d.ExecuteDDL(ctx, op); err != nil {
				return fmt.Errorf("failed to bootstrap %s: %w", op, err)
			}
		}
		return record(ctx, l, doc, now)
	}

	tx, err := d.Begin(ctx)
	if err != nil {
		return fmt.Errorf("failed to begin bootstrap: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	for _, op := range ops {
		if err := tx.ExecuteDDL(ctx, op); err != nil {
			return fmt.Errorf("failed to bootstrap %s: %w", op, err)
		}
	}

	target := l
	bound := false
	if binder, ok := l.(ledger.TxBinder); ok {
		target, bound = binder.Bind(tx)
	}
	if bound {
		if err := record(ctx, target, doc, now); err != nil {
			return err
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit bootstrap: %w", err)
	}
	if !bound {
		return record(ctx, l, doc, now)
	}
	return nil
}

func record(ctx context.Context, l ledger.Ledger, doc Document, at time.Time) error {
	for _, id := range doc.Migrations {
		err := l.RecordApplied(ctx, migrate.LedgerEntry{
			ID:        id,
			Name:      BootstrapName,
			AppliedAt: at,
		})
		if err != nil {
			return fmt.Errorf("failed to record bootstrapped migration %s: %w", id, err)
		}
	}
	return nil
}
