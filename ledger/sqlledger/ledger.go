// Package sqlledger implements ledger.Ledger as a table in a database/sql database.
package sqlledger

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// TableConfig configures the ledger table name.
type TableConfig struct {
	// LedgerTable is the name of the table storing applied migrations.
	LedgerTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		LedgerTable: "schema_migrations",
	}
}

// Validate checks that the table name is a safe identifier.
func (c TableConfig) Validate() error {
	return dialect.ValidateIdentifier(c.LedgerTable, "LedgerTable")
}

// LedgerTable returns the definition of the ledger table.
func LedgerTable(name string) schema.Table {
	empty := "''"
	return schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true},
			{Name: "name", Type: schema.TypeString, Size: 255},
			{Name: "checksum", Type: schema.TypeString, Size: 64, Default: &empty},
			{Name: "applied_at", Type: schema.TypeTimestamp},
			{Name: "execution_ms", Type: schema.TypeBigInt},
		},
	}
}

type querier interface {
	ExecContext(ctx context.Context, query string, args ...any) (sql.Result, error)
	QueryContext(ctx context.Context, query string, args ...any) (*sql.Rows, error)
	QueryRowContext(ctx context.Context, query string, args ...any) *sql.Row
}

// Ledger is a database/sql implementation of ledger.Ledger.
type Ledger struct {
	q       querier
	dialect dialect.Dialect
	table   string
}

var (
	_ ledger.Ledger   = (*Ledger)(nil)
	_ ledger.TxBinder = (*Ledger)(nil)
)

// New creates a ledger with the default table name.
func New(db *sql.DB, d dialect.Dialect) *Ledger {
	return NewWithConfig(db, d, DefaultTableConfig())
}

// NewWithConfig creates a ledger with a custom table name.
func NewWithConfig(db *sql.DB, d dialect.Dialect, config TableConfig) *Ledger {
	return &Ledger{
		q:       db,
		dialect: d,
		table:   config.LedgerTable,
	}
}

// Bind implements ledger.TxBinder. It binds to transactions opened by sqldriver.
func (l *Ledger) Bind(tx driver.Tx) (ledger.Ledger, bool) {
	sqlTx, ok := tx.(interface{ SQLTx() *sql.Tx })
	if !ok {
		return l, false
	}
	return &Ledger{q: sqlTx.SQLTx(), dialect: l.dialect, table: l.table}, true
}

// Provision implements ledger.Ledger. It creates the ledger table if it does not exist.
func (l *Ledger) Provision(ctx context.Context) error {
	stmts, err := l.dialect.Statements(operation.CreateTable{Table: LedgerTable(l.table), IfNotExists: true})
	if err != nil {
		return fmt.Errorf("failed to render ledger table: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := l.q.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision ledger table: %w", err)
		}
	}
	return nil
}

// IsApplied implements ledger.Ledger.
func (l *Ledger) IsApplied(ctx context.Context, id migrate.ID) (bool, error) {
	query := fmt.Sprintf(`SELECT 1 FROM %s WHERE id = %s`, l.dialect.QuoteIdent(l.table), l.dialect.Placeholder(1))

	var one int
	err := l.q.QueryRowContext(ctx, query, int64(id)).Scan(&one)
	if errors.Is(err, sql.ErrNoRows) {
		return false, nil
	}
	if err != nil {
		return false, fmt.Errorf("failed to check migration %s: %w", id, err)
	}
	return true, nil
}

// RecordApplied implements ledger.Ledger.
func (l *Ledger) RecordApplied(ctx context.Context, entry migrate.LedgerEntry) error {
	if entry.ID > migrate.MaxID {
		return fmt.Errorf("failed to record migration %s: id exceeds %s", entry.ID, migrate.MaxID)
	}
	applied, err := l.IsApplied(ctx, entry.ID)
	if err != nil {
		return err
	}
	if applied {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyRecorded, entry.ID)
	}

	appliedAt := entry.AppliedAt
	if appliedAt.IsZero() {
		appliedAt = time.Now()
	}

	d := l.dialect
	query := fmt.Sprintf(`INSERT INTO %s (id, name, checksum, applied_at, execution_ms) VALUES (%s, %s, %s, %s, %s)`,
		d.QuoteIdent(l.table), d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5))

	_, err = l.q.ExecContext(ctx, query,
		int64(entry.ID),
		entry.Name,
		entry.Checksum,
		appliedAt.UTC(),
		entry.ExecutionTime.Milliseconds(),
	)
	if err != nil {
		return fmt.Errorf("failed to record migration %s: %w", entry.ID, err)
	}
	return nil
}

// RecordReverted implements ledger.Ledger.
func (l *Ledger) RecordReverted(ctx context.Context, id migrate.ID) error {
	query := fmt.Sprintf(`DELETE FROM %s WHERE id = %s`, l.dialect.QuoteIdent(l.table), l.dialect.Placeholder(1))

	result, err := l.q.ExecContext(ctx, query, int64(id))
	if err != nil {
		return fmt.Errorf("failed to remove migration %s: %w", id, err)
	}

	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("%w: %s", ledger.ErrNotRecorded, id)
	}
	return nil
}

// AppliedIDs implements ledger.Ledger.
func (l *Ledger) AppliedIDs(ctx context.Context) ([]migrate.ID, error) {
	query := fmt.Sprintf(`SELECT id FROM %s ORDER BY id ASC`, l.dialect.QuoteIdent(l.table))

	rows, err := l.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list applied migrations: %w", err)
	}
	defer rows.Close()

	var ids []migrate.ID
	for rows.Next() {
		var id int64
		if err := rows.Scan(&id); err != nil {
			return nil, fmt.Errorf("failed to scan migration id: %w", err)
		}
		ids = append(ids, migrate.ID(id))
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating applied migrations: %w", err)
	}
	return ids, nil
}

// Entries implements ledger.Ledger.
func (l *Ledger) Entries(ctx context.Context) ([]migrate.LedgerEntry, error) {
	query := fmt.Sprintf(`SELECT id, name, checksum, applied_at, execution_ms FROM %s ORDER BY id ASC`, l.dialect.QuoteIdent(l.table))

	rows, err := l.q.QueryContext(ctx, query)
	if err != nil {
		return nil, fmt.Errorf("failed to list ledger entries: %w", err)
	}
	defer rows.Close()

	var entries []migrate.LedgerEntry
	for rows.Next() {
		var (
			id        int64
			entry     migrate.LedgerEntry
			appliedAt timestamp
			execMS    int64
		)
		if err := rows.Scan(&id, &entry.Name, &entry.Checksum, &appliedAt, &execMS); err != nil {
			return nil, fmt.Errorf("failed to scan ledger entry: %w", err)
		}
		entry.ID = migrate.ID(id)
		entry.AppliedAt = appliedAt.Time
		entry.ExecutionTime = time.Duration(execMS) * time.Millisecond
		entries = append(entries, entry)
	}
	if err := rows.Err(); err != nil {
		return nil, fmt.Errorf("error iterating ledger entries: %w", err)
	}
	return entries, nil
}
