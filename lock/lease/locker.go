// Package lease implements lock.Locker as rows of a lock table with an expiry that the
// holder pushes forward on every heartbeat. A crashed holder stops heartbeating and its row
// becomes available once it expires.
package lease

import (
	"context"
	"database/sql"
	"errors"
	"fmt"
	"time"

	"github.com/google/uuid"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/lifecycle"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/metrics"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// TableConfig configures the lock table name.
type TableConfig struct {
	// LockTable is the name of the table storing lock leases.
	LockTable string
}

// DefaultTableConfig returns the default table configuration.
func DefaultTableConfig() TableConfig {
	return TableConfig{
		LockTable: "schema_migrations_lock",
	}
}

// Validate checks that the table name is a safe identifier.
func (c TableConfig) Validate() error {
	return dialect.ValidateIdentifier(c.LockTable, "LockTable")
}

// LockTable returns the definition of the lock table. Times are unix milliseconds.
func LockTable(name string) schema.Table {
	return schema.Table{
		Name: name,
		Columns: []schema.Column{
			{Name: "lock_key", Type: schema.TypeString, Size: 255, PrimaryKey: true},
			{Name: "holder", Type: schema.TypeString, Size: 64},
			{Name: "acquired_at", Type: schema.TypeBigInt},
			{Name: "expires_at", Type: schema.TypeBigInt},
		},
	}
}

// Config configures the lease locker.
type Config struct {
	// Dialect renders the lock table queries (required).
	Dialect dialect.Dialect

	// Table names the lock table (default: schema_migrations_lock).
	Table TableConfig

	// TTL is how long a lease survives without a heartbeat (default: 30s).
	TTL time.Duration

	// HeartbeatInterval is the renewal interval (default: TTL/3).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger migrate.Logger

	// Metrics records heartbeat latency and lost leases (optional).
	Metrics *metrics.Collector

	// Now returns the current time (default: time.Now).
	Now func() time.Time
}

// Locker is a table-backed lock.Locker.
type Locker struct {
	db     *sql.DB
	config Config
	table  string
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker on db with the given configuration.
func New(db *sql.DB, cfg Config) *Locker {
	if cfg.Table.LockTable == "" {
		cfg.Table = DefaultTableConfig()
	}
	if cfg.TTL == 0 {
		cfg.TTL = 30 * time.Second
	}
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = cfg.TTL / 3
	}
	if cfg.Now == nil {
		cfg.Now = time.Now
	}
	return &Locker{
		db:     db,
		config: cfg,
		table:  cfg.Dialect.QuoteIdent(cfg.Table.LockTable),
	}
}

// Provision creates the lock table if it does not exist.
func (l *Locker) Provision(ctx context.Context) error {
	stmts, err := l.config.Dialect.Statements(operation.CreateTable{Table: LockTable(l.config.Table.LockTable), IfNotExists: true})
	if err != nil {
		return fmt.Errorf("failed to render lock table: %w", err)
	}
	for _, stmt := range stmts {
		if _, err := l.db.ExecContext(ctx, stmt); err != nil {
			return fmt.Errorf("failed to provision lock table: %w", err)
		}
	}
	return nil
}

// Acquire implements lock.Locker. It provisions the lock table, then claims the key when it
// is free or its holder's lease has expired.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	if err := l.Provision(ctx); err != nil {
		return nil, err
	}

	holder := uuid.NewString()
	if err := l.claim(ctx, key, holder); err != nil {
		return nil, err
	}

	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "lock acquired", "key", key, "holder", holder)
	}

	return lock.StartHeartbeat(lifecycle.Config{
		Key:               key,
		HeartbeatInterval: l.config.HeartbeatInterval,
		Logger:            l.config.Logger,
		Metrics:           l.config.Metrics,
		Renewer: lifecycle.RenewFunc(func(ctx context.Context) error {
			return l.renew(ctx, key, holder)
		}),
	}, func(ctx context.Context) error {
		return l.release(ctx, key, holder)
	}), nil
}

func (l *Locker) claim(ctx context.Context, key, holder string) error {
	d := l.config.Dialect
	now := l.config.Now()
	nowMS := now.UnixMilli()
	expiresMS := now.Add(l.config.TTL).UnixMilli()

	tx, err := l.db.BeginTx(ctx, nil)
	if err != nil {
		return fmt.Errorf("failed to begin lock transaction: %w", err)
	}
	defer func() { _ = tx.Rollback() }()

	var (
		current   string
		currentEx int64
	)
	selectQuery := fmt.Sprintf(`SELECT holder, expires_at FROM %s WHERE lock_key = %s`, l.table, d.Placeholder(1))
	err = tx.QueryRowContext(ctx, selectQuery, key).Scan(&current, &currentEx)

	switch {
	case errors.Is(err, sql.ErrNoRows):
		insert := fmt.Sprintf(`INSERT INTO %s (lock_key, holder, acquired_at, expires_at) VALUES (%s, %s, %s, %s)`,
			l.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4))
		if _, err := tx.ExecContext(ctx, insert, key, holder, nowMS, expiresMS); err != nil {
			_ = tx.Rollback()
			return l.contentionOr(ctx, key, fmt.Errorf("failed to insert lock row: %w", err))
		}

	case err != nil:
		return fmt.Errorf("failed to read lock %s: %w", key, err)

	case currentEx > nowMS:
		return &migrate.LockContentionError{Key: key, Holder: current}

	default:
		update := fmt.Sprintf(`UPDATE %s SET holder = %s, acquired_at = %s, expires_at = %s WHERE lock_key = %s AND holder = %s AND expires_at = %s`,
			l.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3), d.Placeholder(4), d.Placeholder(5), d.Placeholder(6))
		result, err := tx.ExecContext(ctx, update, holder, nowMS, expiresMS, key, current, currentEx)
		if err != nil {
			return fmt.Errorf("failed to take over lock %s: %w", key, err)
		}
		rowsAffected, err := result.RowsAffected()
		if err != nil {
			return fmt.Errorf("failed to get rows affected: %w", err)
		}
		if rowsAffected == 0 {
			return &migrate.LockContentionError{Key: key, Holder: current}
		}
		if l.config.Logger != nil {
			l.config.Logger.Info(ctx, "took over expired lock", "key", key, "previous_holder", current)
		}
	}

	if err := tx.Commit(); err != nil {
		return fmt.Errorf("failed to commit lock %s: %w", key, err)
	}
	return nil
}

// contentionOr reports a concurrent claim as contention and any other failure as cause.
func (l *Locker) contentionOr(ctx context.Context, key string, cause error) error {
	holder, ok, err := l.Holder(ctx, key)
	if err != nil || !ok {
		return cause
	}
	return &migrate.LockContentionError{Key: key, Holder: holder}
}

// Holder returns the current unexpired holder of key.
func (l *Locker) Holder(ctx context.Context, key string) (string, bool, error) {
	query := fmt.Sprintf(`SELECT holder, expires_at FROM %s WHERE lock_key = %s`, l.table, l.config.Dialect.Placeholder(1))

	var (
		holder  string
		expires int64
	)
	err := l.db.QueryRowContext(ctx, query, key).Scan(&holder, &expires)
	if errors.Is(err, sql.ErrNoRows) {
		return "", false, nil
	}
	if err != nil {
		return "", false, fmt.Errorf("failed to read lock %s: %w", key, err)
	}
	if expires <= l.config.Now().UnixMilli() {
		return "", false, nil
	}
	return holder, true, nil
}

func (l *Locker) renew(ctx context.Context, key, holder string) error {
	d := l.config.Dialect
	query := fmt.Sprintf(`UPDATE %s SET expires_at = %s WHERE lock_key = %s AND holder = %s`,
		l.table, d.Placeholder(1), d.Placeholder(2), d.Placeholder(3))

	result, err := l.db.ExecContext(ctx, query, l.config.Now().Add(l.config.TTL).UnixMilli(), key, holder)
	if err != nil {
		return fmt.Errorf("failed to renew lock %s: %w", key, err)
	}
	rowsAffected, err := result.RowsAffected()
	if err != nil {
		return fmt.Errorf("failed to get rows affected: %w", err)
	}
	if rowsAffected == 0 {
		return fmt.Errorf("lock %s: %w", key, migrate.ErrLockLost)
	}
	return nil
}

func (l *Locker) release(ctx context.Context, key, holder string) error {
	d := l.config.Dialect
	query := fmt.Sprintf(`DELETE FROM %s WHERE lock_key = %s AND holder = %s`, l.table, d.Placeholder(1), d.Placeholder(2))

	if _, err := l.db.ExecContext(ctx, query, key, holder); err != nil {
		return fmt.Errorf("failed to release lock %s: %w", key, err)
	}
	if l.config.Logger != nil {
		l.config.Logger.Debug(ctx, "lock released", "key", key, "holder", holder)
	}
	return nil
}
