// Package advisory implements lock.Locker with database session locks: pg_try_advisory_lock
// on PostgreSQL and GET_LOCK on MySQL/MariaDB. The lock lives on a dedicated connection, so
// it disappears with the session if the process dies.
package advisory

import (
	"context"
	"crypto/sha256"
	"database/sql"
	"encoding/hex"
	"fmt"
	"hash/fnv"
	"time"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/lifecycle"
	"github.com/getpup/pupsourcing-migrate/lock"
	"github.com/getpup/pupsourcing-migrate/metrics"
)

// mysqlMaxLockName is the longest name GET_LOCK accepts.
const mysqlMaxLockName = 64

// Config configures the advisory locker.
type Config struct {
	// HeartbeatInterval is how often the session is pinged to detect a lost lock (default: 10s).
	HeartbeatInterval time.Duration

	// Logger is for observability (optional).
	Logger migrate.Logger

	// Metrics records heartbeat latency and lost leases (optional).
	Metrics *metrics.Collector
}

type backend interface {
	tryLock(ctx context.Context, conn *sql.Conn, key string) (bool, error)
	unlock(ctx context.Context, conn *sql.Conn, key string) error
	holder(ctx context.Context, db *sql.DB, key string) string
}

// Locker is a session advisory lock.Locker.
type Locker struct {
	db      *sql.DB
	config  Config
	backend backend
}

var _ lock.Locker = (*Locker)(nil)

// New creates a Locker for the dialect's database. SQLite has no session locks and is
// rejected with dialect.ErrUnsupported.
func New(db *sql.DB, d dialect.Dialect, cfg Config) (*Locker, error) {
	if cfg.HeartbeatInterval == 0 {
		cfg.HeartbeatInterval = 10 * time.Second
	}

	var b backend
	switch d.Name() {
	case dialect.Postgres.Name():
		b = postgresBackend{}
	case dialect.MySQL.Name():
		b = mysqlBackend{}
	default:
		return nil, fmt.Errorf("%w: advisory locks on %s", dialect.ErrUnsupported, d.Name())
	}

	return &Locker{db: db, config: cfg, backend: b}, nil
}

// Acquire implements lock.Locker.
func (l *Locker) Acquire(ctx context.Context, key string) (lock.Lease, error) {
	conn, err := l.db.Conn(ctx)
	if err != nil {
		return nil, fmt.Errorf("failed to acquire lock connection for %s: %w", key, err)
	}

	acquired, err := l.backend.tryLock(ctx, conn, key)
	if err != nil {
		conn.Close()
		return nil, fmt.Errorf("failed to acquire lock %s: %w", key, err)
	}
	if !acquired {
		conn.Close()
		return nil, &migrate.LockContentionError{Key: key, Holder: l.backend.holder(ctx, l.db, key)}
	}

	return lock.StartHeartbeat(lifecycle.Config{
		Key:               key,
		HeartbeatInterval: l.config.HeartbeatInterval,
		Logger:            l.config.Logger,
		Metrics:           l.config.Metrics,
		Renewer: lifecycle.RenewFunc(func(ctx context.Context) error {
			if err := conn.PingContext(ctx); err != nil {
				return fmt.Errorf("lock %s session: %w: %w", key, migrate.ErrLockLost, err)
			}
			return nil
		}),
	}, func(ctx context.Context) error {
		defer conn.Close()
		// the original ctx may already be cancelled
		if err := l.backend.unlock(context.WithoutCancel(ctx), conn, key); err != nil {
			return fmt.Errorf("failed to release lock %s: %w", key, err)
		}
		return nil
	}), nil
}

type postgresBackend struct{}

func (postgresBackend) tryLock(ctx context.Context, conn *sql.Conn, key string) (bool, error) {
	var acquired bool
	err := conn.QueryRowContext(ctx, `SELECT pg_try_advisory_lock($1)`, hashKey(key)).Scan(&acquired)
	return acquired, err
}

func (postgresBackend) unlock(ctx context.Context, conn *sql.Conn, key string) error {
	_, err := conn.ExecContext(ctx, `SELECT pg_advisory_unlock($1)`, hashKey(key))
	return err
}

func (postgresBackend) holder(ctx context.Context, db *sql.DB, key string) string {
	var pid int64
	err := db.QueryRowContext(ctx, `
		SELECT pid FROM pg_locks
		WHERE locktype = 'advisory' AND granted
		  AND ((classid::bigint << 32) | objid::bigint) = $1
		LIMIT 1`, hashKey(key)).Scan(&pid)
	if err != nil {
		return ""
	}
	return fmt.Sprintf("pid %d", pid)
}

type mysqlBackend struct{}

func (mysqlBackend) tryLock(ctx context.Context, conn *sql.Conn, key string) (bool, error) {
	var result sql.NullInt64
	if err := conn.QueryRowContext(ctx, `SELECT GET_LOCK(?, 0)`, mysqlLockName(key)).Scan(&result); err != nil {
		return false, err
	}
	return result.Valid && result.Int64 == 1, nil
}

func (mysqlBackend) unlock(ctx context.Context, conn *sql.Conn, key string) error {
	_, err := conn.ExecContext(ctx, `SELECT RELEASE_LOCK(?)`, mysqlLockName(key))
	return err
}

func (mysqlBackend) holder(ctx context.Context, db *sql.DB, key string) string {
	var id sql.NullInt64
	if err := db.QueryRowContext(ctx, `SELECT IS_USED_LOCK(?)`, mysqlLockName(key)).Scan(&id); err != nil || !id.Valid {
		return ""
	}
	return fmt.Sprintf("connection %d", id.Int64)
}

// hashKey converts a string key to a non-negative int64 using FNV-1a.
func hashKey(key string) int64 {
	h := fnv.New64a()
	_, _ = h.Write([]byte(key))
	return int64(h.Sum64() & 0x7FFFFFFFFFFFFFFF)
}

// mysqlLockName returns key, or a digest of it when key is too long for GET_LOCK.
func mysqlLockName(key string) string {
	if len(key) <= mysqlMaxLockName {
		return key
	}
	sum := sha256.Sum256([]byte(key))
	return hex.EncodeToString(sum[:])
}
