package lease

import (
	"context"
	"database/sql"
	"fmt"
	"path/filepath"
	"sync"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	_ "modernc.org/sqlite"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
)

func openSQLite(t *testing.T) *sql.DB {
	t.Helper()
	db, err := sql.Open("sqlite", filepath.Join(t.TempDir(), "lock.db"))
	require.NoError(t, err)
	db.SetMaxOpenConns(1)
	t.Cleanup(func() { db.Close() })
	return db
}

type fakeClock struct {
	mu  sync.Mutex
	now time.Time
}

func (c *fakeClock) Now() time.Time {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.now
}

func (c *fakeClock) Advance(d time.Duration) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.now = c.now.Add(d)
}

func TestTableConfig(t *testing.T) {
	assert.NoError(t, DefaultTableConfig().Validate())
	assert.Error(t, TableConfig{LockTable: "drop table;"}.Validate())

	l := New(nil, Config{Dialect: dialect.Postgres, Table: TableConfig{LockTable: "app_lock"}})
	assert.Equal(t, `"app_lock"`, l.table)
	assert.Equal(t, 10*time.Second, l.config.HeartbeatInterval)
}

func TestAcquire_Exclusive(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	a := New(db, Config{Dialect: dialect.SQLite})
	b := New(db, Config{Dialect: dialect.SQLite})

	lease, err := a.Acquire(ctx, "migrations")
	require.NoError(t, err)

	holder, held, err := a.Holder(ctx, "migrations")
	require.NoError(t, err)
	assert.True(t, held)

	_, err = b.Acquire(ctx, "migrations")
	var contention *migrate.LockContentionError
	require.ErrorAs(t, err, &contention)
	assert.Equal(t, holder, contention.Holder)

	require.NoError(t, lease.Release(ctx))

	_, held, err = a.Holder(ctx, "migrations")
	require.NoError(t, err)
	assert.False(t, held)

	again, err := b.Acquire(ctx, "migrations")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquire_TakesOverExpiredLease(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	clock := &fakeClock{now: time.Date(2023, 1, 1, 0, 0, 0, 0, time.UTC)}
	a := New(db, Config{Dialect: dialect.SQLite, TTL: time.Minute, HeartbeatInterval: time.Hour, Now: clock.Now})
	b := New(db, Config{Dialect: dialect.SQLite, TTL: time.Minute, HeartbeatInterval: time.Hour, Now: clock.Now})

	stale, err := a.Acquire(ctx, "migrations")
	require.NoError(t, err)

	clock.Advance(2 * time.Minute)
	fresh, err := b.Acquire(ctx, "migrations")
	require.NoError(t, err)

	// releasing the stale lease leaves the new holder in place
	require.NoError(t, stale.Release(ctx))
	_, held, err := b.Holder(ctx, "migrations")
	require.NoError(t, err)
	assert.True(t, held)

	require.NoError(t, fresh.Release(ctx))
}

func TestHeartbeat_ReportsLostLease(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	l := New(db, Config{Dialect: dialect.SQLite, TTL: time.Minute, HeartbeatInterval: 10 * time.Millisecond})

	lease, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	defer lease.Release(ctx)

	_, err = db.ExecContext(ctx, fmt.Sprintf(`UPDATE %s SET holder = 'intruder'`, l.table))
	require.NoError(t, err)

	select {
	case <-lease.Lost():
	case <-time.After(2 * time.Second):
		t.Fatal("lost lease not reported")
	}
}

func TestHeartbeat_ExtendsExpiry(t *testing.T) {
	ctx := context.Background()
	db := openSQLite(t)
	l := New(db, Config{Dialect: dialect.SQLite, TTL: 100 * time.Millisecond, HeartbeatInterval: 20 * time.Millisecond})

	lease, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	defer lease.Release(ctx)

	time.Sleep(250 * time.Millisecond)
	_, held, err := l.Holder(ctx, "migrations")
	require.NoError(t, err)
	assert.True(t, held)
}
