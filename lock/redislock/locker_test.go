package redislock

import (
	"context"
	"testing"
	"time"

	"github.com/alicebob/miniredis/v2"
	"github.com/redis/go-redis/v9"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/getpup/pupsourcing-migrate"
)

func newTestLocker(t *testing.T, cfg Config) (*Locker, *miniredis.Miniredis) {
	t.Helper()
	mr := miniredis.RunT(t)
	client := redis.NewClient(&redis.Options{Addr: mr.Addr()})
	t.Cleanup(func() { client.Close() })
	return New(client, cfg), mr
}

func TestNew_AppliesDefaults(t *testing.T) {
	l := New(nil, Config{})
	assert.Equal(t, "migrate:lock:", l.config.Prefix)
	assert.Equal(t, 30*time.Second, l.config.TTL)
	assert.Equal(t, 10*time.Second, l.config.HeartbeatInterval)
}

func TestAcquire_Exclusive(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t, Config{Prefix: "test:"})

	lease, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	assert.Equal(t, "migrations", lease.Key())
	assert.True(t, mr.Exists("test:migrations"))

	token, err := mr.Get("test:migrations")
	require.NoError(t, err)

	_, err = l.Acquire(ctx, "migrations")
	var contention *migrate.LockContentionError
	require.ErrorAs(t, err, &contention)
	assert.Equal(t, token, contention.Holder)

	require.NoError(t, lease.Release(ctx))
	assert.False(t, mr.Exists("test:migrations"))

	again, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	require.NoError(t, again.Release(ctx))
}

func TestAcquire_ExpiredLeaseIsFree(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t, Config{TTL: time.Second, HeartbeatInterval: time.Hour})

	stale, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)

	mr.FastForward(2 * time.Second)
	fresh, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)

	// the stale token cannot delete the new holder's key
	require.NoError(t, stale.Release(ctx))
	assert.True(t, mr.Exists("migrate:lock:migrations"))
	require.NoError(t, fresh.Release(ctx))
}

func TestHeartbeat_ExtendsTTL(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t, Config{TTL: time.Minute, HeartbeatInterval: 10 * time.Millisecond})

	lease, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	defer lease.Release(ctx)

	mr.SetTTL("migrate:lock:migrations", time.Second)
	require.Eventually(t, func() bool {
		return mr.TTL("migrate:lock:migrations") > time.Second
	}, time.Second, 10*time.Millisecond)
}

func TestHeartbeat_ReportsLostLease(t *testing.T) {
	ctx := context.Background()
	l, mr := newTestLocker(t, Config{TTL: time.Minute, HeartbeatInterval: 10 * time.Millisecond})

	lease, err := l.Acquire(ctx, "migrations")
	require.NoError(t, err)
	defer lease.Release(ctx)

	require.NoError(t, mr.Set("migrate:lock:migrations", "intruder"))

	select {
	case <-lease.Lost():
	case <-time.After(time.Second):
		t.Fatal("lost lease not reported")
	}
}
