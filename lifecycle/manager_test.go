package lifecycle

import (
	"context"
	"errors"
	"sync/atomic"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/getpup/pupsourcing-migrate"
)

func TestNew_AppliesDefaults(t *testing.T) {
	manager := New(Config{})
	assert.Equal(t, 5*time.Second, manager.Interval())
}

func TestHeartbeat_CalledAtConfiguredInterval(t *testing.T) {
	var heartbeatCount atomic.Int32
	manager := New(Config{
		Renewer: RenewFunc(func(ctx context.Context) error {
			heartbeatCount.Add(1)
			return nil
		}),
		HeartbeatInterval: 50 * time.Millisecond,
	})

	ctx, cancel := context.WithTimeout(context.Background(), 150*time.Millisecond)
	defer cancel()

	err := manager.StartHeartbeat(ctx)

	require.NoError(t, err)
	assert.GreaterOrEqual(t, heartbeatCount.Load(), int32(2), "expected at least 2 heartbeats in 150ms with 50ms interval")
	assert.LessOrEqual(t, heartbeatCount.Load(), int32(4), "expected at most 4 heartbeats in 150ms with 50ms interval")
}

func TestContextCancellation_StopsHeartbeat(t *testing.T) {
	manager := New(Config{
		Renewer:           RenewFunc(func(ctx context.Context) error { return nil }),
		HeartbeatInterval: 1 * time.Second,
	})

	ctx, cancel := context.WithCancel(context.Background())

	done := make(chan error)
	go func() {
		done <- manager.StartHeartbeat(ctx)
	}()

	cancel()

	select {
	case err := <-done:
		require.NoError(t, err)
	case <-time.After(100 * time.Millisecond):
		t.Fatal("StartHeartbeat did not return promptly after context cancellation")
	}
}

func TestHeartbeat_ReturnsRenewalError(t *testing.T) {
	manager := New(Config{
		Key: "migrations",
		Renewer: RenewFunc(func(ctx context.Context) error {
			return migrate.ErrLockLost
		}),
		HeartbeatInterval: 10 * time.Millisecond,
		Logger:            migrate.NewSlogLogger(nil),
	})

	ctx, cancel := context.WithTimeout(context.Background(), time.Second)
	defer cancel()

	err := manager.StartHeartbeat(ctx)
	assert.True(t, errors.Is(err, migrate.ErrLockLost))
}

func TestNilLogger_DoesntPanic(t *testing.T) {
	manager := New(Config{
		Renewer:           RenewFunc(func(ctx context.Context) error { return errors.New("gone") }),
		HeartbeatInterval: 10 * time.Millisecond,
	})

	assert.NotPanics(t, func() {
		_ = manager.StartHeartbeat(context.Background())
	})
}
