package executor

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
)

var _ Runner = (*MockRunner)(nil)

func TestMockRunner_DefaultReportsEverySucceeded(t *testing.T) {
	mock := NewMockRunner()
	ctx := context.Background()

	report, err := mock.RunForward(ctx, []migration.Migration{createUsers(), addEmail()})
	require.NoError(t, err)
	assert.Equal(t, migrate.DirectionForward, report.Direction)
	assert.Equal(t, []migrate.ID{20230101120000, 20230102120000}, report.SucceededIDs())

	report, err = mock.RunBackward(ctx, []migration.Migration{addEmail()})
	require.NoError(t, err)
	assert.Equal(t, migrate.DirectionBackward, report.Direction)
	assert.Equal(t, 1, report.Applied())
}

func TestMockRunner_RecordsCallsCorrectly(t *testing.T) {
	mock := NewMockRunner()
	ctx := context.Background()

	forward := []migration.Migration{createUsers()}
	backward := []migration.Migration{addEmail(), createUsers()}

	_, _ = mock.RunForward(ctx, forward)
	_, _ = mock.RunForward(ctx, []migration.Migration{createPosts()})
	_, _ = mock.RunBackward(ctx, backward)

	require.Len(t, mock.ForwardCalls, 2)
	assert.Equal(t, forward, mock.ForwardCalls[0])
	assert.Equal(t, "CreatePosts", mock.ForwardCalls[1][0].Name)
	require.Len(t, mock.BackwardCalls, 1)
	assert.Equal(t, backward, mock.BackwardCalls[0])
}

func TestMockRunner_CustomFuncs(t *testing.T) {
	mock := NewMockRunner()
	ctx := context.Background()

	mock.RunForwardFunc = func(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
		report := &migrate.ExecutionReport{Direction: migrate.DirectionForward, Cause: errors.New("boom")}
		return report, &migrate.PartialFailureError{Report: report}
	}
	mock.RunBackwardFunc = func(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
		return nil, errors.New("boom")
	}

	report, err := mock.RunForward(ctx, []migration.Migration{createUsers()})
	assert.ErrorIs(t, err, migrate.ErrPartialFailure)
	assert.Equal(t, 0, report.Applied())

	_, err = mock.RunBackward(ctx, nil)
	assert.EqualError(t, err, "boom")

	assert.Len(t, mock.ForwardCalls, 1)
	assert.Len(t, mock.BackwardCalls, 1)
}

func TestMockRunner_Reset(t *testing.T) {
	mock := NewMockRunner()
	ctx := context.Background()

	_, _ = mock.RunForward(ctx, []migration.Migration{createUsers()})
	_, _ = mock.RunBackward(ctx, []migration.Migration{createUsers()})

	mock.Reset()

	assert.Empty(t, mock.ForwardCalls)
	assert.Empty(t, mock.BackwardCalls)
}
