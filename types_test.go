package migrate

import (
	"bytes"
	"errors"
	"fmt"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestNewID(t *testing.T) {
	ts := time.Date(2023, 1, 2, 12, 0, 0, 0, time.UTC)

	assert.Equal(t, ID(20230102120000), NewID(ts))
	assert.Equal(t, "20230102120000", NewID(ts).String())
}

func TestNewID_ConvertsToUTC(t *testing.T) {
	loc := time.FixedZone("plus2", 2*60*60)
	ts := time.Date(2023, 1, 2, 14, 0, 0, 0, loc)

	assert.Equal(t, ID(20230102120000), NewID(ts))
}

func TestParseID(t *testing.T) {
	t.Run("plain digits", func(t *testing.T) {
		id, err := ParseID("20230101120000")
		require.NoError(t, err)
		assert.Equal(t, ID(20230101120000), id)
	})

	t.Run("file name prefix", func(t *testing.T) {
		id, err := ParseID("20230101120000_create_users.yaml")
		require.NoError(t, err)
		assert.Equal(t, ID(20230101120000), id)
	})

	t.Run("small sequence numbers", func(t *testing.T) {
		id, err := ParseID("7_add_index")
		require.NoError(t, err)
		assert.Equal(t, ID(7), id)
	})

	t.Run("no digits", func(t *testing.T) {
		_, err := ParseID("create_users")
		assert.Error(t, err)
	})

	t.Run("zero", func(t *testing.T) {
		_, err := ParseID("000_init")
		assert.Error(t, err)
	})

	t.Run("largest storable", func(t *testing.T) {
		id, err := ParseID("9223372036854775807_last")
		require.NoError(t, err)
		assert.Equal(t, MaxID, id)
	})

	t.Run("above signed range", func(t *testing.T) {
		_, err := ParseID("10000000000000000000_x.yaml")
		require.Error(t, err)
		assert.Contains(t, err.Error(), "exceeds")
	})
}

func TestIDOrderingIsNumeric(t *testing.T) {
	assert.True(t, ID(9) < ID(10))
	assert.True(t, ID(20230101120000) < ID(20230102120000))
}

func TestParseDirectiveKind(t *testing.T) {
	tests := []struct {
		in   string
		want DirectiveKind
	}{
		{"up", DirectiveApply},
		{"apply-all-pending", DirectiveApply},
		{"down", DirectiveRollback},
		{"rollback-N", DirectiveRollback},
		{"STATUS", DirectiveStatus},
		{"bootstrap-from-snapshot", DirectiveBootstrap},
	}

	for _, tt := range tests {
		t.Run(tt.in, func(t *testing.T) {
			got, err := ParseDirectiveKind(tt.in)
			require.NoError(t, err)
			assert.Equal(t, tt.want, got)
		})
	}

	_, err := ParseDirectiveKind("redo")
	assert.Error(t, err)
}

func TestErrorTaxonomy(t *testing.T) {
	t.Run("irreversible", func(t *testing.T) {
		err := fmt.Errorf("rollback: %w", &IrreversibleOperationError{Migration: 5, Operation: "drop_table users", Reason: "prior definition not captured"})

		assert.ErrorIs(t, err, ErrIrreversibleOperation)
		var target *IrreversibleOperationError
		require.ErrorAs(t, err, &target)
		assert.Equal(t, ID(5), target.Migration)
		assert.Contains(t, err.Error(), "drop_table users")
	})

	t.Run("duplicate", func(t *testing.T) {
		err := &DuplicateMigrationIDError{ID: 42, Names: []string{"a", "b"}}

		assert.ErrorIs(t, err, ErrDuplicateMigrationID)
		assert.Contains(t, err.Error(), "a, b")
	})

	t.Run("operation apply unwraps driver error", func(t *testing.T) {
		driverErr := errors.New("syntax error at or near")
		err := &OperationApplyError{Migration: 1, Index: 2, Operation: "add_column", Err: driverErr}

		assert.ErrorIs(t, err, ErrOperationApply)
		assert.ErrorIs(t, err, driverErr)
		assert.Contains(t, err.Error(), "syntax error")
	})

	t.Run("lock contention", func(t *testing.T) {
		err := &LockContentionError{Key: "migrate", Holder: "owner-1"}

		assert.ErrorIs(t, err, ErrLockContention)
		assert.Contains(t, err.Error(), "owner-1")
	})

	t.Run("partial failure unwraps cause", func(t *testing.T) {
		cause := &OperationApplyError{Migration: 3, Err: errors.New("boom")}
		report := &ExecutionReport{
			Direction: DirectionForward,
			Succeeded: []MigrationResult{{ID: 1}, {ID: 2}},
			Failed:    &MigrationResult{ID: 3, Err: cause},
			Cause:     cause,
		}
		err := &PartialFailureError{Report: report}

		assert.ErrorIs(t, err, ErrPartialFailure)
		assert.ErrorIs(t, err, ErrOperationApply)
		assert.Contains(t, err.Error(), "after 2 of plan")
	})

	t.Run("missing migration", func(t *testing.T) {
		err := &MissingMigrationError{ID: 9}

		assert.ErrorIs(t, err, ErrMissingMigration)
	})
}

func TestExecutionReport(t *testing.T) {
	t.Run("nil report", func(t *testing.T) {
		var r *ExecutionReport

		assert.Equal(t, 0, r.Applied())
		assert.False(t, r.Halted())
		assert.Nil(t, r.SucceededIDs())
	})

	t.Run("halted report", func(t *testing.T) {
		start := time.Now()
		r := &ExecutionReport{
			RunID:      "run-1",
			Direction:  DirectionForward,
			Succeeded:  []MigrationResult{{ID: 1, Name: "CreateUsers"}},
			Skipped:    []ID{0},
			Failed:     &MigrationResult{ID: 2, Name: "AddEmail"},
			Cause:      errors.New("boom"),
			RolledBack: true,
			StartedAt:  start,
			FinishedAt: start.Add(time.Second),
		}

		assert.Equal(t, 1, r.Applied())
		assert.True(t, r.Halted())
		assert.Equal(t, []ID{1}, r.SucceededIDs())

		var buf bytes.Buffer
		require.NoError(t, r.Write(&buf))
		assert.Contains(t, buf.String(), "applied  1 CreateUsers")
		assert.Contains(t, buf.String(), "failed   2 AddEmail: boom (rolled back)")
	})

	t.Run("backward wording", func(t *testing.T) {
		r := &ExecutionReport{Direction: DirectionBackward, Succeeded: []MigrationResult{{ID: 2, Name: "AddEmail"}}}

		var buf bytes.Buffer
		require.NoError(t, r.Write(&buf))
		assert.Contains(t, buf.String(), "reverted 2 AddEmail")
	})
}

func TestStatus(t *testing.T) {
	s := Status{
		Applied: []LedgerEntry{{ID: 3}, {ID: 1}},
	}

	assert.Equal(t, ID(3), s.Current())
	assert.True(t, s.Clean())

	s.Drifted = []ID{1}
	assert.False(t, s.Clean())
	assert.Equal(t, ID(0), Status{}.Current())
}
