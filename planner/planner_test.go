package planner

import (
	"context"
	"errors"
	"math/rand"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/ledger"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

func mig(id migrate.ID, name string) migration.Migration {
	return migration.Migration{
		ID:   id,
		Name: name,
		Up:   []operation.Operation{operation.Execute{SQL: "SELECT " + name}},
	}
}

func ids(ms []migration.Migration) []migrate.ID {
	out := make([]migrate.ID, 0, len(ms))
	for _, m := range ms {
		out = append(out, m.ID)
	}
	return out
}

func scenario() []migration.Migration {
	return []migration.Migration{
		{
			ID:   20230102120000,
			Name: "AddEmailToUsers",
			Up: []operation.Operation{
				operation.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: schema.TypeString, Nullable: true}},
			},
		},
		{
			ID:   20230101120000,
			Name: "CreateUsers",
			Up: []operation.Operation{
				operation.CreateTable{Table: schema.Table{Name: "users", Columns: []schema.Column{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}}}},
			},
		},
	}
}

func TestPlanForward_Scenario(t *testing.T) {
	plan, err := PlanForward(scenario(), nil)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230101120000, 20230102120000}, ids(plan))
	assert.Equal(t, "CreateUsers", plan[0].Name)
}

func TestPlanForward_ExactlyAbsentSorted(t *testing.T) {
	rng := rand.New(rand.NewSource(1))

	for round := 0; round < 50; round++ {
		var discovered []migration.Migration
		var applied []migrate.ID
		want := map[migrate.ID]bool{}

		for _, id := range rng.Perm(30) {
			m := mig(migrate.ID(id+1), "m")
			discovered = append(discovered, m)
			if rng.Intn(2) == 0 {
				applied = append(applied, m.ID)
			} else {
				want[m.ID] = true
			}
		}

		plan, err := PlanForward(discovered, applied)
		require.NoError(t, err)
		require.Len(t, plan, len(want))
		for i, m := range plan {
			assert.True(t, want[m.ID])
			if i > 0 {
				assert.Less(t, plan[i-1].ID, m.ID)
			}
		}
	}
}

func TestPlanForwardTo(t *testing.T) {
	discovered := []migration.Migration{mig(3, "c"), mig(1, "a"), mig(2, "b")}

	plan, err := PlanForwardTo(discovered, []migrate.ID{1}, 2)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{2}, ids(plan))
}

func TestDuplicateIDsAreFatal(t *testing.T) {
	discovered := []migration.Migration{mig(5, "FromBranchB"), mig(5, "FromBranchA"), mig(1, "a")}

	_, err := PlanForward(discovered, nil)
	var dup *migrate.DuplicateMigrationIDError
	require.ErrorAs(t, err, &dup)
	assert.Equal(t, migrate.ID(5), dup.ID)
	assert.Equal(t, []string{"FromBranchA", "FromBranchB"}, dup.Names)

	_, err = PlanBackward(discovered, []migrate.ID{1}, 1)
	assert.ErrorIs(t, err, migrate.ErrDuplicateMigrationID)

	_, err = Status(discovered, nil)
	assert.ErrorIs(t, err, migrate.ErrDuplicateMigrationID)
}

func TestPlanBackward(t *testing.T) {
	discovered := scenario()
	applied := []migrate.ID{20230101120000, 20230102120000}

	plan, err := PlanBackward(discovered, applied, 1)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230102120000}, ids(plan))

	plan, err = PlanBackward(discovered, applied, 10)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230102120000, 20230101120000}, ids(plan))

	plan, err = PlanBackward(discovered, applied, 0)
	require.NoError(t, err)
	assert.Empty(t, plan)

	_, err = PlanBackward(discovered, applied, -1)
	assert.Error(t, err)
}

func TestPlanBackward_OnlyAppliedAreCandidates(t *testing.T) {
	// 3 is discovered but not applied: rollback skips it
	discovered := []migration.Migration{mig(1, "a"), mig(2, "b"), mig(3, "c")}

	plan, err := PlanBackward(discovered, []migrate.ID{1, 2}, 1)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{2}, ids(plan))
}

func TestPlanBackward_MissingDefinition(t *testing.T) {
	_, err := PlanBackward([]migration.Migration{mig(1, "a")}, []migrate.ID{1, 9}, 1)

	var missing *migrate.MissingMigrationError
	require.ErrorAs(t, err, &missing)
	assert.Equal(t, migrate.ID(9), missing.ID)
}

func TestStatus(t *testing.T) {
	a, b, c := mig(1, "a"), mig(2, "b"), mig(3, "c")
	entries := []migrate.LedgerEntry{
		{ID: 2, Name: "b", Checksum: "stale"},
		{ID: 1, Name: "a", Checksum: a.Checksum()},
		{ID: 7, Name: "gone"},
	}

	status, err := Status([]migration.Migration{c, b, a}, entries)
	require.NoError(t, err)

	assert.Equal(t, migrate.ID(1), status.Applied[0].ID)
	assert.Equal(t, []migrate.PendingMigration{{ID: 3, Name: "c"}}, status.Pending)
	assert.Equal(t, []migrate.ID{7}, status.Missing)
	assert.Equal(t, []migrate.ID{2}, status.Drifted)
	assert.False(t, status.Clean())
	assert.Equal(t, migrate.ID(7), status.Current())
}

func TestStatus_BootstrapEntriesNeverDrift(t *testing.T) {
	status, err := Status([]migration.Migration{mig(1, "a")}, []migrate.LedgerEntry{{ID: 1}})
	require.NoError(t, err)
	assert.True(t, status.Clean())
}

func TestPlanner(t *testing.T) {
	ctx := context.Background()
	mock := ledger.NewMockLedger()
	mock.AppliedIDsFunc = func(ctx context.Context) ([]migrate.ID, error) {
		return []migrate.ID{20230101120000}, nil
	}
	p := New(mock, scenario())

	plan, err := p.Forward(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230102120000}, ids(plan))

	plan, err = p.Backward(ctx, 1)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230101120000}, ids(plan))

	applied, err := p.Applied(ctx)
	require.NoError(t, err)
	assert.Equal(t, []migrate.ID{20230101120000}, ids(applied))

	assert.Equal(t, 3, mock.AppliedIDsCalls)
}

func TestPlanner_LedgerError(t *testing.T) {
	boom := errors.New("connection refused")
	mock := ledger.NewMockLedger()
	mock.AppliedIDsFunc = func(ctx context.Context) ([]migrate.ID, error) { return nil, boom }
	mock.EntriesFunc = func(ctx context.Context) ([]migrate.LedgerEntry, error) { return nil, boom }
	p := New(mock, scenario())

	_, err := p.Forward(context.Background())
	assert.ErrorIs(t, err, boom)

	_, err = p.Status(context.Background())
	assert.ErrorIs(t, err, boom)
}
