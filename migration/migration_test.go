package migration

import (
	"context"
	"errors"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

type recordingApplier struct {
	ops    []operation.Operation
	failAt int
	err    error
}

func (r *recordingApplier) ExecuteDDL(_ context.Context, op operation.Operation) error {
	if r.err != nil && len(r.ops) == r.failAt {
		return r.err
	}
	r.ops = append(r.ops, op)
	return nil
}

func createUsers() Migration {
	return Migration{
		ID:   20230101120000,
		Name: "CreateUsers",
		Up: []operation.Operation{
			operation.CreateTable{Table: schema.Table{
				Name:    "users",
				Columns: []schema.Column{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}},
			}},
		},
	}
}

func addEmail() Migration {
	return Migration{
		ID:   20230102120000,
		Name: "AddEmailToUsers",
		Up: []operation.Operation{
			operation.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: schema.TypeString, Nullable: true}},
			operation.AddIndex{Index: schema.Index{Name: "users_email_idx", Table: "users", Columns: []string{"email"}, Unique: true}},
		},
	}
}

func TestValidate(t *testing.T) {
	assert.NoError(t, createUsers().Validate())

	noID := createUsers()
	noID.ID = 0
	assert.ErrorIs(t, noID.Validate(), ErrInvalidMigration)

	noName := createUsers()
	noName.Name = ""
	assert.ErrorIs(t, noName.Validate(), ErrInvalidMigration)

	noOps := createUsers()
	noOps.Up = nil
	assert.ErrorIs(t, noOps.Validate(), ErrInvalidMigration)

	tooLarge := createUsers()
	tooLarge.ID = migrate.MaxID + 1
	assert.ErrorIs(t, tooLarge.Validate(), ErrInvalidMigration)

	largest := createUsers()
	largest.ID = migrate.MaxID
	assert.NoError(t, largest.Validate())
}

func TestDerivedDownIsReverseInverse(t *testing.T) {
	down, err := addEmail().DownOperations()
	require.NoError(t, err)
	require.Len(t, down, 2)

	assert.Equal(t, operation.KindRemoveIndex, down[0].Kind())
	assert.Equal(t, operation.KindRemoveColumn, down[1].Kind())
}

func TestExplicitDownWins(t *testing.T) {
	m := addEmail()
	m.Down = []operation.Operation{operation.Execute{SQL: "SELECT 1"}}

	down, err := m.DownOperations()
	require.NoError(t, err)
	assert.Equal(t, m.Down, down)
}

func TestIrreversibleCarriesMigrationID(t *testing.T) {
	m := Migration{
		ID:   7,
		Name: "DropLegacy",
		Up:   []operation.Operation{operation.DropTable{Name: "legacy"}},
	}

	assert.False(t, m.Reversible())

	_, err := m.DownOperations()
	var irr *migrate.IrreversibleOperationError
	require.ErrorAs(t, err, &irr)
	assert.Equal(t, migrate.ID(7), irr.Migration)

	applier := &recordingApplier{}
	err = m.Backward(context.Background(), applier)
	assert.ErrorIs(t, err, migrate.ErrIrreversibleOperation)
	assert.Empty(t, applier.ops, "irreversible rollback must not touch the store")
}

func TestForwardBackward(t *testing.T) {
	ctx := context.Background()
	applier := &recordingApplier{}

	require.NoError(t, addEmail().Forward(ctx, applier))
	require.NoError(t, addEmail().Backward(ctx, applier))

	kinds := make([]operation.Kind, 0, len(applier.ops))
	for _, op := range applier.ops {
		kinds = append(kinds, op.Kind())
	}
	assert.Equal(t, []operation.Kind{
		operation.KindAddColumn, operation.KindAddIndex,
		operation.KindRemoveIndex, operation.KindRemoveColumn,
	}, kinds)
}

func TestForward_StopsAtFirstFailure(t *testing.T) {
	driverErr := errors.New("index already exists")
	applier := &recordingApplier{failAt: 1, err: driverErr}

	err := addEmail().Forward(context.Background(), applier)

	var applyErr *migrate.OperationApplyError
	require.ErrorAs(t, err, &applyErr)
	assert.Equal(t, migrate.ID(20230102120000), applyErr.Migration)
	assert.Equal(t, 1, applyErr.Index)
	assert.ErrorIs(t, err, driverErr)
	assert.Len(t, applier.ops, 1)
}

func TestFoldUnfoldRoundTrip(t *testing.T) {
	def, err := createUsers().Fold(schema.Empty())
	require.NoError(t, err)

	after, err := addEmail().Fold(def)
	require.NoError(t, err)
	users, _ := after.Table("users")
	_, ok := users.Column("email")
	assert.True(t, ok)

	back, err := addEmail().Unfold(after)
	require.NoError(t, err)
	assert.True(t, def.Equal(back))
}

func TestChecksum(t *testing.T) {
	a := addEmail().Checksum()
	assert.Len(t, a, 64)
	assert.Equal(t, a, addEmail().Checksum())

	edited := addEmail()
	edited.Up = edited.Up[:1]
	assert.NotEqual(t, a, edited.Checksum())
}

func TestSort(t *testing.T) {
	ms := []Migration{addEmail(), createUsers()}
	Sort(ms)
	assert.Equal(t, migrate.ID(20230101120000), ms[0].ID)
}

func TestCapturePriors(t *testing.T) {
	drop := Migration{
		ID:   20230103120000,
		Name: "DropEmail",
		Up: []operation.Operation{
			operation.RemoveIndex{Table: "users", Name: "users_email_idx"},
			operation.RemoveColumn{Table: "users", Name: "email"},
		},
	}
	assert.False(t, drop.Reversible())

	captured, err := CapturePriors([]Migration{drop, addEmail(), createUsers()})
	require.NoError(t, err)
	require.Len(t, captured, 3)
	assert.Equal(t, drop.ID, captured[2].ID)
	assert.True(t, captured[2].Reversible())
	assert.Equal(t, drop.Checksum(), captured[2].Checksum())

	// input untouched
	assert.Nil(t, drop.Up[1].(operation.RemoveColumn).Prior)
}

func TestCapturePriors_BrokenHistory(t *testing.T) {
	_, err := CapturePriors([]Migration{addEmail()})
	assert.ErrorIs(t, err, schema.ErrTableNotFound)
}
