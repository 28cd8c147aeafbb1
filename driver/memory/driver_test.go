package memory

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"

	"github.com/getpup/pupsourcing-migrate/driver"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

var createUsers = operation.CreateTable{Table: schema.Table{
	Name:    "users",
	Columns: []schema.Column{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}},
}}

var addEmail = operation.AddColumn{Table: "users", Column: schema.Column{Name: "email", Type: schema.TypeString, Nullable: true}}

func TestExecuteDDL(t *testing.T) {
	d := New()
	ctx := context.Background()

	require.NoError(t, d.ExecuteDDL(ctx, createUsers))
	assert.True(t, d.Schema().HasTable("users"))
	assert.Equal(t, []string{createUsers.String()}, d.Executed())

	err := d.ExecuteDDL(ctx, createUsers)
	assert.ErrorIs(t, err, schema.ErrTableExists)
	assert.Len(t, d.Executed(), 1)
}

func TestTransactionalRollback(t *testing.T) {
	d := New()
	ctx := context.Background()
	require.True(t, d.SupportsTransactionalDDL())

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ExecuteDDL(ctx, createUsers))

	assert.False(t, d.Schema().HasTable("users"), "uncommitted changes are invisible")

	require.NoError(t, tx.Rollback())
	assert.False(t, d.Schema().HasTable("users"))
	assert.Empty(t, d.Executed())

	assert.ErrorIs(t, tx.Commit(), driver.ErrTxDone)
}

func TestTransactionalCommit(t *testing.T) {
	d := New()
	ctx := context.Background()

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ExecuteDDL(ctx, createUsers))
	require.NoError(t, tx.ExecuteDDL(ctx, addEmail))
	require.NoError(t, tx.Commit())

	users, ok := d.Schema().Table("users")
	require.True(t, ok)
	assert.Equal(t, []string{"id", "email"}, users.ColumnNames())
	assert.ErrorIs(t, tx.Rollback(), driver.ErrTxDone)
}

func TestNonTransactional(t *testing.T) {
	d := New(NonTransactional())
	ctx := context.Background()
	require.False(t, d.SupportsTransactionalDDL())

	tx, err := d.Begin(ctx)
	require.NoError(t, err)
	require.NoError(t, tx.ExecuteDDL(ctx, createUsers))
	require.NoError(t, tx.Rollback())

	assert.True(t, d.Schema().HasTable("users"), "rollback cannot undo non-transactional ddl")
}

func TestFailOn(t *testing.T) {
	boom := errors.New("boom")
	d := New()
	d.FailOn = func(op operation.Operation) error {
		if op.Kind() == operation.KindAddColumn {
			return boom
		}
		return nil
	}
	ctx := context.Background()

	require.NoError(t, d.ExecuteDDL(ctx, createUsers))
	assert.ErrorIs(t, d.ExecuteDDL(ctx, addEmail), boom)
}

func TestDelayHonoursContext(t *testing.T) {
	d := New()
	d.Delay = time.Second

	ctx, cancel := context.WithTimeout(context.Background(), 10*time.Millisecond)
	defer cancel()

	err := d.ExecuteDDL(ctx, createUsers)
	assert.ErrorIs(t, err, context.DeadlineExceeded)
	assert.False(t, d.Schema().HasTable("users"))
}

func TestWithSchema(t *testing.T) {
	def, err := schema.FromTables(createUsers.Table)
	require.NoError(t, err)

	d := New(WithSchema(def))
	require.NoError(t, d.ExecuteDDL(context.Background(), addEmail))
}
