package schema

import (
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func usersTable() Table {
	return Table{
		Name: "users",
		Columns: []Column{
			{Name: "id", Type: TypeBigInt, PrimaryKey: true},
			{Name: "name", Type: TypeString, Size: 255},
		},
	}
}

func TestCreateTable(t *testing.T) {
	d, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	assert.True(t, d.HasTable("users"))
	assert.Equal(t, 1, d.Len())

	_, err = d.CreateTable(usersTable())
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestCreateTable_Invalid(t *testing.T) {
	tests := []struct {
		name  string
		table Table
	}{
		{"empty name", Table{Columns: []Column{{Name: "id", Type: TypeInteger}}}},
		{"no columns", Table{Name: "t"}},
		{"unknown type", Table{Name: "t", Columns: []Column{{Name: "id", Type: "money"}}}},
		{"nullable pk", Table{Name: "t", Columns: []Column{{Name: "id", Type: TypeInteger, PrimaryKey: true, Nullable: true}}}},
		{"index on missing column", Table{
			Name:    "t",
			Columns: []Column{{Name: "id", Type: TypeInteger}},
			Indexes: []Index{{Name: "idx", Table: "t", Columns: []string{"missing"}}},
		}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Empty().CreateTable(tt.table)
			assert.Error(t, err)
		})
	}
}

func TestDuplicateColumnRejected(t *testing.T) {
	tbl := usersTable()
	tbl.Columns = append(tbl.Columns, Column{Name: "id", Type: TypeInteger})

	_, err := Empty().CreateTable(tbl)
	assert.ErrorIs(t, err, ErrColumnExists)
}

func TestDefinitionIsImmutable(t *testing.T) {
	base, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	next, err := base.AddColumn("users", Column{Name: "email", Type: TypeString, Nullable: true})
	require.NoError(t, err)

	baseUsers, _ := base.Table("users")
	nextUsers, _ := next.Table("users")
	assert.Len(t, baseUsers.Columns, 2)
	assert.Len(t, nextUsers.Columns, 3)

	// mutating a returned table does not leak back
	nextUsers.Columns[0].Name = "changed"
	again, _ := next.Table("users")
	assert.Equal(t, "id", again.Columns[0].Name)
}

func TestDropTable(t *testing.T) {
	d, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	d, err = d.DropTable("users")
	require.NoError(t, err)
	assert.Equal(t, 0, d.Len())

	_, err = d.DropTable("users")
	assert.ErrorIs(t, err, ErrTableNotFound)
}

func TestRenameTable(t *testing.T) {
	tbl := usersTable()
	tbl.Indexes = []Index{{Name: "users_name_idx", Table: "users", Columns: []string{"name"}}}
	d, err := Empty().CreateTable(tbl)
	require.NoError(t, err)

	d, err = d.RenameTable("users", "accounts")
	require.NoError(t, err)

	assert.False(t, d.HasTable("users"))
	accounts, ok := d.Table("accounts")
	require.True(t, ok)
	assert.Equal(t, "accounts", accounts.Indexes[0].Table)

	other, err := d.CreateTable(usersTable())
	require.NoError(t, err)
	_, err = other.RenameTable("users", "accounts")
	assert.ErrorIs(t, err, ErrTableExists)
}

func TestColumnTransforms(t *testing.T) {
	d, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	t.Run("add existing", func(t *testing.T) {
		_, err := d.AddColumn("users", Column{Name: "name", Type: TypeString})
		assert.ErrorIs(t, err, ErrColumnExists)
	})

	t.Run("add to missing table", func(t *testing.T) {
		_, err := d.AddColumn("posts", Column{Name: "title", Type: TypeString})
		assert.ErrorIs(t, err, ErrTableNotFound)
	})

	t.Run("remove", func(t *testing.T) {
		next, err := d.RemoveColumn("users", "name")
		require.NoError(t, err)
		users, _ := next.Table("users")
		assert.Equal(t, []string{"id"}, users.ColumnNames())
	})

	t.Run("remove missing", func(t *testing.T) {
		_, err := d.RemoveColumn("users", "email")
		assert.ErrorIs(t, err, ErrColumnNotFound)
	})

	t.Run("remove last column", func(t *testing.T) {
		next, err := d.RemoveColumn("users", "name")
		require.NoError(t, err)
		_, err = next.RemoveColumn("users", "id")
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})

	t.Run("rename updates indexes", func(t *testing.T) {
		withIdx, err := d.AddIndex(Index{Name: "users_name_idx", Table: "users", Columns: []string{"name"}})
		require.NoError(t, err)

		next, err := withIdx.RenameColumn("users", "name", "full_name")
		require.NoError(t, err)

		idx, ok := next.FindIndex("users_name_idx")
		require.True(t, ok)
		assert.Equal(t, []string{"full_name"}, idx.Columns)
	})

	t.Run("change", func(t *testing.T) {
		def := "anon"
		next, err := d.ChangeColumn("users", Column{Name: "name", Type: TypeText, Default: &def})
		require.NoError(t, err)

		users, _ := next.Table("users")
		col, _ := users.Column("name")
		assert.Equal(t, TypeText, col.Type)
		assert.Equal(t, []string{"id", "name"}, users.ColumnNames())
	})

	t.Run("remove indexed column", func(t *testing.T) {
		withIdx, err := d.AddIndex(Index{Name: "users_name_idx", Table: "users", Columns: []string{"name"}})
		require.NoError(t, err)
		_, err = withIdx.RemoveColumn("users", "name")
		assert.ErrorIs(t, err, ErrInvalidDefinition)
	})
}

func TestIndexTransforms(t *testing.T) {
	d, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	idx := Index{Name: "users_name_idx", Table: "users", Columns: []string{"name"}, Unique: true}
	d, err = d.AddIndex(idx)
	require.NoError(t, err)

	_, err = d.AddIndex(idx)
	assert.ErrorIs(t, err, ErrIndexExists)

	_, err = d.AddIndex(Index{Name: "other", Table: "users", Columns: []string{"missing"}})
	assert.ErrorIs(t, err, ErrColumnNotFound)

	d, err = d.RemoveIndex("users", "users_name_idx")
	require.NoError(t, err)
	_, ok := d.FindIndex("users_name_idx")
	assert.False(t, ok)

	_, err = d.RemoveIndex("users", "users_name_idx")
	assert.ErrorIs(t, err, ErrIndexNotFound)
}

func TestEqual_IgnoresColumnOrder(t *testing.T) {
	a, err := FromTables(Table{Name: "t", Columns: []Column{
		{Name: "a", Type: TypeInteger},
		{Name: "b", Type: TypeString},
	}})
	require.NoError(t, err)
	b, err := FromTables(Table{Name: "t", Columns: []Column{
		{Name: "b", Type: TypeString},
		{Name: "a", Type: TypeInteger},
	}})
	require.NoError(t, err)

	assert.True(t, a.Equal(b))

	c, err := b.ChangeColumn("t", Column{Name: "b", Type: TypeString, Nullable: true})
	require.NoError(t, err)
	assert.False(t, a.Equal(c))
}

func TestEqual_Defaults(t *testing.T) {
	x, y := "x", "y"
	assert.True(t, Column{Name: "c", Type: TypeString, Default: &x}.Equal(Column{Name: "c", Type: TypeString, Default: &x}))
	assert.False(t, Column{Name: "c", Type: TypeString, Default: &x}.Equal(Column{Name: "c", Type: TypeString, Default: &y}))
	assert.False(t, Column{Name: "c", Type: TypeString, Default: &x}.Equal(Column{Name: "c", Type: TypeString}))
}

func TestString(t *testing.T) {
	d, err := Empty().CreateTable(usersTable())
	require.NoError(t, err)

	assert.Equal(t, "table users\n  id bigint pk not null\n  name string(255) not null\n", d.String())
	assert.Equal(t, Empty().String(), Definition{}.String())
}
