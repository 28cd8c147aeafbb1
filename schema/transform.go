package schema

import "fmt"

// CreateTable returns a definition with t added.
func (d Definition) CreateTable(t Table) (Definition, error) {
	if err := t.Validate(); err != nil {
		return Definition{}, err
	}
	if d.HasTable(t.Name) {
		return Definition{}, fmt.Errorf("%w: %s", ErrTableExists, t.Name)
	}
	for _, idx := range t.Indexes {
		if d.indexTable(idx.Name) != "" {
			return Definition{}, fmt.Errorf("%w: %s", ErrIndexExists, idx.Name)
		}
	}
	return d.with(t.Clone()), nil
}

// DropTable returns a definition without the named table.
func (d Definition) DropTable(name string) (Definition, error) {
	if !d.HasTable(name) {
		return Definition{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return d.without(name), nil
}

// RenameTable returns a definition where table from is named to. Indexes follow the table.
func (d Definition) RenameTable(from, to string) (Definition, error) {
	if to == "" {
		return Definition{}, fmt.Errorf("%w: new table name is empty", ErrInvalidDefinition)
	}
	t, err := d.mustTable(from)
	if err != nil {
		return Definition{}, err
	}
	if from != to && d.HasTable(to) {
		return Definition{}, fmt.Errorf("%w: %s", ErrTableExists, to)
	}
	t.Name = to
	for i := range t.Indexes {
		t.Indexes[i].Table = to
	}
	return d.without(from).with(t), nil
}

// AddColumn returns a definition with c appended to the named table.
func (d Definition) AddColumn(table string, c Column) (Definition, error) {
	if err := c.Validate(); err != nil {
		return Definition{}, err
	}
	t, err := d.mustTable(table)
	if err != nil {
		return Definition{}, err
	}
	if _, ok := t.Column(c.Name); ok {
		return Definition{}, fmt.Errorf("%w: %s.%s", ErrColumnExists, table, c.Name)
	}
	t.Columns = append(t.Columns, c)
	return d.with(t.Clone()), nil
}

// RemoveColumn returns a definition without the named column. Removing a column that an
// index still covers, or the last column of a table, is rejected.
func (d Definition) RemoveColumn(table, column string) (Definition, error) {
	t, err := d.mustTable(table)
	if err != nil {
		return Definition{}, err
	}
	pos := -1
	for i, c := range t.Columns {
		if c.Name == column {
			pos = i
			break
		}
	}
	if pos < 0 {
		return Definition{}, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, column)
	}
	if len(t.Columns) == 1 {
		return Definition{}, fmt.Errorf("%w: cannot remove the last column of %s", ErrInvalidDefinition, table)
	}
	for _, idx := range t.Indexes {
		for _, col := range idx.Columns {
			if col == column {
				return Definition{}, fmt.Errorf("%w: column %s.%s is covered by index %s", ErrInvalidDefinition, table, column, idx.Name)
			}
		}
	}
	t.Columns = append(t.Columns[:pos], t.Columns[pos+1:]...)
	return d.with(t), nil
}

// RenameColumn returns a definition where column from is named to. Index column lists are
// updated to match.
func (d Definition) RenameColumn(table, from, to string) (Definition, error) {
	if to == "" {
		return Definition{}, fmt.Errorf("%w: new column name is empty", ErrInvalidDefinition)
	}
	t, err := d.mustTable(table)
	if err != nil {
		return Definition{}, err
	}
	if _, ok := t.Column(from); !ok {
		return Definition{}, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, from)
	}
	if from == to {
		return d, nil
	}
	if _, ok := t.Column(to); ok {
		return Definition{}, fmt.Errorf("%w: %s.%s", ErrColumnExists, table, to)
	}
	for i := range t.Columns {
		if t.Columns[i].Name == from {
			t.Columns[i].Name = to
		}
	}
	for i := range t.Indexes {
		for j, col := range t.Indexes[i].Columns {
			if col == from {
				t.Indexes[i].Columns[j] = to
			}
		}
	}
	return d.with(t), nil
}

// ChangeColumn returns a definition where the column named c.Name is replaced by c in place.
func (d Definition) ChangeColumn(table string, c Column) (Definition, error) {
	if err := c.Validate(); err != nil {
		return Definition{}, err
	}
	t, err := d.mustTable(table)
	if err != nil {
		return Definition{}, err
	}
	for i := range t.Columns {
		if t.Columns[i].Name == c.Name {
			t.Columns[i] = c
			return d.with(t.Clone()), nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s.%s", ErrColumnNotFound, table, c.Name)
}

// AddIndex returns a definition with idx added to its table.
func (d Definition) AddIndex(idx Index) (Definition, error) {
	if err := idx.Validate(); err != nil {
		return Definition{}, err
	}
	t, err := d.mustTable(idx.Table)
	if err != nil {
		return Definition{}, err
	}
	if d.indexTable(idx.Name) != "" {
		return Definition{}, fmt.Errorf("%w: %s", ErrIndexExists, idx.Name)
	}
	for _, col := range idx.Columns {
		if _, ok := t.Column(col); !ok {
			return Definition{}, fmt.Errorf("index %s: %w: %s.%s", idx.Name, ErrColumnNotFound, idx.Table, col)
		}
	}
	t.Indexes = append(t.Indexes, idx.clone())
	return d.with(t), nil
}

// RemoveIndex returns a definition without the named index on table.
func (d Definition) RemoveIndex(table, name string) (Definition, error) {
	t, err := d.mustTable(table)
	if err != nil {
		return Definition{}, err
	}
	for i, idx := range t.Indexes {
		if idx.Name == name {
			t.Indexes = append(t.Indexes[:i], t.Indexes[i+1:]...)
			if len(t.Indexes) == 0 {
				t.Indexes = nil
			}
			return d.with(t), nil
		}
	}
	return Definition{}, fmt.Errorf("%w: %s on %s", ErrIndexNotFound, name, table)
}

// FindIndex returns the index with the given name in any table.
func (d Definition) FindIndex(name string) (Index, bool) {
	table := d.indexTable(name)
	if table == "" {
		return Index{}, false
	}
	idx, _ := d.tables[table].Index(name)
	return idx.clone(), true
}

// index names are unique per definition, matching PostgreSQL and SQLite where indexes
// share a namespace.
func (d Definition) indexTable(name string) string {
	for tableName, t := range d.tables {
		if _, ok := t.Index(name); ok {
			return tableName
		}
	}
	return ""
}
