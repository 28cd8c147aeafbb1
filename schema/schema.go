// Package schema models the structural definition of a datastore as a value.
//
// A Definition maps table names to their columns and indexes. Definitions are never mutated
// in place: every transformation returns a new Definition, so operations can be folded for
// dry runs and snapshots without touching a real store.
package schema

import (
	"errors"
	"fmt"
	"sort"
	"strings"
)

var (
	// ErrTableExists indicates a table with the same name already exists.
	ErrTableExists = errors.New("table already exists")

	// ErrTableNotFound indicates the table does not exist.
	ErrTableNotFound = errors.New("table not found")

	// ErrColumnExists indicates a column with the same name already exists in the table.
	ErrColumnExists = errors.New("column already exists")

	// ErrColumnNotFound indicates the column does not exist in the table.
	ErrColumnNotFound = errors.New("column not found")

	// ErrIndexExists indicates an index with the same name already exists.
	ErrIndexExists = errors.New("index already exists")

	// ErrIndexNotFound indicates the index does not exist.
	ErrIndexNotFound = errors.New("index not found")

	// ErrInvalidDefinition indicates a structurally invalid table, column or index.
	ErrInvalidDefinition = errors.New("invalid definition")
)

// Type is a datastore-neutral column type. Dialects map it to concrete SQL types.
type Type string

const (
	TypeString    Type = "string"
	TypeText      Type = "text"
	TypeInteger   Type = "integer"
	TypeBigInt    Type = "bigint"
	TypeBoolean   Type = "boolean"
	TypeFloat     Type = "float"
	TypeDecimal   Type = "decimal"
	TypeDate      Type = "date"
	TypeDateTime  Type = "datetime"
	TypeTimestamp Type = "timestamp"
	TypeBinary    Type = "binary"
	TypeUUID      Type = "uuid"
	TypeJSON      Type = "json"
)

var knownTypes = map[Type]bool{
	TypeString: true, TypeText: true, TypeInteger: true, TypeBigInt: true, TypeBoolean: true,
	TypeFloat: true, TypeDecimal: true, TypeDate: true, TypeDateTime: true, TypeTimestamp: true,
	TypeBinary: true, TypeUUID: true, TypeJSON: true,
}

// Valid reports whether t is a known type.
func (t Type) Valid() bool {
	return knownTypes[t]
}

// Column describes a table column.
type Column struct {
	Name     string `yaml:"name"`
	Type     Type   `yaml:"type"`
	Nullable bool   `yaml:"nullable,omitempty"`

	// Default is a SQL literal or expression rendered verbatim, e.g. "'guest'" or "0".
	Default    *string `yaml:"default,omitempty"`
	PrimaryKey bool    `yaml:"primary_key,omitempty"`

	// Size is the length for string columns or the precision for decimals. Zero means the
	// dialect default.
	Size int `yaml:"size,omitempty"`

	// Scale is the scale for decimal columns.
	Scale int `yaml:"scale,omitempty"`
}

// Validate checks that the column is usable.
func (c Column) Validate() error {
	if c.Name == "" {
		return fmt.Errorf("%w: column name is empty", ErrInvalidDefinition)
	}
	if !c.Type.Valid() {
		return fmt.Errorf("%w: column %s has unknown type %q", ErrInvalidDefinition, c.Name, c.Type)
	}
	if c.PrimaryKey && c.Nullable {
		return fmt.Errorf("%w: primary key column %s cannot be nullable", ErrInvalidDefinition, c.Name)
	}
	return nil
}

// Equal reports whether two columns have the same definition.
func (c Column) Equal(o Column) bool {
	if c.Name != o.Name || c.Type != o.Type || c.Nullable != o.Nullable ||
		c.PrimaryKey != o.PrimaryKey || c.Size != o.Size || c.Scale != o.Scale {
		return false
	}
	if (c.Default == nil) != (o.Default == nil) {
		return false
	}
	return c.Default == nil || *c.Default == *o.Default
}

// String renders the column canonically, e.g. "email string null default 'x'".
func (c Column) String() string {
	var b strings.Builder
	b.WriteString(c.Name)
	b.WriteByte(' ')
	b.WriteString(string(c.Type))
	if c.Size > 0 {
		fmt.Fprintf(&b, "(%d", c.Size)
		if c.Scale > 0 {
			fmt.Fprintf(&b, ",%d", c.Scale)
		}
		b.WriteByte(')')
	}
	if c.PrimaryKey {
		b.WriteString(" pk")
	}
	if c.Nullable {
		b.WriteString(" null")
	} else {
		b.WriteString(" not null")
	}
	if c.Default != nil {
		fmt.Fprintf(&b, " default %q", *c.Default)
	}
	return b.String()
}

// Index describes an index over one or more columns of a table.
type Index struct {
	Name    string   `yaml:"name"`
	Table   string   `yaml:"table"`
	Columns []string `yaml:"columns"`
	Unique  bool     `yaml:"unique,omitempty"`
}

// Validate checks that the index is usable.
func (i Index) Validate() error {
	if i.Name == "" {
		return fmt.Errorf("%w: index name is empty", ErrInvalidDefinition)
	}
	if i.Table == "" {
		return fmt.Errorf("%w: index %s has no table", ErrInvalidDefinition, i.Name)
	}
	if len(i.Columns) == 0 {
		return fmt.Errorf("%w: index %s has no columns", ErrInvalidDefinition, i.Name)
	}
	return nil
}

// Equal reports whether two indexes have the same definition.
func (i Index) Equal(o Index) bool {
	if i.Name != o.Name || i.Table != o.Table || i.Unique != o.Unique || len(i.Columns) != len(o.Columns) {
		return false
	}
	for n := range i.Columns {
		if i.Columns[n] != o.Columns[n] {
			return false
		}
	}
	return true
}

// String renders the index canonically.
func (i Index) String() string {
	unique := ""
	if i.Unique {
		unique = "unique "
	}
	return fmt.Sprintf("%sindex %s on %s(%s)", unique, i.Name, i.Table, strings.Join(i.Columns, ","))
}

func (i Index) clone() Index {
	i.Columns = append([]string(nil), i.Columns...)
	return i
}

// Table describes a table with its ordered columns and its indexes.
type Table struct {
	Name    string   `yaml:"name"`
	Columns []Column `yaml:"columns"`
	Indexes []Index  `yaml:"indexes,omitempty"`
}

// Validate checks the table, its columns and its indexes.
func (t Table) Validate() error {
	if t.Name == "" {
		return fmt.Errorf("%w: table name is empty", ErrInvalidDefinition)
	}
	if len(t.Columns) == 0 {
		return fmt.Errorf("%w: table %s has no columns", ErrInvalidDefinition, t.Name)
	}
	seen := make(map[string]bool, len(t.Columns))
	for _, c := range t.Columns {
		if err := c.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if seen[c.Name] {
			return fmt.Errorf("table %s: %w: %s", t.Name, ErrColumnExists, c.Name)
		}
		seen[c.Name] = true
	}
	for _, idx := range t.Indexes {
		if err := idx.Validate(); err != nil {
			return fmt.Errorf("table %s: %w", t.Name, err)
		}
		if idx.Table != t.Name {
			return fmt.Errorf("%w: index %s belongs to %s, not %s", ErrInvalidDefinition, idx.Name, idx.Table, t.Name)
		}
		for _, col := range idx.Columns {
			if !seen[col] {
				return fmt.Errorf("table %s: index %s: %w: %s", t.Name, idx.Name, ErrColumnNotFound, col)
			}
		}
	}
	return nil
}

// Column returns the named column.
func (t Table) Column(name string) (Column, bool) {
	for _, c := range t.Columns {
		if c.Name == name {
			return c, true
		}
	}
	return Column{}, false
}

// Index returns the named index.
func (t Table) Index(name string) (Index, bool) {
	for _, idx := range t.Indexes {
		if idx.Name == name {
			return idx, true
		}
	}
	return Index{}, false
}

// ColumnNames returns the column names in table order.
func (t Table) ColumnNames() []string {
	names := make([]string, len(t.Columns))
	for i, c := range t.Columns {
		names[i] = c.Name
	}
	return names
}

// Equal compares two tables. Columns are compared by name and definition regardless of
// position; indexes by name and definition.
func (t Table) Equal(o Table) bool {
	if t.Name != o.Name || len(t.Columns) != len(o.Columns) || len(t.Indexes) != len(o.Indexes) {
		return false
	}
	for _, c := range t.Columns {
		oc, ok := o.Column(c.Name)
		if !ok || !c.Equal(oc) {
			return false
		}
	}
	for _, idx := range t.Indexes {
		oi, ok := o.Index(idx.Name)
		if !ok || !idx.Equal(oi) {
			return false
		}
	}
	return true
}

// Clone returns a deep copy of the table.
func (t Table) Clone() Table {
	out := Table{Name: t.Name}
	if t.Columns != nil {
		out.Columns = make([]Column, len(t.Columns))
		for i, c := range t.Columns {
			if c.Default != nil {
				d := *c.Default
				c.Default = &d
			}
			out.Columns[i] = c
		}
	}
	if t.Indexes != nil {
		out.Indexes = make([]Index, len(t.Indexes))
		for i, idx := range t.Indexes {
			out.Indexes[i] = idx.clone()
		}
	}
	return out
}

// Definition is a structural description of a datastore: table name to table.
// The zero value is an empty definition.
type Definition struct {
	tables map[string]Table
}

// Empty returns an empty definition.
func Empty() Definition {
	return Definition{}
}

// FromTables builds a definition from tables, validating each one.
func FromTables(tables ...Table) (Definition, error) {
	d := Empty()
	var err error
	for _, t := range tables {
		d, err = d.CreateTable(t)
		if err != nil {
			return Definition{}, err
		}
	}
	return d, nil
}

// Table returns the named table.
func (d Definition) Table(name string) (Table, bool) {
	t, ok := d.tables[name]
	if !ok {
		return Table{}, false
	}
	return t.Clone(), true
}

// HasTable reports whether the named table exists.
func (d Definition) HasTable(name string) bool {
	_, ok := d.tables[name]
	return ok
}

// Len returns the number of tables.
func (d Definition) Len() int {
	return len(d.tables)
}

// TableNames returns table names in ascending order.
func (d Definition) TableNames() []string {
	names := make([]string, 0, len(d.tables))
	for name := range d.tables {
		names = append(names, name)
	}
	sort.Strings(names)
	return names
}

// Tables returns copies of all tables ordered by name.
func (d Definition) Tables() []Table {
	names := d.TableNames()
	out := make([]Table, 0, len(names))
	for _, name := range names {
		out = append(out, d.tables[name].Clone())
	}
	return out
}

// Equal reports whether two definitions describe the same schema.
func (d Definition) Equal(o Definition) bool {
	if len(d.tables) != len(o.tables) {
		return false
	}
	for name, t := range d.tables {
		ot, ok := o.tables[name]
		if !ok || !t.Equal(ot) {
			return false
		}
	}
	return true
}

// String renders the definition canonically, one line per table, column and index.
func (d Definition) String() string {
	var b strings.Builder
	for _, t := range d.Tables() {
		fmt.Fprintf(&b, "table %s\n", t.Name)
		for _, c := range t.Columns {
			fmt.Fprintf(&b, "  %s\n", c)
		}
		for _, idx := range t.Indexes {
			fmt.Fprintf(&b, "  %s\n", idx)
		}
	}
	return b.String()
}

func (d Definition) with(t Table) Definition {
	next := make(map[string]Table, len(d.tables)+1)
	for name, existing := range d.tables {
		next[name] = existing
	}
	next[t.Name] = t
	return Definition{tables: next}
}

func (d Definition) without(name string) Definition {
	next := make(map[string]Table, len(d.tables))
	for n, existing := range d.tables {
		if n != name {
			next[n] = existing
		}
	}
	return Definition{tables: next}
}

func (d Definition) mustTable(name string) (Table, error) {
	t, ok := d.tables[name]
	if !ok {
		return Table{}, fmt.Errorf("%w: %s", ErrTableNotFound, name)
	}
	return t.Clone(), nil
}
