// Package operation defines the closed set of schema edits a migration is made of.
//
// Every operation can be applied to a schema.Definition and, unless it is explicitly
// irreversible, inverted into the operation that undoes it. Drivers switch on the concrete
// type to translate an operation into datastore statements.
package operation

import (
	"fmt"
	"strings"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// Kind is the stable name of an operation variant.
type Kind string

const (
	KindCreateTable  Kind = "create_table"
	KindDropTable    Kind = "drop_table"
	KindRenameTable  Kind = "rename_table"
	KindAddColumn    Kind = "add_column"
	KindRemoveColumn Kind = "remove_column"
	KindRenameColumn Kind = "rename_column"
	KindChangeColumn Kind = "change_column"
	KindAddIndex     Kind = "add_index"
	KindRemoveIndex  Kind = "remove_index"
	KindExecute      Kind = "execute"
)

// Operation is a single schema edit.
type Operation interface {
	// Kind returns the variant name.
	Kind() Kind

	// Apply returns the definition after the edit. The input is never modified.
	Apply(def schema.Definition) (schema.Definition, error)

	// Invert returns the operation that undoes this one, or an
	// *migrate.IrreversibleOperationError when none can be computed.
	Invert() (Operation, error)

	// String returns a canonical rendering used for logs and checksums.
	String() string

	operation()
}

var (
	_ Operation = CreateTable{}
	_ Operation = DropTable{}
	_ Operation = RenameTable{}
	_ Operation = AddColumn{}
	_ Operation = RemoveColumn{}
	_ Operation = RenameColumn{}
	_ Operation = ChangeColumn{}
	_ Operation = AddIndex{}
	_ Operation = RemoveIndex{}
	_ Operation = Execute{}
)

func irreversible(op Operation, reason string) error {
	return &migrate.IrreversibleOperationError{Operation: op.String(), Reason: reason}
}

// CreateTable creates a table with its columns and indexes.
type CreateTable struct {
	Table schema.Table
	// IfNotExists makes the operation a no-op when the table already exists.
	IfNotExists bool
}

func (CreateTable) operation() {}

// Kind implements Operation.
func (CreateTable) Kind() Kind { return KindCreateTable }

// Apply implements Operation.
func (o CreateTable) Apply(def schema.Definition) (schema.Definition, error) {
	if o.IfNotExists && def.HasTable(o.Table.Name) {
		return def, nil
	}
	return def.CreateTable(o.Table)
}

// Invert implements Operation.
func (o CreateTable) Invert() (Operation, error) {
	prior := o.Table.Clone()
	return DropTable{Name: o.Table.Name, Prior: &prior}, nil
}

func (o CreateTable) String() string {
	cols := make([]string, 0, len(o.Table.Columns))
	for _, c := range o.Table.Columns {
		cols = append(cols, c.String())
	}
	var b strings.Builder
	b.WriteString(string(KindCreateTable))
	if o.IfNotExists {
		b.WriteString(" if not exists")
	}
	fmt.Fprintf(&b, " %s (%s)", o.Table.Name, strings.Join(cols, ", "))
	for _, idx := range o.Table.Indexes {
		fmt.Fprintf(&b, " %s", idx)
	}
	return b.String()
}

// DropTable drops a table. Prior holds the dropped definition and is required to invert.
type DropTable struct {
	Name  string
	Prior *schema.Table
}

func (DropTable) operation() {}

// Kind implements Operation.
func (DropTable) Kind() Kind { return KindDropTable }

// Apply implements Operation.
func (o DropTable) Apply(def schema.Definition) (schema.Definition, error) {
	return def.DropTable(o.Name)
}

// Invert implements Operation.
func (o DropTable) Invert() (Operation, error) {
	if o.Prior == nil {
		return nil, irreversible(o, "prior table definition not captured")
	}
	return CreateTable{Table: o.Prior.Clone()}, nil
}

func (o DropTable) String() string {
	return fmt.Sprintf("%s %s", KindDropTable, o.Name)
}

// RenameTable renames a table.
type RenameTable struct {
	From string
	To   string
}

func (RenameTable) operation() {}

// Kind implements Operation.
func (RenameTable) Kind() Kind { return KindRenameTable }

// Apply implements Operation.
func (o RenameTable) Apply(def schema.Definition) (schema.Definition, error) {
	return def.RenameTable(o.From, o.To)
}

// Invert implements Operation.
func (o RenameTable) Invert() (Operation, error) {
	return RenameTable{From: o.To, To: o.From}, nil
}

func (o RenameTable) String() string {
	return fmt.Sprintf("%s %s to %s", KindRenameTable, o.From, o.To)
}

// AddColumn appends a column to a table.
type AddColumn struct {
	Table  string
	Column schema.Column
}

func (AddColumn) operation() {}

// Kind implements Operation.
func (AddColumn) Kind() Kind { return KindAddColumn }

// Apply implements Operation.
func (o AddColumn) Apply(def schema.Definition) (schema.Definition, error) {
	return def.AddColumn(o.Table, o.Column)
}

// Invert implements Operation.
func (o AddColumn) Invert() (Operation, error) {
	prior := o.Column
	return RemoveColumn{Table: o.Table, Name: o.Column.Name, Prior: &prior}, nil
}

func (o AddColumn) String() string {
	return fmt.Sprintf("%s %s.%s", KindAddColumn, o.Table, o.Column)
}

// RemoveColumn drops a column. Prior holds the dropped column and is required to invert.
type RemoveColumn struct {
	Table string
	Name  string
	Prior *schema.Column
}

func (RemoveColumn) operation() {}

// Kind implements Operation.
func (RemoveColumn) Kind() Kind { return KindRemoveColumn }

// Apply implements Operation.
func (o RemoveColumn) Apply(def schema.Definition) (schema.Definition, error) {
	return def.RemoveColumn(o.Table, o.Name)
}

// Invert implements Operation.
func (o RemoveColumn) Invert() (Operation, error) {
	if o.Prior == nil {
		return nil, irreversible(o, "prior column type not captured")
	}
	return AddColumn{Table: o.Table, Column: *o.Prior}, nil
}

func (o RemoveColumn) String() string {
	return fmt.Sprintf("%s %s.%s", KindRemoveColumn, o.Table, o.Name)
}

// RenameColumn renames a column.
type RenameColumn struct {
	Table string
	From  string
	To    string
}

func (RenameColumn) operation() {}

// Kind implements Operation.
func (RenameColumn) Kind() Kind { return KindRenameColumn }

// Apply implements Operation.
func (o RenameColumn) Apply(def schema.Definition) (schema.Definition, error) {
	return def.RenameColumn(o.Table, o.From, o.To)
}

// Invert implements Operation.
func (o RenameColumn) Invert() (Operation, error) {
	return RenameColumn{Table: o.Table, From: o.To, To: o.From}, nil
}

func (o RenameColumn) String() string {
	return fmt.Sprintf("%s %s.%s to %s", KindRenameColumn, o.Table, o.From, o.To)
}

// ChangeColumn replaces a column definition. Prior holds the replaced definition and is
// required to invert.
type ChangeColumn struct {
	Table  string
	Column schema.Column
	Prior  *schema.Column
}

func (ChangeColumn) operation() {}

// Kind implements Operation.
func (ChangeColumn) Kind() Kind { return KindChangeColumn }

// Apply implements Operation.
func (o ChangeColumn) Apply(def schema.Definition) (schema.Definition, error) {
	return def.ChangeColumn(o.Table, o.Column)
}

// Invert implements Operation.
func (o ChangeColumn) Invert() (Operation, error) {
	if o.Prior == nil {
		return nil, irreversible(o, "prior column definition not captured")
	}
	next := o.Column
	return ChangeColumn{Table: o.Table, Column: *o.Prior, Prior: &next}, nil
}

func (o ChangeColumn) String() string {
	return fmt.Sprintf("%s %s.%s", KindChangeColumn, o.Table, o.Column)
}

// AddIndex creates an index.
type AddIndex struct {
	Index schema.Index
}

func (AddIndex) operation() {}

// Kind implements Operation.
func (AddIndex) Kind() Kind { return KindAddIndex }

// Apply implements Operation.
func (o AddIndex) Apply(def schema.Definition) (schema.Definition, error) {
	return def.AddIndex(o.Index)
}

// Invert implements Operation.
func (o AddIndex) Invert() (Operation, error) {
	prior := o.Index
	prior.Columns = append([]string(nil), o.Index.Columns...)
	return RemoveIndex{Table: o.Index.Table, Name: o.Index.Name, Prior: &prior}, nil
}

func (o AddIndex) String() string {
	return fmt.Sprintf("%s %s", KindAddIndex, o.Index)
}

// RemoveIndex drops an index. Prior holds the dropped index and is required to invert.
type RemoveIndex struct {
	Table string
	Name  string
	Prior *schema.Index
}

func (RemoveIndex) operation() {}

// Kind implements Operation.
func (RemoveIndex) Kind() Kind { return KindRemoveIndex }

// Apply implements Operation.
func (o RemoveIndex) Apply(def schema.Definition) (schema.Definition, error) {
	return def.RemoveIndex(o.Table, o.Name)
}

// Invert implements Operation.
func (o RemoveIndex) Invert() (Operation, error) {
	if o.Prior == nil {
		return nil, irreversible(o, "prior index definition not captured")
	}
	return AddIndex{Index: *o.Prior}, nil
}

func (o RemoveIndex) String() string {
	return fmt.Sprintf("%s %s on %s", KindRemoveIndex, o.Name, o.Table)
}

// Execute runs a raw statement, typically a data backfill. It never changes the schema
// definition. Without Inverse it cannot be undone.
type Execute struct {
	SQL         string
	Inverse     string
	Description string
}

func (Execute) operation() {}

// Kind implements Operation.
func (Execute) Kind() Kind { return KindExecute }

// Apply implements Operation.
func (o Execute) Apply(def schema.Definition) (schema.Definition, error) {
	if strings.TrimSpace(o.SQL) == "" {
		return schema.Definition{}, fmt.Errorf("%w: execute with empty statement", schema.ErrInvalidDefinition)
	}
	return def, nil
}

// Invert implements Operation.
func (o Execute) Invert() (Operation, error) {
	if strings.TrimSpace(o.Inverse) == "" {
		return nil, irreversible(o, "no inverse statement given")
	}
	return Execute{SQL: o.Inverse, Inverse: o.SQL, Description: o.Description}, nil
}

func (o Execute) String() string {
	if o.Description != "" {
		return fmt.Sprintf("%s %q (%s)", KindExecute, o.SQL, o.Description)
	}
	return fmt.Sprintf("%s %q", KindExecute, o.SQL)
}
