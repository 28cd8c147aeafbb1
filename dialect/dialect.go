// Package dialect translates operations into SQL statements for PostgreSQL, MySQL/MariaDB
// and SQLite.
package dialect

import (
	"errors"
	"fmt"
	"regexp"
	"strings"

	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// ErrUnsupported indicates the dialect cannot express an operation.
var ErrUnsupported = errors.New("unsupported by dialect")

// ErrUnknownDialect indicates a dialect name that ByName does not recognise.
var ErrUnknownDialect = errors.New("unknown dialect")

var identifierRegex = regexp.MustCompile(`^[a-zA-Z][a-zA-Z0-9_]*$`)

// ValidateIdentifier ensures an identifier is safe to interpolate into SQL without
// quoting. Used for configured infrastructure table names.
func ValidateIdentifier(name, fieldName string) error {
	if name == "" {
		return fmt.Errorf("%s cannot be empty", fieldName)
	}
	if !identifierRegex.MatchString(name) {
		return fmt.Errorf("%s must start with a letter and contain only letters, numbers, and underscores (got: %s)", fieldName, name)
	}
	return nil
}

// Dialect renders operations as SQL for one database family.
type Dialect interface {
	// Name returns the dialect name: "postgres", "mysql" or "sqlite".
	Name() string

	// TransactionalDDL reports whether DDL statements participate in transactions.
	TransactionalDDL() bool

	// QuoteIdent quotes an identifier.
	QuoteIdent(name string) string

	// Placeholder returns the bind parameter for the n-th argument, starting at 1.
	Placeholder(n int) string

	// ColumnType returns the SQL type for a column.
	ColumnType(c schema.Column) (string, error)

	// Statements returns the statements that implement op, in execution order.
	Statements(op operation.Operation) ([]string, error)
}

// ByName returns the dialect for a database or driver name. Driver names such as "pgx",
// "sqlite3" and "mariadb" map to their family.
func ByName(name string) (Dialect, error) {
	switch strings.ToLower(name) {
	case "postgres", "postgresql", "pgx":
		return Postgres, nil
	case "mysql", "mariadb":
		return MySQL, nil
	case "sqlite", "sqlite3":
		return SQLite, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrUnknownDialect, name)
	}
}

type family int

const (
	familyPostgres family = iota
	familyMySQL
	familySQLite
)

type sqlDialect struct {
	name          string
	family        family
	transactional bool
	types         map[schema.Type]string
}

var (
	// Postgres renders PostgreSQL statements. DDL is transactional.
	Postgres Dialect = &sqlDialect{
		name:          "postgres",
		family:        familyPostgres,
		transactional: true,
		types: map[schema.Type]string{
			schema.TypeString:    "VARCHAR",
			schema.TypeText:      "TEXT",
			schema.TypeInteger:   "INTEGER",
			schema.TypeBigInt:    "BIGINT",
			schema.TypeBoolean:   "BOOLEAN",
			schema.TypeFloat:     "DOUBLE PRECISION",
			schema.TypeDecimal:   "NUMERIC",
			schema.TypeDate:      "DATE",
			schema.TypeDateTime:  "TIMESTAMP",
			schema.TypeTimestamp: "TIMESTAMPTZ",
			schema.TypeBinary:    "BYTEA",
			schema.TypeUUID:      "UUID",
			schema.TypeJSON:      "JSONB",
		},
	}

	// MySQL renders MySQL/MariaDB statements. DDL commits implicitly, so migrations run
	// best-effort.
	MySQL Dialect = &sqlDialect{
		name:          "mysql",
		family:        familyMySQL,
		transactional: false,
		types: map[schema.Type]string{
			schema.TypeString:    "VARCHAR",
			schema.TypeText:      "TEXT",
			schema.TypeInteger:   "INT",
			schema.TypeBigInt:    "BIGINT",
			schema.TypeBoolean:   "BOOLEAN",
			schema.TypeFloat:     "DOUBLE",
			schema.TypeDecimal:   "DECIMAL",
			schema.TypeDate:      "DATE",
			schema.TypeDateTime:  "DATETIME(6)",
			schema.TypeTimestamp: "TIMESTAMP(6)",
			schema.TypeBinary:    "BLOB",
			schema.TypeUUID:      "CHAR(36)",
			schema.TypeJSON:      "JSON",
		},
	}

	// SQLite renders SQLite statements. DDL is transactional; ChangeColumn is not
	// supported.
	SQLite Dialect = &sqlDialect{
		name:          "sqlite",
		family:        familySQLite,
		transactional: true,
		types: map[schema.Type]string{
			schema.TypeString:    "TEXT",
			schema.TypeText:      "TEXT",
			schema.TypeInteger:   "INTEGER",
			schema.TypeBigInt:    "INTEGER",
			schema.TypeBoolean:   "BOOLEAN",
			schema.TypeFloat:     "REAL",
			schema.TypeDecimal:   "NUMERIC",
			schema.TypeDate:      "DATE",
			schema.TypeDateTime:  "DATETIME",
			schema.TypeTimestamp: "DATETIME",
			schema.TypeBinary:    "BLOB",
			schema.TypeUUID:      "TEXT",
			schema.TypeJSON:      "TEXT",
		},
	}
)

func (d *sqlDialect) Name() string { return d.name }

func (d *sqlDialect) TransactionalDDL() bool { return d.transactional }

func (d *sqlDialect) QuoteIdent(name string) string {
	if d.family == familyMySQL {
		return "`" + strings.ReplaceAll(name, "`", "``") + "`"
	}
	return `"` + strings.ReplaceAll(name, `"`, `""`) + `"`
}

func (d *sqlDialect) Placeholder(n int) string {
	if d.family == familyPostgres {
		return fmt.Sprintf("$%d", n)
	}
	return "?"
}

func (d *sqlDialect) ColumnType(c schema.Column) (string, error) {
	base, ok := d.types[c.Type]
	if !ok {
		return "", fmt.Errorf("%w: column type %q", ErrUnsupported, c.Type)
	}
	switch c.Type {
	case schema.TypeString:
		if d.family == familySQLite {
			return base, nil
		}
		size := c.Size
		if size <= 0 {
			size = 255
		}
		return fmt.Sprintf("%s(%d)", base, size), nil
	case schema.TypeDecimal:
		if c.Size > 0 {
			return fmt.Sprintf("%s(%d,%d)", base, c.Size, c.Scale), nil
		}
	}
	return base, nil
}

func (d *sqlDialect) columnDef(c schema.Column) (string, error) {
	typ, err := d.ColumnType(c)
	if err != nil {
		return "", err
	}
	var b strings.Builder
	b.WriteString(d.QuoteIdent(c.Name))
	b.WriteByte(' ')
	b.WriteString(typ)
	if !c.Nullable {
		b.WriteString(" NOT NULL")
	}
	if c.Default != nil {
		b.WriteString(" DEFAULT ")
		b.WriteString(*c.Default)
	}
	return b.String(), nil
}

func (d *sqlDialect) quoteList(names []string) string {
	quoted := make([]string, len(names))
	for i, n := range names {
		quoted[i] = d.QuoteIdent(n)
	}
	return strings.Join(quoted, ", ")
}

func (d *sqlDialect) Statements(op operation.Operation) ([]string, error) {
	switch o := op.(type) {
	case operation.CreateTable:
		return d.createTable(o)
	case operation.DropTable:
		return []string{fmt.Sprintf("DROP TABLE %s", d.QuoteIdent(o.Name))}, nil
	case operation.RenameTable:
		if d.family == familyMySQL {
			return []string{fmt.Sprintf("RENAME TABLE %s TO %s", d.QuoteIdent(o.From), d.QuoteIdent(o.To))}, nil
		}
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME TO %s", d.QuoteIdent(o.From), d.QuoteIdent(o.To))}, nil
	case operation.AddColumn:
		def, err := d.columnDef(o.Column)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s ADD COLUMN %s", d.QuoteIdent(o.Table), def)}, nil
	case operation.RemoveColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s DROP COLUMN %s", d.QuoteIdent(o.Table), d.QuoteIdent(o.Name))}, nil
	case operation.RenameColumn:
		return []string{fmt.Sprintf("ALTER TABLE %s RENAME COLUMN %s TO %s",
			d.QuoteIdent(o.Table), d.QuoteIdent(o.From), d.QuoteIdent(o.To))}, nil
	case operation.ChangeColumn:
		return d.changeColumn(o)
	case operation.AddIndex:
		return []string{d.createIndex(o.Index, false)}, nil
	case operation.RemoveIndex:
		if d.family == familyMySQL {
			return []string{fmt.Sprintf("DROP INDEX %s ON %s", d.QuoteIdent(o.Name), d.QuoteIdent(o.Table))}, nil
		}
		return []string{fmt.Sprintf("DROP INDEX %s", d.QuoteIdent(o.Name))}, nil
	case operation.Execute:
		return []string{o.SQL}, nil
	default:
		return nil, fmt.Errorf("%w: operation %T", ErrUnsupported, op)
	}
}

func (d *sqlDialect) createTable(o operation.CreateTable) ([]string, error) {
	defs := make([]string, 0, len(o.Table.Columns)+1)
	var pk []string
	for _, c := range o.Table.Columns {
		def, err := d.columnDef(c)
		if err != nil {
			return nil, err
		}
		defs = append(defs, def)
		if c.PrimaryKey {
			pk = append(pk, c.Name)
		}
	}
	if len(pk) > 0 {
		defs = append(defs, fmt.Sprintf("PRIMARY KEY (%s)", d.quoteList(pk)))
	}

	ifNotExists := ""
	if o.IfNotExists {
		ifNotExists = "IF NOT EXISTS "
	}
	stmts := []string{fmt.Sprintf("CREATE TABLE %s%s (\n    %s\n)", ifNotExists, d.QuoteIdent(o.Table.Name), strings.Join(defs, ",\n    "))}
	for _, idx := range o.Table.Indexes {
		stmts = append(stmts, d.createIndex(idx, o.IfNotExists))
	}
	return stmts, nil
}

func (d *sqlDialect) createIndex(idx schema.Index, ifNotExists bool) string {
	unique := ""
	if idx.Unique {
		unique = "UNIQUE "
	}
	guard := ""
	// MySQL has no IF NOT EXISTS for indexes.
	if ifNotExists && d.family != familyMySQL {
		guard = "IF NOT EXISTS "
	}
	return fmt.Sprintf("CREATE %sINDEX %s%s ON %s (%s)", unique, guard, d.QuoteIdent(idx.Name), d.QuoteIdent(idx.Table), d.quoteList(idx.Columns))
}

func (d *sqlDialect) changeColumn(o operation.ChangeColumn) ([]string, error) {
	switch d.family {
	case familyMySQL:
		def, err := d.columnDef(o.Column)
		if err != nil {
			return nil, err
		}
		return []string{fmt.Sprintf("ALTER TABLE %s MODIFY COLUMN %s", d.QuoteIdent(o.Table), def)}, nil
	case familyPostgres:
		typ, err := d.ColumnType(o.Column)
		if err != nil {
			return nil, err
		}
		table, col := d.QuoteIdent(o.Table), d.QuoteIdent(o.Column.Name)
		stmts := []string{fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s TYPE %s", table, col, typ)}
		if o.Column.Nullable {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP NOT NULL", table, col))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET NOT NULL", table, col))
		}
		if o.Column.Default != nil {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s SET DEFAULT %s", table, col, *o.Column.Default))
		} else {
			stmts = append(stmts, fmt.Sprintf("ALTER TABLE %s ALTER COLUMN %s DROP DEFAULT", table, col))
		}
		return stmts, nil
	default:
		return nil, fmt.Errorf("%w: %s cannot alter column %s.%s in place", ErrUnsupported, d.name, o.Table, o.Column.Name)
	}
}
