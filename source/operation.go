package source

import (
	"errors"
	"fmt"

	"gopkg.in/yaml.v3"

	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

// ErrUnknownOperation is returned for an operation entry whose kind is not recognised.
var ErrUnknownOperation = errors.New("unknown operation")

type createTable struct {
	schema.Table `yaml:",inline"`
	IfNotExists  bool `yaml:"if_not_exists"`
}

type tableName struct {
	Name string `yaml:"name"`
}

type rename struct {
	Table string `yaml:"table"`
	From  string `yaml:"from"`
	To    string `yaml:"to"`
}

type columnChange struct {
	Table  string        `yaml:"table"`
	Column schema.Column `yaml:"column"`
}

type tableMember struct {
	Table string `yaml:"table"`
	Name  string `yaml:"name"`
}

type execute struct {
	SQL         string `yaml:"sql"`
	Inverse     string `yaml:"inverse"`
	Description string `yaml:"description"`
}

// decodeOperation decodes a single-key mapping such as {add_column: {...}}.
func decodeOperation(node *yaml.Node) (operation.Operation, error) {
	if node.Kind != yaml.MappingNode || len(node.Content) != 2 {
		return nil, fmt.Errorf("line %d: operation must be a mapping with exactly one key", node.Line)
	}
	kind := operation.Kind(node.Content[0].Value)
	body := node.Content[1]

	switch kind {
	case operation.KindCreateTable:
		var v createTable
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.CreateTable{Table: withIndexTable(v.Table), IfNotExists: v.IfNotExists}, nil

	case operation.KindDropTable:
		var v tableName
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.DropTable{Name: v.Name}, nil

	case operation.KindRenameTable:
		var v rename
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.RenameTable{From: v.From, To: v.To}, nil

	case operation.KindAddColumn:
		var v columnChange
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.AddColumn{Table: v.Table, Column: v.Column}, nil

	case operation.KindRemoveColumn:
		var v tableMember
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.RemoveColumn{Table: v.Table, Name: v.Name}, nil

	case operation.KindRenameColumn:
		var v rename
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.RenameColumn{Table: v.Table, From: v.From, To: v.To}, nil

	case operation.KindChangeColumn:
		var v columnChange
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.ChangeColumn{Table: v.Table, Column: v.Column}, nil

	case operation.KindAddIndex:
		var v schema.Index
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.AddIndex{Index: v}, nil

	case operation.KindRemoveIndex:
		var v tableMember
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.RemoveIndex{Table: v.Table, Name: v.Name}, nil

	case operation.KindExecute:
		var v execute
		if err := body.Decode(&v); err != nil {
			return nil, err
		}
		return operation.Execute{SQL: v.SQL, Inverse: v.Inverse, Description: v.Description}, nil

	default:
		return nil, fmt.Errorf("line %d: %w: %q", node.Line, ErrUnknownOperation, kind)
	}
}

// withIndexTable fills the table of indexes declared inline with their table.
func withIndexTable(t schema.Table) schema.Table {
	for i := range t.Indexes {
		if t.Indexes[i].Table == "" {
			t.Indexes[i].Table = t.Name
		}
	}
	return t
}
