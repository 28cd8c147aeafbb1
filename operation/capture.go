package operation

import (
	"fmt"

	"github.com/getpup/pupsourcing-migrate/schema"
)

// Capture fills the Prior field of destructive operations from def, the definition the
// operation will be applied to. Operations that already carry a prior, or that need none,
// are returned unchanged.
func Capture(def schema.Definition, op Operation) (Operation, error) {
	switch o := op.(type) {
	case DropTable:
		if o.Prior != nil {
			return o, nil
		}
		t, ok := def.Table(o.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s", schema.ErrTableNotFound, o.Name)
		}
		o.Prior = &t
		return o, nil
	case RemoveColumn:
		if o.Prior != nil {
			return o, nil
		}
		c, err := column(def, o.Table, o.Name)
		if err != nil {
			return nil, err
		}
		o.Prior = &c
		return o, nil
	case ChangeColumn:
		if o.Prior != nil {
			return o, nil
		}
		c, err := column(def, o.Table, o.Column.Name)
		if err != nil {
			return nil, err
		}
		o.Prior = &c
		return o, nil
	case RemoveIndex:
		if o.Prior != nil {
			return o, nil
		}
		t, ok := def.Table(o.Table)
		if !ok {
			return nil, fmt.Errorf("%w: %s", schema.ErrTableNotFound, o.Table)
		}
		idx, ok := t.Index(o.Name)
		if !ok {
			return nil, fmt.Errorf("%w: %s on %s", schema.ErrIndexNotFound, o.Name, o.Table)
		}
		o.Prior = &idx
		return o, nil
	default:
		return op, nil
	}
}

func column(def schema.Definition, table, name string) (schema.Column, error) {
	t, ok := def.Table(table)
	if !ok {
		return schema.Column{}, fmt.Errorf("%w: %s", schema.ErrTableNotFound, table)
	}
	c, ok := t.Column(name)
	if !ok {
		return schema.Column{}, fmt.Errorf("%w: %s.%s", schema.ErrColumnNotFound, table, name)
	}
	return c, nil
}
