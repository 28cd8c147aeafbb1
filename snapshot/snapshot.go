// Package snapshot renders the schema produced by the applied migrations as a YAML document
// and bootstraps fresh stores from such a document.
//
// The document is regenerated after every successful run and is never edited by hand.
// The ledger stays the source of truth; the snapshot is derived from it.
package snapshot

import (
	"bytes"
	"errors"
	"fmt"
	"io"

	"gopkg.in/yaml.v3"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/schema"
)

var (
	// ErrLedgerNotEmpty is returned by Bootstrap when the target already has applied migrations.
	ErrLedgerNotEmpty = errors.New("ledger is not empty")

	// ErrInvalidDocument indicates a snapshot document that cannot describe a schema.
	ErrInvalidDocument = errors.New("invalid snapshot document")

	// ErrNotFound is returned by a Store that holds no document yet.
	ErrNotFound = errors.New("snapshot not found")
)

// Document is the serialized form of a schema snapshot.
type Document struct {
	// Version is the highest applied migration ID.
	Version migrate.ID `yaml:"version"`

	// Migrations lists every applied migration ID in ascending order.
	Migrations []migrate.ID `yaml:"migrations"`

	// Tables are sorted by name.
	Tables []schema.Table `yaml:"tables"`
}

// Definition returns the schema described by the document.
func (d Document) Definition() (schema.Definition, error) {
	def, err := schema.FromTables(d.Tables...)
	if err != nil {
		return schema.Definition{}, fmt.Errorf("%w: %w", ErrInvalidDocument, err)
	}
	return def, nil
}

// Validate checks that the migration list is ascending and matches the version, and that
// the tables form a valid definition.
func (d Document) Validate() error {
	var prev migrate.ID
	for _, id := range d.Migrations {
		if id == 0 || id <= prev {
			return fmt.Errorf("%w: migration ids must be positive and ascending", ErrInvalidDocument)
		}
		prev = id
	}
	if prev != d.Version {
		return fmt.Errorf("%w: version %d does not match last migration %d", ErrInvalidDocument, d.Version, prev)
	}
	_, err := d.Definition()
	return err
}

// Rebuild folds the given migrations, in ascending ID order, onto an empty definition.
func Rebuild(applied []migration.Migration) (schema.Definition, error) {
	def, _, err := Build(applied)
	return def, err
}

// Build folds applied migrations like Rebuild and also returns the document describing
// the result.
func Build(applied []migration.Migration) (schema.Definition, Document, error) {
	sorted := append([]migration.Migration(nil), applied...)
	migration.Sort(sorted)

	def := schema.Empty()
	doc := Document{Migrations: make([]migrate.ID, 0, len(sorted))}
	for _, m := range sorted {
		next, err := m.Fold(def)
		if err != nil {
			return schema.Definition{}, Document{}, fmt.Errorf("failed to rebuild schema: %w", err)
		}
		def = next
		doc.Migrations = append(doc.Migrations, m.ID)
		doc.Version = m.ID
	}
	doc.Tables = def.Tables()
	return def, doc, nil
}

// Encode writes doc as YAML.
func Encode(w io.Writer, doc Document) error {
	enc := yaml.NewEncoder(w)
	enc.SetIndent(2)
	if err := enc.Encode(doc); err != nil {
		return fmt.Errorf("failed to encode snapshot: %w", err)
	}
	return enc.Close()
}

// Decode reads a YAML document from r and validates it.
func Decode(r io.Reader) (Document, error) {
	var doc Document
	dec := yaml.NewDecoder(r)
	dec.KnownFields(true)
	if err := dec.Decode(&doc); err != nil {
		if errors.Is(err, io.EOF) {
			return Document{}, fmt.Errorf("%w: empty document", ErrInvalidDocument)
		}
		return Document{}, fmt.Errorf("failed to decode snapshot: %w", err)
	}
	if err := doc.Validate(); err != nil {
		return Document{}, err
	}
	return doc, nil
}

// Marshal returns the YAML encoding of doc.
func Marshal(doc Document) ([]byte, error) {
	var buf bytes.Buffer
	if err := Encode(&buf, doc); err != nil {
		return nil, err
	}
	return buf.Bytes(), nil
}
