// Package source discovers migrations.
//
// Migration files are YAML documents named after their ID, for example
// "20230102120000_add_email_to_users.yaml":
//
//	name: AddEmailToUsers
//	up:
//	  - add_column:
//	      table: users
//	      column: {name: email, type: string, nullable: true}
//	  - add_index: {name: users_email_idx, table: users, columns: [email], unique: true}
//
// The name defaults to the part of the file name after the ID. A down list is optional; when
// it is missing the inverse of up is used.
package source

import (
	"context"
	"fmt"
	"io/fs"
	"path"
	"sort"
	"strings"

	"gopkg.in/yaml.v3"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/planner"
)

// Source provides the discovered set of migrations.
type Source interface {
	Discover(ctx context.Context) ([]migration.Migration, error)
}

var (
	_ Source = (*FS)(nil)
	_ Source = Static(nil)
)

// FS discovers migration files in the root of a file system.
type FS struct {
	fsys fs.FS
}

// NewFS creates a source reading fsys.
func NewFS(fsys fs.FS) *FS {
	return &FS{fsys: fsys}
}

// Discover implements Source.
func (s *FS) Discover(_ context.Context) ([]migration.Migration, error) {
	return Load(s.fsys)
}

// Load reads every *.yaml and *.yml file in the root of fsys. The result is sorted by ID,
// checked for duplicate IDs and has the prior definitions of destructive operations filled in.
func Load(fsys fs.FS) ([]migration.Migration, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, fmt.Errorf("failed to list migrations: %w", err)
	}

	var migrations []migration.Migration
	for _, e := range entries {
		if e.IsDir() || !isMigrationFile(e.Name()) {
			continue
		}
		data, err := fs.ReadFile(fsys, e.Name())
		if err != nil {
			return nil, fmt.Errorf("failed to read %s: %w", e.Name(), err)
		}
		m, err := Parse(e.Name(), data)
		if err != nil {
			return nil, err
		}
		migrations = append(migrations, m)
	}
	return prepare(migrations)
}

// Static is a source of migrations defined in Go.
type Static []migration.Migration

// Discover implements Source. The static list is validated and prepared like loaded files.
func (s Static) Discover(_ context.Context) ([]migration.Migration, error) {
	for _, m := range s {
		if err := m.Validate(); err != nil {
			return nil, err
		}
	}
	return prepare(s)
}

func prepare(migrations []migration.Migration) ([]migration.Migration, error) {
	if err := planner.CheckUnique(migrations); err != nil {
		return nil, err
	}
	return migration.CapturePriors(migrations)
}

func isMigrationFile(name string) bool {
	ext := path.Ext(name)
	return ext == ".yaml" || ext == ".yml"
}

type file struct {
	Name string      `yaml:"name"`
	Up   []yaml.Node `yaml:"up"`
	Down []yaml.Node `yaml:"down"`
}

// Parse decodes one migration file. filename supplies the ID and the default name.
func Parse(filename string, data []byte) (migration.Migration, error) {
	base := path.Base(filename)
	id, err := migrate.ParseID(base)
	if err != nil {
		return migration.Migration{}, fmt.Errorf("%s: %w", filename, err)
	}

	var f file
	if err := yaml.Unmarshal(data, &f); err != nil {
		return migration.Migration{}, fmt.Errorf("%s: failed to decode: %w", filename, err)
	}

	m := migration.Migration{ID: id, Name: f.Name}
	if m.Name == "" {
		m.Name = defaultName(base)
	}

	for i := range f.Up {
		op, err := decodeOperation(&f.Up[i])
		if err != nil {
			return migration.Migration{}, fmt.Errorf("%s: up[%d]: %w", filename, i, err)
		}
		m.Up = append(m.Up, op)
	}
	for i := range f.Down {
		op, err := decodeOperation(&f.Down[i])
		if err != nil {
			return migration.Migration{}, fmt.Errorf("%s: down[%d]: %w", filename, i, err)
		}
		m.Down = append(m.Down, op)
	}

	if err := m.Validate(); err != nil {
		return migration.Migration{}, fmt.Errorf("%s: %w", filename, err)
	}
	return m, nil
}

// defaultName strips the ID prefix and extension: "20230101120000_create_users.yaml"
// becomes "create_users".
func defaultName(base string) string {
	name := strings.TrimSuffix(base, path.Ext(base))
	name = strings.TrimLeft(name, "0123456789")
	return strings.TrimLeft(name, "_-")
}

// Files lists the migration file names in the root of fsys, sorted.
func Files(fsys fs.FS) ([]string, error) {
	entries, err := fs.ReadDir(fsys, ".")
	if err != nil {
		return nil, err
	}
	var names []string
	for _, e := range entries {
		if !e.IsDir() && isMigrationFile(e.Name()) {
			names = append(names, e.Name())
		}
	}
	sort.Strings(names)
	return names, nil
}
