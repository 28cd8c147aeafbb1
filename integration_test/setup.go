//go:build integration

package integration_test

import (
	"database/sql"
	"os"
	"testing"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"

	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/migration"
	"github.com/getpup/pupsourcing-migrate/operation"
	"github.com/getpup/pupsourcing-migrate/schema"
)

const (
	ledgerTable = "it_schema_migrations"
	lockTable   = "it_schema_migrations_lock"
)

// tables lists every table the suite creates, dropped between tests.
var tables = []string{"it_posts", "it_users", ledgerTable, lockTable}

// getPostgresDB returns a database connection for integration tests.
// It reads the DATABASE_URL environment variable and skips the test if not set.
func getPostgresDB(t *testing.T) *sql.DB {
	t.Helper()
	return open(t, "postgres", "DATABASE_URL")
}

// getMySQLDB reads MYSQL_DSN, for example "root:secret@tcp(localhost:3306)/app".
func getMySQLDB(t *testing.T) *sql.DB {
	t.Helper()
	return open(t, "mysql", "MYSQL_DSN")
}

func open(t *testing.T, driverName, env string) *sql.DB {
	t.Helper()

	dsn := os.Getenv(env)
	if dsn == "" {
		t.Skipf("%s not set, skipping integration test", env)
	}

	db, err := sql.Open(driverName, dsn)
	if err != nil {
		t.Fatalf("failed to open database: %v", err)
	}

	if err := db.Ping(); err != nil {
		t.Fatalf("failed to ping database: %v", err)
	}

	return db
}

// teardownTables drops every table the suite creates.
// Errors are logged but don't fail the test.
func teardownTables(t *testing.T, db *sql.DB, d dialect.Dialect) {
	t.Helper()

	for _, table := range tables {
		if _, err := db.Exec("DROP TABLE IF EXISTS " + d.QuoteIdent(table)); err != nil {
			t.Logf("warning: failed to drop %s: %v", table, err)
		}
	}
}

// columns lists the column names of table as reported by information_schema.
func columns(t *testing.T, db *sql.DB, d dialect.Dialect, table string) []string {
	t.Helper()

	query := "SELECT column_name FROM information_schema.columns WHERE table_name = $1 AND table_schema = current_schema() ORDER BY column_name"
	if d.Name() == dialect.MySQL.Name() {
		query = "SELECT column_name FROM information_schema.columns WHERE table_name = ? AND table_schema = DATABASE() ORDER BY column_name"
	}

	rows, err := db.Query(query, table)
	if err != nil {
		t.Fatalf("failed to list columns of %s: %v", table, err)
	}
	defer rows.Close()

	var names []string
	for rows.Next() {
		var name string
		if err := rows.Scan(&name); err != nil {
			t.Fatalf("failed to scan column: %v", err)
		}
		names = append(names, name)
	}
	if err := rows.Err(); err != nil {
		t.Fatalf("failed to list columns of %s: %v", table, err)
	}
	return names
}

func createUsers() migration.Migration {
	return migration.Migration{
		ID:   20230101120000,
		Name: "CreateUsers",
		Up: []operation.Operation{
			operation.CreateTable{Table: schema.Table{
				Name: "it_users",
				Columns: []schema.Column{
					{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true},
					{Name: "name", Type: schema.TypeString, Size: 100},
				},
			}},
		},
	}
}

func addEmail() migration.Migration {
	return migration.Migration{
		ID:   20230102120000,
		Name: "AddEmailToUsers",
		Up: []operation.Operation{
			operation.AddColumn{Table: "it_users", Column: schema.Column{Name: "email", Type: schema.TypeString, Nullable: true}},
			operation.AddIndex{Index: schema.Index{Name: "it_users_email_idx", Table: "it_users", Columns: []string{"email"}, Unique: true}},
		},
	}
}

// brokenPosts creates a table and then fails on invalid SQL.
func brokenPosts() migration.Migration {
	return migration.Migration{
		ID:   20230103120000,
		Name: "CreatePostsBroken",
		Up: []operation.Operation{
			operation.CreateTable{Table: schema.Table{
				Name:    "it_posts",
				Columns: []schema.Column{{Name: "id", Type: schema.TypeBigInt, PrimaryKey: true}},
			}},
			operation.Execute{SQL: "INSERT INTO it_missing_table VALUES (1)", Inverse: "SELECT 1"},
		},
	}
}
