//go:build integration

package migrations_test

import (
	"context"
	"database/sql"
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"testing"
	"time"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/ledger/sqlledger"
	"github.com/getpup/pupsourcing-migrate/pkg/migrations"
)

// NOTE: Integration tests use string interpolation for SQL queries with validated
// configuration values. This is acceptable in test code as all config values are
// controlled by the test and have been validated by the migrations package.
// Production code should always use parameterized queries.

func generate(t *testing.T, d dialect.Dialect, config migrations.Config) []string {
	t.Helper()

	config.OutputFolder = t.TempDir()
	config.OutputFilename = d.Name() + "_integration.sql"
	if err := migrations.Generate(&config, d); err != nil {
		t.Fatalf("Failed to generate migration: %v", err)
	}

	content, err := os.ReadFile(filepath.Join(config.OutputFolder, config.OutputFilename))
	if err != nil {
		t.Fatalf("Failed to read migration file: %v", err)
	}

	// Drivers differ in multi-statement support, so statements run one at a time.
	var stmts []string
	for _, stmt := range strings.Split(string(content), ";\n") {
		var lines []string
		for _, line := range strings.Split(stmt, "\n") {
			if !strings.HasPrefix(strings.TrimSpace(line), "--") {
				lines = append(lines, line)
			}
		}
		if s := strings.TrimSpace(strings.Join(lines, "\n")); s != "" {
			stmts = append(stmts, s)
		}
	}
	return stmts
}

func apply(t *testing.T, db *sql.DB, stmts []string) {
	t.Helper()
	for _, stmt := range stmts {
		if _, err := db.Exec(stmt); err != nil {
			t.Fatalf("Failed to execute migration statement %q: %v", stmt, err)
		}
	}
}

func verifyLedger(t *testing.T, db *sql.DB, d dialect.Dialect, table string) {
	t.Helper()
	ctx := context.Background()

	l := sqlledger.NewWithConfig(db, d, sqlledger.TableConfig{LedgerTable: table})
	if err := l.Provision(ctx); err != nil {
		t.Fatalf("Provision over generated ledger failed: %v", err)
	}

	entry := migrate.LedgerEntry{ID: 20230101120000, Name: "CreateUsers", Checksum: "abc", AppliedAt: time.Now().UTC(), ExecutionTime: 5 * time.Millisecond}
	if err := l.RecordApplied(ctx, entry); err != nil {
		t.Fatalf("Failed to record into generated ledger: %v", err)
	}
	applied, err := l.IsApplied(ctx, entry.ID)
	if err != nil || !applied {
		t.Fatalf("Expected entry to be applied, got %v (err %v)", applied, err)
	}
}

func TestIntegrationPostgres(t *testing.T) {
	dbURL := os.Getenv("POSTGRES_URL")
	if dbURL == "" {
		t.Skip("POSTGRES_URL not set, skipping PostgreSQL integration test")
	}

	config := migrations.Config{LedgerTable: "gen_schema_migrations", LockTable: "gen_schema_migrations_lock"}
	stmts := generate(t, dialect.Postgres, config)

	db, err := sql.Open("postgres", dbURL)
	if err != nil {
		t.Fatalf("Failed to connect to PostgreSQL: %v", err)
	}
	defer db.Close()

	cleanup := func() {
		for _, table := range []string{config.LedgerTable, config.LockTable} {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
				t.Logf("Warning: Failed to clean up %s: %v", table, err)
			}
		}
	}
	cleanup()
	defer cleanup()

	apply(t, db, stmts)
	// running the file twice is harmless
	apply(t, db, stmts)

	var lockExists bool
	err = db.QueryRow("SELECT EXISTS(SELECT 1 FROM information_schema.tables WHERE table_name = $1)", config.LockTable).Scan(&lockExists)
	if err != nil {
		t.Fatalf("Failed to check lock table: %v", err)
	}
	if !lockExists {
		t.Error("lock table was not created")
	}

	verifyLedger(t, db, dialect.Postgres, config.LedgerTable)
}

func TestIntegrationMySQL(t *testing.T) {
	dsn := os.Getenv("MYSQL_DSN")
	if dsn == "" {
		t.Skip("MYSQL_DSN not set, skipping MySQL integration test")
	}

	config := migrations.Config{LedgerTable: "gen_schema_migrations", LockTable: "gen_schema_migrations_lock"}
	stmts := generate(t, dialect.MySQL, config)

	db, err := sql.Open("mysql", dsn)
	if err != nil {
		t.Fatalf("Failed to connect to MySQL: %v", err)
	}
	defer db.Close()

	cleanup := func() {
		for _, table := range []string{config.LedgerTable, config.LockTable} {
			if _, err := db.Exec(fmt.Sprintf("DROP TABLE IF EXISTS %s", table)); err != nil {
				t.Logf("Warning: Failed to clean up %s: %v", table, err)
			}
		}
	}
	cleanup()
	defer cleanup()

	apply(t, db, stmts)
	apply(t, db, stmts)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM information_schema.tables WHERE table_schema = DATABASE() AND table_name IN (?, ?)",
		config.LedgerTable, config.LockTable).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to check tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 tables, found %d", count)
	}

	verifyLedger(t, db, dialect.MySQL, config.LedgerTable)
}

func TestIntegrationSQLite(t *testing.T) {
	config := migrations.DefaultConfig()
	stmts := generate(t, dialect.SQLite, config)

	db, err := sql.Open("sqlite3", filepath.Join(t.TempDir(), "integration.db"))
	if err != nil {
		t.Fatalf("Failed to open SQLite database: %v", err)
	}
	defer db.Close()
	db.SetMaxOpenConns(1)

	apply(t, db, stmts)

	var count int
	err = db.QueryRow("SELECT COUNT(*) FROM sqlite_master WHERE type = 'table' AND name IN (?, ?)",
		config.LedgerTable, config.LockTable).Scan(&count)
	if err != nil {
		t.Fatalf("Failed to check tables: %v", err)
	}
	if count != 2 {
		t.Errorf("Expected 2 tables, found %d", count)
	}

	verifyLedger(t, db, dialect.SQLite, config.LedgerTable)
}
