package migrations

import (
	"fmt"
	"os"
	"path/filepath"
	"strings"
	"time"

	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/ledger/sqlledger"
	"github.com/getpup/pupsourcing-migrate/lock/lease"
	"github.com/getpup/pupsourcing-migrate/operation"
)

// validateConfig validates all configuration values to prevent SQL injection.
func validateConfig(config *Config) error {
	if err := dialect.ValidateIdentifier(config.LedgerTable, "LedgerTable"); err != nil {
		return err
	}
	if config.LockTable != "" {
		if err := dialect.ValidateIdentifier(config.LockTable, "LockTable"); err != nil {
			return err
		}
	}
	if config.OutputFilename == "" {
		return fmt.Errorf("OutputFilename cannot be empty")
	}
	return nil
}

// Config configures generation of the infrastructure tables.
type Config struct {
	// OutputFolder is the directory where the migration file will be written
	OutputFolder string

	// OutputFilename is the name of the migration file
	OutputFilename string

	// LedgerTable is the name of the table recording applied migrations
	LedgerTable string

	// LockTable is the name of the lease lock table. Empty skips it, for deployments
	// using advisory or Redis locks.
	LockTable string
}

// DefaultConfig returns the default configuration for infrastructure migrations.
func DefaultConfig() Config {
	timestamp := time.Now().Format("20060102150405")
	return Config{
		OutputFolder:   "migrations",
		OutputFilename: fmt.Sprintf("%s_init_migrate_infrastructure.sql", timestamp),
		LedgerTable:    sqlledger.DefaultTableConfig().LedgerTable,
		LockTable:      lease.DefaultTableConfig().LockTable,
	}
}

// GeneratePostgres generates a PostgreSQL migration file.
func GeneratePostgres(config *Config) error {
	return Generate(config, dialect.Postgres)
}

// GenerateMySQL generates a MySQL/MariaDB migration file.
func GenerateMySQL(config *Config) error {
	return Generate(config, dialect.MySQL)
}

// GenerateSQLite generates a SQLite migration file.
func GenerateSQLite(config *Config) error {
	return Generate(config, dialect.SQLite)
}

// Generate writes the migration file for d.
func Generate(config *Config, d dialect.Dialect) error {
	// Validate configuration to prevent SQL injection
	if err := validateConfig(config); err != nil {
		return fmt.Errorf("invalid configuration: %w", err)
	}

	sql, err := GenerateSQL(config, d)
	if err != nil {
		return err
	}

	if err := os.MkdirAll(config.OutputFolder, 0o755); err != nil {
		return fmt.Errorf("failed to create output folder: %w", err)
	}

	outputPath := filepath.Join(config.OutputFolder, config.OutputFilename)
	if err := os.WriteFile(outputPath, []byte(sql), 0o600); err != nil {
		return fmt.Errorf("failed to write migration file: %w", err)
	}

	return nil
}

// GenerateSQL renders the infrastructure DDL for d. Statements are rendered by the same
// dialect code the engine provisions with, so a generated file and Provision agree.
func GenerateSQL(config *Config, d dialect.Dialect) (string, error) {
	if err := validateConfig(config); err != nil {
		return "", fmt.Errorf("invalid configuration: %w", err)
	}

	var b strings.Builder
	fmt.Fprintf(&b, "-- Migration Engine Infrastructure\n-- Generated: %s\n-- Database: %s\n",
		time.Now().Format(time.RFC3339), d.Name())

	b.WriteString("\n-- Ledger of applied migrations, one row per migration\n")
	if err := writeTable(&b, d, operation.CreateTable{Table: sqlledger.LedgerTable(config.LedgerTable), IfNotExists: true}); err != nil {
		return "", err
	}

	if config.LockTable != "" {
		b.WriteString("\n-- Lease lock serializing runs, kept alive by heartbeats (unix milliseconds)\n")
		if err := writeTable(&b, d, operation.CreateTable{Table: lease.LockTable(config.LockTable), IfNotExists: true}); err != nil {
			return "", err
		}
	}

	return b.String(), nil
}

func writeTable(b *strings.Builder, d dialect.Dialect, op operation.CreateTable) error {
	stmts, err := d.Statements(op)
	if err != nil {
		return fmt.Errorf("failed to render table %s: %w", op.Table.Name, err)
	}
	for _, stmt := range stmts {
		b.WriteString(stmt)
		b.WriteString(";\n")
	}
	return nil
}
