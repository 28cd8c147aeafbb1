// Command migrate-gen generates SQL files provisioning the migration engine's ledger and lock
// tables, for databases where DDL is applied by hand before the first run.
//
// Usage:
//
//	go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -output migrations -filename init.sql
//
// Or with go generate:
//
//	//go:generate go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -output migrations
//
// Generate migrations for different database adapters:
//
//	go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -adapter postgres -output migrations
//	go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -adapter mysql -output migrations
//	go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -adapter sqlite -output migrations
//
// Customize table names, or skip the lock table when using advisory or Redis locks:
//
//	go run github.com/getpup/pupsourcing-migrate/cmd/migrate-gen -ledger-table app_migrations -lock-table ""
package main

import (
	"flag"
	"fmt"
	"os"

	"github.com/getpup/pupsourcing-migrate/dialect"
	"github.com/getpup/pupsourcing-migrate/pkg/migrations"
)

func main() {
	defaults := migrations.DefaultConfig()

	var (
		adapter        = flag.String("adapter", "postgres", "Database adapter: postgres, mysql, or sqlite")
		outputFolder   = flag.String("output", defaults.OutputFolder, "Output folder for migration file")
		outputFilename = flag.String("filename", "", "Output filename (default: timestamp-based)")
		ledgerTable    = flag.String("ledger-table", defaults.LedgerTable, "Name of the ledger table")
		lockTable      = flag.String("lock-table", defaults.LockTable, "Name of the lease lock table (empty to skip)")
	)

	flag.Parse()

	config := defaults
	config.OutputFolder = *outputFolder
	config.LedgerTable = *ledgerTable
	config.LockTable = *lockTable

	if *outputFilename != "" {
		config.OutputFilename = *outputFilename
	}

	d, err := dialect.ByName(*adapter)
	if err != nil {
		fmt.Fprintf(os.Stderr, "Error: unsupported adapter '%s'. Supported adapters are: postgres, mysql, sqlite\n", *adapter)
		os.Exit(1)
	}

	if err := migrations.Generate(&config, d); err != nil {
		fmt.Fprintf(os.Stderr, "Error generating migration: %v\n", err)
		os.Exit(1)
	}

	fmt.Printf("Generated %s migration: %s/%s\n", d.Name(), config.OutputFolder, config.OutputFilename)
}
