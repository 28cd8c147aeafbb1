// Command migrate applies, reverts and inspects schema migrations.
//
// Usage:
//
//	migrate [-config migrate.yaml] <command> [flags]
//
// Commands:
//
//	up        apply pending migrations (-to ID stops at a target)
//	down      revert the most recently applied migrations (-n count, default 1)
//	status    list applied, pending, missing and drifted migrations
//	plan      print what up or down would do without changing anything
//	bootstrap load the schema snapshot into an empty database
//	snapshot  rebuild the schema snapshot from the ledger (-o file, default stdout)
//	new       create an empty migration file (migrate new add_email_to_users)
//	version   print the version
//
// Configuration comes from the YAML file and MIGRATE_* environment variables, for example
// MIGRATE_DATABASE_DRIVER=postgres and MIGRATE_DATABASE_DSN=postgres://localhost/app.
package main

import (
	"context"
	"fmt"
	"os"
	"os/signal"
	"syscall"

	_ "github.com/go-sql-driver/mysql"
	_ "github.com/jackc/pgx/v5/stdlib"
	_ "github.com/lib/pq"
	_ "github.com/mattn/go-sqlite3"
	_ "modernc.org/sqlite"
)

func main() {
	ctx, stop := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer stop()

	if err := run(ctx, os.Args[1:], os.Stdout, os.Stderr); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		stop()
		os.Exit(exitCode(err))
	}
}
