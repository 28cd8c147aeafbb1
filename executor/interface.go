// Package executor applies planned migrations against a driver and keeps the ledger in
// step with the store.
package executor

import (
	"context"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
)

// Runner runs forward and backward plans.
// This interface allows for mock implementations in tests.
type Runner interface {
	RunForward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error)
	RunBackward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error)
}
