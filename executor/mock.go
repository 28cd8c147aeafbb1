package executor

import (
	"context"
	"sync"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/migration"
)

// MockRunner is a mock implementation of Runner for testing.
type MockRunner struct {
	mu sync.Mutex

	RunForwardFunc  func(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error)
	RunBackwardFunc func(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error)

	ForwardCalls  [][]migration.Migration
	BackwardCalls [][]migration.Migration
}

// NewMockRunner creates a new MockRunner with an empty call history.
func NewMockRunner() *MockRunner {
	return &MockRunner{}
}

// RunForward implements Runner.
// It records the plan, then calls RunForwardFunc if set, or returns a report listing
// every planned migration as succeeded.
func (m *MockRunner) RunForward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
	m.mu.Lock()
	m.ForwardCalls = append(m.ForwardCalls, plan)
	m.mu.Unlock()

	if m.RunForwardFunc != nil {
		return m.RunForwardFunc(ctx, plan)
	}
	return succeeded(migrate.DirectionForward, plan), nil
}

// RunBackward implements Runner.
func (m *MockRunner) RunBackward(ctx context.Context, plan []migration.Migration) (*migrate.ExecutionReport, error) {
	m.mu.Lock()
	m.BackwardCalls = append(m.BackwardCalls, plan)
	m.mu.Unlock()

	if m.RunBackwardFunc != nil {
		return m.RunBackwardFunc(ctx, plan)
	}
	return succeeded(migrate.DirectionBackward, plan), nil
}

// Reset clears the call history.
func (m *MockRunner) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()
	m.ForwardCalls = nil
	m.BackwardCalls = nil
}

func succeeded(direction migrate.Direction, plan []migration.Migration) *migrate.ExecutionReport {
	report := &migrate.ExecutionReport{Direction: direction}
	for _, mig := range plan {
		report.Succeeded = append(report.Succeeded, migrate.MigrationResult{ID: mig.ID, Name: mig.Name})
	}
	return report
}
