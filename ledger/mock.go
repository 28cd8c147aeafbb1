package ledger

import (
	"context"
	"sync"

	migrate "github.com/getpup/pupsourcing-migrate"
)

// MockLedger is a configurable mock implementation of Ledger for use in tests.
// It allows setting up expected return values, tracking method calls, and injecting
// errors for testing error paths.
type MockLedger struct {
	mu sync.RWMutex

	// ProvisionFunc is called by Provision if set.
	ProvisionFunc func(ctx context.Context) error

	// IsAppliedFunc is called by IsApplied if set.
	IsAppliedFunc func(ctx context.Context, id migrate.ID) (bool, error)

	// RecordAppliedFunc is called by RecordApplied if set.
	RecordAppliedFunc func(ctx context.Context, entry migrate.LedgerEntry) error

	// RecordRevertedFunc is called by RecordReverted if set.
	RecordRevertedFunc func(ctx context.Context, id migrate.ID) error

	// AppliedIDsFunc is called by AppliedIDs if set.
	AppliedIDsFunc func(ctx context.Context) ([]migrate.ID, error)

	// EntriesFunc is called by Entries if set.
	EntriesFunc func(ctx context.Context) ([]migrate.LedgerEntry, error)

	// Call tracking
	ProvisionCalls      int
	IsAppliedCalls      []migrate.ID
	RecordAppliedCalls  []migrate.LedgerEntry
	RecordRevertedCalls []migrate.ID
	AppliedIDsCalls     int
	EntriesCalls        int
}

var _ Ledger = (*MockLedger)(nil)

// NewMockLedger creates a new mock ledger.
func NewMockLedger() *MockLedger {
	return &MockLedger{}
}

// Provision implements Ledger.
func (m *MockLedger) Provision(ctx context.Context) error {
	m.mu.Lock()
	m.ProvisionCalls++
	m.mu.Unlock()

	if m.ProvisionFunc != nil {
		return m.ProvisionFunc(ctx)
	}
	return nil
}

// IsApplied implements Ledger.
func (m *MockLedger) IsApplied(ctx context.Context, id migrate.ID) (bool, error) {
	m.mu.Lock()
	m.IsAppliedCalls = append(m.IsAppliedCalls, id)
	m.mu.Unlock()

	if m.IsAppliedFunc != nil {
		return m.IsAppliedFunc(ctx, id)
	}
	return false, nil
}

// RecordApplied implements Ledger.
func (m *MockLedger) RecordApplied(ctx context.Context, entry migrate.LedgerEntry) error {
	m.mu.Lock()
	m.RecordAppliedCalls = append(m.RecordAppliedCalls, entry)
	m.mu.Unlock()

	if m.RecordAppliedFunc != nil {
		return m.RecordAppliedFunc(ctx, entry)
	}
	return nil
}

// RecordReverted implements Ledger.
func (m *MockLedger) RecordReverted(ctx context.Context, id migrate.ID) error {
	m.mu.Lock()
	m.RecordRevertedCalls = append(m.RecordRevertedCalls, id)
	m.mu.Unlock()

	if m.RecordRevertedFunc != nil {
		return m.RecordRevertedFunc(ctx, id)
	}
	return nil
}

// AppliedIDs implements Ledger.
func (m *MockLedger) AppliedIDs(ctx context.Context) ([]migrate.ID, error) {
	m.mu.Lock()
	m.AppliedIDsCalls++
	m.mu.Unlock()

	if m.AppliedIDsFunc != nil {
		return m.AppliedIDsFunc(ctx)
	}
	return nil, nil
}

// Entries implements Ledger.
func (m *MockLedger) Entries(ctx context.Context) ([]migrate.LedgerEntry, error) {
	m.mu.Lock()
	m.EntriesCalls++
	m.mu.Unlock()

	if m.EntriesFunc != nil {
		return m.EntriesFunc(ctx)
	}
	return nil, nil
}

// Reset clears all call tracking data.
func (m *MockLedger) Reset() {
	m.mu.Lock()
	defer m.mu.Unlock()

	m.ProvisionCalls = 0
	m.IsAppliedCalls = nil
	m.RecordAppliedCalls = nil
	m.RecordRevertedCalls = nil
	m.AppliedIDsCalls = 0
	m.EntriesCalls = 0
}
