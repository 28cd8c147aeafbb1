// Package memory provides an in-memory ledger for tests, examples and dry runs.
package memory

import (
	"context"
	"fmt"
	"sort"
	"sync"

	migrate "github.com/getpup/pupsourcing-migrate"
	"github.com/getpup/pupsourcing-migrate/ledger"
)

// Ledger is an in-memory implementation of ledger.Ledger.
// It provides thread-safe access to entries using a sync.RWMutex.
type Ledger struct {
	mu          sync.RWMutex
	entries     map[migrate.ID]migrate.LedgerEntry
	provisioned bool
}

var _ ledger.Ledger = (*Ledger)(nil)

// New creates an empty ledger.
func New() *Ledger {
	return &Ledger{
		entries: make(map[migrate.ID]migrate.LedgerEntry),
	}
}

// Provision implements ledger.Ledger.
func (l *Ledger) Provision(ctx context.Context) error {
	l.mu.Lock()
	defer l.mu.Unlock()
	l.provisioned = true
	return nil
}

// Provisioned reports whether Provision has been called.
func (l *Ledger) Provisioned() bool {
	l.mu.RLock()
	defer l.mu.RUnlock()
	return l.provisioned
}

// IsApplied implements ledger.Ledger.
func (l *Ledger) IsApplied(ctx context.Context, id migrate.ID) (bool, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()
	_, ok := l.entries[id]
	return ok, nil
}

// RecordApplied implements ledger.Ledger.
func (l *Ledger) RecordApplied(ctx context.Context, entry migrate.LedgerEntry) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[entry.ID]; ok {
		return fmt.Errorf("%w: %s", ledger.ErrAlreadyRecorded, entry.ID)
	}
	l.entries[entry.ID] = entry
	return nil
}

// RecordReverted implements ledger.Ledger.
func (l *Ledger) RecordReverted(ctx context.Context, id migrate.ID) error {
	l.mu.Lock()
	defer l.mu.Unlock()

	if _, ok := l.entries[id]; !ok {
		return fmt.Errorf("%w: %s", ledger.ErrNotRecorded, id)
	}
	delete(l.entries, id)
	return nil
}

// AppliedIDs implements ledger.Ledger.
func (l *Ledger) AppliedIDs(ctx context.Context) ([]migrate.ID, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	ids := make([]migrate.ID, 0, len(l.entries))
	for id := range l.entries {
		ids = append(ids, id)
	}
	sort.Slice(ids, func(i, j int) bool { return ids[i] < ids[j] })
	return ids, nil
}

// Entries implements ledger.Ledger.
func (l *Ledger) Entries(ctx context.Context) ([]migrate.LedgerEntry, error) {
	l.mu.RLock()
	defer l.mu.RUnlock()

	entries := make([]migrate.LedgerEntry, 0, len(l.entries))
	for _, e := range l.entries {
		entries = append(entries, e)
	}
	sort.Slice(entries, func(i, j int) bool { return entries[i].ID < entries[j].ID })
	return entries, nil
}
