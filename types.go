package migrate

import (
	"fmt"
	"math"
	"strconv"
	"strings"
	"time"
)

// IDLayout is the time layout used for timestamp-derived migration identifiers.
const IDLayout = "20060102150405"

// ID identifies a migration. IDs are unique and sortable; the conventional value is a UTC
// timestamp in IDLayout, but any positive integer is accepted.
type ID uint64

// MaxID is the largest ID a ledger can store; SQL ledgers keep IDs in signed 64-bit columns.
const MaxID ID = math.MaxInt64

// NewID returns the timestamp-derived ID for t.
func NewID(t time.Time) ID {
	id, _ := strconv.ParseUint(t.UTC().Format(IDLayout), 10, 64)
	return ID(id)
}

// ParseID parses an ID from s. A leading run of digits is used, so file names such as
// "20230101120000_create_users.yaml" parse to their numeric prefix.
func ParseID(s string) (ID, error) {
	end := 0
	for end < len(s) && s[end] >= '0' && s[end] <= '9' {
		end++
	}
	if end == 0 {
		return 0, fmt.Errorf("invalid migration id %q: must start with digits", s)
	}
	v, err := strconv.ParseUint(s[:end], 10, 64)
	if err != nil {
		return 0, fmt.Errorf("invalid migration id %q: %w", s, err)
	}
	if v == 0 {
		return 0, fmt.Errorf("invalid migration id %q: must be positive", s)
	}
	if ID(v) > MaxID {
		return 0, fmt.Errorf("invalid migration id %q: exceeds %s", s, MaxID)
	}
	return ID(v), nil
}

// String returns the decimal form of the ID.
func (id ID) String() string {
	return strconv.FormatUint(uint64(id), 10)
}

// Direction is the direction a plan runs in.
type Direction string

const (
	// DirectionForward applies migrations.
	DirectionForward Direction = "forward"

	// DirectionBackward reverts migrations.
	DirectionBackward Direction = "backward"
)

// LedgerEntry records a migration that has been applied to a target store.
type LedgerEntry struct {
	// ID is the applied migration's identifier.
	ID ID

	// Name is the human name of the migration at the time it was applied.
	Name string

	// Checksum is the migration checksum at the time it was applied.
	// Empty for entries recorded by snapshot bootstrap.
	Checksum string

	// AppliedAt is when the migration was applied.
	AppliedAt time.Time

	// ExecutionTime is how long the migration took.
	ExecutionTime time.Duration
}

// DirectiveKind names an action requested by an automation layer.
type DirectiveKind string

const (
	// DirectiveApply applies every pending migration (optionally up to a target).
	DirectiveApply DirectiveKind = "apply"

	// DirectiveRollback reverts the N most recently applied migrations.
	DirectiveRollback DirectiveKind = "rollback"

	// DirectiveStatus reports applied and pending migrations.
	DirectiveStatus DirectiveKind = "status"

	// DirectiveBootstrap loads the schema snapshot into an empty store.
	DirectiveBootstrap DirectiveKind = "bootstrap"
)

// ParseDirectiveKind maps CLI spellings to a DirectiveKind.
func ParseDirectiveKind(s string) (DirectiveKind, error) {
	switch strings.ToLower(strings.TrimSpace(s)) {
	case "apply", "up", "apply-all-pending":
		return DirectiveApply, nil
	case "rollback", "down", "rollback-n":
		return DirectiveRollback, nil
	case "status":
		return DirectiveStatus, nil
	case "bootstrap", "bootstrap-from-snapshot", "load":
		return DirectiveBootstrap, nil
	default:
		return "", fmt.Errorf("unknown directive %q", s)
	}
}
