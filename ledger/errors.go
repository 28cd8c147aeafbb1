package ledger

import "errors"

var (
	// ErrAlreadyRecorded indicates the migration is already recorded as applied.
	ErrAlreadyRecorded = errors.New("migration already recorded")

	// ErrNotRecorded indicates the migration is not recorded as applied.
	ErrNotRecorded = errors.New("migration not recorded")
)
