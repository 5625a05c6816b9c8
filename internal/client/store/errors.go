package store

import "errors"

var (
	// ErrStorageClosed is returned when an operation is attempted on a
	// closed store.
	ErrStorageClosed = errors.New("storage is closed")

	// ErrEntityNotFound is returned when an entity row does not exist.
	ErrEntityNotFound = errors.New("entity not found")

	// ErrConflictNotFound is returned when a conflict id does not exist.
	ErrConflictNotFound = errors.New("conflict not found")

	// ErrConflictResolved is returned when a terminal resolution is
	// already set; setting it again with a different outcome is refused.
	ErrConflictResolved = errors.New("conflict already resolved")
)
