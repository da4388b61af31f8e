package storage

import "errors"

// Common storage errors.
var (
	// ErrNotFound is returned when a record is not found.
	ErrNotFound = errors.New("record not found")

	// ErrConflict is returned when a record with the same key already exists
	// or was modified concurrently.
	ErrConflict = errors.New("record already exists")

	// ErrInvalidStatus is returned for a status outside the report lifecycle.
	ErrInvalidStatus = errors.New("invalid report status")
)
