package types

import "errors"

// Store lifecycle errors.
var (
	ErrStoreClosed     = errors.New("store is closed")
	ErrAlreadyAttached = errors.New("store is already attached")
	ErrTableNotFound   = errors.New("table not found")
)

// Record errors.
var (
	ErrNotFound    = errors.New("entity not found")
	ErrInvalidID   = errors.New("invalid entity ID")
	ErrInvalidData = errors.New("invalid entity data")
	ErrInvalidName = errors.New("title must not be empty")
	ErrTombstoned  = errors.New("entity is deleted")
	ErrUUIDChanged = errors.New("entity UUID is immutable")
)

// Entity value errors.
var (
	ErrInvalidStatus = errors.New("invalid task status")
	ErrInvalidKind   = errors.New("invalid task kind")
)
