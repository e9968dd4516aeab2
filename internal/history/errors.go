package history

import "errors"

var (
	// ErrNotFound is returned when an item has never been seen offline.
	ErrNotFound = errors.New("history: not found")

	// ErrInvalidKind is returned for kinds other than device and entity.
	ErrInvalidKind = errors.New("history: invalid kind")

	// ErrInvalidRetention is returned when pruning with a non-positive age.
	ErrInvalidRetention = errors.New("history: retention must be positive")
)
