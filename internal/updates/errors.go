package updates

import "errors"

var (
	// ErrInvalidEntity is returned when an action targets a non-update entity.
	ErrInvalidEntity = errors.New("updates: entity id must start with \"update.\"")

	// ErrActionFailed wraps a failed install/skip service call.
	ErrActionFailed = errors.New("updates: action failed")
)
