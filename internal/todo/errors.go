package todo

import "errors"

var (
	// ErrInvalidEntity is returned for ids outside the todo domain.
	ErrInvalidEntity = errors.New("todo: entity id must start with \"todo.\"")

	// ErrEntityNotAllowed is returned for to-do lists not listed in the configuration.
	ErrEntityNotAllowed = errors.New("todo: entity not configured")

	// ErrEmptySummary is returned when adding or renaming to a blank summary.
	ErrEmptySummary = errors.New("todo: summary is required")

	// ErrEmptyItem is returned when no item uid or summary is given.
	ErrEmptyItem = errors.New("todo: item is required")

	// ErrInvalidStatus is returned for statuses other than needs_action and completed.
	ErrInvalidStatus = errors.New("todo: invalid status")

	// ErrInvalidDue is returned when a due value cannot be parsed.
	ErrInvalidDue = errors.New("todo: invalid due date")

	// ErrNoChanges is returned by Update when the change is empty.
	ErrNoChanges = errors.New("todo: no changes")
)
