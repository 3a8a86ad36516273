package workflow

import "errors"

var (
	// ErrNotFound is returned when a requested record does not exist.
	// Handlers map it to 404 before any permission evaluation.
	ErrNotFound = errors.New("record not found")

	// ErrDuplicate is returned when an insert violates a uniqueness
	// constraint, such as a second team assignment for the same
	// membership and program.
	ErrDuplicate = errors.New("record already exists")
)
