package repository

import "errors"

var (
	// ErrNotFound indicates an entity was not located.
	ErrNotFound = errors.New("repository: not found")
	// ErrConflict indicates a unique constraint rejected a concurrent create.
	ErrConflict = errors.New("repository: conflict")
	// ErrInvalidArgument indicates the store rejected malformed input.
	ErrInvalidArgument = errors.New("repository: invalid argument")
	// ErrUnavailable indicates the underlying store could not be reached.
	ErrUnavailable = errors.New("repository: store unavailable")
)
