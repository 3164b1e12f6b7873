package repository

import "errors"

var (
	// ErrNotFound is returned when a requested entity does not exist.
	ErrNotFound = errors.New("entity not found")

	// ErrConflict is returned when a write violates a uniqueness constraint.
	ErrConflict = errors.New("entity already exists")

	// ErrLockTimeout is returned when a row lock could not be obtained within the configured wait.
	// Callers may retry the whole operation.
	ErrLockTimeout = errors.New("timed out waiting for row lock")
)
