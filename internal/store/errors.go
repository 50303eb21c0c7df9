package store

import "errors"

var (
	// ErrNotFound is returned when a requested record is not found
	ErrNotFound = errors.New("not found")

	// ErrConflict is returned when a create collides with an existing record
	ErrConflict = errors.New("conflict")
)
