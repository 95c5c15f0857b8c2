package store

import "errors"

var (
	ErrNotFound  = errors.New("store: resource not found")
	ErrDuplicate = errors.New("store: duplicate resource")
	// ErrConflict is returned when a compare-and-set update lost to a concurrent writer.
	ErrConflict            = errors.New("store: conflicting resource state")
	ErrForeignKeyViolation = errors.New("store: foreign key constraint violation")
)
