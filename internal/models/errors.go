package models

import (
	"errors"
)

var (
	ErrNotFound   = errors.New("not found")
	ErrConflict   = errors.New("conflict")
	ErrValidation = errors.New("validation error")

	// ErrExternalService wraps failures of collaborators such as the notifier.
	// Callers in the pipeline log it and carry on.
	ErrExternalService = errors.New("external service error")

	// ErrConcurrencyAnomaly marks a transition attempted on a round that is no longer
	// in the expected state. Pollers treat it as a no-op.
	ErrConcurrencyAnomaly = errors.New("concurrency anomaly")
)
