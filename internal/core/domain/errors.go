package domain

import "errors"

var (
	// ErrInvalidTransition means an attempted state change violates the unit
	// lifecycle. It is surfaced to the caller, never silently coerced.
	ErrInvalidTransition = errors.New("invalid state transition")

	// ErrVersionConflict means a unit changed between read and write. The
	// reservation engine retries with a fresh read; other callers surface it.
	ErrVersionConflict = errors.New("version conflict")

	ErrUnitNotFound    = errors.New("unit not found")
	ErrProductNotFound = errors.New("product not found")
)
