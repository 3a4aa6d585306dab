package errors

import "errors"

var (
	// ErrNotFound is a generic sentinel for missing resources.
	ErrNotFound = errors.New("not found")
	// ErrInvalidArgument is a generic sentinel for invalid input.
	ErrInvalidArgument = errors.New("invalid argument")
	// ErrConflict is a generic sentinel for state conflicts (e.g. deleting a
	// sample that still backs a clone).
	ErrConflict = errors.New("conflict")
	// ErrQuotaExceeded signals a per-user quota rejection.
	ErrQuotaExceeded = errors.New("quota exceeded")
	// ErrIsolationViolation signals that a similarity query crossed an owner
	// boundary. This is an invariant break, never filtered silently.
	ErrIsolationViolation = errors.New("isolation violation")
)
