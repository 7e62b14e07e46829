// internal/models/errors.go
package models

import "errors"

// Error categories shared by the store, the room engine and the HTTP layer.
// Callers wrap these with fmt.Errorf("...: %w", ...) and match with errors.Is.
var (
	// ErrInvalidInput is a user-correctable request problem (bad name, bad code).
	ErrInvalidInput = errors.New("invalid input")
	// ErrNotFound means the room, player or record does not exist.
	ErrNotFound = errors.New("not found")
	// ErrConflict is a uniqueness violation (duplicate name, code collision).
	ErrConflict = errors.New("conflict")
	// ErrStaleState is an action against a room in the wrong state. It never
	// changes anything and is safe to retry.
	ErrStaleState = errors.New("stale state")
	// ErrSequenceExhausted is returned once all 75 numbers have been called.
	ErrSequenceExhausted = errors.New("no numbers left")
	// ErrForbidden is a host-only action attempted by someone else.
	ErrForbidden = errors.New("forbidden")
)
