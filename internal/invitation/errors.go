package invitation

import "errors"

var (
	// ErrInvalidInput is returned for an empty visitor name or a validity
	// period outside 1-3 days.
	ErrInvalidInput = errors.New("invalid input")

	// ErrDuplicateToken is returned when a token is already stored.
	ErrDuplicateToken = errors.New("duplicate token")

	ErrNotFound    = errors.New("invitation not found")
	ErrAlreadyUsed = errors.New("invitation already used")
	ErrExpired     = errors.New("invitation expired")

	// ErrStoreUnavailable wraps any storage failure, including timeouts.
	// The outcome of the failed operation is unknown.
	ErrStoreUnavailable = errors.New("invitation store unavailable")
)
