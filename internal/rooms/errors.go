package rooms

import "errors"

// Domain-specific errors for room snapshot fetching.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrUnauthorized is returned when the backend rejects the access
	// token and a refresh-and-retry did not recover.
	ErrUnauthorized = errors.New("rooms: unauthorized")

	// ErrNotFound is returned when the requested room does not exist.
	ErrNotFound = errors.New("rooms: room not found")

	// ErrRequestFailed is returned for transport errors and unexpected
	// backend status codes.
	ErrRequestFailed = errors.New("rooms: request failed")
)
