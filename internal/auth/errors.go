package auth

import "errors"

// Domain-specific errors for credential handling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNoCredentials is returned when the store holds no token pair.
	ErrNoCredentials = errors.New("auth: no credentials stored")

	// ErrRefreshFailed is returned when the refresh endpoint rejects the
	// refresh token or cannot be reached. The store is cleared when this
	// error is returned from Refresh.
	ErrRefreshFailed = errors.New("auth: token refresh failed")

	// ErrMalformedToken is returned when a token cannot be parsed as a JWT.
	ErrMalformedToken = errors.New("auth: malformed token")
)
