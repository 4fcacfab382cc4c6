package auth

import (
	"fmt"
	"time"

	"github.com/golang-jwt/jwt/v5"
)

// expiryLeeway is subtracted from the exp claim so a token about to
// expire mid-handshake counts as already expired.
const expiryLeeway = 30 * time.Second

// Expired reports whether the given access token is expired or will
// expire within the leeway window.
//
// The signature is NOT verified; the backend is the authority on token
// validity. This check only lets callers refresh proactively instead of
// presenting a dead token to the broker.
//
// Parameters:
//   - token: the raw JWT access token
//
// Returns:
//   - bool: true if the token is expired or expiring imminently
//   - error: ErrMalformedToken if the token cannot be parsed
func Expired(token string) (bool, error) {
	parser := jwt.NewParser()

	claims := jwt.MapClaims{}
	if _, _, err := parser.ParseUnverified(token, claims); err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}

	exp, err := claims.GetExpirationTime()
	if err != nil {
		return false, fmt.Errorf("%w: %w", ErrMalformedToken, err)
	}
	if exp == nil {
		// No exp claim means the token never expires client-side.
		return false, nil
	}

	return time.Now().Add(expiryLeeway).After(exp.Time), nil
}
