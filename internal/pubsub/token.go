package pubsub

import "github.com/roomlink/roomlink/internal/auth"

// defaultTokenExpired defers to the auth package's unverified exp check.
// A token that cannot be parsed is treated as not expired; the broker
// decides whether to accept it.
func defaultTokenExpired(token string) (bool, error) {
	return auth.Expired(token)
}
