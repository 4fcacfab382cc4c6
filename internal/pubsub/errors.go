package pubsub

import "errors"

// Domain-specific errors for broker operations.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrNotConnected is returned when attempting operations on a disconnected client.
	ErrNotConnected = errors.New("pubsub: client not connected")

	// ErrConnectionFailed is returned when a connection attempt fails for
	// a non-auth reason (network, timeout, broker unavailable).
	ErrConnectionFailed = errors.New("pubsub: connection failed")

	// ErrAuthRejected is returned when the broker refuses the credentials
	// and a token refresh did not recover the connection.
	ErrAuthRejected = errors.New("pubsub: broker rejected credentials")

	// ErrPublishFailed is returned when a publish operation fails validation.
	// Delivery failures after handoff are logged, not returned.
	ErrPublishFailed = errors.New("pubsub: publish failed")

	// ErrSubscribeFailed is returned when a subscribe operation fails.
	ErrSubscribeFailed = errors.New("pubsub: subscribe failed")

	// ErrInvalidDeviceID is returned when an empty device ID is provided.
	ErrInvalidDeviceID = errors.New("pubsub: device ID cannot be empty")

	// ErrMalformedPayload is returned by the telemetry decoder for
	// payloads that are not valid tagged telemetry objects.
	ErrMalformedPayload = errors.New("pubsub: malformed telemetry payload")

	// ErrClosed is returned when using a client after Close.
	ErrClosed = errors.New("pubsub: client closed")

	// ErrReleased is returned when releasing a subscription handle twice.
	ErrReleased = errors.New("pubsub: subscription already released")
)
