package signaling

import "errors"

// Domain-specific errors for WebRTC signaling.
// Use errors.Is() to check for these errors in calling code.
var (
	// ErrRelayClosed is returned when the relay websocket closes or
	// errors while a session is live.
	ErrRelayClosed = errors.New("signaling: relay connection closed")

	// ErrRelayDialFailed is returned when the relay cannot be reached.
	ErrRelayDialFailed = errors.New("signaling: relay dial failed")

	// ErrOfferTimeout is returned when no offer arrives within the
	// configured wait after registering as a watcher.
	ErrOfferTimeout = errors.New("signaling: timed out waiting for offer")

	// ErrHandshakeFailed is returned when applying the offer or building
	// the answer fails.
	ErrHandshakeFailed = errors.New("signaling: handshake failed")

	// ErrBadEnvelope is returned for relay messages that do not decode
	// into a known event.
	ErrBadEnvelope = errors.New("signaling: bad relay envelope")

	// ErrPeerFailed is returned when the peer connection moves to
	// failed, disconnected, or closed.
	ErrPeerFailed = errors.New("signaling: peer connection failed")

	// ErrAlreadyStarted is returned when starting a session twice.
	ErrAlreadyStarted = errors.New("signaling: session already started")

	// ErrClosed is returned when using a session after Close.
	ErrClosed = errors.New("signaling: session closed")
)
