package signaling

// State is the lifecycle position of a camera session.
//
// Transitions:
//
//	Idle → WatcherRegistered → OfferReceived → AnswerSent → Connected
//
// Any state can move to Disconnected: peer failure, relay loss, offer
// timeout, or Close. A broadcaster announcement moves an unconnected
// session back to WatcherRegistered for a fresh handshake.
type State int

// Session states.
const (
	StateIdle State = iota
	StateWatcherRegistered
	StateOfferReceived
	StateAnswerSent
	StateConnected
	StateDisconnected
)

// String returns the state name for logging.
func (s State) String() string {
	switch s {
	case StateIdle:
		return "idle"
	case StateWatcherRegistered:
		return "watcher_registered"
	case StateOfferReceived:
		return "offer_received"
	case StateAnswerSent:
		return "answer_sent"
	case StateConnected:
		return "connected"
	case StateDisconnected:
		return "disconnected"
	default:
		return "unknown"
	}
}
