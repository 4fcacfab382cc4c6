package signaling

import (
	"context"
	"fmt"

	"github.com/gorilla/websocket"
	"github.com/pion/webrtc/v4"
)

// Relay event names. The relay fans these out between the camera-side
// broadcaster and room-side watchers.
const (
	eventWatcher     = "watcher"
	eventOffer       = "offer"
	eventAnswer      = "answer"
	eventCandidate   = "candidate"
	eventBroadcaster = "broadcaster"
)

// envelope is the JSON frame exchanged with the relay. Field presence
// depends on the event: offer/answer carry sdp, candidate carries
// candidate, watcher carries peerId and cameraId.
type envelope struct {
	Event     string                     `json:"event"`
	PeerID    string                     `json:"peerId,omitempty"`
	CameraID  string                     `json:"cameraId,omitempty"`
	SDP       *webrtc.SessionDescription `json:"sdp,omitempty"`
	Candidate *webrtc.ICECandidateInit   `json:"candidate,omitempty"`
}

// relayConn is the subset of *websocket.Conn a session uses.
// Tests substitute a fake via dialRelay.
type relayConn interface {
	ReadJSON(v any) error
	WriteJSON(v any) error
	Close() error
}

// dialRelay opens the relay websocket. Overridden in tests.
var dialRelay = func(ctx context.Context, url string) (relayConn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, nil)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", ErrRelayDialFailed, err)
	}
	return conn, nil
}
