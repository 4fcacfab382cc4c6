// Package signaling negotiates receive-only WebRTC sessions for room
// cameras through a websocket relay.
//
// # Protocol
//
// The relay fans JSON frames between the camera-side broadcaster and
// room-side watchers. A session registers with a watcher frame carrying
// its peer ID and camera ID, receives the broadcaster's SDP offer,
// replies with an answer, and exchanges ICE candidates until the pion
// peer connection reports connected. A broadcaster frame means the
// camera's sender (re)started; the session re-registers and runs the
// handshake again with a fresh peer connection.
//
// # Robustness
//
// Remote candidates arriving before the offer are queued and flushed
// once the remote description is set. The offer wait is bounded by a
// configurable timeout. When the peer connection dies the session moves
// to Disconnected with the track handle cleared immediately, but keeps
// the relay socket listening so the next broadcaster announcement can
// restart the handshake; a disconnected session can also be started
// again explicitly. Close and relay loss tear down peer and socket
// together, with a generation counter silencing async callbacks from
// the torn-down life of the session.
//
// Sessions do not decode or render media; they hand the remote track to
// the consumer and manage connection lifecycle only.
package signaling
