package signaling

import (
	"context"
	"fmt"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/pion/webrtc/v4"
)

// Logger interface for structured logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// Config holds the parameters for one camera session.
type Config struct {
	// RelayURL is the signaling relay websocket endpoint.
	RelayURL string

	// CameraID selects which camera's broadcaster to watch.
	CameraID string

	// STUNServers for ICE gathering. Empty means host candidates only.
	STUNServers []string

	// OfferTimeout bounds the wait for an offer after registering as a
	// watcher. Zero disables the bound.
	OfferTimeout time.Duration
}

// Session is one receive-only WebRTC negotiation for one camera.
//
// The session registers as a watcher with the relay, waits for the
// broadcaster's offer, answers it, and exchanges ICE candidates until
// the peer connection is established. Candidates arriving before the
// remote description is set are queued and flushed afterwards rather
// than dropped.
//
// Every async callback (relay reads, peer events, the offer timer) is
// guarded by a generation counter: full teardown bumps the generation,
// so callbacks from a previous life of the session are ignored instead
// of corrupting the current one. A peer failure alone keeps the
// generation and the relay socket alive; the session sits in
// Disconnected until the broadcaster announces itself again or Start is
// called anew.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Session struct {
	cfg    Config
	peerID string
	logger Logger

	mu         sync.Mutex
	state      State
	gen        int
	conn       relayConn
	peer       peerConn
	pending    []webrtc.ICECandidateInit
	remoteSet  bool
	track      *webrtc.TrackRemote
	offerTimer *time.Timer
	dialing    bool
	closed     bool
	lastErr    error

	// writeMu serialises relay writes; peer callbacks and the handshake
	// write concurrently.
	writeMu sync.Mutex

	onStateChange func(state State, err error)
	onTrack       func(track *webrtc.TrackRemote)
	callbackMu    sync.RWMutex
}

// NewSession creates a session for one camera. Nothing happens until Start.
func NewSession(cfg Config, logger Logger) *Session {
	return &Session{
		cfg:    cfg,
		peerID: uuid.NewString(),
		logger: logger,
		state:  StateIdle,
	}
}

// SetOnStateChange sets a callback fired on every state transition. The
// error is non-nil when the transition was caused by a failure.
func (s *Session) SetOnStateChange(callback func(state State, err error)) {
	s.callbackMu.Lock()
	s.onStateChange = callback
	s.callbackMu.Unlock()
}

// SetOnTrack sets a callback fired when the camera's media track arrives.
func (s *Session) SetOnTrack(callback func(track *webrtc.TrackRemote)) {
	s.callbackMu.Lock()
	s.onTrack = callback
	s.callbackMu.Unlock()
}

// State returns the current session state.
func (s *Session) State() State {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.state
}

// Track returns the received media track, or nil before OnTrack or
// after disconnection.
func (s *Session) Track() *webrtc.TrackRemote {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.track
}

// Err returns the error that moved the session to Disconnected, if any.
func (s *Session) Err() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.lastErr
}

// Start dials the relay, registers as a watcher, and runs the handshake
// asynchronously. Progress is reported through the state change callback.
//
// A disconnected session can be started again: Start tears down whatever
// is left of the previous attempt and dials fresh. Starting a session
// whose handshake is underway or connected, or one already mid-dial,
// returns ErrAlreadyStarted.
//
// Parameters:
//   - ctx: Context for the relay dial only; the session outlives it
//
// Returns:
//   - error: ErrRelayDialFailed, ErrHandshakeFailed, ErrAlreadyStarted,
//     or ErrClosed
func (s *Session) Start(ctx context.Context) error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return ErrClosed
	}
	if s.dialing || (s.state != StateIdle && s.state != StateDisconnected) {
		s.mu.Unlock()
		return ErrAlreadyStarted
	}
	s.dialing = true
	s.gen++
	gen := s.gen
	s.stopOfferTimerLocked()
	oldConn, oldPeer := s.conn, s.peer
	s.conn, s.peer = nil, nil
	s.track = nil
	s.remoteSet = false
	s.pending = nil
	s.lastErr = nil
	s.mu.Unlock()

	if oldPeer != nil {
		oldPeer.Close()
	}
	if oldConn != nil {
		oldConn.Close()
	}

	conn, err := dialRelay(ctx, s.cfg.RelayURL)
	if err != nil {
		s.clearDialing()
		return err
	}

	peer, err := newPeer(s.cfg.STUNServers)
	if err != nil {
		conn.Close()
		s.clearDialing()
		return err
	}

	s.mu.Lock()
	s.dialing = false
	if s.closed || s.gen != gen {
		s.mu.Unlock()
		conn.Close()
		peer.Close()
		return ErrClosed
	}
	s.conn = conn
	s.peer = peer
	s.bindPeerLocked(gen)
	s.startOfferTimerLocked(gen)
	s.mu.Unlock()

	if err := s.writeEnvelope(envelope{
		Event:    eventWatcher,
		PeerID:   s.peerID,
		CameraID: s.cfg.CameraID,
	}); err != nil {
		s.fail(gen, fmt.Errorf("%w: sending watcher: %w", ErrRelayClosed, err))
		return fmt.Errorf("%w: sending watcher: %w", ErrRelayClosed, err)
	}

	s.transition(gen, StateWatcherRegistered, nil)
	go s.readLoop(gen, conn)

	return nil
}

// Close tears the session down: peer connection and relay socket are
// closed together and the stream handle is cleared. Idempotent.
func (s *Session) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	s.gen++
	s.stopOfferTimerLocked()
	conn, peer := s.conn, s.peer
	s.conn, s.peer = nil, nil
	s.track = nil
	s.remoteSet = false
	s.pending = nil
	alreadyDown := s.state == StateDisconnected
	s.state = StateDisconnected
	s.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	if conn != nil {
		conn.Close()
	}

	if !alreadyDown {
		s.fireStateChange(StateDisconnected, nil)
	}
	return nil
}

// bindPeerLocked registers peer callbacks for the given generation.
// Caller holds s.mu.
func (s *Session) bindPeerLocked(gen int) {
	peer := s.peer

	peer.OnICECandidate(func(cand *webrtc.ICECandidate) {
		if cand == nil {
			return // gathering finished
		}
		if !s.genAlive(gen) {
			return
		}
		init := cand.ToJSON()
		if err := s.writeEnvelope(envelope{
			Event:     eventCandidate,
			PeerID:    s.peerID,
			Candidate: &init,
		}); err != nil {
			s.logger.Warn("failed to send local candidate", "error", err)
		}
	})

	peer.OnConnectionStateChange(func(state webrtc.PeerConnectionState) {
		switch state {
		case webrtc.PeerConnectionStateConnected:
			s.transition(gen, StateConnected, nil)
		case webrtc.PeerConnectionStateFailed,
			webrtc.PeerConnectionStateDisconnected,
			webrtc.PeerConnectionStateClosed:
			s.failPeer(gen, fmt.Errorf("%w: peer state %s", ErrPeerFailed, state))
		}
	})

	peer.OnTrack(func(track *webrtc.TrackRemote) {
		s.mu.Lock()
		if s.gen != gen || s.closed {
			s.mu.Unlock()
			return
		}
		s.track = track
		s.mu.Unlock()

		s.callbackMu.RLock()
		callback := s.onTrack
		s.callbackMu.RUnlock()
		if callback != nil {
			callback(track)
		}
	})
}

// readLoop drains relay messages until the socket dies or the session
// generation moves on.
func (s *Session) readLoop(gen int, conn relayConn) {
	for {
		var env envelope
		if err := conn.ReadJSON(&env); err != nil {
			if s.genAlive(gen) {
				s.fail(gen, fmt.Errorf("%w: %w", ErrRelayClosed, err))
			}
			return
		}
		if !s.genAlive(gen) {
			return
		}

		switch env.Event {
		case eventOffer:
			s.handleOffer(gen, env)
		case eventCandidate:
			s.handleCandidate(gen, env)
		case eventBroadcaster:
			s.handleBroadcaster(gen)
		case eventWatcher, eventAnswer:
			// Our own event classes echoed back; nothing to do.
		default:
			s.logger.Warn("ignoring unknown relay event", "event", env.Event)
		}
	}
}

// handleOffer applies the broadcaster's offer and answers it.
func (s *Session) handleOffer(gen int, env envelope) {
	if env.SDP == nil {
		s.logger.Warn("offer without sdp", "error", ErrBadEnvelope)
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.closed || s.state != StateWatcherRegistered {
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.stopOfferTimerLocked()
	s.mu.Unlock()

	s.transition(gen, StateOfferReceived, nil)

	if err := peer.SetRemoteDescription(*env.SDP); err != nil {
		s.failPeer(gen, fmt.Errorf("%w: applying offer: %w", ErrHandshakeFailed, err))
		return
	}

	// Flush candidates that raced ahead of the offer.
	s.mu.Lock()
	s.remoteSet = true
	pending := s.pending
	s.pending = nil
	s.mu.Unlock()

	for _, cand := range pending {
		if err := peer.AddICECandidate(cand); err != nil {
			s.logger.Warn("failed to apply queued candidate", "error", err)
		}
	}

	answer, err := peer.CreateAnswer()
	if err != nil {
		s.failPeer(gen, fmt.Errorf("%w: creating answer: %w", ErrHandshakeFailed, err))
		return
	}
	if err := peer.SetLocalDescription(answer); err != nil {
		s.failPeer(gen, fmt.Errorf("%w: setting local description: %w", ErrHandshakeFailed, err))
		return
	}

	if err := s.writeEnvelope(envelope{
		Event:  eventAnswer,
		PeerID: s.peerID,
		SDP:    &answer,
	}); err != nil {
		s.fail(gen, fmt.Errorf("%w: sending answer: %w", ErrRelayClosed, err))
		return
	}

	s.transition(gen, StateAnswerSent, nil)
}

// handleCandidate applies a remote candidate, queueing it if the remote
// description is not set yet.
func (s *Session) handleCandidate(gen int, env envelope) {
	if env.Candidate == nil {
		s.logger.Warn("candidate event without candidate", "error", ErrBadEnvelope)
		return
	}

	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	if !s.remoteSet {
		s.pending = append(s.pending, *env.Candidate)
		s.mu.Unlock()
		return
	}
	peer := s.peer
	s.mu.Unlock()

	if err := peer.AddICECandidate(*env.Candidate); err != nil {
		s.logger.Warn("failed to apply remote candidate", "error", err)
	}
}

// handleBroadcaster restarts the handshake when the camera's broadcaster
// (re)announces itself. This is the only automatic re-entry path; it also
// brings a session back from Disconnected after a peer failure, since the
// relay socket stays up through those.
func (s *Session) handleBroadcaster(gen int) {
	s.mu.Lock()
	if s.gen != gen || s.closed || s.state == StateConnected {
		s.mu.Unlock()
		return
	}

	// Fresh peer connection for the new handshake.
	old := s.peer
	peer, err := newPeer(s.cfg.STUNServers)
	if err != nil {
		s.mu.Unlock()
		s.failPeer(gen, fmt.Errorf("%w: creating peer: %w", ErrHandshakeFailed, err))
		return
	}
	s.peer = peer
	s.remoteSet = false
	s.pending = nil
	s.track = nil
	s.lastErr = nil
	s.bindPeerLocked(gen)
	s.stopOfferTimerLocked()
	s.startOfferTimerLocked(gen)
	s.mu.Unlock()

	if old != nil {
		// Detach callbacks first: closing the old peer fires its state
		// change handler, which must not tear down the new handshake.
		old.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		old.OnICECandidate(func(*webrtc.ICECandidate) {})
		old.OnTrack(func(*webrtc.TrackRemote) {})
		old.Close()
	}

	s.logger.Info("broadcaster announced, re-registering watcher", "camera_id", s.cfg.CameraID)

	if err := s.writeEnvelope(envelope{
		Event:    eventWatcher,
		PeerID:   s.peerID,
		CameraID: s.cfg.CameraID,
	}); err != nil {
		s.fail(gen, fmt.Errorf("%w: re-sending watcher: %w", ErrRelayClosed, err))
		return
	}

	s.transition(gen, StateWatcherRegistered, nil)
}

// startOfferTimerLocked arms the bounded offer wait. Caller holds s.mu.
func (s *Session) startOfferTimerLocked(gen int) {
	if s.cfg.OfferTimeout <= 0 {
		return
	}
	s.offerTimer = time.AfterFunc(s.cfg.OfferTimeout, func() {
		s.mu.Lock()
		expired := s.gen == gen && !s.closed && s.state == StateWatcherRegistered
		s.mu.Unlock()
		if expired {
			s.failPeer(gen, fmt.Errorf("%w: no offer within %v", ErrOfferTimeout, s.cfg.OfferTimeout))
		}
	})
}

// stopOfferTimerLocked disarms the offer wait. Caller holds s.mu.
func (s *Session) stopOfferTimerLocked() {
	if s.offerTimer != nil {
		s.offerTimer.Stop()
		s.offerTimer = nil
	}
}

// clearDialing releases the dial guard after a failed Start.
func (s *Session) clearDialing() {
	s.mu.Lock()
	s.dialing = false
	s.mu.Unlock()
}

// genAlive reports whether callbacks for the given generation should
// still act.
func (s *Session) genAlive(gen int) bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.gen == gen && !s.closed
}

// writeEnvelope sends one frame to the relay.
func (s *Session) writeEnvelope(env envelope) error {
	s.mu.Lock()
	conn := s.conn
	s.mu.Unlock()
	if conn == nil {
		return ErrRelayClosed
	}

	s.writeMu.Lock()
	defer s.writeMu.Unlock()
	return conn.WriteJSON(env)
}

// transition moves to a new state if the generation still holds.
func (s *Session) transition(gen int, state State, err error) {
	s.mu.Lock()
	if s.gen != gen || s.closed || s.state == state {
		s.mu.Unlock()
		return
	}
	s.state = state
	s.mu.Unlock()

	s.logger.Info("session state changed", "camera_id", s.cfg.CameraID, "state", state.String())
	s.fireStateChange(state, err)
}

// failPeer handles a dead peer connection: the peer is closed and the
// stream cleared, but the relay socket and read loop stay up so a
// broadcaster announcement can restart the handshake. The generation is
// kept alive for the same reason.
func (s *Session) failPeer(gen int, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.closed || s.state == StateDisconnected {
		s.mu.Unlock()
		return
	}
	s.stopOfferTimerLocked()
	peer := s.peer
	s.peer = nil
	s.track = nil
	s.remoteSet = false
	s.pending = nil
	s.state = StateDisconnected
	s.lastErr = cause
	s.mu.Unlock()

	if peer != nil {
		// Detach first so closing the peer cannot re-enter this path
		// through its own state change handler.
		peer.OnConnectionStateChange(func(webrtc.PeerConnectionState) {})
		peer.OnICECandidate(func(*webrtc.ICECandidate) {})
		peer.OnTrack(func(*webrtc.TrackRemote) {})
		peer.Close()
	}

	s.logger.Warn("peer connection lost, awaiting broadcaster",
		"camera_id", s.cfg.CameraID, "error", cause)
	s.fireStateChange(StateDisconnected, cause)
}

// fail tears down the session with an error: peer and relay closed
// together, stream cleared, generation bumped so stale callbacks die.
// Used when the relay itself is gone; recovery needs a fresh Start.
func (s *Session) fail(gen int, cause error) {
	s.mu.Lock()
	if s.gen != gen || s.closed {
		s.mu.Unlock()
		return
	}
	s.gen++
	s.stopOfferTimerLocked()
	conn, peer := s.conn, s.peer
	s.conn, s.peer = nil, nil
	s.track = nil
	s.remoteSet = false
	s.pending = nil
	s.state = StateDisconnected
	s.lastErr = cause
	s.mu.Unlock()

	if peer != nil {
		peer.Close()
	}
	if conn != nil {
		conn.Close()
	}

	s.logger.Warn("session disconnected", "camera_id", s.cfg.CameraID, "error", cause)
	s.fireStateChange(StateDisconnected, cause)
}

// fireStateChange invokes the state change callback if set.
func (s *Session) fireStateChange(state State, err error) {
	s.callbackMu.RLock()
	callback := s.onStateChange
	s.callbackMu.RUnlock()
	if callback != nil {
		callback(state, err)
	}
}
