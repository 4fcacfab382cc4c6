package pubsub

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"sync"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/eclipse/paho.mqtt.golang/packets"

	"github.com/roomlink/roomlink/internal/device"
	"github.com/roomlink/roomlink/internal/infrastructure/config"
)

// TokenSource supplies the access token used as the broker password and
// the shared refresh path for auth failures. auth.Coordinator satisfies it.
type TokenSource interface {
	AccessToken() (string, error)
	Refresh(ctx context.Context) (string, error)
}

// Logger interface for structured logging.
// Compatible with logging.Logger and slog.Logger.
type Logger interface {
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// mqttClient is the subset of pahomqtt.Client the wrapper uses.
// Tests substitute a fake via newMQTTClient.
type mqttClient interface {
	Connect() pahomqtt.Token
	Disconnect(quiesce uint)
	Subscribe(topic string, qos byte, callback pahomqtt.MessageHandler) pahomqtt.Token
	Unsubscribe(topics ...string) pahomqtt.Token
	Publish(topic string, qos byte, retained bool, payload interface{}) pahomqtt.Token
	IsConnected() bool
}

// newMQTTClient builds the underlying paho client. Overridden in tests.
var newMQTTClient = func(opts *pahomqtt.ClientOptions) mqttClient {
	return pahomqtt.NewClient(opts)
}

// Client is the broker-facing synchronisation client.
//
// One Client owns one broker connection regardless of how many rooms or
// consumers are active. It tracks device subscriptions by reference
// count, feeds telemetry through a single decoding goroutine, and
// publishes device commands.
//
// Authentication: the username is the fixed role identifier from config
// and the password is the current access token, read from the token
// source on every connection attempt. When the broker refuses the
// credentials, Connect refreshes once through the shared flight and
// retries; a second refusal is terminal and fires OnAuthFailure.
//
// Thread Safety:
//   - All methods are safe for concurrent use from multiple goroutines.
type Client struct {
	cfg    config.BrokerConfig
	tokens TokenSource
	logger Logger

	client mqttClient

	// refs tracks subscription reference counts by topic. Topics present
	// here define the desired broker topic set; the flush on connect and
	// reconnect converges the broker to it.
	refs  map[string]int
	subMu sync.Mutex

	connected  bool
	connecting bool
	closed     bool
	connMu     sync.RWMutex

	// inbound carries raw telemetry from paho handlers to the actor
	// goroutine. See telemetry.go.
	inbound chan inboundMessage
	done    chan struct{}

	onAuthFailure func(err error)
	callbackMu    sync.RWMutex

	closeOnce sync.Once

	live     map[string]device.LiveUpdate
	liveMu   sync.RWMutex
	onUpdate func(deviceID string, state device.LiveUpdate)
}

// New creates a Client for the given broker configuration.
//
// The telemetry goroutine starts immediately; the broker connection is
// not attempted until Connect.
//
// Parameters:
//   - cfg: broker configuration from config.yaml
//   - tokens: shared token source (the auth coordinator)
//   - logger: structured logger, must not be nil
func New(cfg config.BrokerConfig, tokens TokenSource, logger Logger) *Client {
	c := &Client{
		cfg:     cfg,
		tokens:  tokens,
		logger:  logger,
		refs:    make(map[string]int),
		inbound: make(chan inboundMessage, inboundBuffer),
		done:    make(chan struct{}),
		live:    make(map[string]device.LiveUpdate),
	}

	go c.runTelemetry()

	return c
}

// Connect establishes the broker connection.
//
// Idempotent: calling Connect while connected, or while another Connect
// is still dialing, is a no-op. On success all acquired topics are
// subscribed.
//
// Auth handling:
//  1. If the stored token is already expired, refresh before dialing.
//  2. If the broker refuses the credentials, refresh once and retry.
//  3. A refusal after refresh is terminal: OnAuthFailure fires and
//     ErrAuthRejected is returned.
//
// Non-auth failures return ErrConnectionFailed; the caller decides
// whether to retry. Once connected, reconnection after a drop is
// automatic with exponential backoff, and every reconnect re-reads the
// current token.
//
// Parameters:
//   - ctx: Context for the token refresh calls
//
// Returns:
//   - error: nil, ErrAuthRejected, ErrConnectionFailed, or ErrClosed
func (c *Client) Connect(ctx context.Context) error {
	c.connMu.Lock()
	if c.closed {
		c.connMu.Unlock()
		return ErrClosed
	}
	if c.connected || c.connecting {
		c.connMu.Unlock()
		return nil
	}
	c.connecting = true

	if c.client == nil {
		opts := buildClientOptions(c.cfg, c.credentials)
		opts.SetOnConnectHandler(func(_ pahomqtt.Client) {
			c.handleConnect()
		})
		opts.SetConnectionLostHandler(func(_ pahomqtt.Client, err error) {
			c.handleDisconnect(err)
		})
		c.client = newMQTTClient(opts)
	}
	c.connMu.Unlock()

	defer func() {
		c.connMu.Lock()
		c.connecting = false
		c.connMu.Unlock()
	}()

	// Refresh proactively rather than burning a connect attempt on a
	// token that is already dead.
	if token, err := c.tokens.AccessToken(); err == nil {
		if expired, err := tokenExpired(token); err == nil && expired {
			if _, err := c.tokens.Refresh(ctx); err != nil {
				return fmt.Errorf("%w: %w", ErrAuthRejected, err)
			}
		}
	}

	if err := c.dial(); err != nil {
		if !isAuthRefusal(err) {
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}

		c.logger.Warn("broker refused credentials, refreshing token")
		if _, err := c.tokens.Refresh(ctx); err != nil {
			c.failAuth(err)
			return fmt.Errorf("%w: %w", ErrAuthRejected, err)
		}

		if err := c.dial(); err != nil {
			if isAuthRefusal(err) {
				c.failAuth(err)
				return fmt.Errorf("%w: %w", ErrAuthRejected, err)
			}
			return fmt.Errorf("%w: %w", ErrConnectionFailed, err)
		}
	}

	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	return nil
}

// dial performs one connection attempt.
func (c *Client) dial() error {
	token := c.client.Connect()
	if !token.WaitTimeout(defaultConnectTimeout) {
		return fmt.Errorf("timeout after %v", defaultConnectTimeout)
	}
	return token.Error()
}

// credentials is the paho credentials provider: fixed role identity as
// username, the current access token as password. Called by paho before
// every connection attempt, including automatic reconnects.
func (c *Client) credentials() (string, string) {
	token, err := c.tokens.AccessToken()
	if err != nil {
		c.logger.Warn("no access token available for broker connect", "error", err)
		return c.cfg.RoleID, ""
	}
	return c.cfg.RoleID, token
}

// tokenExpired wraps the auth package check; replaced in tests that use
// opaque token strings.
var tokenExpired = defaultTokenExpired

// isAuthRefusal reports whether a connect error is a credential refusal
// as opposed to a transport problem.
func isAuthRefusal(err error) bool {
	if err == nil {
		return false
	}
	if errors.Is(err, packets.ErrorRefusedNotAuthorised) ||
		errors.Is(err, packets.ErrorRefusedBadUsernameOrPassword) {
		return true
	}

	msg := strings.ToLower(err.Error())
	return strings.Contains(msg, "not authorized") ||
		strings.Contains(msg, "not authorised") ||
		strings.Contains(msg, "bad user name or password")
}

// failAuth fires the terminal auth failure callback.
func (c *Client) failAuth(cause error) {
	c.logger.Error("broker authentication failed terminally", "error", cause)

	c.callbackMu.RLock()
	callback := c.onAuthFailure
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(cause)
	}
}

// handleConnect runs on every successful connection, initial and
// reconnect alike. Clean sessions mean the broker remembers nothing, so
// the full desired topic set is reissued each time.
func (c *Client) handleConnect() {
	c.connMu.Lock()
	c.connected = true
	c.connMu.Unlock()

	c.logger.Info("broker connected", "host", c.cfg.Host)
	c.flushSubscriptions()
}

// handleDisconnect runs when the connection drops. Paho reconnects on
// its own; subscriptions are restored by handleConnect.
func (c *Client) handleDisconnect(err error) {
	c.connMu.Lock()
	c.connected = false
	c.connMu.Unlock()

	c.logger.Warn("broker connection lost", "error", err)
}

// IsConnected returns the current connection state.
func (c *Client) IsConnected() bool {
	c.connMu.RLock()
	defer c.connMu.RUnlock()
	return c.connected && c.client != nil && c.client.IsConnected()
}

// SetOnAuthFailure sets a callback invoked when broker authentication
// fails terminally (refused again after a token refresh).
func (c *Client) SetOnAuthFailure(callback func(err error)) {
	c.callbackMu.Lock()
	c.onAuthFailure = callback
	c.callbackMu.Unlock()
}

// HealthCheck verifies the broker connection is alive.
//
// Parameters:
//   - ctx: Context for timeout/cancellation
//
// Returns:
//   - error: nil if healthy, error describing the issue otherwise
func (c *Client) HealthCheck(ctx context.Context) error {
	select {
	case <-ctx.Done():
		return fmt.Errorf("pubsub health check: %w", ctx.Err())
	default:
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}
	return nil
}

// Close disconnects from the broker and stops the telemetry goroutine.
// The client cannot be reused after Close.
func (c *Client) Close() error {
	c.closeOnce.Do(func() {
		c.connMu.Lock()
		c.closed = true
		c.connected = false
		client := c.client
		c.connMu.Unlock()

		close(c.done)

		if client != nil {
			client.Disconnect(defaultDisconnectQuiesce)
		}
	})
	return nil
}
