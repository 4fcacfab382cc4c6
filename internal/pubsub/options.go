package pubsub

import (
	"crypto/tls"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"
	"github.com/google/uuid"

	"github.com/roomlink/roomlink/internal/infrastructure/config"
)

// Connection constants.
const (
	// defaultConnectTimeout is the maximum time to wait for initial connection.
	defaultConnectTimeout = 10 * time.Second

	// defaultOpTimeout is the maximum time to wait for subscribe/publish acks.
	defaultOpTimeout = 5 * time.Second

	// defaultDisconnectQuiesce is the time to wait for pending operations on disconnect.
	defaultDisconnectQuiesce = 1000 // milliseconds

	// defaultKeepAlive is the keepalive interval for the connection.
	defaultKeepAlive = 60 * time.Second

	// inboundBuffer is the telemetry channel depth. Messages arriving
	// while the buffer is full are dropped and counted, never blocked on.
	inboundBuffer = 256

	// tlsMinVersion is the minimum TLS version for secure connections.
	tlsMinVersion = tls.VersionTLS12
)

// buildClientOptions creates paho MQTT options from broker config.
//
// The broker speaks MQTT over websockets; TLS selects ws:// vs wss://.
// Credentials are supplied per connection attempt via the credentials
// provider, so a token refreshed while disconnected is picked up by the
// next reconnect without rebuilding the client.
func buildClientOptions(cfg config.BrokerConfig, creds func() (username, password string)) *pahomqtt.ClientOptions {
	opts := pahomqtt.NewClientOptions()

	scheme := "ws"
	if cfg.TLS {
		scheme = "wss"
	}
	opts.AddBroker(fmt.Sprintf("%s://%s:%d", scheme, cfg.Host, cfg.Port))

	// Random suffix keeps concurrent clients apart broker-side.
	opts.SetClientID(fmt.Sprintf("%s-%s", cfg.ClientIDPrefix, uuid.NewString()[:8]))

	opts.SetCredentialsProvider(creds)

	// Clean session: the broker holds no state for us, every (re)connect
	// reissues the full subscription set.
	opts.SetCleanSession(true)
	opts.SetResumeSubs(false)

	// Auto-reconnect with exponential backoff after connection loss.
	// Initial connect attempts are not retried internally so the caller
	// can classify an auth refusal and refresh the token.
	opts.SetAutoReconnect(true)
	opts.SetConnectRetry(false)
	opts.SetMaxReconnectInterval(time.Duration(cfg.Reconnect.MaxDelay) * time.Second)

	opts.SetConnectTimeout(defaultConnectTimeout)
	opts.SetKeepAlive(defaultKeepAlive)

	if cfg.TLS {
		opts.SetTLSConfig(&tls.Config{MinVersion: tlsMinVersion})
	}

	return opts
}
