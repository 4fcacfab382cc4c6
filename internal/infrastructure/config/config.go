package config

import (
	"fmt"
	"os"
	"strconv"
	"strings"
	"time"

	"gopkg.in/yaml.v3"
)

// Config is the root configuration structure for the Room Link client.
type Config struct {
	API       APIConfig       `yaml:"api"`
	Broker    BrokerConfig    `yaml:"broker"`
	Signaling SignalingConfig `yaml:"signaling"`
	Rooms     RoomsConfig     `yaml:"rooms"`
	Logging   LoggingConfig   `yaml:"logging"`
}

// APIConfig holds settings for the REST backend.
type APIConfig struct {
	// BaseURL is the root of the backend API, e.g. "http://localhost:3000".
	BaseURL string `yaml:"base_url"`

	// Timeout is the per-request timeout in seconds.
	Timeout int `yaml:"timeout"`
}

// BrokerConfig holds MQTT broker connection settings.
type BrokerConfig struct {
	Host string `yaml:"host"`
	Port int    `yaml:"port"`
	TLS  bool   `yaml:"tls"`

	// ClientIDPrefix is prepended to a random suffix to form the MQTT
	// client ID, keeping concurrent clients distinguishable broker-side.
	ClientIDPrefix string `yaml:"client_id_prefix"`

	// RoleID is the fixed identity presented as the MQTT username. The
	// password is the current access token and is never configured here.
	RoleID string `yaml:"role_id"`

	// QoS is the quality of service level for subscriptions and command
	// publishes (0, 1, or 2).
	QoS byte `yaml:"qos"`

	Reconnect ReconnectConfig `yaml:"reconnect"`
}

// ReconnectConfig controls broker reconnection backoff. The backoff
// starts at one second, doubling until it hits the cap.
type ReconnectConfig struct {
	// MaxDelay caps the exponential backoff, in seconds.
	MaxDelay int `yaml:"max_delay"`
}

// SignalingConfig holds settings for the WebRTC signaling relay.
type SignalingConfig struct {
	// URL is the relay websocket endpoint, e.g. "ws://localhost:9000/ws".
	URL string `yaml:"url"`

	// STUNServers are passed to the peer connection for ICE gathering.
	STUNServers []string `yaml:"stun_servers"`

	// OfferTimeoutSeconds bounds how long a session waits for an offer
	// after registering as a watcher. Zero disables the bound.
	OfferTimeoutSeconds int `yaml:"offer_timeout"`
}

// RoomsConfig holds room subscription settings.
type RoomsConfig struct {
	// IDs are the rooms this client monitors at startup.
	IDs []string `yaml:"ids"`

	// RefreshIntervalSeconds is how often room snapshots are re-fetched.
	RefreshIntervalSeconds int `yaml:"refresh_interval"`
}

// LoggingConfig holds logging settings.
type LoggingConfig struct {
	Level  string `yaml:"level"`  // debug, info, warn, error
	Format string `yaml:"format"` // json, text
	Output string `yaml:"output"` // stdout, stderr
}

// Load reads configuration from the given YAML file path.
//
// Processing order:
//  1. Defaults are applied
//  2. YAML file values override defaults
//  3. ROOMLINK_* environment variables override YAML
//  4. The result is validated
//
// Parameters:
//   - path: filesystem path to the YAML configuration file
//
// Returns:
//   - *Config: the loaded and validated configuration
//   - error: if the file cannot be read, parsed, or fails validation
func Load(path string) (*Config, error) {
	cfg := defaultConfig()

	data, err := os.ReadFile(path)
	if err != nil {
		return nil, fmt.Errorf("config: failed to read %s: %w", path, err)
	}

	if err := yaml.Unmarshal(data, cfg); err != nil {
		return nil, fmt.Errorf("config: failed to parse %s: %w", path, err)
	}

	applyEnvOverrides(cfg)

	if err := cfg.Validate(); err != nil {
		return nil, fmt.Errorf("config: validation failed: %w", err)
	}

	return cfg, nil
}

// defaultConfig returns a Config populated with sensible defaults.
func defaultConfig() *Config {
	return &Config{
		API: APIConfig{
			BaseURL: "http://localhost:3000",
			Timeout: 15,
		},
		Broker: BrokerConfig{
			Host:           "localhost",
			Port:           8888,
			TLS:            false,
			ClientIDPrefix: "roomlink",
			RoleID:         "room-link-client",
			QoS:            1,
			Reconnect: ReconnectConfig{
				MaxDelay: 60,
			},
		},
		Signaling: SignalingConfig{
			URL:                 "ws://localhost:9000",
			STUNServers:         []string{"stun:stun.l.google.com:19302"},
			OfferTimeoutSeconds: 30,
		},
		Rooms: RoomsConfig{
			RefreshIntervalSeconds: 300,
		},
		Logging: LoggingConfig{
			Level:  "info",
			Format: "json",
			Output: "stdout",
		},
	}
}

// applyEnvOverrides replaces config values with ROOMLINK_* environment
// variables where set. Only deployment-sensitive values are overridable.
func applyEnvOverrides(cfg *Config) {
	if v := os.Getenv("ROOMLINK_API_BASE_URL"); v != "" {
		cfg.API.BaseURL = v
	}
	if v := os.Getenv("ROOMLINK_BROKER_HOST"); v != "" {
		cfg.Broker.Host = v
	}
	if v := os.Getenv("ROOMLINK_BROKER_PORT"); v != "" {
		if port, err := strconv.Atoi(v); err == nil {
			cfg.Broker.Port = port
		}
	}
	if v := os.Getenv("ROOMLINK_BROKER_ROLE_ID"); v != "" {
		cfg.Broker.RoleID = v
	}
	if v := os.Getenv("ROOMLINK_SIGNALING_URL"); v != "" {
		cfg.Signaling.URL = v
	}
	if v := os.Getenv("ROOMLINK_ROOM_IDS"); v != "" {
		ids := strings.Split(v, ",")
		for i := range ids {
			ids[i] = strings.TrimSpace(ids[i])
		}
		cfg.Rooms.IDs = ids
	}
	if v := os.Getenv("ROOMLINK_LOG_LEVEL"); v != "" {
		cfg.Logging.Level = v
	}
}

// Validate checks that the configuration is complete and coherent.
//
// Returns:
//   - error: describing the first invalid field found, or nil
func (c *Config) Validate() error {
	if c.API.BaseURL == "" {
		return fmt.Errorf("api.base_url is required")
	}
	if c.API.Timeout <= 0 {
		return fmt.Errorf("api.timeout must be positive, got %d", c.API.Timeout)
	}

	if c.Broker.Host == "" {
		return fmt.Errorf("broker.host is required")
	}
	if c.Broker.Port < 1 || c.Broker.Port > 65535 {
		return fmt.Errorf("broker.port must be 1-65535, got %d", c.Broker.Port)
	}
	if c.Broker.RoleID == "" {
		return fmt.Errorf("broker.role_id is required")
	}
	if c.Broker.QoS > 2 {
		return fmt.Errorf("broker.qos must be 0, 1, or 2, got %d", c.Broker.QoS)
	}

	if c.Signaling.URL != "" &&
		!strings.HasPrefix(c.Signaling.URL, "ws://") &&
		!strings.HasPrefix(c.Signaling.URL, "wss://") {
		return fmt.Errorf("signaling.url must start with ws:// or wss://, got %q", c.Signaling.URL)
	}
	if c.Signaling.OfferTimeoutSeconds < 0 {
		return fmt.Errorf("signaling.offer_timeout must not be negative, got %d", c.Signaling.OfferTimeoutSeconds)
	}

	if c.Rooms.RefreshIntervalSeconds < 0 {
		return fmt.Errorf("rooms.refresh_interval must not be negative, got %d", c.Rooms.RefreshIntervalSeconds)
	}

	return nil
}

// APITimeout returns the REST request timeout as a time.Duration.
func (c *Config) APITimeout() time.Duration {
	return time.Duration(c.API.Timeout) * time.Second
}

// OfferTimeout returns the signaling offer wait bound as a time.Duration.
// Zero means unbounded.
func (c *Config) OfferTimeout() time.Duration {
	return time.Duration(c.Signaling.OfferTimeoutSeconds) * time.Second
}

// RefreshInterval returns the snapshot re-fetch cadence as a time.Duration.
func (c *Config) RefreshInterval() time.Duration {
	return time.Duration(c.Rooms.RefreshIntervalSeconds) * time.Second
}

// ReconnectMaxDelay returns the broker backoff cap.
func (c *Config) ReconnectMaxDelay() time.Duration {
	return time.Duration(c.Broker.Reconnect.MaxDelay) * time.Second
}
