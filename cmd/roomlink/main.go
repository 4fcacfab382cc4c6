// Room Link - real-time device communication client
//
// Room Link keeps a live view of room devices in sync over MQTT, fetches
// authoritative snapshots over REST, and negotiates receive-only WebRTC
// sessions for room cameras. It is the headless core a UI builds on: it
// owns connections, auth recovery, and state reconciliation, not rendering.
package main

import (
	"context"
	"fmt"
	"net/http"
	"os"
	"os/signal"
	"syscall"
	"time"

	"github.com/roomlink/roomlink/internal/auth"
	"github.com/roomlink/roomlink/internal/device"
	"github.com/roomlink/roomlink/internal/infrastructure/config"
	"github.com/roomlink/roomlink/internal/infrastructure/logging"
	"github.com/roomlink/roomlink/internal/merge"
	"github.com/roomlink/roomlink/internal/pubsub"
	"github.com/roomlink/roomlink/internal/rooms"
	"github.com/roomlink/roomlink/internal/signaling"
)

// Version information - set at build time via ldflags
// Example: go build -ldflags "-X main.version=1.0.0 -X main.commit=abc123"
var (
	version = "dev"     // Semantic version (e.g., "1.0.0")
	commit  = "unknown" // Git commit hash
	date    = "unknown" // Build date
)

// Default configuration file path
const defaultConfigPath = "configs/config.yaml"

func main() {
	// Create a context that cancels on interrupt signals (Ctrl+C, SIGTERM)
	ctx, cancel := signal.NotifyContext(context.Background(), os.Interrupt, syscall.SIGTERM)
	defer cancel()

	if err := run(ctx); err != nil {
		fmt.Fprintf(os.Stderr, "Error: %v\n", err)
		os.Exit(1)
	}
}

// run is the actual application logic, separated from main for testability.
//
// Parameters:
//   - ctx: Context for cancellation and shutdown signals
//
// Returns:
//   - error: nil on clean shutdown, or error describing failure
func run(ctx context.Context) error {
	// Use default logger until config is loaded
	log := logging.Default()
	log.Info("starting Room Link",
		"version", version,
		"commit", commit,
		"build_date", date,
	)

	// Load configuration
	configPath := getConfigPath()
	cfg, err := config.Load(configPath)
	if err != nil {
		return fmt.Errorf("loading config: %w", err)
	}
	log.Info("configuration loaded", "path", configPath)

	// Reinitialise logger with config settings
	log = logging.New(cfg.Logging, version)
	log.Info("logger initialised",
		"level", cfg.Logging.Level,
		"format", cfg.Logging.Format,
	)

	// Credential store and refresh coordinator. The token pair comes from
	// the environment at startup; production wraps the platform keychain
	// behind the Store interface instead.
	store := auth.NewMemoryStore()
	if err := seedCredentials(store); err != nil {
		return err
	}

	httpClient := &http.Client{Timeout: cfg.APITimeout()}
	coordinator := auth.NewCoordinator(store, httpClient, cfg.API.BaseURL, log)
	coordinator.SetOnLogout(func(err error) {
		log.Error("session terminated, credentials revoked", "error", err)
	})

	// Broker client
	broker := pubsub.New(cfg.Broker, coordinator, log)
	defer func() {
		log.Info("disconnecting from broker")
		if closeErr := broker.Close(); closeErr != nil {
			log.Error("error closing broker client", "error", closeErr)
		}
	}()

	broker.SetOnAuthFailure(func(err error) {
		log.Error("broker authentication failed", "error", err)
	})
	broker.SetOnUpdate(func(deviceID string, state device.LiveUpdate) {
		log.Debug("device update", "device_id", deviceID, "updated_at", state.UpdatedAt)
	})

	if err := broker.Connect(ctx); err != nil {
		return fmt.Errorf("connecting to broker: %w", err)
	}
	log.Info("broker connected",
		"broker", fmt.Sprintf("%s:%d", cfg.Broker.Host, cfg.Broker.Port),
		"role_id", cfg.Broker.RoleID,
	)

	// REST snapshot client
	roomClient := rooms.NewClient(httpClient, cfg.API.BaseURL, coordinator, log)

	// Fetch initial snapshots, subscribe to their devices, and start a
	// camera session per room camera.
	snapshots := make(map[string]*device.Snapshot, len(cfg.Rooms.IDs))
	var sessions []*signaling.Session
	defer func() {
		for _, sess := range sessions {
			if closeErr := sess.Close(); closeErr != nil {
				log.Error("error closing camera session", "error", closeErr)
			}
		}
	}()

	for _, roomID := range cfg.Rooms.IDs {
		snap, err := roomClient.Room(ctx, roomID)
		if err != nil {
			return fmt.Errorf("fetching room %s: %w", roomID, err)
		}
		snapshots[roomID] = snap

		ids := make([]string, 0, len(snap.SwitchDevices))
		for _, d := range snap.SwitchDevices {
			ids = append(ids, d.ID)
		}
		if len(ids) > 0 {
			if _, err := broker.Acquire(ids); err != nil {
				return fmt.Errorf("subscribing to room %s devices: %w", roomID, err)
			}
		}
		log.Info("room synchronised",
			"room_id", roomID,
			"devices", len(snap.SwitchDevices),
			"cameras", len(snap.Cameras),
		)

		if cfg.Signaling.URL == "" {
			continue
		}
		for _, cam := range snap.Cameras {
			sess := signaling.NewSession(signaling.Config{
				RelayURL:     cfg.Signaling.URL,
				CameraID:     cam.ID,
				STUNServers:  cfg.Signaling.STUNServers,
				OfferTimeout: cfg.OfferTimeout(),
			}, log)
			sess.SetOnStateChange(func(state signaling.State, err error) {
				if err != nil {
					log.Warn("camera session state", "state", state.String(), "error", err)
					return
				}
				log.Info("camera session state", "state", state.String())
			})
			if err := sess.Start(ctx); err != nil {
				log.Warn("camera session failed to start", "camera_id", cam.ID, "error", err)
				continue
			}
			sessions = append(sessions, sess)
		}
	}

	// Verify connections are healthy
	if err := broker.HealthCheck(ctx); err != nil {
		return fmt.Errorf("health check failed: %w", err)
	}
	log.Info("all health checks passed")

	// Periodic snapshot refresh keeps the merged view honest even if
	// telemetry was missed while disconnected.
	go refreshLoop(ctx, cfg, roomClient, broker, snapshots, log)

	log.Info("initialisation complete, waiting for shutdown signal")

	<-ctx.Done()

	log.Info("shutdown signal received, cleaning up")
	log.Info("Room Link stopped")
	return nil
}

// refreshLoop re-fetches room snapshots on the configured cadence and
// logs the merged state of each room.
func refreshLoop(
	ctx context.Context,
	cfg *config.Config,
	roomClient *rooms.Client,
	broker *pubsub.Client,
	snapshots map[string]*device.Snapshot,
	log *logging.Logger,
) {
	interval := cfg.RefreshInterval()
	if interval <= 0 {
		return
	}

	ticker := time.NewTicker(interval)
	defer ticker.Stop()

	for {
		select {
		case <-ctx.Done():
			return
		case <-ticker.C:
		}

		for _, roomID := range cfg.Rooms.IDs {
			snap, err := roomClient.Room(ctx, roomID)
			if err != nil {
				log.Warn("snapshot refresh failed", "room_id", roomID, "error", err)
				continue
			}
			snapshots[roomID] = snap

			merged := merge.Room(snap, broker.LiveStates())
			online := 0
			for _, d := range merged {
				if d.Status == device.StatusOnline {
					online++
				}
			}
			log.Info("room refreshed",
				"room_id", roomID,
				"devices", len(merged),
				"online", online,
			)
		}
	}
}

// seedCredentials loads the initial token pair from the environment.
func seedCredentials(store auth.Store) error {
	access := os.Getenv("ROOMLINK_ACCESS_TOKEN")
	refresh := os.Getenv("ROOMLINK_REFRESH_TOKEN")
	if access == "" || refresh == "" {
		return fmt.Errorf("ROOMLINK_ACCESS_TOKEN and ROOMLINK_REFRESH_TOKEN must be set")
	}
	return store.Set(auth.Credentials{AccessToken: access, RefreshToken: refresh})
}

// getConfigPath returns the configuration file path.
// Uses ROOMLINK_CONFIG environment variable if set, otherwise default.
func getConfigPath() string {
	if path := os.Getenv("ROOMLINK_CONFIG"); path != "" {
		return path
	}
	return defaultConfigPath
}
