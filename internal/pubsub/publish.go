package pubsub

import (
	"encoding/json"
	"fmt"

	"github.com/roomlink/roomlink/internal/device"
)

// Maximum payload size for command messages. Commands are tiny; anything
// near this limit is a caller bug.
const maxPayloadSize = 64 << 10 // 64KB

// SendCommand publishes a switch command to the device's command topic.
//
// Delivery is fire-and-forget: the command is handed to the broker layer
// at the configured QoS and the method returns without waiting for the
// ack. Delivery failures are logged, not returned; the actual outcome
// surfaces through the device's next telemetry message, which is the
// only trustworthy confirmation anyway.
//
// Parameters:
//   - deviceID: target device
//   - cmd: the command payload
//
// Returns:
//   - error: validation errors only (ErrInvalidDeviceID, ErrPublishFailed
//     for a bad payload, ErrNotConnected)
func (c *Client) SendCommand(deviceID string, cmd device.Command) error {
	if deviceID == "" {
		return ErrInvalidDeviceID
	}
	if cmd.SwitchID == "" {
		return fmt.Errorf("%w: switch ID cannot be empty", ErrPublishFailed)
	}
	if cmd.Power != device.PowerOn && cmd.Power != device.PowerOff {
		return fmt.Errorf("%w: power must be ON or OFF, got %q", ErrPublishFailed, cmd.Power)
	}

	payload, err := json.Marshal(cmd)
	if err != nil {
		return fmt.Errorf("%w: %w", ErrPublishFailed, err)
	}
	if len(payload) > maxPayloadSize {
		return fmt.Errorf("%w: payload size %d exceeds maximum %d bytes", ErrPublishFailed, len(payload), maxPayloadSize)
	}

	if !c.IsConnected() {
		return ErrNotConnected
	}

	topic := Topics{}.DeviceCommand(deviceID)
	token := c.client.Publish(topic, c.cfg.QoS, false, payload)

	go func() {
		if !token.WaitTimeout(defaultOpTimeout) {
			c.logger.Warn("command publish timed out", "device_id", deviceID, "switch_id", cmd.SwitchID)
			return
		}
		if err := token.Error(); err != nil {
			c.logger.Warn("command publish failed",
				"device_id", deviceID,
				"switch_id", cmd.SwitchID,
				"error", err,
			)
		}
	}()

	return nil
}
