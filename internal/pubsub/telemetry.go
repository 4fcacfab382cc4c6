package pubsub

import (
	"bytes"
	"encoding/json"
	"fmt"
	"time"

	pahomqtt "github.com/eclipse/paho.mqtt.golang"

	"github.com/roomlink/roomlink/internal/device"
)

// inboundMessage is one raw telemetry message in flight between a paho
// handler goroutine and the telemetry actor.
type inboundMessage struct {
	topic   string
	payload []byte
}

// telemetryHandler returns the paho handler for device status topics.
//
// Paho invokes handlers on its own goroutines; this one only forwards to
// the inbound channel, so ordering and state mutation stay with the
// single actor goroutine. A full buffer drops the message rather than
// blocking paho's router.
func (c *Client) telemetryHandler() pahomqtt.MessageHandler {
	return func(_ pahomqtt.Client, msg pahomqtt.Message) {
		defer func() {
			if r := recover(); r != nil {
				c.logger.Error("telemetry handler panic recovered",
					"topic", msg.Topic(),
					"panic", r,
				)
			}
		}()

		payload := make([]byte, len(msg.Payload()))
		copy(payload, msg.Payload())

		select {
		case c.inbound <- inboundMessage{topic: msg.Topic(), payload: payload}:
		case <-c.done:
		default:
			c.logger.Warn("telemetry buffer full, dropping message", "topic", msg.Topic())
		}
	}
}

// runTelemetry is the single consumer of the inbound channel. All live
// state mutation happens here, one message at a time, in arrival order.
func (c *Client) runTelemetry() {
	for {
		select {
		case <-c.done:
			return
		case msg := <-c.inbound:
			c.processTelemetry(msg)
		}
	}
}

// processTelemetry decodes one message and merges it into the live map.
// Malformed payloads are dropped and logged; they never take the client
// down or reach consumers.
func (c *Client) processTelemetry(msg inboundMessage) {
	deviceID := DeviceIDFromStatusTopic(msg.topic)
	if deviceID == "" {
		c.logger.Warn("telemetry on unexpected topic", "topic", msg.topic)
		return
	}

	upd, err := decodeTelemetry(msg.payload)
	if err != nil {
		c.logger.Warn("dropping malformed telemetry",
			"device_id", deviceID,
			"error", err,
		)
		return
	}

	c.liveMu.Lock()
	merged := c.live[deviceID].Overlay(upd)
	c.live[deviceID] = merged
	c.liveMu.Unlock()

	c.callbackMu.RLock()
	callback := c.onUpdate
	c.callbackMu.RUnlock()
	if callback != nil {
		callback(deviceID, merged)
	}
}

// telemetryPayload is the wire schema for device status messages. The
// decode is strict: unknown top-level fields mark the payload malformed
// instead of being silently merged.
type telemetryPayload struct {
	Status   *device.Status                  `json:"status,omitempty"`
	Readings map[string]device.SensorReading `json:"readings,omitempty"`
	Toggles  []device.ToggleState            `json:"toggles,omitempty"`
	// UpdatedAt is RFC 3339, required.
	UpdatedAt *time.Time `json:"updated_at"`
}

// decodeTelemetry parses and validates one telemetry payload.
//
// Returns:
//   - device.LiveUpdate: the validated partial update
//   - error: ErrMalformedPayload describing what was wrong
func decodeTelemetry(payload []byte) (device.LiveUpdate, error) {
	dec := json.NewDecoder(bytes.NewReader(payload))
	dec.DisallowUnknownFields()

	var wire telemetryPayload
	if err := dec.Decode(&wire); err != nil {
		return device.LiveUpdate{}, fmt.Errorf("%w: %w", ErrMalformedPayload, err)
	}
	// Trailing garbage after the object is also malformed.
	if dec.More() {
		return device.LiveUpdate{}, fmt.Errorf("%w: trailing data", ErrMalformedPayload)
	}

	if wire.UpdatedAt == nil {
		return device.LiveUpdate{}, fmt.Errorf("%w: missing updated_at", ErrMalformedPayload)
	}
	if wire.Status != nil && !device.IsValidStatus(*wire.Status) {
		return device.LiveUpdate{}, fmt.Errorf("%w: unknown status %q", ErrMalformedPayload, *wire.Status)
	}
	for _, ts := range wire.Toggles {
		if ts.ID == "" {
			return device.LiveUpdate{}, fmt.Errorf("%w: toggle without id", ErrMalformedPayload)
		}
	}

	return device.LiveUpdate{
		Status:    wire.Status,
		Readings:  wire.Readings,
		Toggles:   wire.Toggles,
		UpdatedAt: *wire.UpdatedAt,
	}, nil
}

// SetOnUpdate sets a callback invoked from the telemetry goroutine after
// each accepted update, with the device's accumulated live state. The
// callback must not block; hand off to another goroutine for slow work.
func (c *Client) SetOnUpdate(callback func(deviceID string, state device.LiveUpdate)) {
	c.callbackMu.Lock()
	c.onUpdate = callback
	c.callbackMu.Unlock()
}

// LiveState returns the accumulated live state for one device.
func (c *Client) LiveState(deviceID string) (device.LiveUpdate, bool) {
	c.liveMu.RLock()
	defer c.liveMu.RUnlock()
	upd, ok := c.live[deviceID]
	return upd, ok
}

// LiveStates returns a copy of the whole live map, suitable for passing
// to merge.Room.
func (c *Client) LiveStates() map[string]device.LiveUpdate {
	c.liveMu.RLock()
	defer c.liveMu.RUnlock()

	out := make(map[string]device.LiveUpdate, len(c.live))
	for id, upd := range c.live {
		out[id] = upd
	}
	return out
}

// evictLive drops the accumulated state for a device nobody subscribes
// to anymore.
func (c *Client) evictLive(deviceID string) {
	c.liveMu.Lock()
	delete(c.live, deviceID)
	c.liveMu.Unlock()
}
