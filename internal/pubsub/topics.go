package pubsub

import (
	"fmt"
	"strings"
)

// TopicPrefixDevices is the base for all per-device topics.
// Scheme: devices/{device_id}/{channel}
const TopicPrefixDevices = "devices"

// Topics provides builders for broker topics.
// Using these helpers ensures consistent topic naming across the codebase.
type Topics struct{}

// DeviceStatus returns the telemetry topic for one device.
//
// Example: devices/dev-42/status
func (Topics) DeviceStatus(deviceID string) string {
	return fmt.Sprintf("%s/%s/status", TopicPrefixDevices, deviceID)
}

// DeviceCommand returns the command topic for one device.
//
// Example: devices/dev-42/cmd
func (Topics) DeviceCommand(deviceID string) string {
	return fmt.Sprintf("%s/%s/cmd", TopicPrefixDevices, deviceID)
}

// DeviceIDFromStatusTopic extracts the device ID from a status topic.
// Returns the empty string if the topic does not match the scheme.
func DeviceIDFromStatusTopic(topic string) string {
	parts := strings.Split(topic, "/")
	if len(parts) != 3 || parts[0] != TopicPrefixDevices || parts[2] != "status" {
		return ""
	}
	return parts[1]
}
