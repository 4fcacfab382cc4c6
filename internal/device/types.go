package device

import "time"

// Status represents the reported availability of a device.
type Status string

// Status constants.
const (
	StatusOnline  Status = "online"
	StatusOffline Status = "offline"
	StatusUnknown Status = "unknown"
)

// AllStatuses returns all valid status values.
func AllStatuses() []Status {
	return []Status{StatusOnline, StatusOffline, StatusUnknown}
}

// IsValidStatus returns true if s is a recognised device status.
func IsValidStatus(s Status) bool {
	switch s {
	case StatusOnline, StatusOffline, StatusUnknown:
		return true
	}
	return false
}

// Calibration holds the three-axis calibration values for a toggle's actuator arm.
type Calibration struct {
	X float64 `json:"x"`
	Y float64 `json:"y"`
	Z float64 `json:"z"`
}

// Toggle represents a single controllable switch channel on a device.
// Toggles are owned by their Device; identity is the toggle ID.
type Toggle struct {
	ID          string      `json:"id"`
	Name        string      `json:"name"`
	IsOn        bool        `json:"is_on"`
	Calibration Calibration `json:"calibration"`
}

// SensorReading is one observed value for a sensor kind (temperature,
// humidity, motion, sound, ...). ObservedAt is the device-side timestamp
// of the observation, not the time we received it.
type SensorReading struct {
	Value      float64   `json:"value"`
	ObservedAt time.Time `json:"observed_at"`
}

// Device represents a switch/sensor unit as the client sees it.
//
// Devices are mutated by telemetry and REST refresh but never destroyed
// client-side; they are simply evicted when no consumer is subscribed.
type Device struct {
	ID   string `json:"id"`
	Name string `json:"name"`

	Status Status `json:"status"`

	// Readings maps sensor kind ("temperature", "humidity", ...) to the
	// latest observed value for that kind.
	Readings map[string]SensorReading `json:"readings,omitempty"`

	Toggles []Toggle `json:"toggles,omitempty"`

	// BuzzerThreshold is the sound level above which the device's buzzer
	// activates. Configured via REST; echoed in snapshots.
	BuzzerThreshold float64 `json:"buzzer_threshold,omitempty"`
}

// Clone returns an independent copy of the Device. Map and slice fields
// are copied so mutations of the clone do not leak into shared state.
func (d *Device) Clone() *Device {
	if d == nil {
		return nil
	}

	cpy := *d

	if d.Readings != nil {
		cpy.Readings = make(map[string]SensorReading, len(d.Readings))
		for k, v := range d.Readings {
			cpy.Readings[k] = v
		}
	}
	if d.Toggles != nil {
		cpy.Toggles = make([]Toggle, len(d.Toggles))
		copy(cpy.Toggles, d.Toggles)
	}

	return &cpy
}

// Camera represents a camera linked to a room. Video is delivered over a
// peer connection negotiated by the signaling package, not over REST.
type Camera struct {
	ID       string `json:"id"`
	Name     string `json:"name"`
	IsOnline bool   `json:"is_online"`
}

// Snapshot is the REST-sourced state of one room: its devices and cameras
// plus the server time the snapshot was generated. Snapshots are immutable
// once fetched and replaced wholesale on re-fetch.
//
// RequestTimestamp is the pivot for snapshot/live reconciliation: a live
// value is preferred only when it is strictly newer than this timestamp.
type Snapshot struct {
	ID               string    `json:"id"`
	Name             string    `json:"name"`
	SwitchDevices    []Device  `json:"switchDevices"`
	Cameras          []Camera  `json:"cameras"`
	RequestTimestamp time.Time `json:"requestTimestamp"`
}

// DeviceByID returns the snapshot device with the given ID, or nil.
func (s *Snapshot) DeviceByID(id string) *Device {
	if s == nil {
		return nil
	}
	for i := range s.SwitchDevices {
		if s.SwitchDevices[i].ID == id {
			return &s.SwitchDevices[i]
		}
	}
	return nil
}

// LiveUpdate is a partial, push-delivered device state. Only the fields a
// telemetry message carried are set; nil/empty fields mean "not reported",
// not "cleared". Each update is superseded by the next one for the same
// device.
type LiveUpdate struct {
	Status   *Status                  `json:"status,omitempty"`
	Readings map[string]SensorReading `json:"readings,omitempty"`
	Toggles  []ToggleState            `json:"toggles,omitempty"`

	// UpdatedAt is the device-side timestamp of this update. It decides
	// whether the update beats a REST snapshot during merging.
	UpdatedAt time.Time `json:"updated_at"`
}

// ToggleState is the live-channel view of a toggle: only identity and
// on/off position. Name and calibration are static and come from snapshots.
type ToggleState struct {
	ID   string `json:"id"`
	IsOn bool   `json:"is_on"`
}

// Overlay applies a later partial update on top of u field-wise and returns
// the result. A field absent from next keeps its value from u; a message
// carrying only a status must not erase previously known readings.
func (u LiveUpdate) Overlay(next LiveUpdate) LiveUpdate {
	out := u

	if next.Status != nil {
		s := *next.Status
		out.Status = &s
	}
	if len(next.Readings) > 0 {
		merged := make(map[string]SensorReading, len(u.Readings)+len(next.Readings))
		for k, v := range u.Readings {
			merged[k] = v
		}
		for k, v := range next.Readings {
			merged[k] = v
		}
		out.Readings = merged
	}
	if len(next.Toggles) > 0 {
		out.Toggles = mergeToggleStates(u.Toggles, next.Toggles)
	}
	if next.UpdatedAt.After(out.UpdatedAt) {
		out.UpdatedAt = next.UpdatedAt
	}

	return out
}

// mergeToggleStates overlays per-toggle positions by ID, preserving toggles
// the new message did not mention.
func mergeToggleStates(prev, next []ToggleState) []ToggleState {
	out := make([]ToggleState, len(prev))
	copy(out, prev)

	for _, n := range next {
		replaced := false
		for i := range out {
			if out[i].ID == n.ID {
				out[i] = n
				replaced = true
				break
			}
		}
		if !replaced {
			out = append(out, n)
		}
	}
	return out
}

// PowerState is the commanded position of a switch.
type PowerState string

// PowerState constants as they appear on the wire.
const (
	PowerOn  PowerState = "ON"
	PowerOff PowerState = "OFF"
)

// Command is the payload published to a device's command topic.
type Command struct {
	SwitchID string     `json:"switchId"`
	Power    PowerState `json:"power"`
}
