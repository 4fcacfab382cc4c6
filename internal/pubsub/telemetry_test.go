package pubsub

import (
	"errors"
	"sync"
	"testing"
	"time"

	"github.com/roomlink/roomlink/internal/device"
)

// fakeMessage implements pahomqtt.Message for handler tests.
type fakeMessage struct {
	topic   string
	payload []byte
}

func (m *fakeMessage) Duplicate() bool   { return false }
func (m *fakeMessage) Qos() byte         { return 1 }
func (m *fakeMessage) Retained() bool    { return false }
func (m *fakeMessage) Topic() string     { return m.topic }
func (m *fakeMessage) MessageID() uint16 { return 0 }
func (m *fakeMessage) Payload() []byte   { return m.payload }
func (m *fakeMessage) Ack()              {}

// deliver pushes a raw payload through the paho handler and waits for
// the telemetry goroutine to process it (or drop it).
func deliver(t *testing.T, c *Client, topic string, payload string) {
	t.Helper()

	handler := c.telemetryHandler()
	handler(nil, &fakeMessage{topic: topic, payload: []byte(payload)})

	// The actor drains the channel; poll until it is empty.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		if len(c.inbound) == 0 {
			// One more yield so the in-flight message finishes.
			time.Sleep(5 * time.Millisecond)
			return
		}
		time.Sleep(time.Millisecond)
	}
	t.Fatal("telemetry actor did not drain the inbound channel")
}

func TestTelemetry_UpdateAccumulates(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	deliver(t, c, "devices/dev1/status",
		`{"status":"online","readings":{"temperature":{"value":21.5,"observed_at":"2026-08-30T12:00:00Z"}},"updated_at":"2026-08-30T12:00:00Z"}`)
	deliver(t, c, "devices/dev1/status",
		`{"status":"offline","updated_at":"2026-08-30T12:00:05Z"}`)

	state, ok := c.LiveState("dev1")
	if !ok {
		t.Fatal("no live state for dev1")
	}
	if state.Status == nil || *state.Status != device.StatusOffline {
		t.Errorf("Status = %v, want offline from second message", state.Status)
	}
	if state.Readings["temperature"].Value != 21.5 {
		t.Error("status-only update erased earlier readings")
	}
	if !state.UpdatedAt.Equal(time.Date(2026, 8, 30, 12, 0, 5, 0, time.UTC)) {
		t.Errorf("UpdatedAt = %v, want second message's timestamp", state.UpdatedAt)
	}
}

func TestTelemetry_MalformedDropped(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	tests := []struct {
		name    string
		payload string
	}{
		{"not json", `{{{`},
		{"unknown top-level field", `{"status":"online","extra":1,"updated_at":"2026-08-30T12:00:00Z"}`},
		{"missing updated_at", `{"status":"online"}`},
		{"invalid status", `{"status":"rebooting","updated_at":"2026-08-30T12:00:00Z"}`},
		{"toggle without id", `{"toggles":[{"is_on":true}],"updated_at":"2026-08-30T12:00:00Z"}`},
		{"json array", `[1,2,3]`},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			deliver(t, c, "devices/dev1/status", tt.payload)
			if _, ok := c.LiveState("dev1"); ok {
				t.Error("malformed payload reached the live map")
			}
		})
	}
}

func TestTelemetry_OnUpdateCallback(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	var mu sync.Mutex
	var gotID string
	var gotState device.LiveUpdate
	c.SetOnUpdate(func(deviceID string, state device.LiveUpdate) {
		mu.Lock()
		gotID = deviceID
		gotState = state
		mu.Unlock()
	})

	deliver(t, c, "devices/dev7/status", `{"status":"online","updated_at":"2026-08-30T12:00:00Z"}`)

	mu.Lock()
	defer mu.Unlock()
	if gotID != "dev7" {
		t.Errorf("callback device ID = %q, want dev7", gotID)
	}
	if gotState.Status == nil || *gotState.Status != device.StatusOnline {
		t.Errorf("callback state = %+v, want online", gotState)
	}
}

func TestTelemetry_UnexpectedTopicIgnored(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	deliver(t, c, "devices/dev1/cmd", `{"status":"online","updated_at":"2026-08-30T12:00:00Z"}`)

	if len(c.LiveStates()) != 0 {
		t.Error("message on a non-status topic reached the live map")
	}
}

func TestRelease_EvictsLiveState(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	sub, err := c.Acquire([]string{"dev1"})
	if err != nil {
		t.Fatalf("Acquire() error = %v", err)
	}

	deliver(t, c, "devices/dev1/status", `{"status":"online","updated_at":"2026-08-30T12:00:00Z"}`)
	if _, ok := c.LiveState("dev1"); !ok {
		t.Fatal("live state missing before release")
	}

	if err := sub.Release(); err != nil {
		t.Fatalf("Release() error = %v", err)
	}
	if _, ok := c.LiveState("dev1"); ok {
		t.Error("live state survived last release")
	}
}

func TestDecodeTelemetry(t *testing.T) {
	payload := `{
		"status": "online",
		"readings": {"sound": {"value": 300, "observed_at": "2026-08-30T12:00:00Z"}},
		"toggles": [{"id": "sw1", "is_on": true}],
		"updated_at": "2026-08-30T12:00:01Z"
	}`

	upd, err := decodeTelemetry([]byte(payload))
	if err != nil {
		t.Fatalf("decodeTelemetry() error = %v", err)
	}

	if upd.Status == nil || *upd.Status != device.StatusOnline {
		t.Errorf("Status = %v, want online", upd.Status)
	}
	if upd.Readings["sound"].Value != 300 {
		t.Errorf("sound reading = %v, want 300", upd.Readings["sound"].Value)
	}
	if len(upd.Toggles) != 1 || !upd.Toggles[0].IsOn {
		t.Errorf("Toggles = %+v, want sw1 on", upd.Toggles)
	}
}

func TestDecodeTelemetry_Malformed(t *testing.T) {
	if _, err := decodeTelemetry([]byte(`{"nope":true}`)); !errors.Is(err, ErrMalformedPayload) {
		t.Errorf("decodeTelemetry() error = %v, want ErrMalformedPayload", err)
	}
}

func TestDeviceIDFromStatusTopic(t *testing.T) {
	tests := []struct {
		topic string
		want  string
	}{
		{"devices/dev1/status", "dev1"},
		{"devices/dev1/cmd", ""},
		{"devices/status", ""},
		{"other/dev1/status", ""},
		{"devices/dev1/status/extra", ""},
	}

	for _, tt := range tests {
		if got := DeviceIDFromStatusTopic(tt.topic); got != tt.want {
			t.Errorf("DeviceIDFromStatusTopic(%q) = %q, want %q", tt.topic, got, tt.want)
		}
	}
}
