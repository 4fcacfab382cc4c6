package pubsub

import (
	"context"
	"encoding/json"
	"errors"
	"testing"
	"time"

	"github.com/roomlink/roomlink/internal/device"
)

func TestSendCommand_PublishesToCommandTopic(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	err := c.SendCommand("dev1", device.Command{SwitchID: "sw1", Power: device.PowerOn})
	if err != nil {
		t.Fatalf("SendCommand() error = %v", err)
	}

	// The ack wait runs in a goroutine; the publish itself is synchronous.
	deadline := time.Now().Add(time.Second)
	for time.Now().Before(deadline) {
		fake.mu.Lock()
		n := len(fake.publishes)
		fake.mu.Unlock()
		if n > 0 {
			break
		}
		time.Sleep(time.Millisecond)
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.publishes) != 1 {
		t.Fatalf("publishes = %d, want 1", len(fake.publishes))
	}

	pub := fake.publishes[0]
	if pub.topic != "devices/dev1/cmd" {
		t.Errorf("topic = %q, want devices/dev1/cmd", pub.topic)
	}
	if pub.qos != 1 {
		t.Errorf("qos = %d, want 1", pub.qos)
	}

	var cmd device.Command
	if err := json.Unmarshal(pub.payload, &cmd); err != nil {
		t.Fatalf("payload not valid JSON: %v", err)
	}
	if cmd.SwitchID != "sw1" || cmd.Power != device.PowerOn {
		t.Errorf("payload = %+v, want sw1 ON", cmd)
	}
}

func TestSendCommand_Validation(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	if err := c.Connect(context.Background()); err != nil {
		t.Fatalf("Connect() error = %v", err)
	}

	tests := []struct {
		name     string
		deviceID string
		cmd      device.Command
		wantErr  error
	}{
		{
			name:     "empty device ID",
			deviceID: "",
			cmd:      device.Command{SwitchID: "sw1", Power: device.PowerOn},
			wantErr:  ErrInvalidDeviceID,
		},
		{
			name:     "empty switch ID",
			deviceID: "dev1",
			cmd:      device.Command{Power: device.PowerOn},
			wantErr:  ErrPublishFailed,
		},
		{
			name:     "invalid power state",
			deviceID: "dev1",
			cmd:      device.Command{SwitchID: "sw1", Power: "TOGGLE"},
			wantErr:  ErrPublishFailed,
		},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			err := c.SendCommand(tt.deviceID, tt.cmd)
			if !errors.Is(err, tt.wantErr) {
				t.Errorf("SendCommand() error = %v, want %v", err, tt.wantErr)
			}
		})
	}

	fake.mu.Lock()
	defer fake.mu.Unlock()
	if len(fake.publishes) != 0 {
		t.Errorf("invalid commands reached the broker: %d publishes", len(fake.publishes))
	}
}

func TestSendCommand_NotConnected(t *testing.T) {
	fake := &fakeMQTT{}
	c := newTestClient(t, fake, &fakeTokens{token: "t"})

	err := c.SendCommand("dev1", device.Command{SwitchID: "sw1", Power: device.PowerOff})
	if !errors.Is(err, ErrNotConnected) {
		t.Errorf("SendCommand() error = %v, want ErrNotConnected", err)
	}
}
