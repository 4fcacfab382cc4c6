package merge

import (
	"github.com/roomlink/roomlink/internal/device"
)

// Room reconciles a REST snapshot with the live update map for that room
// and returns the merged per-device view, keyed by device ID.
//
// Per device, the live update wins only when its UpdatedAt is strictly
// newer than the snapshot's RequestTimestamp. An equal or older live
// update is stale by definition: the snapshot was generated after it and
// already reflects that state. When the live side wins, only the dynamic
// fields it carries (status, readings, toggle positions) are applied;
// static fields (name, toggle topology, calibration, buzzer threshold)
// always come from the snapshot.
//
// Devices present only in the snapshot pass through verbatim. Devices
// present only in the live map (pushed before the snapshot caught up)
// are included with their dynamic fields and no statics.
//
// Room is pure: neither input is mutated and the result shares no memory
// with the snapshot.
//
// Parameters:
//   - snap: the room snapshot, may be nil before the first fetch
//   - live: accumulated live updates keyed by device ID, may be nil
//
// Returns:
//   - map[string]*device.Device: merged devices keyed by ID
func Room(snap *device.Snapshot, live map[string]device.LiveUpdate) map[string]*device.Device {
	out := make(map[string]*device.Device)

	if snap != nil {
		for i := range snap.SwitchDevices {
			d := snap.SwitchDevices[i].Clone()

			if upd, ok := live[d.ID]; ok && upd.UpdatedAt.After(snap.RequestTimestamp) {
				applyUpdate(d, upd)
			}
			out[d.ID] = d
		}
	}

	// Live-only devices: no snapshot statics to anchor them yet.
	for id, upd := range live {
		if _, ok := out[id]; ok {
			continue
		}
		if snap != nil && !upd.UpdatedAt.After(snap.RequestTimestamp) {
			// Stale update for a device the snapshot no longer lists.
			continue
		}
		d := &device.Device{ID: id, Status: device.StatusUnknown}
		applyUpdate(d, upd)
		out[id] = d
	}

	return out
}

// applyUpdate overlays the dynamic fields of a live update onto d.
// d must be an independent copy; the update's maps are not retained.
func applyUpdate(d *device.Device, upd device.LiveUpdate) {
	if upd.Status != nil {
		d.Status = *upd.Status
	}

	if len(upd.Readings) > 0 {
		if d.Readings == nil {
			d.Readings = make(map[string]device.SensorReading, len(upd.Readings))
		}
		for kind, reading := range upd.Readings {
			d.Readings[kind] = reading
		}
	}

	for _, ts := range upd.Toggles {
		for i := range d.Toggles {
			if d.Toggles[i].ID == ts.ID {
				d.Toggles[i].IsOn = ts.IsOn
				break
			}
		}
	}
}
