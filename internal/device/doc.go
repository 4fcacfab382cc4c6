// Package device defines the domain types shared by the Room Link core:
// devices, toggles, sensor readings, room snapshots, live updates, and
// commands.
//
// Two representations of device state exist side by side:
//
//   - Snapshot: the full room state fetched over REST, stamped with the
//     server time it was generated (RequestTimestamp).
//   - LiveUpdate: a partial state pushed over the broker, stamped with the
//     device-side update time.
//
// Neither is authoritative on its own; the merge package reconciles them.
// This package holds no connection state and performs no I/O.
package device
