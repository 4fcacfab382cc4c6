// Package rooms fetches room snapshots from the REST backend.
//
// A snapshot is the authoritative room state at its request timestamp:
// devices with readings and toggle topology, plus linked cameras. The
// merge package overlays broker-pushed live updates on top of it.
//
// Authentication failures follow the shared recovery path: one token
// refresh through the auth coordinator, one retry, then ErrUnauthorized.
// Room creation, update, and deletion are backend concerns and have no
// client surface here.
package rooms
