// Package merge reconciles the two sources of device state: REST room
// snapshots and broker-pushed live updates.
//
// The rule is timestamp-based and strict: a live value replaces a
// snapshot value only when the update's device-side timestamp is newer
// than the snapshot's request timestamp. Ties go to the snapshot, which
// by construction already includes any state the device reported before
// the snapshot was generated.
//
// The package is pure and stateless; callers own both inputs and the
// result. The pubsub package maintains the live map, the rooms package
// fetches snapshots, and consumers call Room whenever either changes.
package merge
