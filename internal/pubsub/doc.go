// Package pubsub maintains the broker side of device synchronisation:
// one MQTT-over-websocket connection carrying telemetry in and commands
// out.
//
// # Connection and auth
//
// The client authenticates with a fixed role identifier as username and
// the current access token as password. The token is read from the auth
// coordinator on every connection attempt, so tokens refreshed while
// disconnected apply to the next reconnect automatically. A credential
// refusal triggers exactly one refresh and one retry; a second refusal
// is terminal and fires the auth failure callback.
//
// # Subscriptions
//
// Device telemetry topics are reference counted. Consumers call Acquire
// for the devices they care about and Release when done; the broker
// topic set is always the union of live handles. Clean sessions mean
// every (re)connect reissues the whole set.
//
// # Telemetry
//
// Paho delivers messages on its own goroutines, but all decoding and
// state mutation happens on a single actor goroutine fed by a bounded
// channel. Payloads are strictly validated; anything malformed is
// dropped and logged. Accepted updates merge field-wise into the
// per-device live state, which the merge package reconciles with REST
// snapshots.
//
// # Commands
//
// SendCommand publishes to devices/{id}/cmd and does not wait for the
// ack. The device's next telemetry message is the confirmation.
package pubsub
