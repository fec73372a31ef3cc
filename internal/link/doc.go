// Package link provides transports that carry 20-byte frames between the
// host and the tracker.
//
// The tracker itself speaks Bluetooth LE: commands are written to a control
// characteristic and replies arrive as notifications, one frame each. This
// package does not talk to a Bluetooth adapter directly. Instead it connects
// to a bridge that relays frames:
//
//   - WebSocket: a gateway (phone app, ESP32, Raspberry Pi) relaying each
//     notification as one binary WebSocket message
//   - Serial: a UART BLE dongle in transparent mode, frames on a byte stream
//   - Pipe: an in-memory link used by tests and the built-in emulator
//   - Replay: inbound frames read back from a capture file
//
// Recorder wraps any Transport and writes every frame to a JSON-lines
// capture that Replay can consume later.
//
// # Ownership
//
// A Transport has exactly one owner, the session driving the download. It
// must be the only caller of Send and Recv.
//
// # Closure
//
// When the link drops, Recv and Send fail with an error wrapping ErrClosed.
package link
