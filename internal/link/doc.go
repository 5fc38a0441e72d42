// Package link manages the serial connection to the bridged device.
//
// The device speaks a newline-delimited text protocol where every message is a
// single line of the form:
//
//	TOPIC:PAYLOAD\n
//
// This package provides:
//   - The line codec (ParseLine / FormatLine)
//   - The Manager, which owns the physical port lifecycle: connect, disconnect,
//     blocking line reads, serialised writes, and a fixed-interval background
//     reconnection loop
//   - Status change notification so other components can react to the link
//     going up or down without coupling to this package
//
// Failure Semantics:
//
// Every device I/O failure is non-fatal. The Manager degrades to the
// disconnected state, reports the failure as a boolean outcome plus a log
// entry, and relies on the reconnection loop to recover. Nothing in this
// package panics past its boundary or terminates the process.
//
// Thread Safety:
//
// All Manager methods are safe for concurrent use. Writes are serialised
// through an internal mutex so concurrent WriteMessage calls cannot interleave
// the bytes of two messages on the wire.
package link
