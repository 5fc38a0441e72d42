// Package ws tracks connected WebSocket clients.
//
// The Registry is the single authority on who is connected. It enforces the
// connection limit at admission time, assigns each client a unique ID, and
// fans envelopes out to every client. A client whose send fails is pruned
// immediately; the next broadcast never retries a dead connection.
//
// The Registry does not own the WebSocket read loops or the HTTP upgrade;
// those live in the API layer. It only owns membership and delivery.
//
// Thread Safety:
//
// All Registry methods are safe for concurrent use. Writes to an individual
// connection are serialised per client, so a broadcast and a direct send can
// never interleave frames on the same socket.
package ws
