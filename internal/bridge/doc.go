// Package bridge routes messages between the serial link and WebSocket
// clients.
//
// The Router is the composition point of the application core:
//   - An ingress pump goroutine drains the serial link and broadcasts each
//     parsed message to all connected clients
//   - Link status transitions are broadcast as status envelopes
//   - Client requests (publish, ping) are dispatched to the link or answered
//     directly, with per-message acks and structured error replies
//
// Optional sinks (an MQTT mirror, a telemetry recorder, a persistent event
// log) observe the same flows through small interfaces; a nil sink simply
// disables that concern.
//
// All JSON envelope shapes exchanged with WebSocket clients are defined here
// so the API layer and tests share one vocabulary.
package bridge
