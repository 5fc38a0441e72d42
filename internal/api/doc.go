// Package api implements the HTTP REST API and WebSocket server for the
// Gray Serial Bridge.
//
// This package provides:
//   - REST endpoints for link status, one-shot publishes, and event history
//   - WebSocket endpoint streaming serial traffic to connected clients
//   - Middleware stack (request ID, logging, recovery, CORS, body limits)
//
// # Architecture
//
// The API server sits between user interfaces (browser dashboards, scripts)
// and the bridge router. Inbound serial messages are broadcast to every
// admitted WebSocket client; publish requests from clients or REST callers
// flow through the bridge router to the serial device.
//
// # Graceful Degradation
//
// The server operates without a connected serial device — status reads and
// WebSocket connections work, only publishes fail. The event history endpoint
// is disabled when the event log is not configured.
package api
