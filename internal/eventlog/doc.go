// Package eventlog persists serial link state transitions to SQLite.
//
// Every connected/disconnected transition is recorded with the port and baud
// rate it occurred on, giving operators a connectivity history that survives
// restarts. Device messages are deliberately not persisted; the bridge is a
// live relay, not a message store.
package eventlog
