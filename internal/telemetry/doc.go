// Package telemetry records device samples as time-series points.
//
// The Recorder sits between the bridge router and the InfluxDB client: every
// device message with a numeric payload becomes one point tagged by topic,
// and link transitions are recorded as 0/1 samples. Non-numeric payloads are
// skipped silently; button presses and text statuses are not telemetry.
package telemetry
