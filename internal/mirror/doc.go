// Package mirror republishes bridge traffic onto an MQTT broker.
//
// The mirror is an optional integration: device messages flow out to
// graybridge/state/{topic}, the serial link status is published retained on
// graybridge/link, and commands arriving on graybridge/command/+ are
// forwarded to the device through the bridge's publish path. Disabling the
// mirror leaves the serial-to-WebSocket core untouched.
package mirror
