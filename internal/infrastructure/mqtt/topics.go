package mqtt

import "fmt"

// Topic prefixes for the bridge's MQTT namespace.
//
// All bridge topics use the flat scheme: graybridge/{category}/{topic}
// where {topic} is the device topic from the serial protocol.
const (
	// TopicPrefix is the base for all bridge topics.
	TopicPrefix = "graybridge"

	// TopicPrefixSystem is the base for system topics.
	TopicPrefixSystem = "graybridge/system"
)

// Topics provides builders for bridge MQTT topics.
// Using these helpers ensures consistent topic naming across the codebase.
//
//	topics := mqtt.Topics{}
//	stateTopic := topics.State("temp")
//	// Returns: "graybridge/state/temp"
type Topics struct{}

// State returns the topic for device messages mirrored from the serial link.
//
// Example: graybridge/state/temp
func (Topics) State(topic string) string {
	return fmt.Sprintf("%s/state/%s", TopicPrefix, topic)
}

// Command returns the topic for commands destined for the device.
//
// Example: graybridge/command/led
func (Topics) Command(topic string) string {
	return fmt.Sprintf("%s/command/%s", TopicPrefix, topic)
}

// LinkStatus returns the serial link status topic.
// Published retained so new subscribers see the current link state.
//
// Example: graybridge/link
func (Topics) LinkStatus() string {
	return fmt.Sprintf("%s/link", TopicPrefix)
}

// SystemStatus returns the bridge process status topic, used for the
// online/offline lifecycle payloads and the LWT.
//
// Example: graybridge/system/status
func (Topics) SystemStatus() string {
	return fmt.Sprintf("%s/status", TopicPrefixSystem)
}

// AllCommands returns a pattern matching every command topic.
//
// Pattern: graybridge/command/+
func (Topics) AllCommands() string {
	return fmt.Sprintf("%s/command/+", TopicPrefix)
}

// CommandTopic extracts the device topic from a command MQTT topic.
// Returns false if the MQTT topic is not under graybridge/command/.
func (Topics) CommandTopic(mqttTopic string) (string, bool) {
	prefix := TopicPrefix + "/command/"
	if len(mqttTopic) <= len(prefix) || mqttTopic[:len(prefix)] != prefix {
		return "", false
	}
	return mqttTopic[len(prefix):], true
}
