package link

import (
	"strings"
	"unicode/utf8"
)

// Message is a single device message, produced by parsing one serial line and
// consumed when formatting one. Messages are transient: they exist only for
// the duration of one routing pass and are never persisted.
type Message struct {
	// Topic identifies the sensor or actuator (e.g., "temp", "led"). Never empty.
	Topic string

	// Payload is the message body. May be empty.
	Payload string
}

// ParseLine parses a raw serial line in TOPIC:PAYLOAD format.
//
// The line is split on the first ':'. Both topic and payload are trimmed of
// surrounding whitespace (which also strips the '\r' that Serial.println
// leaves before the newline). Invalid UTF-8 byte sequences are replaced with
// the Unicode replacement character rather than failing the read.
//
// A line is invalid when it contains no ':' or when the topic is empty after
// trimming. The payload may be empty.
//
// Parameters:
//   - line: One serial line, without the trailing newline
//
// Returns:
//   - Message: Parsed message (zero value when invalid)
//   - bool: true if the line parsed successfully
func ParseLine(line string) (Message, bool) {
	if !utf8.ValidString(line) {
		line = strings.ToValidUTF8(line, string(utf8.RuneError))
	}

	if strings.TrimSpace(line) == "" {
		return Message{}, false
	}

	topic, payload, found := strings.Cut(line, ":")
	if !found {
		return Message{}, false
	}

	topic = strings.TrimSpace(topic)
	if topic == "" {
		return Message{}, false
	}

	return Message{
		Topic:   topic,
		Payload: strings.TrimSpace(payload),
	}, true
}

// FormatLine formats a topic and payload as a wire line: "TOPIC:PAYLOAD\n".
//
// No escaping is performed. A topic or payload containing ':' or a newline
// will corrupt framing on the device side; this is a documented limitation of
// the device protocol, kept for compatibility with deployed firmware.
func FormatLine(topic, payload string) string {
	return topic + ":" + payload + "\n"
}
