package telemetry

import (
	"strconv"
	"strings"
)

// Writer is the subset of the InfluxDB client the recorder uses.
type Writer interface {
	WriteTopicSample(topic string, value float64)
	WriteLinkTransition(port string, connected bool)
}

// Logger defines the logging interface for the recorder.
type Logger interface {
	Debug(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}

// Recorder converts device messages into time-series samples.
type Recorder struct {
	writer Writer
	logger Logger
}

// NewRecorder creates a recorder over the given writer.
func NewRecorder(writer Writer, logger Logger) *Recorder {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Recorder{writer: writer, logger: logger}
}

// RecordSample records one device message if its payload parses as a number.
// Non-numeric payloads are skipped; the serial protocol carries plenty of
// non-telemetry traffic (button events, text statuses) that has no place in
// a time-series store.
func (r *Recorder) RecordSample(topic, payload string) {
	value, err := strconv.ParseFloat(strings.TrimSpace(payload), 64)
	if err != nil {
		r.logger.Debug("skipping non-numeric sample", "topic", topic)
		return
	}
	r.writer.WriteTopicSample(topic, value)
}

// RecordLinkTransition records a serial link state change.
func (r *Recorder) RecordLinkTransition(port string, connected bool) {
	r.writer.WriteLinkTransition(port, connected)
}
