package mirror

import (
	"fmt"

	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/mqtt"
)

// Broker is the subset of the MQTT client the mirror uses.
type Broker interface {
	Publish(topic string, payload []byte, qos byte, retained bool) error
	Subscribe(topic string, qos byte, handler mqtt.MessageHandler) error
}

// Logger defines the logging interface for the mirror.
type Logger interface {
	Debug(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// Publisher is the egress path back to the serial device. It reports whether
// the write reached the device.
type Publisher func(topic, payload string) bool

// Mirror bridges device traffic to and from an MQTT broker.
type Mirror struct {
	broker Broker
	qos    byte
	topics mqtt.Topics
	logger Logger
}

// Option configures optional mirror behaviour.
type Option func(*Mirror)

// WithLogger sets the mirror logger.
func WithLogger(l Logger) Option {
	return func(m *Mirror) { m.logger = l }
}

// New creates a mirror over the given broker connection.
func New(broker Broker, qos byte, opts ...Option) *Mirror {
	m := &Mirror{
		broker: broker,
		qos:    qos,
		logger: noopLogger{},
	}
	for _, opt := range opts {
		opt(m)
	}
	return m
}

// PublishState republishes one device message to graybridge/state/{topic}.
// Broker failures are logged, never raised; the WebSocket path must not
// depend on broker availability.
func (m *Mirror) PublishState(topic, payload string) {
	mqttTopic := m.topics.State(topic)
	if err := m.broker.Publish(mqttTopic, []byte(payload), m.qos, false); err != nil {
		m.logger.Warn("mirroring device message failed", "topic", mqttTopic, "error", err)
	}
}

// PublishLinkStatus publishes the serial link state to graybridge/link.
// Published retained so late subscribers see the current state.
func (m *Mirror) PublishLinkStatus(connected bool) {
	status := "disconnected"
	if connected {
		status = "connected"
	}
	mqttTopic := m.topics.LinkStatus()
	if err := m.broker.Publish(mqttTopic, []byte(status), m.qos, true); err != nil {
		m.logger.Warn("mirroring link status failed", "topic", mqttTopic, "error", err)
	}
}

// SubscribeCommands forwards commands from graybridge/command/+ to the device
// through publish. The command payload becomes the device message payload.
//
// Returns:
//   - error: If the broker subscription fails
func (m *Mirror) SubscribeCommands(publish Publisher) error {
	pattern := m.topics.AllCommands()
	err := m.broker.Subscribe(pattern, m.qos, func(mqttTopic string, payload []byte) error {
		topic, ok := m.topics.CommandTopic(mqttTopic)
		if !ok {
			return fmt.Errorf("unexpected command topic %q", mqttTopic)
		}
		if !publish(topic, string(payload)) {
			m.logger.Warn("command not delivered to device", "topic", topic)
			return nil
		}
		m.logger.Debug("forwarded broker command", "topic", topic)
		return nil
	})
	if err != nil {
		return fmt.Errorf("subscribing to commands: %w", err)
	}
	return nil
}
