package bridge

// Envelope type discriminators. Every server-to-client frame carries exactly
// one of these in its "type" field.
const (
	TypeMessage = "message"
	TypeStatus  = "status"
	TypeAck     = "ack"
	TypeError   = "error"
	TypePong    = "pong"
)

// Client request types.
const (
	RequestPublish = "publish"
	RequestPing    = "ping"
)

// SourceDevice marks envelopes that originated from the serial device.
const SourceDevice = "arduino"

// MessageEnvelope carries one device message to WebSocket clients.
type MessageEnvelope struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
	Source  string `json:"source"`
}

// StatusDetails describes the serial link a status envelope refers to.
type StatusDetails struct {
	SerialPort string `json:"serial_port"`
	BaudRate   int    `json:"baudrate"`
}

// StatusEnvelope reports the serial link state to WebSocket clients.
type StatusEnvelope struct {
	Type    string        `json:"type"`
	Status  string        `json:"status"`
	Details StatusDetails `json:"details"`
}

// AckEnvelope reports the outcome of a client's publish request.
type AckEnvelope struct {
	Type    string `json:"type"`
	Success bool   `json:"success"`
	Topic   string `json:"topic"`
}

// ErrorEnvelope reports a malformed or rejected client request.
type ErrorEnvelope struct {
	Type    string `json:"type"`
	Message string `json:"message"`
}

// PongEnvelope answers a client ping.
type PongEnvelope struct {
	Type string `json:"type"`
}

// ClientRequest is the shape of every client-to-server frame.
type ClientRequest struct {
	Type    string `json:"type"`
	Topic   string `json:"topic"`
	Payload string `json:"payload"`
}

// NewMessageEnvelope builds a device message envelope.
func NewMessageEnvelope(topic, payload string) MessageEnvelope {
	return MessageEnvelope{
		Type:    TypeMessage,
		Topic:   topic,
		Payload: payload,
		Source:  SourceDevice,
	}
}

// NewStatusEnvelope builds a link status envelope.
func NewStatusEnvelope(connected bool, port string, baudRate int) StatusEnvelope {
	status := "disconnected"
	if connected {
		status = "connected"
	}
	return StatusEnvelope{
		Type:   TypeStatus,
		Status: status,
		Details: StatusDetails{
			SerialPort: port,
			BaudRate:   baudRate,
		},
	}
}

// NewAckEnvelope builds a publish acknowledgement.
func NewAckEnvelope(success bool, topic string) AckEnvelope {
	return AckEnvelope{Type: TypeAck, Success: success, Topic: topic}
}

// NewErrorEnvelope builds an error reply.
func NewErrorEnvelope(message string) ErrorEnvelope {
	return ErrorEnvelope{Type: TypeError, Message: message}
}

// NewPongEnvelope builds a pong reply.
func NewPongEnvelope() PongEnvelope {
	return PongEnvelope{Type: TypePong}
}
