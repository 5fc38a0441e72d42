package link

import (
	"bytes"
	"context"
	"sync"
	"time"

	"go.bug.st/serial"
)

// Defaults applied by NewManager for zero config values.
const (
	// defaultBaudRate matches the stock device firmware.
	defaultBaudRate = 9600

	// defaultReadTimeout bounds a single port read so the reading goroutine
	// wakes periodically even when the device is silent.
	defaultReadTimeout = 1 * time.Second

	// defaultReconnectInterval is the fixed delay between connection attempts.
	defaultReconnectInterval = 5 * time.Second

	// readBufSize is the size of the serial read buffer.
	readBufSize = 1024
)

// State is the serial link connection state.
type State int

// Link states. The manager starts Disconnected and cycles through Connecting
// on each attempt. There is no terminal state; the manager runs indefinitely
// under the reconnection loop.
const (
	StateDisconnected State = iota
	StateConnecting
	StateConnected
)

// String returns the lowercase state name used in logs and status envelopes.
func (s State) String() string {
	switch s {
	case StateConnecting:
		return "connecting"
	case StateConnected:
		return "connected"
	default:
		return "disconnected"
	}
}

// Logger defines the logging interface for the link manager.
type Logger interface {
	Debug(msg string, args ...any)
	Info(msg string, args ...any)
	Warn(msg string, args ...any)
	Error(msg string, args ...any)
}

// noopLogger is a logger that does nothing.
type noopLogger struct{}

func (noopLogger) Debug(string, ...any) {}
func (noopLogger) Info(string, ...any)  {}
func (noopLogger) Warn(string, ...any)  {}
func (noopLogger) Error(string, ...any) {}

// PortOpener opens a serial port. Production code uses serial.Open; tests
// inject a fake.
type PortOpener func(name string, mode *serial.Mode) (serial.Port, error)

// StatusCallback is invoked when the link transitions between connected and
// disconnected. Callbacks run asynchronously and panics are isolated, so one
// failing observer cannot block the others or the manager.
type StatusCallback func(connected bool)

// Config contains the serial link settings.
type Config struct {
	// Port is the serial device path (e.g., "/dev/ttyUSB0").
	Port string

	// BaudRate is the communication speed. Default: 9600.
	BaudRate int

	// ReadTimeout bounds a single port read. Default: 1s.
	ReadTimeout time.Duration

	// ReconnectInterval is the fixed delay between reconnection attempts.
	// Default: 5s. There is deliberately no backoff: the device is local
	// hardware, and a constant retry cadence keeps recovery time predictable.
	ReconnectInterval time.Duration

	// Opener opens the port. Default: serial.Open.
	Opener PortOpener
}

// Manager owns the serial link lifecycle.
//
// It holds the port handle, the connection state machine, a buffer of bytes
// read but not yet consumed as lines, and the background reconnection loop.
type Manager struct {
	cfg  Config
	open PortOpener

	logger   Logger
	loggerMu sync.RWMutex

	// mu guards state, port, and pending. Held only for in-memory updates,
	// never across a blocking port read or write.
	mu      sync.Mutex
	state   State
	port    serial.Port
	pending []byte

	// writeMu serialises writers so concurrent WriteMessage calls cannot
	// interleave the bytes of two messages.
	writeMu sync.Mutex

	cbMu      sync.RWMutex
	callbacks []StatusCallback

	// reconnectMu guards the reconnect loop handles; at most one loop runs.
	reconnectMu     sync.Mutex
	reconnectCancel context.CancelFunc
	reconnectDone   chan struct{}
}

// NewManager creates a serial link manager. The port is not opened until
// Connect is called (directly or by the reconnection loop).
func NewManager(cfg Config) *Manager {
	if cfg.BaudRate == 0 {
		cfg.BaudRate = defaultBaudRate
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = defaultReadTimeout
	}
	if cfg.ReconnectInterval == 0 {
		cfg.ReconnectInterval = defaultReconnectInterval
	}
	if cfg.Opener == nil {
		cfg.Opener = serial.Open
	}

	return &Manager{
		cfg:    cfg,
		open:   cfg.Opener,
		logger: noopLogger{},
		state:  StateDisconnected,
	}
}

// SetLogger sets the logger for the manager.
func (m *Manager) SetLogger(logger Logger) {
	m.loggerMu.Lock()
	m.logger = logger
	m.loggerMu.Unlock()
}

// getLogger returns the current logger.
func (m *Manager) getLogger() Logger {
	m.loggerMu.RLock()
	defer m.loggerMu.RUnlock()
	return m.logger
}

// OnStatusChange registers an observer for connected/disconnected transitions.
// Any number of observers may register; registration is not reversible.
func (m *Manager) OnStatusChange(cb StatusCallback) {
	m.cbMu.Lock()
	m.callbacks = append(m.callbacks, cb)
	m.cbMu.Unlock()
}

// State returns the current link state.
func (m *Manager) State() State {
	m.mu.Lock()
	defer m.mu.Unlock()
	return m.state
}

// IsConnected reports whether the link is currently connected.
func (m *Manager) IsConnected() bool {
	return m.State() == StateConnected
}

// Port returns the configured serial device path.
func (m *Manager) Port() string {
	return m.cfg.Port
}

// BaudRate returns the configured communication speed.
func (m *Manager) BaudRate() int {
	return m.cfg.BaudRate
}

// Connect opens the serial port.
//
// On failure the manager remains Disconnected and Connect returns false;
// I/O errors are never raised past this boundary. A successful connect
// notifies status observers.
//
// Returns:
//   - bool: true if the link is connected when Connect returns
func (m *Manager) Connect() bool {
	m.mu.Lock()
	if m.state == StateConnected {
		m.mu.Unlock()
		return true
	}
	m.state = StateConnecting
	m.mu.Unlock()

	log := m.getLogger()
	log.Info("connecting to serial port", "port", m.cfg.Port, "baudrate", m.cfg.BaudRate)

	port, err := m.open(m.cfg.Port, &serial.Mode{BaudRate: m.cfg.BaudRate})
	if err != nil {
		log.Error("serial connect failed", "port", m.cfg.Port, "error", err)
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return false
	}

	if err := port.SetReadTimeout(m.cfg.ReadTimeout); err != nil {
		log.Error("setting serial read timeout failed", "port", m.cfg.Port, "error", err)
		_ = port.Close() //nolint:errcheck // Best-effort cleanup on error path
		m.mu.Lock()
		m.state = StateDisconnected
		m.mu.Unlock()
		return false
	}

	m.mu.Lock()
	m.port = port
	m.pending = nil
	m.state = StateConnected
	m.mu.Unlock()

	log.Info("serial port connected", "port", m.cfg.Port, "baudrate", m.cfg.BaudRate)
	m.notifyStatus(true)
	return true
}

// Disconnect closes the serial port and sets the state to Disconnected.
// It is idempotent and safe to call in any state.
func (m *Manager) Disconnect() {
	if m.markDisconnected() {
		m.getLogger().Info("serial port disconnected", "port", m.cfg.Port)
	}
}

// markDisconnected releases the port on every exit path and reports whether
// the link was connected before the call. Observers are notified only on a
// genuine connected-to-disconnected transition.
func (m *Manager) markDisconnected() bool {
	m.mu.Lock()
	wasConnected := m.state == StateConnected
	port := m.port
	m.port = nil
	m.pending = nil
	m.state = StateDisconnected
	m.mu.Unlock()

	if port != nil {
		_ = port.Close() //nolint:errcheck // Port is being abandoned either way
	}

	if wasConnected {
		m.notifyStatus(false)
	}
	return wasConnected
}

// notifyStatus invokes every registered status callback asynchronously.
// A panicking observer is logged and isolated from the others.
func (m *Manager) notifyStatus(connected bool) {
	m.cbMu.RLock()
	callbacks := make([]StatusCallback, len(m.callbacks))
	copy(callbacks, m.callbacks)
	m.cbMu.RUnlock()

	for _, cb := range callbacks {
		go func(cb StatusCallback) {
			defer func() {
				if r := recover(); r != nil {
					m.getLogger().Error("status callback panic recovered", "panic", r)
				}
			}()
			cb(connected)
		}(cb)
	}
}

// ReadMessage reads one newline-terminated line from the device and parses it.
//
// It blocks the calling goroutine until a line arrives, the read times out, or
// the link fails. It returns ok=false when the link is not connected, when the
// read timed out with no complete line, or when the line failed to parse; the
// caller simply retries. On an I/O-level read error the manager transitions to
// Disconnected and returns ok=false rather than raising.
//
// Only one goroutine should call ReadMessage at a time (the ingress pump).
func (m *Manager) ReadMessage() (Message, bool) {
	for {
		m.mu.Lock()
		if m.state != StateConnected || m.port == nil {
			m.mu.Unlock()
			return Message{}, false
		}
		port := m.port
		if i := bytes.IndexByte(m.pending, '\n'); i >= 0 {
			line := string(m.pending[:i])
			m.pending = m.pending[i+1:]
			m.mu.Unlock()

			msg, ok := ParseLine(line)
			if !ok {
				if len(line) > 0 {
					m.getLogger().Warn("discarding invalid serial line", "line", line)
				}
				return Message{}, false
			}
			m.getLogger().Debug("received message", "topic", msg.Topic, "payload", msg.Payload)
			return msg, true
		}
		m.mu.Unlock()

		buf := make([]byte, readBufSize)
		n, err := port.Read(buf)
		if err != nil {
			m.getLogger().Error("serial read failed", "port", m.cfg.Port, "error", err)
			m.markDisconnected()
			return Message{}, false
		}
		if n == 0 {
			// Read timeout with no data; let the caller decide how to idle.
			return Message{}, false
		}

		m.mu.Lock()
		if m.state == StateConnected {
			m.pending = append(m.pending, buf[:n]...)
		}
		m.mu.Unlock()
	}
}

// WriteMessage formats topic and payload as a wire line and writes it to the
// device, draining the output buffer before returning.
//
// Returns false without raising if the link is not connected or the write
// fails; a failed write transitions the link to Disconnected.
func (m *Manager) WriteMessage(topic, payload string) bool {
	m.writeMu.Lock()
	defer m.writeMu.Unlock()

	m.mu.Lock()
	connected := m.state == StateConnected
	port := m.port
	m.mu.Unlock()

	log := m.getLogger()
	if !connected || port == nil {
		log.Warn("cannot write: link not connected", "topic", topic)
		return false
	}

	line := FormatLine(topic, payload)
	if _, err := port.Write([]byte(line)); err != nil {
		log.Error("serial write failed", "topic", topic, "error", err)
		m.markDisconnected()
		return false
	}
	if err := port.Drain(); err != nil {
		log.Error("serial drain failed", "topic", topic, "error", err)
		m.markDisconnected()
		return false
	}

	log.Debug("wrote message", "topic", topic, "payload", payload)
	return true
}

// StartReconnectLoop starts the background reconnection loop.
//
// While the loop runs and the link is not connected, it attempts Connect every
// ReconnectInterval. At most one loop is active; a second call while one is
// running is a logged no-op. The loop stops when ctx is cancelled or
// StopReconnectLoop is called.
func (m *Manager) StartReconnectLoop(ctx context.Context) {
	m.reconnectMu.Lock()
	defer m.reconnectMu.Unlock()

	if m.reconnectCancel != nil {
		m.getLogger().Warn("reconnect loop already running")
		return
	}

	loopCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	m.reconnectCancel = cancel
	m.reconnectDone = done

	go m.reconnectLoop(loopCtx, done)
	m.getLogger().Info("reconnect loop started", "interval", m.cfg.ReconnectInterval)
}

// StopReconnectLoop cancels the reconnection loop and waits for it to exit.
// Cancellation interrupts a pending interval sleep promptly; the loop never
// outlives this call. Safe to call when no loop is running.
func (m *Manager) StopReconnectLoop() {
	m.reconnectMu.Lock()
	cancel := m.reconnectCancel
	done := m.reconnectDone
	m.reconnectCancel = nil
	m.reconnectDone = nil
	m.reconnectMu.Unlock()

	if cancel == nil {
		return
	}
	cancel()
	<-done
	m.getLogger().Info("reconnect loop stopped")
}

// reconnectLoop attempts to connect whenever the link is down, then sleeps for
// the fixed interval. The timer select keeps cancellation latency bounded.
func (m *Manager) reconnectLoop(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		if !m.IsConnected() {
			if !m.Connect() {
				m.getLogger().Warn("reconnection failed",
					"port", m.cfg.Port,
					"retry_in", m.cfg.ReconnectInterval,
				)
			}
		}

		timer := time.NewTimer(m.cfg.ReconnectInterval)
		select {
		case <-ctx.Done():
			timer.Stop()
			return
		case <-timer.C:
		}
	}
}
