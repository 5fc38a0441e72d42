package link

import (
	"context"
	"errors"
	"io"
	"sync"
	"sync/atomic"
	"testing"
	"time"

	"go.bug.st/serial"
)

// fakePort is an in-memory serial.Port. Reads are fed through a channel so
// tests control exactly when data (or a timeout, or an error) arrives.
type fakePort struct {
	mu      sync.Mutex
	reads   chan readResult
	written [][]byte
	closed  bool
	readErr error
}

type readResult struct {
	data []byte
	err  error
}

func newFakePort() *fakePort {
	return &fakePort{reads: make(chan readResult, 16)}
}

func (p *fakePort) feed(data string)     { p.reads <- readResult{data: []byte(data)} }
func (p *fakePort) feedTimeout()         { p.reads <- readResult{} }
func (p *fakePort) feedError(err error)  { p.reads <- readResult{err: err} }

func (p *fakePort) Read(buf []byte) (int, error) {
	r, ok := <-p.reads
	if !ok {
		return 0, io.EOF
	}
	if r.err != nil {
		return 0, r.err
	}
	return copy(buf, r.data), nil
}

func (p *fakePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.readErr != nil {
		return 0, p.readErr
	}
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.written = append(p.written, cp)
	return len(buf), nil
}

func (p *fakePort) writes() [][]byte {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([][]byte, len(p.written))
	copy(out, p.written)
	return out
}

func (p *fakePort) failWrites(err error) {
	p.mu.Lock()
	p.readErr = err
	p.mu.Unlock()
}

func (p *fakePort) Close() error {
	p.mu.Lock()
	defer p.mu.Unlock()
	p.closed = true
	return nil
}

func (p *fakePort) isClosed() bool {
	p.mu.Lock()
	defer p.mu.Unlock()
	return p.closed
}

func (p *fakePort) SetMode(*serial.Mode) error                         { return nil }
func (p *fakePort) Drain() error                                       { return nil }
func (p *fakePort) ResetInputBuffer() error                            { return nil }
func (p *fakePort) ResetOutputBuffer() error                           { return nil }
func (p *fakePort) SetDTR(bool) error                                  { return nil }
func (p *fakePort) SetRTS(bool) error                                  { return nil }
func (p *fakePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakePort) SetReadTimeout(time.Duration) error                 { return nil }
func (p *fakePort) Break(time.Duration) error                          { return nil }

func newTestManager(port serial.Port, openErr error) (*Manager, *atomic.Int32) {
	attempts := &atomic.Int32{}
	m := NewManager(Config{
		Port:              "/dev/ttyTEST0",
		BaudRate:          9600,
		ReadTimeout:       10 * time.Millisecond,
		ReconnectInterval: 20 * time.Millisecond,
		Opener: func(string, *serial.Mode) (serial.Port, error) {
			attempts.Add(1)
			if openErr != nil {
				return nil, openErr
			}
			return port, nil
		},
	})
	return m, attempts
}

func TestManager_ConnectSuccess(t *testing.T) {
	port := newFakePort()
	m, attempts := newTestManager(port, nil)

	if !m.Connect() {
		t.Fatal("Connect() = false, want true")
	}
	if got := m.State(); got != StateConnected {
		t.Errorf("State() = %v, want %v", got, StateConnected)
	}
	if !m.IsConnected() {
		t.Error("IsConnected() = false, want true")
	}
	if attempts.Load() != 1 {
		t.Errorf("open attempts = %d, want 1", attempts.Load())
	}

	// Second Connect on an already-connected link is a no-op.
	if !m.Connect() {
		t.Error("Connect() on connected link = false, want true")
	}
	if attempts.Load() != 1 {
		t.Errorf("open attempts after redundant Connect = %d, want 1", attempts.Load())
	}
}

func TestManager_ConnectFailure(t *testing.T) {
	m, _ := newTestManager(nil, errors.New("no such device"))

	if m.Connect() {
		t.Fatal("Connect() = true, want false")
	}
	if got := m.State(); got != StateDisconnected {
		t.Errorf("State() = %v, want %v", got, StateDisconnected)
	}
}

func TestManager_Disconnect(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	m.Disconnect()
	if m.IsConnected() {
		t.Error("IsConnected() = true after Disconnect")
	}
	if !port.isClosed() {
		t.Error("port not closed after Disconnect")
	}

	// Idempotent.
	m.Disconnect()
}

func TestManager_ReadMessage(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	port.feed("temp:23.5\n")
	msg, ok := m.ReadMessage()
	if !ok {
		t.Fatal("ReadMessage() ok = false, want true")
	}
	if msg.Topic != "temp" || msg.Payload != "23.5" {
		t.Errorf("ReadMessage() = %+v, want {temp 23.5}", msg)
	}
}

func TestManager_ReadMessage_PartialLines(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	// A line split across reads, followed by two lines in one read.
	port.feed("tem")
	port.feed("p:21\nhum:55\nbut")

	msg, ok := m.ReadMessage()
	if !ok || msg.Topic != "temp" || msg.Payload != "21" {
		t.Fatalf("first ReadMessage() = %+v ok=%v, want {temp 21} true", msg, ok)
	}

	msg, ok = m.ReadMessage()
	if !ok || msg.Topic != "hum" || msg.Payload != "55" {
		t.Fatalf("second ReadMessage() = %+v ok=%v, want {hum 55} true", msg, ok)
	}

	// Remainder completes later.
	port.feed("ton:1\n")
	msg, ok = m.ReadMessage()
	if !ok || msg.Topic != "button" || msg.Payload != "1" {
		t.Fatalf("third ReadMessage() = %+v ok=%v, want {button 1} true", msg, ok)
	}
}

func TestManager_ReadMessage_Timeout(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	port.feedTimeout()
	if _, ok := m.ReadMessage(); ok {
		t.Error("ReadMessage() ok = true on timeout, want false")
	}
	if !m.IsConnected() {
		t.Error("timeout must not disconnect the link")
	}
}

func TestManager_ReadMessage_InvalidLine(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	port.feed("no separator here\n")
	if _, ok := m.ReadMessage(); ok {
		t.Error("ReadMessage() ok = true for invalid line, want false")
	}
	if !m.IsConnected() {
		t.Error("invalid line must not disconnect the link")
	}

	// The link keeps working afterwards.
	port.feed("led:on\n")
	msg, ok := m.ReadMessage()
	if !ok || msg.Topic != "led" {
		t.Errorf("ReadMessage() after invalid line = %+v ok=%v", msg, ok)
	}
}

func TestManager_ReadMessage_ErrorDisconnects(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	port.feedError(errors.New("device unplugged"))
	if _, ok := m.ReadMessage(); ok {
		t.Error("ReadMessage() ok = true on read error, want false")
	}
	if m.IsConnected() {
		t.Error("read error must disconnect the link")
	}
	if !port.isClosed() {
		t.Error("port not closed after read error")
	}
}

func TestManager_ReadMessage_NotConnected(t *testing.T) {
	m, _ := newTestManager(newFakePort(), nil)
	if _, ok := m.ReadMessage(); ok {
		t.Error("ReadMessage() ok = true while disconnected, want false")
	}
}

func TestManager_WriteMessage(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	if !m.WriteMessage("led", "on") {
		t.Fatal("WriteMessage() = false, want true")
	}
	writes := port.writes()
	if len(writes) != 1 || string(writes[0]) != "led:on\n" {
		t.Errorf("writes = %q, want [%q]", writes, "led:on\n")
	}
}

func TestManager_WriteMessage_NotConnected(t *testing.T) {
	m, _ := newTestManager(newFakePort(), nil)
	if m.WriteMessage("led", "on") {
		t.Error("WriteMessage() = true while disconnected, want false")
	}
}

func TestManager_WriteMessage_ErrorDisconnects(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)
	m.Connect()

	port.failWrites(errors.New("device unplugged"))
	if m.WriteMessage("led", "on") {
		t.Error("WriteMessage() = true on write error, want false")
	}
	if m.IsConnected() {
		t.Error("write error must disconnect the link")
	}
}

func TestManager_StatusCallbacks(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)

	events := make(chan bool, 4)
	m.OnStatusChange(func(connected bool) { events <- connected })

	m.Connect()
	select {
	case got := <-events:
		if !got {
			t.Error("first status event = false, want true")
		}
	case <-time.After(time.Second):
		t.Fatal("no status event after Connect")
	}

	m.Disconnect()
	select {
	case got := <-events:
		if got {
			t.Error("second status event = true, want false")
		}
	case <-time.After(time.Second):
		t.Fatal("no status event after Disconnect")
	}

	// No further events for a redundant disconnect.
	m.Disconnect()
	select {
	case got := <-events:
		t.Errorf("unexpected status event %v after redundant Disconnect", got)
	case <-time.After(50 * time.Millisecond):
	}
}

func TestManager_StatusCallbackPanicIsolated(t *testing.T) {
	port := newFakePort()
	m, _ := newTestManager(port, nil)

	got := make(chan bool, 1)
	m.OnStatusChange(func(bool) { panic("observer bug") })
	m.OnStatusChange(func(connected bool) { got <- connected })

	m.Connect()
	select {
	case <-got:
	case <-time.After(time.Second):
		t.Fatal("second callback not invoked after first panicked")
	}
}

func TestManager_ReconnectLoop(t *testing.T) {
	m, attempts := newTestManager(nil, errors.New("no such device"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartReconnectLoop(ctx)

	deadline := time.After(2 * time.Second)
	for attempts.Load() < 3 {
		select {
		case <-deadline:
			t.Fatalf("only %d attempts after 2s, want >= 3", attempts.Load())
		case <-time.After(5 * time.Millisecond):
		}
	}

	m.StopReconnectLoop()
	settled := attempts.Load()
	time.Sleep(60 * time.Millisecond)
	if attempts.Load() != settled {
		t.Error("attempts continued after StopReconnectLoop")
	}
}

func TestManager_ReconnectLoop_StopsOnContextCancel(t *testing.T) {
	m, attempts := newTestManager(nil, errors.New("no such device"))

	ctx, cancel := context.WithCancel(context.Background())
	m.StartReconnectLoop(ctx)

	deadline := time.After(2 * time.Second)
	for attempts.Load() < 1 {
		select {
		case <-deadline:
			t.Fatal("no connection attempt after 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	cancel()
	time.Sleep(60 * time.Millisecond)
	settled := attempts.Load()
	time.Sleep(60 * time.Millisecond)
	if attempts.Load() != settled {
		t.Error("attempts continued after context cancel")
	}

	// StopReconnectLoop after cancel must not hang.
	done := make(chan struct{})
	go func() {
		m.StopReconnectLoop()
		close(done)
	}()
	select {
	case <-done:
	case <-time.After(time.Second):
		t.Fatal("StopReconnectLoop hung after context cancel")
	}
}

func TestManager_ReconnectLoop_SingleInstance(t *testing.T) {
	m, attempts := newTestManager(nil, errors.New("no such device"))

	ctx, cancel := context.WithCancel(context.Background())
	defer cancel()
	m.StartReconnectLoop(ctx)
	m.StartReconnectLoop(ctx) // second call must be a no-op

	time.Sleep(50 * time.Millisecond)
	m.StopReconnectLoop()

	// With a 20ms interval and ~50ms of runtime, a single loop makes at most
	// a handful of attempts; a duplicate loop would roughly double it.
	if n := attempts.Load(); n > 5 {
		t.Errorf("attempts = %d, too many for a single 20ms loop over 50ms", n)
	}
}

func TestState_String(t *testing.T) {
	tests := []struct {
		state State
		want  string
	}{
		{StateDisconnected, "disconnected"},
		{StateConnecting, "connecting"},
		{StateConnected, "connected"},
	}
	for _, tt := range tests {
		if got := tt.state.String(); got != tt.want {
			t.Errorf("State(%d).String() = %q, want %q", tt.state, got, tt.want)
		}
	}
}
