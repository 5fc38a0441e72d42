package api

import (
	"bytes"
	"context"
	"encoding/json"
	"errors"
	"io"
	"net/http"
	"net/http/httptest"
	"sync"
	"testing"
	"time"

	"go.bug.st/serial"

	"github.com/nerrad567/gray-serial-bridge/internal/bridge"
	"github.com/nerrad567/gray-serial-bridge/internal/eventlog"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/config"
	"github.com/nerrad567/gray-serial-bridge/internal/infrastructure/logging"
	"github.com/nerrad567/gray-serial-bridge/internal/link"
	"github.com/nerrad567/gray-serial-bridge/internal/ws"
)

// fakeDevicePort stands in for the serial device. Reads time out after 10ms
// the way a real port behaves under SetReadTimeout.
type fakeDevicePort struct {
	mu      sync.Mutex
	reads   chan []byte
	written [][]byte
}

func newFakeDevicePort() *fakeDevicePort {
	return &fakeDevicePort{reads: make(chan []byte, 16)}
}

func (p *fakeDevicePort) Read(buf []byte) (int, error) {
	select {
	case data, ok := <-p.reads:
		if !ok {
			return 0, io.EOF
		}
		return copy(buf, data), nil
	case <-time.After(10 * time.Millisecond):
		return 0, nil
	}
}

func (p *fakeDevicePort) Write(buf []byte) (int, error) {
	p.mu.Lock()
	defer p.mu.Unlock()
	cp := make([]byte, len(buf))
	copy(cp, buf)
	p.written = append(p.written, cp)
	return len(buf), nil
}

func (p *fakeDevicePort) writes() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]string, len(p.written))
	for i, w := range p.written {
		out[i] = string(w)
	}
	return out
}

func (p *fakeDevicePort) Close() error                                         { return nil }
func (p *fakeDevicePort) SetMode(*serial.Mode) error                           { return nil }
func (p *fakeDevicePort) Drain() error                                         { return nil }
func (p *fakeDevicePort) ResetInputBuffer() error                              { return nil }
func (p *fakeDevicePort) ResetOutputBuffer() error                             { return nil }
func (p *fakeDevicePort) SetDTR(bool) error                                    { return nil }
func (p *fakeDevicePort) SetRTS(bool) error                                    { return nil }
func (p *fakeDevicePort) GetModemStatusBits() (*serial.ModemStatusBits, error) { return nil, nil }
func (p *fakeDevicePort) SetReadTimeout(time.Duration) error                   { return nil }
func (p *fakeDevicePort) Break(time.Duration) error                            { return nil }

// stubEventStore returns canned link events.
type stubEventStore struct {
	events   []eventlog.Event
	err      error
	gotLimit int
}

func (s *stubEventStore) Recent(_ context.Context, limit int) ([]eventlog.Event, error) {
	s.gotLimit = limit
	return s.events, s.err
}

// harnessOpts tunes the test server construction.
type harnessOpts struct {
	maxClients int
	events     EventStore
	openFails  bool
}

type serverHarness struct {
	server   *Server
	http     *httptest.Server
	port     *fakeDevicePort
	router   *bridge.Router
	registry *ws.Registry
}

func testLogger() *logging.Logger {
	return logging.New(config.LoggingConfig{
		Level:  "error",
		Format: "text",
		Output: "stderr",
	}, "test")
}

func newServerHarness(t *testing.T, opts harnessOpts) *serverHarness {
	t.Helper()

	if opts.maxClients == 0 {
		opts.maxClients = 10
	}

	port := newFakeDevicePort()
	opener := func(string, *serial.Mode) (serial.Port, error) {
		if opts.openFails {
			return nil, errors.New("no such device")
		}
		return port, nil
	}

	lm := link.NewManager(link.Config{
		Port:              "/dev/ttyTEST0",
		BaudRate:          9600,
		ReconnectInterval: 10 * time.Millisecond,
		Opener:            opener,
	})
	registry := ws.NewRegistry(opts.maxClients, nil)
	router := bridge.NewRouter(lm, registry)

	srv, err := New(Deps{
		Config: config.APIConfig{
			Host: "127.0.0.1",
			Timeouts: config.APITimeoutConfig{
				Read:  30,
				Write: 30,
				Idle:  60,
			},
		},
		WS: config.WebSocketConfig{
			Path:           "/ws",
			MaxConnections: opts.maxClients,
			MaxMessageSize: 8192,
			PingInterval:   30,
			PongTimeout:    10,
		},
		Logger:   testLogger(),
		Bridge:   router,
		Registry: registry,
		Events:   opts.events,
		Version:  "test",
	})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}

	ctx, cancel := context.WithCancel(context.Background())
	router.Start(ctx)

	ts := httptest.NewServer(srv.buildRouter())
	t.Cleanup(func() {
		ts.Close()
		router.Stop()
		cancel()
	})

	return &serverHarness{
		server:   srv,
		http:     ts,
		port:     port,
		router:   router,
		registry: registry,
	}
}

// waitForLink blocks until the serial link reports connected.
func (h *serverHarness) waitForLink(t *testing.T) {
	t.Helper()
	deadline := time.After(2 * time.Second)
	for !h.router.LinkConnected() {
		select {
		case <-deadline:
			t.Fatal("serial link did not connect within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}
}

func decodeBody(t *testing.T, resp *http.Response) map[string]any {
	t.Helper()
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	var body map[string]any
	if err := json.NewDecoder(resp.Body).Decode(&body); err != nil {
		t.Fatalf("decoding response body: %v", err)
	}
	return body
}

func TestNew_RequiresDependencies(t *testing.T) {
	lm := link.NewManager(link.Config{Port: "/dev/null"})
	registry := ws.NewRegistry(1, nil)
	router := bridge.NewRouter(lm, registry)

	tests := []struct {
		name string
		deps Deps
	}{
		{"missing logger", Deps{Bridge: router, Registry: registry}},
		{"missing bridge", Deps{Logger: testLogger(), Registry: registry}},
		{"missing registry", Deps{Logger: testLogger(), Bridge: router}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if _, err := New(tt.deps); err == nil {
				t.Error("New() error = nil, want error")
			}
		})
	}
}

func TestServer_Root(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	resp, err := http.Get(h.http.URL + "/")
	if err != nil {
		t.Fatalf("GET / error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["name"] != "Gray Serial Bridge" {
		t.Errorf("name = %v, want Gray Serial Bridge", body["name"])
	}
	endpoints, ok := body["endpoints"].(map[string]any)
	if !ok {
		t.Fatalf("endpoints missing or wrong shape: %v", body["endpoints"])
	}
	if endpoints["websocket"] != "/ws" {
		t.Errorf("websocket endpoint = %v, want /ws", endpoints["websocket"])
	}
}

func TestServer_Status(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	resp, err := http.Get(h.http.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	serialInfo, ok := body["serial"].(map[string]any)
	if !ok {
		t.Fatalf("serial missing or wrong shape: %v", body["serial"])
	}
	if serialInfo["connected"] != true {
		t.Errorf("connected = %v, want true", serialInfo["connected"])
	}
	if serialInfo["port"] != "/dev/ttyTEST0" {
		t.Errorf("port = %v, want /dev/ttyTEST0", serialInfo["port"])
	}
	if serialInfo["baudrate"] != float64(9600) {
		t.Errorf("baudrate = %v, want 9600", serialInfo["baudrate"])
	}
	if body["clients"] != float64(0) {
		t.Errorf("clients = %v, want 0", body["clients"])
	}
}

func TestServer_StatusLinkDown(t *testing.T) {
	h := newServerHarness(t, harnessOpts{openFails: true})

	resp, err := http.Get(h.http.URL + "/api/status")
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	body := decodeBody(t, resp)

	serialInfo := body["serial"].(map[string]any)
	if serialInfo["connected"] != false {
		t.Errorf("connected = %v, want false", serialInfo["connected"])
	}
}

func TestServer_Publish(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	resp, err := http.Post(h.http.URL+"/api/publish", "application/json",
		bytes.NewBufferString(`{"topic":"led","payload":"on"}`))
	if err != nil {
		t.Fatalf("POST /api/publish error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	if body["success"] != true {
		t.Errorf("success = %v, want true", body["success"])
	}
	if body["topic"] != "led" {
		t.Errorf("topic = %v, want led", body["topic"])
	}

	writes := h.port.writes()
	if len(writes) != 1 || writes[0] != "led:on\n" {
		t.Errorf("device writes = %q, want [%q]", writes, "led:on\n")
	}
}

func TestServer_PublishMissingTopic(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	resp, err := http.Post(h.http.URL+"/api/publish", "application/json",
		bytes.NewBufferString(`{"payload":"on"}`))
	if err != nil {
		t.Fatalf("POST /api/publish error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["message"] != "Topic is required" {
		t.Errorf("message = %v, want %q", body["message"], "Topic is required")
	}
}

func TestServer_PublishInvalidJSON(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	resp, err := http.Post(h.http.URL+"/api/publish", "application/json",
		bytes.NewBufferString(`{not json`))
	if err != nil {
		t.Fatalf("POST /api/publish error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
	if body["message"] != "Invalid JSON format" {
		t.Errorf("message = %v, want %q", body["message"], "Invalid JSON format")
	}
}

func TestServer_PublishLinkDown(t *testing.T) {
	h := newServerHarness(t, harnessOpts{openFails: true})

	resp, err := http.Post(h.http.URL+"/api/publish", "application/json",
		bytes.NewBufferString(`{"topic":"led","payload":"on"}`))
	if err != nil {
		t.Fatalf("POST /api/publish error = %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
}

func TestServer_Events(t *testing.T) {
	store := &stubEventStore{
		events: []eventlog.Event{
			{ID: 2, Status: "disconnected", Port: "/dev/ttyTEST0", BaudRate: 9600},
			{ID: 1, Status: "connected", Port: "/dev/ttyTEST0", BaudRate: 9600},
		},
	}
	h := newServerHarness(t, harnessOpts{events: store})

	resp, err := http.Get(h.http.URL + "/api/events?limit=5")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusOK {
		t.Errorf("status = %d, want 200", resp.StatusCode)
	}
	events, ok := body["events"].([]any)
	if !ok {
		t.Fatalf("events missing or wrong shape: %v", body["events"])
	}
	if len(events) != 2 {
		t.Fatalf("len(events) = %d, want 2", len(events))
	}
	first := events[0].(map[string]any)
	if first["status"] != "disconnected" {
		t.Errorf("events[0].status = %v, want disconnected", first["status"])
	}
	if store.gotLimit != 5 {
		t.Errorf("store limit = %d, want 5", store.gotLimit)
	}
}

func TestServer_EventsInvalidLimit(t *testing.T) {
	h := newServerHarness(t, harnessOpts{events: &stubEventStore{}})

	resp, err := http.Get(h.http.URL + "/api/events?limit=banana")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if resp.StatusCode != http.StatusBadRequest {
		t.Errorf("status = %d, want 400", resp.StatusCode)
	}
}

func TestServer_EventsDisabled(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	resp, err := http.Get(h.http.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	body := decodeBody(t, resp)

	if resp.StatusCode != http.StatusServiceUnavailable {
		t.Errorf("status = %d, want 503", resp.StatusCode)
	}
	if body["message"] != "event log disabled" {
		t.Errorf("message = %v, want %q", body["message"], "event log disabled")
	}
}

func TestServer_EventsStoreFailure(t *testing.T) {
	store := &stubEventStore{err: errors.New("database locked")}
	h := newServerHarness(t, harnessOpts{events: store})

	resp, err := http.Get(h.http.URL + "/api/events")
	if err != nil {
		t.Fatalf("GET /api/events error = %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if resp.StatusCode != http.StatusInternalServerError {
		t.Errorf("status = %d, want 500", resp.StatusCode)
	}
}

func TestServer_RequestIDHeader(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	req, err := http.NewRequest(http.MethodGet, h.http.URL+"/api/status", nil)
	if err != nil {
		t.Fatalf("building request: %v", err)
	}
	req.Header.Set("X-Request-ID", "test-id-123")

	resp, err := http.DefaultClient.Do(req)
	if err != nil {
		t.Fatalf("GET /api/status error = %v", err)
	}
	defer resp.Body.Close() //nolint:errcheck // Test cleanup

	if got := resp.Header.Get("X-Request-ID"); got != "test-id-123" {
		t.Errorf("X-Request-ID = %q, want test-id-123", got)
	}
}

func TestServer_HealthCheck(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	// Not started via Start(), so the listener is absent.
	if err := h.server.HealthCheck(context.Background()); err == nil {
		t.Error("HealthCheck() error = nil before Start(), want error")
	}

	if err := h.server.Start(context.Background()); err != nil {
		t.Fatalf("Start() error = %v", err)
	}
	t.Cleanup(func() {
		if err := h.server.Close(); err != nil {
			t.Errorf("Close() error = %v", err)
		}
	})

	if err := h.server.HealthCheck(context.Background()); err != nil {
		t.Errorf("HealthCheck() error = %v after Start(), want nil", err)
	}
}
