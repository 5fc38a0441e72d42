package api

import (
	"encoding/json"
	"errors"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"
)

// dialWS connects a WebSocket client to the harness server.
func dialWS(t *testing.T, h *serverHarness) *websocket.Conn {
	t.Helper()

	url := "ws" + strings.TrimPrefix(h.http.URL, "http") + "/ws"
	conn, resp, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("dialling %s: %v", url, err)
	}
	if resp != nil {
		resp.Body.Close() //nolint:errcheck // Test cleanup
	}
	t.Cleanup(func() {
		conn.Close() //nolint:errcheck // Test cleanup
	})
	return conn
}

// readFrame reads frames until one of the wanted type arrives.
func readFrame(t *testing.T, conn *websocket.Conn, frameType string) map[string]any {
	t.Helper()

	//nolint:errcheck // Best-effort deadline; read error surfaces below
	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			t.Fatalf("reading frame while waiting for %q: %v", frameType, err)
		}
		var frame map[string]any
		if err := json.Unmarshal(data, &frame); err != nil {
			t.Fatalf("frame is not valid JSON: %v", err)
		}
		if frame["type"] == frameType {
			return frame
		}
	}
}

func sendFrame(t *testing.T, conn *websocket.Conn, raw string) {
	t.Helper()
	if err := conn.WriteMessage(websocket.TextMessage, []byte(raw)); err != nil {
		t.Fatalf("writing frame: %v", err)
	}
}

func TestWebSocket_InitialStatus(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	conn := dialWS(t, h)

	frame := readFrame(t, conn, "status")
	if frame["status"] != "connected" {
		t.Errorf("status = %v, want connected", frame["status"])
	}
	details, ok := frame["details"].(map[string]any)
	if !ok {
		t.Fatalf("details missing or wrong shape: %v", frame["details"])
	}
	if details["serial_port"] != "/dev/ttyTEST0" {
		t.Errorf("serial_port = %v, want /dev/ttyTEST0", details["serial_port"])
	}
	if details["baudrate"] != float64(9600) {
		t.Errorf("baudrate = %v, want 9600", details["baudrate"])
	}
}

func TestWebSocket_InitialStatusLinkDown(t *testing.T) {
	h := newServerHarness(t, harnessOpts{openFails: true})

	conn := dialWS(t, h)

	frame := readFrame(t, conn, "status")
	if frame["status"] != "disconnected" {
		t.Errorf("status = %v, want disconnected", frame["status"])
	}
}

func TestWebSocket_DeviceTrafficBroadcast(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	h.port.reads <- []byte("temp:23.5\n")

	frame := readFrame(t, conn, "message")
	if frame["topic"] != "temp" {
		t.Errorf("topic = %v, want temp", frame["topic"])
	}
	if frame["payload"] != "23.5" {
		t.Errorf("payload = %v, want 23.5", frame["payload"])
	}
	if frame["source"] != "arduino" {
		t.Errorf("source = %v, want arduino", frame["source"])
	}
}

func TestWebSocket_PublishAck(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})
	h.waitForLink(t)

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	sendFrame(t, conn, `{"type":"publish","topic":"led","payload":"on"}`)

	frame := readFrame(t, conn, "ack")
	if frame["success"] != true {
		t.Errorf("success = %v, want true", frame["success"])
	}
	if frame["topic"] != "led" {
		t.Errorf("topic = %v, want led", frame["topic"])
	}

	writes := h.port.writes()
	if len(writes) != 1 || writes[0] != "led:on\n" {
		t.Errorf("device writes = %q, want [%q]", writes, "led:on\n")
	}
}

func TestWebSocket_PublishMissingTopic(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	sendFrame(t, conn, `{"type":"publish","payload":"on"}`)

	frame := readFrame(t, conn, "error")
	if frame["message"] != "Topic is required" {
		t.Errorf("message = %v, want %q", frame["message"], "Topic is required")
	}
}

func TestWebSocket_InvalidJSON(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	sendFrame(t, conn, `{not json`)

	frame := readFrame(t, conn, "error")
	if frame["message"] != "Invalid JSON format" {
		t.Errorf("message = %v, want %q", frame["message"], "Invalid JSON format")
	}
}

func TestWebSocket_PingPong(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	sendFrame(t, conn, `{"type":"ping"}`)

	readFrame(t, conn, "pong")
}

func TestWebSocket_ConnectionLimit(t *testing.T) {
	h := newServerHarness(t, harnessOpts{maxClients: 1})

	first := dialWS(t, h)
	readFrame(t, first, "status")

	second := dialWS(t, h)
	//nolint:errcheck // Best-effort deadline; read error surfaces below
	second.SetReadDeadline(time.Now().Add(2 * time.Second))
	_, _, err := second.ReadMessage()
	if err == nil {
		t.Fatal("second connection read succeeded, want policy violation close")
	}

	var closeErr *websocket.CloseError
	if !websocket.IsCloseError(err, websocket.ClosePolicyViolation) {
		t.Fatalf("close error = %v, want code %d", err, websocket.ClosePolicyViolation)
	}
	if errors.As(err, &closeErr) && closeErr.Text != "Connection limit reached" {
		t.Errorf("close reason = %q, want %q", closeErr.Text, "Connection limit reached")
	}
}

func TestWebSocket_DisconnectFreesSlot(t *testing.T) {
	h := newServerHarness(t, harnessOpts{maxClients: 1})

	first := dialWS(t, h)
	readFrame(t, first, "status")
	first.Close() //nolint:errcheck // Deliberate disconnect

	// The server prunes the client once its read loop observes the close.
	deadline := time.After(2 * time.Second)
	for h.registry.Count() != 0 {
		select {
		case <-deadline:
			t.Fatal("registry did not release the slot within 2s")
		case <-time.After(5 * time.Millisecond):
		}
	}

	second := dialWS(t, h)
	readFrame(t, second, "status")
}

func TestWebSocket_ClientCountInStatus(t *testing.T) {
	h := newServerHarness(t, harnessOpts{})

	conn := dialWS(t, h)
	readFrame(t, conn, "status")

	deadline := time.After(2 * time.Second)
	for h.registry.Count() != 1 {
		select {
		case <-deadline:
			t.Fatalf("registry count = %d, want 1", h.registry.Count())
		case <-time.After(5 * time.Millisecond):
		}
	}
}
