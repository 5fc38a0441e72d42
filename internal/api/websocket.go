package api

import (
	"errors"
	"net/http"
	"time"

	"github.com/gorilla/websocket"

	"github.com/nerrad567/gray-serial-bridge/internal/ws"
)

// closeReasonLimit is sent in the close frame when the connection limit
// is reached. Browsers surface it via the CloseEvent reason field.
const closeReasonLimit = "Connection limit reached"

// writeControlTimeout bounds control frame writes (pings, close frames).
const writeControlTimeout = 5 * time.Second

// upgrader configures the WebSocket upgrader.
var upgrader = websocket.Upgrader{
	ReadBufferSize:  1024,
	WriteBufferSize: 1024,
	CheckOrigin: func(_ *http.Request) bool {
		// Origin checking is handled by CORS middleware
		return true
	},
}

// handleWebSocket upgrades the HTTP connection to a WebSocket connection
// and admits it into the client registry.
//
// Rejected connections (registry at capacity) receive a policy violation
// close frame before the socket is closed. Admitted clients immediately
// receive a status envelope describing the serial link, then enter the
// read loop until they disconnect.
func (s *Server) handleWebSocket(w http.ResponseWriter, r *http.Request) {
	conn, err := upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Error("websocket upgrade failed", "error", err)
		return
	}

	client, err := s.registry.Accept(conn)
	if err != nil {
		if errors.Is(err, ws.ErrRegistryFull) {
			msg := websocket.FormatCloseMessage(websocket.ClosePolicyViolation, closeReasonLimit)
			//nolint:errcheck // Best-effort close frame; connection is discarded either way
			conn.WriteControl(websocket.CloseMessage, msg, time.Now().Add(writeControlTimeout))
		}
		conn.Close() //nolint:errcheck // Connection is being discarded
		return
	}

	// Tell the new client where the serial link stands before any traffic.
	if err := s.registry.SendTo(client, s.bridge.StatusEnvelope()); err != nil {
		return
	}

	stopPing := make(chan struct{})
	go s.pingLoop(conn, stopPing)

	s.readLoop(client, conn)
	close(stopPing)
	s.registry.Remove(client)
}

// readLoop reads client frames until the connection drops, dispatching
// each text message to the bridge router.
func (s *Server) readLoop(client *ws.Client, conn *websocket.Conn) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	pongWait := time.Duration(s.wsCfg.PongTimeout) * time.Second

	conn.SetReadLimit(int64(s.wsCfg.MaxMessageSize))
	//nolint:errcheck // Best-effort deadline on connection setup
	conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	conn.SetPongHandler(func(string) error {
		return conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
	})

	for {
		_, message, err := conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				s.logger.Warn("websocket read error", "client_id", client.ID, "error", err)
			} else {
				s.logger.Debug("websocket closed", "client_id", client.ID, "error", err)
			}
			return
		}
		// Any client message resets the read deadline (keeps connection alive
		// even if browser doesn't respond to protocol-level pings).
		//nolint:errcheck // Best-effort deadline reset
		conn.SetReadDeadline(time.Now().Add(pingInterval + pongWait))
		s.bridge.HandleClientMessage(client, message)
	}
}

// pingLoop sends protocol-level pings until stopped or the write fails.
func (s *Server) pingLoop(conn *websocket.Conn, stop <-chan struct{}) {
	pingInterval := time.Duration(s.wsCfg.PingInterval) * time.Second
	ticker := time.NewTicker(pingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-stop:
			return
		case <-ticker.C:
			deadline := time.Now().Add(writeControlTimeout)
			if err := conn.WriteControl(websocket.PingMessage, nil, deadline); err != nil {
				return
			}
		}
	}
}
