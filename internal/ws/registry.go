package ws

import (
	"encoding/json"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Logger defines the logging interface for the registry.
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

// Conn is the subset of *websocket.Conn the registry needs. Tests substitute
// an in-memory implementation.
type Conn interface {
	WriteMessage(messageType int, data []byte) error
	Close() error
}

// Client is one admitted WebSocket connection.
type Client struct {
	// ID uniquely identifies the client for logging and pruning.
	ID string

	conn Conn

	// writeMu serialises frame writes; the underlying websocket connection
	// does not support concurrent writers.
	writeMu sync.Mutex
}

// send marshals v as JSON and writes it as a single text frame.
func (c *Client) send(data []byte) error {
	c.writeMu.Lock()
	defer c.writeMu.Unlock()
	return c.conn.WriteMessage(websocket.TextMessage, data)
}

// Registry tracks admitted clients and delivers envelopes to them.
type Registry struct {
	max    int
	logger Logger

	mu      sync.RWMutex
	clients map[string]*Client
}

// NewRegistry creates a client registry admitting at most max connections.
func NewRegistry(max int, logger Logger) *Registry {
	if logger == nil {
		logger = noopLogger{}
	}
	return &Registry{
		max:     max,
		logger:  logger,
		clients: make(map[string]*Client),
	}
}

// Accept admits a new connection, assigning it a unique client ID.
//
// Returns ErrRegistryFull when the connection limit is reached; the caller is
// responsible for closing the rejected connection with an appropriate close
// frame.
func (r *Registry) Accept(conn Conn) (*Client, error) {
	r.mu.Lock()
	defer r.mu.Unlock()

	if len(r.clients) >= r.max {
		r.logger.Warn("rejecting client: connection limit reached", "limit", r.max)
		return nil, ErrRegistryFull
	}

	client := &Client{
		ID:   uuid.New().String(),
		conn: conn,
	}
	r.clients[client.ID] = client

	r.logger.Info("client connected", "client_id", client.ID, "total", len(r.clients))
	return client, nil
}

// Remove drops a client from the registry and closes its connection.
// Removing an already-removed client is a no-op.
func (r *Registry) Remove(client *Client) {
	r.mu.Lock()
	_, present := r.clients[client.ID]
	delete(r.clients, client.ID)
	total := len(r.clients)
	r.mu.Unlock()

	if !present {
		return
	}

	_ = client.conn.Close() //nolint:errcheck // Connection may already be gone

	r.logger.Info("client disconnected", "client_id", client.ID, "total", total)
}

// Count returns the number of currently admitted clients.
func (r *Registry) Count() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.clients)
}

// Broadcast marshals v once and delivers it to every admitted client.
// Clients whose send fails are removed; their failure never interrupts
// delivery to the rest.
func (r *Registry) Broadcast(v any) {
	data, err := json.Marshal(v)
	if err != nil {
		r.logger.Error("broadcast marshal failed", "error", err)
		return
	}

	r.mu.RLock()
	snapshot := make([]*Client, 0, len(r.clients))
	for _, client := range r.clients {
		snapshot = append(snapshot, client)
	}
	r.mu.RUnlock()

	for _, client := range snapshot {
		if err := client.send(data); err != nil {
			r.logger.Warn("broadcast send failed, pruning client",
				"client_id", client.ID,
				"error", err,
			)
			r.Remove(client)
		}
	}
}

// SendTo delivers v to a single client. A failed send removes the client.
func (r *Registry) SendTo(client *Client, v any) error {
	data, err := json.Marshal(v)
	if err != nil {
		return fmt.Errorf("marshalling envelope: %w", err)
	}

	if err := client.send(data); err != nil {
		r.logger.Warn("send failed, pruning client", "client_id", client.ID, "error", err)
		r.Remove(client)
		return fmt.Errorf("writing to client %s: %w", client.ID, err)
	}
	return nil
}
