package bridge

import (
	"context"
	"encoding/json"
	"sync"
	"time"

	"github.com/nerrad567/gray-serial-bridge/internal/link"
	"github.com/nerrad567/gray-serial-bridge/internal/ws"
)

// Pump pacing. The ingress pump polls the link; these intervals keep CPU
// usage negligible while the device is idle or the link is down.
const (
	disconnectedWait = 500 * time.Millisecond
	idleWait         = 10 * time.Millisecond
	panicCooldown    = 1 * time.Second
)

// Client error messages sent to WebSocket clients. The strings are part of
// the client-facing contract.
const (
	errTopicRequired = "Topic is required"
	errInvalidJSON   = "Invalid JSON format"
)

// Logger defines the logging interface for the router.
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

// Mirror republishes bridge traffic to an external broker. Implementations
// must be non-blocking or internally buffered; the router calls them inline.
type Mirror interface {
	PublishState(topic, payload string)
	PublishLinkStatus(connected bool)
}

// Telemetry records numeric device samples for later analysis.
type Telemetry interface {
	RecordSample(topic, payload string)
}

// EventSink persists link state transitions.
type EventSink interface {
	RecordTransition(ctx context.Context, status, port string, baudRate int) error
}

// Router wires the serial link to the WebSocket client registry and the
// optional sinks. Create with NewRouter, then Start.
type Router struct {
	link     *link.Manager
	registry *ws.Registry
	logger   Logger

	mirror    Mirror
	telemetry Telemetry
	events    EventSink

	mu       sync.Mutex
	cancel   context.CancelFunc
	pumpDone chan struct{}
}

// RouterOption configures optional router behaviour.
type RouterOption func(*Router)

// WithMirror attaches an external broker mirror.
func WithMirror(m Mirror) RouterOption {
	return func(r *Router) { r.mirror = m }
}

// WithTelemetry attaches a telemetry recorder.
func WithTelemetry(t Telemetry) RouterOption {
	return func(r *Router) { r.telemetry = t }
}

// WithEventSink attaches a persistent link event log.
func WithEventSink(s EventSink) RouterOption {
	return func(r *Router) { r.events = s }
}

// WithLogger sets the router logger.
func WithLogger(l Logger) RouterOption {
	return func(r *Router) { r.logger = l }
}

// NewRouter creates a router over the given link and client registry.
func NewRouter(lm *link.Manager, registry *ws.Registry, opts ...RouterOption) *Router {
	r := &Router{
		link:     lm,
		registry: registry,
		logger:   noopLogger{},
	}
	for _, opt := range opts {
		opt(r)
	}
	return r
}

// Start registers the status observer, starts the link reconnection loop, and
// launches the ingress pump. Call once; Stop shuts everything down.
func (r *Router) Start(ctx context.Context) {
	r.mu.Lock()
	defer r.mu.Unlock()
	if r.cancel != nil {
		r.logger.Warn("router already started")
		return
	}

	pumpCtx, cancel := context.WithCancel(ctx)
	done := make(chan struct{})
	r.cancel = cancel
	r.pumpDone = done

	r.link.OnStatusChange(func(connected bool) {
		r.onLinkStatus(pumpCtx, connected)
	})
	r.link.StartReconnectLoop(pumpCtx)

	go r.pump(pumpCtx, done)
	r.logger.Info("bridge router started")
}

// Stop shuts the router down: the reconnection loop first so nothing reopens
// the port, then the ingress pump, then the link itself.
func (r *Router) Stop() {
	r.mu.Lock()
	cancel := r.cancel
	done := r.pumpDone
	r.cancel = nil
	r.pumpDone = nil
	r.mu.Unlock()

	if cancel == nil {
		return
	}

	r.link.StopReconnectLoop()
	cancel()
	<-done
	r.link.Disconnect()
	r.logger.Info("bridge router stopped")
}

// onLinkStatus broadcasts a status envelope and forwards the transition to
// the optional sinks.
func (r *Router) onLinkStatus(ctx context.Context, connected bool) {
	env := NewStatusEnvelope(connected, r.link.Port(), r.link.BaudRate())
	r.registry.Broadcast(env)

	if r.mirror != nil {
		r.mirror.PublishLinkStatus(connected)
	}
	if r.events != nil {
		if err := r.events.RecordTransition(ctx, env.Status, r.link.Port(), r.link.BaudRate()); err != nil {
			r.logger.Error("recording link transition failed", "error", err)
		}
	}
}

// pump is the ingress loop: it drains the serial link and broadcasts each
// message. A panic anywhere in a routing pass is recovered, the link is
// reset, and pumping resumes after a cooldown.
func (r *Router) pump(ctx context.Context, done chan struct{}) {
	defer close(done)

	for {
		select {
		case <-ctx.Done():
			return
		default:
		}

		if !r.link.IsConnected() {
			sleepCtx(ctx, disconnectedWait)
			continue
		}

		if !r.pumpOnce() {
			sleepCtx(ctx, idleWait)
		}
	}
}

// pumpOnce performs one read-and-broadcast pass. It reports whether a message
// was routed, so the caller knows when to idle.
func (r *Router) pumpOnce() (routed bool) {
	defer func() {
		if rec := recover(); rec != nil {
			r.logger.Error("ingress pump panic recovered", "panic", rec)
			r.link.Disconnect()
			time.Sleep(panicCooldown)
			routed = false
		}
	}()

	msg, ok := r.link.ReadMessage()
	if !ok {
		return false
	}

	r.registry.Broadcast(NewMessageEnvelope(msg.Topic, msg.Payload))

	if r.mirror != nil {
		r.mirror.PublishState(msg.Topic, msg.Payload)
	}
	if r.telemetry != nil {
		r.telemetry.RecordSample(msg.Topic, msg.Payload)
	}
	return true
}

// Publish writes one message to the device. It is the single egress path,
// shared by WebSocket publish requests and the HTTP publish endpoint.
func (r *Router) Publish(topic, payload string) bool {
	ok := r.link.WriteMessage(topic, payload)
	if ok {
		r.logger.Debug("published to device", "topic", topic)
	}
	return ok
}

// LinkConnected reports whether the serial link is currently up.
func (r *Router) LinkConnected() bool {
	return r.link.IsConnected()
}

// StatusEnvelope returns the current link status envelope, as sent to every
// newly accepted client.
func (r *Router) StatusEnvelope() StatusEnvelope {
	return NewStatusEnvelope(r.link.IsConnected(), r.link.Port(), r.link.BaudRate())
}

// HandleClientMessage processes one raw client frame and replies through the
// registry.
//
// Malformed JSON gets an error envelope; a publish without a topic gets an
// error envelope; a publish with a topic gets an ack reporting the device
// write outcome; a ping gets a pong. Unknown request types are logged and
// otherwise ignored.
func (r *Router) HandleClientMessage(client *ws.Client, raw []byte) {
	var req ClientRequest
	if err := json.Unmarshal(raw, &req); err != nil {
		r.logger.Warn("invalid client frame", "client_id", client.ID, "error", err)
		r.reply(client, NewErrorEnvelope(errInvalidJSON))
		return
	}

	switch req.Type {
	case RequestPublish:
		if req.Topic == "" {
			r.reply(client, NewErrorEnvelope(errTopicRequired))
			return
		}
		ok := r.Publish(req.Topic, req.Payload)
		r.reply(client, NewAckEnvelope(ok, req.Topic))

	case RequestPing:
		r.reply(client, NewPongEnvelope())

	default:
		r.logger.Debug("ignoring unknown client request type",
			"client_id", client.ID,
			"request_type", req.Type,
		)
	}
}

// reply sends an envelope to one client, tolerating send failure (the
// registry prunes on failure).
func (r *Router) reply(client *ws.Client, v any) {
	if err := r.registry.SendTo(client, v); err != nil {
		r.logger.Debug("reply not delivered", "client_id", client.ID, "error", err)
	}
}

// sleepCtx sleeps for d or until ctx is cancelled, whichever is first.
func sleepCtx(ctx context.Context, d time.Duration) {
	timer := time.NewTimer(d)
	defer timer.Stop()
	select {
	case <-ctx.Done():
	case <-timer.C:
	}
}
