package realtime

import (
	"context"
	"encoding/json"
	"net/http"
	"net/url"
	"strings"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/nerrad567/valuecore/internal/infrastructure/config"
	"github.com/nerrad567/valuecore/internal/infrastructure/logging"
)

// Origins reported to metrics and telemetry.
const (
	OriginLocal  = "local"
	OriginRemote = "remote"
)

const (
	// sendBufferSize is the per-socket outbound message buffer size.
	sendBufferSize = 256

	defaultPingInterval = 25 * time.Second
	defaultPongTimeout  = 20 * time.Second
)

// EventHandler handles a client event. A non-nil result is returned to the
// client as an ack when the event carried an id; an error is returned as an
// error frame. ctx is cancelled when the socket disconnects.
type EventHandler func(ctx context.Context, s *Socket, data json.RawMessage) (any, error)

// BroadcastRecorder receives one call per delivered broadcast.
// *influxdb.Client satisfies it.
type BroadcastRecorder interface {
	WriteBroadcastMetric(event, origin string, recipients int)
}

// Options configures a Server.
type Options struct {
	// ClientURL is the only browser origin allowed to connect.
	ClientURL      string
	MaxMessageSize int64
	PingInterval   time.Duration
	PongTimeout    time.Duration
}

// OptionsFromConfig builds Options from the realtime and CORS settings.
func OptionsFromConfig(rt config.RealtimeConfig, clientURL string) Options {
	return Options{
		ClientURL:      clientURL,
		MaxMessageSize: int64(rt.MaxMessageSize),
		PingInterval:   time.Duration(rt.PingInterval) * time.Second,
		PongTimeout:    time.Duration(rt.PongTimeout) * time.Second,
	}
}

// Server accepts websocket connections and routes events and broadcasts.
// It implements http.Handler for the upgrade endpoint.
type Server struct {
	opts     Options
	nodeID   string
	logger   *logging.Logger
	metrics  *Metrics
	upgrader websocket.Upgrader

	sockets map[*Socket]struct{}
	mu      sync.RWMutex
	closed  bool

	handlers     map[string]EventHandler
	onConnect    []func(*Socket)
	onDisconnect []func(*Socket)
	handlerMu    sync.RWMutex

	adapter   Adapter
	adapterMu sync.RWMutex

	recorder BroadcastRecorder
}

// NewServer creates a socket server with a LocalAdapter.
// metrics may be nil.
func NewServer(opts Options, logger *logging.Logger, metrics *Metrics) *Server {
	if opts.PingInterval <= 0 {
		opts.PingInterval = defaultPingInterval
	}
	if opts.PongTimeout <= 0 {
		opts.PongTimeout = defaultPongTimeout
	}
	s := &Server{
		opts:     opts,
		nodeID:   uuid.NewString(),
		logger:   logger.With("component", "realtime"),
		metrics:  metrics,
		sockets:  make(map[*Socket]struct{}),
		handlers: make(map[string]EventHandler),
	}
	s.upgrader = websocket.Upgrader{
		ReadBufferSize:  1024,
		WriteBufferSize: 1024,
		CheckOrigin:     s.checkOrigin,
	}
	s.adapter = NewLocalAdapter(s)
	return s
}

// NodeID identifies this process in broadcast envelopes.
func (s *Server) NodeID() string {
	return s.nodeID
}

// On registers the handler for a client event name, replacing any existing one.
func (s *Server) On(event string, handler EventHandler) {
	s.handlerMu.Lock()
	s.handlers[event] = handler
	s.handlerMu.Unlock()
}

// OnConnect registers a hook run after a socket is registered.
func (s *Server) OnConnect(fn func(*Socket)) {
	s.handlerMu.Lock()
	s.onConnect = append(s.onConnect, fn)
	s.handlerMu.Unlock()
}

// OnDisconnect registers a hook run after a socket is unregistered.
func (s *Server) OnDisconnect(fn func(*Socket)) {
	s.handlerMu.Lock()
	s.onDisconnect = append(s.onDisconnect, fn)
	s.handlerMu.Unlock()
}

// SetRecorder sets an optional broadcast telemetry sink.
func (s *Server) SetRecorder(r BroadcastRecorder) {
	s.adapterMu.Lock()
	s.recorder = r
	s.adapterMu.Unlock()
}

// SetAdapter replaces the fan-out adapter. The previous adapter is not
// closed; the caller owns it.
func (s *Server) SetAdapter(a Adapter) {
	s.adapterMu.Lock()
	s.adapter = a
	s.adapterMu.Unlock()
}

// Adapter returns the current fan-out adapter.
func (s *Server) Adapter() Adapter {
	s.adapterMu.RLock()
	defer s.adapterMu.RUnlock()
	return s.adapter
}

// Broadcast sends event to every matching socket on every node.
//
// Example:
//
//	err := srv.Broadcast(ctx, "value:created", v, realtime.To("values"))
func (s *Server) Broadcast(ctx context.Context, event string, data any, opts ...BroadcastOption) error {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		return ErrServerClosed
	}

	raw, err := marshalData(data)
	if err != nil {
		return err
	}
	env := Envelope{UID: s.nodeID, Event: event, Data: raw}
	for _, opt := range opts {
		opt(&env)
	}
	return s.Adapter().Broadcast(ctx, env)
}

// DeliverLocal queues env to every matching socket connected to this
// process and returns how many sockets it was queued to.
func (s *Server) DeliverLocal(env Envelope) int {
	frame, err := json.Marshal(Message{Type: TypeEvent, Event: env.Event, Data: env.Data})
	if err != nil {
		s.logger.Error("failed to marshal broadcast frame", "event", env.Event, "error", err)
		return 0
	}

	// Snapshot under the server lock, then match rooms under each socket's
	// own lock. The two locks are never held together.
	s.mu.RLock()
	sockets := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.RUnlock()

	sent := 0
	for _, sock := range sockets {
		if sock.matches(env.Rooms, env.Except) {
			sock.trySend(frame)
			sent++
		}
	}

	origin := OriginRemote
	if env.UID == s.nodeID {
		origin = OriginLocal
	}
	s.metrics.delivered(origin, sent)

	s.adapterMu.RLock()
	recorder := s.recorder
	s.adapterMu.RUnlock()
	if recorder != nil {
		recorder.WriteBroadcastMetric(env.Event, origin, sent)
	}

	if sent > 0 {
		s.logger.Debug("broadcast delivered", "event", env.Event, "origin", origin, "recipients", sent)
	}
	return sent
}

// SocketCount returns the number of connected sockets.
func (s *Server) SocketCount() int {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return len(s.sockets)
}

// FanoutMode reports the current adapter's mode: "local" or "broker".
func (s *Server) FanoutMode() string {
	return s.Adapter().Mode()
}

// BrokerConnected reports whether the adapter's backplane is connected.
// Always false for a LocalAdapter.
func (s *Server) BrokerConnected() bool {
	return s.Adapter().Connected()
}

// ServeHTTP upgrades the request to a websocket connection.
func (s *Server) ServeHTTP(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	closed := s.closed
	s.mu.RUnlock()
	if closed {
		http.Error(w, "socket server closed", http.StatusServiceUnavailable)
		return
	}

	// The upgrader writes its own error response.
	conn, err := s.upgrader.Upgrade(w, r, nil)
	if err != nil {
		s.logger.Warn("websocket upgrade failed", "error", err, "origin", r.Header.Get("Origin"))
		return
	}

	sock := newSocket(s, conn)
	if !s.register(sock) {
		conn.Close()
		return
	}

	go sock.writePump()
	go sock.readPump()
}

// checkOrigin allows requests without an Origin header (non-browser
// clients) and requests from the configured client origin.
func (s *Server) checkOrigin(r *http.Request) bool {
	origin := r.Header.Get("Origin")
	if origin == "" {
		return true
	}
	return sameOrigin(origin, s.opts.ClientURL)
}

// sameOrigin compares scheme and host, ignoring any path on allowed.
func sameOrigin(origin, allowed string) bool {
	o, err := url.Parse(origin)
	if err != nil {
		return false
	}
	a, err := url.Parse(allowed)
	if err != nil {
		return false
	}
	return strings.EqualFold(o.Scheme, a.Scheme) && strings.EqualFold(o.Host, a.Host)
}

func (s *Server) register(sock *Socket) bool {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return false
	}
	s.sockets[sock] = struct{}{}
	count := len(s.sockets)
	s.mu.Unlock()

	s.metrics.socketConnected()
	s.logger.Debug("socket connected", "socket_id", sock.ID(), "sockets", count)

	s.handlerMu.RLock()
	hooks := append([]func(*Socket){}, s.onConnect...)
	s.handlerMu.RUnlock()
	for _, fn := range hooks {
		fn(sock)
	}
	return true
}

// unregister removes sock. Only the caller that removes it from the map
// closes its send channel, so shutdown and readPump never double-close.
func (s *Server) unregister(sock *Socket) {
	s.mu.Lock()
	_, existed := s.sockets[sock]
	delete(s.sockets, sock)
	count := len(s.sockets)
	s.mu.Unlock()

	if !existed {
		return
	}
	sock.shutdown()
	s.metrics.socketDisconnected()
	s.logger.Debug("socket disconnected", "socket_id", sock.ID(), "sockets", count)

	s.handlerMu.RLock()
	hooks := append([]func(*Socket){}, s.onDisconnect...)
	s.handlerMu.RUnlock()
	for _, fn := range hooks {
		fn(sock)
	}
}

func (s *Server) handler(event string) (EventHandler, bool) {
	s.handlerMu.RLock()
	defer s.handlerMu.RUnlock()
	h, ok := s.handlers[event]
	return h, ok
}

// Close disconnects every socket and closes the adapter.
func (s *Server) Close() error {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return nil
	}
	s.closed = true
	sockets := make([]*Socket, 0, len(s.sockets))
	for sock := range s.sockets {
		sockets = append(sockets, sock)
	}
	s.mu.Unlock()

	for _, sock := range sockets {
		s.unregister(sock)
	}
	return s.Adapter().Close()
}
