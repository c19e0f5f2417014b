package realtime

import (
	"context"
	"encoding/json"
	"errors"
	"sort"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"
)

// Socket is one connected websocket client.
type Socket struct {
	id     string
	server *Server
	conn   *websocket.Conn
	send   chan []byte

	ctx    context.Context
	cancel context.CancelFunc

	// sendMu guards send against close; closed is set once under it.
	sendMu sync.Mutex
	closed bool

	rooms map[string]struct{}
	mu    sync.RWMutex
}

func newSocket(s *Server, conn *websocket.Conn) *Socket {
	ctx, cancel := context.WithCancel(context.Background())
	sock := &Socket{
		id:     uuid.NewString(),
		server: s,
		conn:   conn,
		send:   make(chan []byte, sendBufferSize),
		ctx:    ctx,
		cancel: cancel,
		rooms:  make(map[string]struct{}),
	}
	// Every socket is addressable by its own ID.
	sock.rooms[sock.id] = struct{}{}
	return sock
}

// ID returns the socket's unique identifier.
func (c *Socket) ID() string {
	return c.id
}

// Context is cancelled when the socket disconnects.
func (c *Socket) Context() context.Context {
	return c.ctx
}

// Join adds the socket to room.
func (c *Socket) Join(room string) {
	c.mu.Lock()
	c.rooms[room] = struct{}{}
	c.mu.Unlock()
}

// Leave removes the socket from room. A socket cannot leave its own ID room.
func (c *Socket) Leave(room string) {
	if room == c.id {
		return
	}
	c.mu.Lock()
	delete(c.rooms, room)
	c.mu.Unlock()
}

// Rooms returns the socket's rooms, sorted.
func (c *Socket) Rooms() []string {
	c.mu.RLock()
	rooms := make([]string, 0, len(c.rooms))
	for r := range c.rooms {
		rooms = append(rooms, r)
	}
	c.mu.RUnlock()
	sort.Strings(rooms)
	return rooms
}

// InRoom reports whether the socket is in room.
func (c *Socket) InRoom(room string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()
	_, ok := c.rooms[room]
	return ok
}

// Emit sends an event to this socket only.
func (c *Socket) Emit(event string, data any) error {
	raw, err := marshalData(data)
	if err != nil {
		return err
	}
	c.sendMessage(Message{Type: TypeEvent, Event: event, Data: raw})
	return nil
}

// matches reports whether a broadcast scoped to rooms, minus except,
// reaches this socket.
func (c *Socket) matches(rooms, except []string) bool {
	c.mu.RLock()
	defer c.mu.RUnlock()

	for _, r := range except {
		if _, ok := c.rooms[r]; ok {
			return false
		}
	}
	if len(rooms) == 0 {
		return true
	}
	for _, r := range rooms {
		if _, ok := c.rooms[r]; ok {
			return true
		}
	}
	return false
}

// shutdown closes the send channel and cancels the socket context.
// It is safe to call more than once.
func (c *Socket) shutdown() {
	c.sendMu.Lock()
	defer c.sendMu.Unlock()
	if c.closed {
		return
	}
	c.closed = true
	c.cancel()
	close(c.send)
}

// trySend queues data without blocking. A full buffer drops the message;
// a socket that has shut down ignores it.
func (c *Socket) trySend(data []byte) {
	c.sendMu.Lock()
	if c.closed {
		c.sendMu.Unlock()
		return
	}
	var queued bool
	select {
	case c.send <- data:
		queued = true
	default:
	}
	c.sendMu.Unlock()

	if !queued {
		c.server.metrics.droppedMessage()
		c.server.logger.Warn("socket send buffer full, dropping message", "socket_id", c.id)
	}
}

func (c *Socket) sendMessage(msg Message) {
	data, err := json.Marshal(msg)
	if err != nil {
		return
	}
	c.trySend(data)
}

func (c *Socket) sendError(id, message string) {
	data, _ := json.Marshal(map[string]string{"message": message}) //nolint:errcheck // Plain map
	c.sendMessage(Message{Type: TypeError, ID: id, Data: data})
}

// readPump reads frames until the connection fails, then unregisters.
func (c *Socket) readPump() {
	defer func() {
		c.server.unregister(c)
		c.conn.Close()
	}()

	opts := c.server.opts
	if opts.MaxMessageSize > 0 {
		c.conn.SetReadLimit(opts.MaxMessageSize)
	}
	deadline := opts.PingInterval + opts.PongTimeout
	//nolint:errcheck // Best-effort deadline on connection setup
	c.conn.SetReadDeadline(time.Now().Add(deadline))
	c.conn.SetPongHandler(func(string) error {
		return c.conn.SetReadDeadline(time.Now().Add(deadline))
	})

	for {
		_, data, err := c.conn.ReadMessage()
		if err != nil {
			if websocket.IsUnexpectedCloseError(err, websocket.CloseGoingAway, websocket.CloseNormalClosure) {
				c.server.logger.Warn("socket read error", "socket_id", c.id, "error", err)
			}
			return
		}
		// Any client frame counts as liveness.
		//nolint:errcheck // Best-effort deadline reset
		c.conn.SetReadDeadline(time.Now().Add(deadline))
		c.handleMessage(data)
	}
}

// writePump drains the send channel and keeps the connection alive with pings.
func (c *Socket) writePump() {
	opts := c.server.opts
	ticker := time.NewTicker(opts.PingInterval)
	defer func() {
		ticker.Stop()
		c.conn.Close()
	}()

	for {
		select {
		case data, ok := <-c.send:
			if !ok {
				//nolint:errcheck // Best-effort close frame
				c.conn.WriteMessage(websocket.CloseMessage,
					websocket.FormatCloseMessage(websocket.CloseGoingAway, "server shutting down"))
				return
			}
			//nolint:errcheck // Best-effort deadline; write error caught below
			c.conn.SetWriteDeadline(time.Now().Add(opts.PongTimeout))
			if err := c.conn.WriteMessage(websocket.TextMessage, data); err != nil {
				return
			}
		case <-ticker.C:
			//nolint:errcheck // Best-effort deadline; ping error caught below
			c.conn.SetWriteDeadline(time.Now().Add(opts.PongTimeout))
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				return
			}
		}
	}
}

func (c *Socket) handleMessage(data []byte) {
	var msg Message
	if err := json.Unmarshal(data, &msg); err != nil {
		c.sendError("", "invalid JSON message")
		return
	}

	switch msg.Type {
	case TypePing:
		c.sendMessage(Message{Type: TypePong, ID: msg.ID})
	case TypeEvent:
		c.handleEvent(msg)
	default:
		c.sendError(msg.ID, "unknown message type: "+msg.Type)
	}
}

func (c *Socket) handleEvent(msg Message) {
	handler, ok := c.server.handler(msg.Event)
	if !ok {
		c.sendError(msg.ID, "unknown event: "+msg.Event)
		return
	}

	result, err := c.invoke(handler, msg.Data)
	if err != nil {
		c.server.logger.Debug("socket event failed", "socket_id", c.id, "event", msg.Event, "error", err)
		c.sendError(msg.ID, err.Error())
		return
	}
	if msg.ID == "" {
		return
	}

	raw, err := marshalData(result)
	if err != nil {
		c.sendError(msg.ID, "failed to encode ack")
		return
	}
	c.sendMessage(Message{Type: TypeAck, ID: msg.ID, Event: msg.Event, Data: raw})
}

// invoke runs handler, turning a panic into an error.
func (c *Socket) invoke(handler EventHandler, data json.RawMessage) (result any, err error) {
	defer func() {
		if r := recover(); r != nil {
			c.server.logger.Error("socket handler panic recovered", "socket_id", c.id, "panic", r)
			err = errors.New("internal error")
		}
	}()
	return handler(c.ctx, c, data)
}
