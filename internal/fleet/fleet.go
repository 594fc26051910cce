// Package fleet implements the WebSocket connection fleet: a registry
// of outbound and inbound persistent framed connections, each driven
// by a reader and a writer goroutine, grounded on the teacher's
// consumer.go goroutine-per-queue pattern (one task reads, state is
// owned by that task, others interact only through channels).
package fleet

import (
	"context"
	"log/slog"
	"sync"
	"time"

	"github.com/google/uuid"
	"github.com/gorilla/websocket"

	"github.com/deliveryhero/asya/olympus/internal/olympuserr"
)

// State is a connection's place in its lifecycle.
type State string

const (
	Connecting State = "connecting"
	Open       State = "open"
	Closing    State = "closing"
	Closed     State = "closed"
	Failed     State = "failed"
)

// Frame is a single inbound or outbound message.
type Frame struct {
	Binary bool
	Data   []byte
}

// MessageHandler is invoked once per inbound frame.
type MessageHandler func(connectionID string, frame Frame)

// Config tunes fleet-wide connection behavior.
type Config struct {
	OutboundQueueCapacity int
	PingInterval          time.Duration
	PingTimeout           time.Duration
	CloseTimeout          time.Duration
}

// DefaultConfig mirrors spec §4.9's illustrative defaults.
func DefaultConfig() Config {
	return Config{
		OutboundQueueCapacity: 256,
		PingInterval:          30 * time.Second,
		PingTimeout:           10 * time.Second,
		CloseTimeout:          5 * time.Second,
	}
}

// ConnectionSnapshot is the read model returned by GetConnection.
type ConnectionSnapshot struct {
	ID        string
	Domain    string
	URL       string
	State     State
	ConnectedAt time.Time
	LastPing  time.Time
}

type connection struct {
	id     string
	domain string
	url    string
	conn   *websocket.Conn

	mu    sync.RWMutex
	state State

	outbound chan Frame
	closeCh  chan struct{}
	closeOnce sync.Once

	connectedAt time.Time
	lastPing    time.Time
}

func (c *connection) snapshot() ConnectionSnapshot {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return ConnectionSnapshot{
		ID: c.id, Domain: c.domain, URL: c.url, State: c.state,
		ConnectedAt: c.connectedAt, LastPing: c.lastPing,
	}
}

func (c *connection) setState(s State) {
	c.mu.Lock()
	c.state = s
	c.mu.Unlock()
}

func (c *connection) getState() State {
	c.mu.RLock()
	defer c.mu.RUnlock()
	return c.state
}

// Dialer abstracts websocket.DefaultDialer so tests can substitute a
// fake transport without a live network connection.
type Dialer interface {
	DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error)
}

type gorillaDialer struct{}

func (gorillaDialer) DialContext(ctx context.Context, url string, header map[string][]string) (*websocket.Conn, error) {
	conn, _, err := websocket.DefaultDialer.DialContext(ctx, url, header)
	return conn, err
}

// Fleet is the connection registry.
type Fleet struct {
	cfg     Config
	dialer  Dialer
	log     *slog.Logger
	onMsg   MessageHandler

	mu    sync.RWMutex
	conns map[string]*connection
}

// New constructs a Fleet. A nil dialer uses the real gorilla/websocket
// dialer.
func New(cfg Config, dialer Dialer, log *slog.Logger) *Fleet {
	if dialer == nil {
		dialer = gorillaDialer{}
	}
	if log == nil {
		log = slog.Default()
	}
	return &Fleet{cfg: cfg, dialer: dialer, log: log.With("component", "fleet"), conns: make(map[string]*connection)}
}

// OnMessage registers the single inbound-frame callback.
func (f *Fleet) OnMessage(handler MessageHandler) {
	f.mu.Lock()
	defer f.mu.Unlock()
	f.onMsg = handler
}

// Connect dials url, registers a connection under domain, and returns
// once the handshake succeeds.
func (f *Fleet) Connect(ctx context.Context, url, domain string) (string, error) {
	id := uuid.NewString()
	c := &connection{
		id: id, domain: domain, url: url,
		state:    Connecting,
		outbound: make(chan Frame, f.cfg.OutboundQueueCapacity),
		closeCh:  make(chan struct{}),
	}

	f.mu.Lock()
	f.conns[id] = c
	f.mu.Unlock()

	conn, err := f.dialer.DialContext(ctx, url, nil)
	if err != nil {
		c.setState(Failed)
		return "", olympuserr.Wrap(olympuserr.ConnectionClose, "fleet.Connect", "dial failed", err)
	}

	c.conn = conn
	c.connectedAt = time.Now()
	c.setState(Open)

	// A missing pong within ping_timeout must fail the connection (§4.9):
	// seed a read deadline now and push it out on every pong, so a
	// silently-dead peer's next ReadMessage call in readerLoop returns a
	// deadline-exceeded error instead of blocking forever.
	c.conn.SetReadDeadline(time.Now().Add(f.cfg.PingTimeout))
	c.conn.SetPongHandler(func(string) error {
		c.mu.Lock()
		c.lastPing = time.Now()
		c.mu.Unlock()
		return c.conn.SetReadDeadline(time.Now().Add(f.cfg.PingTimeout))
	})

	go f.readerLoop(c)
	go f.writerLoop(c)
	return id, nil
}

// Disconnect initiates Closing; Closed follows after CloseTimeout.
func (f *Fleet) Disconnect(id string) error {
	c, ok := f.get(id)
	if !ok {
		return olympuserr.New(olympuserr.NotFound, "fleet.Disconnect", id)
	}
	c.setState(Closing)
	c.closeOnce.Do(func() { close(c.closeCh) })
	time.AfterFunc(f.cfg.CloseTimeout, func() {
		c.setState(Closed)
	})
	return nil
}

// SendText enqueues a text frame on id's outbound queue.
func (f *Fleet) SendText(id, s string) error {
	return f.send(id, Frame{Binary: false, Data: []byte(s)})
}

// SendBinary enqueues a binary frame on id's outbound queue.
func (f *Fleet) SendBinary(id string, data []byte) error {
	return f.send(id, Frame{Binary: true, Data: data})
}

func (f *Fleet) send(id string, frame Frame) error {
	c, ok := f.get(id)
	if !ok {
		return olympuserr.New(olympuserr.NotFound, "fleet.send", id)
	}
	if c.getState() != Open {
		return olympuserr.New(olympuserr.ConnectionClose, "fleet.send", id)
	}
	select {
	case c.outbound <- frame:
		return nil
	default:
		return olympuserr.New(olympuserr.Backpressure, "fleet.send", id)
	}
}

// BroadcastResult is one connection's outcome in a broadcast.
type BroadcastResult struct {
	ConnectionID string
	Err          error
}

// BroadcastToDomain fans out msg to every Open connection in domain.
func (f *Fleet) BroadcastToDomain(domain string, frame Frame) []BroadcastResult {
	f.mu.RLock()
	var targets []*connection
	for _, c := range f.conns {
		if c.domain == domain {
			targets = append(targets, c)
		}
	}
	f.mu.RUnlock()
	return f.fanOut(targets, frame)
}

// BroadcastAll fans out msg to every Open connection.
func (f *Fleet) BroadcastAll(frame Frame) []BroadcastResult {
	f.mu.RLock()
	targets := make([]*connection, 0, len(f.conns))
	for _, c := range f.conns {
		targets = append(targets, c)
	}
	f.mu.RUnlock()
	return f.fanOut(targets, frame)
}

func (f *Fleet) fanOut(targets []*connection, frame Frame) []BroadcastResult {
	results := make([]BroadcastResult, 0, len(targets))
	for _, c := range targets {
		err := f.send(c.id, frame)
		results = append(results, BroadcastResult{ConnectionID: c.id, Err: err})
	}
	return results
}

// GetConnection returns a point-in-time snapshot for id.
func (f *Fleet) GetConnection(id string) (ConnectionSnapshot, bool) {
	c, ok := f.get(id)
	if !ok {
		return ConnectionSnapshot{}, false
	}
	return c.snapshot(), true
}

// GetAllConnections returns a snapshot of every registered connection.
func (f *Fleet) GetAllConnections() []ConnectionSnapshot {
	f.mu.RLock()
	defer f.mu.RUnlock()
	out := make([]ConnectionSnapshot, 0, len(f.conns))
	for _, c := range f.conns {
		out = append(out, c.snapshot())
	}
	return out
}

func (f *Fleet) get(id string) (*connection, bool) {
	f.mu.RLock()
	defer f.mu.RUnlock()
	c, ok := f.conns[id]
	return c, ok
}

func (f *Fleet) handler() MessageHandler {
	f.mu.RLock()
	defer f.mu.RUnlock()
	return f.onMsg
}

// readerLoop is the connection's single reader task.
func (f *Fleet) readerLoop(c *connection) {
	for {
		msgType, data, err := c.conn.ReadMessage()
		if err != nil {
			c.setState(Failed)
			return
		}
		if handler := f.handler(); handler != nil {
			handler(c.id, Frame{Binary: msgType == websocket.BinaryMessage, Data: data})
		}
		select {
		case <-c.closeCh:
			return
		default:
		}
	}
}

// writerLoop is the connection's single writer task, consuming the
// bounded outbound queue and sending ping frames at ping_interval.
func (f *Fleet) writerLoop(c *connection) {
	ticker := time.NewTicker(f.cfg.PingInterval)
	defer ticker.Stop()

	for {
		select {
		case <-c.closeCh:
			_ = c.conn.WriteMessage(websocket.CloseMessage, websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""))
			_ = c.conn.Close()
			return
		case frame := <-c.outbound:
			msgType := websocket.TextMessage
			if frame.Binary {
				msgType = websocket.BinaryMessage
			}
			if err := c.conn.WriteMessage(msgType, frame.Data); err != nil {
				c.setState(Failed)
				return
			}
		case <-ticker.C:
			if err := c.conn.WriteMessage(websocket.PingMessage, nil); err != nil {
				c.setState(Failed)
				return
			}
			c.mu.Lock()
			c.lastPing = time.Now()
			c.mu.Unlock()
		}
	}
}
