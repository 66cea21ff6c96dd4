package relays

import (
	"context"
	"errors"
	"fmt"
	"net/url"
	"time"

	"github.com/gorilla/websocket"
	"github.com/sasha-s/go-deadlock"
	"nostrkit/engine/library"
	"nostrkit/protocol"
)

// ErrRelayUnavailable means the relay is not connected and its outbound
// buffer is full, so the send was dropped. Per-relay and non-fatal to the pool.
var ErrRelayUnavailable = errors.New("relay unavailable")

// ErrConnectionFailed means the retry budget is exhausted and the connection
// will not come back without an explicit Retry.
var ErrConnectionFailed = errors.New("relay connection failed")

// State of a single relay connection.
type State int

const (
	Disconnected State = iota
	Connecting
	Connected
	Closing
	Reconnecting
	Failed
)

func (s State) String() string {
	switch s {
	case Disconnected:
		return "disconnected"
	case Connecting:
		return "connecting"
	case Connected:
		return "connected"
	case Closing:
		return "closing"
	case Reconnecting:
		return "reconnecting"
	case Failed:
		return "failed"
	}
	return "unknown"
}

// Reconnection backoff: conservative defaults, documented in DESIGN.md since
// the protocol does not pin them down.
const (
	backoffInitial = time.Second
	backoffCap     = 30 * time.Second
)

func backoffDelay(attempt int) time.Duration {
	if attempt < 1 {
		attempt = 1
	}
	if attempt > 6 {
		return backoffCap
	}
	d := backoffInitial << (attempt - 1)
	if d > backoffCap {
		d = backoffCap
	}
	return d
}

// Options tune one connection. Zero values fall back to the defaults below.
type Options struct {
	ConnectTimeout time.Duration
	PingInterval   time.Duration
	IdleTimeout    time.Duration
	SendBuffer     int
	// MaxRetries is the reconnect budget before the connection goes Failed.
	// 0 retries forever with the capped backoff.
	MaxRetries int
}

func (o Options) withDefaults() Options {
	if o.ConnectTimeout == 0 {
		o.ConnectTimeout = 10 * time.Second
	}
	if o.PingInterval == 0 {
		o.PingInterval = time.Minute
	}
	if o.IdleTimeout == 0 {
		o.IdleTimeout = 2 * time.Minute
	}
	if o.SendBuffer == 0 {
		o.SendBuffer = 64
	}
	return o
}

// Inbound is one parsed frame tagged with the relay it arrived from.
type Inbound struct {
	Relay    string
	Envelope protocol.Envelope
}

// Connection manages one relay socket: dialing, the read/write pumps,
// reconnection with backoff and the bounded outbound queue. The pool is the
// only owner; nothing else opens or closes the underlying socket.
type Connection struct {
	URL  string
	opts Options

	mu       deadlock.Mutex
	state    State
	conn     *websocket.Conn
	queue    *library.Stack
	attempts int
	closed   bool

	writeCh chan []byte
	stop    chan struct{}

	inbound   chan<- Inbound
	onConnect func(*Connection)
}

func newConnection(rawURL string, opts Options, inbound chan<- Inbound, onConnect func(*Connection)) *Connection {
	opts = opts.withDefaults()
	return &Connection{
		URL:       normalizeURL(rawURL),
		opts:      opts,
		queue:     library.NewEventStack(opts.SendBuffer),
		writeCh:   make(chan []byte, opts.SendBuffer),
		stop:      make(chan struct{}),
		inbound:   inbound,
		onConnect: onConnect,
	}
}

func normalizeURL(raw string) string {
	u, err := url.Parse(raw)
	if err != nil {
		return raw
	}
	switch u.Scheme {
	case "ws", "wss":
	case "https":
		u.Scheme = "wss"
	default:
		u.Scheme = "ws"
	}
	return u.String()
}

// Connect dials the relay. On failure the connection keeps retrying in the
// background and the returned error is informational; the caller decides
// whether a single dead relay matters.
func (c *Connection) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.closed || c.state == Connecting || c.state == Connected || c.state == Reconnecting {
		c.mu.Unlock()
		return nil
	}
	c.state = Connecting
	c.mu.Unlock()

	if err := c.dial(ctx); err != nil {
		c.mu.Lock()
		c.state = Reconnecting
		c.mu.Unlock()
		go c.reconnectLoop()
		return fmt.Errorf("connect %s: %w", c.URL, err)
	}
	return nil
}

func (c *Connection) dial(ctx context.Context) error {
	dialer := websocket.Dialer{HandshakeTimeout: c.opts.ConnectTimeout}
	conn, _, err := dialer.DialContext(ctx, c.URL, nil)
	if err != nil {
		return err
	}
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		conn.Close()
		return nil
	}
	c.conn = conn
	c.state = Connected
	c.attempts = 0
	c.mu.Unlock()

	conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
	conn.SetPongHandler(func(string) error {
		conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		return nil
	})

	go c.readLoop(conn)
	go c.writeLoop(conn)
	c.flushQueue()
	if c.onConnect != nil {
		c.onConnect(c)
	}
	library.LogCLI("connected to relay "+c.URL, 3)
	return nil
}

// readLoop owns inbound traffic for one socket generation. Any transport
// error hands control to the reconnect loop.
func (c *Connection) readLoop(conn *websocket.Conn) {
	for {
		_, data, err := conn.ReadMessage()
		if err != nil {
			c.socketBroken(conn, err)
			return
		}
		conn.SetReadDeadline(time.Now().Add(c.opts.IdleTimeout))
		env, err := protocol.ParseEnvelope(data)
		if err != nil {
			library.LogCLI(fmt.Sprintf("dropping frame from %s: %s", c.URL, err), 3)
			continue
		}
		select {
		case c.inbound <- Inbound{Relay: c.URL, Envelope: env}:
		case <-c.stop:
			return
		}
	}
}

// writeLoop is the sole writer for one socket generation; pings ride the
// same goroutine so there is never a concurrent write.
func (c *Connection) writeLoop(conn *websocket.Conn) {
	ping := time.NewTicker(c.opts.PingInterval)
	defer ping.Stop()
	for {
		select {
		case frame := <-c.writeCh:
			if err := conn.WriteMessage(websocket.TextMessage, frame); err != nil {
				c.socketBroken(conn, err)
				return
			}
		case <-ping.C:
			if err := conn.WriteControl(websocket.PingMessage, nil, time.Now().Add(5*time.Second)); err != nil {
				c.socketBroken(conn, err)
				return
			}
		case <-c.stop:
			return
		}
	}
}

// socketBroken tears down one socket generation and starts the reconnect
// loop. Stale generations (already replaced) are ignored.
func (c *Connection) socketBroken(conn *websocket.Conn, err error) {
	c.mu.Lock()
	if c.closed || c.conn != conn {
		c.mu.Unlock()
		return
	}
	c.conn = nil
	c.state = Reconnecting
	c.mu.Unlock()
	conn.Close()
	library.LogCLI(fmt.Sprintf("connection to %s broke: %s", c.URL, err), 2)
	go c.reconnectLoop()
}

func (c *Connection) reconnectLoop() {
	for {
		c.mu.Lock()
		if c.closed || c.state != Reconnecting {
			c.mu.Unlock()
			return
		}
		c.attempts++
		attempt := c.attempts
		if c.opts.MaxRetries > 0 && attempt > c.opts.MaxRetries {
			c.state = Failed
			c.mu.Unlock()
			library.LogCLI(fmt.Sprintf("relay %s marked failed after %d attempts", c.URL, attempt-1), 2)
			return
		}
		c.mu.Unlock()

		select {
		case <-time.After(backoffDelay(attempt)):
		case <-c.stop:
			return
		}

		ctx, cancel := context.WithTimeout(context.Background(), c.opts.ConnectTimeout)
		err := c.dial(ctx)
		cancel()
		if err == nil {
			return
		}
		library.LogCLI(fmt.Sprintf("reconnect %s attempt %d: %s", c.URL, attempt, err), 3)
	}
}

// Retry is the explicit caller action that revives a Failed connection.
func (c *Connection) Retry(ctx context.Context) error {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return ErrConnectionFailed
	}
	if c.state != Failed {
		c.mu.Unlock()
		return nil
	}
	c.state = Disconnected
	c.attempts = 0
	c.mu.Unlock()
	return c.Connect(ctx)
}

// Publish sends the event if connected, otherwise queues it for the next
// reconnect. A full queue drops the event with ErrRelayUnavailable: publish
// is best-effort per relay, never guaranteed.
func (c *Connection) Publish(e *protocol.Event) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed || c.state == Failed {
		return ErrConnectionFailed
	}
	if c.state != Connected {
		if !c.queue.Push(e) {
			return ErrRelayUnavailable
		}
		return nil
	}
	frame, err := protocol.EventMessage(e)
	if err != nil {
		return err
	}
	select {
	case c.writeCh <- frame:
		return nil
	default:
		if !c.queue.Push(e) {
			return ErrRelayUnavailable
		}
		return nil
	}
}

func (c *Connection) flushQueue() {
	c.mu.Lock()
	defer c.mu.Unlock()
	for {
		e, ok := c.queue.Pop()
		if !ok {
			return
		}
		frame, err := protocol.EventMessage(e)
		if err != nil {
			continue
		}
		select {
		case c.writeCh <- frame:
		default:
			// write channel full again, put it back and give up for now
			c.queue.Push(e)
			return
		}
	}
}

// Request opens a subscription on this relay. Not-connected relays skip it;
// the pool replays active subscriptions on reconnect.
func (c *Connection) Request(subscriptionID string, filters protocol.Filters) {
	frame, err := protocol.ReqMessage(subscriptionID, filters)
	if err != nil {
		library.LogCLI(err.Error(), 1)
		return
	}
	c.sendFrame(frame)
}

// CloseSubscription closes a subscription on this relay.
func (c *Connection) CloseSubscription(subscriptionID string) {
	frame, err := protocol.CloseMessage(subscriptionID)
	if err != nil {
		library.LogCLI(err.Error(), 1)
		return
	}
	c.sendFrame(frame)
}

func (c *Connection) sendFrame(frame []byte) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.state != Connected {
		return
	}
	select {
	case c.writeCh <- frame:
	default:
		library.LogCLI("dropping control frame for "+c.URL+", write buffer full", 2)
	}
}

// Close is idempotent and safe to call concurrently with in-flight delivery.
func (c *Connection) Close() {
	c.mu.Lock()
	if c.closed {
		c.mu.Unlock()
		return
	}
	c.closed = true
	c.state = Closing
	conn := c.conn
	c.conn = nil
	c.state = Disconnected
	c.mu.Unlock()
	close(c.stop)
	if conn != nil {
		conn.WriteControl(websocket.CloseMessage,
			websocket.FormatCloseMessage(websocket.CloseNormalClosure, ""),
			time.Now().Add(time.Second))
		conn.Close()
	}
}

// State returns the connection's current lifecycle state.
func (c *Connection) State() State {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.state
}
