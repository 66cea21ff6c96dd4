package relays

import (
	"context"
	"errors"
	"fmt"
	"strings"
	"time"

	"github.com/puzpuzpuz/xsync/v3"
	"github.com/sasha-s/go-deadlock"
	"golang.org/x/exp/maps"
	"nostrkit/engine/library"
	"nostrkit/messaging/eventcache"
	"nostrkit/protocol"
)

// ErrNoRelays is surfaced when an operation has no surviving relay at all.
var ErrNoRelays = errors.New("no connected relays")

// Mode selects the pool's scheduling policy. Background keeps a reduced
// connection count for battery/bandwidth constrained hosts.
type Mode int

const (
	Foreground Mode = iota
	Background
)

const backgroundMaxConns = 2

// PoolOptions tune the pool and the connections it owns.
type PoolOptions struct {
	Conn Options
	// MaxRelays bounds how many relay connections the pool will hold.
	MaxRelays      int
	PublishTimeout time.Duration
	VerifyWorkers  int
}

func (o PoolOptions) withDefaults() PoolOptions {
	if o.MaxRelays == 0 {
		o.MaxRelays = 10
	}
	if o.PublishTimeout == 0 {
		o.PublishTimeout = 10 * time.Second
	}
	if o.VerifyWorkers == 0 {
		o.VerifyWorkers = 4
	}
	return o
}

type routed struct {
	subscriptionID string
	relay          string
	event          *protocol.Event
}

// Pool owns every relay connection. Outbound events fan out to all connected
// relays; inbound events are verified on a bounded worker pool and then
// funnel through a single goroutine that owns deduplication, caching and
// routing, so two relays delivering the same event at once never race.
type Pool struct {
	opts  PoolOptions
	cache *eventcache.Cache // nil when caching is disabled

	mu      deadlock.Mutex
	urls    []string
	conns   map[string]*Connection
	mode    Mode
	running bool
	stop    chan struct{}

	subs      *Subscriptions
	inbound   chan Inbound
	verified  chan routed
	seen      *xsync.MapOf[string, struct{}]
	seenPrev  *xsync.MapOf[string, struct{}]
	acks      *xsync.MapOf[string, chan bool]
	verifySem chan struct{}
}

// seenMax bounds the dedup set; past it the set rotates generationally, so a
// long-lived subscription cannot grow dedup state without limit.
const seenMax = 8192

// NewPool prepares a pool over the given relay URLs. Cache may be nil.
func NewPool(urls []string, cache *eventcache.Cache, opts PoolOptions) *Pool {
	opts = opts.withDefaults()
	if len(urls) > opts.MaxRelays {
		urls = urls[:opts.MaxRelays]
	}
	return &Pool{
		opts:      opts,
		cache:     cache,
		urls:      urls,
		conns:     make(map[string]*Connection),
		subs:      NewSubscriptions(),
		inbound:   make(chan Inbound, 256),
		verified:  make(chan routed, 256),
		seen:      xsync.NewMapOf[string, struct{}](),
		seenPrev:  xsync.NewMapOf[string, struct{}](),
		acks:      xsync.NewMapOf[string, chan bool](),
		verifySem: make(chan struct{}, opts.VerifyWorkers),
	}
}

// Connect opens a connection to every configured relay. Individual dial
// failures are non-fatal: those connections keep retrying with backoff.
// Reopening a disconnected pool restarts its funnel goroutine.
func (p *Pool) Connect(ctx context.Context) error {
	if len(p.urls) == 0 {
		return ErrNoRelays
	}
	p.mu.Lock()
	if !p.running {
		p.running = true
		p.stop = make(chan struct{})
		go p.run(p.stop)
	}
	p.mu.Unlock()
	for _, u := range p.activeURLs() {
		if err := p.ensureConn(ctx, u); err != nil {
			library.LogCLI(err.Error(), 2)
		}
	}
	return nil
}

func (p *Pool) activeURLs() []string {
	p.mu.Lock()
	defer p.mu.Unlock()
	if p.mode == Background && len(p.urls) > backgroundMaxConns {
		return p.urls[:backgroundMaxConns]
	}
	return p.urls
}

func (p *Pool) ensureConn(ctx context.Context, rawURL string) error {
	p.mu.Lock()
	key := normalizeURL(rawURL)
	if _, exists := p.conns[key]; exists {
		p.mu.Unlock()
		return nil
	}
	conn := newConnection(rawURL, p.opts.Conn, p.inbound, p.replaySubscriptions)
	p.conns[key] = conn
	p.mu.Unlock()
	return conn.Connect(ctx)
}

// replaySubscriptions reopens every active subscription on a relay that just
// (re)connected, so it backfills what it missed.
func (p *Pool) replaySubscriptions(c *Connection) {
	p.subs.Each(func(sub *Subscription) {
		c.Request(sub.ID, sub.Filters)
	})
}

// Publish fans the event to every currently connected relay and resolves as
// soon as one acknowledges it, or when the timeout passes. Any subset of
// relays carrying the event satisfies protocol semantics, so it never waits
// for all of them.
func (p *Pool) Publish(ctx context.Context, e *protocol.Event) error {
	conns := p.connectedConns()
	if len(conns) == 0 {
		return ErrNoRelays
	}
	ack := make(chan bool, len(conns))
	p.acks.Store(e.ID, ack)
	defer p.acks.Delete(e.ID)

	for _, c := range conns {
		go func(c *Connection) {
			if err := c.Publish(e); err != nil {
				library.LogCLI(fmt.Sprintf("publish to %s: %s", c.URL, err), 2)
			}
		}(c)
	}

	timer := time.NewTimer(p.opts.PublishTimeout)
	defer timer.Stop()
	rejected := 0
	for {
		select {
		case ok := <-ack:
			if ok {
				return nil
			}
			rejected++
			if rejected == len(conns) {
				return fmt.Errorf("event %s rejected by every relay: %w", e.ID, ErrRelayUnavailable)
			}
		case <-ctx.Done():
			return fmt.Errorf("publish %s: %w", e.ID, ctx.Err())
		case <-timer.C:
			return fmt.Errorf("publish %s: no acknowledgement: %w", e.ID, ErrRelayUnavailable)
		}
	}
}

// Subscribe opens the same logical subscription on every connected relay and
// returns its pool-unique id.
func (p *Pool) Subscribe(filters protocol.Filters, onEvent func(*protocol.Event)) (string, error) {
	return p.SubscribeWithEOSE(filters, onEvent, nil)
}

// SubscribeWithEOSE also reports end-of-stored-events per relay.
func (p *Pool) SubscribeWithEOSE(filters protocol.Filters, onEvent func(*protocol.Event), onEOSE func(relay string)) (string, error) {
	if onEvent == nil {
		return "", errors.New("subscription needs a callback")
	}
	sub := &Subscription{
		ID:       newSubscriptionID(),
		Filters:  filters,
		Callback: onEvent,
		OnEOSE:   onEOSE,
	}
	p.subs.Add(sub)
	for _, c := range p.connectedConns() {
		c.Request(sub.ID, sub.Filters)
	}
	return sub.ID, nil
}

// Unsubscribe closes the subscription on all relays and discards its routing
// and dedup state. Idempotent.
func (p *Pool) Unsubscribe(subscriptionID string) {
	p.subs.Remove(subscriptionID)
	for _, c := range p.connectedConns() {
		c.CloseSubscription(subscriptionID)
	}
	prefix := subscriptionID + ":"
	p.mu.Lock()
	sets := []*xsync.MapOf[string, struct{}]{p.seen, p.seenPrev}
	p.mu.Unlock()
	for _, set := range sets {
		set.Range(func(key string, _ struct{}) bool {
			if strings.HasPrefix(key, prefix) {
				set.Delete(key)
			}
			return true
		})
	}
}

// SetMode switches the scheduling policy. Background closes surplus
// connections; Foreground restores the full set.
func (p *Pool) SetMode(ctx context.Context, mode Mode) {
	p.mu.Lock()
	if p.mode == mode {
		p.mu.Unlock()
		return
	}
	p.mode = mode
	var surplus []*Connection
	if mode == Background && len(p.urls) > backgroundMaxConns {
		keep := make(map[string]bool, backgroundMaxConns)
		for _, u := range p.urls[:backgroundMaxConns] {
			keep[normalizeURL(u)] = true
		}
		for u, c := range p.conns {
			if !keep[u] {
				surplus = append(surplus, c)
				delete(p.conns, u)
			}
		}
	}
	p.mu.Unlock()

	for _, c := range surplus {
		c.Close()
	}
	if mode == Foreground {
		for _, u := range p.activeURLs() {
			if err := p.ensureConn(ctx, u); err != nil {
				library.LogCLI(err.Error(), 2)
			}
		}
	}
	library.LogCLI(fmt.Sprintf("pool operating mode is now %d", mode), 3)
}

// Disconnect closes every connection and stops the funnel. Idempotent, safe
// to call while deliveries are in flight, and reversible with Connect.
func (p *Pool) Disconnect() {
	p.mu.Lock()
	if p.running {
		p.running = false
		close(p.stop)
	}
	conns := maps.Values(p.conns)
	p.conns = make(map[string]*Connection)
	p.mu.Unlock()
	for _, c := range conns {
		c.Close()
	}
}

// States reports the lifecycle state per relay URL.
func (p *Pool) States() map[string]State {
	p.mu.Lock()
	defer p.mu.Unlock()
	states := make(map[string]State, len(p.conns))
	for _, u := range maps.Keys(p.conns) {
		states[u] = p.conns[u].State()
	}
	return states
}

// Conn exposes one connection by URL, mainly so callers can Retry a Failed one.
func (p *Pool) Conn(rawURL string) (*Connection, bool) {
	p.mu.Lock()
	defer p.mu.Unlock()
	c, ok := p.conns[normalizeURL(rawURL)]
	return c, ok
}

func (p *Pool) connectedConns() []*Connection {
	p.mu.Lock()
	defer p.mu.Unlock()
	out := make([]*Connection, 0, len(p.conns))
	for _, c := range p.conns {
		if c.State() == Connected {
			out = append(out, c)
		}
	}
	return out
}

// run is the pool's funnel goroutine: it dispatches raw inbound frames and is
// the single writer for dedup, cache inserts and subscription routing. One
// runs per Connect/Disconnect cycle; stop is captured so a restarted pool
// never revives a stale generation.
func (p *Pool) run(stop chan struct{}) {
	for {
		select {
		case in := <-p.inbound:
			p.dispatch(in, stop)
		case r := <-p.verified:
			p.deliver(r)
		case <-stop:
			return
		}
	}
}

func (p *Pool) dispatch(in Inbound, stop chan struct{}) {
	switch env := in.Envelope.(type) {
	case protocol.EventEnvelope:
		// signature checks are CPU-bound, run them on the bounded worker pool
		go func() {
			p.verifySem <- struct{}{}
			defer func() { <-p.verifySem }()
			if !env.Event.Verify() {
				library.LogCLI(fmt.Sprintf("dropping event %s from %s: verification failed", env.Event.ID, in.Relay), 3)
				return
			}
			select {
			case p.verified <- routed{subscriptionID: env.SubscriptionID, relay: in.Relay, event: env.Event}:
			case <-stop:
			}
		}()
	case protocol.EOSEEnvelope:
		p.subs.eose(env.SubscriptionID, in.Relay)
	case protocol.OKEnvelope:
		if ack, ok := p.acks.Load(env.EventID); ok {
			select {
			case ack <- env.OK:
			default:
			}
		}
		if !env.OK {
			library.LogCLI(fmt.Sprintf("relay %s refused event %s: %s", in.Relay, env.EventID, env.Reason), 2)
		}
	case protocol.NoticeEnvelope:
		library.LogCLI(fmt.Sprintf("notice from %s: %s", in.Relay, env.Message), 4)
	}
}

// deliver runs on the funnel goroutine only. An event commonly arrives from
// several relays; the first copy wins, later ones are dropped here. The dedup
// set rotates in two generations once it reaches seenMax, trading the rare
// re-delivery of a very old event for bounded memory.
func (p *Pool) deliver(r routed) {
	sane := library.ValidateSaneExecutionTime()
	defer sane()
	key := r.subscriptionID + ":" + r.event.ID
	p.mu.Lock()
	if _, dup := p.seenPrev.Load(key); dup {
		p.mu.Unlock()
		return
	}
	if _, dup := p.seen.LoadOrStore(key, struct{}{}); dup {
		p.mu.Unlock()
		return
	}
	if p.seen.Size() >= seenMax {
		p.seenPrev = p.seen
		p.seen = xsync.NewMapOf[string, struct{}]()
	}
	p.mu.Unlock()
	if p.cache != nil {
		p.cache.Insert(r.event)
	}
	p.subs.Route(r.subscriptionID, r.event)
}
