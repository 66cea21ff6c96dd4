// Package eventcache keeps a bounded, time-expiring view of recently seen
// events. It is derived, disposable state: losing it costs redundant relay
// queries, never correctness.
package eventcache

import (
	"sort"
	"time"

	"github.com/sasha-s/go-deadlock"
	"nostrkit/engine/library"
	"nostrkit/protocol"
)

type entry struct {
	event      *protocol.Event
	insertedAt time.Time
}

// Cache stores events by id with TTL and count-bound eviction.
type Cache struct {
	mu      deadlock.Mutex
	entries map[library.Sha256]entry
	ttl     time.Duration
	max     int
	running bool
	stop    chan struct{}
}

const evictionInterval = 30 * time.Second

// New builds a cache; ttl 0 means 10 minutes, max 0 means 4096 entries.
func New(ttl time.Duration, max int) *Cache {
	if ttl == 0 {
		ttl = 10 * time.Minute
	}
	if max == 0 {
		max = 4096
	}
	c := &Cache{
		entries: make(map[library.Sha256]entry),
		ttl:     ttl,
		max:     max,
	}
	c.Resume()
	return c
}

// Resume restarts the eviction loop after a Close. Idempotent; entries
// survive a Close/Resume cycle.
func (c *Cache) Resume() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.running {
		return
	}
	c.running = true
	c.stop = make(chan struct{})
	go c.evictLoop(c.stop)
}

// Insert stores the event. Idempotent on event id: a second copy of the same
// event does not reset its age.
func (c *Cache) Insert(e *protocol.Event) {
	if e == nil || e.ID == "" {
		return
	}
	c.mu.Lock()
	defer c.mu.Unlock()
	if _, exists := c.entries[e.ID]; exists {
		return
	}
	c.entries[e.ID] = entry{event: e, insertedAt: time.Now()}
}

// Get returns one cached event by id.
func (c *Cache) Get(id library.Sha256) (*protocol.Event, bool) {
	c.mu.Lock()
	defer c.mu.Unlock()
	en, ok := c.entries[id]
	if !ok {
		return nil, false
	}
	return en.event, true
}

// Query evaluates the filter against cached entries only; it never touches
// the network. Results come back newest first, honoring the filter's limit.
func (c *Cache) Query(f protocol.Filter) []*protocol.Event {
	c.mu.Lock()
	var out []*protocol.Event
	for _, en := range c.entries {
		if f.Matches(en.event) {
			out = append(out, en.event)
		}
	}
	c.mu.Unlock()
	sort.Slice(out, func(i, j int) bool {
		return out[i].CreatedAt > out[j].CreatedAt
	})
	if f.Limit > 0 && len(out) > f.Limit {
		out = out[:f.Limit]
	}
	return out
}

// Len returns the number of cached events.
func (c *Cache) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.entries)
}

// Close stops the eviction loop. Idempotent and reversible with Resume.
func (c *Cache) Close() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if !c.running {
		return
	}
	c.running = false
	close(c.stop)
}

func (c *Cache) evictLoop(stop chan struct{}) {
	ticker := time.NewTicker(evictionInterval)
	defer ticker.Stop()
	for {
		select {
		case <-ticker.C:
			c.evictOnce(time.Now())
		case <-stop:
			return
		}
	}
}

// evictOnce drops entries older than the TTL, then trims oldest-first down to
// the count bound.
func (c *Cache) evictOnce(now time.Time) {
	c.mu.Lock()
	defer c.mu.Unlock()
	for id, en := range c.entries {
		if now.Sub(en.insertedAt) > c.ttl {
			delete(c.entries, id)
		}
	}
	if len(c.entries) <= c.max {
		return
	}
	type aged struct {
		id library.Sha256
		at time.Time
	}
	order := make([]aged, 0, len(c.entries))
	for id, en := range c.entries {
		order = append(order, aged{id: id, at: en.insertedAt})
	}
	sort.Slice(order, func(i, j int) bool { return order[i].at.Before(order[j].at) })
	for _, a := range order[:len(c.entries)-c.max] {
		delete(c.entries, a.id)
	}
}
