package relays

import (
	"crypto/rand"
	"encoding/hex"

	"github.com/puzpuzpuz/xsync/v3"
	"nostrkit/engine/library"
	"nostrkit/protocol"
)

// Subscription ties a client-generated id to its filters and callback. The
// callback runs on its own goroutine; callers must not assume any particular
// delivery thread.
type Subscription struct {
	ID       string
	Filters  protocol.Filters
	Callback func(*protocol.Event)
	// OnEOSE, when set, fires once per relay that finishes historical backfill.
	OnEOSE func(relay string)
}

// Subscriptions maps subscription ids to their routing state.
type Subscriptions struct {
	m *xsync.MapOf[string, *Subscription]
}

func NewSubscriptions() *Subscriptions {
	return &Subscriptions{m: xsync.NewMapOf[string, *Subscription]()}
}

func (s *Subscriptions) Add(sub *Subscription) {
	s.m.Store(sub.ID, sub)
}

// Remove is idempotent; events routed after removal are dropped silently.
func (s *Subscriptions) Remove(id string) {
	s.m.Delete(id)
}

func (s *Subscriptions) Get(id string) (*Subscription, bool) {
	return s.m.Load(id)
}

// Each visits every active subscription, used to replay REQs on reconnect.
func (s *Subscriptions) Each(fn func(*Subscription)) {
	s.m.Range(func(_ string, sub *Subscription) bool {
		fn(sub)
		return true
	})
}

// Route re-checks the event against the stored filters before invoking the
// callback. A relay sending events the subscription never asked for is
// misbehaving; those are dropped, not errored.
func (s *Subscriptions) Route(subscriptionID string, e *protocol.Event) {
	sub, ok := s.m.Load(subscriptionID)
	if !ok {
		return
	}
	if !sub.Filters.Match(e) {
		library.LogCLI("dropping non-matching event "+e.ID+" for subscription "+subscriptionID, 3)
		return
	}
	go sub.Callback(e)
}

func (s *Subscriptions) eose(subscriptionID, relay string) {
	if sub, ok := s.m.Load(subscriptionID); ok && sub.OnEOSE != nil {
		go sub.OnEOSE(relay)
	}
}

// newSubscriptionID generates an id unique within this pool instance.
func newSubscriptionID() string {
	var b [8]byte
	rand.Read(b[:])
	return hex.EncodeToString(b[:])
}
