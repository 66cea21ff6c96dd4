// Package client is the facade the host application talks to: identity,
// relay pool, subscriptions, cache, contact list and direct messages behind
// one API surface.
package client

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"sync"

	"github.com/sasha-s/go-deadlock"
	"nostrkit/contacts"
	"nostrkit/encryption"
	"nostrkit/engine/library"
	"nostrkit/identity"
	"nostrkit/messaging/eventcache"
	"nostrkit/messaging/relays"
	"nostrkit/protocol"
)

// ErrFeatureDisabled is returned by any method whose capability switch is off.
var ErrFeatureDisabled = errors.New("feature disabled by configuration")

// ErrNoIdentity is returned when a signing operation runs before an identity
// was generated or imported.
var ErrNoIdentity = errors.New("no identity loaded")

// Client composes the protocol client. Construct with New, then either call
// Connect or let AutoConnect do it on first use.
type Client struct {
	cfg   Config
	cache *eventcache.Cache
	pool  *relays.Pool

	mu        deadlock.Mutex
	keys      *identity.Keypair
	connected bool
	sleepOnce sync.Once
}

func New(cfg Config) *Client {
	var cache *eventcache.Cache
	if cfg.CachingEnabled {
		cache = eventcache.New(cfg.CacheTTL, cfg.CacheMaxEntries)
	}
	pool := relays.NewPool(cfg.Relays, cache, relays.PoolOptions{
		Conn: relays.Options{
			ConnectTimeout: cfg.ConnectTimeout,
			SendBuffer:     cfg.SendBuffer,
			MaxRetries:     cfg.MaxRetries,
		},
		MaxRelays:      cfg.MaxRelays,
		PublishTimeout: cfg.PublishTimeout,
	})
	return &Client{cfg: cfg, cache: cache, pool: pool}
}

// GenerateIdentity creates a fresh keypair and returns its public key.
func (c *Client) GenerateIdentity() (library.Account, error) {
	keys, err := identity.Generate()
	if err != nil {
		return "", err
	}
	c.setKeys(keys)
	return keys.PublicKey(), nil
}

// ImportIdentity loads a keypair from a hex secret key.
func (c *Client) ImportIdentity(privateKeyHex string) (library.Account, error) {
	keys, err := identity.Import(privateKeyHex)
	if err != nil {
		return "", err
	}
	c.setKeys(keys)
	return keys.PublicKey(), nil
}

func (c *Client) setKeys(keys *identity.Keypair) {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys != nil {
		c.keys.Zeroize()
		encryption.PurgeKeys()
	}
	c.keys = keys
}

// PublicKey returns the current identity's public key, or "" when none is
// loaded.
func (c *Client) PublicKey() library.Account {
	c.mu.Lock()
	defer c.mu.Unlock()
	return c.keys.PublicKey()
}

// Logout wipes the private key material, including conversation keys already
// derived from it.
func (c *Client) Logout() {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.keys != nil {
		c.keys.Zeroize()
		c.keys = nil
	}
	encryption.PurgeKeys()
}

// Connect opens the relay pool. Individual unreachable relays stay in their
// reconnect loop and never fail the call. Safe to call again after Disconnect.
func (c *Client) Connect(ctx context.Context) error {
	c.mu.Lock()
	if c.connected {
		c.mu.Unlock()
		return nil
	}
	c.connected = true
	c.mu.Unlock()
	c.sleepOnce.Do(func() { startSleepWatcher(c) })
	if c.cache != nil {
		c.cache.Resume()
	}
	return c.pool.Connect(ctx)
}

// Disconnect shuts the pool and cache down. Idempotent.
func (c *Client) Disconnect() {
	c.mu.Lock()
	wasConnected := c.connected
	c.connected = false
	c.mu.Unlock()
	if wasConnected {
		c.pool.Disconnect()
	}
	if c.cache != nil {
		c.cache.Close()
	}
}

func (c *Client) ensureConnected(ctx context.Context) error {
	c.mu.Lock()
	connected := c.connected
	autoConnect := c.cfg.AutoConnect
	c.mu.Unlock()
	if connected {
		return nil
	}
	if !autoConnect {
		return relays.ErrNoRelays
	}
	return c.Connect(ctx)
}

// sign stamps pubkey, id and signature onto an unsigned event.
func (c *Client) sign(e protocol.Event) (*protocol.Event, error) {
	c.mu.Lock()
	keys := c.keys
	c.mu.Unlock()
	if keys == nil || keys.PublicKey() == "" {
		return nil, ErrNoIdentity
	}
	e.PubKey = keys.PublicKey()
	e.ID = e.GetID()
	sig, err := keys.Sign(e.ID)
	if err != nil {
		return nil, err
	}
	e.Sig = sig
	return &e, nil
}

func (c *Client) signAndPublish(ctx context.Context, unsigned protocol.Event) (*protocol.Event, error) {
	e, err := c.sign(unsigned)
	if err != nil {
		return nil, err
	}
	if err := c.ensureConnected(ctx); err != nil {
		return nil, err
	}
	if err := c.pool.Publish(ctx, e); err != nil {
		return nil, err
	}
	return e, nil
}

// PublishNote signs and publishes a kind-1 text note.
func (c *Client) PublishNote(ctx context.Context, content string) (*protocol.Event, error) {
	if !c.cfg.PublishEnabled {
		return nil, ErrFeatureDisabled
	}
	return c.signAndPublish(ctx, protocol.BuildUnsigned(protocol.KindTextNote, nil, content, 0))
}

// Profile is the kind-0 metadata content.
type Profile struct {
	Name    string `json:"name,omitempty"`
	About   string `json:"about,omitempty"`
	Picture string `json:"picture,omitempty"`
}

// PublishProfile signs and publishes the kind-0 profile event.
func (c *Client) PublishProfile(ctx context.Context, p Profile) (*protocol.Event, error) {
	if !c.cfg.PublishEnabled {
		return nil, ErrFeatureDisabled
	}
	content, err := json.Marshal(p)
	if err != nil {
		return nil, err
	}
	return c.signAndPublish(ctx, protocol.BuildUnsigned(protocol.KindProfile, nil, string(content), 0))
}

// PublishContactList replaces the published contact list with the given one.
func (c *Client) PublishContactList(ctx context.Context, list []contacts.Contact) (*protocol.Event, error) {
	if !c.cfg.ContactListEnabled {
		return nil, ErrFeatureDisabled
	}
	return c.signAndPublish(ctx, contacts.BuildListEvent(list))
}

// DeleteEvent publishes a kind-5 deletion request for an event this identity
// authored. Relays are free to ignore it; deletion is a request, not a
// guarantee.
func (c *Client) DeleteEvent(ctx context.Context, eventID library.Sha256, reason string) (*protocol.Event, error) {
	if !c.cfg.PublishEnabled {
		return nil, ErrFeatureDisabled
	}
	tags := protocol.Tags{protocol.Tag{"e", eventID}}
	return c.signAndPublish(ctx, protocol.BuildUnsigned(protocol.KindDeletion, tags, reason, 0))
}

// SendDirectMessage encrypts the text for the recipient and publishes it as
// a kind-4 event tagged with their pubkey.
func (c *Client) SendDirectMessage(ctx context.Context, recipient library.Account, text string) (*protocol.Event, error) {
	if !c.cfg.DirectMessagesEnabled {
		return nil, ErrFeatureDisabled
	}
	c.mu.Lock()
	keys := c.keys
	c.mu.Unlock()
	if keys == nil {
		return nil, ErrNoIdentity
	}
	payload, err := encryption.Encrypt(keys, recipient, text)
	if err != nil {
		return nil, err
	}
	tags := protocol.Tags{protocol.Tag{"p", recipient}}
	return c.signAndPublish(ctx, protocol.BuildUnsigned(protocol.KindEncryptedDM, tags, payload, 0))
}

// DecryptDirectMessage decrypts a kind-4 event addressed to or sent by the
// current identity.
func (c *Client) DecryptDirectMessage(e *protocol.Event) (string, error) {
	if !c.cfg.DirectMessagesEnabled {
		return "", ErrFeatureDisabled
	}
	c.mu.Lock()
	keys := c.keys
	c.mu.Unlock()
	if keys == nil {
		return "", ErrNoIdentity
	}
	if e == nil || e.Kind != protocol.KindEncryptedDM {
		return "", encryption.ErrDecryption
	}
	peer := e.PubKey
	if peer == keys.PublicKey() {
		// our own outbound copy, the peer is in the p tag
		tag, ok := e.Tags.First("p")
		if !ok {
			return "", encryption.ErrDecryption
		}
		peer = tag.Value()
	}
	return encryption.Decrypt(keys, peer, e.Content)
}

// Subscribe opens a filter-based subscription across the pool; the callback
// runs asynchronously for each matching, verified, deduplicated event.
func (c *Client) Subscribe(ctx context.Context, filters protocol.Filters, onEvent func(*protocol.Event)) (string, error) {
	if !c.cfg.SubscribeEnabled {
		return "", ErrFeatureDisabled
	}
	if err := c.ensureConnected(ctx); err != nil {
		return "", err
	}
	return c.pool.Subscribe(filters, onEvent)
}

// Unsubscribe tears a subscription down everywhere. Idempotent.
func (c *Client) Unsubscribe(subscriptionID string) {
	c.pool.Unsubscribe(subscriptionID)
}

// QueryCache evaluates a filter against the local cache only.
func (c *Client) QueryCache(f protocol.Filter) ([]*protocol.Event, error) {
	if !c.cfg.CachingEnabled || c.cache == nil {
		return nil, ErrFeatureDisabled
	}
	return c.cache.Query(f), nil
}

// LatestProfile returns the newest cached kind-0 event for an account.
func (c *Client) LatestProfile(account library.Account) (*protocol.Event, bool) {
	if c.cache == nil {
		return nil, false
	}
	results := c.cache.Query(protocol.Filter{
		Kinds:   []int{protocol.KindProfile},
		Authors: []string{account},
		Limit:   1,
	})
	if len(results) == 0 {
		return nil, false
	}
	return results[0], true
}

// SetMode switches the pool between Foreground and Background scheduling.
func (c *Client) SetMode(ctx context.Context, mode relays.Mode) {
	c.pool.SetMode(ctx, mode)
}

// RelayStates reports each relay's connection state, for diagnostics.
func (c *Client) RelayStates() map[string]relays.State {
	return c.pool.States()
}

// RetryRelay revives a relay that exhausted its retry budget.
func (c *Client) RetryRelay(ctx context.Context, url string) error {
	conn, ok := c.pool.Conn(url)
	if !ok {
		return fmt.Errorf("unknown relay %s: %w", url, relays.ErrNoRelays)
	}
	return conn.Retry(ctx)
}
