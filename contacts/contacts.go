// Package contacts builds and parses the kind-3 contact-list event. One
// authoritative list exists per identity; a new publish replaces the whole
// previous list (last-write-wins by created_at).
package contacts

import (
	"errors"

	"nostrkit/engine/library"
	"nostrkit/protocol"
)

// ErrMalformedContactList reports that at least one tag entry lacked a valid
// pubkey. Parsing recovers by skipping only the bad entries.
var ErrMalformedContactList = errors.New("malformed contact list entry")

// Contact is one followed account with optional relay hint and petname.
type Contact struct {
	PubKey    library.Account
	RelayHint string
	Petname   string
}

// BuildListEvent encodes the contacts as the tag set of an unsigned kind-3
// event. Tag layout per entry: ["p", pubkey, relayHint, petname].
func BuildListEvent(list []Contact) protocol.Event {
	tags := make(protocol.Tags, 0, len(list))
	for _, c := range list {
		tags = append(tags, protocol.Tag{"p", c.PubKey, c.RelayHint, c.Petname})
	}
	return protocol.BuildUnsigned(protocol.KindContactList, tags, "", 0)
}

// ParseListEvent extracts the contact list from a kind-3 event. Entries
// without a valid 32-byte hex pubkey are skipped; the surviving entries are
// returned together with ErrMalformedContactList so callers can tell the
// list was damaged without losing the rest of it.
func ParseListEvent(e *protocol.Event) ([]Contact, error) {
	if e == nil || e.Kind != protocol.KindContactList {
		return nil, ErrMalformedContactList
	}
	var list []Contact
	var damaged bool
	for _, tag := range e.Tags.All("p") {
		if !validPubKey(tag.Value()) {
			damaged = true
			continue
		}
		c := Contact{PubKey: tag.Value()}
		if len(tag) > 2 {
			c.RelayHint = tag[2]
		}
		if len(tag) > 3 {
			c.Petname = tag[3]
		}
		list = append(list, c)
	}
	if damaged {
		return list, ErrMalformedContactList
	}
	return list, nil
}

func validPubKey(s string) bool {
	if len(s) != 64 {
		return false
	}
	for i := 0; i < len(s); i++ {
		c := s[i]
		if (c < '0' || c > '9') && (c < 'a' || c > 'f') && (c < 'A' || c > 'F') {
			return false
		}
	}
	return true
}
