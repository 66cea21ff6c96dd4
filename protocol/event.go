package protocol

import (
	"crypto/sha256"
	"encoding/hex"
	"time"

	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// Event kinds the client knows how to build.
const (
	KindProfile     = 0
	KindTextNote    = 1
	KindContactList = 3
	KindEncryptedDM = 4
	KindDeletion    = 5
)

type Timestamp int64

func Now() Timestamp {
	return Timestamp(time.Now().Unix())
}

func (t Timestamp) Time() time.Time {
	return time.Unix(int64(t), 0)
}

type Tag []string

// Key returns the tag name, e.g. "p" or "e".
func (t Tag) Key() string {
	if len(t) == 0 {
		return ""
	}
	return t[0]
}

// Value returns the entry immediately after the tag name.
func (t Tag) Value() string {
	if len(t) < 2 {
		return ""
	}
	return t[1]
}

type Tags []Tag

// First returns the first tag with the given name.
func (ts Tags) First(key string) (Tag, bool) {
	for _, tag := range ts {
		if tag.Key() == key {
			return tag, true
		}
	}
	return nil, false
}

// All returns every tag with the given name, in order.
func (ts Tags) All(key string) (out []Tag) {
	for _, tag := range ts {
		if tag.Key() == key {
			out = append(out, tag)
		}
	}
	return
}

// Event is a signed protocol event as defined by NIP-01. Once the ID and Sig
// are set the event is immutable; nothing in this package mutates one after
// construction.
type Event struct {
	ID        string    `json:"id"`
	PubKey    string    `json:"pubkey"`
	CreatedAt Timestamp `json:"created_at"`
	Kind      int       `json:"kind"`
	Tags      Tags      `json:"tags"`
	Content   string    `json:"content"`
	Sig       string    `json:"sig"`
}

// BuildUnsigned assembles an event with no pubkey, id or signature yet.
// A zero createdAt defaults to the current time.
func BuildUnsigned(kind int, tags Tags, content string, createdAt Timestamp) Event {
	if createdAt == 0 {
		createdAt = Now()
	}
	if tags == nil {
		tags = Tags{}
	}
	return Event{
		CreatedAt: createdAt,
		Kind:      kind,
		Tags:      tags,
		Content:   content,
	}
}

// GetID hashes the canonical serialization and returns the hex event id.
func (e *Event) GetID() string {
	h := sha256.Sum256(e.Serialize())
	return hex.EncodeToString(h[:])
}

// CheckID recomputes the id and compares it to the one the event carries.
func (e *Event) CheckID() bool {
	return e.GetID() == e.ID
}

// Verify recomputes the id and checks the schnorr signature against it.
// Failure is an expected outcome when ingesting from untrusted relays, so
// this returns false rather than an error.
func (e *Event) Verify() bool {
	h := sha256.Sum256(e.Serialize())
	if hex.EncodeToString(h[:]) != e.ID {
		return false
	}
	pkb, err := hex.DecodeString(e.PubKey)
	if err != nil || len(pkb) != 32 {
		return false
	}
	pub, err := schnorr.ParsePubKey(pkb)
	if err != nil {
		return false
	}
	sigb, err := hex.DecodeString(e.Sig)
	if err != nil || len(sigb) != 64 {
		return false
	}
	sig, err := schnorr.ParseSignature(sigb)
	if err != nil {
		return false
	}
	return sig.Verify(h[:], pub)
}
