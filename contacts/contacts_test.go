package contacts

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nostrkit/protocol"
)

func pk(c byte) string {
	return strings.Repeat(string(c), 64)
}

func TestBuildListEvent(t *testing.T) {
	list := []Contact{
		{PubKey: pk('a'), RelayHint: "wss://relay.one", Petname: "alice"},
		{PubKey: pk('b')},
	}
	e := BuildListEvent(list)
	assert.Equal(t, protocol.KindContactList, e.Kind)
	require.Len(t, e.Tags, 2)
	assert.Equal(t, protocol.Tag{"p", pk('a'), "wss://relay.one", "alice"}, e.Tags[0])
	assert.Equal(t, protocol.Tag{"p", pk('b'), "", ""}, e.Tags[1])
	assert.NotZero(t, e.CreatedAt)
}

func TestParseRoundTrip(t *testing.T) {
	list := []Contact{
		{PubKey: pk('a'), RelayHint: "wss://relay.one", Petname: "alice"},
		{PubKey: pk('b'), Petname: "bob"},
		{PubKey: pk('c')},
	}
	e := BuildListEvent(list)
	parsed, err := ParseListEvent(&e)
	require.NoError(t, err)
	assert.Equal(t, list, parsed)
}

func TestParseSkipsBadEntries(t *testing.T) {
	e := protocol.BuildUnsigned(protocol.KindContactList, protocol.Tags{
		{"p", pk('a'), "", "alice"},
		{"p", "tooshort"},
		{"p"},
		{"p", strings.Repeat("z", 64)}, // not hex
		{"e", "some event id"},         // ignored, not a contact tag
		{"p", pk('b')},
	}, "", 0)

	parsed, err := ParseListEvent(&e)
	assert.ErrorIs(t, err, ErrMalformedContactList)
	require.Len(t, parsed, 2, "good entries must survive bad ones")
	assert.Equal(t, pk('a'), parsed[0].PubKey)
	assert.Equal(t, "alice", parsed[0].Petname)
	assert.Equal(t, pk('b'), parsed[1].PubKey)
}

func TestParseRejectsWrongKind(t *testing.T) {
	e := protocol.BuildUnsigned(protocol.KindTextNote, nil, "not a contact list", 0)
	_, err := ParseListEvent(&e)
	assert.ErrorIs(t, err, ErrMalformedContactList)
	_, err = ParseListEvent(nil)
	assert.ErrorIs(t, err, ErrMalformedContactList)
}

func TestEmptyListRoundTrip(t *testing.T) {
	e := BuildListEvent(nil)
	parsed, err := ParseListEvent(&e)
	require.NoError(t, err)
	assert.Empty(t, parsed)
}
