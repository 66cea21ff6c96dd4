package protocol

import (
	"encoding/hex"
	"encoding/json"
	"strings"
	"testing"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func testSigned(t *testing.T, kind int, tags Tags, content string) *Event {
	t.Helper()
	priv, err := btcec.NewPrivateKey()
	require.NoError(t, err)
	e := BuildUnsigned(kind, tags, content, 1700000000)
	e.PubKey = hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey()))
	e.ID = e.GetID()
	idBytes, err := hex.DecodeString(e.ID)
	require.NoError(t, err)
	sig, err := schnorr.Sign(priv, idBytes)
	require.NoError(t, err)
	e.Sig = hex.EncodeToString(sig.Serialize())
	return &e
}

func TestSerializeCanonicalForm(t *testing.T) {
	e := Event{
		PubKey:    strings.Repeat("ab", 32),
		CreatedAt: 1000,
		Kind:      1,
		Tags:      Tags{{"t", "go"}, {"p", "deadbeef"}},
		Content:   "hello",
	}
	want := `[0,"` + strings.Repeat("ab", 32) + `",1000,1,[["t","go"],["p","deadbeef"]],"hello"]`
	assert.Equal(t, want, string(e.Serialize()))
}

func TestSerializeEscaping(t *testing.T) {
	e := Event{CreatedAt: 1, Kind: 1, Content: "line1\nline2\t\"quoted\" \\slash\x01"}
	s := string(e.Serialize())
	assert.Contains(t, s, `line1\nline2\t\"quoted\" \\slash\u0001`)
	// canonical form must itself be valid JSON
	var arr []interface{}
	require.NoError(t, json.Unmarshal(e.Serialize(), &arr))
	require.Len(t, arr, 6)
	assert.Equal(t, "line1\nline2\t\"quoted\" \\slash\x01", arr[5])
}

func TestGetIDDeterministic(t *testing.T) {
	e := BuildUnsigned(1, Tags{{"t", "x"}}, "content", 12345)
	e.PubKey = strings.Repeat("00", 32)
	first := e.GetID()
	assert.Equal(t, first, e.GetID())
	assert.Len(t, first, 64)

	changed := e
	changed.Content = "content!"
	assert.NotEqual(t, first, changed.GetID())
}

func TestBuildUnsignedDefaults(t *testing.T) {
	e := BuildUnsigned(1, nil, "hi", 0)
	assert.NotZero(t, e.CreatedAt)
	assert.NotNil(t, e.Tags)
	assert.Empty(t, e.ID)
	assert.Empty(t, e.Sig)
}

func TestVerify(t *testing.T) {
	e := testSigned(t, 1, Tags{{"t", "test"}}, "signed note")
	assert.True(t, e.Verify())
	assert.True(t, e.CheckID())
}

func TestVerifyRejectsTampering(t *testing.T) {
	flip := func(s string) string {
		b := []byte(s)
		if b[0] == 'f' {
			b[0] = '0'
		} else {
			b[0] = 'f'
		}
		return string(b)
	}

	e := testSigned(t, 1, nil, "tamper target")

	tampered := *e
	tampered.Sig = flip(e.Sig)
	assert.False(t, tampered.Verify(), "flipped signature byte must fail")

	tampered = *e
	tampered.ID = flip(e.ID)
	assert.False(t, tampered.Verify(), "flipped id byte must fail")

	tampered = *e
	tampered.PubKey = flip(e.PubKey)
	assert.False(t, tampered.Verify(), "flipped pubkey byte must fail")

	tampered = *e
	tampered.Content = e.Content + "x"
	assert.False(t, tampered.Verify(), "content change must invalidate id")
}

func TestVerifyGarbageFields(t *testing.T) {
	e := testSigned(t, 1, nil, "x")
	for _, mutate := range []func(*Event){
		func(e *Event) { e.PubKey = "nothex" },
		func(e *Event) { e.PubKey = "" },
		func(e *Event) { e.Sig = "short" },
		func(e *Event) { e.Sig = "" },
	} {
		bad := *e
		mutate(&bad)
		bad.ID = bad.GetID()
		assert.False(t, bad.Verify())
	}
}

func TestEventJSONRoundTrip(t *testing.T) {
	e := testSigned(t, 4, Tags{{"p", strings.Repeat("cd", 32)}}, "payload?iv=abcd")
	data, err := json.Marshal(e)
	require.NoError(t, err)
	assert.Contains(t, string(data), `"created_at":1700000000`)

	var back Event
	require.NoError(t, json.Unmarshal(data, &back))
	assert.Equal(t, *e, back)
	assert.True(t, back.Verify())
}

func TestTagHelpers(t *testing.T) {
	tags := Tags{{"p", "alice", "wss://relay", "al"}, {"e", "eventid"}, {"p", "bob"}}
	first, ok := tags.First("p")
	require.True(t, ok)
	assert.Equal(t, "alice", first.Value())
	assert.Len(t, tags.All("p"), 2)
	_, ok = tags.First("missing")
	assert.False(t, ok)
	assert.Equal(t, "", Tag{}.Key())
	assert.Equal(t, "", Tag{"p"}.Value())
}
