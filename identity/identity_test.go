package identity

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nostrkit/protocol"
)

func TestGenerate(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	assert.Len(t, k.PublicKey(), 64)

	k2, err := Generate()
	require.NoError(t, err)
	assert.NotEqual(t, k.PublicKey(), k2.PublicKey())
}

func TestImportRejectsBadKeys(t *testing.T) {
	for _, bad := range []string{
		"",
		"zz",
		"abcd",                    // too short
		strings.Repeat("ab", 31),  // 31 bytes
		strings.Repeat("ab", 33),  // 33 bytes
		strings.Repeat("00", 32),  // zero scalar
		strings.Repeat("ff", 32),  // above curve order
		strings.Repeat("gg", 32),  // not hex
	} {
		_, err := Import(bad)
		assert.ErrorIs(t, err, ErrInvalidKeyFormat, "key %q", bad)
	}
}

func TestImportRoundTrip(t *testing.T) {
	// a fixed valid scalar
	sk := "0000000000000000000000000000000000000000000000000000000000000003"
	k1, err := Import(sk)
	require.NoError(t, err)
	k2, err := Import(sk)
	require.NoError(t, err)
	assert.Equal(t, k1.PublicKey(), k2.PublicKey())
}

func TestSignVerifiesAndIsDeterministic(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)

	e := protocol.BuildUnsigned(protocol.KindTextNote, nil, "sign me", 1700000000)
	e.PubKey = k.PublicKey()
	e.ID = e.GetID()

	sig, err := k.Sign(e.ID)
	require.NoError(t, err)
	e.Sig = sig
	assert.True(t, e.Verify())

	// same event id must always yield the same signature for idempotent republish
	again, err := k.Sign(e.ID)
	require.NoError(t, err)
	assert.Equal(t, sig, again)
}

func TestSignRejectsBadInput(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	_, err = k.Sign("nothex")
	assert.Error(t, err)
	_, err = k.Sign("abcd")
	assert.Error(t, err)
}

func TestSharedSecretSymmetry(t *testing.T) {
	alice, err := Generate()
	require.NoError(t, err)
	bob, err := Generate()
	require.NoError(t, err)

	s1, err := alice.SharedSecret(bob.PublicKey())
	require.NoError(t, err)
	s2, err := bob.SharedSecret(alice.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, s1, s2)
	assert.Len(t, s1, 32)

	_, err = alice.SharedSecret("junk")
	assert.ErrorIs(t, err, ErrInvalidKeyFormat)
}

func TestZeroize(t *testing.T) {
	k, err := Generate()
	require.NoError(t, err)
	id := strings.Repeat("ab", 32)
	_, err = k.Sign(id)
	require.NoError(t, err)

	k.Zeroize()
	assert.Equal(t, "", k.PublicKey())
	_, err = k.Sign(id)
	assert.Error(t, err)
	_, err = k.SharedSecret(strings.Repeat("cd", 32))
	assert.Error(t, err)
	k.Zeroize() // idempotent

	var nilKeys *Keypair
	assert.Equal(t, "", nilKeys.PublicKey())
}
