package encryption

import (
	"strings"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
	"nostrkit/identity"
)

func pair(t *testing.T) (*identity.Keypair, *identity.Keypair) {
	t.Helper()
	a, err := identity.Generate()
	require.NoError(t, err)
	b, err := identity.Generate()
	require.NoError(t, err)
	return a, b
}

func TestEncryptDecryptRoundTrip(t *testing.T) {
	alice, bob := pair(t)
	for _, plaintext := range []string{
		"",
		"hi",
		"exactly sixteen!",
		"a longer message with unicode ☃ and newlines\nand tabs\t.",
		strings.Repeat("x", 1000),
	} {
		payload, err := Encrypt(alice, bob.PublicKey(), plaintext)
		require.NoError(t, err)
		assert.Contains(t, payload, "?iv=")

		got, err := Decrypt(bob, alice.PublicKey(), payload)
		require.NoError(t, err)
		assert.Equal(t, plaintext, got)
	}
}

func TestEncryptUsesFreshIV(t *testing.T) {
	alice, bob := pair(t)
	p1, err := Encrypt(alice, bob.PublicKey(), "same message")
	require.NoError(t, err)
	p2, err := Encrypt(alice, bob.PublicKey(), "same message")
	require.NoError(t, err)
	assert.NotEqual(t, p1, p2)
}

func TestDecryptWithWrongKeypairFails(t *testing.T) {
	alice, bob := pair(t)
	eve, err := identity.Generate()
	require.NoError(t, err)

	payload, err := Encrypt(alice, bob.PublicKey(), "for bob only")
	require.NoError(t, err)

	got, err := Decrypt(eve, alice.PublicKey(), payload)
	if err == nil {
		// CBC padding can decode by chance; the plaintext must still be wrong
		assert.NotEqual(t, "for bob only", got)
	} else {
		assert.ErrorIs(t, err, ErrDecryption)
	}
}

func TestDecryptMalformedPayload(t *testing.T) {
	alice, bob := pair(t)
	for _, payload := range []string{
		"",
		"noseparator",
		"notbase64!!?iv=notbase64!!",
		"YWJj?iv=YWJj",          // iv wrong size
		"?iv=AAAAAAAAAAAAAAAAAAAAAA==", // empty ciphertext
		"YWJjZGU=?iv=AAAAAAAAAAAAAAAAAAAAAA==", // ciphertext not block aligned
		strings.Repeat("A", MaxPayloadSize+1),
	} {
		_, err := Decrypt(bob, alice.PublicKey(), payload)
		assert.ErrorIs(t, err, ErrDecryption, "payload %.40q", payload)
	}
}

func TestConversationKeyIsSymmetricAndCached(t *testing.T) {
	alice, bob := pair(t)
	k1, err := conversationKey(alice, bob.PublicKey())
	require.NoError(t, err)
	k2, err := conversationKey(bob, alice.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, k1, k2, "ECDH must agree from both sides")

	s1, err := alice.SharedSecret(bob.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, s1, k1)

	again, err := conversationKey(alice, bob.PublicKey())
	require.NoError(t, err)
	assert.Equal(t, k1, again)
}

func TestPurgeKeysDropsCachedMaterial(t *testing.T) {
	alice, bob := pair(t)
	_, err := conversationKey(alice, bob.PublicKey())
	require.NoError(t, err)
	require.NotZero(t, conversationKeys.Size())

	PurgeKeys()
	assert.Zero(t, conversationKeys.Size(), "logout must not leave derived keys behind")

	// the cache repopulates transparently for a fresh identity
	k, err := conversationKey(alice, bob.PublicKey())
	require.NoError(t, err)
	assert.Len(t, k, 32)
}
