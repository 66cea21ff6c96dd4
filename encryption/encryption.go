// Package encryption implements the direct-message payload cipher: an
// AES-256-CBC encryption keyed by the ECDH shared secret between sender and
// recipient, carried on the wire as base64(ciphertext) + "?iv=" + base64(iv).
package encryption

import (
	"crypto/aes"
	"crypto/cipher"
	"crypto/rand"
	"encoding/base64"
	"errors"
	"strings"

	"github.com/puzpuzpuz/xsync/v3"
	"nostrkit/engine/library"
	"nostrkit/identity"
)

// ErrDecryption covers malformed payloads, bad padding and wrong keys alike.
// Callers must not leak which of those happened; distinguishing them hands an
// oracle to whoever crafted the payload.
var ErrDecryption = errors.New("unable to decrypt payload")

// MaxPayloadSize bounds how much ciphertext we are willing to process, so an
// adversarial relay cannot stall the crypto workers with megabyte payloads.
const MaxPayloadSize = 64 * 1024

var conversationKeys = xsync.NewMapOf[library.Sha256, []byte]()

// conversationKey returns the cached symmetric key for a peer, deriving it
// via ECDH on first use. Cache key is a hash of both pubkeys, so the secret
// itself never doubles as a map key.
func conversationKey(keys *identity.Keypair, peerPubHex string) ([]byte, error) {
	cacheKey := library.Sha256Sum(keys.PublicKey() + peerPubHex)
	if k, ok := conversationKeys.Load(cacheKey); ok {
		return k, nil
	}
	secret, err := keys.SharedSecret(peerPubHex)
	if err != nil {
		return nil, err
	}
	conversationKeys.Store(cacheKey, secret)
	return secret, nil
}

// PurgeKeys wipes every cached conversation key. Must be called whenever an
// identity is discarded; Zeroize alone cannot reach keys already derived here.
func PurgeKeys() {
	conversationKeys.Range(func(k library.Sha256, v []byte) bool {
		for i := range v {
			v[i] = 0
		}
		conversationKeys.Delete(k)
		return true
	})
}

// Encrypt encrypts a plaintext for the recipient with a random per-message IV.
func Encrypt(keys *identity.Keypair, recipientPubHex, plaintext string) (string, error) {
	key, err := conversationKey(keys, recipientPubHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", err
	}
	iv := make([]byte, aes.BlockSize)
	if _, err := rand.Read(iv); err != nil {
		return "", err
	}
	padded := pad([]byte(plaintext))
	ct := make([]byte, len(padded))
	cipher.NewCBCEncrypter(block, iv).CryptBlocks(ct, padded)
	return base64.StdEncoding.EncodeToString(ct) + "?iv=" + base64.StdEncoding.EncodeToString(iv), nil
}

// Decrypt reverses Encrypt using the sender's public key.
func Decrypt(keys *identity.Keypair, senderPubHex, payload string) (string, error) {
	if len(payload) > MaxPayloadSize {
		return "", ErrDecryption
	}
	ctB64, ivB64, found := strings.Cut(payload, "?iv=")
	if !found {
		return "", ErrDecryption
	}
	ct, err := base64.StdEncoding.DecodeString(ctB64)
	if err != nil {
		return "", ErrDecryption
	}
	iv, err := base64.StdEncoding.DecodeString(ivB64)
	if err != nil {
		return "", ErrDecryption
	}
	if len(iv) != aes.BlockSize || len(ct) == 0 || len(ct)%aes.BlockSize != 0 {
		return "", ErrDecryption
	}
	key, err := conversationKey(keys, senderPubHex)
	if err != nil {
		return "", err
	}
	block, err := aes.NewCipher(key)
	if err != nil {
		return "", ErrDecryption
	}
	plain := make([]byte, len(ct))
	cipher.NewCBCDecrypter(block, iv).CryptBlocks(plain, ct)
	plain, ok := unpad(plain)
	if !ok {
		return "", ErrDecryption
	}
	return string(plain), nil
}

func pad(b []byte) []byte {
	n := aes.BlockSize - len(b)%aes.BlockSize
	padded := make([]byte, len(b)+n)
	copy(padded, b)
	for i := len(b); i < len(padded); i++ {
		padded[i] = byte(n)
	}
	return padded
}

func unpad(b []byte) ([]byte, bool) {
	if len(b) == 0 {
		return nil, false
	}
	n := int(b[len(b)-1])
	if n == 0 || n > aes.BlockSize || n > len(b) {
		return nil, false
	}
	for _, c := range b[len(b)-n:] {
		if int(c) != n {
			return nil, false
		}
	}
	return b[:len(b)-n], true
}
