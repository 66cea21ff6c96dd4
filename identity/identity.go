package identity

import (
	"encoding/hex"
	"errors"
	"math/big"

	"github.com/btcsuite/btcd/btcec/v2"
	"github.com/btcsuite/btcd/btcec/v2/schnorr"
)

// ErrInvalidKeyFormat is returned when an imported key is not exactly 32
// bytes of hex or not a valid scalar for the curve.
var ErrInvalidKeyFormat = errors.New("invalid private key format")

var errUninitialized = errors.New("identity has no key material")

// Keypair holds the secp256k1 secret scalar and its x-only public key. The
// secret never leaves this package: signing and Diffie-Hellman are methods so
// no caller ever serializes it into an outbound message.
type Keypair struct {
	priv   *btcec.PrivateKey
	pubHex string
}

// Generate creates a fresh keypair from the runtime's secure random source.
func Generate() (*Keypair, error) {
	priv, err := btcec.NewPrivateKey()
	if err != nil {
		return nil, err
	}
	return fromPriv(priv), nil
}

// Import restores a keypair from a 64-character hex secret key.
func Import(privateKeyHex string) (*Keypair, error) {
	raw, err := hex.DecodeString(privateKeyHex)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKeyFormat
	}
	// PrivKeyFromBytes silently reduces mod N, so range-check first.
	d := new(big.Int).SetBytes(raw)
	if d.Sign() == 0 || d.Cmp(btcec.S256().N) >= 0 {
		return nil, ErrInvalidKeyFormat
	}
	priv, _ := btcec.PrivKeyFromBytes(raw)
	return fromPriv(priv), nil
}

func fromPriv(priv *btcec.PrivateKey) *Keypair {
	return &Keypair{
		priv:   priv,
		pubHex: hex.EncodeToString(schnorr.SerializePubKey(priv.PubKey())),
	}
}

// PublicKey returns the x-only public key as hex, or "" when zeroized or
// never initialized.
func (k *Keypair) PublicKey() string {
	if k == nil || k.priv == nil {
		return ""
	}
	return k.pubHex
}

// Sign produces the 64-byte schnorr signature over a 32-byte hex event id.
// BIP-340 signing here is deterministic: re-signing the same event always
// yields the same signature, which keeps republishing idempotent.
func (k *Keypair) Sign(eventID string) (string, error) {
	if k == nil || k.priv == nil {
		return "", errUninitialized
	}
	msg, err := hex.DecodeString(eventID)
	if err != nil || len(msg) != 32 {
		return "", ErrInvalidKeyFormat
	}
	sig, err := schnorr.Sign(k.priv, msg)
	if err != nil {
		return "", err
	}
	return hex.EncodeToString(sig.Serialize()), nil
}

// SharedSecret runs ECDH against an x-only hex public key and returns the
// 32-byte x coordinate of the shared point. The encryption package derives
// its symmetric key from this.
func (k *Keypair) SharedSecret(peerPubHex string) ([]byte, error) {
	if k == nil || k.priv == nil {
		return nil, errUninitialized
	}
	raw, err := hex.DecodeString(peerPubHex)
	if err != nil || len(raw) != 32 {
		return nil, ErrInvalidKeyFormat
	}
	pub, err := schnorr.ParsePubKey(raw)
	if err != nil {
		return nil, ErrInvalidKeyFormat
	}
	return btcec.GenerateSharedSecret(k.priv, pub), nil
}

// Zeroize wipes the secret scalar. The keypair is unusable afterwards.
func (k *Keypair) Zeroize() {
	if k == nil || k.priv == nil {
		return
	}
	k.priv.Zero()
	k.priv = nil
	k.pubHex = ""
}
