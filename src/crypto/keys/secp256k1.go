package keys

import (
	"fmt"

	"github.com/btcsuite/btcd/btcec"
	"github.com/mosaicnetworks/homenode/src/crypto"
)

// secp256k1Key is a private key on the secp256k1 curve, the one also used by
// Bitcoin and Ethereum.
type secp256k1Key struct {
	priv *btcec.PrivateKey
}

// GenerateSecp256k1Key ...
func GenerateSecp256k1Key() (PrivateKey, error) {
	priv, err := btcec.NewPrivateKey(btcec.S256())
	if err != nil {
		return nil, err
	}
	return &secp256k1Key{priv: priv}, nil
}

// ParseSecp256k1Key creates a key from the 32-byte big-endian D value.
func ParseSecp256k1Key(d []byte) (PrivateKey, error) {
	if len(d) != btcec.PrivKeyBytesLen {
		return nil, fmt.Errorf("invalid length, need %d bytes", btcec.PrivKeyBytesLen)
	}
	priv, _ := btcec.PrivKeyFromBytes(btcec.S256(), d)
	if priv.D.Sign() <= 0 || priv.D.Cmp(btcec.S256().N) >= 0 {
		return nil, fmt.Errorf("invalid private key")
	}
	return &secp256k1Key{priv: priv}, nil
}

func (k *secp256k1Key) Type() Type {
	return Secp256k1
}

// Public returns the tagged, compressed form of the public key.
func (k *secp256k1Key) Public() []byte {
	return tag(Secp256k1, k.priv.PubKey().SerializeCompressed())
}

// Sign produces a deterministic DER signature of SHA256(payload).
func (k *secp256k1Key) Sign(payload []byte) ([]byte, error) {
	sig, err := k.priv.Sign(crypto.SHA256(payload))
	if err != nil {
		return nil, err
	}
	return sig.Serialize(), nil
}

func (k *secp256k1Key) Bytes() []byte {
	return k.priv.Serialize()
}

func verifySecp256k1(pub []byte, payload []byte, sig []byte) bool {
	pubKey, err := btcec.ParsePubKey(pub, btcec.S256())
	if err != nil {
		return false
	}
	signature, err := btcec.ParseDERSignature(sig, btcec.S256())
	if err != nil {
		return false
	}
	return signature.Verify(crypto.SHA256(payload), pubKey)
}
