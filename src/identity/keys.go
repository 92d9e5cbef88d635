package identity

import (
	"github.com/mosaicnetworks/homenode/src/crypto/keys"
)

// PublicKey is a tagged public key as produced by keys.PrivateKey.Public.
type PublicKey []byte

// Signature is an opaque signature over a byte payload.
type Signature []byte

// Type returns the key's scheme, or 0 when the key is malformed.
func (pk PublicKey) Type() keys.Type {
	t, err := keys.PublicKeyType(pk)
	if err != nil {
		return 0
	}
	return t
}

// Verify is a pure function that checks signature against payload under
// pub.
func Verify(payload []byte, signature Signature, pub PublicKey) bool {
	if len(signature) == 0 {
		return false
	}
	return keys.Verify(pub, payload, signature)
}
