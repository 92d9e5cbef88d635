// Package signer wraps private key material behind the Signer capability.
//
// A Signer is the only component that ever touches a private key. Everything
// else receives a Signer explicitly and asks it to sign payloads.
package signer

import (
	"crypto/sha256"
	"fmt"

	"github.com/mosaicnetworks/homenode/src/crypto/keys"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// Signer owns a private key and signs payloads on request.
type Signer interface {
	ProfileID() identity.ProfileID
	PublicKey() identity.PublicKey
	// Sign fails only when the key material is unavailable.
	Sign(payload []byte) (identity.Signature, error)
}

// KeySigner implements Signer on top of any keys.PrivateKey.
type KeySigner struct {
	key keys.PrivateKey
	pub identity.PublicKey
	id  identity.ProfileID
}

// New returns a KeySigner whose profile id uses the default hash.
func New(key keys.PrivateKey) (*KeySigner, error) {
	return NewWithHash(key, identity.DefaultHash)
}

// NewWithHash returns a KeySigner whose profile id is derived with the given
// multihash code.
func NewWithHash(key keys.PrivateKey, code uint64) (*KeySigner, error) {
	if key == nil {
		return nil, fmt.Errorf("nil private key")
	}
	pub := identity.PublicKey(key.Public())
	id, err := identity.NewProfileIDWithHash(pub, code)
	if err != nil {
		return nil, err
	}
	return &KeySigner{
		key: key,
		pub: pub,
		id:  id,
	}, nil
}

// Generate creates a signer with a fresh key of the given type.
func Generate(t keys.Type) (*KeySigner, error) {
	key, err := keys.GenerateKey(t)
	if err != nil {
		return nil, err
	}
	return New(key)
}

// NewTestSigner returns a deterministic Ed25519 signer derived from seed. Two
// calls with the same seed return signers with the same identity.
func NewTestSigner(seed string) *KeySigner {
	digest := sha256.Sum256([]byte(seed))
	key, err := keys.NewEd25519KeyFromSeed(digest[:])
	if err != nil {
		panic(err)
	}
	s, err := New(key)
	if err != nil {
		panic(err)
	}
	return s
}

// ProfileID ...
func (s *KeySigner) ProfileID() identity.ProfileID {
	return s.id
}

// PublicKey ...
func (s *KeySigner) PublicKey() identity.PublicKey {
	return s.pub
}

// Sign ...
func (s *KeySigner) Sign(payload []byte) (identity.Signature, error) {
	sig, err := s.key.Sign(payload)
	if err != nil {
		return nil, err
	}
	return identity.Signature(sig), nil
}

// Key exposes the private key so that it can be persisted by its owner.
func (s *KeySigner) Key() keys.PrivateKey {
	return s.key
}
