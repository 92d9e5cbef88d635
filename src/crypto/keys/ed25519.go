package keys

import (
	"crypto/rand"
	"fmt"

	"github.com/cloudflare/circl/sign/ed25519"
)

type ed25519Key struct {
	priv ed25519.PrivateKey
}

// GenerateEd25519Key ...
func GenerateEd25519Key() (PrivateKey, error) {
	_, priv, err := ed25519.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &ed25519Key{priv: priv}, nil
}

// NewEd25519KeyFromSeed derives a key deterministically from a 32-byte seed.
func NewEd25519KeyFromSeed(seed []byte) (PrivateKey, error) {
	if len(seed) != ed25519.SeedSize {
		return nil, fmt.Errorf("invalid seed length, need %d bytes", ed25519.SeedSize)
	}
	return &ed25519Key{priv: ed25519.NewKeyFromSeed(seed)}, nil
}

// ParseEd25519Key accepts either a seed or a full private key.
func ParseEd25519Key(raw []byte) (PrivateKey, error) {
	switch len(raw) {
	case ed25519.SeedSize:
		return NewEd25519KeyFromSeed(raw)
	case ed25519.PrivateKeySize:
		return NewEd25519KeyFromSeed(raw[:ed25519.SeedSize])
	default:
		return nil, fmt.Errorf("invalid ed25519 key length %d", len(raw))
	}
}

func (k *ed25519Key) Type() Type {
	return Ed25519
}

func (k *ed25519Key) Public() []byte {
	pub := k.priv.Public().(ed25519.PublicKey)
	return tag(Ed25519, pub)
}

func (k *ed25519Key) Sign(payload []byte) ([]byte, error) {
	return ed25519.Sign(k.priv, payload), nil
}

// Bytes returns the seed.
func (k *ed25519Key) Bytes() []byte {
	return k.priv.Seed()
}

func verifyEd25519(pub []byte, payload []byte, sig []byte) bool {
	if len(pub) != ed25519.PublicKeySize || len(sig) != ed25519.SignatureSize {
		return false
	}
	return ed25519.Verify(ed25519.PublicKey(pub), payload, sig)
}
