package keys

import (
	"crypto/rand"

	"github.com/cloudflare/circl/sign/dilithium/mode3"
)

type dilithium3Key struct {
	pub  *mode3.PublicKey
	priv *mode3.PrivateKey
}

// GenerateDilithium3Key ...
func GenerateDilithium3Key() (PrivateKey, error) {
	pub, priv, err := mode3.GenerateKey(rand.Reader)
	if err != nil {
		return nil, err
	}
	return &dilithium3Key{pub: pub, priv: priv}, nil
}

// ParseDilithium3Key parses a packed private key.
func ParseDilithium3Key(raw []byte) (PrivateKey, error) {
	var priv mode3.PrivateKey
	if err := priv.UnmarshalBinary(raw); err != nil {
		return nil, err
	}
	pub := priv.Public().(*mode3.PublicKey)
	return &dilithium3Key{pub: pub, priv: &priv}, nil
}

func (k *dilithium3Key) Type() Type {
	return Dilithium3
}

func (k *dilithium3Key) Public() []byte {
	return tag(Dilithium3, k.pub.Bytes())
}

func (k *dilithium3Key) Sign(payload []byte) ([]byte, error) {
	sig := make([]byte, mode3.SignatureSize)
	mode3.SignTo(k.priv, payload, sig)
	return sig, nil
}

func (k *dilithium3Key) Bytes() []byte {
	return k.priv.Bytes()
}

func verifyDilithium3(pub []byte, payload []byte, sig []byte) bool {
	if len(sig) != mode3.SignatureSize {
		return false
	}
	var pk mode3.PublicKey
	if err := pk.UnmarshalBinary(pub); err != nil {
		return false
	}
	return mode3.Verify(&pk, payload, sig)
}
