package keys

import (
	"errors"
	"fmt"
)

// Type identifies a signature scheme.
type Type byte

const (
	// Secp256k1 is ECDSA over the secp256k1 curve.
	Secp256k1 Type = iota + 1
	// Ed25519 ...
	Ed25519
	// Dilithium3 ...
	Dilithium3
)

// ErrUnknownType is returned for key material tagged with an unsupported Type.
var ErrUnknownType = errors.New("unknown key type")

// String ...
func (t Type) String() string {
	switch t {
	case Secp256k1:
		return "secp256k1"
	case Ed25519:
		return "ed25519"
	case Dilithium3:
		return "dilithium3"
	default:
		return "unknown"
	}
}

// ParseType is the inverse of String.
func ParseType(s string) (Type, error) {
	switch s {
	case "secp256k1":
		return Secp256k1, nil
	case "ed25519":
		return Ed25519, nil
	case "dilithium3":
		return Dilithium3, nil
	default:
		return 0, fmt.Errorf("%w: %q", ErrUnknownType, s)
	}
}

// PrivateKey is implemented by the private keys of every supported scheme.
type PrivateKey interface {
	// Type returns the scheme of the key.
	Type() Type

	// Public returns the tagged public key, ie. the Type byte followed by the
	// scheme's own serialization.
	Public() []byte

	// Sign signs the payload. The payload is hashed by the scheme if needed.
	Sign(payload []byte) ([]byte, error)

	// Bytes dumps the raw private key, without tag, as read by
	// ParsePrivateKey.
	Bytes() []byte
}

// GenerateKey creates a new random key for the given scheme.
func GenerateKey(t Type) (PrivateKey, error) {
	switch t {
	case Secp256k1:
		return GenerateSecp256k1Key()
	case Ed25519:
		return GenerateEd25519Key()
	case Dilithium3:
		return GenerateDilithium3Key()
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

// ParsePrivateKey parses the output of PrivateKey.Bytes.
func ParsePrivateKey(t Type, raw []byte) (PrivateKey, error) {
	switch t {
	case Secp256k1:
		return ParseSecp256k1Key(raw)
	case Ed25519:
		return ParseEd25519Key(raw)
	case Dilithium3:
		return ParseDilithium3Key(raw)
	default:
		return nil, fmt.Errorf("%w: %d", ErrUnknownType, t)
	}
}

// PublicKeyType returns the scheme of a tagged public key.
func PublicKeyType(pub []byte) (Type, error) {
	if len(pub) == 0 {
		return 0, errors.New("empty public key")
	}
	t := Type(pub[0])
	if t < Secp256k1 || t > Dilithium3 {
		return 0, fmt.Errorf("%w: %d", ErrUnknownType, pub[0])
	}
	return t, nil
}

// Verify checks sig against payload and a tagged public key, dispatching on
// the key's Type. Malformed keys or signatures simply fail verification.
func Verify(pub []byte, payload []byte, sig []byte) bool {
	t, err := PublicKeyType(pub)
	if err != nil {
		return false
	}
	raw := pub[1:]
	switch t {
	case Secp256k1:
		return verifySecp256k1(raw, payload, sig)
	case Ed25519:
		return verifyEd25519(raw, payload, sig)
	case Dilithium3:
		return verifyDilithium3(raw, payload, sig)
	}
	return false
}

func tag(t Type, raw []byte) []byte {
	res := make([]byte, 0, len(raw)+1)
	res = append(res, byte(t))
	return append(res, raw...)
}
