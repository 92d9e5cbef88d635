package identity

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/mr-tron/base58"
	"github.com/multiformats/go-multihash"
)

// Hash schemes accepted for ProfileIDs.
const (
	HashSHA2_256    = multihash.SHA2_256
	HashSHA3_256    = multihash.SHA3_256
	HashBLAKE2B_256 = multihash.BLAKE2B_MIN + 31

	// DefaultHash is used by NewProfileID.
	DefaultHash = HashSHA2_256
)

// ErrInvalidProfileID is returned for ids that are not a well-formed
// multihash of a supported scheme.
var ErrInvalidProfileID = errors.New("invalid profile id")

// ProfileID is the stable identifier of a profile. Two ids are equal iff
// their bytes are equal.
type ProfileID []byte

// NewProfileID derives an id from a public key with the default hash.
func NewProfileID(pub PublicKey) (ProfileID, error) {
	return NewProfileIDWithHash(pub, DefaultHash)
}

// NewProfileIDWithHash derives an id from a public key with the given
// multihash code.
func NewProfileIDWithHash(pub PublicKey, code uint64) (ProfileID, error) {
	if len(pub) == 0 {
		return nil, fmt.Errorf("%w: empty public key", ErrInvalidProfileID)
	}
	mh, err := multihash.Sum(pub, code, -1)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfileID, err)
	}
	return ProfileID(mh), nil
}

// ParseProfileID parses the base58 form returned by String.
func ParseProfileID(s string) (ProfileID, error) {
	raw, err := base58.Decode(s)
	if err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfileID, err)
	}
	if _, err := multihash.Cast(raw); err != nil {
		return nil, fmt.Errorf("%w: %v", ErrInvalidProfileID, err)
	}
	return ProfileID(raw), nil
}

// String returns the base58 representation of the id.
func (id ProfileID) String() string {
	return base58.Encode(id)
}

// Key returns a string suitable for use as a map key.
func (id ProfileID) Key() string {
	return string(id)
}

// Equal reports whether both ids have the same bytes.
func (id ProfileID) Equal(other ProfileID) bool {
	return bytes.Equal(id, other)
}

// IsEmpty reports whether the id has no bytes.
func (id ProfileID) IsEmpty() bool {
	return len(id) == 0
}

// Matches reports whether id was derived from pub, using whatever hash scheme
// the id carries.
func (id ProfileID) Matches(pub PublicKey) bool {
	decoded, err := multihash.Decode(id)
	if err != nil {
		return false
	}
	sum, err := multihash.Sum(pub, decoded.Code, decoded.Length)
	if err != nil {
		return false
	}
	return bytes.Equal(sum, id)
}

// MarshalText encodes the id in base58.
func (id ProfileID) MarshalText() ([]byte, error) {
	return []byte(id.String()), nil
}

// UnmarshalText ...
func (id *ProfileID) UnmarshalText(text []byte) error {
	if len(text) == 0 {
		*id = nil
		return nil
	}
	parsed, err := ParseProfileID(string(text))
	if err != nil {
		return err
	}
	*id = parsed
	return nil
}
