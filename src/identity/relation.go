package identity

import (
	"bytes"
	"errors"
	"fmt"

	"github.com/ugorji/go/codec"
)

// Well-known relation types.
const (
	// RelationTypeHostedOnHome binds a persona to the home hosting it.
	RelationTypeHostedOnHome = "hosted_on_home"

	// RelationTypeEnableCallsBetween allows two personas to call each other.
	RelationTypeEnableCallsBetween = "enable_call_between"
)

const relationDomain = "homenode/relation/v1"

var (
	// ErrInvalidSignature is returned when a signature does not verify
	// against the public key of its claimed signer.
	ErrInvalidSignature = errors.New("invalid signature")

	// ErrNotParticipant is returned when a profile is not one of the two
	// parties of a relation.
	ErrNotParticipant = errors.New("profile is not a party of the relation")
)

var cborHandle = &codec.CborHandle{}

func init() {
	cborHandle.Canonical = true
}

// RelationPayload returns the canonical bytes signed by both parties of a
// relation. The two ids are sorted so that the payload does not depend on who
// initiated the relation.
func RelationPayload(relationType string, a, b ProfileID) []byte {
	if bytes.Compare(a, b) > 0 {
		a, b = b, a
	}

	tuple := []interface{}{relationDomain, relationType, []byte(a), []byte(b)}

	var buf []byte
	enc := codec.NewEncoderBytes(&buf, cborHandle)
	if err := enc.Encode(tuple); err != nil {
		// Strings and byte slices always encode.
		panic(err)
	}
	return buf
}

// RelationHalfProof is a unilateral, signed offer to form a relation with
// PeerID.
type RelationHalfProof struct {
	RelationType string    `json:"relation_type"`
	SignerID     ProfileID `json:"signer_id"`
	Signature    Signature `json:"signature"`
	PeerID       ProfileID `json:"peer_id"`
}

// Payload returns the bytes covered by Signature.
func (h RelationHalfProof) Payload() []byte {
	return RelationPayload(h.RelationType, h.SignerID, h.PeerID)
}

// Validate checks the signature against the signer's profile.
func (h RelationHalfProof) Validate(signer Profile) error {
	if !signer.ID.Equal(h.SignerID) {
		return fmt.Errorf("%w: half-proof signed by %s, not %s", ErrInvalidSignature, h.SignerID, signer.ID)
	}
	if !signer.ID.Matches(signer.PublicKey) {
		return fmt.Errorf("%w: %s", ErrKeyMismatch, signer.ID)
	}
	if !Verify(h.Payload(), h.Signature, signer.PublicKey) {
		return fmt.Errorf("%w: half-proof from %s", ErrInvalidSignature, h.SignerID)
	}
	return nil
}

// RelationProof is a bilateral proof of a relation between A and B that any
// third party can verify.
type RelationProof struct {
	RelationType string    `json:"relation_type"`
	AID          ProfileID `json:"a_id"`
	ASignature   Signature `json:"a_signature"`
	BID          ProfileID `json:"b_id"`
	BSignature   Signature `json:"b_signature"`
}

// NewRelationProof completes a half-proof with the peer's signature over the
// same payload.
func NewRelationProof(half RelationHalfProof, peerSignature Signature) RelationProof {
	return RelationProof{
		RelationType: half.RelationType,
		AID:          half.SignerID,
		ASignature:   half.Signature,
		BID:          half.PeerID,
		BSignature:   peerSignature,
	}
}

// Payload returns the bytes covered by both signatures.
func (p RelationProof) Payload() []byte {
	return RelationPayload(p.RelationType, p.AID, p.BID)
}

// Swapped returns the same proof with the a and b slots exchanged.
func (p RelationProof) Swapped() RelationProof {
	return RelationProof{
		RelationType: p.RelationType,
		AID:          p.BID,
		ASignature:   p.BSignature,
		BID:          p.AID,
		BSignature:   p.ASignature,
	}
}

// Involves reports whether id is one of the two parties.
func (p RelationProof) Involves(id ProfileID) bool {
	return p.AID.Equal(id) || p.BID.Equal(id)
}

// PeerID returns the party that is not myID.
func (p RelationProof) PeerID(myID ProfileID) (ProfileID, error) {
	switch {
	case p.AID.Equal(myID):
		return p.BID, nil
	case p.BID.Equal(myID):
		return p.AID, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, myID)
	}
}

// SignatureOf returns the signature of the given party.
func (p RelationProof) SignatureOf(id ProfileID) (Signature, error) {
	switch {
	case p.AID.Equal(id):
		return p.ASignature, nil
	case p.BID.Equal(id):
		return p.BSignature, nil
	default:
		return nil, fmt.Errorf("%w: %s", ErrNotParticipant, id)
	}
}

// VerifyParty checks the signature of one party, given its profile.
func (p RelationProof) VerifyParty(party Profile) error {
	sig, err := p.SignatureOf(party.ID)
	if err != nil {
		return err
	}
	if !party.ID.Matches(party.PublicKey) {
		return fmt.Errorf("%w: %s", ErrKeyMismatch, party.ID)
	}
	if !Verify(p.Payload(), sig, party.PublicKey) {
		return fmt.Errorf("%w: %s signature over %q relation", ErrInvalidSignature, party.ID, p.RelationType)
	}
	return nil
}

// Validate checks that the proof binds exactly the two given profiles, in any
// order, and that both signatures verify.
func (p RelationProof) Validate(x, y Profile) error {
	if x.ID.Equal(y.ID) {
		return fmt.Errorf("%w: relation of %s with itself", ErrInvalidSignature, x.ID)
	}
	bound := (p.AID.Equal(x.ID) && p.BID.Equal(y.ID)) || (p.AID.Equal(y.ID) && p.BID.Equal(x.ID))
	if !bound {
		return fmt.Errorf("%w: proof does not bind %s and %s", ErrNotParticipant, x.ID, y.ID)
	}
	if err := p.VerifyParty(x); err != nil {
		return err
	}
	return p.VerifyParty(y)
}

// Clone returns a copy sharing no byte slices with p.
func (p RelationProof) Clone() RelationProof {
	return RelationProof{
		RelationType: p.RelationType,
		AID:          append(ProfileID(nil), p.AID...),
		ASignature:   append(Signature(nil), p.ASignature...),
		BID:          append(ProfileID(nil), p.BID...),
		BSignature:   append(Signature(nil), p.BSignature...),
	}
}

// Relation is a peer plus the proof that binds it to the local profile.
type Relation struct {
	Peer  Profile       `json:"peer"`
	Proof RelationProof `json:"proof"`
}

// NewRelation checks that proof names both myID and the peer.
func NewRelation(myID ProfileID, peer Profile, proof RelationProof) (Relation, error) {
	peerID, err := proof.PeerID(myID)
	if err != nil {
		return Relation{}, err
	}
	if !peerID.Equal(peer.ID) {
		return Relation{}, fmt.Errorf("%w: %s", ErrNotParticipant, peer.ID)
	}
	return Relation{Peer: peer, Proof: proof}, nil
}

// HomeInvitation is an optional voucher, signed by a home, that a home may
// require before registering new profiles.
type HomeInvitation struct {
	HomeID    ProfileID `json:"home_id"`
	Voucher   []byte    `json:"voucher"`
	Signature Signature `json:"signature"`
}

// Payload returns the bytes signed by the home.
func (i HomeInvitation) Payload() []byte {
	return RelationPayload("invitation", i.HomeID, ProfileID(i.Voucher))
}

// Validate checks the invitation against the home's profile.
func (i HomeInvitation) Validate(home Profile) error {
	if !i.HomeID.Equal(home.ID) {
		return fmt.Errorf("%w: invitation issued by %s", ErrNotParticipant, i.HomeID)
	}
	if !Verify(i.Payload(), i.Signature, home.PublicKey) {
		return fmt.Errorf("%w: invitation", ErrInvalidSignature)
	}
	return nil
}
