package signer

import (
	"github.com/mosaicnetworks/homenode/src/identity"
)

// NewHalfProof signs an offer to form a relation of the given type with peer.
func NewHalfProof(s Signer, relationType string, peer identity.ProfileID) (identity.RelationHalfProof, error) {
	half := identity.RelationHalfProof{
		RelationType: relationType,
		SignerID:     s.ProfileID(),
		PeerID:       peer,
	}
	sig, err := s.Sign(half.Payload())
	if err != nil {
		return identity.RelationHalfProof{}, err
	}
	half.Signature = sig
	return half, nil
}

// Countersign completes a half-proof addressed to s. It does not verify the
// initiator's signature; callers do that with RelationHalfProof.Validate.
func Countersign(s Signer, half identity.RelationHalfProof) (identity.RelationProof, error) {
	if !half.PeerID.Equal(s.ProfileID()) {
		return identity.RelationProof{}, identity.ErrNotParticipant
	}
	sig, err := s.Sign(half.Payload())
	if err != nil {
		return identity.RelationProof{}, err
	}
	return identity.NewRelationProof(half, sig), nil
}

// SignInvitation issues a HomeInvitation from a home signer.
func SignInvitation(home Signer, voucher []byte) (identity.HomeInvitation, error) {
	inv := identity.HomeInvitation{
		HomeID:  home.ProfileID(),
		Voucher: voucher,
	}
	sig, err := home.Sign(inv.Payload())
	if err != nil {
		return identity.HomeInvitation{}, err
	}
	inv.Signature = sig
	return inv, nil
}

// Profile returns the public profile of the signer with the given facet.
func Profile(s Signer, facet identity.Facet) (identity.Profile, error) {
	return identity.NewProfileWithID(s.ProfileID(), s.PublicKey(), facet)
}
