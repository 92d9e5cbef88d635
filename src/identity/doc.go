// Package identity contains the immutable value types of the home protocol:
// profile identifiers, public keys, signatures, profiles with their facets,
// and the relation proofs that bind two profiles together.
//
// A ProfileID is a multihash of the profile's public key. The hash function is
// picked by whoever creates the profile, so the identifier can not be computed
// from the public key alone, but anybody holding both can check that they
// belong together (Profile.Validate).
//
// A relation is established in two steps. The initiator signs a
// RelationHalfProof over the tuple (relation type, initiator, target). The
// target countersigns the same tuple, which produces a RelationProof that any
// third party can verify with the two public keys. The signed tuple orders the
// two identifiers canonically, so the a/b slots of a RelationProof can be
// swapped without invalidating it.
package identity
