// Package keys implements the public key cryptography behind profile
// identities.
//
// Every profile owns a key-pair. The private key never leaves the process
// that owns it; it is wrapped by a Signer. The public key travels inside the
// public Profile so that anybody can verify relation proofs signed by the
// profile.
//
// Three schemes are supported and identified by a one-byte Type tag carried in
// front of every serialized public key:
//
//   - secp256k1 ECDSA, using btcsuite's implementation (the curve used by
//     Bitcoin and Ethereum). Signatures are DER encoded over the SHA256 of the
//     payload and are deterministic (RFC6979).
//   - Ed25519, using cloudflare's circl.
//   - Dilithium3, a post-quantum scheme, also from circl.
package keys
