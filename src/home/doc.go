// Package home implements the Home capability and the hosting node behind it.
//
// A profile's relationship with one home goes through the states Unclaimed,
// Registered, LoggedOut and LoggedIn. Register enrolls a Persona profile and
// returns it with a hosted-on-home proof countersigned by the home. Login
// presents that proof and opens a Session. A home keeps at most one live
// Session per profile: a new Login closes the previous Session.
//
// Pairing is a two-phase handshake between profiles that may live on
// different homes. The initiator sends a half-proof to the target's home
// (PairRequest), which queues a PairingRequest event for the target. The
// target countersigns and sends the full proof to the initiator's home, and to
// its own home (PairResponse), which queue PairingResponse events.
//
// Events are queued per profile, in emission order, and survive until a
// session subscribes to them, so nothing is lost while a profile is offline or
// between two sessions.
//
// Calls are bidirectional channels of AppMessages. The home checks that the
// relation proof presented by the caller binds exactly the caller and a
// profile it hosts, then hands the call to the callee's check-in stream for
// the application. Every channel is bounded: a slow reader stalls its writer.
//
// Node is the in-process implementation. Node.Connect authenticates a Signer
// with a challenge and returns a Home handle bound to it; package
// net/wamp exposes the same Node to remote profiles.
package home
