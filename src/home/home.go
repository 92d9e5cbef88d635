package home

import (
	"context"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// DefaultChannelCapacity is the buffer size of call and subscription
// channels.
const DefaultChannelCapacity = 16

// Home is the capability of a hosting node, as seen by one authenticated
// profile.
type Home interface {
	// Claim returns the stored OwnProfile of id, including the private data.
	Claim(ctx context.Context, id identity.ProfileID) (identity.OwnProfile, error)

	// Register enrolls a Persona profile. On success the returned profile
	// carries a new hosted-on-home proof. On failure the original profile is
	// returned, untouched, with the error.
	Register(ctx context.Context, own identity.OwnProfile, half identity.RelationHalfProof, invite *identity.HomeInvitation) (identity.OwnProfile, error)

	// Login opens a Session with a hosted-on-home proof. It closes any
	// previous Session of the same profile.
	Login(ctx context.Context, proof identity.RelationProof) (Session, error)

	// PairRequest is sent to the target's home.
	PairRequest(ctx context.Context, half identity.RelationHalfProof) error

	// PairResponse is sent to the initiator's home once the target
	// countersigned, and to the target's own home.
	PairResponse(ctx context.Context, proof identity.RelationProof) error

	// Call opens a call with the peer named in proof. reverse, if not nil,
	// receives what the callee sends back. The returned sink carries what the
	// caller sends. A declined call fails with common.ErrCallRefused.
	Call(ctx context.Context, proof identity.RelationProof, appID string, init AppMessage, reverse *AppMsgSink) (*AppMsgSink, error)
}

// Session is returned by a successful Login.
type Session interface {
	// ProfileID returns the logged-in profile.
	ProfileID() identity.ProfileID

	// Update creates or replaces the stored profile.
	Update(ctx context.Context, own identity.OwnProfile) error

	// Unregister leaves the home, optionally naming the successor home. The
	// session is closed afterwards whatever the outcome.
	Unregister(ctx context.Context, newHome *identity.Profile) error

	// Events subscribes to the profile's events. There is one subscriber per
	// session: a new subscription cancels the previous one. Cancelling the
	// stream, or ctx, does not close the session.
	Events(ctx context.Context) *common.Stream[ProfileEvent]

	// CheckinApp subscribes to incoming calls for appID, independently of
	// Events.
	CheckinApp(ctx context.Context, appID string) *common.Stream[*IncomingCall]

	// Ping echoes txt.
	Ping(ctx context.Context, txt string) (string, error)

	// Close logs out.
	Close() error

	// Done is closed when the session ends, for whatever reason.
	Done() <-chan struct{}
}

// EventKind ...
type EventKind int

const (
	// EventPairingRequest carries a half-proof from a profile that wants to
	// pair.
	EventPairingRequest EventKind = iota + 1

	// EventPairingResponse carries a completed relation proof.
	EventPairingResponse

	// EventIncomingCall notifies a profile that somebody tried to call an
	// application it has not checked in.
	EventIncomingCall
)

// String ...
func (k EventKind) String() string {
	switch k {
	case EventPairingRequest:
		return "PairingRequest"
	case EventPairingResponse:
		return "PairingResponse"
	case EventIncomingCall:
		return "IncomingCall"
	default:
		return "Unknown"
	}
}

// CallNotice describes a call that could not be delivered.
type CallNotice struct {
	AppID  string             `json:"app_id"`
	Caller identity.ProfileID `json:"caller"`
}

// ProfileEvent is an asynchronous notification from a home to a profile.
// Exactly one of the pointer fields is set, according to Kind.
type ProfileEvent struct {
	Kind      EventKind                   `json:"kind"`
	HalfProof *identity.RelationHalfProof `json:"half_proof,omitempty"`
	Proof     *identity.RelationProof     `json:"proof,omitempty"`
	Call      *CallNotice                 `json:"call,omitempty"`
}

// NewPairingRequestEvent ...
func NewPairingRequestEvent(half identity.RelationHalfProof) ProfileEvent {
	return ProfileEvent{Kind: EventPairingRequest, HalfProof: &half}
}

// NewPairingResponseEvent ...
func NewPairingResponseEvent(proof identity.RelationProof) ProfileEvent {
	return ProfileEvent{Kind: EventPairingResponse, Proof: &proof}
}

// NewIncomingCallEvent ...
func NewIncomingCallEvent(appID string, caller identity.ProfileID) ProfileEvent {
	return ProfileEvent{Kind: EventIncomingCall, Call: &CallNotice{AppID: appID, Caller: caller}}
}
