package home

import (
	"context"

	"github.com/mosaicnetworks/homenode/src/identity"
)

// handle is the Home of one authenticated caller on a local Node.
type handle struct {
	node   *Node
	caller Caller
}

func (h *handle) Claim(ctx context.Context, id identity.ProfileID) (identity.OwnProfile, error) {
	return h.node.claim(ctx, h.caller, id)
}

func (h *handle) Register(ctx context.Context,
	own identity.OwnProfile,
	half identity.RelationHalfProof,
	invite *identity.HomeInvitation) (identity.OwnProfile, error) {
	return h.node.register(ctx, h.caller, own, half, invite)
}

func (h *handle) Login(ctx context.Context, proof identity.RelationProof) (Session, error) {
	return h.node.login(ctx, h.caller, proof)
}

func (h *handle) PairRequest(ctx context.Context, half identity.RelationHalfProof) error {
	return h.node.pairRequest(ctx, h.caller, half)
}

func (h *handle) PairResponse(ctx context.Context, proof identity.RelationProof) error {
	return h.node.pairResponse(ctx, h.caller, proof)
}

func (h *handle) Call(ctx context.Context,
	proof identity.RelationProof,
	appID string,
	init AppMessage,
	reverse *AppMsgSink) (*AppMsgSink, error) {
	return h.node.call(ctx, h.caller, proof, appID, init, reverse)
}
