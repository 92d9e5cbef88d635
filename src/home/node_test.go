package home

import (
	"context"
	"errors"
	"testing"
	"time"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testTimeout = 5 * time.Second

func newTestNode(t *testing.T, opts Options) (*Node, signer.Signer) {
	homeSigner := signer.NewTestSigner("home")
	homeProfile, err := signer.Profile(homeSigner, identity.Home{Addrs: []string{"inmem://home"}})
	require.NoError(t, err)

	node, err := NewNode(homeSigner,
		homeProfile,
		store.NewInmemStore(),
		opts,
		common.NewTestEntry(t, logrus.WarnLevel))
	require.NoError(t, err)

	t.Cleanup(node.Shutdown)

	return node, homeSigner
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), testTimeout)
	t.Cleanup(cancel)
	return ctx
}

type member struct {
	signer  signer.Signer
	home    Home
	own     identity.OwnProfile
	session Session
}

func (m member) proof() identity.RelationProof {
	return m.own.Profile.HomeProofs()[0]
}

func newPersona(t *testing.T, s signer.Signer) identity.OwnProfile {
	p, err := signer.Profile(s, identity.Persona{})
	require.NoError(t, err)
	return identity.OwnProfile{Profile: p, PrivateData: []byte("private")}
}

// join registers and logs in a new persona.
func join(t *testing.T, node *Node, seed string) member {
	ctx := testContext(t)
	s := signer.NewTestSigner(seed)

	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	half, err := signer.NewHalfProof(s, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)

	own, err := h.Register(ctx, newPersona(t, s), half, nil)
	require.NoError(t, err)

	sess, err := h.Login(ctx, own.Profile.HomeProofs()[0])
	require.NoError(t, err)

	return member{signer: s, home: h, own: own, session: sess}
}

func relate(t *testing.T, a, b member) identity.RelationProof {
	half, err := signer.NewHalfProof(a.signer, identity.RelationTypeEnableCallsBetween, b.signer.ProfileID())
	require.NoError(t, err)
	proof, err := signer.Countersign(b.signer, half)
	require.NoError(t, err)
	return proof
}

func TestNewNodeRejectsPersona(t *testing.T) {
	s := signer.NewTestSigner("persona")
	p, err := signer.Profile(s, identity.Persona{})
	require.NoError(t, err)

	if _, err := NewNode(s, p, store.NewInmemStore(), Options{}, nil); err == nil {
		t.Fatal("a persona profile should not be accepted as a home")
	}
}

func TestRegisterAndLogin(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")

	proofs := alice.own.Profile.HomeProofs()
	require.Len(t, proofs, 1)

	home := node.Profile()
	assert.NoError(t, proofs[0].Validate(alice.own.Profile, home))
	assert.Equal(t, identity.RelationTypeHostedOnHome, proofs[0].RelationType)

	stored, err := node.LoadProfile(ctx, alice.own.ID())
	require.NoError(t, err)
	assert.Equal(t, alice.own.Profile, stored)

	claimed, err := alice.home.Claim(ctx, alice.own.ID())
	require.NoError(t, err)
	assert.Equal(t, []byte("private"), claimed.PrivateData)

	pong, err := alice.session.Ping(ctx, "hello")
	require.NoError(t, err)
	assert.Equal(t, "hello", pong)

	assert.Equal(t, "1", node.GetStats()["registrations"])
	assert.Equal(t, "1", node.GetStats()["live_sessions"])
}

func TestClaimOtherProfile(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	alice := join(t, node, "alice")
	bob := join(t, node, "bob")

	_, err := alice.home.Claim(testContext(t), bob.own.ID())
	if !errors.Is(err, common.ErrNotFound) {
		t.Fatalf("err should be ErrNotFound, not %v", err)
	}
}

func TestRegisterTwice(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")

	half, err := signer.NewHalfProof(alice.signer, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)

	own := newPersona(t, alice.signer)
	res, err := alice.home.Register(ctx, own, half, nil)
	if !errors.Is(err, common.ErrRegistrationFailed) {
		t.Fatalf("err should be ErrRegistrationFailed, not %v", err)
	}
	assert.Equal(t, own, res, "a failed registration should return the original profile")
}

func TestRegisterRejectsHome(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	s := signer.NewTestSigner("other home")
	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	p, err := signer.Profile(s, identity.Home{Addrs: []string{"inmem://other"}})
	require.NoError(t, err)
	half, err := signer.NewHalfProof(s, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)

	_, err = h.Register(ctx, identity.OwnProfile{Profile: p}, half, nil)
	if !errors.Is(err, common.ErrRegistrationFailed) {
		t.Fatalf("err should be ErrRegistrationFailed, not %v", err)
	}
}

func TestRegisterBadSignature(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	s := signer.NewTestSigner("alice")
	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	half, err := signer.NewHalfProof(s, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)
	half.Signature = append(identity.Signature(nil), half.Signature...)
	half.Signature[0] ^= 0xff

	_, err = h.Register(ctx, newPersona(t, s), half, nil)
	if !errors.Is(err, common.ErrRegistrationFailed) || !errors.Is(err, common.ErrInvalidProof) {
		t.Fatalf("err should be ErrRegistrationFailed and ErrInvalidProof, not %v", err)
	}
}

func TestRegisterInvitation(t *testing.T) {
	node, homeSigner := newTestNode(t, Options{RequireInvitation: true})
	ctx := testContext(t)

	s := signer.NewTestSigner("alice")
	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	half, err := signer.NewHalfProof(s, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)

	_, err = h.Register(ctx, newPersona(t, s), half, nil)
	require.ErrorIs(t, err, common.ErrRegistrationFailed)

	forged, err := signer.SignInvitation(s, []byte("voucher"))
	require.NoError(t, err)
	forged.HomeID = node.ID()
	_, err = h.Register(ctx, newPersona(t, s), half, &forged)
	require.ErrorIs(t, err, common.ErrRegistrationFailed)

	invite, err := signer.SignInvitation(homeSigner, []byte("voucher"))
	require.NoError(t, err)
	own, err := h.Register(ctx, newPersona(t, s), half, &invite)
	require.NoError(t, err)
	assert.Len(t, own.Profile.HomeProofs(), 1)
}

func TestLoginUnknownProfile(t *testing.T) {
	node, homeSigner := newTestNode(t, Options{})
	ctx := testContext(t)

	s := signer.NewTestSigner("mallory")
	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	// A valid proof for a profile that was never stored.
	half, err := signer.NewHalfProof(s, identity.RelationTypeHostedOnHome, node.ID())
	require.NoError(t, err)
	proof, err := signer.Countersign(homeSigner, half)
	require.NoError(t, err)

	_, err = h.Login(ctx, proof)
	require.ErrorIs(t, err, common.ErrLoginFailed)
}

func TestLoginForeignProof(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")

	s := signer.NewTestSigner("mallory")
	h, err := node.Connect(ctx, s)
	require.NoError(t, err)

	_, err = h.Login(ctx, alice.proof())
	require.ErrorIs(t, err, common.ErrLoginFailed)
}

func TestSecondLoginClosesFirst(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	events := alice.session.Events(ctx)

	second, err := alice.home.Login(ctx, alice.proof())
	require.NoError(t, err)

	select {
	case <-alice.session.Done():
	case <-ctx.Done():
		t.Fatal("first session should be closed")
	}

	_, err = alice.session.Ping(ctx, "x")
	require.ErrorIs(t, err, common.ErrSessionClosed)

	_, err = events.Next(ctx)
	require.ErrorIs(t, err, common.ErrSessionClosed)

	pong, err := second.Ping(ctx, "x")
	require.NoError(t, err)
	assert.Equal(t, "x", pong)
}

func TestAuthenticateNonceReuse(t *testing.T) {
	node, _ := newTestNode(t, Options{})

	s := signer.NewTestSigner("alice")
	nonce := node.Challenge()
	sig, err := s.Sign(AuthPayload(node.ID(), nonce))
	require.NoError(t, err)

	_, err = node.Authenticate(s.ProfileID(), s.PublicKey(), nonce, sig)
	require.NoError(t, err)

	_, err = node.Authenticate(s.ProfileID(), s.PublicKey(), nonce, sig)
	require.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestAuthenticateWrongKey(t *testing.T) {
	node, _ := newTestNode(t, Options{})

	alice := signer.NewTestSigner("alice")
	mallory := signer.NewTestSigner("mallory")

	nonce := node.Challenge()
	sig, err := mallory.Sign(AuthPayload(node.ID(), nonce))
	require.NoError(t, err)

	_, err = node.Authenticate(alice.ProfileID(), alice.PublicKey(), nonce, sig)
	require.ErrorIs(t, err, common.ErrInvalidProof)
}

func TestChallengesAreBounded(t *testing.T) {
	node, _ := newTestNode(t, Options{MaxChallenges: 8})
	s := signer.NewTestSigner("alice")

	first := node.Challenge()
	var last []byte
	for i := 0; i < 100; i++ {
		last = node.Challenge()
	}
	assert.Equal(t, 8, node.challenges.Len())

	sig, err := s.Sign(AuthPayload(node.ID(), first))
	require.NoError(t, err)
	_, err = node.Authenticate(s.ProfileID(), s.PublicKey(), first, sig)
	require.ErrorIs(t, err, common.ErrConnectionFailed)

	sig, err = s.Sign(AuthPayload(node.ID(), last))
	require.NoError(t, err)
	_, err = node.Authenticate(s.ProfileID(), s.PublicKey(), last, sig)
	require.NoError(t, err)
	assert.Equal(t, 7, node.challenges.Len())
}

func TestChallengeExpires(t *testing.T) {
	node, _ := newTestNode(t, Options{ChallengeTTL: time.Millisecond})
	s := signer.NewTestSigner("alice")

	nonce := node.Challenge()
	time.Sleep(10 * time.Millisecond)

	sig, err := s.Sign(AuthPayload(node.ID(), nonce))
	require.NoError(t, err)
	_, err = node.Authenticate(s.ProfileID(), s.PublicKey(), nonce, sig)
	require.ErrorIs(t, err, common.ErrConnectionFailed)
	assert.Equal(t, 0, node.challenges.Len())
}

func TestPairing(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")

	half, err := signer.NewHalfProof(alice.signer, identity.RelationTypeEnableCallsBetween, bob.own.ID())
	require.NoError(t, err)
	require.NoError(t, alice.home.PairRequest(ctx, half))

	bobEvents := bob.session.Events(ctx)
	ev, err := bobEvents.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventPairingRequest, ev.Kind)
	require.Equal(t, half, *ev.HalfProof)

	proof, err := signer.Countersign(bob.signer, *ev.HalfProof)
	require.NoError(t, err)
	require.NoError(t, bob.home.PairResponse(ctx, proof))

	// alice subscribes after the response was emitted.
	aliceEvents := alice.session.Events(ctx)
	ev, err = aliceEvents.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventPairingResponse, ev.Kind)
	assert.NoError(t, ev.Proof.Validate(alice.own.Profile, bob.own.Profile))

	ev, err = bobEvents.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventPairingResponse, ev.Kind)
}

func TestPairRequestUnknownTarget(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	stranger := signer.NewTestSigner("stranger")

	half, err := signer.NewHalfProof(alice.signer, identity.RelationTypeEnableCallsBetween, stranger.ProfileID())
	require.NoError(t, err)

	err = alice.home.PairRequest(ctx, half)
	require.ErrorIs(t, err, common.ErrPairingFailed)
}

func TestPairRequestSpoofed(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	carol := join(t, node, "carol")

	half, err := signer.NewHalfProof(carol.signer, identity.RelationTypeEnableCallsBetween, bob.own.ID())
	require.NoError(t, err)

	err = alice.home.PairRequest(ctx, half)
	require.ErrorIs(t, err, common.ErrInvalidProof)
}

func TestEventOrder(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")

	types := []string{"first", "second", "third"}
	for _, rt := range types {
		half, err := signer.NewHalfProof(alice.signer, rt, bob.own.ID())
		require.NoError(t, err)
		require.NoError(t, alice.home.PairRequest(ctx, half))
	}

	events := bob.session.Events(ctx)
	for _, rt := range types {
		ev, err := events.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, rt, ev.HalfProof.RelationType)
	}
}

func TestResubscribeKeepsEvents(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")

	first := bob.session.Events(ctx)
	second := bob.session.Events(ctx)

	_, err := first.Next(ctx)
	require.ErrorIs(t, err, common.ErrStreamCancelled)

	half, err := signer.NewHalfProof(alice.signer, identity.RelationTypeEnableCallsBetween, bob.own.ID())
	require.NoError(t, err)
	require.NoError(t, alice.home.PairRequest(ctx, half))

	ev, err := second.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, EventPairingRequest, ev.Kind)
}

func TestUpdate(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")

	updated := alice.own.Clone()
	updated.Profile.Persona.Data = []byte("about me")
	require.NoError(t, alice.session.Update(ctx, updated))

	p, err := node.LoadProfile(ctx, alice.own.ID())
	require.NoError(t, err)
	assert.Equal(t, []byte("about me"), p.Persona.Data)

	bob := join(t, node, "bob")
	err = alice.session.Update(ctx, bob.own)
	assert.Error(t, err, "a session should only update its own profile")
}

func TestUnregister(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")

	next := signer.NewTestSigner("next home")
	nextHome, err := signer.Profile(next, identity.Home{Addrs: []string{"inmem://next"}})
	require.NoError(t, err)

	require.NoError(t, alice.session.Unregister(ctx, &nextHome))

	select {
	case <-alice.session.Done():
	default:
		t.Fatal("session should be closed after Unregister")
	}

	_, err = node.LoadProfile(ctx, alice.own.ID())
	require.ErrorIs(t, err, common.ErrNotFound)

	redirect, err := node.Redirect(alice.own.ID())
	require.NoError(t, err)
	assert.Equal(t, nextHome.ID, redirect.ID)

	_, err = alice.home.Login(ctx, alice.proof())
	require.ErrorIs(t, err, common.ErrLoginFailed)
}

func TestShutdown(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	node.Shutdown()

	select {
	case <-alice.session.Done():
	default:
		t.Fatal("sessions should be closed by Shutdown")
	}

	_, err := node.Connect(ctx, alice.signer)
	require.ErrorIs(t, err, common.ErrConnectionFailed)
}

func TestPairRequestsAreBounded(t *testing.T) {
	node, _ := newTestNode(t, Options{MaxPendingEvents: 3})
	ctx := testContext(t)

	bob := join(t, node, "bob")

	request := func(seed string) error {
		s := signer.NewTestSigner(seed)
		h, err := node.Connect(ctx, s)
		require.NoError(t, err)
		half, err := signer.NewHalfProof(s, identity.RelationTypeEnableCallsBetween, bob.own.ID())
		require.NoError(t, err)
		return h.PairRequest(ctx, half)
	}

	// Repeating a request does not queue it twice.
	for i := 0; i < 10; i++ {
		require.NoError(t, request("stranger-0"))
	}
	assert.Equal(t, 1, node.queue(bob.own.ID()).Len())

	require.NoError(t, request("stranger-1"))
	require.NoError(t, request("stranger-2"))
	require.ErrorIs(t, request("stranger-3"), common.ErrPairingFailed)
	assert.Equal(t, 3, node.queue(bob.own.ID()).Len())

	// Reading the events makes room again.
	events := bob.session.Events(ctx)
	defer events.Cancel()
	for i := 0; i < 3; i++ {
		ev, err := events.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, EventPairingRequest, ev.Kind)
	}
	require.NoError(t, request("stranger-3"))
}
