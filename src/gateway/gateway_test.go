package gateway

import (
	"context"
	"io"
	"sync"
	"testing"
	"time"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

type testNet struct {
	node      *home.Node
	repo      *profile.InmemRepo
	connector *connector.SharedConnector
}

func newTestNet(t *testing.T) *testNet {
	homeSigner := signer.NewTestSigner("home")
	homeProfile, err := signer.Profile(homeSigner, identity.Home{Addrs: []string{"inmem://home"}})
	require.NoError(t, err)

	node, err := home.NewNode(homeSigner,
		homeProfile,
		store.NewInmemStore(),
		home.Options{},
		common.NewTestEntry(t, logrus.WarnLevel))
	require.NoError(t, err)
	t.Cleanup(node.Shutdown)

	return &testNet{
		node:      node,
		repo:      profile.NewInmemRepo(homeProfile),
		connector: connector.New(common.NewTestEntry(t, logrus.WarnLevel), connector.NewLocalTransport(node)),
	}
}

func (n *testNet) gateway(t *testing.T, seed string) *Gateway {
	s := signer.NewTestSigner(seed)
	p, err := signer.Profile(s, identity.Persona{})
	require.NoError(t, err)
	require.NoError(t, n.repo.Set(p))

	g, err := New(identity.OwnProfile{Profile: p, PrivateData: []byte(seed)},
		s,
		n.repo,
		n.connector,
		common.NewTestEntry(t, logrus.WarnLevel))
	require.NoError(t, err)
	return g
}

// member returns a registered gateway.
func (n *testNet) member(t *testing.T, seed string) *Gateway {
	g := n.gateway(t, seed)
	_, err := g.RegisterHome(testContext(t), n.node.ID(), nil)
	require.NoError(t, err)
	return g
}

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

func TestNewWrongSigner(t *testing.T) {
	n := newTestNet(t)
	p, err := signer.Profile(signer.NewTestSigner("alice"), identity.Persona{})
	require.NoError(t, err)

	_, err = New(identity.OwnProfile{Profile: p}, signer.NewTestSigner("bob"), n.repo, n.connector, nil)
	if err == nil {
		t.Fatal("a gateway needs the signer of its profile")
	}
}

func TestLoginWithoutHome(t *testing.T) {
	n := newTestNet(t)
	g := n.gateway(t, "alice")

	_, err := g.Login(testContext(t))
	require.ErrorIs(t, err, common.ErrLoginFailed)
}

func TestRegisterPublishesProfile(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	require.Len(t, g.Profile().Profile.HomeProofs(), 1)

	p, err := n.repo.Load(ctx, g.SelectedProfile())
	require.NoError(t, err)
	assert.Len(t, p.HomeProofs(), 1)

	homeID, err := HomeOf(p)
	require.NoError(t, err)
	assert.True(t, homeID.Equal(n.node.ID()))
}

func TestRegisterUnknownHome(t *testing.T) {
	n := newTestNet(t)
	g := n.gateway(t, "alice")

	before := g.Profile()
	own, err := g.RegisterHome(testContext(t), signer.NewTestSigner("nowhere").ProfileID(), nil)
	require.ErrorIs(t, err, common.ErrNotFound)
	assert.Equal(t, before, own)
}

func TestLoginCached(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	s1, err := g.Login(ctx)
	require.NoError(t, err)
	s2, err := g.Login(ctx)
	require.NoError(t, err)

	assert.True(t, s1 == s2, "a live session should be reused")
	assert.Equal(t, "1", n.node.GetStats()["logins"])
}

func TestLoginCoalesced(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	const count = 8
	sessions := make([]home.Session, count)
	var wg sync.WaitGroup
	for i := 0; i < count; i++ {
		wg.Add(1)
		go func(i int) {
			defer wg.Done()
			s, err := g.Login(ctx)
			if err != nil {
				t.Error(err)
				return
			}
			sessions[i] = s
		}(i)
	}
	wg.Wait()

	for i := 1; i < count; i++ {
		if sessions[i] != sessions[0] {
			t.Fatalf("session %d differs from session 0", i)
		}
	}
	assert.Equal(t, "1", n.node.GetStats()["logins"])
}

func TestLoginAfterLogout(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	s1, err := g.Login(ctx)
	require.NoError(t, err)
	require.NoError(t, g.Logout())

	s2, err := g.Login(ctx)
	require.NoError(t, err)
	assert.False(t, s1 == s2)

	_, err = s1.Ping(ctx, "x")
	require.ErrorIs(t, err, common.ErrSessionClosed)
}

func TestClaim(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	own, err := g.Claim(ctx, n.node.ID())
	require.NoError(t, err)
	assert.Equal(t, []byte("alice"), own.PrivateData)
}

func TestUpdate(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	own := g.Profile()
	own.Profile.Persona.Data = []byte("status")
	require.NoError(t, g.Update(ctx, own))

	stored, err := n.node.LoadProfile(ctx, g.SelectedProfile())
	require.NoError(t, err)
	assert.Equal(t, []byte("status"), stored.Persona.Data)
}

func TestUnregister(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	g := n.member(t, "alice")

	require.NoError(t, g.Unregister(ctx, nil))

	_, err := n.node.LoadProfile(ctx, g.SelectedProfile())
	require.ErrorIs(t, err, common.ErrNotFound)

	_, err = g.Login(ctx)
	require.ErrorIs(t, err, common.ErrLoginFailed)
}

// pair makes alice and bob related and returns the proof.
func pair(t *testing.T, alice, bob *Gateway) identity.RelationProof {
	ctx := testContext(t)

	half, err := alice.PairRequest(ctx, identity.RelationTypeEnableCallsBetween, bob.SelectedProfile())
	require.NoError(t, err)

	bobSession, err := bob.Login(ctx)
	require.NoError(t, err)
	bobEvents := bobSession.Events(ctx)
	defer bobEvents.Cancel()

	ev, err := bobEvents.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, home.EventPairingRequest, ev.Kind)
	require.Equal(t, half, *ev.HalfProof)

	proof, err := bob.AcceptPairing(ctx, *ev.HalfProof)
	require.NoError(t, err)

	aliceSession, err := alice.Login(ctx)
	require.NoError(t, err)
	aliceEvents := aliceSession.Events(ctx)
	defer aliceEvents.Cancel()

	ev, err = aliceEvents.Next(ctx)
	require.NoError(t, err)
	require.Equal(t, home.EventPairingResponse, ev.Kind)
	require.NoError(t, alice.ProcessEvent(ctx, ev))

	return proof
}

func TestPairing(t *testing.T) {
	n := newTestNet(t)
	alice := n.member(t, "alice")
	bob := n.member(t, "bob")

	proof := pair(t, alice, bob)

	rel, err := alice.Relation(bob.SelectedProfile())
	require.NoError(t, err)
	assert.Equal(t, proof, rel.Proof)
	assert.True(t, rel.Peer.ID.Equal(bob.SelectedProfile()))

	rel, err = bob.Relation(alice.SelectedProfile())
	require.NoError(t, err)
	assert.True(t, rel.Peer.ID.Equal(alice.SelectedProfile()))

	assert.Len(t, alice.Relations(), 1)
}

func TestRelationMissing(t *testing.T) {
	n := newTestNet(t)
	alice := n.member(t, "alice")

	_, err := alice.Relation(signer.NewTestSigner("bob").ProfileID())
	require.ErrorIs(t, err, common.ErrPairingFailed)
}

func TestCall(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	alice := n.member(t, "alice")
	bob := n.member(t, "bob")

	proof := pair(t, alice, bob)

	bobSession, err := bob.Login(ctx)
	require.NoError(t, err)
	calls := bobSession.CheckinApp(ctx, "chat")

	go func() {
		call, err := calls.Next(ctx)
		if err != nil {
			return
		}
		d := call.Accept()
		d.Sink.Send(ctx, call.InitPayload)
		d.Sink.Close()
	}()

	reverse, replies := home.NewPipe(home.DefaultChannelCapacity)
	sink, err := alice.Call(ctx, proof, "chat", home.AppMessage("ping"), reverse)
	require.NoError(t, err)
	defer sink.Close()

	msg, err := replies.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, home.AppMessage("ping"), msg)
}

func TestCallForeignProof(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	alice := n.member(t, "alice")
	bob := n.member(t, "bob")
	carol := n.member(t, "carol")

	proof := pair(t, bob, carol)

	reverse, replies := home.NewPipe(home.DefaultChannelCapacity)
	_, err := alice.Call(ctx, proof, "chat", home.AppMessage("ping"), reverse)
	require.ErrorIs(t, err, common.ErrInvalidProof)

	_, err = replies.Next(ctx)
	assert.ErrorIs(t, err, io.EOF)
}

func TestFactory(t *testing.T) {
	n := newTestNet(t)
	ctx := testContext(t)
	alice := n.member(t, "alice")

	f := &Factory{
		Signers:   signer.NewRegistry(signer.NewTestSigner("alice")),
		Repo:      n.repo,
		Connector: n.connector,
		Logger:    common.NewTestEntry(t, logrus.WarnLevel),
	}

	g, err := f.Gateway(ctx, alice.SelectedProfile())
	require.NoError(t, err)
	assert.Len(t, g.Profile().Profile.HomeProofs(), 1)

	_, err = f.Gateway(ctx, signer.NewTestSigner("bob").ProfileID())
	require.ErrorIs(t, err, common.ErrNotFound)
}
