package dapp

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/gateway"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testApp = "chat"

func testContext(t *testing.T) context.Context {
	ctx, cancel := context.WithTimeout(context.Background(), 5*time.Second)
	t.Cleanup(cancel)
	return ctx
}

// newPair returns the gateways of two registered profiles hosted on the same
// home, and the proof of their relation.
func newPair(t *testing.T) (*gateway.Gateway, *gateway.Gateway, identity.RelationProof) {
	ctx := testContext(t)
	logger := common.NewTestEntry(t, logrus.WarnLevel)

	homeSigner := signer.NewTestSigner("home")
	homeProfile, err := signer.Profile(homeSigner, identity.Home{Addrs: []string{"inmem://home"}})
	require.NoError(t, err)

	node, err := home.NewNode(homeSigner, homeProfile, store.NewInmemStore(), home.Options{}, logger)
	require.NoError(t, err)
	t.Cleanup(node.Shutdown)

	repo := profile.NewInmemRepo(homeProfile)
	conn := connector.New(logger, connector.NewLocalTransport(node))

	member := func(seed string) *gateway.Gateway {
		s := signer.NewTestSigner(seed)
		p, err := signer.Profile(s, identity.Persona{})
		require.NoError(t, err)
		require.NoError(t, repo.Set(p))

		g, err := gateway.New(identity.OwnProfile{Profile: p}, s, repo, conn, logger)
		require.NoError(t, err)
		_, err = g.RegisterHome(ctx, node.ID(), nil)
		require.NoError(t, err)
		return g
	}

	alice := member("alice")
	bob := member("bob")

	half, err := signer.NewHalfProof(signer.NewTestSigner("alice"), identity.RelationTypeEnableCallsBetween, bob.SelectedProfile())
	require.NoError(t, err)
	proof, err := signer.Countersign(signer.NewTestSigner("bob"), half)
	require.NoError(t, err)

	_, err = alice.AddRelation(ctx, proof)
	require.NoError(t, err)
	_, err = bob.AddRelation(ctx, proof)
	require.NoError(t, err)

	return alice, bob, proof
}

func TestCallRoundTrip(t *testing.T) {
	ctx := testContext(t)
	alice, bob, _ := newPair(t)

	aliceApp := Connect(alice, testApp, nil, nil, common.NewTestEntry(t, logrus.WarnLevel))
	bobApp := Connect(bob, testApp, nil, nil, common.NewTestEntry(t, logrus.WarnLevel))

	calls, err := bobApp.Checkin(ctx)
	require.NoError(t, err)

	done := make(chan error, 1)
	go func() {
		call, err := calls.Next(ctx)
		if err != nil {
			done <- err
			return
		}
		d := call.Accept()
		msg, err := d.Stream.Next(ctx)
		if err != nil {
			done <- err
			return
		}
		if string(msg) != "ping" {
			done <- io.ErrUnexpectedEOF
			return
		}
		done <- d.Sink.Send(ctx, home.AppMessage("pong"))
		d.Sink.Close()
	}()

	d, err := aliceApp.Call(ctx, bob.SelectedProfile(), nil)
	require.NoError(t, err)
	require.NoError(t, d.Sink.Send(ctx, home.AppMessage("ping")))

	msg, err := d.Stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, home.AppMessage("pong"), msg)
	require.NoError(t, <-done)

	_, err = d.Stream.Next(ctx)
	assert.Equal(t, io.EOF, err)
}

func TestCallWithoutRelation(t *testing.T) {
	ctx := testContext(t)
	alice, _, _ := newPair(t)

	app := Connect(alice, testApp, nil, nil, nil)
	_, err := app.Call(ctx, signer.NewTestSigner("carol").ProfileID(), nil)
	require.ErrorIs(t, err, common.ErrPairingFailed)
	assert.Contains(t, err.Error(), "no appropriate relation found")
}

func TestCallDeclined(t *testing.T) {
	ctx := testContext(t)
	alice, bob, _ := newPair(t)

	calls, err := Connect(bob, testApp, nil, nil, nil).Checkin(ctx)
	require.NoError(t, err)
	go func() {
		if call, err := calls.Next(ctx); err == nil {
			call.Decline()
		}
	}()

	_, err = Connect(alice, testApp, nil, nil, nil).Call(ctx, bob.SelectedProfile(), nil)
	require.ErrorIs(t, err, common.ErrCallRefused)
}

func TestContacts(t *testing.T) {
	alice, bob, proof := newPair(t)

	carol := signer.NewTestSigner("carol")
	carolProfile, err := signer.Profile(carol, identity.Persona{})
	require.NoError(t, err)

	contacts := NewInmemContacts(identity.Relation{Peer: carolProfile, Proof: proof})

	app := Connect(alice, testApp, contacts, nil, nil)
	rels := app.Contacts()
	require.Len(t, rels, 2)
	assert.True(t, rels[0].Peer.ID.Equal(carol.ProfileID()))
	assert.True(t, rels[1].Peer.ID.Equal(bob.SelectedProfile()))

	assert.True(t, app.SelectedProfile().Equal(alice.SelectedProfile()))
}

func TestAppStorage(t *testing.T) {
	alice, _, _ := newPair(t)

	_, err := Connect(alice, testApp, nil, nil, nil).AppStorage()
	require.ErrorIs(t, err, common.ErrUnimplemented)

	factory := store.InmemKVFactory()
	kv, err := Connect(alice, testApp, nil, factory, nil).AppStorage()
	require.NoError(t, err)
	require.NoError(t, kv.Set("k", []byte("v")))

	other, err := Connect(alice, "other", nil, factory, nil).AppStorage()
	require.NoError(t, err)
	_, err = other.Get("k")
	assert.True(t, common.IsStore(err, common.KeyNotFound), "applications should not share storage")
}
