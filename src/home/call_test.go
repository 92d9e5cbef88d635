package home

import (
	"context"
	"errors"
	"io"
	"testing"
	"time"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

const testApp = "chat"

func TestCallRoundTrip(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	proof := relate(t, alice, bob)

	calls := bob.session.CheckinApp(ctx, testApp)

	errCh := make(chan error, 1)
	go func() {
		call, err := calls.Next(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if string(call.InitPayload) != "hello" {
			errCh <- errors.New("unexpected init payload")
			return
		}
		d := call.Accept()
		msg, err := d.Stream.Next(ctx)
		if err != nil {
			errCh <- err
			return
		}
		if string(msg) != "ping" {
			errCh <- errors.New("unexpected message " + string(msg))
			return
		}
		errCh <- d.Sink.Send(ctx, AppMessage("pong"))
		d.Sink.Close()
	}()

	reverse, replies := NewPipe(DefaultChannelCapacity)
	sink, err := alice.home.Call(ctx, proof, testApp, AppMessage("hello"), reverse)
	require.NoError(t, err)

	require.NoError(t, sink.Send(ctx, AppMessage("ping")))

	msg, err := replies.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, AppMessage("pong"), msg)

	require.NoError(t, <-errCh)

	_, err = replies.Next(ctx)
	assert.Equal(t, io.EOF, err)

	assert.Equal(t, "1", node.GetStats()["calls_routed"])
}

func TestCallDeclined(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	proof := relate(t, alice, bob)

	calls := bob.session.CheckinApp(ctx, testApp)
	go func() {
		call, err := calls.Next(ctx)
		if err == nil {
			call.Decline()
		}
	}()

	reverse, replies := NewPipe(DefaultChannelCapacity)
	sink, err := alice.home.Call(ctx, proof, testApp, nil, reverse)
	require.ErrorIs(t, err, common.ErrCallRefused)
	assert.Nil(t, sink)

	_, err = replies.Next(ctx)
	assert.Equal(t, io.EOF, err, "the reverse channel should be closed")
}

func TestCallNotCheckedIn(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	proof := relate(t, alice, bob)

	_, err := alice.home.Call(ctx, proof, testApp, nil, nil)
	require.ErrorIs(t, err, common.ErrCallRefused)

	ev, err := bob.session.Events(ctx).Next(ctx)
	require.NoError(t, err)
	require.Equal(t, EventIncomingCall, ev.Kind)
	assert.Equal(t, testApp, ev.Call.AppID)
	assert.True(t, ev.Call.Caller.Equal(alice.own.ID()))
}

func TestCallAfterCheckout(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	proof := relate(t, alice, bob)

	checkinCtx, cancel := context.WithCancel(ctx)
	calls := bob.session.CheckinApp(checkinCtx, testApp)
	cancel()

	select {
	case <-calls.Cancelled():
	case <-ctx.Done():
		t.Fatal("check-in should be cancelled with its context")
	}

	_, err := alice.home.Call(ctx, proof, testApp, nil, nil)
	require.ErrorIs(t, err, common.ErrCallRefused)
}

func TestCallWithoutRelation(t *testing.T) {
	node, _ := newTestNode(t, Options{})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	carol := join(t, node, "carol")

	bob.session.CheckinApp(ctx, testApp)

	// A proof between bob and carol does not let alice call.
	proof := relate(t, bob, carol)
	_, err := alice.home.Call(ctx, proof, testApp, nil, nil)
	require.ErrorIs(t, err, common.ErrInvalidProof)

	// Neither does a hosted-on-home proof.
	_, err = alice.home.Call(ctx, alice.proof(), testApp, nil, nil)
	require.ErrorIs(t, err, common.ErrInvalidProof)
}

func TestCallBackpressure(t *testing.T) {
	node, _ := newTestNode(t, Options{ChannelCapacity: 1})
	ctx := testContext(t)

	alice := join(t, node, "alice")
	bob := join(t, node, "bob")
	proof := relate(t, alice, bob)

	calls := bob.session.CheckinApp(ctx, testApp)
	accepted := make(chan Duplex, 1)
	go func() {
		call, err := calls.Next(ctx)
		if err == nil {
			accepted <- call.Accept()
		}
	}()

	sink, err := alice.home.Call(ctx, proof, testApp, nil, nil)
	require.NoError(t, err)
	d := <-accepted
	assert.Nil(t, d.Sink, "no reverse channel was provided")

	require.NoError(t, sink.Send(ctx, AppMessage("1")))

	sendCtx, cancel := context.WithTimeout(ctx, 50*time.Millisecond)
	defer cancel()
	err = sink.Send(sendCtx, AppMessage("2"))
	require.ErrorIs(t, err, context.DeadlineExceeded, "a full pipe should block the sender")

	msg, err := d.Stream.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, AppMessage("1"), msg)

	require.NoError(t, sink.Send(ctx, AppMessage("2")))

	d.Stream.Close()
	err = sink.Send(ctx, AppMessage("3"))
	require.ErrorIs(t, err, ErrCallClosed)
}
