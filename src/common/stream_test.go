package common

import (
	"context"
	"io"
	"testing"
	"time"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestStreamOrderAndEOF(t *testing.T) {
	ctx := context.Background()
	s := NewStream[int](4)

	for i := 0; i < 4; i++ {
		require.NoError(t, s.Send(ctx, i))
	}
	s.Close()

	for i := 0; i < 4; i++ {
		v, err := s.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	_, err := s.Next(ctx)
	assert.Equal(t, io.EOF, err)

	assert.ErrorIs(t, s.Send(ctx, 5), ErrStreamClosed)
}

func TestStreamBackpressure(t *testing.T) {
	ctx := context.Background()
	s := NewStream[string](1)

	require.NoError(t, s.Send(ctx, "first"))

	sent := make(chan error, 1)
	go func() {
		sent <- s.Send(ctx, "second")
	}()

	select {
	case <-sent:
		t.Fatal("Send should block while the stream is full")
	case <-time.After(50 * time.Millisecond):
	}

	v, err := s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "first", v)

	select {
	case err := <-sent:
		require.NoError(t, err)
	case <-time.After(time.Second):
		t.Fatal("Send should resume after a read")
	}

	v, err = s.Next(ctx)
	require.NoError(t, err)
	assert.Equal(t, "second", v)
}

func TestStreamCancelIsIdempotent(t *testing.T) {
	s := NewStream[int](0)

	calls := 0
	s.OnCancel(func() { calls++ })

	blocked := make(chan error, 1)
	go func() {
		blocked <- s.Send(context.Background(), 1)
	}()

	s.Cancel()
	s.Cancel()

	assert.Equal(t, 1, calls)
	assert.ErrorIs(t, <-blocked, ErrStreamCancelled)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrStreamCancelled)

	late := false
	s.OnCancel(func() { late = true })
	assert.True(t, late, "hooks registered after cancel run immediately")
}

func TestStreamBindContext(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	s := NewStream[int](0).BindContext(ctx)

	cancel()

	select {
	case <-s.Cancelled():
	case <-time.After(time.Second):
		t.Fatal("stream should be cancelled with its context")
	}
}

func TestStreamCloseWithError(t *testing.T) {
	s := ClosedStream[int](ErrUnimplemented)

	_, err := s.Next(context.Background())
	assert.ErrorIs(t, err, ErrUnimplemented)
}
