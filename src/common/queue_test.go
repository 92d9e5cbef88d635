package common

import (
	"context"
	"testing"

	"github.com/stretchr/testify/assert"
	"github.com/stretchr/testify/require"
)

func TestQueuePumpReplacesSubscriber(t *testing.T) {
	ctx := context.Background()
	q := NewQueue[int]()
	for i := 0; i < 5; i++ {
		q.Push(i)
	}

	first := NewStream[int](0)
	done := make(chan error, 1)
	go func() { done <- q.PumpTo(ctx, first) }()

	for i := 0; i < 2; i++ {
		v, err := first.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}

	first.Cancel()
	assert.ErrorIs(t, <-done, ErrStreamCancelled)

	second := NewStream[int](0)
	go q.PumpTo(ctx, second)
	defer second.Cancel()

	q.Push(5)

	for i := 2; i < 6; i++ {
		v, err := second.Next(ctx)
		require.NoError(t, err)
		assert.Equal(t, i, v)
	}
}

func TestQueueDrain(t *testing.T) {
	q := NewQueue[string]()
	q.Push("a")
	q.Push("b")

	assert.Equal(t, 2, q.Len())
	assert.Equal(t, []string{"a", "b"}, q.Drain())
	assert.Equal(t, 0, q.Len())
}

func TestQueuePop(t *testing.T) {
	ctx, cancel := context.WithCancel(context.Background())
	q := NewQueue[string]()

	got := make(chan string, 1)
	go func() {
		v, err := q.Pop(ctx)
		if err == nil {
			got <- v
		}
	}()

	q.Push("a")
	assert.Equal(t, "a", <-got)
	assert.Equal(t, 0, q.Len())

	cancel()
	_, err := q.Pop(ctx)
	assert.ErrorIs(t, err, context.Canceled)
}

func TestQueueOffer(t *testing.T) {
	q := NewQueue[string]()
	same := func(v string) func(string) bool {
		return func(queued string) bool { return queued == v }
	}

	added, err := q.Offer("a", 2, same("a"))
	require.NoError(t, err)
	assert.True(t, added)

	added, err = q.Offer("a", 2, same("a"))
	require.NoError(t, err)
	assert.False(t, added)

	added, err = q.Offer("b", 2, same("b"))
	require.NoError(t, err)
	assert.True(t, added)

	_, err = q.Offer("c", 2, same("c"))
	assert.ErrorIs(t, err, ErrQueueFull)

	// A duplicate of a queued item is not an error, even at the limit.
	added, err = q.Offer("b", 2, same("b"))
	require.NoError(t, err)
	assert.False(t, added)

	assert.Equal(t, []string{"a", "b"}, q.Drain())

	added, err = q.Offer("c", 0, nil)
	require.NoError(t, err)
	assert.True(t, added)
}
