package common

import (
	"context"
	"errors"
	"sync"
)

// ErrQueueFull is returned by Offer when the queue is at its limit.
var ErrQueueFull = errors.New("queue full")

// Queue is an unbounded FIFO. It holds items for a consumer that may come and
// go: PumpTo moves items into a Stream one at a time and only removes an item
// after the Stream accepted it, so an item is never delivered twice and never
// lost when a subscriber is replaced.
type Queue[T any] struct {
	mu     sync.Mutex
	items  []T
	notify chan struct{}

	pumpMu sync.Mutex
}

// NewQueue ...
func NewQueue[T any]() *Queue[T] {
	return &Queue[T]{
		notify: make(chan struct{}),
	}
}

// Push appends v and wakes up any waiting pump.
func (q *Queue[T]) Push(v T) {
	q.mu.Lock()
	q.items = append(q.items, v)
	close(q.notify)
	q.notify = make(chan struct{})
	q.mu.Unlock()
}

// Offer appends v unless duplicate reports true for an item already queued,
// in which case it returns false. It fails with ErrQueueFull when limit items
// are queued. A limit of zero or less means no limit.
func (q *Queue[T]) Offer(v T, limit int, duplicate func(queued T) bool) (bool, error) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if duplicate != nil {
		for _, item := range q.items {
			if duplicate(item) {
				return false, nil
			}
		}
	}
	if limit > 0 && len(q.items) >= limit {
		return false, ErrQueueFull
	}
	q.items = append(q.items, v)
	close(q.notify)
	q.notify = make(chan struct{})
	return true, nil
}

// Len ...
func (q *Queue[T]) Len() int {
	q.mu.Lock()
	defer q.mu.Unlock()
	return len(q.items)
}

// peek returns the head of the queue, or a channel that is closed on the next
// Push when the queue is empty.
func (q *Queue[T]) peek() (T, bool, <-chan struct{}) {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) == 0 {
		var zero T
		return zero, false, q.notify
	}
	return q.items[0], true, nil
}

func (q *Queue[T]) pop() {
	q.mu.Lock()
	defer q.mu.Unlock()
	if len(q.items) > 0 {
		var zero T
		q.items[0] = zero
		q.items = q.items[1:]
	}
}

// Pop removes and returns the head of the queue, waiting for an item until
// ctx is done.
func (q *Queue[T]) Pop(ctx context.Context) (T, error) {
	for {
		q.pumpMu.Lock()
		v, ok, wait := q.peek()
		if ok {
			q.pop()
			q.pumpMu.Unlock()
			return v, nil
		}
		q.pumpMu.Unlock()

		select {
		case <-wait:
		case <-ctx.Done():
			var zero T
			return zero, ctx.Err()
		}
	}
}

// Drain removes and returns every queued item. It waits for an in-flight
// PumpTo step, so callers should cancel the target Stream first.
func (q *Queue[T]) Drain() []T {
	q.pumpMu.Lock()
	defer q.pumpMu.Unlock()

	q.mu.Lock()
	defer q.mu.Unlock()
	items := q.items
	q.items = nil
	return items
}

// PumpTo forwards items to s, in order, until s is cancelled or closed, or ctx
// is done. Only one pump makes progress at a time.
func (q *Queue[T]) PumpTo(ctx context.Context, s *Stream[T]) error {
	for {
		q.pumpMu.Lock()
		v, ok, wait := q.peek()
		if ok {
			err := s.Send(ctx, v)
			if err == nil {
				q.pop()
			}
			q.pumpMu.Unlock()
			if err != nil {
				return err
			}
			continue
		}
		q.pumpMu.Unlock()

		select {
		case <-wait:
		case <-s.Cancelled():
			return ErrStreamCancelled
		case <-s.Closed():
			return ErrStreamClosed
		case <-ctx.Done():
			return ctx.Err()
		}
	}
}
