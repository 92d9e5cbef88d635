package common

import (
	"context"
	"errors"
	"io"
	"sync"
)

var (
	// ErrStreamCancelled is returned once the consumer of a Stream cancelled
	// it.
	ErrStreamCancelled = errors.New("stream cancelled")

	// ErrStreamClosed is returned to a producer that sends on a Stream it
	// already closed.
	ErrStreamClosed = errors.New("stream closed")
)

// Stream is a bounded, order-preserving channel with two independent ways to
// end it. The producer calls Close (or CloseWithError) when it has nothing
// more to send, and the consumer calls Cancel when it is no longer interested.
// A full Stream blocks Send until the consumer reads or cancels, so a slow
// consumer stalls its producer and nothing is dropped.
//
// Both Close and Cancel are idempotent.
type Stream[T any] struct {
	items     chan T
	closed    chan struct{}
	cancelled chan struct{}

	closeOnce  sync.Once
	cancelOnce sync.Once

	mu       sync.Mutex
	err      error
	onCancel []func()
}

// NewStream creates a Stream that buffers up to capacity items.
func NewStream[T any](capacity int) *Stream[T] {
	if capacity < 0 {
		capacity = 0
	}
	return &Stream[T]{
		items:     make(chan T, capacity),
		closed:    make(chan struct{}),
		cancelled: make(chan struct{}),
	}
}

// ClosedStream returns a Stream that is already closed with err, or with
// io.EOF semantics when err is nil.
func ClosedStream[T any](err error) *Stream[T] {
	s := NewStream[T](0)
	s.CloseWithError(err)
	return s
}

// Send blocks until v is buffered, the consumer cancels, the producer closed
// the stream, or ctx is done.
func (s *Stream[T]) Send(ctx context.Context, v T) error {
	select {
	case <-s.cancelled:
		return ErrStreamCancelled
	case <-s.closed:
		return ErrStreamClosed
	default:
	}

	select {
	case s.items <- v:
		return nil
	case <-s.cancelled:
		return ErrStreamCancelled
	case <-s.closed:
		return ErrStreamClosed
	case <-ctx.Done():
		return ctx.Err()
	}
}

// Close signals the end of the stream. Buffered items can still be read.
func (s *Stream[T]) Close() {
	s.CloseWithError(nil)
}

// CloseWithError ends the stream. Next returns err, instead of io.EOF, once
// the buffered items are drained.
func (s *Stream[T]) CloseWithError(err error) {
	s.closeOnce.Do(func() {
		s.mu.Lock()
		s.err = err
		s.mu.Unlock()
		close(s.closed)
	})
}

// Next returns the next item. It returns io.EOF (or the error passed to
// CloseWithError) after the producer closed the stream and every buffered
// item was read, and ErrStreamCancelled after Cancel.
func (s *Stream[T]) Next(ctx context.Context) (T, error) {
	var zero T

	select {
	case <-s.cancelled:
		return zero, ErrStreamCancelled
	default:
	}

	select {
	case v := <-s.items:
		return v, nil
	default:
	}

	select {
	case v := <-s.items:
		return v, nil
	case <-s.closed:
		select {
		case v := <-s.items:
			return v, nil
		default:
			return zero, s.closeErr()
		}
	case <-s.cancelled:
		return zero, ErrStreamCancelled
	case <-ctx.Done():
		return zero, ctx.Err()
	}
}

func (s *Stream[T]) closeErr() error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.err != nil {
		return s.err
	}
	return io.EOF
}

// Cancel stops delivery and runs the hooks registered with OnCancel, once.
func (s *Stream[T]) Cancel() {
	s.cancelOnce.Do(func() {
		close(s.cancelled)

		s.mu.Lock()
		hooks := s.onCancel
		s.onCancel = nil
		s.mu.Unlock()

		for _, f := range hooks {
			f()
		}
	})
}

// OnCancel registers f to run when the consumer cancels. If the stream was
// already cancelled f runs immediately.
func (s *Stream[T]) OnCancel(f func()) {
	s.mu.Lock()
	select {
	case <-s.cancelled:
		s.mu.Unlock()
		f()
		return
	default:
	}
	s.onCancel = append(s.onCancel, f)
	s.mu.Unlock()
}

// BindContext cancels the stream when ctx is done. This is how a consumer
// "drops" a subscription without an explicit Cancel call.
func (s *Stream[T]) BindContext(ctx context.Context) *Stream[T] {
	if ctx.Done() == nil {
		return s
	}
	go func() {
		select {
		case <-ctx.Done():
			s.Cancel()
		case <-s.cancelled:
		case <-s.closed:
		}
	}()
	return s
}

// Cancelled is closed once the consumer cancelled the stream.
func (s *Stream[T]) Cancelled() <-chan struct{} {
	return s.cancelled
}

// Closed is closed once the producer closed the stream.
func (s *Stream[T]) Closed() <-chan struct{} {
	return s.closed
}
