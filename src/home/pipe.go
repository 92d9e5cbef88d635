package home

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/homenode/src/common"
)

// ErrCallClosed is returned when writing to a call whose other end hung up.
var ErrCallClosed = errors.New("call closed")

// AppMessage is an opaque application payload.
type AppMessage []byte

// AppMsgSink is the writing half of a pipe.
type AppMsgSink struct {
	s *common.Stream[AppMessage]
}

// AppMsgStream is the reading half of a pipe.
type AppMsgStream struct {
	s *common.Stream[AppMessage]
}

// Duplex is one end of a call.
type Duplex struct {
	// Sink may be nil when the other end did not provide a way back.
	Sink   *AppMsgSink
	Stream *AppMsgStream
}

// NewPipe returns the two halves of a bounded pipe. Send blocks while
// capacity messages are waiting to be read. Closing either half signals the
// other.
func NewPipe(capacity int) (*AppMsgSink, *AppMsgStream) {
	s := common.NewStream[AppMessage](capacity)
	return &AppMsgSink{s: s}, &AppMsgStream{s: s}
}

// Send ...
func (k *AppMsgSink) Send(ctx context.Context, msg AppMessage) error {
	err := k.s.Send(ctx, msg)
	if errors.Is(err, common.ErrStreamCancelled) || errors.Is(err, common.ErrStreamClosed) {
		return ErrCallClosed
	}
	return err
}

// Close tells the reader that nothing more will be sent.
func (k *AppMsgSink) Close() {
	k.s.Close()
}

// Done is closed when the reader hung up.
func (k *AppMsgSink) Done() <-chan struct{} {
	return k.s.Cancelled()
}

// Next returns the next message, or io.EOF once the writer closed and every
// message was read.
func (r *AppMsgStream) Next(ctx context.Context) (AppMessage, error) {
	msg, err := r.s.Next(ctx)
	if errors.Is(err, common.ErrStreamCancelled) {
		return nil, ErrCallClosed
	}
	return msg, err
}

// Close tells the writer that nothing more will be read.
func (r *AppMsgStream) Close() {
	r.s.Cancel()
}

// Done is closed when the writer closed the pipe.
func (r *AppMsgStream) Done() <-chan struct{} {
	return r.s.Closed()
}
