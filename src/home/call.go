package home

import (
	"sync"

	"github.com/mosaicnetworks/homenode/src/identity"
)

// IncomingCall is a call invitation delivered on a check-in stream. The callee
// must answer it exactly once with Accept or Decline.
type IncomingCall struct {
	Caller      identity.ProfileID
	Proof       identity.RelationProof
	AppID       string
	InitPayload AppMessage

	stream *AppMsgStream
	reply  *AppMsgSink

	once   sync.Once
	answer chan bool
}

// NewIncomingCall wraps the callee's end of a call. stream carries the
// caller's messages; reply, which may be nil, goes back to the caller.
func NewIncomingCall(caller identity.ProfileID,
	proof identity.RelationProof,
	appID string,
	init AppMessage,
	stream *AppMsgStream,
	reply *AppMsgSink) *IncomingCall {

	return &IncomingCall{
		Caller:      caller,
		Proof:       proof,
		AppID:       appID,
		InitPayload: init,
		stream:      stream,
		reply:       reply,
		answer:      make(chan bool, 1),
	}
}

// Accept takes the call. Duplex.Sink is nil when the caller did not provide a
// reverse channel.
func (c *IncomingCall) Accept() Duplex {
	c.once.Do(func() {
		c.answer <- true
	})
	return Duplex{Sink: c.reply, Stream: c.stream}
}

// Decline refuses the call and releases both channels.
func (c *IncomingCall) Decline() {
	c.once.Do(func() {
		c.answer <- false
		c.stream.Close()
		if c.reply != nil {
			c.reply.Close()
		}
	})
}

// HasReply reports whether Accept will return a Sink back to the caller.
func (c *IncomingCall) HasReply() bool {
	return c.reply != nil
}

// Answered receives the callee's answer.
func (c *IncomingCall) Answered() <-chan bool {
	return c.answer
}
