package home

import (
	"context"
	"fmt"
	"sync"

	"github.com/google/uuid"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// session is the Session of a profile logged in on a Node.
type session struct {
	node  *Node
	id    identity.ProfileID
	token string

	ctx    context.Context
	cancel context.CancelFunc

	mu       sync.Mutex
	events   *common.Stream[ProfileEvent]
	checkins map[string]*common.Stream[*IncomingCall]
	closed   bool
}

func newSession(n *Node, id identity.ProfileID) *session {
	ctx, cancel := context.WithCancel(context.Background())
	return &session{
		node:     n,
		id:       id,
		token:    uuid.NewString(),
		ctx:      ctx,
		cancel:   cancel,
		checkins: make(map[string]*common.Stream[*IncomingCall]),
	}
}

func (s *session) ProfileID() identity.ProfileID {
	return s.id
}

func (s *session) Done() <-chan struct{} {
	return s.ctx.Done()
}

func (s *session) isClosed() bool {
	s.mu.Lock()
	defer s.mu.Unlock()
	return s.closed
}

func (s *session) Update(ctx context.Context, own identity.OwnProfile) error {
	if s.isClosed() {
		return common.ErrSessionClosed
	}
	if !own.ID().Equal(s.id) {
		return fmt.Errorf("session of %s cannot update %s", s.id, own.ID())
	}
	if err := own.Profile.Validate(); err != nil {
		return err
	}
	if !own.Profile.IsPersona() {
		return fmt.Errorf("%w: only persona profiles can be hosted", identity.ErrInvalidFacets)
	}
	return s.node.store.SetProfile(own)
}

func (s *session) Unregister(ctx context.Context, newHome *identity.Profile) error {
	defer s.Close()
	if s.isClosed() {
		return common.ErrSessionClosed
	}
	return s.node.unregister(ctx, s.id, newHome)
}

// Events delivers the profile's events in the order they were emitted.
// Delivery is unbuffered so an event is only removed from the profile's queue
// once it was handed to the subscriber.
func (s *session) Events(ctx context.Context) *common.Stream[ProfileEvent] {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ClosedStream[ProfileEvent](common.ErrSessionClosed)
	}
	prev := s.events
	events := common.NewStream[ProfileEvent](0)
	s.events = events
	s.mu.Unlock()

	if prev != nil {
		prev.Cancel()
	}

	events.BindContext(ctx)

	q := s.node.queue(s.id)
	go func() {
		err := q.PumpTo(s.ctx, events)
		s.node.logger.WithField("profile_id", s.id.String()).
			WithError(err).
			Debug("Event subscription ended")
	}()

	return events
}

func (s *session) CheckinApp(ctx context.Context, appID string) *common.Stream[*IncomingCall] {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return common.ClosedStream[*IncomingCall](common.ErrSessionClosed)
	}
	prev := s.checkins[appID]
	calls := common.NewStream[*IncomingCall](s.node.opts.ChannelCapacity)
	s.checkins[appID] = calls
	s.mu.Unlock()

	if prev != nil {
		prev.Close()
	}

	calls.OnCancel(func() {
		s.mu.Lock()
		if s.checkins[appID] == calls {
			delete(s.checkins, appID)
		}
		s.mu.Unlock()
	})

	return calls.BindContext(ctx)
}

// checkin returns the live check-in stream of appID, or nil.
func (s *session) checkin(appID string) *common.Stream[*IncomingCall] {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.closed {
		return nil
	}
	return s.checkins[appID]
}

func (s *session) Ping(ctx context.Context, txt string) (string, error) {
	if s.isClosed() {
		return "", common.ErrSessionClosed
	}
	return txt, nil
}

func (s *session) Close() error {
	s.close()
	return nil
}

// close ends the session. Subscribers see common.ErrSessionClosed once they
// have read what was already delivered to them.
func (s *session) close() {
	s.mu.Lock()
	if s.closed {
		s.mu.Unlock()
		return
	}
	s.closed = true
	events := s.events
	checkins := s.checkins
	s.checkins = nil
	s.mu.Unlock()

	s.cancel()

	if events != nil {
		events.CloseWithError(common.ErrSessionClosed)
	}
	for _, c := range checkins {
		c.CloseWithError(common.ErrSessionClosed)
	}

	s.node.forget(s.id, s)
	s.node.logger.WithField("profile_id", s.id.String()).Debug("Session closed")
}
