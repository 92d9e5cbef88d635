package wamp

import (
	"context"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/gammazero/nexus/v3/wamp"
	"github.com/google/uuid"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/sirupsen/logrus"
)

// cancelTimeout bounds the calls made to release a subscription, which run
// after the consumer is gone.
const cancelTimeout = 10 * time.Second

// RemoteSession is a home.Session opened through a RemoteHome.
type RemoteSession struct {
	home   *RemoteHome
	token  string
	logger *logrus.Entry

	done      chan struct{}
	closeOnce sync.Once
}

func newRemoteSession(ctx context.Context, h *RemoteHome, token string) (*RemoteSession, error) {
	s := &RemoteSession{
		home:   h,
		token:  token,
		logger: h.logger.WithField("session", token),
		done:   make(chan struct{}),
	}

	err := relayFrames(h.cli, closedTopic(token), func(ctx context.Context, f frame) bool {
		if f.Close {
			s.markClosed()
			return false
		}
		return true
	}, s.done, s.logger)
	if err != nil {
		s.Close()
		return nil, subscribeError(err)
	}

	return s, nil
}

// subscribeError maps a failed subscription to a session topic. The home
// refuses them once the session is gone.
func subscribeError(err error) error {
	if strings.Contains(err.Error(), string(wamp.ErrNotAuthorized)) {
		return fmt.Errorf("%w: %v", common.ErrSessionClosed, err)
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}

func (s *RemoteSession) markClosed() {
	s.closeOnce.Do(func() {
		close(s.done)
	})
}

func (s *RemoteSession) call(ctx context.Context, procedure string, args ...interface{}) ([]interface{}, error) {
	select {
	case <-s.done:
		return nil, common.ErrSessionClosed
	default:
	}

	list := make([]interface{}, 0, len(args)+1)
	list = append(list, s.token)
	for _, a := range args {
		if str, isString := a.(string); isString {
			list = append(list, str)
			continue
		}
		raw, err := encode(a)
		if err != nil {
			return nil, err
		}
		list = append(list, raw)
	}

	res, err := s.home.cli.Call(ctx, procedure, discloseMe, list, nil, nil)
	if err != nil {
		return nil, mapCallError(err)
	}
	return res.Arguments, nil
}

// ProfileID ...
func (s *RemoteSession) ProfileID() identity.ProfileID {
	return s.home.profile
}

// Update ...
func (s *RemoteSession) Update(ctx context.Context, own identity.OwnProfile) error {
	_, err := s.call(ctx, ProcSessionUpdate, own)
	return err
}

// Unregister ...
func (s *RemoteSession) Unregister(ctx context.Context, newHome *identity.Profile) error {
	defer s.markClosed()
	if newHome == nil {
		_, err := s.call(ctx, ProcSessionUnreg, "")
		return err
	}
	_, err := s.call(ctx, ProcSessionUnreg, *newHome)
	return err
}

// Ping ...
func (s *RemoteSession) Ping(ctx context.Context, txt string) (string, error) {
	args, err := s.call(ctx, ProcSessionPing, txt)
	if err != nil {
		return "", err
	}
	return argString(args, 0)
}

// Events subscribes to a fresh topic and asks the home to publish the
// session's events on it.
func (s *RemoteSession) Events(ctx context.Context) *common.Stream[home.ProfileEvent] {
	select {
	case <-s.done:
		return common.ClosedStream[home.ProfileEvent](common.ErrSessionClosed)
	default:
	}

	sub := uuid.NewString()
	out := common.NewStream[home.ProfileEvent](s.home.capacity)

	err := relayFrames(s.home.cli, eventsTopic(s.token, sub), func(ctx context.Context, f frame) bool {
		if f.Close {
			out.CloseWithError(f.err())
			return false
		}
		var ev home.ProfileEvent
		if err := decodePayload(f, &ev); err != nil {
			s.logger.WithError(err).Warn("Dropping malformed event")
			return true
		}
		return out.Send(ctx, ev) == nil
	}, out.Cancelled(), s.logger)
	if err != nil {
		return common.ClosedStream[home.ProfileEvent](subscribeError(err))
	}

	if _, err := s.call(ctx, ProcSessionEvents, sub); err != nil {
		out.Cancel()
		return common.ClosedStream[home.ProfileEvent](err)
	}

	out.OnCancel(func() { s.cancelSub(sub) })

	return out.BindContext(ctx)
}

// CheckinApp subscribes to the incoming calls of appID. Answering a call
// answers it at the home.
func (s *RemoteSession) CheckinApp(ctx context.Context, appID string) *common.Stream[*home.IncomingCall] {
	select {
	case <-s.done:
		return common.ClosedStream[*home.IncomingCall](common.ErrSessionClosed)
	default:
	}

	sub := uuid.NewString()
	out := common.NewStream[*home.IncomingCall](s.home.capacity)

	err := relayFrames(s.home.cli, checkinTopic(s.token, sub), func(ctx context.Context, f frame) bool {
		if f.Close {
			out.CloseWithError(f.err())
			return false
		}
		var msg incomingCallMsg
		if err := decodePayload(f, &msg); err != nil {
			s.logger.WithError(err).Warn("Dropping malformed call")
			return true
		}
		return out.Send(ctx, s.incomingCall(msg)) == nil
	}, out.Cancelled(), s.logger)
	if err != nil {
		return common.ClosedStream[*home.IncomingCall](subscribeError(err))
	}

	if _, err := s.call(ctx, ProcSessionCheckin, appID, sub); err != nil {
		out.Cancel()
		return common.ClosedStream[*home.IncomingCall](err)
	}

	out.OnCancel(func() { s.cancelSub(sub) })

	return out.BindContext(ctx)
}

// incomingCall builds the local end of a remote call leg and answers the home
// when the application does.
func (s *RemoteSession) incomingCall(msg incomingCallMsg) *home.IncomingCall {
	forward, stream := home.NewPipe(s.home.capacity)

	var reply *home.AppMsgSink
	var replies *home.AppMsgStream
	if msg.Reverse {
		reply, replies = home.NewPipe(s.home.capacity)
	}

	call := home.NewIncomingCall(msg.Caller, msg.Proof, msg.AppID, home.AppMessage(msg.Init), stream, reply)

	logger := s.logger.WithField("call_id", msg.CallID)

	go func() {
		var accept bool
		select {
		case accept = <-call.Answered():
		case <-s.done:
			call.Decline()
		}

		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()

		if accept {
			if err := relayData(s.home.cli, toCalleeTopic(msg.CallID), forward, logger); err != nil {
				logger.WithError(err).Debug("Subscribing to call")
				accept = false
			}
		}

		if _, err := s.call(ctx, ProcSessionAnswer, msg.CallID, accept); err != nil {
			logger.WithError(err).Debug("Answering call")
			forward.Close()
			if reply != nil {
				reply.Close()
			}
			return
		}

		if accept && replies != nil {
			publishData(s.home.cli, toCallerTopic(msg.CallID), replies, logger)
		}
	}()

	return call
}

func (s *RemoteSession) cancelSub(sub string) {
	go func() {
		ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
		defer cancel()
		// The cancel procedure ignores sessions that are already gone.
		list := []interface{}{s.token, sub}
		if _, err := s.home.cli.Call(ctx, ProcSessionCancel, nil, list, nil, nil); err != nil {
			s.logger.WithError(err).Debug("Cancelling subscription")
		}
	}()
}

// Close logs out.
func (s *RemoteSession) Close() error {
	select {
	case <-s.done:
		return nil
	default:
	}
	ctx, cancel := context.WithTimeout(context.Background(), cancelTimeout)
	defer cancel()
	_, err := s.call(ctx, ProcSessionClose)
	s.markClosed()
	return err
}

// Done is closed when the session ends or the connection is lost.
func (s *RemoteSession) Done() <-chan struct{} {
	return s.done
}
