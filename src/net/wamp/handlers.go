package wamp

import (
	"context"
	"sync"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/google/uuid"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/sirupsen/logrus"
)

// serverConn is an authenticated connection.
type serverConn struct {
	home   home.Home
	caller identity.ProfileID
	owner  wamp.ID
}

// serverSession is a home session opened by a remote client.
type serverSession struct {
	token   string
	owner   wamp.ID
	session home.Session

	mu      sync.Mutex
	subs    map[string]func()
	pending map[string]*home.IncomingCall
}

func (ss *serverSession) addSub(id string, cancel func()) {
	ss.mu.Lock()
	prev := ss.subs[id]
	ss.subs[id] = cancel
	ss.mu.Unlock()
	if prev != nil {
		prev()
	}
}

func (ss *serverSession) cancelSub(id string) {
	ss.mu.Lock()
	cancel := ss.subs[id]
	delete(ss.subs, id)
	ss.mu.Unlock()
	if cancel != nil {
		cancel()
	}
}

func (ss *serverSession) addPending(id string, call *home.IncomingCall) {
	ss.mu.Lock()
	ss.pending[id] = call
	ss.mu.Unlock()
}

func (ss *serverSession) takePending(id string) *home.IncomingCall {
	ss.mu.Lock()
	defer ss.mu.Unlock()
	call := ss.pending[id]
	delete(ss.pending, id)
	return call
}

// release declines unanswered calls. The subscriptions end on their own: the
// home closes them with the session.
func (ss *serverSession) release() {
	ss.mu.Lock()
	pending := ss.pending
	ss.subs = make(map[string]func())
	ss.pending = make(map[string]*home.IncomingCall)
	ss.mu.Unlock()

	for _, call := range pending {
		call.Decline()
	}
}

func ok(args ...interface{}) client.InvokeResult {
	return client.InvokeResult{Args: wamp.List(args)}
}

func jsonResult(v interface{}) client.InvokeResult {
	raw, err := encode(v)
	if err != nil {
		return errorResult(err)
	}
	return ok(raw)
}

func (s *Server) conn(inv *wamp.Invocation) (*serverConn, error) {
	tok, err := argString(inv.Arguments, 0)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	c, found := s.conns[tok]
	if !found || c.owner != callerID(inv) {
		return nil, common.ErrConnectionFailed
	}
	return c, nil
}

func (s *Server) session(inv *wamp.Invocation) (*serverSession, error) {
	tok, err := argString(inv.Arguments, 0)
	if err != nil {
		return nil, err
	}
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, found := s.sessions[tok]
	if !found || ss.owner != callerID(inv) {
		return nil, common.ErrSessionClosed
	}
	return ss, nil
}

/*******************************************************************************
Connection
*******************************************************************************/

func (s *Server) hello(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	return jsonResult(helloReply{
		Home:  s.node.Profile(),
		Nonce: s.node.Challenge(),
	})
}

func (s *Server) authenticate(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	owner := callerID(inv)
	if owner == 0 {
		return badRequest("authenticate: caller not disclosed")
	}

	var req authRequest
	if err := decodeArg(inv.Arguments, 0, &req); err != nil {
		return badRequest("authenticate: %v", err)
	}

	caller, err := s.node.Authenticate(req.ID, req.PublicKey, req.Nonce, req.Signature)
	if err != nil {
		s.logger.WithError(err).Debug("Authentication failed")
		return errorResult(err)
	}

	tok := uuid.NewString()

	s.mu.Lock()
	s.conns[tok] = &serverConn{
		home:   s.node.Handle(caller),
		caller: caller.ID,
		owner:  owner,
	}
	s.mu.Unlock()

	s.logger.WithField("profile_id", caller.ID.String()).Debug("Authenticated")

	return ok(tok)
}

func (s *Server) loadProfile(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	str, err := argString(inv.Arguments, 0)
	if err != nil {
		return badRequest("load_profile: %v", err)
	}
	id, err := identity.ParseProfileID(str)
	if err != nil {
		return badRequest("load_profile: %v", err)
	}
	p, err := s.node.LoadProfile(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(p)
}

func (s *Server) listProfiles(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ids, err := s.node.HostedProfiles()
	if err != nil {
		return errorResult(err)
	}
	res := make([]identity.Profile, 0, len(ids))
	for _, id := range ids {
		p, err := s.node.LoadProfile(ctx, id)
		if err != nil {
			continue
		}
		res = append(res, p)
	}
	return jsonResult(res)
}

/*******************************************************************************
Home
*******************************************************************************/

func (s *Server) claim(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	str, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("claim: %v", err)
	}
	id, err := identity.ParseProfileID(str)
	if err != nil {
		return badRequest("claim: %v", err)
	}
	own, err := c.home.Claim(ctx, id)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(own)
}

func (s *Server) register(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	var req registerRequest
	if err := decodeArg(inv.Arguments, 1, &req); err != nil {
		return badRequest("register: %v", err)
	}
	own, err := c.home.Register(ctx, req.Own, req.Half, req.Invite)
	if err != nil {
		return errorResult(err)
	}
	return jsonResult(own)
}

func (s *Server) login(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	var proof identity.RelationProof
	if err := decodeArg(inv.Arguments, 1, &proof); err != nil {
		return badRequest("login: %v", err)
	}

	sess, err := c.home.Login(ctx, proof)
	if err != nil {
		return errorResult(err)
	}

	ss := &serverSession{
		token:   uuid.NewString(),
		owner:   c.owner,
		session: sess,
		subs:    make(map[string]func()),
		pending: make(map[string]*home.IncomingCall),
	}

	s.mu.Lock()
	s.sessions[ss.token] = ss
	s.mu.Unlock()

	go s.watchSession(ss)

	return ok(ss.token)
}

// watchSession tells the client when its session ends, and forgets it.
func (s *Server) watchSession(ss *serverSession) {
	<-ss.session.Done()

	s.mu.Lock()
	delete(s.sessions, ss.token)
	s.mu.Unlock()

	ss.release()

	if err := publish(s.local, closedTopic(ss.token), closeFrame(common.ErrSessionClosed)); err != nil {
		s.logger.WithError(err).Debug("Publishing session end")
	}
}

func (s *Server) pairRequest(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	var half identity.RelationHalfProof
	if err := decodeArg(inv.Arguments, 1, &half); err != nil {
		return badRequest("pair_request: %v", err)
	}
	if err := c.home.PairRequest(ctx, half); err != nil {
		return errorResult(err)
	}
	return ok()
}

func (s *Server) pairResponse(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	var proof identity.RelationProof
	if err := decodeArg(inv.Arguments, 1, &proof); err != nil {
		return badRequest("pair_response: %v", err)
	}
	if err := c.home.PairResponse(ctx, proof); err != nil {
		return errorResult(err)
	}
	return ok()
}

// call routes a call from a remote caller. The caller subscribed to the
// to_caller topic of its call id before calling, and publishes on the
// to_callee topic once call returns.
func (s *Server) call(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	c, err := s.conn(inv)
	if err != nil {
		return errorResult(err)
	}
	var req callRequest
	if err := decodeArg(inv.Arguments, 1, &req); err != nil {
		return badRequest("call: %v", err)
	}
	if req.CallID == "" {
		return badRequest("call: missing call id")
	}

	logger := s.logger.WithFields(logrus.Fields{
		"call_id": req.CallID,
		"caller":  c.caller.String(),
		"app":     req.AppID,
	})

	var reverse *home.AppMsgSink
	if req.Reverse {
		var replies *home.AppMsgStream
		reverse, replies = home.NewPipe(s.conf.ChannelCapacity)
		go publishData(s.local, toCallerTopic(req.CallID), replies, logger)
	}

	forward, err := c.home.Call(ctx, req.Proof, req.AppID, home.AppMessage(req.Init), reverse)
	if err != nil {
		return errorResult(err)
	}

	if err := relayData(s.local, toCalleeTopic(req.CallID), forward, logger); err != nil {
		forward.Close()
		return errorResult(err)
	}

	logger.Debug("Remote call established")

	return ok()
}

/*******************************************************************************
Session
*******************************************************************************/

func (s *Server) sessionUpdate(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}
	var own identity.OwnProfile
	if err := decodeArg(inv.Arguments, 1, &own); err != nil {
		return badRequest("update: %v", err)
	}
	if err := ss.session.Update(ctx, own); err != nil {
		return errorResult(err)
	}
	return ok()
}

func (s *Server) sessionUnregister(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}

	var newHome *identity.Profile
	if str, _ := argString(inv.Arguments, 1); str != "" {
		newHome = &identity.Profile{}
		if err := decodeArg(inv.Arguments, 1, newHome); err != nil {
			ss.session.Close()
			return badRequest("unregister: %v", err)
		}
	}

	if err := ss.session.Unregister(ctx, newHome); err != nil {
		return errorResult(err)
	}
	return ok()
}

func (s *Server) sessionPing(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}
	txt, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("ping: %v", err)
	}
	pong, err := ss.session.Ping(ctx, txt)
	if err != nil {
		return errorResult(err)
	}
	return ok(pong)
}

func (s *Server) sessionEvents(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}
	sub, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("events: %v", err)
	}

	events := ss.session.Events(context.Background())
	ss.addSub(sub, events.Cancel)

	go publishStream(s.local,
		eventsTopic(ss.token, sub),
		events,
		func(ev home.ProfileEvent) (interface{}, error) { return ev, nil },
		s.logger)

	return ok()
}

func (s *Server) sessionCheckin(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}
	appID, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("checkin: %v", err)
	}
	sub, err := argString(inv.Arguments, 2)
	if err != nil {
		return badRequest("checkin: %v", err)
	}

	calls := ss.session.CheckinApp(context.Background(), appID)
	ss.addSub(sub, calls.Cancel)

	go publishStream(s.local,
		checkinTopic(ss.token, sub),
		calls,
		func(call *home.IncomingCall) (interface{}, error) {
			leg := uuid.NewString()
			ss.addPending(leg, call)
			return incomingCallMsg{
				CallID:  leg,
				Caller:  call.Caller,
				Proof:   call.Proof,
				AppID:   call.AppID,
				Init:    call.InitPayload,
				Reverse: call.HasReply(),
			}, nil
		},
		s.logger)

	return ok()
}

func (s *Server) sessionCancel(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		// Cancelling twice, or after the session ended, is not an error.
		return ok()
	}
	sub, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("cancel: %v", err)
	}
	ss.cancelSub(sub)
	return ok()
}

// sessionAnswer accepts or declines an incoming call. Before accepting, the
// callee subscribed to the to_callee topic of the call leg; it publishes its
// replies on to_caller.
func (s *Server) sessionAnswer(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return errorResult(err)
	}
	leg, err := argString(inv.Arguments, 1)
	if err != nil {
		return badRequest("answer: %v", err)
	}
	var accept bool
	if err := decodeArg(inv.Arguments, 2, &accept); err != nil {
		return badRequest("answer: %v", err)
	}

	call := ss.takePending(leg)
	if call == nil {
		return errorResult(common.ErrNotFound)
	}

	if !accept {
		call.Decline()
		return ok()
	}

	logger := s.logger.WithField("call_id", leg)

	d := call.Accept()
	if d.Sink != nil {
		if err := relayData(s.local, toCallerTopic(leg), d.Sink, logger); err != nil {
			d.Sink.Close()
			d.Stream.Close()
			return errorResult(err)
		}
	}
	go publishData(s.local, toCalleeTopic(leg), d.Stream, logger)

	return ok()
}

func (s *Server) sessionClose(ctx context.Context, inv *wamp.Invocation) client.InvokeResult {
	ss, err := s.session(inv)
	if err != nil {
		return ok()
	}
	ss.session.Close()
	return ok()
}
