package home

import (
	"context"
	"crypto/rand"
	"errors"
	"fmt"
	"strconv"
	"sync"
	"sync/atomic"
	"time"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
)

// Defaults of Options.
const (
	DefaultMaxChallenges    = 1024
	DefaultChallengeTTL     = time.Minute
	DefaultMaxPendingEvents = 256
)

// Options tune a Node.
type Options struct {
	// ChannelCapacity bounds call and subscription channels.
	ChannelCapacity int

	// RequireInvitation rejects registrations without a valid invitation
	// signed by this home.
	RequireInvitation bool

	// Repo, if not nil, is used to find the public profiles of relation
	// parties that are not hosted here.
	Repo profile.Repo

	// MaxChallenges bounds the nonces waiting for Authenticate. The oldest
	// one is dropped when a new challenge does not fit.
	MaxChallenges int

	// ChallengeTTL is how long a nonce can be used.
	ChallengeTTL time.Duration

	// MaxPendingEvents bounds the events queued for a profile. Pairing
	// requests beyond it are refused.
	MaxPendingEvents int
}

// Node is a hosting node. It stores hosted profiles, keeps one session per
// logged-in profile, queues their events and mediates calls between them.
type Node struct {
	signer  signer.Signer
	profile identity.Profile
	store   store.Store
	opts    Options
	logger  *logrus.Entry

	mu         sync.Mutex
	sessions   map[string]*session
	queues     map[string]*common.Queue[ProfileEvent]
	challenges *lru.Cache[string, time.Time]
	closed     bool
	done       chan struct{}

	registrations uint64
	logins        uint64
	callsRouted   uint64
	callsRefused  uint64
	events        uint64
}

// NewNode creates a Node for the home profile owned by s.
func NewNode(s signer.Signer,
	homeProfile identity.Profile,
	st store.Store,
	opts Options,
	logger *logrus.Entry) (*Node, error) {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if !homeProfile.IsHome() {
		return nil, fmt.Errorf("profile %s is not a home", homeProfile.ID)
	}
	if !homeProfile.ID.Equal(s.ProfileID()) {
		return nil, fmt.Errorf("home profile %s is not owned by signer %s", homeProfile.ID, s.ProfileID())
	}
	if err := homeProfile.Validate(); err != nil {
		return nil, err
	}

	if opts.ChannelCapacity <= 0 {
		opts.ChannelCapacity = DefaultChannelCapacity
	}
	if opts.MaxChallenges <= 0 {
		opts.MaxChallenges = DefaultMaxChallenges
	}
	if opts.ChallengeTTL <= 0 {
		opts.ChallengeTTL = DefaultChallengeTTL
	}
	if opts.MaxPendingEvents <= 0 {
		opts.MaxPendingEvents = DefaultMaxPendingEvents
	}

	challenges, err := lru.New[string, time.Time](opts.MaxChallenges)
	if err != nil {
		return nil, err
	}

	return &Node{
		signer:     s,
		profile:    homeProfile.Clone(),
		store:      st,
		opts:       opts,
		logger:     logger.WithField("home_id", homeProfile.ID.String()),
		sessions:   make(map[string]*session),
		queues:     make(map[string]*common.Queue[ProfileEvent]),
		challenges: challenges,
		done:       make(chan struct{}),
	}, nil
}

// ID ...
func (n *Node) ID() identity.ProfileID {
	return n.profile.ID
}

// Profile returns the public profile of the home.
func (n *Node) Profile() identity.Profile {
	return n.profile.Clone()
}

// Done is closed when the node shuts down.
func (n *Node) Done() <-chan struct{} {
	return n.done
}

// Shutdown closes every session. Further operations fail with
// common.ErrConnectionFailed.
func (n *Node) Shutdown() {
	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return
	}
	n.closed = true
	close(n.done)
	sessions := make([]*session, 0, len(n.sessions))
	for _, s := range n.sessions {
		sessions = append(sessions, s)
	}
	n.mu.Unlock()

	for _, s := range sessions {
		s.close()
	}
	n.logger.Debug("Home node shut down")
}

func (n *Node) checkOpen() error {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.closed {
		return fmt.Errorf("%w: home %s is shut down", common.ErrConnectionFailed, n.profile.ID)
	}
	return nil
}

/*******************************************************************************
Authentication
*******************************************************************************/

// Caller is a profile whose key was checked by Authenticate.
type Caller struct {
	ID        identity.ProfileID
	PublicKey identity.PublicKey
}

func (c Caller) profile() identity.Profile {
	return identity.Profile{ID: c.ID, PublicKey: c.PublicKey}
}

// AuthPayload is the payload a connecting profile signs to prove it owns its
// key.
func AuthPayload(homeID identity.ProfileID, nonce []byte) []byte {
	payload := make([]byte, 0, len(authDomain)+len(homeID)+len(nonce))
	payload = append(payload, authDomain...)
	payload = append(payload, homeID...)
	return append(payload, nonce...)
}

const authDomain = "homenode/auth/v1"

// Challenge returns a one-time nonce for Authenticate. It expires after
// Options.ChallengeTTL, or earlier when Options.MaxChallenges newer nonces
// are waiting.
func (n *Node) Challenge() []byte {
	nonce := make([]byte, 32)
	if _, err := rand.Read(nonce); err != nil {
		panic(err)
	}
	n.challenges.Add(string(nonce), time.Now().Add(n.opts.ChallengeTTL))
	return nonce
}

// Authenticate consumes a nonce issued by Challenge and checks the signature
// of AuthPayload(home, nonce) by the connecting profile.
func (n *Node) Authenticate(id identity.ProfileID, pub identity.PublicKey, nonce []byte, sig identity.Signature) (Caller, error) {
	n.mu.Lock()
	expiry, ok := n.challenges.Peek(string(nonce))
	n.challenges.Remove(string(nonce))
	n.mu.Unlock()

	if !ok {
		return Caller{}, fmt.Errorf("%w: unknown challenge", common.ErrConnectionFailed)
	}
	if time.Now().After(expiry) {
		return Caller{}, fmt.Errorf("%w: expired challenge", common.ErrConnectionFailed)
	}
	if !id.Matches(pub) {
		return Caller{}, fmt.Errorf("%w: %v", common.ErrConnectionFailed, identity.ErrKeyMismatch)
	}
	if !identity.Verify(AuthPayload(n.profile.ID, nonce), sig, pub) {
		return Caller{}, fmt.Errorf("%w: %w: authentication of %s", common.ErrConnectionFailed, common.ErrInvalidProof, id)
	}
	return Caller{ID: id, PublicKey: pub}, nil
}

// Connect authenticates s in-process and returns a Home bound to it.
func (n *Node) Connect(ctx context.Context, s signer.Signer) (Home, error) {
	if err := n.checkOpen(); err != nil {
		return nil, err
	}
	nonce := n.Challenge()
	sig, err := s.Sign(AuthPayload(n.profile.ID, nonce))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}
	caller, err := n.Authenticate(s.ProfileID(), s.PublicKey(), nonce, sig)
	if err != nil {
		return nil, err
	}
	return n.Handle(caller), nil
}

// Handle returns the Home of an authenticated caller.
func (n *Node) Handle(caller Caller) Home {
	return &handle{node: n, caller: caller}
}

/*******************************************************************************
Profiles
*******************************************************************************/

// LoadProfile returns the public profile of a hosted profile, or of the home
// itself.
func (n *Node) LoadProfile(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	if id.Equal(n.profile.ID) {
		return n.Profile(), nil
	}
	own, err := n.store.GetProfile(id)
	if err != nil {
		return identity.Profile{}, n.mapStoreErr(err)
	}
	return own.Profile, nil
}

// Redirect returns the successor home of a profile that unregistered.
func (n *Node) Redirect(id identity.ProfileID) (identity.Profile, error) {
	p, err := n.store.GetRedirect(id)
	if err != nil {
		return identity.Profile{}, n.mapStoreErr(err)
	}
	return p, nil
}

// HostedProfiles returns the ids of every hosted profile.
func (n *Node) HostedProfiles() ([]identity.ProfileID, error) {
	return n.store.ProfileIDs()
}

// lookupParty finds the public profile of a relation party, hosted here or
// known to the repository.
func (n *Node) lookupParty(ctx context.Context, id identity.ProfileID) (identity.Profile, bool, error) {
	own, err := n.store.GetProfile(id)
	if err == nil {
		return own.Profile, true, nil
	}
	if !common.IsStore(err, common.KeyNotFound) {
		return identity.Profile{}, false, err
	}
	if n.opts.Repo != nil {
		p, err := n.opts.Repo.Load(ctx, id)
		if err == nil {
			return p, false, nil
		}
	}
	return identity.Profile{}, false, fmt.Errorf("%w: profile %s", common.ErrNotFound, id)
}

func (n *Node) mapStoreErr(err error) error {
	if common.IsStore(err, common.KeyNotFound) {
		return fmt.Errorf("%w: %v", common.ErrNotFound, err)
	}
	return err
}

/*******************************************************************************
Protocol operations
*******************************************************************************/

func (n *Node) claim(ctx context.Context, caller Caller, id identity.ProfileID) (identity.OwnProfile, error) {
	if err := n.checkOpen(); err != nil {
		return identity.OwnProfile{}, err
	}
	// Only the owner may recover its private data.
	if !caller.ID.Equal(id) {
		return identity.OwnProfile{}, fmt.Errorf("%w: profile %s", common.ErrNotFound, id)
	}
	own, err := n.store.GetProfile(id)
	if err != nil {
		return identity.OwnProfile{}, n.mapStoreErr(err)
	}
	return own, nil
}

func (n *Node) register(ctx context.Context,
	caller Caller,
	own identity.OwnProfile,
	half identity.RelationHalfProof,
	invite *identity.HomeInvitation) (identity.OwnProfile, error) {

	logger := n.logger.WithField("profile_id", own.ID().String())

	fail := func(err error) (identity.OwnProfile, error) {
		logger.WithError(err).Debug("Registration rejected")
		return own, err
	}

	if err := n.checkOpen(); err != nil {
		return fail(err)
	}

	p := own.Profile
	if p.Home != nil || p.Persona == nil {
		return fail(fmt.Errorf("%w: only persona profiles can be hosted", common.ErrRegistrationFailed))
	}
	if err := p.Validate(); err != nil {
		return fail(fmt.Errorf("%w: %v", common.ErrRegistrationFailed, err))
	}
	if !p.ID.Equal(caller.ID) || !p.ID.Matches(caller.PublicKey) {
		return fail(fmt.Errorf("%w: profile %s registered by %s", common.ErrRegistrationFailed, p.ID, caller.ID))
	}

	if half.RelationType != identity.RelationTypeHostedOnHome ||
		!half.SignerID.Equal(p.ID) ||
		!half.PeerID.Equal(n.profile.ID) {
		return fail(fmt.Errorf("%w: half-proof is not a %s offer to this home", common.ErrRegistrationFailed, identity.RelationTypeHostedOnHome))
	}
	if err := half.Validate(p); err != nil {
		return fail(fmt.Errorf("%w: %w: %v", common.ErrRegistrationFailed, common.ErrInvalidProof, err))
	}

	if invite != nil {
		if err := invite.Validate(n.profile); err != nil {
			return fail(fmt.Errorf("%w: %v", common.ErrRegistrationFailed, err))
		}
	} else if n.opts.RequireInvitation {
		return fail(fmt.Errorf("%w: invitation required", common.ErrRegistrationFailed))
	}

	if _, err := n.store.GetProfile(p.ID); err == nil {
		return fail(fmt.Errorf("%w: profile %s is already registered", common.ErrRegistrationFailed, p.ID))
	}

	proof, err := signer.Countersign(n.signer, half)
	if err != nil {
		return fail(fmt.Errorf("%w: %v", common.ErrRegistrationFailed, err))
	}

	registered := own.Clone()
	registered.Profile.Persona.Homes = append(registered.Profile.Persona.Homes, proof)

	if err := n.store.CreateProfile(registered); err != nil {
		return fail(fmt.Errorf("%w: %v", common.ErrRegistrationFailed, err))
	}

	atomic.AddUint64(&n.registrations, 1)
	logger.Info("Profile registered")

	return registered, nil
}

func (n *Node) login(ctx context.Context, caller Caller, proof identity.RelationProof) (Session, error) {
	if err := n.checkOpen(); err != nil {
		return nil, err
	}

	if proof.RelationType != identity.RelationTypeHostedOnHome {
		return nil, fmt.Errorf("%w: %q is not a %s proof", common.ErrLoginFailed, proof.RelationType, identity.RelationTypeHostedOnHome)
	}
	peer, err := proof.PeerID(n.profile.ID)
	if err != nil || !peer.Equal(caller.ID) {
		return nil, fmt.Errorf("%w: proof does not bind %s to this home", common.ErrLoginFailed, caller.ID)
	}

	own, err := n.store.GetProfile(caller.ID)
	if err != nil {
		return nil, fmt.Errorf("%w: %w", common.ErrLoginFailed, n.mapStoreErr(err))
	}
	if err := proof.Validate(own.Profile, n.profile); err != nil {
		return nil, fmt.Errorf("%w: %w: %v", common.ErrLoginFailed, common.ErrInvalidProof, err)
	}

	s := newSession(n, caller.ID)

	n.mu.Lock()
	if n.closed {
		n.mu.Unlock()
		return nil, fmt.Errorf("%w: home is shut down", common.ErrConnectionFailed)
	}
	prev := n.sessions[caller.ID.Key()]
	n.sessions[caller.ID.Key()] = s
	n.mu.Unlock()

	if prev != nil {
		n.logger.WithField("profile_id", caller.ID.String()).Debug("Closing previous session")
		prev.close()
	}

	atomic.AddUint64(&n.logins, 1)
	n.logger.WithFields(logrus.Fields{
		"profile_id": caller.ID.String(),
		"session":    s.token,
	}).Info("Logged in")

	return s, nil
}

func (n *Node) pairRequest(ctx context.Context, caller Caller, half identity.RelationHalfProof) error {
	if err := n.checkOpen(); err != nil {
		return err
	}
	if !half.SignerID.Equal(caller.ID) {
		return fmt.Errorf("%w: half-proof signed by %s, sent by %s", common.ErrInvalidProof, half.SignerID, caller.ID)
	}
	if half.RelationType == identity.RelationTypeHostedOnHome {
		return fmt.Errorf("%w: %s relations are established with register", common.ErrPairingFailed, half.RelationType)
	}
	if _, err := n.store.GetProfile(half.PeerID); err != nil {
		return fmt.Errorf("%w: %w", common.ErrPairingFailed, n.mapStoreErr(err))
	}
	if err := half.Validate(caller.profile()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}

	ev := NewPairingRequestEvent(half)
	added, err := n.queue(half.PeerID).Offer(ev, n.opts.MaxPendingEvents, func(queued ProfileEvent) bool {
		return queued.Kind == EventPairingRequest &&
			queued.HalfProof.SignerID.Equal(half.SignerID) &&
			queued.HalfProof.RelationType == half.RelationType
	})
	if err != nil {
		return fmt.Errorf("%w: too many requests pending for %s", common.ErrPairingFailed, half.PeerID)
	}
	if added {
		n.queued(half.PeerID, ev)
	}
	return nil
}

func (n *Node) pairResponse(ctx context.Context, caller Caller, proof identity.RelationProof) error {
	if err := n.checkOpen(); err != nil {
		return err
	}
	peerID, err := proof.PeerID(caller.ID)
	if err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}
	if err := proof.VerifyParty(caller.profile()); err != nil {
		return fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}

	_, callerHosted, err := n.lookupParty(ctx, caller.ID)
	if err != nil && !errors.Is(err, common.ErrNotFound) {
		return err
	}

	peer, peerHosted, err := n.lookupParty(ctx, peerID)
	switch {
	case err == nil:
		if err := proof.VerifyParty(peer); err != nil {
			return fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
		}
	case errors.Is(err, common.ErrNotFound) && callerHosted:
		// The caller is telling its own home about one of its relations;
		// its signature is all that matters to itself.
	default:
		return fmt.Errorf("%w: neither %s nor %s is hosted here", common.ErrPairingFailed, caller.ID, peerID)
	}

	if !peerHosted && !callerHosted {
		return fmt.Errorf("%w: neither %s nor %s is hosted here", common.ErrPairingFailed, caller.ID, peerID)
	}
	if peerHosted {
		n.emit(peerID, NewPairingResponseEvent(proof))
	}
	if callerHosted {
		n.emit(caller.ID, NewPairingResponseEvent(proof))
	}
	return nil
}

func (n *Node) call(ctx context.Context,
	caller Caller,
	proof identity.RelationProof,
	appID string,
	init AppMessage,
	reverse *AppMsgSink) (*AppMsgSink, error) {

	refuse := func(err error) (*AppMsgSink, error) {
		atomic.AddUint64(&n.callsRefused, 1)
		if reverse != nil {
			reverse.Close()
		}
		return nil, err
	}

	if err := n.checkOpen(); err != nil {
		return refuse(err)
	}

	if proof.RelationType == identity.RelationTypeHostedOnHome {
		return refuse(fmt.Errorf("%w: calls need a relation between personas", common.ErrInvalidProof))
	}
	calleeID, err := proof.PeerID(caller.ID)
	if err != nil {
		return refuse(fmt.Errorf("%w: %v", common.ErrInvalidProof, err))
	}
	callee, err := n.store.GetProfile(calleeID)
	if err != nil {
		return refuse(n.mapStoreErr(err))
	}
	if err := proof.Validate(caller.profile(), callee.Profile); err != nil {
		return refuse(fmt.Errorf("%w: %v", common.ErrInvalidProof, err))
	}

	logger := n.logger.WithFields(logrus.Fields{
		"caller": caller.ID.String(),
		"callee": calleeID.String(),
		"app":    appID,
	})

	n.mu.Lock()
	s := n.sessions[calleeID.Key()]
	n.mu.Unlock()

	var checkin *common.Stream[*IncomingCall]
	if s != nil {
		checkin = s.checkin(appID)
	}
	if checkin == nil {
		logger.Debug("Callee has not checked in")
		n.emit(calleeID, NewIncomingCallEvent(appID, caller.ID))
		return refuse(fmt.Errorf("%w: %s is not available for %q", common.ErrCallRefused, calleeID, appID))
	}

	forward, forwardStream := NewPipe(n.opts.ChannelCapacity)
	incoming := NewIncomingCall(caller.ID, proof, appID, init, forwardStream, reverse)

	if err := checkin.Send(ctx, incoming); err != nil {
		forward.Close()
		return refuse(fmt.Errorf("%w: %v", common.ErrCallRefused, err))
	}

	select {
	case accepted := <-incoming.Answered():
		if !accepted {
			forward.Close()
			logger.Debug("Call declined")
			return refuse(fmt.Errorf("%w: declined by %s", common.ErrCallRefused, calleeID))
		}
	case <-s.Done():
		forward.Close()
		return refuse(fmt.Errorf("%w: session of %s closed", common.ErrCallRefused, calleeID))
	case <-checkin.Cancelled():
		forward.Close()
		return refuse(fmt.Errorf("%w: %s checked out of %q", common.ErrCallRefused, calleeID, appID))
	case <-ctx.Done():
		forward.Close()
		return refuse(ctx.Err())
	}

	atomic.AddUint64(&n.callsRouted, 1)
	logger.Debug("Call accepted")

	return forward, nil
}

/*******************************************************************************
Events
*******************************************************************************/

// queue returns the event queue of a profile, creating it on first use.
func (n *Node) queue(id identity.ProfileID) *common.Queue[ProfileEvent] {
	n.mu.Lock()
	defer n.mu.Unlock()
	q, ok := n.queues[id.Key()]
	if !ok {
		q = common.NewQueue[ProfileEvent]()
		n.queues[id.Key()] = q
	}
	return q
}

// emit queues ev for id. Events wait in the queue until a session of id
// subscribes.
func (n *Node) emit(id identity.ProfileID, ev ProfileEvent) {
	n.queue(id).Push(ev)
	n.queued(id, ev)
}

func (n *Node) queued(id identity.ProfileID, ev ProfileEvent) {
	atomic.AddUint64(&n.events, 1)
	n.logger.WithFields(logrus.Fields{
		"profile_id": id.String(),
		"event":      ev.Kind.String(),
	}).Debug("Event queued")
}

func (n *Node) forget(id identity.ProfileID, s *session) {
	n.mu.Lock()
	defer n.mu.Unlock()
	if n.sessions[id.Key()] == s {
		delete(n.sessions, id.Key())
	}
}

func (n *Node) unregister(ctx context.Context, id identity.ProfileID, newHome *identity.Profile) error {
	if newHome != nil {
		if !newHome.IsHome() {
			return fmt.Errorf("successor %s is not a home", newHome.ID)
		}
		if err := n.store.SetRedirect(id, *newHome); err != nil {
			return err
		}
	}
	if err := n.store.DeleteProfile(id); err != nil {
		return n.mapStoreErr(err)
	}

	n.mu.Lock()
	delete(n.queues, id.Key())
	n.mu.Unlock()

	n.logger.WithField("profile_id", id.String()).Info("Profile unregistered")
	return nil
}

/*******************************************************************************
Stats
*******************************************************************************/

// GetStats returns counters describing the activity of the node.
func (n *Node) GetStats() map[string]string {
	n.mu.Lock()
	liveSessions := len(n.sessions)
	n.mu.Unlock()

	hosted := -1
	if ids, err := n.store.ProfileIDs(); err == nil {
		hosted = len(ids)
	}

	return map[string]string{
		"home_id":         n.profile.ID.String(),
		"hosted_profiles": strconv.Itoa(hosted),
		"live_sessions":   strconv.Itoa(liveSessions),
		"registrations":   strconv.FormatUint(atomic.LoadUint64(&n.registrations), 10),
		"logins":          strconv.FormatUint(atomic.LoadUint64(&n.logins), 10),
		"calls_routed":    strconv.FormatUint(atomic.LoadUint64(&n.callsRouted), 10),
		"calls_refused":   strconv.FormatUint(atomic.LoadUint64(&n.callsRefused), 10),
		"events":          strconv.FormatUint(atomic.LoadUint64(&n.events), 10),
	}
}
