// Package gateway composes a signer, a profile repository and a home
// connector into the client-side view of one local profile.
package gateway

import (
	"context"
	"errors"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
	"golang.org/x/sync/singleflight"
)

// Gateway is the entry point of a local profile into the home network.
type Gateway struct {
	signer    signer.Signer
	repo      profile.Repo
	connector connector.Connector
	logger    *logrus.Entry

	loginGroup singleflight.Group

	mu        sync.RWMutex
	own       identity.OwnProfile
	session   home.Session
	relations map[string]identity.Relation
}

// New creates the Gateway of own, which must be owned by s.
func New(own identity.OwnProfile,
	s signer.Signer,
	repo profile.Repo,
	conn connector.Connector,
	logger *logrus.Entry) (*Gateway, error) {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	if !own.ID().Equal(s.ProfileID()) {
		return nil, fmt.Errorf("profile %s is not owned by signer %s", own.ID(), s.ProfileID())
	}

	return &Gateway{
		signer:    s,
		repo:      repo,
		connector: conn,
		logger:    logger.WithField("profile_id", own.ID().String()),
		own:       own.Clone(),
		relations: make(map[string]identity.Relation),
	}, nil
}

// SelectedProfile returns the id of the local profile.
func (g *Gateway) SelectedProfile() identity.ProfileID {
	return g.signer.ProfileID()
}

// Profile returns a copy of the local profile.
func (g *Gateway) Profile() identity.OwnProfile {
	g.mu.RLock()
	defer g.mu.RUnlock()
	return g.own.Clone()
}

func (g *Gateway) setOwn(own identity.OwnProfile) {
	g.mu.Lock()
	g.own = own.Clone()
	g.mu.Unlock()

	if setter, ok := g.repo.(profile.Setter); ok {
		if err := setter.Set(own.Profile); err != nil {
			g.logger.WithError(err).Warn("Failed to publish profile")
		}
	}
}

/*******************************************************************************
Homes
*******************************************************************************/

// ConnectHome resolves homeID through the repository and connects to it.
func (g *Gateway) ConnectHome(ctx context.Context, homeID identity.ProfileID) (home.Home, error) {
	p, err := g.repo.Load(ctx, homeID)
	if err != nil {
		return nil, err
	}
	return g.connector.Connect(ctx, p, g.signer)
}

// HomeOf returns the id of the first home hosting p.
func HomeOf(p identity.Profile) (identity.ProfileID, error) {
	proofs := p.HomeProofs()
	if len(proofs) == 0 {
		return nil, fmt.Errorf("%w: %s has no home", common.ErrNotFound, p.ID)
	}
	return proofs[0].PeerID(p.ID)
}

// Register connects to homeID and registers own with the given half-proof.
// On success the local profile becomes the registered one.
func (g *Gateway) Register(ctx context.Context,
	homeID identity.ProfileID,
	own identity.OwnProfile,
	half identity.RelationHalfProof,
	invite *identity.HomeInvitation) (identity.OwnProfile, error) {

	h, err := g.ConnectHome(ctx, homeID)
	if err != nil {
		return own, err
	}

	registered, err := h.Register(ctx, own, half, invite)
	if err != nil {
		return registered, err
	}

	if registered.ID().Equal(g.SelectedProfile()) {
		g.setOwn(registered)
	}

	g.logger.WithField("home_id", homeID.String()).Info("Registered")

	return registered, nil
}

// RegisterHome registers the local profile with homeID, signing the
// hosted-on-home half-proof itself.
func (g *Gateway) RegisterHome(ctx context.Context, homeID identity.ProfileID, invite *identity.HomeInvitation) (identity.OwnProfile, error) {
	own := g.Profile()
	half, err := signer.NewHalfProof(g.signer, identity.RelationTypeHostedOnHome, homeID)
	if err != nil {
		return own, err
	}
	return g.Register(ctx, homeID, own, half, invite)
}

// Claim recovers the local profile, private data included, from homeID.
func (g *Gateway) Claim(ctx context.Context, homeID identity.ProfileID) (identity.OwnProfile, error) {
	h, err := g.ConnectHome(ctx, homeID)
	if err != nil {
		return identity.OwnProfile{}, err
	}
	own, err := h.Claim(ctx, g.SelectedProfile())
	if err != nil {
		return identity.OwnProfile{}, err
	}
	g.setOwn(own)
	return own, nil
}

/*******************************************************************************
Session
*******************************************************************************/

func (g *Gateway) cachedSession() home.Session {
	g.mu.RLock()
	defer g.mu.RUnlock()
	if g.session == nil {
		return nil
	}
	select {
	case <-g.session.Done():
		return nil
	default:
		return g.session
	}
}

// Login returns the cached session if it is alive. Otherwise it logs in to
// the first home of the local profile. Concurrent calls share one login.
func (g *Gateway) Login(ctx context.Context) (home.Session, error) {
	if s := g.cachedSession(); s != nil {
		return s, nil
	}

	res, err, _ := g.loginGroup.Do("login", func() (interface{}, error) {
		if s := g.cachedSession(); s != nil {
			return s, nil
		}
		return g.login(ctx)
	})
	if err != nil {
		return nil, err
	}
	return res.(home.Session), nil
}

func (g *Gateway) login(ctx context.Context) (home.Session, error) {
	own := g.Profile()

	proofs := own.Profile.HomeProofs()
	if len(proofs) == 0 {
		return nil, fmt.Errorf("%w: %s has no home", common.ErrLoginFailed, own.ID())
	}
	proof := proofs[0]

	homeID, err := proof.PeerID(own.ID())
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrLoginFailed, err)
	}

	h, err := g.ConnectHome(ctx, homeID)
	if err != nil {
		return nil, err
	}

	s, err := h.Login(ctx, proof)
	if err != nil {
		return nil, err
	}

	g.mu.Lock()
	g.session = s
	g.mu.Unlock()

	go func() {
		<-s.Done()
		g.mu.Lock()
		if g.session == s {
			g.session = nil
		}
		g.mu.Unlock()
	}()

	g.logger.WithField("home_id", homeID.String()).Debug("Logged in")

	return s, nil
}

// Logout closes the cached session, if any.
func (g *Gateway) Logout() error {
	g.mu.Lock()
	s := g.session
	g.session = nil
	g.mu.Unlock()

	if s == nil {
		return nil
	}
	return s.Close()
}

// Update pushes own to the home of the local profile.
func (g *Gateway) Update(ctx context.Context, own identity.OwnProfile) error {
	s, err := g.Login(ctx)
	if err != nil {
		return err
	}
	if err := s.Update(ctx, own); err != nil {
		return err
	}
	g.setOwn(own)
	return nil
}

// Unregister leaves the home of the local profile.
func (g *Gateway) Unregister(ctx context.Context, newHome *identity.Profile) error {
	s, err := g.Login(ctx)
	if err != nil {
		return err
	}
	defer g.Logout()
	return s.Unregister(ctx, newHome)
}

/*******************************************************************************
Pairing
*******************************************************************************/

// PairRequest offers a relation of the given type to target, through the
// target's home.
func (g *Gateway) PairRequest(ctx context.Context, relationType string, target identity.ProfileID) (identity.RelationHalfProof, error) {
	half, err := signer.NewHalfProof(g.signer, relationType, target)
	if err != nil {
		return identity.RelationHalfProof{}, err
	}

	h, err := g.connectHomeOf(ctx, target)
	if err != nil {
		return identity.RelationHalfProof{}, fmt.Errorf("%w: %w", common.ErrPairingFailed, err)
	}

	if err := h.PairRequest(ctx, half); err != nil {
		return identity.RelationHalfProof{}, err
	}

	g.logger.WithFields(logrus.Fields{
		"peer": target.String(),
		"type": relationType,
	}).Debug("Pairing requested")

	return half, nil
}

// AcceptPairing countersigns a half-proof received in a PairingRequest event
// and sends the completed proof to the initiator's home and to our own home.
func (g *Gateway) AcceptPairing(ctx context.Context, half identity.RelationHalfProof) (identity.RelationProof, error) {
	initiator, err := g.repo.Load(ctx, half.SignerID)
	if err != nil {
		return identity.RelationProof{}, fmt.Errorf("%w: %w", common.ErrPairingFailed, err)
	}
	if err := half.Validate(initiator); err != nil {
		return identity.RelationProof{}, fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}

	proof, err := signer.Countersign(g.signer, half)
	if err != nil {
		return identity.RelationProof{}, fmt.Errorf("%w: %v", common.ErrPairingFailed, err)
	}

	initiatorHomeID, err := HomeOf(initiator)
	if err != nil {
		return identity.RelationProof{}, fmt.Errorf("%w: %w", common.ErrPairingFailed, err)
	}
	initiatorHome, err := g.ConnectHome(ctx, initiatorHomeID)
	if err != nil {
		return identity.RelationProof{}, fmt.Errorf("%w: %w", common.ErrPairingFailed, err)
	}
	if err := initiatorHome.PairResponse(ctx, proof); err != nil {
		return identity.RelationProof{}, err
	}

	// A home notifies both parties it hosts, so a shared home is told once.
	ownHomeID, err := HomeOf(g.Profile().Profile)
	if err == nil && !ownHomeID.Equal(initiatorHomeID) {
		ownHome, err := g.ConnectHome(ctx, ownHomeID)
		if err != nil {
			return identity.RelationProof{}, err
		}
		if err := ownHome.PairResponse(ctx, proof); err != nil {
			return identity.RelationProof{}, err
		}
	}

	if _, err := g.AddRelation(ctx, proof); err != nil {
		return identity.RelationProof{}, err
	}

	return proof, nil
}

func (g *Gateway) connectHomeOf(ctx context.Context, id identity.ProfileID) (home.Home, error) {
	p, err := g.repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	homeID, err := HomeOf(p)
	if err != nil {
		return nil, err
	}
	return g.ConnectHome(ctx, homeID)
}

// AddRelation validates proof against both profiles and remembers it.
func (g *Gateway) AddRelation(ctx context.Context, proof identity.RelationProof) (identity.Relation, error) {
	me := g.SelectedProfile()
	peerID, err := proof.PeerID(me)
	if err != nil {
		return identity.Relation{}, fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}
	peer, err := g.repo.Load(ctx, peerID)
	if err != nil {
		return identity.Relation{}, err
	}
	if err := proof.Validate(g.Profile().Profile, peer); err != nil {
		return identity.Relation{}, fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}

	rel, err := identity.NewRelation(me, peer, proof)
	if err != nil {
		return identity.Relation{}, err
	}

	g.mu.Lock()
	g.relations[peerID.Key()] = rel
	g.mu.Unlock()

	return rel, nil
}

// Relation returns the relation with peer, or an error wrapping
// common.ErrPairingFailed.
func (g *Gateway) Relation(peer identity.ProfileID) (identity.Relation, error) {
	g.mu.RLock()
	defer g.mu.RUnlock()
	rel, ok := g.relations[peer.Key()]
	if !ok {
		return identity.Relation{}, fmt.Errorf("%w: no appropriate relation found with %s", common.ErrPairingFailed, peer)
	}
	return rel, nil
}

// Relations returns every known relation.
func (g *Gateway) Relations() []identity.Relation {
	g.mu.RLock()
	defer g.mu.RUnlock()
	res := make([]identity.Relation, 0, len(g.relations))
	for _, rel := range g.relations {
		res = append(res, rel)
	}
	return res
}

// ProcessEvent records the relations carried by PairingResponse events.
// Other events are ignored.
func (g *Gateway) ProcessEvent(ctx context.Context, ev home.ProfileEvent) error {
	if ev.Kind != home.EventPairingResponse || ev.Proof == nil {
		return nil
	}
	_, err := g.AddRelation(ctx, *ev.Proof)
	return err
}

/*******************************************************************************
Calls
*******************************************************************************/

// Call connects to the home of the peer named in proof and calls it.
func (g *Gateway) Call(ctx context.Context,
	proof identity.RelationProof,
	appID string,
	init home.AppMessage,
	reverse *home.AppMsgSink) (*home.AppMsgSink, error) {

	peerID, err := proof.PeerID(g.SelectedProfile())
	if err != nil {
		if reverse != nil {
			reverse.Close()
		}
		return nil, fmt.Errorf("%w: %v", common.ErrInvalidProof, err)
	}

	h, err := g.connectHomeOf(ctx, peerID)
	if err != nil {
		if reverse != nil {
			reverse.Close()
		}
		if errors.Is(err, common.ErrNotFound) {
			return nil, err
		}
		return nil, fmt.Errorf("%w: %w", common.ErrConnectionFailed, err)
	}

	return h.Call(ctx, proof, appID, init, reverse)
}
