// Package dapp is the facade a hosted application uses to receive and place
// calls on behalf of the selected profile.
package dapp

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/gateway"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
)

// DApp binds one application to the gateway of the selected profile.
type DApp struct {
	appID    string
	gateway  *gateway.Gateway
	contacts ContactStore
	kv       store.KVFactory
	capacity int
	logger   *logrus.Entry
}

// Connect returns the DApp of appID. contacts and kv may be nil: the
// gateway's relations are then the only contacts, and AppStorage fails with
// common.ErrUnimplemented.
func Connect(gw *gateway.Gateway,
	appID string,
	contacts ContactStore,
	kv store.KVFactory,
	logger *logrus.Entry) *DApp {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &DApp{
		appID:    appID,
		gateway:  gw,
		contacts: contacts,
		kv:       kv,
		capacity: home.DefaultChannelCapacity,
		logger: logger.WithFields(logrus.Fields{
			"app":        appID,
			"profile_id": gw.SelectedProfile().String(),
		}),
	}
}

// AppID ...
func (d *DApp) AppID() string {
	return d.appID
}

// SelectedProfile returns the profile the application acts for.
func (d *DApp) SelectedProfile() identity.ProfileID {
	return d.gateway.SelectedProfile()
}

// Checkin logs in if needed and returns the incoming calls for the
// application. Cancelling ctx, or the stream, checks the application out.
func (d *DApp) Checkin(ctx context.Context) (*common.Stream[*home.IncomingCall], error) {
	s, err := d.gateway.Login(ctx)
	if err != nil {
		return nil, err
	}
	d.logger.Debug("Checked in")
	return s.CheckinApp(ctx, d.appID), nil
}

// Call places a call to peer, which must already be a contact. Pairing is
// never started implicitly.
func (d *DApp) Call(ctx context.Context, peer identity.ProfileID, init home.AppMessage) (home.Duplex, error) {
	rel, err := d.relation(peer)
	if err != nil {
		return home.Duplex{}, err
	}

	reverse, replies := home.NewPipe(d.capacity)

	sink, err := d.gateway.Call(ctx, rel.Proof, d.appID, init, reverse)
	if err != nil {
		replies.Close()
		return home.Duplex{}, err
	}

	d.logger.WithField("peer", peer.String()).Debug("Call established")

	return home.Duplex{Sink: sink, Stream: replies}, nil
}

func (d *DApp) relation(peer identity.ProfileID) (identity.Relation, error) {
	if d.contacts != nil {
		if rel, ok := d.contacts.Contact(peer); ok {
			return rel, nil
		}
	}
	rel, err := d.gateway.Relation(peer)
	if err != nil {
		return identity.Relation{}, fmt.Errorf("%w: no appropriate relation found with %s", common.ErrPairingFailed, peer)
	}
	return rel, nil
}

// Contacts returns the relations of the selected profile, those of the
// contact store first.
func (d *DApp) Contacts() []identity.Relation {
	var res []identity.Relation
	seen := make(map[string]bool)

	if d.contacts != nil {
		for _, rel := range d.contacts.Contacts() {
			seen[rel.Peer.ID.Key()] = true
			res = append(res, rel)
		}
	}
	for _, rel := range d.gateway.Relations() {
		if !seen[rel.Peer.ID.Key()] {
			res = append(res, rel)
		}
	}
	return res
}

// AppStorage returns the application's private key-value store.
func (d *DApp) AppStorage() (store.KV, error) {
	if d.kv == nil {
		return nil, fmt.Errorf("%w: no application storage", common.ErrUnimplemented)
	}
	return d.kv(d.appID)
}
