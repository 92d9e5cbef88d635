package gateway

import (
	"context"

	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
)

// Factory builds gateways for the profiles whose signers it holds. All the
// gateways share the repository and the connector.
type Factory struct {
	Signers   *signer.Registry
	Repo      profile.Repo
	Connector connector.Connector
	Logger    *logrus.Entry
}

// Gateway returns a new Gateway for id. The local profile is loaded from the
// repository; private data, if any, can be recovered later with Claim.
func (f *Factory) Gateway(ctx context.Context, id identity.ProfileID) (*Gateway, error) {
	s, err := f.Signers.Get(id)
	if err != nil {
		return nil, err
	}
	p, err := f.Repo.Load(ctx, id)
	if err != nil {
		return nil, err
	}
	return New(identity.OwnProfile{Profile: p}, s, f.Repo, f.Connector, f.Logger)
}
