package homenode

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
)

// HostedRepo is the profile.Repo of the public profiles hosted by a node.
type HostedRepo struct {
	node *home.Node
}

// NewHostedRepo ...
func NewHostedRepo(n *home.Node) *HostedRepo {
	return &HostedRepo{node: n}
}

// List ...
func (r *HostedRepo) List(ctx context.Context) *common.Stream[identity.Profile] {
	ids, err := r.node.HostedProfiles()
	if err != nil {
		return common.ClosedStream[identity.Profile](err)
	}

	out := common.NewStream[identity.Profile](0)
	go func() {
		defer out.Close()
		for _, id := range ids {
			p, err := r.node.LoadProfile(ctx, id)
			if err != nil {
				// Unregistered since HostedProfiles.
				continue
			}
			if err := out.Send(ctx, p); err != nil {
				return
			}
		}
	}()
	return out.BindContext(ctx)
}

// Load ...
func (r *HostedRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	return r.node.LoadProfile(ctx, id)
}

// Resolve accepts "profile:" locators.
func (r *HostedRepo) Resolve(ctx context.Context, locator string) (identity.Profile, error) {
	id, ok := profile.LocatorID(locator)
	if !ok {
		return identity.Profile{}, fmt.Errorf("%w: %s", common.ErrResolutionFailed, locator)
	}
	p, err := r.Load(ctx, id)
	if err != nil {
		return identity.Profile{}, fmt.Errorf("%w: %s: %v", common.ErrResolutionFailed, locator, err)
	}
	return p, nil
}
