package wamp

import (
	"context"
	"fmt"

	"github.com/gammazero/nexus/v3/client"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
)

// RemoteRepo implements profile.Repo with the profiles hosted by a remote
// home.
type RemoteRepo struct {
	cli *client.Client
}

// NewRemoteRepo ...
func NewRemoteRepo(cli *client.Client) *RemoteRepo {
	return &RemoteRepo{cli: cli}
}

// List returns the profiles hosted by the home when List was called.
func (r *RemoteRepo) List(ctx context.Context) *common.Stream[identity.Profile] {
	ps, err := listProfiles(ctx, r.cli)
	if err != nil {
		return common.ClosedStream[identity.Profile](err)
	}

	out := common.NewStream[identity.Profile](0)
	go func() {
		defer out.Close()
		for _, p := range ps {
			if err := out.Send(ctx, p); err != nil {
				return
			}
		}
	}()
	return out.BindContext(ctx)
}

// Load ...
func (r *RemoteRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	return loadProfile(ctx, r.cli, id)
}

// Resolve only understands "profile:" locators.
func (r *RemoteRepo) Resolve(ctx context.Context, locator string) (identity.Profile, error) {
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

// Close ...
func (r *RemoteRepo) Close() error {
	return r.cli.Close()
}
