package profile

import (
	"context"
	"errors"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// MultiRepo queries several repositories in order. Load and Resolve return
// the first hit; List concatenates the lists.
type MultiRepo struct {
	repos []Repo
}

// NewMultiRepo ...
func NewMultiRepo(repos ...Repo) *MultiRepo {
	return &MultiRepo{repos: repos}
}

// List ...
func (m *MultiRepo) List(ctx context.Context) *common.Stream[identity.Profile] {
	out := common.NewStream[identity.Profile](0).BindContext(ctx)
	go func() {
		defer out.Close()
		for _, r := range m.repos {
			in := r.List(ctx)
			for {
				p, err := in.Next(ctx)
				if err != nil {
					in.Cancel()
					break
				}
				if err := out.Send(ctx, p); err != nil {
					in.Cancel()
					return
				}
			}
		}
	}()
	return out
}

// Load ...
func (m *MultiRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	for _, r := range m.repos {
		p, err := r.Load(ctx, id)
		if err == nil {
			return p, nil
		}
		if !errors.Is(err, common.ErrNotFound) {
			return identity.Profile{}, err
		}
	}
	return identity.Profile{}, notFound(id)
}

// Resolve ...
func (m *MultiRepo) Resolve(ctx context.Context, locator string) (identity.Profile, error) {
	for _, r := range m.repos {
		if p, err := r.Resolve(ctx, locator); err == nil {
			return p, nil
		}
	}
	return identity.Profile{}, unresolved(locator, nil)
}
