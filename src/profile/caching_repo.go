package profile

import (
	"context"

	lru "github.com/hashicorp/golang-lru/v2"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/sirupsen/logrus"
)

// CachingRepo keeps recently loaded profiles of a slower Repo, typically a
// remote one, in an LRU cache.
type CachingRepo struct {
	backend Repo
	cache   *lru.Cache[string, identity.Profile]
	logger  *logrus.Entry
}

// NewCachingRepo ...
func NewCachingRepo(backend Repo, size int, logger *logrus.Entry) (*CachingRepo, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	cache, err := lru.New[string, identity.Profile](size)
	if err != nil {
		return nil, err
	}

	return &CachingRepo{
		backend: backend,
		cache:   cache,
		logger:  logger,
	}, nil
}

// List is not cached.
func (r *CachingRepo) List(ctx context.Context) *common.Stream[identity.Profile] {
	return r.backend.List(ctx)
}

// Load returns the cached profile if any, and otherwise loads it from the
// backend and caches it. Misses are not cached.
func (r *CachingRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	if p, ok := r.cache.Get(id.Key()); ok {
		return p.Clone(), nil
	}

	p, err := r.backend.Load(ctx, id)
	if err != nil {
		return identity.Profile{}, err
	}

	r.logger.WithField("profile_id", id).Debug("Caching profile")
	r.cache.Add(id.Key(), p.Clone())

	return p, nil
}

// Resolve caches the resolved profile under its id.
func (r *CachingRepo) Resolve(ctx context.Context, locator string) (identity.Profile, error) {
	if id, ok := LocatorID(locator); ok {
		if p, ok := r.cache.Get(id.Key()); ok {
			return p.Clone(), nil
		}
	}

	p, err := r.backend.Resolve(ctx, locator)
	if err != nil {
		return identity.Profile{}, err
	}
	r.cache.Add(p.ID.Key(), p.Clone())
	return p, nil
}

// Set updates the cache, and the backend when it accepts writes.
func (r *CachingRepo) Set(p identity.Profile) error {
	if setter, ok := r.backend.(Setter); ok {
		if err := setter.Set(p); err != nil {
			return err
		}
	} else if err := p.Validate(); err != nil {
		return err
	}
	r.cache.Add(p.ID.Key(), p.Clone())
	return nil
}

// Invalidate drops id from the cache.
func (r *CachingRepo) Invalidate(id identity.ProfileID) {
	r.cache.Remove(id.Key())
}

// Len returns the number of cached profiles.
func (r *CachingRepo) Len() int {
	return r.cache.Len()
}
