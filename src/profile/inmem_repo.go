package profile

import (
	"context"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// InmemRepo is a Repo backed by a map. It is safe for concurrent use.
type InmemRepo struct {
	mu       sync.RWMutex
	profiles map[string]identity.Profile
	aliases  map[string]identity.ProfileID
	capacity int
}

// NewInmemRepo creates a repository holding the given profiles.
func NewInmemRepo(profiles ...identity.Profile) *InmemRepo {
	r := &InmemRepo{
		profiles: make(map[string]identity.Profile),
		aliases:  make(map[string]identity.ProfileID),
		capacity: 16,
	}
	for _, p := range profiles {
		r.profiles[p.ID.Key()] = p.Clone()
	}
	return r
}

// Insert adds a profile that is not in the repository yet.
func (r *InmemRepo) Insert(p identity.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	if _, ok := r.profiles[p.ID.Key()]; ok {
		return fmt.Errorf("profile %s: %w", p.ID, common.NewStoreErr("Profile", common.KeyAlreadyExists, p.ID.String()))
	}
	r.profiles[p.ID.Key()] = p.Clone()
	return nil
}

// Set creates or replaces a profile.
func (r *InmemRepo) Set(p identity.Profile) error {
	if err := p.Validate(); err != nil {
		return err
	}
	r.mu.Lock()
	defer r.mu.Unlock()
	r.profiles[p.ID.Key()] = p.Clone()
	return nil
}

// Remove ...
func (r *InmemRepo) Remove(id identity.ProfileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	delete(r.profiles, id.Key())
}

// AddAlias makes Resolve map locator to id.
func (r *InmemRepo) AddAlias(locator string, id identity.ProfileID) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.aliases[locator] = id
}

// List streams a snapshot of the repository.
func (r *InmemRepo) List(ctx context.Context) *common.Stream[identity.Profile] {
	r.mu.RLock()
	snapshot := make([]identity.Profile, 0, len(r.profiles))
	for _, p := range r.profiles {
		snapshot = append(snapshot, p.Clone())
	}
	r.mu.RUnlock()

	s := common.NewStream[identity.Profile](r.capacity).BindContext(ctx)
	go func() {
		defer s.Close()
		for _, p := range snapshot {
			if err := s.Send(ctx, p); err != nil {
				return
			}
		}
	}()
	return s
}

// Load ...
func (r *InmemRepo) Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	p, ok := r.profiles[id.Key()]
	if !ok {
		return identity.Profile{}, notFound(id)
	}
	return p.Clone(), nil
}

// Resolve accepts "profile:" locators and registered aliases.
func (r *InmemRepo) Resolve(ctx context.Context, locator string) (identity.Profile, error) {
	return resolveWith(ctx, r, locator, func(l string) (identity.ProfileID, bool) {
		r.mu.RLock()
		defer r.mu.RUnlock()
		id, ok := r.aliases[l]
		return id, ok
	})
}

// Len ...
func (r *InmemRepo) Len() int {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return len(r.profiles)
}
