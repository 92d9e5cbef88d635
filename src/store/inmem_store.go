package store

import (
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// InmemStore implements Store with maps. It is safe for concurrent use.
type InmemStore struct {
	mu        sync.RWMutex
	profiles  map[string]identity.OwnProfile
	redirects map[string]identity.Profile
}

// NewInmemStore ...
func NewInmemStore() *InmemStore {
	return &InmemStore{
		profiles:  make(map[string]identity.OwnProfile),
		redirects: make(map[string]identity.Profile),
	}
}

// CreateProfile ...
func (s *InmemStore) CreateProfile(own identity.OwnProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	key := own.ID().Key()
	if _, ok := s.profiles[key]; ok {
		return common.NewStoreErr("Profile", common.KeyAlreadyExists, own.ID().String())
	}
	s.profiles[key] = own.Clone()
	return nil
}

// SetProfile ...
func (s *InmemStore) SetProfile(own identity.OwnProfile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.profiles[own.ID().Key()] = own.Clone()
	return nil
}

// GetProfile ...
func (s *InmemStore) GetProfile(id identity.ProfileID) (identity.OwnProfile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	own, ok := s.profiles[id.Key()]
	if !ok {
		return identity.OwnProfile{}, common.NewStoreErr("Profile", common.KeyNotFound, id.String())
	}
	return own.Clone(), nil
}

// DeleteProfile ...
func (s *InmemStore) DeleteProfile(id identity.ProfileID) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	if _, ok := s.profiles[id.Key()]; !ok {
		return common.NewStoreErr("Profile", common.KeyNotFound, id.String())
	}
	delete(s.profiles, id.Key())
	return nil
}

// ProfileIDs ...
func (s *InmemStore) ProfileIDs() ([]identity.ProfileID, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	res := make([]identity.ProfileID, 0, len(s.profiles))
	for _, own := range s.profiles {
		res = append(res, own.ID())
	}
	return res, nil
}

// SetRedirect ...
func (s *InmemStore) SetRedirect(id identity.ProfileID, newHome identity.Profile) error {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.redirects[id.Key()] = newHome.Clone()
	return nil
}

// GetRedirect ...
func (s *InmemStore) GetRedirect(id identity.ProfileID) (identity.Profile, error) {
	s.mu.RLock()
	defer s.mu.RUnlock()
	p, ok := s.redirects[id.Key()]
	if !ok {
		return identity.Profile{}, common.NewStoreErr("Redirect", common.KeyNotFound, id.String())
	}
	return p.Clone(), nil
}

// Close ...
func (s *InmemStore) Close() error {
	return nil
}
