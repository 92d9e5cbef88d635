package signer

import (
	"fmt"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// Registry keeps the signers of the profiles owned by this process, indexed by
// profile id.
type Registry struct {
	mu      sync.RWMutex
	signers map[string]Signer
}

// NewRegistry ...
func NewRegistry(signers ...Signer) *Registry {
	r := &Registry{
		signers: make(map[string]Signer),
	}
	for _, s := range signers {
		r.Add(s)
	}
	return r
}

// Add registers s, replacing any signer with the same profile id.
func (r *Registry) Add(s Signer) {
	r.mu.Lock()
	defer r.mu.Unlock()
	r.signers[s.ProfileID().Key()] = s
}

// Get ...
func (r *Registry) Get(id identity.ProfileID) (Signer, error) {
	r.mu.RLock()
	defer r.mu.RUnlock()
	s, ok := r.signers[id.Key()]
	if !ok {
		return nil, fmt.Errorf("%w: no signer for %s", common.ErrNotFound, id)
	}
	return s, nil
}

// IDs returns the ids of all registered signers.
func (r *Registry) IDs() []identity.ProfileID {
	r.mu.RLock()
	defer r.mu.RUnlock()
	res := make([]identity.ProfileID, 0, len(r.signers))
	for _, s := range r.signers {
		res = append(res, s.ProfileID())
	}
	return res
}
