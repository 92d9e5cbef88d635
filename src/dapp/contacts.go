package dapp

import (
	"sort"
	"sync"

	"github.com/mosaicnetworks/homenode/src/identity"
)

// ContactStore holds the relations an application may call.
type ContactStore interface {
	Contacts() []identity.Relation
	Contact(peer identity.ProfileID) (identity.Relation, bool)
	Add(rel identity.Relation)
}

// InmemContacts implements ContactStore with a map.
type InmemContacts struct {
	mu       sync.RWMutex
	contacts map[string]identity.Relation
}

// NewInmemContacts ...
func NewInmemContacts(rels ...identity.Relation) *InmemContacts {
	c := &InmemContacts{
		contacts: make(map[string]identity.Relation),
	}
	for _, rel := range rels {
		c.Add(rel)
	}
	return c
}

// Contacts returns the relations sorted by peer id.
func (c *InmemContacts) Contacts() []identity.Relation {
	c.mu.RLock()
	defer c.mu.RUnlock()
	res := make([]identity.Relation, 0, len(c.contacts))
	for _, rel := range c.contacts {
		res = append(res, rel)
	}
	sort.Slice(res, func(i, j int) bool {
		return res[i].Peer.ID.String() < res[j].Peer.ID.String()
	})
	return res
}

// Contact ...
func (c *InmemContacts) Contact(peer identity.ProfileID) (identity.Relation, bool) {
	c.mu.RLock()
	defer c.mu.RUnlock()
	rel, ok := c.contacts[peer.Key()]
	return rel, ok
}

// Add replaces any relation with the same peer.
func (c *InmemContacts) Add(rel identity.Relation) {
	c.mu.Lock()
	defer c.mu.Unlock()
	c.contacts[rel.Peer.ID.Key()] = rel
}
