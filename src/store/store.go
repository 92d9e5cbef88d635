// Package store implements the persistence of a home: the profiles it hosts,
// with their private data, and the successor homes of profiles that left.
package store

import (
	"bytes"

	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/ugorji/go/codec"
)

// Store is the storage collaborator of a home. Lookups that miss return a
// common.StoreErr of type KeyNotFound; CreateProfile returns KeyAlreadyExists
// for duplicates.
type Store interface {
	// CreateProfile stores a profile that is not hosted yet.
	CreateProfile(own identity.OwnProfile) error

	// SetProfile creates or replaces the profile keyed by its id.
	SetProfile(own identity.OwnProfile) error

	GetProfile(id identity.ProfileID) (identity.OwnProfile, error)
	DeleteProfile(id identity.ProfileID) error
	ProfileIDs() ([]identity.ProfileID, error)

	// SetRedirect records the home a profile moved to.
	SetRedirect(id identity.ProfileID, newHome identity.Profile) error
	GetRedirect(id identity.ProfileID) (identity.Profile, error)

	Close() error
}

// encode and decode use ugorji's JSON handle for stored values.
func encode(v interface{}) ([]byte, error) {
	var b bytes.Buffer
	jh := new(codec.JsonHandle)
	enc := codec.NewEncoder(&b, jh)
	if err := enc.Encode(v); err != nil {
		return nil, err
	}
	return b.Bytes(), nil
}

func decode(data []byte, v interface{}) error {
	b := bytes.NewBuffer(data)
	jh := new(codec.JsonHandle)
	dec := codec.NewDecoder(b, jh)
	return dec.Decode(v)
}
