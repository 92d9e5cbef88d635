package identity

import (
	"errors"
	"fmt"
)

var (
	// ErrInvalidFacets is returned when a profile does not carry exactly one
	// facet, or mixes Persona and Home facets.
	ErrInvalidFacets = errors.New("invalid facets")

	// ErrKeyMismatch means a profile id was not derived from its public key.
	ErrKeyMismatch = errors.New("profile id does not match public key")
)

// Facet is either a Persona or a Home.
type Facet interface {
	facet()
}

// Persona is the facet of end-user or application profiles. Homes lists the
// hosted-on-home proofs of the homes serving the profile.
type Persona struct {
	Homes []RelationProof `json:"homes"`
	Data  []byte          `json:"data,omitempty"`
}

// Home is the facet of hosting nodes. Addrs are the addresses the home can be
// reached at.
type Home struct {
	Addrs []string `json:"addrs"`
	Data  []byte   `json:"data,omitempty"`
}

func (Persona) facet() {}
func (Home) facet()    {}

// Profile is the public, shareable identity record.
type Profile struct {
	ID        ProfileID `json:"id"`
	PublicKey PublicKey `json:"public_key"`
	Persona   *Persona  `json:"persona,omitempty"`
	Home      *Home     `json:"home,omitempty"`
}

// NewProfile builds a Profile whose id is derived from pub with the default
// hash. Exactly one facet must be supplied.
func NewProfile(pub PublicKey, facets ...Facet) (Profile, error) {
	id, err := NewProfileID(pub)
	if err != nil {
		return Profile{}, err
	}
	return NewProfileWithID(id, pub, facets...)
}

// NewProfileWithID builds a Profile from an existing id. The id must match
// the public key.
func NewProfileWithID(id ProfileID, pub PublicKey, facets ...Facet) (Profile, error) {
	p := Profile{
		ID:        id,
		PublicKey: pub,
	}

	var personas, homes int
	for _, f := range facets {
		switch v := f.(type) {
		case nil:
			return Profile{}, fmt.Errorf("%w: nil facet", ErrInvalidFacets)
		case Persona:
			personas++
			v.Homes = append([]RelationProof(nil), v.Homes...)
			p.Persona = &v
		case *Persona:
			if v == nil {
				return Profile{}, fmt.Errorf("%w: nil persona", ErrInvalidFacets)
			}
			personas++
			c := v.clone()
			p.Persona = &c
		case Home:
			homes++
			v.Addrs = append([]string(nil), v.Addrs...)
			p.Home = &v
		case *Home:
			if v == nil {
				return Profile{}, fmt.Errorf("%w: nil home", ErrInvalidFacets)
			}
			homes++
			c := v.clone()
			p.Home = &c
		}
	}

	switch {
	case personas > 0 && homes > 0:
		return Profile{}, fmt.Errorf("%w: mixes persona and home facets", ErrInvalidFacets)
	case personas+homes == 0:
		return Profile{}, fmt.Errorf("%w: no facet", ErrInvalidFacets)
	case personas+homes > 1:
		return Profile{}, fmt.Errorf("%w: more than one facet", ErrInvalidFacets)
	}

	if err := p.Validate(); err != nil {
		return Profile{}, err
	}

	return p, nil
}

// Validate checks the facet invariant and that the id is bound to the public
// key.
func (p Profile) Validate() error {
	if (p.Persona == nil) == (p.Home == nil) {
		return fmt.Errorf("%w: profile %s must have exactly one facet", ErrInvalidFacets, p.ID)
	}
	if !p.ID.Matches(p.PublicKey) {
		return fmt.Errorf("%w: %s", ErrKeyMismatch, p.ID)
	}
	return nil
}

// IsPersona ...
func (p Profile) IsPersona() bool {
	return p.Persona != nil
}

// IsHome ...
func (p Profile) IsHome() bool {
	return p.Home != nil
}

// HomeProofs returns the hosted-on-home proofs of a Persona profile, in the
// order they were added.
func (p Profile) HomeProofs() []RelationProof {
	if p.Persona == nil {
		return nil
	}
	var res []RelationProof
	for _, proof := range p.Persona.Homes {
		if proof.RelationType == RelationTypeHostedOnHome {
			res = append(res, proof)
		}
	}
	return res
}

// Clone returns a deep copy so that callers can modify the result without
// affecting p.
func (p Profile) Clone() Profile {
	c := Profile{
		ID:        append(ProfileID(nil), p.ID...),
		PublicKey: append(PublicKey(nil), p.PublicKey...),
	}
	if p.Persona != nil {
		persona := p.Persona.clone()
		c.Persona = &persona
	}
	if p.Home != nil {
		home := p.Home.clone()
		c.Home = &home
	}
	return c
}

func (f *Persona) clone() Persona {
	c := Persona{
		Data: append([]byte(nil), f.Data...),
	}
	for _, h := range f.Homes {
		c.Homes = append(c.Homes, h.Clone())
	}
	return c
}

func (f *Home) clone() Home {
	return Home{
		Addrs: append([]string(nil), f.Addrs...),
		Data:  append([]byte(nil), f.Data...),
	}
}

// OwnProfile is a Profile plus the owner's private payload. The home stores
// PrivateData without interpreting it.
type OwnProfile struct {
	Profile     Profile `json:"profile"`
	PrivateData []byte  `json:"private_data,omitempty"`
}

// NewOwnProfile builds an OwnProfile, rejecting invalid facet lists like
// NewProfile.
func NewOwnProfile(pub PublicKey, privateData []byte, facets ...Facet) (OwnProfile, error) {
	p, err := NewProfile(pub, facets...)
	if err != nil {
		return OwnProfile{}, err
	}
	return OwnProfile{Profile: p, PrivateData: privateData}, nil
}

// ID returns the id of the public profile.
func (o OwnProfile) ID() ProfileID {
	return o.Profile.ID
}

// Clone returns a copy sharing no slices with o.
func (o OwnProfile) Clone() OwnProfile {
	return OwnProfile{
		Profile:     o.Profile.Clone(),
		PrivateData: append([]byte(nil), o.PrivateData...),
	}
}
