// Package profile implements profile repositories: lookup of public profiles
// by id or by an external locator, over different backing stores.
package profile

import (
	"context"
	"fmt"
	"strings"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// LocatorPrefix is the scheme of locators that embed a profile id, eg.
// "profile:QmYwAPJzv5CZsnA625s3Xf2nemtYgPpHdWEz79ojWnPbdG".
const LocatorPrefix = "profile:"

// Repo is the capability to look up public profiles.
type Repo interface {
	// List returns a lazy sequence of profiles in no particular order. The
	// consumer may stop early by cancelling the stream.
	List(ctx context.Context) *common.Stream[identity.Profile]

	// Load returns the profile with the given id, or an error wrapping
	// common.ErrNotFound. It never substitutes another profile.
	Load(ctx context.Context, id identity.ProfileID) (identity.Profile, error)

	// Resolve maps an external locator to a profile, or fails with an error
	// wrapping common.ErrResolutionFailed.
	Resolve(ctx context.Context, locator string) (identity.Profile, error)
}

// Setter is implemented by repositories that accept local writes.
type Setter interface {
	Set(p identity.Profile) error
}

// LocatorID extracts the profile id embedded in a "profile:" locator.
func LocatorID(locator string) (identity.ProfileID, bool) {
	if !strings.HasPrefix(locator, LocatorPrefix) {
		return nil, false
	}
	id, err := identity.ParseProfileID(strings.TrimPrefix(locator, LocatorPrefix))
	if err != nil {
		return nil, false
	}
	return id, true
}

// Locator returns the "profile:" locator of id.
func Locator(id identity.ProfileID) string {
	return LocatorPrefix + id.String()
}

func notFound(id identity.ProfileID) error {
	return fmt.Errorf("%w: profile %s", common.ErrNotFound, id)
}

func unresolved(locator string, cause error) error {
	if cause != nil {
		return fmt.Errorf("%w: %s: %v", common.ErrResolutionFailed, locator, cause)
	}
	return fmt.Errorf("%w: %s", common.ErrResolutionFailed, locator)
}

// resolveWith implements the locator rules shared by repositories: a
// "profile:" locator is loaded by id, anything else goes through alias.
func resolveWith(ctx context.Context, repo Repo, locator string, alias func(string) (identity.ProfileID, bool)) (identity.Profile, error) {
	id, ok := LocatorID(locator)
	if !ok && alias != nil {
		id, ok = alias(locator)
	}
	if !ok {
		return identity.Profile{}, unresolved(locator, nil)
	}
	p, err := repo.Load(ctx, id)
	if err != nil {
		return identity.Profile{}, unresolved(locator, err)
	}
	return p, nil
}
