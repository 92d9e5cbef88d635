package common

import "errors"

// Error kinds shared by every layer of the home protocol. Concrete failures
// wrap one of these with fmt.Errorf("%w: ...") so that callers can test the
// kind with errors.Is regardless of where the failure originated.
var (
	// ErrNotFound is returned when a lookup misses in a repository or store.
	ErrNotFound = errors.New("not found")

	// ErrResolutionFailed is returned when an external locator can not be
	// resolved to a profile.
	ErrResolutionFailed = errors.New("resolution failed")

	// ErrConnectionFailed is returned by connectors and transports.
	ErrConnectionFailed = errors.New("connection failed")

	// ErrLoginFailed means there was no usable hosted-on-home proof or the
	// home rejected the credentials.
	ErrLoginFailed = errors.New("login failed")

	// ErrRegistrationFailed covers facet mismatches, duplicate registrations
	// and storage failures during register.
	ErrRegistrationFailed = errors.New("registration failed")

	// ErrPairingFailed means no relation was found or the handshake did not
	// complete.
	ErrPairingFailed = errors.New("pairing failed")

	// ErrCallRefused is returned when the callee declines or can not take a
	// call.
	ErrCallRefused = errors.New("call refused")

	// ErrInvalidProof is returned when a relation proof or half-proof fails
	// signature verification.
	ErrInvalidProof = errors.New("invalid proof")

	// ErrUnimplemented is reserved for extension points that are not
	// available, such as pairing-on-demand.
	ErrUnimplemented = errors.New("unimplemented")

	// ErrSessionClosed is returned by operations on a session that was
	// replaced, unregistered or closed.
	ErrSessionClosed = errors.New("session closed")
)
