package wamp

import (
	"context"
	"errors"
	"fmt"
	"strings"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/homenode/src/common"
)

// Error URIs. A failure that belongs to several kinds carries the first one
// as the WAMP error and the others as extra arguments.
const (
	ErrURIRegistrationFailed = "io.homenode.error.registration_failed"
	ErrURILoginFailed        = "io.homenode.error.login_failed"
	ErrURIPairingFailed      = "io.homenode.error.pairing_failed"
	ErrURICallRefused        = "io.homenode.error.call_refused"
	ErrURIConnectionFailed   = "io.homenode.error.connection_failed"
	ErrURIResolutionFailed   = "io.homenode.error.resolution_failed"
	ErrURINotFound           = "io.homenode.error.not_found"
	ErrURIInvalidProof       = "io.homenode.error.invalid_proof"
	ErrURIUnimplemented      = "io.homenode.error.unimplemented"
	ErrURISessionClosed      = "io.homenode.error.session_closed"
	ErrURIBadRequest         = "io.homenode.error.bad_request"
	ErrURIInternal           = "io.homenode.error.internal"
)

var errorKinds = []struct {
	uri string
	err error
}{
	{ErrURIRegistrationFailed, common.ErrRegistrationFailed},
	{ErrURILoginFailed, common.ErrLoginFailed},
	{ErrURIPairingFailed, common.ErrPairingFailed},
	{ErrURICallRefused, common.ErrCallRefused},
	{ErrURIConnectionFailed, common.ErrConnectionFailed},
	{ErrURIResolutionFailed, common.ErrResolutionFailed},
	{ErrURINotFound, common.ErrNotFound},
	{ErrURIInvalidProof, common.ErrInvalidProof},
	{ErrURIUnimplemented, common.ErrUnimplemented},
	{ErrURISessionClosed, common.ErrSessionClosed},
}

// kindURIs returns the URIs of every kind err belongs to.
func kindURIs(err error) []string {
	var res []string
	for _, k := range errorKinds {
		if errors.Is(err, k.err) {
			res = append(res, k.uri)
		}
	}
	return res
}

func errorResult(err error) client.InvokeResult {
	uris := kindURIs(err)
	if len(uris) == 0 {
		uris = []string{ErrURIInternal}
	}
	args := wamp.List{err.Error()}
	for _, uri := range uris[1:] {
		args = append(args, uri)
	}
	return client.InvokeResult{
		Err:  wamp.URI(uris[0]),
		Args: args,
	}
}

func badRequest(format string, a ...interface{}) client.InvokeResult {
	return client.InvokeResult{
		Err:  wamp.URI(ErrURIBadRequest),
		Args: wamp.List{fmt.Sprintf(format, a...)},
	}
}

// remoteError is an error received from the other end. It unwraps to the
// sentinel of every kind it was sent with.
type remoteError struct {
	kinds []error
	msg   string
}

func (e *remoteError) Error() string {
	return e.msg
}

func (e *remoteError) Unwrap() []error {
	return e.kinds
}

// fromURIs rebuilds an error from the kind URIs found in text.
func fromURIs(text string, msg string) error {
	var kinds []error
	for _, k := range errorKinds {
		if strings.Contains(text, k.uri) {
			kinds = append(kinds, k.err)
		}
	}
	if len(kinds) == 0 {
		return nil
	}
	return &remoteError{kinds: kinds, msg: msg}
}

// mapCallError turns the error of a procedure call into the local kinds. Errors
// without a known kind are connection failures.
func mapCallError(err error) error {
	if err == nil {
		return nil
	}
	if errors.Is(err, context.Canceled) || errors.Is(err, context.DeadlineExceeded) {
		return err
	}
	if res := fromURIs(err.Error(), err.Error()); res != nil {
		return res
	}
	return fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
}
