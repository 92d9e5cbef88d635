package wamp

import (
	"context"
	"encoding/json"
	"fmt"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/google/uuid"
	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
)

var discloseMe = wamp.Dict{"disclose_me": true}

// RemoteHome is a home reached over WAMP, authenticated as one profile. It
// implements home.Home and connector.Conn.
type RemoteHome struct {
	cli      *client.Client
	token    string
	homeID   identity.ProfileID
	profile  identity.ProfileID
	capacity int
	logger   *logrus.Entry
}

// Authenticate runs the challenge of the home at the other end of cli with
// s. The home must be homeProfile.
func Authenticate(ctx context.Context,
	cli *client.Client,
	homeProfile identity.Profile,
	s signer.Signer,
	capacity int,
	logger *logrus.Entry) (*RemoteHome, error) {

	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if capacity <= 0 {
		capacity = home.DefaultChannelCapacity
	}

	res, err := cli.Call(ctx, ProcHello, nil, nil, nil, nil)
	if err != nil {
		return nil, mapCallError(err)
	}
	var hello helloReply
	if err := decodeArg(res.Arguments, 0, &hello); err != nil {
		return nil, fmt.Errorf("%w: hello: %v", common.ErrConnectionFailed, err)
	}
	if !hello.Home.ID.Equal(homeProfile.ID) {
		return nil, fmt.Errorf("%w: expected home %s, found %s", common.ErrConnectionFailed, homeProfile.ID, hello.Home.ID)
	}

	sig, err := s.Sign(home.AuthPayload(homeProfile.ID, hello.Nonce))
	if err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}
	req, err := encode(authRequest{
		ID:        s.ProfileID(),
		PublicKey: s.PublicKey(),
		Nonce:     hello.Nonce,
		Signature: sig,
	})
	if err != nil {
		return nil, err
	}

	res, err = cli.Call(ctx, ProcAuthenticate, discloseMe, wamp.List{req}, nil, nil)
	if err != nil {
		return nil, mapCallError(err)
	}
	token, err := argString(res.Arguments, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: authenticate: %v", common.ErrConnectionFailed, err)
	}

	return &RemoteHome{
		cli:      cli,
		token:    token,
		homeID:   homeProfile.ID,
		profile:  s.ProfileID(),
		capacity: capacity,
		logger: logger.WithFields(logrus.Fields{
			"home_id":    homeProfile.ID.String(),
			"profile_id": s.ProfileID().String(),
		}),
	}, nil
}

// call invokes procedure with the connection token and JSON-encoded
// arguments.
func (h *RemoteHome) call(ctx context.Context, procedure string, args ...interface{}) (*wamp.Result, error) {
	list := wamp.List{h.token}
	for _, a := range args {
		if str, isString := a.(string); isString {
			list = append(list, str)
			continue
		}
		raw, err := encode(a)
		if err != nil {
			return nil, err
		}
		list = append(list, raw)
	}
	res, err := h.cli.Call(ctx, procedure, discloseMe, list, nil, nil)
	if err != nil {
		return nil, mapCallError(err)
	}
	return res, nil
}

// Claim ...
func (h *RemoteHome) Claim(ctx context.Context, id identity.ProfileID) (identity.OwnProfile, error) {
	res, err := h.call(ctx, ProcClaim, id.String())
	if err != nil {
		return identity.OwnProfile{}, err
	}
	var own identity.OwnProfile
	if err := decodeArg(res.Arguments, 0, &own); err != nil {
		return identity.OwnProfile{}, fmt.Errorf("%w: claim: %v", common.ErrConnectionFailed, err)
	}
	return own, nil
}

// Register returns own, untouched, with the error when it fails.
func (h *RemoteHome) Register(ctx context.Context,
	own identity.OwnProfile,
	half identity.RelationHalfProof,
	invite *identity.HomeInvitation) (identity.OwnProfile, error) {

	res, err := h.call(ctx, ProcRegister, registerRequest{Own: own, Half: half, Invite: invite})
	if err != nil {
		return own, err
	}
	var registered identity.OwnProfile
	if err := decodeArg(res.Arguments, 0, &registered); err != nil {
		return own, fmt.Errorf("%w: register: %v", common.ErrConnectionFailed, err)
	}
	return registered, nil
}

// Login ...
func (h *RemoteHome) Login(ctx context.Context, proof identity.RelationProof) (home.Session, error) {
	res, err := h.call(ctx, ProcLogin, proof)
	if err != nil {
		return nil, err
	}
	token, err := argString(res.Arguments, 0)
	if err != nil {
		return nil, fmt.Errorf("%w: login: %v", common.ErrConnectionFailed, err)
	}
	return newRemoteSession(ctx, h, token)
}

// PairRequest ...
func (h *RemoteHome) PairRequest(ctx context.Context, half identity.RelationHalfProof) error {
	_, err := h.call(ctx, ProcPairRequest, half)
	return err
}

// PairResponse ...
func (h *RemoteHome) PairResponse(ctx context.Context, proof identity.RelationProof) error {
	_, err := h.call(ctx, ProcPairResponse, proof)
	return err
}

// Call subscribes to the replies of a new call id, then asks the home to
// route the call. Once it is accepted, what is written to the returned sink
// is published to the callee.
func (h *RemoteHome) Call(ctx context.Context,
	proof identity.RelationProof,
	appID string,
	init home.AppMessage,
	reverse *home.AppMsgSink) (*home.AppMsgSink, error) {

	callID := uuid.NewString()
	logger := h.logger.WithField("call_id", callID)

	if reverse != nil {
		if err := relayData(h.cli, toCallerTopic(callID), reverse, logger); err != nil {
			reverse.Close()
			return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
		}
	}

	_, err := h.call(ctx, ProcCall, callRequest{
		CallID:  callID,
		Proof:   proof,
		AppID:   appID,
		Init:    init,
		Reverse: reverse != nil,
	})
	if err != nil {
		if reverse != nil {
			reverse.Close()
		}
		return nil, err
	}

	forward, outgoing := home.NewPipe(h.capacity)
	go publishData(h.cli, toCalleeTopic(callID), outgoing, logger)

	return forward, nil
}

// LoadProfile asks the home for a profile it hosts.
func (h *RemoteHome) LoadProfile(ctx context.Context, id identity.ProfileID) (identity.Profile, error) {
	return loadProfile(ctx, h.cli, id)
}

// Done is closed when the connection is lost.
func (h *RemoteHome) Done() <-chan struct{} {
	return h.cli.Done()
}

// Close ...
func (h *RemoteHome) Close() error {
	return h.cli.Close()
}

func loadProfile(ctx context.Context, cli *client.Client, id identity.ProfileID) (identity.Profile, error) {
	res, err := cli.Call(ctx, ProcLoadProfile, nil, wamp.List{id.String()}, nil, nil)
	if err != nil {
		return identity.Profile{}, mapCallError(err)
	}
	var p identity.Profile
	if err := decodeArg(res.Arguments, 0, &p); err != nil {
		return identity.Profile{}, fmt.Errorf("%w: load_profile: %v", common.ErrConnectionFailed, err)
	}
	if !p.ID.Equal(id) {
		return identity.Profile{}, fmt.Errorf("%w: asked for %s, got %s", common.ErrNotFound, id, p.ID)
	}
	return p, nil
}

func listProfiles(ctx context.Context, cli *client.Client) ([]identity.Profile, error) {
	res, err := cli.Call(ctx, ProcListProfiles, nil, nil, nil, nil)
	if err != nil {
		return nil, mapCallError(err)
	}
	var ps []identity.Profile
	if err := decodeArg(res.Arguments, 0, &ps); err != nil {
		return nil, fmt.Errorf("%w: list_profiles: %v", common.ErrConnectionFailed, err)
	}
	return ps, nil
}

func decodePayload(f frame, v interface{}) error {
	return json.Unmarshal(f.Payload, v)
}
