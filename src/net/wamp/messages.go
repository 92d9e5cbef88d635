package wamp

import (
	"encoding/json"
	"fmt"
	"io"
	"strings"

	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/homenode/src/identity"
)

// Procedures.
const (
	ProcHello          = "homenode.hello"
	ProcAuthenticate   = "homenode.authenticate"
	ProcClaim          = "homenode.claim"
	ProcRegister       = "homenode.register"
	ProcLogin          = "homenode.login"
	ProcPairRequest    = "homenode.pair_request"
	ProcPairResponse   = "homenode.pair_response"
	ProcCall           = "homenode.call"
	ProcLoadProfile    = "homenode.load_profile"
	ProcListProfiles   = "homenode.list_profiles"
	ProcSessionUpdate  = "homenode.session.update"
	ProcSessionUnreg   = "homenode.session.unregister"
	ProcSessionPing    = "homenode.session.ping"
	ProcSessionEvents  = "homenode.session.events"
	ProcSessionCheckin = "homenode.session.checkin"
	ProcSessionCancel  = "homenode.session.cancel"
	ProcSessionAnswer  = "homenode.session.answer"
	ProcSessionClose   = "homenode.session.close"
)

const metaSessionOnLeave = "wamp.session.on_leave"

// Topics are only published by the home, except for the call topics which
// carry the data of both ends.
const (
	sessionTopicPrefix = "homenode.session."
	callTopicPrefix    = "homenode.call."
)

func eventsTopic(session, sub string) string {
	return sessionTopicPrefix + session + ".events." + sub
}

func checkinTopic(session, sub string) string {
	return sessionTopicPrefix + session + ".checkin." + sub
}

func closedTopic(session string) string {
	return sessionTopicPrefix + session + ".closed"
}

func toCalleeTopic(callID string) string {
	return callTopicPrefix + callID + ".to_callee"
}

func toCallerTopic(callID string) string {
	return callTopicPrefix + callID + ".to_caller"
}

type helloReply struct {
	Home  identity.Profile `json:"home"`
	Nonce []byte           `json:"nonce"`
}

type authRequest struct {
	ID        identity.ProfileID `json:"id"`
	PublicKey identity.PublicKey `json:"public_key"`
	Nonce     []byte             `json:"nonce"`
	Signature identity.Signature `json:"signature"`
}

type registerRequest struct {
	Own    identity.OwnProfile        `json:"own"`
	Half   identity.RelationHalfProof `json:"half"`
	Invite *identity.HomeInvitation   `json:"invite,omitempty"`
}

type callRequest struct {
	CallID  string                 `json:"call_id"`
	Proof   identity.RelationProof `json:"proof"`
	AppID   string                 `json:"app_id"`
	Init    []byte                 `json:"init,omitempty"`
	Reverse bool                   `json:"reverse"`
}

type incomingCallMsg struct {
	CallID  string                 `json:"call_id"`
	Caller  identity.ProfileID     `json:"caller"`
	Proof   identity.RelationProof `json:"proof"`
	AppID   string                 `json:"app_id"`
	Init    []byte                 `json:"init,omitempty"`
	Reverse bool                   `json:"reverse"`
}

// frame is one item of a topic.
type frame struct {
	Payload json.RawMessage `json:"payload,omitempty"`
	Close   bool            `json:"close,omitempty"`
	Kinds   []string        `json:"kinds,omitempty"`
	Message string          `json:"message,omitempty"`
}

func itemFrame(v interface{}) (frame, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return frame{}, err
	}
	return frame{Payload: raw}, nil
}

// closeFrame ends a topic. io.EOF is a clean end.
func closeFrame(err error) frame {
	f := frame{Close: true}
	if err != nil && err != io.EOF {
		f.Kinds = kindURIs(err)
		f.Message = err.Error()
	}
	return f
}

// err returns the error a close frame carries, io.EOF for a clean end.
func (f frame) err() error {
	if f.Message == "" && len(f.Kinds) == 0 {
		return io.EOF
	}
	if res := fromURIs(strings.Join(f.Kinds, " "), f.Message); res != nil {
		return res
	}
	return fmt.Errorf("%s", f.Message)
}

func encode(v interface{}) (string, error) {
	raw, err := json.Marshal(v)
	if err != nil {
		return "", err
	}
	return string(raw), nil
}

func argString(args wamp.List, i int) (string, error) {
	if len(args) <= i {
		return "", fmt.Errorf("missing argument %d", i)
	}
	s, ok := wamp.AsString(args[i])
	if !ok {
		return "", fmt.Errorf("argument %d is not a string", i)
	}
	return s, nil
}

func decodeArg(args wamp.List, i int, v interface{}) error {
	s, err := argString(args, i)
	if err != nil {
		return err
	}
	if err := json.Unmarshal([]byte(s), v); err != nil {
		return fmt.Errorf("argument %d: %v", i, err)
	}
	return nil
}

func decodeFrame(args wamp.List) (frame, error) {
	var f frame
	err := decodeArg(args, 0, &f)
	return f, err
}
