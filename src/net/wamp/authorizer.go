package wamp

import (
	"strings"
	"sync"

	"github.com/gammazero/nexus/v3/wamp"
)

// authorizer keeps clients to the topics they were given. Only the server's
// own client may register procedures, publish on session topics or use the
// router meta API. Other clients subscribe with exact matches only, and only
// to the topics of sessions they own.
type authorizer struct {
	mu      sync.RWMutex
	trusted wamp.ID
	owner   func(token string) (wamp.ID, bool)
}

func (a *authorizer) bind(trusted wamp.ID, owner func(token string) (wamp.ID, bool)) {
	a.mu.Lock()
	a.trusted = trusted
	a.owner = owner
	a.mu.Unlock()
}

// Authorize implements router.Authorizer.
func (a *authorizer) Authorize(sess *wamp.Session, msg wamp.Message) (bool, error) {
	a.mu.RLock()
	trusted, owner := a.trusted, a.owner
	a.mu.RUnlock()

	if trusted != 0 && sess.ID == trusted {
		return true, nil
	}
	if owner == nil {
		return false, nil
	}

	switch msg := msg.(type) {
	case *wamp.Register, *wamp.Unregister:
		return false, nil
	case *wamp.Call:
		return !isMetaURI(msg.Procedure), nil
	case *wamp.Subscribe:
		if match, _ := wamp.AsString(msg.Options[wamp.OptMatch]); match != "" && match != wamp.MatchExact {
			return false, nil
		}
		return canSubscribe(sess.ID, string(msg.Topic), owner), nil
	case *wamp.Publish:
		topic := string(msg.Topic)
		return strings.HasPrefix(topic, callTopicPrefix), nil
	}
	return true, nil
}

func isMetaURI(uri wamp.URI) bool {
	return strings.HasPrefix(string(uri), "wamp.")
}

func canSubscribe(id wamp.ID, topic string, owner func(string) (wamp.ID, bool)) bool {
	switch {
	case strings.HasPrefix(topic, callTopicPrefix):
		return true
	case strings.HasPrefix(topic, sessionTopicPrefix):
		token, _, _ := strings.Cut(strings.TrimPrefix(topic, sessionTopicPrefix), ".")
		o, found := owner(token)
		return found && o == id
	}
	return false
}
