package connector

import (
	"context"
	"fmt"
	"strings"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
)

// LocalScheme prefixes the addresses of in-process homes.
const LocalScheme = "inmem://"

// LocalTransport reaches home nodes running in the same process. It is used
// by tests and by processes that host a home next to their own profiles.
type LocalTransport struct {
	mu    sync.RWMutex
	nodes map[string]*home.Node
}

// NewLocalTransport ...
func NewLocalTransport(nodes ...*home.Node) *LocalTransport {
	t := &LocalTransport{
		nodes: make(map[string]*home.Node),
	}
	for _, n := range nodes {
		t.Add(n)
	}
	return t
}

// Add makes n reachable at every local address of its profile.
func (t *LocalTransport) Add(n *home.Node) {
	p := n.Profile()
	t.mu.Lock()
	defer t.mu.Unlock()
	for _, addr := range p.Home.Addrs {
		if t.Accepts(addr) {
			t.nodes[addr] = n
		}
	}
}

// Accepts ...
func (t *LocalTransport) Accepts(addr string) bool {
	return strings.HasPrefix(addr, LocalScheme)
}

// Dial authenticates s with the node at addr.
func (t *LocalTransport) Dial(ctx context.Context, addr string, homeProfile identity.Profile, s signer.Signer) (Conn, error) {
	t.mu.RLock()
	n, ok := t.nodes[addr]
	t.mu.RUnlock()

	if !ok {
		return nil, fmt.Errorf("%w: nothing listens on %s", common.ErrConnectionFailed, addr)
	}
	if !n.ID().Equal(homeProfile.ID) {
		return nil, fmt.Errorf("%w: %s is served by %s, not %s", common.ErrConnectionFailed, addr, n.ID(), homeProfile.ID)
	}

	h, err := n.Connect(ctx, s)
	if err != nil {
		return nil, err
	}

	return &localConn{Home: h, done: n.Done()}, nil
}

type localConn struct {
	home.Home
	done <-chan struct{}
}

func (c *localConn) Done() <-chan struct{} {
	return c.done
}

func (c *localConn) Close() error {
	return nil
}
