// Package connector opens and shares connections to homes.
//
// A Connector turns the public profile of a home into a live home.Home for a
// given signer. Connections are memoized per (home, signer) pair while they
// are alive, so every gateway of a process that talks to the same home as the
// same profile shares one transport connection.
package connector

import (
	"context"
	"fmt"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
	"golang.org/x/sync/singleflight"
)

// Connector ...
type Connector interface {
	Connect(ctx context.Context, homeProfile identity.Profile, s signer.Signer) (home.Home, error)
}

// Conn is a live, authenticated connection to a home.
type Conn interface {
	home.Home

	// Done is closed when the connection is lost.
	Done() <-chan struct{}

	Close() error
}

// Transport dials homes at addresses it understands.
type Transport interface {
	// Accepts reports whether addr can be dialed by this transport.
	Accepts(addr string) bool

	Dial(ctx context.Context, addr string, homeProfile identity.Profile, s signer.Signer) (Conn, error)
}

// SharedConnector implements Connector on top of a set of transports. It
// returns the same Conn to every caller that connects to the same home with
// the same signer while that Conn is alive.
type SharedConnector struct {
	transports []Transport

	group singleflight.Group

	mu     sync.Mutex
	conns  map[string]Conn
	closed bool

	logger *logrus.Entry
}

// New ...
func New(logger *logrus.Entry, transports ...Transport) *SharedConnector {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}

	return &SharedConnector{
		transports: transports,
		conns:      make(map[string]Conn),
		logger:     logger,
	}
}

func connKey(homeID, signerID identity.ProfileID) string {
	return homeID.Key() + "/" + signerID.Key()
}

// Connect returns the shared connection to homeProfile for s, dialing the
// home's addresses in order if there is none. Concurrent calls for the same
// pair wait for the same dial.
func (c *SharedConnector) Connect(ctx context.Context, homeProfile identity.Profile, s signer.Signer) (home.Home, error) {
	if !homeProfile.IsHome() {
		return nil, fmt.Errorf("%w: %s is not a home", common.ErrConnectionFailed, homeProfile.ID)
	}
	if len(homeProfile.Home.Addrs) == 0 {
		return nil, fmt.Errorf("%w: home %s has no address", common.ErrConnectionFailed, homeProfile.ID)
	}
	if err := homeProfile.Validate(); err != nil {
		return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, err)
	}

	key := connKey(homeProfile.ID, s.ProfileID())

	if conn := c.live(key); conn != nil {
		return conn, nil
	}

	res, err, shared := c.group.Do(key, func() (interface{}, error) {
		if conn := c.live(key); conn != nil {
			return conn, nil
		}
		conn, err := c.dial(ctx, homeProfile, s)
		if err != nil {
			return nil, err
		}
		if err := c.keep(key, conn); err != nil {
			conn.Close()
			return nil, err
		}
		return conn, nil
	})
	if err != nil {
		return nil, err
	}

	c.logger.WithFields(logrus.Fields{
		"home_id":    homeProfile.ID.String(),
		"profile_id": s.ProfileID().String(),
		"shared":     shared,
	}).Debug("Connected to home")

	return res.(Conn), nil
}

func (c *SharedConnector) live(key string) Conn {
	c.mu.Lock()
	defer c.mu.Unlock()
	conn, ok := c.conns[key]
	if !ok {
		return nil
	}
	select {
	case <-conn.Done():
		delete(c.conns, key)
		return nil
	default:
		return conn
	}
}

func (c *SharedConnector) keep(key string, conn Conn) error {
	c.mu.Lock()
	defer c.mu.Unlock()
	if c.closed {
		return fmt.Errorf("%w: connector closed", common.ErrConnectionFailed)
	}
	c.conns[key] = conn

	go func() {
		<-conn.Done()
		c.mu.Lock()
		if c.conns[key] == conn {
			delete(c.conns, key)
		}
		c.mu.Unlock()
	}()

	return nil
}

func (c *SharedConnector) dial(ctx context.Context, homeProfile identity.Profile, s signer.Signer) (Conn, error) {
	var errs error
	for _, addr := range homeProfile.Home.Addrs {
		for _, t := range c.transports {
			if !t.Accepts(addr) {
				continue
			}
			conn, err := t.Dial(ctx, addr, homeProfile, s)
			if err == nil {
				return conn, nil
			}
			c.logger.WithError(err).WithField("addr", addr).Debug("Dial failed")
			errs = multierr.Append(errs, err)
		}
	}
	if errs == nil {
		return nil, fmt.Errorf("%w: no transport for the addresses of %s", common.ErrConnectionFailed, homeProfile.ID)
	}
	return nil, fmt.Errorf("%w: %v", common.ErrConnectionFailed, errs)
}

// Len returns the number of live connections.
func (c *SharedConnector) Len() int {
	c.mu.Lock()
	defer c.mu.Unlock()
	return len(c.conns)
}

// Close closes every connection. Connect fails afterwards.
func (c *SharedConnector) Close() error {
	c.mu.Lock()
	c.closed = true
	conns := c.conns
	c.conns = make(map[string]Conn)
	c.mu.Unlock()

	var err error
	for _, conn := range conns {
		err = multierr.Append(err, conn.Close())
	}
	return err
}
