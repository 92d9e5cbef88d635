package wamp

import (
	"context"
	"crypto/tls"
	"strings"
	"time"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/mosaicnetworks/homenode/src/connector"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/sirupsen/logrus"
)

// TransportConfig ...
type TransportConfig struct {
	Realm string

	// ResponseTimeout bounds the router's answers to subscriptions and
	// registrations. Calls are bounded by their context only.
	ResponseTimeout time.Duration

	ChannelCapacity int

	// TLSConfig is used for wss:// addresses.
	TLSConfig *tls.Config
}

// Transport dials homes at ws:// and wss:// addresses. It implements
// connector.Transport; every Dial opens a new WAMP session.
type Transport struct {
	conf    TransportConfig
	connect func(ctx context.Context, addr string, cfg client.Config) (*client.Client, error)
	logger  *logrus.Entry
}

// NewTransport ...
func NewTransport(conf TransportConfig, logger *logrus.Entry) *Transport {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	return &Transport{
		conf: conf,
		connect: func(ctx context.Context, addr string, cfg client.Config) (*client.Client, error) {
			return client.ConnectNet(ctx, addr, cfg)
		},
		logger: logger,
	}
}

// NewRouterTransport returns a Transport that joins r in-process instead of
// dialing, whatever the address.
func NewRouterTransport(r router.Router, conf TransportConfig, logger *logrus.Entry) *Transport {
	t := NewTransport(conf, logger)
	t.connect = func(ctx context.Context, addr string, cfg client.Config) (*client.Client, error) {
		return client.ConnectLocal(r, cfg)
	}
	return t
}

// Accepts ...
func (t *Transport) Accepts(addr string) bool {
	return strings.HasPrefix(addr, "ws://") || strings.HasPrefix(addr, "wss://")
}

func (t *Transport) clientConfig() client.Config {
	return client.Config{
		Realm:           t.conf.Realm,
		ResponseTimeout: t.conf.ResponseTimeout,
		Logger:          t.logger,
		TlsCfg:          t.conf.TLSConfig,
	}
}

// Dial connects to addr and authenticates s with the home.
func (t *Transport) Dial(ctx context.Context, addr string, homeProfile identity.Profile, s signer.Signer) (connector.Conn, error) {
	cli, err := t.connect(ctx, addr, t.clientConfig())
	if err != nil {
		return nil, err
	}

	h, err := Authenticate(ctx, cli, homeProfile, s, t.conf.ChannelCapacity, t.logger)
	if err != nil {
		cli.Close()
		return nil, err
	}

	t.logger.WithFields(logrus.Fields{
		"addr":    addr,
		"home_id": homeProfile.ID.String(),
	}).Debug("Dialed home")

	return h, nil
}

// Repo dials addr and returns a profile repository backed by the home found
// there.
func (t *Transport) Repo(ctx context.Context, addr string) (*RemoteRepo, error) {
	cli, err := t.connect(ctx, addr, t.clientConfig())
	if err != nil {
		return nil, err
	}
	return NewRemoteRepo(cli), nil
}
