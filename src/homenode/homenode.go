// Package homenode assembles a runnable home node from a Config.
package homenode

import (
	"context"
	"fmt"

	"github.com/mosaicnetworks/homenode/src/config"
	"github.com/mosaicnetworks/homenode/src/crypto/keys"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/net/wamp"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/mosaicnetworks/homenode/src/service"
	"github.com/mosaicnetworks/homenode/src/signer"
	"github.com/mosaicnetworks/homenode/src/store"
	"github.com/sirupsen/logrus"
	"go.uber.org/multierr"
)

// Engine is the object that holds together the different components of a
// home node.
type Engine struct {
	Config  *config.Config
	Signer  *signer.KeySigner
	Profile identity.Profile
	Store   store.Store
	Repo    *profile.CachingRepo
	Node    *home.Node
	Server  *wamp.Server
	Service *service.Service

	directory []*wamp.RemoteRepo
	logger    *logrus.Entry
}

// NewEngine ...
func NewEngine(conf *config.Config) *Engine {
	return &Engine{
		Config: conf,
		logger: conf.Logger(),
	}
}

func (e *Engine) initKey() error {
	if e.Config.Key == nil {
		keyType, err := keys.ParseType(e.Config.KeyType)
		if err != nil {
			return err
		}

		keyfile := keys.NewSimpleKeyfile(e.Config.Keyfile())

		key, generated, err := keyfile.ReadOrGenerate(keyType)
		if err != nil {
			e.logger.WithError(err).Error("Cannot read or generate private key")
			return err
		}

		if generated {
			e.logger.WithField("path", e.Config.Keyfile()).Info("Created a new key")
		}

		e.Config.Key = key
	}

	s, err := signer.New(e.Config.Key)
	if err != nil {
		return err
	}
	e.Signer = s

	p, err := signer.Profile(s, identity.Home{
		Addrs: e.Config.Addrs(),
		Data:  []byte(e.Config.Moniker),
	})
	if err != nil {
		return err
	}
	e.Profile = p

	return nil
}

func (e *Engine) initStore() error {
	if !e.Config.Store {
		e.Store = store.NewInmemStore()

		e.logger.Debug("created new in-mem store")

		return nil
	}

	e.logger.WithField("path", e.Config.DatabaseDir).Debug("Attempting to load or create database")

	st, err := store.NewBadgerStore(e.Config.DatabaseDir, e.logger)
	if err != nil {
		return err
	}
	e.Store = st

	return nil
}

// initRepo connects to the directory homes. A home that cannot be reached is
// skipped.
func (e *Engine) initRepo() error {
	transport := wamp.NewTransport(wamp.TransportConfig{
		Realm:           e.Config.Realm,
		ResponseTimeout: e.Config.Timeout,
	}, e.logger)

	var backends []profile.Repo
	for _, addr := range e.Config.Directory {
		ctx, cancel := context.WithTimeout(context.Background(), e.Config.Timeout)
		repo, err := transport.Repo(ctx, addr)
		cancel()
		if err != nil {
			e.logger.WithError(err).WithField("addr", addr).Warn("Skipping directory home")
			continue
		}
		e.directory = append(e.directory, repo)
		backends = append(backends, repo)
	}

	repo, err := profile.NewCachingRepo(profile.NewMultiRepo(backends...), e.Config.CacheSize, e.logger)
	if err != nil {
		return err
	}
	e.Repo = repo

	return nil
}

func (e *Engine) initNode() error {
	n, err := home.NewNode(e.Signer,
		e.Profile,
		e.Store,
		home.Options{
			ChannelCapacity:   e.Config.ChannelCapacity,
			RequireInvitation: e.Config.RequireInvitation,
			Repo:              e.Repo,
		},
		e.logger)
	if err != nil {
		return fmt.Errorf("failed to initialize node: %s", err)
	}

	e.Node = n

	e.logger.WithFields(logrus.Fields{
		"home_id": e.Profile.ID.String(),
		"addrs":   e.Profile.Home.Addrs,
	}).Debug("HOME")

	return nil
}

func (e *Engine) initServer() error {
	conf := wamp.ServerConfig{
		BindAddr:        e.Config.BindAddr,
		Realm:           e.Config.Realm,
		ChannelCapacity: e.Config.ChannelCapacity,
	}
	if e.Config.TLS {
		conf.CertFile = e.Config.CertFile()
		conf.KeyFile = e.Config.KeyFile()
	}

	s, err := wamp.NewServer(e.Node, conf, e.logger)
	if err != nil {
		return err
	}
	e.Server = s

	return nil
}

func (e *Engine) initService() error {
	if !e.Config.NoService {
		e.Service = service.NewService(e.Config.ServiceAddr,
			e.Node,
			profile.NewMultiRepo(NewHostedRepo(e.Node), e.Repo),
			e.logger)
	}
	return nil
}

// Init initialises the engine's components in order.
func (e *Engine) Init() error {
	if err := e.initKey(); err != nil {
		return err
	}

	if err := e.initStore(); err != nil {
		return err
	}

	if err := e.initRepo(); err != nil {
		return err
	}

	if err := e.initNode(); err != nil {
		return err
	}

	if err := e.initServer(); err != nil {
		return err
	}

	if err := e.initService(); err != nil {
		return err
	}

	return nil
}

// Run serves clients until Shutdown.
func (e *Engine) Run() error {
	if e.Service != nil {
		go e.Service.Serve()
	}

	return e.Server.Run()
}

// Shutdown stops serving and closes the store.
func (e *Engine) Shutdown() error {
	e.logger.Info("Shutting down")

	var err error

	if e.Service != nil {
		err = multierr.Append(err, e.Service.Close())
	}

	if e.Server != nil {
		e.Server.Shutdown()
	}

	if e.Node != nil {
		e.Node.Shutdown()
	}

	for _, repo := range e.directory {
		err = multierr.Append(err, repo.Close())
	}

	if e.Store != nil {
		err = multierr.Append(err, e.Store.Close())
	}

	return err
}

// Keygen writes a new key of type t into keyfile, which must not exist yet.
func Keygen(keyfile string, t keys.Type) (keys.PrivateKey, error) {
	kf := keys.NewSimpleKeyfile(keyfile)

	if _, err := kf.ReadKey(); err == nil {
		return nil, fmt.Errorf("Another key already lives under %s", keyfile)
	}

	key, err := keys.GenerateKey(t)
	if err != nil {
		return nil, err
	}

	if err := kf.WriteKey(key); err != nil {
		return nil, err
	}

	return key, nil
}
