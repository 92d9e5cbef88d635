package wamp

import (
	"context"
	"crypto/tls"
	"fmt"
	"net/http"
	"sync"

	"github.com/gammazero/nexus/v3/client"
	"github.com/gammazero/nexus/v3/router"
	"github.com/gammazero/nexus/v3/wamp"
	"github.com/mosaicnetworks/homenode/src/home"
	"github.com/sirupsen/logrus"
)

// ServerConfig ...
type ServerConfig struct {
	// BindAddr is the address of the WebSocket listener. The server only
	// accepts in-process clients when it is empty.
	BindAddr string

	Realm string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// ChannelCapacity bounds the call channels created for remote callers.
	ChannelCapacity int
}

// Server exposes a home.Node as procedures and topics of a WAMP realm.
type Server struct {
	node       *home.Node
	conf       ServerConfig
	router     router.Router
	local      *client.Client
	httpServer *http.Server
	logger     *logrus.Entry

	mu       sync.Mutex
	conns    map[string]*serverConn
	sessions map[string]*serverSession
}

// NewServer creates the router, registers the procedures of node and, if
// conf.BindAddr is set, prepares the WebSocket listener started by Run.
func NewServer(node *home.Node, conf ServerConfig, logger *logrus.Entry) (*Server, error) {
	if logger == nil {
		log := logrus.New()
		log.Level = logrus.DebugLevel
		logger = logrus.NewEntry(log)
	}
	if conf.ChannelCapacity <= 0 {
		conf.ChannelCapacity = home.DefaultChannelCapacity
	}

	// In-process clients are checked like remote ones.
	authz := &authorizer{}
	routerConfig := &router.Config{
		RealmConfigs: []*router.RealmConfig{
			{
				URI:               wamp.URI(conf.Realm),
				AnonymousAuth:     true,
				AllowDisclose:     true,
				Authorizer:        authz,
				RequireLocalAuthz: true,
			},
		},
	}

	nxr, err := router.NewRouter(routerConfig, logger)
	if err != nil {
		return nil, err
	}

	local, err := client.ConnectLocal(nxr, client.Config{
		Realm:  conf.Realm,
		Logger: logger,
	})
	if err != nil {
		nxr.Close()
		return nil, err
	}

	s := &Server{
		node:     node,
		conf:     conf,
		router:   nxr,
		local:    local,
		logger:   logger,
		conns:    make(map[string]*serverConn),
		sessions: make(map[string]*serverSession),
	}

	authz.bind(local.ID(), s.sessionOwner)

	if err := s.registerProcedures(); err != nil {
		local.Close()
		nxr.Close()
		return nil, err
	}

	if err := local.Subscribe(metaSessionOnLeave, s.onLeave, nil); err != nil {
		logger.WithError(err).Warn("Connections will not be released on disconnect")
	}

	if conf.BindAddr != "" {
		s.httpServer = &http.Server{
			Handler: router.NewWebsocketServer(nxr),
			Addr:    conf.BindAddr,
		}

		if conf.CertFile != "" && conf.KeyFile != "" {
			cert, err := tls.LoadX509KeyPair(conf.CertFile, conf.KeyFile)
			if err != nil {
				local.Close()
				nxr.Close()
				return nil, fmt.Errorf("error loading X509 key pair: %s", err)
			}
			s.httpServer.TLSConfig = &tls.Config{
				Certificates: []tls.Certificate{cert},
			}
		}
	}

	return s, nil
}

func (s *Server) registerProcedures() error {
	procedures := map[string]client.InvocationHandler{
		ProcHello:          s.hello,
		ProcAuthenticate:   s.authenticate,
		ProcClaim:          s.claim,
		ProcRegister:       s.register,
		ProcLogin:          s.login,
		ProcPairRequest:    s.pairRequest,
		ProcPairResponse:   s.pairResponse,
		ProcCall:           s.call,
		ProcLoadProfile:    s.loadProfile,
		ProcListProfiles:   s.listProfiles,
		ProcSessionUpdate:  s.sessionUpdate,
		ProcSessionUnreg:   s.sessionUnregister,
		ProcSessionPing:    s.sessionPing,
		ProcSessionEvents:  s.sessionEvents,
		ProcSessionCheckin: s.sessionCheckin,
		ProcSessionCancel:  s.sessionCancel,
		ProcSessionAnswer:  s.sessionAnswer,
		ProcSessionClose:   s.sessionClose,
	}

	options := wamp.Dict{wamp.OptDiscloseCaller: true}
	for name, fn := range procedures {
		if err := s.local.Register(name, fn, options); err != nil {
			s.logger.WithError(err).WithField("procedure", name).Error("Failed to register procedure")
			return err
		}
	}

	s.logger.WithField("realm", s.conf.Realm).Debug("Registered procedures with router")

	return nil
}

// Router returns the embedded router, for in-process clients.
func (s *Server) Router() router.Router {
	return s.router
}

// Realm ...
func (s *Server) Realm() string {
	return s.conf.Realm
}

// Addr returns the address of the WebSocket listener.
func (s *Server) Addr() string {
	return s.conf.BindAddr
}

// Run serves WebSocket clients until Shutdown. It returns immediately when
// there is no listener.
func (s *Server) Run() error {
	if s.httpServer == nil {
		return nil
	}

	s.logger.WithField("addr", s.conf.BindAddr).Info("Serving WAMP")

	var err error
	if s.httpServer.TLSConfig != nil {
		// The certificate is already loaded in TLSConfig.
		err = s.httpServer.ListenAndServeTLS("", "")
	} else {
		err = s.httpServer.ListenAndServe()
	}
	if err != nil && err != http.ErrServerClosed {
		s.logger.WithError(err).Error("Run")
		return err
	}
	return nil
}

// Shutdown closes every remote session, the listener and the router.
func (s *Server) Shutdown() {
	s.mu.Lock()
	sessions := make([]*serverSession, 0, len(s.sessions))
	for _, ss := range s.sessions {
		sessions = append(sessions, ss)
	}
	s.conns = make(map[string]*serverConn)
	s.mu.Unlock()

	for _, ss := range sessions {
		ss.session.Close()
	}

	if s.httpServer != nil {
		if err := s.httpServer.Shutdown(context.Background()); err != nil {
			s.logger.WithError(err).Error("Shutting down http server")
		}
	}

	s.local.Close()
	s.router.Close()
}

// onLeave releases the connections and sessions of a client that left the
// realm.
func (s *Server) onLeave(ev *wamp.Event) {
	if len(ev.Arguments) == 0 {
		return
	}
	id, ok := wamp.AsID(ev.Arguments[0])
	if !ok {
		return
	}

	var orphans []*serverSession

	s.mu.Lock()
	for tok, c := range s.conns {
		if c.owner == id {
			delete(s.conns, tok)
		}
	}
	for _, ss := range s.sessions {
		if ss.owner == id {
			orphans = append(orphans, ss)
		}
	}
	s.mu.Unlock()

	// Closing a session only takes the node's locks; it never calls back into
	// the client.
	for _, ss := range orphans {
		go ss.session.Close()
	}
}

// sessionOwner returns the client that opened the session of token.
func (s *Server) sessionOwner(token string) (wamp.ID, bool) {
	s.mu.Lock()
	defer s.mu.Unlock()
	ss, found := s.sessions[token]
	if !found {
		return 0, false
	}
	return ss.owner, true
}

func callerID(inv *wamp.Invocation) wamp.ID {
	v, ok := inv.Details["caller"]
	if !ok {
		return 0
	}
	id, _ := wamp.AsID(v)
	return id
}
