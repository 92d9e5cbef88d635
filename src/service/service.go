package service

import (
	"encoding/json"
	"errors"
	"net/http"
	"sync"

	"github.com/mosaicnetworks/homenode/src/common"
	"github.com/mosaicnetworks/homenode/src/identity"
	"github.com/mosaicnetworks/homenode/src/profile"
	"github.com/sirupsen/logrus"
)

// StatsSource is implemented by home.Node.
type StatsSource interface {
	GetStats() map[string]string
}

// Service is the HTTP status API of a home node.
type Service struct {
	sync.Mutex

	bindAddress string
	stats       StatsSource
	repo        profile.Repo
	mux         *http.ServeMux
	server      *http.Server
	logger      *logrus.Entry
}

// NewService ...
func NewService(bindAddress string, stats StatsSource, repo profile.Repo, logger *logrus.Entry) *Service {
	service := Service{
		bindAddress: bindAddress,
		stats:       stats,
		repo:        repo,
		mux:         http.NewServeMux(),
		logger:      logger,
	}

	service.registerHandlers()

	return &service
}

func (s *Service) registerHandlers() {
	s.logger.Debug("Registering status API handlers")
	s.mux.HandleFunc("/stats", s.makeHandler(s.GetStats))
	s.mux.HandleFunc("/profile/", s.makeHandler(s.GetProfile))
}

func (s *Service) makeHandler(fn func(http.ResponseWriter, *http.Request)) http.HandlerFunc {
	return func(w http.ResponseWriter, r *http.Request) {
		s.Lock()
		defer s.Unlock()

		// enable CORS
		w.Header().Set("Access-Control-Allow-Origin", "*")

		fn(w, r)
	}
}

// Handler returns the API handlers, to mount them on another server.
func (s *Service) Handler() http.Handler {
	return s.mux
}

// Serve calls ListenAndServe. This is a blocking call.
func (s *Service) Serve() {
	s.logger.WithField("bind_address", s.bindAddress).Debug("Serving status API")

	s.Lock()
	s.server = &http.Server{Addr: s.bindAddress, Handler: s.mux}
	server := s.server
	s.Unlock()

	err := server.ListenAndServe()
	if err != nil && err != http.ErrServerClosed {
		s.logger.Error(err)
	}
}

// Close stops a running Serve.
func (s *Service) Close() error {
	s.Lock()
	server := s.server
	s.Unlock()
	if server == nil {
		return nil
	}
	return server.Close()
}

// GetStats ...
func (s *Service) GetStats(w http.ResponseWriter, r *http.Request) {
	stats := s.stats.GetStats()

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(stats)
}

// GetProfile returns the public profile whose base58 id follows /profile/.
func (s *Service) GetProfile(w http.ResponseWriter, r *http.Request) {
	param := r.URL.Path[len("/profile/"):]

	id, err := identity.ParseProfileID(param)
	if err != nil {
		s.logger.WithError(err).Errorf("Parsing profile id %s", param)

		http.Error(w, err.Error(), http.StatusBadRequest)

		return
	}

	p, err := s.repo.Load(r.Context(), id)
	if err != nil {
		status := http.StatusInternalServerError
		if errors.Is(err, common.ErrNotFound) {
			status = http.StatusNotFound
		} else {
			s.logger.WithError(err).Errorf("Retrieving profile %s", param)
		}

		http.Error(w, err.Error(), status)

		return
	}

	w.Header().Set("Content-Type", "application/json")

	json.NewEncoder(w).Encode(p)
}
