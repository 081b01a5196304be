// Package server wires the HTTP surface: routing, middleware, the auth
// layer, and the HPKE transport wrapper.
package server

import (
	"context"
	"errors"
	"fmt"
	"net/http"
	"time"

	"github.com/rs/zerolog/log"

	"github.com/watzon/syncstore/internal/acl"
	"github.com/watzon/syncstore/internal/auth"
	"github.com/watzon/syncstore/internal/config"
	"github.com/watzon/syncstore/internal/maintenance"
	"github.com/watzon/syncstore/internal/service"
	"github.com/watzon/syncstore/internal/store"
	"github.com/watzon/syncstore/internal/user"
)

// Version is reported by the health endpoint.
const Version = "0.1.0"

// Server owns the HTTP listener and the component graph behind it.
type Server struct {
	cfg     *config.Config
	manager *store.Manager
	acls    *acl.Store
	users   *user.Manager
	svc     *service.Service
	jwt     *auth.JWTService

	loginLimiter    *RateLimiter
	registerLimiter *RateLimiter
	bruteForce      *BruteForceProtector

	httpServer  *http.Server
	maintenance *maintenance.Scheduler
}

// New assembles a server over an already-built data manager.
func New(cfg *config.Config, manager *store.Manager) (*Server, error) {
	acls, err := acl.NewStore(cfg.Store.BaseDir, &cfg.Database)
	if err != nil {
		return nil, fmt.Errorf("opening acl store: %w", err)
	}

	users, err := user.NewManager(cfg.Store.BaseDir, &cfg.Database)
	if err != nil {
		acls.Close()
		return nil, fmt.Errorf("opening user store: %w", err)
	}

	s := &Server{
		cfg:     cfg,
		manager: manager,
		acls:    acls,
		users:   users,
		svc:     service.New(manager, acls),
		jwt:     auth.NewJWTService(cfg.Auth.JWT),

		loginLimiter:    NewRateLimiter(cfg.Auth.RateLimit.Login),
		registerLimiter: NewRateLimiter(cfg.Auth.RateLimit.Register),
		bruteForce:      NewBruteForceProtector(cfg.Auth.BruteForce.Threshold, cfg.Auth.BruteForce.Window),
	}

	targets := []maintenance.Target{
		{Name: "acls", DB: acls.DB()},
		{Name: "users", DB: users.Backend().DB()},
	}
	for _, ns := range manager.Namespaces() {
		backend, err := manager.BackendFor(ns)
		if err != nil {
			continue
		}
		targets = append(targets, maintenance.Target{Name: ns, DB: backend.DB()})
	}
	sched, err := maintenance.New(&cfg.Maintenance, targets)
	if err != nil {
		s.loginLimiter.Stop()
		s.registerLimiter.Stop()
		s.bruteForce.Stop()
		s.closeStores()
		return nil, fmt.Errorf("building maintenance scheduler: %w", err)
	}
	s.maintenance = sched

	router := NewRouter(s)
	s.httpServer = &http.Server{
		Addr:         cfg.Server.Address(),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return s, nil
}

// Service exposes the authorized facade (used by the router and tests).
func (s *Server) Service() *service.Service {
	return s.svc
}

// Users exposes the user manager.
func (s *Server) Users() *user.Manager {
	return s.users
}

// JWT exposes the token service.
func (s *Server) JWT() *auth.JWTService {
	return s.jwt
}

// Config exposes the loaded configuration.
func (s *Server) Config() *config.Config {
	return s.cfg
}

// Manager exposes the data manager.
func (s *Server) Manager() *store.Manager {
	return s.manager
}

// Start serves until the listener fails or Shutdown is called.
func (s *Server) Start() error {
	if s.maintenance != nil {
		s.maintenance.Start()
	}

	log.Info().
		Str("addr", s.httpServer.Addr).
		Strs("namespaces", s.manager.Namespaces()).
		Msg("Server listening")

	err := s.httpServer.ListenAndServe()
	if errors.Is(err, http.ErrServerClosed) {
		return nil
	}
	return err
}

// Shutdown drains in-flight requests, stops maintenance, and closes every
// store file.
func (s *Server) Shutdown(ctx context.Context) error {
	if s.maintenance != nil {
		s.maintenance.Stop()
	}
	s.loginLimiter.Stop()
	s.registerLimiter.Stop()
	s.bruteForce.Stop()

	shutdownCtx, cancel := context.WithTimeout(ctx, 10*time.Second)
	defer cancel()
	err := s.httpServer.Shutdown(shutdownCtx)

	s.closeStores()
	if closeErr := s.manager.Close(); closeErr != nil && err == nil {
		err = closeErr
	}
	return err
}

func (s *Server) closeStores() {
	if err := s.acls.Close(); err != nil {
		log.Error().Err(err).Msg("Closing acl store failed")
	}
	if err := s.users.Close(); err != nil {
		log.Error().Err(err).Msg("Closing user store failed")
	}
}
