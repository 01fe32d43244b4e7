// Package api provides the HTTP server: the REST API for editing alerts and
// the websocket endpoint viewers connect to.
package api

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"time"

	"github.com/rs/zerolog"

	"github.com/good-yellow-bee/alertcast/internal/alerts"
	"github.com/good-yellow-bee/alertcast/internal/api/auth"
	"github.com/good-yellow-bee/alertcast/internal/api/health"
	"github.com/good-yellow-bee/alertcast/internal/session"
	"github.com/good-yellow-bee/alertcast/internal/storage"
)

// Config contains HTTP server configuration.
type Config struct {
	Address            string
	AllowedOrigins     []string // Origins allowed to open websockets; empty allows any
	PingInterval       time.Duration
	WriteTimeout       time.Duration // Per websocket frame
	RateLimitPerSecond float64       // Per client IP on mutating routes; 0 disables
	RateLimitBurst     int
	Users              []auth.User // Basic auth users for mutating routes; empty disables auth
	LockoutThreshold   int
	LockoutDuration    time.Duration
	Verbose            bool
}

// SetDefaults applies default values for missing configuration.
func (c *Config) SetDefaults() {
	if c.Address == "" {
		c.Address = ":8080"
	}
	if c.PingInterval == 0 {
		c.PingInterval = session.DefaultConfig().PingInterval
	}
	if c.WriteTimeout == 0 {
		c.WriteTimeout = session.DefaultConfig().WriteTimeout
	}
	if c.RateLimitPerSecond > 0 && c.RateLimitBurst == 0 {
		c.RateLimitBurst = int(c.RateLimitPerSecond) * 2
		if c.RateLimitBurst < 1 {
			c.RateLimitBurst = 1
		}
	}
	if c.LockoutThreshold == 0 {
		c.LockoutThreshold = 5
	}
	if c.LockoutDuration == 0 {
		c.LockoutDuration = 15 * time.Minute
	}
}

// Server is the HTTP server.
type Server struct {
	config        *Config
	store         *alerts.Store
	source        session.Source
	authn         *auth.Authenticator
	server        *http.Server
	healthHandler *health.Handler
	logger        zerolog.Logger
	handler       http.Handler
}

// New creates a server for store. Viewer sessions subscribe to source,
// normally the hub the store publishes into. stor may be nil, in which
// case no storage readiness check is registered.
func New(cfg *Config, store *alerts.Store, source session.Source, stor storage.Storage, logger zerolog.Logger) (*Server, error) {
	if cfg == nil {
		return nil, fmt.Errorf("config is required")
	}
	if store == nil {
		return nil, fmt.Errorf("alert store is required")
	}
	if source == nil {
		return nil, fmt.Errorf("event source is required")
	}

	cfg.SetDefaults()

	authn, err := auth.NewAuthenticator(cfg.Users, cfg.LockoutThreshold, cfg.LockoutDuration)
	if err != nil {
		return nil, fmt.Errorf("configure auth: %w", err)
	}

	s := &Server{
		config:        cfg,
		store:         store,
		source:        source,
		authn:         authn,
		healthHandler: health.NewHandler(),
		logger:        logger.With().Str("component", "api").Logger(),
	}
	if stor != nil {
		s.healthHandler.RegisterChecker(health.NewStorageChecker(stor.Backend(), stor))
	}

	s.handler = s.setupRouter()
	s.server = &http.Server{
		Addr:        cfg.Address,
		Handler:     s.handler,
		ReadTimeout: 15 * time.Second,
		// WriteTimeout stays 0: websocket sessions are long lived and
		// bound each frame with their own deadline.
		WriteTimeout: 0,
		IdleTimeout:  60 * time.Second,
	}

	return s, nil
}

// Handler returns the root HTTP handler.
func (s *Server) Handler() http.Handler {
	return s.handler
}

// Run starts the HTTP server and blocks until ctx is canceled. Websocket
// sessions inherit ctx and end with it.
func (s *Server) Run(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.config.Address)
	if err != nil {
		return fmt.Errorf("listen on %s: %w", s.config.Address, err)
	}
	return s.Serve(ctx, ln)
}

// Serve runs the server on ln until ctx is canceled.
func (s *Server) Serve(ctx context.Context, ln net.Listener) error {
	s.server.BaseContext = func(net.Listener) context.Context { return ctx }

	errChan := make(chan error, 1)
	go func() {
		s.logger.Info().Str("address", ln.Addr().String()).Msg("HTTP server listening")
		if err := s.server.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errChan <- err
		}
	}()

	select {
	case <-ctx.Done():
		s.logger.Info().Msg("shutting down HTTP server")
		shutdownCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), 10*time.Second)
		defer cancel()
		return s.server.Shutdown(shutdownCtx)
	case err := <-errChan:
		return err
	}
}

// Address returns the configured listen address.
func (s *Server) Address() string {
	return s.config.Address
}

// RegisterHealthChecker adds a readiness checker.
func (s *Server) RegisterHealthChecker(c health.Checker) {
	if s.healthHandler != nil {
		s.healthHandler.RegisterChecker(c)
	}
}
