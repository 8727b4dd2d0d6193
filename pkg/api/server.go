package api

import (
	"context"
	"crypto/rand"
	"fmt"
	"net"
	"net/http"
	"sync"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"

	"github.com/marmos91/ntlmgate/internal/logger"
	"github.com/marmos91/ntlmgate/pkg/config"
	"github.com/marmos91/ntlmgate/pkg/handshake"
	"github.com/marmos91/ntlmgate/pkg/identity"
	promMetrics "github.com/marmos91/ntlmgate/pkg/metrics/prometheus"
	"github.com/marmos91/ntlmgate/pkg/ntlm"
)

// Server is the ntlmgate HTTP server: the NTLM handshake endpoint, the
// protected application, health probes, and optional metrics, on one
// listener.
//
// The server supports graceful shutdown with configurable timeout.
type Server struct {
	server       *http.Server
	config       *config.Config
	store        *identity.FileUserStore
	cache        *handshake.MemoryStateCache
	shutdownOnce sync.Once
}

// NewServer assembles a server from the configuration: user store,
// handshake controller, session manager, router.
//
// The server is created in a stopped state. Call Start() to begin serving
// requests. protected is the application served behind authentication; nil
// uses the built-in /whoami surface.
func NewServer(cfg *config.Config, protected http.Handler) (*Server, error) {
	store, err := identity.NewFileUserStore(cfg.Auth.UsersFile)
	if err != nil {
		return nil, fmt.Errorf("failed to open users file: %w", err)
	}
	if cfg.Auth.WatchUsersFile {
		if err := store.Watch(); err != nil {
			logger.Warn("users file watch unavailable", logger.KeyError, err)
		}
	}

	var registry *prometheus.Registry
	var metrics handshake.Metrics
	if cfg.Metrics.Enabled {
		registry = prometheus.NewRegistry()
		registry.MustRegister(
			collectors.NewGoCollector(),
			collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
		)
		metrics = promMetrics.NewHandshakeMetrics(registry)
	}

	cache := handshake.NewMemoryStateCache(cfg.Auth.CacheTTL, metrics)

	validator := handshake.NewLocalValidator(store, ntlm.ChallengeTarget{
		Name:   cfg.Auth.TargetName,
		Domain: cfg.Auth.TargetDomain,
	})

	controller := handshake.NewController(
		cfg.Auth.CallbackPath,
		cache,
		validator,
		newTokenSource(cfg.Auth),
		metrics,
	)

	sessions := NewSessionManager(cfg.Session)

	router := NewRouter(RouterDeps{
		Controller: controller,
		Sessions:   sessions,
		Protected:  protected,
		Metrics:    cfg.Metrics,
		Registry:   registry,
	})

	server := &http.Server{
		Addr:         net.JoinHostPort(cfg.Server.Host, fmt.Sprintf("%d", cfg.Server.Port)),
		Handler:      router,
		ReadTimeout:  cfg.Server.ReadTimeout,
		WriteTimeout: cfg.Server.WriteTimeout,
		IdleTimeout:  cfg.Server.IdleTimeout,
	}

	return &Server{
		server: server,
		config: cfg,
		store:  store,
		cache:  cache,
	}, nil
}

// newTokenSource builds the configured session token source.
func newTokenSource(cfg config.AuthConfig) handshake.TokenSource {
	if cfg.TokenMode == config.TokenModeRandom {
		return handshake.RandomTokenSource{}
	}

	secret := []byte(cfg.TokenSecret)
	if len(secret) == 0 {
		logger.Warn("no token secret configured, using a random per-process secret; " +
			"tokens will not be stable across restarts")
		secret = make([]byte, 32)
		_, _ = rand.Read(secret)
	}
	return handshake.NewDeterministicTokenSource(secret, nil)
}

// Start starts the HTTP server and blocks until the context is cancelled
// or an error occurs.
//
// When the context is cancelled, Start initiates graceful shutdown and
// returns.
func (s *Server) Start(ctx context.Context) error {
	errChan := make(chan error, 1)
	go func() {
		logger.Info("server listening",
			"addr", s.server.Addr,
			"callback_path", s.config.Auth.CallbackPath)

		if err := s.server.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			select {
			case errChan <- err:
			default:
				// Context was cancelled, error is not needed
			}
		}
	}()

	select {
	case <-ctx.Done():
		logger.Info("server shutdown signal received")
		// Don't reuse the cancelled ctx: it would abort shutdown immediately
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.config.ShutdownTimeout)
		defer cancel()
		return s.Stop(shutdownCtx)
	case err := <-errChan:
		return fmt.Errorf("server failed: %w", err)
	}
}

// Stop initiates graceful shutdown.
//
// Stop is safe to call multiple times and safe to call concurrently with
// Start().
func (s *Server) Stop(ctx context.Context) error {
	var shutdownErr error
	s.shutdownOnce.Do(func() {
		logger.Debug("server shutdown initiated")

		if err := s.server.Shutdown(ctx); err != nil {
			shutdownErr = fmt.Errorf("server shutdown error: %w", err)
			logger.Error("server shutdown error", logger.KeyError, err)
		} else {
			logger.Info("server stopped gracefully")
		}

		s.cache.Close()
		if err := s.store.Close(); err != nil {
			logger.Warn("users file watcher close failed", logger.KeyError, err)
		}
	})
	return shutdownErr
}

// Addr returns the configured listen address.
func (s *Server) Addr() string {
	return s.server.Addr
}
