package metrics

import (
	"context"
	"errors"
	"fmt"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/marmos91/storagecloud/internal/logger"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

const (
	// DefaultPort is the metrics port used when none is configured.
	DefaultPort = 9090

	healthcheckTimeout = 5 * time.Second
	drainTimeout       = 5 * time.Second
)

// ServerConfig configures the metrics HTTP server.
type ServerConfig struct {
	// Port to listen on. 0 means DefaultPort.
	Port int
}

// Server exposes the metrics registry and a store health check over HTTP.
//
// Endpoints:
//   - GET /metrics: the process registry
//   - GET /healthz: 200 when the health check passes, 503 otherwise
type Server struct {
	port   int
	server *http.Server

	mu       sync.RWMutex
	health   func(context.Context) error
	listener net.Listener

	stopOnce sync.Once
}

// NewServer creates a metrics server in a stopped state.
func NewServer(config ServerConfig) *Server {
	if config.Port <= 0 {
		config.Port = DefaultPort
	}

	s := &Server{port: config.Port}

	InitRegistry()
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(GetRegistry(), promhttp.HandlerOpts{
		EnableOpenMetrics: true,
	}))
	mux.HandleFunc("GET /healthz", s.handleHealth)

	s.server = &http.Server{
		Addr:              net.JoinHostPort("", strconv.Itoa(config.Port)),
		Handler:           mux,
		ReadHeaderTimeout: 5 * time.Second,
		WriteTimeout:      10 * time.Second,
		IdleTimeout:       60 * time.Second,
	}
	return s
}

// SetHealthcheck installs the check behind /healthz. Without one the
// endpoint always reports healthy.
func (s *Server) SetHealthcheck(check func(context.Context) error) {
	s.mu.Lock()
	defer s.mu.Unlock()
	s.health = check
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	s.mu.RLock()
	check := s.health
	s.mu.RUnlock()

	w.Header().Set("Content-Type", "text/plain")
	if check != nil {
		ctx, cancel := context.WithTimeout(r.Context(), healthcheckTimeout)
		defer cancel()
		if err := check(ctx); err != nil {
			logger.Warn("Healthcheck failed: %v", err)
			w.WriteHeader(http.StatusServiceUnavailable)
			_, _ = fmt.Fprintf(w, "unhealthy: %v\n", err)
			return
		}
	}
	_, _ = fmt.Fprintln(w, "ok")
}

// Start binds the port and serves until ctx is cancelled, then drains open
// requests. A failure to bind is returned immediately.
func (s *Server) Start(ctx context.Context) error {
	ln, err := net.Listen("tcp", s.server.Addr)
	if err != nil {
		return fmt.Errorf("metrics server: %w", err)
	}

	s.mu.Lock()
	s.listener = ln
	s.mu.Unlock()

	logger.Info("Metrics server listening on %s", ln.Addr())

	errCh := make(chan error, 1)
	go func() {
		errCh <- s.server.Serve(ln)
	}()

	select {
	case <-ctx.Done():
		drainCtx, cancel := context.WithTimeout(context.WithoutCancel(ctx), drainTimeout)
		defer cancel()
		return s.Stop(drainCtx)
	case err := <-errCh:
		if errors.Is(err, http.ErrServerClosed) {
			return nil
		}
		return fmt.Errorf("metrics server: %w", err)
	}
}

// Stop shuts the server down gracefully. Only the first call has an effect.
func (s *Server) Stop(ctx context.Context) error {
	var err error
	s.stopOnce.Do(func() {
		if err = s.server.Shutdown(ctx); err != nil {
			err = fmt.Errorf("metrics server shutdown: %w", err)
			return
		}
		logger.Debug("Metrics server stopped")
	})
	return err
}

// Port returns the configured port.
func (s *Server) Port() int {
	return s.port
}

// Addr returns the bound address once Start has listened, nil before.
func (s *Server) Addr() net.Addr {
	s.mu.RLock()
	defer s.mu.RUnlock()
	if s.listener == nil {
		return nil
	}
	return s.listener.Addr()
}
