// Package server runs the HTTP listener. Every path answers 404 except
// /metrics, which serves Prometheus metrics when enabled.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"strconv"
	"sync"
	"time"

	"github.com/aatumaykin/jobspool/internal/logger"
	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"
)

// NotFoundBody is written for every unrouted request.
const NotFoundBody = "Oops...\n"

// Config controls the listener.
type Config struct {
	Hostname string
	Port     int
	// Metrics exposes /metrics from Gatherer.
	Metrics bool
}

// Addr returns host:port.
func (c Config) Addr() string {
	return net.JoinHostPort(c.Hostname, strconv.Itoa(c.Port))
}

// Server is the HTTP front end.
type Server struct {
	cfg      Config
	logger   *logger.Logger
	gatherer prometheus.Gatherer

	mu  sync.Mutex
	ln  net.Listener
	srv *http.Server
}

// New creates a server. gatherer may be nil when metrics are disabled.
func New(cfg Config, log *logger.Logger, gatherer prometheus.Gatherer) *Server {
	return &Server{
		cfg:      cfg,
		logger:   log.Named("server"),
		gatherer: gatherer,
	}
}

// Handler returns the request router.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	if s.cfg.Metrics && s.gatherer != nil {
		mux.Handle("/metrics", promhttp.HandlerFor(s.gatherer, promhttp.HandlerOpts{}))
	}
	mux.HandleFunc("/", notFound)
	return s.logRequests(mux)
}

func notFound(w http.ResponseWriter, _ *http.Request) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(http.StatusNotFound)
	_, _ = w.Write([]byte(NotFoundBody))
}

func (s *Server) logRequests(next http.Handler) http.Handler {
	return http.HandlerFunc(func(w http.ResponseWriter, r *http.Request) {
		s.logger.Info(r.Method+" "+r.URL.Path,
			logger.Field{Key: "remote", Value: r.RemoteAddr})
		next.ServeHTTP(w, r)
	})
}

// Start binds the listener and serves in the background. Bind errors are
// returned; serve errors are logged.
func (s *Server) Start(ctx context.Context) error {
	s.mu.Lock()
	defer s.mu.Unlock()

	if s.srv != nil {
		return fmt.Errorf("server already started")
	}

	var lc net.ListenConfig
	ln, err := lc.Listen(ctx, "tcp", s.cfg.Addr())
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", s.cfg.Addr(), err)
	}

	srv := &http.Server{
		Handler:           s.Handler(),
		ReadHeaderTimeout: 5 * time.Second,
		ReadTimeout:       10 * time.Second,
		WriteTimeout:      30 * time.Second,
		IdleTimeout:       60 * time.Second,
		ErrorLog:          slog.NewLogLogger(s.logger.StdLogger().Handler(), slog.LevelError),
	}
	s.ln = ln
	s.srv = srv

	go func() {
		if err := srv.Serve(ln); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.logger.Error("http server stopped", err)
		}
	}()

	s.logger.Info("http server listening",
		logger.Field{Key: "addr", Value: ln.Addr().String()},
		logger.Field{Key: "metrics", Value: s.cfg.Metrics})
	return nil
}

// Addr returns the bound address, or the configured one before Start.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.ln != nil {
		return s.ln.Addr().String()
	}
	return s.cfg.Addr()
}

// Shutdown stops accepting connections and waits for active requests.
func (s *Server) Shutdown(ctx context.Context) error {
	s.mu.Lock()
	srv := s.srv
	s.srv = nil
	s.ln = nil
	s.mu.Unlock()

	if srv == nil {
		return nil
	}
	return srv.Shutdown(ctx)
}
