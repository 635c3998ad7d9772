// Package server exposes the recitation analysis pipeline over HTTP.
//
// Routes:
//
//	POST /v1/analyze           analysis.Request JSON, returns analysis.Result
//	POST /v1/analyze/best-of   {"recitation", "references"}, returns analysis.Best
//	POST /v1/analyze/audio     multipart recording plus references
//	GET  /v1/rules             the Tajweed rule catalog
//	GET  /v1/rules/{id}        one rule with its explanation
//	GET  /v1/history           stored analyses (?text, after, before, limit)
//	GET  /v1/history/{id}      one stored analysis
//	GET  /v1/history/{id}/similar  analyses that sounded alike (?k)
//	GET  /v1/progress          progress on one passage (?text)
//	GET  /healthz, /readyz     liveness and readiness
//	GET  /metrics              Prometheus exposition
//
// The history and progress routes are only served when a [history.Store]
// is configured; every successful analysis is then stored.
//
// Every route is wrapped in [observe.Middleware].
package server

import (
	"context"
	"crypto/tls"
	"errors"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/MrWong99/tartil/internal/analysis"
	"github.com/MrWong99/tartil/internal/health"
	"github.com/MrWong99/tartil/internal/history"
	"github.com/MrWong99/tartil/internal/observe"
)

// Defaults applied by [New].
const (
	DefaultListenAddr   = ":8080"
	DefaultMaxBodyBytes = 64 << 20

	DefaultHistoryDimensions = 13
)

// Config holds the HTTP server configuration.
type Config struct {
	// ListenAddr is the TCP address to listen on. Default: ":8080".
	ListenAddr string

	// CertFile and KeyFile enable TLS when both are set.
	CertFile string
	KeyFile  string

	// MaxBodyBytes bounds request bodies. Default: 64 MiB.
	MaxBodyBytes int64

	Analyzer *analysis.Analyzer

	// History stores finished analyses. Nil disables storage.
	History history.Store

	// HistoryDimensions is the stored centroid length. Default: 13.
	HistoryDimensions int

	Health  *health.Handler
	Metrics *observe.Metrics
	Logger  *slog.Logger
}

// Server wraps the HTTP server with configuration.
type Server struct {
	cfg    Config
	srv    *http.Server
	logger *slog.Logger
}

// New creates a new HTTP server with the given configuration.
func New(cfg Config) (*Server, error) {
	if cfg.Analyzer == nil {
		return nil, errors.New("server: analyzer must not be nil")
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.ListenAddr == "" {
		cfg.ListenAddr = DefaultListenAddr
	}
	if cfg.MaxBodyBytes <= 0 {
		cfg.MaxBodyBytes = DefaultMaxBodyBytes
	}
	if cfg.HistoryDimensions <= 0 {
		cfg.HistoryDimensions = DefaultHistoryDimensions
	}
	if cfg.Health == nil {
		cfg.Health = health.New()
	}
	if cfg.Metrics == nil {
		cfg.Metrics = observe.DefaultMetrics()
	}

	mux := http.NewServeMux()
	h := &handlers{
		analyzer: cfg.Analyzer,
		history:  cfg.History,
		dims:     cfg.HistoryDimensions,
		maxBody:  cfg.MaxBodyBytes,
		logger:   cfg.Logger,
		metrics:  cfg.Metrics,
	}
	h.register(mux)
	cfg.Health.Register(mux)
	mux.Handle("GET /metrics", promhttp.Handler())

	s := &Server{
		cfg:    cfg,
		logger: cfg.Logger,
		srv: &http.Server{
			Addr:              cfg.ListenAddr,
			Handler:           observe.Middleware(cfg.Metrics)(mux),
			ReadHeaderTimeout: 10 * time.Second,
		},
	}
	if cfg.CertFile != "" && cfg.KeyFile != "" {
		s.srv.TLSConfig = &tls.Config{MinVersion: tls.VersionTLS12}
	}
	return s, nil
}

// ListenAndServe serves until ctx is cancelled, then shuts down gracefully,
// giving in-flight analyses up to 15 seconds to finish.
func (s *Server) ListenAndServe(ctx context.Context) error {
	s.logger.Info("HTTP server starting", "address", s.srv.Addr, "tls", s.srv.TLSConfig != nil)

	errCh := make(chan error, 1)
	go func() {
		var err error
		if s.srv.TLSConfig != nil {
			err = s.srv.ListenAndServeTLS(s.cfg.CertFile, s.cfg.KeyFile)
		} else {
			err = s.srv.ListenAndServe()
		}
		errCh <- err
	}()

	select {
	case err := <-errCh:
		if err != nil && !errors.Is(err, http.ErrServerClosed) {
			return fmt.Errorf("server: %w", err)
		}
		return nil
	case <-ctx.Done():
	}

	s.logger.Info("shutting down HTTP server")
	shutdownCtx, cancel := context.WithTimeout(context.Background(), 15*time.Second)
	defer cancel()
	if err := s.srv.Shutdown(shutdownCtx); err != nil {
		return fmt.Errorf("server: shutdown: %w", err)
	}
	if err := <-errCh; err != nil && !errors.Is(err, http.ErrServerClosed) {
		return fmt.Errorf("server: %w", err)
	}
	return nil
}

// Handler returns the underlying http.Handler (useful for testing).
func (s *Server) Handler() http.Handler {
	return s.srv.Handler
}
