// Package server implements the HTTP API for the book Q&A backend: chat
// (plain and SSE-streaming), conversation history, health, and metrics.
// The server is started by the `bookqa serve` CLI command.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/roboverse/bookqa-go/internal/store"
)

// New constructs a Server from the provided agent, store, and config.
func New(qa Answerer, st store.Store, cfg *Config) (*Server, error) {
	if qa == nil {
		return nil, fmt.Errorf("server: agent must not be nil")
	}
	if st == nil {
		return nil, fmt.Errorf("server: store must not be nil")
	}
	if cfg == nil {
		cfg = &Config{}
	}
	if cfg.Host == "" {
		cfg.Host = "127.0.0.1"
	}
	if cfg.Port == 0 {
		cfg.Port = 8000
	}
	if cfg.ReadTimeout == 0 {
		cfg.ReadTimeout = 30 * time.Second
	}
	if cfg.WriteTimeout == 0 {
		// WriteTimeout must be long enough for streaming responses.
		cfg.WriteTimeout = 5 * time.Minute
	}
	if cfg.ShutdownTimeout == 0 {
		cfg.ShutdownTimeout = 10 * time.Second
	}
	if cfg.Logger == nil {
		cfg.Logger = slog.Default()
	}
	if cfg.RateLimit == 0 {
		cfg.RateLimit = defaultRateLimit
	}
	if cfg.RateBurst == 0 {
		cfg.RateBurst = defaultRateBurst
	}
	if cfg.Registry == nil {
		cfg.Registry = prometheus.NewRegistry()
	}

	s := &Server{
		agent:   qa,
		store:   st,
		cfg:     cfg,
		log:     cfg.Logger,
		metrics: newServerMetrics(cfg.Registry),
		slots:   newSlotCounter(cfg.MaxConcurrentChats),
		checks:  cfg.Checks,
	}

	if cfg.Verifier == nil {
		s.log.Warn("authentication disabled: no token verifier configured")
	}

	rl, stopRL := newRateLimiter(cfg.RateLimit, cfg.RateBurst, s.log)
	s.stopRL = stopRL

	// Chat and history require auth; health and metrics stay open. The
	// per-IP limiter guards every API route.
	protected := func(name string, h http.HandlerFunc) http.Handler {
		return s.instrument(name, rl.middleware(authMiddleware(cfg.Verifier, h)))
	}
	open := func(name string, h http.Handler) http.Handler {
		return s.instrument(name, rl.middleware(h))
	}

	mux := http.NewServeMux()
	mux.Handle("POST /chat", protected("chat", s.handleChat))
	mux.Handle("POST /chat/stream", protected("chat_stream", s.handleChatStream))
	mux.Handle("GET /history/{session_id}", protected("history", s.handleHistory))
	mux.Handle("GET /health", open("health", http.HandlerFunc(s.handleHealth)))
	mux.Handle("GET /metrics", open("metrics", promhttp.HandlerFor(cfg.Registry, promhttp.HandlerOpts{})))

	handler := requestLogger(s.log, recoverer(mux))

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      handler,
		ReadTimeout:  cfg.ReadTimeout,
		WriteTimeout: cfg.WriteTimeout,
	}

	return s, nil
}

// Handler returns the fully assembled HTTP handler (used by tests).
func (s *Server) Handler() http.Handler { return s.httpServer.Handler }

// Start begins listening and serving HTTP requests. It blocks until the
// context is cancelled, then performs a graceful shutdown.
func (s *Server) Start(ctx context.Context) error {
	errCh := make(chan error, 1)

	go func() {
		s.log.Info("server listening", slog.String("addr", s.httpServer.Addr))
		if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
			errCh <- err
		}
	}()

	select {
	case err := <-errCh:
		s.stopRL()
		return fmt.Errorf("server: listen error: %w", err)
	case <-ctx.Done():
		s.stopRL()
		shutdownCtx, cancel := context.WithTimeout(context.Background(), s.cfg.ShutdownTimeout)
		defer cancel()
		if err := s.httpServer.Shutdown(shutdownCtx); err != nil {
			return fmt.Errorf("server: graceful shutdown failed: %w", err)
		}
		return nil
	}
}
