// Package server is the HTTP surface over the governance pipeline and the
// gated tools. Principals are resolved per request from identity headers;
// the server trusts its deployment boundary for authentication.
package server

import (
	"context"
	"errors"
	"fmt"
	"log/slog"
	"net"
	"net/http"
	"sync"
	"syscall"
	"time"

	"go.opentelemetry.io/contrib/instrumentation/net/http/otelhttp"

	"github.com/devchilll/scope/internal/audit"
	"github.com/devchilll/scope/internal/config"
	"github.com/devchilll/scope/internal/metrics"
	"github.com/devchilll/scope/internal/pipeline"
	"github.com/devchilll/scope/internal/policy"
	"github.com/devchilll/scope/internal/tools"
)

// Server is the scope HTTP API server.
type Server struct {
	cfg        *config.Config
	srv        *http.Server
	ln         net.Listener
	dispatcher *tools.Dispatcher
	trail      *audit.Store
	metrics    *metrics.Metrics
	logger     *slog.Logger

	mu       sync.RWMutex
	pipeline *pipeline.Pipeline
}

// Deps are the constructed collaborators the server serves. The server
// owns none of them; the caller manages their lifecycles.
type Deps struct {
	Pipeline   *pipeline.Pipeline
	Dispatcher *tools.Dispatcher
	Trail      *audit.Store
	Metrics    *metrics.Metrics
}

// NewServer creates and wires the API server.
func NewServer(cfg *config.Config, deps Deps, logger *slog.Logger) (*Server, error) {
	s := &Server{
		cfg:        cfg,
		dispatcher: deps.Dispatcher,
		trail:      deps.Trail,
		metrics:    deps.Metrics,
		logger:     logger,
		pipeline:   deps.Pipeline,
	}

	mux := http.NewServeMux()
	mux.HandleFunc("POST /v1/request", s.handleRequest)
	mux.HandleFunc("GET /v1/escalations", s.handleListEscalations)
	mux.HandleFunc("GET /v1/escalations/stats", s.handleQueueStats)
	mux.HandleFunc("POST /v1/escalations/{id}/resolve", s.handleResolve)
	mux.HandleFunc("GET /v1/tools", s.handleListTools)
	mux.HandleFunc("GET /v1/logs", s.handleLogs)
	mux.HandleFunc("GET /health", func(w http.ResponseWriter, r *http.Request) {
		writeJSON(w, http.StatusOK, map[string]string{"status": "ok"})
	})
	mux.Handle("GET /metrics", s.metrics.Handler())

	var h http.Handler = mux
	h = otelhttp.NewHandler(h, "scope.api")
	h = securityHeaders(h)
	h = logging(logger)(h)
	h = recovery(logger)(h)
	h = requestID(h)

	bind := cfg.Server.Bind
	if bind == "" {
		bind = "127.0.0.1"
	}

	ln, actualPort, err := listenAutoPort(bind, cfg.Server.Port, logger)
	if err != nil {
		return nil, fmt.Errorf("binding port: %w", err)
	}
	cfg.Server.Port = actualPort

	s.srv = &http.Server{
		Handler:        h,
		ReadTimeout:    15 * time.Second,
		WriteTimeout:   30 * time.Second,
		IdleTimeout:    60 * time.Second,
		MaxHeaderBytes: 1 << 20, // 1 MB
	}
	s.ln = ln
	return s, nil
}

// listenAutoPort tries the configured port; if busy, scans up to 10 higher ports.
func listenAutoPort(bind string, port int, logger *slog.Logger) (net.Listener, int, error) {
	addr := fmt.Sprintf("%s:%d", bind, port)
	ln, err := net.Listen("tcp", addr)
	if err == nil {
		// When port is 0, the OS assigns a random port — return the actual port.
		actual := ln.Addr().(*net.TCPAddr).Port
		return ln, actual, nil
	}

	if !isAddrInUse(err) {
		return nil, 0, err
	}

	logger.Warn("port in use, searching for available port", "port", port)
	for offset := 1; offset <= 10; offset++ {
		tryPort := port + offset
		addr = fmt.Sprintf("%s:%d", bind, tryPort)
		ln, err = net.Listen("tcp", addr)
		if err == nil {
			logger.Info("using alternative port", "original", port, "actual", tryPort)
			return ln, tryPort, nil
		}
	}
	return nil, 0, fmt.Errorf("port %d and next 10 ports are all in use", port)
}

func isAddrInUse(err error) bool {
	if errors.Is(err, syscall.EADDRINUSE) {
		return true
	}
	var opErr *net.OpError
	if errors.As(err, &opErr) {
		return errors.Is(opErr.Err, syscall.EADDRINUSE)
	}
	return false
}

// Port returns the actual port the server is bound to.
func (s *Server) Port() int {
	return s.cfg.Server.Port
}

// UpdatePolicy swaps the decision thresholds without a restart. Called by
// the config watcher; requests in flight keep the engine they started with.
func (s *Server) UpdatePolicy(t policy.Thresholds, rebuild func(*policy.Engine) *pipeline.Pipeline) {
	engine, err := policy.NewEngine(t)
	if err != nil {
		s.logger.Warn("rejected hot-reloaded thresholds", "error", err)
	}
	s.mu.Lock()
	s.pipeline = rebuild(engine)
	s.mu.Unlock()
	s.logger.Info("policy thresholds updated", "thresholds", fmt.Sprintf("%+v", engine.Thresholds()))
}

func (s *Server) currentPipeline() *pipeline.Pipeline {
	s.mu.RLock()
	defer s.mu.RUnlock()
	return s.pipeline
}

// Start begins listening. Blocks until the server is shut down.
func (s *Server) Start() error {
	s.logger.Info("scope api starting", "addr", s.ln.Addr().String())
	return s.srv.Serve(s.ln)
}

// Shutdown gracefully stops the server and flushes the audit trail.
func (s *Server) Shutdown(ctx context.Context) error {
	s.logger.Info("shutting down")
	err := s.srv.Shutdown(ctx)
	s.trail.Flush()
	return err
}
