// SPDX-License-Identifier: Apache-2.0
// Copyright 2026 HoloMUSH Contributors

// Package observability provides HTTP endpoints for metrics and health checks.
package observability

import (
	"context"
	"errors"
	"io"
	"log/slog"
	"net"
	"net/http"
	"sync/atomic"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/collectors"
	"github.com/prometheus/client_golang/prometheus/promhttp"
	"github.com/samber/oops"
)

// ReadinessChecker reports nil when the service can take traffic.
type ReadinessChecker func(ctx context.Context) error

// readinessTimeout bounds a single readiness check.
const readinessTimeout = 2 * time.Second

// Metrics contains the HTTP API metrics for the admin auth service.
type Metrics struct {
	RequestsTotal   *prometheus.CounterVec
	RequestDuration *prometheus.HistogramVec
}

// NewMetrics creates and registers the HTTP API metrics.
func NewMetrics(reg prometheus.Registerer) *Metrics {
	m := &Metrics{
		RequestsTotal: prometheus.NewCounterVec(
			prometheus.CounterOpts{
				Name: "adminauth_http_requests_total",
				Help: "Total number of API requests by route, method and status",
			},
			[]string{"route", "method", "status"},
		),
		RequestDuration: prometheus.NewHistogramVec(
			prometheus.HistogramOpts{
				Name:    "adminauth_http_request_duration_seconds",
				Help:    "API request duration in seconds",
				Buckets: prometheus.DefBuckets,
			},
			[]string{"route", "method"},
		),
	}

	reg.MustRegister(m.RequestsTotal)
	reg.MustRegister(m.RequestDuration)

	return m
}

// Server exposes /metrics and the health checks on a private registry.
type Server struct {
	addr     string
	registry *prometheus.Registry
	metrics  *Metrics
	isReady  ReadinessChecker

	running    atomic.Bool
	listener   net.Listener
	httpServer *http.Server
}

// NewServer creates a server for addr ("127.0.0.1:9100", ":0"). Runtime and
// process collectors are always registered; extra collectors are added to
// the same registry.
func NewServer(addr string, readinessChecker ReadinessChecker, extra ...prometheus.Collector) *Server {
	registry := prometheus.NewRegistry()
	registry.MustRegister(
		collectors.NewGoCollector(),
		collectors.NewProcessCollector(collectors.ProcessCollectorOpts{}),
	)
	registry.MustRegister(extra...)

	return &Server{
		addr:     addr,
		registry: registry,
		metrics:  NewMetrics(registry),
		isReady:  readinessChecker,
	}
}

// Metrics returns the HTTP API metrics registered on this server.
func (s *Server) Metrics() *Metrics {
	return s.metrics
}

// Registry returns the registry backing /metrics.
func (s *Server) Registry() *prometheus.Registry {
	return s.registry
}

func (s *Server) routes() http.Handler {
	mux := http.NewServeMux()
	mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{EnableOpenMetrics: true}))
	mux.HandleFunc("GET /healthz/liveness", s.handleLiveness)
	mux.HandleFunc("GET /healthz/readiness", s.handleReadiness)
	return mux
}

// Start listens and serves in the background. Serve failures arrive on the
// returned channel, which is closed once the server stops.
func (s *Server) Start() (<-chan error, error) {
	if !s.running.CompareAndSwap(false, true) {
		return nil, oops.Code("OBSERVABILITY_RUNNING").With("addr", s.addr).Errorf("observability server already running")
	}

	listener, err := net.Listen("tcp", s.addr)
	if err != nil {
		s.running.Store(false)
		return nil, oops.Code("OBSERVABILITY_LISTEN_FAILED").With("addr", s.addr).Wrap(err)
	}
	srv := &http.Server{Handler: s.routes(), ReadHeaderTimeout: 10 * time.Second}
	s.listener, s.httpServer = listener, srv

	errCh := make(chan error, 1)
	go func() {
		defer close(errCh)
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			errCh <- oops.Code("OBSERVABILITY_SERVE_FAILED").With("addr", listener.Addr().String()).Wrap(err)
		}
	}()
	return errCh, nil
}

// Stop shuts the server down. Stopping a server that is not running is a
// no-op.
func (s *Server) Stop(ctx context.Context) error {
	if !s.running.CompareAndSwap(true, false) {
		return nil
	}
	if err := s.httpServer.Shutdown(ctx); err != nil {
		s.running.Store(true)
		return oops.Code("OBSERVABILITY_STOP_FAILED").Wrap(err)
	}
	return nil
}

// Addr returns the bound address, or "" before Start.
func (s *Server) Addr() string {
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

func (s *Server) handleLiveness(w http.ResponseWriter, _ *http.Request) {
	writeHealth(w, http.StatusOK, "ok")
}

// handleReadiness answers 503 while the checker (the database ping) fails.
func (s *Server) handleReadiness(w http.ResponseWriter, r *http.Request) {
	if s.isReady != nil {
		ctx, cancel := context.WithTimeout(r.Context(), readinessTimeout)
		defer cancel()
		if err := s.isReady(ctx); err != nil {
			slog.WarnContext(ctx, "readiness check failed", "error", err)
			writeHealth(w, http.StatusServiceUnavailable, "not ready")
			return
		}
	}
	writeHealth(w, http.StatusOK, "ok")
}

func writeHealth(w http.ResponseWriter, status int, text string) {
	w.Header().Set("Content-Type", "text/plain; charset=utf-8")
	w.WriteHeader(status)
	_, _ = io.WriteString(w, text+"\n")
}
