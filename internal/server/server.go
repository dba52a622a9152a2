// Package server provides the HTTP endpoint for the PCoIP connection
// broker: a single POST route that runs the protocol state machine per
// request, plus an operational GET landing page and a /metrics endpoint.
package server

import (
	"context"
	"fmt"
	"log/slog"
	"net/http"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/pcoip-broker/broker/internal/broker/agentclient"
	"github.com/pcoip-broker/broker/internal/broker/mapper"
	"github.com/pcoip-broker/broker/internal/broker/protocol"
	"github.com/pcoip-broker/broker/internal/broker/session"
	"github.com/pcoip-broker/broker/internal/config"
)

// BuildVersion is surfaced on the GET landing page; overridden at build
// time with -ldflags if desired.
var BuildVersion = "dev"

// Server owns the HTTP listener and the collaborators the broker protocol
// handler needs per request: the session store, the key resolution
// strategy, and the protocol handler itself.
type Server struct {
	httpServer    *http.Server
	handler       *protocol.Handler
	store         *session.Store
	keyer         session.Keyer
	fallbackKeyer session.Keyer
	logHeader     string
	metrics       *metrics
	registry      *prometheus.Registry
}

// New builds a Server from cfg, a constructed Mapper, and the session KV
// backend (memory or sqlite) the caller has already opened.
func New(cfg *config.Config, m mapper.Mapper, agent agentclient.Allocator, kv session.KV) *Server {
	reg := prometheus.NewRegistry()
	metrics := newMetrics(reg)

	instrumented := timedAllocator{next: agent, metrics: metrics}

	handler := protocol.NewHandler(m, instrumented)

	s := &Server{
		handler:       handler,
		store:         session.NewStore(kv),
		keyer:         session.CookieKeyer{CookieName: cfg.CookieName},
		fallbackKeyer: session.HeaderKeyer{HeaderName: cfg.ClientLogIDHeader},
		logHeader:     cfg.ClientLogIDHeader,
		metrics:       metrics,
		registry:      reg,
	}

	mux := http.NewServeMux()
	s.setupRoutes(mux, cfg)

	s.httpServer = &http.Server{
		Addr:         fmt.Sprintf("%s:%d", cfg.Host, cfg.Port),
		Handler:      mux,
		ReadTimeout:  cfg.HTTPReadTimeout,
		WriteTimeout: cfg.HTTPWriteTimeout,
		IdleTimeout:  cfg.HTTPIdleTimeout,
	}

	return s
}

func (s *Server) setupRoutes(mux *http.ServeMux, cfg *config.Config) {
	mux.HandleFunc("POST /pcoip-broker/xml", s.handleBrokerXML())
	mux.HandleFunc("GET /pcoip-broker/xml", s.handleLanding)
	if cfg.MetricsEnabled {
		mux.Handle("GET /metrics", promhttp.HandlerFor(s.registry, promhttp.HandlerOpts{}))
	}
}

// Start runs the HTTP server until it is stopped or fails.
func (s *Server) Start() error {
	slog.Info("starting pcoip broker", "addr", s.httpServer.Addr)
	if err := s.httpServer.ListenAndServe(); err != nil && err != http.ErrServerClosed {
		return fmt.Errorf("listen: %w", err)
	}
	return nil
}

// Stop gracefully shuts down the HTTP server.
func (s *Server) Stop(ctx context.Context) error {
	return s.httpServer.Shutdown(ctx)
}
