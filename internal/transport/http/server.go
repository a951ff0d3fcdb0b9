// Package http provides the producer and admin REST API for PageGate.
//
// Routes (Go 1.22+ method-qualified patterns):
//
//	GET    /health
//	POST   /calls
//	GET    /sessions
//	POST   /broadcasts/time
//	GET    /callsigns
//	GET    /callsigns/{name}
//	PUT    /callsigns/{name}
//	DELETE /callsigns/{name}
//	GET    /transmitters
//	GET    /transmitters/{name}
//	PUT    /transmitters/{name}
//	DELETE /transmitters/{name}
//	GET    /metrics
//	GET    /monitor/ws
package http

import (
	"context"
	"net/http"
	"time"

	"github.com/hampager/pagegate/internal/config"
	"github.com/hampager/pagegate/internal/gateway"
	"github.com/hampager/pagegate/internal/metrics"
	transportws "github.com/hampager/pagegate/internal/transport/websocket"
)

// Server wraps the stdlib HTTP server with PageGate route wiring.
type Server struct {
	inner *http.Server
}

// New builds a Server around the gateway. reg may be nil when metrics are
// disabled. The caller is responsible for ListenAndServe / Shutdown.
func New(gw *gateway.Gateway, cfg *config.Config, nodeID string, reg *metrics.Registry) *Server {
	h := &Handler{gw: gw, nodeID: nodeID}
	ws := &transportws.Handler{Gateway: gw}

	mux := http.NewServeMux()

	// Health
	mux.HandleFunc("GET /health", h.health)

	// Producer surface
	mux.HandleFunc("POST /calls", h.placeCall)

	// Operator surface
	mux.HandleFunc("GET /sessions", h.listSessions)
	mux.HandleFunc("POST /broadcasts/time", h.broadcastTime)

	// Record management
	mux.HandleFunc("GET /callsigns", h.listCallSigns)
	mux.HandleFunc("GET /callsigns/{name}", h.getCallSign)
	mux.HandleFunc("PUT /callsigns/{name}", h.putCallSign)
	mux.HandleFunc("DELETE /callsigns/{name}", h.deleteCallSign)
	mux.HandleFunc("GET /transmitters", h.listTransmitters)
	mux.HandleFunc("GET /transmitters/{name}", h.getTransmitter)
	mux.HandleFunc("PUT /transmitters/{name}", h.putTransmitter)
	mux.HandleFunc("DELETE /transmitters/{name}", h.deleteTransmitter)

	// Metrics (Prometheus text format)
	if reg != nil {
		mux.Handle("GET /metrics", reg.Handler())
	}

	// Live session monitor
	mux.Handle("GET /monitor/ws", ws)

	rps := float64(cfg.Producers.MaxRate)
	burst := cfg.Producers.Burst

	var handler http.Handler = mux
	handler = chain(handler,
		MaxBodyMiddleware,
		LoggingMiddleware(reg),
		AuthMiddleware(cfg.Auth.APIKey, cfg.Auth.Enabled),
		RateLimitMiddleware(rps, burst),
	)

	return &Server{
		inner: &http.Server{
			Handler:      handler,
			ReadTimeout:  15 * time.Second,
			WriteTimeout: 60 * time.Second,
			IdleTimeout:  120 * time.Second,
		},
	}
}

// Handler returns the composed http.Handler (useful for testing).
func (s *Server) Handler() http.Handler { return s.inner.Handler }

// ListenAndServe starts the server on the given address (e.g. ":8080").
// It returns when the server stops or encounters an error.
func (s *Server) ListenAndServe(addr string) error {
	s.inner.Addr = addr
	return s.inner.ListenAndServe()
}

// Shutdown gracefully stops the server, waiting up to ctx's deadline for
// in-flight requests to finish.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.inner.Shutdown(ctx)
}
