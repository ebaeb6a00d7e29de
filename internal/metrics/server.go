package metrics

import (
	"context"
	"net"
	"net/http"
	"time"

	"github.com/prometheus/client_golang/prometheus"
	"github.com/prometheus/client_golang/prometheus/promhttp"

	"grimm.is/droplist/internal/logging"
)

// Server exposes /metrics, and any extra handlers, over HTTP.
type Server struct {
	srv    *http.Server
	mux    *http.ServeMux
	ln     net.Listener
	logger *logging.Logger
}

// Listen binds addr and prepares a handler for gatherer. Call Serve to start.
func Listen(addr string, gatherer prometheus.Gatherer, logger *logging.Logger) (*Server, error) {
	if gatherer == nil {
		gatherer = prometheus.DefaultGatherer
	}
	if logger == nil {
		logger = logging.WithComponent("metrics")
	}

	ln, err := net.Listen("tcp", addr)
	if err != nil {
		return nil, err
	}

	mux := http.NewServeMux()
	mux.Handle("/metrics", promhttp.HandlerFor(gatherer, promhttp.HandlerOpts{}))

	return &Server{
		srv: &http.Server{
			Handler:           mux,
			ReadHeaderTimeout: 5 * time.Second,
		},
		mux:    mux,
		ln:     ln,
		logger: logger,
	}, nil
}

// Handle registers an additional handler. Call before Serve.
func (s *Server) Handle(pattern string, handler http.Handler) {
	s.mux.Handle(pattern, handler)
}

// Addr returns the bound address.
func (s *Server) Addr() net.Addr {
	return s.ln.Addr()
}

// Serve runs until Shutdown is called.
func (s *Server) Serve() {
	s.logger.Info("metrics listening", "addr", s.ln.Addr().String())
	if err := s.srv.Serve(s.ln); err != nil && err != http.ErrServerClosed {
		s.logger.Error("metrics server failed", "error", err)
	}
}

// Shutdown stops the server.
func (s *Server) Shutdown(ctx context.Context) error {
	return s.srv.Shutdown(ctx)
}
