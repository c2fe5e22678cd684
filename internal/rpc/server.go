// Package rpc provides the HTTP API of the resolver daemon.
package rpc

import (
	"context"
	"encoding/json"
	"errors"
	"fmt"
	"net"
	"net/http"
	"sync"
	"time"

	"github.com/prometheus/client_golang/prometheus/promhttp"

	"github.com/klingon-exchange/fusion-resolver/internal/config"
	"github.com/klingon-exchange/fusion-resolver/internal/resolver"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// Server timeouts. WriteTimeout covers POST /swap, which waits for the pull
// and both escrow creations to confirm.
const (
	ReadTimeout     = 30 * time.Second
	IdleTimeout     = 2 * time.Minute
	WriteTimeout    = 10 * time.Minute
	ShutdownTimeout = 30 * time.Second
)

// Server is the HTTP API server.
type Server struct {
	resolver *resolver.Resolver
	cfg      config.APIConfig
	log      *logging.Logger
	wsHub    *WSHub
	limiter  *RateLimiter
	metrics  *httpMetrics
	started  time.Time

	server   *http.Server
	listener net.Listener
	mu       sync.Mutex
}

// NewServer creates an API server for r. Order events from r are pushed to
// WebSocket clients.
func NewServer(r *resolver.Resolver, cfg config.APIConfig) *Server {
	s := &Server{
		resolver: r,
		cfg:      cfg,
		log:      logging.GetDefault().Component("rpc"),
		wsHub:    NewWSHub(),
		limiter:  NewRateLimiter(cfg.SwapRatePerMinute, cfg.SwapBurst),
		metrics:  newHTTPMetrics(),
		started:  time.Now(),
	}
	r.Events().OnEvent(s.broadcastEvent)
	return s
}

// Handler returns the API routes wrapped in the middleware chain.
func (s *Server) Handler() http.Handler {
	mux := http.NewServeMux()
	mux.HandleFunc("GET /health", s.handleHealth)
	mux.Handle("POST /swap", s.limiter.Middleware(http.HandlerFunc(s.handleSwap)))
	mux.HandleFunc("GET /order/{hash}", s.handleOrder)
	mux.HandleFunc("GET /order/{hash}/events", s.handleOrderEvents)
	mux.HandleFunc("POST /order/{hash}/cancel", s.handleCancel)
	mux.HandleFunc("GET /orders", s.handleOrders)
	mux.HandleFunc("GET /supported", s.handleSupported)
	mux.HandleFunc("GET /debug", s.handleDebug)
	mux.HandleFunc("GET /ws", s.handleWS)
	mux.Handle("GET /metrics", promhttp.Handler())

	return requestID(s.observe(corsMiddleware(s.cfg.CORSOrigins)(mux)))
}

// Start starts the hub and serves on addr.
func (s *Server) Start(addr string) error {
	listener, err := net.Listen("tcp", addr)
	if err != nil {
		return fmt.Errorf("failed to listen on %s: %w", addr, err)
	}

	s.mu.Lock()
	s.listener = listener
	s.server = &http.Server{
		Handler:      s.Handler(),
		ReadTimeout:  ReadTimeout,
		IdleTimeout:  IdleTimeout,
		WriteTimeout: WriteTimeout,
	}
	srv := s.server
	s.mu.Unlock()

	go s.wsHub.Run()

	go func() {
		if err := srv.Serve(listener); err != nil && !errors.Is(err, http.ErrServerClosed) {
			s.log.Error("HTTP server error", "error", err)
		}
	}()

	s.log.Info("HTTP server started", "addr", listener.Addr().String(), "ws", "ws://"+listener.Addr().String()+"/ws")
	return nil
}

// Addr returns the listen address once started.
func (s *Server) Addr() string {
	s.mu.Lock()
	defer s.mu.Unlock()
	if s.listener == nil {
		return ""
	}
	return s.listener.Addr().String()
}

// Stop shuts the server down and closes WebSocket clients.
func (s *Server) Stop() error {
	s.mu.Lock()
	srv := s.server
	s.server = nil
	s.mu.Unlock()

	s.wsHub.Close()
	if srv == nil {
		return nil
	}
	ctx, cancel := context.WithTimeout(context.Background(), ShutdownTimeout)
	defer cancel()
	return srv.Shutdown(ctx)
}

// WSHub returns the WebSocket hub.
func (s *Server) WSHub() *WSHub {
	return s.wsHub
}

func (s *Server) broadcastEvent(ev swap.Event) {
	s.wsHub.Broadcast(EventType(ev.Type), ev)
}

// =============================================================================
// Responses
// =============================================================================

// ErrorResponse is the body of every error reply.
type ErrorResponse struct {
	Success   bool         `json:"success"`
	ErrorKind swaperr.Kind `json:"errorKind,omitempty"`
	Error     string       `json:"error"`
	RequestID string       `json:"requestId,omitempty"`
	Required  []string     `json:"required,omitempty"`
}

// statusFor maps an error kind to an HTTP status.
func statusFor(kind swaperr.Kind) int {
	switch kind {
	case swaperr.KindInvalidRequest, swaperr.KindUnknownAsset:
		return http.StatusBadRequest
	case swaperr.KindNotFound:
		return http.StatusNotFound
	default:
		return http.StatusInternalServerError
	}
}

func writeJSON(w http.ResponseWriter, status int, v interface{}) {
	w.Header().Set("Content-Type", "application/json")
	w.WriteHeader(status)
	json.NewEncoder(w).Encode(v)
}

func (s *Server) writeError(w http.ResponseWriter, r *http.Request, err error) {
	kind := swaperr.KindOf(err)
	writeJSON(w, statusFor(kind), &ErrorResponse{
		ErrorKind: kind,
		Error:     err.Error(),
		RequestID: RequestIDFrom(r.Context()),
	})
}
