package rpc

import (
	"context"
	"encoding/json"
	"net/http"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/resolver"
	"github.com/klingon-exchange/fusion-resolver/internal/storage"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
)

// Version of the resolver API.
const Version = "1.0.0"

// maxBodyBytes bounds request bodies.
const maxBodyBytes = 64 << 10

// HealthResult is the response for GET /health.
type HealthResult struct {
	Status    string            `json:"status"`
	Service   string            `json:"service"`
	Version   string            `json:"version"`
	Resolvers map[string]string `json:"resolvers"`
	Running   bool              `json:"running"`
	Uptime    string            `json:"uptime"`
	WSClients int               `json:"wsClients"`
	Timestamp time.Time         `json:"timestamp"`
}

func (s *Server) handleHealth(w http.ResponseWriter, r *http.Request) {
	resolvers := make(map[string]string)
	for name, n := range s.resolver.SupportedNetworks().Networks {
		resolvers[name] = n.Resolver
	}
	writeJSON(w, http.StatusOK, &HealthResult{
		Status:    "healthy",
		Service:   "fusion-resolver",
		Version:   Version,
		Resolvers: resolvers,
		Running:   s.resolver.Running(),
		Uptime:    time.Since(s.started).Round(time.Second).String(),
		WSClients: s.wsHub.ClientCount(),
		Timestamp: time.Now().UTC(),
	})
}

// SwapResponse is the response for POST /swap.
type SwapResponse struct {
	*resolver.SwapResult
	NextSteps []string `json:"nextSteps,omitempty"`
}

var escrowSteps = []string{
	"1. Escrows created on both chains",
	"2. Waiting for finality period",
	"3. Secret will be auto-revealed",
	"4. Atomic swap completed",
}

func (s *Server) handleSwap(w http.ResponseWriter, r *http.Request) {
	var req resolver.SwapRequest
	if err := json.NewDecoder(http.MaxBytesReader(w, r.Body, maxBodyBytes)).Decode(&req); err != nil {
		writeJSON(w, http.StatusBadRequest, &ErrorResponse{
			ErrorKind: swaperr.KindInvalidRequest,
			Error:     "invalid JSON body: " + err.Error(),
			RequestID: RequestIDFrom(r.Context()),
			Required:  resolver.RequiredFields,
		})
		return
	}

	log := s.log.With("request_id", RequestIDFrom(r.Context()), "client", clientID(r))
	log.Info("Received swap request",
		"amount", req.Amount,
		"from", req.FromNetwork+"/"+req.FromToken,
		"to", req.ToNetwork+"/"+req.ToToken,
	)

	// A client disconnect must not abandon a swap after the user's tokens moved.
	res := s.resolver.ProcessSwapRequest(context.WithoutCancel(r.Context()), req)
	if !res.Success {
		status := statusFor(res.ErrorKind)
		body := &SwapResponse{SwapResult: res}
		log.Warn("Swap request failed", "status", status, "kind", res.ErrorKind, "order_hash", res.OrderHash, "error", res.Error)
		writeJSON(w, status, body)
		return
	}

	resp := &SwapResponse{SwapResult: res}
	if res.Mode == swap.ModeEscrow {
		resp.NextSteps = escrowSteps
	}
	log.Info("Swap request accepted", "order_hash", res.OrderHash, "mode", res.Mode)
	writeJSON(w, http.StatusOK, resp)
}

func (s *Server) handleOrder(w http.ResponseWriter, r *http.Request) {
	view, err := s.resolver.GetOrderStatus(r.PathValue("hash"))
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, view)
}

// OrderEventsResult is the response for GET /order/{hash}/events.
type OrderEventsResult struct {
	OrderHash string                `json:"orderHash"`
	Events    []*storage.OrderEvent `json:"events"`
}

func (s *Server) handleOrderEvents(w http.ResponseWriter, r *http.Request) {
	hash := r.PathValue("hash")
	events, err := s.resolver.OrderEvents(hash)
	if err != nil {
		s.writeError(w, r, err)
		return
	}
	writeJSON(w, http.StatusOK, &OrderEventsResult{OrderHash: hash, Events: events})
}

// CancelResult is the response for POST /order/{hash}/cancel.
type CancelResult struct {
	Success bool                      `json:"success"`
	Order   *resolver.OrderStatusView `json:"order,omitempty"`
	Error   string                    `json:"error,omitempty"`
}

func (s *Server) handleCancel(w http.ResponseWriter, r *http.Request) {
	view, err := s.resolver.CancelOrder(context.WithoutCancel(r.Context()), r.PathValue("hash"))
	switch {
	case err == nil:
		writeJSON(w, http.StatusOK, &CancelResult{Success: true, Order: view})
	case view != nil:
		// Some sides were cancelled, others failed.
		writeJSON(w, http.StatusInternalServerError, &CancelResult{Order: view, Error: err.Error()})
	default:
		s.writeError(w, r, err)
	}
}

// OrdersResult is the response for GET /orders.
type OrdersResult struct {
	Orders map[string]resolver.OrderSummary `json:"orders"`
	Count  int                              `json:"count"`
}

func (s *Server) handleOrders(w http.ResponseWriter, r *http.Request) {
	orders := s.resolver.GetAllOrders()
	writeJSON(w, http.StatusOK, &OrdersResult{Orders: orders, Count: len(orders)})
}

func (s *Server) handleSupported(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.SupportedNetworks())
}

func (s *Server) handleDebug(w http.ResponseWriter, r *http.Request) {
	writeJSON(w, http.StatusOK, s.resolver.Debug())
}
