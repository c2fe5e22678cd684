package rpc

import (
	"bytes"
	"encoding/json"
	"io"
	"math/big"
	"net/http"
	"net/http/httptest"
	"strings"
	"testing"
	"time"

	"github.com/gorilla/websocket"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/adapter/mock"
	"github.com/klingon-exchange/fusion-resolver/internal/config"
	"github.com/klingon-exchange/fusion-resolver/internal/registry"
	"github.com/klingon-exchange/fusion-resolver/internal/resolver"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

const (
	user        = "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2"
	sepoliaUSDC = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	tronUSDC    = "TSdZwNqpHofzP6BsBKGQUWdBeJphLmF6id"
)

func newTestServer(t *testing.T, api config.APIConfig) (*Server, *mock.Adapter, *mock.Adapter) {
	t.Helper()

	src := mock.New("sepolia", true)
	dst := mock.New("tron", true)
	set, err := adapter.NewSet(src, dst)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	src.SetTokenBalance(sepoliaUSDC, user, big.NewInt(1_000_000_000))
	src.SetAllowance(sepoliaUSDC, user, src.ResolverAddress(), big.NewInt(1_000_000_000))
	dst.SetTokenBalance(tronUSDC, dst.ResolverAddress(), big.NewInt(1_000_000_000))

	cfg := resolver.Config{
		Orchestrator: swap.OrchestratorConfig{
			SrcSchedule:      timelock.DefaultSrcSchedule(),
			DstSchedule:      timelock.DefaultDstSchedule(),
			SrcSafetyDeposit: big.NewInt(1_000_000_000_000_000),
			DstSafetyDeposit: big.NewInt(1_000_000_000_000_000),
		},
		Monitor: swap.MonitorConfig{Interval: time.Hour, RevealDelay: time.Hour},
	}
	r := resolver.New(cfg, set, registry.New(nil), nil)
	return NewServer(r, api), src, dst
}

func swapBody(from, to, amount string) string {
	b, _ := json.Marshal(map[string]string{
		"fromNetwork": from,
		"toNetwork":   to,
		"fromToken":   "USDC",
		"toToken":     "USDC",
		"amount":      amount,
		"userAddress": user,
	})
	return string(b)
}

func do(t *testing.T, h http.Handler, method, path, body string) *httptest.ResponseRecorder {
	t.Helper()
	var rd io.Reader
	if body != "" {
		rd = strings.NewReader(body)
	}
	req := httptest.NewRequest(method, path, rd)
	if body != "" {
		req.Header.Set("Content-Type", "application/json")
	}
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	return rr
}

func decode(t *testing.T, rr *httptest.ResponseRecorder, v interface{}) {
	t.Helper()
	if err := json.NewDecoder(rr.Body).Decode(v); err != nil {
		t.Fatalf("decode response: %v (body %q)", err, rr.Body.String())
	}
}

func TestHealth(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	rr := do(t, s.Handler(), http.MethodGet, "/health", "")

	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200", rr.Code)
	}
	var res HealthResult
	decode(t, rr, &res)
	if res.Status != "healthy" || res.Version != Version {
		t.Errorf("health = %+v", res)
	}
	if len(res.Resolvers) != 2 || res.Resolvers["sepolia"] == "" {
		t.Errorf("Resolvers = %v", res.Resolvers)
	}
}

func TestSwapEndpoint(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	h := s.Handler()

	rr := do(t, h, http.MethodPost, "/swap", swapBody("sepolia", "tron", "100"))
	if rr.Code != http.StatusOK {
		t.Fatalf("status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var res SwapResponse
	decode(t, rr, &res)
	if !res.Success || res.OrderHash == "" || res.Secret == "" {
		t.Errorf("result = %+v", res.SwapResult)
	}
	if res.Mode != swap.ModeEscrow || len(res.NextSteps) != len(escrowSteps) {
		t.Errorf("mode %s nextSteps %v", res.Mode, res.NextSteps)
	}

	rr = do(t, h, http.MethodGet, "/order/"+res.OrderHash, "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /order status = %d, want 200", rr.Code)
	}
	var view resolver.OrderStatusView
	decode(t, rr, &view)
	if view.Status != swap.StatusEscrowsCreated || view.OrderHash != res.OrderHash {
		t.Errorf("order = %s %s", view.OrderHash, view.Status)
	}

	rr = do(t, h, http.MethodGet, "/order/"+res.OrderHash+"/events", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("GET /order/events status = %d, want 200", rr.Code)
	}

	rr = do(t, h, http.MethodGet, "/orders", "")
	var orders OrdersResult
	decode(t, rr, &orders)
	if orders.Count != 1 {
		t.Errorf("Count = %d, want 1", orders.Count)
	}

	// Only failed escrow orders can be cancelled.
	rr = do(t, h, http.MethodPost, "/order/"+res.OrderHash+"/cancel", "")
	if rr.Code != http.StatusBadRequest {
		t.Errorf("cancel status = %d, want 400", rr.Code)
	}
}

func TestSwapEndpointRejects(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	h := s.Handler()

	tests := []struct {
		name     string
		body     string
		wantCode int
		wantKind swaperr.Kind
		wantText string
	}{
		{"bad json", "{", http.StatusBadRequest, swaperr.KindInvalidRequest, "invalid JSON"},
		{"missing fields", `{"fromNetwork":"sepolia"}`, http.StatusBadRequest, swaperr.KindInvalidRequest, "missing required fields"},
		{"same network", swapBody("sepolia", "sepolia", "1"), http.StatusBadRequest, swaperr.KindInvalidRequest, "must be different"},
		{"unknown network", swapBody("sepolia", "solana", "1"), http.StatusBadRequest, swaperr.KindInvalidRequest, "unsupported network"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			rr := do(t, h, http.MethodPost, "/swap", tt.body)
			if rr.Code != tt.wantCode {
				t.Fatalf("status = %d, want %d", rr.Code, tt.wantCode)
			}
			var body map[string]interface{}
			decode(t, rr, &body)
			if body["errorKind"] != string(tt.wantKind) {
				t.Errorf("errorKind = %v, want %s", body["errorKind"], tt.wantKind)
			}
			if msg, _ := body["error"].(string); !strings.Contains(msg, tt.wantText) {
				t.Errorf("error = %q, want it to contain %q", msg, tt.wantText)
			}
		})
	}
}

func TestSwapEndpointPartialSettlement(t *testing.T) {
	s, _, dst := newTestServer(t, config.APIConfig{})
	h := s.Handler()
	dst.FailOn("CreateEscrow", swaperr.Revert("tron.createEscrow", "out of energy"))

	rr := do(t, h, http.MethodPost, "/swap", swapBody("sepolia", "tron", "1"))
	if rr.Code != http.StatusInternalServerError {
		t.Fatalf("status = %d, want 500", rr.Code)
	}
	var res SwapResponse
	decode(t, rr, &res)
	if !res.PartialSettlement || res.SourceRef == "" || res.Secret != "" {
		t.Errorf("result = %+v", res.SwapResult)
	}

	rr = do(t, h, http.MethodPost, "/order/"+res.OrderHash+"/cancel", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("cancel status = %d, want 200 (body %s)", rr.Code, rr.Body.String())
	}
	var cancel CancelResult
	decode(t, rr, &cancel)
	if !cancel.Success || cancel.Order == nil || len(cancel.Order.CancelTxHashes) != 1 {
		t.Errorf("cancel = %+v", cancel)
	}
}

func TestOrderErrors(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	h := s.Handler()

	tests := []struct {
		path string
		want int
	}{
		{"/order/0x" + strings.Repeat("cd", 32), http.StatusNotFound},
		{"/order/nothex", http.StatusBadRequest},
	}
	for _, tt := range tests {
		rr := do(t, h, http.MethodGet, tt.path, "")
		if rr.Code != tt.want {
			t.Errorf("GET %s = %d, want %d", tt.path, rr.Code, tt.want)
		}
	}
}

func TestSupportedAndDebug(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	h := s.Handler()

	rr := do(t, h, http.MethodGet, "/supported", "")
	var sup resolver.Supported
	decode(t, rr, &sup)
	if len(sup.Networks) != 2 || len(sup.Pairs) != 2 {
		t.Errorf("supported = %d networks %d pairs", len(sup.Networks), len(sup.Pairs))
	}

	rr = do(t, h, http.MethodGet, "/debug", "")
	if rr.Code != http.StatusOK {
		t.Fatalf("debug status = %d", rr.Code)
	}
	var dbg resolver.DebugInfo
	decode(t, rr, &dbg)
	if dbg.Running || len(dbg.Networks) != 2 {
		t.Errorf("debug = %+v", dbg)
	}
}

func TestRateLimit(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{SwapRatePerMinute: 1, SwapBurst: 1})
	h := s.Handler()

	if rr := do(t, h, http.MethodPost, "/swap", "{"); rr.Code != http.StatusBadRequest {
		t.Fatalf("first request = %d, want 400", rr.Code)
	}
	rr := do(t, h, http.MethodPost, "/swap", "{")
	if rr.Code != http.StatusTooManyRequests {
		t.Fatalf("second request = %d, want 429", rr.Code)
	}
	if rr.Header().Get("Retry-After") == "" {
		t.Error("missing Retry-After")
	}

	// Other routes are not limited.
	if rr := do(t, h, http.MethodGet, "/health", ""); rr.Code != http.StatusOK {
		t.Errorf("health = %d, want 200", rr.Code)
	}
}

func TestMiddleware(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{CORSOrigins: []string{"https://app.example"}})
	h := s.Handler()

	req := httptest.NewRequest(http.MethodOptions, "/swap", nil)
	req.Header.Set("Origin", "https://app.example")
	rr := httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if rr.Code != http.StatusNoContent {
		t.Errorf("OPTIONS = %d, want 204", rr.Code)
	}
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "https://app.example" {
		t.Errorf("Allow-Origin = %q", got)
	}

	req = httptest.NewRequest(http.MethodGet, "/health", nil)
	req.Header.Set("Origin", "https://evil.example")
	req.Header.Set(RequestIDHeader, "req-123")
	rr = httptest.NewRecorder()
	h.ServeHTTP(rr, req)
	if got := rr.Header().Get("Access-Control-Allow-Origin"); got != "" {
		t.Errorf("Allow-Origin for unknown origin = %q, want empty", got)
	}
	if got := rr.Header().Get(RequestIDHeader); got != "req-123" {
		t.Errorf("request ID = %q, want req-123", got)
	}

	rr = do(t, h, http.MethodGet, "/health", "")
	if rr.Header().Get(RequestIDHeader) == "" {
		t.Error("missing generated request ID")
	}

	rr = do(t, h, http.MethodGet, "/metrics", "")
	if rr.Code != http.StatusOK || !strings.Contains(rr.Body.String(), "resolver_http_requests_total") {
		t.Errorf("metrics = %d, missing resolver_http_requests_total", rr.Code)
	}
}

func TestRateLimiterAllow(t *testing.T) {
	l := NewRateLimiter(60, 2)
	now := time.Unix(1_700_000_000, 0)
	l.now = func() time.Time { return now }

	if !l.Allow("a") || !l.Allow("a") {
		t.Fatal("burst requests rejected")
	}
	if l.Allow("a") {
		t.Error("third request allowed, want rejected")
	}
	if !l.Allow("b") {
		t.Error("other client rejected")
	}

	now = now.Add(time.Second)
	if !l.Allow("a") {
		t.Error("request after refill rejected")
	}

	now = now.Add(2 * visitorTTL)
	l.Allow("c")
	l.mu.Lock()
	n := len(l.visitors)
	l.mu.Unlock()
	if n != 1 {
		t.Errorf("visitors after sweep = %d, want 1", n)
	}

	unlimited := NewRateLimiter(0, 0)
	for i := 0; i < 100; i++ {
		if !unlimited.Allow("a") {
			t.Fatal("disabled limiter rejected a request")
		}
	}
}

func TestClientID(t *testing.T) {
	tests := []struct {
		name    string
		headers map[string]string
		remote  string
		want    string
	}{
		{"remote addr", nil, "10.0.0.1:5000", "10.0.0.1"},
		{"real ip", map[string]string{"X-Real-IP": " 1.2.3.4 "}, "10.0.0.1:5000", "1.2.3.4"},
		{"forwarded", map[string]string{"X-Forwarded-For": "5.6.7.8, 10.0.0.2"}, "10.0.0.1:5000", "5.6.7.8"},
		{"bad forwarded", map[string]string{"X-Forwarded-For": "garbage"}, "10.0.0.1:5000", "10.0.0.1"},
		{"no port", nil, "10.0.0.1", "10.0.0.1"},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			req := httptest.NewRequest(http.MethodGet, "/", nil)
			req.RemoteAddr = tt.remote
			for k, v := range tt.headers {
				req.Header.Set(k, v)
			}
			if got := clientID(req); got != tt.want {
				t.Errorf("clientID = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestStatusFor(t *testing.T) {
	tests := []struct {
		kind swaperr.Kind
		want int
	}{
		{swaperr.KindInvalidRequest, http.StatusBadRequest},
		{swaperr.KindUnknownAsset, http.StatusBadRequest},
		{swaperr.KindNotFound, http.StatusNotFound},
		{swaperr.KindRPC, http.StatusInternalServerError},
		{swaperr.KindPartialSettlement, http.StatusInternalServerError},
	}
	for _, tt := range tests {
		if got := statusFor(tt.kind); got != tt.want {
			t.Errorf("statusFor(%s) = %d, want %d", tt.kind, got, tt.want)
		}
	}
}

func TestWebSocketEvents(t *testing.T) {
	s, _, _ := newTestServer(t, config.APIConfig{})
	hub := s.WSHub()
	go hub.Run()
	defer hub.Close()

	ts := httptest.NewServer(s.Handler())
	defer ts.Close()

	url := "ws" + strings.TrimPrefix(ts.URL, "http") + "/ws"
	conn, _, err := websocket.DefaultDialer.Dial(url, nil)
	if err != nil {
		t.Fatalf("Dial: %v", err)
	}
	defer conn.Close()

	deadline := time.Now().Add(2 * time.Second)
	for hub.ClientCount() != 1 && time.Now().Before(deadline) {
		time.Sleep(5 * time.Millisecond)
	}
	if n := hub.ClientCount(); n != 1 {
		t.Fatalf("ClientCount = %d, want 1", n)
	}

	resp, err := http.Post(ts.URL+"/swap", "application/json", bytes.NewBufferString(swapBody("sepolia", "tron", "3")))
	if err != nil {
		t.Fatalf("POST /swap: %v", err)
	}
	resp.Body.Close()
	if resp.StatusCode != http.StatusOK {
		t.Fatalf("POST /swap = %d", resp.StatusCode)
	}

	conn.SetReadDeadline(time.Now().Add(2 * time.Second))
	for {
		var ev struct {
			Type EventType  `json:"type"`
			Data swap.Event `json:"data"`
		}
		if err := conn.ReadJSON(&ev); err != nil {
			t.Fatalf("ReadJSON: %v", err)
		}
		if ev.Type == swap.EventOrderCreated {
			if ev.Data.OrderHash == "" {
				t.Error("order.created without order hash")
			}
			return
		}
	}
}

func TestWSSubscriptionFilter(t *testing.T) {
	c := &WSClient{events: make(map[EventType]bool), orders: make(map[string]bool)}
	created := &hubMessage{event: swap.EventOrderCreated, orderHash: "0xAB"}
	completed := &hubMessage{event: swap.EventOrderCompleted, orderHash: "0xcd"}

	if !c.wants(created) || !c.wants(completed) {
		t.Fatal("unfiltered client should receive everything")
	}

	c.handleSubscription(&WSSubscription{Action: "subscribe", Events: []string{swap.EventOrderCreated}})
	if !c.wants(created) || c.wants(completed) {
		t.Error("event filter not applied")
	}

	c.handleSubscription(&WSSubscription{Action: "subscribe", Orders: []string{"0xab"}})
	if !c.wants(created) {
		t.Error("order filter should match case-insensitively")
	}

	c.handleSubscription(&WSSubscription{Action: "unsubscribe", Events: []string{swap.EventOrderCreated}, Orders: []string{"0xAB"}})
	if !c.wants(completed) {
		t.Error("unsubscribe should clear filters")
	}
}
