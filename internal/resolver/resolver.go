// Package resolver wires the orchestrator, the reveal monitor and the order
// registry into the service the HTTP layer talks to.
package resolver

import (
	"context"
	"encoding/json"
	"fmt"
	"strings"
	"sync"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/chain"
	"github.com/klingon-exchange/fusion-resolver/internal/config"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/registry"
	"github.com/klingon-exchange/fusion-resolver/internal/storage"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// Config holds the resolver settings.
type Config struct {
	Assets       *chain.Registry
	Orchestrator swap.OrchestratorConfig
	Monitor      swap.MonitorConfig
	Preflight    config.PreflightConfig

	// Factories maps escrow-capable networks to the escrow factory the
	// resolver approves as a token spender.
	Factories map[string]string

	// Retention and CleanupInterval drive registry pruning. Zero disables it.
	Retention       time.Duration
	CleanupInterval time.Duration
}

// NewConfig derives the resolver settings from the daemon configuration.
func NewConfig(c *config.Config) (Config, error) {
	assets, err := c.ChainRegistry()
	if err != nil {
		return Config{}, err
	}
	srcDeposit, err := c.SrcSafetyDeposit()
	if err != nil {
		return Config{}, err
	}
	dstDeposit, err := c.DstSafetyDeposit()
	if err != nil {
		return Config{}, err
	}

	factories := make(map[string]string)
	for _, name := range c.EnabledNetworks() {
		if f := c.EscrowFactory(name); f != "" {
			factories[name] = f
		}
	}

	return Config{
		Assets: assets,
		Orchestrator: swap.OrchestratorConfig{
			Assets:           assets,
			SrcSchedule:      c.TimeLocks.Src,
			DstSchedule:      c.TimeLocks.Dst,
			SrcSafetyDeposit: srcDeposit,
			DstSafetyDeposit: dstDeposit,
		},
		Monitor: swap.MonitorConfig{
			Interval:     c.Monitor.Interval,
			RevealDelay:  c.RevealDelay(),
			CheckTimeout: c.Monitor.CheckTimeout,
		},
		Preflight:       c.Preflight,
		Factories:       factories,
		Retention:       c.Registry.Retention,
		CleanupInterval: c.Registry.CleanupInterval,
	}, nil
}

// Archive keeps orders after they leave the registry and an audit trail of
// their events. *storage.Storage implements it.
type Archive interface {
	GetOrder(hash order.Hash) (*swap.OrderRecord, error)
	RecordEvent(ev *storage.OrderEvent) error
	ListEvents(hash order.Hash) ([]*storage.OrderEvent, error)
	CountOrders(status *swap.Status) (int, error)
}

// Resolver is the swap service.
type Resolver struct {
	cfg      Config
	adapters *adapter.Set
	registry *registry.Registry
	archive  Archive
	events   *swap.Emitter
	orch     *swap.Orchestrator
	monitor  *swap.Monitor
	log      *logging.Logger

	mu        sync.RWMutex
	running   bool
	starting  bool
	startedAt time.Time
	preflight []NetworkReport
}

// New creates a resolver. archive may be nil.
func New(cfg Config, adapters *adapter.Set, reg *registry.Registry, archive Archive) *Resolver {
	if cfg.Assets == nil {
		cfg.Assets = chain.NewRegistry()
	}
	ocfg := cfg.Orchestrator
	ocfg.Assets = cfg.Assets

	events := &swap.Emitter{}
	r := &Resolver{
		cfg:      cfg,
		adapters: adapters,
		registry: reg,
		archive:  archive,
		events:   events,
		orch:     swap.NewOrchestrator(reg, adapters, ocfg, events),
		monitor:  swap.NewMonitor(reg, adapters, cfg.Monitor, events),
		log:      logging.GetDefault().Component("resolver"),
	}
	if archive != nil {
		events.OnEvent(r.recordEvent)
	}
	return r
}

// Events returns the emitter carrying order lifecycle events.
func (r *Resolver) Events() *swap.Emitter {
	return r.events
}

// Start restores active orders, runs the preflight checks and starts the
// reveal monitor and registry cleanup. Preflight failures are logged only.
func (r *Resolver) Start(ctx context.Context) error {
	r.mu.Lock()
	if r.running || r.starting {
		r.mu.Unlock()
		return nil
	}
	r.starting = true
	r.mu.Unlock()

	// Restore and preflight run unlocked; approvals can wait on receipts.
	loaded, err := r.registry.Load(ctx)
	var report []NetworkReport
	if err == nil {
		report = r.Preflight(ctx)
	}

	r.mu.Lock()
	defer r.mu.Unlock()
	r.starting = false
	if err != nil {
		return fmt.Errorf("failed to restore orders: %w", err)
	}
	r.preflight = report

	r.monitor.Start()
	if r.cfg.CleanupInterval > 0 && r.cfg.Retention > 0 {
		r.registry.StartCleanup(r.cfg.CleanupInterval, r.cfg.Retention)
	}

	r.running = true
	r.startedAt = time.Now()
	r.log.Info("Resolver started",
		"networks", strings.Join(r.adapters.Networks(), ","),
		"escrow_networks", strings.Join(r.adapters.EscrowNetworks(), ","),
		"restored_orders", loaded,
	)
	return nil
}

// Stop stops the monitor, waiting for an in-flight tick, and the registry
// cleanup. Swap requests already running are not interrupted.
func (r *Resolver) Stop() {
	r.mu.Lock()
	defer r.mu.Unlock()
	if !r.running {
		return
	}
	r.monitor.Stop()
	r.registry.Stop()
	r.running = false
	r.log.Info("Resolver stopped")
}

// Running reports whether Start has been called without a matching Stop.
func (r *Resolver) Running() bool {
	r.mu.RLock()
	defer r.mu.RUnlock()
	return r.running
}

// CheckNow runs one reveal monitor tick.
func (r *Resolver) CheckNow(ctx context.Context) int {
	return r.monitor.CheckNow(ctx)
}

// =============================================================================
// Swaps
// =============================================================================

// SwapRequest is a swap request as received from a client.
type SwapRequest struct {
	FromNetwork        string `json:"fromNetwork"`
	ToNetwork          string `json:"toNetwork"`
	FromToken          string `json:"fromToken"`
	ToToken            string `json:"toToken"`
	Amount             string `json:"amount"`
	UserAddress        string `json:"userAddress"`
	DestinationAddress string `json:"destinationAddress,omitempty"`
}

// RequiredFields lists the fields a swap request must carry.
var RequiredFields = []string{"fromNetwork", "toNetwork", "fromToken", "toToken", "amount", "userAddress"}

// Validate checks field presence, that both networks are served and that
// they differ. Assets and amounts are checked by the orchestrator.
func (req *SwapRequest) Validate(networks []string) error {
	const op = "validate"
	values := []string{req.FromNetwork, req.ToNetwork, req.FromToken, req.ToToken, req.Amount, req.UserAddress}
	var missing []string
	for i, v := range values {
		if strings.TrimSpace(v) == "" {
			missing = append(missing, RequiredFields[i])
		}
	}
	if len(missing) > 0 {
		return swaperr.InvalidRequest(op, "missing required fields: "+strings.Join(missing, ", "))
	}

	for _, n := range []string{req.FromNetwork, req.ToNetwork} {
		if !contains(networks, n) {
			return swaperr.InvalidRequest(op, fmt.Sprintf("unsupported network %q (supported: %s)", n, strings.Join(networks, ", ")))
		}
	}
	if req.FromNetwork == req.ToNetwork {
		return swaperr.InvalidRequest(op, "source and destination networks must be different")
	}
	return nil
}

// SwapResult reports the outcome of a swap request.
type SwapResult struct {
	Success           bool         `json:"success"`
	OrderHash         string       `json:"orderHash,omitempty"`
	HashLock          string       `json:"hashLock,omitempty"`
	Secret            string       `json:"secret,omitempty"`
	SrcEscrow         string       `json:"srcEscrow,omitempty"`
	DstEscrow         string       `json:"dstEscrow,omitempty"`
	SrcTxHash         string       `json:"srcTxHash,omitempty"`
	DstTxHash         string       `json:"dstTxHash,omitempty"`
	Mode              swap.Mode    `json:"mode,omitempty"`
	Message           string       `json:"message,omitempty"`
	ErrorKind         swaperr.Kind `json:"errorKind,omitempty"`
	Error             string       `json:"error,omitempty"`
	PartialSettlement bool         `json:"partialSettlement,omitempty"`
	SourceRef         string       `json:"sourceRef,omitempty"`
}

// ProcessSwapRequest validates req and runs the swap. Failures are reported
// in the result, never as a Go error.
func (r *Resolver) ProcessSwapRequest(ctx context.Context, req SwapRequest) *SwapResult {
	if err := req.Validate(r.adapters.Networks()); err != nil {
		return failedResult(nil, err)
	}

	r.log.Info("Swap request",
		"amount", req.Amount,
		"from", req.FromNetwork+"/"+req.FromToken,
		"to", req.ToNetwork+"/"+req.ToToken,
	)

	res, err := r.orch.ProcessSwapRequest(ctx, swap.Request{
		FromNetwork:        req.FromNetwork,
		ToNetwork:          req.ToNetwork,
		FromToken:          req.FromToken,
		ToToken:            req.ToToken,
		Amount:             req.Amount,
		UserAddress:        req.UserAddress,
		DestinationAddress: req.DestinationAddress,
	})
	if err != nil {
		return failedResult(res, err)
	}

	msg := "Escrows created on both chains, secret reveal after finality"
	if res.Mode == swap.ModeDegraded {
		msg = "Direct transfer completed without escrow protection"
	}
	return &SwapResult{
		Success:   true,
		OrderHash: res.OrderHash.Hex(),
		HashLock:  res.HashLock.Hex(),
		Secret:    res.Secret.Hex(),
		SrcEscrow: res.SrcEscrow,
		DstEscrow: res.DstEscrow,
		SrcTxHash: res.SrcTxHash,
		DstTxHash: res.DstTxHash,
		Mode:      res.Mode,
		Message:   msg,
	}
}

func failedResult(res *swap.Result, err error) *SwapResult {
	out := &SwapResult{
		ErrorKind:         swaperr.KindOf(err),
		Error:             err.Error(),
		PartialSettlement: swaperr.Is(err, swaperr.KindPartialSettlement),
		SourceRef:         swaperr.SourceRefOf(err),
	}
	if res != nil {
		out.OrderHash = res.OrderHash.Hex()
		out.HashLock = res.HashLock.Hex()
		out.Mode = res.Mode
	}
	return out
}

// CancelOrder cancels the escrows of a failed order.
func (r *Resolver) CancelOrder(ctx context.Context, hash string) (*OrderStatusView, error) {
	h, err := parseHash("cancelOrder", hash)
	if err != nil {
		return nil, err
	}
	rec, err := r.orch.CancelOrder(ctx, h)
	if rec == nil {
		return nil, err
	}
	return r.statusView(rec), err
}

// =============================================================================
// Queries
// =============================================================================

// GetOrderStatus returns the view of one order. Orders pruned from memory are
// looked up in the archive.
func (r *Resolver) GetOrderStatus(hash string) (*OrderStatusView, error) {
	const op = "getOrderStatus"
	h, err := parseHash(op, hash)
	if err != nil {
		return nil, err
	}

	if rec, ok := r.registry.Get(h); ok {
		return r.statusView(rec), nil
	}
	if r.archive != nil {
		if rec, err := r.archive.GetOrder(h); err == nil {
			return r.statusView(rec), nil
		}
	}
	return nil, swaperr.NotFound(op, "order "+hash)
}

// statusView hides the secret until the reveal monitor may publish it: the
// order has escrows on both chains and is older than the reveal delay.
func (r *Resolver) statusView(rec *swap.OrderRecord) *OrderStatusView {
	reveal := rec.Status == swap.StatusEscrowsCreated &&
		time.Since(rec.CreatedAt) > r.cfg.Monitor.RevealDelay
	return newStatusView(rec, reveal)
}

// GetAllOrders returns a summary of every order in the registry keyed by
// order hash.
func (r *Resolver) GetAllOrders() map[string]OrderSummary {
	orders := make(map[string]OrderSummary, r.registry.Len())
	r.registry.Range(func(rec *swap.OrderRecord) bool {
		orders[rec.OrderHash.Hex()] = newSummary(rec)
		return true
	})
	return orders
}

// OrderEvents returns the recorded events of an order, oldest first.
func (r *Resolver) OrderEvents(hash string) ([]*storage.OrderEvent, error) {
	const op = "orderEvents"
	h, err := parseHash(op, hash)
	if err != nil {
		return nil, err
	}
	if _, err := r.GetOrderStatus(hash); err != nil {
		return nil, err
	}
	if r.archive == nil {
		return []*storage.OrderEvent{}, nil
	}
	events, err := r.archive.ListEvents(h)
	if err != nil {
		return nil, swaperr.RPC(op, err)
	}
	return events, nil
}

// NetworkInfo describes a network the resolver serves.
type NetworkInfo struct {
	Name        string   `json:"name"`
	DisplayName string   `json:"displayName"`
	Kind        string   `json:"kind"`
	ChainID     uint64   `json:"chainId"`
	Escrow      bool     `json:"escrow"`
	Resolver    string   `json:"resolver"`
	Tokens      []string `json:"tokens"`
}

// Pair is a supported swap direction and the tokens available on both ends.
type Pair struct {
	From   string   `json:"from"`
	To     string   `json:"to"`
	Tokens []string `json:"tokens"`
}

// Supported lists the served networks and swap pairs.
type Supported struct {
	Networks map[string]NetworkInfo `json:"networks"`
	Pairs    []Pair                 `json:"pairs"`
}

// SupportedNetworks returns the networks with an adapter and the pairs
// between them.
func (r *Resolver) SupportedNetworks() *Supported {
	out := &Supported{Networks: make(map[string]NetworkInfo)}
	names := r.adapters.Networks()

	for _, name := range names {
		a, _ := r.adapters.Get(name)
		info := NetworkInfo{
			Name:     name,
			Escrow:   a.SupportsEscrow(),
			Resolver: a.ResolverAddress(),
			Tokens:   r.tokens(name),
		}
		if params, err := r.cfg.Assets.Network(name); err == nil {
			info.DisplayName = params.DisplayName
			info.Kind = string(params.Kind)
			info.ChainID = params.ChainID
		}
		out.Networks[name] = info
	}

	for _, from := range names {
		for _, to := range names {
			if from == to {
				continue
			}
			if common := intersect(r.tokens(from), r.tokens(to)); len(common) > 0 {
				out.Pairs = append(out.Pairs, Pair{From: from, To: to, Tokens: common})
			}
		}
	}
	return out
}

// DebugInfo is an operator view of the resolver state.
type DebugInfo struct {
	Running        bool                `json:"running"`
	StartedAt      time.Time           `json:"startedAt"`
	ActiveOrders   []string            `json:"activeOrders"`
	TotalOrders    int                 `json:"totalOrders"`
	ArchivedOrders int                 `json:"archivedOrders"`
	Networks       []string            `json:"networks"`
	EscrowNetworks []string            `json:"escrowNetworks"`
	TimeLocks      map[string]Schedule `json:"timeLocks"`
	RevealDelay    string              `json:"revealDelay"`
	Factories      map[string]string   `json:"factories"`
	Preflight      []NetworkReport     `json:"preflight,omitempty"`
	StatusCounts   map[swap.Status]int `json:"statusCounts"`
}

// Schedule is a timelock schedule rendered for display.
type Schedule struct {
	FinalityLock        string `json:"finalityLock"`
	PrivateWithdrawal   string `json:"privateWithdrawal"`
	PublicWithdrawal    string `json:"publicWithdrawal"`
	PrivateCancellation string `json:"privateCancellation"`
	PublicCancellation  string `json:"publicCancellation,omitempty"`
}

// Debug returns the operator view.
func (r *Resolver) Debug() *DebugInfo {
	r.mu.RLock()
	info := &DebugInfo{
		Running:   r.running,
		StartedAt: r.startedAt,
		Preflight: append([]NetworkReport(nil), r.preflight...),
	}
	r.mu.RUnlock()

	info.ActiveOrders = []string{}
	info.StatusCounts = make(map[swap.Status]int)
	for _, rec := range r.registry.Snapshot() {
		info.StatusCounts[rec.Status]++
		if !rec.Status.IsTerminal() {
			info.ActiveOrders = append(info.ActiveOrders, rec.OrderHash.Hex())
		}
	}
	info.TotalOrders = r.registry.Len()
	if r.archive != nil {
		n, err := r.archive.CountOrders(nil)
		if err != nil {
			r.log.Warn("Failed to count archived orders", "error", err)
		}
		info.ArchivedOrders = n
	}
	info.Networks = r.adapters.Networks()
	info.EscrowNetworks = r.adapters.EscrowNetworks()
	if info.EscrowNetworks == nil {
		info.EscrowNetworks = []string{}
	}
	info.TimeLocks = map[string]Schedule{
		"src": newSchedule(r.cfg.Orchestrator.SrcSchedule),
		"dst": newSchedule(r.cfg.Orchestrator.DstSchedule),
	}
	info.RevealDelay = r.cfg.Monitor.RevealDelay.String()
	info.Factories = make(map[string]string, len(r.cfg.Factories))
	for k, v := range r.cfg.Factories {
		info.Factories[k] = v
	}
	return info
}

// =============================================================================
// Helpers
// =============================================================================

func (r *Resolver) recordEvent(ev swap.Event) {
	data, err := json.Marshal(ev.Data)
	if err != nil {
		r.log.Warn("Failed to encode event", "type", ev.Type, "error", err)
		return
	}
	err = r.archive.RecordEvent(&storage.OrderEvent{
		ID:        ev.ID,
		OrderHash: ev.OrderHash,
		Type:      ev.Type,
		Data:      string(data),
		CreatedAt: ev.Timestamp,
	})
	if err != nil {
		r.log.Warn("Failed to record event", "order_hash", ev.OrderHash, "type", ev.Type, "error", err)
	}
}

func (r *Resolver) tokens(network string) []string {
	assets := r.cfg.Assets.Assets(network)
	symbols := make([]string, 0, len(assets))
	for _, a := range assets {
		symbols = append(symbols, a.Symbol)
	}
	return symbols
}

func parseHash(op, s string) (order.Hash, error) {
	h, err := order.ParseHash(s)
	if err != nil {
		return order.Hash{}, swaperr.InvalidRequest(op, fmt.Sprintf("invalid order hash %q", s))
	}
	return h, nil
}

func newSchedule(s timelock.Schedule) Schedule {
	out := Schedule{
		FinalityLock:        s.FinalityLock.String(),
		PrivateWithdrawal:   s.PrivateWithdrawal.String(),
		PublicWithdrawal:    s.PublicWithdrawal.String(),
		PrivateCancellation: s.PrivateCancellation.String(),
	}
	if s.PublicCancellation > 0 {
		out.PublicCancellation = s.PublicCancellation.String()
	}
	return out
}

func contains(list []string, v string) bool {
	for _, s := range list {
		if s == v {
			return true
		}
	}
	return false
}

func intersect(a, b []string) []string {
	var out []string
	for _, v := range a {
		if contains(b, v) {
			out = append(out, v)
		}
	}
	return out
}
