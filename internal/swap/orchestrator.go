package swap

import (
	"context"
	"errors"
	"fmt"
	"math/big"
	"strings"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/chain"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
	"github.com/klingon-exchange/fusion-resolver/pkg/helpers"
	"github.com/klingon-exchange/fusion-resolver/pkg/logging"
)

// OrderStore is the registry as seen by the orchestrator and monitor.
type OrderStore interface {
	Put(rec *OrderRecord) error
	Get(hash order.Hash) (*OrderRecord, bool)
	Update(hash order.Hash, fn func(rec *OrderRecord) error) (*OrderRecord, error)
	ListByStatus(status Status) []*OrderRecord
}

// Request is a validated swap request.
type Request struct {
	FromNetwork        string
	ToNetwork          string
	FromToken          string
	ToToken            string
	Amount             string // decimal, in whole tokens
	UserAddress        string
	DestinationAddress string // defaults to UserAddress
}

// Result is returned for an order that reached escrows_created.
type Result struct {
	OrderHash order.Hash
	HashLock  order.HashLock
	Secret    order.Secret
	SrcEscrow string
	DstEscrow string
	SrcTxHash string
	DstTxHash string
	Mode      Mode
}

// OrchestratorConfig holds the per-order parameters.
type OrchestratorConfig struct {
	Assets           *chain.Registry
	SrcSchedule      timelock.Schedule
	DstSchedule      timelock.Schedule
	SrcSafetyDeposit *big.Int
	DstSafetyDeposit *big.Int
}

// Orchestrator turns swap requests into orders and locks both legs.
type Orchestrator struct {
	store    OrderStore
	adapters *adapter.Set
	cfg      OrchestratorConfig
	events   *Emitter
	metrics  *swapMetrics
	log      *logging.Logger
	now      func() time.Time
}

// NewOrchestrator creates an orchestrator. events may be nil.
func NewOrchestrator(store OrderStore, adapters *adapter.Set, cfg OrchestratorConfig, events *Emitter) *Orchestrator {
	if events == nil {
		events = &Emitter{}
	}
	if cfg.Assets == nil {
		cfg.Assets = chain.NewRegistry()
	}
	return &Orchestrator{
		store:    store,
		adapters: adapters,
		cfg:      cfg,
		events:   events,
		metrics:  metrics(),
		log:      logging.GetDefault().Component("orchestrator"),
		now:      time.Now,
	}
}

// Events returns the emitter used for order notifications.
func (o *Orchestrator) Events() *Emitter {
	return o.events
}

// ProcessSwapRequest builds an order for req and locks both legs.
//
// Errors before the order is registered leave no record and return a nil
// Result. Once the order is registered every error also marks it failed and
// the returned Result carries the order hash but no secret. Errors after the
// user's tokens were pulled are PartialSettlementErrors carrying the
// source-side reference.
func (o *Orchestrator) ProcessSwapRequest(ctx context.Context, req Request) (*Result, error) {
	const op = "processSwapRequest"
	started := o.now()

	src, dst, err := o.legs(req)
	if err != nil {
		return nil, err
	}
	receiver := req.DestinationAddress
	if receiver == "" {
		receiver = req.UserAddress
	}

	// 1. Secret and hash lock.
	secret, err := order.NewSecret()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	hashLock := order.HashLockOf(secret)

	// 2. Assets.
	srcAsset, err := o.cfg.Assets.Asset(req.FromNetwork, req.FromToken)
	if err != nil {
		return nil, swaperr.UnknownAsset(op, err)
	}
	dstAsset, err := o.cfg.Assets.Asset(req.ToNetwork, req.ToToken)
	if err != nil {
		return nil, swaperr.UnknownAsset(op, err)
	}

	// 3. Amounts in each asset's precision, and addresses.
	making, err := helpers.ParseUnits(req.Amount, srcAsset.Decimals)
	if err != nil {
		return nil, swaperr.InvalidRequest(op, err.Error())
	}
	taking, err := helpers.ParseUnits(req.Amount, dstAsset.Decimals)
	if err != nil {
		return nil, swaperr.InvalidRequest(op, err.Error())
	}
	if err := src.ValidateAddress(req.UserAddress); err != nil {
		return nil, swaperr.InvalidRequest(op, fmt.Sprintf("userAddress: %v", err))
	}
	if err := dst.ValidateAddress(receiver); err != nil {
		return nil, swaperr.InvalidRequest(op, fmt.Sprintf("destinationAddress: %v", err))
	}

	salt, err := order.NewSalt()
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	ord := order.Order{
		Maker:        req.UserAddress,
		MakerAsset:   srcAsset.Address,
		TakerAsset:   dstAsset.Address,
		MakingAmount: making,
		TakingAmount: taking,
		Receiver:     receiver,
		Salt:         salt,
		MakerTraits:  new(big.Int),
	}

	// 4. Order hash.
	hash, scheme, err := order.ComputeHash(&ord)
	if err != nil {
		return nil, swaperr.Encoding(op, err)
	}

	now := o.now()
	srcLocks, err := o.cfg.SrcSchedule.Pack(now)
	if err != nil {
		return nil, swaperr.Encoding(op, err)
	}
	dstLocks, err := o.cfg.DstSchedule.Pack(now)
	if err != nil {
		return nil, swaperr.Encoding(op, err)
	}

	mode := ModeDegraded
	if src.SupportsEscrow() && dst.SupportsEscrow() {
		mode = ModeEscrow
	}

	// 5. Pending record.
	rec := &OrderRecord{
		OrderHash:    hash,
		HashScheme:   scheme,
		Order:        ord,
		HashLock:     hashLock,
		Secret:       secret,
		SrcTimeLocks: srcLocks,
		DstTimeLocks: dstLocks,
		FromNetwork:  req.FromNetwork,
		ToNetwork:    req.ToNetwork,
		FromToken:    strings.ToUpper(req.FromToken),
		ToToken:      strings.ToUpper(req.ToToken),
		Amount:       req.Amount,
		Mode:         mode,
		Status:       StatusPending,
		CreatedAt:    now,
	}
	if err := o.store.Put(rec); err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o.metrics.requests.WithLabelValues(req.FromNetwork, req.ToNetwork, string(mode)).Inc()
	o.metrics.statuses.WithLabelValues(string(StatusPending)).Inc()
	o.events.emit(EventOrderCreated, rec, map[string]interface{}{
		"fromNetwork": req.FromNetwork,
		"toNetwork":   req.ToNetwork,
		"amount":      req.Amount,
		"mode":        string(mode),
	})

	log := o.log.With("order_hash", hash.Hex(), "from", req.FromNetwork, "to", req.ToNetwork, "mode", mode)
	log.Info("Order created", "amount", req.Amount, "token", rec.FromToken)

	failed := &Result{OrderHash: hash, HashLock: hashLock, Mode: mode}

	// 6. Pull the user's tokens, then lock or pay the destination leg.
	if err := o.pull(ctx, src, srcAsset, rec); err != nil {
		return failed, o.fail(hash, err)
	}

	if mode == ModeEscrow {
		err = o.createEscrows(ctx, src, dst, srcAsset, dstAsset, hash)
	} else {
		err = o.transferDirect(ctx, dst, dstAsset, hash)
	}
	if err != nil {
		cur, _ := o.store.Get(hash)
		sourceRef := rec.PullTxHash
		if cur != nil {
			sourceRef = cur.SourceRef()
		}
		return failed, o.fail(hash, swaperr.PartialSettlement(op, sourceRef, err))
	}

	// 7. escrows_created.
	final, err := o.store.Update(hash, func(r *OrderRecord) error {
		return r.SetStatus(StatusEscrowsCreated)
	})
	if err != nil {
		return nil, fmt.Errorf("%s: %w", op, err)
	}
	o.metrics.statuses.WithLabelValues(string(StatusEscrowsCreated)).Inc()
	o.metrics.duration.WithLabelValues(string(mode)).Observe(o.now().Sub(started).Seconds())
	o.events.emit(EventOrderEscrowsCreated, final, map[string]interface{}{
		"srcEscrow": final.SrcEscrow,
		"dstEscrow": final.DstEscrow,
		"srcTxHash": final.SrcTxHash,
		"dstTxHash": final.DstTxHash,
	})
	log.Info("Escrows created", "src", final.SourceRef(), "dst", firstNonEmpty(final.DstEscrow, final.DstTxHash))

	return &Result{
		OrderHash: hash,
		HashLock:  hashLock,
		Secret:    secret,
		SrcEscrow: final.SrcEscrow,
		DstEscrow: final.DstEscrow,
		SrcTxHash: final.SrcTxHash,
		DstTxHash: final.DstTxHash,
		Mode:      mode,
	}, nil
}

// legs returns the adapters for both sides of req.
func (o *Orchestrator) legs(req Request) (adapter.ChainAdapter, adapter.ChainAdapter, error) {
	const op = "processSwapRequest"
	if req.FromNetwork == req.ToNetwork {
		return nil, nil, swaperr.InvalidRequest(op, "fromNetwork and toNetwork must differ")
	}
	src, ok := o.adapters.Get(req.FromNetwork)
	if !ok {
		return nil, nil, swaperr.InvalidRequest(op, "unsupported network: "+req.FromNetwork)
	}
	dst, ok := o.adapters.Get(req.ToNetwork)
	if !ok {
		return nil, nil, swaperr.InvalidRequest(op, "unsupported network: "+req.ToNetwork)
	}
	return src, dst, nil
}

// pull checks the user's allowance to the resolver and moves the making
// amount to the resolver. Nothing has moved if it fails.
func (o *Orchestrator) pull(ctx context.Context, src adapter.ChainAdapter, asset *chain.AssetInfo, rec *OrderRecord) error {
	resolver := src.ResolverAddress()
	making := rec.Order.MakingAmount

	allowance, err := src.GetAllowance(ctx, asset.Address, rec.Order.Maker, resolver)
	if err != nil {
		return err
	}
	if allowance.Cmp(making) < 0 {
		return swaperr.InsufficientAllowance(
			src.Network()+".allowance",
			helpers.FormatUnits(allowance, asset.Decimals),
			helpers.FormatUnits(making, asset.Decimals),
		)
	}

	tx, err := src.TransferFrom(ctx, asset.Address, rec.Order.Maker, resolver, making)
	if err != nil {
		return err
	}
	_, err = o.store.Update(rec.OrderHash, func(r *OrderRecord) error {
		r.PullTxHash = tx.String()
		return nil
	})
	rec.PullTxHash = tx.String()
	return err
}

// createEscrows locks the source leg for the resolver and the destination
// leg for the user, then reads both escrow addresses back.
func (o *Orchestrator) createEscrows(ctx context.Context, src, dst adapter.ChainAdapter, srcAsset, dstAsset *chain.AssetInfo, hash order.Hash) error {
	rec, ok := o.store.Get(hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, hash.Hex())
	}

	srcRef, err := src.CreateEscrow(ctx, adapter.EscrowParams{
		OrderHash:     hash,
		Token:         srcAsset.Address,
		Amount:        rec.Order.MakingAmount,
		HashLock:      rec.HashLock,
		TimeLocks:     rec.SrcTimeLocks,
		Depositor:     rec.Order.Maker,
		Beneficiary:   src.ResolverAddress(),
		SafetyDeposit: o.cfg.SrcSafetyDeposit,
	})
	if err != nil {
		return err
	}
	if _, err := o.store.Update(hash, func(r *OrderRecord) error {
		r.SrcEscrow = srcRef.Address
		r.SrcTxHash = srcRef.TxHash.String()
		return nil
	}); err != nil {
		return err
	}

	dstRef, err := dst.CreateEscrow(ctx, adapter.EscrowParams{
		OrderHash:     hash,
		Token:         dstAsset.Address,
		Amount:        rec.Order.TakingAmount,
		HashLock:      rec.HashLock,
		TimeLocks:     rec.DstTimeLocks,
		Depositor:     dst.ResolverAddress(),
		Beneficiary:   rec.Order.Receiver,
		SafetyDeposit: o.cfg.DstSafetyDeposit,
	})
	if err != nil {
		return err
	}
	if _, err := o.store.Update(hash, func(r *OrderRecord) error {
		r.DstEscrow = dstRef.Address
		r.DstTxHash = dstRef.TxHash.String()
		return nil
	}); err != nil {
		return err
	}

	srcAddr, err := o.readBack(ctx, src, hash, srcRef.Address)
	if err != nil {
		return err
	}
	dstAddr, err := o.readBack(ctx, dst, hash, dstRef.Address)
	if err != nil {
		return err
	}
	_, err = o.store.Update(hash, func(r *OrderRecord) error {
		r.SrcEscrow = srcAddr
		r.DstEscrow = dstAddr
		return nil
	})
	return err
}

// readBack confirms the deployed escrow address. A read failure keeps the
// address from the creation receipt; an escrow the factory does not know is
// an error.
func (o *Orchestrator) readBack(ctx context.Context, a adapter.ChainAdapter, hash order.Hash, created string) (string, error) {
	addr, found, err := a.GetEscrow(ctx, hash)
	switch {
	case err != nil:
		o.log.Warn("Escrow readback failed", "network", a.Network(), "order_hash", hash.Hex(), "error", err)
		return created, nil
	case !found:
		return "", swaperr.Revert(a.Network()+".getEscrow", "escrow not deployed")
	case created != "" && !strings.EqualFold(addr, created):
		o.log.Warn("Escrow address mismatch", "network", a.Network(), "created", created, "deployed", addr)
	}
	return addr, nil
}

// transferDirect pays the receiver on the destination network. Not atomic.
func (o *Orchestrator) transferDirect(ctx context.Context, dst adapter.ChainAdapter, asset *chain.AssetInfo, hash order.Hash) error {
	rec, ok := o.store.Get(hash)
	if !ok {
		return fmt.Errorf("%w: %s", ErrOrderNotFound, hash.Hex())
	}

	tx, err := dst.Transfer(ctx, asset.Address, rec.Order.Receiver, rec.Order.TakingAmount)
	if err != nil {
		return err
	}
	_, err = o.store.Update(hash, func(r *OrderRecord) error {
		r.SrcTxHash = r.PullTxHash
		r.DstTxHash = tx.String()
		return nil
	})
	return err
}

// fail marks the order failed and returns cause.
func (o *Orchestrator) fail(hash order.Hash, cause error) error {
	rec, err := o.store.Update(hash, func(r *OrderRecord) error {
		return r.Fail(cause)
	})
	if err != nil {
		o.log.Error("Failed to mark order failed", "order_hash", hash.Hex(), "error", err)
		return cause
	}

	kind := swaperr.KindOf(cause)
	o.metrics.statuses.WithLabelValues(string(StatusFailed)).Inc()
	o.metrics.failures.WithLabelValues(string(kind)).Inc()
	o.events.emit(EventOrderFailed, rec, map[string]interface{}{
		"errorKind":         string(kind),
		"error":             cause.Error(),
		"partialSettlement": rec.PartialSettlement,
	})

	if rec.PartialSettlement {
		o.log.Error("Partial settlement", "order_hash", hash.Hex(), "source_ref", swaperr.SourceRefOf(cause), "error", cause)
	} else {
		o.log.Warn("Order failed", "order_hash", hash.Hex(), "kind", kind, "error", cause)
	}
	return cause
}

// =============================================================================
// Cancellation
// =============================================================================

// ErrNotCancellable is returned for orders without escrows to cancel.
var ErrNotCancellable = errors.New("order has no escrows to cancel")

// CancelOrder cancels the escrows of a failed escrow-mode order so each
// depositor recovers their funds. The escrow contracts decide whether the
// cancellation window is open. Sides cancelled earlier are skipped.
func (o *Orchestrator) CancelOrder(ctx context.Context, hash order.Hash) (*OrderRecord, error) {
	const op = "cancelOrder"

	rec, ok := o.store.Get(hash)
	if !ok {
		return nil, swaperr.NotFound(op, "order "+hash.Hex())
	}
	if rec.Status != StatusFailed {
		return nil, swaperr.InvalidRequest(op, fmt.Sprintf("order is %s, only failed orders can be cancelled", rec.Status))
	}
	if rec.Mode != ModeEscrow || (rec.SrcEscrow == "" && rec.DstEscrow == "") {
		return nil, swaperr.InvalidRequest(op, ErrNotCancellable.Error())
	}

	sides := []struct {
		network string
		escrow  string
	}{
		{rec.FromNetwork, rec.SrcEscrow},
		{rec.ToNetwork, rec.DstEscrow},
	}

	var errs []error
	for _, side := range sides {
		if side.escrow == "" || cancelledOn(rec, side.network) {
			continue
		}
		a, ok := o.adapters.Get(side.network)
		if !ok {
			errs = append(errs, swaperr.InvalidRequest(op, "unsupported network: "+side.network))
			continue
		}

		tx, err := a.Cancel(ctx, side.escrow)
		if err != nil {
			o.log.Warn("Escrow cancel failed", "order_hash", hash.Hex(), "network", side.network, "escrow", side.escrow, "error", err)
			errs = append(errs, err)
			continue
		}
		ref := side.network + ":" + tx.String()
		updated, err := o.store.Update(hash, func(r *OrderRecord) error {
			r.CancelTxHashes = append(r.CancelTxHashes, ref)
			return nil
		})
		if err != nil {
			errs = append(errs, err)
			continue
		}
		rec = updated
		o.log.Info("Escrow cancelled", "order_hash", hash.Hex(), "network", side.network, "tx", tx)
		o.events.emit(EventOrderCancelled, rec, map[string]interface{}{
			"network": side.network,
			"escrow":  side.escrow,
			"txHash":  tx.String(),
		})
	}

	if len(errs) > 0 {
		return rec, errors.Join(errs...)
	}
	return rec, nil
}

func cancelledOn(rec *OrderRecord, network string) bool {
	for _, ref := range rec.CancelTxHashes {
		if strings.HasPrefix(ref, network+":") {
			return true
		}
	}
	return false
}

func firstNonEmpty(values ...string) string {
	for _, v := range values {
		if v != "" {
			return v
		}
	}
	return ""
}
