package swap_test

import (
	"context"
	"errors"
	"math/big"
	"strings"
	"sync"
	"testing"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/adapter/mock"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/registry"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

const (
	user         = "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2"
	sepoliaUSDC  = "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238"
	tronUSDC     = "TSdZwNqpHofzP6BsBKGQUWdBeJphLmF6id"
	tronTrueERC  = "TWMdGyPMtLj2zW3hgMgDneuVnc7qVwGvJU"
	tronReceiver = "TDjWsSyKvT6X8gdfCvVXmJeLQfnQVjz1XS"
)

var safetyDeposit = big.NewInt(1_000_000_000_000_000)

type harness struct {
	src   *mock.Adapter
	dst   *mock.Adapter
	set   *adapter.Set
	reg   *registry.Registry
	orch  *swap.Orchestrator
	mon   *swap.Monitor
	clock time.Time
}

func newHarness(t *testing.T, srcEscrow, dstEscrow bool) *harness {
	t.Helper()

	h := &harness{
		src: mock.New("sepolia", srcEscrow),
		dst: mock.New("tron", dstEscrow),
		reg: registry.New(nil),
	}
	set, err := adapter.NewSet(h.src, h.dst)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}
	h.set = set

	h.orch = swap.NewOrchestrator(h.reg, set, swap.OrchestratorConfig{
		SrcSchedule:      timelock.DefaultSrcSchedule(),
		DstSchedule:      timelock.DefaultDstSchedule(),
		SrcSafetyDeposit: safetyDeposit,
		DstSafetyDeposit: safetyDeposit,
	}, nil)
	h.mon = swap.NewMonitor(h.reg, set, swap.MonitorConfig{RevealDelay: 10 * time.Second}, h.orch.Events())
	h.clock = time.Now()
	h.mon.SetClock(func() time.Time { return h.clock })

	// 1000 USDC for the user with a 1000 USDC allowance to the resolver, and
	// 1000 USDC of resolver liquidity on the destination.
	h.src.SetTokenBalance(sepoliaUSDC, user, big.NewInt(1_000_000_000))
	h.src.SetAllowance(sepoliaUSDC, user, h.src.ResolverAddress(), big.NewInt(1_000_000_000))
	h.dst.SetTokenBalance(tronUSDC, h.dst.ResolverAddress(), big.NewInt(1_000_000_000))
	return h
}

func usdcRequest(amount string) swap.Request {
	return swap.Request{
		FromNetwork: "sepolia",
		ToNetwork:   "tron",
		FromToken:   "USDC",
		ToToken:     "USDC",
		Amount:      amount,
		UserAddress: user,
	}
}

func (h *harness) status(t *testing.T, hash order.Hash) *swap.OrderRecord {
	t.Helper()
	rec, ok := h.reg.Get(hash)
	if !ok {
		t.Fatalf("order %s not in registry", hash.Hex())
	}
	return rec
}

func TestProcessSwapRequestEscrow(t *testing.T) {
	h := newHarness(t, true, true)

	res, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("100"))
	if err != nil {
		t.Fatalf("ProcessSwapRequest: %v", err)
	}

	if res.OrderHash == (order.Hash{}) {
		t.Error("OrderHash is zero")
	}
	if order.HashLockOf(res.Secret) != res.HashLock {
		t.Error("hashLock != keccak256(secret)")
	}
	if res.Mode != swap.ModeEscrow {
		t.Errorf("Mode = %s, want escrow", res.Mode)
	}

	rec := h.status(t, res.OrderHash)
	if rec.Status != swap.StatusEscrowsCreated {
		t.Errorf("Status = %s, want escrows_created", rec.Status)
	}
	if rec.SrcEscrow != res.SrcEscrow || rec.DstEscrow != res.DstEscrow || rec.SrcEscrow == "" || rec.DstEscrow == "" {
		t.Errorf("escrows = %s/%s, result %s/%s", rec.SrcEscrow, rec.DstEscrow, res.SrcEscrow, res.DstEscrow)
	}
	if rec.PullTxHash == "" {
		t.Error("PullTxHash not recorded")
	}

	want := big.NewInt(100_000_000)
	srcEscrow, ok := h.src.Escrow(res.OrderHash)
	if !ok {
		t.Fatal("source escrow not created")
	}
	if srcEscrow.Params.Depositor != user || srcEscrow.Params.Beneficiary != h.src.ResolverAddress() {
		t.Errorf("source escrow parties = %s -> %s", srcEscrow.Params.Depositor, srcEscrow.Params.Beneficiary)
	}
	if srcEscrow.Params.Amount.Cmp(want) != 0 {
		t.Errorf("source escrow amount = %s, want %s", srcEscrow.Params.Amount, want)
	}
	if srcEscrow.Params.SafetyDeposit.Cmp(safetyDeposit) != 0 {
		t.Errorf("safety deposit = %s, want %s", srcEscrow.Params.SafetyDeposit, safetyDeposit)
	}
	if srcEscrow.Params.HashLock != res.HashLock {
		t.Error("source escrow hash lock mismatch")
	}
	_, offsets := timelock.Unpack(srcEscrow.Params.TimeLocks)
	if offsets != timelock.DefaultSrcSchedule().Offsets() {
		t.Errorf("source offsets = %+v", offsets)
	}

	dstEscrow, ok := h.dst.Escrow(res.OrderHash)
	if !ok {
		t.Fatal("destination escrow not created")
	}
	if dstEscrow.Params.Depositor != h.dst.ResolverAddress() || dstEscrow.Params.Beneficiary != user {
		t.Errorf("destination escrow parties = %s -> %s", dstEscrow.Params.Depositor, dstEscrow.Params.Beneficiary)
	}
	if got := h.dst.TokenBalance(tronUSDC, dstEscrow.Address); got.Cmp(want) != 0 {
		t.Errorf("destination escrow balance = %s, want %s", got, want)
	}
	if got := h.src.TokenBalance(sepoliaUSDC, user); got.Int64() != 900_000_000 {
		t.Errorf("user source balance = %s, want 900000000", got)
	}
}

func TestProcessSwapRequestZeroAllowance(t *testing.T) {
	h := newHarness(t, true, true)
	h.src.SetAllowance(sepoliaUSDC, user, h.src.ResolverAddress(), new(big.Int))

	res, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("100"))
	if swaperr.KindOf(err) != swaperr.KindInsufficientAllowance {
		t.Fatalf("error = %v, want InsufficientAllowanceError", err)
	}
	if res == nil || res.OrderHash == (order.Hash{}) {
		t.Fatal("failed result should identify the order")
	}
	if !res.Secret.IsZero() {
		t.Error("failed result must not carry the secret")
	}
	if rec := h.status(t, res.OrderHash); rec.Status != swap.StatusFailed {
		t.Errorf("Status = %s, want failed", rec.Status)
	}

	for _, rec := range h.reg.Snapshot() {
		if rec.Status == swap.StatusEscrowsCreated {
			t.Errorf("order %s left in escrows_created", rec.OrderHash.Hex())
		}
		if rec.Status != swap.StatusFailed || rec.PartialSettlement {
			t.Errorf("order status = %s partial=%v, want failed without partial settlement", rec.Status, rec.PartialSettlement)
		}
	}
	if n := h.src.CallCount("TransferFrom") + h.src.CallCount("CreateEscrow") + h.dst.CallCount("CreateEscrow"); n != 0 {
		t.Errorf("%d value-moving calls after failed allowance check", n)
	}
}

func TestProcessSwapRequestDestinationRevert(t *testing.T) {
	h := newHarness(t, true, true)
	h.dst.FailOn("CreateEscrow", swaperr.Revert("tron.createEscrow", "insufficient safety deposit"))

	_, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("100"))
	if swaperr.KindOf(err) != swaperr.KindPartialSettlement {
		t.Fatalf("error = %v, want PartialSettlementError", err)
	}
	if !swaperr.Is(err, swaperr.KindRevert) {
		t.Error("partial settlement should wrap the destination revert")
	}

	recs := h.reg.Snapshot()
	if len(recs) != 1 {
		t.Fatalf("registry has %d orders, want 1", len(recs))
	}
	rec := recs[0]
	if rec.Status != swap.StatusFailed || !rec.PartialSettlement {
		t.Errorf("status = %s partial=%v, want failed with partial settlement", rec.Status, rec.PartialSettlement)
	}
	if rec.SrcEscrow == "" || rec.SrcTxHash == "" {
		t.Error("source-side references were not preserved")
	}
	if ref := swaperr.SourceRefOf(err); ref != rec.SrcEscrow {
		t.Errorf("SourceRefOf = %s, want %s", ref, rec.SrcEscrow)
	}
	if rec.ErrorKind != swaperr.KindPartialSettlement {
		t.Errorf("ErrorKind = %s", rec.ErrorKind)
	}
}

func TestProcessSwapRequestFailureAfterPull(t *testing.T) {
	h := newHarness(t, true, true)
	h.src.FailOn("CreateEscrow", swaperr.RPC("sepolia.createEscrow", errors.New("connection reset")))

	_, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("5"))
	if swaperr.KindOf(err) != swaperr.KindPartialSettlement {
		t.Fatalf("error = %v, want PartialSettlementError", err)
	}
	rec := h.reg.Snapshot()[0]
	if ref := swaperr.SourceRefOf(err); ref == "" || ref != rec.PullTxHash {
		t.Errorf("SourceRefOf = %q, want pull tx %q", ref, rec.PullTxHash)
	}
}

func TestProcessSwapRequestDegraded(t *testing.T) {
	h := newHarness(t, true, false)

	req := usdcRequest("2.5")
	req.DestinationAddress = tronReceiver
	res, err := h.orch.ProcessSwapRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessSwapRequest: %v", err)
	}
	if res.Mode != swap.ModeDegraded {
		t.Errorf("Mode = %s, want degraded", res.Mode)
	}
	if res.SrcEscrow != "" || res.DstEscrow != "" {
		t.Errorf("degraded order should have no escrows, got %s/%s", res.SrcEscrow, res.DstEscrow)
	}

	rec := h.status(t, res.OrderHash)
	if rec.Mode != swap.ModeDegraded || rec.Status != swap.StatusEscrowsCreated {
		t.Errorf("record = %s/%s", rec.Mode, rec.Status)
	}
	if rec.SrcTxHash == "" || rec.SrcTxHash != rec.PullTxHash || rec.DstTxHash == "" {
		t.Errorf("tx refs = pull %s src %s dst %s", rec.PullTxHash, rec.SrcTxHash, rec.DstTxHash)
	}
	if got := h.dst.TokenBalance(tronUSDC, tronReceiver); got.Int64() != 2_500_000 {
		t.Errorf("receiver balance = %s, want 2500000", got)
	}
	if h.src.CallCount("CreateEscrow") != 0 {
		t.Error("degraded order must not create escrows")
	}
}

func TestProcessSwapRequestDecimals(t *testing.T) {
	h := newHarness(t, true, true)
	h.dst.SetTokenBalance(tronTrueERC, h.dst.ResolverAddress(), new(big.Int).Exp(big.NewInt(10), big.NewInt(21), nil))

	req := usdcRequest("1.5")
	req.ToToken = "trueerc20"
	res, err := h.orch.ProcessSwapRequest(context.Background(), req)
	if err != nil {
		t.Fatalf("ProcessSwapRequest: %v", err)
	}

	rec := h.status(t, res.OrderHash)
	if rec.Order.MakingAmount.String() != "1500000" {
		t.Errorf("MakingAmount = %s, want 1500000", rec.Order.MakingAmount)
	}
	if rec.Order.TakingAmount.String() != "1500000000000000000" {
		t.Errorf("TakingAmount = %s, want 1500000000000000000", rec.Order.TakingAmount)
	}
	if rec.Order.TakerAsset != tronTrueERC {
		t.Errorf("TakerAsset = %s", rec.Order.TakerAsset)
	}
	if rec.HashScheme != order.SchemeABI {
		t.Errorf("HashScheme = %s, want abi", rec.HashScheme)
	}
	if h, _, _ := order.ComputeHash(&rec.Order); h != res.OrderHash {
		t.Error("stored order does not hash to the order hash")
	}
}

func TestProcessSwapRequestRejects(t *testing.T) {
	tests := []struct {
		name string
		mod  func(*swap.Request)
		kind swaperr.Kind
	}{
		{"unknown source token", func(r *swap.Request) { r.FromToken = "DOGE" }, swaperr.KindUnknownAsset},
		{"unknown destination token", func(r *swap.Request) { r.ToToken = "WETH" }, swaperr.KindUnknownAsset},
		{"same network", func(r *swap.Request) { r.ToNetwork = "sepolia" }, swaperr.KindInvalidRequest},
		{"unsupported network", func(r *swap.Request) { r.ToNetwork = "base" }, swaperr.KindInvalidRequest},
		{"malformed amount", func(r *swap.Request) { r.Amount = "abc" }, swaperr.KindInvalidRequest},
		{"zero amount", func(r *swap.Request) { r.Amount = "0" }, swaperr.KindInvalidRequest},
		{"negative amount", func(r *swap.Request) { r.Amount = "-5" }, swaperr.KindInvalidRequest},
		{"too precise", func(r *swap.Request) { r.Amount = "1.0000001" }, swaperr.KindInvalidRequest},
		{"exponent amount", func(r *swap.Request) { r.Amount = "1e80" }, swaperr.KindInvalidRequest},
		{"huge exponent", func(r *swap.Request) { r.Amount = "1e400000000" }, swaperr.KindInvalidRequest},
		{"amount over uint256", func(r *swap.Request) { r.Amount = "1" + strings.Repeat("0", 80) }, swaperr.KindInvalidRequest},
		{"empty user", func(r *swap.Request) { r.UserAddress = "" }, swaperr.KindInvalidRequest},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			h := newHarness(t, true, true)
			req := usdcRequest("100")
			tt.mod(&req)

			res, err := h.orch.ProcessSwapRequest(context.Background(), req)
			if res != nil {
				t.Error("rejected request should not return a result")
			}
			if swaperr.KindOf(err) != tt.kind {
				t.Errorf("error = %v, want %s", err, tt.kind)
			}
			if h.reg.Len() != 0 {
				t.Errorf("registry has %d orders, want 0", h.reg.Len())
			}
		})
	}
}

func TestHashLockInvariant(t *testing.T) {
	h := newHarness(t, true, false)
	seen := make(map[order.Hash]bool)

	for i := 0; i < 5; i++ {
		res, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("1"))
		if err != nil {
			t.Fatalf("ProcessSwapRequest: %v", err)
		}
		if order.HashLockOf(res.Secret) != res.HashLock {
			t.Errorf("order %d: hashLock != keccak256(secret)", i)
		}
		rec := h.status(t, res.OrderHash)
		if !rec.HashLock.Matches(rec.Secret) {
			t.Errorf("order %d: stored secret does not match stored hash lock", i)
		}
		if seen[res.OrderHash] {
			t.Errorf("order %d: duplicate order hash", i)
		}
		seen[res.OrderHash] = true
	}
}

func TestEventsEmitted(t *testing.T) {
	h := newHarness(t, true, true)

	var mu sync.Mutex
	got := make(map[string]int)
	done := make(chan struct{}, 8)
	h.orch.Events().OnEvent(func(ev swap.Event) {
		mu.Lock()
		got[ev.Type]++
		mu.Unlock()
		if ev.ID == "" {
			t.Error("event without ID")
		}
		if _, ok := ev.Data["secret"]; ok {
			t.Error("event data must not carry the secret")
		}
		done <- struct{}{}
	})

	if _, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("1")); err != nil {
		t.Fatalf("ProcessSwapRequest: %v", err)
	}

	for i := 0; i < 2; i++ {
		select {
		case <-done:
		case <-time.After(2 * time.Second):
			t.Fatalf("timed out waiting for events, got %v", got)
		}
	}
	mu.Lock()
	defer mu.Unlock()
	if got[swap.EventOrderCreated] != 1 || got[swap.EventOrderEscrowsCreated] != 1 {
		t.Errorf("events = %v", got)
	}
}

func TestCancelOrder(t *testing.T) {
	h := newHarness(t, true, true)
	h.dst.FailOn("CreateEscrow", swaperr.Revert("tron.createEscrow", "paused"))

	if _, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("100")); err == nil {
		t.Fatal("expected partial settlement")
	}
	hash := h.reg.Snapshot()[0].OrderHash

	rec, err := h.orch.CancelOrder(context.Background(), hash)
	if err != nil {
		t.Fatalf("CancelOrder: %v", err)
	}
	if len(rec.CancelTxHashes) != 1 || rec.CancelTxHashes[0][:8] != "sepolia:" {
		t.Errorf("CancelTxHashes = %v", rec.CancelTxHashes)
	}
	if e, _ := h.src.Escrow(hash); !e.Cancelled {
		t.Error("source escrow was not cancelled")
	}
	if got := h.src.TokenBalance(sepoliaUSDC, user); got.Int64() != 1_000_000_000 {
		t.Errorf("user balance after cancel = %s, want 1000000000", got)
	}

	// A second cancel has nothing left to do.
	if _, err := h.orch.CancelOrder(context.Background(), hash); err != nil {
		t.Errorf("second CancelOrder: %v", err)
	}
	if n := h.src.CallCount("Cancel"); n != 1 {
		t.Errorf("Cancel calls = %d, want 1", n)
	}

	if _, err := h.orch.CancelOrder(context.Background(), order.Hash{9}); swaperr.KindOf(err) != swaperr.KindNotFound {
		t.Errorf("CancelOrder(unknown) = %v, want NotFoundError", err)
	}
}

func TestCancelOrderRejectsActive(t *testing.T) {
	h := newHarness(t, true, true)
	res, err := h.orch.ProcessSwapRequest(context.Background(), usdcRequest("1"))
	if err != nil {
		t.Fatalf("ProcessSwapRequest: %v", err)
	}
	if _, err := h.orch.CancelOrder(context.Background(), res.OrderHash); swaperr.KindOf(err) != swaperr.KindInvalidRequest {
		t.Errorf("CancelOrder(escrows_created) = %v, want InvalidRequestError", err)
	}
}
