package storage

import (
	"errors"
	"math/big"
	"os"
	"path/filepath"
	"testing"
	"time"

	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swap"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/timelock"
)

func newTestStorage(t *testing.T) *Storage {
	t.Helper()
	tmpDir, err := os.MkdirTemp("", "resolver-storage-test-*")
	if err != nil {
		t.Fatalf("failed to create temp dir: %v", err)
	}
	t.Cleanup(func() { os.RemoveAll(tmpDir) })

	store, err := New(&Config{DataDir: tmpDir})
	if err != nil {
		t.Fatalf("New() error = %v", err)
	}
	t.Cleanup(func() { store.Close() })
	return store
}

func testRecord(t *testing.T, salt byte, created time.Time) *swap.OrderRecord {
	t.Helper()
	secret, err := order.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	o := order.Order{
		Maker:        "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2",
		MakerAsset:   "0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		TakerAsset:   "TSdZwNqpHofzP6BsBKGQUWdBeJphLmF6id",
		MakingAmount: big.NewInt(1_000_000),
		TakingAmount: big.NewInt(1_000_000),
		Receiver:     "TDjWsSyKvT6X8gdfCvVXmJeLQfnQVjz1XS",
		MakerTraits:  new(big.Int),
	}
	o.Salt[31] = salt
	hash, scheme, err := order.ComputeHash(&o)
	if err != nil {
		t.Fatalf("ComputeHash: %v", err)
	}
	src, err := timelock.Pack(uint64(created.Unix()), timelock.Offsets{PrivateWithdrawal: 60, PublicWithdrawal: 86400})
	if err != nil {
		t.Fatalf("Pack: %v", err)
	}
	return &swap.OrderRecord{
		OrderHash:    hash,
		HashScheme:   scheme,
		Order:        o,
		HashLock:     order.HashLockOf(secret),
		Secret:       secret,
		SrcTimeLocks: src,
		FromNetwork:  "sepolia",
		ToNetwork:    "tron",
		FromToken:    "USDC",
		ToToken:      "USDC",
		Amount:       "1",
		Mode:         swap.ModeDegraded,
		Status:       swap.StatusPending,
		CreatedAt:    created,
		UpdatedAt:    created,
	}
}

func TestNew(t *testing.T) {
	store := newTestStorage(t)

	if filepath.Base(store.Path()) != DatabaseFileName {
		t.Errorf("Path() = %s, want %s", store.Path(), DatabaseFileName)
	}
	info, err := os.Stat(store.Path())
	if err != nil {
		t.Fatalf("database file was not created: %v", err)
	}
	if info.Mode().Perm() != 0600 {
		t.Errorf("database mode = %o, want 600", info.Mode().Perm())
	}

	for _, table := range []string{"orders", "order_events"} {
		var name string
		err := store.DB().QueryRow("SELECT name FROM sqlite_master WHERE type='table' AND name=?", table).Scan(&name)
		if err != nil {
			t.Errorf("%s table not found: %v", table, err)
		}
	}
}

func TestExpandPath(t *testing.T) {
	home, _ := os.UserHomeDir()
	if got := expandPath("~/.test"); got != filepath.Join(home, ".test") {
		t.Errorf("expandPath(~/.test) = %s", got)
	}
	if got := expandPath("/tmp/x"); got != "/tmp/x" {
		t.Errorf("expandPath(/tmp/x) = %s", got)
	}
}

func TestOrderRoundTrip(t *testing.T) {
	store := newTestStorage(t)
	now := time.Unix(1_700_000_000, 0)
	rec := testRecord(t, 1, now)

	if err := store.SaveOrder(rec); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	got, err := store.GetOrder(rec.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.OrderHash != rec.OrderHash {
		t.Errorf("OrderHash = %s, want %s", got.OrderHash.Hex(), rec.OrderHash.Hex())
	}
	if got.Secret != rec.Secret {
		t.Error("secret was not persisted for a pending order")
	}
	if !got.HashLock.Matches(got.Secret) {
		t.Error("restored secret does not open the hash lock")
	}
	if got.Order.Salt != rec.Order.Salt {
		t.Error("salt mismatch")
	}
	if got.Order.MakingAmount.Cmp(rec.Order.MakingAmount) != 0 {
		t.Errorf("MakingAmount = %s, want %s", got.Order.MakingAmount, rec.Order.MakingAmount)
	}
	if got.SrcTimeLocks.String() != rec.SrcTimeLocks.String() {
		t.Errorf("SrcTimeLocks = %s, want %s", got.SrcTimeLocks, rec.SrcTimeLocks)
	}
	if !got.DstTimeLocks.IsZero() {
		t.Errorf("DstTimeLocks = %s, want zero", got.DstTimeLocks)
	}
	if !got.CreatedAt.Equal(now) {
		t.Errorf("CreatedAt = %v, want %v", got.CreatedAt, now)
	}
	if !got.CompletedAt.IsZero() {
		t.Errorf("CompletedAt = %v, want zero", got.CompletedAt)
	}

	// Recompute the hash from the restored order.
	h, _, err := order.ComputeHash(&got.Order)
	if err != nil || h != rec.OrderHash {
		t.Errorf("recomputed hash = %s, %v", h.Hex(), err)
	}
}

func TestOrderUpsert(t *testing.T) {
	store := newTestStorage(t)
	rec := testRecord(t, 2, time.Now())
	if err := store.SaveOrder(rec); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	rec.Status = swap.StatusFailed
	rec.PullTxHash = "0xpull"
	rec.CancelTxHashes = []string{"0xc1", "0xc2"}
	rec.PartialSettlement = true
	rec.ErrorKind = swaperr.KindPartialSettlement
	rec.Error = "destination transfer reverted"
	rec.ClearSecret()
	if err := store.SaveOrder(rec); err != nil {
		t.Fatalf("SaveOrder update: %v", err)
	}

	got, err := store.GetOrder(rec.OrderHash)
	if err != nil {
		t.Fatalf("GetOrder: %v", err)
	}
	if got.Status != swap.StatusFailed {
		t.Errorf("Status = %s, want failed", got.Status)
	}
	if !got.SecretCleared || !got.Secret.IsZero() {
		t.Error("cleared secret should not be stored")
	}
	if len(got.CancelTxHashes) != 2 || got.CancelTxHashes[1] != "0xc2" {
		t.Errorf("CancelTxHashes = %v", got.CancelTxHashes)
	}
	if !got.PartialSettlement || got.ErrorKind != swaperr.KindPartialSettlement {
		t.Errorf("failure = %v/%s", got.PartialSettlement, got.ErrorKind)
	}
	if got.PullTxHash != "0xpull" {
		t.Errorf("PullTxHash = %s", got.PullTxHash)
	}

	n, err := store.CountOrders(nil)
	if err != nil || n != 1 {
		t.Errorf("CountOrders = %d, %v, want 1", n, err)
	}
}

func TestGetOrderNotFound(t *testing.T) {
	store := newTestStorage(t)
	if _, err := store.GetOrder(order.Hash{1}); !errors.Is(err, ErrOrderNotFound) {
		t.Errorf("GetOrder = %v, want ErrOrderNotFound", err)
	}
}

func TestListOrders(t *testing.T) {
	store := newTestStorage(t)
	base := time.Unix(1_700_000_000, 0)

	statuses := []swap.Status{
		swap.StatusPending,
		swap.StatusEscrowsCreated,
		swap.StatusCompleted,
		swap.StatusFailed,
		swap.StatusEscrowsCreated,
	}
	for i, st := range statuses {
		rec := testRecord(t, byte(10+i), base.Add(time.Duration(i)*time.Minute))
		rec.Status = st
		if err := store.SaveOrder(rec); err != nil {
			t.Fatalf("SaveOrder: %v", err)
		}
	}

	escrowed := swap.StatusEscrowsCreated
	tests := []struct {
		name   string
		filter OrderFilter
		want   int
	}{
		{"all", OrderFilter{}, 5},
		{"by status", OrderFilter{Status: &escrowed}, 2},
		{"by network", OrderFilter{FromNetwork: "sepolia", ToNetwork: "tron"}, 5},
		{"other network", OrderFilter{FromNetwork: "tron"}, 0},
		{"since", OrderFilter{Since: base.Add(3 * time.Minute)}, 2},
		{"limit", OrderFilter{Limit: 2}, 2},
		{"offset", OrderFilter{Limit: 10, Offset: 4}, 1},
	}
	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := store.ListOrders(tt.filter)
			if err != nil {
				t.Fatalf("ListOrders: %v", err)
			}
			if len(got) != tt.want {
				t.Errorf("len = %d, want %d", len(got), tt.want)
			}
		})
	}

	all, _ := store.ListOrders(OrderFilter{})
	for i := 1; i < len(all); i++ {
		if all[i].CreatedAt.Before(all[i-1].CreatedAt) {
			t.Error("orders should be listed oldest first")
		}
	}

	active, err := store.ListActiveOrders()
	if err != nil {
		t.Fatalf("ListActiveOrders: %v", err)
	}
	if len(active) != 3 {
		t.Errorf("ListActiveOrders = %d, want 3", len(active))
	}
	for _, rec := range active {
		if rec.Status.IsTerminal() {
			t.Errorf("active order %s has terminal status %s", rec.OrderHash.Hex(), rec.Status)
		}
	}
}

func TestOrderEvents(t *testing.T) {
	store := newTestStorage(t)
	rec := testRecord(t, 3, time.Now())
	if err := store.SaveOrder(rec); err != nil {
		t.Fatalf("SaveOrder: %v", err)
	}

	base := time.Now()
	for i, typ := range []string{"order.created", "order.escrows_created", "order.completed"} {
		ev := &OrderEvent{OrderHash: rec.OrderHash.Hex(), Type: typ, CreatedAt: base.Add(time.Duration(i) * time.Millisecond)}
		if err := store.RecordEvent(ev); err != nil {
			t.Fatalf("RecordEvent: %v", err)
		}
		if ev.ID == "" {
			t.Error("RecordEvent should assign an ID")
		}
	}

	events, err := store.ListEvents(rec.OrderHash)
	if err != nil {
		t.Fatalf("ListEvents: %v", err)
	}
	if len(events) != 3 {
		t.Fatalf("len(events) = %d, want 3", len(events))
	}
	if events[0].Type != "order.created" || events[2].Type != "order.completed" {
		t.Errorf("event order = %s..%s", events[0].Type, events[2].Type)
	}
}
