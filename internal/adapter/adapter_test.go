package adapter_test

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/klingon-exchange/fusion-resolver/internal/adapter"
	"github.com/klingon-exchange/fusion-resolver/internal/adapter/mock"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
)

func TestSet(t *testing.T) {
	src := mock.New("sepolia", true)
	dst := mock.New("tron", false)

	set, err := adapter.NewSet(dst, src)
	if err != nil {
		t.Fatalf("NewSet: %v", err)
	}

	if got := set.Networks(); len(got) != 2 || got[0] != "sepolia" || got[1] != "tron" {
		t.Errorf("Networks = %v, want [sepolia tron]", got)
	}
	if got := set.EscrowNetworks(); len(got) != 1 || got[0] != "sepolia" {
		t.Errorf("EscrowNetworks = %v, want [sepolia]", got)
	}
	if a, ok := set.Get("tron"); !ok || a.Network() != "tron" {
		t.Errorf("Get(tron) = %v, %v", a, ok)
	}
	if _, ok := set.Get("bitcoin"); ok {
		t.Error("Get(bitcoin) should fail")
	}

	set.Close()
	if !src.Closed() || !dst.Closed() {
		t.Error("Close should close every adapter")
	}
}

func TestSetDuplicate(t *testing.T) {
	_, err := adapter.NewSet(mock.New("sepolia", true), mock.New("sepolia", false))
	if !errors.Is(err, adapter.ErrDuplicateNetwork) {
		t.Errorf("NewSet duplicate = %v, want ErrDuplicateNetwork", err)
	}
}

func TestMockTransferFrom(t *testing.T) {
	ctx := context.Background()
	m := mock.New("sepolia", true)
	token, user := "0xToken", "0xUser"
	resolver := m.ResolverAddress()

	m.SetTokenBalance(token, user, big.NewInt(500))

	_, err := m.TransferFrom(ctx, token, user, resolver, big.NewInt(100))
	if !swaperr.Is(err, swaperr.KindRevert) {
		t.Fatalf("TransferFrom without allowance = %v, want RevertError", err)
	}

	m.SetAllowance(token, user, resolver, big.NewInt(150))
	if _, err := m.TransferFrom(ctx, token, user, resolver, big.NewInt(100)); err != nil {
		t.Fatalf("TransferFrom: %v", err)
	}

	if got := m.TokenBalance(token, resolver); got.Int64() != 100 {
		t.Errorf("resolver balance = %s, want 100", got)
	}
	allowance, _ := m.GetAllowance(ctx, token, user, resolver)
	if allowance.Int64() != 50 {
		t.Errorf("allowance = %s, want 50", allowance)
	}
}

func TestMockEscrowLifecycle(t *testing.T) {
	ctx := context.Background()
	m := mock.New("sepolia", true)
	token := "0xToken"
	m.SetTokenBalance(token, m.ResolverAddress(), big.NewInt(1000))

	secret, err := order.NewSecret()
	if err != nil {
		t.Fatalf("NewSecret: %v", err)
	}
	hash := order.Hash{7}

	ref, err := m.CreateEscrow(ctx, adapter.EscrowParams{
		OrderHash:   hash,
		Token:       token,
		Amount:      big.NewInt(400),
		HashLock:    order.HashLockOf(secret),
		Depositor:   m.ResolverAddress(),
		Beneficiary: "0xUser",
	})
	if err != nil {
		t.Fatalf("CreateEscrow: %v", err)
	}

	addr, found, err := m.GetEscrow(ctx, hash)
	if err != nil || !found || addr != ref.Address {
		t.Fatalf("GetEscrow = %s, %v, %v; want %s", addr, found, err, ref.Address)
	}

	if _, err := m.Withdraw(ctx, ref.Address, order.Secret{1}); !swaperr.Is(err, swaperr.KindRevert) {
		t.Errorf("Withdraw with wrong secret = %v, want RevertError", err)
	}
	if _, err := m.Withdraw(ctx, ref.Address, secret); err != nil {
		t.Fatalf("Withdraw: %v", err)
	}
	if got := m.TokenBalance(token, "0xUser"); got.Int64() != 400 {
		t.Errorf("beneficiary balance = %s, want 400", got)
	}
	if _, err := m.Cancel(ctx, ref.Address); !swaperr.Is(err, swaperr.KindRevert) {
		t.Errorf("Cancel after withdraw = %v, want RevertError", err)
	}
}

func TestMockDegraded(t *testing.T) {
	m := mock.New("tron", false)
	ctx := context.Background()

	if _, err := m.CreateEscrow(ctx, adapter.EscrowParams{}); !errors.Is(err, adapter.ErrEscrowUnsupported) {
		t.Errorf("CreateEscrow = %v, want ErrEscrowUnsupported", err)
	}
	if _, _, err := m.GetEscrow(ctx, order.Hash{}); !errors.Is(err, adapter.ErrEscrowUnsupported) {
		t.Errorf("GetEscrow = %v, want ErrEscrowUnsupported", err)
	}
	if _, err := m.Withdraw(ctx, "0x1", order.Secret{}); !errors.Is(err, adapter.ErrEscrowUnsupported) {
		t.Errorf("Withdraw = %v, want ErrEscrowUnsupported", err)
	}
}

func TestMockFailureInjection(t *testing.T) {
	m := mock.New("sepolia", true)
	ctx := context.Background()

	m.FailOn("GetBalance", swaperr.RPC("sepolia.getBalance", mock.ErrInjected))
	if _, err := m.GetBalance(ctx, "0xUser"); !swaperr.Is(err, swaperr.KindRPC) {
		t.Errorf("GetBalance = %v, want RpcError", err)
	}

	m.ClearFailure("GetBalance")
	if _, err := m.GetBalance(ctx, "0xUser"); err != nil {
		t.Errorf("GetBalance after clear = %v", err)
	}
	if n := m.CallCount("GetBalance"); n != 2 {
		t.Errorf("CallCount = %d, want 2", n)
	}
}
