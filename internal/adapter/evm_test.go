package adapter

import (
	"context"
	"errors"
	"math/big"
	"testing"

	"github.com/ethereum/go-ethereum/common"
	"github.com/klingon-exchange/fusion-resolver/internal/contracts/escrow"
	"github.com/klingon-exchange/fusion-resolver/internal/order"
	"github.com/klingon-exchange/fusion-resolver/internal/swaperr"
	"github.com/klingon-exchange/fusion-resolver/internal/wallet"
)

type chainIDBackend struct {
	escrow.Backend
}

func (chainIDBackend) ChainID(context.Context) (*big.Int, error) {
	return big.NewInt(11155111), nil
}

func newTestEVMAdapter(t *testing.T, factory common.Address, signer *wallet.Signer) *EVMAdapter {
	t.Helper()
	client, err := escrow.NewClient(context.Background(), chainIDBackend{}, factory)
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}
	a, err := NewEVMAdapter(EVMConfig{Network: "sepolia"}, client, signer)
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	return a
}

func TestEVMAdapterCapabilities(t *testing.T) {
	signer, err := wallet.SignerFromHex("0000000000000000000000000000000000000000000000000000000000000001")
	if err != nil {
		t.Fatalf("SignerFromHex: %v", err)
	}

	degraded := newTestEVMAdapter(t, common.Address{}, signer)
	if degraded.SupportsEscrow() {
		t.Error("adapter without factory should not support escrows")
	}
	if degraded.ResolverAddress() != "0x7E5F4552091A69125d5DfCb7b8C2659029395Bdf" {
		t.Errorf("ResolverAddress = %s", degraded.ResolverAddress())
	}
	if _, _, err := degraded.GetEscrow(context.Background(), order.Hash{}); !errors.Is(err, ErrEscrowUnsupported) {
		t.Errorf("GetEscrow = %v, want ErrEscrowUnsupported", err)
	}
	if _, err := degraded.CreateEscrow(context.Background(), EscrowParams{}); !errors.Is(err, ErrEscrowUnsupported) {
		t.Errorf("CreateEscrow = %v, want ErrEscrowUnsupported", err)
	}

	full := newTestEVMAdapter(t, common.HexToAddress("0xcBcFEe91Bbd4A12533Fc72a3D286B6d86ab2B9D5"), signer)
	if !full.SupportsEscrow() {
		t.Error("adapter with factory should support escrows")
	}
	if full.gas != DefaultGasLimits() {
		t.Errorf("gas = %+v, want defaults", full.gas)
	}
}

func TestEVMAdapterReadOnly(t *testing.T) {
	a := newTestEVMAdapter(t, common.Address{}, nil)
	if a.ResolverAddress() != "" {
		t.Errorf("ResolverAddress = %q, want empty", a.ResolverAddress())
	}

	_, err := a.Transfer(context.Background(),
		"0x1c7D4B196Cb0C7B01d743Fbc6116a902379C7238",
		"0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2",
		big.NewInt(1))
	if !errors.Is(err, ErrReadOnly) || swaperr.KindOf(err) != swaperr.KindRPC {
		t.Errorf("Transfer = %v, want RpcError wrapping ErrReadOnly", err)
	}
}

func TestEVMAdapterAddressValidation(t *testing.T) {
	a := newTestEVMAdapter(t, common.Address{}, nil)

	tests := []struct {
		addr    string
		wantErr bool
	}{
		{"0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2", false},
		{"0xe841d59bb054b5cf81cf8bea1b74ece5a12550f2", false},
		{"0xE841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2", true},
		{"e841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2", true},
		{"TDjWsSyKvT6X8gdfCvVXmJeLQfnQVjz1XS", true},
		{"", true},
	}
	for _, tt := range tests {
		if err := a.ValidateAddress(tt.addr); (err != nil) != tt.wantErr {
			t.Errorf("ValidateAddress(%q) = %v, wantErr %v", tt.addr, err, tt.wantErr)
		}
	}

	_, err := a.GetTokenBalance(context.Background(), "not-an-address", "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2")
	if swaperr.KindOf(err) != swaperr.KindEncoding {
		t.Errorf("GetTokenBalance bad token = %v, want EncodingError", err)
	}
}

func TestEVMAdapterResolverOverride(t *testing.T) {
	client, err := escrow.NewClient(context.Background(), chainIDBackend{}, common.Address{})
	if err != nil {
		t.Fatalf("NewClient: %v", err)
	}

	a, err := NewEVMAdapter(EVMConfig{Network: "sepolia", ResolverAddress: "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2"}, client, nil)
	if err != nil {
		t.Fatalf("NewEVMAdapter: %v", err)
	}
	if a.ResolverAddress() != "0xe841d59Bb054b5cf81cF8BEA1b74EcE5A12550F2" {
		t.Errorf("ResolverAddress = %s", a.ResolverAddress())
	}

	if _, err := NewEVMAdapter(EVMConfig{Network: "sepolia", ResolverAddress: "nope"}, client, nil); err == nil {
		t.Error("invalid resolver override should fail")
	}
}

func TestEVMClassify(t *testing.T) {
	a := newTestEVMAdapter(t, common.Address{}, nil)

	if got := swaperr.KindOf(a.classify("op", errors.New("dial tcp: i/o timeout"))); got != swaperr.KindRPC {
		t.Errorf("network error kind = %s, want RpcError", got)
	}
	if got := swaperr.KindOf(a.classify("op", errors.New("execution reverted: paused"))); got != swaperr.KindRevert {
		t.Errorf("revert kind = %s, want RevertError", got)
	}
}

func TestParseFactory(t *testing.T) {
	if addr, err := parseFactory(""); err != nil || addr != (common.Address{}) {
		t.Errorf("parseFactory(\"\") = %s, %v", addr.Hex(), err)
	}
	if _, err := parseFactory("0x123"); err == nil {
		t.Error("parseFactory(0x123) should fail")
	}
	want := common.HexToAddress("0xcBcFEe91Bbd4A12533Fc72a3D286B6d86ab2B9D5")
	if addr, err := parseFactory(want.Hex()); err != nil || addr != want {
		t.Errorf("parseFactory = %s, %v", addr.Hex(), err)
	}
}
