package swaperr

import (
	"errors"
	"fmt"
	"strings"
	"testing"
)

func TestKindOf(t *testing.T) {
	base := errors.New("connection refused")

	tests := []struct {
		name string
		err  error
		want Kind
	}{
		{"nil", nil, ""},
		{"plain", base, KindInternal},
		{"rpc", RPC("sepolia.balance", base), KindRPC},
		{"wrapped rpc", fmt.Errorf("preflight: %w", RPC("sepolia.balance", base)), KindRPC},
		{"revert", Revert("sepolia.transfer", "execution reverted: ERC20: insufficient balance"), KindRevert},
		{"allowance", InsufficientAllowance("sepolia.allowance", "0", "100"), KindInsufficientAllowance},
		{"asset", UnknownAsset("resolve", errors.New("DOGE on sepolia")), KindUnknownAsset},
		{"encoding", Encoding("timelock.pack", errors.New("overflow")), KindEncoding},
		{"partial", PartialSettlement("dst", "0xabc", Revert("tron.transfer", "out of energy")), KindPartialSettlement},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			if got := KindOf(tt.err); got != tt.want {
				t.Errorf("KindOf = %q, want %q", got, tt.want)
			}
		})
	}
}

func TestIsWalksChain(t *testing.T) {
	inner := Revert("tron.transfer", "out of energy")
	err := PartialSettlement("createEscrows", "0xsrc", inner)

	if !Is(err, KindPartialSettlement) {
		t.Error("Is(partial) = false, want true")
	}
	if !Is(err, KindRevert) {
		t.Error("Is(revert) = false, want true for the wrapped cause")
	}
	if Is(err, KindRPC) {
		t.Error("Is(rpc) = true, want false")
	}
	if Is(errors.New("plain"), KindRPC) {
		t.Error("plain error should not match any kind")
	}
}

func TestSourceRefOf(t *testing.T) {
	err := fmt.Errorf("swap: %w", PartialSettlement("createEscrows", "0xsrc", errors.New("boom")))
	if got := SourceRefOf(err); got != "0xsrc" {
		t.Errorf("SourceRefOf = %q, want 0xsrc", got)
	}
	if got := SourceRefOf(RPC("x", errors.New("y"))); got != "" {
		t.Errorf("SourceRefOf(rpc) = %q, want empty", got)
	}
}

func TestErrorMessage(t *testing.T) {
	err := RPC("sepolia.getBalance", errors.New("dial tcp: timeout"))
	msg := err.Error()
	for _, want := range []string{"RpcError", "sepolia.getBalance", "dial tcp: timeout"} {
		if !strings.Contains(msg, want) {
			t.Errorf("Error() = %q, missing %q", msg, want)
		}
	}

	var e *Error
	if !errors.As(err, &e) {
		t.Fatal("errors.As failed")
	}
	if !errors.Is(err, e.Err) {
		t.Error("Unwrap should expose the cause")
	}
}

func TestRetryable(t *testing.T) {
	if !KindRPC.Retryable() {
		t.Error("RpcError should be retryable")
	}
	for _, k := range []Kind{KindRevert, KindInsufficientAllowance, KindUnknownAsset, KindEncoding, KindPartialSettlement} {
		if k.Retryable() {
			t.Errorf("%s should not be retryable", k)
		}
	}
}
