package helpers

import (
	"errors"
	"math/big"
	"strings"
	"testing"
)

func TestParseUnits(t *testing.T) {
	tests := []struct {
		name     string
		in       string
		decimals uint8
		want     string
		wantErr  error
	}{
		{"whole usdc", "100", 6, "100000000", nil},
		{"fraction usdc", "1.5", 6, "1500000", nil},
		{"max precision", "0.000001", 6, "1", nil},
		{"eighteen decimals", "2", 18, "2000000000000000000", nil},
		{"whitespace", " 3 ", 0, "3", nil},
		{"too precise", "0.0000001", 6, "", ErrAmountPrecision},
		{"zero", "0", 6, "", ErrNegativeAmount},
		{"negative", "-1", 6, "", ErrNegativeAmount},
		{"empty", "", 6, "", ErrEmptyAmount},
		{"exponent", "1e3", 6, "", ErrAmountFormat},
		{"huge exponent", "1e400000000", 6, "", ErrAmountFormat},
		{"upper exponent", "1E80", 6, "", ErrAmountFormat},
		{"over 256 bits", "1" + strings.Repeat("0", 80), 6, "", ErrAmountTooLarge},
		{"too long", strings.Repeat("1", MaxAmountLength+1), 0, "", ErrAmountTooLarge},
		{"max uint256", "115792089237316195423570985008687907853269984665640564039457584007913129639935", 0,
			"115792089237316195423570985008687907853269984665640564039457584007913129639935", nil},
		{"uint256 overflow", "115792089237316195423570985008687907853269984665640564039457584007913129639936", 0, "", ErrAmountTooLarge},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			got, err := ParseUnits(tt.in, tt.decimals)
			if tt.wantErr != nil {
				if !errors.Is(err, tt.wantErr) {
					t.Fatalf("ParseUnits(%q) error = %v, want %v", tt.in, err, tt.wantErr)
				}
				return
			}
			if err != nil {
				t.Fatalf("ParseUnits(%q) unexpected error: %v", tt.in, err)
			}
			if got.String() != tt.want {
				t.Errorf("ParseUnits(%q, %d) = %s, want %s", tt.in, tt.decimals, got, tt.want)
			}
		})
	}
}

func TestParseUnitsMalformed(t *testing.T) {
	for _, in := range []string{"abc", "1.2.3", "1e", "0x10"} {
		if _, err := ParseUnits(in, 6); err == nil {
			t.Errorf("ParseUnits(%q) should fail", in)
		}
	}
}

func TestFormatUnits(t *testing.T) {
	tests := []struct {
		amount   *big.Int
		decimals uint8
		want     string
	}{
		{big.NewInt(1500000), 6, "1.5"},
		{big.NewInt(100000000), 6, "100"},
		{big.NewInt(1), 6, "0.000001"},
		{nil, 6, "0"},
	}

	for _, tt := range tests {
		if got := FormatUnits(tt.amount, tt.decimals); got != tt.want {
			t.Errorf("FormatUnits(%v, %d) = %s, want %s", tt.amount, tt.decimals, got, tt.want)
		}
	}
}

func TestWholeUnits(t *testing.T) {
	if got := WholeUnits(1000, 6).String(); got != "1000000000" {
		t.Errorf("WholeUnits(1000, 6) = %s, want 1000000000", got)
	}
}

func TestHexToBytes32(t *testing.T) {
	valid := "0x" + "ab" + "00000000000000000000000000000000000000000000000000000000000000"
	got, err := HexToBytes32(valid)
	if err != nil {
		t.Fatalf("HexToBytes32 error: %v", err)
	}
	if got[0] != 0xab || got[31] != 0 {
		t.Errorf("HexToBytes32 = %x", got)
	}
	if _, err := HexToBytes32(valid[2:]); err != nil {
		t.Errorf("unprefixed value: %v", err)
	}

	if _, err := HexToBytes32("0x1234"); err == nil {
		t.Error("short value should fail")
	}
	if _, err := HexToBytes32("0xzz"); err == nil {
		t.Error("non-hex value should fail")
	}
}
