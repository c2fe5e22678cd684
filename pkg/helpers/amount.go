// Package helpers provides common utility functions used across the codebase.
package helpers

import (
	"errors"
	"fmt"
	"math/big"
	"strings"

	"github.com/shopspring/decimal"
)

var (
	ErrEmptyAmount     = errors.New("empty amount string")
	ErrNegativeAmount  = errors.New("amount must be positive")
	ErrAmountPrecision = errors.New("amount has more fractional digits than the asset supports")
	ErrAmountFormat    = errors.New("amount must be a plain decimal number")
	ErrAmountTooLarge  = errors.New("amount exceeds 256 bits")
)

// MaxAmountLength bounds the length of an amount string. A uint256 has at
// most 78 decimal digits; the rest leaves room for a fraction.
const MaxAmountLength = 128

// ParseUnits parses a decimal string into the asset's smallest unit.
// For example, ParseUnits("1.5", 6) returns 1500000.
// Fractional digits beyond the asset's precision are rejected rather than truncated.
// Exponent notation is rejected and the result must fit in a uint256.
func ParseUnits(s string, decimals uint8) (*big.Int, error) {
	s = strings.TrimSpace(s)
	if s == "" {
		return nil, ErrEmptyAmount
	}
	if len(s) > MaxAmountLength {
		return nil, fmt.Errorf("%w: %d characters", ErrAmountTooLarge, len(s))
	}
	if strings.ContainsAny(s, "eE") {
		return nil, fmt.Errorf("%w: %q", ErrAmountFormat, s)
	}

	d, err := decimal.NewFromString(s)
	if err != nil {
		return nil, fmt.Errorf("invalid amount %q: %w", s, err)
	}
	if d.Sign() <= 0 {
		return nil, ErrNegativeAmount
	}

	scaled := d.Shift(int32(decimals))
	if !scaled.Equal(scaled.Truncate(0)) {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrAmountPrecision, s, decimals)
	}

	n := scaled.BigInt()
	if n.BitLen() > 256 {
		return nil, fmt.Errorf("%w: %s with %d decimals", ErrAmountTooLarge, s, decimals)
	}
	return n, nil
}

// FormatUnits formats an amount in smallest units as a decimal string.
// For example, FormatUnits(1500000, 6) returns "1.5".
func FormatUnits(amount *big.Int, decimals uint8) string {
	if amount == nil {
		return "0"
	}
	return decimal.NewFromBigInt(amount, -int32(decimals)).String()
}

// PowTen returns 10^decimals as a big integer, i.e. one whole token.
func PowTen(decimals uint8) *big.Int {
	return new(big.Int).Exp(big.NewInt(10), big.NewInt(int64(decimals)), nil)
}

// WholeUnits returns n whole tokens in smallest units.
func WholeUnits(n int64, decimals uint8) *big.Int {
	return new(big.Int).Mul(big.NewInt(n), PowTen(decimals))
}
