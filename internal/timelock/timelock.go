// Package timelock packs an escrow's timelock schedule into the single 256-bit
// word the escrow contracts store.
//
// Layout (bit offsets):
//
//	  0..31   deployedAt (unix seconds)
//	 32..63   private withdrawal offset
//	 64..95   public withdrawal offset
//	 96..127  private cancellation offset
//	128..159  public cancellation offset
//
// Offsets are seconds relative to deployedAt. The finality lock is not part of
// the packed word; the resolver enforces it locally as its reveal delay.
package timelock

import (
	"errors"
	"fmt"
	"math"
	"math/big"

	"github.com/holiman/uint256"
)

var (
	ErrFieldOverflow = errors.New("timelock field exceeds 32 bits")
	ErrNotMonotonic  = errors.New("timelock phases must be non-decreasing")
	ErrNegative      = errors.New("timelock phase must not be negative")
	ErrHighBits      = errors.New("packed timelocks have bits set above the schedule")
)

const fieldBits = 32

// Offsets are the four packed phase offsets, in seconds after deployment.
type Offsets struct {
	PrivateWithdrawal   uint64
	PublicWithdrawal    uint64
	PrivateCancellation uint64
	PublicCancellation  uint64
}

// Packed is a packed timelock word.
type Packed struct {
	v uint256.Int
}

// Pack lays out deployedAt and the offsets at 32-bit aligned shifts.
// It fails with ErrFieldOverflow if any field does not fit in 32 bits.
func Pack(deployedAt uint64, o Offsets) (Packed, error) {
	fields := []struct {
		name  string
		value uint64
	}{
		{"deployedAt", deployedAt},
		{"privateWithdrawal", o.PrivateWithdrawal},
		{"publicWithdrawal", o.PublicWithdrawal},
		{"privateCancellation", o.PrivateCancellation},
		{"publicCancellation", o.PublicCancellation},
	}

	var p Packed
	for i, f := range fields {
		if f.value > math.MaxUint32 {
			return Packed{}, fmt.Errorf("%w: %s=%d", ErrFieldOverflow, f.name, f.value)
		}
		word := uint256.NewInt(f.value)
		word.Lsh(word, uint(i*fieldBits))
		p.v.Or(&p.v, word)
	}
	return p, nil
}

// Unpack is the exact inverse of Pack.
func Unpack(p Packed) (deployedAt uint64, o Offsets) {
	field := func(i int) uint64 {
		var w uint256.Int
		w.Rsh(&p.v, uint(i*fieldBits))
		return w.Uint64() & math.MaxUint32
	}
	return field(0), Offsets{
		PrivateWithdrawal:   field(1),
		PublicWithdrawal:    field(2),
		PrivateCancellation: field(3),
		PublicCancellation:  field(4),
	}
}

// FromBig converts an on-chain value back into a Packed word.
func FromBig(b *big.Int) (Packed, error) {
	if b == nil || b.Sign() < 0 {
		return Packed{}, fmt.Errorf("%w: negative or nil value", ErrFieldOverflow)
	}
	v, overflow := uint256.FromBig(b)
	if overflow {
		return Packed{}, fmt.Errorf("%w: value wider than 256 bits", ErrFieldOverflow)
	}
	if v.BitLen() > 5*fieldBits {
		return Packed{}, ErrHighBits
	}
	return Packed{v: *v}, nil
}

// FromDecimal parses the decimal rendering produced by String.
func FromDecimal(s string) (Packed, error) {
	v, err := uint256.FromDecimal(s)
	if err != nil {
		return Packed{}, fmt.Errorf("invalid packed timelocks %q: %w", s, err)
	}
	return FromBig(v.ToBig())
}

// Big returns the packed word as a big.Int for ABI encoding.
func (p Packed) Big() *big.Int {
	return p.v.ToBig()
}

// String returns the decimal rendering of the packed word.
func (p Packed) String() string {
	return p.v.Dec()
}

// Hex returns the 0x-prefixed hex rendering of the packed word.
func (p Packed) Hex() string {
	return p.v.Hex()
}

// IsZero reports whether nothing has been packed.
func (p Packed) IsZero() bool {
	return p.v.IsZero()
}
