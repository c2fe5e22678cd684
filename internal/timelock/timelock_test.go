package timelock

import (
	"errors"
	"math"
	"math/big"
	"testing"
	"time"
)

func TestPackUnpackRoundTrip(t *testing.T) {
	tests := []struct {
		name       string
		deployedAt uint64
		offsets    Offsets
	}{
		{"zero", 0, Offsets{}},
		{"defaults", 1735689600, DefaultSrcSchedule().Offsets()},
		{"legacy sepolia", 1735689600, Offsets{0, 60, 86400, 172800}},
		{"max fields", math.MaxUint32, Offsets{math.MaxUint32, math.MaxUint32, math.MaxUint32, math.MaxUint32}},
		{"single bit each", 1, Offsets{1, 1, 1, 1}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			p, err := Pack(tt.deployedAt, tt.offsets)
			if err != nil {
				t.Fatalf("Pack error: %v", err)
			}
			gotAt, gotOffsets := Unpack(p)
			if gotAt != tt.deployedAt {
				t.Errorf("deployedAt = %d, want %d", gotAt, tt.deployedAt)
			}
			if gotOffsets != tt.offsets {
				t.Errorf("offsets = %+v, want %+v", gotOffsets, tt.offsets)
			}
		})
	}
}

func TestPackLayout(t *testing.T) {
	p, err := Pack(1000, Offsets{0, 60, 86400, 172800})
	if err != nil {
		t.Fatalf("Pack error: %v", err)
	}

	want := big.NewInt(1000)
	for i, v := range []int64{0, 60, 86400, 172800} {
		term := new(big.Int).Lsh(big.NewInt(v), uint(32*(i+1)))
		want.Add(want, term)
	}

	if p.Big().Cmp(want) != 0 {
		t.Errorf("packed = %s, want %s", p.Big(), want)
	}
	if p.String() != want.String() {
		t.Errorf("String() = %s, want %s", p.String(), want.String())
	}
}

func TestPackOverflow(t *testing.T) {
	tests := []struct {
		name       string
		deployedAt uint64
		offsets    Offsets
	}{
		{"deployedAt", math.MaxUint32 + 1, Offsets{}},
		{"private withdrawal", 0, Offsets{PrivateWithdrawal: math.MaxUint32 + 1}},
		{"public cancellation", 0, Offsets{PublicCancellation: 1 << 40}},
	}

	for _, tt := range tests {
		t.Run(tt.name, func(t *testing.T) {
			_, err := Pack(tt.deployedAt, tt.offsets)
			if !errors.Is(err, ErrFieldOverflow) {
				t.Errorf("Pack error = %v, want ErrFieldOverflow", err)
			}
		})
	}
}

func TestFromBig(t *testing.T) {
	p, _ := Pack(42, Offsets{1, 2, 3, 4})

	back, err := FromBig(p.Big())
	if err != nil {
		t.Fatalf("FromBig error: %v", err)
	}
	at, o := Unpack(back)
	if at != 42 || o != (Offsets{1, 2, 3, 4}) {
		t.Errorf("FromBig round trip = %d %+v", at, o)
	}

	dec, err := FromDecimal(p.String())
	if err != nil {
		t.Fatalf("FromDecimal error: %v", err)
	}
	if dec.Big().Cmp(p.Big()) != 0 {
		t.Errorf("FromDecimal = %s, want %s", dec, p)
	}

	high := new(big.Int).Lsh(big.NewInt(1), 200)
	if _, err := FromBig(high); !errors.Is(err, ErrHighBits) {
		t.Errorf("FromBig(1<<200) error = %v, want ErrHighBits", err)
	}
	if _, err := FromBig(big.NewInt(-1)); err == nil {
		t.Error("FromBig(-1) should fail")
	}
}

func TestScheduleValidate(t *testing.T) {
	if err := DefaultSrcSchedule().Validate(); err != nil {
		t.Errorf("default src schedule invalid: %v", err)
	}
	if err := DefaultDstSchedule().Validate(); err != nil {
		t.Errorf("default dst schedule invalid: %v", err)
	}

	bad := DefaultSrcSchedule()
	bad.PublicWithdrawal = bad.PrivateWithdrawal - time.Second
	if err := bad.Validate(); !errors.Is(err, ErrNotMonotonic) {
		t.Errorf("non-monotonic error = %v, want ErrNotMonotonic", err)
	}

	neg := DefaultSrcSchedule()
	neg.FinalityLock = -time.Second
	if err := neg.Validate(); !errors.Is(err, ErrNegative) {
		t.Errorf("negative error = %v, want ErrNegative", err)
	}

	huge := DefaultSrcSchedule()
	huge.PublicCancellation = 200 * 365 * 24 * time.Hour
	if err := huge.Validate(); !errors.Is(err, ErrFieldOverflow) {
		t.Errorf("overflow error = %v, want ErrFieldOverflow", err)
	}
}

func TestSchedulePack(t *testing.T) {
	s := DefaultSrcSchedule()
	deployed := time.Unix(1735689600, 0)

	p, err := s.Pack(deployed)
	if err != nil {
		t.Fatalf("Pack error: %v", err)
	}
	at, o := Unpack(p)
	if at != 1735689600 {
		t.Errorf("deployedAt = %d, want 1735689600", at)
	}
	want := Offsets{600, 1200, 1800, 86400}
	if o != want {
		t.Errorf("offsets = %+v, want %+v", o, want)
	}
}
