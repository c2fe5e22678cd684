package timelock

import (
	"fmt"
	"time"
)

// Schedule is the five-phase timelock schedule for one side of a swap.
// Every phase is a duration after escrow deployment.
type Schedule struct {
	FinalityLock        time.Duration `yaml:"finality_lock"`
	PrivateWithdrawal   time.Duration `yaml:"private_withdrawal"`
	PublicWithdrawal    time.Duration `yaml:"public_withdrawal"`
	PrivateCancellation time.Duration `yaml:"private_cancellation"`
	PublicCancellation  time.Duration `yaml:"public_cancellation"`
}

// DefaultSrcSchedule returns the source-side defaults.
func DefaultSrcSchedule() Schedule {
	return Schedule{
		FinalityLock:        5 * time.Minute,
		PrivateWithdrawal:   10 * time.Minute,
		PublicWithdrawal:    20 * time.Minute,
		PrivateCancellation: 30 * time.Minute,
		PublicCancellation:  24 * time.Hour,
	}
}

// DefaultDstSchedule returns the destination-side defaults. The destination
// cancels earlier than the source so the resolver can always recover its
// deposit before the user can recover theirs.
func DefaultDstSchedule() Schedule {
	return Schedule{
		FinalityLock:        5 * time.Minute,
		PrivateWithdrawal:   10 * time.Minute,
		PublicWithdrawal:    20 * time.Minute,
		PrivateCancellation: 30 * time.Minute,
		PublicCancellation:  time.Hour,
	}
}

// Validate checks that the phases are non-negative, non-decreasing and
// representable in the packed form.
func (s Schedule) Validate() error {
	phases := []struct {
		name string
		d    time.Duration
	}{
		{"finality_lock", s.FinalityLock},
		{"private_withdrawal", s.PrivateWithdrawal},
		{"public_withdrawal", s.PublicWithdrawal},
		{"private_cancellation", s.PrivateCancellation},
		{"public_cancellation", s.PublicCancellation},
	}

	var prev time.Duration
	for i, p := range phases {
		if p.d < 0 {
			return fmt.Errorf("%w: %s=%s", ErrNegative, p.name, p.d)
		}
		if secs := uint64(p.d / time.Second); secs > 1<<fieldBits-1 {
			return fmt.Errorf("%w: %s=%s", ErrFieldOverflow, p.name, p.d)
		}
		if i > 0 && p.d < prev {
			return fmt.Errorf("%w: %s (%s) is before %s (%s)", ErrNotMonotonic, p.name, p.d, phases[i-1].name, prev)
		}
		prev = p.d
	}
	return nil
}

// Offsets returns the four packed offsets in whole seconds.
func (s Schedule) Offsets() Offsets {
	return Offsets{
		PrivateWithdrawal:   uint64(s.PrivateWithdrawal / time.Second),
		PublicWithdrawal:    uint64(s.PublicWithdrawal / time.Second),
		PrivateCancellation: uint64(s.PrivateCancellation / time.Second),
		PublicCancellation:  uint64(s.PublicCancellation / time.Second),
	}
}

// Pack packs the schedule for an escrow deployed at deployedAt.
func (s Schedule) Pack(deployedAt time.Time) (Packed, error) {
	ts := deployedAt.Unix()
	if ts < 0 {
		return Packed{}, fmt.Errorf("%w: deployedAt before epoch", ErrFieldOverflow)
	}
	return Pack(uint64(ts), s.Offsets())
}
