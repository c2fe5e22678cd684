package swap

import "time"

// SetClock replaces the monitor's clock.
func (m *Monitor) SetClock(now func() time.Time) {
	m.now = now
}
