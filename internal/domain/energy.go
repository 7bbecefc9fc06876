package domain

import "time"

// EnergyCounter turns readings of a monotonically increasing, wrapping
// energy register into average power between consecutive readings.
type EnergyCounter struct {
	// Max is the value after which the register wraps to zero.
	Max uint64
	// Scale converts register units to joules.
	Scale float64

	last   uint64
	lastAt time.Time
	primed bool
}

// Observe records a reading taken at at. It returns false for the first
// reading and for readings that do not advance time.
func (c *EnergyCounter) Observe(v uint64, at time.Time) (watts float64, ok bool) {
	if !c.primed {
		c.last, c.lastAt, c.primed = v, at, true
		return 0, false
	}
	if !at.After(c.lastAt) {
		return 0, false
	}

	var delta uint64
	if v >= c.last {
		delta = v - c.last
	} else {
		delta = c.Max - c.last + v
	}
	secs := at.Sub(c.lastAt).Seconds()
	c.last, c.lastAt = v, at
	return float64(delta) * c.Scale / secs, true
}

// Reset forgets the previous reading.
func (c *EnergyCounter) Reset() {
	c.primed = false
	c.last = 0
	c.lastAt = time.Time{}
}
